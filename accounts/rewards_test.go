// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package accounts_test

import (
	"bytes"
	"testing"

	"github.com/blinklabs-io/chainindex/accounts"
	"github.com/blinklabs-io/chainindex/address"
	"github.com/blinklabs-io/chainindex/types"
	lcommon "github.com/blinklabs-io/gouroboros/ledger/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stakeAddr(fill byte) address.StakeAddress {
	return address.StakeAddress{
		Network: address.NetworkMainnet,
		Credential: address.StakeCredential{
			Kind: address.KeyCredential,
			Hash: lcommon.NewBlake2b224(bytes.Repeat([]byte{fill}, 28)),
		},
	}
}

func poolID(fill byte) types.PoolID {
	return lcommon.NewBlake2b224(bytes.Repeat([]byte{fill}, 28))
}

// rewardParams returns parameters engineered so that with d >= 0.8 the
// pool reward is exactly maxPool: k=1, a0=0, supply 10B
func rewardParams() *types.ShelleyParams {
	return &types.ShelleyParams{
		MaxLovelaceSupply:   10_000_000_000,
		StakePoolTargetNum:  1,
		PoolPledgeInfluence: types.RatioZero,
		Decentralisation:    types.RatioOne,
	}
}

// Rewards precondition: a pool whose owners delegate less than the
// declared pledge earns nothing, and nothing is counted as unpaid
func TestPledgeNotMetMeansNoRewards(t *testing.T) {
	pool := poolID(0x01)
	owner := stakeAddr(0x10)
	rewardAccount := stakeAddr(0x11)

	staking := types.NewEpochSnapshot(500)
	staking.SPOs[pool] = types.SnapshotSPO{
		TotalStake:    10,
		Pledge:        20,
		RewardAccount: rewardAccount,
		PoolOwners:    []address.StakeAddress{owner},
		Delegators: map[address.StakeAddress]types.Lovelace{
			owner: 10,
		},
	}
	performance := types.NewEpochSnapshot(501)
	performance.Blocks = 10
	performance.SPOs[pool] = types.SnapshotSPO{BlocksProduced: 10}

	result, err := accounts.CalculateRewards(
		501, performance, staking, rewardParams(), 1_000_000,
		map[address.StakeAddress]bool{rewardAccount: true},
	)
	require.NoError(t, err)
	assert.Empty(t, result.Rewards)
	assert.Zero(t, result.TotalUnpaidLeaderRewards)
}

// Aggregating union: an account that is both the pool's reward account
// and a delegator receives one Leader-tagged entry holding the sum of its
// leader and member rewards
func TestAggregatingUnion(t *testing.T) {
	pool := poolID(0x01)
	owner := stakeAddr(0x10)
	rewardAccount := stakeAddr(0x11)
	other := stakeAddr(0x12)

	// Engineered so poolR = maxPool = R * sigma = 2,000,000 * 0.5 =
	// 1,000,000
	staking := types.NewEpochSnapshot(500)
	staking.SPOs[pool] = types.SnapshotSPO{
		TotalStake:    5_000_000_000,
		Pledge:        1_000_000_000,
		FixedCost:     340_000,
		Margin:        types.Ratio{Num: 1, Den: 20},
		RewardAccount: rewardAccount,
		PoolOwners:    []address.StakeAddress{owner},
		Delegators: map[address.StakeAddress]types.Lovelace{
			owner:         1_000_000_000,
			rewardAccount: 250_000_000,
			other:         3_750_000_000,
		},
	}
	performance := types.NewEpochSnapshot(501)
	performance.Blocks = 100
	performance.SPOs[pool] = types.SnapshotSPO{BlocksProduced: 100}

	result, err := accounts.CalculateRewards(
		501, performance, staking, rewardParams(), 2_000_000,
		map[address.StakeAddress]bool{rewardAccount: true},
	)
	require.NoError(t, err)
	details := result.Rewards[pool]
	require.NotEmpty(t, details)

	// Leader: 340000 + floor(660000 * (0.05 + 0.95*0.2)) = 498400
	// Member share for the reward account: floor(660000*0.95*0.05) = 31350
	var rewardAccountEntries []types.RewardDetail
	for _, detail := range details {
		if detail.Account == rewardAccount {
			rewardAccountEntries = append(rewardAccountEntries, detail)
		}
	}
	require.Len(t, rewardAccountEntries, 1)
	assert.Equal(t, types.RewardLeader, rewardAccountEntries[0].Type)
	assert.Equal(t, uint64(498_400+31_350), rewardAccountEntries[0].Amount)

	// The owner is excluded from member rewards; its share rides the
	// operator formula's s/sigma term
	for _, detail := range details {
		if detail.Account == owner {
			t.Fatalf("pool owner received a member reward: %+v", detail)
		}
	}

	// The unrelated delegator gets a plain member reward:
	// floor(660000*0.95*0.75) = 470250
	var otherEntry *types.RewardDetail
	for i := range details {
		if details[i].Account == other {
			otherEntry = &details[i]
		}
	}
	require.NotNil(t, otherEntry)
	assert.Equal(t, types.RewardMember, otherEntry.Type)
	assert.Equal(t, uint64(470_250), otherEntry.Amount)
}

// Leader rewards for pools whose reward account is unregistered are
// withheld and reported as unpaid (they stay in reserves)
func TestUnregisteredRewardAccount(t *testing.T) {
	pool := poolID(0x01)
	owner := stakeAddr(0x10)
	rewardAccount := stakeAddr(0x11)

	staking := types.NewEpochSnapshot(500)
	staking.SPOs[pool] = types.SnapshotSPO{
		TotalStake:    5_000_000_000,
		Pledge:        1_000_000_000,
		FixedCost:     2_000_000,
		RewardAccount: rewardAccount,
		PoolOwners:    []address.StakeAddress{owner},
		Delegators: map[address.StakeAddress]types.Lovelace{
			owner: 1_000_000_000,
		},
	}
	performance := types.NewEpochSnapshot(501)
	performance.Blocks = 10
	performance.SPOs[pool] = types.SnapshotSPO{BlocksProduced: 10}

	result, err := accounts.CalculateRewards(
		501, performance, staking, rewardParams(), 2_000_000,
		map[address.StakeAddress]bool{},
	)
	require.NoError(t, err)
	assert.Empty(t, result.Rewards)
	// poolR = 1,000,000 <= cost, so the whole reward was the leader's
	assert.Equal(t, uint64(1_000_000), result.TotalUnpaidLeaderRewards)
}

// Pre-Allegra shared reward account bug: before epoch 236 only the
// lowest pool id sharing a reward account is paid
func TestPreAllegraSharedRewardAccountBug(t *testing.T) {
	lowPool := poolID(0x01)
	highPool := poolID(0x02)
	ownerLow := stakeAddr(0x10)
	ownerHigh := stakeAddr(0x20)
	shared := stakeAddr(0x30)

	staking := types.NewEpochSnapshot(233)
	staking.SPOs[lowPool] = types.SnapshotSPO{
		TotalStake:    2_500_000_000,
		Pledge:        1_000_000_000,
		FixedCost:     2_000_000,
		RewardAccount: shared,
		PoolOwners:    []address.StakeAddress{ownerLow},
		Delegators: map[address.StakeAddress]types.Lovelace{
			ownerLow: 2_500_000_000,
		},
	}
	staking.SPOs[highPool] = types.SnapshotSPO{
		TotalStake:    2_500_000_000,
		Pledge:        1_000_000_000,
		FixedCost:     2_000_000,
		RewardAccount: shared,
		PoolOwners:    []address.StakeAddress{ownerHigh},
		Delegators: map[address.StakeAddress]types.Lovelace{
			ownerHigh: 2_500_000_000,
		},
	}
	performance := types.NewEpochSnapshot(234)
	performance.Blocks = 20
	performance.SPOs[lowPool] = types.SnapshotSPO{BlocksProduced: 10}
	performance.SPOs[highPool] = types.SnapshotSPO{BlocksProduced: 10}

	result, err := accounts.CalculateRewards(
		235, performance, staking, rewardParams(), 2_000_000,
		map[address.StakeAddress]bool{shared: true},
	)
	require.NoError(t, err)

	_, lowPaid := result.Rewards[lowPool]
	_, highPaid := result.Rewards[highPool]
	assert.True(t, lowPaid, "lowest pool id must be paid")
	assert.False(t, highPaid, "higher pool id must be dropped pre-Allegra")
	assert.NotZero(t, result.TotalUnpaidLeaderRewards)
}

// From Allegra on, both pools sharing a reward account are paid
func TestPostAllegraSharedRewardAccount(t *testing.T) {
	lowPool := poolID(0x01)
	highPool := poolID(0x02)
	ownerLow := stakeAddr(0x10)
	ownerHigh := stakeAddr(0x20)
	shared := stakeAddr(0x30)

	staking := types.NewEpochSnapshot(300)
	for _, entry := range []struct {
		pool  types.PoolID
		owner address.StakeAddress
	}{{lowPool, ownerLow}, {highPool, ownerHigh}} {
		staking.SPOs[entry.pool] = types.SnapshotSPO{
			TotalStake:    2_500_000_000,
			Pledge:        1_000_000_000,
			FixedCost:     2_000_000,
			RewardAccount: shared,
			PoolOwners:    []address.StakeAddress{entry.owner},
			Delegators: map[address.StakeAddress]types.Lovelace{
				entry.owner: 2_500_000_000,
			},
		}
	}
	performance := types.NewEpochSnapshot(301)
	performance.Blocks = 20
	performance.SPOs[lowPool] = types.SnapshotSPO{BlocksProduced: 10}
	performance.SPOs[highPool] = types.SnapshotSPO{BlocksProduced: 10}

	result, err := accounts.CalculateRewards(
		301, performance, staking, rewardParams(), 2_000_000,
		map[address.StakeAddress]bool{shared: true},
	)
	require.NoError(t, err)
	assert.Len(t, result.Rewards, 2)
	assert.Zero(t, result.TotalUnpaidLeaderRewards)
}

// No blocks in the performance snapshot means an empty result
func TestNoBlocksNoRewards(t *testing.T) {
	staking := types.NewEpochSnapshot(500)
	performance := types.NewEpochSnapshot(501)

	result, err := accounts.CalculateRewards(
		501, performance, staking, rewardParams(), 1_000_000,
		map[address.StakeAddress]bool{},
	)
	require.NoError(t, err)
	assert.Empty(t, result.Rewards)
	assert.Zero(t, result.TotalPaid)
}
