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
	"testing"

	"github.com/blinklabs-io/chainindex/accounts"
	"github.com/blinklabs-io/chainindex/address"
	"github.com/blinklabs-io/chainindex/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func registration(addr address.StakeAddress) types.Registration {
	return types.Registration{
		Credential: types.Credential{
			Kind: addr.Credential.Kind,
			Hash: addr.Credential.Hash,
		},
		Deposit: 2_000_000,
	}
}

func delegation(
	addr address.StakeAddress,
	pool types.PoolID,
) types.StakeDelegation {
	return types.StakeDelegation{
		Credential: types.Credential{
			Kind: addr.Credential.Kind,
			Hash: addr.Credential.Hash,
		},
		PoolID: pool,
	}
}

func TestRegistrationAndDelegation(t *testing.T) {
	st := accounts.NewState(address.NetworkMainnet)
	addr := stakeAddr(0x01)
	pool := poolID(0xa0)

	st.ApplyCertificate(registration(addr))
	st.ApplyCertificate(delegation(addr, pool))

	account := st.Accounts[addr]
	require.NotNil(t, account)
	assert.True(t, account.Registered)
	require.NotNil(t, account.DelegatedTo)
	assert.Equal(t, pool, *account.DelegatedTo)

	registered := st.RegisteredStakeAddresses()
	assert.True(t, registered[addr])

	st.ApplyCertificate(types.Deregistration{
		Credential: types.Credential{
			Kind: addr.Credential.Kind,
			Hash: addr.Credential.Hash,
		},
	})
	assert.False(t, st.Accounts[addr].Registered)
	assert.Nil(t, st.Accounts[addr].DelegatedTo)
}

func TestSnapshotRotation(t *testing.T) {
	st := accounts.NewState(address.NetworkMainnet)
	addr := stakeAddr(0x01)
	pool := poolID(0xa0)

	st.ApplyCertificate(types.PoolRegistration{
		Operator: pool,
		Pledge:   100,
		Cost:     340,
	})
	st.ApplyCertificate(registration(addr))
	st.ApplyCertificate(delegation(addr, pool))
	st.ApplyCertificate(types.MoveInstantaneousReward{
		Source:  types.RewardSourceReserves,
		Rewards: map[types.Credential]int64{
			{Kind: addr.Credential.Kind, Hash: addr.Credential.Hash}: 500,
		},
	})
	st.CountBlock(pool)

	st.TakeSnapshot(500)
	require.NotNil(t, st.Mark)
	assert.Nil(t, st.Set)
	assert.Equal(t, uint64(1), st.Mark.SPOs[pool].BlocksProduced)
	assert.Equal(t, types.Lovelace(500), st.Mark.SPOs[pool].Delegators[addr])

	st.TakeSnapshot(501)
	st.TakeSnapshot(502)
	require.NotNil(t, st.Go)
	assert.Equal(t, uint64(500), st.Go.Epoch)
	assert.Equal(t, uint64(502), st.Mark.Epoch)
}

func TestPoolRetirementRefundsDeposit(t *testing.T) {
	st := accounts.NewState(address.NetworkMainnet)
	rewardAccount := stakeAddr(0x02)
	pool := poolID(0xa0)

	st.ApplyCertificate(registration(rewardAccount))
	st.ApplyCertificate(types.PoolRegistration{
		Operator:      pool,
		RewardAccount: rewardAccount,
	})
	st.ApplyCertificate(types.PoolRetirement{Operator: pool, Epoch: 300})
	st.Pots.Deposits = 500_000_000

	// Not due yet
	refunds := st.RetirePools(299, 500_000_000)
	assert.Empty(t, refunds)
	require.Contains(t, st.Pools, pool)

	refunds = st.RetirePools(300, 500_000_000)
	require.Len(t, refunds, 1)
	assert.Equal(t, types.RewardPoolRefund, refunds[0].Type)
	assert.NotContains(t, st.Pools, pool)
	assert.Equal(
		t,
		types.Lovelace(500_000_000),
		st.Accounts[rewardAccount].Rewards,
	)
}

func TestReRegistrationCancelsRetirement(t *testing.T) {
	st := accounts.NewState(address.NetworkMainnet)
	pool := poolID(0xa0)

	st.ApplyCertificate(types.PoolRegistration{Operator: pool})
	st.ApplyCertificate(types.PoolRetirement{Operator: pool, Epoch: 300})
	st.ApplyCertificate(types.PoolRegistration{Operator: pool})

	refunds := st.RetirePools(300, 500_000_000)
	assert.Empty(t, refunds)
	assert.Contains(t, st.Pools, pool)
}

func TestMirPotTransfers(t *testing.T) {
	st := accounts.NewState(address.NetworkMainnet)
	st.Pots = types.Pots{Reserves: 1_000, Treasury: 100}

	other := types.Lovelace(250)
	st.ApplyCertificate(types.MoveInstantaneousReward{
		Source:   types.RewardSourceReserves,
		OtherPot: &other,
	})
	assert.Equal(t, types.Lovelace(750), st.Pots.Reserves)
	assert.Equal(t, types.Lovelace(350), st.Pots.Treasury)
}

func TestWithdrawalDebitsRewards(t *testing.T) {
	st := accounts.NewState(address.NetworkMainnet)
	addr := stakeAddr(0x03)
	st.ApplyCertificate(registration(addr))
	st.ApplyCertificate(types.MoveInstantaneousReward{
		Source: types.RewardSourceTreasury,
		Rewards: map[types.Credential]int64{
			{Kind: addr.Credential.Kind, Hash: addr.Credential.Hash}: 1_000,
		},
	})
	st.ApplyWithdrawal(types.Withdrawal{Address: addr, Value: 400})
	assert.Equal(t, types.Lovelace(600), st.Accounts[addr].Rewards)
}

func TestCloneIsIndependent(t *testing.T) {
	st := accounts.NewState(address.NetworkMainnet)
	addr := stakeAddr(0x04)
	st.ApplyCertificate(registration(addr))

	clone := st.Clone()
	clone.Accounts[addr].Rewards = 999

	assert.Zero(t, st.Accounts[addr].Rewards)
}
