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

package types

import (
	"github.com/blinklabs-io/chainindex/address"
)

// Pots are the three ledger accounting buckets
type Pots struct {
	Treasury Lovelace
	Reserves Lovelace
	Deposits Lovelace
}

// SnapshotSPO is one pool's entry in an epoch stake snapshot
type SnapshotSPO struct {
	TotalStake     Lovelace
	Pledge         Lovelace
	FixedCost      Lovelace
	Margin         Ratio
	RewardAccount  address.StakeAddress
	PoolOwners     []address.StakeAddress
	Delegators     map[address.StakeAddress]Lovelace
	BlocksProduced uint64
}

// EpochSnapshot is the stake distribution frozen at one epoch boundary.
// Snapshots are shared read-only between modules; they are never mutated
// after the boundary that produced them.
type EpochSnapshot struct {
	Epoch  uint64
	SPOs   map[PoolID]SnapshotSPO
	Pots   Pots
	Blocks uint64
}

// NewEpochSnapshot returns an empty snapshot for the given epoch
func NewEpochSnapshot(epoch uint64) *EpochSnapshot {
	return &EpochSnapshot{
		Epoch: epoch,
		SPOs:  make(map[PoolID]SnapshotSPO),
	}
}

// TotalActiveStake sums the stake delegated across all pools
func (s *EpochSnapshot) TotalActiveStake() Lovelace {
	var total Lovelace
	for _, spo := range s.SPOs {
		total += spo.TotalStake
	}
	return total
}

// StakeDelegatedBy returns the stake the given addresses delegate to the
// pool
func (s *EpochSnapshot) StakeDelegatedBy(
	pool PoolID,
	addrs []address.StakeAddress,
) Lovelace {
	spo, ok := s.SPOs[pool]
	if !ok {
		return 0
	}
	var total Lovelace
	for _, addr := range addrs {
		total += spo.Delegators[addr]
	}
	return total
}

// RewardType classifies a reward payment
type RewardType uint8

const (
	// RewardLeader is an operator reward (takes precedence when
	// aggregated with a member reward per Errata 17.4)
	RewardLeader RewardType = iota
	// RewardMember is a delegator reward
	RewardMember
	// RewardPoolRefund is a deposit refund on pool retirement
	RewardPoolRefund
)

// RewardDetail is one reward payment to one account from one pool. If an
// account earns both leader and member rewards from the same pool the
// amounts are summed into a single Leader-tagged entry.
type RewardDetail struct {
	Account address.StakeAddress
	Type    RewardType
	Amount  Lovelace
	Pool    PoolID
}

// SPORewards summarises one pool's rewards for an epoch
type SPORewards struct {
	TotalRewards    Lovelace
	OperatorRewards Lovelace
}

// RewardsResult is the output of one epoch's reward calculation
type RewardsResult struct {
	Epoch uint64
	// TotalPaid is the sum of all calculated rewards
	TotalPaid Lovelace
	// TotalUnpaidLeaderRewards is leader rewards withheld because the
	// pool reward account was unregistered; these stay in reserves
	TotalUnpaidLeaderRewards Lovelace
	Rewards                  map[PoolID][]RewardDetail
	SPORewards               map[PoolID]SPORewards
}
