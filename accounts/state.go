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

// Package accounts maintains stake registrations, delegations, the pool
// registry, the rolling mark/set/go stake snapshots, and runs the
// end-of-epoch rewards calculation.
package accounts

import (
	"github.com/blinklabs-io/chainindex/address"
	"github.com/blinklabs-io/chainindex/types"
)

// PoolState is the live registration state of one pool
type PoolState struct {
	Registration types.PoolRegistration
	// RetiringEpoch is set when a retirement certificate is pending
	RetiringEpoch *uint64
}

// AccountState is the live state of one stake address
type AccountState struct {
	Registered   bool
	Deposit      types.Lovelace
	DelegatedTo  *types.PoolID
	VoteDelegate *types.DRep
	Rewards      types.Lovelace
}

// State is the accounts and pools state. It is committed per block into a
// state history, so Clone must produce a fully independent copy.
type State struct {
	Network  address.Network
	Epoch    uint64
	Accounts map[address.StakeAddress]*AccountState
	Pools    map[types.PoolID]*PoolState
	// BlocksMinted counts blocks per pool in the current epoch
	BlocksMinted map[types.PoolID]uint64
	BlocksTotal  uint64
	Pots         types.Pots

	// Mark, Set, Go are the rolling stake snapshots at epochs e, e-1, e-2
	Mark *types.EpochSnapshot
	Set  *types.EpochSnapshot
	Go   *types.EpochSnapshot
}

// NewState creates an empty accounts state
func NewState(network address.Network) *State {
	return &State{
		Network:      network,
		Accounts:     make(map[address.StakeAddress]*AccountState),
		Pools:        make(map[types.PoolID]*PoolState),
		BlocksMinted: make(map[types.PoolID]uint64),
	}
}

// Clone implements state.Cloneable
func (s *State) Clone() *State {
	out := &State{
		Network:      s.Network,
		Epoch:        s.Epoch,
		Accounts:     make(map[address.StakeAddress]*AccountState, len(s.Accounts)),
		Pools:        make(map[types.PoolID]*PoolState, len(s.Pools)),
		BlocksMinted: make(map[types.PoolID]uint64, len(s.BlocksMinted)),
		BlocksTotal:  s.BlocksTotal,
		Pots:         s.Pots,
		// Snapshots are immutable once taken; share them
		Mark: s.Mark,
		Set:  s.Set,
		Go:   s.Go,
	}
	for addr, account := range s.Accounts {
		copied := *account
		out.Accounts[addr] = &copied
	}
	for id, pool := range s.Pools {
		copied := *pool
		out.Pools[id] = &copied
	}
	for id, blocks := range s.BlocksMinted {
		out.BlocksMinted[id] = blocks
	}
	return out
}

func (s *State) stakeAddress(cred types.Credential) address.StakeAddress {
	return types.StakeAddressFor(cred, s.Network)
}

func (s *State) account(addr address.StakeAddress) *AccountState {
	account, ok := s.Accounts[addr]
	if !ok {
		account = &AccountState{}
		s.Accounts[addr] = account
	}
	return account
}

// ApplyCertificate applies one certificate in on-chain order
func (s *State) ApplyCertificate(cert types.TxCertificate) {
	switch c := cert.(type) {
	case types.StakeRegistration:
		account := s.account(s.stakeAddress(c.Credential))
		account.Registered = true
	case types.Registration:
		account := s.account(s.stakeAddress(c.Credential))
		account.Registered = true
		account.Deposit = c.Deposit
	case types.StakeDeregistration:
		s.deregister(s.stakeAddress(c.Credential))
	case types.Deregistration:
		s.deregister(s.stakeAddress(c.Credential))
	case types.StakeDelegation:
		account := s.account(s.stakeAddress(c.Credential))
		pool := c.PoolID
		account.DelegatedTo = &pool
	case types.StakeAndVoteDelegation:
		account := s.account(s.stakeAddress(c.Credential))
		pool := c.PoolID
		drep := c.DRep
		account.DelegatedTo = &pool
		account.VoteDelegate = &drep
	case types.StakeRegistrationAndDelegation:
		account := s.account(s.stakeAddress(c.Credential))
		pool := c.PoolID
		account.Registered = true
		account.Deposit = c.Deposit
		account.DelegatedTo = &pool
	case types.StakeRegistrationAndVoteDelegation:
		account := s.account(s.stakeAddress(c.Credential))
		drep := c.DRep
		account.Registered = true
		account.Deposit = c.Deposit
		account.VoteDelegate = &drep
	case types.StakeRegistrationAndStakeAndVoteDelegation:
		account := s.account(s.stakeAddress(c.Credential))
		pool := c.PoolID
		drep := c.DRep
		account.Registered = true
		account.Deposit = c.Deposit
		account.DelegatedTo = &pool
		account.VoteDelegate = &drep
	case types.VoteDelegation:
		account := s.account(s.stakeAddress(c.Credential))
		drep := c.DRep
		account.VoteDelegate = &drep
	case types.PoolRegistration:
		if existing, ok := s.Pools[c.Operator]; ok {
			existing.Registration = c
			// A re-registration cancels a pending retirement
			existing.RetiringEpoch = nil
		} else {
			s.Pools[c.Operator] = &PoolState{Registration: c}
		}
	case types.PoolRetirement:
		if pool, ok := s.Pools[c.Operator]; ok {
			epoch := c.Epoch
			pool.RetiringEpoch = &epoch
		}
	case types.MoveInstantaneousReward:
		s.applyMir(c)
	}
}

func (s *State) deregister(addr address.StakeAddress) {
	if account, ok := s.Accounts[addr]; ok {
		account.Registered = false
		account.DelegatedTo = nil
		account.VoteDelegate = nil
		account.Rewards = 0
	}
}

func (s *State) applyMir(mir types.MoveInstantaneousReward) {
	if mir.OtherPot != nil {
		amount := *mir.OtherPot
		switch mir.Source {
		case types.RewardSourceReserves:
			s.Pots.Reserves -= amount
			s.Pots.Treasury += amount
		case types.RewardSourceTreasury:
			s.Pots.Treasury -= amount
			s.Pots.Reserves += amount
		}
		return
	}
	var total types.Lovelace
	for cred, amount := range mir.Rewards {
		if amount <= 0 {
			continue
		}
		account := s.account(s.stakeAddress(cred))
		account.Rewards += uint64(amount)
		total += uint64(amount)
	}
	switch mir.Source {
	case types.RewardSourceReserves:
		s.Pots.Reserves -= total
	case types.RewardSourceTreasury:
		s.Pots.Treasury -= total
	}
}

// ApplyWithdrawal debits a reward account
func (s *State) ApplyWithdrawal(w types.Withdrawal) {
	account := s.account(w.Address)
	if w.Value > account.Rewards {
		account.Rewards = 0
		return
	}
	account.Rewards -= w.Value
}

// CountBlock credits a minted block to its issuing pool
func (s *State) CountBlock(issuer types.PoolID) {
	s.BlocksMinted[issuer]++
	s.BlocksTotal++
}

// RegisteredStakeAddresses returns the set of currently registered
// addresses, used by the rewards engine's registration filter
func (s *State) RegisteredStakeAddresses() map[address.StakeAddress]bool {
	out := make(map[address.StakeAddress]bool)
	for addr, account := range s.Accounts {
		if account.Registered {
			out[addr] = true
		}
	}
	return out
}

// TakeSnapshot freezes the current stake distribution for the epoch that
// just started and rotates mark/set/go
func (s *State) TakeSnapshot(epoch uint64) {
	snapshot := types.NewEpochSnapshot(epoch)
	snapshot.Pots = s.Pots
	snapshot.Blocks = s.BlocksTotal

	for id, pool := range s.Pools {
		reg := pool.Registration
		spo := types.SnapshotSPO{
			Pledge:         reg.Pledge,
			FixedCost:      reg.Cost,
			Margin:         reg.Margin,
			RewardAccount:  reg.RewardAccount,
			Delegators:     make(map[address.StakeAddress]types.Lovelace),
			BlocksProduced: s.BlocksMinted[id],
		}
		for _, owner := range reg.PoolOwners {
			spo.PoolOwners = append(spo.PoolOwners, address.StakeAddress{
				Network: s.Network,
				Credential: address.StakeCredential{
					Kind: address.KeyCredential,
					Hash: owner,
				},
			})
		}
		snapshot.SPOs[id] = spo
	}

	// Delegated stake is the account's reward balance only; UTxO holdings
	// of the stake address are not counted
	for addr, account := range s.Accounts {
		if !account.Registered || account.DelegatedTo == nil {
			continue
		}
		spo, ok := snapshot.SPOs[*account.DelegatedTo]
		if !ok {
			continue
		}
		spo.Delegators[addr] += account.Rewards
		spo.TotalStake += account.Rewards
		snapshot.SPOs[*account.DelegatedTo] = spo
	}

	s.Go = s.Set
	s.Set = s.Mark
	s.Mark = snapshot
	s.BlocksMinted = make(map[types.PoolID]uint64)
	s.BlocksTotal = 0
}

// RetirePools removes pools whose retirement epoch has arrived and
// refunds their deposits to the reward accounts
func (s *State) RetirePools(epoch uint64, poolDeposit types.Lovelace) []types.RewardDetail {
	var refunds []types.RewardDetail
	for id, pool := range s.Pools {
		if pool.RetiringEpoch == nil || *pool.RetiringEpoch > epoch {
			continue
		}
		account := s.account(pool.Registration.RewardAccount)
		if account.Registered {
			account.Rewards += poolDeposit
			refunds = append(refunds, types.RewardDetail{
				Account: pool.Registration.RewardAccount,
				Type:    types.RewardPoolRefund,
				Amount:  poolDeposit,
				Pool:    id,
			})
		} else {
			// Refund to an unregistered account goes to the treasury
			s.Pots.Treasury += poolDeposit
		}
		s.Pots.Deposits -= poolDeposit
		delete(s.Pools, id)
	}
	return refunds
}

// ApplyRewards credits calculated rewards to the accounts; rewards for
// accounts deregistered since calculation go to the treasury (unregRU)
func (s *State) ApplyRewards(result *types.RewardsResult) {
	for _, details := range result.Rewards {
		for _, detail := range details {
			account, ok := s.Accounts[detail.Account]
			if !ok || !account.Registered {
				s.Pots.Treasury += detail.Amount
				continue
			}
			account.Rewards += detail.Amount
		}
	}
}

// SPOStakeDistribution returns the live per-pool stake for the governance
// module
func (s *State) SPOStakeDistribution() map[types.PoolID]types.DelegatedStake {
	out := make(map[types.PoolID]types.DelegatedStake, len(s.Pools))
	for id := range s.Pools {
		var entry types.DelegatedStake
		if s.Go != nil {
			if spo, ok := s.Go.SPOs[id]; ok {
				entry.Active = spo.TotalStake
			}
		}
		if s.Mark != nil {
			if spo, ok := s.Mark.SPOs[id]; ok {
				entry.Live = spo.TotalStake
			}
		}
		out[id] = entry
	}
	return out
}

// DRepStakeDistribution returns the stake behind each DRep credential
func (s *State) DRepStakeDistribution() map[types.Credential]types.Lovelace {
	out := make(map[types.Credential]types.Lovelace)
	for _, account := range s.Accounts {
		if !account.Registered || account.VoteDelegate == nil {
			continue
		}
		drep := *account.VoteDelegate
		var cred types.Credential
		switch drep.Kind {
		case types.DRepKey:
			cred = types.Credential{
				Kind: address.KeyCredential,
				Hash: drep.Credential,
			}
		case types.DRepScript:
			cred = types.Credential{
				Kind: address.ScriptCredential,
				Hash: drep.Credential,
			}
		default:
			continue
		}
		out[cred] += account.Rewards
	}
	return out
}
