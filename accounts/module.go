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

package accounts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"sync"

	"github.com/blinklabs-io/chainindex/address"
	"github.com/blinklabs-io/chainindex/bus"
	"github.com/blinklabs-io/chainindex/state"
	"github.com/blinklabs-io/chainindex/types"
	lcommon "github.com/blinklabs-io/gouroboros/ledger/common"
)

// Query topics answered by this module
const (
	QueryAccount = "query.account"
	QueryPool    = "query.pool"
)

// Module is the accounts and pools state module
type Module struct {
	bus    *bus.Bus
	logger *slog.Logger

	certsSub       *bus.Subscription
	withdrawalsSub *bus.Subscription
	paramsSub      *bus.Subscription
	bootSub        *bus.Subscription

	mu      sync.RWMutex
	history *state.History[*State]
	network address.Network
	params  types.ProtocolParams
}

// NewModule creates the accounts state module
func NewModule(b *bus.Bus, logger *slog.Logger, network address.Network) *Module {
	m := &Module{
		bus:            b,
		logger:         logger,
		network:        network,
		history:        state.NewHistory[*State]("accounts"),
		certsSub:       b.Subscribe(types.TopicCertificates),
		withdrawalsSub: b.Subscribe(types.TopicWithdrawals),
		paramsSub:      b.Subscribe(types.TopicProtocolParameters),
		bootSub:        b.Subscribe(types.TopicBootstrapped),
	}
	b.HandleRequests(QueryAccount, m.handleAccountQuery)
	b.HandleRequests(QueryPool, m.handlePoolQuery)
	return m
}

// History exposes the state history for bootstrap seeding
func (m *Module) History() *state.History[*State] {
	return m.history
}

// Run processes the certificate stream, reading withdrawals in lockstep
// and parameters at each epoch boundary
func (m *Module) Run(ctx context.Context) error {
	if _, err := m.bootSub.Read(ctx); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}

	for {
		msg, err := m.certsSub.Read(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		certsMsg, ok := msg.(types.TxCertificatesMessage)
		if !ok {
			m.logger.Error("unexpected message on certificates topic")
			continue
		}
		block := certsMsg.Block

		m.mu.Lock()
		st := m.history.GetOrInitWith(func() *State {
			return NewState(m.network)
		})
		if block.Status == types.BlockStatusRolledBack {
			st, err = m.history.GetRolledBackState(block.Number)
			if err != nil {
				m.mu.Unlock()
				panic(err.Error())
			}
		}
		m.mu.Unlock()

		// Withdrawals are read second for every block, in lockstep
		wMsg, err := m.withdrawalsSub.Read(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		withdrawals, ok := wMsg.(types.WithdrawalsMessage)
		if !ok {
			m.logger.Error("unexpected message on withdrawals topic")
			continue
		}
		checkSync(block, withdrawals.Block)

		if block.NewEpoch {
			pMsg, err := m.paramsSub.Read(ctx)
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return err
			}
			params, ok := pMsg.(types.ProtocolParamsMessage)
			if !ok {
				panic("unexpected message on parameters topic")
			}
			checkSync(block, params.Block)
			m.params = params.Params

			if err := m.handleEpochBoundary(ctx, st, block); err != nil {
				return err
			}
		}

		st.Epoch = block.Epoch
		for _, cert := range certsMsg.Certificates {
			st.ApplyCertificate(cert.Cert)
		}
		for _, withdrawal := range withdrawals.Withdrawals {
			st.ApplyWithdrawal(withdrawal)
		}

		m.mu.Lock()
		m.history.Commit(block.Number, st)
		if block.NewEpoch {
			m.history.CommitEpoch(block.Epoch, st)
		}
		m.mu.Unlock()
	}
}

// handleEpochBoundary rotates the stake snapshots, retires due pools,
// runs the rewards calculation, and publishes the derived distributions
func (m *Module) handleEpochBoundary(
	ctx context.Context,
	st *State,
	block types.BlockInfo,
) error {
	st.TakeSnapshot(block.Epoch)

	var poolDeposit types.Lovelace
	shelley := m.params.Shelley
	if shelley != nil {
		poolDeposit = shelley.PoolDeposit
	}
	refunds := st.RetirePools(block.Epoch, poolDeposit)

	var rewards []types.RewardDetail
	rewards = append(rewards, refunds...)

	if shelley != nil && st.Go != nil && st.Mark != nil && block.Epoch > 0 {
		// The reward pot for the epoch that just ended: expansion from
		// reserves, minus the treasury cut. Collected fees are not added
		// to the pot.
		totalPot := floorRat(new(big.Rat).Mul(
			shelley.MonetaryExpansion.Rat(),
			ratFromUint(st.Pots.Reserves),
		))
		treasuryCut := floorRat(new(big.Rat).Mul(
			shelley.TreasuryGrowthRate.Rat(),
			ratFromUint(totalPot),
		))
		stakeRewards := totalPot - treasuryCut

		result, err := CalculateRewards(
			block.Epoch-1,
			st.Mark,
			st.Go,
			shelley,
			stakeRewards,
			st.RegisteredStakeAddresses(),
		)
		if err != nil {
			return fmt.Errorf("rewards calculation for epoch %d: %w",
				block.Epoch-1, err)
		}

		st.Pots.Treasury += treasuryCut
		st.Pots.Reserves -= treasuryCut + result.TotalPaid
		st.ApplyRewards(result)

		for _, details := range result.Rewards {
			rewards = append(rewards, details...)
		}
	}

	if err := m.bus.Publish(ctx, types.TopicStakeRewardDeltas,
		types.RewardDeltasMessage{
			Block:   block,
			Epoch:   block.Epoch - 1,
			Rewards: rewards,
		},
	); err != nil {
		m.logger.Error("publish reward deltas failed",
			slog.String("error", err.Error()))
	}
	if err := m.bus.Publish(ctx, types.TopicSPOStake,
		types.SPOStakeDistributionMessage{
			Block: block,
			Stake: st.SPOStakeDistribution(),
		},
	); err != nil {
		m.logger.Error("publish spo stake failed",
			slog.String("error", err.Error()))
	}
	if err := m.bus.Publish(ctx, types.TopicDRepStake,
		types.DRepStakeDistributionMessage{
			Block: block,
			Stake: st.DRepStakeDistribution(),
		},
	); err != nil {
		m.logger.Error("publish drep stake failed",
			slog.String("error", err.Error()))
	}
	return nil
}

// PoolVrfAndStake resolves a block issuer to its registered VRF key hash
// and active stake fraction, for the header validator
func (m *Module) PoolVrfAndStake(
	pool types.PoolID,
) (lcommon.Blake2b256, *big.Rat, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.history.Current()
	if !ok {
		return lcommon.Blake2b256{}, nil, false
	}
	registered, ok := st.Pools[pool]
	if !ok {
		return lcommon.Blake2b256{}, nil, false
	}
	sigma := new(big.Rat)
	if st.Go != nil {
		total := st.Go.TotalActiveStake()
		if spo, found := st.Go.SPOs[pool]; found && total > 0 {
			sigma.SetFrac(
				new(big.Int).SetUint64(spo.TotalStake),
				new(big.Int).SetUint64(total),
			)
		}
	}
	return registered.Registration.VrfKeyHash, sigma, true
}

func (m *Module) handleAccountQuery(_ context.Context, req any) (any, error) {
	addr, ok := req.(address.StakeAddress)
	if !ok {
		return nil, errors.New("account query expects a StakeAddress")
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.history.Current()
	if !ok {
		return nil, errors.New("no state")
	}
	account, ok := st.Accounts[addr]
	if !ok {
		return nil, errors.New("not found")
	}
	copied := *account
	return copied, nil
}

func (m *Module) handlePoolQuery(_ context.Context, req any) (any, error) {
	id, ok := req.(types.PoolID)
	if !ok {
		return nil, errors.New("pool query expects a PoolID")
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.history.Current()
	if !ok {
		return nil, errors.New("no state")
	}
	pool, ok := st.Pools[id]
	if !ok {
		return nil, errors.New("not found")
	}
	copied := *pool
	return copied, nil
}

// checkSync verifies two streams deliver the same block; divergence is a
// programmer error and fatal
func checkSync(expected, actual types.BlockInfo) {
	if expected.Number != actual.Number {
		panic(fmt.Sprintf(
			"accounts: streams out of sync: expected block %d, got %d",
			expected.Number, actual.Number,
		))
	}
}
