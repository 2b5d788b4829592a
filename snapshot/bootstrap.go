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

package snapshot

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/blinklabs-io/chainindex/accounts"
	"github.com/blinklabs-io/chainindex/address"
	"github.com/blinklabs-io/chainindex/bus"
	"github.com/blinklabs-io/chainindex/pparams"
	"github.com/blinklabs-io/chainindex/types"
	"github.com/blinklabs-io/chainindex/utxo"
	lcommon "github.com/blinklabs-io/gouroboros/ledger/common"
)

// Bootstrapper seeds every state module from a streaming ledger snapshot
// and publishes the one GenesisComplete message the pipeline blocks on
type Bootstrapper struct {
	bus     *bus.Bus
	logger  *slog.Logger
	network address.Network

	utxoState     *utxo.State
	accountsState *accounts.State
	paramsModule  *pparams.Module

	meta      Metadata
	params    types.ProtocolParams
	govState  GovernanceState
	utxoCount uint64
}

// NewBootstrapper creates a bootstrapper wired to the modules it seeds
func NewBootstrapper(
	b *bus.Bus,
	logger *slog.Logger,
	network address.Network,
	utxoState *utxo.State,
	accountsState *accounts.State,
	paramsModule *pparams.Module,
) *Bootstrapper {
	return &Bootstrapper{
		bus:           b,
		logger:        logger,
		network:       network,
		utxoState:     utxoState,
		accountsState: accountsState,
		paramsModule:  paramsModule,
	}
}

// Run parses the snapshot stream and, once complete, publishes the
// GenesisComplete message
func (b *Bootstrapper) Run(ctx context.Context, reader io.Reader) error {
	parser := NewParser(reader, &bootstrapCallbacks{b: b, ctx: ctx})
	if err := parser.Run(); err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}

	block := b.bootstrapBlock()
	values := types.GenesisValues{
		Network:    b.network,
		StartEpoch: b.meta.Epoch,
	}
	if shelley := b.params.Shelley; shelley != nil {
		values.GenesisDelegs = shelley.GenesisDelegs
	}
	if conway := b.params.Conway; conway != nil {
		conwayCopy := *conway
		values.ConwayGenesis = &conwayCopy
	}
	values.Pots = b.accountsState.Pots

	b.logger.Info("bootstrap complete",
		slog.Uint64("epoch", b.meta.Epoch),
		slog.Uint64("utxos", b.utxoCount),
	)
	return b.bus.Publish(ctx, types.TopicBootstrapped,
		types.GenesisCompleteMessage{
			Block:  block,
			Values: values,
		},
	)
}

// bootstrapBlock is the synthetic block header carried by bootstrap-time
// messages
func (b *Bootstrapper) bootstrapBlock() types.BlockInfo {
	var hash lcommon.Blake2b256
	if len(b.meta.PointHash) == 32 {
		hash = lcommon.NewBlake2b256(b.meta.PointHash)
	}
	return types.BlockInfo{
		Status:   types.BlockStatusBootstrap,
		Slot:     b.meta.PointSlot,
		Hash:     hash,
		Epoch:    b.meta.Epoch,
		NewEpoch: false,
	}
}

func (b *Bootstrapper) progress(
	ctx context.Context,
	section string,
	count uint64,
) {
	if err := b.bus.Publish(ctx, types.TopicSnapshot,
		types.SnapshotProgressMessage{
			Block:   b.bootstrapBlock(),
			Section: section,
			Count:   count,
		},
	); err != nil {
		b.logger.Error("publish snapshot progress failed",
			slog.String("error", err.Error()))
	}
}

// bootstrapCallbacks adapts the Bootstrapper to the parser's callback
// interface
type bootstrapCallbacks struct {
	b   *Bootstrapper
	ctx context.Context
}

func (c *bootstrapCallbacks) OnMetadata(meta Metadata) error {
	c.b.meta = meta
	c.b.progress(c.ctx, "metadata", 1)
	return nil
}

func (c *bootstrapCallbacks) OnUTxO(out types.TxOutput) error {
	if err := c.b.utxoState.Bootstrap(out); err != nil {
		return err
	}
	c.b.utxoCount++
	if c.b.utxoCount%1_000_000 == 0 {
		c.b.progress(c.ctx, "utxos", c.b.utxoCount)
	}
	return nil
}

func (c *bootstrapCallbacks) OnPools(pools []PoolEntry) error {
	st := c.b.accountsState
	for _, entry := range pools {
		operator := lcommon.NewBlake2b224(entry.Operator)
		registration := types.PoolRegistration{
			Operator:   operator,
			VrfKeyHash: lcommon.NewBlake2b256(entry.VrfKeyHash),
			Pledge:     entry.Pledge,
			Cost:       entry.Cost,
			Margin: types.Ratio{
				Num: entry.MarginNum,
				Den: entry.MarginDen,
			},
		}
		rewardAccount, err := address.StakeAddressFromBytes(entry.RewardAccount)
		if err != nil {
			return fmt.Errorf("pool %x reward account: %w", entry.Operator, err)
		}
		registration.RewardAccount = rewardAccount
		for _, owner := range entry.PoolOwners {
			registration.PoolOwners = append(
				registration.PoolOwners, lcommon.NewBlake2b224(owner),
			)
		}
		st.ApplyCertificate(registration)
		for i := uint64(0); i < entry.BlocksMinted; i++ {
			st.CountBlock(operator)
		}
	}
	c.b.progress(c.ctx, "pools", uint64(len(pools)))
	return nil
}

func (c *bootstrapCallbacks) OnAccounts(accountEntries []AccountEntry) error {
	st := c.b.accountsState
	for _, entry := range accountEntries {
		addr, err := address.StakeAddressFromBytes(entry.StakeAddress)
		if err != nil {
			return fmt.Errorf("account address: %w", err)
		}
		cred := types.Credential{
			Kind: addr.Credential.Kind,
			Hash: addr.Credential.Hash,
		}
		st.ApplyCertificate(types.Registration{
			Credential: cred,
			Deposit:    entry.Deposit,
		})
		if len(entry.DelegatedTo) == 28 {
			st.ApplyCertificate(types.StakeDelegation{
				Credential: cred,
				PoolID:     lcommon.NewBlake2b224(entry.DelegatedTo),
			})
		}
		if entry.HasDRep {
			drep := types.DRep{Kind: types.DRepKind(entry.DRepKind)}
			if len(entry.DRepHash) == 28 {
				drep.Credential = lcommon.NewBlake2b224(entry.DRepHash)
			}
			st.ApplyCertificate(types.VoteDelegation{
				Credential: cred,
				DRep:       drep,
			})
		}
		if entry.Rewards > 0 {
			st.ApplyCertificate(types.MoveInstantaneousReward{
				Source:  types.RewardSourceReserves,
				Rewards: map[types.Credential]int64{cred: int64(entry.Rewards)},
			})
		}
	}
	c.b.progress(c.ctx, "accounts", uint64(len(accountEntries)))
	return nil
}

func (c *bootstrapCallbacks) OnDReps(dreps []DRepEntry) error {
	c.b.progress(c.ctx, "dreps", uint64(len(dreps)))
	return nil
}

func (c *bootstrapCallbacks) OnProposals(proposals []ProposalEntry) error {
	c.b.progress(c.ctx, "proposals", uint64(len(proposals)))
	return nil
}

func (c *bootstrapCallbacks) OnSnapshots(snapshots StakeSnapshots) error {
	st := c.b.accountsState
	build := func(entries []SnapshotEntry, epoch uint64) *types.EpochSnapshot {
		out := types.NewEpochSnapshot(epoch)
		out.Pots = types.Pots{
			Treasury: snapshots.Treasury,
			Reserves: snapshots.Reserves,
			Deposits: snapshots.Deposits,
		}
		out.Blocks = snapshots.Blocks
		for _, entry := range entries {
			spo := types.SnapshotSPO{
				TotalStake: entry.TotalStake,
				Delegators: make(map[address.StakeAddress]types.Lovelace),
			}
			if pool, ok := st.Pools[lcommon.NewBlake2b224(entry.Operator)]; ok {
				reg := pool.Registration
				spo.Pledge = reg.Pledge
				spo.FixedCost = reg.Cost
				spo.Margin = reg.Margin
				spo.RewardAccount = reg.RewardAccount
				for _, owner := range reg.PoolOwners {
					spo.PoolOwners = append(spo.PoolOwners, address.StakeAddress{
						Network: c.b.network,
						Credential: address.StakeCredential{
							Kind: address.KeyCredential,
							Hash: owner,
						},
					})
				}
			}
			for raw, stake := range entry.Delegators {
				delegator, err := address.StakeAddressFromBytes([]byte(raw))
				if err != nil {
					continue
				}
				spo.Delegators[delegator] = stake
			}
			out.SPOs[lcommon.NewBlake2b224(entry.Operator)] = spo
		}
		return out
	}
	st.Mark = build(snapshots.Mark, snapshots.Epoch)
	st.Set = build(snapshots.Set, snapshots.Epoch-1)
	st.Go = build(snapshots.Go, snapshots.Epoch-2)
	st.Pots = types.Pots{
		Treasury: snapshots.Treasury,
		Reserves: snapshots.Reserves,
		Deposits: snapshots.Deposits,
	}
	c.b.progress(c.ctx, "snapshots", 3)
	return nil
}

func (c *bootstrapCallbacks) OnGovernanceState(govState GovernanceState) error {
	c.b.govState = govState
	c.b.progress(c.ctx, "governance", 1)
	return nil
}

func (c *bootstrapCallbacks) OnProtocolParameters(
	params types.ProtocolParams,
) error {
	c.b.params = params
	c.b.paramsModule.Seed(params)
	c.b.progress(c.ctx, "parameters", 1)
	return nil
}

func (c *bootstrapCallbacks) OnComplete() error {
	c.b.progress(c.ctx, "complete", 1)
	return nil
}
