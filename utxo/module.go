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

package utxo

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/blinklabs-io/chainindex/bus"
	"github.com/blinklabs-io/chainindex/store"
	"github.com/blinklabs-io/chainindex/types"
)

// Query topics answered by this package's modules
const (
	QueryUTxO        = "query.utxo"
	QueryBalance     = "query.address.balance"
	QueryAddressTxs  = "query.address.txs"
	QueryAssetSupply = "query.asset.supply"
)

// BalanceRequest asks for an address's live balance by binary form
type BalanceRequest struct {
	Address []byte
}

// AddressTxsRequest asks for an address's transaction history
type AddressTxsRequest struct {
	Address []byte
}

// Module is the UTxO and address state module. When an address store is
// attached, totals pruned out of the volatile window drain to it one
// epoch at a time.
type Module struct {
	bus       *bus.Bus
	logger    *slog.Logger
	addrStore *store.AddressStore

	deltasSub *bus.Subscription
	bootSub   *bus.Subscription

	mu    sync.RWMutex
	state *State
}

// NewModule creates the UTxO state module; addrStore may be nil to keep
// address history in memory only
func NewModule(
	b *bus.Bus,
	logger *slog.Logger,
	securityParam uint64,
	addrStore *store.AddressStore,
) *Module {
	m := &Module{
		bus:       b,
		logger:    logger,
		addrStore: addrStore,
		deltasSub: b.Subscribe(types.TopicUTxODeltas),
		bootSub:   b.Subscribe(types.TopicBootstrapped),
		state:     NewState(securityParam),
	}
	b.HandleRequests(QueryUTxO, m.handleUTxOQuery)
	b.HandleRequests(QueryBalance, m.handleBalanceQuery)
	b.HandleRequests(QueryAddressTxs, m.handleAddressTxsQuery)
	return m
}

// State exposes the underlying state for bootstrap seeding
func (m *Module) State() *State {
	return m.state
}

// Run consumes the UTxO delta stream until shutdown
func (m *Module) Run(ctx context.Context) error {
	if _, err := m.bootSub.Read(ctx); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}

	for {
		msg, err := m.deltasSub.Read(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		deltas, ok := msg.(types.UTxODeltasMessage)
		if !ok {
			m.logger.Error("unexpected message on utxo deltas topic")
			continue
		}

		m.mu.Lock()
		if deltas.Block.Status == types.BlockStatusRolledBack {
			if err := m.state.Rollback(deltas.Block.Number - 1); err != nil {
				m.mu.Unlock()
				panic(err.Error())
			}
		}
		err = m.state.ApplyBlock(deltas)
		var drained map[string]AddressTotals
		if err == nil && deltas.Block.NewEpoch && m.addrStore != nil {
			drained = m.state.TakePendingDrain()
		}
		m.mu.Unlock()
		if err != nil {
			// A spend of an unknown output means the stream and our
			// state have diverged
			panic(err.Error())
		}
		if len(drained) > 0 {
			// Everything pruned so far belongs to epochs before the one
			// that just opened; Drain blocks only while one epoch is being
			// written and another is already queued
			totals := make(map[string]store.AddressTotalsDelta, len(drained))
			for addr, delta := range drained {
				totals[addr] = store.AddressTotalsDelta{
					Received: delta.Received,
					Sent:     delta.Sent,
					TxCount:  delta.TxCount,
				}
			}
			m.addrStore.Drain(store.EpochDrain{
				Epoch:  deltas.Block.Epoch - 1,
				Totals: totals,
			})
		}
	}
}

func (m *Module) handleUTxOQuery(_ context.Context, req any) (any, error) {
	id, ok := req.(types.UTxOIdentifier)
	if !ok {
		return nil, errors.New("utxo query expects a UTxOIdentifier")
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	output, ok := m.state.Lookup(id)
	if !ok {
		return nil, errors.New("not found")
	}
	return output, nil
}

func (m *Module) handleBalanceQuery(_ context.Context, req any) (any, error) {
	request, ok := req.(BalanceRequest)
	if !ok {
		return nil, errors.New("balance query expects a BalanceRequest")
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.BalanceOf(request.Address), nil
}

func (m *Module) handleAddressTxsQuery(_ context.Context, req any) (any, error) {
	request, ok := req.(AddressTxsRequest)
	if !ok {
		return nil, errors.New("address txs query expects an AddressTxsRequest")
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.TransactionsOf(request.Address), nil
}

// AssetsModule is the native asset state module
type AssetsModule struct {
	bus    *bus.Bus
	logger *slog.Logger
	state  *AssetState

	deltasSub *bus.Subscription
}

// NewAssetsModule creates the asset state module
func NewAssetsModule(
	b *bus.Bus,
	logger *slog.Logger,
	securityParam uint64,
) *AssetsModule {
	m := &AssetsModule{
		bus:       b,
		logger:    logger,
		state:     NewAssetState(securityParam),
		deltasSub: b.Subscribe(types.TopicAssetDeltas),
	}
	b.HandleRequests(QueryAssetSupply, m.handleSupplyQuery)
	return m
}

// Run consumes the asset delta stream until shutdown
func (m *AssetsModule) Run(ctx context.Context) error {
	for {
		msg, err := m.deltasSub.Read(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		deltas, ok := msg.(types.AssetDeltasMessage)
		if !ok {
			m.logger.Error("unexpected message on asset deltas topic")
			continue
		}
		if deltas.Block.Status == types.BlockStatusRolledBack {
			m.state.Rollback(deltas.Block.Number - 1)
		}
		if err := m.state.ApplyBlock(deltas); err != nil {
			panic(err.Error())
		}
	}
}

func (m *AssetsModule) handleSupplyQuery(
	_ context.Context,
	req any,
) (any, error) {
	key, ok := req.(types.AssetKey)
	if !ok {
		return nil, errors.New("asset supply query expects an AssetKey")
	}
	return m.state.Supply(key), nil
}
