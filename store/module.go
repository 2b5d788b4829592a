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

package store

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/blinklabs-io/chainindex/bus"
	"github.com/blinklabs-io/chainindex/indexer"
	"github.com/blinklabs-io/chainindex/types"
	"github.com/blinklabs-io/gouroboros/cbor"
	lcommon "github.com/blinklabs-io/gouroboros/ledger/common"
)

// Query topics answered by this module
const (
	QueryBlockByHash = "query.chain.block"
	QueryTxByHash    = "query.chain.tx"
)

// cursorPoint is the wire form of one cursor point
type cursorPoint struct {
	Slot uint64
	Hash []byte
}

// cursorWire is the persisted form of the index cursor
type cursorWire struct {
	Points []cursorPoint
	NextTx *uint64
}

func encodeCursor(cursor indexer.CursorEntry) ([]byte, error) {
	wire := cursorWire{NextTx: cursor.NextTx}
	for _, point := range cursor.Points {
		wire.Points = append(wire.Points, cursorPoint{
			Slot: point.Slot,
			Hash: point.Hash.Bytes(),
		})
	}
	return cbor.Encode(wire)
}

func decodeCursor(encoded []byte) (indexer.CursorEntry, error) {
	var wire cursorWire
	if _, err := cbor.Decode(encoded, &wire); err != nil {
		return indexer.CursorEntry{}, err
	}
	cursor := indexer.CursorEntry{NextTx: wire.NextTx}
	for _, point := range wire.Points {
		cursor.Points = append(cursor.Points, types.NewPoint(
			point.Slot, lcommon.NewBlake2b256(point.Hash),
		))
	}
	return cursor, nil
}

// Module drives the chain store through the custom index actor: it
// consumes the raw tx stream, applies each block via the actor (which
// owns the rollback window), flushes each completed block as one atomic
// batch, and projects the actor's window onto the persisted cursor.
type Module struct {
	bus    *bus.Bus
	logger *slog.Logger

	store *ChainStore
	index *ChainStoreIndex
	actor *indexer.Actor

	txsSub  *bus.Subscription
	bootSub *bus.Subscription

	cursor indexer.CursorEntry
}

// NewModule creates the chain store module
func NewModule(
	b *bus.Bus,
	logger *slog.Logger,
	chainStore *ChainStore,
	securityParam uint64,
) *Module {
	cursor := indexer.CursorEntry{}
	if encoded, ok := chainStore.LoadCursor(); ok {
		decoded, err := decodeCursor(encoded)
		if err != nil {
			logger.Error("discarding corrupt index cursor",
				slog.String("error", err.Error()))
		} else {
			cursor = decoded
		}
	}
	index := NewChainStoreIndex(chainStore)
	m := &Module{
		bus:     b,
		logger:  logger,
		store:   chainStore,
		index:   index,
		actor:   indexer.NewActor(index, logger, cursor, securityParam),
		txsSub:  b.Subscribe(types.TopicTxs),
		bootSub: b.Subscribe(types.TopicBootstrapped),
		cursor:  cursor,
	}
	b.HandleRequests(QueryBlockByHash, m.handleBlockQuery)
	b.HandleRequests(QueryTxByHash, m.handleTxQuery)
	return m
}

// Run consumes the raw tx stream and persists blocks until shutdown
func (m *Module) Run(ctx context.Context) error {
	if _, err := m.bootSub.Read(ctx); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	defer m.actor.Stop()

	for {
		msg, err := m.txsSub.Read(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		txsMsg, ok := msg.(types.ReceivedTxsMessage)
		if !ok {
			m.logger.Error("unexpected message on txs topic")
			continue
		}
		m.applyBlock(ctx, txsMsg)
	}
}

func (m *Module) applyBlock(ctx context.Context, msg types.ReceivedTxsMessage) {
	if m.actor.Halted() {
		// Halted indexes stay halted until the operator restarts them;
		// the rest of the pipeline continues
		return
	}
	if err := m.index.BeginBlock(msg.Block, msg.BlockCbor); err != nil {
		m.logger.Error("chain store flush failed",
			slog.Uint64("block", msg.Block.Number),
			slog.String("error", err.Error()),
		)
		return
	}

	m.actor.ApplyTxs(ctx, msg.Block, msg.Txs)

	// A fork inside the actor's window triggers an internal rollback and
	// skips the block's own transactions; a second round applies them on
	// the rewound window
	point := types.NewPoint(msg.Block.Slot, msg.Block.Hash)
	if tip, ok := m.actor.Tip(); ok && tip != point && !m.actor.Halted() {
		// The rollback dropped the staged batch; stage the block again
		if err := m.index.BeginBlock(msg.Block, msg.BlockCbor); err != nil {
			m.logger.Error("chain store flush failed",
				slog.Uint64("block", msg.Block.Number),
				slog.String("error", err.Error()),
			)
			return
		}
		m.actor.ApplyTxs(ctx, msg.Block, msg.Txs)
	}

	if !m.actor.Halted() {
		if err := m.index.Flush(); err != nil {
			m.logger.Error("chain store flush failed",
				slog.Uint64("block", msg.Block.Number),
				slog.String("error", err.Error()),
			)
			return
		}
	}

	m.actor.UpdateCursor(&m.cursor)
	encoded, err := encodeCursor(m.cursor)
	if err != nil {
		m.logger.Error("cursor encode failed",
			slog.String("error", err.Error()))
		return
	}
	if err := m.store.SaveCursor(encoded); err != nil {
		m.logger.Error("cursor persist failed",
			slog.String("error", err.Error()))
	}
}

func (m *Module) handleBlockQuery(_ context.Context, req any) (any, error) {
	hash, ok := req.(lcommon.Blake2b256)
	if !ok {
		return nil, errors.New("block query expects a Blake2b256 hash")
	}
	return m.store.BlockByHash(hash)
}

func (m *Module) handleTxQuery(_ context.Context, req any) (any, error) {
	hash, ok := req.(lcommon.Blake2b256)
	if !ok {
		return nil, errors.New("tx query expects a Blake2b256 hash")
	}
	return m.store.TxByHash(hash)
}
