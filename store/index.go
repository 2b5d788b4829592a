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
	"fmt"

	"github.com/blinklabs-io/chainindex/types"
	"github.com/blinklabs-io/gouroboros/ledger"
	lcommon "github.com/blinklabs-io/gouroboros/ledger/common"
)

// ChainStoreIndex adapts the chain store to the custom index actor's
// ChainIndex interface: transactions accumulate per block and the
// completed block is written as one atomic batch. The actor provides the
// rollback safety; this type provides the persistence.
type ChainStoreIndex struct {
	store *ChainStore

	block      types.BlockInfo
	blockBytes []byte
	txHashes   []lcommon.Blake2b256
	pending    bool
}

// NewChainStoreIndex creates the chain store index
func NewChainStoreIndex(store *ChainStore) *ChainStoreIndex {
	return &ChainStoreIndex{store: store}
}

// Name implements indexer.ChainIndex
func (i *ChainStoreIndex) Name() string {
	return "chain-store"
}

// BeginBlock stages a block's identity and raw bytes before its
// transactions are applied. Called by the store module between actor
// rounds, when no command is in flight.
func (i *ChainStoreIndex) BeginBlock(block types.BlockInfo, blockBytes []byte) error {
	if err := i.Flush(); err != nil {
		return err
	}
	i.block = block
	i.blockBytes = blockBytes
	i.txHashes = nil
	i.pending = true
	return nil
}

// HandleTx implements indexer.ChainIndex: the transaction hash joins the
// staged block's index batch
func (i *ChainStoreIndex) HandleTx(block types.BlockInfo, tx []byte) error {
	if !i.pending || block.Number != i.block.Number {
		return fmt.Errorf(
			"chain store index: tx for block %d outside staged block",
			block.Number,
		)
	}
	decoded, err := ledger.NewTransactionFromCbor(uint(block.Era), tx)
	if err != nil {
		return fmt.Errorf("chain store index: decode tx: %w", err)
	}
	i.txHashes = append(i.txHashes, decoded.Hash())
	return nil
}

// Flush writes the staged block and its transaction index entries as one
// atomic batch
func (i *ChainStoreIndex) Flush() error {
	if !i.pending {
		return nil
	}
	if err := i.store.WriteBlock(
		i.block, i.blockBytes, i.txHashes,
	); err != nil {
		return err
	}
	i.pending = false
	i.blockBytes = nil
	i.txHashes = nil
	return nil
}

// HandleRollback implements indexer.ChainIndex: the staged batch is
// dropped and the persistence cursor rewinds so the new fork's blocks
// are re-persisted
func (i *ChainStoreIndex) HandleRollback(point types.Point) error {
	i.pending = false
	i.blockBytes = nil
	i.txHashes = nil
	return i.store.RollbackTo(point.Slot)
}
