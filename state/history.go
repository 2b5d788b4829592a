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

// Package state provides the per-module state history: a ring of recent
// committed states keyed by block number, supporting rollback to any held
// block, plus a sparse per-epoch store for longer-range queries.
package state

import (
	"fmt"
)

// DefaultBlockDepth is the number of per-block states retained, sized to
// cover the mainnet security parameter
const DefaultBlockDepth = 2160

// DefaultEpochDepth is the number of per-epoch states retained
const DefaultEpochDepth = 8

// Cloneable is a state that can produce an independent copy of itself.
// Commit stores the caller's value; GetOrInitWith and rollback hand out
// clones so a module can never mutate a committed state in place.
type Cloneable[S any] interface {
	Clone() S
}

type blockEntry[S any] struct {
	number uint64
	state  S
}

type epochEntry[S any] struct {
	epoch uint64
	state S
}

// History is a ring of committed states for one module
type History[S Cloneable[S]] struct {
	name       string
	blockDepth int
	epochDepth int
	blocks     []blockEntry[S]
	epochs     []epochEntry[S]
}

// NewHistory creates a history with the default depths
func NewHistory[S Cloneable[S]](name string) *History[S] {
	return NewHistoryWithDepth[S](name, DefaultBlockDepth, DefaultEpochDepth)
}

// NewHistoryWithDepth creates a history with explicit retention depths
func NewHistoryWithDepth[S Cloneable[S]](
	name string,
	blockDepth int,
	epochDepth int,
) *History[S] {
	if blockDepth < 1 {
		blockDepth = 1
	}
	return &History[S]{
		name:       name,
		blockDepth: blockDepth,
		epochDepth: epochDepth,
	}
}

// GetOrInitWith returns a clone of the latest committed state, or a fresh
// state from init when nothing has been committed yet
func (h *History[S]) GetOrInitWith(init func() S) S {
	if len(h.blocks) == 0 {
		return init()
	}
	return h.blocks[len(h.blocks)-1].state.Clone()
}

// Current returns the latest committed state without copying. The caller
// must not mutate it.
func (h *History[S]) Current() (S, bool) {
	if len(h.blocks) == 0 {
		var zero S
		return zero, false
	}
	return h.blocks[len(h.blocks)-1].state, true
}

// CurrentBlock returns the block number of the latest committed state
func (h *History[S]) CurrentBlock() (uint64, bool) {
	if len(h.blocks) == 0 {
		return 0, false
	}
	return h.blocks[len(h.blocks)-1].number, true
}

// Commit appends a state for the given block. Block numbers must be
// strictly increasing; a violation is a programmer error and panics.
func (h *History[S]) Commit(blockNumber uint64, newState S) {
	if len(h.blocks) > 0 {
		last := h.blocks[len(h.blocks)-1].number
		if blockNumber < last {
			panic(fmt.Sprintf(
				"state history %s: commit out of order: %d after %d",
				h.name, blockNumber, last,
			))
		}
		if blockNumber == last {
			// Re-commit after a rollback: the new block replaces the
			// state previously held at this number
			h.blocks[len(h.blocks)-1].state = newState
			return
		}
	}
	h.blocks = append(h.blocks, blockEntry[S]{
		number: blockNumber,
		state:  newState,
	})
	if len(h.blocks) > h.blockDepth {
		h.blocks = h.blocks[len(h.blocks)-h.blockDepth:]
	}
}

// CommitEpoch records the state at an epoch boundary in the epoch store
func (h *History[S]) CommitEpoch(epoch uint64, s S) {
	if n := len(h.epochs); n > 0 && h.epochs[n-1].epoch >= epoch {
		panic(fmt.Sprintf(
			"state history %s: epoch commit out of order: %d after %d",
			h.name, epoch, h.epochs[n-1].epoch,
		))
	}
	h.epochs = append(h.epochs, epochEntry[S]{epoch: epoch, state: s})
	if h.epochDepth > 0 && len(h.epochs) > h.epochDepth {
		h.epochs = h.epochs[len(h.epochs)-h.epochDepth:]
	}
}

// GetEpoch returns a clone of the state recorded at the given epoch
// boundary
func (h *History[S]) GetEpoch(epoch uint64) (S, bool) {
	for i := len(h.epochs) - 1; i >= 0; i-- {
		if h.epochs[i].epoch == epoch {
			return h.epochs[i].state.Clone(), true
		}
	}
	var zero S
	return zero, false
}

// GetRolledBackState discards every state committed strictly after
// toBlock and returns a clone of the state at or before it. The caller
// re-commits the returned state for the new head block.
func (h *History[S]) GetRolledBackState(toBlock uint64) (S, error) {
	for len(h.blocks) > 0 &&
		h.blocks[len(h.blocks)-1].number > toBlock {
		h.blocks = h.blocks[:len(h.blocks)-1]
	}
	if len(h.blocks) == 0 {
		var zero S
		return zero, fmt.Errorf(
			"state history %s: rollback to %d is before retained history",
			h.name, toBlock,
		)
	}
	return h.blocks[len(h.blocks)-1].state.Clone(), nil
}

// Len returns the number of per-block states held
func (h *History[S]) Len() int {
	return len(h.blocks)
}
