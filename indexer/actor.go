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

// Package indexer provides the rollback-safe actor wrapper for
// user-defined transaction indexes. An index is either exactly in sync
// with the main pipeline or halted; there is no silently-behind state.
package indexer

import (
	"context"
	"log/slog"
	"sort"

	"github.com/blinklabs-io/chainindex/types"
)

// ChainIndex is a user-defined index fed one transaction at a time
type ChainIndex interface {
	// Name identifies the index in logs and cursors
	Name() string
	// HandleTx applies one on-chain transaction
	HandleTx(block types.BlockInfo, tx []byte) error
	// HandleRollback rewinds the index to the given point
	HandleRollback(point types.Point) error
}

// CursorEntry is the persisted resume state of one index
type CursorEntry struct {
	Points []types.Point
	NextTx *uint64
}

type command struct {
	apply    bool
	block    types.BlockInfo
	tx       []byte
	point    types.Point
	response chan error
}

// Actor drives one ChainIndex on its own goroutine, tracking a window of
// recent points up to the security parameter deep
type Actor struct {
	name   string
	logger *slog.Logger

	cmds   chan command
	points []types.Point
	nextTx *uint64
	halted bool

	securityParam uint64
}

// NewActor starts an actor for the given index, resuming from the cursor
func NewActor(
	index ChainIndex,
	logger *slog.Logger,
	cursor CursorEntry,
	securityParam uint64,
) *Actor {
	a := &Actor{
		name:          index.Name(),
		logger:        logger,
		cmds:          make(chan command, 128),
		points:        append([]types.Point{}, cursor.Points...),
		nextTx:        cursor.NextTx,
		securityParam: securityParam,
	}
	go func() {
		for cmd := range a.cmds {
			if cmd.apply {
				cmd.response <- index.HandleTx(cmd.block, cmd.tx)
			} else {
				cmd.response <- index.HandleRollback(cmd.point)
			}
		}
	}()
	return a
}

// Stop terminates the worker goroutine
func (a *Actor) Stop() {
	close(a.cmds)
}

// Halted reports whether the index has stopped due to an error or an
// unservable rollback. A halted index stays halted until the operator
// restarts it.
func (a *Actor) Halted() bool {
	return a.halted
}

// Tip returns the newest point in the actor's window
func (a *Actor) Tip() (types.Point, bool) {
	if len(a.points) == 0 {
		return types.Point{}, false
	}
	return a.points[len(a.points)-1], true
}

// UpdateCursor projects the actor's window onto a persisted cursor:
// pruned history pops the front, rollbacks pop the back, and each forward
// step pushes exactly one new head
func (a *Actor) UpdateCursor(cursor *CursorEntry) {
	cursor.NextTx = a.nextTx
	if len(a.points) == 0 {
		cursor.Points = nil
		return
	}
	first := a.points[0]
	last := a.points[len(a.points)-1]
	for len(cursor.Points) > 0 && cursor.Points[0].Slot < first.Slot {
		// We pruned our history; prune the cursor too
		cursor.Points = cursor.Points[1:]
	}
	for len(cursor.Points) > len(a.points) {
		// We rolled back; roll the cursor back too
		cursor.Points = cursor.Points[:len(cursor.Points)-1]
	}
	if len(cursor.Points) == len(a.points) &&
		len(cursor.Points) > 0 &&
		cursor.Points[len(cursor.Points)-1] != last {
		// After rolling back, we must have rolled forward
		cursor.Points = cursor.Points[:len(cursor.Points)-1]
	}
	if len(cursor.Points) < len(a.points) {
		// We only roll forward one block at a time, so the cursor can
		// only be missing the most recent block
		cursor.Points = append(cursor.Points, last)
	}
}

// ApplyTxs feeds one block's transactions to the index, handling
// duplicate deliveries and in-window forks
func (a *Actor) ApplyTxs(
	ctx context.Context,
	block types.BlockInfo,
	txs [][]byte,
) {
	if len(a.points) == 0 {
		// A fresh index adopts the first block it sees as its window
		// start
		if a.halted {
			return
		}
		a.points = append(a.points, types.NewPoint(block.Slot, block.Hash))
		a.applyTxLoop(ctx, block, txs)
		return
	}
	if a.points[0].Slot > block.Slot {
		// This block is from before our recent history
		return
	}
	tipSlot := a.points[len(a.points)-1].Slot
	if tipSlot >= block.Slot {
		// New enough to be in our history but not a new tip: check
		// whether this is a fork we must roll back for
		pos := sort.Search(len(a.points), func(i int) bool {
			return a.points[i].Slot >= block.Slot
		})
		rollbackBefore := -1
		if pos < len(a.points) && a.points[pos].Slot == block.Slot {
			if a.points[pos].Hash != block.Hash {
				// A different block in this slot: roll back to before it
				rollbackBefore = pos
			}
		} else {
			// We never saw a block in this slot; roll back to before
			// whichever block came after it
			rollbackBefore = pos
		}
		if rollbackBefore >= 0 {
			if rollbackBefore == 0 {
				a.halted = true
				a.logger.Warn("rolled back farther than known history",
					slog.String("index", a.name))
				return
			}
			a.Rollback(ctx, a.points[rollbackBefore-1])
		}
		if tipSlot > block.Slot || a.nextTx == nil {
			// Either this block predates our tip, or it is our tip with
			// all transactions already applied
			return
		}
	}

	if a.halted {
		return
	}

	if tipSlot < block.Slot {
		a.points = append(a.points, types.NewPoint(block.Slot, block.Hash))
		for uint64(len(a.points)) > a.securityParam {
			a.points = a.points[1:]
		}
	}

	a.applyTxLoop(ctx, block, txs)
}

func (a *Actor) applyTxLoop(
	ctx context.Context,
	block types.BlockInfo,
	txs [][]byte,
) {
	for idx, tx := range txs {
		if a.nextTx != nil && *a.nextTx > uint64(idx) {
			continue
		}
		if err := a.call(ctx, command{apply: true, block: block, tx: tx}); err != nil {
			failedAt := uint64(idx)
			a.nextTx = &failedAt
			a.halted = true
			a.logger.Warn("error applying tx",
				slog.String("index", a.name),
				slog.String("error", err.Error()),
			)
			return
		}
	}
	a.nextTx = nil
}

// Rollback rewinds the index to a point that must be inside the window
func (a *Actor) Rollback(ctx context.Context, point types.Point) {
	newPoints := append([]types.Point{}, a.points...)
	newNextTx := a.nextTx
	newHalted := a.halted
	for len(newPoints) > 0 && newPoints[len(newPoints)-1].Slot > point.Slot {
		newPoints = newPoints[:len(newPoints)-1]
		newNextTx = nil
		newHalted = false
	}
	if len(newPoints) == 0 || newPoints[len(newPoints)-1] != point {
		a.halted = true
		a.logger.Warn("rolled back farther than known history",
			slog.String("index", a.name))
		return
	}
	if err := a.call(ctx, command{point: point}); err != nil {
		a.halted = true
		a.logger.Warn("error when rolling back",
			slog.String("index", a.name),
			slog.String("error", err.Error()),
		)
		return
	}
	a.points = newPoints
	a.nextTx = newNextTx
	a.halted = newHalted
}

func (a *Actor) call(ctx context.Context, cmd command) error {
	cmd.response = make(chan error, 1)
	select {
	case a.cmds <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.response:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
