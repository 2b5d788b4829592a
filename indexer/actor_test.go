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

package indexer_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/blinklabs-io/chainindex/indexer"
	"github.com/blinklabs-io/chainindex/types"
	lcommon "github.com/blinklabs-io/gouroboros/ledger/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const securityParam = 2160

// mockIndex lets tests script per-call behavior
type mockIndex struct {
	onTx       func() error
	onRollback func() error
}

func (m *mockIndex) Name() string { return "mock-index" }

func (m *mockIndex) HandleTx(_ types.BlockInfo, _ []byte) error {
	if m.onTx != nil {
		return m.onTx()
	}
	return nil
}

func (m *mockIndex) HandleRollback(_ types.Point) error {
	if m.onRollback != nil {
		return m.onRollback()
	}
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testBlock(slot uint64) types.BlockInfo {
	var hash lcommon.Blake2b256
	for i := range hash {
		hash[i] = byte(slot)
	}
	return types.BlockInfo{
		Status: types.BlockStatusVolatile,
		Slot:   slot,
		Number: 1,
		Hash:   hash,
		Era:    types.EraConway,
	}
}

func pointFor(slot uint64) types.Point {
	var hash lcommon.Blake2b256
	for i := range hash {
		hash[i] = byte(slot)
	}
	return types.NewPoint(slot, hash)
}

func newCursor(slot uint64) indexer.CursorEntry {
	return indexer.CursorEntry{Points: []types.Point{pointFor(slot)}}
}

func TestApplyTxsErrorSetsHalt(t *testing.T) {
	mock := &mockIndex{
		onTx: func() error { return errors.New("handle error response") },
	}
	cursor := newCursor(0)
	actor := indexer.NewActor(mock, testLogger(), cursor, securityParam)
	defer actor.Stop()

	block := testBlock(1)
	actor.ApplyTxs(context.Background(), block, [][]byte{{0x01}})
	actor.UpdateCursor(&cursor)

	assert.True(t, actor.Halted())
	require.NotEmpty(t, cursor.Points)
	assert.Equal(t, pointFor(1), cursor.Points[len(cursor.Points)-1])
	require.NotNil(t, cursor.NextTx)
	assert.Equal(t, uint64(0), *cursor.NextTx)
}

func TestApplyTxsSkipsWhenHalted(t *testing.T) {
	mock := &mockIndex{
		onTx: func() error { return errors.New("boom") },
	}
	cursor := newCursor(0)
	actor := indexer.NewActor(mock, testLogger(), cursor, securityParam)
	defer actor.Stop()

	actor.ApplyTxs(context.Background(), testBlock(1), [][]byte{{0x01}})
	actor.UpdateCursor(&cursor)
	require.True(t, actor.Halted())

	actor.ApplyTxs(context.Background(), testBlock(2), [][]byte{{0x01}})
	actor.UpdateCursor(&cursor)

	assert.True(t, actor.Halted())
	// The halted index must not advance past the failing block
	assert.Equal(t, pointFor(1), cursor.Points[len(cursor.Points)-1])
	require.NotNil(t, cursor.NextTx)
	assert.Equal(t, uint64(0), *cursor.NextTx)
}

func TestApplyTxsUpdatesTipOnSuccess(t *testing.T) {
	mock := &mockIndex{}
	cursor := newCursor(0)
	actor := indexer.NewActor(mock, testLogger(), cursor, securityParam)
	defer actor.Stop()

	actor.ApplyTxs(context.Background(), testBlock(1), [][]byte{{0x01}})
	actor.UpdateCursor(&cursor)

	assert.False(t, actor.Halted())
	assert.Equal(t, pointFor(1), cursor.Points[len(cursor.Points)-1])
	assert.Nil(t, cursor.NextTx)
}

func TestRollbackClearsHalt(t *testing.T) {
	mock := &mockIndex{
		onTx: func() error { return errors.New("boom") },
	}
	cursor := newCursor(123)
	actor := indexer.NewActor(mock, testLogger(), cursor, securityParam)
	defer actor.Stop()

	actor.ApplyTxs(context.Background(), testBlock(200), [][]byte{{0x01}})
	actor.UpdateCursor(&cursor)
	require.True(t, actor.Halted())

	actor.Rollback(context.Background(), pointFor(123))
	actor.UpdateCursor(&cursor)

	assert.False(t, actor.Halted())
	assert.Equal(t, pointFor(123), cursor.Points[len(cursor.Points)-1])
	assert.Nil(t, cursor.NextTx)
}

// Rollback scenario: points {100, 200, 300}, rollback to 200, then a new
// block at 250 extends from there
func TestRollbackThenRollForward(t *testing.T) {
	mock := &mockIndex{}
	cursor := newCursor(100)
	actor := indexer.NewActor(mock, testLogger(), cursor, securityParam)
	defer actor.Stop()

	ctx := context.Background()
	actor.ApplyTxs(ctx, testBlock(200), [][]byte{{0x01}})
	actor.UpdateCursor(&cursor)
	actor.ApplyTxs(ctx, testBlock(300), [][]byte{{0x01}})
	actor.UpdateCursor(&cursor)
	require.Len(t, cursor.Points, 3)

	actor.Rollback(ctx, pointFor(200))
	actor.UpdateCursor(&cursor)
	require.Len(t, cursor.Points, 2)
	assert.Equal(t, pointFor(200), cursor.Points[1])
	assert.Nil(t, cursor.NextTx)
	assert.False(t, actor.Halted())

	actor.ApplyTxs(ctx, testBlock(250), [][]byte{{0x01}})
	actor.UpdateCursor(&cursor)
	require.Len(t, cursor.Points, 3)
	assert.Equal(t, pointFor(250), cursor.Points[2])
	assert.False(t, actor.Halted())
}

func TestRollbackBeyondHistoryHalts(t *testing.T) {
	mock := &mockIndex{}
	cursor := newCursor(100)
	actor := indexer.NewActor(mock, testLogger(), cursor, securityParam)
	defer actor.Stop()

	actor.Rollback(context.Background(), pointFor(50))
	assert.True(t, actor.Halted())
}

// A fresh index with no cursor adopts the first block it sees
func TestFreshIndexAdoptsFirstBlock(t *testing.T) {
	applied := 0
	mock := &mockIndex{
		onTx: func() error {
			applied++
			return nil
		},
	}
	cursor := indexer.CursorEntry{}
	actor := indexer.NewActor(mock, testLogger(), cursor, securityParam)
	defer actor.Stop()

	actor.ApplyTxs(context.Background(), testBlock(100), [][]byte{{0x01}})
	actor.UpdateCursor(&cursor)

	assert.False(t, actor.Halted())
	assert.Equal(t, 1, applied)
	require.Len(t, cursor.Points, 1)
	assert.Equal(t, pointFor(100), cursor.Points[0])

	tip, ok := actor.Tip()
	require.True(t, ok)
	assert.Equal(t, pointFor(100), tip)
}

func TestOldBlocksIgnored(t *testing.T) {
	mock := &mockIndex{
		onTx: func() error {
			t.Fatal("index must not see blocks from before its history")
			return nil
		},
	}
	cursor := newCursor(100)
	actor := indexer.NewActor(mock, testLogger(), cursor, securityParam)
	defer actor.Stop()

	actor.ApplyTxs(context.Background(), testBlock(50), [][]byte{{0x01}})
	assert.False(t, actor.Halted())
}

// A fork inside the window (same slot, different hash) triggers an
// automatic rollback before applying
func TestInWindowForkRollsBack(t *testing.T) {
	rollbacks := 0
	mock := &mockIndex{
		onRollback: func() error {
			rollbacks++
			return nil
		},
	}
	cursor := newCursor(100)
	actor := indexer.NewActor(mock, testLogger(), cursor, securityParam)
	defer actor.Stop()

	ctx := context.Background()
	actor.ApplyTxs(ctx, testBlock(200), [][]byte{{0x01}})

	forked := testBlock(200)
	forked.Hash = lcommon.NewBlake2b256(make([]byte, 32))
	actor.ApplyTxs(ctx, forked, [][]byte{{0x01}})

	assert.Equal(t, 1, rollbacks)
	assert.False(t, actor.Halted())
}
