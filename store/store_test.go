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

package store_test

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/blinklabs-io/chainindex/store"
	"github.com/blinklabs-io/chainindex/types"
	lcommon "github.com/blinklabs-io/gouroboros/ledger/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hash256(fill byte) lcommon.Blake2b256 {
	return lcommon.NewBlake2b256(bytes.Repeat([]byte{fill}, 32))
}

func testBlock(number uint64) types.BlockInfo {
	return types.BlockInfo{
		Slot:      number * 20,
		Number:    number,
		Hash:      hash256(byte(number)),
		Epoch:     number / 10,
		EpochSlot: (number % 10) * 20,
	}
}

func TestChainStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chain.db")
	cs, err := store.OpenChainStore(path)
	require.NoError(t, err)
	defer cs.Close()

	block := testBlock(5)
	txHash := hash256(0xaa)
	require.NoError(t, cs.WriteBlock(
		block, []byte("block-bytes"), []lcommon.Blake2b256{txHash},
	))

	raw, err := cs.BlockByHash(block.Hash)
	require.NoError(t, err)
	assert.Equal(t, []byte("block-bytes"), raw)

	bySlot, err := cs.HashBySlot(block.Slot)
	require.NoError(t, err)
	assert.Equal(t, block.Hash, bySlot)

	byNumber, err := cs.HashByNumber(block.Number)
	require.NoError(t, err)
	assert.Equal(t, block.Hash, byNumber)

	byEpochSlot, err := cs.HashByEpochSlot(block.Epoch, block.EpochSlot)
	require.NoError(t, err)
	assert.Equal(t, block.Hash, byEpochSlot)

	location, err := cs.TxByHash(txHash)
	require.NoError(t, err)
	assert.Equal(t, block.Hash, location.BlockHash)
	assert.Equal(t, uint16(0), location.Index)
}

func TestChainStoreNotFound(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chain.db")
	cs, err := store.OpenChainStore(path)
	require.NoError(t, err)
	defer cs.Close()

	_, err = cs.BlockByHash(hash256(0x01))
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = cs.TxByHash(hash256(0x02))
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// ShouldPersist is monotone on the last persisted number, which makes
// re-inserts after a restart idempotent
func TestShouldPersistMonotone(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chain.db")
	cs, err := store.OpenChainStore(path)
	require.NoError(t, err)

	assert.True(t, cs.ShouldPersist(1))
	require.NoError(t, cs.WriteBlock(testBlock(5), []byte("b"), nil))
	assert.False(t, cs.ShouldPersist(5))
	assert.False(t, cs.ShouldPersist(4))
	assert.True(t, cs.ShouldPersist(6))
	require.NoError(t, cs.Close())

	// Survives a reopen
	cs, err = store.OpenChainStore(path)
	require.NoError(t, err)
	defer cs.Close()
	assert.False(t, cs.ShouldPersist(5))
	assert.True(t, cs.ShouldPersist(6))
}

func TestAddressStoreDrainAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "addresses.db")
	as, err := store.OpenAddressStore(path)
	require.NoError(t, err)

	addr := []byte("addr-key-1")
	as.Drain(store.EpochDrain{
		Epoch: 300,
		Totals: map[string]store.AddressTotalsDelta{
			string(addr): {Received: 10, Sent: 3, TxCount: 2},
		},
	})
	as.Drain(store.EpochDrain{
		Epoch: 301,
		Totals: map[string]store.AddressTotalsDelta{
			string(addr): {Received: 5, Sent: 1, TxCount: 1},
		},
	})
	require.NoError(t, as.Close())

	as, err = store.OpenAddressStore(path)
	require.NoError(t, err)
	defer as.Close()

	totals, err := as.Totals(addr)
	require.NoError(t, err)
	assert.Equal(t, uint64(15), totals.Received)
	assert.Equal(t, uint64(4), totals.Sent)
	assert.Equal(t, uint64(3), totals.TxCount)

	epoch, ok := as.LastPersistedEpoch()
	require.True(t, ok)
	assert.Equal(t, uint64(301), epoch)
}
