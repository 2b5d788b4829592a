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

package utxo_test

import (
	"bytes"
	"testing"

	"github.com/blinklabs-io/chainindex/address"
	"github.com/blinklabs-io/chainindex/types"
	"github.com/blinklabs-io/chainindex/utxo"
	lcommon "github.com/blinklabs-io/gouroboros/ledger/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAddr(fill byte) address.Address {
	return address.ShelleyAddress{
		Network: address.NetworkMainnet,
		Payment: address.PaymentPart{
			Kind: address.KeyCredential,
			Hash: lcommon.NewBlake2b224(bytes.Repeat([]byte{fill}, 28)),
		},
		Delegation: address.DelegationPart{Kind: address.DelegationNone},
	}
}

func utxoID(fill byte, index uint32) types.UTxOIdentifier {
	return types.UTxOIdentifier{
		TxHash: lcommon.NewBlake2b256(bytes.Repeat([]byte{fill}, 32)),
		Index:  index,
	}
}

func output(fill byte, index uint32, addr address.Address, value uint64) types.TxOutput {
	return types.TxOutput{
		ID:      utxoID(fill, index),
		Address: addr,
		Value:   value,
	}
}

func blockAt(number uint64) types.BlockInfo {
	return types.BlockInfo{
		Status: types.BlockStatusVolatile,
		Number: number,
		Slot:   number * 20,
	}
}

func deltas(
	block types.BlockInfo,
	txs ...types.TxUTxODeltas,
) types.UTxODeltasMessage {
	return types.UTxODeltasMessage{Block: block, Deltas: txs}
}

func TestApplyAndLookup(t *testing.T) {
	st := utxo.NewState(10)
	addrA := testAddr(0x0a)

	require.NoError(t, st.ApplyBlock(deltas(blockAt(1), types.TxUTxODeltas{
		TxID:     types.TxIdentifier{BlockNumber: 1},
		IsValid:  true,
		Produces: []types.TxOutput{output(0x01, 0, addrA, 5_000_000)},
	})))

	got, ok := st.Lookup(utxoID(0x01, 0))
	require.True(t, ok)
	assert.Equal(t, uint64(5_000_000), got.Value)
	assert.Equal(t, 1, st.UTxOCount())
}

func TestSpendRemovesOutput(t *testing.T) {
	st := utxo.NewState(10)
	addrA := testAddr(0x0a)
	addrB := testAddr(0x0b)

	require.NoError(t, st.ApplyBlock(deltas(blockAt(1), types.TxUTxODeltas{
		TxID:     types.TxIdentifier{BlockNumber: 1},
		IsValid:  true,
		Produces: []types.TxOutput{output(0x01, 0, addrA, 5_000_000)},
	})))
	require.NoError(t, st.ApplyBlock(deltas(blockAt(2), types.TxUTxODeltas{
		TxID:     types.TxIdentifier{BlockNumber: 2},
		IsValid:  true,
		Consumes: []types.UTxOIdentifier{utxoID(0x01, 0)},
		Produces: []types.TxOutput{output(0x02, 0, addrB, 4_800_000)},
	})))

	_, ok := st.Lookup(utxoID(0x01, 0))
	assert.False(t, ok)
	_, ok = st.Lookup(utxoID(0x02, 0))
	assert.True(t, ok)
	assert.Equal(t, 1, st.UTxOCount())

	rawA, _ := addrA.Bytes()
	rawB, _ := addrB.Bytes()
	assert.Equal(t, uint64(0), st.BalanceOf(rawA))
	assert.Equal(t, uint64(4_800_000), st.BalanceOf(rawB))
}

func TestSpendOfUnknownOutputFails(t *testing.T) {
	st := utxo.NewState(10)
	err := st.ApplyBlock(deltas(blockAt(1), types.TxUTxODeltas{
		TxID:     types.TxIdentifier{BlockNumber: 1},
		IsValid:  true,
		Consumes: []types.UTxOIdentifier{utxoID(0xff, 0)},
	}))
	assert.Error(t, err)
}

// Rollback round-trip: apply blocks, roll back, re-apply; the final
// state matches the uninterrupted run
func TestRollbackRoundTrip(t *testing.T) {
	addrA := testAddr(0x0a)
	addrB := testAddr(0x0b)

	blocks := []types.UTxODeltasMessage{
		deltas(blockAt(1), types.TxUTxODeltas{
			TxID:     types.TxIdentifier{BlockNumber: 1},
			IsValid:  true,
			Produces: []types.TxOutput{output(0x01, 0, addrA, 10_000_000)},
		}),
		deltas(blockAt(2), types.TxUTxODeltas{
			TxID:     types.TxIdentifier{BlockNumber: 2},
			IsValid:  true,
			Consumes: []types.UTxOIdentifier{utxoID(0x01, 0)},
			Produces: []types.TxOutput{
				output(0x02, 0, addrB, 3_000_000),
				output(0x02, 1, addrA, 6_900_000),
			},
		}),
		deltas(blockAt(3), types.TxUTxODeltas{
			TxID:     types.TxIdentifier{BlockNumber: 3},
			IsValid:  true,
			Consumes: []types.UTxOIdentifier{utxoID(0x02, 0)},
			Produces: []types.TxOutput{output(0x03, 0, addrA, 2_900_000)},
		}),
	}

	reference := utxo.NewState(10)
	for _, msg := range blocks {
		require.NoError(t, reference.ApplyBlock(msg))
	}

	st := utxo.NewState(10)
	for _, msg := range blocks {
		require.NoError(t, st.ApplyBlock(msg))
	}
	require.NoError(t, st.Rollback(1))
	for _, msg := range blocks[1:] {
		require.NoError(t, st.ApplyBlock(msg))
	}

	rawA, _ := addrA.Bytes()
	rawB, _ := addrB.Bytes()
	assert.Equal(t, reference.BalanceOf(rawA), st.BalanceOf(rawA))
	assert.Equal(t, reference.BalanceOf(rawB), st.BalanceOf(rawB))
	assert.Equal(t, reference.UTxOCount(), st.UTxOCount())
	assert.Equal(t, reference.TransactionsOf(rawA), st.TransactionsOf(rawA))
}

// Pruning drains old volatile deltas into the immutable base without
// changing observable state
func TestPruneKeepsStateConsistent(t *testing.T) {
	st := utxo.NewState(2)
	addrA := testAddr(0x0a)

	for n := uint64(1); n <= 6; n++ {
		require.NoError(t, st.ApplyBlock(deltas(blockAt(n), types.TxUTxODeltas{
			TxID:     types.TxIdentifier{BlockNumber: n},
			IsValid:  true,
			Produces: []types.TxOutput{output(byte(n), 0, addrA, 1_000_000)},
		})))
	}

	rawA, _ := addrA.Bytes()
	assert.Equal(t, uint64(6_000_000), st.BalanceOf(rawA))
	assert.Equal(t, 6, st.UTxOCount())
	assert.Len(t, st.TransactionsOf(rawA), 6)

	// Rolling back past the pruned boundary must fail rather than
	// silently losing state
	assert.Error(t, st.Rollback(1))
}

// Totals pruned out of the volatile window accumulate for the epoch
// drain exactly once
func TestTakePendingDrain(t *testing.T) {
	st := utxo.NewState(2)
	addrA := testAddr(0x0a)

	for n := uint64(1); n <= 5; n++ {
		require.NoError(t, st.ApplyBlock(deltas(blockAt(n), types.TxUTxODeltas{
			TxID:     types.TxIdentifier{BlockNumber: n},
			IsValid:  true,
			Produces: []types.TxOutput{output(byte(n), 0, addrA, 1_000_000)},
		})))
	}

	rawA, _ := addrA.Bytes()
	drained := st.TakePendingDrain()
	require.NotNil(t, drained)
	// Blocks 1..3 have been pruned into the immutable base by now
	assert.Equal(t, uint64(3_000_000), drained[string(rawA)].Received)
	assert.Equal(t, uint64(3), drained[string(rawA)].TxCount)

	// A second take is empty until more pruning happens
	assert.Nil(t, st.TakePendingDrain())

	// The observable balance is unaffected by draining
	assert.Equal(t, uint64(5_000_000), st.BalanceOf(rawA))
}

func TestBootstrapSeedsImmutable(t *testing.T) {
	st := utxo.NewState(10)
	addrA := testAddr(0x0a)
	require.NoError(t, st.Bootstrap(output(0x01, 0, addrA, 7_000_000)))

	got, ok := st.Lookup(utxoID(0x01, 0))
	require.True(t, ok)
	assert.Equal(t, uint64(7_000_000), got.Value)
	rawA, _ := addrA.Bytes()
	assert.Equal(t, uint64(7_000_000), st.BalanceOf(rawA))
}
