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

package unpack

import (
	"encoding/hex"
	"testing"

	"github.com/blinklabs-io/chainindex/address"
	"github.com/blinklabs-io/chainindex/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// A mainnet Conway-era transaction: one input, two outputs, one reward
// withdrawal, two vkey witnesses
const conwayTxHex = "84a600d9010281825820565573dcde964aa30e7e307531ee6c6f8e47279dcbade4b4301e9ef291b6791601018282583901b786e57fa44f9707d023719c60b712a3ebbaf89a932ee87ea4de39ce65f459f57e462edc82d90225fac6162f4757c226ad50a7adf230e4c81b0000000ac336383982583901b786e57fa44f9707d023719c60b712a3ebbaf89a932ee87ea4de39ce65f459f57e462edc82d90225fac6162f4757c226ad50a7adf230e4c81a004c4b40021a0002aac1031a0a0d7b1705a1581de165f459f57e462edc82d90225fac6162f4757c226ad50a7adf230e4c81a42fa31010801a100d9010282825820ed67aef668355b2f6220aeb7b5118adeb31b7cf0de7d9a4bb4ea0aac7bdfea5a58406718e1a35b9fae1c91d0ca08b90c0270bcd0e98b9df2b826b0ea6b9742b93631e0f2c43d098a9a8fdd58f1ba44c649d397ca32bd207a9d3fa784611694184904825820086b567b1b34bd97e1a79c46533ed4e771e170848a50983297605f1d7fe6acb8584040fe7d3108c4eaca8484ef9590a52214dae09af501aa84cba4f093c590acdd2c9c15977fc381c0224306567e775d2c7e62a65319fcf504657221e7648411bd0af5f6"

func decodeTestTx(t *testing.T) *types.Transaction {
	t.Helper()
	raw, err := hex.DecodeString(conwayTxHex)
	require.NoError(t, err)
	tx := mapTransaction(
		raw,
		types.TxIdentifier{BlockNumber: 100, TxIndex: 0},
		types.EraConway,
		address.NetworkMainnet,
	)
	require.NotNil(t, tx)
	require.NoError(t, tx.Err)
	return tx
}

func TestMapConwayTransaction(t *testing.T) {
	tx := decodeTestTx(t)

	assert.True(t, tx.IsValid)
	assert.Equal(t, uint64(174_785), tx.Fee)
	require.Len(t, tx.Consumes, 1)
	assert.Equal(t, uint32(1), tx.Consumes[0].Index)
	require.Len(t, tx.Produces, 2)
	assert.Equal(t, uint64(5_000_000), tx.Produces[1].Value)

	require.Len(t, tx.Withdrawals, 1)
	assert.Equal(t, uint64(1_123_757_313), tx.Withdrawals[0].Value)
	assert.Equal(
		t,
		address.NetworkMainnet,
		tx.Withdrawals[0].Address.Network,
	)

	assert.Len(t, tx.VkeyWitnesses, 2)
	assert.Len(t, tx.GetVkeyWitnessHashes(), 2)
}

func TestMapTransactionOutputsCarryAddresses(t *testing.T) {
	tx := decodeTestTx(t)
	for _, produced := range tx.Produces {
		require.NotNil(t, produced.Address)
		shelley, ok := produced.Address.(address.ShelleyAddress)
		require.True(t, ok)
		assert.Equal(t, address.NetworkMainnet, shelley.Network)
	}
	// Both outputs pay the same payment credential
	a0 := tx.Produces[0].Address.(address.ShelleyAddress)
	a1 := tx.Produces[1].Address.(address.ShelleyAddress)
	assert.Equal(t, a0.Payment, a1.Payment)
}

// Malformed bytes never panic; the decode error is tagged on the record
func TestMapTransactionGarbage(t *testing.T) {
	garbage := [][]byte{
		nil,
		{},
		{0x00},
		{0xff, 0xff, 0xff},
		{0x84, 0xa6, 0x00},
	}
	for _, raw := range garbage {
		tx := mapTransaction(
			raw,
			types.TxIdentifier{BlockNumber: 1, TxIndex: 0},
			types.EraConway,
			address.NetworkMainnet,
		)
		require.NotNil(t, tx)
		assert.Error(t, tx.Err)
	}
}

func TestExtractCIP25Absent(t *testing.T) {
	raw, err := hex.DecodeString(conwayTxHex)
	require.NoError(t, err)
	assert.Nil(t, extractCIP25(raw))
}

// The balance invariant holds for the decoded record given the input it
// spends
func TestDecodedTxBalances(t *testing.T) {
	tx := decodeTestTx(t)
	resolve := func(types.UTxOIdentifier) (types.Value, error) {
		// input = outputs + fee - withdrawal
		var total uint64
		for _, produced := range tx.Produces {
			total += produced.Value
		}
		return types.NewValue(
			total + tx.Fee - tx.Withdrawals[0].Value,
		), nil
	}
	produced := tx.CalculateTotalProduced(0)
	consumed, err := tx.CalculateTotalConsumed(resolve, 0)
	require.NoError(t, err)
	assert.True(t, produced.Equal(consumed))
}
