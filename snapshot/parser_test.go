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

package snapshot_test

import (
	"bytes"
	"testing"

	"github.com/blinklabs-io/chainindex/address"
	"github.com/blinklabs-io/chainindex/snapshot"
	"github.com/blinklabs-io/chainindex/types"
	lcommon "github.com/blinklabs-io/gouroboros/ledger/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder captures callback invocations in order
type recorder struct {
	sections []string
	utxos    []types.TxOutput
	pools    []snapshot.PoolEntry
	accounts []snapshot.AccountEntry
	params   types.ProtocolParams
	complete bool
}

func (r *recorder) OnMetadata(meta snapshot.Metadata) error {
	r.sections = append(r.sections, "metadata")
	return nil
}

func (r *recorder) OnUTxO(utxo types.TxOutput) error {
	r.sections = append(r.sections, "utxo")
	r.utxos = append(r.utxos, utxo)
	return nil
}

func (r *recorder) OnPools(pools []snapshot.PoolEntry) error {
	r.sections = append(r.sections, "pools")
	r.pools = pools
	return nil
}

func (r *recorder) OnAccounts(accounts []snapshot.AccountEntry) error {
	r.sections = append(r.sections, "accounts")
	r.accounts = accounts
	return nil
}

func (r *recorder) OnDReps([]snapshot.DRepEntry) error {
	r.sections = append(r.sections, "dreps")
	return nil
}

func (r *recorder) OnProposals([]snapshot.ProposalEntry) error {
	r.sections = append(r.sections, "proposals")
	return nil
}

func (r *recorder) OnSnapshots(snapshot.StakeSnapshots) error {
	r.sections = append(r.sections, "snapshots")
	return nil
}

func (r *recorder) OnGovernanceState(snapshot.GovernanceState) error {
	r.sections = append(r.sections, "governance")
	return nil
}

func (r *recorder) OnProtocolParameters(params types.ProtocolParams) error {
	r.sections = append(r.sections, "params")
	r.params = params
	return nil
}

func (r *recorder) OnComplete() error {
	r.sections = append(r.sections, "complete")
	r.complete = true
	return nil
}

func testUTxO(fill byte, value uint64) types.TxOutput {
	return types.TxOutput{
		ID: types.UTxOIdentifier{
			TxHash: lcommon.NewBlake2b256(bytes.Repeat([]byte{fill}, 32)),
			Index:  0,
		},
		Address: address.ShelleyAddress{
			Network: address.NetworkMainnet,
			Payment: address.PaymentPart{
				Kind: address.KeyCredential,
				Hash: lcommon.NewBlake2b224(bytes.Repeat([]byte{fill}, 28)),
			},
			Delegation: address.DelegationPart{Kind: address.DelegationNone},
		},
		Value: value,
	}
}

func buildStream(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := snapshot.NewWriter(&buf)

	require.NoError(t, w.WriteChunk(snapshot.SectionMetadata, snapshot.Metadata{
		Epoch:       500,
		PointSlot:   120_000_000,
		NetworkName: "mainnet",
	}))
	require.NoError(t, w.WriteUTxOBatch([]types.TxOutput{
		testUTxO(0x01, 5_000_000),
		testUTxO(0x02, 7_000_000),
	}))
	require.NoError(t, w.WriteUTxOBatch([]types.TxOutput{
		testUTxO(0x03, 9_000_000),
	}))
	require.NoError(t, w.WriteChunk(snapshot.SectionPools, []snapshot.PoolEntry{
		{
			Operator:      bytes.Repeat([]byte{0x10}, 28),
			VrfKeyHash:    bytes.Repeat([]byte{0x11}, 32),
			Pledge:        100,
			Cost:          340,
			MarginNum:     1,
			MarginDen:     20,
			RewardAccount: append([]byte{0xe1}, bytes.Repeat([]byte{0x12}, 28)...),
		},
	}))
	require.NoError(t, w.WriteChunk(snapshot.SectionAccounts, []snapshot.AccountEntry{
		{
			StakeAddress: append([]byte{0xe1}, bytes.Repeat([]byte{0x13}, 28)...),
			Rewards:      42,
		},
	}))
	require.NoError(t, w.WriteChunk(snapshot.SectionDReps, []snapshot.DRepEntry{}))
	require.NoError(t, w.WriteChunk(snapshot.SectionProposals, []snapshot.ProposalEntry{}))
	require.NoError(t, w.WriteChunk(snapshot.SectionSnapshots, snapshot.StakeSnapshots{
		Epoch: 500,
	}))
	require.NoError(t, w.WriteChunk(snapshot.SectionGovernanceState, snapshot.GovernanceState{}))
	require.NoError(t, w.WriteChunk(snapshot.SectionProtocolParams, snapshot.ParamsChunk(
		types.ProtocolParams{
			Shelley: &types.ShelleyParams{
				MaxLovelaceSupply:  45_000_000_000_000_000,
				StakePoolTargetNum: 500,
			},
			Conway: &types.ConwayParams{GovActionLifetime: 6},
		},
	)))
	require.NoError(t, w.WriteComplete())
	return buf.Bytes()
}

func TestParserRoundTrip(t *testing.T) {
	stream := buildStream(t)
	rec := &recorder{}
	parser := snapshot.NewParser(bytes.NewReader(stream), rec)
	require.NoError(t, parser.Run())

	assert.True(t, rec.complete)
	// One callback per UTxO across both chunks
	require.Len(t, rec.utxos, 3)
	assert.Equal(t, uint64(5_000_000), rec.utxos[0].Value)
	assert.Equal(t, uint64(9_000_000), rec.utxos[2].Value)
	require.Len(t, rec.pools, 1)
	assert.Equal(t, uint64(100), rec.pools[0].Pledge)
	require.NotNil(t, rec.params.Shelley)
	assert.Equal(t, uint64(500), rec.params.Shelley.StakePoolTargetNum)
	require.NotNil(t, rec.params.Conway)
	assert.Equal(t, uint64(6), rec.params.Conway.GovActionLifetime)

	// Sections in stream order, metadata first and complete last
	assert.Equal(t, "metadata", rec.sections[0])
	assert.Equal(t, "complete", rec.sections[len(rec.sections)-1])
}

func TestParserRejectsTruncatedStream(t *testing.T) {
	stream := buildStream(t)
	rec := &recorder{}
	parser := snapshot.NewParser(bytes.NewReader(stream[:len(stream)-3]), rec)
	assert.Error(t, parser.Run())
}

func TestParserRejectsMissingComplete(t *testing.T) {
	var buf bytes.Buffer
	w := snapshot.NewWriter(&buf)
	require.NoError(t, w.WriteChunk(snapshot.SectionMetadata, snapshot.Metadata{
		Epoch: 1,
	}))
	rec := &recorder{}
	parser := snapshot.NewParser(bytes.NewReader(buf.Bytes()), rec)
	assert.Error(t, parser.Run())
}

func TestParserRejectsOutOfOrderSections(t *testing.T) {
	var buf bytes.Buffer
	w := snapshot.NewWriter(&buf)
	require.NoError(t, w.WriteChunk(snapshot.SectionPools, []snapshot.PoolEntry{}))
	require.NoError(t, w.WriteChunk(snapshot.SectionMetadata, snapshot.Metadata{}))
	rec := &recorder{}
	parser := snapshot.NewParser(bytes.NewReader(buf.Bytes()), rec)
	assert.ErrorIs(t, parser.Run(), snapshot.ErrBadSection)
}
