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

package unpack_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/blinklabs-io/chainindex/address"
	"github.com/blinklabs-io/chainindex/bus"
	"github.com/blinklabs-io/chainindex/internal/simulator"
	"github.com/blinklabs-io/chainindex/types"
	"github.com/blinklabs-io/chainindex/unpack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// End-to-end through the unpacker: scripted blocks go in on the txs
// topic, per-block delta batches come out in order, and an in-band
// rollback reaches the downstream with the rolled-back status intact
func TestPipelineOrderAndRollback(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	messageBus := bus.New()
	defer messageBus.Close()

	deltasSub := messageBus.Subscribe(types.TopicUTxODeltas)

	unpacker := unpack.New(messageBus, testLogger(), unpack.Config{
		Network:           address.NetworkMainnet,
		PublishUTxODeltas: true,
	})
	done := make(chan error, 1)
	go func() {
		done <- unpacker.Run(ctx)
	}()

	require.NoError(t, messageBus.Publish(ctx, types.TopicBootstrapped,
		types.GenesisCompleteMessage{
			Values: types.GenesisValues{Network: address.NetworkMainnet},
		},
	))

	script := simulator.Script{
		Name: "rollback",
		Entries: []simulator.Entry{
			{Type: simulator.EntryBlock, Slot: 100, Number: 1, Epoch: 500},
			{Type: simulator.EntryBlock, Slot: 120, Number: 2, Epoch: 500},
			{Type: simulator.EntryRollback},
			{
				Type:   simulator.EntryBlock,
				Slot:   121,
				Number: 2,
				Epoch:  500,
				Hash:   "11",
			},
			{Type: simulator.EntryBlock, Slot: 140, Number: 3, Epoch: 500},
		},
	}
	require.NoError(t, simulator.Run(ctx, messageBus, script))

	expected := []struct {
		number     uint64
		rolledBack bool
	}{
		{1, false},
		{2, false},
		{2, true},
		{3, false},
	}
	for _, want := range expected {
		raw, err := deltasSub.Read(ctx)
		require.NoError(t, err)
		msg, ok := raw.(types.UTxODeltasMessage)
		require.True(t, ok)
		assert.Equal(t, want.number, msg.Block.Number)
		assert.Equal(
			t,
			want.rolledBack,
			msg.Block.Status == types.BlockStatusRolledBack,
		)
	}

	messageBus.Close()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-ctx.Done():
		t.Fatal("unpacker did not shut down")
	}
}
