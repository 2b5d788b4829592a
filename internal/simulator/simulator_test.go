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

package simulator_test

import (
	"context"
	"strings"
	"testing"

	"github.com/blinklabs-io/chainindex/bus"
	"github.com/blinklabs-io/chainindex/internal/simulator"
	"github.com/blinklabs-io/chainindex/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const scriptYaml = `
name: two-blocks-and-a-rollback
entries:
  - type: block
    slot: 100
    number: 10
    epoch: 500
    newEpoch: true
    era: conway
  - type: block
    slot: 120
    number: 11
    epoch: 500
    era: conway
    txs:
      - "84a600"
  - type: rollback
  - type: block
    slot: 121
    number: 11
    epoch: 500
    era: conway
    hash: "aa"
`

func TestScriptPlayback(t *testing.T) {
	script, err := simulator.NewFromReader(strings.NewReader(scriptYaml))
	require.NoError(t, err)
	require.Len(t, script.Entries, 4)

	b := bus.New()
	defer b.Close()
	sub := b.Subscribe(types.TopicTxs)

	ctx := context.Background()
	require.NoError(t, simulator.Run(ctx, b, script))

	first, err := sub.Read(ctx)
	require.NoError(t, err)
	block1 := first.(types.ReceivedTxsMessage)
	assert.Equal(t, uint64(10), block1.Block.Number)
	assert.True(t, block1.Block.NewEpoch)
	assert.Equal(t, types.EraConway, block1.Block.Era)
	assert.Empty(t, block1.Txs)

	second, err := sub.Read(ctx)
	require.NoError(t, err)
	block2 := second.(types.ReceivedTxsMessage)
	assert.Equal(t, types.BlockStatusVolatile, block2.Block.Status)
	require.Len(t, block2.Txs, 1)
	assert.Equal(t, []byte{0x84, 0xa6, 0x00}, block2.Txs[0])

	third, err := sub.Read(ctx)
	require.NoError(t, err)
	block2b := third.(types.ReceivedTxsMessage)
	assert.Equal(t, types.BlockStatusRolledBack, block2b.Block.Status)
	assert.Equal(t, uint64(11), block2b.Block.Number)
}

func TestUnknownEntryType(t *testing.T) {
	b := bus.New()
	defer b.Close()
	err := simulator.Run(context.Background(), b, simulator.Script{
		Entries: []simulator.Entry{{Type: "bogus"}},
	})
	assert.Error(t, err)
}
