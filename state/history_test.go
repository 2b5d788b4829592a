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

package state_test

import (
	"testing"

	"github.com/blinklabs-io/chainindex/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// counter is a trivial cloneable state for the tests
type counter struct {
	Applied []uint64
}

func (c *counter) Clone() *counter {
	return &counter{Applied: append([]uint64{}, c.Applied...)}
}

func TestGetOrInitWith(t *testing.T) {
	h := state.NewHistory[*counter]("test")
	st := h.GetOrInitWith(func() *counter { return &counter{} })
	require.NotNil(t, st)
	assert.Empty(t, st.Applied)

	st.Applied = append(st.Applied, 1)
	h.Commit(1, st)

	// The returned state is a clone; mutating it does not touch the
	// committed one
	next := h.GetOrInitWith(func() *counter { return &counter{} })
	next.Applied = append(next.Applied, 2)
	current, ok := h.Current()
	require.True(t, ok)
	assert.Equal(t, []uint64{1}, current.Applied)
}

func TestCommitMonotonicity(t *testing.T) {
	h := state.NewHistory[*counter]("test")
	h.Commit(5, &counter{})
	assert.Panics(t, func() {
		h.Commit(4, &counter{})
	})
}

func TestRecommitSameBlockAfterRollback(t *testing.T) {
	h := state.NewHistory[*counter]("test")
	for n := uint64(1); n <= 5; n++ {
		st := h.GetOrInitWith(func() *counter { return &counter{} })
		st.Applied = append(st.Applied, n)
		h.Commit(n, st)
	}
	rolled, err := h.GetRolledBackState(3)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2, 3}, rolled.Applied)

	// The new fork's block 3 replaces the old state at 3
	rolled.Applied = append(rolled.Applied, 33)
	h.Commit(3, rolled)
	current, ok := h.Current()
	require.True(t, ok)
	assert.Equal(t, []uint64{1, 2, 3, 33}, current.Applied)
}

// Rollback round-trip: applying, rolling back, and re-applying the same
// blocks yields the same state
func TestRollbackRoundTrip(t *testing.T) {
	apply := func(h *state.History[*counter], blocks []uint64) {
		for _, n := range blocks {
			st := h.GetOrInitWith(func() *counter { return &counter{} })
			st.Applied = append(st.Applied, n)
			h.Commit(n, st)
		}
	}

	h := state.NewHistory[*counter]("test")
	apply(h, []uint64{1, 2, 3, 4, 5})
	reference, _ := h.Current()

	rolled, err := h.GetRolledBackState(2)
	require.NoError(t, err)
	h.Commit(2, rolled)
	apply(h, []uint64{3, 4, 5})

	replayed, ok := h.Current()
	require.True(t, ok)
	assert.Equal(t, reference.Applied, replayed.Applied)
}

func TestRollbackBeyondHistory(t *testing.T) {
	h := state.NewHistoryWithDepth[*counter]("test", 2, 0)
	for n := uint64(1); n <= 5; n++ {
		h.Commit(n, &counter{Applied: []uint64{n}})
	}
	// Only blocks 4 and 5 are retained
	_, err := h.GetRolledBackState(1)
	assert.Error(t, err)
}

func TestEpochStore(t *testing.T) {
	h := state.NewHistory[*counter]("test")
	h.Commit(10, &counter{Applied: []uint64{10}})
	h.CommitEpoch(300, &counter{Applied: []uint64{10}})
	h.Commit(11, &counter{Applied: []uint64{10, 11}})

	epochState, ok := h.GetEpoch(300)
	require.True(t, ok)
	assert.Equal(t, []uint64{10}, epochState.Applied)

	_, ok = h.GetEpoch(299)
	assert.False(t, ok)
}
