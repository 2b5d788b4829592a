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

package ingest_test

import (
	"testing"

	"github.com/blinklabs-io/chainindex/ingest"
	"github.com/stretchr/testify/assert"
)

func TestByronEpochs(t *testing.T) {
	cfg := ingest.MainnetSlotConfig

	epoch, epochSlot := cfg.EpochForSlot(0)
	assert.Equal(t, uint64(0), epoch)
	assert.Equal(t, uint64(0), epochSlot)

	epoch, epochSlot = cfg.EpochForSlot(21_600)
	assert.Equal(t, uint64(1), epoch)
	assert.Equal(t, uint64(0), epochSlot)

	// Last Byron slot is in epoch 207
	epoch, _ = cfg.EpochForSlot(4_492_799)
	assert.Equal(t, uint64(207), epoch)
}

func TestShelleyEpochs(t *testing.T) {
	cfg := ingest.MainnetSlotConfig

	// First Shelley slot opens epoch 208
	epoch, epochSlot := cfg.EpochForSlot(4_492_800)
	assert.Equal(t, uint64(208), epoch)
	assert.Equal(t, uint64(0), epochSlot)

	epoch, epochSlot = cfg.EpochForSlot(4_492_800 + 432_000 + 5)
	assert.Equal(t, uint64(209), epoch)
	assert.Equal(t, uint64(5), epochSlot)
}

func TestTimestamps(t *testing.T) {
	cfg := ingest.MainnetSlotConfig
	assert.Equal(t, cfg.SystemStart, cfg.TimestampForSlot(0))
	// Byron slots are 20 seconds
	assert.Equal(t, cfg.SystemStart+40, cfg.TimestampForSlot(2))
	// Shelley slots are 1 second from the Byron boundary on
	boundary := cfg.TimestampForSlot(cfg.ByronSlots)
	assert.Equal(t, boundary+10, cfg.TimestampForSlot(cfg.ByronSlots+10))
}
