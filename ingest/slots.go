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

package ingest

// SlotConfig describes how slots map to epochs and wall-clock time for a
// network. Byron counts 20-second slots in short epochs; Shelley onwards
// counts 1-second slots in 432000-slot epochs.
type SlotConfig struct {
	// ByronSlots is the number of slots before the Shelley hard fork
	ByronSlots uint64
	// ByronEpochLength is the Byron epoch length in slots
	ByronEpochLength uint64
	// ByronSlotDuration is the Byron slot duration in seconds
	ByronSlotDuration uint64
	// EpochLength is the Shelley-onwards epoch length in slots
	EpochLength uint64
	// SystemStart is the unix timestamp of slot 0
	SystemStart uint64
}

// MainnetSlotConfig is the mainnet slot schedule: 208 Byron epochs of
// 21600 slots, then 432000-slot epochs
var MainnetSlotConfig = SlotConfig{
	ByronSlots:        4492800,
	ByronEpochLength:  21600,
	ByronSlotDuration: 20,
	EpochLength:       432000,
	SystemStart:       1506203091,
}

// EpochForSlot returns the epoch and intra-epoch slot for an absolute slot
func (c SlotConfig) EpochForSlot(slot uint64) (epoch, epochSlot uint64) {
	if slot < c.ByronSlots {
		return slot / c.ByronEpochLength, slot % c.ByronEpochLength
	}
	byronEpochs := c.ByronSlots / c.ByronEpochLength
	offset := slot - c.ByronSlots
	return byronEpochs + offset/c.EpochLength, offset % c.EpochLength
}

// TimestampForSlot returns the unix timestamp at which a slot opens
func (c SlotConfig) TimestampForSlot(slot uint64) uint64 {
	if slot < c.ByronSlots {
		return c.SystemStart + slot*c.ByronSlotDuration
	}
	return c.SystemStart +
		c.ByronSlots*c.ByronSlotDuration +
		(slot - c.ByronSlots)
}
