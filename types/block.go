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

package types

import (
	"fmt"

	lcommon "github.com/blinklabs-io/gouroboros/ledger/common"
)

// Era identifies the ledger era a block belongs to
type Era uint8

const (
	EraByron Era = iota
	EraShelley
	EraAllegra
	EraMary
	EraAlonzo
	EraBabbage
	EraConway
)

// String returns the era name
func (e Era) String() string {
	switch e {
	case EraByron:
		return "byron"
	case EraShelley:
		return "shelley"
	case EraAllegra:
		return "allegra"
	case EraMary:
		return "mary"
	case EraAlonzo:
		return "alonzo"
	case EraBabbage:
		return "babbage"
	case EraConway:
		return "conway"
	}
	return fmt.Sprintf("unknown(%d)", uint8(e))
}

// BlockStatus describes where a block sits relative to the volatile window
type BlockStatus uint8

const (
	// BlockStatusBootstrap marks synthetic blocks emitted while loading a snapshot
	BlockStatusBootstrap BlockStatus = iota
	// BlockStatusImmutable marks blocks at or below the security depth
	BlockStatusImmutable
	// BlockStatusVolatile marks recent blocks that may still be rolled back
	BlockStatusVolatile
	// BlockStatusRolledBack marks the first block after a chain rollback
	BlockStatusRolledBack
)

// String returns the status name
func (s BlockStatus) String() string {
	switch s {
	case BlockStatusBootstrap:
		return "bootstrap"
	case BlockStatusImmutable:
		return "immutable"
	case BlockStatusVolatile:
		return "volatile"
	case BlockStatusRolledBack:
		return "rolled-back"
	}
	return fmt.Sprintf("unknown(%d)", uint8(s))
}

// BlockInfo identifies a block and its position on the chain. It is carried
// as the header of every message on the bus so that subscribers can verify
// stream synchronisation per block.
type BlockInfo struct {
	Status    BlockStatus
	Slot      uint64
	Number    uint64
	Hash      lcommon.Blake2b256
	Epoch     uint64
	EpochSlot uint64
	NewEpoch  bool
	Era       Era
	Timestamp uint64
}

// Point is a (slot, hash) pair identifying a position on the chain. A Point
// with no hash is the chain origin.
type Point struct {
	Slot   uint64
	Hash   lcommon.Blake2b256
	origin bool
}

// OriginPoint returns the origin of the chain
func OriginPoint() Point {
	return Point{origin: true}
}

// NewPoint returns a specific chain point
func NewPoint(slot uint64, hash lcommon.Blake2b256) Point {
	return Point{Slot: slot, Hash: hash}
}

// IsOrigin returns whether the point is the chain origin
func (p Point) IsOrigin() bool {
	return p.origin
}

// String returns a human-readable form of the point
func (p Point) String() string {
	if p.origin {
		return "origin"
	}
	return fmt.Sprintf("%d.%s", p.Slot, p.Hash.String())
}
