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

package validate

import (
	"bytes"
	"math/big"
	"sort"

	"github.com/blinklabs-io/chainindex/types"
	lcommon "github.com/blinklabs-io/gouroboros/ledger/common"
)

// OBftSlot describes an overlay-schedule slot: either an active slot
// assigned to a genesis key, or a non-active slot nobody may use
type OBftSlot struct {
	Active     bool
	GenesisKey lcommon.Blake2b224
}

// stepOverlay is ceiling(s * d); consecutive steps differing marks an
// overlay slot
func stepOverlay(s uint64, d *big.Rat) *big.Int {
	product := new(big.Rat).Mul(
		new(big.Rat).SetInt(new(big.Int).SetUint64(s)),
		d,
	)
	q, r := new(big.Int).QuoRem(
		product.Num(), product.Denom(), new(big.Int),
	)
	if r.Sign() != 0 {
		q.Add(q, big.NewInt(1))
	}
	return q
}

// IsOverlaySlot reports whether the given intra-epoch slot belongs to
// the OBFT overlay schedule under decentralisation d
func IsOverlaySlot(epochSlot uint64, d types.Ratio) bool {
	if d.IsZero() {
		return false
	}
	rat := d.Rat()
	return stepOverlay(epochSlot, rat).Cmp(stepOverlay(epochSlot+1, rat)) < 0
}

// LookupOverlaySchedule returns the overlay assignment for an
// intra-epoch slot, or nil when the slot follows regular praos rules.
// Active overlay slots are assigned round-robin to the genesis keys in
// sorted order.
func LookupOverlaySchedule(
	epochSlot uint64,
	genesisKeys []lcommon.Blake2b224,
	d types.Ratio,
	activeSlotsCoeff types.Ratio,
) *OBftSlot {
	if !IsOverlaySlot(epochSlot, d) {
		return nil
	}
	position := stepOverlay(epochSlot, d.Rat())

	// ascInv = floor(1/f); every ascInv-th overlay position is active
	f := activeSlotsCoeff.Rat()
	if f.Sign() == 0 {
		return &OBftSlot{Active: false}
	}
	ascInv := new(big.Int).Quo(f.Denom(), f.Num())
	if ascInv.Sign() == 0 {
		ascInv = big.NewInt(1)
	}

	mod := new(big.Int).Mod(position, ascInv)
	if mod.Sign() != 0 {
		return &OBftSlot{Active: false}
	}
	if len(genesisKeys) == 0 {
		return &OBftSlot{Active: false}
	}
	index := new(big.Int).Mod(
		new(big.Int).Quo(position, ascInv),
		big.NewInt(int64(len(genesisKeys))),
	)
	return &OBftSlot{
		Active:     true,
		GenesisKey: genesisKeys[index.Int64()],
	}
}

// sortedGenesisKeys returns the genesis keys in their canonical (byte)
// order, matching the ordered-set semantics the schedule is defined over
func sortedGenesisKeys(
	delegs map[lcommon.Blake2b224]types.GenesisDeleg,
) []lcommon.Blake2b224 {
	keys := make([]lcommon.Blake2b224, 0, len(delegs))
	for key := range delegs {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		return bytes.Compare(keys[i].Bytes(), keys[j].Bytes()) < 0
	})
	return keys
}
