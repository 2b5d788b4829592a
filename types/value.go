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
	lcommon "github.com/blinklabs-io/gouroboros/ledger/common"
)

// Lovelace is an amount of ADA in its smallest unit
type Lovelace = uint64

// PolicyID is the minting policy script hash for a native asset
type PolicyID = lcommon.Blake2b224

// AssetKey identifies a native asset within a policy. The asset name is
// stored as a string so the key is usable in maps; it is raw bytes, not
// necessarily UTF-8.
type AssetKey struct {
	Policy PolicyID
	Name   string
}

// Value is an amount of lovelace plus any native assets
type Value struct {
	Coin   Lovelace
	Assets map[PolicyID]map[string]uint64
}

// NewValue returns a Value holding only lovelace
func NewValue(coin Lovelace) Value {
	return Value{Coin: coin}
}

// AddAsset adds an amount of a single native asset to the value
func (v *Value) AddAsset(policy PolicyID, name []byte, amount uint64) {
	if v.Assets == nil {
		v.Assets = make(map[PolicyID]map[string]uint64)
	}
	assets := v.Assets[policy]
	if assets == nil {
		assets = make(map[string]uint64)
		v.Assets[policy] = assets
	}
	assets[string(name)] += amount
}

// Add accumulates another value into this one
func (v *Value) Add(other Value) {
	v.Coin += other.Coin
	for policy, assets := range other.Assets {
		for name, amount := range assets {
			v.AddAsset(policy, []byte(name), amount)
		}
	}
}

// Equal reports whether two values are identical, ignoring empty asset maps
func (v Value) Equal(other Value) bool {
	if v.Coin != other.Coin {
		return false
	}
	return assetsEqual(v.Assets, other.Assets) &&
		assetsEqual(other.Assets, v.Assets)
}

func assetsEqual(
	a, b map[PolicyID]map[string]uint64,
) bool {
	for policy, assets := range a {
		for name, amount := range assets {
			if amount == 0 {
				continue
			}
			if b[policy][name] != amount {
				return false
			}
		}
	}
	return true
}

// AssetDelta is a signed amount of a single asset within a policy
type AssetDelta struct {
	Name  []byte
	Delta int64
}

// PolicyAssetDeltas groups the mint/burn deltas for one policy
type PolicyAssetDeltas struct {
	Policy PolicyID
	Deltas []AssetDelta
}

// NativeAssetsDelta is the full set of mint/burn deltas in a transaction
type NativeAssetsDelta []PolicyAssetDeltas
