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

package utxo

import (
	"fmt"
	"sync"

	"github.com/blinklabs-io/chainindex/types"
)

// AssetInfo is the tracked state of one native asset
type AssetInfo struct {
	Supply    uint64
	MintCount uint64
	BurnCount uint64
	FirstMint types.TxIdentifier
	// CIP25Metadata is the latest label-721 metadatum seen for the
	// asset's policy, raw bytes
	CIP25Metadata []byte
}

type assetBlockDelta struct {
	block  types.BlockInfo
	deltas map[types.AssetKey]int64
	mints  map[types.AssetKey]types.TxIdentifier
	cip25  [][]byte
}

// AssetState tracks native asset supplies and mint history. One mutex
// serialises writes; reads take short critical sections.
type AssetState struct {
	mu sync.Mutex

	securityParam uint64
	immutable     map[types.AssetKey]AssetInfo
	volatile      []assetBlockDelta
}

// NewAssetState creates an empty asset state
func NewAssetState(securityParam uint64) *AssetState {
	return &AssetState{
		securityParam: securityParam,
		immutable:     make(map[types.AssetKey]AssetInfo),
	}
}

// ApplyBlock applies one block's asset deltas
func (s *AssetState) ApplyBlock(msg types.AssetDeltasMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n := len(s.volatile); n > 0 {
		last := s.volatile[n-1].block.Number
		if msg.Block.Number != last+1 {
			panic(fmt.Sprintf(
				"assets: block %d does not follow %d",
				msg.Block.Number, last,
			))
		}
	}
	delta := assetBlockDelta{
		block:  msg.Block,
		deltas: make(map[types.AssetKey]int64),
		mints:  make(map[types.AssetKey]types.TxIdentifier),
		cip25:  msg.CIP25MetadataUpdates,
	}
	for _, tx := range msg.Deltas {
		for _, policy := range tx.Deltas {
			for _, asset := range policy.Deltas {
				key := types.AssetKey{
					Policy: policy.Policy,
					Name:   string(asset.Name),
				}
				delta.deltas[key] += asset.Delta
				if asset.Delta > 0 {
					if _, seen := delta.mints[key]; !seen {
						delta.mints[key] = tx.TxID
					}
				}
			}
		}
	}
	s.volatile = append(s.volatile, delta)
	s.prune()
	return nil
}

// Rollback discards volatile deltas after the given block
func (s *AssetState) Rollback(toBlock uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.volatile) > 0 &&
		s.volatile[len(s.volatile)-1].block.Number > toBlock {
		s.volatile = s.volatile[:len(s.volatile)-1]
	}
}

func (s *AssetState) prune() {
	if len(s.volatile) == 0 {
		return
	}
	head := s.volatile[len(s.volatile)-1].block.Number
	for len(s.volatile) > 0 {
		oldest := s.volatile[0]
		if head-oldest.block.Number < s.securityParam {
			return
		}
		for key, amount := range oldest.deltas {
			info := s.immutable[key]
			if amount >= 0 {
				info.Supply += uint64(amount)
				info.MintCount++
			} else {
				burned := uint64(-amount)
				if burned > info.Supply {
					info.Supply = 0
				} else {
					info.Supply -= burned
				}
				info.BurnCount++
			}
			if first, ok := oldest.mints[key]; ok && info.MintCount == 1 {
				info.FirstMint = first
			}
			s.immutable[key] = info
		}
		for _, metadata := range oldest.cip25 {
			// Metadata applies at the policy level; retain the latest raw
			// bytes per asset touched in the block
			for key := range oldest.deltas {
				info := s.immutable[key]
				info.CIP25Metadata = metadata
				s.immutable[key] = info
			}
		}
		s.volatile = s.volatile[1:]
	}
}

// Supply returns an asset's live supply, replaying the volatile window
// over the immutable base
func (s *AssetState) Supply(key types.AssetKey) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	supply := int64(s.immutable[key].Supply)
	for _, delta := range s.volatile {
		supply += delta.deltas[key]
	}
	if supply < 0 {
		return 0
	}
	return uint64(supply)
}

// Info returns the immutable asset info merged with the live supply
func (s *AssetState) Info(key types.AssetKey) (AssetInfo, bool) {
	s.mu.Lock()
	info, ok := s.immutable[key]
	s.mu.Unlock()
	if !ok {
		// Only in the volatile window so far
		supply := s.Supply(key)
		if supply == 0 {
			return AssetInfo{}, false
		}
		return AssetInfo{Supply: supply}, true
	}
	info.Supply = s.Supply(key)
	return info, true
}
