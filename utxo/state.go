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

// Package utxo maintains the UTxO set, per-address state, and native
// asset state. All three follow the same shape: a volatile window of
// per-block deltas over an immutable base, so rollback is a truncation
// of the window and reads replay the deltas in order.
package utxo

import (
	"fmt"

	"github.com/blinklabs-io/chainindex/types"
)

// AddressTotals accumulates per-address statistics
type AddressTotals struct {
	Received types.Lovelace
	Sent     types.Lovelace
	TxCount  uint64
}

// addressKey is the canonical binary form of an address, usable as a map
// key
type addressKey string

func keyFor(output types.TxOutput) (addressKey, error) {
	if output.Address == nil {
		return "", fmt.Errorf("output %s has no address", output.ID)
	}
	raw, err := output.Address.Bytes()
	if err != nil {
		return "", err
	}
	return addressKey(raw), nil
}

// blockDelta is everything one block changed
type blockDelta struct {
	block      types.BlockInfo
	created    map[types.UTxOIdentifier]types.TxOutput
	spent      map[types.UTxOIdentifier]bool
	addressTxs map[addressKey][]types.TxIdentifier
	totals     map[addressKey]AddressTotals
}

// State is the combined UTxO and address state
type State struct {
	// securityParam bounds the volatile window depth
	securityParam uint64

	immutable        map[types.UTxOIdentifier]types.TxOutput
	immutableTotals  map[addressKey]AddressTotals
	immutableTxs     map[addressKey][]types.TxIdentifier
	volatile         []blockDelta

	// pendingDrain accumulates totals drained from the volatile window
	// since the last epoch-boundary hand-off to the immutable store
	pendingDrain map[addressKey]AddressTotals
}

// NewState creates an empty state with the given security parameter
func NewState(securityParam uint64) *State {
	return &State{
		securityParam:   securityParam,
		immutable:       make(map[types.UTxOIdentifier]types.TxOutput),
		immutableTotals: make(map[addressKey]AddressTotals),
		immutableTxs:    make(map[addressKey][]types.TxIdentifier),
		pendingDrain:    make(map[addressKey]AddressTotals),
	}
}

// Bootstrap inserts a UTxO directly into the immutable base; used only by
// the snapshot loader before block processing starts
func (s *State) Bootstrap(output types.TxOutput) error {
	key, err := keyFor(output)
	if err != nil {
		return err
	}
	s.immutable[output.ID] = output
	totals := s.immutableTotals[key]
	totals.Received += output.Value
	s.immutableTotals[key] = totals
	return nil
}

// ApplyBlock applies one block's deltas as a new volatile entry. Blocks
// must arrive in order; a rollback arrives as a block whose status is
// RolledBack, handled by the module before calling this.
func (s *State) ApplyBlock(msg types.UTxODeltasMessage) error {
	if n := len(s.volatile); n > 0 {
		last := s.volatile[n-1].block.Number
		if msg.Block.Number != last+1 {
			panic(fmt.Sprintf(
				"utxo: block %d does not follow %d",
				msg.Block.Number, last,
			))
		}
	}
	delta := blockDelta{
		block:      msg.Block,
		created:    make(map[types.UTxOIdentifier]types.TxOutput),
		spent:      make(map[types.UTxOIdentifier]bool),
		addressTxs: make(map[addressKey][]types.TxIdentifier),
		totals:     make(map[addressKey]AddressTotals),
	}

	for _, tx := range msg.Deltas {
		// The unpacker already routed the collateral path into Consumes
		// for phase-2 invalid transactions
		for _, output := range tx.Produces {
			key, err := keyFor(output)
			if err != nil {
				return err
			}
			delta.created[output.ID] = output
			totals := delta.totals[key]
			totals.Received += output.Value
			totals.TxCount++
			delta.totals[key] = totals
			delta.addressTxs[key] = append(delta.addressTxs[key], tx.TxID)
		}
		for _, input := range tx.Consumes {
			spentOutput, ok := s.lookupForSpend(input, delta)
			if !ok {
				return fmt.Errorf(
					"utxo: spend of unknown output %s in block %d",
					input, msg.Block.Number,
				)
			}
			delta.spent[input] = true
			key, err := keyFor(spentOutput)
			if err != nil {
				return err
			}
			totals := delta.totals[key]
			totals.Sent += spentOutput.Value
			delta.totals[key] = totals
			delta.addressTxs[key] = append(delta.addressTxs[key], tx.TxID)
		}
	}

	s.volatile = append(s.volatile, delta)
	s.prune()
	return nil
}

// lookupForSpend resolves an input against the immutable base, the
// committed volatile window, and the in-progress delta
func (s *State) lookupForSpend(
	id types.UTxOIdentifier,
	pending blockDelta,
) (types.TxOutput, bool) {
	if output, ok := pending.created[id]; ok {
		return output, true
	}
	for i := len(s.volatile) - 1; i >= 0; i-- {
		if s.volatile[i].spent[id] {
			return types.TxOutput{}, false
		}
		if output, ok := s.volatile[i].created[id]; ok {
			return output, true
		}
	}
	output, ok := s.immutable[id]
	return output, ok
}

// Lookup resolves a live UTxO
func (s *State) Lookup(id types.UTxOIdentifier) (types.TxOutput, bool) {
	for i := len(s.volatile) - 1; i >= 0; i-- {
		if s.volatile[i].spent[id] {
			return types.TxOutput{}, false
		}
		if output, ok := s.volatile[i].created[id]; ok {
			return output, true
		}
	}
	output, ok := s.immutable[id]
	return output, ok
}

// Rollback discards every volatile delta after the given block number
func (s *State) Rollback(toBlock uint64) error {
	for len(s.volatile) > 0 {
		last := s.volatile[len(s.volatile)-1]
		if last.block.Number <= toBlock {
			return nil
		}
		s.volatile = s.volatile[:len(s.volatile)-1]
	}
	if len(s.volatile) == 0 {
		// Emptying the window is always an error, including a rollback to
		// exactly the last pruned block: the immutable base keeps no
		// block number to compare the target against
		return fmt.Errorf(
			"utxo: rollback to %d is beyond the volatile window",
			toBlock,
		)
	}
	return nil
}

// prune drains volatile entries older than the security parameter into
// the immutable base
func (s *State) prune() {
	if len(s.volatile) == 0 {
		return
	}
	head := s.volatile[len(s.volatile)-1].block.Number
	for len(s.volatile) > 0 {
		oldest := s.volatile[0]
		if head-oldest.block.Number < s.securityParam {
			return
		}
		for id := range oldest.spent {
			delete(s.immutable, id)
		}
		for id, output := range oldest.created {
			if !oldest.spent[id] {
				s.immutable[id] = output
			}
		}
		for key, txs := range oldest.addressTxs {
			s.immutableTxs[key] = append(s.immutableTxs[key], txs...)
		}
		for key, delta := range oldest.totals {
			totals := s.immutableTotals[key]
			totals.Received += delta.Received
			totals.Sent += delta.Sent
			totals.TxCount += delta.TxCount
			s.immutableTotals[key] = totals

			pending := s.pendingDrain[key]
			pending.Received += delta.Received
			pending.Sent += delta.Sent
			pending.TxCount += delta.TxCount
			s.pendingDrain[key] = pending
		}
		s.volatile = s.volatile[1:]
	}
}

// TakePendingDrain returns and clears the totals drained from the
// volatile window since the last call; the module hands them to the
// persistent address store at epoch boundaries
func (s *State) TakePendingDrain() map[string]AddressTotals {
	if len(s.pendingDrain) == 0 {
		return nil
	}
	out := make(map[string]AddressTotals, len(s.pendingDrain))
	for key, totals := range s.pendingDrain {
		out[string(key)] = totals
	}
	s.pendingDrain = make(map[addressKey]AddressTotals)
	return out
}

// Balance returns the live lovelace balance of an address by replaying
// the volatile deltas over the immutable totals
func (s *State) Balance(addr addressKey) types.Lovelace {
	totals := s.immutableTotals[addr]
	received, sent := totals.Received, totals.Sent
	for _, delta := range s.volatile {
		if t, ok := delta.totals[addr]; ok {
			received += t.Received
			sent += t.Sent
		}
	}
	return received - sent
}

// BalanceOf is Balance keyed by an address value
func (s *State) BalanceOf(raw []byte) types.Lovelace {
	return s.Balance(addressKey(raw))
}

// TransactionsOf returns the per-address transaction history, immutable
// prefix first, volatile suffix replayed in block order
func (s *State) TransactionsOf(raw []byte) []types.TxIdentifier {
	key := addressKey(raw)
	out := append([]types.TxIdentifier{}, s.immutableTxs[key]...)
	for _, delta := range s.volatile {
		out = append(out, delta.addressTxs[key]...)
	}
	return out
}

// UTxOCount returns the number of live outputs
func (s *State) UTxOCount() int {
	// Every spend recorded in the window referred to a live output at
	// apply time, so the arithmetic is exact
	count := len(s.immutable)
	for _, delta := range s.volatile {
		count += len(delta.created) - len(delta.spent)
	}
	return count
}

// HeadBlock returns the newest block applied
func (s *State) HeadBlock() (types.BlockInfo, bool) {
	if len(s.volatile) == 0 {
		return types.BlockInfo{}, false
	}
	return s.volatile[len(s.volatile)-1].block, true
}
