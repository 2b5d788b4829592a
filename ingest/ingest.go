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

// Package ingest turns raw era-tagged block bytes into typed block events
// on the bus. It is the single upstream producer of the pipeline: every
// state module's block ordering derives from the order of events emitted
// here.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/blinklabs-io/chainindex/bus"
	"github.com/blinklabs-io/chainindex/types"
	"github.com/blinklabs-io/chainindex/validate"
	"github.com/blinklabs-io/gouroboros/ledger"
	"github.com/prometheus/client_golang/prometheus"
)

// blockTypeFor maps our era tag to the gouroboros block type used for
// CBOR decoding. Byron epoch-boundary blocks are handled separately.
func blockTypeFor(era types.Era) uint {
	if era == types.EraByron {
		return 1
	}
	return uint(era) + 1
}

// Ingester decodes incoming blocks and publishes ReceivedTxs events
type Ingester struct {
	bus       *bus.Bus
	logger    *slog.Logger
	slots     SlotConfig
	validator *validate.HeaderValidator

	prevNumber uint64
	prevEpoch  uint64
	started    bool
	rolledBack bool

	blocksProcessed prometheus.Counter
	rollbacks       prometheus.Counter
	headerFailures  prometheus.Counter
}

// NewIngester creates a block ingester publishing on the given bus
func NewIngester(
	b *bus.Bus,
	logger *slog.Logger,
	slots SlotConfig,
	reg prometheus.Registerer,
) *Ingester {
	i := &Ingester{
		bus:    b,
		logger: logger,
		slots:  slots,
		blocksProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chainindex_blocks_processed_total",
			Help: "Blocks decoded and published",
		}),
		rollbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chainindex_rollbacks_total",
			Help: "Chain rollbacks observed",
		}),
		headerFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chainindex_header_validation_failures_total",
			Help: "Block headers failing KES/VRF validation",
		}),
	}
	if reg != nil {
		reg.MustRegister(i.blocksProcessed, i.rollbacks, i.headerFailures)
	}
	return i
}

// WithHeaderValidator attaches a KES/VRF header validator; every
// ingested block's header is checked and failures are reported without
// halting the pipeline
func (i *Ingester) WithHeaderValidator(v *validate.HeaderValidator) *Ingester {
	i.validator = v
	return i
}

// RollForward decodes one block and publishes its transactions. The era
// tag comes from the chain-sync envelope; block numbers must advance
// monotonically except immediately after RollBackward.
func (i *Ingester) RollForward(
	ctx context.Context,
	era types.Era,
	blockCbor []byte,
) error {
	block, err := ledger.NewBlockFromCbor(blockTypeFor(era), blockCbor)
	if err != nil {
		return fmt.Errorf("decode %s block: %w", era, err)
	}

	slot := block.SlotNumber()
	number := block.BlockNumber()
	epoch, epochSlot := i.slots.EpochForSlot(slot)

	status := types.BlockStatusVolatile
	if i.rolledBack {
		status = types.BlockStatusRolledBack
		i.rolledBack = false
	} else if i.started && number != i.prevNumber+1 {
		// A gap without a rollback marker means the upstream lost sync;
		// continuing would corrupt every downstream state
		panic(fmt.Sprintf(
			"ingest: non-contiguous block number %d after %d",
			number, i.prevNumber,
		))
	}

	newEpoch := !i.started || epoch != i.prevEpoch
	info := types.BlockInfo{
		Status:    status,
		Slot:      slot,
		Number:    number,
		Hash:      block.Hash(),
		Epoch:     epoch,
		EpochSlot: epochSlot,
		NewEpoch:  newEpoch,
		Era:       era,
		Timestamp: i.slots.TimestampForSlot(slot),
	}
	i.prevNumber = number
	i.prevEpoch = epoch
	i.started = true

	txs := block.Transactions()
	rawTxs := make([][]byte, 0, len(txs))
	for _, tx := range txs {
		rawTxs = append(rawTxs, tx.Cbor())
	}

	// KES/VRF header validation: failures are per-block validation
	// results, not pipeline errors; the chain already accepted the block
	if i.validator != nil {
		if header, err := validate.ExtractHeaderInfo(info, blockCbor); err != nil {
			if !errors.Is(err, validate.ErrUnsupportedHeaderEra) {
				i.logger.Error("header extraction failed",
					slog.Uint64("number", number),
					slog.String("error", err.Error()),
				)
			}
		} else if err := i.validator.Validate(header); err != nil {
			i.headerFailures.Inc()
			i.logger.Error("header validation failed",
				slog.Uint64("number", number),
				slog.String("error", err.Error()),
			)
		}
	}

	i.logger.Debug("block ingested",
		slog.Uint64("number", number),
		slog.Uint64("slot", slot),
		slog.String("era", era.String()),
		slog.Int("txs", len(rawTxs)),
	)
	i.blocksProcessed.Inc()

	return i.bus.Publish(ctx, types.TopicTxs, types.ReceivedTxsMessage{
		Block:     info,
		BlockCbor: blockCbor,
		Txs:       rawTxs,
	})
}

// RollBackward marks the next RollForward as the first block of a new
// fork. Rollback travels in-band: the next block event carries
// BlockStatusRolledBack and its number tells every module how far to roll
// back.
func (i *Ingester) RollBackward(point types.Point) {
	i.logger.Info("rollback", slog.String("point", point.String()))
	i.rollbacks.Inc()
	i.rolledBack = true
}
