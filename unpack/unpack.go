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

// Package unpack is the era-polymorphic transaction decoder. It consumes
// the raw tx stream, produces the canonical Transaction record for each
// body, and fans the per-block batches out onto the derived topics that
// every state module subscribes to.
package unpack

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/blinklabs-io/chainindex/address"
	"github.com/blinklabs-io/chainindex/bus"
	"github.com/blinklabs-io/chainindex/state"
	"github.com/blinklabs-io/chainindex/types"
	"github.com/blinklabs-io/chainindex/validate"
	"github.com/blinklabs-io/gouroboros/cbor"
	"golang.org/x/sync/errgroup"
)

// cip25MetadataLabel is the transaction metadata label carrying CIP-25
// NFT metadata
const cip25MetadataLabel = 721

// Config selects which derived topics the unpacker publishes
type Config struct {
	Network             address.Network
	PublishUTxODeltas   bool
	PublishAssetDeltas  bool
	PublishWithdrawals  bool
	PublishCertificates bool
	PublishGovernance   bool
	PublishValidation   bool
}

// DefaultConfig enables every derived topic on mainnet
func DefaultConfig() Config {
	return Config{
		Network:             address.NetworkMainnet,
		PublishUTxODeltas:   true,
		PublishAssetDeltas:  true,
		PublishWithdrawals:  true,
		PublishCertificates: true,
		PublishGovernance:   true,
		PublishValidation:   true,
	}
}

// unpackerState is the unpacker's rollback-able state: the protocol
// parameter view used to decide which witnesses a transaction needs
type unpackerState struct {
	Params types.ProtocolParams
}

// Clone implements state.Cloneable
func (s *unpackerState) Clone() *unpackerState {
	return &unpackerState{Params: s.Params.Clone()}
}

// Unpacker is the transaction unpacker module
type Unpacker struct {
	cfg     Config
	bus     *bus.Bus
	logger  *slog.Logger
	history *state.History[*unpackerState]

	txsSub    *bus.Subscription
	paramsSub *bus.Subscription
	bootSub   *bus.Subscription
}

// New creates a transaction unpacker. Subscriptions attach here so that
// nothing published after construction is missed.
func New(b *bus.Bus, logger *slog.Logger, cfg Config) *Unpacker {
	return &Unpacker{
		cfg:       cfg,
		bus:       b,
		logger:    logger,
		history:   state.NewHistory[*unpackerState]("tx-unpacker"),
		txsSub:    b.Subscribe(types.TopicTxs),
		paramsSub: b.Subscribe(types.TopicProtocolParameters),
		bootSub:   b.Subscribe(types.TopicBootstrapped),
	}
}

// Run processes blocks until the bus closes or the context is cancelled. It blocks on the bootstrap message before touching any
// block.
func (u *Unpacker) Run(ctx context.Context) error {
	bootMsg, err := u.bootSub.Read(ctx)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return err
	}
	genesis, ok := bootMsg.(types.GenesisCompleteMessage)
	if !ok {
		panic("unexpected message on bootstrap topic")
	}

	for {
		msg, err := u.txsSub.Read(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		txsMsg, ok := msg.(types.ReceivedTxsMessage)
		if !ok {
			u.logger.Error("unexpected message on txs topic")
			continue
		}

		st := u.history.GetOrInitWith(func() *unpackerState {
			return &unpackerState{}
		})
		block := txsMsg.Block
		if block.Status == types.BlockStatusRolledBack {
			st, err = u.history.GetRolledBackState(block.Number)
			if err != nil {
				panic(err.Error())
			}
		}

		if err := u.handleBlock(ctx, st, block, txsMsg.Txs, genesis); err != nil {
			return err
		}

		if block.NewEpoch {
			paramsMsg, err := u.paramsSub.Read(ctx)
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return err
			}
			params, ok := paramsMsg.(types.ProtocolParamsMessage)
			if !ok {
				panic("unexpected message on parameters topic")
			}
			checkSync(block, params.Block)
			st.Params = params.Params
		}

		u.history.Commit(block.Number, st)
	}
}

// checkSync verifies two streams deliver the same block. Streams are
// synchronized by block number; divergence means the pipeline can no
// longer produce correct state for any subsequent block.
func checkSync(expected, actual types.BlockInfo) {
	if expected.Number != actual.Number {
		panic(fmt.Sprintf(
			"streams out of sync: expected block %d, got %d",
			expected.Number, actual.Number,
		))
	}
}

func (u *Unpacker) handleBlock(
	ctx context.Context,
	st *unpackerState,
	block types.BlockInfo,
	rawTxs [][]byte,
	genesis types.GenesisCompleteMessage,
) error {
	var (
		utxoDeltas     []types.TxUTxODeltas
		assetDeltas    []types.TxAssetDeltas
		cip25Updates   [][]byte
		withdrawals    []types.Withdrawal
		certificates   []types.TxCertificateWithPos
		proposals      []types.ProposalProcedure
		votes          []types.TxVotes
		paramProposals []types.ProposalUpdate
		validationErrs []types.TxValidationError
	)

	for txIndex, raw := range rawTxs {
		id := types.TxIdentifier{
			BlockNumber: block.Number,
			TxIndex:     uint16(txIndex),
		}
		tx := mapTransaction(raw, id, block.Era, u.cfg.Network)
		if tx.Err != nil {
			// Decode errors are tagged on the record and never abort the
			// block; the chain already accepted it
			u.logger.Error("tx decode error",
				slog.Uint64("block", block.Number),
				slog.Int("tx", txIndex),
				slog.String("error", tx.Err.Error()),
			)
		}
		tx.CIP25Metadata = extractCIP25(raw)

		if u.cfg.PublishUTxODeltas {
			vkeyNeeded, scriptNeeded := validate.NeededWitnesses(tx)
			certIds := make([]types.TxCertificateIdentifier, 0, len(tx.Certs))
			for _, cert := range tx.Certs {
				certIds = append(certIds, cert.Identifier())
			}
			// Phase-2 invalid transactions consume their collateral
			// instead of their declared inputs and produce nothing
			consumes, produces := tx.Consumes, tx.Produces
			if !tx.IsValid {
				consumes, produces = tx.Collateral, nil
			}
			utxoDeltas = append(utxoDeltas, types.TxUTxODeltas{
				TxID:                 id,
				Consumes:             consumes,
				Produces:             produces,
				Fee:                  tx.Fee,
				IsValid:              tx.IsValid,
				TotalWithdrawals:     tx.CalculateTotalWithdrawals(),
				CertIdentifiers:      certIds,
				ValueMinted:          tx.GetMintedValue(),
				ValueBurnt:           tx.GetBurntValue(),
				VkeyHashesNeeded:     vkeyNeeded,
				ScriptHashesNeeded:   scriptNeeded,
				VkeyHashesProvided:   tx.GetVkeyWitnessHashes(),
				ScriptHashesProvided: tx.GetScriptWitnessHashes(),
			})
		}

		if u.cfg.PublishAssetDeltas {
			if len(tx.MintBurnDeltas) > 0 {
				assetDeltas = append(assetDeltas, types.TxAssetDeltas{
					TxID:   id,
					Deltas: tx.MintBurnDeltas,
				})
			}
			if tx.CIP25Metadata != nil {
				cip25Updates = append(cip25Updates, tx.CIP25Metadata)
			}
		}

		if u.cfg.PublishCertificates {
			certificates = append(certificates, tx.Certs...)
		}
		if u.cfg.PublishWithdrawals {
			withdrawals = append(withdrawals, tx.Withdrawals...)
		}
		if u.cfg.PublishGovernance {
			proposals = append(proposals, tx.ProposalProcedures...)
			if len(tx.VotingProcedures) > 0 {
				votes = append(votes, types.TxVotes{
					TxHash: tx.Hash,
					Votes:  tx.VotingProcedures,
				})
			}
			if tx.ProposalUpdate != nil {
				paramProposals = append(paramProposals, *tx.ProposalUpdate)
			}
		}

		if u.cfg.PublishValidation && tx.Err == nil {
			if err := validate.Phase1(tx, genesis.Values.GenesisDelegs); err != nil {
				validationErrs = append(validationErrs, types.TxValidationError{
					TxID:   id,
					Reason: err.Error(),
				})
			}
		}
	}

	// Publish per-topic batches in parallel; a failed topic is logged
	// without holding up the others
	group, groupCtx := errgroup.WithContext(ctx)
	publish := func(topic string, msg types.Message) {
		group.Go(func() error {
			if err := u.bus.Publish(groupCtx, topic, msg); err != nil {
				u.logger.Error("publish failed",
					slog.String("topic", topic),
					slog.String("error", err.Error()),
				)
			}
			return nil
		})
	}

	if u.cfg.PublishUTxODeltas {
		publish(types.TopicUTxODeltas, types.UTxODeltasMessage{
			Block:  block,
			Deltas: utxoDeltas,
		})
	}
	if u.cfg.PublishAssetDeltas {
		publish(types.TopicAssetDeltas, types.AssetDeltasMessage{
			Block:                block,
			Deltas:               assetDeltas,
			CIP25MetadataUpdates: cip25Updates,
		})
	}
	if u.cfg.PublishWithdrawals {
		publish(types.TopicWithdrawals, types.WithdrawalsMessage{
			Block:       block,
			Withdrawals: withdrawals,
		})
	}
	if u.cfg.PublishCertificates {
		publish(types.TopicCertificates, types.TxCertificatesMessage{
			Block:        block,
			Certificates: certificates,
		})
	}
	if u.cfg.PublishGovernance {
		publish(types.TopicGovernanceProcedures, types.GovernanceProceduresMessage{
			Block:                block,
			ProposalProcedures:   proposals,
			VotingProcedures:     votes,
			AlonzoBabbageUpdates: paramProposals,
		})
	}
	if u.cfg.PublishValidation {
		publish(types.TopicTxValidation, types.TxValidationMessage{
			Block:  block,
			Errors: validationErrs,
		})
	}
	return group.Wait()
}

// extractCIP25 pulls the label-721 metadatum out of a raw transaction's
// auxiliary data, re-encoded standalone. Returns nil when absent or
// undecodable.
func extractCIP25(raw []byte) []byte {
	// The auxiliary data is the fourth element of the tx wrapper; rather
	// than tracking era-specific wrapper shapes we scan the generic
	// decode for a metadata map keyed by label
	var wrapper []cbor.RawMessage
	if _, err := cbor.Decode(raw, &wrapper); err != nil {
		return nil
	}
	for i := len(wrapper) - 1; i >= 2; i-- {
		var labels map[uint64]cbor.RawMessage
		if _, err := cbor.Decode(wrapper[i], &labels); err != nil {
			continue
		}
		if metadatum, ok := labels[cip25MetadataLabel]; ok {
			return []byte(metadatum)
		}
	}
	return nil
}
