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
	"github.com/blinklabs-io/chainindex/address"
	lcommon "github.com/blinklabs-io/gouroboros/ledger/common"
)

// Bus topics carrying the derived per-block streams
const (
	TopicTxs                  = "cardano.txs"
	TopicUTxODeltas           = "cardano.utxo.deltas"
	TopicCertificates         = "cardano.certificates"
	TopicWithdrawals          = "cardano.withdrawals"
	TopicAssetDeltas          = "cardano.asset.deltas"
	TopicGovernanceProcedures = "cardano.governance.procedures"
	TopicProtocolParameters   = "cardano.protocol.parameters"
	TopicStakeRewardDeltas    = "cardano.stake.reward.deltas"
	TopicDRepStake            = "cardano.drep.stake"
	TopicSPOStake             = "cardano.spo.stake"
	TopicGovernanceOutcomes   = "cardano.governance.outcomes"
	TopicBootstrapped         = "cardano.sequence.bootstrapped"
	TopicSnapshot             = "cardano.snapshot"
	TopicTxValidation         = "cardano.tx.validation"
)

// Message is any payload carried on the bus. Every payload carries a
// BlockInfo header so that subscribers can verify per-topic stream
// synchronisation by block number.
type Message interface {
	BlockHeader() BlockInfo
}

// ReceivedTxsMessage carries the raw transaction bodies of one block,
// plus the block's own bytes for consumers that persist it
type ReceivedTxsMessage struct {
	Block     BlockInfo
	BlockCbor []byte
	Txs       [][]byte
}

// BlockHeader implements Message
func (m ReceivedTxsMessage) BlockHeader() BlockInfo { return m.Block }

// TxUTxODeltas is the per-transaction UTxO projection published to the
// UTxO state module
type TxUTxODeltas struct {
	TxID                 TxIdentifier
	Consumes             []UTxOIdentifier
	Produces             []TxOutput
	Fee                  Lovelace
	IsValid              bool
	TotalWithdrawals     Lovelace
	CertIdentifiers      []TxCertificateIdentifier
	ValueMinted          Value
	ValueBurnt           Value
	VkeyHashesNeeded     []lcommon.Blake2b224
	ScriptHashesNeeded   []lcommon.Blake2b224
	VkeyHashesProvided   []lcommon.Blake2b224
	ScriptHashesProvided []lcommon.Blake2b224
}

// UTxODeltasMessage carries one block's UTxO deltas
type UTxODeltasMessage struct {
	Block  BlockInfo
	Deltas []TxUTxODeltas
}

// BlockHeader implements Message
func (m UTxODeltasMessage) BlockHeader() BlockInfo { return m.Block }

// TxCertificatesMessage carries one block's certificates flattened across
// transactions, in on-chain order
type TxCertificatesMessage struct {
	Block        BlockInfo
	Certificates []TxCertificateWithPos
}

// BlockHeader implements Message
func (m TxCertificatesMessage) BlockHeader() BlockInfo { return m.Block }

// WithdrawalsMessage carries one block's reward withdrawals
type WithdrawalsMessage struct {
	Block       BlockInfo
	Withdrawals []Withdrawal
}

// BlockHeader implements Message
func (m WithdrawalsMessage) BlockHeader() BlockInfo { return m.Block }

// TxAssetDeltas is one transaction's mint/burn deltas
type TxAssetDeltas struct {
	TxID   TxIdentifier
	Deltas NativeAssetsDelta
}

// AssetDeltasMessage carries one block's native asset deltas plus any
// CIP-25 metadatum bytes found in the block
type AssetDeltasMessage struct {
	Block                BlockInfo
	Deltas               []TxAssetDeltas
	CIP25MetadataUpdates [][]byte
}

// BlockHeader implements Message
func (m AssetDeltasMessage) BlockHeader() BlockInfo { return m.Block }

// TxVotes pairs the votes of one transaction with its hash
type TxVotes struct {
	TxHash lcommon.Blake2b256
	Votes  []VoterVotes
}

// GovernanceProceduresMessage carries one block's governance procedures
type GovernanceProceduresMessage struct {
	Block                BlockInfo
	ProposalProcedures   []ProposalProcedure
	VotingProcedures     []TxVotes
	AlonzoBabbageUpdates []ProposalUpdate
}

// BlockHeader implements Message
func (m GovernanceProceduresMessage) BlockHeader() BlockInfo { return m.Block }

// GovernanceOutcomesMessage carries the proposals terminated at an epoch
// boundary and the enactments due; published once per epoch boundary
type GovernanceOutcomesMessage struct {
	Block    BlockInfo
	Outcomes []GovernanceOutcome
}

// BlockHeader implements Message
func (m GovernanceOutcomesMessage) BlockHeader() BlockInfo { return m.Block }

// ProtocolParamsMessage carries the parameters in effect for the epoch
// the block opens
type ProtocolParamsMessage struct {
	Block  BlockInfo
	Params ProtocolParams
}

// BlockHeader implements Message
func (m ProtocolParamsMessage) BlockHeader() BlockInfo { return m.Block }

// RewardDeltasMessage carries the end-of-epoch reward distribution
type RewardDeltasMessage struct {
	Block   BlockInfo
	Epoch   uint64
	Rewards []RewardDetail
}

// BlockHeader implements Message
func (m RewardDeltasMessage) BlockHeader() BlockInfo { return m.Block }

// DRepStakeDistributionMessage is the periodic DRep stake snapshot used
// by the governance module for vote weighting
type DRepStakeDistributionMessage struct {
	Block BlockInfo
	Stake map[Credential]Lovelace
}

// BlockHeader implements Message
func (m DRepStakeDistributionMessage) BlockHeader() BlockInfo { return m.Block }

// SPOStakeDistributionMessage is the periodic SPO stake snapshot used by
// the governance module for vote weighting
type SPOStakeDistributionMessage struct {
	Block BlockInfo
	Stake map[PoolID]DelegatedStake
}

// BlockHeader implements Message
func (m SPOStakeDistributionMessage) BlockHeader() BlockInfo { return m.Block }

// GenesisValues are the bootstrap values every module may need before
// processing its first block
type GenesisValues struct {
	Network       address.Network
	GenesisDelegs map[lcommon.Blake2b224]GenesisDeleg
	ConwayGenesis *ConwayParams
	StartEpoch    uint64
	Pots          Pots
}

// GenesisCompleteMessage signals that bootstrap is finished; it is
// published exactly once and all modules block on it before processing
// blocks
type GenesisCompleteMessage struct {
	Block  BlockInfo
	Values GenesisValues
}

// BlockHeader implements Message
func (m GenesisCompleteMessage) BlockHeader() BlockInfo { return m.Block }

// SnapshotProgressMessage reports bootstrap progress markers
type SnapshotProgressMessage struct {
	Block   BlockInfo
	Section string
	Count   uint64
}

// BlockHeader implements Message
func (m SnapshotProgressMessage) BlockHeader() BlockInfo { return m.Block }

// TxValidationError is one per-transaction validation failure
type TxValidationError struct {
	TxID   TxIdentifier
	Reason string
}

// TxValidationMessage carries one block's phase-1 validation outcomes
type TxValidationMessage struct {
	Block  BlockInfo
	Errors []TxValidationError
}

// BlockHeader implements Message
func (m TxValidationMessage) BlockHeader() BlockInfo { return m.Block }
