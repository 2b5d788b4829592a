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

	"github.com/blinklabs-io/chainindex/address"
	lcommon "github.com/blinklabs-io/gouroboros/ledger/common"
	utxorpc "github.com/utxorpc/go-codegen/utxorpc/v1alpha/cardano"
	"golang.org/x/crypto/blake2b"
)

// TxIdentifier is the compact block-relative identity of a transaction
type TxIdentifier struct {
	BlockNumber uint64
	TxIndex     uint16
}

// String renders the identifier as block#index
func (id TxIdentifier) String() string {
	return fmt.Sprintf("%d#%d", id.BlockNumber, id.TxIndex)
}

// UTxOIdentifier is the global identity of a transaction output
type UTxOIdentifier struct {
	TxHash lcommon.Blake2b256
	Index  uint32
}

// String renders the identifier as hash#index
func (u UTxOIdentifier) String() string {
	return fmt.Sprintf("%s#%d", u.TxHash.String(), u.Index)
}

// TxOutput is one produced output with its resolved address and value
type TxOutput struct {
	ID        UTxOIdentifier
	Address   address.Address
	Value     Lovelace
	Assets    NativeAssetsDelta
	DatumHash *lcommon.Blake2b256
	Datum     []byte
}

// UTxOValue returns the output's full value including native assets
func (o TxOutput) UTxOValue() Value {
	v := NewValue(o.Value)
	for _, policy := range o.Assets {
		for _, asset := range policy.Deltas {
			if asset.Delta > 0 {
				v.AddAsset(policy.Policy, asset.Name, uint64(asset.Delta))
			}
		}
	}
	return v
}

// Withdrawal is one reward account withdrawal
type Withdrawal struct {
	Address address.StakeAddress
	Value   Lovelace
}

// VkeyWitness is a verification key signature over the transaction body
type VkeyWitness struct {
	VKey      []byte
	Signature []byte
}

// KeyHash returns the blake2b-224 hash of the verification key
func (w VkeyWitness) KeyHash() lcommon.Blake2b224 {
	hasher, err := blake2b.New(28, nil)
	if err != nil {
		return lcommon.Blake2b224{}
	}
	hasher.Write(w.VKey)
	return lcommon.NewBlake2b224(hasher.Sum(nil))
}

// ScriptKind enumerates the witness script languages
type ScriptKind uint8

const (
	// ScriptNative is a pre-Alonzo native script
	ScriptNative ScriptKind = iota
	// ScriptPlutusV1 is a Plutus V1 script
	ScriptPlutusV1
	// ScriptPlutusV2 is a Plutus V2 script
	ScriptPlutusV2
	// ScriptPlutusV3 is a Plutus V3 script
	ScriptPlutusV3
)

// ScriptWitness is a script carried in the witness set
type ScriptWitness struct {
	Kind   ScriptKind
	Script []byte
}

// Hash returns the script hash: blake2b-224 over a language tag byte
// followed by the script bytes
func (s ScriptWitness) Hash() lcommon.Blake2b224 {
	hasher, err := blake2b.New(28, nil)
	if err != nil {
		return lcommon.Blake2b224{}
	}
	hasher.Write([]byte{byte(s.Kind)})
	hasher.Write(s.Script)
	return lcommon.NewBlake2b224(hasher.Sum(nil))
}

// RedeemerTag identifies what a redeemer is spent for
type RedeemerTag uint8

const (
	// RedeemerTagSpend redeems a script input
	RedeemerTagSpend RedeemerTag = iota
	// RedeemerTagMint redeems a minting policy
	RedeemerTagMint
	// RedeemerTagCert redeems a script certificate
	RedeemerTagCert
	// RedeemerTagReward redeems a script withdrawal
	RedeemerTagReward
	// RedeemerTagVoting redeems a script vote
	RedeemerTagVoting
	// RedeemerTagProposing redeems a script proposal
	RedeemerTagProposing
)

// Redeemer is one Plutus redeemer with its execution budget
type Redeemer struct {
	Tag     RedeemerTag
	Index   uint32
	Data    []byte
	ExUnits ExUnits
}

// Transaction is the canonical decoded transaction record produced by the
// unpacker. It is the hinge between the wire format and every state
// module: all derived topics are projections of this record.
type Transaction struct {
	ID   TxIdentifier
	Hash lcommon.Blake2b256

	Consumes        []UTxOIdentifier
	Produces        []TxOutput
	ReferenceInputs []UTxOIdentifier
	Collateral      []UTxOIdentifier
	Fee             Lovelace
	IsValid         bool

	Certs           []TxCertificateWithPos
	Withdrawals     []Withdrawal
	MintBurnDeltas  NativeAssetsDelta
	RequiredSigners []lcommon.Blake2b224

	// ProposalUpdate is the pre-Conway protocol parameter update, if any
	ProposalUpdate *ProposalUpdate
	// VotingProcedures and ProposalProcedures are Conway governance
	VotingProcedures   []VoterVotes
	ProposalProcedures []ProposalProcedure

	VkeyWitnesses   []VkeyWitness
	ScriptWitnesses []ScriptWitness
	Redeemers       []Redeemer
	PlutusData      [][]byte

	// CIP25Metadata is the raw label-721 metadatum, if present
	CIP25Metadata []byte

	// Err records a recoverable decode failure; the rest of the record
	// holds whatever decoded cleanly
	Err error
}

// CalculateTxOutput sums the produced outputs into a single value
func (t *Transaction) CalculateTxOutput() Value {
	var total Value
	for _, output := range t.Produces {
		total.Add(output.UTxOValue())
	}
	return total
}

// GetVkeyWitnessHashes returns the key hashes provided by the witness set
func (t *Transaction) GetVkeyWitnessHashes() []lcommon.Blake2b224 {
	hashes := make([]lcommon.Blake2b224, 0, len(t.VkeyWitnesses))
	for _, w := range t.VkeyWitnesses {
		hashes = append(hashes, w.KeyHash())
	}
	return hashes
}

// GetScriptWitnessHashes returns the script hashes provided by the
// witness set
func (t *Transaction) GetScriptWitnessHashes() []lcommon.Blake2b224 {
	hashes := make([]lcommon.Blake2b224, 0, len(t.ScriptWitnesses))
	for _, s := range t.ScriptWitnesses {
		hashes = append(hashes, s.Hash())
	}
	return hashes
}

// GetMintedValue returns the positive mint deltas as a value
func (t *Transaction) GetMintedValue() Value {
	var v Value
	for _, policy := range t.MintBurnDeltas {
		for _, asset := range policy.Deltas {
			if asset.Delta > 0 {
				v.AddAsset(policy.Policy, asset.Name, uint64(asset.Delta))
			}
		}
	}
	return v
}

// GetBurntValue returns the negative mint deltas, negated, as a value
func (t *Transaction) GetBurntValue() Value {
	var v Value
	for _, policy := range t.MintBurnDeltas {
		for _, asset := range policy.Deltas {
			if asset.Delta < 0 {
				v.AddAsset(policy.Policy, asset.Name, uint64(-asset.Delta))
			}
		}
	}
	return v
}

// CalculateTotalWithdrawals sums the reward withdrawals
func (t *Transaction) CalculateTotalWithdrawals() Lovelace {
	var total Lovelace
	for _, w := range t.Withdrawals {
		total += w.Value
	}
	return total
}

// UTxOResolver resolves a consumed input to the value it was created with
type UTxOResolver func(UTxOIdentifier) (Value, error)

// CalculateTotalProduced returns everything the transaction creates or
// locks: outputs, the fee, deposits taken by certificates, and burned
// assets
func (t *Transaction) CalculateTotalProduced(deposits Lovelace) Value {
	total := t.CalculateTxOutput()
	total.Coin += t.Fee + deposits
	total.Add(t.GetBurntValue())
	return total
}

// CalculateTotalConsumed returns everything the transaction draws on:
// resolved input values, deposit refunds, withdrawals, and minted assets.
// When the transaction is phase-2 invalid the collateral inputs replace
// the regular inputs.
func (t *Transaction) CalculateTotalConsumed(
	resolve UTxOResolver,
	refunds Lovelace,
) (Value, error) {
	var total Value
	inputs := t.Consumes
	if !t.IsValid {
		inputs = t.Collateral
	}
	for _, input := range inputs {
		value, err := resolve(input)
		if err != nil {
			return Value{}, fmt.Errorf("resolve input %s: %w", input, err)
		}
		total.Add(value)
	}
	total.Coin += refunds + t.CalculateTotalWithdrawals()
	total.Add(t.GetMintedValue())
	return total, nil
}

// Utxorpc converts the canonical record to its utxorpc representation
// for external query consumers
func (t *Transaction) Utxorpc() *utxorpc.Tx {
	tx := &utxorpc.Tx{
		Hash: t.Hash.Bytes(),
		Fee:  lcommon.ToUtxorpcBigInt(t.Fee),
	}
	for _, input := range t.Consumes {
		tx.Inputs = append(tx.Inputs, &utxorpc.TxInput{
			TxHash:      input.TxHash.Bytes(),
			OutputIndex: input.Index,
		})
	}
	for _, output := range t.Produces {
		addrBytes, err := output.Address.Bytes()
		if err != nil {
			addrBytes = nil
		}
		tx.Outputs = append(tx.Outputs, &utxorpc.TxOutput{
			Address: addrBytes,
			Coin:    lcommon.ToUtxorpcBigInt(uint64(output.Value)),
		})
	}
	return tx
}
