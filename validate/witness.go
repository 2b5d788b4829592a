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

// Package validate holds the phase-1 transaction checks and the block
// header validation orchestration. Validation failures are reported per
// transaction on a dedicated topic; they never halt the pipeline, since
// the chain has already accepted the block.
package validate

import (
	"fmt"

	"github.com/blinklabs-io/chainindex/address"
	"github.com/blinklabs-io/chainindex/types"
	lcommon "github.com/blinklabs-io/gouroboros/ledger/common"
)

// Phase1 performs the phase-1 checks that are decidable from the decoded
// record alone: the witness set must cover every key and script the
// transaction's certificates, withdrawals, update proposals, and required
// signers demand
func Phase1(
	tx *types.Transaction,
	genesisDelegs map[lcommon.Blake2b224]types.GenesisDeleg,
) error {
	vkeyNeeded, scriptNeeded := NeededWitnesses(tx)

	provided := make(map[lcommon.Blake2b224]bool)
	for _, hash := range tx.GetVkeyWitnessHashes() {
		provided[hash] = true
	}
	for _, needed := range vkeyNeeded {
		if provided[needed] {
			continue
		}
		// A genesis delegation maps the genesis key to its delegate; the
		// delegate signs on its behalf
		if deleg, ok := genesisDelegs[needed]; ok && provided[deleg.Delegate] {
			continue
		}
		return fmt.Errorf("missing vkey witness for %s", needed.String())
	}

	scriptsProvided := make(map[lcommon.Blake2b224]bool)
	for _, hash := range tx.GetScriptWitnessHashes() {
		scriptsProvided[hash] = true
	}
	for _, needed := range scriptNeeded {
		if scriptsProvided[needed] {
			continue
		}
		// Reference scripts satisfy the requirement without appearing in
		// the witness set; with reference inputs present we cannot rule
		// the script out
		if len(tx.ReferenceInputs) > 0 {
			continue
		}
		return fmt.Errorf("missing script witness for %s", needed.String())
	}

	for _, signer := range tx.RequiredSigners {
		if !provided[signer] {
			return fmt.Errorf("missing required signer %s", signer.String())
		}
	}

	return nil
}

// NeededWitnesses collects the key and script hashes a transaction's
// certificates, withdrawals, and update proposals require signatures for
func NeededWitnesses(
	tx *types.Transaction,
) (vkeys, scripts []lcommon.Blake2b224) {
	addCred := func(cred types.Credential) {
		if cred.Kind == address.ScriptCredential {
			scripts = append(scripts, cred.Hash)
		} else {
			vkeys = append(vkeys, cred.Hash)
		}
	}
	for _, cert := range tx.Certs {
		switch c := cert.Cert.(type) {
		case types.StakeDeregistration:
			addCred(c.Credential)
		case types.StakeDelegation:
			addCred(c.Credential)
		case types.PoolRegistration:
			vkeys = append(vkeys, c.Operator)
			vkeys = append(vkeys, c.PoolOwners...)
		case types.PoolRetirement:
			vkeys = append(vkeys, c.Operator)
		case types.GenesisKeyDelegation:
			vkeys = append(vkeys, c.GenesisHash)
		case types.Deregistration:
			addCred(c.Credential)
		case types.VoteDelegation:
			addCred(c.Credential)
		case types.StakeAndVoteDelegation:
			addCred(c.Credential)
		case types.StakeRegistrationAndDelegation:
			addCred(c.Credential)
		case types.StakeRegistrationAndVoteDelegation:
			addCred(c.Credential)
		case types.StakeRegistrationAndStakeAndVoteDelegation:
			addCred(c.Credential)
		case types.AuthCommitteeHot:
			addCred(c.ColdCredential)
		case types.ResignCommitteeCold:
			addCred(c.ColdCredential)
		case types.DRepRegistration:
			addCred(c.Credential)
		case types.DRepDeregistration:
			addCred(c.Credential)
		case types.DRepUpdate:
			addCred(c.Credential)
		}
	}
	for _, withdrawal := range tx.Withdrawals {
		cred := withdrawal.Address.Credential
		if cred.Kind == address.ScriptCredential {
			scripts = append(scripts, cred.Hash)
		} else {
			vkeys = append(vkeys, cred.Hash)
		}
	}
	if tx.ProposalUpdate != nil {
		for genesisHash := range tx.ProposalUpdate.Updates {
			vkeys = append(vkeys, genesisHash)
		}
	}
	return vkeys, scripts
}

// CheckBalance verifies the tx balance invariant: everything produced
// (outputs, fee, deposits, burned assets) equals everything consumed
// (inputs, refunds, withdrawals, minted assets). When the transaction is
// phase-2 invalid the collateral path applies on the consumed side.
func CheckBalance(
	tx *types.Transaction,
	resolve types.UTxOResolver,
	deposits types.Lovelace,
	refunds types.Lovelace,
) error {
	produced := tx.CalculateTotalProduced(deposits)
	consumed, err := tx.CalculateTotalConsumed(resolve, refunds)
	if err != nil {
		return err
	}
	if !produced.Equal(consumed) {
		return fmt.Errorf(
			"value not conserved: produced %d, consumed %d",
			produced.Coin, consumed.Coin,
		)
	}
	return nil
}
