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

package unpack

import (
	"fmt"

	"github.com/blinklabs-io/chainindex/address"
	"github.com/blinklabs-io/chainindex/types"
	"github.com/blinklabs-io/gouroboros/cbor"
	"github.com/blinklabs-io/gouroboros/ledger"
	lcommon "github.com/blinklabs-io/gouroboros/ledger/common"
	"github.com/blinklabs-io/gouroboros/ledger/conway"
)

func ptrUintToUint64(p *uint) *uint64 {
	if p == nil {
		return nil
	}
	v := uint64(*p)
	return &v
}

func ptrUintToLovelace(p *uint) *types.Lovelace {
	if p == nil {
		return nil
	}
	v := types.Lovelace(*p)
	return &v
}

func ptrUint64ToLovelace(p *uint64) *types.Lovelace {
	if p == nil {
		return nil
	}
	v := types.Lovelace(*p)
	return &v
}

// txTypeFor maps our era tag to the gouroboros transaction type used for
// CBOR decoding
func txTypeFor(era types.Era) uint {
	return uint(era)
}

// mapTransaction decodes one raw transaction and maps it to the
// canonical record. Decode failures are recorded on the returned record
// rather than aborting the block.
func mapTransaction(
	raw []byte,
	id types.TxIdentifier,
	era types.Era,
	network address.Network,
) *types.Transaction {
	out := &types.Transaction{
		ID:      id,
		IsValid: true,
	}

	tx, err := ledger.NewTransactionFromCbor(txTypeFor(era), raw)
	if err != nil {
		out.Err = fmt.Errorf("decode %s transaction: %w", era, err)
		return out
	}

	out.Hash = tx.Hash()
	out.IsValid = tx.IsValid()
	if fee := tx.Fee(); fee != nil {
		out.Fee = fee.Uint64()
	}

	for _, input := range tx.Inputs() {
		out.Consumes = append(out.Consumes, types.UTxOIdentifier{
			TxHash: input.Id(),
			Index:  input.Index(),
		})
	}
	for _, input := range tx.ReferenceInputs() {
		out.ReferenceInputs = append(out.ReferenceInputs, types.UTxOIdentifier{
			TxHash: input.Id(),
			Index:  input.Index(),
		})
	}
	for _, input := range tx.Collateral() {
		out.Collateral = append(out.Collateral, types.UTxOIdentifier{
			TxHash: input.Id(),
			Index:  input.Index(),
		})
	}

	for idx, output := range tx.Outputs() {
		mapped, err := mapOutput(out.Hash, uint32(idx), output)
		if err != nil {
			out.Err = err
			continue
		}
		out.Produces = append(out.Produces, mapped)
	}

	for certIndex, cert := range tx.Certificates() {
		mapped, err := mapCertificate(cert, network)
		if err != nil {
			out.Err = err
			continue
		}
		out.Certs = append(out.Certs, types.TxCertificateWithPos{
			Cert:      mapped,
			TxID:      id,
			CertIndex: uint32(certIndex),
		})
	}

	for addr, amount := range tx.Withdrawals() {
		if addr == nil || amount == nil {
			continue
		}
		stakeAddr, err := mapStakeAddress(*addr)
		if err != nil {
			out.Err = err
			continue
		}
		out.Withdrawals = append(out.Withdrawals, types.Withdrawal{
			Address: stakeAddr,
			Value:   amount.Uint64(),
		})
	}

	if mint := tx.AssetMint(); mint != nil {
		for _, policy := range mint.Policies() {
			deltas := types.PolicyAssetDeltas{Policy: policy}
			for _, name := range mint.Assets(policy) {
				deltas.Deltas = append(deltas.Deltas, types.AssetDelta{
					Name:  name,
					Delta: mint.Asset(policy, name).Int64(),
				})
			}
			out.MintBurnDeltas = append(out.MintBurnDeltas, deltas)
		}
	}

	out.RequiredSigners = tx.RequiredSigners()

	if epoch, updates := tx.ProtocolParameterUpdates(); len(updates) > 0 {
		proposal := &types.ProposalUpdate{
			Epoch:   epoch,
			Updates: make(map[lcommon.Blake2b224]types.ProtocolParamUpdate),
		}
		for genesisHash, update := range updates {
			proposal.Updates[genesisHash] = mapParamUpdate(update)
		}
		out.ProposalUpdate = proposal
	}

	mapGovernance(out, tx, network)
	mapWitnesses(out, tx)

	return out
}

func mapOutput(
	txHash lcommon.Blake2b256,
	index uint32,
	output lcommon.TransactionOutput,
) (types.TxOutput, error) {
	addrBytes, err := output.Address().Bytes()
	if err != nil {
		return types.TxOutput{}, fmt.Errorf("output address: %w", err)
	}
	addr, err := address.FromBytes(addrBytes)
	if err != nil {
		return types.TxOutput{}, fmt.Errorf("output address: %w", err)
	}
	mapped := types.TxOutput{
		ID: types.UTxOIdentifier{
			TxHash: txHash,
			Index:  index,
		},
		Address:   addr,
		DatumHash: output.DatumHash(),
	}
	if amount := output.Amount(); amount != nil {
		mapped.Value = amount.Uint64()
	}
	if assets := output.Assets(); assets != nil {
		for _, policy := range assets.Policies() {
			deltas := types.PolicyAssetDeltas{Policy: policy}
			for _, name := range assets.Assets(policy) {
				amount := assets.Asset(policy, name)
				deltas.Deltas = append(deltas.Deltas, types.AssetDelta{
					Name:  name,
					Delta: amount.Int64(),
				})
			}
			mapped.Assets = append(mapped.Assets, deltas)
		}
	}
	return mapped, nil
}

func mapStakeAddress(addr lcommon.Address) (address.StakeAddress, error) {
	raw, err := addr.Bytes()
	if err != nil {
		return address.StakeAddress{}, fmt.Errorf("stake address: %w", err)
	}
	return address.StakeAddressFromBytes(raw)
}

func mapCredential(cred lcommon.Credential) types.Credential {
	kind := address.KeyCredential
	if cred.CredType == uint(lcommon.CredentialTypeScriptHash) {
		kind = address.ScriptCredential
	}
	return types.Credential{Kind: kind, Hash: cred.Credential}
}

func mapDrep(drep lcommon.Drep) types.DRep {
	out := types.DRep{}
	switch drep.Type {
	case lcommon.DrepTypeAddrKeyHash:
		out.Kind = types.DRepKey
	case lcommon.DrepTypeScriptHash:
		out.Kind = types.DRepScript
	case lcommon.DrepTypeAbstain:
		out.Kind = types.DRepAbstain
	case lcommon.DrepTypeNoConfidence:
		out.Kind = types.DRepNoConfidence
	}
	if len(drep.Credential) > 0 {
		out.Credential = lcommon.NewBlake2b224(drep.Credential)
	}
	return out
}

func mapAnchor(anchor *lcommon.GovAnchor) *types.GovAnchor {
	if anchor == nil {
		return nil
	}
	return &types.GovAnchor{
		URL:      anchor.Url,
		DataHash: lcommon.Blake2b256(anchor.DataHash),
	}
}

func mapRatio(rat cbor.Rat) types.Ratio {
	if rat.Rat == nil {
		return types.RatioZero
	}
	return types.Ratio{
		Num: rat.Num().Uint64(),
		Den: rat.Denom().Uint64(),
	}
}

func mapCertificate(
	cert lcommon.Certificate,
	network address.Network,
) (types.TxCertificate, error) {
	switch c := cert.(type) {
	case *lcommon.StakeRegistrationCertificate:
		return types.StakeRegistration{
			Credential: mapCredential(c.StakeCredential),
		}, nil
	case *lcommon.StakeDeregistrationCertificate:
		return types.StakeDeregistration{
			Credential: mapCredential(c.StakeCredential),
		}, nil
	case *lcommon.StakeDelegationCertificate:
		return types.StakeDelegation{
			Credential: mapCredential(*c.StakeCredential),
			PoolID:     c.PoolKeyHash,
		}, nil
	case *lcommon.PoolRegistrationCertificate:
		return mapPoolRegistration(c, network), nil
	case *lcommon.PoolRetirementCertificate:
		return types.PoolRetirement{
			Operator: c.PoolKeyHash,
			Epoch:    c.Epoch,
		}, nil
	case *lcommon.GenesisKeyDelegationCertificate:
		return types.GenesisKeyDelegation{
			GenesisHash:         lcommon.NewBlake2b224(c.GenesisHash),
			GenesisDelegateHash: lcommon.NewBlake2b224(c.GenesisDelegateHash),
			VrfKeyHash:          c.VrfKeyHash,
		}, nil
	case *lcommon.RegistrationCertificate:
		return types.Registration{
			Credential: mapCredential(c.StakeCredential),
			Deposit:    uint64(c.Amount),
		}, nil
	case *lcommon.DeregistrationCertificate:
		return types.Deregistration{
			Credential: mapCredential(c.StakeCredential),
			Deposit:    uint64(c.Amount),
		}, nil
	case *lcommon.VoteDelegationCertificate:
		return types.VoteDelegation{
			Credential: mapCredential(c.StakeCredential),
			DRep:       mapDrep(c.Drep),
		}, nil
	case *lcommon.StakeVoteDelegationCertificate:
		return types.StakeAndVoteDelegation{
			Credential: mapCredential(c.StakeCredential),
			PoolID:     c.PoolKeyHash,
			DRep:       mapDrep(c.Drep),
		}, nil
	case *lcommon.StakeRegistrationDelegationCertificate:
		return types.StakeRegistrationAndDelegation{
			Credential: mapCredential(c.StakeCredential),
			PoolID:     c.PoolKeyHash,
			Deposit:    uint64(c.Amount),
		}, nil
	case *lcommon.VoteRegistrationDelegationCertificate:
		return types.StakeRegistrationAndVoteDelegation{
			Credential: mapCredential(c.StakeCredential),
			DRep:       mapDrep(c.Drep),
			Deposit:    uint64(c.Amount),
		}, nil
	case *lcommon.StakeVoteRegistrationDelegationCertificate:
		return types.StakeRegistrationAndStakeAndVoteDelegation{
			Credential: mapCredential(c.StakeCredential),
			PoolID:     c.PoolKeyHash,
			DRep:       mapDrep(c.Drep),
			Deposit:    uint64(c.Amount),
		}, nil
	case *lcommon.AuthCommitteeHotCertificate:
		return types.AuthCommitteeHot{
			ColdCredential: mapCredential(c.ColdCredential),
			HotCredential:  mapCredential(c.HotCredential),
		}, nil
	case *lcommon.ResignCommitteeColdCertificate:
		return types.ResignCommitteeCold{
			ColdCredential: mapCredential(c.ColdCredential),
			Anchor:         mapAnchor(c.Anchor),
		}, nil
	case *lcommon.RegistrationDrepCertificate:
		return types.DRepRegistration{
			Credential: mapCredential(c.DrepCredential),
			Deposit:    uint64(c.Amount),
			Anchor:     mapAnchor(c.Anchor),
		}, nil
	case *lcommon.DeregistrationDrepCertificate:
		return types.DRepDeregistration{
			Credential: mapCredential(c.DrepCredential),
			Deposit:    uint64(c.Amount),
		}, nil
	case *lcommon.UpdateDrepCertificate:
		return types.DRepUpdate{
			Credential: mapCredential(c.DrepCredential),
			Anchor:     mapAnchor(c.Anchor),
		}, nil
	case *lcommon.MoveInstantaneousRewardsCertificate:
		return mapMirCertificate(c)
	}
	return nil, fmt.Errorf("unhandled certificate type %d", cert.Type())
}

// mapPoolRegistration maps a pool registration certificate. The
// RewardAccount on the wire is a full reward address; one mainnet pool at
// epoch 208 registered a testnet reward account, which the node forced to
// the pool's own network, so the reward account always takes the
// indexer's configured network rather than the network bit on the wire.
func mapPoolRegistration(
	c *lcommon.PoolRegistrationCertificate,
	network address.Network,
) types.PoolRegistration {
	out := types.PoolRegistration{
		Operator:   c.Operator,
		VrfKeyHash: lcommon.Blake2b256(c.VrfKeyHash),
		Pledge:     c.Pledge,
		Cost:       c.Cost,
		Margin:     mapRatio(c.Margin),
		RewardAccount: address.StakeAddress{
			Network: network,
			Credential: address.StakeCredential{
				Kind: address.KeyCredential,
				Hash: c.RewardAccount,
			},
		},
		PoolOwners: c.PoolOwners,
	}
	for _, relay := range c.Relays {
		out.Relays = append(out.Relays, mapRelay(relay))
	}
	if c.PoolMetadata != nil {
		out.Metadata = &types.PoolMetadata{
			URL:  c.PoolMetadata.Url,
			Hash: lcommon.Blake2b256(c.PoolMetadata.Hash),
		}
	}
	return out
}

func mapRelay(relay lcommon.PoolRelay) types.Relay {
	out := types.Relay{
		Port: relay.Port,
	}
	if relay.Ipv4 != nil {
		out.IPv4 = *relay.Ipv4
	}
	if relay.Ipv6 != nil {
		out.IPv6 = *relay.Ipv6
	}
	if relay.Hostname != nil {
		out.Hostname = *relay.Hostname
	}
	return out
}

func mapMirCertificate(
	c *lcommon.MoveInstantaneousRewardsCertificate,
) (types.TxCertificate, error) {
	out := types.MoveInstantaneousReward{
		Source:  types.InstantaneousRewardSource(c.Reward.Source),
		Rewards: make(map[types.Credential]int64),
	}
	for cred, amount := range c.Reward.Rewards {
		if cred == nil {
			continue
		}
		out.Rewards[mapCredential(*cred)] = int64(amount)
	}
	if c.Reward.OtherPot > 0 {
		otherPot := c.Reward.OtherPot
		out.OtherPot = &otherPot
	}
	return out, nil
}

func mapGovernance(
	out *types.Transaction,
	tx lcommon.Transaction,
	network address.Network,
) {
	for procIndex, proc := range tx.ProposalProcedures() {
		mapped, err := mapProposalProcedure(
			proc,
			types.GovActionID{
				TransactionID: out.Hash,
				ActionIndex:   uint8(procIndex),
			},
			network,
		)
		if err != nil {
			out.Err = err
			continue
		}
		out.ProposalProcedures = append(out.ProposalProcedures, mapped)
	}

	votingProcs := tx.VotingProcedures()
	if votingProcs == nil {
		return
	}
	voteIndex := uint32(0)
	for voter, votes := range votingProcs {
		if voter == nil {
			continue
		}
		mapped := types.VoterVotes{
			Voter: types.Voter{
				Type: types.VoterType(voter.Type),
				Hash: voter.Hash,
			},
			Votes: make(map[types.GovActionID]types.VotingProcedure),
		}
		for actionId, proc := range votes {
			if actionId == nil {
				continue
			}
			mapped.Votes[types.GovActionID{
				TransactionID: lcommon.Blake2b256(actionId.TransactionId),
				ActionIndex:   uint8(actionId.GovActionIdx),
			}] = types.VotingProcedure{
				Vote:      types.Vote(proc.Vote),
				Anchor:    mapAnchor(proc.Anchor),
				VoteIndex: voteIndex,
			}
			voteIndex++
		}
		out.VotingProcedures = append(out.VotingProcedures, mapped)
	}
}

func mapGovActionID(id *lcommon.GovActionId) *types.GovActionID {
	if id == nil {
		return nil
	}
	return &types.GovActionID{
		TransactionID: lcommon.Blake2b256(id.TransactionId),
		ActionIndex:   uint8(id.GovActionIdx),
	}
}

func mapProposalProcedure(
	proc lcommon.ProposalProcedure,
	id types.GovActionID,
	network address.Network,
) (types.ProposalProcedure, error) {
	rewardBytes, err := proc.RewardAccount().Bytes()
	if err != nil {
		return types.ProposalProcedure{}, fmt.Errorf("reward account: %w", err)
	}
	rewardAccount, err := address.StakeAddressFromBytes(rewardBytes)
	if err != nil {
		return types.ProposalProcedure{}, fmt.Errorf("reward account: %w", err)
	}

	action, err := mapGovAction(proc.GovAction(), network)
	if err != nil {
		return types.ProposalProcedure{}, err
	}

	anchor := proc.Anchor()
	return types.ProposalProcedure{
		Deposit:       proc.Deposit(),
		RewardAccount: rewardAccount,
		GovActionID:   id,
		Action:        action,
		Anchor: types.GovAnchor{
			URL:      anchor.Url,
			DataHash: lcommon.Blake2b256(anchor.DataHash),
		},
	}, nil
}

func mapGovAction(
	action lcommon.GovAction,
	network address.Network,
) (types.GovernanceAction, error) {
	switch a := action.(type) {
	case *conway.ConwayParameterChangeGovAction:
		return types.ParameterChangeAction{
			PrevActionID: mapGovActionID(a.ActionId),
			Update:       mapConwayParamUpdate(&a.ParamUpdate),
			PolicyHash:   a.PolicyHash,
		}, nil
	case *lcommon.HardForkInitiationGovAction:
		return types.HardForkInitiationAction{
			PrevActionID: mapGovActionID(a.ActionId),
			ProtocolVersion: types.ProtocolVersion{
				Major: uint64(a.ProtocolVersion.Major),
				Minor: uint64(a.ProtocolVersion.Minor),
			},
		}, nil
	case *lcommon.TreasuryWithdrawalGovAction:
		out := types.TreasuryWithdrawalsAction{PolicyHash: a.PolicyHash}
		for addr, amount := range a.Withdrawals {
			if addr == nil {
				continue
			}
			stakeAddr, err := mapStakeAddress(*addr)
			if err != nil {
				return nil, err
			}
			out.Withdrawals = append(out.Withdrawals, types.TreasuryWithdrawal{
				Account: stakeAddr,
				Amount:  amount,
			})
		}
		return out, nil
	case *lcommon.NoConfidenceGovAction:
		return types.NoConfidenceAction{
			PrevActionID: mapGovActionID(a.ActionId),
		}, nil
	case *lcommon.UpdateCommitteeGovAction:
		out := types.UpdateCommitteeAction{
			PrevActionID: mapGovActionID(a.ActionId),
			Threshold:    mapRatio(a.Quorum),
		}
		for _, cred := range a.Credentials {
			out.Removed = append(out.Removed, mapCredential(cred))
		}
		for cred, expiry := range a.CredEpochs {
			if cred == nil {
				continue
			}
			out.Added = append(out.Added, types.CommitteeTerm{
				Credential: mapCredential(*cred),
				Expiry:     uint64(expiry),
			})
		}
		return out, nil
	case *lcommon.NewConstitutionGovAction:
		return types.NewConstitutionAction{
			PrevActionID: mapGovActionID(a.ActionId),
			Constitution: types.Constitution{
				Anchor: types.GovAnchor{
					URL:      a.Constitution.Anchor.Url,
					DataHash: lcommon.Blake2b256(a.Constitution.Anchor.DataHash),
				},
				ScriptHash: a.Constitution.ScriptHash,
			},
		}, nil
	case *lcommon.InfoGovAction:
		return types.InformationAction{}, nil
	}
	return nil, fmt.Errorf("unhandled governance action %T", action)
}

func mapWitnesses(out *types.Transaction, tx lcommon.Transaction) {
	witnesses := tx.Witnesses()
	if witnesses == nil {
		return
	}
	for _, vkey := range witnesses.Vkey() {
		out.VkeyWitnesses = append(out.VkeyWitnesses, types.VkeyWitness{
			VKey:      vkey.Vkey,
			Signature: vkey.Signature,
		})
	}
	for _, script := range witnesses.NativeScripts() {
		out.ScriptWitnesses = append(out.ScriptWitnesses, types.ScriptWitness{
			Kind:   types.ScriptNative,
			Script: script.Cbor(),
		})
	}
	for _, script := range witnesses.PlutusV1Scripts() {
		out.ScriptWitnesses = append(out.ScriptWitnesses, types.ScriptWitness{
			Kind:   types.ScriptPlutusV1,
			Script: script,
		})
	}
	for _, script := range witnesses.PlutusV2Scripts() {
		out.ScriptWitnesses = append(out.ScriptWitnesses, types.ScriptWitness{
			Kind:   types.ScriptPlutusV2,
			Script: script,
		})
	}
	for _, script := range witnesses.PlutusV3Scripts() {
		out.ScriptWitnesses = append(out.ScriptWitnesses, types.ScriptWitness{
			Kind:   types.ScriptPlutusV3,
			Script: script,
		})
	}
	for _, datum := range witnesses.PlutusData() {
		out.PlutusData = append(out.PlutusData, datum.Cbor())
	}
}

// mapParamUpdate maps a pre-Conway protocol parameter update
func mapParamUpdate(
	_ lcommon.ProtocolParameterUpdate,
) types.ProtocolParamUpdate {
	// Pre-Conway updates arrive as era-specific structs behind a common
	// interface; their fields are not mapped and the result is always an
	// empty update. Only the proposal's epoch and genesis-delegate keys
	// carry through, which drive witness requirements here.
	return types.ProtocolParamUpdate{}
}

// mapConwayParamUpdate maps a Conway governance parameter update to the
// canonical sparse overlay
func mapConwayParamUpdate(
	u *conway.ConwayProtocolParameterUpdate,
) types.ProtocolParamUpdate {
	out := types.ProtocolParamUpdate{
		MinFeeA:                ptrUintToUint64(u.MinFeeA),
		MinFeeB:                ptrUintToUint64(u.MinFeeB),
		MaxBlockBodySize:       ptrUintToUint64(u.MaxBlockBodySize),
		MaxTxSize:              ptrUintToUint64(u.MaxTxSize),
		MaxBlockHeaderSize:     ptrUintToUint64(u.MaxBlockHeaderSize),
		KeyDeposit:             ptrUintToLovelace(u.KeyDeposit),
		PoolDeposit:            ptrUintToLovelace(u.PoolDeposit),
		MaximumEpoch:           ptrUintToUint64(u.MaxEpoch),
		StakePoolTargetNum:     ptrUintToUint64(u.NOpt),
		MinPoolCost:            ptrUint64ToLovelace(u.MinPoolCost),
		CoinsPerUTxOByte:       ptrUint64ToLovelace(u.AdaPerUtxoByte),
		MaxValueSize:           ptrUintToUint64(u.MaxValueSize),
		CollateralPercentage:   ptrUintToUint64(u.CollateralPercentage),
		MaxCollateralInputs:    ptrUintToUint64(u.MaxCollateralInputs),
		CommitteeMinSize:       ptrUintToUint64(u.MinCommitteeSize),
		CommitteeMaxTermLength: u.CommitteeTermLimit,
		GovActionLifetime:      u.GovActionValidityPeriod,
		GovActionDeposit:       ptrUint64ToLovelace(u.GovActionDeposit),
		DRepDeposit:            ptrUint64ToLovelace(u.DRepDeposit),
		DRepActivity:           u.DRepInactivityPeriod,
	}
	if u.CostModels != nil {
		out.CostModels = u.CostModels
	}
	if u.A0 != nil {
		ratio := mapRatio(*u.A0)
		out.PoolPledgeInfluence = &ratio
	}
	if u.Rho != nil {
		ratio := mapRatio(*u.Rho)
		out.MonetaryExpansion = &ratio
	}
	if u.Tau != nil {
		ratio := mapRatio(*u.Tau)
		out.TreasuryGrowthRate = &ratio
	}
	if u.MinFeeRefScriptCostPerByte != nil {
		ratio := mapRatio(*u.MinFeeRefScriptCostPerByte)
		out.MinFeeRefScriptCostPerByte = &ratio
	}
	if u.ExecutionCosts != nil {
		prices := types.ExecutionPrices{}
		if u.ExecutionCosts.MemPrice != nil {
			prices.MemPrice = mapRatio(*u.ExecutionCosts.MemPrice)
		}
		if u.ExecutionCosts.StepPrice != nil {
			prices.StepPrice = mapRatio(*u.ExecutionCosts.StepPrice)
		}
		out.ExecutionPrices = &prices
	}
	if u.MaxTxExUnits != nil {
		out.MaxTxExUnits = &types.ExUnits{
			Mem:   uint64(u.MaxTxExUnits.Memory),
			Steps: uint64(u.MaxTxExUnits.Steps),
		}
	}
	if u.MaxBlockExUnits != nil {
		out.MaxBlockExUnits = &types.ExUnits{
			Mem:   uint64(u.MaxBlockExUnits.Memory),
			Steps: uint64(u.MaxBlockExUnits.Steps),
		}
	}
	if u.PoolVotingThresholds != nil {
		out.PoolVotingThresholds = &types.PoolVotingThresholds{
			MotionNoConfidence:    mapRatio(u.PoolVotingThresholds.MotionNoConfidence),
			CommitteeNormal:       mapRatio(u.PoolVotingThresholds.CommitteeNormal),
			CommitteeNoConfidence: mapRatio(u.PoolVotingThresholds.CommitteeNoConfidence),
			HardForkInitiation:    mapRatio(u.PoolVotingThresholds.HardForkInitiation),
			SecurityVotingThreshold: mapRatio(u.PoolVotingThresholds.PpSecurityGroup),
		}
	}
	if u.DRepVotingThresholds != nil {
		out.DRepVotingThresholds = &types.DRepVotingThresholds{
			MotionNoConfidence:    mapRatio(u.DRepVotingThresholds.MotionNoConfidence),
			CommitteeNormal:       mapRatio(u.DRepVotingThresholds.CommitteeNormal),
			CommitteeNoConfidence: mapRatio(u.DRepVotingThresholds.CommitteeNoConfidence),
			UpdateConstitution:    mapRatio(u.DRepVotingThresholds.UpdateToConstitution),
			HardForkInitiation:    mapRatio(u.DRepVotingThresholds.HardForkInitiation),
			PPNetworkGroup:        mapRatio(u.DRepVotingThresholds.PpNetworkGroup),
			PPEconomicGroup:       mapRatio(u.DRepVotingThresholds.PpEconomicGroup),
			PPTechnicalGroup:      mapRatio(u.DRepVotingThresholds.PpTechnicalGroup),
			PPGovernanceGroup:     mapRatio(u.DRepVotingThresholds.PpGovGroup),
			TreasuryWithdrawal:    mapRatio(u.DRepVotingThresholds.TreasuryWithdrawal),
		}
	}
	return out
}
