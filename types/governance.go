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
)

// GovActionID identifies a governance action by the transaction that
// proposed it and the action's index within that transaction
type GovActionID struct {
	TransactionID lcommon.Blake2b256
	ActionIndex   uint8
}

// String returns the CIP-129 bech32 gov_action form
func (g GovActionID) String() string {
	data := append(g.TransactionID.Bytes(), g.ActionIndex)
	encoded, err := address.EncodeBech32(address.HrpGovAction, data)
	if err != nil {
		return fmt.Sprintf("%x#%d", g.TransactionID.Bytes(), g.ActionIndex)
	}
	return encoded
}

// GovAnchor is an off-chain metadata reference attached to governance
// items
type GovAnchor struct {
	URL      string
	DataHash lcommon.Blake2b256
}

// Vote is a single governance vote value
type Vote uint8

const (
	// VoteNo votes against the action
	VoteNo Vote = 0
	// VoteYes votes for the action
	VoteYes Vote = 1
	// VoteAbstain abstains
	VoteAbstain Vote = 2
)

// String returns the vote name
func (v Vote) String() string {
	switch v {
	case VoteNo:
		return "no"
	case VoteYes:
		return "yes"
	case VoteAbstain:
		return "abstain"
	}
	return fmt.Sprintf("unknown(%d)", uint8(v))
}

// VoterType enumerates the governance voting roles per CIP-1694
type VoterType uint8

const (
	// VoterCommitteeHotKey is a constitutional committee hot key hash
	VoterCommitteeHotKey VoterType = 0
	// VoterCommitteeHotScript is a constitutional committee hot script hash
	VoterCommitteeHotScript VoterType = 1
	// VoterDRepKey is a DRep key hash
	VoterDRepKey VoterType = 2
	// VoterDRepScript is a DRep script hash
	VoterDRepScript VoterType = 3
	// VoterStakePoolKey is a stake pool operator key hash
	VoterStakePoolKey VoterType = 4
)

// Voter is a governance voter credential
type Voter struct {
	Type VoterType
	Hash lcommon.Blake2b224
}

// String returns a readable voter identity
func (v Voter) String() string {
	return fmt.Sprintf("%d:%s", v.Type, v.Hash.String())
}

// VotingProcedure is one vote on one action
type VotingProcedure struct {
	Vote   Vote
	Anchor *GovAnchor
	// VoteIndex is the position of the vote within its transaction,
	// preserved for ordering queries
	VoteIndex uint32
}

// VoterVotes is all votes cast by a single voter in one transaction
type VoterVotes struct {
	Voter Voter
	Votes map[GovActionID]VotingProcedure
}

// TreasuryWithdrawal is one payment out of the treasury
type TreasuryWithdrawal struct {
	Account address.StakeAddress
	Amount  Lovelace
}

// GovernanceAction is the sum of Conway governance action variants
type GovernanceAction interface {
	isGovernanceAction()
	// PreviousActionID returns the ancestor action this one builds on,
	// if any
	PreviousActionID() *GovActionID
}

// ParameterChangeAction proposes a protocol parameter update
type ParameterChangeAction struct {
	PrevActionID *GovActionID
	Update       ProtocolParamUpdate
	PolicyHash   []byte
}

// HardForkInitiationAction proposes a protocol version bump
type HardForkInitiationAction struct {
	PrevActionID    *GovActionID
	ProtocolVersion ProtocolVersion
}

// TreasuryWithdrawalsAction proposes payments out of the treasury
type TreasuryWithdrawalsAction struct {
	Withdrawals []TreasuryWithdrawal
	PolicyHash  []byte
}

// NoConfidenceAction proposes a motion of no confidence in the committee
type NoConfidenceAction struct {
	PrevActionID *GovActionID
}

// CommitteeTerm is a proposed committee member and its expiry epoch
type CommitteeTerm struct {
	Credential Credential
	Expiry     uint64
}

// UpdateCommitteeAction proposes committee membership changes
type UpdateCommitteeAction struct {
	PrevActionID *GovActionID
	Removed      []Credential
	Added        []CommitteeTerm
	Threshold    Ratio
}

// NewConstitutionAction proposes a new constitution
type NewConstitutionAction struct {
	PrevActionID *GovActionID
	Constitution Constitution
}

// InformationAction carries no state change; it only expires
type InformationAction struct{}

func (ParameterChangeAction) isGovernanceAction()     {}
func (HardForkInitiationAction) isGovernanceAction()  {}
func (TreasuryWithdrawalsAction) isGovernanceAction() {}
func (NoConfidenceAction) isGovernanceAction()        {}
func (UpdateCommitteeAction) isGovernanceAction()     {}
func (NewConstitutionAction) isGovernanceAction()     {}
func (InformationAction) isGovernanceAction()         {}

// PreviousActionID implements GovernanceAction
func (a ParameterChangeAction) PreviousActionID() *GovActionID { return a.PrevActionID }

// PreviousActionID implements GovernanceAction
func (a HardForkInitiationAction) PreviousActionID() *GovActionID { return a.PrevActionID }

// PreviousActionID implements GovernanceAction
func (a TreasuryWithdrawalsAction) PreviousActionID() *GovActionID { return nil }

// PreviousActionID implements GovernanceAction
func (a NoConfidenceAction) PreviousActionID() *GovActionID { return a.PrevActionID }

// PreviousActionID implements GovernanceAction
func (a UpdateCommitteeAction) PreviousActionID() *GovActionID { return a.PrevActionID }

// PreviousActionID implements GovernanceAction
func (a NewConstitutionAction) PreviousActionID() *GovActionID { return a.PrevActionID }

// PreviousActionID implements GovernanceAction
func (a InformationAction) PreviousActionID() *GovActionID { return nil }

// ActionName returns the action variant name for logging and queries
func ActionName(action GovernanceAction) string {
	switch action.(type) {
	case ParameterChangeAction:
		return "ParameterChange"
	case HardForkInitiationAction:
		return "HardForkInitiation"
	case TreasuryWithdrawalsAction:
		return "TreasuryWithdrawals"
	case NoConfidenceAction:
		return "NoConfidence"
	case UpdateCommitteeAction:
		return "UpdateCommittee"
	case NewConstitutionAction:
		return "NewConstitution"
	case InformationAction:
		return "Information"
	}
	return "Unknown"
}

// ProposalProcedure is one governance action proposal
type ProposalProcedure struct {
	Deposit       Lovelace
	RewardAccount address.StakeAddress
	GovActionID   GovActionID
	Action        GovernanceAction
	Anchor        GovAnchor
}

// VotesCount is a tally (or threshold) per voting role. DRep and pool
// entries are stake-weighted; committee entries are head counts.
type VotesCount struct {
	Pool      uint64
	DRep      uint64
	Committee uint64
}

// Majorizes reports whether every role's tally meets the threshold
func (v VotesCount) Majorizes(threshold VotesCount) bool {
	return v.Pool >= threshold.Pool &&
		v.DRep >= threshold.DRep &&
		v.Committee >= threshold.Committee
}

// String renders the per-role counts
func (v VotesCount) String() string {
	return fmt.Sprintf(
		"pool=%d drep=%d committee=%d",
		v.Pool, v.DRep, v.Committee,
	)
}

// VotingOutcome is the result of tallying one proposal at an epoch
// boundary
type VotingOutcome struct {
	Procedure      ProposalProcedure
	VotesCast      VotesCount
	VotesThreshold VotesCount
	Accepted       bool
}

// EnactStateElem is the piece of enact-state an accepted action replaces
type EnactStateElem interface {
	isEnactStateElem()
}

// EnactParams carries an accepted parameter update
type EnactParams struct {
	Update ProtocolParamUpdate
}

// EnactProtVer carries an accepted hard fork version
type EnactProtVer struct {
	Version ProtocolVersion
}

// EnactConstitution carries an accepted constitution
type EnactConstitution struct {
	Constitution Constitution
}

// EnactCommittee carries accepted committee changes
type EnactCommittee struct {
	Removed   []Credential
	Added     []CommitteeTerm
	Threshold Ratio
}

// EnactNoConfidence clears the committee
type EnactNoConfidence struct{}

func (EnactParams) isEnactStateElem()       {}
func (EnactProtVer) isEnactStateElem()      {}
func (EnactConstitution) isEnactStateElem() {}
func (EnactCommittee) isEnactStateElem()    {}
func (EnactNoConfidence) isEnactStateElem() {}

// GovernanceOutcome is one terminated proposal and the action downstream
// modules must perform for it. Exactly one of Enact or Withdrawal is set
// for accepted actions with side effects; both are nil for expirations
// and Information actions.
type GovernanceOutcome struct {
	Voting     VotingOutcome
	Enact      EnactStateElem
	Withdrawal *TreasuryWithdrawalsAction
}

// DelegatedStake is a pool's stake broken down by how it is counted
type DelegatedStake struct {
	// Active is the stake in the go snapshot
	Active Lovelace
	// Live is the current stake including pending delegations
	Live Lovelace
}
