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

// Package governance maintains proposals and votes and runs the Conway
// ratification engine at epoch boundaries.
package governance

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/blinklabs-io/chainindex/address"
	"github.com/blinklabs-io/chainindex/types"
	lcommon "github.com/blinklabs-io/gouroboros/ledger/common"
)

// ErrNotRatifiable marks actions that cannot ratify: Information actions
// at any time, and several other kinds during the Conway bootstrap
// (Chang) phase
var ErrNotRatifiable = errors.New("governance: not ratifiable")

// ActionStatus tracks one proposal's lifecycle. Once RatificationEpoch is
// set it never unsets; EnactmentEpoch is always ratification + 1; exactly
// one of RatificationEpoch or ExpirationEpoch is eventually set.
type ActionStatus struct {
	// VotingStart..VotingEnd is the half-open epoch range votes are
	// accepted in
	VotingStart uint64
	VotingEnd   uint64

	RatificationEpoch *uint64
	EnactmentEpoch    *uint64
	ExpirationEpoch   *uint64
}

// NewActionStatus opens the voting window at the given epoch for
// lifetime+1 epochs
func NewActionStatus(epoch, lifetime uint64) *ActionStatus {
	return &ActionStatus{
		VotingStart: epoch,
		VotingEnd:   epoch + lifetime + 1,
	}
}

// IsActive reports whether votes are accepted at the given epoch
func (s *ActionStatus) IsActive(epoch uint64) bool {
	return epoch >= s.VotingStart && epoch < s.VotingEnd
}

// IsAccepted reports whether the action has been ratified
func (s *ActionStatus) IsAccepted() bool {
	return s.RatificationEpoch != nil
}

func (s *ActionStatus) clone() *ActionStatus {
	out := *s
	if s.RatificationEpoch != nil {
		v := *s.RatificationEpoch
		out.RatificationEpoch = &v
	}
	if s.EnactmentEpoch != nil {
		v := *s.EnactmentEpoch
		out.EnactmentEpoch = &v
	}
	if s.ExpirationEpoch != nil {
		v := *s.ExpirationEpoch
		out.ExpirationEpoch = &v
	}
	return &out
}

// VotingRegistrationState holds the head counts thresholds are taken
// against
type VotingRegistrationState struct {
	TotalSPOs       uint64
	RegisteredSPOs  uint64
	RegisteredDReps uint64
	CommitteeSize   uint64
}

type proposalEntry struct {
	epoch uint64
	proc  types.ProposalProcedure
}

type voteEntry struct {
	tx   lcommon.Blake2b256
	proc types.VotingProcedure
}

// Voting is the Conway ratification state machine
type Voting struct {
	logger *slog.Logger

	conway *types.ConwayParams
	// bootstrap is true during the Chang phase (protocol major 9), when
	// governance runs with limited semantics; Plomin (major 10) enables
	// the full rules
	bootstrap bool

	proposals map[types.GovActionID]proposalEntry
	votes     map[types.GovActionID]map[types.Voter]voteEntry
	status    map[types.GovActionID]*ActionStatus
}

// NewVoting creates an empty voting state
func NewVoting(logger *slog.Logger) *Voting {
	return &Voting{
		logger:    logger,
		proposals: make(map[types.GovActionID]proposalEntry),
		votes:     make(map[types.GovActionID]map[types.Voter]voteEntry),
		status:    make(map[types.GovActionID]*ActionStatus),
	}
}

// Clone implements state.Cloneable
func (v *Voting) Clone() *Voting {
	out := &Voting{
		logger:    v.logger,
		conway:    v.conway,
		bootstrap: v.bootstrap,
		proposals: make(map[types.GovActionID]proposalEntry, len(v.proposals)),
		votes:     make(map[types.GovActionID]map[types.Voter]voteEntry, len(v.votes)),
		status:    make(map[types.GovActionID]*ActionStatus, len(v.status)),
	}
	for id, entry := range v.proposals {
		out.proposals[id] = entry
	}
	for id, votes := range v.votes {
		copied := make(map[types.Voter]voteEntry, len(votes))
		for voter, vote := range votes {
			copied[voter] = vote
		}
		out.votes[id] = copied
	}
	for id, status := range v.status {
		out.status[id] = status.clone()
	}
	return out
}

// UpdateParameters installs the Conway parameters and the bootstrap flag.
// Pass bootstrap=true during the Chang phase and false from Plomin on.
func (v *Voting) UpdateParameters(conway *types.ConwayParams, bootstrap bool) {
	v.conway = conway
	v.bootstrap = bootstrap
}

// ConwayParams returns the installed parameters or an error before
// genesis
func (v *Voting) ConwayParams() (*types.ConwayParams, error) {
	if v.conway == nil {
		return nil, errors.New("governance: Conway parameters not available")
	}
	return v.conway, nil
}

// InsertProposalProcedure registers a new proposal; duplicates are an
// error, logged and dropped by the caller since the chain accepted the
// block
func (v *Voting) InsertProposalProcedure(
	epoch uint64,
	proc types.ProposalProcedure,
) error {
	conway, err := v.ConwayParams()
	if err != nil {
		return err
	}
	if _, exists := v.proposals[proc.GovActionID]; exists {
		return fmt.Errorf(
			"governance: proposal %s already exists",
			proc.GovActionID,
		)
	}
	v.proposals[proc.GovActionID] = proposalEntry{epoch: epoch, proc: proc}
	v.status[proc.GovActionID] = NewActionStatus(
		epoch,
		conway.GovActionLifetime,
	)
	return nil
}

// InsertVotingProcedure records one voter's votes from one transaction.
// Votes for unknown or inactive proposals are dropped; re-voting replaces
// the earlier vote.
func (v *Voting) InsertVotingProcedure(
	currentEpoch uint64,
	voter types.Voter,
	tx lcommon.Blake2b256,
	votes map[types.GovActionID]types.VotingProcedure,
) {
	for actionID, proc := range votes {
		status, ok := v.status[actionID]
		if !ok {
			v.logger.Error("vote for unregistered action, ignored",
				slog.String("voter", voter.String()),
				slog.String("action", actionID.String()),
			)
			continue
		}
		if !status.IsActive(currentEpoch) {
			v.logger.Error("vote for inactive action, ignored",
				slog.String("voter", voter.String()),
				slog.String("action", actionID.String()),
			)
			continue
		}
		actionVotes, ok := v.votes[actionID]
		if !ok {
			actionVotes = make(map[types.Voter]voteEntry)
			v.votes[actionID] = actionVotes
		}
		if prev, voted := actionVotes[voter]; voted {
			v.logger.Debug("re-vote replaces earlier vote",
				slog.String("voter", voter.String()),
				slog.String("action", actionID.String()),
				slog.String("previous_tx", prev.tx.String()),
			)
		}
		actionVotes[voter] = voteEntry{tx: tx, proc: proc}
	}
}

// Status returns a proposal's lifecycle status
func (v *Voting) Status(id types.GovActionID) (*ActionStatus, bool) {
	status, ok := v.status[id]
	return status, ok
}

// Proposals lists the live proposals
func (v *Voting) Proposals() []types.ProposalProcedure {
	out := make([]types.ProposalProcedure, 0, len(v.proposals))
	for _, entry := range v.proposals {
		out = append(out, entry.proc)
	}
	return out
}

// actualVotes tallies the Yes votes for an action: committee by head
// count, DReps and SPOs weighted by stake
func (v *Voting) actualVotes(
	actionID types.GovActionID,
	drepStake map[types.Credential]types.Lovelace,
	spoStake map[types.PoolID]types.DelegatedStake,
) types.VotesCount {
	var count types.VotesCount
	for voter, vote := range v.votes[actionID] {
		if vote.proc.Vote != types.VoteYes {
			continue
		}
		switch voter.Type {
		case types.VoterCommitteeHotKey, types.VoterCommitteeHotScript:
			count.Committee++
		case types.VoterDRepKey:
			count.DRep += drepStake[types.Credential{
				Kind: address.KeyCredential,
				Hash: voter.Hash,
			}]
		case types.VoterDRepScript:
			count.DRep += drepStake[types.Credential{
				Kind: address.ScriptCredential,
				Hash: voter.Hash,
			}]
		case types.VoterStakePoolKey:
			count.Pool += spoStake[voter.Hash].Live
		}
	}
	return count
}

// actionThresholds computes the per-role thresholds a proposal must meet
func (v *Voting) actionThresholds(
	proc types.ProposalProcedure,
	regState VotingRegistrationState,
) (types.VotesCount, error) {
	conway, err := v.ConwayParams()
	if err != nil {
		return types.VotesCount{}, err
	}
	pool := conway.PoolVotingThresholds
	drep := conway.DRepVotingThresholds
	committee := conway.Committee.Threshold

	proportional := func(p, d, c types.Ratio) types.VotesCount {
		return types.VotesCount{
			Pool:      p.ProportionOf(regState.RegisteredSPOs),
			DRep:      d.ProportionOf(regState.RegisteredDReps),
			Committee: c.ProportionOf(regState.CommitteeSize),
		}
	}
	full := func(p, d, c types.Ratio) types.VotesCount {
		return types.VotesCount{
			Pool:      p.ProportionOf(regState.TotalSPOs),
			DRep:      d.ProportionOf(regState.RegisteredDReps),
			Committee: c.ProportionOf(regState.CommitteeSize),
		}
	}

	switch action := proc.Action.(type) {
	case types.ParameterChangeAction:
		if v.bootstrap {
			// Chang phase: only the SPO security threshold applies
			return proportional(
				pool.SecurityVotingThreshold,
				types.RatioZero,
				committee,
			), nil
		}
		groups := action.Update.Groups()
		poolThreshold := types.RatioZero
		if groups.Contains(types.ParamGroupSecurity) {
			poolThreshold = pool.SecurityVotingThreshold
		}
		drepThreshold := types.RatioZero
		maxRatio := func(a, b types.Ratio) types.Ratio {
			if a.Cmp(b) >= 0 {
				return a
			}
			return b
		}
		if groups.Contains(types.ParamGroupEconomic) {
			drepThreshold = maxRatio(drepThreshold, drep.PPEconomicGroup)
		}
		if groups.Contains(types.ParamGroupNetwork) {
			drepThreshold = maxRatio(drepThreshold, drep.PPNetworkGroup)
		}
		if groups.Contains(types.ParamGroupTechnical) {
			drepThreshold = maxRatio(drepThreshold, drep.PPTechnicalGroup)
		}
		if groups.Contains(types.ParamGroupGovernance) {
			drepThreshold = maxRatio(drepThreshold, drep.PPGovernanceGroup)
		}
		return proportional(poolThreshold, drepThreshold, committee), nil
	case types.HardForkInitiationAction:
		return full(
			pool.HardForkInitiation,
			drep.HardForkInitiation,
			committee,
		), nil
	case types.TreasuryWithdrawalsAction:
		if v.bootstrap {
			return types.VotesCount{}, ErrNotRatifiable
		}
		return proportional(
			types.RatioZero,
			drep.TreasuryWithdrawal,
			committee,
		), nil
	case types.NoConfidenceAction:
		if v.bootstrap {
			return types.VotesCount{}, ErrNotRatifiable
		}
		return proportional(
			pool.MotionNoConfidence,
			drep.MotionNoConfidence,
			types.RatioZero,
		), nil
	case types.UpdateCommitteeAction:
		if v.bootstrap {
			return types.VotesCount{}, ErrNotRatifiable
		}
		if conway.Committee.IsEmpty() {
			return proportional(
				pool.CommitteeNoConfidence,
				drep.CommitteeNoConfidence,
				types.RatioZero,
			), nil
		}
		return proportional(
			pool.CommitteeNormal,
			drep.CommitteeNormal,
			types.RatioZero,
		), nil
	case types.NewConstitutionAction:
		if v.bootstrap {
			return types.VotesCount{}, ErrNotRatifiable
		}
		return proportional(
			types.RatioZero,
			drep.UpdateConstitution,
			committee,
		), nil
	case types.InformationAction:
		// Information never ratifies; it only expires
		return types.VotesCount{}, ErrNotRatifiable
	}
	return types.VotesCount{}, fmt.Errorf(
		"governance: unknown action type %T", proc.Action,
	)
}

// isFinallyAccepted decides whether a proposal has met its thresholds and
// its ancestor link is satisfied
func (v *Voting) isFinallyAccepted(
	actionID types.GovActionID,
	regState VotingRegistrationState,
	drepStake map[types.Credential]types.Lovelace,
	spoStake map[types.PoolID]types.DelegatedStake,
) (types.VotingOutcome, error) {
	entry, ok := v.proposals[actionID]
	if !ok {
		return types.VotingOutcome{}, fmt.Errorf(
			"governance: action %s not found", actionID,
		)
	}

	threshold, err := v.actionThresholds(entry.proc, regState)
	if errors.Is(err, ErrNotRatifiable) {
		return types.VotingOutcome{
			Procedure: entry.proc,
			Accepted:  false,
		}, nil
	}
	if err != nil {
		return types.VotingOutcome{}, err
	}

	votes := v.actualVotes(actionID, drepStake, spoStake)
	voted := votes.Majorizes(threshold)

	// The referenced ancestor must itself be accepted (or absent)
	previousOK := true
	if prev := entry.proc.Action.PreviousActionID(); prev != nil {
		status, ok := v.status[*prev]
		previousOK = ok && status.IsAccepted()
	}

	accepted := previousOK && voted
	v.logger.Info("proposal tallied",
		slog.String("action", actionID.String()),
		slog.String("votes", votes.String()),
		slog.String("threshold", threshold.String()),
		slog.Bool("previous_ok", previousOK),
		slog.Bool("accepted", accepted),
	)
	return types.VotingOutcome{
		Procedure:      entry.proc,
		VotesCast:      votes,
		VotesThreshold: threshold,
		Accepted:       accepted,
	}, nil
}

// isExpired reports whether an action's voting window has closed at the
// start of newEpoch
func (v *Voting) isExpired(
	newEpoch uint64,
	actionID types.GovActionID,
) (bool, error) {
	status, ok := v.status[actionID]
	if !ok {
		return false, fmt.Errorf(
			"governance: action status %s not found", actionID,
		)
	}
	return !status.IsActive(newEpoch), nil
}

func (v *Voting) endVoting(actionID types.GovActionID) {
	delete(v.votes, actionID)
	delete(v.proposals, actionID)
}

// packOutcome attaches the enactment payload for an accepted proposal
func packOutcome(outcome types.VotingOutcome) types.GovernanceOutcome {
	result := types.GovernanceOutcome{Voting: outcome}
	if !outcome.Accepted {
		return result
	}
	switch action := outcome.Procedure.Action.(type) {
	case types.ParameterChangeAction:
		result.Enact = types.EnactParams{Update: action.Update}
	case types.HardForkInitiationAction:
		result.Enact = types.EnactProtVer{Version: action.ProtocolVersion}
	case types.NewConstitutionAction:
		result.Enact = types.EnactConstitution{
			Constitution: action.Constitution,
		}
	case types.UpdateCommitteeAction:
		result.Enact = types.EnactCommittee{
			Removed:   action.Removed,
			Added:     action.Added,
			Threshold: action.Threshold,
		}
	case types.NoConfidenceAction:
		result.Enact = types.EnactNoConfidence{}
	case types.TreasuryWithdrawalsAction:
		withdrawal := action
		result.Withdrawal = &withdrawal
	}
	return result
}

// Finalize runs the epoch-boundary check over every live proposal:
// accepted and expired proposals terminate and produce outcomes
func (v *Voting) Finalize(
	newEpoch uint64,
	regState VotingRegistrationState,
	drepStake map[types.Credential]types.Lovelace,
	spoStake map[types.PoolID]types.DelegatedStake,
) []types.GovernanceOutcome {
	actionIDs := make([]types.GovActionID, 0, len(v.proposals))
	for id := range v.proposals {
		actionIDs = append(actionIDs, id)
	}

	var outcomes []types.GovernanceOutcome
	for _, actionID := range actionIDs {
		outcome, err := v.isFinallyAccepted(
			actionID, regState, drepStake, spoStake,
		)
		if err != nil {
			v.logger.Error("error processing proposal",
				slog.String("action", actionID.String()),
				slog.String("error", err.Error()),
			)
			continue
		}
		expired, err := v.isExpired(newEpoch, actionID)
		if err != nil {
			v.logger.Error("error checking expiry",
				slog.String("action", actionID.String()),
				slog.String("error", err.Error()),
			)
			continue
		}
		if !outcome.Accepted && !expired {
			continue
		}
		v.endVoting(actionID)
		outcomes = append(outcomes, packOutcome(outcome))
	}
	return outcomes
}

// UpdateActionStatus records ratification or expiration for the
// finalized outcomes. An unaccepted outcome for a still-active action is
// impossible and aborts.
func (v *Voting) UpdateActionStatus(
	epoch uint64,
	outcomes []types.GovernanceOutcome,
) error {
	for _, outcome := range outcomes {
		actionID := outcome.Voting.Procedure.GovActionID
		status, ok := v.status[actionID]
		if !ok {
			return fmt.Errorf(
				"governance: no action status for %s", actionID,
			)
		}
		if outcome.Voting.Accepted {
			ratification := epoch
			enactment := epoch + 1
			status.RatificationEpoch = &ratification
			status.EnactmentEpoch = &enactment
		} else {
			if status.IsActive(epoch) {
				panic(fmt.Sprintf(
					"governance: impossible outcome for %s: voting %d..%d not over at %d",
					actionID, status.VotingStart, status.VotingEnd, epoch,
				))
			}
			expiration := epoch
			status.ExpirationEpoch = &expiration
		}
	}
	return nil
}
