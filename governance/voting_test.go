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

package governance

import (
	"bytes"
	"io"
	"log/slog"
	"testing"

	"github.com/blinklabs-io/chainindex/address"
	"github.com/blinklabs-io/chainindex/types"
	lcommon "github.com/blinklabs-io/gouroboros/ledger/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConwayParams() *types.ConwayParams {
	half := types.Ratio{Num: 51, Den: 100}
	return &types.ConwayParams{
		GovActionLifetime: 6,
		PoolVotingThresholds: types.PoolVotingThresholds{
			MotionNoConfidence:    half,
			CommitteeNormal:       half,
			CommitteeNoConfidence: half,
			HardForkInitiation:    half,
			SecurityVotingThreshold: half,
		},
		DRepVotingThresholds: types.DRepVotingThresholds{
			MotionNoConfidence:    half,
			CommitteeNormal:       half,
			CommitteeNoConfidence: half,
			UpdateConstitution:    half,
			HardForkInitiation:    half,
			PPNetworkGroup:        half,
			PPEconomicGroup:       half,
			PPTechnicalGroup:      half,
			PPGovernanceGroup:     half,
			TreasuryWithdrawal:    half,
		},
	}
}

func actionID(fill byte, index uint8) types.GovActionID {
	return types.GovActionID{
		TransactionID: lcommon.NewBlake2b256(bytes.Repeat([]byte{fill}, 32)),
		ActionIndex:   index,
	}
}

func proposal(
	id types.GovActionID,
	action types.GovernanceAction,
) types.ProposalProcedure {
	return types.ProposalProcedure{
		Deposit:     100_000_000,
		GovActionID: id,
		Action:      action,
	}
}

func voter(voterType types.VoterType, fill byte) types.Voter {
	return types.Voter{
		Type: voterType,
		Hash: lcommon.NewBlake2b224(bytes.Repeat([]byte{fill}, 28)),
	}
}

func regState() VotingRegistrationState {
	return VotingRegistrationState{
		TotalSPOs:       10,
		RegisteredSPOs:  10,
		RegisteredDReps: 10,
		CommitteeSize:   0,
	}
}

func TestInsertDuplicateProposal(t *testing.T) {
	voting := NewVoting(testLogger())
	voting.UpdateParameters(testConwayParams(), false)

	id := actionID(0xaa, 0)
	require.NoError(t, voting.InsertProposalProcedure(
		500, proposal(id, types.InformationAction{}),
	))
	err := voting.InsertProposalProcedure(
		500, proposal(id, types.InformationAction{}),
	)
	assert.Error(t, err)
}

func TestVoteForUnknownProposalDropped(t *testing.T) {
	voting := NewVoting(testLogger())
	voting.UpdateParameters(testConwayParams(), false)

	voting.InsertVotingProcedure(
		500,
		voter(types.VoterDRepKey, 0x01),
		lcommon.Blake2b256{},
		map[types.GovActionID]types.VotingProcedure{
			actionID(0xaa, 0): {Vote: types.VoteYes},
		},
	)
	// Nothing to assert beyond not panicking: the vote has no proposal
	// to attach to and is dropped
	assert.Empty(t, voting.Proposals())
}

func TestRevoteReplacesEarlierVote(t *testing.T) {
	voting := NewVoting(testLogger())
	voting.UpdateParameters(testConwayParams(), false)

	id := actionID(0xaa, 0)
	require.NoError(t, voting.InsertProposalProcedure(
		500, proposal(id, types.NoConfidenceAction{}),
	))
	drep := voter(types.VoterDRepKey, 0x01)
	voting.InsertVotingProcedure(500, drep, lcommon.Blake2b256{},
		map[types.GovActionID]types.VotingProcedure{
			id: {Vote: types.VoteYes},
		},
	)
	voting.InsertVotingProcedure(501, drep, lcommon.Blake2b256{},
		map[types.GovActionID]types.VotingProcedure{
			id: {Vote: types.VoteNo},
		},
	)

	// The later No vote wins; with no Yes votes the tally is empty
	drepStake := map[types.Credential]types.Lovelace{
		{Kind: address.KeyCredential, Hash: drep.Hash}: 1_000_000,
	}
	votes := voting.actualVotes(id, drepStake, nil)
	assert.Zero(t, votes.DRep)
}

// Governance lifecycle: a proposal with no votes expires at the end of
// its voting window and its expiration epoch is recorded
func TestLifecycleExpiration(t *testing.T) {
	voting := NewVoting(testLogger())
	voting.UpdateParameters(testConwayParams(), false)

	id := actionID(0xaa, 0)
	require.NoError(t, voting.InsertProposalProcedure(
		500, proposal(id, types.InformationAction{}),
	))

	// Voting runs through epoch 506; at 506 the proposal is still live
	outcomes := voting.Finalize(506, regState(), nil, nil)
	require.NoError(t, voting.UpdateActionStatus(506, outcomes))
	assert.Empty(t, outcomes)

	// At 507 the window has closed
	outcomes = voting.Finalize(507, regState(), nil, nil)
	require.NoError(t, voting.UpdateActionStatus(507, outcomes))
	require.Len(t, outcomes, 1)
	assert.False(t, outcomes[0].Voting.Accepted)
	assert.Nil(t, outcomes[0].Enact)

	status, ok := voting.Status(id)
	require.True(t, ok)
	require.NotNil(t, status.ExpirationEpoch)
	assert.Equal(t, uint64(507), *status.ExpirationEpoch)
	assert.Nil(t, status.RatificationEpoch)
	assert.Empty(t, voting.Proposals())
}

// Governance lifecycle: sufficient DRep and SPO Yes votes ratify a
// NoConfidence action; enactment is scheduled for the next epoch and the
// outcome carries the committee-clearing enact element
func TestLifecycleRatificationAndEnactment(t *testing.T) {
	voting := NewVoting(testLogger())
	voting.UpdateParameters(testConwayParams(), false)

	id := actionID(0xbb, 0)
	require.NoError(t, voting.InsertProposalProcedure(
		500, proposal(id, types.NoConfidenceAction{}),
	))

	drep := voter(types.VoterDRepKey, 0x01)
	spo := voter(types.VoterStakePoolKey, 0x02)
	voting.InsertVotingProcedure(501, drep, lcommon.Blake2b256{},
		map[types.GovActionID]types.VotingProcedure{
			id: {Vote: types.VoteYes},
		},
	)
	voting.InsertVotingProcedure(502, spo, lcommon.Blake2b256{},
		map[types.GovActionID]types.VotingProcedure{
			id: {Vote: types.VoteYes},
		},
	)

	drepStake := map[types.Credential]types.Lovelace{
		{Kind: address.KeyCredential, Hash: drep.Hash}: 1_000_000_000,
	}
	spoStake := map[types.PoolID]types.DelegatedStake{
		spo.Hash: {Live: 1_000_000_000},
	}

	outcomes := voting.Finalize(502, regState(), drepStake, spoStake)
	require.Len(t, outcomes, 1)
	require.NoError(t, voting.UpdateActionStatus(502, outcomes))
	assert.True(t, outcomes[0].Voting.Accepted)
	assert.IsType(t, types.EnactNoConfidence{}, outcomes[0].Enact)

	status, ok := voting.Status(id)
	require.True(t, ok)
	require.NotNil(t, status.RatificationEpoch)
	require.NotNil(t, status.EnactmentEpoch)
	assert.Equal(t, uint64(502), *status.RatificationEpoch)
	assert.Equal(t, uint64(503), *status.EnactmentEpoch)
	assert.Nil(t, status.ExpirationEpoch)
}

// Ratification never unsets: re-running the boundary check after
// ratification must not touch the recorded epochs
func TestRatificationMonotonicity(t *testing.T) {
	voting := NewVoting(testLogger())
	voting.UpdateParameters(testConwayParams(), false)

	id := actionID(0xcc, 0)
	require.NoError(t, voting.InsertProposalProcedure(
		500, proposal(id, types.NoConfidenceAction{}),
	))
	drep := voter(types.VoterDRepKey, 0x01)
	spo := voter(types.VoterStakePoolKey, 0x02)
	votesFor := map[types.GovActionID]types.VotingProcedure{
		id: {Vote: types.VoteYes},
	}
	voting.InsertVotingProcedure(501, drep, lcommon.Blake2b256{}, votesFor)
	voting.InsertVotingProcedure(501, spo, lcommon.Blake2b256{}, votesFor)

	drepStake := map[types.Credential]types.Lovelace{
		{Kind: address.KeyCredential, Hash: drep.Hash}: 1_000_000,
	}
	spoStake := map[types.PoolID]types.DelegatedStake{
		spo.Hash: {Live: 1_000_000},
	}
	outcomes := voting.Finalize(501, regState(), drepStake, spoStake)
	require.NoError(t, voting.UpdateActionStatus(501, outcomes))

	for epoch := uint64(502); epoch < 510; epoch++ {
		outcomes := voting.Finalize(epoch, regState(), drepStake, spoStake)
		require.NoError(t, voting.UpdateActionStatus(epoch, outcomes))
		status, ok := voting.Status(id)
		require.True(t, ok)
		assert.Equal(t, uint64(501), *status.RatificationEpoch)
		assert.Equal(t, uint64(502), *status.EnactmentEpoch)
	}
}

// An ancestor link to an unaccepted action blocks ratification
func TestAncestorLinkGatesAcceptance(t *testing.T) {
	voting := NewVoting(testLogger())
	voting.UpdateParameters(testConwayParams(), false)

	parent := actionID(0xdd, 0)
	child := actionID(0xee, 0)
	require.NoError(t, voting.InsertProposalProcedure(
		500, proposal(parent, types.NoConfidenceAction{}),
	))
	require.NoError(t, voting.InsertProposalProcedure(
		500, proposal(child, types.NoConfidenceAction{
			PrevActionID: &parent,
		}),
	))

	drep := voter(types.VoterDRepKey, 0x01)
	spo := voter(types.VoterStakePoolKey, 0x02)
	// Vote only for the child
	votesFor := map[types.GovActionID]types.VotingProcedure{
		child: {Vote: types.VoteYes},
	}
	voting.InsertVotingProcedure(501, drep, lcommon.Blake2b256{}, votesFor)
	voting.InsertVotingProcedure(501, spo, lcommon.Blake2b256{}, votesFor)

	drepStake := map[types.Credential]types.Lovelace{
		{Kind: address.KeyCredential, Hash: drep.Hash}: 1_000_000,
	}
	spoStake := map[types.PoolID]types.DelegatedStake{
		spo.Hash: {Live: 1_000_000},
	}
	outcomes := voting.Finalize(501, regState(), drepStake, spoStake)
	require.NoError(t, voting.UpdateActionStatus(501, outcomes))
	// The child met its thresholds but its parent is not accepted
	assert.Empty(t, outcomes)
}

// During the Chang bootstrap phase a NoConfidence action cannot ratify,
// only expire
func TestBootstrapPhaseBlocksNoConfidence(t *testing.T) {
	voting := NewVoting(testLogger())
	voting.UpdateParameters(testConwayParams(), true)

	id := actionID(0xaa, 1)
	require.NoError(t, voting.InsertProposalProcedure(
		500, proposal(id, types.NoConfidenceAction{}),
	))
	drep := voter(types.VoterDRepKey, 0x01)
	spo := voter(types.VoterStakePoolKey, 0x02)
	votesFor := map[types.GovActionID]types.VotingProcedure{
		id: {Vote: types.VoteYes},
	}
	voting.InsertVotingProcedure(501, drep, lcommon.Blake2b256{}, votesFor)
	voting.InsertVotingProcedure(501, spo, lcommon.Blake2b256{}, votesFor)

	drepStake := map[types.Credential]types.Lovelace{
		{Kind: address.KeyCredential, Hash: drep.Hash}: 1_000_000,
	}
	spoStake := map[types.PoolID]types.DelegatedStake{
		spo.Hash: {Live: 1_000_000},
	}
	outcomes := voting.Finalize(501, regState(), drepStake, spoStake)
	require.NoError(t, voting.UpdateActionStatus(501, outcomes))
	assert.Empty(t, outcomes)

	// It still expires at the end of its window
	outcomes = voting.Finalize(507, regState(), drepStake, spoStake)
	require.NoError(t, voting.UpdateActionStatus(507, outcomes))
	require.Len(t, outcomes, 1)
	assert.False(t, outcomes[0].Voting.Accepted)
}
