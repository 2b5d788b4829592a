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
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/blinklabs-io/chainindex/bus"
	"github.com/blinklabs-io/chainindex/state"
	"github.com/blinklabs-io/chainindex/types"
)

// Query topics answered by this module
const (
	QueryProposals    = "query.governance.proposals"
	QueryActionStatus = "query.governance.action"
)

// chang and plomin are the Conway protocol major versions; governance
// runs in bootstrap (limited) mode during Chang
const (
	changMajorVersion  = 9
	plominMajorVersion = 10
)

// govState is the module's committed state
type govState struct {
	Voting *Voting
	// DReps tracks registered DRep credentials for the registration
	// counts behind proportional thresholds
	DReps map[types.Credential]bool

	drepStake map[types.Credential]types.Lovelace
	spoStake  map[types.PoolID]types.DelegatedStake
}

// Clone implements state.Cloneable
func (s *govState) Clone() *govState {
	out := &govState{
		Voting:    s.Voting.Clone(),
		DReps:     make(map[types.Credential]bool, len(s.DReps)),
		drepStake: s.drepStake,
		spoStake:  s.spoStake,
	}
	for cred := range s.DReps {
		out.DReps[cred] = true
	}
	return out
}

// Module is the governance state module
type Module struct {
	bus    *bus.Bus
	logger *slog.Logger

	procsSub     *bus.Subscription
	certsSub     *bus.Subscription
	drepStakeSub *bus.Subscription
	spoStakeSub  *bus.Subscription
	paramsSub    *bus.Subscription
	bootSub      *bus.Subscription

	mu      sync.RWMutex
	history *state.History[*govState]
}

// NewModule creates the governance module
func NewModule(b *bus.Bus, logger *slog.Logger) *Module {
	m := &Module{
		bus:          b,
		logger:       logger,
		history:      state.NewHistory[*govState]("governance"),
		procsSub:     b.Subscribe(types.TopicGovernanceProcedures),
		certsSub:     b.Subscribe(types.TopicCertificates),
		drepStakeSub: b.Subscribe(types.TopicDRepStake),
		spoStakeSub:  b.Subscribe(types.TopicSPOStake),
		paramsSub:    b.Subscribe(types.TopicProtocolParameters),
		bootSub:      b.Subscribe(types.TopicBootstrapped),
	}
	b.HandleRequests(QueryProposals, m.handleProposalsQuery)
	b.HandleRequests(QueryActionStatus, m.handleActionStatusQuery)
	return m
}

// Run processes governance procedures, finalizing voting at each epoch
// boundary before ingesting the boundary block's procedures
func (m *Module) Run(ctx context.Context) error {
	bootMsg, err := m.bootSub.Read(ctx)
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

	st := m.history.GetOrInitWith(func() *govState {
		return &govState{
			Voting: NewVoting(m.logger),
			DReps:  make(map[types.Credential]bool),
		}
	})
	if genesis.Values.ConwayGenesis != nil {
		st.Voting.UpdateParameters(genesis.Values.ConwayGenesis, true)
	}

	for {
		msg, err := m.procsSub.Read(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		procsMsg, ok := msg.(types.GovernanceProceduresMessage)
		if !ok {
			m.logger.Error("unexpected message on governance topic")
			continue
		}
		block := procsMsg.Block

		if block.Status == types.BlockStatusRolledBack {
			m.mu.Lock()
			st, err = m.history.GetRolledBackState(block.Number)
			m.mu.Unlock()
			if err != nil {
				panic(err.Error())
			}
		}

		// Certificates are read in lockstep to track DRep registrations
		certsRaw, err := m.certsSub.Read(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		certsMsg, ok := certsRaw.(types.TxCertificatesMessage)
		if !ok {
			m.logger.Error("unexpected message on certificates topic")
			continue
		}
		checkSync(block, certsMsg.Block)

		if block.NewEpoch {
			if err := m.handleEpochBoundary(ctx, st, block); err != nil {
				if errors.Is(err, io.EOF) {
					return nil
				}
				return err
			}
		}

		for _, cert := range certsMsg.Certificates {
			m.applyCertificate(st, cert.Cert)
		}

		for _, proposal := range procsMsg.ProposalProcedures {
			if err := st.Voting.InsertProposalProcedure(
				block.Epoch, proposal,
			); err != nil {
				// The chain accepted the block; log and drop
				m.logger.Error("proposal rejected",
					slog.Uint64("block", block.Number),
					slog.String("error", err.Error()),
				)
			}
		}
		for _, txVotes := range procsMsg.VotingProcedures {
			for _, voterVotes := range txVotes.Votes {
				st.Voting.InsertVotingProcedure(
					block.Epoch,
					voterVotes.Voter,
					txVotes.TxHash,
					voterVotes.Votes,
				)
			}
		}

		m.mu.Lock()
		m.history.Commit(block.Number, st)
		if block.NewEpoch {
			m.history.CommitEpoch(block.Epoch, st)
		}
		m.mu.Unlock()
		st = st.Clone()
	}
}

// handleEpochBoundary reads the stake distributions, finalizes voting
// with the parameters of the closing epoch, publishes the outcomes, then
// adopts the new epoch's parameters
func (m *Module) handleEpochBoundary(
	ctx context.Context,
	st *govState,
	block types.BlockInfo,
) error {
	drepRaw, err := m.drepStakeSub.Read(ctx)
	if err != nil {
		return err
	}
	drepMsg, ok := drepRaw.(types.DRepStakeDistributionMessage)
	if !ok {
		panic("unexpected message on drep stake topic")
	}
	checkSync(block, drepMsg.Block)
	st.drepStake = drepMsg.Stake

	spoRaw, err := m.spoStakeSub.Read(ctx)
	if err != nil {
		return err
	}
	spoMsg, ok := spoRaw.(types.SPOStakeDistributionMessage)
	if !ok {
		panic("unexpected message on spo stake topic")
	}
	checkSync(block, spoMsg.Block)
	st.spoStake = spoMsg.Stake

	regState := VotingRegistrationState{
		TotalSPOs:       uint64(len(spoMsg.Stake)),
		RegisteredSPOs:  uint64(len(spoMsg.Stake)),
		RegisteredDReps: uint64(len(st.DReps)),
	}
	if conway, err := st.Voting.ConwayParams(); err == nil {
		regState.CommitteeSize = uint64(len(conway.Committee.Members))
	}

	outcomes := st.Voting.Finalize(
		block.Epoch, regState, st.drepStake, st.spoStake,
	)
	if err := st.Voting.UpdateActionStatus(block.Epoch, outcomes); err != nil {
		panic(err.Error())
	}

	if err := m.bus.Publish(ctx, types.TopicGovernanceOutcomes,
		types.GovernanceOutcomesMessage{
			Block:    block,
			Outcomes: outcomes,
		},
	); err != nil {
		m.logger.Error("publish outcomes failed",
			slog.String("error", err.Error()))
	}

	// Adopt the parameters for the epoch that is opening
	paramsRaw, err := m.paramsSub.Read(ctx)
	if err != nil {
		return err
	}
	paramsMsg, ok := paramsRaw.(types.ProtocolParamsMessage)
	if !ok {
		panic("unexpected message on parameters topic")
	}
	checkSync(block, paramsMsg.Block)
	if conway := paramsMsg.Params.Conway; conway != nil {
		bootstrap := true
		if shelley := paramsMsg.Params.Shelley; shelley != nil {
			bootstrap = shelley.ProtocolVersion.Major < plominMajorVersion
		}
		st.Voting.UpdateParameters(conway, bootstrap)
	}
	return nil
}

func (m *Module) applyCertificate(st *govState, cert types.TxCertificate) {
	switch c := cert.(type) {
	case types.DRepRegistration:
		st.DReps[c.Credential] = true
	case types.DRepDeregistration:
		delete(st.DReps, c.Credential)
	}
}

func (m *Module) handleProposalsQuery(_ context.Context, _ any) (any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.history.Current()
	if !ok {
		return nil, errors.New("no state")
	}
	return st.Voting.Proposals(), nil
}

func (m *Module) handleActionStatusQuery(
	_ context.Context,
	req any,
) (any, error) {
	id, ok := req.(types.GovActionID)
	if !ok {
		return nil, errors.New("action status query expects a GovActionID")
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.history.Current()
	if !ok {
		return nil, errors.New("no state")
	}
	status, ok := st.Voting.Status(id)
	if !ok {
		return nil, errors.New("not found")
	}
	return *status.clone(), nil
}

func checkSync(expected, actual types.BlockInfo) {
	if expected.Number != actual.Number {
		panic(fmt.Sprintf(
			"governance: streams out of sync: expected block %d, got %d",
			expected.Number, actual.Number,
		))
	}
}
