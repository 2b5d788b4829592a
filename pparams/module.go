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

// Package pparams maintains the protocol parameter timeline: the
// parameters in effect per epoch, pending pre-Conway update proposals,
// and Conway enactments. It publishes the parameters topic once per
// epoch boundary; every other module re-syncs its view from that.
package pparams

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

// QueryParams is the query topic answering the current parameters
const QueryParams = "query.pparams"

// paramsState is the committed per-block state
type paramsState struct {
	Params types.ProtocolParams
	// PendingUpdates are pre-Conway update proposals awaiting their
	// target epoch
	PendingUpdates []types.ProposalUpdate
	// PendingEnactments are ratified Conway actions awaiting their
	// enactment epoch
	PendingEnactments []pendingEnactment
}

type pendingEnactment struct {
	EnactmentEpoch uint64
	Elem           types.EnactStateElem
}

// Clone implements state.Cloneable
func (s *paramsState) Clone() *paramsState {
	out := &paramsState{
		Params: s.Params.Clone(),
	}
	out.PendingUpdates = append(out.PendingUpdates, s.PendingUpdates...)
	out.PendingEnactments = append(
		out.PendingEnactments, s.PendingEnactments...,
	)
	return out
}

// Module is the protocol parameters state module
type Module struct {
	bus    *bus.Bus
	logger *slog.Logger

	procsSub    *bus.Subscription
	outcomesSub *bus.Subscription
	bootSub     *bus.Subscription

	mu      sync.RWMutex
	history *state.History[*paramsState]
	genesis types.ProtocolParams
}

// NewModule creates the parameters module
func NewModule(b *bus.Bus, logger *slog.Logger) *Module {
	m := &Module{
		bus:         b,
		logger:      logger,
		history:     state.NewHistory[*paramsState]("pparams"),
		procsSub:    b.Subscribe(types.TopicGovernanceProcedures),
		outcomesSub: b.Subscribe(types.TopicGovernanceOutcomes),
		bootSub:     b.Subscribe(types.TopicBootstrapped),
	}
	b.HandleRequests(QueryParams, m.handleParamsQuery)
	return m
}

// Seed installs the genesis (or snapshot) parameters before the first
// block is processed
func (m *Module) Seed(params types.ProtocolParams) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.genesis = params
}

// Run drives the parameters timeline off the governance procedures
// stream
func (m *Module) Run(ctx context.Context) error {
	if _, err := m.bootSub.Read(ctx); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
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

		m.mu.Lock()
		st := m.history.GetOrInitWith(func() *paramsState {
			return &paramsState{Params: m.genesis.Clone()}
		})
		if block.Status == types.BlockStatusRolledBack {
			st, err = m.history.GetRolledBackState(block.Number)
			if err != nil {
				m.mu.Unlock()
				panic(err.Error())
			}
		}
		m.mu.Unlock()

		if block.NewEpoch {
			m.applyDueChanges(st, block.Epoch)

			if err := m.bus.Publish(ctx, types.TopicProtocolParameters,
				types.ProtocolParamsMessage{
					Block:  block,
					Params: st.Params.Clone(),
				},
			); err != nil {
				m.logger.Error("publish parameters failed",
					slog.String("error", err.Error()))
			}

			// The governance module finalizes this boundary after our
			// publish; its outcomes enact at the next one
			outcomeRaw, err := m.outcomesSub.Read(ctx)
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return err
			}
			outcomes, ok := outcomeRaw.(types.GovernanceOutcomesMessage)
			if !ok {
				panic("unexpected message on outcomes topic")
			}
			checkSync(block, outcomes.Block)
			for _, outcome := range outcomes.Outcomes {
				if outcome.Enact == nil {
					continue
				}
				st.PendingEnactments = append(st.PendingEnactments,
					pendingEnactment{
						EnactmentEpoch: block.Epoch + 1,
						Elem:           outcome.Enact,
					},
				)
			}
		}

		// Collect pre-Conway update proposals for their target epochs
		st.PendingUpdates = append(
			st.PendingUpdates, procsMsg.AlonzoBabbageUpdates...,
		)

		m.mu.Lock()
		m.history.Commit(block.Number, st)
		if block.NewEpoch {
			m.history.CommitEpoch(block.Epoch, st)
		}
		m.mu.Unlock()
	}
}

// applyDueChanges merges pending updates and enactments that take effect
// at the given epoch
func (m *Module) applyDueChanges(st *paramsState, epoch uint64) {
	var remainingUpdates []types.ProposalUpdate
	for _, proposal := range st.PendingUpdates {
		if proposal.Epoch+1 > epoch {
			remainingUpdates = append(remainingUpdates, proposal)
			continue
		}
		for _, update := range proposal.Updates {
			st.Params = update.MergedWith(st.Params)
		}
	}
	st.PendingUpdates = remainingUpdates

	var remainingEnactments []pendingEnactment
	for _, pending := range st.PendingEnactments {
		if pending.EnactmentEpoch > epoch {
			remainingEnactments = append(remainingEnactments, pending)
			continue
		}
		m.enact(st, pending.Elem)
	}
	st.PendingEnactments = remainingEnactments
}

func (m *Module) enact(st *paramsState, elem types.EnactStateElem) {
	switch e := elem.(type) {
	case types.EnactParams:
		st.Params = e.Update.MergedWith(st.Params)
	case types.EnactProtVer:
		if st.Params.Shelley != nil {
			st.Params.Shelley.ProtocolVersion = e.Version
		}
	case types.EnactConstitution:
		if st.Params.Conway != nil {
			st.Params.Conway.Constitution = e.Constitution
		}
	case types.EnactCommittee:
		if st.Params.Conway == nil {
			return
		}
		committee := &st.Params.Conway.Committee
		if committee.Members == nil {
			committee.Members = make(map[types.Credential]uint64)
		}
		for _, removed := range e.Removed {
			delete(committee.Members, removed)
		}
		for _, added := range e.Added {
			committee.Members[added.Credential] = added.Expiry
		}
		committee.Threshold = e.Threshold
	case types.EnactNoConfidence:
		if st.Params.Conway != nil {
			st.Params.Conway.Committee = types.Committee{}
		}
	}
}

func (m *Module) handleParamsQuery(_ context.Context, _ any) (any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.history.Current()
	if !ok {
		return m.genesis.Clone(), nil
	}
	return st.Params.Clone(), nil
}

func checkSync(expected, actual types.BlockInfo) {
	if expected.Number != actual.Number {
		panic(fmt.Sprintf(
			"pparams: streams out of sync: expected block %d, got %d",
			expected.Number, actual.Number,
		))
	}
}
