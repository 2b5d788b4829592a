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

// Package snapshot implements the streaming ledger snapshot loader. The
// parser owns the I/O loop and walks the chunked stream in order,
// invoking consumer callbacks section by section; UTxOs are delivered one
// per callback so the consumer sees constant memory however large the
// set is.
package snapshot

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/blinklabs-io/chainindex/address"
	"github.com/blinklabs-io/chainindex/types"
	"github.com/blinklabs-io/gouroboros/cbor"
	lcommon "github.com/blinklabs-io/gouroboros/ledger/common"
)

// Section tags in the chunked stream, in the order they must appear
const (
	SectionMetadata uint8 = iota + 1
	SectionUTxOs
	SectionPools
	SectionAccounts
	SectionDReps
	SectionProposals
	SectionSnapshots
	SectionGovernanceState
	SectionProtocolParams
	SectionComplete
)

// ErrBadSection is returned when sections arrive out of order or with an
// unknown tag
var ErrBadSection = errors.New("snapshot: bad section")

// maxChunkSize bounds a single chunk; larger means a corrupt stream
const maxChunkSize = 64 << 20

// Metadata is the snapshot header
type Metadata struct {
	Epoch       uint64
	PointSlot   uint64
	PointHash   []byte
	NetworkName string
}

// PoolEntry is one pool's registration state in the snapshot
type PoolEntry struct {
	Operator      []byte
	VrfKeyHash    []byte
	Pledge        uint64
	Cost          uint64
	MarginNum     uint64
	MarginDen     uint64
	RewardAccount []byte
	PoolOwners    [][]byte
	BlocksMinted  uint64
}

// AccountEntry is one stake account's state in the snapshot
type AccountEntry struct {
	StakeAddress []byte
	Rewards      uint64
	Deposit      uint64
	DelegatedTo  []byte
	DRepKind     uint8
	DRepHash     []byte
	HasDRep      bool
}

// DRepEntry is one registered DRep in the snapshot
type DRepEntry struct {
	Credential []byte
	IsScript   bool
	Deposit    uint64
}

// ProposalEntry is one live governance proposal in the snapshot
type ProposalEntry struct {
	TxHash        []byte
	ActionIndex   uint8
	Epoch         uint64
	Deposit       uint64
	RewardAccount []byte
}

// SnapshotEntry is one pool's stake within a mark/set/go snapshot
type SnapshotEntry struct {
	Operator   []byte
	TotalStake uint64
	Delegators map[string]uint64
}

// StakeSnapshots is the mark/set/go triplet
type StakeSnapshots struct {
	Epoch    uint64
	Mark     []SnapshotEntry
	Set      []SnapshotEntry
	Go       []SnapshotEntry
	Treasury uint64
	Reserves uint64
	Deposits uint64
	Blocks   uint64
}

// GovernanceState carries the live governance values at the snapshot
// point
type GovernanceState struct {
	ConstitutionURL  string
	ConstitutionHash []byte
	CommitteeSize    uint64
}

// Callbacks receives the snapshot contents section by section. Calls
// arrive strictly in stream order; batch sizes are parser-chosen.
type Callbacks interface {
	OnMetadata(meta Metadata) error
	OnUTxO(utxo types.TxOutput) error
	OnPools(pools []PoolEntry) error
	OnAccounts(accounts []AccountEntry) error
	OnDReps(dreps []DRepEntry) error
	OnProposals(proposals []ProposalEntry) error
	OnSnapshots(snapshots StakeSnapshots) error
	OnGovernanceState(govState GovernanceState) error
	OnProtocolParameters(params types.ProtocolParams) error
	OnComplete() error
}

type utxoEntry struct {
	TxHash  []byte
	Index   uint32
	Address []byte
	Value   uint64
}

// Parser walks a chunked snapshot stream
type Parser struct {
	reader    io.Reader
	callbacks Callbacks
	buf       []byte
}

// NewParser creates a parser over the given stream
func NewParser(reader io.Reader, callbacks Callbacks) *Parser {
	return &Parser{reader: reader, callbacks: callbacks}
}

// Run consumes the stream to completion, dispatching each chunk to its
// callback. The stream must end with a complete marker.
func (p *Parser) Run() error {
	sawComplete := false
	prevSection := uint8(0)
	for {
		section, payload, err := p.readChunk()
		if errors.Is(err, io.EOF) {
			if !sawComplete {
				return errors.New("snapshot: stream ended without complete marker")
			}
			return nil
		}
		if err != nil {
			return err
		}
		// Sections must not move backwards; UTxO chunks may repeat
		if section < prevSection {
			return fmt.Errorf(
				"%w: section %d after %d", ErrBadSection, section, prevSection,
			)
		}
		prevSection = section

		if err := p.dispatch(section, payload); err != nil {
			return err
		}
		if section == SectionComplete {
			sawComplete = true
		}
	}
}

func (p *Parser) readChunk() (uint8, []byte, error) {
	var header [5]byte
	if _, err := io.ReadFull(p.reader, header[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return 0, nil, errors.New("snapshot: truncated chunk header")
		}
		return 0, nil, err
	}
	length := binary.BigEndian.Uint32(header[1:])
	if length > maxChunkSize {
		return 0, nil, fmt.Errorf("snapshot: oversized chunk: %d bytes", length)
	}
	if uint32(cap(p.buf)) < length {
		p.buf = make([]byte, length)
	}
	payload := p.buf[:length]
	if _, err := io.ReadFull(p.reader, payload); err != nil {
		return 0, nil, errors.New("snapshot: truncated chunk payload")
	}
	return header[0], payload, nil
}

func (p *Parser) dispatch(section uint8, payload []byte) error {
	switch section {
	case SectionMetadata:
		var meta Metadata
		if _, err := cbor.Decode(payload, &meta); err != nil {
			return fmt.Errorf("snapshot: decode metadata: %w", err)
		}
		return p.callbacks.OnMetadata(meta)
	case SectionUTxOs:
		var batch []utxoEntry
		if _, err := cbor.Decode(payload, &batch); err != nil {
			return fmt.Errorf("snapshot: decode utxo batch: %w", err)
		}
		for _, entry := range batch {
			addr, err := address.FromBytes(entry.Address)
			if err != nil {
				return fmt.Errorf("snapshot: utxo address: %w", err)
			}
			utxo := types.TxOutput{
				ID: types.UTxOIdentifier{
					TxHash: lcommon.NewBlake2b256(entry.TxHash),
					Index:  entry.Index,
				},
				Address: addr,
				Value:   entry.Value,
			}
			if err := p.callbacks.OnUTxO(utxo); err != nil {
				return err
			}
		}
		return nil
	case SectionPools:
		var batch []PoolEntry
		if _, err := cbor.Decode(payload, &batch); err != nil {
			return fmt.Errorf("snapshot: decode pools: %w", err)
		}
		return p.callbacks.OnPools(batch)
	case SectionAccounts:
		var batch []AccountEntry
		if _, err := cbor.Decode(payload, &batch); err != nil {
			return fmt.Errorf("snapshot: decode accounts: %w", err)
		}
		return p.callbacks.OnAccounts(batch)
	case SectionDReps:
		var batch []DRepEntry
		if _, err := cbor.Decode(payload, &batch); err != nil {
			return fmt.Errorf("snapshot: decode dreps: %w", err)
		}
		return p.callbacks.OnDReps(batch)
	case SectionProposals:
		var batch []ProposalEntry
		if _, err := cbor.Decode(payload, &batch); err != nil {
			return fmt.Errorf("snapshot: decode proposals: %w", err)
		}
		return p.callbacks.OnProposals(batch)
	case SectionSnapshots:
		var snapshots StakeSnapshots
		if _, err := cbor.Decode(payload, &snapshots); err != nil {
			return fmt.Errorf("snapshot: decode stake snapshots: %w", err)
		}
		return p.callbacks.OnSnapshots(snapshots)
	case SectionGovernanceState:
		var govState GovernanceState
		if _, err := cbor.Decode(payload, &govState); err != nil {
			return fmt.Errorf("snapshot: decode governance state: %w", err)
		}
		return p.callbacks.OnGovernanceState(govState)
	case SectionProtocolParams:
		var params snapshotParams
		if _, err := cbor.Decode(payload, &params); err != nil {
			return fmt.Errorf("snapshot: decode protocol params: %w", err)
		}
		return p.callbacks.OnProtocolParameters(params.toProtocolParams())
	case SectionComplete:
		return p.callbacks.OnComplete()
	}
	return fmt.Errorf("%w: unknown tag %d", ErrBadSection, section)
}

// snapshotParams is the wire form of the parameter section; ratios are
// flattened for stable CBOR round-trips
type snapshotParams struct {
	MaxLovelaceSupply  uint64
	StakePoolTargetNum uint64
	A0Num              uint64
	A0Den              uint64
	DNum               uint64
	DDen               uint64
	RhoNum             uint64
	RhoDen             uint64
	TauNum             uint64
	TauDen             uint64
	KeyDeposit         uint64
	PoolDeposit        uint64
	MinPoolCost        uint64
	ProtocolMajor      uint64
	ProtocolMinor      uint64
	GovActionLifetime  uint64
	GovActionDeposit   uint64
	DRepDeposit        uint64
	HasConway          bool
}

func (s snapshotParams) toProtocolParams() types.ProtocolParams {
	out := types.ProtocolParams{
		Shelley: &types.ShelleyParams{
			MaxLovelaceSupply:   s.MaxLovelaceSupply,
			StakePoolTargetNum:  s.StakePoolTargetNum,
			PoolPledgeInfluence: types.Ratio{Num: s.A0Num, Den: s.A0Den},
			Decentralisation:    types.Ratio{Num: s.DNum, Den: s.DDen},
			MonetaryExpansion:   types.Ratio{Num: s.RhoNum, Den: s.RhoDen},
			TreasuryGrowthRate:  types.Ratio{Num: s.TauNum, Den: s.TauDen},
			KeyDeposit:          s.KeyDeposit,
			PoolDeposit:         s.PoolDeposit,
			MinPoolCost:         s.MinPoolCost,
			ProtocolVersion: types.ProtocolVersion{
				Major: s.ProtocolMajor,
				Minor: s.ProtocolMinor,
			},
		},
	}
	if s.HasConway {
		out.Conway = &types.ConwayParams{
			GovActionLifetime: s.GovActionLifetime,
			GovActionDeposit:  s.GovActionDeposit,
			DRepDeposit:       s.DRepDeposit,
		}
	}
	return out
}

// Writer produces the chunked stream format; the bootstrapper's tests
// and snapshot export tooling share it
type Writer struct {
	out io.Writer
}

// NewWriter creates a chunk writer
func NewWriter(out io.Writer) *Writer {
	return &Writer{out: out}
}

// WriteChunk encodes one payload under the given section tag
func (w *Writer) WriteChunk(section uint8, payload any) error {
	encoded, err := cbor.Encode(payload)
	if err != nil {
		return fmt.Errorf("snapshot: encode chunk: %w", err)
	}
	header := make([]byte, 5)
	header[0] = section
	binary.BigEndian.PutUint32(header[1:], uint32(len(encoded)))
	if _, err := w.out.Write(header); err != nil {
		return err
	}
	_, err = w.out.Write(encoded)
	return err
}

// WriteUTxOBatch writes one UTxO section chunk from typed outputs
func (w *Writer) WriteUTxOBatch(utxos []types.TxOutput) error {
	batch := make([]utxoEntry, 0, len(utxos))
	for _, utxo := range utxos {
		addrBytes, err := utxo.Address.Bytes()
		if err != nil {
			return err
		}
		batch = append(batch, utxoEntry{
			TxHash:  utxo.ID.TxHash.Bytes(),
			Index:   utxo.ID.Index,
			Address: addrBytes,
			Value:   utxo.Value,
		})
	}
	return w.WriteChunk(SectionUTxOs, batch)
}

// WriteComplete writes the final complete marker
func (w *Writer) WriteComplete() error {
	return w.WriteChunk(SectionComplete, true)
}

// ParamsChunk builds the wire form of the parameters section
func ParamsChunk(params types.ProtocolParams) any {
	out := snapshotParams{}
	if shelley := params.Shelley; shelley != nil {
		out.MaxLovelaceSupply = shelley.MaxLovelaceSupply
		out.StakePoolTargetNum = shelley.StakePoolTargetNum
		out.A0Num = shelley.PoolPledgeInfluence.Num
		out.A0Den = shelley.PoolPledgeInfluence.Den
		out.DNum = shelley.Decentralisation.Num
		out.DDen = shelley.Decentralisation.Den
		out.RhoNum = shelley.MonetaryExpansion.Num
		out.RhoDen = shelley.MonetaryExpansion.Den
		out.TauNum = shelley.TreasuryGrowthRate.Num
		out.TauDen = shelley.TreasuryGrowthRate.Den
		out.KeyDeposit = shelley.KeyDeposit
		out.PoolDeposit = shelley.PoolDeposit
		out.MinPoolCost = shelley.MinPoolCost
		out.ProtocolMajor = shelley.ProtocolVersion.Major
		out.ProtocolMinor = shelley.ProtocolVersion.Minor
	}
	if conway := params.Conway; conway != nil {
		out.HasConway = true
		out.GovActionLifetime = conway.GovActionLifetime
		out.GovActionDeposit = conway.GovActionDeposit
		out.DRepDeposit = conway.DRepDeposit
	}
	return out
}
