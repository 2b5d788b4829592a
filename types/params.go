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
	"math/big"

	lcommon "github.com/blinklabs-io/gouroboros/ledger/common"
)

// Ratio is an exact rational number used for protocol parameters
type Ratio struct {
	Num uint64
	Den uint64
}

// Rat converts the ratio to a big.Rat for precise arithmetic
func (r Ratio) Rat() *big.Rat {
	den := r.Den
	if den == 0 {
		den = 1
	}
	return new(big.Rat).SetFrac(
		new(big.Int).SetUint64(r.Num),
		new(big.Int).SetUint64(den),
	)
}

// Cmp compares two ratios, returning -1, 0, or 1
func (r Ratio) Cmp(other Ratio) int {
	return r.Rat().Cmp(other.Rat())
}

// IsZero reports whether the ratio is zero
func (r Ratio) IsZero() bool {
	return r.Num == 0
}

// ProportionOf returns ceil(r * total), the minimum count out of total
// needed to meet the ratio
func (r Ratio) ProportionOf(total uint64) uint64 {
	if r.Den == 0 {
		return 0
	}
	num := new(big.Int).Mul(
		new(big.Int).SetUint64(r.Num),
		new(big.Int).SetUint64(total),
	)
	den := new(big.Int).SetUint64(r.Den)
	q, m := new(big.Int).DivMod(num, den, new(big.Int))
	if m.Sign() != 0 {
		q.Add(q, big.NewInt(1))
	}
	return q.Uint64()
}

// RatioZero and RatioOne are the bounds used for vacuous thresholds
var (
	RatioZero = Ratio{Num: 0, Den: 1}
	RatioOne  = Ratio{Num: 1, Den: 1}
)

// ProtocolVersion is a protocol major/minor version pair
type ProtocolVersion struct {
	Major uint64
	Minor uint64
}

// ExUnits is a pair of Plutus execution budgets
type ExUnits struct {
	Mem   uint64
	Steps uint64
}

// ByronParams are the protocol parameters specific to the Byron era
type ByronParams struct {
	SlotDuration   uint64
	EpochLength    uint64
	MaxBlockSize   uint64
	MaxTxSize      uint64
	SoftForkInit   Ratio
	SoftForkMin    Ratio
	SoftForkDecrement Ratio
}

// ShelleyParams are the protocol parameters introduced in the Shelley era
type ShelleyParams struct {
	MinFeeA               uint64
	MinFeeB               uint64
	MaxBlockBodySize      uint64
	MaxTxSize             uint64
	MaxBlockHeaderSize    uint64
	KeyDeposit            Lovelace
	PoolDeposit           Lovelace
	MaximumEpoch          uint64
	StakePoolTargetNum    uint64
	PoolPledgeInfluence   Ratio
	MonetaryExpansion     Ratio
	TreasuryGrowthRate    Ratio
	Decentralisation      Ratio
	ExtraEntropy          []byte
	ProtocolVersion       ProtocolVersion
	MinUTxOValue          Lovelace
	MinPoolCost           Lovelace
	ActiveSlotsCoeff      Ratio
	EpochLength           uint64
	SecurityParam         uint64
	MaxLovelaceSupply     uint64
	SlotsPerKESPeriod     uint64
	MaxKESEvolutions      uint64
	GenesisDelegs         map[lcommon.Blake2b224]GenesisDeleg
}

// GenesisDeleg is a genesis key delegation to a block-producing node
type GenesisDeleg struct {
	Delegate lcommon.Blake2b224
	VrfKeyHash lcommon.Blake2b256
}

// AlonzoParams are the protocol parameters introduced in the Alonzo era
type AlonzoParams struct {
	CoinsPerUTxOWord    Lovelace
	CostModels          map[uint][]int64
	ExecutionPrices     ExecutionPrices
	MaxTxExUnits        ExUnits
	MaxBlockExUnits     ExUnits
	MaxValueSize        uint64
	CollateralPercentage uint64
	MaxCollateralInputs uint64
}

// ExecutionPrices are the per-unit prices for Plutus execution
type ExecutionPrices struct {
	MemPrice  Ratio
	StepPrice Ratio
}

// BabbageParams are the protocol parameters introduced in the Babbage era
type BabbageParams struct {
	CoinsPerUTxOByte Lovelace
}

// Committee is the constitutional committee and its voting threshold
type Committee struct {
	Members   map[Credential]uint64
	Threshold Ratio
}

// IsEmpty reports whether the committee has no members
func (c Committee) IsEmpty() bool {
	return len(c.Members) == 0
}

// PoolVotingThresholds are the SPO governance voting thresholds
type PoolVotingThresholds struct {
	MotionNoConfidence    Ratio
	CommitteeNormal       Ratio
	CommitteeNoConfidence Ratio
	HardForkInitiation    Ratio
	SecurityVotingThreshold Ratio
}

// DRepVotingThresholds are the DRep governance voting thresholds
type DRepVotingThresholds struct {
	MotionNoConfidence    Ratio
	CommitteeNormal       Ratio
	CommitteeNoConfidence Ratio
	UpdateConstitution    Ratio
	HardForkInitiation    Ratio
	PPNetworkGroup        Ratio
	PPEconomicGroup       Ratio
	PPTechnicalGroup      Ratio
	PPGovernanceGroup     Ratio
	TreasuryWithdrawal    Ratio
}

// ConwayParams are the protocol parameters introduced in the Conway era
type ConwayParams struct {
	PoolVotingThresholds       PoolVotingThresholds
	DRepVotingThresholds       DRepVotingThresholds
	CommitteeMinSize           uint64
	CommitteeMaxTermLength     uint64
	GovActionLifetime          uint64
	GovActionDeposit           Lovelace
	DRepDeposit                Lovelace
	DRepActivity               uint64
	MinFeeRefScriptCostPerByte Ratio
	Committee                  Committee
	Constitution               Constitution
}

// Constitution is the anchor and optional guardrails script of the
// on-chain constitution
type Constitution struct {
	Anchor     GovAnchor
	ScriptHash []byte
}

// ProtocolParams is the era-partitioned set of protocol parameters in
// effect at a point on the chain. Later-era sections are nil before the
// corresponding hard fork.
type ProtocolParams struct {
	Byron   *ByronParams
	Shelley *ShelleyParams
	Alonzo  *AlonzoParams
	Babbage *BabbageParams
	Conway  *ConwayParams
}

// Clone returns a deep-enough copy for commit into a state history. Era
// sections are copied so that pending updates never mutate a committed
// state.
func (p ProtocolParams) Clone() ProtocolParams {
	out := ProtocolParams{}
	if p.Byron != nil {
		b := *p.Byron
		out.Byron = &b
	}
	if p.Shelley != nil {
		s := *p.Shelley
		out.Shelley = &s
	}
	if p.Alonzo != nil {
		a := *p.Alonzo
		out.Alonzo = &a
	}
	if p.Babbage != nil {
		b := *p.Babbage
		out.Babbage = &b
	}
	if p.Conway != nil {
		c := *p.Conway
		c.Committee.Members = cloneMap(p.Conway.Committee.Members)
		out.Conway = &c
	}
	return out
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	if m == nil {
		return nil
	}
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// ProtocolParamUpdate is a sparse overlay over ProtocolParams: every field
// is optional and only non-nil fields are applied by MergedWith
type ProtocolParamUpdate struct {
	MinFeeA               *uint64
	MinFeeB               *uint64
	MaxBlockBodySize      *uint64
	MaxTxSize             *uint64
	MaxBlockHeaderSize    *uint64
	KeyDeposit            *Lovelace
	PoolDeposit           *Lovelace
	MaximumEpoch          *uint64
	StakePoolTargetNum    *uint64
	PoolPledgeInfluence   *Ratio
	MonetaryExpansion     *Ratio
	TreasuryGrowthRate    *Ratio
	Decentralisation      *Ratio
	ExtraEntropy          *[]byte
	ProtocolVersion       *ProtocolVersion
	MinUTxOValue          *Lovelace
	MinPoolCost           *Lovelace
	CoinsPerUTxOWord      *Lovelace
	CoinsPerUTxOByte      *Lovelace
	CostModels            map[uint][]int64
	ExecutionPrices       *ExecutionPrices
	MaxTxExUnits          *ExUnits
	MaxBlockExUnits       *ExUnits
	MaxValueSize          *uint64
	CollateralPercentage  *uint64
	MaxCollateralInputs   *uint64
	PoolVotingThresholds  *PoolVotingThresholds
	DRepVotingThresholds  *DRepVotingThresholds
	CommitteeMinSize      *uint64
	CommitteeMaxTermLength *uint64
	GovActionLifetime     *uint64
	GovActionDeposit      *Lovelace
	DRepDeposit           *Lovelace
	DRepActivity          *uint64
	MinFeeRefScriptCostPerByte *Ratio
}

func setIf[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

// MergedWith applies the non-nil fields of the update on top of the given
// parameters and returns the result. The input is not modified.
func (u ProtocolParamUpdate) MergedWith(params ProtocolParams) ProtocolParams {
	out := params.Clone()
	if s := out.Shelley; s != nil {
		setIf(&s.MinFeeA, u.MinFeeA)
		setIf(&s.MinFeeB, u.MinFeeB)
		setIf(&s.MaxBlockBodySize, u.MaxBlockBodySize)
		setIf(&s.MaxTxSize, u.MaxTxSize)
		setIf(&s.MaxBlockHeaderSize, u.MaxBlockHeaderSize)
		setIf(&s.KeyDeposit, u.KeyDeposit)
		setIf(&s.PoolDeposit, u.PoolDeposit)
		setIf(&s.MaximumEpoch, u.MaximumEpoch)
		setIf(&s.StakePoolTargetNum, u.StakePoolTargetNum)
		setIf(&s.PoolPledgeInfluence, u.PoolPledgeInfluence)
		setIf(&s.MonetaryExpansion, u.MonetaryExpansion)
		setIf(&s.TreasuryGrowthRate, u.TreasuryGrowthRate)
		setIf(&s.Decentralisation, u.Decentralisation)
		setIf(&s.ExtraEntropy, u.ExtraEntropy)
		setIf(&s.ProtocolVersion, u.ProtocolVersion)
		setIf(&s.MinUTxOValue, u.MinUTxOValue)
		setIf(&s.MinPoolCost, u.MinPoolCost)
	}
	if a := out.Alonzo; a != nil {
		setIf(&a.CoinsPerUTxOWord, u.CoinsPerUTxOWord)
		setIf(&a.ExecutionPrices, u.ExecutionPrices)
		setIf(&a.MaxTxExUnits, u.MaxTxExUnits)
		setIf(&a.MaxBlockExUnits, u.MaxBlockExUnits)
		setIf(&a.MaxValueSize, u.MaxValueSize)
		setIf(&a.CollateralPercentage, u.CollateralPercentage)
		setIf(&a.MaxCollateralInputs, u.MaxCollateralInputs)
		if u.CostModels != nil {
			a.CostModels = u.CostModels
		}
	}
	if b := out.Babbage; b != nil {
		setIf(&b.CoinsPerUTxOByte, u.CoinsPerUTxOByte)
	}
	if c := out.Conway; c != nil {
		setIf(&c.PoolVotingThresholds, u.PoolVotingThresholds)
		setIf(&c.DRepVotingThresholds, u.DRepVotingThresholds)
		setIf(&c.CommitteeMinSize, u.CommitteeMinSize)
		setIf(&c.CommitteeMaxTermLength, u.CommitteeMaxTermLength)
		setIf(&c.GovActionLifetime, u.GovActionLifetime)
		setIf(&c.GovActionDeposit, u.GovActionDeposit)
		setIf(&c.DRepDeposit, u.DRepDeposit)
		setIf(&c.DRepActivity, u.DRepActivity)
		setIf(&c.MinFeeRefScriptCostPerByte, u.MinFeeRefScriptCostPerByte)
	}
	return out
}

// ParamGroup classifies which governance parameter groups an update
// touches; thresholds differ per group (CIP-1694)
type ParamGroup uint8

const (
	ParamGroupNetwork ParamGroup = 1 << iota
	ParamGroupEconomic
	ParamGroupTechnical
	ParamGroupGovernance
	ParamGroupSecurity
)

// Contains reports whether the group set includes the given group
func (g ParamGroup) Contains(other ParamGroup) bool {
	return g&other != 0
}

// Groups returns the set of parameter groups touched by the update
func (u ProtocolParamUpdate) Groups() ParamGroup {
	var g ParamGroup
	if u.MaxBlockBodySize != nil || u.MaxTxSize != nil ||
		u.MaxBlockHeaderSize != nil || u.MaxValueSize != nil ||
		u.MaxTxExUnits != nil || u.MaxBlockExUnits != nil ||
		u.MaxCollateralInputs != nil {
		g |= ParamGroupNetwork
	}
	if u.MinFeeA != nil || u.MinFeeB != nil || u.KeyDeposit != nil ||
		u.PoolDeposit != nil || u.MonetaryExpansion != nil ||
		u.TreasuryGrowthRate != nil || u.MinPoolCost != nil ||
		u.CoinsPerUTxOWord != nil || u.CoinsPerUTxOByte != nil ||
		u.ExecutionPrices != nil || u.MinFeeRefScriptCostPerByte != nil {
		g |= ParamGroupEconomic
	}
	if u.PoolPledgeInfluence != nil || u.MaximumEpoch != nil ||
		u.StakePoolTargetNum != nil || u.CostModels != nil ||
		u.CollateralPercentage != nil {
		g |= ParamGroupTechnical
	}
	if u.PoolVotingThresholds != nil || u.DRepVotingThresholds != nil ||
		u.GovActionLifetime != nil || u.GovActionDeposit != nil ||
		u.DRepDeposit != nil || u.DRepActivity != nil ||
		u.CommitteeMinSize != nil || u.CommitteeMaxTermLength != nil {
		g |= ParamGroupGovernance
	}
	if u.MaxBlockBodySize != nil || u.MaxBlockHeaderSize != nil ||
		u.MaxTxSize != nil || u.MaxValueSize != nil ||
		u.MaxBlockExUnits != nil || u.GovActionDeposit != nil ||
		u.CoinsPerUTxOByte != nil || u.MinFeeRefScriptCostPerByte != nil ||
		u.MinFeeA != nil || u.MinFeeB != nil {
		g |= ParamGroupSecurity
	}
	return g
}

// ProposalUpdate is a pre-Conway protocol parameter update proposal,
// keyed by the genesis delegate that submitted it
type ProposalUpdate struct {
	Epoch   uint64
	Updates map[lcommon.Blake2b224]ProtocolParamUpdate
}
