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

package validate

import (
	"errors"
	"fmt"
	"math"
	"math/big"

	"github.com/blinklabs-io/chainindex/types"
	lcommon "github.com/blinklabs-io/gouroboros/ledger/common"
	"golang.org/x/crypto/blake2b"
)

// ErrUnknownPool is returned when a block issuer has no registered pool
var ErrUnknownPool = errors.New("validate: unknown block issuer")

// ErrCounterTooSmall is returned when an operational certificate's
// sequence number regresses below the latest one seen for the issuer
var ErrCounterTooSmall = errors.New("validate: opcert counter too small")

// ErrCounterOverIncremented is returned when an operational
// certificate's sequence number jumps by more than one
var ErrCounterOverIncremented = errors.New("validate: opcert counter over-incremented")

// ErrNonActiveOverlaySlot is returned for blocks in overlay slots where
// nobody may produce a block
var ErrNonActiveOverlaySlot = errors.New("validate: non-active overlay slot")

// KesVerifier verifies a key-evolving signature. The primitive
// implementation is supplied by the caller; this package only drives the
// protocol-level checks around it.
type KesVerifier interface {
	Verify(vkey, message, signature []byte, period uint64) error
}

// VrfVerifier verifies a VRF proof against the output claimed in the
// header
type VrfVerifier interface {
	Verify(vkey, input, proof, output []byte) error
}

// OperationalCert is the block producer's operational certificate. The
// sequence number must equal or exceed the latest seen for the issuer by
// at most one; anything else is a stale or over-rotated certificate.
type OperationalCert struct {
	HotVkey        []byte
	SequenceNumber uint64
	KesPeriod      uint64
	Signature      []byte
}

// HeaderInfo is the subset of a block header the validator checks
type HeaderInfo struct {
	Block          types.BlockInfo
	IssuerVkey     []byte
	VrfKey         []byte
	VrfProof       []byte
	VrfOutput      []byte
	VrfInput       []byte
	OpCert         OperationalCert
	BodySignature  []byte
	HeaderBodyCbor []byte
}

// PoolStateLookup resolves a block issuer to its registered VRF key hash
// and live stake fraction
type PoolStateLookup func(pool types.PoolID) (
	vrfKeyHash lcommon.Blake2b256,
	sigma *big.Rat,
	ok bool,
)

// HeaderValidator drives KES and VRF validation of block headers. It
// owns the per-pool operational certificate counters; a successful
// validation advances the issuer's counter.
type HeaderValidator struct {
	kes    KesVerifier
	vrf    VrfVerifier
	pools  PoolStateLookup
	params *types.ShelleyParams

	counters map[types.PoolID]uint64
}

// NewHeaderValidator creates a header validator with injected crypto
// primitives
func NewHeaderValidator(
	kes KesVerifier,
	vrf VrfVerifier,
	pools PoolStateLookup,
	params *types.ShelleyParams,
) *HeaderValidator {
	return &HeaderValidator{
		kes:      kes,
		vrf:      vrf,
		pools:    pools,
		params:   params,
		counters: make(map[types.PoolID]uint64),
	}
}

// SeedCounter installs a known operational certificate counter for a
// pool, e.g. from a snapshot
func (v *HeaderValidator) SeedCounter(pool types.PoolID, counter uint64) {
	v.counters[pool] = counter
}

// Validate runs the full header check: overlay schedule, operational
// certificate counter and KES period bounds, KES signature over the
// header body, VRF proof, and the leader election check against the
// pool's stake
func (v *HeaderValidator) Validate(header *HeaderInfo) error {
	issuer := blake224(header.IssuerVkey)

	// Pre-decentralization (d > 0) epochs run an OBFT overlay schedule:
	// overlay slots belong to the genesis delegates, not to pools
	overlay := LookupOverlaySchedule(
		header.Block.EpochSlot,
		sortedGenesisKeys(v.params.GenesisDelegs),
		v.params.Decentralisation,
		v.params.ActiveSlotsCoeff,
	)

	var leaderCheckNeeded bool
	var sigma *big.Rat
	switch {
	case overlay == nil:
		// Steady-state praos rules
		vrfKeyHash, poolSigma, ok := v.pools(issuer)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownPool, issuer.String())
		}
		if blake256(header.VrfKey) != vrfKeyHash {
			return fmt.Errorf(
				"VRF key mismatch for pool %s",
				issuer.String(),
			)
		}
		sigma = poolSigma
		leaderCheckNeeded = true
	case !overlay.Active:
		// Nobody may produce a block in a non-active overlay slot
		return fmt.Errorf(
			"%w: slot %d", ErrNonActiveOverlaySlot, header.Block.Slot,
		)
	default:
		// The scheduled genesis key's delegate must have issued the
		// block with its registered VRF key; no stake-based leader check
		deleg, ok := v.params.GenesisDelegs[overlay.GenesisKey]
		if !ok {
			return fmt.Errorf(
				"no delegation for scheduled genesis key %s",
				overlay.GenesisKey.String(),
			)
		}
		if issuer != deleg.Delegate {
			return fmt.Errorf(
				"overlay slot %d issued by %s, expected delegate %s",
				header.Block.Slot, issuer.String(), deleg.Delegate.String(),
			)
		}
		if blake256(header.VrfKey) != deleg.VrfKeyHash {
			return fmt.Errorf(
				"VRF key mismatch for genesis delegate %s",
				deleg.Delegate.String(),
			)
		}
	}

	// Operational certificate counter: equal to the latest seen for the
	// issuer, or exactly one greater. A smaller counter is a replayed
	// certificate from before a KES rotation; a larger jump is
	// over-incremented.
	if latest, seen := v.counters[issuer]; seen {
		declared := header.OpCert.SequenceNumber
		if declared < latest {
			return fmt.Errorf(
				"%w: latest %d, declared %d",
				ErrCounterTooSmall, latest, declared,
			)
		}
		if declared-latest > 1 {
			return fmt.Errorf(
				"%w: latest %d, declared %d",
				ErrCounterOverIncremented, latest, declared,
			)
		}
	}

	// Operational certificate KES period bounds
	currentPeriod := header.Block.Slot / v.params.SlotsPerKESPeriod
	if header.OpCert.KesPeriod > currentPeriod {
		return fmt.Errorf(
			"opcert KES period %d is in the future (current %d)",
			header.OpCert.KesPeriod, currentPeriod,
		)
	}
	if currentPeriod-header.OpCert.KesPeriod >= v.params.MaxKESEvolutions {
		return fmt.Errorf(
			"opcert expired: period %d, current %d, max evolutions %d",
			header.OpCert.KesPeriod, currentPeriod, v.params.MaxKESEvolutions,
		)
	}

	// KES signature over the header body, evolved to the current period
	evolutions := currentPeriod - header.OpCert.KesPeriod
	if err := v.kes.Verify(
		header.OpCert.HotVkey,
		header.HeaderBodyCbor,
		header.BodySignature,
		evolutions,
	); err != nil {
		return fmt.Errorf("KES verification: %w", err)
	}

	// VRF proof over the slot/nonce input against the claimed output
	if err := v.vrf.Verify(
		header.VrfKey,
		header.VrfInput,
		header.VrfProof,
		header.VrfOutput,
	); err != nil {
		return fmt.Errorf("VRF verification: %w", err)
	}

	// Leader election: the VRF output must fall under the pool's
	// stake-weighted threshold
	if leaderCheckNeeded {
		if !CheckLeaderValue(
			header.VrfOutput, sigma, v.params.ActiveSlotsCoeff.Rat(),
		) {
			return fmt.Errorf(
				"VRF output above leader threshold for pool %s",
				issuer.String(),
			)
		}
	}

	v.counters[issuer] = header.OpCert.SequenceNumber
	return nil
}

// CheckLeaderValue performs the praos leader check: the VRF output,
// interpreted as a fraction of the output space, must be below
// 1 - (1-f)^sigma where f is the active slots coefficient and sigma the
// pool's stake fraction
func CheckLeaderValue(vrfOutput []byte, sigma, f *big.Rat) bool {
	if sigma == nil || sigma.Sign() <= 0 || len(vrfOutput) == 0 {
		return false
	}
	outputSpace := new(big.Float).SetInt(
		new(big.Int).Lsh(big.NewInt(1), uint(len(vrfOutput)*8)),
	)
	value := new(big.Float).SetInt(new(big.Int).SetBytes(vrfOutput))
	fraction, _ := new(big.Float).Quo(value, outputSpace).Float64()

	fFloat, _ := f.Float64()
	sigmaFloat, _ := sigma.Float64()
	threshold := 1.0 - math.Pow(1.0-fFloat, sigmaFloat)

	return fraction < threshold
}

func blake224(data []byte) lcommon.Blake2b224 {
	hasher, err := blake2b.New(28, nil)
	if err != nil {
		return lcommon.Blake2b224{}
	}
	hasher.Write(data)
	return lcommon.NewBlake2b224(hasher.Sum(nil))
}

func blake256(data []byte) lcommon.Blake2b256 {
	hasher, err := blake2b.New(32, nil)
	if err != nil {
		return lcommon.Blake2b256{}
	}
	hasher.Write(data)
	return lcommon.NewBlake2b256(hasher.Sum(nil))
}
