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
	"github.com/blinklabs-io/chainindex/address"
	lcommon "github.com/blinklabs-io/gouroboros/ledger/common"
)

// PoolID is the blake2b-224 hash of a stake pool's operator key
type PoolID = lcommon.PoolKeyHash

// Credential is a key or script credential used by stake, DRep, and
// committee certificates
type Credential struct {
	Kind address.CredentialKind
	Hash lcommon.Blake2b224
}

// DRep identifies the delegation target of a vote delegation
type DRep struct {
	Kind DRepKind
	// Credential is set only for key and script DReps
	Credential lcommon.Blake2b224
}

// DRepKind enumerates the vote delegation targets
type DRepKind uint8

const (
	// DRepKey delegates votes to a registered DRep key
	DRepKey DRepKind = iota
	// DRepScript delegates votes to a registered DRep script
	DRepScript
	// DRepAbstain always abstains
	DRepAbstain
	// DRepNoConfidence always votes no confidence
	DRepNoConfidence
)

// TxCertificate is one certificate carried in a transaction body. Each
// variant carries the minimum fields needed to apply it to state.
type TxCertificate interface {
	isTxCertificate()
}

// StakeRegistration registers a stake address (Shelley form, deposit
// implied by protocol parameters)
type StakeRegistration struct {
	Credential Credential
}

// StakeDeregistration deregisters a stake address (Shelley form)
type StakeDeregistration struct {
	Credential Credential
}

// StakeDelegation delegates a stake address to a pool
type StakeDelegation struct {
	Credential Credential
	PoolID     PoolID
}

// Relay is one pool relay endpoint
type Relay struct {
	Port     *uint32
	IPv4     []byte
	IPv6     []byte
	Hostname string
	SRVName  string
}

// PoolMetadata is the off-chain metadata reference of a pool
type PoolMetadata struct {
	URL  string
	Hash lcommon.Blake2b256
}

// PoolRegistration registers or re-registers a stake pool
type PoolRegistration struct {
	Operator      PoolID
	VrfKeyHash    lcommon.Blake2b256
	Pledge        Lovelace
	Cost          Lovelace
	Margin        Ratio
	RewardAccount address.StakeAddress
	PoolOwners    []lcommon.Blake2b224
	Relays        []Relay
	Metadata      *PoolMetadata
}

// PoolRetirement schedules a pool retirement at an epoch boundary
type PoolRetirement struct {
	Operator PoolID
	Epoch    uint64
}

// GenesisKeyDelegation delegates a genesis key to a block producer
type GenesisKeyDelegation struct {
	GenesisHash         lcommon.Blake2b224
	GenesisDelegateHash lcommon.Blake2b224
	VrfKeyHash          lcommon.Blake2b256
}

// InstantaneousRewardSource is the pot an MIR certificate draws from
type InstantaneousRewardSource uint8

const (
	// RewardSourceReserves draws from the reserves pot
	RewardSourceReserves InstantaneousRewardSource = iota
	// RewardSourceTreasury draws from the treasury pot
	RewardSourceTreasury
)

// MoveInstantaneousReward transfers from a pot to stake addresses or the
// other pot
type MoveInstantaneousReward struct {
	Source InstantaneousRewardSource
	// Rewards is the per-address payment list; empty when OtherPot is used
	Rewards map[Credential]int64
	// OtherPot is the amount moved to the other pot, if any
	OtherPot *Lovelace
}

// Registration registers a stake address with an explicit deposit (Conway)
type Registration struct {
	Credential Credential
	Deposit    Lovelace
}

// Deregistration deregisters a stake address, refunding its deposit
// (Conway)
type Deregistration struct {
	Credential Credential
	Deposit    Lovelace
}

// VoteDelegation delegates governance votes to a DRep
type VoteDelegation struct {
	Credential Credential
	DRep       DRep
}

// StakeAndVoteDelegation delegates both stake and votes in one
// certificate
type StakeAndVoteDelegation struct {
	Credential Credential
	PoolID     PoolID
	DRep       DRep
}

// StakeRegistrationAndDelegation registers and delegates stake
type StakeRegistrationAndDelegation struct {
	Credential Credential
	PoolID     PoolID
	Deposit    Lovelace
}

// StakeRegistrationAndVoteDelegation registers stake and delegates votes
type StakeRegistrationAndVoteDelegation struct {
	Credential Credential
	DRep       DRep
	Deposit    Lovelace
}

// StakeRegistrationAndStakeAndVoteDelegation registers stake and
// delegates both stake and votes
type StakeRegistrationAndStakeAndVoteDelegation struct {
	Credential Credential
	PoolID     PoolID
	DRep       DRep
	Deposit    Lovelace
}

// AuthCommitteeHot authorises a committee hot credential for a cold
// credential
type AuthCommitteeHot struct {
	ColdCredential Credential
	HotCredential  Credential
}

// ResignCommitteeCold resigns a committee cold credential
type ResignCommitteeCold struct {
	ColdCredential Credential
	Anchor         *GovAnchor
}

// DRepRegistration registers a DRep
type DRepRegistration struct {
	Credential Credential
	Deposit    Lovelace
	Anchor     *GovAnchor
}

// DRepDeregistration deregisters a DRep, refunding its deposit
type DRepDeregistration struct {
	Credential Credential
	Deposit    Lovelace
}

// DRepUpdate updates a DRep's anchor
type DRepUpdate struct {
	Credential Credential
	Anchor     *GovAnchor
}

func (StakeRegistration) isTxCertificate()                           {}
func (StakeDeregistration) isTxCertificate()                         {}
func (StakeDelegation) isTxCertificate()                             {}
func (PoolRegistration) isTxCertificate()                            {}
func (PoolRetirement) isTxCertificate()                              {}
func (GenesisKeyDelegation) isTxCertificate()                        {}
func (MoveInstantaneousReward) isTxCertificate()                     {}
func (Registration) isTxCertificate()                                {}
func (Deregistration) isTxCertificate()                              {}
func (VoteDelegation) isTxCertificate()                              {}
func (StakeAndVoteDelegation) isTxCertificate()                      {}
func (StakeRegistrationAndDelegation) isTxCertificate()              {}
func (StakeRegistrationAndVoteDelegation) isTxCertificate()          {}
func (StakeRegistrationAndStakeAndVoteDelegation) isTxCertificate()  {}
func (AuthCommitteeHot) isTxCertificate()                            {}
func (ResignCommitteeCold) isTxCertificate()                         {}
func (DRepRegistration) isTxCertificate()                            {}
func (DRepDeregistration) isTxCertificate()                          {}
func (DRepUpdate) isTxCertificate()                                  {}

// TxCertificateIdentifier locates a certificate within a block
type TxCertificateIdentifier struct {
	TxID      TxIdentifier
	CertIndex uint32
}

// TxCertificateWithPos is a certificate with its position in the
// transaction, preserved so that downstream modules can apply
// certificates in exact on-chain order
type TxCertificateWithPos struct {
	Cert      TxCertificate
	TxID      TxIdentifier
	CertIndex uint32
}

// Identifier returns the certificate's block-relative identifier
func (c TxCertificateWithPos) Identifier() TxCertificateIdentifier {
	return TxCertificateIdentifier{TxID: c.TxID, CertIndex: c.CertIndex}
}

// StakeAddressFor converts a credential to a stake address on the given
// network
func StakeAddressFor(cred Credential, network address.Network) address.StakeAddress {
	return address.StakeAddress{
		Network: network,
		Credential: address.StakeCredential{
			Kind: cred.Kind,
			Hash: cred.Hash,
		},
	}
}
