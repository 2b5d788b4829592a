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

// Package address implements the three Cardano address families (Byron,
// Shelley, stake) with lossless round-trips between their binary,
// bech32/base58 string, and structured forms per CIP-19.
package address

import (
	"bytes"
	"errors"
	"fmt"
	"hash/crc32"
	"strings"

	"github.com/blinklabs-io/gouroboros/cbor"
	lcommon "github.com/blinklabs-io/gouroboros/ledger/common"
	"github.com/btcsuite/btcd/btcutil/base58"
)

// ErrNoAddress is returned when an operation needs an address but none is set
var ErrNoAddress = errors.New("address: no address")

// Network identifies the network an address belongs to
type Network uint8

const (
	// NetworkTestnet is any test network (network id 0)
	NetworkTestnet Network = 0
	// NetworkMainnet is the production network (network id 1)
	NetworkMainnet Network = 1
)

// String returns the network name
func (n Network) String() string {
	if n == NetworkMainnet {
		return "mainnet"
	}
	return "testnet"
}

// CredentialKind distinguishes key hashes from script hashes
type CredentialKind uint8

const (
	// KeyCredential is a blake2b-224 hash of a verification key
	KeyCredential CredentialKind = iota
	// ScriptCredential is a blake2b-224 hash of a script
	ScriptCredential
)

// ByronAddress is an opaque Byron-era address payload. The string form is
// base58 over a CBOR envelope carrying the payload and its CRC32.
type ByronAddress struct {
	Payload []byte
}

type byronEnvelope struct {
	cbor.StructAsArray
	Payload  cbor.Tag
	Checksum uint32
}

func (a ByronAddress) checksum() uint32 {
	return crc32.ChecksumIEEE(a.Payload)
}

// String returns the base58 form of the address
func (a ByronAddress) String() string {
	env := byronEnvelope{
		Payload:  cbor.Tag{Number: 24, Content: a.Payload},
		Checksum: a.checksum(),
	}
	raw, err := cbor.Encode(&env)
	if err != nil {
		return ""
	}
	return base58.Encode(raw)
}

// Bytes returns the canonical binary form (the CBOR envelope)
func (a ByronAddress) Bytes() ([]byte, error) {
	env := byronEnvelope{
		Payload:  cbor.Tag{Number: 24, Content: a.Payload},
		Checksum: a.checksum(),
	}
	return cbor.Encode(&env)
}

// ByronAddressFromString parses a base58 Byron address and verifies its CRC
func ByronAddressFromString(text string) (ByronAddress, error) {
	raw := base58.Decode(text)
	if len(raw) == 0 {
		return ByronAddress{}, errors.New("invalid base58 in Byron address")
	}
	return ByronAddressFromBytes(raw)
}

// ByronAddressFromBytes parses the CBOR envelope form of a Byron address
func ByronAddressFromBytes(raw []byte) (ByronAddress, error) {
	var env byronEnvelope
	if _, err := cbor.Decode(raw, &env); err != nil {
		return ByronAddress{}, fmt.Errorf("decode Byron address: %w", err)
	}
	payload, ok := env.Payload.Content.([]byte)
	if !ok {
		return ByronAddress{}, errors.New("unexpected Byron address payload type")
	}
	addr := ByronAddress{Payload: payload}
	if addr.checksum() != env.Checksum {
		return ByronAddress{}, errors.New("Byron address CRC mismatch")
	}
	return addr, nil
}

// PaymentPart is the payment credential of a Shelley address
type PaymentPart struct {
	Kind CredentialKind
	Hash lcommon.Blake2b224
}

// DelegationKind enumerates the delegation variants of a Shelley address
type DelegationKind uint8

const (
	// DelegationNone marks an enterprise address with no delegation
	DelegationNone DelegationKind = iota
	// DelegationKey delegates to a stake key hash
	DelegationKey
	// DelegationScript delegates to a script hash
	DelegationScript
	// DelegationPointer delegates via a certificate pointer
	DelegationPointer
)

// Pointer locates a stake registration certificate on chain
type Pointer struct {
	Slot      uint64
	TxIndex   uint64
	CertIndex uint64
}

// DelegationPart is the delegation credential of a Shelley address
type DelegationPart struct {
	Kind    DelegationKind
	Hash    lcommon.Blake2b224
	Pointer Pointer
}

// ShelleyAddress is a Shelley-era payment address. The single header byte
// encodes the payment type (bit 4), delegation type (bits 5-6), and
// network id (bit 0).
type ShelleyAddress struct {
	Network    Network
	Payment    PaymentPart
	Delegation DelegationPart
}

func (a ShelleyAddress) header() byte {
	header := byte(a.Network) & 0x01
	if a.Payment.Kind == ScriptCredential {
		header |= 1 << 4
	}
	var delegationBits byte
	switch a.Delegation.Kind {
	case DelegationKey:
		delegationBits = 0
	case DelegationScript:
		delegationBits = 1
	case DelegationPointer:
		delegationBits = 2
	case DelegationNone:
		delegationBits = 3
	}
	return header | (delegationBits << 5)
}

// Bytes returns the canonical binary form of the address
func (a ShelleyAddress) Bytes() ([]byte, error) {
	out := []byte{a.header()}
	out = append(out, a.Payment.Hash.Bytes()...)
	switch a.Delegation.Kind {
	case DelegationKey, DelegationScript:
		out = append(out, a.Delegation.Hash.Bytes()...)
	case DelegationPointer:
		var enc varIntEncoder
		enc.push(a.Delegation.Pointer.Slot)
		enc.push(a.Delegation.Pointer.TxIndex)
		enc.push(a.Delegation.Pointer.CertIndex)
		out = append(out, enc.bytes()...)
	case DelegationNone:
	}
	return out, nil
}

// String returns the bech32 addr1/addr_test1 form of the address
func (a ShelleyAddress) String() string {
	hrp := HrpAddress
	if a.Network == NetworkTestnet {
		hrp = HrpAddressTest
	}
	data, err := a.Bytes()
	if err != nil {
		return ""
	}
	encoded, err := EncodeBech32(hrp, data)
	if err != nil {
		return ""
	}
	return encoded
}

// ShelleyAddressFromBytes parses the binary form of a Shelley address
func ShelleyAddressFromBytes(data []byte) (ShelleyAddress, error) {
	if len(data) < 29 {
		return ShelleyAddress{}, fmt.Errorf(
			"short Shelley address: %d bytes",
			len(data),
		)
	}
	header := data[0]
	addr := ShelleyAddress{
		Network: Network(header & 0x01),
	}
	if (header>>4)&0x01 == 1 {
		addr.Payment.Kind = ScriptCredential
	}
	copy(addr.Payment.Hash[:], data[1:29])
	switch (header >> 5) & 0x03 {
	case 0, 1:
		if len(data) < 57 {
			return ShelleyAddress{}, fmt.Errorf(
				"short base address: %d bytes",
				len(data),
			)
		}
		if (header>>5)&0x03 == 0 {
			addr.Delegation.Kind = DelegationKey
		} else {
			addr.Delegation.Kind = DelegationScript
		}
		copy(addr.Delegation.Hash[:], data[29:57])
	case 2:
		addr.Delegation.Kind = DelegationPointer
		dec := varIntDecoder{data: data[29:]}
		slot, err := dec.read()
		if err != nil {
			return ShelleyAddress{}, err
		}
		txIndex, err := dec.read()
		if err != nil {
			return ShelleyAddress{}, err
		}
		certIndex, err := dec.read()
		if err != nil {
			return ShelleyAddress{}, err
		}
		addr.Delegation.Pointer = Pointer{
			Slot:      slot,
			TxIndex:   txIndex,
			CertIndex: certIndex,
		}
	case 3:
		addr.Delegation.Kind = DelegationNone
	}
	return addr, nil
}

// ShelleyAddressFromString parses the bech32 form of a Shelley address
func ShelleyAddressFromString(text string) (ShelleyAddress, error) {
	hrp, data, err := DecodeBech32(text)
	if err != nil {
		return ShelleyAddress{}, err
	}
	addr, err := ShelleyAddressFromBytes(data)
	if err != nil {
		return ShelleyAddress{}, err
	}
	if strings.Contains(hrp, "test") {
		addr.Network = NetworkTestnet
	} else {
		addr.Network = NetworkMainnet
	}
	return addr, nil
}

// StakeCredential is the payload of a stake address
type StakeCredential struct {
	Kind CredentialKind
	Hash lcommon.Blake2b224
}

// StakeAddress is a Shelley-era reward address: one header byte plus a
// 28-byte credential hash. The header carries the network id in bit 0 and
// the credential type in bits 4-7 (0b1110 key, 0b1111 script).
type StakeAddress struct {
	Network    Network
	Credential StakeCredential
}

// Bytes returns the 29-byte binary form of the stake address
func (a StakeAddress) Bytes() ([]byte, error) {
	headerBits := byte(0b1110)
	if a.Credential.Kind == ScriptCredential {
		headerBits = 0b1111
	}
	out := []byte{(byte(a.Network) & 0x01) | (headerBits << 4)}
	out = append(out, a.Credential.Hash.Bytes()...)
	return out, nil
}

// String returns the bech32 stake1/stake_test1 form of the address
func (a StakeAddress) String() string {
	hrp := HrpStake
	if a.Network == NetworkTestnet {
		hrp = HrpStakeTest
	}
	data, err := a.Bytes()
	if err != nil {
		return ""
	}
	encoded, err := EncodeBech32(hrp, data)
	if err != nil {
		return ""
	}
	return encoded
}

// Hash returns the credential hash regardless of kind
func (a StakeAddress) Hash() lcommon.Blake2b224 {
	return a.Credential.Hash
}

// StakeAddressFromBytes parses the 29-byte binary form of a stake address
func StakeAddressFromBytes(data []byte) (StakeAddress, error) {
	if len(data) != 29 {
		return StakeAddress{}, fmt.Errorf(
			"bad stake address length: %d",
			len(data),
		)
	}
	addr := StakeAddress{
		Network: Network(data[0] & 0x01),
	}
	switch (data[0] >> 4) & 0x0F {
	case 0b1110:
		addr.Credential.Kind = KeyCredential
	case 0b1111:
		addr.Credential.Kind = ScriptCredential
	default:
		return StakeAddress{}, fmt.Errorf(
			"unknown header byte %#x in stake address",
			data[0],
		)
	}
	copy(addr.Credential.Hash[:], data[1:])
	return addr, nil
}

// StakeAddressFromString parses the bech32 form of a stake address
func StakeAddressFromString(text string) (StakeAddress, error) {
	hrp, data, err := DecodeBech32(text)
	if err != nil {
		return StakeAddress{}, err
	}
	addr, err := StakeAddressFromBytes(data)
	if err != nil {
		return StakeAddress{}, err
	}
	if strings.Contains(hrp, "test") {
		addr.Network = NetworkTestnet
	} else {
		addr.Network = NetworkMainnet
	}
	return addr, nil
}

// Address is any of the three Cardano address families
type Address interface {
	// String returns the canonical string form (bech32 or base58)
	String() string
	// Bytes returns the canonical binary form
	Bytes() ([]byte, error)
}

// FromString parses any address family from its string form
func FromString(text string) (Address, error) {
	switch {
	case strings.HasPrefix(text, HrpAddress+"1"),
		strings.HasPrefix(text, HrpAddressTest+"1"):
		return ShelleyAddressFromString(text)
	case strings.HasPrefix(text, HrpStake+"1"),
		strings.HasPrefix(text, HrpStakeTest+"1"):
		return StakeAddressFromString(text)
	default:
		return ByronAddressFromString(text)
	}
}

// FromBytes parses any address family from its binary form. Byron
// addresses are recognised by their CBOR array leader; stake addresses by
// length and header type bits.
func FromBytes(data []byte) (Address, error) {
	if len(data) == 0 {
		return nil, ErrNoAddress
	}
	if data[0] == 0x82 {
		return ByronAddressFromBytes(data)
	}
	if len(data) == 29 && (data[0]>>5) == 0b111 {
		return StakeAddressFromBytes(data)
	}
	return ShelleyAddressFromBytes(data)
}

// Equal reports whether two addresses have the same binary form
func Equal(a, b Address) bool {
	if a == nil || b == nil {
		return a == b
	}
	ab, err := a.Bytes()
	if err != nil {
		return false
	}
	bb, err := b.Bytes()
	if err != nil {
		return false
	}
	return bytes.Equal(ab, bb)
}
