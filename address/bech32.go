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

package address

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil/bech32"
)

// Bech32 human-readable prefixes used across the module
const (
	HrpAddress          = "addr"
	HrpAddressTest      = "addr_test"
	HrpStake            = "stake"
	HrpStakeTest        = "stake_test"
	HrpPool             = "pool"
	HrpDRep             = "drep"
	HrpDRepScript       = "drep_script"
	HrpCommitteeHot     = "cc_hot"
	HrpCommitteeHotScript = "cc_hot_script"
	HrpGovAction        = "gov_action"
	HrpAsset            = "asset"
	HrpScript           = "script"
	HrpStakeKeyHash     = "stake_vkh"
)

// EncodeBech32 encodes arbitrary bytes under the given prefix. Cardano
// addresses exceed the 90-character BIP-173 limit, which bech32.Encode
// does not enforce on the way out.
func EncodeBech32(hrp string, data []byte) (string, error) {
	conv, err := bech32.ConvertBits(data, 8, 5, true)
	if err != nil {
		return "", fmt.Errorf("bech32 convert: %w", err)
	}
	encoded, err := bech32.Encode(hrp, conv)
	if err != nil {
		return "", fmt.Errorf("bech32 encode: %w", err)
	}
	return encoded, nil
}

// DecodeBech32 decodes a bech32 string of any length, returning the prefix
// and the raw payload bytes
func DecodeBech32(encoded string) (string, []byte, error) {
	hrp, conv, err := bech32.DecodeNoLimit(encoded)
	if err != nil {
		return "", nil, fmt.Errorf("bech32 decode: %w", err)
	}
	data, err := bech32.ConvertBits(conv, 5, 8, false)
	if err != nil {
		return "", nil, fmt.Errorf("bech32 convert: %w", err)
	}
	return hrp, data, nil
}
