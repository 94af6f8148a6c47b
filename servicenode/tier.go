// Copyright (c) 2024 The sats20 developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package servicenode

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
)

// Tier is the trust class a service node announces.  The numeric values are
// part of the wire format.
type Tier uint32

const (
	// TierOpen needs no collateral, the announcement is self signed by the
	// service node key.
	TierOpen Tier = 0

	// TierSPV needs at least CollateralSPV locked in outputs controlled by
	// the key that signed the announcement.
	TierSPV Tier = 50
)

// CollateralSPV is the minimum total collateral for TierSPV.
const CollateralSPV = btcutil.Amount(5000 * btcutil.SatoshiPerBitcoin)

var tierStrings = map[Tier]string{
	TierOpen: "OPEN",
	TierSPV:  "SPV",
}

// String returns the Tier in human-readable form.
func (t Tier) String() string {
	if s, ok := tierStrings[t]; ok {
		return s
	}
	return fmt.Sprintf("Unknown Tier (%d)", uint32(t))
}

// IsKnown returns whether the tier is one of the defined tiers.
func (t Tier) IsKnown() bool {
	_, ok := tierStrings[t]
	return ok
}
