// Copyright (c) 2024 The sats20 developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package servicenode

import (
	"errors"
	"fmt"
)

// ErrorCode identifies the reason a service node announcement or ping was
// rejected.
type ErrorCode int

// These constants are used to identify a specific RuleError.
const (
	// ErrChainAnchorRejected indicates the best block claimed by the
	// service node is not an ancestor of the validator's chain.  This can
	// be transient when the local chain is behind.
	ErrChainAnchorRejected ErrorCode = iota

	// ErrInvalidKey indicates the service node public key is not a valid
	// secp256k1 point.
	ErrInvalidKey

	// ErrSignatureRecoveryFailed indicates no public key could be
	// recovered from the signature.
	ErrSignatureRecoveryFailed

	// ErrIdentityMismatch indicates the recovered key does not match the
	// claimed service node key or the collateral destination key.
	ErrIdentityMismatch

	// ErrUnsupportedScript indicates a collateral output is not locked to
	// a single key.
	ErrUnsupportedScript

	// ErrNoCollateral indicates a collateral backed tier was announced
	// without any collateral.
	ErrNoCollateral

	// ErrCollateralUnavailable indicates a collateral output is spent,
	// does not exist or its index is out of range.
	ErrCollateralUnavailable

	// ErrCollateralInsufficient indicates the total collateral is below
	// the tier threshold.
	ErrCollateralInsufficient

	// ErrUnknownTier indicates a tier outside the known set.
	ErrUnknownTier
)

// Map of ErrorCode values back to their constant names for pretty printing.
var errorCodeStrings = map[ErrorCode]string{
	ErrChainAnchorRejected:     "ErrChainAnchorRejected",
	ErrInvalidKey:              "ErrInvalidKey",
	ErrSignatureRecoveryFailed: "ErrSignatureRecoveryFailed",
	ErrIdentityMismatch:        "ErrIdentityMismatch",
	ErrUnsupportedScript:       "ErrUnsupportedScript",
	ErrNoCollateral:            "ErrNoCollateral",
	ErrCollateralUnavailable:   "ErrCollateralUnavailable",
	ErrCollateralInsufficient:  "ErrCollateralInsufficient",
	ErrUnknownTier:             "ErrUnknownTier",
}

// String returns the ErrorCode as a human-readable name.
func (e ErrorCode) String() string {
	if s := errorCodeStrings[e]; s != "" {
		return s
	}
	return fmt.Sprintf("Unknown ErrorCode (%d)", int(e))
}

// RuleError identifies a rule violation.  It is returned by the validation
// functions for every expected rejection, the caller can use type assertions
// or IsErrorCode to find the specific reason.
type RuleError struct {
	ErrorCode   ErrorCode // Describes the kind of error
	Description string    // Human readable description of the issue
}

// Error satisfies the error interface and prints human-readable errors.
func (e RuleError) Error() string {
	return e.Description
}

// ruleError creates a RuleError given a set of arguments.
func ruleError(c ErrorCode, desc string) RuleError {
	return RuleError{ErrorCode: c, Description: desc}
}

// IsErrorCode returns whether err is a RuleError with the given code.
func IsErrorCode(err error, c ErrorCode) bool {
	var rerr RuleError
	return errors.As(err, &rerr) && rerr.ErrorCode == c
}
