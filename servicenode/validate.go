// Copyright (c) 2024 The sats20 developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package servicenode

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/davecgh/go-spew/spew"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/sirupsen/logrus"
)

// IsValid returns whether the announcement passes Validate.
func (s *ServiceNode) IsValid(oracle ChainOracle) bool {
	return s.Validate(oracle) == nil
}

// Validate checks the announcement against the chain view of oracle.  It
// returns nil when the service node is accepted and a RuleError describing
// the first failed check otherwise.
//
// The chain anchor is checked first, then the public key.  Open tier
// records must be signed by the service node key.  SPV tier records must
// reference unspent outputs that are each locked to the key that signed the
// record and together hold at least CollateralSPV.
func (s *ServiceNode) Validate(oracle ChainOracle) error {
	if !oracle.IsAncestor(s.bestBlock, s.bestBlockHash) {
		str := fmt.Sprintf("best block %d (%s) is not an ancestor of the "+
			"chain tip", s.bestBlock, s.bestBlockHash)
		return ruleError(ErrChainAnchorRejected, str)
	}

	if _, err := secp256k1.ParsePubKey(s.snodePubKey); err != nil {
		str := fmt.Sprintf("invalid service node public key %x: %v",
			s.snodePubKey, err)
		return ruleError(ErrInvalidKey, str)
	}

	if log.Logger.IsLevelEnabled(logrus.TraceLevel) {
		log.Tracef("Validate: %s", spew.Sdump(s))
	}

	switch s.tier {
	case TierOpen:
		sigHash := s.SigHash()
		keyID, err := recoverKeyID(&sigHash, s.signature)
		if err != nil {
			return err
		}
		if !bytes.Equal(keyID, s.KeyID()) {
			str := fmt.Sprintf("signature was not made by service node "+
				"key %x", s.snodePubKey)
			return ruleError(ErrIdentityMismatch, str)
		}
		return nil

	case TierSPV:
		return s.checkCollateral(oracle, CollateralSPV)

	default:
		str := fmt.Sprintf("unknown service node tier %d", uint32(s.tier))
		return ruleError(ErrUnknownTier, str)
	}
}

// checkCollateral checks every unique collateral reference against the
// record signature and the total against minCollateral.
func (s *ServiceNode) checkCollateral(oracle ChainOracle, minCollateral btcutil.Amount) error {
	if len(s.collateral) == 0 {
		return ruleError(ErrNoCollateral, "collateral backed tier has no "+
			"collateral")
	}

	sigHash := s.SigHash()
	var signerID []byte
	var total btcutil.Amount
	for _, op := range uniqueOutPoints(s.collateral) {
		out, ok := oracle.LookupUnspentOutput(op)
		if !ok || out == nil {
			str := fmt.Sprintf("collateral %s is spent or does not exist",
				op.String())
			return ruleError(ErrCollateralUnavailable, str)
		}
		amount := btcutil.Amount(out.Amount)
		if amount < 0 || amount > btcutil.MaxSatoshi {
			str := fmt.Sprintf("collateral %s has invalid amount %d",
				op.String(), out.Amount)
			return ruleError(ErrCollateralUnavailable, str)
		}

		dest, err := extractDestination(out.PkScript)
		if err != nil {
			str := fmt.Sprintf("collateral %s: %v", op.String(), err)
			return ruleError(ErrUnsupportedScript, str)
		}

		// Recovered once, on the first output.
		if signerID == nil {
			signerID, err = recoverKeyID(&sigHash, s.signature)
			if err != nil {
				return err
			}
		}
		if !bytes.Equal(signerID, dest.keyID) {
			str := fmt.Sprintf("collateral %s is locked to %x, signature "+
				"was made by %x", op.String(), dest.keyID, signerID)
			return ruleError(ErrIdentityMismatch, str)
		}

		total += amount
		log.Tracef("checkCollateral: %s %s (%s) total %s", op.String(),
			amount, dest.class, total)
	}

	if total < minCollateral {
		str := fmt.Sprintf("collateral %s is below the %s tier minimum %s",
			total, s.tier, minCollateral)
		return ruleError(ErrCollateralInsufficient, str)
	}

	return nil
}

// recoverKeyID recovers the signer of hash and returns the hash160 of its
// serialized key, compressed or not as flagged in the signature.
func recoverKeyID(hash *chainhash.Hash, sig []byte) ([]byte, error) {
	pubKey, compressed, err := ecdsa.RecoverCompact(sig, hash[:])
	if err != nil {
		str := fmt.Sprintf("unable to recover public key from signature: %v",
			err)
		return nil, ruleError(ErrSignatureRecoveryFailed, str)
	}
	if compressed {
		return btcutil.Hash160(pubKey.SerializeCompressed()), nil
	}
	return btcutil.Hash160(pubKey.SerializeUncompressed()), nil
}

// destination is the single key a locking script pays to.
type destination struct {
	class txscript.ScriptClass
	keyID []byte
}

// extractDestination returns the key id a pay-to-pubkey-hash or
// pay-to-pubkey script is locked to.  Every other script form is
// unsupported.
func extractDestination(pkScript []byte) (*destination, error) {
	class, addrs, _, err := txscript.ExtractPkScriptAddrs(pkScript,
		&chaincfg.MainNetParams)
	if err != nil {
		return nil, err
	}

	switch class {
	case txscript.PubKeyHashTy:
		if len(addrs) != 1 {
			return nil, fmt.Errorf("malformed %s script", class)
		}
		return &destination{class: class, keyID: addrs[0].ScriptAddress()}, nil

	case txscript.PubKeyTy:
		if len(addrs) != 1 {
			return nil, fmt.Errorf("malformed %s script", class)
		}
		return &destination{
			class: class,
			keyID: btcutil.Hash160(addrs[0].ScriptAddress()),
		}, nil

	default:
		return nil, fmt.Errorf("unsupported script form %s", class)
	}
}

// uniqueOutPoints returns the distinct references sorted by txid then index.
func uniqueOutPoints(ops []wire.OutPoint) []wire.OutPoint {
	seen := make(map[wire.OutPoint]struct{}, len(ops))
	unique := make([]wire.OutPoint, 0, len(ops))
	for _, op := range ops {
		if _, ok := seen[op]; ok {
			continue
		}
		seen[op] = struct{}{}
		unique = append(unique, op)
	}
	sort.Slice(unique, func(i, j int) bool {
		if c := bytes.Compare(unique[i].Hash[:], unique[j].Hash[:]); c != 0 {
			return c < 0
		}
		return unique[i].Index < unique[j].Index
	})
	return unique
}
