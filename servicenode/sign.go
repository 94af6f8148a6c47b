// Copyright (c) 2024 The sats20 developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package servicenode

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

var errNoSigningKey = errors.New("no signing key")

// SignServiceNode builds an announcement for snodePubKey signed by key.
//
// For the open tier key must be the service node key.  For the SPV tier key
// must be the key every collateral output is locked to.  Announcements that
// could not be decoded by a peer are refused.
func SignServiceNode(key *btcec.PrivateKey, compressed bool, snodePubKey []byte,
	tier Tier, collateral []wire.OutPoint, bestBlock uint32,
	bestBlockHash chainhash.Hash) (*ServiceNode, error) {

	if key == nil {
		return nil, errNoSigningKey
	}
	if len(snodePubKey) > MaxFieldPayload {
		return nil, fmt.Errorf("service node public key is %d bytes, max %d",
			len(snodePubKey), MaxFieldPayload)
	}
	if len(collateral) > maxCollateralPerMessage {
		return nil, fmt.Errorf("too many collateral references [count %d, max %d]",
			len(collateral), maxCollateralPerMessage)
	}

	sigHash := CreateSigHash(snodePubKey, tier, collateral, bestBlock,
		bestBlockHash)
	sig := ecdsa.SignCompact(key, sigHash[:], compressed)

	return NewServiceNode(snodePubKey, tier, collateral, bestBlock,
		bestBlockHash, sig), nil
}

// SignPing builds a ping for the public key of key.
func SignPing(key *btcec.PrivateKey, compressed bool) (*ServiceNodePing, error) {
	if key == nil {
		return nil, errNoSigningKey
	}

	pubKey := key.PubKey().SerializeUncompressed()
	if compressed {
		pubKey = key.PubKey().SerializeCompressed()
	}

	sigHash := CreatePingSigHash(pubKey)
	sig := ecdsa.SignCompact(key, sigHash[:], compressed)

	return NewServiceNodePing(pubKey, sig), nil
}
