// Copyright (c) 2024 The sats20 developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package servicenode

import (
	"bytes"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// ServiceNodePing is a signed liveness message from a service node.
//
// The signature only covers the public key.  There is no nonce or time in
// the signed data, so a captured ping stays valid forever and freshness is
// judged by arrival time.
type ServiceNodePing struct {
	snodePubKey []byte
	signature   []byte
}

// NewServiceNodePing returns a ping for the given key and signature.
func NewServiceNodePing(snodePubKey, signature []byte) *ServiceNodePing {
	return &ServiceNodePing{
		snodePubKey: copyBytes(snodePubKey),
		signature:   copyBytes(signature),
	}
}

// DecodeServiceNodePing deserializes a ping from b.  Trailing bytes are an
// error.
func DecodeServiceNodePing(b []byte) (*ServiceNodePing, error) {
	r := bytes.NewReader(b)
	p := &ServiceNodePing{}
	if err := p.BtcDecode(r, wire.ProtocolVersion); err != nil {
		return nil, err
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("service node ping has %d trailing bytes", r.Len())
	}
	return p, nil
}

// SnodePubKey returns the raw service node public key.
func (p *ServiceNodePing) SnodePubKey() []byte {
	return p.snodePubKey
}

// Signature returns the compact signature.
func (p *ServiceNodePing) Signature() []byte {
	return p.signature
}

// CreatePingSigHash returns the digest a service node signs for a ping.
func CreatePingSigHash(snodePubKey []byte) chainhash.Hash {
	var bw bytes.Buffer
	_ = wire.WriteVarBytes(&bw, wire.ProtocolVersion, snodePubKey)
	return chainhash.DoubleHashH(bw.Bytes())
}

// SigHash returns the digest covered by the ping signature.
func (p *ServiceNodePing) SigHash() chainhash.Hash {
	return CreatePingSigHash(p.snodePubKey)
}

// GetHash returns the hash of the serialized ping, key and signature.
func (p *ServiceNodePing) GetHash() chainhash.Hash {
	var bw bytes.Buffer
	_ = p.BtcEncode(&bw, wire.ProtocolVersion)
	return chainhash.DoubleHashH(bw.Bytes())
}

// Validate checks the ping key and that it was signed by that key.
func (p *ServiceNodePing) Validate() error {
	if _, err := secp256k1.ParsePubKey(p.snodePubKey); err != nil {
		str := fmt.Sprintf("invalid ping public key %x: %v", p.snodePubKey, err)
		return ruleError(ErrInvalidKey, str)
	}

	sigHash := p.SigHash()
	keyID, err := recoverKeyID(&sigHash, p.signature)
	if err != nil {
		return err
	}
	if !bytes.Equal(keyID, btcutil.Hash160(p.snodePubKey)) {
		str := fmt.Sprintf("ping was not signed by %x", p.snodePubKey)
		return ruleError(ErrIdentityMismatch, str)
	}
	return nil
}

// BtcEncode serializes the ping: pubkey then signature.
func (p *ServiceNodePing) BtcEncode(w io.Writer, pver uint32) error {
	if err := wire.WriteVarBytes(w, pver, p.snodePubKey); err != nil {
		return err
	}
	return wire.WriteVarBytes(w, pver, p.signature)
}

// BtcDecode deserializes a ping written by BtcEncode.
func (p *ServiceNodePing) BtcDecode(r io.Reader, pver uint32) error {
	pubKey, err := wire.ReadVarBytes(r, pver, MaxFieldPayload, "snodePubKey")
	if err != nil {
		return err
	}
	sig, err := wire.ReadVarBytes(r, pver, MaxFieldPayload, "signature")
	if err != nil {
		return err
	}
	p.snodePubKey = pubKey
	p.signature = sig
	return nil
}

// Serialize returns the network serialization of the ping.
func (p *ServiceNodePing) Serialize() []byte {
	var bw bytes.Buffer
	_ = p.BtcEncode(&bw, wire.ProtocolVersion)
	return bw.Bytes()
}
