// Copyright (c) 2024 The sats20 developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package servicenode

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

const (
	// MaxFieldPayload is the largest public key or signature accepted when
	// decoding.  Anything that large is rejected by validation anyway.
	MaxFieldPayload = txscript.MaxScriptElementSize

	// outPointSize is the serialized size of a collateral reference:
	// txid 32 bytes + index 4 bytes.
	outPointSize = chainhash.HashSize + 4

	// maxCollateralPerMessage is the most collateral references that can
	// fit in a single message.
	maxCollateralPerMessage = wire.MaxMessagePayload / outPointSize

	// collateralCapHint is the most collateral references allocated up
	// front when decoding.
	collateralCapHint = 64
)

// ServiceNode is a service node announcement.  It is immutable once
// constructed, liveness is tracked by whoever holds the record.
//
// Two records are equal when their public keys are equal.  Records are
// ordered by the time they were first seen.
type ServiceNode struct {
	snodePubKey   []byte
	tier          Tier
	collateral    []wire.OutPoint
	bestBlock     uint32
	bestBlockHash chainhash.Hash
	signature     []byte

	// in-memory only
	regTime int64
}

// NewServiceNode returns a service node announcement registered now.
func NewServiceNode(snodePubKey []byte, tier Tier, collateral []wire.OutPoint,
	bestBlock uint32, bestBlockHash chainhash.Hash, signature []byte) *ServiceNode {

	return &ServiceNode{
		snodePubKey:   copyBytes(snodePubKey),
		tier:          tier,
		collateral:    copyOutPoints(collateral),
		bestBlock:     bestBlock,
		bestBlockHash: bestBlockHash,
		signature:     copyBytes(signature),
		regTime:       time.Now().Unix(),
	}
}

// DecodeServiceNode deserializes a service node announcement from b and
// records regTime as the time it was first seen.  Trailing bytes are an
// error.
func DecodeServiceNode(b []byte, regTime time.Time) (*ServiceNode, error) {
	r := bytes.NewReader(b)
	s := &ServiceNode{}
	if err := s.BtcDecode(r, wire.ProtocolVersion); err != nil {
		return nil, err
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("service node has %d trailing bytes", r.Len())
	}
	s.regTime = regTime.Unix()
	return s, nil
}

// WithRegTime returns a copy of the record first seen at t.
func (s *ServiceNode) WithRegTime(t time.Time) *ServiceNode {
	c := *s
	c.regTime = t.Unix()
	return &c
}

// IsNull returns whether the record carries no public key.
func (s *ServiceNode) IsNull() bool {
	return len(s.snodePubKey) == 0
}

// SnodePubKey returns the raw service node public key.  The caller must not
// modify it.
func (s *ServiceNode) SnodePubKey() []byte {
	return s.snodePubKey
}

// KeyID returns the hash160 of the raw service node public key.
func (s *ServiceNode) KeyID() []byte {
	return btcutil.Hash160(s.snodePubKey)
}

// Tier returns the announced tier.  It can hold an unknown value.
func (s *ServiceNode) Tier() Tier {
	return s.tier
}

// Collateral returns a copy of the collateral references in announced order.
func (s *ServiceNode) Collateral() []wire.OutPoint {
	return copyOutPoints(s.collateral)
}

// BestBlock returns the height of the chain anchor.
func (s *ServiceNode) BestBlock() uint32 {
	return s.bestBlock
}

// BestBlockHash returns the hash of the chain anchor.
func (s *ServiceNode) BestBlockHash() chainhash.Hash {
	return s.bestBlockHash
}

// Signature returns the compact signature.  The caller must not modify it.
func (s *ServiceNode) Signature() []byte {
	return s.signature
}

// RegTime returns the unix time the record was first seen.
func (s *ServiceNode) RegTime() int64 {
	return s.regTime
}

// Equal returns whether both records belong to the same service node key.
func (s *ServiceNode) Equal(o *ServiceNode) bool {
	return bytes.Equal(s.snodePubKey, o.snodePubKey)
}

// Less orders records by registration time.
func (s *ServiceNode) Less(o *ServiceNode) bool {
	return s.regTime < o.regTime
}

// CreateSigHash returns the digest a service node signs:
// pubkey, tier, collateral, best block and best block hash.
func CreateSigHash(snodePubKey []byte, tier Tier, collateral []wire.OutPoint,
	bestBlock uint32, bestBlockHash chainhash.Hash) chainhash.Hash {

	var bw bytes.Buffer
	// Writes to a bytes.Buffer never fail.
	_ = writeSigned(&bw, wire.ProtocolVersion, snodePubKey, tier, collateral,
		bestBlock, &bestBlockHash)
	return chainhash.DoubleHashH(bw.Bytes())
}

// SigHash returns the digest covered by the record signature.
func (s *ServiceNode) SigHash() chainhash.Hash {
	return CreateSigHash(s.snodePubKey, s.tier, s.collateral, s.bestBlock,
		s.bestBlockHash)
}

// GetHash returns the local content hash of the record.  It covers every
// serialized field plus the registration time, so it can not be computed
// from the wire bytes alone.
func (s *ServiceNode) GetHash() chainhash.Hash {
	var bw bytes.Buffer
	_ = s.BtcEncode(&bw, wire.ProtocolVersion)
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(s.regTime))
	bw.Write(b[:])
	return chainhash.DoubleHashH(bw.Bytes())
}

// BtcEncode serializes the record in network order.
func (s *ServiceNode) BtcEncode(w io.Writer, pver uint32) error {
	err := writeSigned(w, pver, s.snodePubKey, s.tier, s.collateral,
		s.bestBlock, &s.bestBlockHash)
	if err != nil {
		return err
	}
	return wire.WriteVarBytes(w, pver, s.signature)
}

// BtcDecode deserializes a record written by BtcEncode.  The registration
// time is left untouched.
func (s *ServiceNode) BtcDecode(r io.Reader, pver uint32) error {
	pubKey, err := wire.ReadVarBytes(r, pver, MaxFieldPayload, "snodePubKey")
	if err != nil {
		return err
	}

	tier, err := readUint32(r)
	if err != nil {
		return fmt.Errorf("read tier: %w", err)
	}

	count, err := wire.ReadVarInt(r, pver)
	if err != nil {
		return err
	}
	if count > maxCollateralPerMessage {
		return fmt.Errorf("too many collateral references [count %d, max %d]",
			count, maxCollateralPerMessage)
	}
	// The count is untrusted, grow as references are read.
	capHint := count
	if capHint > collateralCapHint {
		capHint = collateralCapHint
	}
	collateral := make([]wire.OutPoint, 0, capHint)
	for i := uint64(0); i < count; i++ {
		var op wire.OutPoint
		if err := readOutPoint(r, &op); err != nil {
			return fmt.Errorf("read collateral %d: %w", i, err)
		}
		collateral = append(collateral, op)
	}

	bestBlock, err := readUint32(r)
	if err != nil {
		return fmt.Errorf("read best block: %w", err)
	}

	var bestBlockHash chainhash.Hash
	if _, err := io.ReadFull(r, bestBlockHash[:]); err != nil {
		return fmt.Errorf("read best block hash: %w", err)
	}

	sig, err := wire.ReadVarBytes(r, pver, MaxFieldPayload, "signature")
	if err != nil {
		return err
	}

	s.snodePubKey = pubKey
	s.tier = Tier(tier)
	s.collateral = collateral
	s.bestBlock = bestBlock
	s.bestBlockHash = bestBlockHash
	s.signature = sig
	return nil
}

// Serialize returns the network serialization of the record.
func (s *ServiceNode) Serialize() []byte {
	var bw bytes.Buffer
	_ = s.BtcEncode(&bw, wire.ProtocolVersion)
	return bw.Bytes()
}

// String returns a short description of the record for logging.
func (s *ServiceNode) String() string {
	return fmt.Sprintf("snode %x tier %s collateral %d anchor %d/%s",
		s.snodePubKey, s.tier, len(s.collateral), s.bestBlock, s.bestBlockHash)
}

// writeSigned writes the fields covered by the signature in network order.
func writeSigned(w io.Writer, pver uint32, snodePubKey []byte, tier Tier,
	collateral []wire.OutPoint, bestBlock uint32, bestBlockHash *chainhash.Hash) error {

	if err := wire.WriteVarBytes(w, pver, snodePubKey); err != nil {
		return err
	}
	if err := writeUint32(w, uint32(tier)); err != nil {
		return err
	}
	if err := wire.WriteVarInt(w, pver, uint64(len(collateral))); err != nil {
		return err
	}
	for i := range collateral {
		if err := writeOutPoint(w, &collateral[i]); err != nil {
			return err
		}
	}
	if err := writeUint32(w, bestBlock); err != nil {
		return err
	}
	_, err := w.Write(bestBlockHash[:])
	return err
}

func writeOutPoint(w io.Writer, op *wire.OutPoint) error {
	if _, err := w.Write(op.Hash[:]); err != nil {
		return err
	}
	return writeUint32(w, op.Index)
}

func readOutPoint(r io.Reader, op *wire.OutPoint) error {
	if _, err := io.ReadFull(r, op.Hash[:]); err != nil {
		return err
	}
	index, err := readUint32(r)
	if err != nil {
		return err
	}
	op.Index = index
	return nil
}

func writeUint32(w io.Writer, v uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func readUint32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func copyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	c := make([]byte, len(b))
	copy(c, b)
	return c
}

func copyOutPoints(ops []wire.OutPoint) []wire.OutPoint {
	if ops == nil {
		return nil
	}
	c := make([]wire.OutPoint, len(ops))
	copy(c, ops)
	return c
}
