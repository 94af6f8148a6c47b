// Copyright (c) 2024 The sats20 developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package xbridge

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// AddressSize is the size of the legacy packet address, it is skipped
	// on decode and written as zeros on encode.
	AddressSize = 20

	// LegacyTimestampSize is the size of the legacy uint64 timestamp which
	// follows the address.  It is ignored as well.
	LegacyTimestampSize = 8

	// PubKeySize is the size of the compressed public key carried in the
	// header.
	PubKeySize = 33

	// SignatureSize is the size of the raw packet signature.
	SignatureSize = 64

	// HeaderSize is the number of bytes before the body:
	// address 20 + legacy timestamp 8 + version 4 + command 4 +
	// timestamp 4 + body size 4 + pubkey 33 + signature 64.
	HeaderSize = AddressSize + LegacyTimestampSize + 4*4 + PubKeySize + SignatureSize
)

// ErrMalformedPacket is returned when a buffer can not hold a legacy packet.
var ErrMalformedPacket = errors.New("malformed xbridge packet")

// LegacyPacket is the decoded form of a legacy xbridge packet.
//
// BodySize is the size the sender declared for the body.  It is never used
// for bounds, Body always holds every byte after the header.
type LegacyPacket struct {
	Version   uint32
	Command   uint32
	Timestamp uint32
	BodySize  uint32
	PubKey    [PubKeySize]byte
	Signature [SignatureSize]byte
	Body      []byte
}

// reader is a bounds checked cursor over a packet buffer.
type reader struct {
	buf []byte
	off int
}

func (r *reader) next(n int) ([]byte, error) {
	if n < 0 || len(r.buf)-r.off < n {
		return nil, fmt.Errorf("%w: need %d bytes at offset %d, have %d",
			ErrMalformedPacket, n, r.off, len(r.buf)-r.off)
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b, nil
}

func (r *reader) skip(n int) error {
	_, err := r.next(n)
	return err
}

func (r *reader) uint32() (uint32, error) {
	b, err := r.next(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *reader) rest() []byte {
	b := make([]byte, len(r.buf)-r.off)
	copy(b, r.buf[r.off:])
	r.off = len(r.buf)
	return b
}

// DecodeLegacyPacket decodes a raw legacy packet.  Buffers shorter than
// HeaderSize fail with ErrMalformedPacket.
func DecodeLegacyPacket(raw []byte) (*LegacyPacket, error) {
	if len(raw) < HeaderSize {
		return nil, fmt.Errorf("%w: packet is %d bytes, header needs %d",
			ErrMalformedPacket, len(raw), HeaderSize)
	}

	r := &reader{buf: raw}
	pkt := &LegacyPacket{}

	if err := r.skip(AddressSize + LegacyTimestampSize); err != nil {
		return nil, err
	}
	fields := []*uint32{&pkt.Version, &pkt.Command, &pkt.Timestamp, &pkt.BodySize}
	for _, f := range fields {
		v, err := r.uint32()
		if err != nil {
			return nil, err
		}
		*f = v
	}

	pubKey, err := r.next(PubKeySize)
	if err != nil {
		return nil, err
	}
	copy(pkt.PubKey[:], pubKey)

	sig, err := r.next(SignatureSize)
	if err != nil {
		return nil, err
	}
	copy(pkt.Signature[:], sig)

	pkt.Body = r.rest()
	if uint64(pkt.BodySize) != uint64(len(pkt.Body)) {
		log.Debugf("DecodeLegacyPacket: declared body size %d, actual %d",
			pkt.BodySize, len(pkt.Body))
	}

	return pkt, nil
}

// Encode writes the packet in the legacy layout.  The address and legacy
// timestamp are zero filled and BodySize is written as given.
func (p *LegacyPacket) Encode() []byte {
	var bw bytes.Buffer
	bw.Grow(HeaderSize + len(p.Body))

	bw.Write(make([]byte, AddressSize+LegacyTimestampSize))
	var b [4]byte
	for _, v := range []uint32{p.Version, p.Command, p.Timestamp, p.BodySize} {
		binary.LittleEndian.PutUint32(b[:], v)
		bw.Write(b[:])
	}
	bw.Write(p.PubKey[:])
	bw.Write(p.Signature[:])
	bw.Write(p.Body)

	return bw.Bytes()
}

// NewLegacyPacket returns a packet carrying body with BodySize set to the
// body length.
func NewLegacyPacket(version, command, timestamp uint32, pubKey [PubKeySize]byte,
	sig [SignatureSize]byte, body []byte) *LegacyPacket {

	return &LegacyPacket{
		Version:   version,
		Command:   command,
		Timestamp: timestamp,
		BodySize:  uint32(len(body)),
		PubKey:    pubKey,
		Signature: sig,
		Body:      body,
	}
}
