// Copyright (c) 2024 The sats20 developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package servicenode

import (
	"bytes"
	"runtime"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testServiceNode() *ServiceNode {
	return NewServiceNode(testKey(0x01).PubKey().SerializeCompressed(), TierSPV,
		[]wire.OutPoint{testOutPoint(0x01, 0), testOutPoint(0x02, 7)},
		testAnchorHeight, testHash(testAnchorSeed), bytes.Repeat([]byte{0x1f}, 65))
}

// TestSigHashDeterministic ensures the signing digest only depends on the
// signed fields and changes with each of them.
func TestSigHashDeterministic(t *testing.T) {
	base := testServiceNode()
	pubKey := base.SnodePubKey()
	collateral := base.Collateral()
	anchor := base.BestBlockHash()

	same := NewServiceNode(pubKey, TierSPV, collateral, testAnchorHeight, anchor,
		[]byte{0x00})
	assert.Equal(t, base.SigHash(), same.SigHash(), "signature is not signed")
	assert.Equal(t, base.SigHash(), same.WithRegTime(time.Unix(1, 0)).SigHash(),
		"registration time is not signed")
	assert.Equal(t, base.SigHash(), CreateSigHash(pubKey, TierSPV, collateral,
		testAnchorHeight, anchor))

	otherIndex := []wire.OutPoint{collateral[0], testOutPoint(0x02, 8)}
	otherHash := []wire.OutPoint{collateral[0], testOutPoint(0x03, 7)}
	reordered := []wire.OutPoint{collateral[1], collateral[0]}

	tests := []struct {
		name  string
		snode *ServiceNode
	}{
		{"pubkey", NewServiceNode(testKey(0x02).PubKey().SerializeCompressed(),
			TierSPV, collateral, testAnchorHeight, anchor, nil)},
		{"tier", NewServiceNode(pubKey, TierOpen, collateral, testAnchorHeight,
			anchor, nil)},
		{"collateral index", NewServiceNode(pubKey, TierSPV, otherIndex,
			testAnchorHeight, anchor, nil)},
		{"collateral txid", NewServiceNode(pubKey, TierSPV, otherHash,
			testAnchorHeight, anchor, nil)},
		{"collateral order", NewServiceNode(pubKey, TierSPV, reordered,
			testAnchorHeight, anchor, nil)},
		{"collateral dropped", NewServiceNode(pubKey, TierSPV, collateral[:1],
			testAnchorHeight, anchor, nil)},
		{"anchor height", NewServiceNode(pubKey, TierSPV, collateral,
			testAnchorHeight+1, anchor, nil)},
		{"anchor hash", NewServiceNode(pubKey, TierSPV, collateral,
			testAnchorHeight, testHash(testAnchorSeed+1), nil)},
	}

	seen := map[chainhash.Hash]string{base.SigHash(): "base"}
	for _, test := range tests {
		h := test.snode.SigHash()
		if prev, ok := seen[h]; ok {
			t.Errorf("%s: sighash %s collides with %s", test.name, h, prev)
		}
		seen[h] = test.name
	}
}

// TestSigHashLayout checks the signed serialization byte for byte.
func TestSigHashLayout(t *testing.T) {
	pubKey := []byte{0x02, 0xaa, 0xbb}
	op := wire.OutPoint{Hash: testHash(0x01), Index: 0x01020304}
	anchor := testHash(0x80)

	var want bytes.Buffer
	want.Write([]byte{0x03, 0x02, 0xaa, 0xbb}) // var bytes pubkey
	want.Write([]byte{0x32, 0x00, 0x00, 0x00}) // tier 50
	want.Write([]byte{0x01})                   // one reference
	want.Write(op.Hash[:])                     // txid
	want.Write([]byte{0x04, 0x03, 0x02, 0x01}) // index
	want.Write([]byte{0xb0, 0x04, 0x00, 0x00}) // height 1200
	want.Write(anchor[:])

	got := CreateSigHash(pubKey, TierSPV, []wire.OutPoint{op}, testAnchorHeight,
		anchor)
	assert.Equal(t, chainhash.DoubleHashH(want.Bytes()), got)

	// The network serialization appends the signature.
	snode := NewServiceNode(pubKey, TierSPV, []wire.OutPoint{op},
		testAnchorHeight, anchor, []byte{0xee})
	want.Write([]byte{0x01, 0xee})
	assert.Equal(t, want.Bytes(), snode.Serialize())
}

// TestGetHash ensures the local content hash covers the signature and the
// registration time.
func TestGetHash(t *testing.T) {
	base := testServiceNode().WithRegTime(time.Unix(1700000000, 0))

	assert.Equal(t, base.GetHash(), base.WithRegTime(time.Unix(1700000000, 0)).GetHash())
	assert.NotEqual(t, base.GetHash(), base.WithRegTime(time.Unix(1700000001, 0)).GetHash())
	assert.NotEqual(t, base.GetHash(), base.SigHash())

	resigned := NewServiceNode(base.SnodePubKey(), base.Tier(), base.Collateral(),
		base.BestBlock(), base.BestBlockHash(), []byte{0x01}).
		WithRegTime(time.Unix(base.RegTime(), 0))
	assert.NotEqual(t, base.GetHash(), resigned.GetHash())
	assert.Equal(t, base.SigHash(), resigned.SigHash())
}

// TestServiceNodeSerialization round trips records through the wire format.
func TestServiceNodeSerialization(t *testing.T) {
	regTime := time.Unix(1700000123, 0)

	tests := []struct {
		name  string
		snode *ServiceNode
	}{
		{"spv", testServiceNode()},
		{"open", NewServiceNode(testKey(0x03).PubKey().SerializeUncompressed(),
			TierOpen, nil, 0, chainhash.Hash{}, []byte{0x20})},
		{"unknown tier", NewServiceNode([]byte{0x01}, Tier(7),
			[]wire.OutPoint{testOutPoint(0x05, 0), testOutPoint(0x05, 0)},
			1, testHash(0x09), []byte{0x01, 0x02})},
	}

	for _, test := range tests {
		raw := test.snode.Serialize()
		decoded, err := DecodeServiceNode(raw, regTime)
		if err != nil {
			t.Errorf("%s: unexpected error %v", test.name, err)
			continue
		}

		assert.Equal(t, test.snode.SnodePubKey(), decoded.SnodePubKey(), test.name)
		assert.Equal(t, test.snode.Tier(), decoded.Tier(), test.name)
		assert.Equal(t, len(test.snode.Collateral()), len(decoded.Collateral()), test.name)
		for i, op := range test.snode.Collateral() {
			assert.Equal(t, op, decoded.Collateral()[i], test.name)
		}
		assert.Equal(t, test.snode.BestBlock(), decoded.BestBlock(), test.name)
		assert.Equal(t, test.snode.BestBlockHash(), decoded.BestBlockHash(), test.name)
		assert.Equal(t, test.snode.Signature(), decoded.Signature(), test.name)
		assert.Equal(t, test.snode.SigHash(), decoded.SigHash(), test.name)
		assert.Equal(t, regTime.Unix(), decoded.RegTime(), test.name)
		assert.Equal(t, raw, decoded.Serialize(), test.name)
	}
}

// TestServiceNodeDecodeErrors ensures truncated or padded records are
// rejected.
func TestServiceNodeDecodeErrors(t *testing.T) {
	raw := testServiceNode().Serialize()

	for i := 0; i < len(raw); i += 7 {
		if _, err := DecodeServiceNode(raw[:i], time.Now()); err == nil {
			t.Errorf("truncated at %d: expected error", i)
		}
	}

	_, err := DecodeServiceNode(append(copyBytes(raw), 0x00), time.Now())
	assert.Error(t, err)

	// A collateral count that can not fit in a message.
	var bw bytes.Buffer
	require.NoError(t, wire.WriteVarBytes(&bw, wire.ProtocolVersion, []byte{0x02}))
	bw.Write([]byte{0x32, 0x00, 0x00, 0x00})
	require.NoError(t, wire.WriteVarInt(&bw, wire.ProtocolVersion, maxCollateralPerMessage+1))
	_, err = DecodeServiceNode(bw.Bytes(), time.Now())
	assert.Error(t, err)

	// A count that fits in a message but not in the buffer fails without
	// allocating for the claimed references.
	bw.Reset()
	require.NoError(t, wire.WriteVarBytes(&bw, wire.ProtocolVersion, []byte{0x02}))
	bw.Write([]byte{0x32, 0x00, 0x00, 0x00})
	require.NoError(t, wire.WriteVarInt(&bw, wire.ProtocolVersion, maxCollateralPerMessage))
	short := bw.Bytes()

	var before, after runtime.MemStats
	runtime.ReadMemStats(&before)
	_, err = DecodeServiceNode(short, time.Now())
	runtime.ReadMemStats(&after)
	assert.Error(t, err)
	assert.Less(t, after.TotalAlloc-before.TotalAlloc, uint64(1<<20))

	// Oversized public key.
	bw.Reset()
	require.NoError(t, wire.WriteVarBytes(&bw, wire.ProtocolVersion,
		make([]byte, MaxFieldPayload+1)))
	_, err = DecodeServiceNode(bw.Bytes(), time.Now())
	assert.Error(t, err)
}

// TestServiceNodeEquality ensures equality follows the public key and ordering
// follows the registration time.
func TestServiceNodeEquality(t *testing.T) {
	a := testServiceNode().WithRegTime(time.Unix(100, 0))
	b := NewServiceNode(a.SnodePubKey(), TierOpen, nil, 1, chainhash.Hash{}, nil).
		WithRegTime(time.Unix(50, 0))
	c := NewServiceNode(testKey(0x09).PubKey().SerializeCompressed(), TierSPV,
		a.Collateral(), a.BestBlock(), a.BestBlockHash(), a.Signature()).
		WithRegTime(time.Unix(100, 0))

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.True(t, b.Less(a))
	assert.False(t, a.Less(b))
	assert.False(t, a.Less(c))
	assert.False(t, c.Less(a))

	assert.True(t, NewServiceNode(nil, TierOpen, nil, 0, chainhash.Hash{}, nil).IsNull())
	assert.False(t, a.IsNull())
}

// TestServiceNodeImmutable ensures callers can not change a record through the
// slices they passed in or got back.
func TestServiceNodeImmutable(t *testing.T) {
	pubKey := testKey(0x01).PubKey().SerializeCompressed()
	collateral := []wire.OutPoint{testOutPoint(0x01, 0)}
	snode := NewServiceNode(pubKey, TierSPV, collateral, 1, chainhash.Hash{}, nil)
	before := snode.SigHash()

	pubKey[1] ^= 0xff
	collateral[0].Index = 9
	snode.Collateral()[0].Index = 10

	assert.Equal(t, before, snode.SigHash())
}

// TestTierString tests the stringized output for the Tier type.
func TestTierString(t *testing.T) {
	tests := []struct {
		in    Tier
		want  string
		known bool
	}{
		{TierOpen, "OPEN", true},
		{TierSPV, "SPV", true},
		{Tier(1), "Unknown Tier (1)", false},
	}

	for i, test := range tests {
		if got := test.in.String(); got != test.want {
			t.Errorf("String #%d\n got: %s want: %s", i, got, test.want)
		}
		if got := test.in.IsKnown(); got != test.known {
			t.Errorf("IsKnown #%d\n got: %v want: %v", i, got, test.known)
		}
	}

	assert.Equal(t, int64(500000000000), int64(CollateralSPV))
}
