// Copyright (c) 2024 The sats20 developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package servicenode

import (
	"sync"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// testOracle is a ChainOracle backed by maps.
type testOracle struct {
	mtx      sync.Mutex
	blocks   map[uint32]chainhash.Hash
	utxos    map[wire.OutPoint]*UnspentOutput
	lookups  int
	ancestor int
}

func newTestOracle() *testOracle {
	return &testOracle{
		blocks: make(map[uint32]chainhash.Hash),
		utxos:  make(map[wire.OutPoint]*UnspentOutput),
	}
}

func (o *testOracle) IsAncestor(height uint32, hash chainhash.Hash) bool {
	o.mtx.Lock()
	defer o.mtx.Unlock()
	o.ancestor++
	h, ok := o.blocks[height]
	return ok && h == hash
}

func (o *testOracle) LookupUnspentOutput(op wire.OutPoint) (*UnspentOutput, bool) {
	o.mtx.Lock()
	defer o.mtx.Unlock()
	o.lookups++
	out, ok := o.utxos[op]
	return out, ok
}

func (o *testOracle) addUtxo(op wire.OutPoint, amount btcutil.Amount, pkScript []byte) {
	o.utxos[op] = &UnspentOutput{Amount: int64(amount), PkScript: pkScript}
}

// testKey returns a deterministic private key derived from seed.
func testKey(seed byte) *btcec.PrivateKey {
	var b [32]byte
	for i := range b {
		b[i] = seed
	}
	b[0] = 0x01
	key, _ := btcec.PrivKeyFromBytes(b[:])
	return key
}

func testHash(seed byte) chainhash.Hash {
	var h chainhash.Hash
	for i := range h {
		h[i] = seed + byte(i)
	}
	return h
}

func testOutPoint(seed byte, index uint32) wire.OutPoint {
	return wire.OutPoint{Hash: testHash(seed), Index: index}
}

func p2pkhScript(t *testing.T, key *btcec.PrivateKey) []byte {
	t.Helper()
	addr, err := btcutil.NewAddressPubKeyHash(
		btcutil.Hash160(key.PubKey().SerializeCompressed()),
		&chaincfg.MainNetParams)
	if err != nil {
		t.Fatalf("NewAddressPubKeyHash: unexpected error %v", err)
	}
	script, err := txscript.PayToAddrScript(addr)
	if err != nil {
		t.Fatalf("PayToAddrScript: unexpected error %v", err)
	}
	return script
}

func p2pkScript(t *testing.T, key *btcec.PrivateKey) []byte {
	t.Helper()
	script, err := txscript.NewScriptBuilder().
		AddData(key.PubKey().SerializeCompressed()).
		AddOp(txscript.OP_CHECKSIG).
		Script()
	if err != nil {
		t.Fatalf("ScriptBuilder: unexpected error %v", err)
	}
	return script
}

func p2shScript(t *testing.T) []byte {
	t.Helper()
	addr, err := btcutil.NewAddressScriptHash([]byte{txscript.OP_TRUE},
		&chaincfg.MainNetParams)
	if err != nil {
		t.Fatalf("NewAddressScriptHash: unexpected error %v", err)
	}
	script, err := txscript.PayToAddrScript(addr)
	if err != nil {
		t.Fatalf("PayToAddrScript: unexpected error %v", err)
	}
	return script
}
