// Copyright (c) 2024 The sats20 developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package utxoview

import (
	"sync"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/sat20-labs/servicenode/servicenode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func testHash(seed byte) chainhash.Hash {
	var h chainhash.Hash
	for i := range h {
		h[i] = seed
	}
	return h
}

// TestMainChain checks block connect, lookup and disconnect.
func TestMainChain(t *testing.T) {
	store := openTestStore(t)

	hash := testHash(0x01)
	require.NoError(t, store.ConnectBlock(10, &hash))

	assert.True(t, store.IsAncestor(10, hash))
	assert.False(t, store.IsAncestor(10, testHash(0x02)))
	assert.False(t, store.IsAncestor(11, hash))

	got, err := store.BlockHash(10)
	require.NoError(t, err)
	assert.Equal(t, hash, *got)

	require.NoError(t, store.DisconnectBlock(10))
	assert.False(t, store.IsAncestor(10, hash))
	_, err = store.BlockHash(10)
	assert.Error(t, err)
}

// TestUtxos checks unspent outputs are stored, copied out and spent.
func TestUtxos(t *testing.T) {
	store := openTestStore(t)

	op := wire.OutPoint{Hash: testHash(0x03), Index: 2}
	script := []byte{txscript.OP_DUP, txscript.OP_HASH160}
	require.NoError(t, store.AddUtxo(op, wire.NewTxOut(12345, script)))

	out, ok := store.LookupUnspentOutput(op)
	require.True(t, ok)
	assert.Equal(t, int64(12345), out.Amount)
	assert.Equal(t, script, out.PkScript)

	_, ok = store.LookupUnspentOutput(wire.OutPoint{Hash: op.Hash, Index: 3})
	assert.False(t, ok)

	require.NoError(t, store.SpendUtxo(op))
	_, ok = store.LookupUnspentOutput(op)
	assert.False(t, ok)
	assert.Error(t, store.SpendUtxo(op))
}

// TestReopen ensures data survives closing the store.
func TestReopen(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(dir)
	require.NoError(t, err)

	hash := testHash(0x04)
	op := wire.OutPoint{Hash: testHash(0x05), Index: 0}
	require.NoError(t, store.ConnectBlock(7, &hash))
	require.NoError(t, store.AddUtxo(op, wire.NewTxOut(1, []byte{0x51})))
	require.NoError(t, store.Close())

	store, err = Open(dir)
	require.NoError(t, err)
	defer store.Close()
	assert.Equal(t, dir, store.DatabasePath())
	assert.True(t, store.IsAncestor(7, hash))
	_, ok := store.LookupUnspentOutput(op)
	assert.True(t, ok)
}

// TestStoreAsOracle validates a collateral backed service node against the
// store.
func TestStoreAsOracle(t *testing.T) {
	store := openTestStore(t)

	var seed [32]byte
	seed[0] = 0x01
	seed[31] = 0x42
	key, _ := btcec.PrivKeyFromBytes(seed[:])
	addr, err := btcutil.NewAddressPubKeyHash(
		btcutil.Hash160(key.PubKey().SerializeCompressed()),
		&chaincfg.MainNetParams)
	require.NoError(t, err)
	pkScript, err := txscript.PayToAddrScript(addr)
	require.NoError(t, err)

	anchor := testHash(0x06)
	require.NoError(t, store.ConnectBlock(100, &anchor))

	opA := wire.OutPoint{Hash: testHash(0x07), Index: 0}
	opB := wire.OutPoint{Hash: testHash(0x08), Index: 1}
	half := int64(servicenode.CollateralSPV / 2)
	require.NoError(t, store.AddUtxo(opA, wire.NewTxOut(half, pkScript)))
	require.NoError(t, store.AddUtxo(opB, wire.NewTxOut(half, pkScript)))

	snode, err := servicenode.SignServiceNode(key, true,
		key.PubKey().SerializeCompressed(), servicenode.TierSPV,
		[]wire.OutPoint{opA, opB}, 100, anchor)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, snode.Validate(store))
		}()
	}
	wg.Wait()

	require.NoError(t, store.SpendUtxo(opB))
	err = snode.Validate(store)
	assert.True(t, servicenode.IsErrorCode(err, servicenode.ErrCollateralUnavailable))
}
