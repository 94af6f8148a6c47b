// Copyright (c) 2024 The sats20 developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package servicenode

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// UnspentOutput is the part of an unspent transaction output needed to
// check collateral.
type UnspentOutput struct {
	Amount   int64
	PkScript []byte
}

// ChainOracle gives read only access to chain state.  Implementations must be
// safe for concurrent use, each call only needs to be consistent with a
// single snapshot of the chain.
type ChainOracle interface {
	// IsAncestor returns whether the block at height with the given hash
	// is on the chain the caller trusts.
	IsAncestor(height uint32, hash chainhash.Hash) bool

	// LookupUnspentOutput returns the output referenced by op, or false
	// when it is spent or does not exist.
	LookupUnspentOutput(op wire.OutPoint) (*UnspentOutput, bool)
}

// TxLookupFunc returns the transaction holding an unspent output referenced
// by op, or nil when there is none.
type TxLookupFunc func(op wire.OutPoint) *wire.MsgTx

// BlockCheckFunc returns whether the given block is an ancestor of the chain
// tip.
type BlockCheckFunc func(height uint32, hash chainhash.Hash) bool

// TxOracle is a ChainOracle built from a transaction lookup and a block
// check.  Output indexes past the end of the transaction are treated as
// unavailable.
type TxOracle struct {
	getTx        TxLookupFunc
	isBlockValid BlockCheckFunc
}

// NewTxOracle returns a TxOracle using the provided functions.
func NewTxOracle(getTx TxLookupFunc, isBlockValid BlockCheckFunc) *TxOracle {
	return &TxOracle{
		getTx:        getTx,
		isBlockValid: isBlockValid,
	}
}

// IsAncestor is part of the ChainOracle interface.
func (o *TxOracle) IsAncestor(height uint32, hash chainhash.Hash) bool {
	return o.isBlockValid(height, hash)
}

// LookupUnspentOutput is part of the ChainOracle interface.
func (o *TxOracle) LookupUnspentOutput(op wire.OutPoint) (*UnspentOutput, bool) {
	tx := o.getTx(op)
	if tx == nil {
		return nil, false
	}
	if uint64(len(tx.TxOut)) <= uint64(op.Index) {
		log.Debugf("LookupUnspentOutput: %s index out of range, tx has %d outputs",
			op.String(), len(tx.TxOut))
		return nil, false
	}

	out := tx.TxOut[op.Index]
	return &UnspentOutput{
		Amount:   out.Value,
		PkScript: out.PkScript,
	}, true
}

var _ ChainOracle = (*TxOracle)(nil)
