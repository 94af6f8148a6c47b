// Copyright (c) 2024 The sats20 developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package utxoview keeps a bolt-db snapshot of the main chain and its unspent
// outputs and exposes it as a servicenode.ChainOracle.
package utxoview

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path"
	"runtime"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/sat20-labs/servicenode/servicenode"
	bolt "go.etcd.io/bbolt"
)

const (
	// DatabaseFileName is the name of the utxo view database.
	DatabaseFileName = "utxoview.db"

	// outPointKeySize is txid 32 bytes + index 4 bytes.
	outPointKeySize = chainhash.HashSize + 4

	// Specifies the initial mmap size of bolt.
	mmapSize = 16 * 1024 * 1024
)

var (
	mainChainBucket = []byte("mainchain") // height -> block hash
	utxosBucket     = []byte("utxos")     // outpoint -> amount + pkscript

	// Buckets lists every bucket the store creates on open.
	Buckets = [][]byte{
		mainChainBucket,
		utxosBucket,
	}
)

// IoConfig defines the shared io parameters.
type IoConfig struct {
	ReadWritePermissions        os.FileMode
	ReadWriteExecutePermissions os.FileMode
	BoltTimeout                 time.Duration
}

var defaultIoConfig = &IoConfig{
	ReadWritePermissions:        0600,
	ReadWriteExecutePermissions: 0700,
	BoltTimeout:                 1 * time.Second,
}

var defaultWindowsIoConfig = &IoConfig{
	ReadWritePermissions:        0666,
	ReadWriteExecutePermissions: 0777,
	BoltTimeout:                 1 * time.Second,
}

// DBIoConfig returns the io config for the current platform.
func DBIoConfig() *IoConfig {
	if runtime.GOOS == "windows" {
		return defaultWindowsIoConfig
	}
	return defaultIoConfig
}

// Store is a bolt backed chain snapshot.  Reads run in bolt read
// transactions and are safe for concurrent use.
type Store struct {
	db           *bolt.DB
	databasePath string
}

// DbFilePath returns the database file inside dirPath.
func DbFilePath(dirPath string) string {
	return path.Join(dirPath, DatabaseFileName)
}

// Open opens or creates the store in dirPath.
func Open(dirPath string) (*Store, error) {
	ioConfig := DBIoConfig()
	if err := os.MkdirAll(dirPath, ioConfig.ReadWriteExecutePermissions); err != nil {
		return nil, err
	}

	datafile := DbFilePath(dirPath)
	log.Debugf("Opening Bolt DB:path = %s", datafile)
	db, err := bolt.Open(datafile, ioConfig.ReadWritePermissions, &bolt.Options{
		Timeout:         ioConfig.BoltTimeout,
		InitialMmapSize: mmapSize,
	})
	if err != nil {
		if errors.Is(err, bolt.ErrTimeout) {
			return nil, errors.New("cannot obtain database lock, database " +
				"may be in use by another process")
		}
		return nil, err
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range Buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, databasePath: dirPath}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// DatabasePath returns the directory holding the database.
func (s *Store) DatabasePath() string {
	return s.databasePath
}

// ConnectBlock records hash as the main chain block at height.
func (s *Store) ConnectBlock(height uint32, hash *chainhash.Hash) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(mainChainBucket)
		if err := bkt.Put(heightKey(height), hash[:]); err != nil {
			return fmt.Errorf("could not write block %d: %v", height, err)
		}
		return nil
	})
}

// DisconnectBlock removes the main chain block at height.
func (s *Store) DisconnectBlock(height uint32) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(mainChainBucket).Delete(heightKey(height))
	})
}

// BlockHash returns the main chain block hash at height.
func (s *Store) BlockHash(height uint32) (*chainhash.Hash, error) {
	var hash *chainhash.Hash
	err := s.db.View(func(tx *bolt.Tx) error {
		hashBytes := tx.Bucket(mainChainBucket).Get(heightKey(height))
		if hashBytes == nil {
			return fmt.Errorf("no block hash with height [%d]", height)
		}
		var err error
		hash, err = chainhash.NewHash(hashBytes)
		return err
	})
	return hash, err
}

// AddUtxo stores out as the unspent output at op.
func (s *Store) AddUtxo(op wire.OutPoint, out *wire.TxOut) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(utxosBucket).Put(outPointKey(op), serializeUtxo(out))
	})
}

// SpendUtxo removes the unspent output at op.
func (s *Store) SpendUtxo(op wire.OutPoint) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(utxosBucket)
		key := outPointKey(op)
		if bkt.Get(key) == nil {
			return fmt.Errorf("utxo %s is not in the view", op.String())
		}
		return bkt.Delete(key)
	})
}

// IsAncestor is part of the servicenode.ChainOracle interface.
func (s *Store) IsAncestor(height uint32, hash chainhash.Hash) bool {
	stored, err := s.BlockHash(height)
	if err != nil {
		log.Tracef("IsAncestor: %v", err)
		return false
	}
	return stored.IsEqual(&hash)
}

// LookupUnspentOutput is part of the servicenode.ChainOracle interface.
func (s *Store) LookupUnspentOutput(op wire.OutPoint) (*servicenode.UnspentOutput, bool) {
	var out *servicenode.UnspentOutput
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(utxosBucket).Get(outPointKey(op))
		if v == nil {
			return nil
		}
		var err error
		out, err = deserializeUtxo(v)
		return err
	})
	if err != nil {
		log.Errorf("LookupUnspentOutput: %s: %v", op.String(), err)
		return nil, false
	}
	return out, out != nil
}

var _ servicenode.ChainOracle = (*Store)(nil)

// heightKey is big endian so heights iterate in order.
func heightKey(height uint32) []byte {
	var key [4]byte
	binary.BigEndian.PutUint32(key[:], height)
	return key[:]
}

func outPointKey(op wire.OutPoint) []byte {
	key := make([]byte, outPointKeySize)
	copy(key, op.Hash[:])
	binary.LittleEndian.PutUint32(key[chainhash.HashSize:], op.Index)
	return key
}

// serializeUtxo encodes an output as amount int64 LE followed by the script.
func serializeUtxo(out *wire.TxOut) []byte {
	v := make([]byte, 8+len(out.PkScript))
	binary.LittleEndian.PutUint64(v, uint64(out.Value))
	copy(v[8:], out.PkScript)
	return v
}

// deserializeUtxo copies v since bolt values are only valid inside the
// transaction.
func deserializeUtxo(v []byte) (*servicenode.UnspentOutput, error) {
	if len(v) < 8 {
		return nil, fmt.Errorf("utxo entry is %d bytes", len(v))
	}
	script := make([]byte, len(v)-8)
	copy(script, v[8:])
	return &servicenode.UnspentOutput{
		Amount:   int64(binary.LittleEndian.Uint64(v)),
		PkScript: script,
	}, nil
}
