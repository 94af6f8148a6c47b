// Copyright (c) 2024 The sats20 developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package node

import (
	"fmt"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/sat20-labs/servicenode/config"
	"github.com/sat20-labs/servicenode/registry"
	"github.com/sat20-labs/servicenode/servicenode"
	"github.com/sat20-labs/servicenode/utxoview"
	"github.com/sat20-labs/servicenode/xbridge"
)

// Node turns inbound legacy packets into registry updates.
type Node struct {
	registry *registry.Registry
	store    *utxoview.Store
}

// New returns a node validating against oracle.
func New(cfg *config.Config, oracle servicenode.ChainOracle) *Node {
	return &Node{
		registry: registry.New(oracle, cfg.PingTimeout),
	}
}

// Open opens the utxo view under the data directory and returns a node
// validating against it.
func Open(cfg *config.Config) (*Node, error) {
	store, err := utxoview.Open(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open utxo view: %w", err)
	}

	n := New(cfg, store)
	n.store = store
	return n, nil
}

// Close releases the utxo view when the node opened one.
func (n *Node) Close() error {
	if n.store == nil {
		return nil
	}
	return n.store.Close()
}

// Registry returns the service node registry.
func (n *Node) Registry() *registry.Registry {
	return n.registry
}

// Store returns the utxo view opened by Open, nil for nodes built with New.
func (n *Node) Store() *utxoview.Store {
	return n.store
}

// ProcessRegistration decodes a packet carrying a service node announcement,
// validates it and adds it to the registry.
func (n *Node) ProcessRegistration(raw []byte) (*servicenode.ServiceNode, error) {
	pkt, err := xbridge.DecodeLegacyPacket(raw)
	if err != nil {
		return nil, err
	}
	logPacket("ProcessRegistration", pkt)

	snode, err := servicenode.DecodeServiceNode(pkt.Body, time.Now())
	if err != nil {
		return nil, fmt.Errorf("decode service node: %w", err)
	}

	if err := n.registry.Add(snode); err != nil {
		return nil, err
	}
	return snode, nil
}

// ProcessPing decodes a packet carrying a service node ping and updates the
// liveness of the matching registered node.
func (n *Node) ProcessPing(raw []byte) error {
	pkt, err := xbridge.DecodeLegacyPacket(raw)
	if err != nil {
		return err
	}
	logPacket("ProcessPing", pkt)

	ping, err := servicenode.DecodeServiceNodePing(pkt.Body)
	if err != nil {
		return fmt.Errorf("decode service node ping: %w", err)
	}

	return n.registry.Ping(ping)
}

func logPacket(caller string, pkt *xbridge.LegacyPacket) {
	log.Debugf("%s: packet version %d command %d timestamp %d body %d bytes "+
		"from %x", caller, pkt.Version, pkt.Command, pkt.Timestamp,
		len(pkt.Body), pkt.PubKey)
	log.Tracef("%s: %s", caller, spew.Sdump(pkt))
}
