// Copyright (c) 2024 The sats20 developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package registry

import (
	"bytes"
	"encoding/hex"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/sat20-labs/servicenode/servicenode"
)

// DefaultPingTimeout is how long a service node may stay silent before it is
// reported as stale.
const DefaultPingTimeout = 5 * time.Minute

// ErrUnknownServiceNode is returned for pings from keys that are not
// registered.
var ErrUnknownServiceNode = errors.New("unknown service node")

// LivenessState tracks when a registered service node was last heard from.
// It is owned by the registry and only changed under its lock.
type LivenessState struct {
	lastPing int64
}

// UpdatePing records that the service node was heard from now.
func (l *LivenessState) UpdatePing() {
	l.lastPing = time.Now().Unix()
}

// LastPing returns the unix time of the last ping, 0 when never pinged.
func (l *LivenessState) LastPing() int64 {
	return l.lastPing
}

type entry struct {
	snode    *servicenode.ServiceNode
	liveness LivenessState
}

// Registry holds the accepted service nodes, unique by public key.
type Registry struct {
	oracle      servicenode.ChainOracle
	pingTimeout time.Duration

	nodesLock sync.RWMutex
	nodes     map[string]*entry
}

// New returns an empty registry validating against oracle.  A zero
// pingTimeout uses DefaultPingTimeout.
func New(oracle servicenode.ChainOracle, pingTimeout time.Duration) *Registry {
	if pingTimeout <= 0 {
		pingTimeout = DefaultPingTimeout
	}
	return &Registry{
		oracle:      oracle,
		pingTimeout: pingTimeout,
		nodes:       make(map[string]*entry),
	}
}

func nodeKey(pubKey []byte) string {
	return hex.EncodeToString(pubKey)
}

// Add validates snode and stores it, replacing any record with the same
// key.  Rejected records leave the registry untouched.
func (r *Registry) Add(snode *servicenode.ServiceNode) error {
	if err := snode.Validate(r.oracle); err != nil {
		log.Debugf("Add: rejected %s: %v", snode, err)
		return err
	}

	key := nodeKey(snode.SnodePubKey())

	r.nodesLock.Lock()
	defer r.nodesLock.Unlock()
	if _, ok := r.nodes[key]; ok {
		log.Debugf("Add: replacing service node %s", key)
	}
	r.nodes[key] = &entry{snode: snode}
	log.Infof("Add: accepted %s", snode)

	return nil
}

// Ping validates ping and marks the matching service node as alive.
func (r *Registry) Ping(ping *servicenode.ServiceNodePing) error {
	if err := ping.Validate(); err != nil {
		log.Debugf("Ping: rejected ping from %x: %v", ping.SnodePubKey(), err)
		return err
	}

	key := nodeKey(ping.SnodePubKey())

	r.nodesLock.Lock()
	defer r.nodesLock.Unlock()
	e, ok := r.nodes[key]
	if !ok {
		return ErrUnknownServiceNode
	}
	e.liveness.UpdatePing()
	log.Tracef("Ping: %s at %d", key, e.liveness.LastPing())

	return nil
}

// Get returns the service node with the given key.
func (r *Registry) Get(pubKey []byte) (*servicenode.ServiceNode, bool) {
	r.nodesLock.RLock()
	defer r.nodesLock.RUnlock()
	e, ok := r.nodes[nodeKey(pubKey)]
	if !ok {
		return nil, false
	}
	return e.snode, true
}

// LastPing returns the unix time the service node last pinged.
func (r *Registry) LastPing(pubKey []byte) (int64, bool) {
	r.nodesLock.RLock()
	defer r.nodesLock.RUnlock()
	e, ok := r.nodes[nodeKey(pubKey)]
	if !ok {
		return 0, false
	}
	return e.liveness.LastPing(), true
}

// Remove drops the service node with the given key.
func (r *Registry) Remove(pubKey []byte) bool {
	r.nodesLock.Lock()
	defer r.nodesLock.Unlock()
	key := nodeKey(pubKey)
	if _, ok := r.nodes[key]; !ok {
		return false
	}
	delete(r.nodes, key)
	return true
}

// Len returns the number of registered service nodes.
func (r *Registry) Len() int {
	r.nodesLock.RLock()
	defer r.nodesLock.RUnlock()
	return len(r.nodes)
}

// List returns the service nodes ordered by registration time.
func (r *Registry) List() []*servicenode.ServiceNode {
	r.nodesLock.RLock()
	list := make([]*servicenode.ServiceNode, 0, len(r.nodes))
	for _, e := range r.nodes {
		list = append(list, e.snode)
	}
	r.nodesLock.RUnlock()

	sortServiceNodes(list)
	return list
}

// Stale returns the service nodes that have not pinged within the ping
// timeout, counting from registration when they never pinged.
func (r *Registry) Stale() []*servicenode.ServiceNode {
	cutoff := time.Now().Add(-r.pingTimeout).Unix()

	r.nodesLock.RLock()
	var stale []*servicenode.ServiceNode
	for _, e := range r.nodes {
		last := e.liveness.LastPing()
		if last == 0 {
			last = e.snode.RegTime()
		}
		if last < cutoff {
			stale = append(stale, e.snode)
		}
	}
	r.nodesLock.RUnlock()

	sortServiceNodes(stale)
	return stale
}

// Revalidate checks every registered service node against the current chain
// and removes those that no longer validate.  The removed nodes are
// returned.
func (r *Registry) Revalidate() []*servicenode.ServiceNode {
	// Validation runs outside the lock, only the removal is serialized.
	var invalid []*servicenode.ServiceNode
	for _, snode := range r.List() {
		if err := snode.Validate(r.oracle); err != nil {
			log.Infof("Revalidate: dropping %s: %v", snode, err)
			invalid = append(invalid, snode)
		}
	}
	return r.removeCurrent(invalid)
}

// removeCurrent removes each of list that is still the registered record for
// its key and returns the ones removed.  Records replaced since list was
// taken are kept.
func (r *Registry) removeCurrent(list []*servicenode.ServiceNode) []*servicenode.ServiceNode {
	r.nodesLock.Lock()
	defer r.nodesLock.Unlock()

	var removed []*servicenode.ServiceNode
	for _, snode := range list {
		key := nodeKey(snode.SnodePubKey())
		if e, ok := r.nodes[key]; ok && e.snode == snode {
			delete(r.nodes, key)
			removed = append(removed, snode)
		}
	}
	return removed
}

func sortServiceNodes(list []*servicenode.ServiceNode) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].Less(list[j]) {
			return true
		}
		if list[j].Less(list[i]) {
			return false
		}
		return bytes.Compare(list[i].SnodePubKey(), list[j].SnodePubKey()) < 0
	})
}
