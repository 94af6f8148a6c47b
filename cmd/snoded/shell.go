// Copyright (c) 2024 The sats20 developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"bufio"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/sat20-labs/servicenode/node"
	"github.com/sat20-labs/servicenode/servicenode"
)

const prompt = "snode>> "

var commandHelp = []string{
	"register <packethex>                     process a service node announcement packet",
	"ping <packethex>                         process a service node ping packet",
	"connectblock <height> <hash>             set the main chain block at height",
	"disconnectblock <height>                 remove the main chain block at height",
	"addutxo <txid:index> <amount> <script>   add an unspent output",
	"spendutxo <txid:index>                   spend an unspent output",
	"list                                     list registered service nodes",
	"stale                                    list service nodes without a recent ping",
	"revalidate                               drop service nodes that no longer validate",
	"exit                                     quit",
}

// shell reads one command per line and applies it to a node.
type shell struct {
	node *node.Node
	in   *bufio.Reader
	out  io.Writer
}

func newShell(n *node.Node, in io.Reader, out io.Writer) *shell {
	return &shell{node: n, in: bufio.NewReader(in), out: out}
}

// run executes commands until exit or the end of input.
func (s *shell) run() error {
	for {
		fmt.Fprint(s.out, prompt)
		input, err := s.in.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}

		words := strings.Fields(input)
		if len(words) > 0 {
			if words[0] == "exit" {
				return nil
			}
			if cmdErr := s.execute(words[0], words[1:]); cmdErr != nil {
				fmt.Fprintf(s.out, "%s failed: %v\n", words[0], cmdErr)
			}
		}

		if errors.Is(err, io.EOF) {
			return nil
		}
	}
}

func (s *shell) execute(method string, args []string) error {
	switch method {
	case "help":
		for _, line := range commandHelp {
			fmt.Fprintln(s.out, line)
		}
		return nil

	case "register":
		raw, err := hexArg(args, 0, "packet")
		if err != nil {
			return err
		}
		snode, err := s.node.ProcessRegistration(raw)
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "accepted %s\n", snode)
		return nil

	case "ping":
		raw, err := hexArg(args, 0, "packet")
		if err != nil {
			return err
		}
		if err := s.node.ProcessPing(raw); err != nil {
			return err
		}
		fmt.Fprintln(s.out, "ping accepted")
		return nil

	case "connectblock":
		if len(args) < 2 {
			return errors.New("connectblock needs height and hash")
		}
		height, err := parseHeight(args[0])
		if err != nil {
			return err
		}
		hash, err := chainhash.NewHashFromStr(args[1])
		if err != nil {
			return err
		}
		return s.store().ConnectBlock(height, hash)

	case "disconnectblock":
		if len(args) < 1 {
			return errors.New("disconnectblock needs height")
		}
		height, err := parseHeight(args[0])
		if err != nil {
			return err
		}
		return s.store().DisconnectBlock(height)

	case "addutxo":
		if len(args) < 3 {
			return errors.New("addutxo needs outpoint, amount and script")
		}
		op, err := parseOutPoint(args[0])
		if err != nil {
			return err
		}
		amount, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return err
		}
		script, err := hexArg(args, 2, "script")
		if err != nil {
			return err
		}
		return s.store().AddUtxo(*op, wire.NewTxOut(amount, script))

	case "spendutxo":
		if len(args) < 1 {
			return errors.New("spendutxo needs outpoint")
		}
		op, err := parseOutPoint(args[0])
		if err != nil {
			return err
		}
		return s.store().SpendUtxo(*op)

	case "list":
		s.printNodes(s.node.Registry().List())
		return nil

	case "stale":
		s.printNodes(s.node.Registry().Stale())
		return nil

	case "revalidate":
		removed := s.node.Registry().Revalidate()
		fmt.Fprintf(s.out, "removed %d service nodes\n", len(removed))
		s.printNodes(removed)
		return nil
	}

	return fmt.Errorf("unknown command %q", method)
}

func (s *shell) store() chainStore {
	if st := s.node.Store(); st != nil {
		return st
	}
	return noStore{}
}

func (s *shell) printNodes(list []*servicenode.ServiceNode) {
	for _, snode := range list {
		lastPing, _ := s.node.Registry().LastPing(snode.SnodePubKey())
		pingStr := "never"
		if lastPing != 0 {
			pingStr = time.Unix(lastPing, 0).Format(time.RFC3339)
		}
		fmt.Fprintf(s.out, "%x %s registered %s last ping %s\n",
			snode.SnodePubKey(), snode.Tier(),
			time.Unix(snode.RegTime(), 0).Format(time.RFC3339), pingStr)
	}
}

// chainStore is the part of the utxo view the shell edits.
type chainStore interface {
	ConnectBlock(height uint32, hash *chainhash.Hash) error
	DisconnectBlock(height uint32) error
	AddUtxo(op wire.OutPoint, out *wire.TxOut) error
	SpendUtxo(op wire.OutPoint) error
}

var errNoStore = errors.New("node has no utxo view")

type noStore struct{}

func (noStore) ConnectBlock(uint32, *chainhash.Hash) error { return errNoStore }
func (noStore) DisconnectBlock(uint32) error               { return errNoStore }
func (noStore) AddUtxo(wire.OutPoint, *wire.TxOut) error   { return errNoStore }
func (noStore) SpendUtxo(wire.OutPoint) error              { return errNoStore }

func hexArg(args []string, i int, name string) ([]byte, error) {
	if len(args) <= i {
		return nil, fmt.Errorf("missing %s", name)
	}
	b, err := hex.DecodeString(args[i])
	if err != nil {
		return nil, fmt.Errorf("invalid %s hex: %v", name, err)
	}
	return b, nil
}

func parseHeight(s string) (uint32, error) {
	height, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid height %q: %v", s, err)
	}
	return uint32(height), nil
}

// parseOutPoint parses "txid:index".
func parseOutPoint(s string) (*wire.OutPoint, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid outpoint %q", s)
	}
	hash, err := chainhash.NewHashFromStr(parts[0])
	if err != nil {
		return nil, err
	}
	index, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid outpoint index %q: %v", parts[1], err)
	}
	return wire.NewOutPoint(hash, uint32(index)), nil
}
