// Copyright (c) 2024 The sats20 developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	flags "github.com/jessevdk/go-flags"
	"github.com/sat20-labs/servicenode/config"
	"github.com/sat20-labs/servicenode/node"
	"github.com/sat20-labs/servicenode/snodelog"
)

func usage(errorMessage string) {
	appName := filepath.Base(os.Args[0])
	appName = strings.TrimSuffix(appName, filepath.Ext(appName))
	fmt.Fprintln(os.Stderr, errorMessage)
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintf(os.Stderr, "  %s [OPTIONS]\n\n", appName)
	fmt.Fprintln(os.Stderr, "Specify -h to show available options")
}

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		var flagErr *flags.Error
		if errors.As(err, &flagErr) && flagErr.Type == flags.ErrHelp {
			fmt.Fprintln(os.Stdout, err)
			os.Exit(0)
		}
		usage(err.Error())
		os.Exit(1)
	}

	if err := snodelog.Setup(cfg); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	n, err := node.Open(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer n.Close()

	fmt.Printf("Service node validator, data in %s\n", cfg.DataDir)
	fmt.Println("Type \"help\" to list available commands.")

	if err := newShell(n, os.Stdin, os.Stdout).run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
}
