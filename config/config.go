// Copyright (c) 2013-2017 The btcsuite developers
// Copyright (c) 2024 The sats20 developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	flags "github.com/jessevdk/go-flags"
)

const (
	defaultDataDirname = "data"
	defaultLogDirname  = "logs"
	defaultLogFilename = "snode"
	defaultLogLevel    = "info"
	defaultPingTimeout = 5 * time.Minute
	minPingTimeout     = 10 * time.Second
)

var defaultHomeDir = func() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".snode")
}()

// Config defines the configuration options for the service node validator.
type Config struct {
	HomeDir       string        `long:"homedir" description:"Base directory for data and logs"`
	DataDir       string        `short:"b" long:"datadir" description:"Directory to store the utxo view"`
	LogDir        string        `long:"logdir" description:"Directory to log output"`
	NoFileLogging bool          `long:"nofilelogging" description:"Disable file logging"`
	DebugLevel    string        `short:"d" long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, fatal, panic} -- You may also specify <subsystem>=<level>,<subsystem2>=<level>,... to set the log level for individual subsystems"`
	PingTimeout   time.Duration `long:"pingtimeout" description:"Time without a ping after which a service node is reported stale"`
}

// LogFile returns the base name of the log file inside LogDir.
func (c *Config) LogFile() string {
	return filepath.Join(c.LogDir, defaultLogFilename)
}

// Default returns a config holding the defaults.
func Default() *Config {
	return &Config{
		HomeDir:     defaultHomeDir,
		DebugLevel:  defaultLogLevel,
		PingTimeout: defaultPingTimeout,
	}
}

// Load parses args on top of the defaults and validates the result.  A help
// request is returned as a *flags.Error of type flags.ErrHelp.
func Load(args []string) (*Config, error) {
	cfg := Default()

	parser := flags.NewParser(cfg, flags.HelpFlag|flags.PassDoubleDash)
	remaining, err := parser.ParseArgs(args)
	if err != nil {
		return nil, err
	}
	if len(remaining) > 0 {
		return nil, fmt.Errorf("invalid arguments: %s",
			strings.Join(remaining, " "))
	}

	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// normalize fills in the directories derived from HomeDir and checks the
// option ranges.
func (c *Config) normalize() error {
	if c.HomeDir == "" {
		c.HomeDir = defaultHomeDir
	}
	c.HomeDir = cleanAndExpandPath(c.HomeDir)
	if c.DataDir == "" {
		c.DataDir = filepath.Join(c.HomeDir, defaultDataDirname)
	}
	if c.LogDir == "" {
		c.LogDir = filepath.Join(c.HomeDir, defaultLogDirname)
	}
	c.DataDir = cleanAndExpandPath(c.DataDir)
	c.LogDir = cleanAndExpandPath(c.LogDir)

	if c.DebugLevel == "" {
		return fmt.Errorf("debuglevel must not be empty")
	}
	if c.PingTimeout < minPingTimeout {
		return fmt.Errorf("pingtimeout %v is below the minimum %v",
			c.PingTimeout, minPingTimeout)
	}
	return nil
}

// cleanAndExpandPath expands environment variables and a leading ~ in the
// passed path, cleans the result, and returns it.
func cleanAndExpandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			path = strings.Replace(path, "~", home, 1)
		}
	}
	return filepath.Clean(os.ExpandEnv(path))
}
