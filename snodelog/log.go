// Copyright (c) 2013-2017 The btcsuite developers
// Copyright (c) 2024 The sats20 developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package snodelog

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"github.com/sat20-labs/servicenode/config"
	"github.com/sat20-labs/servicenode/node"
	"github.com/sat20-labs/servicenode/registry"
	"github.com/sat20-labs/servicenode/servicenode"
	"github.com/sat20-labs/servicenode/utxoview"
	"github.com/sat20-labs/servicenode/xbridge"
	"github.com/sirupsen/logrus"
)

// NewLogger returns a logger writing with CustomTextFormatter.
func NewLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.InfoLevel)
	log.SetFormatter(&CustomTextFormatter{})
	return log
}

// GetLoggerEntry returns a logger tagged with the module name.  Every module
// gets its own logger so levels can be set per subsystem.
func GetLoggerEntry(module string) *logrus.Entry {
	return NewLogger().WithField("module", module)
}

// CustomTextFormatter writes "time [level] MODULE: message" lines.
type CustomTextFormatter struct{}

// Format is part of the logrus.Formatter interface.
func (f *CustomTextFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	var b bytes.Buffer

	timestamp := entry.Time.Format("2006-01-02 15:04:05")
	b.WriteString(fmt.Sprintf("%s ", timestamp))
	b.WriteString(fmt.Sprintf("[%s] ", entry.Level.String()))
	moduleName, ok := entry.Data["module"].(string)
	if !ok {
		moduleName = "default"
	}
	b.WriteString(fmt.Sprintf("%s: ", moduleName))
	b.WriteString(entry.Message)
	b.WriteByte('\n')

	return b.Bytes(), nil
}

// Loggers per subsystem.  They share the formatter and, once SetOutput or
// InitLogRotator is called, the output.  When adding new subsystems, add the
// subsystem logger variable here and to the subsystemLoggers map.
var (
	snodLog = GetLoggerEntry("SNOD")
	xbrgLog = GetLoggerEntry("XBRG")
	regyLog = GetLoggerEntry("REGY")
	utxoLog = GetLoggerEntry("UTXO")
	nodeLog = GetLoggerEntry("NODE")
)

// Initialize package-global logger variables.
func init() {
	servicenode.UseLogger(snodLog)
	xbridge.UseLogger(xbrgLog)
	registry.UseLogger(regyLog)
	utxoview.UseLogger(utxoLog)
	node.UseLogger(nodeLog)
}

// subsystemLoggers maps each subsystem identifier to its associated logger.
var subsystemLoggers = map[string]*logrus.Entry{
	"SNOD": snodLog,
	"XBRG": xbrgLog,
	"REGY": regyLog,
	"UTXO": utxoLog,
	"NODE": nodeLog,
}

// InitLogRotator initializes the logging rotater to write logs to logFile and
// create roll files in the same directory.  Output also goes to stdout.
func InitLogRotator(logFile string) error {
	logDir, file := filepath.Split(logFile)
	if err := os.MkdirAll(logDir, 0700); err != nil {
		return fmt.Errorf("failed to create log directory: %v", err)
	}

	fileHook, err := rotatelogs.New(
		filepath.Join(logDir, file+".%Y%m%d%H%M.log"),
		rotatelogs.WithLinkName(filepath.Join(logDir, file+".log")),
		rotatelogs.WithMaxAge(30*24*time.Hour),
		rotatelogs.WithRotationTime(24*time.Hour),
	)
	if err != nil {
		return fmt.Errorf("failed to create file rotator: %v", err)
	}

	SetOutput(io.MultiWriter(os.Stdout, fileHook))
	return nil
}

// SetOutput redirects every subsystem logger.
func SetOutput(w io.Writer) {
	for _, entry := range subsystemLoggers {
		entry.Logger.SetOutput(w)
	}
}

// SupportedSubsystems returns a sorted slice of the supported subsystems for
// logging purposes.
func SupportedSubsystems() []string {
	subsystems := make([]string, 0, len(subsystemLoggers))
	for subsysID := range subsystemLoggers {
		subsystems = append(subsystems, subsysID)
	}
	sort.Strings(subsystems)
	return subsystems
}

// ValidLogLevel returns whether or not logLevel is a valid debug log level.
func ValidLogLevel(logLevel string) bool {
	_, err := logrus.ParseLevel(logLevel)
	return err == nil
}

// SetLogLevel sets the logging level for provided subsystem.  Invalid
// subsystems are ignored.
func SetLogLevel(subsystemID string, logLevel string) {
	entry, ok := subsystemLoggers[subsystemID]
	if !ok {
		return
	}

	// Defaults to info if the log level is invalid.
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	entry.Logger.SetLevel(level)
}

// SetLogLevels sets the log level for all subsystem loggers to the passed
// level.
func SetLogLevels(logLevel string) {
	for subsystemID := range subsystemLoggers {
		SetLogLevel(subsystemID, logLevel)
	}
}

// LogLevel returns the level of the provided subsystem.
func LogLevel(subsystemID string) (logrus.Level, bool) {
	entry, ok := subsystemLoggers[subsystemID]
	if !ok {
		return 0, false
	}
	return entry.Logger.GetLevel(), true
}

// ParseAndSetDebugLevels attempts to parse the specified debug level and set
// the levels accordingly.  An appropriate error is returned if anything is
// invalid.  The level is either a single level for every subsystem or a comma
// separated list of subsystem=level pairs.
func ParseAndSetDebugLevels(debugLevel string) error {
	// When the specified string doesn't have any delimiters, treat it as
	// the log level for all subsystems.
	if !strings.Contains(debugLevel, ",") && !strings.Contains(debugLevel, "=") {
		if !ValidLogLevel(debugLevel) {
			return fmt.Errorf("the specified debug level [%v] is invalid",
				debugLevel)
		}
		SetLogLevels(debugLevel)
		return nil
	}

	// Split the specified string into subsystem/level pairs while
	// detecting issues and update the log levels accordingly.
	for _, logLevelPair := range strings.Split(debugLevel, ",") {
		if !strings.Contains(logLevelPair, "=") {
			return fmt.Errorf("the specified debug level contains an "+
				"invalid subsystem/level pair [%v]", logLevelPair)
		}

		fields := strings.Split(logLevelPair, "=")
		subsysID, logLevel := fields[0], fields[1]

		if _, exists := subsystemLoggers[subsysID]; !exists {
			return fmt.Errorf("the specified subsystem [%v] is invalid -- "+
				"supported subsystems %v", subsysID, SupportedSubsystems())
		}
		if !ValidLogLevel(logLevel) {
			return fmt.Errorf("the specified debug level [%v] is invalid",
				logLevel)
		}

		SetLogLevel(subsysID, logLevel)
	}

	return nil
}

// Setup applies the logging options of cfg: file rotation under the log
// directory unless disabled, then the debug levels.
func Setup(cfg *config.Config) error {
	if !cfg.NoFileLogging {
		if err := InitLogRotator(cfg.LogFile()); err != nil {
			return err
		}
	}
	return ParseAndSetDebugLevels(cfg.DebugLevel)
}
