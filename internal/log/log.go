// Package log bootstraps the shared btclog backend used by every InstantSend
// subsystem package. Individual packages never reach into a global logger
// directly; each declares its own package-scoped btclog.Logger (created
// from Backend via SubsystemLogger) and exposes a UseLogger setter,
// mirroring btcsuite-btcd's internal/log convention. This package only owns the single
// backend and rotator that cmd/dashd wires into every subsystem at startup.
package log

import (
	"os"
	"strings"

	"github.com/btcsuite/btclog"
	"github.com/jrick/logrotate/rotator"
)

// writer fans log output out to stdout and, once initialized, the rotator.
// It reads the package-level Rotator variable on every Write rather than
// capturing it at construction time, so subsystem loggers created during
// package init (before cmd/dashd calls InitLogRotator) still pick up file
// output once it becomes available — the same dynamic-dereference trick
// btcsuite-btcd/internal/log/log.go's logWriter uses.
type writer struct{}

func (writer) Write(p []byte) (int, error) {
	os.Stdout.Write(p)
	if Rotator != nil {
		Rotator.Write(p)
	}
	return len(p), nil
}

// Backend is the single btclog.Backend every subsystem logger is created
// from. It is never replaced after package init; only Rotator changes.
var Backend = btclog.NewBackend(writer{})

// Rotator is set by InitLogRotator. Until it is set, log output goes to
// stdout only.
var Rotator *rotator.Rotator

// InitLogRotator initializes the log rotation. It is called once, early in
// cmd/dashd's startup; because writer reads Rotator on every Write, loggers
// wired with UseLogger before this call also reach the log file.
func InitLogRotator(logFile string, maxRolls int) error {
	r, err := rotator.New(logFile, 10*1024, false, maxRolls)
	if err != nil {
		return err
	}
	Rotator = r
	return nil
}

// SubsystemLogger returns a new logger for the given subsystem tag (e.g.
// "ISDB", "ISMG", "LLMQ"), created off the shared Backend.
func SubsystemLogger(tag string) btclog.Logger {
	return Backend.Logger(tag)
}

// SetLogLevels parses a comma-separated "SUBSYS=LEVEL" or bare "LEVEL"
// string and applies it across the supplied subsystem logger map, the way
// btcd's config.go applies --debuglevel. Entries naming an unknown
// subsystem or level are ignored.
func SetLogLevels(debugLevel string, loggers map[string]btclog.Logger) error {
	if level, ok := btclog.LevelFromString(debugLevel); ok {
		for _, l := range loggers {
			l.SetLevel(level)
		}
		return nil
	}
	for _, pair := range strings.Split(debugLevel, ",") {
		subsys, levelStr, found := strings.Cut(pair, "=")
		if !found {
			continue
		}
		l, ok := loggers[subsys]
		level, levelOK := btclog.LevelFromString(levelStr)
		if ok && levelOK {
			l.SetLevel(level)
		}
	}
	return nil
}
