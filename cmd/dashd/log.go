// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"os"

	"github.com/btcsuite/btclog"

	"github.com/PastaPastaPasta/dash/instantsend"
	"github.com/PastaPastaPasta/dash/internal/log"
)

// Loggers per subsystem. Every logger is created off the single shared
// internal/log.Backend, mirroring btcsuite-btcd/internal/log/log.go's
// subsystemLoggers map. Unlike that map, instantsend is the only package
// in this module with anything worth logging at the subsystem level
// (isdb, llmq, signing, chainindex, txpool and banscore are plumbing
// layers with no independent operational narrative — see DESIGN.md); if
// a future package gains one, add its logger here and to
// subsystemLoggers, then give it a UseLogger setter like instantsend's.
var (
	dashLog = log.SubsystemLogger("DASH")
	ismgLog = log.SubsystemLogger("ISMG")
)

// subsystemLoggers maps each subsystem identifier to its logger, used by
// setLogLevels to apply --debuglevel uniformly.
var subsystemLoggers = map[string]btclog.Logger{
	"DASH": dashLog,
	"ISMG": ismgLog,
}

// initLogging wires every subsystem logger created above into its owning
// package via UseLogger, then opens the rotating log file.
func initLogging(logFile string) error {
	instantsend.UseLogger(ismgLog)

	if err := log.InitLogRotator(logFile, defaultMaxLogRolls); err != nil {
		return err
	}
	return nil
}

// setLogLevels parses and applies the --debuglevel string across every
// subsystem logger, returning the full set of loggers.
func setLogLevels(debugLevel string) ([]btclog.Logger, error) {
	if err := log.SetLogLevels(debugLevel, subsystemLoggers); err != nil {
		return nil, err
	}
	loggers := make([]btclog.Logger, 0, len(subsystemLoggers))
	for _, l := range subsystemLoggers {
		loggers = append(loggers, l)
	}
	return loggers, nil
}

// flushLogs flushes log output on shutdown, matching btcd's deferred
// logRotator.Close() in btcdMain. btclog loggers write through to the
// shared backend without buffering, so there is nothing to flush per
// logger: stdout is synced and the rotator, if open, is closed.
func flushLogs(loggers []btclog.Logger) {
	_ = os.Stdout.Sync()
	if log.Rotator != nil {
		_ = log.Rotator.Close()
	}
}
