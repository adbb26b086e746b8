// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"path/filepath"

	flags "github.com/jessevdk/go-flags"
)

const (
	defaultConfigFilename  = "dashd.conf"
	defaultDataDirname     = "data"
	defaultLogFilename     = "dashd.log"
	defaultLogLevel        = "info"
	defaultMaxLogRolls     = 10
	defaultDBFilename      = "instantsend.db"
	defaultDKGInterval     = 24
	defaultConfsRequired   = 1
	defaultKeepLockDepth   = 48
	defaultArchiveRetain   = 100
)

// config defines the configuration options for dashd.
//
// See loadConfig for details on the configuration load process.
type config struct {
	ConfigFile string `short:"C" long:"configfile" description:"Path to configuration file"`
	DataDir    string `short:"b" long:"datadir" description:"Directory to store the InstantSend database"`
	LogDir     string `long:"logdir" description:"Directory to log output"`
	DebugLevel string `short:"d" long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical}"`

	DKGInterval            int32 `long:"dkginterval" description:"Block interval between LLMQ quorum rotations"`
	ConfirmationsRequired  int32 `long:"isconfirmations" description:"Confirmations required before an input may be locked"`
	KeepLockDepth          int32 `long:"iskeeplockdepth" description:"Keep-lock depth passed to the InstantSend manager config; no code path reads it, so it does not affect when locks are archived"`
	ArchiveRetentionBlocks int32 `long:"isarchiveretention" description:"Blocks an archived lock is retained before GC"`

	InstantSendDisabled    bool `long:"noinstantsend" description:"Disable InstantSend signing and verification"`
	MempoolSigningDisabled bool `long:"nomempoolsigning" description:"Disable signing of unconfirmed mempool transactions"`
}

// dashdHomeDir returns an OS appropriate home directory for dashd, mirroring
// btcd's historical btcdHomeDir: prefer APPDATA on Windows, fall back to
// HOME, and finally the current directory.
func dashdHomeDir() string {
	if appData := os.Getenv("APPDATA"); appData != "" {
		return filepath.Join(appData, "dashd")
	}
	if home := os.Getenv("HOME"); home != "" {
		return filepath.Join(home, ".dashd")
	}
	return "."
}

// cleanAndExpandPath expands environment variables and leading ~ in the
// passed path, cleans the result, and returns it.
func cleanAndExpandPath(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		if home := os.Getenv("HOME"); home != "" {
			path = filepath.Join(home, path[1:])
		}
	}
	return filepath.Clean(os.ExpandEnv(path))
}

// loadConfig initializes and parses the config using a config file and
// command line options, in that precedence order with the command line
// winning. It returns the parsed config and any leftover non-flag command
// line arguments.
func loadConfig() (*config, []string, error) {
	homeDir := dashdHomeDir()

	cfg := config{
		ConfigFile:             filepath.Join(homeDir, defaultConfigFilename),
		DataDir:                filepath.Join(homeDir, defaultDataDirname),
		LogDir:                 homeDir,
		DebugLevel:             defaultLogLevel,
		DKGInterval:            defaultDKGInterval,
		ConfirmationsRequired:  defaultConfsRequired,
		KeepLockDepth:          defaultKeepLockDepth,
		ArchiveRetentionBlocks: defaultArchiveRetain,
	}

	// Pre-parse just to pick up an overridden config file location. Errors
	// here are ignored, the same as btcctl's loadConfig: the final parse
	// below catches and reports them for real.
	preCfg := cfg
	preParser := flags.NewParser(&preCfg, flags.None)
	_, _ = preParser.Parse()
	if preCfg.ConfigFile != cfg.ConfigFile {
		cfg.ConfigFile = cleanAndExpandPath(preCfg.ConfigFile)
	}

	if _, err := os.Stat(cfg.ConfigFile); err == nil {
		iniParser := flags.NewIniParser(flags.NewParser(&cfg, flags.Default))
		if err := iniParser.ParseFile(cfg.ConfigFile); err != nil {
			return nil, nil, err
		}
	}

	parser := flags.NewParser(&cfg, flags.Default)
	remainingArgs, err := parser.Parse()
	if err != nil {
		if e, ok := err.(*flags.Error); !ok || e.Type != flags.ErrHelp {
			parser.WriteHelp(os.Stderr)
		}
		return nil, nil, err
	}

	cfg.DataDir = cleanAndExpandPath(cfg.DataDir)
	cfg.LogDir = cleanAndExpandPath(cfg.LogDir)

	if cfg.DKGInterval <= 0 {
		return nil, nil, fmt.Errorf("dkginterval must be positive, got %d", cfg.DKGInterval)
	}
	if cfg.ConfirmationsRequired < 0 {
		return nil, nil, fmt.Errorf("isconfirmations must be non-negative, got %d", cfg.ConfirmationsRequired)
	}

	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return nil, nil, fmt.Errorf("unable to create data directory: %w", err)
	}
	if err := os.MkdirAll(cfg.LogDir, 0700); err != nil {
		return nil, nil, fmt.Errorf("unable to create log directory: %w", err)
	}

	return &cfg, remainingArgs, nil
}
