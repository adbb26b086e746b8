// Copyright (c) 2013 Conformal Systems LLC.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/PastaPastaPasta/dash/banscore"
	"github.com/PastaPastaPasta/dash/chainhash"
	"github.com/PastaPastaPasta/dash/chainindex"
	"github.com/PastaPastaPasta/dash/instantsend"
	"github.com/PastaPastaPasta/dash/isdb"
	"github.com/PastaPastaPasta/dash/llmq"
	"github.com/PastaPastaPasta/dash/signing"
	"github.com/PastaPastaPasta/dash/txpool"
	"github.com/PastaPastaPasta/dash/wire"
)

var shutdownChannel = make(chan bool)

// dashdMain is the real main function for dashd. It is separated from
// main so deferred functions run even when an error forces an early
// return, working around os.Exit's refusal to run deferred calls — the
// same split btcd.go's btcdMain/main use.
func dashdMain() error {
	loggers, err := setLogLevels(defaultLogLevel)
	if err != nil {
		return err
	}
	defer flushLogs(loggers)

	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	if err := initLogging(filepath.Join(cfg.LogDir, defaultLogFilename)); err != nil {
		return err
	}
	if loggers, err = setLogLevels(cfg.DebugLevel); err != nil {
		return err
	}

	dashLog.Infof("dashd starting, data dir %s", cfg.DataDir)

	db, err := isdb.Open(filepath.Join(cfg.DataDir, defaultDBFilename))
	if err != nil {
		dashLog.Errorf("unable to open IS-DB: %v", err)
		return err
	}
	defer func() {
		dashLog.Info("closing IS-DB")
		db.Close()
	}()

	genesisHash := chainhash.HashH([]byte("dashd regtest genesis"))
	chain := chainindex.NewChain(genesisHash)
	txIndex := chainindex.NewTxIndex()
	pool := txpool.New()
	quorums := llmq.NewManager(cfg.DKGInterval)
	ban := banscore.NewTracker()

	signingSvc := signing.NewService(quorums, func() int32 {
		return chain.Tip().Height
	})

	isCfg := instantsend.Config{
		LLMQType:               llmq.InstantSendType,
		ConfirmationsRequired:  cfg.ConfirmationsRequired,
		KeepLockDepth:          cfg.KeepLockDepth,
		ArchiveRetentionBlocks: cfg.ArchiveRetentionBlocks,
		Flags: func() instantsend.FeatureFlags {
			return instantsend.FeatureFlags{
				InstantSendEnabled:    !cfg.InstantSendDisabled,
				MempoolSigningEnabled: !cfg.MempoolSigningDisabled,
			}
		},
		Synced:          func() bool { return true },
		IsValidatorNode: func() bool { return false },
		NotifyTransactionLock: func(tx *wire.Tx, lock *wire.InstantSendLock) {
			dashLog.Infof("tx %s locked by ISLOCK %s", tx.Hash(), lock.Hash())
		},
		Quorums:  quorums,
		Signing:  signingSvc,
		DB:       db,
		Mempool:  mempoolAdapter{p: pool},
		TxIndex:  txIndex,
		Chain:    validationAdapter{c: chain},
		BanScore: ban,
		Relay:    loggingRelayer{},
	}

	mgr := instantsend.New(isCfg)
	mgr.Start()

	interrupted := interruptListener()
	go func() {
		<-interrupted
		mgr.Stop()
		shutdownChannel <- true
	}()

	<-shutdownChannel
	dashLog.Info("shutdown complete")
	return nil
}

func main() {
	runtime.GOMAXPROCS(runtime.NumCPU())

	if err := dashdMain(); err != nil {
		os.Exit(1)
	}
}
