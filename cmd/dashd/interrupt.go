// Copyright (c) 2013-2014 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"os"
	"os/signal"
)

// interruptSignals defines the default signals to catch in order to do a
// proper shutdown.
var interruptSignals = []os.Signal{os.Interrupt}

// interruptListener listens for SIGINT (Ctrl+C) and returns a channel that
// is closed once it fires, mirroring btcd's signal.go.
func interruptListener() <-chan struct{} {
	c := make(chan struct{})
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, interruptSignals...)
		sig := <-sigChan
		dashLog.Infof("received signal (%s), shutting down...", sig)
		close(c)
	}()
	return c
}
