package main

import (
	"errors"

	"github.com/PastaPastaPasta/dash/chainhash"
	"github.com/PastaPastaPasta/dash/chainindex"
	"github.com/PastaPastaPasta/dash/instantsend"
	"github.com/PastaPastaPasta/dash/txpool"
	"github.com/PastaPastaPasta/dash/wire"
)

// errUnknownBlockIndex is returned by validationAdapter.InvalidateBlock
// when asked to invalidate a block chainindex.Chain has no record of.
var errUnknownBlockIndex = errors.New("dashd: cannot invalidate unknown block index")

// convertBI copies a chainindex.BlockIndex chain into the struct shape
// instantsend declares for itself, so the two packages stay decoupled
// peers rather than one importing the other (see instantsend/types.go's
// BlockIndex doc comment). Only values are compared downstream (Height,
// Hash), never pointer identity, so a fresh copy on every call is safe.
func convertBI(bi *chainindex.BlockIndex) *instantsend.BlockIndex {
	if bi == nil {
		return nil
	}
	return &instantsend.BlockIndex{
		Hash:        bi.Hash,
		Height:      bi.Height,
		Prev:        convertBI(bi.Prev),
		ChainLocked: bi.ChainLocked,
	}
}

// validationAdapter bridges *chainindex.Chain to instantsend.Validation.
type validationAdapter struct {
	c *chainindex.Chain
}

func (a validationAdapter) Tip() *instantsend.BlockIndex {
	return convertBI(a.c.Tip())
}

func (a validationAdapter) AtHeight(height int32) (*instantsend.BlockIndex, bool) {
	bi, ok := a.c.AtHeight(height)
	if !ok {
		return nil, false
	}
	return convertBI(bi), true
}

func (a validationAdapter) LookupBlockIndex(hash chainhash.Hash) (*instantsend.BlockIndex, bool) {
	bi, ok := a.c.LookupBlockIndex(hash)
	if !ok {
		return nil, false
	}
	return convertBI(bi), true
}

func (a validationAdapter) InvalidateBlock(bi *instantsend.BlockIndex) error {
	target, ok := a.c.LookupBlockIndex(bi.Hash)
	if !ok {
		return errUnknownBlockIndex
	}
	return a.c.InvalidateBlock(target)
}

func (a validationAdapter) ActivateBestChain() error {
	return a.c.ActivateBestChain()
}

func (a validationAdapter) HasChainLock(height int32, hash chainhash.Hash) bool {
	return a.c.HasChainLock(height, hash)
}

func (a validationAdapter) NotifyChainLock(bi *instantsend.BlockIndex) {
	target, ok := a.c.LookupBlockIndex(bi.Hash)
	if !ok {
		return
	}
	a.c.NotifyChainLock(target)
}

// mempoolAdapter bridges *txpool.Pool to instantsend.Mempool: the two
// packages each declare their own RemovalReason named type, so
// RemoveRecursive needs an explicit conversion at the call site.
type mempoolAdapter struct {
	p *txpool.Pool
}

func (a mempoolAdapter) Get(txid chainhash.Hash) (*wire.Tx, bool) {
	return a.p.Get(txid)
}

func (a mempoolAdapter) SpenderOf(o wire.OutPoint) (*wire.Tx, bool) {
	return a.p.SpenderOf(o)
}

func (a mempoolAdapter) RemoveRecursive(tx *wire.Tx, reason instantsend.RemovalReason) {
	a.p.RemoveRecursive(tx, txpool.RemovalReason(reason))
}

func (a mempoolAdapter) AddTransactionsUpdated(delta int64) {
	a.p.AddTransactionsUpdated(delta)
}

// loggingRelayer is a placeholder instantsend.Relayer: this module stops
// at the InstantSend core (spec.md's "Non-goals" excludes the P2P/gossip
// and bloom-filter layers), so there is no peer manager to relay through
// yet. It logs what would have been relayed, the same role
// chainindex.Chain and txpool.Pool play as minimal stand-ins for their
// real collaborators.
type loggingRelayer struct{}

func (loggingRelayer) RelayISLock(lock *wire.InstantSendLock, tx *wire.Tx) {
	if tx != nil {
		dashLog.Debugf("would relay ISLOCK %s for known tx %s", lock.Hash(), tx.Hash())
		return
	}
	dashLog.Debugf("would relay ISLOCK %s by txid %s only", lock.Hash(), lock.TxID)
}
