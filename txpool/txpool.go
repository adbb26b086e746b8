// Package txpool implements a minimal concrete mempool standing in for the
// externally-owned Mempool collaborator from spec.md §6. It provides just
// the operations the Conflict Resolver drives: lookup by txid, lookup of
// the spender of an outpoint, recursive conflict removal, and an
// updated-transactions counter for block template invalidation.
//
// Grounded on btcsuite-btcd/mempool/mempool.go's TxPool: an RWMutex-guarded
// map of pooled transactions plus a parallel outpoint->spender index, and a
// removeTransaction that recurses over redeemers before deleting its
// target.
package txpool

import (
	"sync"
	"sync/atomic"

	"github.com/PastaPastaPasta/dash/chainhash"
	"github.com/PastaPastaPasta/dash/wire"
)

// RemovalReason records why a transaction left the pool.
type RemovalReason int

const (
	ReasonUnspecified RemovalReason = iota
	ReasonConflict
	ReasonMined
)

// Pool is a minimal concurrency-safe mempool.
type Pool struct {
	mtx sync.RWMutex

	pool      map[chainhash.Hash]*wire.Tx
	outpoints map[wire.OutPoint]*wire.Tx

	updated int64 // accessed atomically
}

// New returns an empty Pool.
func New() *Pool {
	return &Pool{
		pool:      make(map[chainhash.Hash]*wire.Tx),
		outpoints: make(map[wire.OutPoint]*wire.Tx),
	}
}

// AddTransactionsUpdated bumps the updated counter by delta, signalling
// that in-flight block templates should be recomposed (spec.md §6).
func (p *Pool) AddTransactionsUpdated(delta int64) {
	atomic.AddInt64(&p.updated, delta)
}

// LastUpdated returns the current value of the updated counter.
func (p *Pool) LastUpdated() int64 {
	return atomic.LoadInt64(&p.updated)
}

// AddTransaction inserts tx into the pool, indexing its inputs.
func (p *Pool) AddTransaction(tx *wire.Tx) {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	p.pool[tx.Hash()] = tx
	for _, in := range tx.Inputs() {
		p.outpoints[in] = tx
	}
}

// Get returns the pooled transaction for txid, if any.
func (p *Pool) Get(txid chainhash.Hash) (*wire.Tx, bool) {
	p.mtx.RLock()
	defer p.mtx.RUnlock()

	tx, ok := p.pool[txid]
	return tx, ok
}

// SpenderOf returns the pooled transaction currently spending outpoint, if
// any — the mapNextTx lookup from spec.md §6.
func (p *Pool) SpenderOf(o wire.OutPoint) (*wire.Tx, bool) {
	p.mtx.RLock()
	defer p.mtx.RUnlock()

	tx, ok := p.outpoints[o]
	return tx, ok
}

// removeTransaction is the internal recursive implementation; callers must
// hold mtx for writing.
func (p *Pool) removeTransaction(tx *wire.Tx, removeRedeemers bool) {
	txHash := tx.Hash()
	if removeRedeemers {
		// InstantSend's minimal Tx view carries no outputs, so a
		// redeemer of tx is found by scanning for any pooled input
		// whose prevout hash is tx's own hash.
		for outpoint, spender := range p.outpoints {
			if outpoint.Hash == txHash && spender.Hash() != txHash {
				p.removeTransaction(spender, true)
			}
		}
	}

	if _, exists := p.pool[txHash]; exists {
		for _, in := range tx.Inputs() {
			delete(p.outpoints, in)
		}
		delete(p.pool, txHash)
		p.AddTransactionsUpdated(1)
	}
}

// RemoveRecursive removes tx and, transitively, every transaction that
// spends one of its outputs, recording reason for observability (the
// reason itself carries no behavioural weight here; production telemetry
// would tag it).
func (p *Pool) RemoveRecursive(tx *wire.Tx, reason RemovalReason) {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	_ = reason
	p.removeTransaction(tx, true)
}
