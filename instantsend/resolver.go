package instantsend

import (
	"fmt"

	"github.com/PastaPastaPasta/dash/chainhash"
	"github.com/PastaPastaPasta/dash/wire"
)

// ProcessInstantSendLock is the Conflict Resolver (spec.md §4.4),
// invoked by the pending-lock verifier (§4.3) once a lock is accepted.
// Self-signed locks take the same route: manager.go's OnRecoveredSig
// enqueues them as pending with LocalSource.
func (m *Manager) ProcessInstantSendLock(source PeerID, lock *wire.InstantSendLock) {
	hash := lock.Hash()

	// Step 1: local signing for this txid, if any, is superseded.
	m.mu.Lock()
	if nascent, ok := m.txToCreating[lock.TxID]; ok {
		delete(m.creatingLocks, nascent.RequestID())
		delete(m.txToCreating, lock.TxID)
	}
	m.mu.Unlock()

	// Step 2: idempotence — already accepted.
	if _, known := m.cfg.DB.KnownLock(hash); known {
		return
	}

	// Step 3: a ChainLock already finalized this tx's block.
	tx, blockHash, mined := m.cfg.TxIndex.GetTransaction(lock.TxID)
	var minedAt *BlockIndex
	if mined {
		if bi, ok := m.cfg.Chain.LookupBlockIndex(blockHash); ok {
			minedAt = bi
			if m.cfg.Chain.HasChainLock(bi.Height, bi.Hash) {
				mgrLog.Debugf("dropping ISLOCK %s: block %s is already chainlocked", hash, bi.Hash)
				return
			}
		}
	}

	// Step 4: log-only duplicate detection; never abort on it. dupWarned
	// bounds how many distinct hashes this rate-limits, so a peer that
	// keeps resending the same conflicting lock can't grow it unboundedly.
	m.mu.Lock()
	if existing, ok := m.cfg.DB.GetByTxid(lock.TxID); ok && existing.Hash() != hash {
		if !m.dupWarned.Contains(hash) {
			m.dupWarned.Add(hash)
			mgrLog.Warnf("duplicate ISLOCK for txid %s: existing %s, new %s", lock.TxID, existing.Hash(), hash)
		}
	}
	for _, in := range lock.Inputs {
		if other, ok := m.cfg.DB.GetByOutpoint(in); ok && other.Hash() != hash {
			if !m.dupWarned.Contains(hash) {
				m.dupWarned.Add(hash)
				mgrLog.Warnf("ISLOCK %s conflicts with existing lock %s on input %s", hash, other.Hash(), in)
			}
		}
	}
	m.mu.Unlock()

	// Step 5: persist. IS-DB write failure is fatal (spec.md §7: batches
	// are atomic, so partial state is impossible, but the write itself
	// failing means the store is unusable).
	if err := m.cfg.DB.WriteNewLock(lock); err != nil {
		fatal(mgrLog, fmt.Errorf("IS-DB write failed for %s: %w", hash, err))
	}
	if minedAt != nil {
		_ = m.cfg.DB.WriteMined(hash, minedAt.Height)
	}

	// Step 6: prune nonLockedTxs, queue children for retry.
	m.mu.Lock()
	children := m.nonLocked.remove(lock.TxID)
	m.retryQueue = append(m.retryQueue, children...)
	delete(m.inputRequestIDs, lock.TxID)
	delete(m.txs, lock.TxID)
	m.mu.Unlock()

	// Step 7: truncate per-input recovered sigs now the islock covers them.
	for _, in := range lock.Inputs {
		id := chainhash.InputLockRequestID(in.Bytes())
		m.cfg.Signing.TruncateRecoveredSig(m.cfg.LLMQType, id)
	}

	// Step 8: relay.
	if m.cfg.Relay != nil {
		m.cfg.Relay.RelayISLock(lock, tx)
	}

	// Step 9: resolve block conflicts.
	m.resolveBlockConflicts(lock)

	// Step 10: resolve mempool conflicts.
	m.resolveMempoolConflicts(lock)

	// Step 11: notify, if the transaction itself is locally known.
	if tx != nil {
		if m.cfg.NotifyTransactionLock != nil {
			m.cfg.NotifyTransactionLock(tx, lock)
		}
		m.cfg.Mempool.AddTransactionsUpdated(1)
	}
}

// resolveBlockConflicts implements spec.md §4.4 step 9.
func (m *Manager) resolveBlockConflicts(lock *wire.InstantSendLock) {
	m.mu.Lock()
	conflicts := m.nonLocked.conflictsWith(lock)
	m.mu.Unlock()

	chainLockedConflict := false
	toInvalidate := make(map[chainhash.Hash]*BlockIndex)
	for _, c := range conflicts {
		if c.minedIn == nil {
			continue
		}
		if m.cfg.Chain.HasChainLock(c.minedIn.Height, c.minedIn.Hash) {
			chainLockedConflict = true
			break
		}
		toInvalidate[c.minedIn.Hash] = c.minedIn
	}

	if chainLockedConflict {
		m.removeConflictingLock(lock)
		return
	}

	for _, bi := range toInvalidate {
		if err := m.cfg.Chain.InvalidateBlock(bi); err != nil {
			fatal(mgrLog, fmt.Errorf("InvalidateBlock(%s) failed: %w", bi.Hash, err))
		}
	}
	if len(toInvalidate) > 0 {
		if err := m.cfg.Chain.ActivateBestChain(); err != nil {
			fatal(mgrLog, fmt.Errorf("ActivateBestChain failed: %w", err))
		}
	}
}

// removeConflictingLock accepts a local InstantSend violation rather than
// a ChainLock violation: the ISLOCK and everything descended from it are
// pruned and archived at the current tip height.
func (m *Manager) removeConflictingLock(lock *wire.InstantSendLock) {
	tip := m.cfg.Chain.Tip()
	if _, err := m.cfg.DB.RemoveChainedLocks(lock, tip.Height); err != nil {
		mgrLog.Errorf("RemoveChainedLocks(%s) failed: %v", lock.Hash(), err)
	}
}

// resolveMempoolConflicts implements spec.md §4.4 step 10.
func (m *Manager) resolveMempoolConflicts(lock *wire.InstantSendLock) {
	for _, in := range lock.Inputs {
		conflicting, ok := m.cfg.Mempool.SpenderOf(in)
		if !ok || conflicting.Hash() == lock.TxID {
			continue
		}
		m.cfg.Mempool.RemoveRecursive(conflicting, ReasonConflict)
		m.RemoveConflictedTx(conflicting)
	}
}

// ReasonConflict mirrors txpool.ReasonConflict without importing txpool
// directly — Mempool is an interface, and the manager only needs the
// reason code, not the package's other removal-reason values.
const ReasonConflict = 1

// RemoveConflictedTx implements spec.md §4.4's helper of the same name:
// it drops the bookkeeping for tx without retrying its children, and
// frees each of its inputs' request ids so a replacement spender can
// restart signing from scratch.
func (m *Manager) RemoveConflictedTx(tx *wire.Tx) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.nonLocked.byTxid, tx.Hash())
	for _, in := range tx.Inputs() {
		if spender, ok := m.nonLocked.byOutpoint[in]; ok && spender == tx.Hash() {
			delete(m.nonLocked.byOutpoint, in)
		}
		id := chainhash.InputLockRequestID(in.Bytes())
		delete(m.requestIDToTxid, id)
	}
	delete(m.inputRequestIDs, tx.Hash())
	delete(m.txs, tx.Hash())
}
