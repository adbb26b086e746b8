package instantsend

import (
	"github.com/PastaPastaPasta/dash/chainhash"
	"github.com/PastaPastaPasta/dash/wire"
)

// ProcessPendingRetryLockTxs drains the retry queue populated by
// ProcessInstantSendLock step 6: each txid is retried only if it is
// still tracked, has its payload locally, isn't already mid-signing or
// locked, and has no conflicting lock (spec.md §4.5).
func (m *Manager) ProcessPendingRetryLockTxs() {
	m.mu.Lock()
	queue := m.retryQueue
	m.retryQueue = nil
	m.mu.Unlock()

	seen := make(map[chainhash.Hash]struct{}, len(queue))
	for _, txid := range queue {
		if _, dup := seen[txid]; dup {
			continue
		}
		seen[txid] = struct{}{}
		m.retryOne(txid)
	}
}

func (m *Manager) retryOne(txid chainhash.Hash) {
	m.mu.Lock()
	entry, tracked := m.nonLocked.get(txid)
	_, creating := m.txToCreating[txid]
	m.mu.Unlock()

	if !tracked || entry.tx == nil || !entry.tx.Payload || creating {
		return
	}
	if _, locked := m.cfg.DB.GetByTxid(txid); locked {
		return
	}
	if m.hasConflictingLock(entry.tx) {
		return
	}
	if err := m.ProcessTx(entry.tx, false); err != nil {
		mgrLog.Debugf("retry ProcessTx(%s) skipped: %v", txid, err)
	}
}

func (m *Manager) hasConflictingLock(tx *wire.Tx) bool {
	for _, in := range tx.Inputs() {
		if existing, ok := m.cfg.DB.GetByOutpoint(in); ok && existing.TxID != tx.Hash() {
			return true
		}
	}
	return false
}

// HandleFullyConfirmedBlock runs the GC sweep spec.md §4.5 triggers on
// NotifyChainLock (or the legacy UpdatedBlockTip-at-depth path): it
// prunes deeply-confirmed locks from IS-DB, truncates their recovered
// signatures, ages out old archive entries, and drops any non-locked
// bookkeeping that predates bi.
func (m *Manager) HandleFullyConfirmedBlock(bi *BlockIndex) {
	m.mu.Lock()
	if bi.Height <= m.bestConfirmedHeight {
		m.mu.Unlock()
		mgrLog.Debugf("ignoring confirm at height %d: bestConfirmedHeight already %d", bi.Height, m.bestConfirmedHeight)
		return
	}
	m.bestConfirmedHeight = bi.Height
	m.mu.Unlock()

	removed, err := m.cfg.DB.RemoveConfirmedUpTo(bi.Height)
	if err != nil {
		mgrLog.Errorf("RemoveConfirmedUpTo(%d) failed: %v", bi.Height, err)
		return
	}
	for _, l := range removed {
		m.cfg.Signing.TruncateRecoveredSig(m.cfg.LLMQType, l.RequestID())
		for _, in := range l.Inputs {
			m.cfg.Signing.TruncateRecoveredSig(m.cfg.LLMQType, chainhash.InputLockRequestID(in.Bytes()))
		}
	}

	archiveCutoff := bi.Height - m.cfg.ArchiveRetentionBlocks
	if err := m.cfg.DB.RemoveArchivedUpTo(archiveCutoff); err != nil {
		mgrLog.Errorf("RemoveArchivedUpTo(%d) failed: %v", archiveCutoff, err)
	}

	m.pruneConfirmedNonLocked(bi)
}

// pruneConfirmedNonLocked walks the non-locked bookkeeping and drops any
// entry mined at or before bi, queueing its children for retry — the
// ancestor is now settled by depth/chainlock rather than by ISLOCK.
func (m *Manager) pruneConfirmedNonLocked(bi *BlockIndex) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for txid, entry := range m.nonLocked.byTxid {
		if entry.minedIn == nil || entry.minedIn.Height > bi.Height {
			continue
		}
		children := m.nonLocked.remove(txid)
		m.retryQueue = append(m.retryQueue, children...)
	}
}
