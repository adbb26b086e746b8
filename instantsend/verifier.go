package instantsend

import (
	"errors"

	"github.com/PastaPastaPasta/dash/banscore"
	"github.com/PastaPastaPasta/dash/chainhash"
	"github.com/PastaPastaPasta/dash/llmq"
	"github.com/PastaPastaPasta/dash/signing"
	"github.com/PastaPastaPasta/dash/wire"
)

// pendingState is the per-lock state machine from spec.md §4.3. It exists
// mainly for observability — dispositions are acted on immediately, not
// polled.
type pendingState int

const (
	stateNew pendingState = iota
	statePreflightOK
	stateBatchVerify
	stateAccept
	stateBadSigCurrent
	stateBadSigPrevious
	stateUnknownCycle
)

type pendingEntry struct {
	peer  PeerID
	lock  *wire.InstantSendLock
	state pendingState
}

// ReceiveInstantSendLock enqueues a peer-delivered lock for the next
// drain. It performs no verification itself — preflight and BLS checks
// happen on the worker thread, per spec.md §4.3.
func (m *Manager) ReceiveInstantSendLock(peer PeerID, lock *wire.InstantSendLock) {
	m.enqueuePendingLock(peer, lock)
}

func (m *Manager) enqueuePendingLock(peer PeerID, lock *wire.InstantSendLock) {
	hash := lock.Hash()
	m.mu.Lock()
	if _, exists := m.pending[hash]; !exists {
		m.pendingOrder = append(m.pendingOrder, hash)
		m.pending[hash] = &pendingEntry{peer: peer, lock: lock, state: stateNew}
	}
	m.mu.Unlock()
}

func (m *Manager) drainPending(n int) []*pendingEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	if n > len(m.pendingOrder) {
		n = len(m.pendingOrder)
	}
	hashes := m.pendingOrder[:n]
	m.pendingOrder = m.pendingOrder[n:]

	out := make([]*pendingEntry, 0, n)
	for _, h := range hashes {
		if e, ok := m.pending[h]; ok {
			out = append(out, e)
		}
	}
	return out
}

func (m *Manager) removePending(hash chainhash.Hash) {
	m.mu.Lock()
	delete(m.pending, hash)
	m.mu.Unlock()
}

func (m *Manager) hasPending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pendingOrder) > 0
}

func (m *Manager) punish(peer PeerID, score int) {
	if peer == LocalSource {
		return
	}
	m.cfg.BanScore.Add(int64(peer), score)
}

// punishForDisposition credits the score embedded in a *BanScore
// disposition to peer, falling back to banscore.Malformed when err
// carries no explicit score — every call site here is a disposition
// over untrusted peer input, so an unrecognized error defaults to the
// harshest taxonomy entry rather than silently under-scoring it.
func (m *Manager) punishForDisposition(peer PeerID, err error) {
	score := banscore.Malformed
	var bs *BanScore
	if errors.As(err, &bs) {
		score = bs.Score
	}
	m.punish(peer, score)
}

// preflight implements spec.md §4.3's per-lock structural checks.
func (m *Manager) preflight(e *pendingEntry) error {
	l := e.lock
	if err := l.Validate(); err != nil {
		return err
	}
	if l.Version != wire.DeterministicLock {
		return nil
	}

	bi, ok := m.cfg.Chain.LookupBlockIndex(l.CycleHash)
	if !ok {
		return errUnknownCycleBlock
	}
	if bi.Height%m.cfg.Quorums.DKGInterval() != 0 {
		return errBadCycleHeight
	}
	return nil
}

func (m *Manager) punishForPreflight(e *pendingEntry, err error) {
	if errors.Is(err, errUnknownCycleBlock) {
		e.state = stateUnknownCycle
	}
	m.punishForDisposition(e.peer, err)
	m.removePending(e.lock.Hash())
}

// ProcessPendingInstantSendLocks drains up to drainSize pending locks and
// runs them through the two-pass quorum verification of spec.md §4.3. It
// returns true if more pending entries remain for the next iteration.
func (m *Manager) ProcessPendingInstantSendLocks() bool {
	batch := m.drainPending(drainSize)
	if len(batch) == 0 {
		return false
	}

	preflightOK := make([]*pendingEntry, 0, len(batch))
	for _, e := range batch {
		if err := m.preflight(e); err != nil {
			m.punishForPreflight(e, err)
			continue
		}
		e.state = statePreflightOK
		preflightOK = append(preflightOK, e)
	}

	for _, e := range preflightOK {
		e.state = stateBatchVerify
	}
	failedA := m.verifyPass(preflightOK, 0, false)
	if len(failedA) > 0 {
		m.verifyPass(failedA, m.cfg.Quorums.DKGInterval(), true)
	}

	return m.hasPending()
}

// verifyPass runs Pass A (signOffset 0, current quorum, no punishment on
// failure) or Pass B (signOffset dkgInterval, previous quorum, punish 20
// on failure) over entries, returning the entries that failed this pass.
// Each lock's signature is checked on its own with bls.Verify; the locks
// of a drain are not combined into one batched pairing check.
func (m *Manager) verifyPass(entries []*pendingEntry, signOffset int32, isSecondPass bool) []*pendingEntry {
	var failed []*pendingEntry
	tip := m.cfg.Chain.Tip()

	for _, e := range entries {
		l := e.lock
		id := l.RequestID()

		if m.cfg.Signing.HasRecoveredSig(m.cfg.LLMQType, id, l.TxID) {
			e.state = stateAccept
			m.acceptLock(e)
			continue
		}

		quorum, ok := m.cfg.Quorums.SelectQuorumForSigning(m.cfg.LLMQType, tip.Height, signOffset)
		if !ok {
			if isSecondPass {
				e.state = stateBadSigPrevious
				m.punishForDisposition(e.peer, errQuorumUnavailable)
				m.removePending(l.Hash())
			} else {
				failed = append(failed, e)
			}
			continue
		}

		signHash := llmq.BuildSignHash(m.cfg.LLMQType, quorum.QuorumHash, id, l.TxID)
		if verifySignatureBytes(quorum.ThresholdKey, signHash[:], l.Sig) {
			e.state = stateAccept
			m.cfg.Signing.PushReconstructedRecoveredSig(&signing.RecoveredSig{
				LLMQType: m.cfg.LLMQType,
				ID:       id,
				MsgHash:  l.TxID,
				Sig:      l.Sig,
			})
			m.acceptLock(e)
			continue
		}

		if isSecondPass {
			e.state = stateBadSigPrevious
			m.punishForDisposition(e.peer, errBadSignaturePrevious)
			m.removePending(l.Hash())
		} else {
			e.state = stateBadSigCurrent
			failed = append(failed, e)
		}
	}
	return failed
}

func (m *Manager) acceptLock(e *pendingEntry) {
	m.ProcessInstantSendLock(e.peer, e.lock)
	m.removePending(e.lock.Hash())
}
