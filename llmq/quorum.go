// Package llmq implements the deterministic-validator quorum primitives
// that the InstantSend core consumes: quorum identity, the rotation-aware
// SelectQuorumForSigning lookup, and the domain-separated sign hash
// construction. It is a simplified stand-in for the quorum-commitment and
// DKG machinery in original_source/src/llmq/{utils,commitment}.cpp — this
// module does not run a DKG; it is handed already-formed quorums.
package llmq

import (
	"sync"

	"github.com/PastaPastaPasta/dash/chainhash"
	"github.com/PastaPastaPasta/dash/internal/bls"
)

// Type identifies which LLMQ parameter set a quorum belongs to (mirrors
// spec.md §6's llmqTypeInstantSend). NoneType signals InstantSend is
// disabled.
type Type uint8

const (
	NoneType Type = iota
	InstantSendType
)

// Quorum is a deterministically-selected signing quorum for one DKG cycle.
type Quorum struct {
	LLMQType     Type
	QuorumHash   chainhash.Hash // hash of the anchoring block at the cycle boundary
	Height       int32          // height of QuorumHash, always height % DKGInterval == 0
	ThresholdKey *bls.PublicKey // the quorum's combined threshold public key
	Members      []*bls.PublicKey
}

// Manager tracks the currently active and previous quorums per LLMQ type
// and answers the §4.2/§4.3 rotation-aware lookups.
//
// Grounded on original_source/src/llmq/utils.cpp's quorum-rotation
// selection by signOffset.
type Manager struct {
	mu sync.RWMutex

	// dkgInterval is the block interval between successive quorum
	// rotations (spec.md glossary).
	dkgInterval int32

	// quorums indexes known quorums by (type, height) for direct lookup;
	// tipHeight records the newest registered height per type.
	// SelectQuorumForSigning derives its target from signHeight alone and
	// does not read tipHeight.
	quorums   map[quorumKey]*Quorum
	tipHeight map[Type]int32
}

type quorumKey struct {
	llmqType Type
	height   int32
}

// NewManager returns a Manager with the given DKG rotation interval.
func NewManager(dkgInterval int32) *Manager {
	return &Manager{
		dkgInterval: dkgInterval,
		quorums:     make(map[quorumKey]*Quorum),
		tipHeight:   make(map[Type]int32),
	}
}

// DKGInterval returns the configured rotation interval.
func (m *Manager) DKGInterval() int32 {
	return m.dkgInterval
}

// CycleHeight rounds height down to the nearest DKG cycle boundary, the
// height a deterministic ISLOCK's cycleHash must resolve to
// (spec.md §3 invariant).
func (m *Manager) CycleHeight(height int32) int32 {
	return height - (height % m.dkgInterval)
}

// RegisterQuorum makes a quorum known to the manager and, if its height is
// the newest seen for its type, advances the active tip for that type.
func (m *Manager) RegisterQuorum(q *Quorum) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.quorums[quorumKey{q.LLMQType, q.Height}] = q
	if q.Height > m.tipHeight[q.LLMQType] {
		m.tipHeight[q.LLMQType] = q.Height
	}
}

// SelectQuorumForSigning returns the quorum active signOffset blocks
// before signHeight for llmqType. Per spec.md §4.3, the Pending-Lock
// Verifier calls this twice per drain: once with signOffset=0 (the current
// quorum) and, only for locks that failed that pass, again with
// signOffset=dkgInterval (the previous rotation).
func (m *Manager) SelectQuorumForSigning(llmqType Type, signHeight, signOffset int32) (*Quorum, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	target := m.CycleHeight(signHeight - signOffset)
	q, ok := m.quorums[quorumKey{llmqType, target}]
	return q, ok
}

// QuorumForCycleHash finds the quorum anchored at the given cycle-boundary
// block hash. The instantsend preflight resolves a deterministic ISLOCK's
// cycleHash through the chain's block index instead and does not call it.
func (m *Manager) QuorumForCycleHash(llmqType Type, cycleHash chainhash.Hash) (*Quorum, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for k, q := range m.quorums {
		if k.llmqType == llmqType && q.QuorumHash == cycleHash {
			return q, true
		}
	}
	return nil, false
}
