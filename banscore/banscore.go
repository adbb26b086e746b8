// Package banscore implements the peer misbehavior scoring taxonomy from
// spec.md §7: malformed input scores 100 (ban-equivalent), an unknown
// cycleHash block scores 1 (peer may just be ahead), and a signature that
// fails against the current quorum and then again against the previous
// one scores 20.
package banscore

// Score levels named after spec.md §7's error taxonomy.
const (
	// Malformed is the score for structurally invalid peer input: empty
	// inputs, duplicate outpoints, bad version, mismatched cycleHash
	// height. Ban-equivalent.
	Malformed = 100

	// StaleQuorum is the score for a signature that fails verification
	// against the previous quorum rotation on Pass B (not the full 100,
	// since quorums legitimately rotate).
	StaleQuorum = 20

	// UnknownCycle is the score for a deterministic ISLOCK whose
	// cycleHash names a block this node hasn't seen yet — it might just
	// be ahead of us.
	UnknownCycle = 1
)

// BanThreshold is the cumulative score at which a peer is disconnected and
// banned.
const BanThreshold = 100

// Tracker accumulates misbehavior scores per peer identifier. It holds no
// lock of its own; callers that share a Tracker across goroutines must
// guard it externally (instantsend.Manager calls Add without holding a
// lock, from its pending-lock verifier).
type Tracker struct {
	scores map[int64]int
}

// NewTracker returns an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{scores: make(map[int64]int)}
}

// Add adds score points to peerID's running total and reports whether the
// peer has now crossed BanThreshold.
func (t *Tracker) Add(peerID int64, score int) (total int, banned bool) {
	t.scores[peerID] += score
	total = t.scores[peerID]
	return total, total >= BanThreshold
}

// Reset clears a peer's accumulated score, e.g. on disconnect.
func (t *Tracker) Reset(peerID int64) {
	delete(t.scores, peerID)
}

// Score returns a peer's current accumulated score.
func (t *Tracker) Score(peerID int64) int {
	return t.scores[peerID]
}
