// Package signing implements the Signing Service collaborator from spec.md
// §6: the thing the InstantSend core asks to participate in threshold
// signing and that later hands back a RecoveredSig once enough quorum
// members have voted.
//
// Real threshold BLS recovery (Shamir secret-sharing reconstruction across
// quorum members) is explicitly out of scope (spec.md §1 Non-goal:
// "Reinventing the BLS scheme"). This in-memory implementation simulates
// the *outcome* — a valid signature appears once a request is made — by
// signing directly with a per-quorum secret it is handed out-of-band (e.g.
// by a test harness standing in for the DKG). That is sufficient to drive
// every state transition the Manager in package instantsend cares about.
package signing

import (
	"sync"

	"github.com/PastaPastaPasta/dash/chainhash"
	"github.com/PastaPastaPasta/dash/internal/bls"
	"github.com/PastaPastaPasta/dash/llmq"
)

// RecoveredSig is the threshold-combined signature output for a
// (llmqType, id, msgHash) tuple (see spec.md glossary).
type RecoveredSig struct {
	LLMQType llmq.Type
	ID       chainhash.Hash
	MsgHash  chainhash.Hash
	Sig      [bls.SignatureSize]byte
}

// Listener is the capability-set callback interface InstantSend registers
// to be told about newly recovered signatures (spec.md §9 Design Note:
// "Dynamic dispatch over signing-listener callbacks is an explicit
// capability-set interface").
type Listener interface {
	OnRecoveredSig(rs *RecoveredSig)
}

// ListenerFunc adapts a plain function to Listener.
type ListenerFunc func(rs *RecoveredSig)

// OnRecoveredSig implements Listener.
func (f ListenerFunc) OnRecoveredSig(rs *RecoveredSig) { f(rs) }

type reqKey struct {
	llmqType llmq.Type
	id       chainhash.Hash
}

// Service is the in-memory Signing Service.
type Service struct {
	mu sync.Mutex

	quorums *llmq.Manager

	// currentHeight resolves the chain tip used to pick the active
	// quorum when a new signing request arrives.
	currentHeight func() int32

	// quorumSecrets holds the simulated quorum secret a test harness
	// provisions per quorum hash, standing in for the DKG's private
	// share reconstruction.
	quorumSecrets map[chainhash.Hash]*bls.SecretKey

	votes     map[reqKey]chainhash.Hash
	recovered map[reqKey]*RecoveredSig

	nextHandle int
	listeners  map[int]Listener
}

// NewService constructs a Signing Service bound to the given quorum
// manager. currentHeight supplies the chain tip used for quorum selection.
func NewService(quorums *llmq.Manager, currentHeight func() int32) *Service {
	return &Service{
		quorums:       quorums,
		currentHeight: currentHeight,
		quorumSecrets: make(map[chainhash.Hash]*bls.SecretKey),
		votes:         make(map[reqKey]chainhash.Hash),
		recovered:     make(map[reqKey]*RecoveredSig),
		listeners:     make(map[int]Listener),
	}
}

// ProvisionQuorumSecret associates a quorum's simulated combined secret
// key with its quorum hash, so AsyncSignIfMember can produce a signature
// for it. Test-only: a real node never holds a quorum's combined secret.
func (s *Service) ProvisionQuorumSecret(quorumHash chainhash.Hash, sk *bls.SecretKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quorumSecrets[quorumHash] = sk
}

// RegisterListener subscribes l to future recovered-signature events and
// returns a handle that unregisters it, per spec.md §9's
// "unregisters on drop" design note (Go has no destructors, so the handle
// is an explicit func() the caller invokes, e.g. via defer).
func (s *Service) RegisterListener(l Listener) (unregister func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := s.nextHandle
	s.nextHandle++
	s.listeners[h] = l

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, h)
	}
}

// IsConflicting reports whether a vote already exists for id with a
// different msgHash (spec.md §4.2 step "abort (conflict)").
func (s *Service) IsConflicting(llmqType llmq.Type, id, msgHash chainhash.Hash) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.votes[reqKey{llmqType, id}]
	return ok && existing != msgHash
}

// GetVoteForId returns the message hash this node has voted for on id, if
// any.
func (s *Service) GetVoteForId(llmqType llmq.Type, id chainhash.Hash) (chainhash.Hash, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.votes[reqKey{llmqType, id}]
	return v, ok
}

// HasRecoveredSigForId reports whether id has a recovered signature,
// regardless of which message it covers.
func (s *Service) HasRecoveredSigForId(llmqType llmq.Type, id chainhash.Hash) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.recovered[reqKey{llmqType, id}]
	return ok
}

// HasRecoveredSig reports whether a recovered signature exists for id AND
// it covers msgHash specifically.
func (s *Service) HasRecoveredSig(llmqType llmq.Type, id, msgHash chainhash.Hash) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	rs, ok := s.recovered[reqKey{llmqType, id}]
	return ok && rs.MsgHash == msgHash
}

// SelectQuorumForSigning delegates to the underlying llmq.Manager.
func (s *Service) SelectQuorumForSigning(llmqType llmq.Type, signHeight, signOffset int32) (*llmq.Quorum, bool) {
	return s.quorums.SelectQuorumForSigning(llmqType, signHeight, signOffset)
}

// AsyncSignIfMember records this node's vote for id and, if a simulated
// quorum secret is available, immediately produces and stores the
// recovered signature, notifying listeners. A real signing service would
// merely broadcast a partial-signature vote and wait for threshold
// recovery asynchronously; see the package doc for why this is
// intentionally simplified.
func (s *Service) AsyncSignIfMember(llmqType llmq.Type, id, msgHash chainhash.Hash) {
	s.mu.Lock()

	key := reqKey{llmqType, id}
	if existing, ok := s.votes[key]; ok {
		if existing != msgHash {
			s.mu.Unlock()
			return // conflicting vote, caller should have checked IsConflicting first
		}
		if _, already := s.recovered[key]; already {
			s.mu.Unlock()
			return
		}
	}
	s.votes[key] = msgHash

	quorum, ok := s.quorums.SelectQuorumForSigning(llmqType, s.currentHeight(), 0)
	if !ok {
		s.mu.Unlock()
		return
	}
	sk, ok := s.quorumSecrets[quorum.QuorumHash]
	if !ok {
		s.mu.Unlock()
		return
	}

	signHash := llmq.BuildSignHash(llmqType, quorum.QuorumHash, id, msgHash)
	sig := sk.Sign(signHash[:])
	rs := &RecoveredSig{LLMQType: llmqType, ID: id, MsgHash: msgHash, Sig: sig.Bytes()}
	s.recovered[key] = rs

	listeners := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.Unlock()

	for _, l := range listeners {
		l.OnRecoveredSig(rs)
	}
}

// PushReconstructedRecoveredSig injects a signature the caller already
// verified by other means (spec.md §4.3: once the Pending-Lock Verifier
// accepts a peer ISLOCK, it synthesizes a RecoveredSig from it so the
// Signing Service doesn't redundantly re-verify).
func (s *Service) PushReconstructedRecoveredSig(rs *RecoveredSig) {
	s.mu.Lock()
	key := reqKey{rs.LLMQType, rs.ID}
	s.recovered[key] = rs
	s.votes[key] = rs.MsgHash
	s.mu.Unlock()
}

// TruncateRecoveredSig discards the recovered signature (and vote) for id,
// used on GC (spec.md §4.5) and when the Conflict Resolver prunes
// conflicting locks (spec.md §4.4 step 7).
func (s *Service) TruncateRecoveredSig(llmqType llmq.Type, id chainhash.Hash) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := reqKey{llmqType, id}
	delete(s.recovered, key)
	delete(s.votes, key)
}
