package instantsend

import (
	"errors"
	"os"

	"github.com/btcsuite/btclog"

	"github.com/PastaPastaPasta/dash/banscore"
)

// Errors returned by ProcessTx's precondition checks (spec.md §4.2).
// None of these are peer-facing; they only ever originate locally.
var (
	ErrNotReady               = errors.New("instantsend: node is not a synced validator")
	ErrInstantSendDisabled    = errors.New("instantsend: disabled by llmqTypeInstantSend or spork")
	ErrNoInputs               = errors.New("instantsend: transaction has no inputs")
	ErrMempoolSigningDisabled = errors.New("instantsend: mempool signing disabled and call is not retroactive")
	ErrInputNotConfirmed      = errors.New("instantsend: input is neither locked, sufficiently confirmed, nor chainlocked")
	ErrConflictingLock        = errors.New("instantsend: an existing lock conflicts with one of this transaction's inputs")
	ErrConflictingVote        = errors.New("instantsend: an input already has a vote or conflicting signing request for a different tx")
)

// BanScore is a typed error embedding the numeric misbehavior score
// (spec.md §7's taxonomy) a peer-facing disposition should be credited
// with, so callers translate uniformly via errors.As instead of
// string-matching error text or re-deriving the score at each call
// site. Err is the underlying disposition; Unwrap exposes it so
// errors.Is still works against the specific sentinel.
type BanScore struct {
	Score int
	Err   error
}

func (e *BanScore) Error() string { return e.Err.Error() }
func (e *BanScore) Unwrap() error { return e.Err }

// Preflight and verification dispositions from spec.md §4.3/§7, each
// carrying its taxonomy score: an unknown cycle block might simply be
// ahead of the local chain (misbehave 1); a known block at the wrong
// height multiple or a structurally invalid lock is malformed (misbehave
// 100); a bad signature or unavailable quorum on the previous-quorum pass
// is a stale-quorum vote (misbehave 20). A bad signature against the
// current quorum alone carries no score: the lock is retried on the
// previous-quorum pass.
var (
	errUnknownCycleBlock    = &BanScore{banscore.UnknownCycle, errors.New("instantsend: deterministic lock cycleHash is not a known block")}
	errBadCycleHeight       = &BanScore{banscore.Malformed, errors.New("instantsend: deterministic lock cycleHash block is not a dkgInterval boundary")}
	errQuorumUnavailable    = &BanScore{banscore.StaleQuorum, errors.New("instantsend: no quorum available for previous-quorum verification pass")}
	errBadSignaturePrevious = &BanScore{banscore.StaleQuorum, errors.New("instantsend: ISLOCK signature invalid for previous quorum")}
)

// fatal logs err at Critical on log and terminates the process, per
// SPEC_FULL.md §11: a consensus-critical invariant violation (a failed
// IS-DB write, a failed block invalidation, a failed best-chain
// activation) calls fatal rather than panicking — mirroring how
// production node software treats these as unrecoverable rather than
// unwinding through a panic/recover loop a caller could swallow.
func fatal(log btclog.Logger, err error) {
	log.Criticalf("%v", err)
	os.Exit(1)
}
