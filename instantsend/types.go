// Package instantsend implements the Manager described by spec.md §4:
// the signing driver, pending-lock verifier, conflict resolver, and
// retry/GC loop that together turn a threshold-signed set of per-input
// votes into an accepted InstantSendLock.
//
// Grounded end-to-end on original_source/src/llmq/quorums_instantsend.cpp
// (CInstantSendManager); Go concurrency idioms (a sync.Mutex field,
// quit-channel worker, sync.WaitGroup shutdown) are grounded on
// btcsuite-btcd/mining/cpuminer/cpuminer.go's CPUMiner.
package instantsend

import (
	"github.com/PastaPastaPasta/dash/chainhash"
	"github.com/PastaPastaPasta/dash/llmq"
	"github.com/PastaPastaPasta/dash/signing"
	"github.com/PastaPastaPasta/dash/wire"
)

// PeerID identifies the source of an inbound ISLOCK for misbehavior
// scoring and relay bookkeeping. -1 is reserved for locally-produced
// locks (spec.md §4.2's "enqueue... with source -1 (self)").
type PeerID int64

// LocalSource is the PeerID used for locks the node signed itself.
const LocalSource PeerID = -1

// RemovalReason mirrors the reasons the Mempool interface accepts for
// RemoveRecursive.
type RemovalReason = int

// FeatureFlags are the spork-derived toggles consulted on every signing
// and relay decision (spec.md §6, "Spork / feature toggles").
type FeatureFlags struct {
	InstantSendEnabled      bool
	MempoolSigningEnabled   bool
	RejectConflictingBlocks bool
	DIP0020Active           bool
}

// BlockIndex is the subset of chainindex.BlockIndex the manager needs,
// kept as an interface-free struct copy so this package doesn't import
// chainindex directly — the two packages are peers, both consumed by
// cmd/dashd, not layered on one another.
type BlockIndex struct {
	Hash        chainhash.Hash
	Height      int32
	Prev        *BlockIndex
	ChainLocked bool
}

// Mempool is the subset of txpool.Pool the manager drives.
type Mempool interface {
	Get(txid chainhash.Hash) (*wire.Tx, bool)
	SpenderOf(o wire.OutPoint) (*wire.Tx, bool)
	RemoveRecursive(tx *wire.Tx, reason RemovalReason)
	AddTransactionsUpdated(delta int64)
}

// TxIndex is the external Transaction Index collaborator (spec.md §6).
type TxIndex interface {
	GetTransaction(txid chainhash.Hash) (tx *wire.Tx, blockHash chainhash.Hash, mined bool)
}

// Validation is the external chain-state collaborator (spec.md §6).
type Validation interface {
	Tip() *BlockIndex
	AtHeight(height int32) (*BlockIndex, bool)
	LookupBlockIndex(hash chainhash.Hash) (*BlockIndex, bool)
	InvalidateBlock(bi *BlockIndex) error
	ActivateBestChain() error
	HasChainLock(height int32, hash chainhash.Hash) bool
	NotifyChainLock(bi *BlockIndex)
}

// Relayer abstracts peer inventory relay (spec.md §6's inventory-filter
// aware relay gate). The full P2P/bloom-filter stack is out of this
// module's scope; callers wire a concrete implementation on top of their
// own peer manager.
type Relayer interface {
	RelayISLock(lock *wire.InstantSendLock, tx *wire.Tx)
}

// IsDB is the subset of isdb.Store the manager drives.
type IsDB interface {
	WriteNewLock(l *wire.InstantSendLock) error
	RemoveLock(hash chainhash.Hash) error
	WriteMined(hash chainhash.Hash, height int32) error
	RemoveMined(hash chainhash.Hash, height int32) error
	RemoveConfirmedUpTo(upToHeight int32) (map[chainhash.Hash]*wire.InstantSendLock, error)
	WriteArchived(l *wire.InstantSendLock, height int32) error
	RemoveArchivedUpTo(upToHeight int32) error
	KnownLock(hash chainhash.Hash) (*wire.InstantSendLock, bool)
	GetByTxid(txid chainhash.Hash) (*wire.InstantSendLock, bool)
	GetByOutpoint(o wire.OutPoint) (*wire.InstantSendLock, bool)
	GetByParent(parentTxid chainhash.Hash) ([]*wire.InstantSendLock, error)
	RemoveChainedLocks(root *wire.InstantSendLock, archiveHeight int32) ([]chainhash.Hash, error)
}

// BanScorer is the subset of banscore.Tracker the manager drives.
type BanScorer interface {
	Add(peerID int64, score int) (total int, banned bool)
}

// Config bundles the manager's static collaborators and tunables.
type Config struct {
	LLMQType               llmq.Type
	ConfirmationsRequired  int32 // nInstantSendConfirmationsRequired
	KeepLockDepth          int32 // nInstantSendKeepLock
	ArchiveRetentionBlocks int32 // e.g. 100, per spec.md §8 scenario 6

	Flags           func() FeatureFlags
	Synced          func() bool
	IsValidatorNode func() bool

	// NotifyTransactionLock fires exactly once per accepted ISLOCK for
	// which the local node holds tx (spec.md §6).
	NotifyTransactionLock func(tx *wire.Tx, lock *wire.InstantSendLock)

	Quorums  *llmq.Manager
	Signing  *signing.Service
	DB       IsDB
	Mempool  Mempool
	TxIndex  TxIndex
	Chain    Validation
	BanScore BanScorer
	Relay    Relayer
}
