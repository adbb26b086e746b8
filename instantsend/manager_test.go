package instantsend

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/PastaPastaPasta/dash/banscore"
	"github.com/PastaPastaPasta/dash/chainhash"
	"github.com/PastaPastaPasta/dash/chainindex"
	"github.com/PastaPastaPasta/dash/internal/bls"
	"github.com/PastaPastaPasta/dash/isdb"
	"github.com/PastaPastaPasta/dash/llmq"
	"github.com/PastaPastaPasta/dash/signing"
	"github.com/PastaPastaPasta/dash/txpool"
	"github.com/PastaPastaPasta/dash/wire"
)

// mempoolAdapter bridges *txpool.Pool to the Mempool interface: the two
// RemovalReason types share an underlying int but are distinct named
// types, so Go's interface satisfaction rules require this translation
// at the wiring boundary rather than at either package's definition.
type mempoolAdapter struct{ p *txpool.Pool }

func (a *mempoolAdapter) Get(txid chainhash.Hash) (*wire.Tx, bool)   { return a.p.Get(txid) }
func (a *mempoolAdapter) SpenderOf(o wire.OutPoint) (*wire.Tx, bool) { return a.p.SpenderOf(o) }
func (a *mempoolAdapter) AddTransactionsUpdated(delta int64)         { a.p.AddTransactionsUpdated(delta) }

func (a *mempoolAdapter) RemoveRecursive(tx *wire.Tx, reason RemovalReason) {
	a.p.RemoveRecursive(tx, txpool.RemovalReason(reason))
}

// validationAdapter bridges *chainindex.Chain to the Validation interface,
// converting between chainindex.BlockIndex and the package's own
// interface-free BlockIndex copy.
type validationAdapter struct{ c *chainindex.Chain }

var errUnknownBlockIndex = errors.New("instantsend: cannot invalidate unknown block index")

func convertBI(bi *chainindex.BlockIndex) *BlockIndex {
	if bi == nil {
		return nil
	}
	return &BlockIndex{
		Hash:        bi.Hash,
		Height:      bi.Height,
		ChainLocked: bi.ChainLocked,
		Prev:        convertBI(bi.Prev),
	}
}

func (v *validationAdapter) Tip() *BlockIndex { return convertBI(v.c.Tip()) }

func (v *validationAdapter) AtHeight(height int32) (*BlockIndex, bool) {
	bi, ok := v.c.AtHeight(height)
	return convertBI(bi), ok
}

func (v *validationAdapter) LookupBlockIndex(hash chainhash.Hash) (*BlockIndex, bool) {
	bi, ok := v.c.LookupBlockIndex(hash)
	return convertBI(bi), ok
}

func (v *validationAdapter) InvalidateBlock(bi *BlockIndex) error {
	cbi, ok := v.c.LookupBlockIndex(bi.Hash)
	if !ok {
		return errUnknownBlockIndex
	}
	return v.c.InvalidateBlock(cbi)
}

func (v *validationAdapter) ActivateBestChain() error { return v.c.ActivateBestChain() }

func (v *validationAdapter) HasChainLock(height int32, hash chainhash.Hash) bool {
	return v.c.HasChainLock(height, hash)
}

func (v *validationAdapter) NotifyChainLock(bi *BlockIndex) {
	if cbi, ok := v.c.LookupBlockIndex(bi.Hash); ok {
		v.c.NotifyChainLock(cbi)
	}
}

// fakeRelayer records every lock handed to RelayISLock.
type fakeRelayer struct {
	relayed []*wire.InstantSendLock
}

func (f *fakeRelayer) RelayISLock(lock *wire.InstantSendLock, _ *wire.Tx) {
	f.relayed = append(f.relayed, lock)
}

// harness wires a Manager against real collaborators (a temp-dir isdb.Store,
// an in-memory txpool.Pool, chainindex.Chain/TxIndex, a signing.Service
// provisioned with a single-member quorum secret) the way cmd/dashd would,
// minus the P2P layer.
type harness struct {
	t         *testing.T
	db        *isdb.Store
	mempool   *txpool.Pool
	chain     *chainindex.Chain
	txIndex   *chainindex.TxIndex
	quorums   *llmq.Manager
	signingS  *signing.Service
	ban       *banscore.Tracker
	relay     *fakeRelayer
	mgr       *Manager
	quorum    *llmq.Quorum
	quorumKey *bls.SecretKey

	nextBlock int
}

func newHarness(t *testing.T, confirmationsRequired int32) *harness {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "is-test")
	store, err := isdb.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	mempool := txpool.New()
	chain := chainindex.NewChain(chainhash.HashH([]byte("genesis")))
	txIndex := chainindex.NewTxIndex()
	quorums := llmq.NewManager(24)
	signingS := signing.NewService(quorums, func() int32 { return chain.Tip().Height })
	ban := banscore.NewTracker()
	relay := &fakeRelayer{}

	sk, err := bls.KeyGen([]byte("instantsend-test-quorum-secret-0001"))
	require.NoError(t, err)
	quorum := &llmq.Quorum{
		LLMQType:     llmq.InstantSendType,
		QuorumHash:   chainhash.HashH([]byte("quorum-0")),
		Height:       0,
		ThresholdKey: sk.PublicKey(),
		Members:      []*bls.PublicKey{sk.PublicKey()},
	}
	quorums.RegisterQuorum(quorum)
	signingS.ProvisionQuorumSecret(quorum.QuorumHash, sk)

	h := &harness{
		t: t, db: store, mempool: mempool, chain: chain, txIndex: txIndex,
		quorums: quorums, signingS: signingS, ban: ban, relay: relay,
		quorum: quorum, quorumKey: sk,
	}

	cfg := Config{
		LLMQType:               llmq.InstantSendType,
		ConfirmationsRequired:  confirmationsRequired,
		KeepLockDepth:          6,
		ArchiveRetentionBlocks: 100,
		Flags: func() FeatureFlags {
			return FeatureFlags{InstantSendEnabled: true, MempoolSigningEnabled: true}
		},
		Synced:          func() bool { return true },
		IsValidatorNode: func() bool { return true },
		Quorums:         quorums,
		Signing:         signingS,
		DB:              store,
		Mempool:         &mempoolAdapter{mempool},
		TxIndex:         txIndex,
		Chain:           &validationAdapter{chain},
		BanScore:        ban,
		Relay:           relay,
	}
	h.mgr = New(cfg)
	return h
}

// mineConfirmedInput registers a minimal parent transaction as mined and
// advances the chain far enough that its single output clears
// confirmationsRequired.
func (h *harness) mineConfirmedInput(parentTxid chainhash.Hash, confirmationsRequired int32) {
	blockHash := h.nextBlockHash()
	bi, err := h.chain.Connect(blockHash)
	require.NoError(h.t, err)
	h.txIndex.IndexMinedTx(&wire.Tx{TxID: parentTxid}, bi.Hash)

	for d := int32(1); d < confirmationsRequired; d++ {
		_, err := h.chain.Connect(h.nextBlockHash())
		require.NoError(h.t, err)
	}
}

func (h *harness) nextBlockHash() chainhash.Hash {
	h.nextBlock++
	return chainhash.HashH([]byte{byte(h.nextBlock), byte(h.nextBlock >> 8), 'b'})
}

// signPeerLock builds and signs an ISLOCK exactly the way verifyPass's Pass
// A expects it (current quorum, signOffset 0), standing in for a peer that
// independently reconstructed the same threshold signature.
func (h *harness) signPeerLock(lock *wire.InstantSendLock) {
	id := lock.RequestID()
	signHash := llmq.BuildSignHash(h.quorum.LLMQType, h.quorum.QuorumHash, id, lock.TxID)
	sig := h.quorumKey.Sign(signHash[:])
	lock.Sig = sig.Bytes()
}

func outpointAt(seed string, index uint32) wire.OutPoint {
	hash := chainhash.HashH([]byte(seed))
	return *wire.NewOutPoint(&hash, index)
}

// TestProcessTxProducesAcceptedLock exercises the full Signing Driver ->
// Pending-Lock Verifier -> Conflict Resolver path for a single-input,
// self-signed transaction (spec.md §8 scenario 1): ProcessTx should drive
// AsyncSignIfMember to completion, the resulting nascent lock should
// self-verify and land in IS-DB, and the transaction's local holder should
// be notified exactly once.
func TestProcessTxProducesAcceptedLock(t *testing.T) {
	h := newHarness(t, 6)

	parentTxid := chainhash.HashH([]byte("parent"))
	h.mineConfirmedInput(parentTxid, 6)

	var notified *wire.InstantSendLock
	h.mgr.cfg.NotifyTransactionLock = func(tx *wire.Tx, lock *wire.InstantSendLock) {
		notified = lock
	}

	tx := &wire.Tx{
		TxID:    chainhash.HashH([]byte("child")),
		TxIn:    []wire.OutPoint{*wire.NewOutPoint(&parentTxid, 0)},
		Payload: true,
	}
	h.txIndex.IndexMempoolTx(tx)

	require.NoError(t, h.mgr.ProcessTx(tx, false))
	h.mgr.ProcessPendingInstantSendLocks()

	lock, ok := h.db.GetByTxid(tx.TxID)
	require.True(t, ok, "accepted lock must be persisted to IS-DB")
	require.Equal(t, tx.TxID, lock.TxID)

	require.NotNil(t, notified, "NotifyTransactionLock must fire for a locally-held tx")
	require.Equal(t, tx.TxID, notified.TxID)
	require.Len(t, h.relay.relayed, 1, "accepted lock must be relayed exactly once")
}

// TestReceiveInstantSendLockAcceptsValidPeerLock exercises
// ReceiveInstantSendLock -> ProcessPendingInstantSendLocks end to end for a
// lock the node never signed itself.
func TestReceiveInstantSendLockAcceptsValidPeerLock(t *testing.T) {
	h := newHarness(t, 6)

	parentTxid := chainhash.HashH([]byte("parent-peer"))
	h.mineConfirmedInput(parentTxid, 6)

	lock := wire.NewLegacyLock(
		chainhash.HashH([]byte("child-peer")),
		[]wire.OutPoint{*wire.NewOutPoint(&parentTxid, 0)},
	)
	h.signPeerLock(lock)

	h.mgr.ReceiveInstantSendLock(PeerID(7), lock)
	more := h.mgr.ProcessPendingInstantSendLocks()
	require.False(t, more)

	got, ok := h.db.KnownLock(lock.Hash())
	require.True(t, ok)
	require.Equal(t, lock.TxID, got.TxID)
	require.Equal(t, 0, h.ban.Score(7), "a valid lock must not accrue any misbehavior score")
}

// TestReceiveInstantSendLockPunishesDuplicateInput exercises spec.md §8
// scenario 5: a structurally malformed lock (duplicate input outpoints)
// must be rejected at preflight and its source scored 100.
func TestReceiveInstantSendLockPunishesDuplicateInput(t *testing.T) {
	h := newHarness(t, 6)

	dup := outpointAt("dup-input", 0)
	lock := &wire.InstantSendLock{
		Version: wire.LegacyLock,
		TxID:    chainhash.HashH([]byte("malformed-child")),
		Inputs:  []wire.OutPoint{dup, dup},
	}

	h.mgr.ReceiveInstantSendLock(PeerID(9), lock)
	more := h.mgr.ProcessPendingInstantSendLocks()
	require.False(t, more)

	_, ok := h.db.KnownLock(lock.Hash())
	require.False(t, ok, "malformed lock must never be persisted")

	total, banned := h.ban.Add(9, 0)
	require.Equal(t, banscore.Malformed, total)
	require.True(t, banned)
}

// TestProcessInstantSendLockResolvesMempoolConflict exercises spec.md §8
// scenario 2: once a lock for T1 is accepted, a previously-pooled
// conflicting spender T2 of the same input must be recursively removed
// from the mempool.
func TestProcessInstantSendLockResolvesMempoolConflict(t *testing.T) {
	h := newHarness(t, 6)

	parentTxid := chainhash.HashH([]byte("parent-conflict"))
	sharedInput := *wire.NewOutPoint(&parentTxid, 0)

	conflicting := &wire.Tx{TxID: chainhash.HashH([]byte("conflicting-spender")), TxIn: []wire.OutPoint{sharedInput}}
	h.mempool.AddTransaction(conflicting)
	_, pooled := h.mempool.Get(conflicting.Hash())
	require.True(t, pooled)

	winner := wire.NewLegacyLock(chainhash.HashH([]byte("winning-spender")), []wire.OutPoint{sharedInput})
	h.signPeerLock(winner)

	h.mgr.ProcessInstantSendLock(LocalSource, winner)

	_, stillPooled := h.mempool.Get(conflicting.Hash())
	require.False(t, stillPooled, "conflicting spender must be evicted from the mempool")

	lock, ok := h.db.KnownLock(winner.Hash())
	require.True(t, ok)
	require.Equal(t, winner.TxID, lock.TxID)
}

// TestHandleFullyConfirmedBlockArchivesAndPrunes exercises spec.md §8
// scenario 6: once a block deep enough to finalize a lock is notified, the
// lock is removed from the live index, and a later confirm runs the
// archive-aging sweep over it. The archive rows themselves are not
// exported by isdb.Store, so only the live-index removal is asserted here;
// isdb's own tests cover the archive rows.
func TestHandleFullyConfirmedBlockArchivesAndPrunes(t *testing.T) {
	h := newHarness(t, 6)

	lockedTxid := chainhash.HashH([]byte("confirmed-tx"))
	lock := wire.NewLegacyLock(lockedTxid, []wire.OutPoint{outpointAt("confirmed-input", 0)})
	require.NoError(t, h.db.WriteNewLock(lock))
	require.NoError(t, h.db.WriteMined(lock.Hash(), 10))

	bi := &BlockIndex{Hash: chainhash.HashH([]byte("confirm-block")), Height: 200}
	h.mgr.HandleFullyConfirmedBlock(bi)

	_, ok := h.db.KnownLock(lock.Hash())
	require.False(t, ok, "deeply-confirmed lock must leave the live index")

	// Archive retention is 100 blocks; the confirm at height 200 archived
	// the lock at height 200, and this confirm at 400 moves the archive
	// cutoff to 300, which ages that archive row out.
	laterBI := &BlockIndex{Hash: chainhash.HashH([]byte("confirm-block-2")), Height: 400}
	h.mgr.HandleFullyConfirmedBlock(laterBI)
}

// TestChainLockedConflictArchivesInsteadOfInvalidating exercises spec.md §8
// scenario 4: when the losing side of a block conflict is already
// chainlocked, the resolver must prune/archive the InstantSend side rather
// than invalidate a finalized block.
func TestChainLockedConflictArchivesInsteadOfInvalidating(t *testing.T) {
	h := newHarness(t, 6)

	parentTxid := chainhash.HashH([]byte("cl-parent"))
	sharedInput := *wire.NewOutPoint(&parentTxid, 0)

	minedTx := &wire.Tx{TxID: chainhash.HashH([]byte("mined-spender")), TxIn: []wire.OutPoint{sharedInput}}
	blockHash := h.nextBlockHash()
	bi, err := h.chain.Connect(blockHash)
	require.NoError(t, err)
	h.chain.NotifyChainLock(bi)

	h.mgr.mu.Lock()
	entry := h.mgr.nonLocked.add(minedTx)
	entry.minedIn = &BlockIndex{Hash: bi.Hash, Height: bi.Height}
	h.mgr.mu.Unlock()

	conflictingLock := wire.NewLegacyLock(chainhash.HashH([]byte("conflicting-lock-tx")), []wire.OutPoint{sharedInput})
	h.signPeerLock(conflictingLock)

	h.mgr.ProcessInstantSendLock(LocalSource, conflictingLock)

	// The conflicting side lost to the chainlock: IS-DB must have pruned
	// (and archived) it rather than leaving it live, and the chainlocked
	// block index must remain on the main chain.
	_, ok := h.db.KnownLock(conflictingLock.Hash())
	require.False(t, ok, "ISLOCK conflicting with a chainlocked block must be pruned")

	stillOnChain, ok := h.chain.LookupBlockIndex(bi.Hash)
	require.True(t, ok)
	require.Equal(t, bi.Height, stillOnChain.Height)
}
