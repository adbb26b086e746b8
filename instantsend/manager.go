package instantsend

import (
	"fmt"
	"sync"
	"time"

	"github.com/btcsuite/btclog"
	"github.com/decred/dcrd/lru"

	"github.com/PastaPastaPasta/dash/chainhash"
	"github.com/PastaPastaPasta/dash/internal/bls"
	"github.com/PastaPastaPasta/dash/internal/log"
	"github.com/PastaPastaPasta/dash/llmq"
	"github.com/PastaPastaPasta/dash/signing"
	"github.com/PastaPastaPasta/dash/wire"
)

// dupWarnCacheSize bounds the duplicate-lock warning dedup cache (resolver.go
// step 4): a peer resending the same conflicting ISLOCK must not be able to
// grow the set of remembered hashes without bound.
const dupWarnCacheSize = 4096

// drainSize bounds how many pending locks a single verifier iteration
// processes (spec.md §4.3).
const drainSize = 32

// idleWait is how long the worker loop sleeps when a pass produced no
// work, unless interrupted sooner (spec.md §4.5).
const idleWait = 100 * time.Millisecond

var mgrLog = log.SubsystemLogger("INSTANTSEND")

// UseLogger sets the package-wide logger used by instantsend, mirroring
// the per-package UseLogger convention btcsuite-btcd's subsystems follow
// (e.g. blockchain.UseLogger, mempool.UseLogger) so cmd/dashd can wire
// this package into its --debuglevel handling the same way it wires any
// other subsystem.
func UseLogger(logger btclog.Logger) {
	mgrLog = logger
}

// Manager is the InstantSend subsystem: signing driver, pending-lock
// verifier, conflict resolver, and retry/GC loop, all guarded by a single
// in-memory lock (mu) that is never held across a call into the Signing
// Service or a BLS operation, per spec.md §5.
type Manager struct {
	cfg Config

	mu              sync.Mutex
	nonLocked       *nonLockedBook
	txs             map[chainhash.Hash]*wire.Tx
	inputRequestIDs map[chainhash.Hash]map[chainhash.Hash]struct{} // txid -> set of per-input ids
	requestIDToTxid map[chainhash.Hash]chainhash.Hash              // per-input id -> txid
	creatingLocks   map[chainhash.Hash]*wire.InstantSendLock        // aggregate id -> nascent lock
	txToCreating    map[chainhash.Hash]*wire.InstantSendLock        // txid -> nascent lock
	pendingOrder    []chainhash.Hash
	pending         map[chainhash.Hash]*pendingEntry
	retryQueue      []chainhash.Hash
	dupWarned       lru.Cache // recently-warned-about duplicate lock hashes

	bestConfirmedHeight int32

	unregisterListener func()

	quit     chan struct{}
	wg       sync.WaitGroup
	started  bool
	startMtx sync.Mutex
}

// New constructs a Manager. Call Start to launch its worker thread.
func New(cfg Config) *Manager {
	m := &Manager{
		cfg:             cfg,
		nonLocked:       newNonLockedBook(),
		txs:             make(map[chainhash.Hash]*wire.Tx),
		inputRequestIDs: make(map[chainhash.Hash]map[chainhash.Hash]struct{}),
		requestIDToTxid: make(map[chainhash.Hash]chainhash.Hash),
		creatingLocks:   make(map[chainhash.Hash]*wire.InstantSendLock),
		txToCreating:    make(map[chainhash.Hash]*wire.InstantSendLock),
		pending:         make(map[chainhash.Hash]*pendingEntry),
		dupWarned:       lru.NewCache(dupWarnCacheSize),
	}
	m.unregisterListener = cfg.Signing.RegisterListener(signing.ListenerFunc(m.OnRecoveredSig))
	return m
}

// Start launches the worker thread. Calling Start on an already-started
// Manager has no effect, matching btcsuite-btcd/mining/cpuminer.CPUMiner's
// Start/Stop idiom.
func (m *Manager) Start() {
	m.startMtx.Lock()
	defer m.startMtx.Unlock()
	if m.started {
		return
	}
	m.quit = make(chan struct{})
	m.wg.Add(1)
	go m.workerLoop()
	m.started = true
	mgrLog.Info("InstantSend manager started")
}

// Stop signals the worker thread to exit and waits for it to do so. Any
// in-flight BLS batch completes before the loop exits (spec.md §5's
// "long BLS batches complete before exit").
func (m *Manager) Stop() {
	m.startMtx.Lock()
	defer m.startMtx.Unlock()
	if !m.started {
		return
	}
	close(m.quit)
	m.wg.Wait()
	m.started = false
	mgrLog.Info("InstantSend manager stopped")
	m.unregisterListener()
}

func (m *Manager) workerLoop() {
	defer m.wg.Done()
	timer := time.NewTimer(idleWait)
	defer timer.Stop()

	for {
		moreWork := m.ProcessPendingInstantSendLocks()
		m.ProcessPendingRetryLockTxs()

		if moreWork {
			select {
			case <-m.quit:
				return
			default:
				continue
			}
		}

		timer.Reset(idleWait)
		select {
		case <-m.quit:
			return
		case <-timer.C:
		}
	}
}

// checkPreconditions implements spec.md §4.2's six preconditions for
// signing a transaction.
func (m *Manager) checkPreconditions(tx *wire.Tx, retroactive bool) error {
	if !m.cfg.IsValidatorNode() || !m.cfg.Synced() {
		return ErrNotReady
	}
	flags := m.cfg.Flags()
	if m.cfg.LLMQType == llmq.NoneType || !flags.InstantSendEnabled {
		return ErrInstantSendDisabled
	}
	if len(tx.Inputs()) == 0 {
		return ErrNoInputs
	}
	if !flags.MempoolSigningEnabled && !retroactive {
		return ErrMempoolSigningDisabled
	}
	for _, in := range tx.Inputs() {
		if err := m.checkInputReady(in); err != nil {
			return err
		}
		if existing, ok := m.cfg.DB.GetByOutpoint(in); ok && existing.TxID != tx.Hash() {
			return ErrConflictingLock
		}
	}
	return nil
}

func (m *Manager) checkInputReady(o wire.OutPoint) error {
	if _, ok := m.cfg.DB.GetByTxid(o.Hash); ok {
		return nil
	}
	_, blockHash, mined := m.cfg.TxIndex.GetTransaction(o.Hash)
	if !mined {
		return ErrInputNotConfirmed
	}
	bi, ok := m.cfg.Chain.LookupBlockIndex(blockHash)
	if !ok {
		return ErrInputNotConfirmed
	}
	if m.cfg.Chain.HasChainLock(bi.Height, bi.Hash) {
		return nil
	}
	tip := m.cfg.Chain.Tip()
	depth := tip.Height - bi.Height + 1
	if depth >= m.cfg.ConfirmationsRequired {
		return nil
	}
	return ErrInputNotConfirmed
}

// ProcessTx is the Signing Driver's entry point (spec.md §4.2).
func (m *Manager) ProcessTx(tx *wire.Tx, retroactive bool) error {
	if err := m.checkPreconditions(tx, retroactive); err != nil {
		return err
	}

	ids := make([]chainhash.Hash, len(tx.Inputs()))
	for i, in := range tx.Inputs() {
		ids[i] = chainhash.InputLockRequestID(in.Bytes())
	}

	for i, in := range tx.Inputs() {
		id := ids[i]
		if votedTxid, ok := m.cfg.Signing.GetVoteForId(m.cfg.LLMQType, id); ok && votedTxid != tx.Hash() {
			return fmt.Errorf("%w: input %s", ErrConflictingVote, in)
		}
		if m.cfg.Signing.IsConflicting(m.cfg.LLMQType, id, tx.Hash()) {
			return fmt.Errorf("%w: input %s", ErrConflictingVote, in)
		}
	}

	m.mu.Lock()
	m.txs[tx.Hash()] = tx
	set := m.inputRequestIDs[tx.Hash()]
	if set == nil {
		set = make(map[chainhash.Hash]struct{}, len(ids))
		m.inputRequestIDs[tx.Hash()] = set
	}
	for _, id := range ids {
		set[id] = struct{}{}
		m.requestIDToTxid[id] = tx.Hash()
	}
	m.mu.Unlock()

	// AsyncSignIfMember may invoke OnRecoveredSig synchronously; mu must
	// not be held here (spec.md §5).
	for _, id := range ids {
		m.cfg.Signing.AsyncSignIfMember(m.cfg.LLMQType, id, tx.Hash())
	}

	// "If all id_i were already voted for this exact txid, the driver
	// still proceeds to attempt the aggregated-lock step" (spec.md §4.2).
	m.tryBuildAggregateLock(tx)
	return nil
}

// TransactionAddedToMempool is the mempool-acceptance entry point.
func (m *Manager) TransactionAddedToMempool(tx *wire.Tx) {
	m.mu.Lock()
	m.nonLocked.add(tx)
	m.mu.Unlock()

	if !m.cfg.Flags().MempoolSigningEnabled {
		return
	}
	if err := m.ProcessTx(tx, false); err != nil {
		mgrLog.Debugf("ProcessTx(%s) skipped: %v", tx.Hash(), err)
	}
}

// BlockConnected retroactively signs mined transactions and updates the
// non-locked bookkeeping so GC can later find them via HandleFullyConfirmedBlock.
func (m *Manager) BlockConnected(bi *BlockIndex, minedTxs []*wire.Tx) {
	for _, tx := range minedTxs {
		m.mu.Lock()
		entry := m.nonLocked.add(tx)
		entry.minedIn = bi
		m.mu.Unlock()

		if err := m.ProcessTx(tx, true); err != nil {
			mgrLog.Debugf("retroactive ProcessTx(%s) skipped: %v", tx.Hash(), err)
		}
	}
}

func (m *Manager) buildNascentLock(tx *wire.Tx) *wire.InstantSendLock {
	inputs := append([]wire.OutPoint(nil), tx.Inputs()...)
	if !m.cfg.Flags().DIP0020Active {
		return wire.NewLegacyLock(tx.Hash(), inputs)
	}

	tip := m.cfg.Chain.Tip()
	cycleHeight := m.cfg.Quorums.CycleHeight(tip.Height)
	var cycleHash chainhash.Hash
	if cycleBI, ok := m.cfg.Chain.AtHeight(cycleHeight); ok {
		cycleHash = cycleBI.Hash
	}
	return wire.NewDeterministicLock(tx.Hash(), inputs, cycleHash)
}

// tryBuildAggregateLock attempts the aggregated-lock step of spec.md
// §4.2: once every per-input recovered signature for tx exists, it
// constructs the nascent lock and requests its own threshold signature.
func (m *Manager) tryBuildAggregateLock(tx *wire.Tx) {
	m.mu.Lock()
	ids, ok := m.inputRequestIDs[tx.Hash()]
	if !ok {
		m.mu.Unlock()
		return
	}
	if _, already := m.txToCreating[tx.Hash()]; already {
		m.mu.Unlock()
		return
	}
	idList := make([]chainhash.Hash, 0, len(ids))
	for id := range ids {
		idList = append(idList, id)
	}
	m.mu.Unlock()

	for _, id := range idList {
		if !m.cfg.Signing.HasRecoveredSigForId(m.cfg.LLMQType, id) {
			return
		}
	}

	m.mu.Lock()
	if _, already := m.txToCreating[tx.Hash()]; already {
		m.mu.Unlock()
		return
	}
	lock := m.buildNascentLock(tx)
	id := lock.RequestID()
	m.creatingLocks[id] = lock
	m.txToCreating[tx.Hash()] = lock
	m.mu.Unlock()

	m.cfg.Signing.AsyncSignIfMember(m.cfg.LLMQType, id, tx.Hash())
}

// OnRecoveredSig is the signing.Listener callback: it fires for both
// per-input votes and the aggregated lock's own recovered signature.
func (m *Manager) OnRecoveredSig(rs *signing.RecoveredSig) {
	if rs.LLMQType != m.cfg.LLMQType {
		return
	}

	m.mu.Lock()
	txid, isInputSig := m.requestIDToTxid[rs.ID]
	lock, isAggregateSig := m.creatingLocks[rs.ID]
	var tx *wire.Tx
	if isInputSig {
		tx = m.txs[txid]
		if tx == nil {
			if entry, ok := m.nonLocked.get(txid); ok {
				tx = entry.tx
			}
		}
	}
	m.mu.Unlock()

	if isInputSig && tx != nil {
		m.tryBuildAggregateLock(tx)
		return
	}

	if isAggregateSig {
		lock.Sig = rs.Sig
		m.mu.Lock()
		delete(m.creatingLocks, rs.ID)
		delete(m.txToCreating, lock.TxID)
		m.mu.Unlock()
		m.enqueuePendingLock(LocalSource, lock)
	}
}

// verifySignatureBytes adapts a wire-level fixed-size signature into the
// internal/bls type used by Verify.
func verifySignatureBytes(pk *bls.PublicKey, msg []byte, sigBytes [wire.SignatureSize]byte) bool {
	sig, err := bls.SignatureFromBytes(sigBytes[:])
	if err != nil {
		return false
	}
	return bls.Verify(pk, msg, sig)
}
