// Package chainindex provides minimal, concrete stand-ins for three of
// spec.md §6's external collaborators: Validation (InvalidateBlock,
// ActivateBestChain, LookupBlockIndex, chain tip access), the ChainLocks
// Service (HasChainLock, NotifyChainLock), and the Transaction Index
// (GetTransaction). None of these perform real PoW validation or gossip;
// they exist so the Conflict Resolver's block-invalidation and
// ChainLock-aware pruning paths (spec.md §4.4 steps 3 and 9) are
// exercisable end-to-end, per spec.md §8's scenario table (#3, #4, #6).
//
// Grounded on btcsuite-btcd/blockchain/indexers/manager.go's block-index
// tip tracking idiom and original_source/src/llmq/blockprocessor.cpp.
package chainindex

import (
	"errors"
	"sync"

	"github.com/PastaPastaPasta/dash/chainhash"
	"github.com/PastaPastaPasta/dash/wire"
)

// BlockIndex is a single entry on the main chain.
type BlockIndex struct {
	Hash        chainhash.Hash
	Height      int32
	Prev        *BlockIndex
	ChainLocked bool
}

// ErrAlreadyTip describes a block that doesn't extend the current tip.
// Connect places every new block on top of the current tip and does not
// return it.
var ErrAlreadyTip = errors.New("chainindex: block does not extend current tip")

// Chain is a minimal, single-branch main-chain tracker: there is no fork
// choice rule here because spec.md's scope for this module ends at
// "invoke InvalidateBlock/ActivateBestChain", not at implementing PoW
// chain selection.
type Chain struct {
	mu sync.RWMutex

	tip      *BlockIndex
	byHash   map[chainhash.Hash]*BlockIndex
	byHeight map[int32]*BlockIndex
}

// NewChain returns a Chain seeded with a genesis entry at height 0.
func NewChain(genesisHash chainhash.Hash) *Chain {
	genesis := &BlockIndex{Hash: genesisHash, Height: 0}
	return &Chain{
		tip:      genesis,
		byHash:   map[chainhash.Hash]*BlockIndex{genesisHash: genesis},
		byHeight: map[int32]*BlockIndex{0: genesis},
	}
}

// Tip returns the current best-chain block index.
func (c *Chain) Tip() *BlockIndex {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tip
}

// LookupBlockIndex returns the block index for hash, if known (it need not
// be on the main chain).
func (c *Chain) LookupBlockIndex(hash chainhash.Hash) (*BlockIndex, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	bi, ok := c.byHash[hash]
	return bi, ok
}

// AtHeight returns the main-chain block index at height, if any.
func (c *Chain) AtHeight(height int32) (*BlockIndex, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	bi, ok := c.byHeight[height]
	return bi, ok
}

// Connect extends the main chain with a new block on top of the current
// tip.
func (c *Chain) Connect(hash chainhash.Hash) (*BlockIndex, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	bi := &BlockIndex{Hash: hash, Height: c.tip.Height + 1, Prev: c.tip}
	c.tip = bi
	c.byHash[hash] = bi
	c.byHeight[bi.Height] = bi
	return bi, nil
}

// InvalidateBlock marks bi and everything built on top of it as invalid,
// rolling the main-chain tip back to bi's parent (spec.md §4.4 step 9: "for
// each distinct conflicting block, invoke InvalidateBlock(pindex)"). A
// failure here is fatal per spec.md §7 — the returned error, if non-nil,
// must bubble up to a process-aborting caller, never be swallowed.
func (c *Chain) InvalidateBlock(bi *BlockIndex) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.byHash[bi.Hash]; !ok {
		return errors.New("chainindex: cannot invalidate unknown block")
	}

	for h := c.tip; h != nil && h.Height >= bi.Height; h = h.Prev {
		delete(c.byHash, h.Hash)
		delete(c.byHeight, h.Height)
	}
	c.tip = bi.Prev
	return nil
}

// ActivateBestChain recomputes the best-chain pointer. With a single
// branch tracked, this is a no-op beyond returning nil; real chain
// selection across competing branches is out of this module's scope.
func (c *Chain) ActivateBestChain() error {
	return nil
}

// NotifyChainLock marks bi, and every ancestor up to the prior chainlock,
// as finalized by a ChainLock.
func (c *Chain) NotifyChainLock(bi *BlockIndex) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for h := bi; h != nil && !h.ChainLocked; h = h.Prev {
		h.ChainLocked = true
	}
}

// HasChainLock reports whether the main-chain block at height with the
// given hash is chainlocked.
func (c *Chain) HasChainLock(height int32, hash chainhash.Hash) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	bi, ok := c.byHeight[height]
	return ok && bi.Hash == hash && bi.ChainLocked
}

// txEntry pairs a transaction with the block it was mined in.
type txEntry struct {
	tx        *wire.Tx
	blockHash chainhash.Hash
	mined     bool
}

// TxIndex is the minimal Transaction Index collaborator from spec.md §6:
// GetTransaction(txid) -> (tx, blockHash).
type TxIndex struct {
	mu      sync.RWMutex
	entries map[chainhash.Hash]txEntry
}

// NewTxIndex returns an empty TxIndex.
func NewTxIndex() *TxIndex {
	return &TxIndex{entries: make(map[chainhash.Hash]txEntry)}
}

// IndexMempoolTx records a transaction that is known but not yet mined.
func (idx *TxIndex) IndexMempoolTx(tx *wire.Tx) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.entries[tx.Hash()] = txEntry{tx: tx}
}

// IndexMinedTx records a transaction as mined in blockHash.
func (idx *TxIndex) IndexMinedTx(tx *wire.Tx, blockHash chainhash.Hash) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.entries[tx.Hash()] = txEntry{tx: tx, blockHash: blockHash, mined: true}
}

// GetTransaction returns the transaction and, if mined, the block hash it
// was confirmed in.
func (idx *TxIndex) GetTransaction(txid chainhash.Hash) (*wire.Tx, chainhash.Hash, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	e, ok := idx.entries[txid]
	if !ok {
		return nil, chainhash.Hash{}, false
	}
	return e.tx, e.blockHash, e.mined
}
