package instantsend

import (
	"github.com/PastaPastaPasta/dash/chainhash"
	"github.com/PastaPastaPasta/dash/wire"
)

// nonLockedTx tracks a transaction the manager knows about but has not
// yet produced (or received) an ISLOCK for. Per spec.md §9's design
// note, parent/child back-references are value keys (txids), never
// pointers — a child only ever needs its parent's txid to find it again
// through the nonLockedTxs map, and removal walks the parent's children
// set by value rather than following a pointer that might dangle.
type nonLockedTx struct {
	tx           *wire.Tx
	minedIn      *BlockIndex // nil while still only in mempool
	children     map[chainhash.Hash]struct{}
	retrying     bool
	txToCreating bool // not set by any code path; outstanding aggregated-lock requests are tracked in Manager.txToCreating
}

// nonLockedBook owns nonLockedTxs and nonLockedTxsByOutpoints together,
// since every mutation of one typically implies a matching mutation of
// the other.
type nonLockedBook struct {
	byTxid     map[chainhash.Hash]*nonLockedTx
	byOutpoint map[wire.OutPoint]chainhash.Hash // outpoint -> spending txid
}

func newNonLockedBook() *nonLockedBook {
	return &nonLockedBook{
		byTxid:     make(map[chainhash.Hash]*nonLockedTx),
		byOutpoint: make(map[wire.OutPoint]chainhash.Hash),
	}
}

// add registers tx as not-yet-locked and wires it into its parents'
// children sets, creating a placeholder entry (tx == nil) for any parent
// not already tracked — mirroring AddNonLockedTx's
// `nonLockedTxs[in.prevout.hash].children.emplace(...)`
// (original_source/src/llmq/quorums_instantsend.cpp:1175-1187), which
// default-constructs the parent's map entry unconditionally. Without
// this, a descendant waiting on an ancestor whose own tx was never
// locally tracked (the ancestor's ISLOCK arrived without the tx itself)
// would never be linked as that ancestor's child, and so would never be
// queued for retry once the ancestor's lock lands.
func (b *nonLockedBook) add(tx *wire.Tx) *nonLockedTx {
	entry, ok := b.byTxid[tx.Hash()]
	switch {
	case ok && entry.tx != nil:
		return entry
	case ok:
		entry.tx = tx
	default:
		entry = &nonLockedTx{tx: tx, children: make(map[chainhash.Hash]struct{})}
		b.byTxid[tx.Hash()] = entry
	}

	for _, in := range tx.Inputs() {
		b.byOutpoint[in] = tx.Hash()
		parent, ok := b.byTxid[in.Hash]
		if !ok {
			parent = &nonLockedTx{children: make(map[chainhash.Hash]struct{})}
			b.byTxid[in.Hash] = parent
		}
		parent.children[tx.Hash()] = struct{}{}
	}
	return entry
}

func (b *nonLockedBook) get(txid chainhash.Hash) (*nonLockedTx, bool) {
	e, ok := b.byTxid[txid]
	return e, ok
}

// remove deletes txid from the book, unlinking it from any tracked
// parent's children set and garbage-collecting any parent placeholder
// left with nothing in it, and returns its children's txids so the
// caller can queue them for retry (spec.md §4.4 step 6). txid itself may
// be a placeholder (entry.tx == nil) — an ISLOCK can be accepted for a
// txid this node only ever saw as someone else's parent reference.
func (b *nonLockedBook) remove(txid chainhash.Hash) []chainhash.Hash {
	entry, ok := b.byTxid[txid]
	if !ok {
		return nil
	}
	delete(b.byTxid, txid)

	if entry.tx != nil {
		for _, in := range entry.tx.Inputs() {
			if spender, ok := b.byOutpoint[in]; ok && spender == txid {
				delete(b.byOutpoint, in)
			}
			if parent, ok := b.byTxid[in.Hash]; ok {
				delete(parent.children, txid)
				// Matches RemoveNonLockedTx's
				// `if (!jt->second.tx && jt->second.children.empty()) nonLockedTxs.erase(jt)`
				// (quorums_instantsend.cpp:1216-1220): a parent kept only
				// as a placeholder is dropped once nothing references it.
				if parent.tx == nil && len(parent.children) == 0 {
					delete(b.byTxid, in.Hash)
				}
			}
		}
	}

	children := make([]chainhash.Hash, 0, len(entry.children))
	for child := range entry.children {
		children = append(children, child)
	}
	return children
}

// spenderOf returns the txid of the tracked tx that spends o, if any.
func (b *nonLockedBook) spenderOf(o wire.OutPoint) (chainhash.Hash, bool) {
	txid, ok := b.byOutpoint[o]
	return txid, ok
}

// conflictsWith returns every tracked (txid, minedIn) pair whose inputs
// intersect lock's inputs under a different txid — the candidate set for
// spec.md §4.4 step 9's block-conflict resolution.
func (b *nonLockedBook) conflictsWith(lock *wire.InstantSendLock) []*nonLockedTx {
	seen := make(map[chainhash.Hash]struct{})
	var out []*nonLockedTx
	for _, in := range lock.Inputs {
		txid, ok := b.byOutpoint[in]
		if !ok || txid == lock.TxID {
			continue
		}
		if _, dup := seen[txid]; dup {
			continue
		}
		seen[txid] = struct{}{}
		if entry, ok := b.byTxid[txid]; ok {
			out = append(out, entry)
		}
	}
	return out
}
