package wire

import "github.com/PastaPastaPasta/dash/chainhash"

// Tx is the minimal transaction view the InstantSend subsystem needs: its
// own id and the outpoints it spends. Script and output data are irrelevant
// to locking and are intentionally omitted — transaction validation lives
// outside this module's scope (spec.md §1).
type Tx struct {
	TxID    chainhash.Hash
	TxIn    []OutPoint
	Payload bool // true once the full transaction body is locally known
}

// Hash returns the transaction's id.
func (t *Tx) Hash() chainhash.Hash { return t.TxID }

// Inputs returns the outpoints this transaction spends, in order.
func (t *Tx) Inputs() []OutPoint { return t.TxIn }
