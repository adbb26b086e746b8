package txpool

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/PastaPastaPasta/dash/chainhash"
	"github.com/PastaPastaPasta/dash/wire"
)

func op(seed byte) wire.OutPoint {
	var h chainhash.Hash
	h[0] = seed
	return wire.OutPoint{Hash: h, Index: 0}
}

func TestAddAndGet(t *testing.T) {
	p := New()
	tx := &wire.Tx{TxID: chainhash.HashH([]byte("tx1")), TxIn: []wire.OutPoint{op(1)}}
	p.AddTransaction(tx)

	got, ok := p.Get(tx.Hash())
	require.True(t, ok)
	require.Equal(t, tx, got)

	spender, ok := p.SpenderOf(op(1))
	require.True(t, ok)
	require.Equal(t, tx.Hash(), spender.Hash())
}

func TestRemoveRecursiveCascades(t *testing.T) {
	p := New()
	parent := &wire.Tx{TxID: chainhash.HashH([]byte("parent")), TxIn: []wire.OutPoint{op(1)}}
	p.AddTransaction(parent)

	childOutpoint := wire.OutPoint{Hash: parent.Hash(), Index: 0}
	child := &wire.Tx{TxID: chainhash.HashH([]byte("child")), TxIn: []wire.OutPoint{childOutpoint}}
	p.AddTransaction(child)

	p.RemoveRecursive(parent, ReasonConflict)

	_, ok := p.Get(parent.Hash())
	require.False(t, ok)
	_, ok = p.Get(child.Hash())
	require.False(t, ok, "child spending parent's output must cascade-remove")
}

func TestUpdatedCounterIncrementsOnRemoval(t *testing.T) {
	p := New()
	tx := &wire.Tx{TxID: chainhash.HashH([]byte("tx")), TxIn: []wire.OutPoint{op(9)}}
	p.AddTransaction(tx)
	before := p.LastUpdated()

	p.RemoveRecursive(tx, ReasonMined)
	require.Greater(t, p.LastUpdated(), before)
}
