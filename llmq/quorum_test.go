package llmq

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/PastaPastaPasta/dash/chainhash"
	"github.com/PastaPastaPasta/dash/internal/bls"
)

func newTestQuorum(t *testing.T, height int32, seed byte) *Quorum {
	sk, err := bls.KeyGen(append(make([]byte, 31), seed))
	require.NoError(t, err)
	return &Quorum{
		LLMQType:     InstantSendType,
		QuorumHash:   chainhash.HashH([]byte{seed}),
		Height:       height,
		ThresholdKey: sk.PublicKey(),
	}
}

func TestSelectQuorumForSigningCurrentAndPrevious(t *testing.T) {
	m := NewManager(24)
	current := newTestQuorum(t, 480, 1)
	previous := newTestQuorum(t, 456, 2)
	m.RegisterQuorum(current)
	m.RegisterQuorum(previous)

	got, ok := m.SelectQuorumForSigning(InstantSendType, 490, 0)
	require.True(t, ok)
	require.Equal(t, current.Height, got.Height)

	got, ok = m.SelectQuorumForSigning(InstantSendType, 490, 24)
	require.True(t, ok)
	require.Equal(t, previous.Height, got.Height)
}

func TestSelectQuorumForSigningUnknown(t *testing.T) {
	m := NewManager(24)
	_, ok := m.SelectQuorumForSigning(InstantSendType, 490, 0)
	require.False(t, ok)
}

func TestCycleHeightRoundsDown(t *testing.T) {
	m := NewManager(24)
	require.Equal(t, int32(480), m.CycleHeight(493))
	require.Equal(t, int32(480), m.CycleHeight(480))
}

func TestBuildSignHashDeterministic(t *testing.T) {
	a := BuildSignHash(InstantSendType, chainhash.HashH([]byte("q")), chainhash.HashH([]byte("id")), chainhash.HashH([]byte("msg")))
	b := BuildSignHash(InstantSendType, chainhash.HashH([]byte("q")), chainhash.HashH([]byte("id")), chainhash.HashH([]byte("msg")))
	require.Equal(t, a, b)

	c := BuildSignHash(NoneType, chainhash.HashH([]byte("q")), chainhash.HashH([]byte("id")), chainhash.HashH([]byte("msg")))
	require.NotEqual(t, a, c, "llmqType must be domain-separated")
}
