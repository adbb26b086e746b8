package wire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/PastaPastaPasta/dash/chainhash"
)

func sampleOutPoint(seed byte) OutPoint {
	var h chainhash.Hash
	h[0] = seed
	return OutPoint{Hash: h, Index: uint32(seed)}
}

func TestLegacyLockRoundTrip(t *testing.T) {
	txid := chainhash.HashH([]byte("tx"))
	l := NewLegacyLock(txid, []OutPoint{sampleOutPoint(1), sampleOutPoint(2)})
	l.Sig[0] = 0xAB

	var buf bytes.Buffer
	require.NoError(t, l.Encode(&buf))

	got, err := DecodeISLock(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	require.Equal(t, l.TxID, got.TxID)
	require.Equal(t, l.Inputs, got.Inputs)
	require.Equal(t, l.Sig, got.Sig)
	require.Equal(t, l.Bytes(), got.Bytes(), "round trip must be byte-for-byte identical")
}

func TestDeterministicLockRoundTrip(t *testing.T) {
	txid := chainhash.HashH([]byte("tx"))
	cycle := chainhash.HashH([]byte("cycle"))
	l := NewDeterministicLock(txid, []OutPoint{sampleOutPoint(3)}, cycle)

	var buf bytes.Buffer
	require.NoError(t, l.Encode(&buf))

	got, err := DecodeISDLock(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	require.Equal(t, l.CycleHash, got.CycleHash)
	require.Equal(t, InvISDLock, got.InvKind())
}

func TestValidateRejectsEmptyTxid(t *testing.T) {
	l := NewLegacyLock(chainhash.Hash{}, []OutPoint{sampleOutPoint(1)})
	require.ErrorIs(t, l.Validate(), ErrEmptyTxid)
}

func TestValidateRejectsNoInputs(t *testing.T) {
	l := NewLegacyLock(chainhash.HashH([]byte("tx")), nil)
	require.ErrorIs(t, l.Validate(), ErrNoInputs)
}

func TestValidateRejectsDuplicateInputs(t *testing.T) {
	op := sampleOutPoint(1)
	l := NewLegacyLock(chainhash.HashH([]byte("tx")), []OutPoint{op, op})
	require.ErrorIs(t, l.Validate(), ErrDuplicateInput)
}

func TestRequestIDStableAcrossReencode(t *testing.T) {
	txid := chainhash.HashH([]byte("tx"))
	inputs := []OutPoint{sampleOutPoint(1), sampleOutPoint(2)}
	l1 := NewLegacyLock(txid, inputs)
	l2 := NewLegacyLock(chainhash.HashH([]byte("different-tx")), inputs)

	require.Equal(t, l1.RequestID(), l2.RequestID(),
		"request id depends only on ordered inputs, not on txid")

	var buf bytes.Buffer
	require.NoError(t, l1.Encode(&buf))
	decoded, err := DecodeISLock(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	require.Equal(t, l1.RequestID(), decoded.RequestID(),
		"request id survives an encode/decode round trip")
}
