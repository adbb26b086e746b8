package bls

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func fixedIKM(seed byte) []byte {
	ikm := make([]byte, 32)
	for i := range ikm {
		ikm[i] = seed
	}
	return ikm
}

func TestSignVerifyRoundTrip(t *testing.T) {
	sk, err := KeyGen(fixedIKM(1))
	require.NoError(t, err)

	msg := []byte("islock request id")
	sig := sk.Sign(msg)

	require.True(t, Verify(sk.PublicKey(), msg, sig))
}

func TestVerifyRejectsWrongMessage(t *testing.T) {
	sk, err := KeyGen(fixedIKM(2))
	require.NoError(t, err)

	sig := sk.Sign([]byte("a"))
	require.False(t, Verify(sk.PublicKey(), []byte("b"), sig))
}

func TestAggregateVerifyAcrossDistinctMessages(t *testing.T) {
	sk1, _ := KeyGen(fixedIKM(3))
	sk2, _ := KeyGen(fixedIKM(4))

	msg1 := []byte("signHash-for-quorum-A")
	msg2 := []byte("signHash-for-quorum-B")

	sig1 := sk1.Sign(msg1)
	sig2 := sk2.Sign(msg2)

	ok, err := AggregateVerify(
		[]*PublicKey{sk1.PublicKey(), sk2.PublicKey()},
		[][]byte{msg1, msg2},
		[]*Signature{sig1, sig2},
	)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestAggregateVerifyRejectsLengthMismatch(t *testing.T) {
	sk, _ := KeyGen(fixedIKM(5))
	_, err := AggregateVerify(
		[]*PublicKey{sk.PublicKey()},
		[][]byte{},
		[]*Signature{},
	)
	require.ErrorIs(t, err, ErrMismatchedLength)
}

func TestPublicKeyBytesRoundTrip(t *testing.T) {
	sk, _ := KeyGen(fixedIKM(6))
	pk := sk.PublicKey()
	b := pk.Bytes()

	back, err := PublicKeyFromBytes(b[:])
	require.NoError(t, err)
	backBytes := back.Bytes()
	require.True(t, bytes.Equal(b[:], backBytes[:]))
}
