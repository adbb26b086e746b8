package chainhash

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashStringRoundTrip(t *testing.T) {
	h := HashH([]byte("some transaction bytes"))
	s := h.String()

	back, err := NewHashFromStr(s)
	require.NoError(t, err)
	require.Equal(t, h, *back)
}

func TestNewHashFromStrRejectsBadLength(t *testing.T) {
	_, err := NewHashFromStr("deadbeef")
	require.ErrorIs(t, err, ErrHashStrSize)
}

func TestRequestIDsAreDomainSeparated(t *testing.T) {
	same := []byte{1, 2, 3}
	inlock := InputLockRequestID(same)
	islock := ISLockRequestID(same)
	require.NotEqual(t, inlock, islock, "domain tags must separate the two id spaces")
}

func TestISLockRequestIDStableUnderReencoding(t *testing.T) {
	a := ISLockRequestID([]byte{0xaa, 0xbb})
	b := ISLockRequestID([]byte{0xaa, 0xbb})
	require.Equal(t, a, b)
}

func TestZeroHash(t *testing.T) {
	var h Hash
	require.True(t, h.IsZero())

	h = HashH([]byte("x"))
	require.False(t, h.IsZero())
}
