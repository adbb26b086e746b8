// Package chainhash provides the fixed-size hash type used throughout the
// InstantSend subsystem, plus the domain-tagged request-id hashes that the
// signing driver and the pending-lock verifier key their in-flight work by.
package chainhash

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

// HashSize is the number of bytes in a Hash.
const HashSize = 32

// ErrHashStrSize describes an error when a string is not the expected size.
var ErrHashStrSize = errors.New("chainhash: wrong hex string length")

// Hash is a 32-byte double-SHA256 style digest. The zero value represents
// the absence of a hash and must never be accepted as a valid txid or
// lock-hash.
type Hash [HashSize]byte

// String returns the hash as a hex string in reversed (big-endian display)
// byte order, matching the convention used throughout the Bitcoin/Dash wire
// protocol for human-readable hashes.
func (h Hash) String() string {
	var reversed Hash
	for i, b := range h {
		reversed[HashSize-1-i] = b
	}
	return hex.EncodeToString(reversed[:])
}

// IsZero reports whether the hash is the all-zero value.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// CloneBytes returns a newly allocated copy of the hash's bytes.
func (h Hash) CloneBytes() []byte {
	out := make([]byte, HashSize)
	copy(out, h[:])
	return out
}

// NewHash returns a new Hash from a byte slice. An error is returned if the
// number of bytes passed in is not HashSize.
func NewHash(b []byte) (*Hash, error) {
	var h Hash
	if len(b) != HashSize {
		return nil, errors.New("chainhash: invalid hash length")
	}
	copy(h[:], b)
	return &h, nil
}

// NewHashFromStr creates a Hash from a hash string. The string is expected
// to be the reversed hex representation produced by String.
func NewHashFromStr(s string) (*Hash, error) {
	if len(s) != HashSize*2 {
		return nil, ErrHashStrSize
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	var h Hash
	for i, bb := range b {
		h[HashSize-1-i] = bb
	}
	return &h, nil
}

// HashB calculates sha256(sha256(b)) and returns the resulting bytes.
func HashB(b []byte) []byte {
	first := sha256.Sum256(b)
	second := sha256.Sum256(first[:])
	return second[:]
}

// HashH calculates sha256(sha256(b)) and returns the resulting Hash.
func HashH(b []byte) Hash {
	first := sha256.Sum256(b)
	second := sha256.Sum256(first[:])
	return Hash(second)
}

// inputLockTag and islockTag are the domain-separation tags used to derive
// the transient request ids the Signing Service signs against. They mirror
// the "inlock"/"islock" prefixes from the original InstantSend design
// (spec.md §3).
var (
	inputLockTag = []byte("inlock")
	islockTag    = []byte("islock")
)

// InputLockRequestID computes H("inlock" ‖ outpointBytes), the transient
// request id used while attempting to lock a single input.
func InputLockRequestID(outpointBytes []byte) Hash {
	buf := make([]byte, 0, len(inputLockTag)+len(outpointBytes))
	buf = append(buf, inputLockTag...)
	buf = append(buf, outpointBytes...)
	return HashH(buf)
}

// ISLockRequestID computes H("islock" ‖ orderedInputBytes), the request id
// whose recovered signature becomes an ISLOCK's aggregated signature. The
// caller must supply inputs already serialized in transaction order; the
// result depends only on that ordered byte sequence, so it is stable across
// re-serialization of the owning ISLOCK (spec.md §8 invariant 4).
func ISLockRequestID(orderedInputBytes []byte) Hash {
	buf := make([]byte, 0, len(islockTag)+len(orderedInputBytes))
	buf = append(buf, islockTag...)
	buf = append(buf, orderedInputBytes...)
	return HashH(buf)
}
