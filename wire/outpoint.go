package wire

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/PastaPastaPasta/dash/chainhash"
)

// OutPoint defines a transaction output that is spent by an input, uniquely
// identifying it by the hash of the transaction it came from and its
// index within that transaction's outputs.
type OutPoint struct {
	Hash  chainhash.Hash
	Index uint32
}

// NewOutPoint returns a new transaction outpoint.
func NewOutPoint(hash *chainhash.Hash, index uint32) *OutPoint {
	return &OutPoint{Hash: *hash, Index: index}
}

// Bytes returns the canonical wire encoding of the outpoint: the 32-byte
// hash followed by a 4-byte little-endian index. This is the exact byte
// sequence hashed into an input-lock request id (chainhash.InputLockRequestID).
func (o OutPoint) Bytes() []byte {
	buf := make([]byte, chainhash.HashSize+4)
	copy(buf, o.Hash[:])
	binary.LittleEndian.PutUint32(buf[chainhash.HashSize:], o.Index)
	return buf
}

// String returns a human-readable representation of the outpoint.
func (o OutPoint) String() string {
	return fmt.Sprintf("%s:%d", o.Hash.String(), o.Index)
}

// Less orders outpoints first by txid bytes, then by index. No code in this
// module calls it; Validate detects duplicate inputs with a set instead.
func (o OutPoint) Less(other OutPoint) bool {
	for i := 0; i < chainhash.HashSize; i++ {
		if o.Hash[i] != other.Hash[i] {
			return o.Hash[i] < other.Hash[i]
		}
	}
	return o.Index < other.Index
}

// WriteOutPoint serializes an outpoint to w.
func WriteOutPoint(w io.Writer, o *OutPoint) error {
	_, err := w.Write(o.Bytes())
	return err
}

// ReadOutPoint deserializes an outpoint from r.
func ReadOutPoint(r io.Reader, o *OutPoint) error {
	buf := make([]byte, chainhash.HashSize+4)
	if _, err := io.ReadFull(r, buf); err != nil {
		return err
	}
	copy(o.Hash[:], buf[:chainhash.HashSize])
	o.Index = binary.LittleEndian.Uint32(buf[chainhash.HashSize:])
	return nil
}
