package isdb

import (
	"encoding/binary"

	"github.com/PastaPastaPasta/dash/chainhash"
	"github.com/PastaPastaPasta/dash/wire"
)

// Key prefixes, per spec.md §4.1.
var (
	prefixLock        = []byte("is_i")
	prefixTxid        = []byte("is_tx")
	prefixInput       = []byte("is_in")
	prefixMined       = []byte("is_m")
	prefixArchiveByHt = []byte("is_a1")
	prefixArchive     = []byte("is_a2")
	prefixVersion     = []byte("is_v")
)

// invertHeight encodes height as described in spec.md §3: a 4-byte
// big-endian 0xFFFFFFFF-height, so that ascending key iteration visits
// higher heights first — i.e. descending by real height.
func invertHeight(height int32) [4]byte {
	var out [4]byte
	binary.BigEndian.PutUint32(out[:], uint32(0xFFFFFFFF)-uint32(height))
	return out
}

func revertHeight(b []byte) int32 {
	return int32(uint32(0xFFFFFFFF) - binary.BigEndian.Uint32(b))
}

func keyLock(hash chainhash.Hash) []byte {
	k := make([]byte, 0, len(prefixLock)+chainhash.HashSize)
	k = append(k, prefixLock...)
	return append(k, hash[:]...)
}

func keyTxid(txid chainhash.Hash) []byte {
	k := make([]byte, 0, len(prefixTxid)+chainhash.HashSize)
	k = append(k, prefixTxid...)
	return append(k, txid[:]...)
}

func keyInput(o wire.OutPoint) []byte {
	k := make([]byte, 0, len(prefixInput)+chainhash.HashSize+4)
	k = append(k, prefixInput...)
	return append(k, o.Bytes()...)
}

// keyInputPrefix returns the prefix shared by every is_in key belonging to
// outpoints whose transaction hash is parentTxid, used by GetByParent to
// scan for children.
func keyInputPrefix(parentTxid chainhash.Hash) []byte {
	k := make([]byte, 0, len(prefixInput)+chainhash.HashSize)
	k = append(k, prefixInput...)
	return append(k, parentTxid[:]...)
}

func keyMined(height int32, hash chainhash.Hash) []byte {
	inv := invertHeight(height)
	k := make([]byte, 0, len(prefixMined)+4+chainhash.HashSize)
	k = append(k, prefixMined...)
	k = append(k, inv[:]...)
	return append(k, hash[:]...)
}

func keyArchiveByHeight(height int32, hash chainhash.Hash) []byte {
	inv := invertHeight(height)
	k := make([]byte, 0, len(prefixArchiveByHt)+4+chainhash.HashSize)
	k = append(k, prefixArchiveByHt...)
	k = append(k, inv[:]...)
	return append(k, hash[:]...)
}

func keyArchive(hash chainhash.Hash) []byte {
	k := make([]byte, 0, len(prefixArchive)+chainhash.HashSize)
	k = append(k, prefixArchive...)
	return append(k, hash[:]...)
}
