package llmq

import (
	"github.com/PastaPastaPasta/dash/chainhash"
)

// BuildSignHash constructs the domain-separated message that quorum
// members actually sign: H(llmqType ‖ quorumHash ‖ id ‖ msgHash). This
// mirrors original_source/src/llmq/commitment.cpp's BuildCommitmentHash
// domain-separation pattern, applied here to signing requests rather than
// commitments.
func BuildSignHash(llmqType Type, quorumHash, id, msgHash chainhash.Hash) chainhash.Hash {
	buf := make([]byte, 1+chainhash.HashSize*3)
	buf[0] = byte(llmqType)
	off := 1
	copy(buf[off:], quorumHash[:])
	off += chainhash.HashSize
	copy(buf[off:], id[:])
	off += chainhash.HashSize
	copy(buf[off:], msgHash[:])
	return chainhash.HashH(buf)
}
