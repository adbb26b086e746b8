// Package bls wraps github.com/supranational/blst with the minimal surface
// the InstantSend subsystem needs: threshold quorum public keys, single and
// aggregate signature verification. It follows the min-pubkey-size
// convention (48-byte G1 public keys, 96-byte G2 signatures), matching
// spec.md §6's "96B BLS" signature size and the scheme Dash's own LLMQ
// quorums use. The aggregate-verify shape is grounded on
// luxfi-vm/vms/platformvm/warp/signature.go's BitSetSignature.Verify, which
// batches distinct (pubkey, message) pairs into one pairing check.
//
// Threshold secret-sharing recovery itself is out of scope (spec.md §1
// Non-goals: "Reinventing the BLS scheme") — that math belongs to the
// external Signing Service; this package only ever consumes a signature
// that has already been produced.
package bls

import (
	"errors"

	blst "github.com/supranational/blst/bindings/go"
)

// dst is the domain separation tag for hash-to-curve, matching the
// convention used by Ethereum's consensus layer and by Dash's own BLS
// scheme for this ciphersuite.
var dst = []byte("DASH_IS_BLS_SIG_BLS12381G2_XMD:SHA-256_SSWU_RO_")

const (
	// PublicKeySize is the length of a compressed G1 public key.
	PublicKeySize = 48
	// SignatureSize is the length of a compressed G2 signature.
	SignatureSize = 96
)

var (
	ErrInvalidPublicKey = errors.New("bls: invalid public key encoding")
	ErrInvalidSignature = errors.New("bls: invalid signature encoding")
	ErrMismatchedLength = errors.New("bls: mismatched pubkeys/messages/signatures length")
)

// SecretKey is a quorum member's (or, for the in-memory stand-in Signing
// Service, a simulated quorum's) BLS private key.
type SecretKey struct {
	sk *blst.SecretKey
}

// PublicKey is a compressed G1 point.
type PublicKey struct {
	pk *blst.P1Affine
}

// Signature is a compressed G2 point.
type Signature struct {
	sig *blst.P2Affine
}

// KeyGen derives a deterministic SecretKey from ikm (>= 32 bytes of
// entropy). Used only by the in-memory signing package to simulate quorum
// keys in tests; real quorum keys are provisioned by the DKG, which is out
// of scope here.
func KeyGen(ikm []byte) (*SecretKey, error) {
	if len(ikm) < 32 {
		return nil, errors.New("bls: ikm must be at least 32 bytes")
	}
	sk := blst.KeyGen(ikm)
	return &SecretKey{sk: sk}, nil
}

// PublicKey derives the public key corresponding to sk.
func (sk *SecretKey) PublicKey() *PublicKey {
	pk := new(blst.P1Affine).From(sk.sk)
	return &PublicKey{pk: pk}
}

// Sign produces a Signature over msg.
func (sk *SecretKey) Sign(msg []byte) *Signature {
	sig := new(blst.P2Affine).Sign(sk.sk, msg, dst)
	return &Signature{sig: sig}
}

// Bytes returns the compressed encoding of pk.
func (pk *PublicKey) Bytes() [PublicKeySize]byte {
	var out [PublicKeySize]byte
	copy(out[:], pk.pk.Compress())
	return out
}

// PublicKeyFromBytes parses a compressed G1 public key.
func PublicKeyFromBytes(b []byte) (*PublicKey, error) {
	pk := new(blst.P1Affine).Uncompress(b)
	if pk == nil || !pk.KeyValidate() {
		return nil, ErrInvalidPublicKey
	}
	return &PublicKey{pk: pk}, nil
}

// Bytes returns the compressed encoding of sig.
func (sig *Signature) Bytes() [SignatureSize]byte {
	var out [SignatureSize]byte
	copy(out[:], sig.sig.Compress())
	return out
}

// SignatureFromBytes parses a compressed G2 signature. Group-membership is
// not validated here (that is folded into the pairing check during
// verification, which rejects points outside the subgroup).
func SignatureFromBytes(b []byte) (*Signature, error) {
	sig := new(blst.P2Affine).Uncompress(b)
	if sig == nil {
		return nil, ErrInvalidSignature
	}
	return &Signature{sig: sig}, nil
}

// Verify checks a single (pubkey, message, signature) triple.
func Verify(pk *PublicKey, msg []byte, sig *Signature) bool {
	return sig.sig.Verify(true, pk.pk, true, msg, dst)
}

// AggregateVerify performs one batched pairing check across N independent
// (pubkey, message, signature) triples. The triples need not share a
// message, mirroring warp.BitSetSignature.Verify's
// aggregate-pairing-over-distinct-messages shape. The instantsend
// verifier does not call it; it checks each lock with Verify.
func AggregateVerify(pks []*PublicKey, msgs [][]byte, sigs []*Signature) (bool, error) {
	if len(pks) != len(msgs) || len(pks) != len(sigs) {
		return false, ErrMismatchedLength
	}
	if len(pks) == 0 {
		return true, nil
	}

	rawPks := make([]*blst.P1Affine, len(pks))
	for i, pk := range pks {
		rawPks[i] = pk.pk
	}
	rawSigs := make([]*blst.P2Affine, len(sigs))
	for i, s := range sigs {
		rawSigs[i] = s.sig
	}

	aggSig := new(blst.P2Aggregate)
	if !aggSig.Aggregate(rawSigs, true) {
		return false, ErrInvalidSignature
	}
	combined := aggSig.ToAffine()

	return combined.AggregateVerify(true, rawPks, true, msgs, dst), nil
}
