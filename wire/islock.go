package wire

import (
	"bytes"
	"errors"
	"io"

	"github.com/PastaPastaPasta/dash/chainhash"
)

// LockVersion distinguishes the two ISLOCK envelope shapes. Per the Design
// Notes (spec.md §9, Q1) the envelope carries the variant explicitly — the
// decoders below never probe one shape and fall back to the other.
type LockVersion uint8

const (
	// LegacyLock is a pre-DIP0020 ISLOCK: no cycleHash field.
	LegacyLock LockVersion = iota
	// DeterministicLock is a DIP0020 ISDLOCK: carries a cycleHash that
	// anchors the signing quorum's rotation.
	DeterministicLock
)

// InvType mirrors the inventory kinds relevant to InstantSend relay.
type InvType uint32

const (
	InvTx      InvType = 1
	InvISLock  InvType = 31
	InvISDLock InvType = 32
)

// Protocol version gates for inventory relay (spec.md §6).
const (
	LLMQSProtoVersion   = 70216
	ISDLockProtoVersion = 70219
)

var (
	// ErrEmptyTxid rejects an ISLOCK whose txid is the zero hash.
	ErrEmptyTxid = errors.New("wire: islock txid is zero")
	// ErrNoInputs rejects an ISLOCK with no inputs.
	ErrNoInputs = errors.New("wire: islock has no inputs")
	// ErrDuplicateInput rejects an ISLOCK whose inputs are not pairwise distinct.
	ErrDuplicateInput = errors.New("wire: islock has duplicate input outpoint")
	// ErrBadSigLen rejects a signature that isn't exactly 96 bytes (a
	// compressed BLS12-381 G2 point).
	ErrBadSigLen = errors.New("wire: islock signature must be 96 bytes")
)

// SignatureSize is the length in bytes of a compressed BLS12-381
// min-pubkey-size aggregate signature.
const SignatureSize = 96

// InstantSendLock is the attestation that a transaction's inputs are
// locked by a quorum (spec.md §3). The zero value is never valid; use
// NewLegacyLock / NewDeterministicLock.
type InstantSendLock struct {
	Version   LockVersion
	TxID      chainhash.Hash
	Inputs    []OutPoint
	CycleHash chainhash.Hash // only meaningful when Version == DeterministicLock
	Sig       [SignatureSize]byte
}

// NewLegacyLock constructs an unsigned legacy ISLOCK.
func NewLegacyLock(txid chainhash.Hash, inputs []OutPoint) *InstantSendLock {
	return &InstantSendLock{Version: LegacyLock, TxID: txid, Inputs: inputs}
}

// NewDeterministicLock constructs an unsigned ISDLOCK.
func NewDeterministicLock(txid chainhash.Hash, inputs []OutPoint, cycleHash chainhash.Hash) *InstantSendLock {
	return &InstantSendLock{Version: DeterministicLock, TxID: txid, Inputs: inputs, CycleHash: cycleHash}
}

// RequestID returns the transient request id whose recovered signature
// becomes Sig, computed over the inputs in their current order.
func (l *InstantSendLock) RequestID() chainhash.Hash {
	return chainhash.ISLockRequestID(l.encodeInputs())
}

// Hash returns the lock's own hash, used as the IS-DB primary key
// (is_i/is_a2 prefixes). It covers every field, including Sig, so two
// ISLOCKs that differ only in signature are distinct entries.
func (l *InstantSendLock) Hash() chainhash.Hash {
	var buf bytes.Buffer
	_ = l.Encode(&buf)
	return chainhash.HashH(buf.Bytes())
}

func (l *InstantSendLock) encodeInputs() []byte {
	var buf bytes.Buffer
	for _, o := range l.Inputs {
		buf.Write(o.Bytes())
	}
	return buf.Bytes()
}

// Validate checks the structural preflight conditions from spec.md §4.3:
// non-zero txid and a non-empty, pairwise-distinct input set. It does not
// check the cycleHash (that requires chain state, so it is the caller's
// job — see the preflight step in package instantsend).
func (l *InstantSendLock) Validate() error {
	if l.TxID.IsZero() {
		return ErrEmptyTxid
	}
	if len(l.Inputs) == 0 {
		return ErrNoInputs
	}
	if len(l.Inputs) > MaxInputsPerLock {
		return ErrTooManyInputs
	}
	seen := make(map[OutPoint]struct{}, len(l.Inputs))
	for _, o := range l.Inputs {
		if _, dup := seen[o]; dup {
			return ErrDuplicateInput
		}
		seen[o] = struct{}{}
	}
	return nil
}

// Encode serializes the lock to w in the order spec.md §6 defines:
// txid, inputs, [cycleHash], sig.
func (l *InstantSendLock) Encode(w io.Writer) error {
	if _, err := w.Write(l.TxID[:]); err != nil {
		return err
	}
	if err := WriteVarInt(w, uint64(len(l.Inputs))); err != nil {
		return err
	}
	for _, o := range l.Inputs {
		if err := WriteOutPoint(w, &o); err != nil {
			return err
		}
	}
	if l.Version == DeterministicLock {
		if _, err := w.Write(l.CycleHash[:]); err != nil {
			return err
		}
	}
	_, err := w.Write(l.Sig[:])
	return err
}

// Bytes returns the serialized lock.
func (l *InstantSendLock) Bytes() []byte {
	var buf bytes.Buffer
	_ = l.Encode(&buf)
	return buf.Bytes()
}

func decode(r io.Reader, version LockVersion) (*InstantSendLock, error) {
	l := &InstantSendLock{Version: version}

	if _, err := io.ReadFull(r, l.TxID[:]); err != nil {
		return nil, err
	}

	n, err := ReadVarInt(r)
	if err != nil {
		return nil, err
	}
	if n > MaxInputsPerLock {
		return nil, ErrTooManyInputs
	}
	l.Inputs = make([]OutPoint, n)
	for i := range l.Inputs {
		if err := ReadOutPoint(r, &l.Inputs[i]); err != nil {
			return nil, err
		}
	}

	if version == DeterministicLock {
		if _, err := io.ReadFull(r, l.CycleHash[:]); err != nil {
			return nil, err
		}
	}

	if _, err := io.ReadFull(r, l.Sig[:]); err != nil {
		return nil, err
	}

	return l, nil
}

// Decode parses an ISLOCK payload whose variant is already known from the
// envelope. Exported for callers (e.g. isdb's on-disk encoding) that track
// the variant out-of-band instead of via an INV kind.
func Decode(r io.Reader, version LockVersion) (*InstantSendLock, error) {
	return decode(r, version)
}

// DecodeISLock parses the legacy (non-deterministic) ISLOCK payload from r.
// Per the envelope-explicitness decision (DESIGN.md), callers must route a
// MSG_ISLOCK inventory item here and a MSG_ISDLOCK item to DecodeISDLock —
// this function never attempts to guess the variant.
func DecodeISLock(r io.Reader) (*InstantSendLock, error) {
	return decode(r, LegacyLock)
}

// DecodeISDLock parses the deterministic ISDLOCK payload from r.
func DecodeISDLock(r io.Reader) (*InstantSendLock, error) {
	return decode(r, DeterministicLock)
}

// InvKind returns the inventory kind this lock should be announced under.
func (l *InstantSendLock) InvKind() InvType {
	if l.Version == DeterministicLock {
		return InvISDLock
	}
	return InvISLock
}
