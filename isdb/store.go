// Package isdb implements the IS-DB persistence layer from spec.md §4.1:
// a multi-index embedded store mapping ISLOCK hash, txid, and per-input
// outpoint to the owning lock, plus height-ordered indexes for pruning
// confirmed and archived entries.
//
// Grounded on btcsuite-btcd/database/engine/leveldb's direct wrapping of
// github.com/syndtr/goleveldb (opt.Options + filter.NewBloomFilter) and
// btcsuite-btcd/database/ldb/leveldb.go's mutex-guarded batch-writer
// idiom. Negative-entry caches use github.com/patrickmn/go-cache (sourced
// from bitcoin-sv-arc's go.mod) rather than github.com/decred/dcrd/lru,
// which has no per-entry TTL — see cache.go.
package isdb

import (
	"bytes"
	"errors"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/filter"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/PastaPastaPasta/dash/chainhash"
	"github.com/PastaPastaPasta/dash/wire"
)

// schemaVersion is written under prefixVersion and checked by Open.
const schemaVersion = 1

// ErrNotFound names a lookup that finds no matching entry. The Store's own
// lookups report absence with a false bool and do not return it.
var ErrNotFound = errors.New("isdb: not found")

// storedVariant tags an on-disk lock with which wire codec decodes it,
// since the raw bytes alone don't carry an inventory kind the way a
// relayed message does.
type storedVariant byte

const (
	variantLegacy        storedVariant = 0
	variantDeterministic storedVariant = 1
)

// Store is the IS-DB handle. A single instance owns one goleveldb database
// and must be used by only one process at a time (goleveldb itself holds
// an OS-level file lock enforcing this).
type Store struct {
	writeMu sync.Mutex // serializes batch writers, per leveldb.go's dbLock

	db     *leveldb.DB
	caches *caches
}

// Open opens (or creates) the IS-DB at path.
func Open(path string) (*Store, error) {
	opts := &opt.Options{
		Filter: filter.NewBloomFilter(10),
	}
	db, err := leveldb.OpenFile(path, opts)
	if err != nil {
		return nil, err
	}
	s := &Store{db: db, caches: newCaches()}
	if err := s.ensureVersion(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ensureVersion() error {
	v, err := s.db.Get(prefixVersion, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return s.db.Put(prefixVersion, []byte{schemaVersion}, nil)
	}
	if err != nil {
		return err
	}
	if len(v) != 1 || v[0] != schemaVersion {
		return errors.New("isdb: unsupported on-disk schema version")
	}
	return nil
}

func encodeStored(l *wire.InstantSendLock) []byte {
	variant := variantLegacy
	if l.Version == wire.DeterministicLock {
		variant = variantDeterministic
	}
	var buf bytes.Buffer
	buf.WriteByte(byte(variant))
	_ = l.Encode(&buf)
	return buf.Bytes()
}

func decodeStored(raw []byte) (*wire.InstantSendLock, error) {
	if len(raw) < 1 {
		return nil, errors.New("isdb: truncated record")
	}
	version := wire.LegacyLock
	if storedVariant(raw[0]) == variantDeterministic {
		version = wire.DeterministicLock
	}
	return wire.Decode(bytes.NewReader(raw[1:]), version)
}

// WriteNewLock persists a freshly-recovered lock and indexes it by txid and
// by each of its inputs, per spec.md §4.1.
func (s *Store) WriteNewLock(l *wire.InstantSendLock) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	hash := l.Hash()
	batch := new(leveldb.Batch)
	batch.Put(keyLock(hash), encodeStored(l))
	batch.Put(keyTxid(l.TxID), hash[:])
	for _, o := range l.Inputs {
		batch.Put(keyInput(o), hash[:])
	}
	if err := s.db.Write(batch, nil); err != nil {
		return err
	}

	s.caches.setByHash(hash, l)
	s.caches.setByTxid(l.TxID, &hash)
	for _, o := range l.Inputs {
		s.caches.setByOutpoint(o, &hash)
	}
	return nil
}

// RemoveLock deletes a lock and all of its secondary-index entries. Used by
// RemoveChainedLocks (the Conflict Resolver's pruning of conflicting
// locks) and by Upgrade.
func (s *Store) RemoveLock(hash chainhash.Hash) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	raw, err := s.db.Get(keyLock(hash), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	l, err := decodeStored(raw)
	if err != nil {
		return err
	}

	batch := new(leveldb.Batch)
	batch.Delete(keyLock(hash))
	batch.Delete(keyTxid(l.TxID))
	for _, o := range l.Inputs {
		batch.Delete(keyInput(o))
	}
	if err := s.db.Write(batch, nil); err != nil {
		return err
	}

	s.caches.invalidateHash(hash)
	s.caches.invalidateTxid(l.TxID)
	for _, o := range l.Inputs {
		s.caches.invalidateOutpoint(o)
	}
	return nil
}

// WriteMined records that the locked transaction has been mined at height,
// populating the descending-by-height mined index so
// RemoveConfirmedUpTo can later prune it.
func (s *Store) WriteMined(hash chainhash.Hash, height int32) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.db.Put(keyMined(height, hash), nil, nil)
}

// RemoveMined undoes WriteMined, e.g. when a block is invalidated and its
// transactions fall back to mempool (spec.md §4.4 step 9).
func (s *Store) RemoveMined(hash chainhash.Hash, height int32) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.db.Delete(keyMined(height, hash), nil)
}

// RemoveConfirmedUpTo deletes every lock whose transaction was mined at a
// height at or below upToHeight, writing both archive markers (is_a1,
// is_a2) for each before erasing its live rows and its is_m entry —
// spec.md §4.1's GC sweep for "deeply confirmed" locks. Returns the
// removed locks keyed by lock hash.
func (s *Store) RemoveConfirmedUpTo(upToHeight int32) (map[chainhash.Hash]*wire.InstantSendLock, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	iter := s.db.NewIterator(util.BytesPrefix(prefixMined), nil)
	defer iter.Release()

	var minedKeys [][]byte
	var minedHashes []chainhash.Hash
	for iter.Next() {
		key := iter.Key()
		height := revertHeight(key[len(prefixMined) : len(prefixMined)+4])
		if height > upToHeight {
			continue
		}
		var hash chainhash.Hash
		copy(hash[:], key[len(prefixMined)+4:])
		minedKeys = append(minedKeys, append([]byte{}, key...))
		minedHashes = append(minedHashes, hash)
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}

	removed := make(map[chainhash.Hash]*wire.InstantSendLock, len(minedHashes))
	batch := new(leveldb.Batch)
	for i, hash := range minedHashes {
		raw, err := s.db.Get(keyLock(hash), nil)
		if err != nil {
			continue
		}
		l, err := decodeStored(raw)
		if err != nil {
			continue
		}

		batch.Put(keyArchive(hash), raw)
		batch.Put(keyArchiveByHeight(upToHeight, hash), nil)
		batch.Delete(keyLock(hash))
		batch.Delete(keyTxid(l.TxID))
		for _, o := range l.Inputs {
			batch.Delete(keyInput(o))
		}
		batch.Delete(minedKeys[i])
		removed[hash] = l
	}
	if err := s.db.Write(batch, nil); err != nil {
		return nil, err
	}

	for hash, l := range removed {
		s.caches.invalidateHash(hash)
		s.caches.invalidateTxid(l.TxID)
		for _, o := range l.Inputs {
			s.caches.invalidateOutpoint(o)
		}
	}
	return removed, nil
}

// WriteArchived moves a pruned lock into the archive index, keyed both by
// hash and by the height it was pruned at, so a UI or peer-sync path can
// still answer "was this ever locked" after the live entry is gone.
func (s *Store) WriteArchived(l *wire.InstantSendLock, height int32) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	hash := l.Hash()
	encoded := encodeStored(l)
	batch := new(leveldb.Batch)
	batch.Put(keyArchive(hash), encoded)
	batch.Put(keyArchiveByHeight(height, hash), nil)
	return s.db.Write(batch, nil)
}

// RemoveArchivedUpTo deletes archive entries at or below upToHeight, per
// spec.md §4.1's bound on how long an archived ISLOCK is retained.
func (s *Store) RemoveArchivedUpTo(upToHeight int32) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	iter := s.db.NewIterator(util.BytesPrefix(prefixArchiveByHt), nil)
	defer iter.Release()

	batch := new(leveldb.Batch)
	for iter.Next() {
		key := iter.Key()
		height := revertHeight(key[len(prefixArchiveByHt) : len(prefixArchiveByHt)+4])
		if height > upToHeight {
			continue
		}
		var hash chainhash.Hash
		copy(hash[:], key[len(prefixArchiveByHt)+4:])
		batch.Delete(append([]byte{}, key...))
		batch.Delete(keyArchive(hash))
	}
	if err := iter.Error(); err != nil {
		return err
	}
	return s.db.Write(batch, nil)
}

// KnownLock reports whether hash is a live (non-archived) lock, and returns
// it if so. Negative answers are cached per cache.go's negativeTTL.
func (s *Store) KnownLock(hash chainhash.Hash) (*wire.InstantSendLock, bool) {
	if l, known := s.caches.getByHash(hash); known {
		return l, l != nil
	}

	raw, err := s.db.Get(keyLock(hash), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		s.caches.setByHash(hash, nil)
		return nil, false
	}
	if err != nil {
		return nil, false
	}
	l, err := decodeStored(raw)
	if err != nil {
		return nil, false
	}
	s.caches.setByHash(hash, l)
	return l, true
}

// GetByTxid returns the lock covering txid, if any.
func (s *Store) GetByTxid(txid chainhash.Hash) (*wire.InstantSendLock, bool) {
	if hash, known, found := s.caches.getByTxid(txid); known {
		if !found {
			return nil, false
		}
		return s.KnownLock(hash)
	}

	raw, err := s.db.Get(keyTxid(txid), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		s.caches.setByTxid(txid, nil)
		return nil, false
	}
	if err != nil {
		return nil, false
	}
	var hash chainhash.Hash
	copy(hash[:], raw)
	s.caches.setByTxid(txid, &hash)
	return s.KnownLock(hash)
}

// GetByOutpoint returns the lock covering outpoint o as one of its inputs,
// if any.
func (s *Store) GetByOutpoint(o wire.OutPoint) (*wire.InstantSendLock, bool) {
	if hash, known, found := s.caches.getByOutpoint(o); known {
		if !found {
			return nil, false
		}
		return s.KnownLock(hash)
	}

	raw, err := s.db.Get(keyInput(o), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		s.caches.setByOutpoint(o, nil)
		return nil, false
	}
	if err != nil {
		return nil, false
	}
	var hash chainhash.Hash
	copy(hash[:], raw)
	s.caches.setByOutpoint(o, &hash)
	return s.KnownLock(hash)
}

// GetByParent scans for every lock whose locked outpoints spend from
// parentTxid, used by RemoveChainedLocks to walk forward through the
// locked children of a lock the Conflict Resolver prunes.
func (s *Store) GetByParent(parentTxid chainhash.Hash) ([]*wire.InstantSendLock, error) {
	prefix := keyInputPrefix(parentTxid)
	iter := s.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()

	seen := make(map[chainhash.Hash]struct{})
	var out []*wire.InstantSendLock
	for iter.Next() {
		var hash chainhash.Hash
		copy(hash[:], iter.Value())
		if _, dup := seen[hash]; dup {
			continue
		}
		seen[hash] = struct{}{}
		if l, ok := s.KnownLock(hash); ok {
			out = append(out, l)
		}
	}
	return out, iter.Error()
}

// RemoveChainedLocks removes root and every lock transitively descended
// from it via GetByParent, archiving each at archiveHeight before removal
// and returning the hashes pruned, root first. This is the Conflict
// Resolver's primitive for pruning an entire invalidated chain of ISLOCKs
// in one call when a chainlocked block conflicts with them (spec.md §4.4
// step 9's "RemoveConflictingLock").
func (s *Store) RemoveChainedLocks(root *wire.InstantSendLock, archiveHeight int32) ([]chainhash.Hash, error) {
	var removed []chainhash.Hash
	queue := []*wire.InstantSendLock{root}
	for len(queue) > 0 {
		l := queue[0]
		queue = queue[1:]

		children, err := s.GetByParent(l.TxID)
		if err != nil {
			return removed, err
		}
		queue = append(queue, children...)

		if err := s.WriteArchived(l, archiveHeight); err != nil {
			return removed, err
		}
		hash := l.Hash()
		if err := s.RemoveLock(hash); err != nil {
			return removed, err
		}
		removed = append(removed, hash)
	}
	return removed, nil
}

// Upgrade performs the one-shot migration spec.md §9 (Open Question 2)
// resolves: entries created before per-input indexing existed may reference
// inputs whose spending transaction can no longer be resolved. When
// txIndexAvailable is false, such entries are left in place rather than
// dropped, since there is no way to confirm they're actually stale.
func (s *Store) Upgrade(txIndexAvailable bool, resolve func(txid chainhash.Hash) (found bool)) (dropped int, err error) {
	if !txIndexAvailable {
		return 0, nil
	}

	iter := s.db.NewIterator(util.BytesPrefix(prefixLock), nil)
	defer iter.Release()

	var stale []chainhash.Hash
	for iter.Next() {
		raw := iter.Value()
		l, derr := decodeStored(raw)
		if derr != nil {
			continue
		}
		if !resolve(l.TxID) {
			stale = append(stale, l.Hash())
		}
	}
	if err := iter.Error(); err != nil {
		return 0, err
	}

	for _, hash := range stale {
		if err := s.RemoveLock(hash); err != nil {
			return dropped, err
		}
		dropped++
	}
	return dropped, nil
}
