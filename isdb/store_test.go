package isdb

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/PastaPastaPasta/dash/chainhash"
	"github.com/PastaPastaPasta/dash/wire"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "isdb-test")
	s, err := Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleLock(t *testing.T, seed byte) *wire.InstantSendLock {
	t.Helper()
	txid := chainhash.HashH([]byte{seed, 'x'})
	opHash := chainhash.HashH([]byte{seed, 'o'})
	op := wire.NewOutPoint(&opHash, 0)
	l := wire.NewLegacyLock(txid, []wire.OutPoint{*op})
	l.Sig[0] = seed
	return l
}

func TestWriteNewLockIndexesByTxidAndOutpoint(t *testing.T) {
	s := openTestStore(t)
	l := sampleLock(t, 1)

	require.NoError(t, s.WriteNewLock(l))

	got, ok := s.KnownLock(l.Hash())
	require.True(t, ok)
	require.Equal(t, l.TxID, got.TxID)

	byTxid, ok := s.GetByTxid(l.TxID)
	require.True(t, ok)
	require.Equal(t, l.Hash(), byTxid.Hash())

	byOutpoint, ok := s.GetByOutpoint(l.Inputs[0])
	require.True(t, ok)
	require.Equal(t, l.Hash(), byOutpoint.Hash())
}

func TestKnownLockNegativeCaching(t *testing.T) {
	s := openTestStore(t)
	unknown := chainhash.HashH([]byte("nope"))

	_, ok := s.KnownLock(unknown)
	require.False(t, ok)

	// Cached negative entry must still report "not found" on a second call.
	_, ok = s.KnownLock(unknown)
	require.False(t, ok)
}

func TestRemoveLockClearsAllIndexes(t *testing.T) {
	s := openTestStore(t)
	l := sampleLock(t, 2)
	require.NoError(t, s.WriteNewLock(l))

	require.NoError(t, s.RemoveLock(l.Hash()))

	_, ok := s.KnownLock(l.Hash())
	require.False(t, ok)
	_, ok = s.GetByTxid(l.TxID)
	require.False(t, ok)
	_, ok = s.GetByOutpoint(l.Inputs[0])
	require.False(t, ok)
}

func TestRemoveConfirmedUpToPrunesOnlyOldEnoughEntries(t *testing.T) {
	s := openTestStore(t)
	old := sampleLock(t, 3)
	recent := sampleLock(t, 4)

	require.NoError(t, s.WriteNewLock(old))
	require.NoError(t, s.WriteNewLock(recent))
	require.NoError(t, s.WriteMined(old.Hash(), 100))
	require.NoError(t, s.WriteMined(recent.Hash(), 900))

	removed, err := s.RemoveConfirmedUpTo(200)
	require.NoError(t, err)
	require.Len(t, removed, 1)
	_, wasRemoved := removed[old.Hash()]
	require.True(t, wasRemoved)

	_, ok := s.KnownLock(old.Hash())
	require.False(t, ok)
	_, ok = s.KnownLock(recent.Hash())
	require.True(t, ok)

	_, err = s.db.Get(keyArchive(old.Hash()), nil)
	require.NoError(t, err, "confirmed lock must be archived")
}

func TestArchiveRoundTripAndPrune(t *testing.T) {
	s := openTestStore(t)
	l := sampleLock(t, 5)

	require.NoError(t, s.WriteArchived(l, 50))
	require.NoError(t, s.RemoveArchivedUpTo(10))

	// Still present: pruning watermark is below the archive height.
	raw, err := s.db.Get(keyArchive(l.Hash()), nil)
	require.NoError(t, err)
	require.NotEmpty(t, raw)

	require.NoError(t, s.RemoveArchivedUpTo(100))
	_, err = s.db.Get(keyArchive(l.Hash()), nil)
	require.Error(t, err)
}

func TestRemoveChainedLocksWalksDescendants(t *testing.T) {
	s := openTestStore(t)

	rootTxid := chainhash.HashH([]byte("root"))
	rootInHash := chainhash.HashH([]byte("root-in"))
	rootLock := wire.NewLegacyLock(rootTxid, []wire.OutPoint{*wire.NewOutPoint(&rootInHash, 0)})

	childTxid := chainhash.HashH([]byte("child"))
	childLock := wire.NewLegacyLock(childTxid, []wire.OutPoint{*wire.NewOutPoint(&rootTxid, 0)})

	require.NoError(t, s.WriteNewLock(rootLock))
	require.NoError(t, s.WriteNewLock(childLock))

	removed, err := s.RemoveChainedLocks(rootLock, 500)
	require.NoError(t, err)
	require.Len(t, removed, 2)

	_, ok := s.KnownLock(rootLock.Hash())
	require.False(t, ok)
	_, ok = s.KnownLock(childLock.Hash())
	require.False(t, ok)

	_, err = s.db.Get(keyArchive(rootLock.Hash()), nil)
	require.NoError(t, err, "pruned root must be archived")
	_, err = s.db.Get(keyArchive(childLock.Hash()), nil)
	require.NoError(t, err, "pruned child must be archived")
}

func TestUpgradeSkippedWithoutTxIndex(t *testing.T) {
	s := openTestStore(t)
	l := sampleLock(t, 6)
	require.NoError(t, s.WriteNewLock(l))

	dropped, err := s.Upgrade(false, func(chainhash.Hash) bool { return false })
	require.NoError(t, err)
	require.Equal(t, 0, dropped)

	_, ok := s.KnownLock(l.Hash())
	require.True(t, ok, "entries must survive Upgrade when txIndexAvailable is false")
}

func TestUpgradeDropsUnresolvableEntriesWhenTxIndexAvailable(t *testing.T) {
	s := openTestStore(t)
	resolvable := sampleLock(t, 7)
	stale := sampleLock(t, 8)

	require.NoError(t, s.WriteNewLock(resolvable))
	require.NoError(t, s.WriteNewLock(stale))

	dropped, err := s.Upgrade(true, func(txid chainhash.Hash) bool {
		return txid == resolvable.TxID
	})
	require.NoError(t, err)
	require.Equal(t, 1, dropped)

	_, ok := s.KnownLock(resolvable.Hash())
	require.True(t, ok)
	_, ok = s.KnownLock(stale.Hash())
	require.False(t, ok)
}
