package isdb

import (
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/PastaPastaPasta/dash/chainhash"
	"github.com/PastaPastaPasta/dash/wire"
)

// negativeTTL bounds how long a "definitely not found" answer is trusted
// before the next lookup re-checks the store — spec.md §4.1's "negative
// entry (null) for a short TTL to absorb repeated lookups for unknown
// keys". decred/dcrd/lru (used elsewhere in this module for fixed-size
// membership sets) has no expiry concept, so the by-hash/by-txid/by-outpoint
// caches use patrickmn/go-cache instead, which natively supports per-entry
// TTLs.
const negativeTTL = 10 * time.Second

// caches bundles the three go-cache TTL caches (with negative entries, no
// LRU eviction) IS-DB keeps: by lock-hash, by txid, and by outpoint.
type caches struct {
	byHash     *gocache.Cache
	byTxid     *gocache.Cache
	byOutpoint *gocache.Cache
}

// sentinel marks a cached "known absent" answer.
type notFoundSentinel struct{}

var notFound = notFoundSentinel{}

func newCaches() *caches {
	return &caches{
		byHash:     gocache.New(5*time.Minute, time.Minute),
		byTxid:     gocache.New(5*time.Minute, time.Minute),
		byOutpoint: gocache.New(5*time.Minute, time.Minute),
	}
}

func (c *caches) invalidateAll() {
	c.byHash.Flush()
	c.byTxid.Flush()
	c.byOutpoint.Flush()
}

func (c *caches) getByHash(hash chainhash.Hash) (lock *wire.InstantSendLock, known bool) {
	v, ok := c.byHash.Get(hash.String())
	if !ok {
		return nil, false
	}
	if _, neg := v.(notFoundSentinel); neg {
		return nil, true
	}
	return v.(*wire.InstantSendLock), true
}

func (c *caches) setByHash(hash chainhash.Hash, lock *wire.InstantSendLock) {
	if lock == nil {
		c.byHash.Set(hash.String(), notFound, negativeTTL)
		return
	}
	c.byHash.Set(hash.String(), lock, gocache.NoExpiration)
}

func (c *caches) invalidateHash(hash chainhash.Hash) {
	c.byHash.Delete(hash.String())
}

func (c *caches) getByTxid(txid chainhash.Hash) (hash chainhash.Hash, known, found bool) {
	v, ok := c.byTxid.Get(txid.String())
	if !ok {
		return chainhash.Hash{}, false, false
	}
	if _, neg := v.(notFoundSentinel); neg {
		return chainhash.Hash{}, true, false
	}
	return v.(chainhash.Hash), true, true
}

func (c *caches) setByTxid(txid chainhash.Hash, hash *chainhash.Hash) {
	if hash == nil {
		c.byTxid.Set(txid.String(), notFound, negativeTTL)
		return
	}
	c.byTxid.Set(txid.String(), *hash, gocache.NoExpiration)
}

func (c *caches) invalidateTxid(txid chainhash.Hash) {
	c.byTxid.Delete(txid.String())
}

func (c *caches) getByOutpoint(o wire.OutPoint) (hash chainhash.Hash, known, found bool) {
	v, ok := c.byOutpoint.Get(o.String())
	if !ok {
		return chainhash.Hash{}, false, false
	}
	if _, neg := v.(notFoundSentinel); neg {
		return chainhash.Hash{}, true, false
	}
	return v.(chainhash.Hash), true, true
}

func (c *caches) setByOutpoint(o wire.OutPoint, hash *chainhash.Hash) {
	if hash == nil {
		c.byOutpoint.Set(o.String(), notFound, negativeTTL)
		return
	}
	c.byOutpoint.Set(o.String(), *hash, gocache.NoExpiration)
}

func (c *caches) invalidateOutpoint(o wire.OutPoint) {
	c.byOutpoint.Delete(o.String())
}
