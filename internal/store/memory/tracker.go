package memory

import (
	"hash/fnv"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/hay-kot/perch/internal/core/clock"
	"github.com/hay-kot/perch/internal/core/messaging"
)

// DefaultTrackerShards is the number of claim shards used when none is set.
const DefaultTrackerShards = 32

// Tracker implements messaging.Tracker over a set of TTL caches sharded by
// client ID. Each claim stores its deadline on the injected clock; the
// cache's own wall-clock TTL is a backstop for a broker that never sweeps.
type Tracker struct {
	clock  clock.Clock
	ttl    time.Duration
	shards []*ttlcache.Cache[claimKey, time.Time]

	sweepMu sync.Mutex
}

var _ messaging.Tracker = (*Tracker)(nil)

type claimKey struct {
	clientID  string
	messageID string
}

// NewTracker creates a tracker whose claims are retained for ttl. A
// non-positive shard count uses DefaultTrackerShards.
func NewTracker(c clock.Clock, ttl time.Duration, shards int) *Tracker {
	if shards <= 0 {
		shards = DefaultTrackerShards
	}

	t := &Tracker{
		clock:  c,
		ttl:    ttl,
		shards: make([]*ttlcache.Cache[claimKey, time.Time], shards),
	}
	for i := range t.shards {
		t.shards[i] = ttlcache.New[claimKey, time.Time](
			ttlcache.WithTTL[claimKey, time.Time](ttl),
			ttlcache.WithDisableTouchOnHit[claimKey, time.Time](),
		)
	}
	return t
}

// TryClaim marks messageID as delivered to clientID.
func (t *Tracker) TryClaim(clientID, messageID string) bool {
	key := claimKey{clientID: clientID, messageID: messageID}
	deadline := t.clock.Now().Add(t.ttl)

	// GetOrSet inserts under the shard lock, so exactly one caller observes
	// the pair as new.
	_, found := t.shard(clientID).GetOrSet(key, deadline)
	return !found
}

// Sweep removes claims whose deadline has passed on the tracker's clock.
func (t *Tracker) Sweep() {
	t.sweepMu.Lock()
	defer t.sweepMu.Unlock()

	now := t.clock.Now()
	for _, shard := range t.shards {
		shard.DeleteExpired()

		if shard.Len() == 0 {
			continue
		}

		var stale []claimKey
		shard.Range(func(item *ttlcache.Item[claimKey, time.Time]) bool {
			if !now.Before(item.Value()) {
				stale = append(stale, item.Key())
			}
			return true
		})
		for _, key := range stale {
			shard.Delete(key)
		}
	}
}

// Len returns the number of claims currently held.
func (t *Tracker) Len() int {
	total := 0
	for _, shard := range t.shards {
		total += shard.Len()
	}
	return total
}

func (t *Tracker) shard(clientID string) *ttlcache.Cache[claimKey, time.Time] {
	h := fnv.New32a()
	_, _ = h.Write([]byte(clientID))
	return t.shards[h.Sum32()%uint32(len(t.shards))]
}
