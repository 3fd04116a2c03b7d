package kademlia

import (
	"sync"

	"go.uber.org/zap"
)

// RoutingTable is the prefix-bucketed structure at the heart of Kademlia: 160
// k-buckets indexed by common-prefix length with the local ID, each capped
// at k contacts and evicted by LRU with a liveness probe on overflow.
type RoutingTable struct {
	me      Contact
	k       int
	buckets [IDLength * 8]*bucket
	mu      sync.RWMutex

	// pingFunc probes a contact's liveness when a bucket overflows. It is
	// called outside the table's lock so a slow peer never blocks other
	// routing-table operations. It is wired by the coordinator to avoid a
	// routing-table/transport import cycle.
	pingFunc func(Contact) bool

	log     *zap.Logger
	metrics *Metrics
}

// NewRoutingTable returns a routing table for node me with bucket capacity k.
func NewRoutingTable(me Contact, k int, log *zap.Logger, metrics *Metrics) *RoutingTable {
	if k <= 0 {
		k = 20
	}
	if log == nil {
		log = zap.NewNop()
	}
	rt := &RoutingTable{me: me, k: k, log: log, metrics: metrics}
	for i := range rt.buckets {
		rt.buckets[i] = newBucket(k)
	}
	return rt
}

// SetPingFunc wires the liveness probe used by the eviction policy.
func (rt *RoutingTable) SetPingFunc(pf func(Contact) bool) {
	rt.mu.Lock()
	rt.pingFunc = pf
	rt.mu.Unlock()
}

func (rt *RoutingTable) bucketIndex(id *KademliaID) int {
	i := CommonPrefixLen(rt.me.ID, id)
	if i >= len(rt.buckets) {
		i = len(rt.buckets) - 1
	}
	return i
}

// Observe records evidence that contact is alive.
func (rt *RoutingTable) Observe(contact Contact) {
	if contact.ID == nil {
		return
	}
	if rt.me.ID != nil && rt.me.ID.Equals(contact.ID) {
		return // never store ourselves
	}
	idx := rt.bucketIndex(contact.ID)
	if idx >= len(rt.buckets) {
		return // common_prefix_len == 160: contact.ID == me.ID, already handled above
	}

	rt.mu.Lock()
	b := rt.buckets[idx]
	if b.touch(contact) {
		rt.mu.Unlock()
		return
	}
	if b.appendNew(contact) {
		rt.mu.Unlock()
		if rt.metrics != nil {
			rt.metrics.RoutingTableSize.Inc()
		}
		return
	}
	// Bucket full: capture the current LRU head and release the lock before
	// probing it, so the probe's I/O never blocks other table operations.
	head, ok := b.head()
	rt.mu.Unlock()
	if !ok {
		return
	}

	alive := false
	if rt.pingFunc != nil {
		alive = rt.pingFunc(head)
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()
	b = rt.buckets[idx]
	if alive {
		b.promoteHeadToTail(head.ID)
		b.setReplacement(contact)
		rt.log.Debug("bucket full, head alive, new contact parked as replacement",
			zap.Int("bucket", idx), zap.String("head", head.ID.String()), zap.String("candidate", contact.ID.String()))
		return
	}
	b.evictHeadAndAppend(head.ID, contact)
	rt.log.Info("evicted dead bucket head",
		zap.Int("bucket", idx), zap.String("evicted", head.ID.String()), zap.String("inserted", contact.ID.String()))
	if rt.metrics != nil {
		rt.metrics.BucketEvictions.Inc()
	}
}

// Closest returns up to count contacts sorted ascending by distance to
// target.
func (rt *RoutingTable) Closest(target *KademliaID, count int) []Contact {
	rt.mu.RLock()
	defer rt.mu.RUnlock()

	var candidates ContactCandidates
	idx := rt.bucketIndex(target)
	candidates.Append(rt.buckets[idx].contactsWithDistance(target))

	for i := 1; (idx-i >= 0 || idx+i < len(rt.buckets)) && candidates.Len() < count; i++ {
		if idx-i >= 0 {
			candidates.Append(rt.buckets[idx-i].contactsWithDistance(target))
		}
		if idx+i < len(rt.buckets) {
			candidates.Append(rt.buckets[idx+i].contactsWithDistance(target))
		}
	}

	candidates.Sort()
	return candidates.GetContacts(count)
}

// Remove drops id from the table if present.
func (rt *RoutingTable) Remove(id *KademliaID) {
	idx := rt.bucketIndex(id)
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.buckets[idx].remove(id) && rt.metrics != nil {
		rt.metrics.RoutingTableSize.Dec()
	}
}

// SnapshotBucket returns a copy of bucket i, for maintenance.
func (rt *RoutingTable) SnapshotBucket(i int) []Contact {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	if i < 0 || i >= len(rt.buckets) {
		return nil
	}
	return rt.buckets[i].snapshot()
}

// NumBuckets is the fixed number of buckets (160, one per possible
// common-prefix length).
func (rt *RoutingTable) NumBuckets() int { return len(rt.buckets) }

// BucketRange returns the inclusive [lo, hi] KademliaID range covered by
// bucket i: every ID whose common-prefix length with the local ID is
// exactly i. Used by the refresh maintenance task to pick a random target
// within a stale bucket.
func (rt *RoutingTable) BucketRange(i int) (lo, hi *KademliaID) {
	var loID, hiID KademliaID
	copy(loID[:], rt.me.ID[:])
	copy(hiID[:], rt.me.ID[:])
	byteIdx, bitIdx := i/8, i%8
	bitMask := byte(0x80 >> uint(bitIdx))
	// Flip bit i (the first differing bit for this bucket), fixing every
	// more-significant bit to match the local ID.
	loID[byteIdx] ^= bitMask
	hiID[byteIdx] ^= bitMask
	for b := bitIdx + 1; b < 8; b++ {
		loID[byteIdx] &^= 0x80 >> uint(b)
		hiID[byteIdx] |= 0x80 >> uint(b)
	}
	for j := byteIdx + 1; j < IDLength; j++ {
		loID[j] = 0
		hiID[j] = 0xFF
	}
	return &loID, &hiID
}

// RandomIDInBucket returns a uniformly random ID whose common-prefix length
// with the local ID is exactly i — i.e. an ID that falls in bucket i's
// range. The refresh maintenance task uses this as a lookup target to
// repopulate a stale bucket.
func (rt *RoutingTable) RandomIDInBucket(i int) *KademliaID {
	rt.mu.RLock()
	me := rt.me.ID
	rt.mu.RUnlock()

	id := NewRandomKademliaID()
	byteIdx, bitIdx := i/8, i%8

	for b := 0; b < byteIdx; b++ {
		id[b] = me[b]
	}
	if byteIdx < IDLength {
		var prefixMask byte
		if bitIdx > 0 {
			prefixMask = byte(0xFF) << uint(8-bitIdx)
		}
		id[byteIdx] = (me[byteIdx] & prefixMask) | (id[byteIdx] &^ prefixMask)

		bitMask := byte(0x80 >> uint(bitIdx))
		id[byteIdx] = (id[byteIdx] &^ bitMask) | (^me[byteIdx] & bitMask)
	}
	return id
}
