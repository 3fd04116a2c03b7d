package kademlia

import "container/list"

// bucket is a single k-bucket: an LRU list capped at capacity contacts, most
// recently seen at the tail, plus a single replacement-candidate slot held
// while a liveness probe of the head is in flight.
type bucket struct {
	list     *list.List
	capacity int
	repl     *Contact
}

func newBucket(capacity int) *bucket {
	return &bucket{list: list.New(), capacity: capacity}
}

// Len returns the number of contacts currently in the bucket.
func (b *bucket) Len() int { return b.list.Len() }

func (b *bucket) find(id *KademliaID) *list.Element {
	for e := b.list.Front(); e != nil; e = e.Next() {
		if e.Value.(Contact).ID.Equals(id) {
			return e
		}
	}
	return nil
}

// touch moves an existing contact to the tail (most-recently-seen) and
// refreshes it to c (picking up the new LastSeen), or reports false if the
// contact isn't present.
func (b *bucket) touch(c Contact) bool {
	e := b.find(c.ID)
	if e == nil {
		return false
	}
	b.list.Remove(e)
	b.list.PushBack(c)
	return true
}

// appendNew appends a brand-new contact at the tail, iff there is room.
func (b *bucket) appendNew(c Contact) bool {
	if b.list.Len() >= b.capacity {
		return false
	}
	b.list.PushBack(c)
	return true
}

// head returns the least-recently-seen contact (the front of the list), the
// liveness-probe target when the bucket is full.
func (b *bucket) head() (Contact, bool) {
	e := b.list.Front()
	if e == nil {
		return Contact{}, false
	}
	return e.Value.(Contact), true
}

// promoteHeadToTail moves the contact identified by id to the tail after it
// answers a liveness probe.
func (b *bucket) promoteHeadToTail(id *KademliaID) {
	if e := b.find(id); e != nil {
		b.list.MoveToBack(e)
	}
}

// evictHeadAndAppend removes the contact identified by id and appends
// replacement at the tail.
func (b *bucket) evictHeadAndAppend(id *KademliaID, replacement Contact) {
	if e := b.find(id); e != nil {
		b.list.Remove(e)
	}
	b.list.PushBack(replacement)
}

// setReplacement stores c as the pending replacement candidate if the slot
// is empty. If a candidate is already held, the newer one is discarded.
func (b *bucket) setReplacement(c Contact) {
	if b.repl != nil {
		return
	}
	cp := c
	b.repl = &cp
}

// takeReplacement returns and clears the held replacement candidate, if any.
func (b *bucket) takeReplacement() (Contact, bool) {
	if b.repl == nil {
		return Contact{}, false
	}
	c := *b.repl
	b.repl = nil
	return c, true
}

// remove drops id from the bucket if present, reporting whether it was.
func (b *bucket) remove(id *KademliaID) bool {
	e := b.find(id)
	if e == nil {
		return false
	}
	b.list.Remove(e)
	return true
}

// snapshot returns a copy of every contact in the bucket, LRU (front) first.
func (b *bucket) snapshot() []Contact {
	out := make([]Contact, 0, b.list.Len())
	for e := b.list.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(Contact))
	}
	return out
}

// contactsWithDistance returns a copy of every contact with its distance to
// target precomputed, ready for a ContactCandidates.Append.
func (b *bucket) contactsWithDistance(target *KademliaID) []Contact {
	out := make([]Contact, 0, b.list.Len())
	for e := b.list.Front(); e != nil; e = e.Next() {
		c := e.Value.(Contact)
		c.CalcDistance(target)
		out = append(out, c)
	}
	return out
}
