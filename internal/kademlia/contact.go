package kademlia

import (
	"fmt"
	"sort"
	"time"
)

// Contact is a peer's (id, ip, port, last_seen) tuple as held by the routing
// table. Contacts are value objects: copying one is cheap and never
// observably shared.
type Contact struct {
	ID       *KademliaID
	Address  string // "ip:port"
	LastSeen time.Time

	distance *KademliaID // scratch field populated by ContactCandidates, not part of identity
}

// NewContact builds a Contact with LastSeen set to now.
func NewContact(id *KademliaID, address string) Contact {
	return Contact{ID: id, Address: address, LastSeen: time.Now()}
}

// Equals reports whether two contacts name the same peer. Two contacts are
// equal iff their IDs are equal.
func (c Contact) Equals(other Contact) bool {
	if c.ID == nil || other.ID == nil {
		return c.ID == other.ID
	}
	return c.ID.Equals(other.ID)
}

// Alive reports whether the contact was seen within window of now.
func (c Contact) Alive(now time.Time, window time.Duration) bool {
	return now.Sub(c.LastSeen) <= window
}

// CalcDistance stores the XOR distance between c's ID and target in c's
// scratch distance field, for ContactCandidates.Sort.
func (c *Contact) CalcDistance(target *KademliaID) {
	c.distance = c.ID.CalcDistance(target)
}

// String renders the contact for logs and tests.
func (c Contact) String() string {
	idHex := ""
	if c.ID != nil {
		idHex = c.ID.String()
	}
	return fmt.Sprintf("%s (%s)", idHex, c.Address)
}

// ContactCandidates accumulates contacts gathered from several buckets during
// a closest() query and sorts them by distance to a fixed target.
type ContactCandidates struct {
	contacts []Contact
}

// Append adds more contacts to the candidate set. Each contact must already
// have its distance field populated via Contact.CalcDistance.
func (cc *ContactCandidates) Append(contacts []Contact) {
	cc.contacts = append(cc.contacts, contacts...)
}

// GetContacts returns the count closest contacts collected so far. Sort must
// be called first.
func (cc *ContactCandidates) GetContacts(count int) []Contact {
	if count > len(cc.contacts) {
		count = len(cc.contacts)
	}
	out := make([]Contact, count)
	copy(out, cc.contacts[:count])
	return out
}

// Sort orders the candidate set ascending by distance, breaking ties by ID.
func (cc *ContactCandidates) Sort() {
	sort.SliceStable(cc.contacts, func(i, j int) bool {
		a, b := cc.contacts[i], cc.contacts[j]
		if a.distance == nil || b.distance == nil {
			return false
		}
		if !(*a.distance == *b.distance) {
			return a.distance.Less(b.distance)
		}
		return a.ID.Less(b.ID)
	})
}

// Len reports how many contacts have been collected.
func (cc *ContactCandidates) Len() int {
	return len(cc.contacts)
}
