package kademlia

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// shortlistEntry tracks one candidate's progress through an iterative
// lookup: whether it has already answered, is currently being queried, or
// failed to answer.
type shortlistEntry struct {
	contact  Contact
	queried  bool
	inFlight bool
	failed   bool
}

// Lookup runs the iterative node/value lookups: repeated
// rounds of up to alpha concurrent RPCs against the best-k known contacts,
// merging newly learned peers into the shortlist, until no unqueried
// candidate remains among the current k closest.
type Lookup struct {
	me        Contact
	rt        *RoutingTable
	transport *Transport
	k         int
	alpha     int
	timeout   time.Duration
	log       *zap.Logger
}

// NewLookup builds a lookup engine bound to rt and transport.
func NewLookup(me Contact, rt *RoutingTable, transport *Transport, k, alpha int, requestTimeout time.Duration, log *zap.Logger) *Lookup {
	if k <= 0 {
		k = 20
	}
	if alpha <= 0 {
		alpha = 3
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Lookup{me: me, rt: rt, transport: transport, k: k, alpha: alpha, timeout: requestTimeout, log: log}
}

// FindNode returns up to k contacts closest to target known anywhere in the
// network the lookup could reach.
func (l *Lookup) FindNode(ctx context.Context, target *KademliaID) []Contact {
	_, closest, _ := l.run(ctx, target, false, "")
	return closest
}

// FindValue returns the value stored under key, if the lookup reaches a node
// holding it; otherwise it returns ErrNotFound along with the k closest
// contacts discovered, so the caller can optionally cache-forward the value
// to them (not done automatically — caching is an Open Question left to the
// coordinator).
func (l *Lookup) FindValue(ctx context.Context, key string) ([]byte, []Contact, error) {
	target, err := NewKademliaID(key)
	if err != nil {
		return nil, nil, err
	}
	value, closest, found := l.run(ctx, target, true, key)
	if !found {
		return nil, closest, ErrNotFound
	}
	return value, closest, nil
}

type roundResult struct {
	id      KademliaID
	nodes   []Contact
	value   []byte
	hasValue bool
	err     error
}

// run drives the shared iterative procedure. When wantValue is set, each RPC
// is a FIND_VALUE for key instead of a FIND_NODE for target; the first value
// any peer returns ends the lookup early.
func (l *Lookup) run(ctx context.Context, target *KademliaID, wantValue bool, key string) (value []byte, closest []Contact, found bool) {
	var mu sync.Mutex
	entries := make(map[KademliaID]*shortlistEntry)

	addCandidate := func(c Contact) bool {
		if c.ID == nil || l.me.ID.Equals(c.ID) {
			return false
		}
		if _, exists := entries[*c.ID]; exists {
			return false
		}
		entries[*c.ID] = &shortlistEntry{contact: c}
		return true
	}

	mu.Lock()
	for _, c := range l.rt.Closest(target, l.k) {
		addCandidate(c)
	}
	mu.Unlock()

	for {
		mu.Lock()
		picked := l.pickRoundCandidates(entries, target)
		for _, e := range picked {
			e.inFlight = true
		}
		mu.Unlock()

		if len(picked) == 0 {
			break
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(l.alpha)
		results := make(chan roundResult, len(picked))
		for _, e := range picked {
			e := e
			g.Go(func() error {
				results <- l.queryOne(gctx, e.contact, target, wantValue, key)
				return nil
			})
		}
		_ = g.Wait()
		close(results)

		var learned []Contact
		mu.Lock()
		for res := range results {
			e, ok := entries[res.id]
			if !ok {
				continue
			}
			e.inFlight = false
			if res.err != nil {
				e.failed = true
				continue
			}
			e.queried = true
			for _, n := range res.nodes {
				if addCandidate(n) {
					learned = append(learned, n)
				}
			}
			if res.hasValue && !found {
				found = true
				value = res.value
			}
		}
		earlyExit := wantValue && found
		mu.Unlock()

		// Newly learned contacts go into the routing table outside the
		// lookup's lock, since Observe may probe a full bucket's head.
		for _, c := range learned {
			l.rt.Observe(c)
		}

		if earlyExit {
			break
		}
	}

	mu.Lock()
	defer mu.Unlock()
	closest = l.bestK(entries, target)
	return value, closest, found
}

// pickRoundCandidates selects up to alpha unqueried, non-in-flight
// contacts from the current best-k (the k closest non-failed contacts),
// ordered by distance to target. Callers must hold the caller's mutex.
func (l *Lookup) pickRoundCandidates(entries map[KademliaID]*shortlistEntry, target *KademliaID) []*shortlistEntry {
	best := l.sortedEntries(entries, target)
	picked := make([]*shortlistEntry, 0, l.alpha)
	rank := 0
	for _, e := range best {
		if e.failed {
			continue
		}
		rank++
		if rank > l.k {
			break
		}
		if e.queried || e.inFlight {
			continue
		}
		picked = append(picked, e)
		if len(picked) == l.alpha {
			break
		}
	}
	return picked
}

// bestK returns the k closest successfully-queried contacts known to the
// lookup, sorted by distance. Contacts that failed or were never queried
// are left out, so the result may be empty.
func (l *Lookup) bestK(entries map[KademliaID]*shortlistEntry, target *KademliaID) []Contact {
	sorted := l.sortedEntries(entries, target)
	out := make([]Contact, 0, l.k)
	for _, e := range sorted {
		if e.failed || !e.queried {
			continue
		}
		out = append(out, e.contact)
		if len(out) == l.k {
			break
		}
	}
	return out
}

func (l *Lookup) sortedEntries(entries map[KademliaID]*shortlistEntry, target *KademliaID) []*shortlistEntry {
	out := make([]*shortlistEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, e)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && LessByDistance(out[j].contact.ID, out[j-1].contact.ID, target); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// queryOne sends a single FIND_NODE or FIND_VALUE RPC and returns its
// outcome as a roundResult.
func (l *Lookup) queryOne(ctx context.Context, contact Contact, target *KademliaID, wantValue bool, key string) roundResult {
	reqCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	var req Message
	if wantValue {
		req = Message{Kind: KindFindValue, Payload: map[string]string{"key": key}}
	} else {
		req = Message{Kind: KindFindNode, Payload: map[string]string{"target_id": target.String()}}
	}

	resp, err := l.transport.Send(reqCtx, contact, req)
	if err != nil {
		l.log.Debug("lookup RPC failed", zap.String("peer", contact.String()), zap.Error(err))
		return roundResult{id: *contact.ID, err: err}
	}

	res := roundResult{id: *contact.ID}
	if v, ok := resp.Payload["value"]; ok {
		res.hasValue = true
		res.value = []byte(v)
		return res
	}
	res.nodes = DecodeNodes(resp.Payload["nodes"])
	return res
}
