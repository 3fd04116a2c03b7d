package kademlia

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Node ties the routing table, local store, transport, RPC service, and
// lookup engine into a single running DHT participant. It is the type
// the external CLI collaborator drives.
type Node struct {
	cfg Config
	me  Contact

	rt        *RoutingTable
	store     *Store
	transport *Transport
	rpc       *RPCService
	lookup    *Lookup

	log     *zap.Logger
	metrics *Metrics
	httpSrv interface{ Close() error }

	cancelRefresh context.CancelFunc
	wg            sync.WaitGroup
}

// NewNode validates cfg, binds the transport, and wires the routing table,
// RPC service, and lookup engine together. It does not contact any
// bootstrap peer; call Bootstrap for that.
func NewNode(cfg Config, log *zap.Logger) (*Node, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}

	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)

	me := NewContact(DeriveID(cfg.ListenAddr), cfg.ListenAddr)
	rt := NewRoutingTable(me, cfg.K, log, metrics)
	store := NewStore()

	transport, err := NewTransport(cfg.ListenAddr, me, log, metrics)
	if err != nil {
		return nil, err
	}

	rpc := NewRPCService(rt, store, cfg.K, log)
	lookup := NewLookup(me, rt, transport, cfg.K, cfg.Alpha, cfg.RequestTimeout, log)

	n := &Node{
		cfg:       cfg,
		me:        me,
		rt:        rt,
		store:     store,
		transport: transport,
		rpc:       rpc,
		lookup:    lookup,
		log:       log,
		metrics:   metrics,
	}

	transport.SetObserver(rt.Observe)
	transport.SetRequestHandler(rpc.Handle)
	rt.SetPingFunc(n.ping)

	if cfg.MetricsAddr != "" {
		n.httpSrv = Serve(cfg.MetricsAddr, reg)
	}

	ctx, cancel := context.WithCancel(context.Background())
	n.cancelRefresh = cancel
	n.wg.Add(1)
	go n.refreshLoop(ctx)

	log.Info("node started", zap.String("id", me.ID.String()), zap.String("addr", cfg.ListenAddr))
	return n, nil
}

// ID returns the node's 160-bit identifier.
func (n *Node) ID() *KademliaID { return n.me.ID }

// Addr returns the node's dial address.
func (n *Node) Addr() string { return n.me.Address }

func (n *Node) ping(c Contact) bool {
	ctx, cancel := context.WithTimeout(context.Background(), n.cfg.RequestTimeout)
	defer cancel()
	_, err := n.transport.Send(ctx, c, Message{Kind: KindPing, Payload: map[string]string{}})
	return err == nil
}

// Bootstrap contacts each seed in endpoints, learns its identity from the
// PING response, seeds the routing table, and then runs a self-lookup so
// the node's neighborhood fills in immediately rather than waiting for the
// next refresh cycle. It succeeds if at least one seed
// answers.
func (n *Node) Bootstrap(ctx context.Context, endpoints []string) error {
	if len(endpoints) == 0 {
		return nil
	}
	var reached int
	for _, addr := range endpoints {
		reqCtx, cancel := context.WithTimeout(ctx, n.cfg.RequestTimeout)
		resp, err := n.transport.Send(reqCtx, Contact{Address: addr}, Message{Kind: KindPing, Payload: map[string]string{}})
		cancel()
		if err != nil {
			n.log.Warn("bootstrap seed unreachable", zap.String("addr", addr), zap.Error(err))
			continue
		}
		n.rt.Observe(Contact{ID: resp.SenderID, Address: addr, LastSeen: time.Now()})
		reached++
	}
	if reached == 0 {
		return fmt.Errorf("%w: no bootstrap seed answered", ErrPeerUnreachable)
	}
	n.lookup.FindNode(ctx, n.me.ID)

	// Publish self: announce this node's own address under its own ID, so
	// a peer holding only the ID can resolve it to an address.
	if _, _, _, err := n.Store(ctx, n.me.ID.String(), []byte(n.me.Address)); err != nil {
		n.log.Warn("failed to publish self", zap.Error(err))
	}
	return nil
}

// Store writes value under key locally and pushes it to the k nodes closest
// to key, matching the control API's store(key, value) → {ok, partial,
// failed} shape: ok reports whether at least one replica acknowledged,
// partial counts how many did, and failed counts how many did not.
func (n *Node) Store(ctx context.Context, key string, value []byte) (ok bool, partial, failed int, err error) {
	n.store.Put(key, value)

	target, err := NewKademliaID(key)
	if err != nil {
		return false, 0, 0, err
	}
	closest := n.lookup.FindNode(ctx, target)
	for _, c := range closest {
		reqCtx, cancel := context.WithTimeout(ctx, n.cfg.RequestTimeout)
		resp, sendErr := n.transport.Send(reqCtx, c, Message{
			Kind:    KindStore,
			Payload: map[string]string{"key": key, "value": string(value)},
		})
		cancel()
		if sendErr != nil || resp.Payload["ok"] != "1" {
			failed++
			continue
		}
		partial++
	}
	return partial > 0, partial, failed, nil
}

// Put derives the 160-bit key for content (its SHA-256 digest truncated to
// 20 bytes, putting arbitrary values in the same ID space as node IDs) and
// stores it under that key. It is the
// convenience entry point the CLI's "put <text>" command uses; Store is the
// primitive it builds on, for callers that already have a key in hand (the
// "publish self" step uses Store directly with the node's own ID as key).
func (n *Node) Put(ctx context.Context, content []byte) (key string, stored int, err error) {
	keyHex := DeriveID(string(content)).String()
	_, partial, _, err := n.Store(ctx, keyHex, content)
	if err != nil {
		return "", 0, err
	}
	return keyHex, partial, nil
}

// Get resolves key (its hex-encoded 160-bit id) to a value, checking the
// local store before falling back to an iterative FIND_VALUE lookup.
func (n *Node) Get(ctx context.Context, key string) ([]byte, error) {
	if v, ok := n.store.Get(key); ok {
		return v, nil
	}
	value, _, err := n.lookup.FindValue(ctx, key)
	if err != nil {
		return nil, err
	}
	return value, nil
}

// refreshLoop runs the periodic bucket-staleness maintenance task:
// any bucket with no contact seen within the refresh interval gets a
// lookup against a random ID in its range, which both exercises and
// repopulates it.
func (n *Node) refreshLoop(ctx context.Context) {
	defer n.wg.Done()
	ticker := time.NewTicker(n.cfg.RefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.refreshStaleBuckets(ctx)
		}
	}
}

func (n *Node) refreshStaleBuckets(ctx context.Context) {
	now := time.Now()
	for i := 0; i < n.rt.NumBuckets(); i++ {
		contacts := n.rt.SnapshotBucket(i)
		if len(contacts) == 0 {
			continue
		}

		// The head (LRU end) is the bucket's liveness canary: if it has gone
		// quiet longer than LivenessWindow, probe it directly and evict it
		// on failure, independent of whether the bucket as a whole needs a
		// lookup-driven refresh.
		head := contacts[0]
		if !head.Alive(now, n.cfg.LivenessWindow) && !n.ping(head) {
			n.rt.Remove(head.ID)
			n.log.Info("evicted unresponsive bucket head during refresh",
				zap.Int("bucket", i), zap.String("evicted", head.ID.String()))
		}

		fresh := false
		for _, c := range contacts {
			if c.Alive(now, n.cfg.RefreshInterval) {
				fresh = true
				break
			}
		}
		if fresh {
			continue
		}
		target := n.rt.RandomIDInBucket(i)
		n.log.Debug("refreshing stale bucket", zap.Int("bucket", i), zap.String("target", target.String()))
		n.lookup.FindNode(ctx, target)
	}
}

// Close stops the refresh loop, the metrics server (if any), and the
// transport's UDP socket.
func (n *Node) Close() error {
	n.cancelRefresh()
	n.wg.Wait()
	if n.httpSrv != nil {
		_ = n.httpSrv.Close()
	}
	return n.transport.Close()
}
