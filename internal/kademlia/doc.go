// Package kademlia implements a Kademlia-style distributed hash table node:
// a prefix-bucketed routing table, a UDP wire protocol, an RPC service, and
// an α-parallel iterative lookup engine, coordinated by Node.
//
// Layout
//
//	id.go             160-bit KademliaID, XOR distance, common-prefix length
//	contact.go        Contact value type, candidate sorting by distance
//	bucket.go         single LRU k-bucket with a liveness-probe replacement slot
//	routingtable.go   160 prefix-indexed buckets, Observe/Closest/eviction
//	codec.go          PING/FIND_NODE/STORE/FIND_VALUE wire framing
//	transport.go      UDP socket, request/response correlation, retries
//	rpc.go            answers inbound requests from local state
//	lookup.go         iterative FIND_NODE / FIND_VALUE
//	store.go          local key-value map
//	config.go         tunables and their defaults
//	metrics.go         Prometheus collectors
//	coordinator.go    Node: wires the above together, bootstrap, put/get, refresh
//
// Node identity
//
// A node's ID is derived once, deterministically, from its listen address
// (DeriveID), so restarting a node with the same address rejoins the same
// point in the ID space. Stored values share the same 160-bit space: a
// value's key is the truncated SHA-256 digest of its content.
//
// Wiring
//
// RoutingTable and Transport would otherwise need to reference each other
// (the table pings contacts through the transport; the transport learns
// contacts for the table), so neither imports the other. Node injects the
// connection with narrow function-valued callbacks: RoutingTable.SetPingFunc
// and Transport.SetObserver / SetRequestHandler. The RPC service and lookup
// engine depend downward on RoutingTable, Store, and Transport only.
//
// Bootstrapping and maintenance
//
// Bootstrap PINGs each seed to learn its ID, seeds the routing table, and
// runs a self-lookup so the immediate neighborhood is populated before the
// first refresh tick. A background loop then periodically checks every
// bucket for staleness and, when one has gone quiet, looks up a random ID in
// that bucket's range to refresh it.
package kademlia
