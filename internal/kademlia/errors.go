package kademlia

import "errors"

// Sentinel errors surfaced by the transport, RPC service, and lookup engine.
// Callers should compare against these with errors.Is.
var (
	// ErrMalformed is returned by the codec when a datagram cannot be parsed.
	// The transport logs it, increments a metric, and drops the datagram; it
	// is never forwarded to a waiter.
	ErrMalformed = errors.New("kademlia: malformed message")

	// ErrTimeout is returned when no matching response arrived before a
	// request's deadline elapsed.
	ErrTimeout = errors.New("kademlia: request timed out")

	// ErrPeerUnreachable is returned when the outbound send itself failed
	// (e.g. a non-retryable OS error). Callers treat it like ErrTimeout.
	ErrPeerUnreachable = errors.New("kademlia: peer unreachable")

	// ErrCancelled is returned when a caller-supplied context was cancelled
	// before a response arrived.
	ErrCancelled = errors.New("kademlia: request cancelled")

	// ErrNotFound is returned by Node.Get (and Lookup.FindValue) when neither
	// the local store nor the iterative FIND_VALUE lookup produced a value.
	ErrNotFound = errors.New("kademlia: key not found")

	// ErrConfig is returned by Config.Validate for a bad configuration.
	ErrConfig = errors.New("kademlia: invalid configuration")
)
