package kademlia

import (
	"net"

	"go.uber.org/zap"
)

// RPCService answers every inbound request with the matching response,
// consulting only local state (the routing table and the key-value store).
// It never propagates a STORE and never blocks on network I/O.
type RPCService struct {
	rt    *RoutingTable
	store *Store
	k     int
	log   *zap.Logger
}

// NewRPCService builds a handler bound to rt and store, returning up to k
// contacts per FIND_NODE/FIND_VALUE-miss response.
func NewRPCService(rt *RoutingTable, store *Store, k int, log *zap.Logger) *RPCService {
	if log == nil {
		log = zap.NewNop()
	}
	return &RPCService{rt: rt, store: store, k: k, log: log}
}

// Handle dispatches msg to the matching handler and returns the response to
// send, with RequestID already set to msg.RequestID (every response reuses
// the request's correlation token). A zero-value Kind ("") tells the
// transport not to send anything, used for kinds this service does not
// recognize.
func (s *RPCService) Handle(from *net.UDPAddr, msg Message) Message {
	switch msg.Kind {
	case KindPing:
		return s.handlePing(msg)
	case KindFindNode:
		return s.handleFindNode(msg)
	case KindStore:
		return s.handleStore(msg)
	case KindFindValue:
		return s.handleFindValue(msg)
	default:
		s.log.Debug("ignoring request of unknown kind", zap.String("kind", string(msg.Kind)))
		return Message{}
	}
}

func (s *RPCService) handlePing(msg Message) Message {
	return Message{Kind: KindPingResponse, RequestID: msg.RequestID, Payload: map[string]string{}}
}

func (s *RPCService) handleFindNode(msg Message) Message {
	targetHex := msg.Payload["target_id"]
	target, err := NewKademliaID(targetHex)
	if err != nil {
		s.log.Debug("FIND_NODE with bad target_id", zap.String("target_id", targetHex), zap.Error(err))
		return Message{}
	}
	contacts := s.rt.Closest(target, s.k)
	return Message{
		Kind:      KindFindNodeResponse,
		RequestID: msg.RequestID,
		Payload:   map[string]string{"nodes": EncodeNodes(contacts)},
	}
}

func (s *RPCService) handleStore(msg Message) Message {
	key, hasKey := msg.Payload["key"]
	value, hasValue := msg.Payload["value"]
	if !hasKey || !hasValue || key == "" {
		return Message{Kind: KindStoreResponse, RequestID: msg.RequestID, Payload: map[string]string{"ok": "0"}}
	}
	s.store.Put(key, []byte(value))
	return Message{Kind: KindStoreResponse, RequestID: msg.RequestID, Payload: map[string]string{"ok": "1"}}
}

func (s *RPCService) handleFindValue(msg Message) Message {
	key := msg.Payload["key"]
	if value, ok := s.store.Get(key); ok {
		return Message{
			Kind:      KindFindValueResponse,
			RequestID: msg.RequestID,
			Payload:   map[string]string{"value": string(value)},
		}
	}
	target, err := NewKademliaID(key)
	if err != nil {
		// Not a well-formed 160-bit key: we have no value and cannot treat
		// it as an ID to find neighbors of either. Respond with an empty
		// neighbor list rather than silently dropping the request.
		return Message{
			Kind:      KindFindValueResponse,
			RequestID: msg.RequestID,
			Payload:   map[string]string{"nodes": ""},
		}
	}
	contacts := s.rt.Closest(target, s.k)
	return Message{
		Kind:      KindFindValueResponse,
		RequestID: msg.RequestID,
		Payload:   map[string]string{"nodes": EncodeNodes(contacts)},
	}
}
