package kademlia

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRPCService(t *testing.T, k int) (*RPCService, *RoutingTable, *Store) {
	t.Helper()
	me := NewContact(MustNewKademliaID(strings.Repeat("00", IDLength)), "127.0.0.1:9000")
	rt := NewRoutingTable(me, k, zap.NewNop(), nil)
	store := NewStore()
	return NewRPCService(rt, store, k, zap.NewNop()), rt, store
}

func TestRPCService_Ping(t *testing.T) {
	svc, _, _ := newTestRPCService(t, 20)
	reqID := uuid.New()
	resp := svc.Handle(nil, Message{Kind: KindPing, RequestID: reqID, Payload: map[string]string{}})
	assert.Equal(t, KindPingResponse, resp.Kind)
	assert.Equal(t, reqID, resp.RequestID)
}

func TestRPCService_FindNode_ReturnsClosestKnown(t *testing.T) {
	svc, rt, _ := newTestRPCService(t, 20)
	peer := contactN(1)
	rt.Observe(peer)

	target := strings.Repeat("00", IDLength)
	resp := svc.Handle(nil, Message{Kind: KindFindNode, RequestID: uuid.New(), Payload: map[string]string{"target_id": target}})
	require.Equal(t, KindFindNodeResponse, resp.Kind)

	nodes := DecodeNodes(resp.Payload["nodes"])
	require.Len(t, nodes, 1)
	assert.True(t, nodes[0].ID.Equals(peer.ID))
}

func TestRPCService_FindNode_BadTargetIsIgnored(t *testing.T) {
	svc, _, _ := newTestRPCService(t, 20)
	resp := svc.Handle(nil, Message{Kind: KindFindNode, RequestID: uuid.New(), Payload: map[string]string{"target_id": "not-hex"}})
	assert.Equal(t, Kind(""), resp.Kind)
}

func TestRPCService_StoreAndFindValue(t *testing.T) {
	svc, _, store := newTestRPCService(t, 20)
	key := strings.Repeat("ab", IDLength)

	storeResp := svc.Handle(nil, Message{
		Kind:      KindStore,
		RequestID: uuid.New(),
		Payload:   map[string]string{"key": key, "value": "hello"},
	})
	require.Equal(t, KindStoreResponse, storeResp.Kind)
	assert.Equal(t, "1", storeResp.Payload["ok"])

	v, ok := store.Get(key)
	require.True(t, ok)
	assert.Equal(t, "hello", string(v))

	findResp := svc.Handle(nil, Message{Kind: KindFindValue, RequestID: uuid.New(), Payload: map[string]string{"key": key}})
	require.Equal(t, KindFindValueResponse, findResp.Kind)
	assert.Equal(t, "hello", findResp.Payload["value"])
}

func TestRPCService_Store_RejectsMissingFields(t *testing.T) {
	svc, _, _ := newTestRPCService(t, 20)
	resp := svc.Handle(nil, Message{Kind: KindStore, RequestID: uuid.New(), Payload: map[string]string{"key": "k"}})
	assert.Equal(t, "0", resp.Payload["ok"])
}

func TestRPCService_FindValue_MissFallsBackToNodes(t *testing.T) {
	svc, rt, _ := newTestRPCService(t, 20)
	peer := contactN(2)
	rt.Observe(peer)

	key := strings.Repeat("00", IDLength)
	resp := svc.Handle(nil, Message{Kind: KindFindValue, RequestID: uuid.New(), Payload: map[string]string{"key": key}})
	require.Equal(t, KindFindValueResponse, resp.Kind)
	assert.Empty(t, resp.Payload["value"])
	nodes := DecodeNodes(resp.Payload["nodes"])
	assert.Len(t, nodes, 1)
}

func TestRPCService_UnknownKind_NoResponse(t *testing.T) {
	svc, _, _ := newTestRPCService(t, 20)
	resp := svc.Handle(nil, Message{Kind: Kind("BOGUS"), RequestID: uuid.New()})
	assert.Equal(t, Kind(""), resp.Kind)
}
