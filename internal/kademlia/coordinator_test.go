package kademlia

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func startTestNode(t *testing.T, addr string) *Node {
	t.Helper()
	cfg := Config{
		ListenAddr:     addr,
		K:              20,
		Alpha:          3,
		RequestTimeout: 500 * time.Millisecond,
		RefreshInterval: time.Hour, // disabled for the test's lifetime
		MaxRetries:     1,
	}
	node, err := NewNode(cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = node.Close() })
	return node
}

func TestNode_BootstrapAndPutGet_AcrossThreeNodes(t *testing.T) {
	n1 := startTestNode(t, "127.0.0.1:19101")
	n2 := startTestNode(t, "127.0.0.1:19102")
	n3 := startTestNode(t, "127.0.0.1:19103")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, n2.Bootstrap(ctx, []string{n1.Addr()}))
	require.NoError(t, n3.Bootstrap(ctx, []string{n1.Addr()}))

	key, stored, err := n3.Put(ctx, []byte("hello network"))
	require.NoError(t, err)
	assert.Greater(t, stored, 0)

	value, err := n1.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "hello network", string(value))
}

func TestNode_Get_LocalHit(t *testing.T) {
	n1 := startTestNode(t, "127.0.0.1:19104")
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	key, _, err := n1.Put(ctx, []byte("local value"))
	require.NoError(t, err)

	value, err := n1.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "local value", string(value))
}

func TestNode_Get_NotFound(t *testing.T) {
	n1 := startTestNode(t, "127.0.0.1:19105")
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := n1.Get(ctx, DeriveID("nonexistent").String())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNode_Bootstrap_FailsWithNoReachableSeed(t *testing.T) {
	n1 := startTestNode(t, "127.0.0.1:19106")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := n1.Bootstrap(ctx, []string{"127.0.0.1:1"})
	assert.ErrorIs(t, err, ErrPeerUnreachable)
}
