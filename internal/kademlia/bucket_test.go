package kademlia

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func contactN(n int) Contact {
	hex := fmt.Sprintf("%040x", n)
	return NewContact(MustNewKademliaID(hex), fmt.Sprintf("127.0.0.1:%d", 9000+n))
}

func TestBucket_AppendNew_RespectsCapacity(t *testing.T) {
	b := newBucket(2)
	assert.True(t, b.appendNew(contactN(1)))
	assert.True(t, b.appendNew(contactN(2)))
	assert.False(t, b.appendNew(contactN(3)))
	assert.Equal(t, 2, b.Len())
}

func TestBucket_Touch_MovesToTail(t *testing.T) {
	b := newBucket(3)
	b.appendNew(contactN(1))
	b.appendNew(contactN(2))
	b.appendNew(contactN(3))

	require.True(t, b.touch(contactN(1)))

	head, ok := b.head()
	require.True(t, ok)
	assert.True(t, head.ID.Equals(contactN(2).ID), "after touching contact 1, contact 2 should become the new LRU head")
}

func TestBucket_Touch_ReportsFalseWhenAbsent(t *testing.T) {
	b := newBucket(3)
	b.appendNew(contactN(1))
	assert.False(t, b.touch(contactN(2)))
}

func TestBucket_HeadIsFront_EvictHeadAndAppend(t *testing.T) {
	b := newBucket(2)
	b.appendNew(contactN(1))
	b.appendNew(contactN(2))

	head, ok := b.head()
	require.True(t, ok)
	assert.True(t, head.ID.Equals(contactN(1).ID))

	b.evictHeadAndAppend(head.ID, contactN(3))
	assert.Equal(t, 2, b.Len())
	assert.Nil(t, b.find(contactN(1).ID))
	assert.NotNil(t, b.find(contactN(3).ID))

	newHead, ok := b.head()
	require.True(t, ok)
	assert.True(t, newHead.ID.Equals(contactN(2).ID))
}

func TestBucket_PromoteHeadToTail(t *testing.T) {
	b := newBucket(2)
	b.appendNew(contactN(1))
	b.appendNew(contactN(2))

	b.promoteHeadToTail(contactN(1).ID)

	head, ok := b.head()
	require.True(t, ok)
	assert.True(t, head.ID.Equals(contactN(2).ID))
}

func TestBucket_Replacement_DiscardsNewerWhenOccupied(t *testing.T) {
	b := newBucket(1)
	b.setReplacement(contactN(1))
	b.setReplacement(contactN(2))

	c, ok := b.takeReplacement()
	require.True(t, ok)
	assert.True(t, c.ID.Equals(contactN(1).ID))

	_, ok = b.takeReplacement()
	assert.False(t, ok)
}

func TestBucket_Remove(t *testing.T) {
	b := newBucket(2)
	b.appendNew(contactN(1))
	assert.True(t, b.remove(contactN(1).ID))
	assert.False(t, b.remove(contactN(1).ID))
	assert.Equal(t, 0, b.Len())
}

func TestBucket_ContactsWithDistance(t *testing.T) {
	target := MustNewKademliaID(strings.Repeat("00", IDLength))
	b := newBucket(2)
	b.appendNew(contactN(1))
	out := b.contactsWithDistance(target)
	require.Len(t, out, 1)
	assert.NotNil(t, out[0])
}
