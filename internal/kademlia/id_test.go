package kademlia

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewKademliaID_RejectsBadInput(t *testing.T) {
	cases := []string{
		"",
		"not-hex-at-all-not-hex-at-all-not-hex-x",
		strings.Repeat("ab", 19), // too short
		strings.Repeat("ab", 21), // too long
	}
	for _, c := range cases {
		_, err := NewKademliaID(c)
		assert.Error(t, err, "input %q should be rejected", c)
	}
}

func TestNewKademliaID_RoundTrip(t *testing.T) {
	hex := strings.Repeat("ab", IDLength)
	id, err := NewKademliaID(hex)
	require.NoError(t, err)
	assert.Equal(t, hex, id.String())
}

func TestKademliaID_Equals(t *testing.T) {
	a := MustNewKademliaID(strings.Repeat("11", IDLength))
	b := MustNewKademliaID(strings.Repeat("11", IDLength))
	c := MustNewKademliaID(strings.Repeat("22", IDLength))
	assert.True(t, a.Equals(b))
	assert.False(t, a.Equals(c))
}

func TestKademliaID_CalcDistance_XORProperties(t *testing.T) {
	a := NewRandomKademliaID()
	b := NewRandomKademliaID()

	// Self-distance is zero.
	zero := a.CalcDistance(a)
	for _, bt := range zero {
		assert.Equal(t, byte(0), bt)
	}

	// XOR is symmetric.
	dab := a.CalcDistance(b)
	dba := b.CalcDistance(a)
	assert.Equal(t, dab, dba)
}

func TestCommonPrefixLen(t *testing.T) {
	a := MustNewKademliaID(strings.Repeat("00", IDLength))
	b := MustNewKademliaID(strings.Repeat("00", IDLength))
	assert.Equal(t, IDLength*8, CommonPrefixLen(a, b))

	c := MustNewKademliaID("80" + strings.Repeat("00", IDLength-1))
	assert.Equal(t, 0, CommonPrefixLen(a, c))

	d := MustNewKademliaID("40" + strings.Repeat("00", IDLength-1))
	assert.Equal(t, 1, CommonPrefixLen(a, d))
}

func TestLessByDistance(t *testing.T) {
	target := MustNewKademliaID(strings.Repeat("00", IDLength))
	near := MustNewKademliaID("01" + strings.Repeat("00", IDLength-1))
	far := MustNewKademliaID("ff" + strings.Repeat("00", IDLength-1))
	assert.True(t, LessByDistance(near, far, target))
	assert.False(t, LessByDistance(far, near, target))
}

func TestDeriveID_Deterministic(t *testing.T) {
	a := DeriveID("127.0.0.1:9001")
	b := DeriveID("127.0.0.1:9001")
	c := DeriveID("127.0.0.1:9002")
	assert.True(t, a.Equals(b))
	assert.False(t, a.Equals(c))
}
