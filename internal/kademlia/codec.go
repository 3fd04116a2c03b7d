package kademlia

import (
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Kind identifies one of the eight PING/FIND_NODE/STORE/FIND_VALUE
// request/response message shapes.
type Kind string

const (
	KindPing              Kind = "PING"
	KindPingResponse      Kind = "PING_RESPONSE"
	KindFindNode          Kind = "FIND_NODE"
	KindFindNodeResponse  Kind = "FIND_NODE_RESPONSE"
	KindStore             Kind = "STORE"
	KindStoreResponse     Kind = "STORE_RESPONSE"
	KindFindValue         Kind = "FIND_VALUE"
	KindFindValueResponse Kind = "FIND_VALUE_RESPONSE"
)

// IsResponse reports whether k is one of the four *_RESPONSE kinds.
func (k Kind) IsResponse() bool {
	switch k {
	case KindPingResponse, KindFindNodeResponse, KindStoreResponse, KindFindValueResponse:
		return true
	}
	return false
}

// MaxDatagramSize is the largest datagram the codec guarantees to parse.
// Messages larger than this are malformed.
const MaxDatagramSize = 8192

// Message is a decoded wire frame: a kind, the sender's ID, a correlation
// token, and a small string payload keyed by short names (target_id,
// nodes, key, value, ok).
type Message struct {
	Kind      Kind
	SenderID  *KademliaID
	RequestID uuid.UUID
	Payload   map[string]string
}

// forbiddenInPayload reports whether s contains a byte the wire framing
// cannot carry: '|' (the field separator) or '\n' (so a stray newline can
// never desynchronize a stream-oriented relay of these datagrams).
func forbiddenInPayload(s string) bool {
	return strings.ContainsAny(s, "|\n")
}

// Encode serializes m as `kind|sender_id|request_id|n|k1|v1|...|kn|vn|`.
// Payload keys are emitted in sorted order so Encode is deterministic and
// decode(encode(m)) == m.
func (m Message) Encode() ([]byte, error) {
	if m.SenderID == nil {
		return nil, fmt.Errorf("%w: message has no sender_id", ErrMalformed)
	}
	keys := make([]string, 0, len(m.Payload))
	for k := range m.Payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString(string(m.Kind))
	sb.WriteByte('|')
	sb.WriteString(m.SenderID.String())
	sb.WriteByte('|')
	sb.WriteString(m.RequestID.String())
	sb.WriteByte('|')
	sb.WriteString(strconv.Itoa(len(keys)))
	sb.WriteByte('|')
	for _, k := range keys {
		v := m.Payload[k]
		if forbiddenInPayload(k) || forbiddenInPayload(v) {
			return nil, fmt.Errorf("%w: payload key/value contains a forbidden byte", ErrMalformed)
		}
		sb.WriteString(k)
		sb.WriteByte('|')
		sb.WriteString(v)
		sb.WriteByte('|')
	}
	out := sb.String()
	if len(out) > MaxDatagramSize {
		return nil, fmt.Errorf("%w: encoded message is %d bytes, max %d", ErrMalformed, len(out), MaxDatagramSize)
	}
	return []byte(out), nil
}

// Decode parses a datagram produced by Encode. Any structural problem
// (too few fields, bad hex, bad uuid, mismatched payload count) yields
// ErrMalformed and nothing else; the caller logs and drops the datagram.
func Decode(data []byte) (Message, error) {
	if len(data) == 0 {
		return Message{}, fmt.Errorf("%w: empty datagram", ErrMalformed)
	}
	if len(data) > MaxDatagramSize {
		return Message{}, fmt.Errorf("%w: datagram is %d bytes, max %d", ErrMalformed, len(data), MaxDatagramSize)
	}
	s := string(data)
	if !strings.HasSuffix(s, "|") {
		return Message{}, fmt.Errorf("%w: missing trailing delimiter", ErrMalformed)
	}
	parts := strings.Split(s[:len(s)-1], "|")
	if len(parts) < 4 {
		return Message{}, fmt.Errorf("%w: expected at least 4 fields, got %d", ErrMalformed, len(parts))
	}

	kind := Kind(parts[0])
	senderID, err := NewKademliaID(parts[1])
	if err != nil {
		return Message{}, fmt.Errorf("%w: bad sender_id: %v", ErrMalformed, err)
	}
	requestID, err := uuid.Parse(parts[2])
	if err != nil {
		return Message{}, fmt.Errorf("%w: bad request_id: %v", ErrMalformed, err)
	}
	n, err := strconv.Atoi(parts[3])
	if err != nil || n < 0 {
		return Message{}, fmt.Errorf("%w: bad payload count", ErrMalformed)
	}
	rest := parts[4:]
	if len(rest) != 2*n {
		return Message{}, fmt.Errorf("%w: payload count %d does not match %d fields", ErrMalformed, n, len(rest))
	}
	payload := make(map[string]string, n)
	for i := 0; i < n; i++ {
		payload[rest[2*i]] = rest[2*i+1]
	}

	return Message{Kind: kind, SenderID: senderID, RequestID: requestID, Payload: payload}, nil
}

// EncodeNodes renders contacts as the comma-separated "ip:port:id" triples
// used in FIND_NODE_RESPONSE/FIND_VALUE_RESPONSE payloads, so a peer never
// has to re-derive an ID from a possibly-NATted address.
func EncodeNodes(contacts []Contact) string {
	parts := make([]string, 0, len(contacts))
	for _, c := range contacts {
		parts = append(parts, fmt.Sprintf("%s:%s", c.Address, c.ID.String()))
	}
	return strings.Join(parts, ",")
}

// DecodeNodes parses the "ip:port:id,ip:port:id,..." format produced by
// EncodeNodes. Malformed entries are skipped rather than failing the whole
// batch, matching the RPC service's drop-and-continue error policy.
func DecodeNodes(s string) []Contact {
	if s == "" {
		return nil
	}
	entries := strings.Split(s, ",")
	out := make([]Contact, 0, len(entries))
	for _, e := range entries {
		host, portStr, idHex, ok := splitTriple(e)
		if !ok {
			continue
		}
		port, err := strconv.Atoi(portStr)
		if err != nil || port <= 0 || port > 65535 {
			continue
		}
		id, err := NewKademliaID(idHex)
		if err != nil {
			continue
		}
		out = append(out, Contact{ID: id, Address: net.JoinHostPort(host, portStr)})
	}
	return out
}

// splitTriple splits "ip:port:id" into its three components. IPv6 hosts are
// not in scope (the teacher and the rest of the corpus address peers by
// IPv4 "ip:port" strings throughout), so a simple two-colon split suffices.
func splitTriple(s string) (host, port, id string, ok bool) {
	first := strings.IndexByte(s, ':')
	if first < 0 {
		return "", "", "", false
	}
	last := strings.LastIndexByte(s, ':')
	if last == first {
		return "", "", "", false
	}
	return s[:first], s[first+1 : last], s[last+1:], true
}
