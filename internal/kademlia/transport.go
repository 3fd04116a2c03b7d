package kademlia

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// pendingEntry is one outstanding request awaiting correlation by
// request_id.
type pendingEntry struct {
	ch chan Message
}

// Transport owns a single UDP socket: the receive loop, outbound send, and
// the pending-request table that matches responses to requests by
// request_id.
type Transport struct {
	conn *net.UDPConn
	me   Contact

	mu      sync.Mutex
	pending map[uuid.UUID]pendingEntry

	// observer is called with the sender of every inbound request or
	// response that decodes. It is routingTable.Observe, injected by the
	// coordinator to avoid a routing-table/transport import cycle.
	observer func(Contact)

	// requestHandler answers an inbound request. It is the RPC service's
	// Handle method, injected by the coordinator for the same reason.
	requestHandler func(from *net.UDPAddr, msg Message) Message

	log     *zap.Logger
	metrics *Metrics

	closed    chan struct{}
	closeOnce sync.Once
}

// NewTransport binds addr and starts the receive loop. me's ID is used as
// the sender_id on every outbound message.
func NewTransport(addr string, me Contact, log *zap.Logger, metrics *Metrics) (*Transport, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("kademlia: resolve %q: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("kademlia: bind %q: %w", addr, err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	t := &Transport{
		conn:    conn,
		me:      me,
		pending: make(map[uuid.UUID]pendingEntry),
		log:     log,
		metrics: metrics,
		closed:  make(chan struct{}),
	}
	go t.receiveLoop()
	return t, nil
}

// LocalAddr returns the bound UDP address.
func (t *Transport) LocalAddr() net.Addr { return t.conn.LocalAddr() }

// SetObserver wires the callback invoked with every contact learned from
// inbound traffic.
func (t *Transport) SetObserver(fn func(Contact)) { t.observer = fn }

// SetRequestHandler wires the callback that answers inbound requests.
func (t *Transport) SetRequestHandler(fn func(from *net.UDPAddr, msg Message) Message) {
	t.requestHandler = fn
}

// Close stops the receive loop and releases the socket.
func (t *Transport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		err = t.conn.Close()
		<-t.closed
	})
	return err
}

func (t *Transport) receiveLoop() {
	defer close(t.closed)
	buf := make([]byte, 64*1024)
	for {
		n, src, err := t.conn.ReadFromUDP(buf)
		if err != nil {
			// A closed socket (shutdown) ends the loop; any other read error
			// is logged and the loop keeps reading. A bind failure is fatal
			// and surfaces earlier, from NewTransport; this path only runs
			// post-bind.
			if errors.Is(err, net.ErrClosed) {
				return
			}
			t.log.Warn("udp read error", zap.Error(err))
			continue
		}
		datagram := make([]byte, n)
		copy(datagram, buf[:n])
		// Dispatch each datagram on its own goroutine so a slow handler (a
		// routing-table probe, a store lookup) never stalls the next
		// ReadFromUDP.
		go t.handleDatagram(datagram, src)
	}
}

func (t *Transport) handleDatagram(datagram []byte, src *net.UDPAddr) {
	defer func() {
		if r := recover(); r != nil {
			t.log.Error("panic handling datagram", zap.Any("panic", r), zap.String("from", src.String()))
		}
	}()

	msg, err := Decode(datagram)
	if err != nil {
		if t.metrics != nil {
			t.metrics.MalformedMessages.Inc()
		}
		t.log.Debug("dropping malformed datagram", zap.String("from", src.String()), zap.Error(err))
		return
	}
	if t.metrics != nil {
		t.metrics.MessagesReceived.WithLabelValues(string(msg.Kind)).Inc()
	}

	sender := Contact{ID: msg.SenderID, Address: src.String(), LastSeen: time.Now()}
	if t.observer != nil {
		t.observer(sender)
	}

	if msg.Kind.IsResponse() {
		t.mu.Lock()
		entry, ok := t.pending[msg.RequestID]
		if ok {
			delete(t.pending, msg.RequestID)
		}
		t.mu.Unlock()
		if !ok {
			return // no waiter (already timed out, or a duplicate) — drop
		}
		select {
		case entry.ch <- msg:
		default: // first matching response already delivered; drop duplicate
		}
		return
	}

	if t.requestHandler == nil {
		return
	}
	resp := t.requestHandler(src, msg)
	if resp.Kind == "" {
		return
	}
	if err := t.sendTo(src, resp); err != nil {
		t.log.Debug("failed to send response", zap.String("to", src.String()), zap.Error(err))
	}
}

func (t *Transport) sendTo(addr *net.UDPAddr, msg Message) error {
	msg.SenderID = t.me.ID
	b, err := msg.Encode()
	if err != nil {
		return err
	}
	if t.metrics != nil {
		t.metrics.MessagesSent.WithLabelValues(string(msg.Kind)).Inc()
	}
	_, err = t.conn.WriteToUDP(b, addr)
	if err != nil && t.metrics != nil {
		t.metrics.PeerUnreachable.Inc()
	}
	return err
}

// Send transmits a request to contact and blocks until a matching response
// arrives, ctx is done, or ctx's deadline elapses — whichever comes first.
// request_id is freshly allocated from a cryptographically secure source
// (uuid.NewRandom, backed by crypto/rand) so it cannot be guessed.
func (t *Transport) Send(ctx context.Context, contact Contact, msg Message) (Message, error) {
	addr, err := net.ResolveUDPAddr("udp", contact.Address)
	if err != nil {
		return Message{}, fmt.Errorf("%w: resolve %q: %v", ErrPeerUnreachable, contact.Address, err)
	}
	reqID, err := uuid.NewRandom()
	if err != nil {
		return Message{}, fmt.Errorf("kademlia: generate request id: %w", err)
	}
	msg.RequestID = reqID

	ch := make(chan Message, 1)
	t.mu.Lock()
	t.pending[reqID] = pendingEntry{ch: ch}
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		delete(t.pending, reqID)
		t.mu.Unlock()
	}()

	if err := t.sendTo(addr, msg); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrPeerUnreachable, err)
	}

	select {
	case resp := <-ch:
		return resp, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.Canceled) {
			return Message{}, ErrCancelled
		}
		if t.metrics != nil {
			t.metrics.RequestTimeouts.Inc()
		}
		return Message{}, ErrTimeout
	}
}

// SendWithRetries wraps Send, retrying up to maxRetries times (in addition
// to the first attempt) after any failure other than ErrCancelled. It
// resolves when a response arrives, the attempt budget is exhausted (with
// the last attempt's error), or ctx is done (ErrCancelled if ctx was
// cancelled, ErrTimeout if its deadline passed).
func (t *Transport) SendWithRetries(ctx context.Context, contact Contact, msg Message, perAttemptTimeout time.Duration, maxRetries int) (Message, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			if errors.Is(err, context.Canceled) {
				return Message{}, ErrCancelled
			}
			return Message{}, ErrTimeout
		}
		attemptCtx, cancel := context.WithTimeout(ctx, perAttemptTimeout)
		resp, err := t.Send(attemptCtx, contact, msg)
		cancel()
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if errors.Is(err, ErrCancelled) {
			return Message{}, err
		}
	}
	return Message{}, lastErr
}

// SendResponse transmits a response message (echoing the request's
// request_id) without waiting for anything further.
func (t *Transport) SendResponse(contact Contact, msg Message) error {
	addr, err := net.ResolveUDPAddr("udp", contact.Address)
	if err != nil {
		return fmt.Errorf("%w: resolve %q: %v", ErrPeerUnreachable, contact.Address, err)
	}
	return t.sendTo(addr, msg)
}
