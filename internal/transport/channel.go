// Package transport maintains the duplex websocket channel to the companion
// agent. It decodes inbound frames and hands them, together with
// connection-state transitions, to a single consumer in arrival order.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nova-companion/nova-go/internal/model/event"
)

// State is the connection lifecycle of the channel.
type State string

const (
	StateConnecting State = "connecting"
	StateOpen       State = "open"
	StateClosed     State = "closed"
)

// ErrNotOpen is reported when a send is attempted while the channel is not
// open. Non-fatal: callers surface it and keep the session alive.
var ErrNotOpen = errors.New("channel not open")

// Notification is one item on the channel's ordered delivery stream.
type Notification interface {
	notification() string
}

// Received wraps a successfully decoded inbound event.
type Received struct {
	Event event.Inbound
}

func (Received) notification() string { return "received" }

// Malformed reports an inbound payload that failed to decode. The payload
// is dropped; the session is unaffected.
type Malformed struct {
	Raw []byte
	Err error
}

func (Malformed) notification() string { return "malformed" }

// StateChanged reports a connection-state transition. Err is set when the
// transition to Closed was caused by a read failure rather than a local
// Close call.
type StateChanged struct {
	State State
	Err   error
}

func (StateChanged) notification() string { return "state" }

// Channel is a message-oriented duplex connection to the agent. The channel
// is owned by the session controller that created it; there are no
// package-level connection handles.
type Channel struct {
	url    string
	dialer *websocket.Dialer
	conn   *websocket.Conn
	stream chan Notification

	open      atomic.Bool
	closed    atomic.Bool
	closeOnce sync.Once
	writeMu   sync.Mutex
}

// New prepares an unconnected channel for the given websocket URL.
func New(url string, handshakeTimeout time.Duration) *Channel {
	if handshakeTimeout <= 0 {
		handshakeTimeout = 15 * time.Second
	}
	return &Channel{
		url:    url,
		dialer: &websocket.Dialer{HandshakeTimeout: handshakeTimeout},
		stream: make(chan Notification, 64),
	}
}

// Notifications is the single ordered delivery stream. The channel closes it
// after the Closed transition has been delivered.
func (c *Channel) Notifications() <-chan Notification {
	return c.stream
}

// State returns the channel's current lifecycle state.
func (c *Channel) State() State {
	switch {
	case c.closed.Load():
		return StateClosed
	case c.open.Load():
		return StateOpen
	default:
		return StateConnecting
	}
}

// Connect dials the agent and transitions Connecting -> Open, then starts
// the read loop. The Open transition is delivered before any inbound event.
func (c *Channel) Connect(ctx context.Context) error {
	if c.closed.Load() || c.open.Load() {
		return fmt.Errorf("connect called in state %q", c.State())
	}

	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		c.closeOnce.Do(func() {
			c.closed.Store(true)
			c.emit(StateChanged{State: StateClosed, Err: err})
			close(c.stream)
		})
		return fmt.Errorf("dial %s: %w", c.url, err)
	}

	c.conn = conn
	c.open.Store(true)
	c.emit(StateChanged{State: StateOpen})
	go c.readLoop()
	return nil
}

// Send marshals and writes one outbound event. Fails with ErrNotOpen when
// the channel is not open; the failure is reported, never fatal.
func (c *Channel) Send(v any) error {
	if c.State() != StateOpen {
		return ErrNotOpen
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteJSON(v); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// Close transitions to Closed and releases the connection. Safe to call
// more than once; the Closed notification is delivered by the read loop.
func (c *Channel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		if c.conn == nil {
			c.emit(StateChanged{State: StateClosed})
			close(c.stream)
			return
		}
		deadline := time.Now().Add(2 * time.Second)
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}

func (c *Channel) readLoop() {
	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			locallyClosed := c.closed.Load()
			c.closed.Store(true)
			if locallyClosed || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				err = nil
			}
			c.emit(StateChanged{State: StateClosed, Err: err})
			close(c.stream)
			_ = c.conn.Close()
			return
		}
		if messageType != websocket.TextMessage {
			c.emit(Malformed{Raw: data, Err: fmt.Errorf("unexpected frame type %d", messageType)})
			continue
		}
		ev, decodeErr := event.Decode(data)
		if decodeErr != nil {
			log.Printf("[transport] dropping malformed frame: %v", decodeErr)
			c.emit(Malformed{Raw: data, Err: decodeErr})
			continue
		}
		c.emit(Received{Event: ev})
	}
}

// emit delivers in arrival order. Delivery blocks rather than reorders or
// drops: the consumer is the session loop, which never stops draining.
func (c *Channel) emit(n Notification) {
	c.stream <- n
}
