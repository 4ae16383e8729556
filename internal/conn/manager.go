// Package conn owns the single duplex channel to the chat backend: dialing,
// inbound frame routing, and the reconnect loop.
package conn

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"nhooyr.io/websocket"

	"github.com/duochat/duochat/pkg/wire"
)

// ErrNotConnected is returned by Send when no channel is open. Callers are
// expected to guard; there is no queuing or automatic retry of the frame.
var ErrNotConnected = errors.New("no open channel")

const (
	// DefaultReconnectDelay is the flat interval between a close event and
	// the next dial attempt. Retries repeat at this interval indefinitely;
	// there is deliberately no backoff growth and no attempt cap.
	DefaultReconnectDelay = 1000 * time.Millisecond

	defaultDialTimeout  = 10 * time.Second
	defaultWriteTimeout = 10 * time.Second
)

// PresenceHandler receives roster pushes.
type PresenceHandler func(wire.PresenceFrame)

// MessageHandler receives message pushes that passed the peer filter.
type MessageHandler func(wire.Message)

// PeerSource exposes the currently selected peer. The manager reads it on
// every inbound message frame, so routing follows peer switches instead of
// freezing at the value active when the channel was opened.
type PeerSource interface {
	SelectedPeer() string
}

// Options configures a Manager.
type Options struct {
	// ReconnectDelay overrides DefaultReconnectDelay. Zero means default.
	ReconnectDelay time.Duration
}

// Manager maintains the duplex channel. Every close event, whether from
// network failure or an intentional replacement on peer switch, leads back
// to a connected state: failures schedule a flat-delay redial, replacements
// dial a fresh channel immediately.
type Manager struct {
	endpoint string
	delay    time.Duration
	peers    PeerSource

	handlerMu  sync.RWMutex
	onPresence PresenceHandler
	onMessage  MessageHandler

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	conn   *websocket.Conn
	connID string
	closed bool
}

// NewManager creates a Manager for the given endpoint. peers must not be
// nil; the manager owns no business state of its own.
func NewManager(endpoint string, peers PeerSource, opts Options) *Manager {
	delay := opts.ReconnectDelay
	if delay <= 0 {
		delay = DefaultReconnectDelay
	}
	return &Manager{
		endpoint: endpoint,
		delay:    delay,
		peers:    peers,
	}
}

// OnPresence registers the handler for roster pushes.
func (m *Manager) OnPresence(h PresenceHandler) {
	m.handlerMu.Lock()
	defer m.handlerMu.Unlock()
	m.onPresence = h
}

// OnMessage registers the handler for message pushes.
func (m *Manager) OnMessage(h MessageHandler) {
	m.handlerMu.Lock()
	defer m.handlerMu.Unlock()
	m.onMessage = h
}

// Open establishes the channel. A failed initial dial is returned to the
// caller, but the reconnect loop is armed regardless, matching the
// close-handler semantics of the backend protocol.
func (m *Manager) Open(ctx context.Context) error {
	m.mu.Lock()
	if m.cancel != nil {
		m.cancel()
	}
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.closed = false
	m.mu.Unlock()

	if err := m.dial(); err != nil {
		m.scheduleReconnect()
		return err
	}
	return nil
}

// Reconnect discards the current channel and dials a fresh one, even if
// the old one is still healthy. Used on peer switch.
func (m *Manager) Reconnect() error {
	m.mu.Lock()
	if m.ctx == nil {
		m.mu.Unlock()
		return fmt.Errorf("connection manager not opened")
	}
	m.mu.Unlock()

	if err := m.dial(); err != nil {
		m.scheduleReconnect()
		return err
	}
	return nil
}

// Send serializes payload and transmits it over the current channel.
func (m *Manager) Send(frame wire.SendFrame) error {
	m.mu.Lock()
	c := m.conn
	ctx := m.ctx
	m.mu.Unlock()

	if c == nil || ctx == nil {
		return ErrNotConnected
	}

	data, err := frame.Encode()
	if err != nil {
		return err
	}

	wctx, cancel := context.WithTimeout(ctx, defaultWriteTimeout)
	defer cancel()
	if err := c.Write(wctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("failed to send frame: %w", err)
	}
	return nil
}

// IsConnected reports whether a channel is currently open.
func (m *Manager) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn != nil
}

// Shutdown stops the reconnect loop and drops the channel. Used on logout.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	c := m.conn
	m.conn = nil
	cancel := m.cancel
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if c != nil {
		c.Close(websocket.StatusNormalClosure, "")
	}
}

// dial opens a fresh channel, installs it as current, and closes whatever
// it replaced. The replaced channel's read loop sees a stale connection id
// and stays quiet, so replacement never double-schedules reconnects.
func (m *Manager) dial() error {
	m.mu.Lock()
	ctx := m.ctx
	m.mu.Unlock()

	dctx, cancel := context.WithTimeout(ctx, defaultDialTimeout)
	defer cancel()

	c, _, err := websocket.Dial(dctx, m.endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", m.endpoint, err)
	}

	id := uuid.NewString()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		c.Close(websocket.StatusNormalClosure, "")
		return fmt.Errorf("connection manager is shut down")
	}
	old := m.conn
	m.conn = c
	m.connID = id
	m.mu.Unlock()

	if old != nil {
		old.Close(websocket.StatusNormalClosure, "replaced")
	}

	log.Printf("channel %s open to %s", id, m.endpoint)
	go m.readLoop(ctx, c, id)
	return nil
}

// readLoop processes inbound frames in receipt order until the channel
// dies, then hands off to close handling.
func (m *Manager) readLoop(ctx context.Context, c *websocket.Conn, id string) {
	for {
		typ, data, err := c.Read(ctx)
		if err != nil {
			break
		}
		if typ != websocket.MessageText {
			continue
		}
		m.route(data)
	}
	m.handleClose(id)
}

// handleClose schedules a reconnect unless this channel has already been
// replaced or the manager was shut down.
func (m *Manager) handleClose(id string) {
	m.mu.Lock()
	if m.closed || m.connID != id {
		m.mu.Unlock()
		return
	}
	m.conn = nil
	m.mu.Unlock()

	log.Printf("channel %s closed, reconnecting in %s", id, m.delay)
	m.scheduleReconnect()
}

// scheduleReconnect arms a flat-delay redial. On failure it re-arms
// itself, retrying indefinitely until a dial succeeds or Shutdown is
// called.
func (m *Manager) scheduleReconnect() {
	time.AfterFunc(m.delay, func() {
		m.mu.Lock()
		if m.closed || m.conn != nil {
			m.mu.Unlock()
			return
		}
		m.mu.Unlock()

		if err := m.dial(); err != nil {
			log.Printf("reconnect failed: %v", err)
			m.scheduleReconnect()
		}
	})
}

// route dispatches a decoded frame to exactly one handler based on its
// shape. Message frames from anyone but the currently selected peer are
// dropped.
func (m *Manager) route(data []byte) {
	kind, err := wire.Classify(data)
	if err != nil {
		log.Printf("failed to classify inbound frame: %v", err)
		return
	}

	switch kind {
	case wire.FramePresence:
		var frame wire.PresenceFrame
		if err := frame.Decode(data); err != nil {
			log.Printf("failed to decode presence frame: %v", err)
			return
		}
		m.handlerMu.RLock()
		h := m.onPresence
		m.handlerMu.RUnlock()
		if h != nil {
			h(frame)
		}
	case wire.FrameMessage:
		var msg wire.Message
		if err := msg.Decode(data); err != nil {
			log.Printf("failed to decode message frame: %v", err)
			return
		}
		selected := m.peers.SelectedPeer()
		if selected == "" || msg.Sender != selected {
			return
		}
		m.handlerMu.RLock()
		h := m.onMessage
		m.handlerMu.RUnlock()
		if h != nil {
			h(msg)
		}
	}
}
