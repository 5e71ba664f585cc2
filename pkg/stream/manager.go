package stream

import (
	"context"
	"net/http"
	"strings"
	"sync"

	json "github.com/goccy/go-json"
	"github.com/grovetools/livesync/errors"
	"github.com/grovetools/livesync/logging"
	"github.com/sirupsen/logrus"
)

// Option configures a Manager.
type Option func(*Manager)

// WithSSETransport replaces the transport used for http(s) URLs.
func WithSSETransport(t Transport) Option {
	return func(m *Manager) { m.sse = t }
}

// WithWSTransport replaces the transport used for ws(s) URLs.
func WithWSTransport(t Transport) Option {
	return func(m *Manager) { m.ws = t }
}

// WithHeader sets headers sent on every connection.
func WithHeader(h http.Header) Option {
	return func(m *Manager) { m.header = h.Clone() }
}

// WithOnDisconnect sets the callback invoked once per connection that fails
// unrecoverably.
func WithOnDisconnect(fn DisconnectFunc) Option {
	return func(m *Manager) { m.onDisconnect = fn }
}

// WithLogger sets the logger.
func WithLogger(logger *logrus.Entry) Option {
	return func(m *Manager) { m.logger = logger }
}

type conn struct {
	key     string
	url     string
	token   uint64
	state   State
	handler Handler
	cancel  context.CancelFunc

	// deliverMu is held from the liveness check until the handler returns.
	deliverMu sync.Mutex
}

// stop cancels the connection and waits for an in-flight delivery.
func (c *conn) stop() {
	c.cancel()
	c.deliverMu.Lock()
	c.deliverMu.Unlock()
}

// Manager keeps at most one live connection. Opening a new key closes the
// previous connection first. Each connection carries a token; messages from
// a connection whose token is no longer current are discarded.
//
// Open, Close and CloseAll return only after any delivery to the connection
// they close has finished, so a handler never sees an event for a key once
// its Close has returned. Handlers must therefore not call them
// synchronously, and callers must not hold a lock the handler takes.
type Manager struct {
	mu     sync.Mutex
	active *conn
	token  uint64
	closed bool

	sse          Transport
	ws           Transport
	header       http.Header
	onDisconnect DisconnectFunc
	logger       *logrus.Entry

	wg sync.WaitGroup
}

// NewManager creates a manager with the default SSE and WebSocket transports.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		sse:    NewSSETransport(DefaultRetry, 0),
		ws:     NewWSTransport(),
		logger: logging.NewLogger("stream"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) transportFor(url string) Transport {
	if strings.HasPrefix(url, "ws://") || strings.HasPrefix(url, "wss://") {
		return m.ws
	}
	return m.sse
}

// Open connects key to url and delivers its events to handler. Opening the
// key that is already active is a no-op.
func (m *Manager) Open(key, url string, handler Handler) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	if m.active != nil && m.active.key == key {
		m.mu.Unlock()
		return
	}
	old := m.detachLocked()

	m.token++
	ctx, cancel := context.WithCancel(context.Background())
	c := &conn{
		key:     key,
		url:     url,
		token:   m.token,
		state:   StateConnecting,
		handler: handler,
		cancel:  cancel,
	}
	m.active = c
	transport := m.transportFor(url)
	header := m.header.Clone()
	m.wg.Add(1)
	m.mu.Unlock()

	if old != nil {
		old.stop()
		m.logger.WithField("key", old.key).Debug("Closed stream")
	}
	m.logger.WithFields(logrus.Fields{"key": key, "url": url}).Debug("Opening stream")

	go m.run(ctx, c, transport, header)
}

func (m *Manager) run(ctx context.Context, c *conn, transport Transport, header http.Header) {
	defer m.wg.Done()

	err := transport.Run(ctx, c.url, header, Hooks{
		OnOpen:      func() { m.setState(c, StateOpen) },
		OnReconnect: func() { m.setState(c, StateConnecting) },
		OnMessage:   func(msg Message) { m.deliver(c, msg) },
	})
	if err == nil || ctx.Err() != nil {
		return
	}

	m.mu.Lock()
	current := m.active == c
	if current {
		m.active = nil
	}
	c.state = StateError
	m.mu.Unlock()
	if !current {
		return
	}

	syncErr := errors.StreamUnrecoverable(c.key, err)
	m.logger.WithError(err).WithField("key", c.key).Warn("Stream disconnected")
	if m.onDisconnect != nil {
		m.onDisconnect(c.key, syncErr)
	}
}

func (m *Manager) setState(c *conn, state State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == c {
		c.state = state
	}
}

// deliver decodes a frame and hands it to the connection's handler if the
// connection is still the current one.
func (m *Manager) deliver(c *conn, msg Message) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(msg.Data, &envelope); err != nil {
		m.logger.WithError(err).WithField("key", c.key).Warn("Dropping malformed stream event")
		return
	}
	eventType := msg.Event
	if eventType == "" || eventType == "message" {
		eventType = envelope.Type
	}

	c.deliverMu.Lock()
	defer c.deliverMu.Unlock()

	m.mu.Lock()
	current := m.active == c && c.token == m.token
	handler := c.handler
	m.mu.Unlock()
	if !current || handler == nil {
		return
	}

	handler(Event{
		Key:  c.key,
		Type: eventType,
		ID:   msg.ID,
		Data: json.RawMessage(msg.Data),
	})
}

func (m *Manager) detachLocked() *conn {
	c := m.active
	if c == nil {
		return nil
	}
	c.state = StateClosed
	m.active = nil
	return c
}

// Close closes the connection for key if it is the active one.
func (m *Manager) Close(key string) {
	m.mu.Lock()
	var c *conn
	if m.active != nil && m.active.key == key {
		c = m.detachLocked()
	}
	m.mu.Unlock()
	if c != nil {
		c.stop()
		m.logger.WithField("key", key).Debug("Closed stream")
	}
}

// CloseAll closes the active connection, whatever its key.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	c := m.detachLocked()
	m.mu.Unlock()
	if c != nil {
		c.stop()
		m.logger.WithField("key", c.key).Debug("Closed stream")
	}
}

// Shutdown closes the active connection and rejects further Opens.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.CloseAll()
}

// Active returns the key and state of the active connection, or an empty key
// and StateIdle when there is none.
func (m *Manager) Active() (string, State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return "", StateIdle
	}
	return m.active.key, m.active.state
}

// Wait blocks until every connection goroutine has returned.
func (m *Manager) Wait() {
	m.wg.Wait()
}
