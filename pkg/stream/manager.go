package stream

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ritzau/relgraph/pkg/logging"
)

const writeTimeout = 5 * time.Second

// Manager drives the one active session over a websocket. All events are
// handled sequentially on the goroutine running Run, so frames of a session are
// processed in arrival order and callbacks never run concurrently.
type Manager struct {
	policy Policy
	dialer *websocket.Dialer
	now    func() time.Time

	onResult func(requestID string, msg Message)
	onState  func(Session)
	onLog    func(string)

	commands chan command
	done     chan struct{}

	mu      sync.RWMutex
	session Session

	// owned by the Run goroutine
	conns   map[int]*websocket.Conn
	dialing map[int]context.CancelFunc
}

type command struct {
	ev    Event
	conn  *websocket.Conn // set for HandshakeOK
	reply chan Session
}

// Option configures a Manager.
type Option func(*Manager)

// WithPolicy sets the timing policy.
func WithPolicy(p Policy) Option {
	return func(m *Manager) {
		m.policy = p
	}
}

// WithDialer replaces the websocket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(m *Manager) {
		m.dialer = d
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// OnResult registers the consumer of decoded result frames.
func OnResult(fn func(requestID string, msg Message)) Option {
	return func(m *Manager) {
		m.onResult = fn
	}
}

// OnState registers a callback invoked after every session change.
func OnState(fn func(Session)) Option {
	return func(m *Manager) {
		m.onState = fn
	}
}

// OnLog registers the session log sink.
func OnLog(fn func(string)) Option {
	return func(m *Manager) {
		m.onLog = fn
	}
}

// NewManager creates a manager. Call Run before Start.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		policy:   DefaultPolicy(),
		dialer:   &websocket.Dialer{},
		now:      time.Now,
		commands: make(chan command, 64),
		done:     make(chan struct{}),
		conns:    make(map[int]*websocket.Conn),
		dialing:  make(map[int]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.policy.CheckInterval <= 0 {
		m.policy.CheckInterval = time.Second
	}
	if m.dialer.HandshakeTimeout == 0 {
		m.dialer.HandshakeTimeout = m.policy.HandshakeTimeout
	}
	return m
}

// Session returns a copy of the current session record.
func (m *Manager) Session() Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session
}

// Start closes any previous session and begins connecting to address. It
// returns once the previous transport has been released.
func (m *Manager) Start(ctx context.Context, requestID, address string) (Session, error) {
	return m.submit(ctx, Start{RequestID: requestID, Address: address})
}

// Stop closes the active session, if any.
func (m *Manager) Stop(ctx context.Context, reason string) (Session, error) {
	return m.submit(ctx, LocalClose{Reason: reason})
}

func (m *Manager) submit(ctx context.Context, ev Event) (Session, error) {
	reply := make(chan Session, 1)
	select {
	case m.commands <- command{ev: ev, reply: reply}:
	case <-m.done:
		return Session{}, ErrStopped
	case <-ctx.Done():
		return Session{}, ctx.Err()
	}
	select {
	case s := <-reply:
		return s, nil
	case <-m.done:
		return Session{}, ErrStopped
	case <-ctx.Done():
		return Session{}, ctx.Err()
	}
}

// post delivers a transport event from a helper goroutine.
func (m *Manager) post(c command) {
	select {
	case m.commands <- c:
	case <-m.done:
		if c.conn != nil {
			c.conn.Close()
		}
	}
}

// Run processes events until ctx is cancelled, then releases every transport.
func (m *Manager) Run(ctx context.Context) error {
	defer close(m.done)

	ticker := time.NewTicker(m.policy.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.apply(ctx, command{ev: LocalClose{Reason: "shutting down"}})
			m.releaseAll()
			return ctx.Err()
		case c := <-m.commands:
			m.apply(ctx, c)
		case <-ticker.C:
			m.apply(ctx, command{ev: Tick{}})
		}
	}
}

func (m *Manager) apply(ctx context.Context, c command) {
	if c.conn != nil {
		if ok, is := c.ev.(HandshakeOK); is {
			m.conns[ok.Generation] = c.conn
		}
	}

	m.mu.RLock()
	prev := m.session
	m.mu.RUnlock()

	next, effects := Transition(prev, c.ev, m.now(), m.policy)

	m.mu.Lock()
	m.session = next
	m.mu.Unlock()

	for _, e := range effects {
		m.perform(ctx, next, e)
	}

	// start reading once the session has accepted the connection
	if ok, is := c.ev.(HandshakeOK); is && next.State == StateOpen && next.Generation == ok.Generation {
		if conn := m.conns[ok.Generation]; conn != nil {
			go m.read(ok.Generation, conn)
		}
	}

	if c.reply != nil {
		c.reply <- next
	}
	if m.onState != nil && changed(prev, next) {
		m.onState(next)
	}
}

func (m *Manager) perform(ctx context.Context, s Session, e Effect) {
	switch e := e.(type) {
	case Dial:
		dctx, cancel := context.WithCancel(ctx)
		m.dialing[e.Generation] = cancel
		go m.dial(dctx, e.Generation, e.Address)

	case Send:
		conn := m.conns[e.Generation]
		if conn == nil {
			return
		}
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, e.Payload); err != nil {
			logging.Warn("channel send failed", "jobID", s.RequestID, "what", e.What, "error", err)
			m.log("Failed to send " + e.What + ": " + err.Error())
		}

	case CloseTransport:
		m.release(e.Generation)

	case DeliverResult:
		if m.onResult != nil {
			m.onResult(e.RequestID, e.Message)
		}

	case Log:
		logging.Debug("stream", "jobID", s.RequestID, "state", s.State.String(), "message", e.Message)
		m.log(e.Message)
	}
}

func (m *Manager) log(msg string) {
	if m.onLog != nil {
		m.onLog(msg)
	}
}

func (m *Manager) dial(ctx context.Context, gen int, address string) {
	start := time.Now()
	conn, _, err := m.dialer.DialContext(ctx, address, nil)
	if err != nil {
		logging.Debug("channel dial failed", "address", address, "generation", gen, "error", err)
		m.post(command{ev: HandshakeFailed{Generation: gen, Err: err}})
		return
	}
	logging.Debug("channel dialed", "address", address, "generation", gen,
		"durationMs", time.Since(start).Milliseconds())
	m.post(command{ev: HandshakeOK{Generation: gen}, conn: conn})
}

func (m *Manager) read(gen int, conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			m.post(command{ev: RemoteClosed{Generation: gen, Err: err}})
			return
		}
		m.post(command{ev: MessageReceived{Generation: gen, Data: data}})
	}
}

func (m *Manager) release(gen int) {
	if cancel, ok := m.dialing[gen]; ok {
		cancel()
		delete(m.dialing, gen)
	}
	if conn, ok := m.conns[gen]; ok {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		conn.Close()
		delete(m.conns, gen)
	}
}

func (m *Manager) releaseAll() {
	for gen := range m.dialing {
		m.release(gen)
	}
	for gen := range m.conns {
		m.release(gen)
	}
}

func changed(a, b Session) bool {
	return a.State != b.State ||
		a.Generation != b.Generation ||
		a.RequestID != b.RequestID ||
		a.ReconnectAttempt != b.ReconnectAttempt
}
