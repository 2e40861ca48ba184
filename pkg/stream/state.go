// Package stream manages the push channel that delivers relationship results.
//
// The session lifecycle is a pure state machine: Transition maps a session and
// an event to the next session and a list of effects. Manager performs the
// effects against a real websocket connection and feeds transport events back in.
package stream

import (
	"fmt"
	"time"
)

// State is the lifecycle position of a session.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateReconnecting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText renders the state name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Active reports whether the state holds or is acquiring a transport.
func (s State) Active() bool {
	return s == StateConnecting || s == StateOpen || s == StateReconnecting
}

// Policy holds the timing rules of a session.
type Policy struct {
	HandshakeTimeout    time.Duration
	HeartbeatInterval   time.Duration
	HeartbeatTimeout    time.Duration
	CheckInterval       time.Duration
	ReconnectAttempts   int
	ReconnectBackoff    time.Duration
	ReconnectMaxBackoff time.Duration
}

// DefaultPolicy returns the standard timings.
func DefaultPolicy() Policy {
	return Policy{
		HandshakeTimeout:    5 * time.Second,
		HeartbeatInterval:   30 * time.Second,
		HeartbeatTimeout:    5 * time.Second,
		CheckInterval:       time.Second,
		ReconnectAttempts:   5,
		ReconnectBackoff:    time.Second,
		ReconnectMaxBackoff: 30 * time.Second,
	}
}

// Backoff returns the delay before reconnect attempt n (1-based).
func (p Policy) Backoff(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	d := p.ReconnectBackoff
	for i := 1; i < n; i++ {
		d *= 2
		if p.ReconnectMaxBackoff > 0 && d >= p.ReconnectMaxBackoff {
			return p.ReconnectMaxBackoff
		}
	}
	if p.ReconnectMaxBackoff > 0 && d > p.ReconnectMaxBackoff {
		return p.ReconnectMaxBackoff
	}
	return d
}

// Session is the record of the one active push channel.
type Session struct {
	RequestID string `json:"request_id,omitempty"`
	Address   string `json:"address,omitempty"`
	State     State  `json:"state"`

	// Generation numbers transport attempts. Events carrying an older
	// generation belong to a released transport and are ignored.
	Generation int `json:"generation"`

	DialedAt         time.Time `json:"-"`
	Dialing          bool      `json:"-"`
	LastHeartbeatAt  time.Time `json:"last_heartbeat_at,omitzero"`
	LastPingAt       time.Time `json:"-"`
	PingSentAt       time.Time `json:"-"` // zero when no ping is outstanding
	ReconnectAttempt int       `json:"reconnect_attempt"`
	NextReconnectAt  time.Time `json:"next_reconnect_at,omitzero"`
	CloseReason      string    `json:"close_reason,omitempty"`
}

// Event is an input to Transition.
type Event interface {
	event()
}

// Start opens a session for a job, replacing whatever session came before.
type Start struct {
	RequestID string
	Address   string
}

// HandshakeOK reports a completed dial.
type HandshakeOK struct {
	Generation int
}

// HandshakeFailed reports a dial error.
type HandshakeFailed struct {
	Generation int
	Err        error
}

// MessageReceived carries one inbound frame.
type MessageReceived struct {
	Generation int
	Data       []byte
}

// RemoteClosed reports a read error or a close frame from the peer.
type RemoteClosed struct {
	Generation int
	Err        error
}

// LocalClose tears the session down on our side.
type LocalClose struct {
	Reason string
}

// Tick drives the timers: handshake timeout, heartbeat and reconnect backoff.
type Tick struct{}

func (Start) event()           {}
func (HandshakeOK) event()     {}
func (HandshakeFailed) event() {}
func (MessageReceived) event() {}
func (RemoteClosed) event()    {}
func (LocalClose) event()      {}
func (Tick) event()            {}

// Effect is an action Transition asks the driver to perform.
type Effect interface {
	effect()
}

// Dial opens a transport for a generation.
type Dial struct {
	Generation int
	Address    string
}

// Send writes a frame on the generation's transport. Failures are not fatal.
type Send struct {
	Generation int
	Payload    []byte
	What       string
}

// CloseTransport releases the generation's transport, aborting a pending dial.
type CloseTransport struct {
	Generation int
}

// DeliverResult hands a decoded result to the graph assembler.
type DeliverResult struct {
	RequestID string
	Message   Message
}

// Log appends a line to the session log.
type Log struct {
	Message string
}

func (Dial) effect()           {}
func (Send) effect()           {}
func (CloseTransport) effect() {}
func (DeliverResult) effect()  {}
func (Log) effect()            {}

// Transition computes the next session and the effects to perform. It never
// blocks and has no side effects.
func Transition(s Session, ev Event, now time.Time, p Policy) (Session, []Effect) {
	switch ev := ev.(type) {
	case Start:
		return start(s, ev, now)
	case HandshakeOK:
		return handshakeOK(s, ev, now)
	case HandshakeFailed:
		return handshakeFailed(s, ev, now, p)
	case MessageReceived:
		return message(s, ev, now)
	case RemoteClosed:
		return remoteClosed(s, ev)
	case LocalClose:
		return localClose(s, ev)
	case Tick:
		return tick(s, now, p)
	}
	return s, nil
}

func start(s Session, ev Start, now time.Time) (Session, []Effect) {
	var effects []Effect
	if s.State.Active() {
		effects = append(effects,
			CloseTransport{Generation: s.Generation},
			Log{Message: fmt.Sprintf("Closed previous session %s", s.RequestID)},
		)
	}

	next := Session{
		RequestID:  ev.RequestID,
		Address:    ev.Address,
		State:      StateConnecting,
		Generation: s.Generation + 1,
		DialedAt:   now,
		Dialing:    true,
	}
	effects = append(effects,
		Dial{Generation: next.Generation, Address: next.Address},
		Log{Message: fmt.Sprintf("Connecting to %s", next.Address)},
	)
	return next, effects
}

func handshakeOK(s Session, ev HandshakeOK, now time.Time) (Session, []Effect) {
	if ev.Generation != s.Generation || !s.Dialing {
		// a dial that completed after it was abandoned
		return s, []Effect{CloseTransport{Generation: ev.Generation}}
	}

	reconnected := s.State == StateReconnecting
	s.State = StateOpen
	s.Dialing = false
	s.ReconnectAttempt = 0
	s.NextReconnectAt = time.Time{}
	s.LastHeartbeatAt = now
	s.LastPingAt = now
	s.PingSentAt = now

	msg := "Channel open, sent init"
	if reconnected {
		msg = "Channel reconnected, sent init"
	}
	return s, []Effect{
		Send{Generation: s.Generation, Payload: EncodeInit(s.RequestID), What: "init"},
		Send{Generation: s.Generation, Payload: EncodePing(), What: "ping"},
		Log{Message: msg},
	}
}

func handshakeFailed(s Session, ev HandshakeFailed, now time.Time, p Policy) (Session, []Effect) {
	if ev.Generation != s.Generation || !s.Dialing {
		return s, nil
	}
	err := &ChannelError{RequestID: s.RequestID, Op: "dial", Err: ev.Err}

	if s.State == StateReconnecting {
		return retryOrGiveUp(s, now, p, err.Error())
	}
	return closeSession(s, err.Error(), fmt.Sprintf("Channel error: %v", err))
}

func message(s Session, ev MessageReceived, now time.Time) (Session, []Effect) {
	if ev.Generation != s.Generation || s.State != StateOpen {
		return s, nil
	}

	msg, err := Decode(ev.Data)
	if err != nil {
		return s, []Effect{Log{Message: fmt.Sprintf("Ignored malformed message: %v", err)}}
	}

	switch msg.Kind {
	case KindPong:
		s.LastHeartbeatAt = now
		s.PingSentAt = time.Time{}
		return s, nil
	case KindResult:
		return s, []Effect{
			DeliverResult{RequestID: s.RequestID, Message: msg},
			Log{Message: fmt.Sprintf("Received result: %d entities, %d relationships",
				len(msg.Entities), len(msg.Relationships))},
		}
	default:
		return s, nil
	}
}

func remoteClosed(s Session, ev RemoteClosed) (Session, []Effect) {
	if ev.Generation != s.Generation || s.State != StateOpen {
		return s, nil
	}
	err := &ChannelError{RequestID: s.RequestID, Op: "read", Err: ev.Err}
	return closeSession(s, err.Error(), fmt.Sprintf("Channel closed: %v", err))
}

func localClose(s Session, ev LocalClose) (Session, []Effect) {
	if !s.State.Active() {
		return s, nil
	}
	reason := ev.Reason
	if reason == "" {
		reason = "closed locally"
	}
	return closeSession(s, reason, fmt.Sprintf("Session closed: %s", reason))
}

func tick(s Session, now time.Time, p Policy) (Session, []Effect) {
	switch s.State {
	case StateConnecting:
		if now.Sub(s.DialedAt) >= p.HandshakeTimeout {
			return closeSession(s, "handshake timeout",
				fmt.Sprintf("Handshake timed out after %s, keeping previous graph", p.HandshakeTimeout))
		}

	case StateReconnecting:
		if s.Dialing {
			if now.Sub(s.DialedAt) >= p.HandshakeTimeout {
				effects := []Effect{CloseTransport{Generation: s.Generation}}
				next, more := retryOrGiveUp(s, now, p, "handshake timeout")
				return next, append(effects, more...)
			}
			return s, nil
		}
		if !now.Before(s.NextReconnectAt) {
			s.Generation++
			s.Dialing = true
			s.DialedAt = now
			return s, []Effect{
				Dial{Generation: s.Generation, Address: s.Address},
				Log{Message: fmt.Sprintf("Reconnecting (attempt %d/%d)", s.ReconnectAttempt, p.ReconnectAttempts)},
			}
		}

	case StateOpen:
		if !s.PingSentAt.IsZero() && now.Sub(s.PingSentAt) > p.HeartbeatTimeout {
			if p.ReconnectAttempts <= 0 {
				return closeSession(s, "heartbeat timeout", "Heartbeat timed out, closing channel")
			}
			effects := []Effect{CloseTransport{Generation: s.Generation}}
			s.State = StateReconnecting
			s.ReconnectAttempt = 1
			s.NextReconnectAt = now.Add(p.Backoff(1))
			s.PingSentAt = time.Time{}
			return s, append(effects, Log{Message: fmt.Sprintf(
				"Heartbeat timed out, reconnecting in %s (attempt 1/%d)", p.Backoff(1), p.ReconnectAttempts)})
		}
		if now.Sub(s.LastPingAt) >= p.HeartbeatInterval {
			s.LastPingAt = now
			if s.PingSentAt.IsZero() {
				s.PingSentAt = now
			}
			return s, []Effect{Send{Generation: s.Generation, Payload: EncodePing(), What: "ping"}}
		}
	}
	return s, nil
}

// retryOrGiveUp schedules the next reconnect attempt after a failed one.
func retryOrGiveUp(s Session, now time.Time, p Policy, cause string) (Session, []Effect) {
	s.Dialing = false
	if s.ReconnectAttempt >= p.ReconnectAttempts {
		return closeSession(s, "reconnect failed",
			fmt.Sprintf("Reconnect failed after %d attempts (%s), closing channel", s.ReconnectAttempt, cause))
	}
	s.ReconnectAttempt++
	delay := p.Backoff(s.ReconnectAttempt)
	s.NextReconnectAt = now.Add(delay)
	return s, []Effect{Log{Message: fmt.Sprintf("Reconnect failed (%s), retrying in %s (attempt %d/%d)",
		cause, delay, s.ReconnectAttempt, p.ReconnectAttempts)}}
}

// closeSession moves to Closed and releases the transport.
func closeSession(s Session, reason, logLine string) (Session, []Effect) {
	s.State = StateClosed
	s.Dialing = false
	s.PingSentAt = time.Time{}
	s.NextReconnectAt = time.Time{}
	s.CloseReason = reason
	return s, []Effect{
		CloseTransport{Generation: s.Generation},
		Log{Message: logLine},
	}
}
