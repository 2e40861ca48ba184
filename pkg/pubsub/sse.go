package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/ritzau/relgraph/pkg/logging"
)

var (
	ErrClosed       = errors.New("publisher is closed")
	ErrUnknownTopic = errors.New("unknown topic")
)

// retention decides which published events a late subscriber is sent.
type retention struct {
	keep   int  // newest events kept, 0 keeps none
	byType bool // keep only the newest event of each type
}

type topicState struct {
	retention
	version  int
	retained []Event
	subs     map[*sseSubscription]struct{}
}

func (t *topicState) retain(ev Event) {
	if t.keep == 0 {
		return
	}
	if t.byType {
		kept := t.retained[:0]
		for _, old := range t.retained {
			if old.Type != ev.Type {
				kept = append(kept, old)
			}
		}
		t.retained = kept
	}
	t.retained = append(t.retained, ev)
	if over := len(t.retained) - t.keep; over > 0 {
		t.retained = append(t.retained[:0:0], t.retained[over:]...)
	}
}

// SSEPublisher implements Publisher for the session topics
type SSEPublisher struct {
	mu     sync.Mutex
	topics map[string]*topicState
	closed bool
}

// NewSessionPublisher returns a publisher for the session topics. Late
// subscribers get the current graph and session state, the newest candidates
// of each field and the last logReplay log entries.
func NewSessionPublisher(logReplay int) *SSEPublisher {
	p := &SSEPublisher{topics: make(map[string]*topicState)}
	p.add(TopicGraph, retention{keep: 1})
	p.add(TopicSessionState, retention{keep: 1})
	p.add(TopicCandidates, retention{keep: 2, byType: true})
	p.add(TopicSessionLog, retention{keep: max(logReplay, 0)})
	return p
}

func (p *SSEPublisher) add(name string, r retention) {
	p.topics[name] = &topicState{retention: r, subs: make(map[*sseSubscription]struct{})}
}

// Subscribe registers for a topic and queues its retained events first.
// Cancelling ctx ends the subscription.
func (p *SSEPublisher) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrClosed
	}
	t, ok := p.topics[topic]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTopic, topic)
	}

	sub := &sseSubscription{
		topic:     topic,
		events:    make(chan Event, 100+len(t.retained)),
		publisher: p,
	}
	for _, ev := range t.retained {
		sub.events <- ev
	}
	t.subs[sub] = struct{}{}
	logging.Trace("subscribed", "topic", topic, "replayed", len(t.retained))

	go func() {
		<-ctx.Done()
		sub.Close()
	}()
	return sub, nil
}

// Publish sends an event to every subscriber of a topic without blocking.
// A subscriber that has fallen behind loses the event.
func (p *SSEPublisher) Publish(topic string, eventType string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}
	t, ok := p.topics[topic]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTopic, topic)
	}

	t.version++
	ev := Event{Topic: topic, Type: eventType, Data: jsonData, Version: t.version}
	t.retain(ev)

	for sub := range t.subs {
		select {
		case sub.events <- ev:
		default:
			logging.Warn("subscription channel full, dropping event", "topic", topic, "version", ev.Version)
		}
	}
	return nil
}

// Close ends every subscription.
func (p *SSEPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	for _, t := range p.topics {
		for sub := range t.subs {
			close(sub.events)
		}
		t.subs = nil
	}
	return nil
}

func (p *SSEPublisher) unsubscribe(sub *sseSubscription) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if t, ok := p.topics[sub.topic]; ok {
		delete(t.subs, sub)
	}
}

type sseSubscription struct {
	topic     string
	events    chan Event
	publisher *SSEPublisher
	once      sync.Once
}

func (s *sseSubscription) Events() <-chan Event {
	return s.events
}

func (s *sseSubscription) Close() error {
	s.once.Do(func() { s.publisher.unsubscribe(s) })
	return nil
}

// WriteSSE writes one event as a "data: {json}" frame.
func WriteSSE(w io.Writer, event Event) error {
	jsonData, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", jsonData)
	return err
}

// ServeSSE streams a topic to an HTTP client until the request ends or the
// publisher closes.
func ServeSSE(w http.ResponseWriter, r *http.Request, p Publisher, topic string) {
	sub, err := p.Subscribe(r.Context(), topic)
	if err != nil {
		status := http.StatusServiceUnavailable
		if errors.Is(err, ErrUnknownTopic) {
			status = http.StatusNotFound
		}
		http.Error(w, err.Error(), status)
		return
	}
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	flusher, _ := w.(http.Flusher)
	flush := func() {
		if flusher != nil {
			flusher.Flush()
		}
	}

	// Safari waits for the first bytes before firing onopen
	fmt.Fprint(w, ": connected\n\n")
	flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := WriteSSE(w, event); err != nil {
				logging.DebugContext(r.Context(), "SSE client went away", "topic", topic, "error", err)
				return
			}
			flush()
		}
	}
}
