// Package controller owns the state of one search session: the two entity
// fields, the current graph snapshot, the session log and the single active
// push channel.
package controller

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ritzau/relgraph/pkg/graph"
	"github.com/ritzau/relgraph/pkg/history"
	"github.com/ritzau/relgraph/pkg/initiator"
	"github.com/ritzau/relgraph/pkg/logging"
	"github.com/ritzau/relgraph/pkg/model"
	"github.com/ritzau/relgraph/pkg/pubsub"
	"github.com/ritzau/relgraph/pkg/resolver"
	"github.com/ritzau/relgraph/pkg/sessionlog"
	"github.com/ritzau/relgraph/pkg/stream"
	"golang.org/x/sync/errgroup"
)

// Field names.
const (
	FieldStart = "start"
	FieldEnd   = "end"
)

var (
	ErrUnknownField     = errors.New("unknown field")
	ErrUnknownCandidate = errors.New("no such candidate")
	ErrUnknownNode      = errors.New("no such node in the current graph")
	ErrNotRunning       = errors.New("controller is not running")
)

// Backend is what the controller needs from the backend client.
type Backend interface {
	resolver.Searcher
	initiator.Starter
}

// Recorder stores search history. *history.Store implements it.
type Recorder interface {
	Record(ctx context.Context, s history.Search) (int64, error)
	UpdateOutcome(ctx context.Context, requestID string, nodes, edges int, pathFound bool, at time.Time) error
}

// Controller is the explicit session object behind the web and CLI surfaces.
type Controller struct {
	resolver  *resolver.Resolver
	initiator *initiator.Initiator
	streams   *stream.Manager
	log       *sessionlog.Log
	publisher pubsub.Publisher
	history   Recorder
	now       func() time.Time

	fields   map[string]*resolver.Field
	queries  chan resolver.Ticket
	debounce time.Duration
	running  chan struct{}

	searchMu sync.Mutex // serializes Search

	mu       sync.RWMutex
	snapshot *model.Snapshot
}

type settings struct {
	publisher   pubsub.Publisher
	history     Recorder
	policy      stream.Policy
	resolver    []resolver.Option
	debounce    time.Duration
	logCapacity int
	now         func() time.Time
}

// Option configures a Controller.
type Option func(*settings)

// WithPublisher publishes graph, log, state and candidate updates.
func WithPublisher(p pubsub.Publisher) Option {
	return func(s *settings) { s.publisher = p }
}

// WithHistory records initiated searches and their outcomes.
func WithHistory(r Recorder) Option {
	return func(s *settings) { s.history = r }
}

// WithStreamPolicy sets push channel timings.
func WithStreamPolicy(p stream.Policy) Option {
	return func(s *settings) { s.policy = p }
}

// WithResolverOptions configures entity resolution.
func WithResolverOptions(opts ...resolver.Option) Option {
	return func(s *settings) { s.resolver = append(s.resolver, opts...) }
}

// WithDebounce sets the quiet period before a field's text is resolved.
func WithDebounce(d time.Duration) Option {
	return func(s *settings) { s.debounce = d }
}

// WithLogCapacity bounds the session log.
func WithLogCapacity(n int) Option {
	return func(s *settings) { s.logCapacity = n }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *settings) { s.now = now }
}

// New creates a controller. Run must be called before queries are resolved or
// channels opened.
func New(b Backend, opts ...Option) *Controller {
	st := settings{
		policy:      stream.DefaultPolicy(),
		debounce:    resolver.DefaultQuietPeriod,
		logCapacity: sessionlog.DefaultCapacity,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(&st)
	}

	c := &Controller{
		resolver:  resolver.New(b, st.resolver...),
		initiator: initiator.New(b),
		publisher: st.publisher,
		history:   st.history,
		now:       st.now,
		fields: map[string]*resolver.Field{
			FieldStart: resolver.NewField(FieldStart),
			FieldEnd:   resolver.NewField(FieldEnd),
		},
		queries:  make(chan resolver.Ticket, 32),
		debounce: st.debounce,
		running:  make(chan struct{}),
		snapshot: model.NewSnapshot(),
	}
	c.log = sessionlog.New(
		sessionlog.WithCapacity(st.logCapacity),
		sessionlog.WithClock(st.now),
		sessionlog.WithSink(func(e sessionlog.Entry) {
			c.publish(pubsub.TopicSessionLog, "entry", e)
		}),
	)
	c.streams = stream.NewManager(
		stream.WithPolicy(st.policy),
		stream.WithClock(st.now),
		stream.OnResult(c.handleResult),
		stream.OnState(c.handleState),
		stream.OnLog(func(msg string) { c.log.Append(msg) }),
	)
	return c
}

// Run drives the push channel and debounced resolution until ctx is cancelled.
func (c *Controller) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := c.streams.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	d := resolver.NewDebouncer(c.queries, c.debounce, 4*c.debounce)
	d.Start(ctx)
	g.Go(func() error {
		for t := range d.Output() {
			t := t
			g.Go(func() error {
				c.resolve(ctx, t)
				return nil
			})
		}
		return nil
	})

	close(c.running)
	return g.Wait()
}

// Ready is closed once Run has started accepting searches.
func (c *Controller) Ready() <-chan struct{} {
	return c.running
}

// SetQuery records new text for a field and schedules its resolution. Text too
// short to search clears the candidates at once.
func (c *Controller) SetQuery(ctx context.Context, field, text string) (resolver.Ticket, error) {
	f, ok := c.fields[field]
	if !ok {
		return resolver.Ticket{}, fmt.Errorf("%w: %q", ErrUnknownField, field)
	}

	t := f.SetText(text)
	if !c.resolver.Eligible(text) {
		if f.Apply(t, nil) {
			c.publishCandidates(f, t)
		}
		return t, nil
	}

	select {
	case c.queries <- t:
		return t, nil
	case <-ctx.Done():
		return t, ctx.Err()
	}
}

// Select picks a candidate for a field.
func (c *Controller) Select(field, id string) (resolver.Candidate, error) {
	f, ok := c.fields[field]
	if !ok {
		return resolver.Candidate{}, fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
	cand, ok := f.Select(id)
	if !ok {
		return resolver.Candidate{}, fmt.Errorf("%w: %q", ErrUnknownCandidate, id)
	}
	c.log.Appendf("Selected %s entity %s", field, cand.Title)
	return cand, nil
}

func (c *Controller) resolve(ctx context.Context, t resolver.Ticket) {
	f := c.fields[t.Field]
	if !f.Current(t) {
		logging.Trace("skipping superseded query", "field", t.Field, "token", t.Token)
		return
	}

	start := time.Now()
	candidates, err := c.resolver.Resolve(ctx, t.Text)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		logging.Warn("entity search failed", "field", t.Field, "error", err)
		c.log.Appendf("Entity search failed for %q: %v", strings.TrimSpace(t.Text), err)
		candidates = []resolver.Candidate{}
	}

	if !f.Apply(t, candidates) {
		logging.Debug("discarding stale candidates", "field", t.Field, "token", t.Token)
		return
	}
	logging.Debug("resolved query", "field", t.Field, "candidates", len(candidates),
		"durationMs", time.Since(start).Milliseconds())
	c.publishCandidates(f, t)
}

// Search starts a relationship search for the two fields and opens its push
// channel, closing any previous one. Validation and initiation failures are
// logged and returned; the current graph is left as it is.
func (c *Controller) Search(ctx context.Context) (*initiator.Job, error) {
	c.searchMu.Lock()
	defer c.searchMu.Unlock()

	select {
	case <-c.running:
	default:
		return nil, ErrNotRunning
	}

	start, end, err := initiator.RequireExactMatch(c.fields[FieldStart], c.fields[FieldEnd])
	if err != nil {
		c.log.Appendf("Cannot search: %v", err)
		return nil, err
	}
	return c.searchPair(ctx, start, end)
}

// SearchPair starts a search for two already resolved entities, bypassing the
// fields.
func (c *Controller) SearchPair(ctx context.Context, start, end resolver.Candidate) (*initiator.Job, error) {
	c.searchMu.Lock()
	defer c.searchMu.Unlock()

	select {
	case <-c.running:
	default:
		return nil, ErrNotRunning
	}
	return c.searchPair(ctx, start, end)
}

func (c *Controller) searchPair(ctx context.Context, start, end resolver.Candidate) (*initiator.Job, error) {
	job, err := c.initiator.Initiate(ctx, start.ID, end.ID)
	if err != nil {
		var ie *initiator.InitiationError
		if errors.As(err, &ie) {
			c.log.Appendf("Search failed: %v. %s", ie.Err, ie.Guidance())
		} else {
			c.log.Appendf("Cannot search: %v", err)
		}
		return nil, err
	}

	c.log.Appendf("Search started: %s → %s (job %s)", start.Title, end.Title, job.RequestID)
	if c.history != nil {
		_, err := c.history.Record(ctx, history.Search{
			RequestID: job.RequestID,
			StartID:   start.ID,
			StartName: start.Title,
			EndID:     end.ID,
			EndName:   end.Title,
			Status:    job.Status,
			StartedAt: c.now(),
		})
		if err != nil {
			logging.WarnContext(ctx, "failed to record search", "jobID", job.RequestID, "error", err)
		}
	}

	addr := stream.ChannelURL(job.Channel.Host, job.Channel.Port, job.RequestID)
	if _, err := c.streams.Start(ctx, job.RequestID, addr); err != nil {
		return nil, fmt.Errorf("opening channel for %s: %w", job.RequestID, err)
	}
	return job, nil
}

// handleResult replaces the snapshot with one assembled from a result frame.
// It runs on the stream manager's goroutine.
func (c *Controller) handleResult(requestID string, msg stream.Message) {
	report := graph.AssembleReport(msg.Entities, msg.Relationships)
	snap := report.Snapshot
	snap.RequestID = requestID

	c.mu.Lock()
	snap.Version = c.snapshot.Version + 1
	c.snapshot = snap
	c.mu.Unlock()

	if n := len(report.Dropped); n > 0 {
		c.log.Appendf("Dropped %d relationship(s) with unknown endpoints", n)
	}
	if len(snap.Nodes) > 0 && len(snap.Edges) == 0 {
		c.log.Append("No relationships connect the entities")
	}
	for _, cy := range report.Cycles {
		c.log.Appendf("Relationships form a cycle: %s", strings.Join(cy.Members, ", "))
	}
	if len(snap.Nodes) > 0 {
		names := make([]string, 0, len(snap.Path))
		for _, id := range snap.Path {
			n, _ := snap.Node(id)
			names = append(names, displayName(n))
		}
		if snap.PathFound {
			c.log.Appendf("Path found: %s", strings.Join(names, " → "))
		} else {
			c.log.Appendf("No complete path, trace stopped at %s", names[len(names)-1])
		}
	}

	c.publish(pubsub.TopicGraph, "snapshot", snap)

	if c.history != nil {
		err := c.history.UpdateOutcome(context.Background(), requestID,
			len(snap.Nodes), len(snap.Edges), snap.PathFound, c.now())
		if err != nil {
			logging.Warn("failed to record outcome", "jobID", requestID, "error", err)
		}
	}
}

func (c *Controller) handleState(s stream.Session) {
	c.publish(pubsub.TopicSessionState, s.State.String(), s)
}

// AddUserEdge appends a user-drawn edge between two nodes of the current graph.
func (c *Controller) AddUserEdge(source, target, label string) (*model.Snapshot, error) {
	c.mu.Lock()
	cur := c.snapshot
	src, ok := cur.Node(source)
	if !ok {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %q", ErrUnknownNode, source)
	}
	dst, ok := cur.Node(target)
	if !ok {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %q", ErrUnknownNode, target)
	}
	next := cur.WithUserEdge(source, target, label)
	c.snapshot = next
	c.mu.Unlock()

	c.log.Appendf("Linked %s → %s", displayName(src), displayName(dst))
	c.publish(pubsub.TopicGraph, "user_edge", next)
	return next, nil
}

// Reset closes the push channel and starts over with empty fields, an empty
// graph and an empty session log.
func (c *Controller) Reset(ctx context.Context) error {
	c.searchMu.Lock()
	defer c.searchMu.Unlock()

	select {
	case <-c.running:
	default:
		return ErrNotRunning
	}

	if _, err := c.streams.Stop(ctx, "session reset"); err != nil {
		return err
	}
	for _, name := range []string{FieldStart, FieldEnd} {
		f := c.fields[name]
		f.Reset()
		c.publishCandidates(f, resolver.Ticket{Field: name})
	}

	c.mu.Lock()
	snap := model.NewSnapshot()
	snap.Version = c.snapshot.Version + 1
	c.snapshot = snap
	c.mu.Unlock()
	c.publish(pubsub.TopicGraph, "reset", snap)

	c.log.Clear()
	c.log.Append("Session reset")
	return nil
}

// Stop closes the active push channel.
func (c *Controller) Stop(ctx context.Context, reason string) error {
	_, err := c.streams.Stop(ctx, reason)
	return err
}

// Snapshot returns the current graph. Snapshots are never modified in place.
func (c *Controller) Snapshot() *model.Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot
}

// Log returns the session log, newest first.
func (c *Controller) Log() []sessionlog.Entry {
	return c.log.Entries()
}

// FieldView is the externally visible state of one field.
type FieldView struct {
	Name       string               `json:"name"`
	Text       string               `json:"text"`
	Candidates []resolver.Candidate `json:"candidates"`
	Match      *resolver.Candidate  `json:"match,omitempty"`
}

// View is a point-in-time summary of the session.
type View struct {
	Fields       []FieldView    `json:"fields"`
	Session      stream.Session `json:"session"`
	GraphVersion int            `json:"graph_version"`
}

// View returns the current fields, stream session and graph version.
func (c *Controller) View() View {
	v := View{Session: c.streams.Session(), GraphVersion: c.Snapshot().Version}
	for _, name := range []string{FieldStart, FieldEnd} {
		v.Fields = append(v.Fields, fieldView(c.fields[name]))
	}
	return v
}

func fieldView(f *resolver.Field) FieldView {
	fv := FieldView{Name: f.Name(), Text: f.Text(), Candidates: f.Candidates()}
	if m, ok := f.Match(); ok {
		fv.Match = &m
	}
	return fv
}

func (c *Controller) publishCandidates(f *resolver.Field, t resolver.Ticket) {
	c.publish(pubsub.TopicCandidates, f.Name(), struct {
		FieldView
		Token uint64 `json:"token"`
	}{fieldView(f), t.Token})
}

func (c *Controller) publish(topic, eventType string, data any) {
	if c.publisher == nil {
		return
	}
	if err := c.publisher.Publish(topic, eventType, data); err != nil {
		logging.Debug("publish failed", "topic", topic, "error", err)
	}
}

func displayName(n model.GraphNode) string {
	if n.Name != "" {
		return n.Name
	}
	return n.ID
}
