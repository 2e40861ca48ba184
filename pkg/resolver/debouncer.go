package resolver

import (
	"context"
	"time"

	"github.com/ritzau/relgraph/pkg/logging"
)

// DefaultQuietPeriod is how long a field must be idle before its text is resolved.
const DefaultQuietPeriod = 300 * time.Millisecond

// Debouncer collapses rapid edits of each field into one resolution request,
// carrying the latest ticket once the field has been quiet for the quiet period.
// maxWait bounds how long continuous typing can postpone a request.
type Debouncer struct {
	input       <-chan Ticket
	output      chan Ticket
	quietPeriod time.Duration
	maxWait     time.Duration
}

// NewDebouncer creates a new ticket debouncer
func NewDebouncer(input <-chan Ticket, quietPeriod, maxWait time.Duration) *Debouncer {
	if quietPeriod <= 0 {
		quietPeriod = DefaultQuietPeriod
	}
	if maxWait < quietPeriod {
		maxWait = 0
	}
	return &Debouncer{
		input:       input,
		output:      make(chan Ticket, 10),
		quietPeriod: quietPeriod,
		maxWait:     maxWait,
	}
}

// Start begins processing tickets with debouncing
func (d *Debouncer) Start(ctx context.Context) {
	go d.run(ctx)
}

// Output returns the channel of debounced tickets
func (d *Debouncer) Output() <-chan Ticket {
	return d.output
}

func (d *Debouncer) run(ctx context.Context) {
	defer close(d.output)

	var (
		pending   = make(map[string]Ticket)
		firstSeen = make(map[string]time.Time)
		lastSeen  = make(map[string]time.Time)
		timer     = time.NewTimer(time.Hour)
	)
	timer.Stop()

	due := func(field string) time.Time {
		at := lastSeen[field].Add(d.quietPeriod)
		if d.maxWait > 0 {
			if limit := firstSeen[field].Add(d.maxWait); limit.Before(at) {
				at = limit
			}
		}
		return at
	}

	rearm := func() {
		var earliest time.Time
		for field := range pending {
			if at := due(field); earliest.IsZero() || at.Before(earliest) {
				earliest = at
			}
		}
		if earliest.IsZero() {
			timer.Stop()
			return
		}
		timer.Reset(time.Until(earliest))
	}

	emit := func(t Ticket) bool {
		select {
		case d.output <- t:
			return true
		case <-ctx.Done():
			return false
		}
	}

	flush := func(now time.Time, all bool) bool {
		for field, t := range pending {
			if !all && due(field).After(now) {
				continue
			}
			delete(pending, field)
			delete(firstSeen, field)
			delete(lastSeen, field)
			logging.Trace("debounced query", "field", field, "token", t.Token)
			if !emit(t) {
				return false
			}
		}
		return true
	}

	for {
		select {
		case <-ctx.Done():
			// abandoned text is never resolved
			timer.Stop()
			return

		case t, ok := <-d.input:
			if !ok {
				timer.Stop()
				flush(time.Now(), true)
				return
			}
			now := time.Now()
			if _, waiting := pending[t.Field]; !waiting {
				firstSeen[t.Field] = now
			}
			pending[t.Field] = t
			lastSeen[t.Field] = now
			rearm()

		case now := <-timer.C:
			if !flush(now, false) {
				return
			}
			rearm()
		}
	}
}
