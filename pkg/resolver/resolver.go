// Package resolver turns free-text entity queries into ranked candidates and
// keeps per-field query state so that late answers never overwrite newer ones.
package resolver

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	// DefaultSize is the number of candidates requested per query.
	DefaultSize = 5

	// DefaultMinChars is the shortest trimmed query that is sent to the backend.
	DefaultMinChars = 2
)

// Searcher performs the raw entity search call.
type Searcher interface {
	SearchEntities(ctx context.Context, keyword string, size int) ([]byte, error)
}

// ResolutionError reports a failed entity search, either at the transport or
// because the body could not be parsed.
type ResolutionError struct {
	Query string
	Err   error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolving %q: %v", e.Query, e.Err)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// Resolver resolves queries through a Searcher.
type Resolver struct {
	searcher Searcher
	size     int
	minChars int
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithSize sets how many candidates are requested.
func WithSize(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.size = n
		}
	}
}

// WithMinChars sets the minimum query length.
func WithMinChars(n int) Option {
	return func(r *Resolver) {
		if n >= 0 {
			r.minChars = n
		}
	}
}

// New creates a Resolver.
func New(s Searcher, opts ...Option) *Resolver {
	r := &Resolver{
		searcher: s,
		size:     DefaultSize,
		minChars: DefaultMinChars,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Eligible reports whether a query is long enough to be sent.
func (r *Resolver) Eligible(query string) bool {
	q := strings.TrimSpace(query)
	return q != "" && utf8.RuneCountInString(q) >= r.minChars
}

// Resolve returns candidates for query. Queries shorter than the minimum length
// return an empty result without a request.
func (r *Resolver) Resolve(ctx context.Context, query string) ([]Candidate, error) {
	if !r.Eligible(query) {
		return []Candidate{}, nil
	}

	q := strings.TrimSpace(query)
	body, err := r.searcher.SearchEntities(ctx, q, r.size)
	if err != nil {
		return nil, &ResolutionError{Query: q, Err: err}
	}

	candidates, err := Normalize(body)
	if err != nil {
		return nil, &ResolutionError{Query: q, Err: err}
	}
	return candidates, nil
}
