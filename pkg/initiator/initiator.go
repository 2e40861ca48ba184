// Package initiator starts relationship search jobs on the backend.
package initiator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ritzau/relgraph/pkg/backend"
	"github.com/ritzau/relgraph/pkg/logging"
	"github.com/ritzau/relgraph/pkg/resolver"
)

// Starter performs the backend call.
type Starter interface {
	StartRelationshipSearch(ctx context.Context, entityOne, entityTwo string) (*backend.RelationshipJob, error)
}

// Job is a started relationship search.
type Job struct {
	RequestID string
	Channel   backend.ChannelAddress
	Status    string
	StartID   string
	EndID     string
}

// ValidationError blocks a search before any network call is made.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// InitiationError reports that the backend did not start a job.
type InitiationError struct {
	StartID string
	EndID   string
	Err     error
}

func (e *InitiationError) Error() string {
	return fmt.Sprintf("starting relationship search %s -> %s: %v", e.StartID, e.EndID, e.Err)
}

func (e *InitiationError) Unwrap() error {
	return e.Err
}

// Guidance is a user-facing hint for an initiation failure.
func (e *InitiationError) Guidance() string {
	var apiErr *backend.APIError
	switch {
	case backend.IsNetworkError(e.Err):
		return "The backend is unreachable. Check that it is running and try again."
	case errors.As(e.Err, &apiErr) && apiErr.Message != "":
		return fmt.Sprintf("The backend refused the search: %s", apiErr.Message)
	case errors.Is(e.Err, backend.ErrInvalidResponse):
		return "The backend answered without a job id or channel address. Try again later."
	}
	return "The relationship search could not be started. Try again."
}

// Initiator starts jobs through a Starter.
type Initiator struct {
	starter Starter
}

// New creates an Initiator.
func New(s Starter) *Initiator {
	return &Initiator{starter: s}
}

// Initiate asks the backend to compute the path between two resolved entities.
// Empty ids fail with a ValidationError without calling the backend.
func (i *Initiator) Initiate(ctx context.Context, startID, endID string) (*Job, error) {
	startID = strings.TrimSpace(startID)
	endID = strings.TrimSpace(endID)
	if startID == "" {
		return nil, &ValidationError{Field: "start", Reason: "an entity id is required"}
	}
	if endID == "" {
		return nil, &ValidationError{Field: "end", Reason: "an entity id is required"}
	}

	logging.InfoContext(ctx, "starting relationship search", "start", startID, "end", endID)
	rj, err := i.starter.StartRelationshipSearch(ctx, startID, endID)
	if err != nil {
		return nil, &InitiationError{StartID: startID, EndID: endID, Err: err}
	}
	if rj == nil || rj.RequestID == "" || rj.Channel.Host == "" || rj.Channel.Port <= 0 {
		return nil, &InitiationError{StartID: startID, EndID: endID, Err: backend.ErrInvalidResponse}
	}

	logging.InfoContext(ctx, "relationship search started",
		"jobID", rj.RequestID,
		"channel", fmt.Sprintf("%s:%d", rj.Channel.Host, rj.Channel.Port),
		"status", rj.Status,
	)
	return &Job{
		RequestID: rj.RequestID,
		Channel:   rj.Channel,
		Status:    rj.Status,
		StartID:   startID,
		EndID:     endID,
	}, nil
}

// RequireExactMatch returns the ids of the candidates whose titles match the
// text of both fields exactly. Anything else is a ValidationError whose message
// tells the user what to do.
func RequireExactMatch(start, end *resolver.Field) (resolver.Candidate, resolver.Candidate, error) {
	s, ok := start.Match()
	if !ok {
		return resolver.Candidate{}, resolver.Candidate{}, unmatched(start)
	}
	e, ok := end.Match()
	if !ok {
		return resolver.Candidate{}, resolver.Candidate{}, unmatched(end)
	}
	return s, e, nil
}

func unmatched(f *resolver.Field) error {
	text := strings.TrimSpace(f.Text())
	if text == "" {
		return &ValidationError{Field: f.Name(), Reason: "enter an entity to search for"}
	}
	return &ValidationError{
		Field:  f.Name(),
		Reason: fmt.Sprintf("%q does not match a suggestion; pick one from the list", text),
	}
}
