package initiator

import (
	"context"
	"errors"
	"testing"

	"github.com/ritzau/relgraph/pkg/backend"
	"github.com/ritzau/relgraph/pkg/resolver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubStarter struct {
	job   *backend.RelationshipJob
	err   error
	calls int
}

func (s *stubStarter) StartRelationshipSearch(ctx context.Context, one, two string) (*backend.RelationshipJob, error) {
	s.calls++
	return s.job, s.err
}

func TestInitiateRejectsEmptyStartWithoutCall(t *testing.T) {
	s := &stubStarter{}
	_, err := New(s).Initiate(context.Background(), "", "Q2")

	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "start", vErr.Field)
	assert.Zero(t, s.calls)
}

func TestInitiateRejectsEmptyEnd(t *testing.T) {
	s := &stubStarter{}
	_, err := New(s).Initiate(context.Background(), "Q1", "   ")

	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "end", vErr.Field)
	assert.Zero(t, s.calls)
}

func TestInitiateSuccess(t *testing.T) {
	s := &stubStarter{job: &backend.RelationshipJob{
		RequestID: "job-7",
		Channel:   backend.ChannelAddress{Host: "127.0.0.1", Port: 9001},
		Status:    "running",
	}}

	job, err := New(s).Initiate(context.Background(), "Q1", "Q2")
	require.NoError(t, err)
	assert.Equal(t, "job-7", job.RequestID)
	assert.Equal(t, 9001, job.Channel.Port)
	assert.Equal(t, "Q1", job.StartID)
	assert.Equal(t, 1, s.calls)
}

func TestInitiateBackendFailure(t *testing.T) {
	s := &stubStarter{err: &backend.APIError{StatusCode: 500, Message: "graph offline"}}

	_, err := New(s).Initiate(context.Background(), "Q1", "Q2")
	var iErr *InitiationError
	require.ErrorAs(t, err, &iErr)
	assert.Contains(t, iErr.Guidance(), "graph offline")
}

func TestInitiateIncompleteJob(t *testing.T) {
	s := &stubStarter{job: &backend.RelationshipJob{RequestID: "job-8"}}

	_, err := New(s).Initiate(context.Background(), "Q1", "Q2")
	var iErr *InitiationError
	require.ErrorAs(t, err, &iErr)
	assert.True(t, errors.Is(err, backend.ErrInvalidResponse))
}

func TestRequireExactMatch(t *testing.T) {
	start := resolver.NewField("start")
	end := resolver.NewField("end")

	tk := start.SetText("Albert Einstein")
	start.Apply(tk, []resolver.Candidate{{ID: "Q937", Title: "Albert Einstein"}})
	tk = end.SetText("Bohr")
	end.Apply(tk, []resolver.Candidate{{ID: "Q7085", Title: "Niels Bohr"}})

	_, _, err := RequireExactMatch(start, end)
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "end", vErr.Field)
	assert.Contains(t, vErr.Error(), "pick one from the list")

	end.Select("Q7085")
	s, e, err := RequireExactMatch(start, end)
	require.NoError(t, err)
	assert.Equal(t, "Q937", s.ID)
	assert.Equal(t, "Q7085", e.ID)
}
