package history

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAndRecent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, pair := range [][2]string{{"A", "B"}, {"C", "D"}, {"E", "F"}} {
		_, err := s.Record(ctx, Search{
			RequestID: "req-" + pair[0],
			StartID:   pair[0],
			StartName: "Entity " + pair[0],
			EndID:     pair[1],
			Status:    "started",
			StartedAt: base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}

	recent, err := s.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "req-E", recent[0].RequestID)
	assert.Equal(t, "req-C", recent[1].RequestID)
	assert.Equal(t, "Entity E", recent[0].StartName)
	assert.Empty(t, recent[0].EndName)
	assert.Nil(t, recent[0].CompletedAt)
	assert.True(t, base.Add(2*time.Minute).Equal(recent[0].StartedAt))
}

func TestUpdateOutcome(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.Record(ctx, Search{RequestID: "req-1", StartID: "A", EndID: "B"})
	require.NoError(t, err)

	done := time.Date(2026, 3, 1, 12, 5, 0, 0, time.UTC)
	require.NoError(t, s.UpdateOutcome(ctx, "req-1", 3, 2, true, done))

	recent, err := s.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, 3, recent[0].Nodes)
	assert.Equal(t, 2, recent[0].Edges)
	assert.True(t, recent[0].PathFound)
	require.NotNil(t, recent[0].CompletedAt)
	assert.True(t, done.Equal(*recent[0].CompletedAt))
}

func TestUpdateOutcomeUnknownRequest(t *testing.T) {
	s := openTestStore(t)
	err := s.UpdateOutcome(context.Background(), "missing", 0, 0, false, time.Now())
	assert.True(t, errors.Is(err, ErrUnknownRequest))
}

func TestReopenKeepsHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	s, err := Open(path)
	require.NoError(t, err)
	_, err = s.Record(context.Background(), Search{RequestID: "req-1", StartID: "A", EndID: "B"})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	recent, err := s.Recent(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, recent, 1)
}
