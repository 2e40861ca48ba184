package main

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/ritzau/relgraph/pkg/config"
	"github.com/ritzau/relgraph/pkg/pubsub"
	"github.com/ritzau/relgraph/pkg/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithExitCode(t *testing.T) {
	assert.NoError(t, withExitCode(ExitDataError, nil))

	base := errors.New("no match")
	err := withExitCode(ExitDataError, base)

	var ee *exitError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, ExitDataError, ee.code)
	assert.ErrorIs(t, err, base)
	assert.Equal(t, "no match", err.Error())
}

func TestStreamPolicyFromConfig(t *testing.T) {
	c := &config.Config{Stream: config.StreamConfig{
		HandshakeTimeout:    2 * time.Second,
		HeartbeatInterval:   10 * time.Second,
		HeartbeatTimeout:    3 * time.Second,
		CheckInterval:       500 * time.Millisecond,
		ReconnectAttempts:   2,
		ReconnectBackoff:    time.Second,
		ReconnectMaxBackoff: 4 * time.Second,
	}}

	p := streamPolicy(c)
	assert.Equal(t, 2*time.Second, p.HandshakeTimeout)
	assert.Equal(t, 10*time.Second, p.HeartbeatInterval)
	assert.Equal(t, 3*time.Second, p.HeartbeatTimeout)
	assert.Equal(t, 500*time.Millisecond, p.CheckInterval)
	assert.Equal(t, 2, p.ReconnectAttempts)
	assert.Equal(t, 4*time.Second, p.ReconnectMaxBackoff)
}

func TestSubcommandsRegistered(t *testing.T) {
	for _, name := range []string{"serve", "resolve", "search"} {
		cmd, _, err := rootCmd.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
	}
}

func TestConfigFlagsInherited(t *testing.T) {
	for _, name := range []string{"port", "backend", "rate", "size", "history", "log-level", "config"} {
		assert.NotNil(t, rootCmd.PersistentFlags().Lookup(name), name)
	}
	assert.NotNil(t, searchCmd.Flags().Lookup("wait"))
}

func stateEvent(t *testing.T, s stream.Session) pubsub.Event {
	t.Helper()
	data, err := json.Marshal(s)
	require.NoError(t, err)
	return pubsub.Event{Topic: pubsub.TopicSessionState, Type: s.State.String(), Data: data}
}

func exitCode(t *testing.T, err error) int {
	t.Helper()
	var ee *exitError
	require.ErrorAs(t, err, &ee)
	return ee.code
}

func TestAwaitResultReturnsOnGraph(t *testing.T) {
	graphs := make(chan pubsub.Event, 1)
	states := make(chan pubsub.Event, 2)
	states <- stateEvent(t, stream.Session{RequestID: "job-1", State: stream.StateOpen})
	states <- stateEvent(t, stream.Session{RequestID: "job-0", State: stream.StateClosed, CloseReason: "replaced"})
	graphs <- pubsub.Event{Topic: pubsub.TopicGraph, Type: "snapshot"}

	err := awaitResult(context.Background(), graphs, states, "job-1", 2*time.Second)
	assert.NoError(t, err)
}

func TestAwaitResultStopsWhenChannelCloses(t *testing.T) {
	states := make(chan pubsub.Event, 1)
	states <- stateEvent(t, stream.Session{
		RequestID:   "job-1",
		State:       stream.StateClosed,
		CloseReason: "handshake timed out",
	})

	start := time.Now()
	err := awaitResult(context.Background(), make(chan pubsub.Event), states, "job-1", time.Minute)
	require.Error(t, err)
	assert.Equal(t, ExitDataError, exitCode(t, err))
	assert.Contains(t, err.Error(), "handshake timed out")
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestAwaitResultTimesOut(t *testing.T) {
	err := awaitResult(context.Background(), make(chan pubsub.Event), make(chan pubsub.Event), "job-1", 20*time.Millisecond)
	require.Error(t, err)
	assert.Equal(t, ExitTimeout, exitCode(t, err))
}
