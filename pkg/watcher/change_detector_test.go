package watcher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ritzau/relgraph/pkg/config"
)

func baseConfig() *config.Config {
	c := &config.Config{Port: 3000}
	c.Backend.URL = "http://localhost:8080"
	c.Backend.Rate = 10
	c.Log.Level = "info"
	c.Stream.HeartbeatInterval = 30 * time.Second
	return c
}

func TestAnalyzeChanges(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(c *config.Config)
		backendURL  bool
		logLevel    bool
		needRestart bool
	}{
		{name: "nothing", mutate: func(c *config.Config) {}},
		{name: "backend url", mutate: func(c *config.Config) { c.Backend.URL = "http://other:8080" }, backendURL: true},
		{name: "log level", mutate: func(c *config.Config) { c.Log.Level = "debug" }, logLevel: true},
		{name: "port", mutate: func(c *config.Config) { c.Port = 4000 }, needRestart: true},
		{name: "stream timing", mutate: func(c *config.Config) { c.Stream.HeartbeatInterval = time.Second }, needRestart: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := baseConfig()
			tt.mutate(next)
			a := AnalyzeChanges(baseConfig(), next)
			if a.BackendURL != tt.backendURL {
				t.Errorf("BackendURL = %v, want %v", a.BackendURL, tt.backendURL)
			}
			if a.LogLevel != tt.logLevel {
				t.Errorf("LogLevel = %v, want %v", a.LogLevel, tt.logLevel)
			}
			if a.NeedRestart != tt.needRestart {
				t.Errorf("NeedRestart = %v, want %v (%v)", a.NeedRestart, tt.needRestart, a.RestartReasons)
			}
		})
	}
}

func TestReloadAppliesChanges(t *testing.T) {
	events := make(chan ChangeEvent, 3)
	loads := []*config.Config{nil, baseConfig(), baseConfig()}
	loads[2].Backend.URL = "http://moved:9090"
	errs := []error{errors.New("parse error"), nil, nil}

	i := 0
	load := func() (*config.Config, error) {
		c, err := loads[i], errs[i]
		i++
		return c, err
	}

	var applied []string
	apply := func(c *config.Config, a *ChangeAnalysis) {
		if !a.BackendURL {
			t.Errorf("Expected backend URL change, got %+v", a)
		}
		applied = append(applied, c.Backend.URL)
	}

	for range loads {
		events <- ChangeEvent{Path: "relgraph.toml"}
	}
	close(events)
	Reload(context.Background(), events, baseConfig(), load, apply)

	// the invalid file and the unchanged file are skipped
	if len(applied) != 1 || applied[0] != "http://moved:9090" {
		t.Errorf("Expected one applied change, got %v", applied)
	}
}
