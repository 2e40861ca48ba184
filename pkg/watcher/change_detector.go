package watcher

import (
	"context"

	"github.com/ritzau/relgraph/pkg/config"
	"github.com/ritzau/relgraph/pkg/logging"
)

// ChangeAnalysis describes which settings changed and whether they can be
// applied to the running process.
type ChangeAnalysis struct {
	BackendURL     bool
	BackendRate    bool
	LogLevel       bool
	NeedRestart    bool     // changes that only take effect on the next start
	RestartReasons []string // keys of those changes
}

// Any reports whether anything changed.
func (a *ChangeAnalysis) Any() bool {
	return a.BackendURL || a.BackendRate || a.LogLevel || a.NeedRestart
}

// AnalyzeChanges compares two configurations.
func AnalyzeChanges(old, cur *config.Config) *ChangeAnalysis {
	a := &ChangeAnalysis{
		BackendURL:  old.Backend.URL != cur.Backend.URL,
		BackendRate: old.Backend.Rate != cur.Backend.Rate,
		LogLevel:    old.Log.Level != cur.Log.Level,
	}

	restart := func(key string, changed bool) {
		if changed {
			a.NeedRestart = true
			a.RestartReasons = append(a.RestartReasons, key)
		}
	}
	restart("port", old.Port != cur.Port)
	restart("log.json", old.Log.JSON != cur.Log.JSON)
	restart("history.path", old.History.Path != cur.History.Path)
	restart("stream", old.Stream != cur.Stream)
	restart("resolver", old.Resolver != cur.Resolver)
	restart("backend.timeout", old.Backend.Timeout != cur.Backend.Timeout)
	restart("sessionlog.capacity", old.SessionLog.Capacity != cur.SessionLog.Capacity)
	return a
}

// Reload consumes change events, reloads the configuration with load and
// hands every effective change to apply. It returns when events closes.
func Reload(ctx context.Context, events <-chan ChangeEvent, current *config.Config,
	load func() (*config.Config, error), apply func(*config.Config, *ChangeAnalysis)) {
	for ev := range events {
		next, err := load()
		if err != nil {
			logging.WarnContext(ctx, "ignoring invalid config change", "path", ev.Path, "error", err)
			continue
		}

		analysis := AnalyzeChanges(current, next)
		if !analysis.Any() {
			logging.Debug("config file touched without changes", "path", ev.Path)
			continue
		}
		if analysis.NeedRestart {
			logging.Warn("config changes need a restart", "keys", analysis.RestartReasons)
		}
		logging.Info("config reloaded", "path", ev.Path,
			"backendURL", analysis.BackendURL, "logLevel", analysis.LogLevel)
		apply(next, analysis)
		current = next
	}
}
