package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/ritzau/relgraph/pkg/backend"
	"github.com/ritzau/relgraph/pkg/config"
	"github.com/ritzau/relgraph/pkg/controller"
	"github.com/ritzau/relgraph/pkg/history"
	"github.com/ritzau/relgraph/pkg/logging"
	"github.com/ritzau/relgraph/pkg/pubsub"
	"github.com/ritzau/relgraph/pkg/resolver"
	"github.com/ritzau/relgraph/pkg/stream"
	"github.com/ritzau/relgraph/pkg/watcher"
	"github.com/ritzau/relgraph/pkg/web"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web front end",
	Long: `Serve the web front end and its API on --port.

The backend proxy routes, the session API and the live SSE feeds share one
listener. With --watch the config file is reloaded on change and a new
backend URL or log level takes effect without a restart.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func streamPolicy(c *config.Config) stream.Policy {
	return stream.Policy{
		HandshakeTimeout:    c.Stream.HandshakeTimeout,
		HeartbeatInterval:   c.Stream.HeartbeatInterval,
		HeartbeatTimeout:    c.Stream.HeartbeatTimeout,
		CheckInterval:       c.Stream.CheckInterval,
		ReconnectAttempts:   c.Stream.ReconnectAttempts,
		ReconnectBackoff:    c.Stream.ReconnectBackoff,
		ReconnectMaxBackoff: c.Stream.ReconnectMaxBackoff,
	}
}

func newController(c *config.Config, client *backend.Client, opts ...controller.Option) *controller.Controller {
	base := []controller.Option{
		controller.WithStreamPolicy(streamPolicy(c)),
		controller.WithResolverOptions(
			resolver.WithSize(c.Resolver.Size),
			resolver.WithMinChars(c.Resolver.MinChars),
		),
		controller.WithDebounce(c.Resolver.Debounce),
		controller.WithLogCapacity(c.SessionLog.Capacity),
	}
	return controller.New(client, append(base, opts...)...)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := newBackendClient(cfg)
	publisher := pubsub.NewSessionPublisher(cfg.SessionLog.Capacity)
	defer publisher.Close()

	ctlOpts := []controller.Option{controller.WithPublisher(publisher)}
	var serverOpts []web.ServerOption
	if cfg.History.Path != "" {
		store, err := history.Open(cfg.History.Path)
		if err != nil {
			return withExitCode(ExitConfigError, err)
		}
		defer store.Close()
		ctlOpts = append(ctlOpts, controller.WithHistory(store))
		serverOpts = append(serverOpts, web.WithHistory(store))
	}

	ctl := newController(cfg, client, ctlOpts...)
	server := web.NewServer(client, ctl, publisher, serverOpts...)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return ctl.Run(ctx)
	})
	g.Go(func() error {
		return server.Run(ctx, fmt.Sprintf(":%d", cfg.Port))
	})

	if cfg.Watch {
		if err := startConfigWatch(ctx, g, client); err != nil {
			logging.Warn("config watch disabled", "error", err)
		}
	}

	logging.Info("relgraph ready", "url", fmt.Sprintf("http://localhost:%d", cfg.Port), "backend", cfg.Backend.URL)
	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	logging.Info("relgraph stopped")
	return nil
}

func startConfigWatch(ctx context.Context, g *errgroup.Group, client *backend.Client) error {
	path := configPath
	if path == "" {
		path = config.DefaultFile
	}
	fw, err := watcher.NewFileWatcher(path)
	if err != nil {
		return err
	}
	if err := fw.Start(ctx); err != nil {
		return err
	}

	flags := rootCmd.PersistentFlags()
	load := func() (*config.Config, error) {
		return config.Load(configPath, flags)
	}
	apply := func(next *config.Config, a *watcher.ChangeAnalysis) {
		if a.BackendURL {
			client.SetBaseURL(next.Backend.URL)
			logging.Info("backend URL changed", "backend", next.Backend.URL)
		}
		if a.BackendRate {
			client.SetRate(next.Backend.Rate)
		}
		if a.LogLevel {
			if err := logging.Configure(next.Log.Level, cfg.Log.JSON); err != nil {
				logging.Warn("ignoring log level", "level", next.Log.Level, "error", err)
			}
		}
	}

	g.Go(func() error {
		watcher.Reload(ctx, fw.Events(), cfg, load, apply)
		return nil
	})
	return nil
}
