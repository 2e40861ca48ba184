package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ritzau/relgraph/pkg/controller"
	"github.com/ritzau/relgraph/pkg/initiator"
	"github.com/ritzau/relgraph/pkg/output"
	"github.com/ritzau/relgraph/pkg/pubsub"
	"github.com/ritzau/relgraph/pkg/stream"
	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"
)

var searchWait time.Duration

var searchCmd = &cobra.Command{
	Use:   "search <start> <end>",
	Short: "Find the relationship path between two entities",
	Long: `Resolve <start> and <end> to exact entity matches, start a relationship
search on the backend and wait for the first result on the push channel.

The assembled graph and the session log are printed when the result arrives.

Exit codes:
  0  Result received
  3  An entity did not resolve, the backend refused the search, or the
     channel closed before a result
  4  No result before --wait elapsed`,
	Args: cobra.ExactArgs(2),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().DurationVar(&searchWait, "wait", 30*time.Second, "How long to wait for a result")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	client := newBackendClient(cfg)
	r := newResolver(client)

	start, err := resolveExact(ctx, r, controller.FieldStart, args[0])
	if err != nil {
		return withExitCode(ExitDataError, err)
	}
	end, err := resolveExact(ctx, r, controller.FieldEnd, args[1])
	if err != nil {
		return withExitCode(ExitDataError, err)
	}

	publisher := pubsub.NewSessionPublisher(cfg.SessionLog.Capacity)
	defer publisher.Close()
	graphs, err := publisher.Subscribe(ctx, pubsub.TopicGraph)
	if err != nil {
		return err
	}
	states, err := publisher.Subscribe(ctx, pubsub.TopicSessionState)
	if err != nil {
		return err
	}

	ctl := newController(cfg, client, controller.WithPublisher(publisher))
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return ctl.Run(gctx)
	})

	waitErr := func() error {
		select {
		case <-ctl.Ready():
		case <-gctx.Done():
			return gctx.Err()
		}
		job, err := ctl.SearchPair(gctx, start, end)
		if err != nil {
			var ie *initiator.InitiationError
			if errors.As(err, &ie) {
				return withExitCode(ExitDataError, fmt.Errorf("%w. %s", err, ie.Guidance()))
			}
			return withExitCode(ExitDataError, err)
		}
		return awaitResult(gctx, graphs.Events(), states.Events(), job.RequestID, searchWait)
	}()

	snap := ctl.Snapshot()
	if waitErr == nil {
		output.PrintSnapshot(os.Stdout, snap)
	}
	output.PrintLog(os.Stderr, ctl.Log())

	cancel()
	_ = g.Wait()
	return waitErr
}

// awaitResult waits for the first graph of a job. It gives up early when the
// job's channel closes before a result arrives.
func awaitResult(ctx context.Context, graphs, states <-chan pubsub.Event, requestID string, wait time.Duration) error {
	timeout := time.NewTimer(wait)
	defer timeout.Stop()

	for {
		select {
		case <-graphs:
			return nil
		case ev, ok := <-states:
			if !ok {
				states = nil
				continue
			}
			if ev.Type != stream.StateClosed.String() {
				continue
			}
			if gjson.GetBytes(ev.Data, "request_id").String() != requestID {
				continue
			}
			reason := gjson.GetBytes(ev.Data, "close_reason").String()
			if reason == "" {
				reason = "channel closed"
			}
			return withExitCode(ExitDataError, fmt.Errorf("no result: %s", reason))
		case <-timeout.C:
			return withExitCode(ExitTimeout, fmt.Errorf("no result within %s", wait))
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
