package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ritzau/relgraph/pkg/backend"
	"github.com/ritzau/relgraph/pkg/output"
	"github.com/ritzau/relgraph/pkg/resolver"
	"github.com/spf13/cobra"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <query>",
	Short: "List entity candidates for a query",
	Long: `Ask the backend for entities matching <query> and print the candidates,
limited by --size. Queries shorter than the minimum length print nothing.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runResolve,
}

func init() {
	rootCmd.AddCommand(resolveCmd)
}

func newResolver(client *backend.Client) *resolver.Resolver {
	return resolver.New(client,
		resolver.WithSize(cfg.Resolver.Size),
		resolver.WithMinChars(cfg.Resolver.MinChars),
	)
}

func runResolve(cmd *cobra.Command, args []string) error {
	query := strings.Join(args, " ")
	candidates, err := newResolver(newBackendClient(cfg)).Resolve(cmd.Context(), query)
	if err != nil {
		return withExitCode(ExitDataError, err)
	}
	output.PrintCandidates(os.Stdout, query, candidates)
	return nil
}

// resolveExact resolves text into a field and requires an exact title or id match.
func resolveExact(ctx context.Context, r *resolver.Resolver, name, text string) (resolver.Candidate, error) {
	field := resolver.NewField(name)
	ticket := field.SetText(text)

	candidates, err := r.Resolve(ctx, text)
	if err != nil {
		return resolver.Candidate{}, err
	}
	field.Apply(ticket, candidates)

	if c, ok := field.Match(); ok {
		return c, nil
	}
	output.PrintCandidates(os.Stderr, text, candidates)
	return resolver.Candidate{}, fmt.Errorf("%s entity %q does not match a candidate exactly", name, text)
}
