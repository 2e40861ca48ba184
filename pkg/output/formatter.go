// Package output prints search results to the terminal.
package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/ritzau/relgraph/pkg/model"
	"github.com/ritzau/relgraph/pkg/resolver"
	"github.com/ritzau/relgraph/pkg/sessionlog"
)

var (
	bold   = color.New(color.Bold)
	faint  = color.New(color.Faint)
	yellow = color.New(color.FgYellow)
)

// classColor mirrors the graph palette in the terminal.
func classColor(c model.Classification) *color.Color {
	switch c {
	case model.ClassStart:
		return color.New(color.FgGreen, color.Bold)
	case model.ClassEnd:
		return color.New(color.FgRed, color.Bold)
	case model.ClassOnPath:
		return color.New(color.FgMagenta)
	default:
		return color.New(color.FgHiBlack)
	}
}

// PrintCandidates prints the suggestions for a query.
func PrintCandidates(w io.Writer, query string, candidates []resolver.Candidate) {
	bold.Fprintf(w, "Candidates for %q\n", query)
	if len(candidates) == 0 {
		yellow.Fprintln(w, "  no matches")
		return
	}
	for i, c := range candidates {
		fmt.Fprintf(w, "  %d. %s", i+1, c.Title)
		if c.ID != c.Title {
			faint.Fprintf(w, "  [%s]", c.ID)
		}
		fmt.Fprintln(w)
		if c.Description != "" {
			faint.Fprintf(w, "     %s\n", c.Description)
		}
	}
}

// PrintSnapshot prints the path, then every node by classification, then edges.
func PrintSnapshot(w io.Writer, snap *model.Snapshot) {
	names := make(map[string]string, len(snap.Nodes))
	for _, n := range snap.Nodes {
		names[n.ID] = n.Name
		if n.Name == "" {
			names[n.ID] = n.ID
		}
	}

	bold.Fprintln(w, "Relationship path")
	bold.Fprintln(w, "=================")
	if len(snap.Nodes) == 0 {
		yellow.Fprintln(w, "No entities in the result")
		return
	}

	hops := make([]string, 0, len(snap.Path))
	for _, id := range snap.Path {
		n, _ := snap.Node(id)
		hops = append(hops, classColor(n.Classification).Sprint(names[id]))
	}
	fmt.Fprintln(w, strings.Join(hops, " → "))
	if !snap.PathFound {
		yellow.Fprintln(w, "(the trace did not reach the end entity)")
	}
	fmt.Fprintf(w, "Nodes explored: %d\n\n", snap.Explored)

	for _, n := range snap.Nodes {
		classColor(n.Classification).Fprintf(w, "  %-8s", n.Classification)
		fmt.Fprintf(w, " %s", names[n.ID])
		if n.EntityType != "" {
			faint.Fprintf(w, " (%s)", n.EntityType)
		}
		fmt.Fprintln(w)
	}

	if len(snap.Edges) > 0 {
		fmt.Fprintln(w)
		for _, e := range snap.Edges {
			fmt.Fprintf(w, "  %s → %s", names[e.Source], names[e.Target])
			if e.RelationshipType != "" {
				faint.Fprintf(w, "  %s", e.RelationshipType)
			}
			fmt.Fprintln(w)
		}
	}
}

// PrintLog prints session log entries in the order given.
func PrintLog(w io.Writer, entries []sessionlog.Entry) {
	for _, e := range entries {
		faint.Fprintf(w, "%s ", e.Timestamp.Format("15:04:05"))
		fmt.Fprintln(w, e.Message)
	}
}
