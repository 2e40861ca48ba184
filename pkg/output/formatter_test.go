package output

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/ritzau/relgraph/pkg/graph"
	"github.com/ritzau/relgraph/pkg/model"
	"github.com/ritzau/relgraph/pkg/resolver"
	"github.com/ritzau/relgraph/pkg/sessionlog"
)

func init() {
	color.NoColor = true
}

func TestPrintCandidates(t *testing.T) {
	var buf bytes.Buffer
	PrintCandidates(&buf, "curie", []resolver.Candidate{
		{ID: "Q7186", Title: "Marie Curie", Description: "physicist"},
		{ID: "Pierre Curie", Title: "Pierre Curie"},
	})

	out := buf.String()
	for _, want := range []string{`Candidates for "curie"`, "1. Marie Curie  [Q7186]", "physicist", "2. Pierre Curie\n"} {
		if !strings.Contains(out, want) {
			t.Errorf("Output missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	PrintCandidates(&buf, "zz", nil)
	if !strings.Contains(buf.String(), "no matches") {
		t.Errorf("Expected no matches, got %q", buf.String())
	}
}

func TestPrintSnapshot(t *testing.T) {
	snap := graph.Assemble(
		[]model.Entity{{ID: "A", Name: "Alpha"}, {ID: "B", Name: "Beta"}, {ID: "X", Name: "Chi"}, {ID: "C", Name: "Gamma"}},
		[]model.Relationship{
			{EntitySrc: "A", EntityDst: "B", RelationshipType: "cites"},
			{EntitySrc: "B", EntityDst: "C"},
		},
	)

	var buf bytes.Buffer
	PrintSnapshot(&buf, snap)
	out := buf.String()

	for _, want := range []string{"Alpha → Beta → Gamma", "Nodes explored: 4", "off_path Chi", "Alpha → Beta  cites"} {
		if !strings.Contains(out, want) {
			t.Errorf("Output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "did not reach") {
		t.Errorf("Path was found but output says otherwise:\n%s", out)
	}
}

func TestPrintSnapshotEmpty(t *testing.T) {
	var buf bytes.Buffer
	PrintSnapshot(&buf, model.NewSnapshot())
	if !strings.Contains(buf.String(), "No entities") {
		t.Errorf("Unexpected output %q", buf.String())
	}
}

func TestPrintLog(t *testing.T) {
	var buf bytes.Buffer
	PrintLog(&buf, []sessionlog.Entry{
		{Timestamp: time.Date(2026, 3, 1, 9, 30, 5, 0, time.UTC), Message: "Channel open, sent init"},
	})
	if got := buf.String(); got != "09:30:05 Channel open, sent init\n" {
		t.Errorf("Unexpected log line %q", got)
	}
}
