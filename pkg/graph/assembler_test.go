package graph

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/ritzau/relgraph/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ents(ids ...string) []model.Entity {
	out := make([]model.Entity, 0, len(ids))
	for _, id := range ids {
		out = append(out, model.Entity{ID: id, Name: "Entity " + id})
	}
	return out
}

func rel(src, dst string) model.Relationship {
	return model.Relationship{EntitySrc: src, EntityDst: dst, RelationshipType: "related_to"}
}

func classes(s *model.Snapshot) map[string]model.Classification {
	out := make(map[string]model.Classification, len(s.Nodes))
	for _, n := range s.Nodes {
		out[n.ID] = n.Classification
	}
	return out
}

func TestAssembleLinearPath(t *testing.T) {
	snap := Assemble(ents("A", "B", "C"), []model.Relationship{rel("A", "B"), rel("B", "C")})

	assert.Equal(t, map[string]model.Classification{
		"A": model.ClassStart,
		"B": model.ClassOnPath,
		"C": model.ClassEnd,
	}, classes(snap))
	assert.Len(t, snap.Edges, 2)
	assert.True(t, snap.PathFound)
	assert.Equal(t, []string{"A", "B", "C"}, snap.Path)

	a, _ := snap.Node("A")
	c, _ := snap.Node("C")
	b, _ := snap.Node("B")
	assert.Equal(t, ColorStart, a.Color)
	assert.Equal(t, ColorEnd, c.Color)
	assert.Equal(t, ColorOnPath, b.Color)
	for _, n := range snap.Nodes {
		assert.NotEqual(t, model.ClassOffPath, n.Classification)
	}
}

func TestAssembleUnknownEndpointDropped(t *testing.T) {
	report := AssembleReport(ents("A", "B"), []model.Relationship{rel("A", "Z")})
	snap := report.Snapshot

	assert.Empty(t, snap.Edges)
	require.Len(t, snap.Nodes, 2)
	assert.Equal(t, "A", snap.Nodes[0].ID)
	assert.Equal(t, "B", snap.Nodes[1].ID)
	require.Len(t, report.Dropped, 1)

	a, _ := snap.Node("A")
	b, _ := snap.Node("B")
	assert.Equal(t, model.ClassStart, a.Classification)
	assert.True(t, a.OnPath)
	assert.Equal(t, model.ClassEnd, b.Classification)
	assert.False(t, b.OnPath, "unreached end is off the path")
	assert.False(t, snap.PathFound)
}

func TestAssembleOffPathNodes(t *testing.T) {
	snap := Assemble(ents("A", "X", "B", "C"), []model.Relationship{
		rel("A", "B"), rel("X", "A"), rel("B", "C"), rel("A", "X"),
	})

	got := classes(snap)
	assert.Equal(t, model.ClassOffPath, got["X"])
	assert.Equal(t, model.ClassOnPath, got["B"])
	x, _ := snap.Node("X")
	assert.Equal(t, ColorOffPath, x.Color)
	assert.Equal(t, 1.0, x.Val)
}

func TestAssembleCycleGuard(t *testing.T) {
	report := AssembleReport(ents("A", "B", "C", "D"), []model.Relationship{
		rel("A", "B"), rel("B", "C"), rel("C", "A"), rel("C", "D"),
	})

	// the first edge out of C goes back to A, so the trace stops at C
	assert.Equal(t, []string{"A", "B", "C"}, report.Snapshot.Path)
	assert.False(t, report.Snapshot.PathFound)
	assert.True(t, report.Reachable)
	require.Len(t, report.Cycles, 1)
	assert.Equal(t, []string{"A", "B", "C"}, report.Cycles[0].Members)
}

func TestAssembleRoleMarkersOverridePosition(t *testing.T) {
	entities := ents("B", "A", "C")
	entities[1].Role = model.RoleStart
	entities[0].Role = model.RoleEnd

	snap := Assemble(entities, []model.Relationship{rel("A", "C"), rel("C", "B")})
	got := classes(snap)
	assert.Equal(t, model.ClassStart, got["A"])
	assert.Equal(t, model.ClassEnd, got["B"])
	assert.Equal(t, model.ClassOnPath, got["C"])
}

func TestAssembleDeduplicatesNodes(t *testing.T) {
	entities := append(ents("A", "B"), model.Entity{ID: "A", Name: "later copy"}, model.Entity{ID: "C"})
	snap := Assemble(entities, nil)

	require.Len(t, snap.Nodes, 3)
	a, _ := snap.Node("A")
	assert.Equal(t, "Entity A", a.Name)
	assert.Equal(t, 3, snap.Explored)
}

func TestAssembleSingleEntity(t *testing.T) {
	snap := Assemble(ents("A"), nil)
	require.Len(t, snap.Nodes, 1)
	assert.Equal(t, model.ClassStart, snap.Nodes[0].Classification)
	assert.True(t, snap.PathFound)
}

func TestAssembleEmpty(t *testing.T) {
	snap := Assemble(nil, []model.Relationship{rel("A", "B")})
	assert.Empty(t, snap.Nodes)
	assert.Empty(t, snap.Edges)
}

func TestAssembleAtMostOneStartAndEnd(t *testing.T) {
	entities := ents("A", "B", "C")
	entities[0].Role = model.RoleStart
	entities[1].Role = model.RoleStart
	snap := Assemble(entities, nil)

	counts := map[model.Classification]int{}
	for _, n := range snap.Nodes {
		counts[n.Classification]++
	}
	assert.LessOrEqual(t, counts[model.ClassStart], 1)
	assert.LessOrEqual(t, counts[model.ClassEnd], 1)
}

func randomInput(r *rand.Rand) ([]model.Entity, []model.Relationship) {
	n := 1 + r.Intn(8)
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("e%d", i)
	}
	rels := make([]model.Relationship, r.Intn(20))
	for i := range rels {
		// ids up to n+2 so some endpoints are unknown
		rels[i] = rel(fmt.Sprintf("e%d", r.Intn(n+2)), fmt.Sprintf("e%d", r.Intn(n+2)))
	}
	return ents(ids...), rels
}

func TestFilterRelationshipsIdempotent(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 200; i++ {
		entities, rels := randomInput(r)
		known := map[string]bool{}
		for _, e := range entities {
			known[e.ID] = true
		}

		once, _ := FilterRelationships(rels, known)
		twice, dropped := FilterRelationships(once, known)
		assert.Equal(t, once, twice)
		assert.Empty(t, dropped)
	}
}

func TestTracePathTerminates(t *testing.T) {
	r := rand.New(rand.NewSource(2))
	for i := 0; i < 200; i++ {
		entities, rels := randomInput(r)
		start, end := entities[0].ID, entities[len(entities)-1].ID

		path, _ := TracePath(start, end, rels, len(entities))
		assert.LessOrEqual(t, len(path)-1, len(entities), "steps exceed entity count")

		seen := map[string]bool{}
		for _, id := range path {
			assert.False(t, seen[id], "node %s visited twice", id)
			seen[id] = true
		}
	}
}

func TestEveryEdgeEndpointIsANode(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	for i := 0; i < 200; i++ {
		entities, rels := randomInput(r)
		snap := Assemble(entities, rels)
		for _, e := range snap.Edges {
			_, okSrc := snap.Node(e.Source)
			_, okDst := snap.Node(e.Target)
			assert.True(t, okSrc && okDst, "edge %s->%s has unknown endpoint", e.Source, e.Target)
		}
	}
}

func TestWithUserEdge(t *testing.T) {
	snap := Assemble(ents("A", "B"), nil)
	next := snap.WithUserEdge("B", "A", "annotated")

	assert.Empty(t, snap.Edges, "original snapshot must not change")
	require.Len(t, next.Edges, 1)
	assert.True(t, next.Edges[0].IsUserCreated)
	assert.Equal(t, snap.Version+1, next.Version)
}
