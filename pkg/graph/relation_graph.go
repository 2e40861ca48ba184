package graph

import (
	"github.com/ritzau/relgraph/pkg/cycles"
	"github.com/ritzau/relgraph/pkg/model"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// RelationGraph indexes entity ids into a gonum directed graph for analyses the
// path trace does not cover: reachability and cycle reporting.
type RelationGraph struct {
	graph *simple.DirectedGraph
	ids   map[string]int64
	names []string
}

// NewRelationGraph creates an empty graph
func NewRelationGraph() *RelationGraph {
	return &RelationGraph{
		graph: simple.NewDirectedGraph(),
		ids:   make(map[string]int64),
	}
}

// BuildRelationGraph indexes the given node ids and relationships. Relationships
// with unknown endpoints are ignored.
func BuildRelationGraph(nodeIDs []string, rels []model.Relationship) *RelationGraph {
	rg := NewRelationGraph()
	for _, id := range nodeIDs {
		rg.AddEntity(id)
	}
	for _, r := range rels {
		rg.AddRelation(r.EntitySrc, r.EntityDst)
	}
	return rg
}

// AddEntity adds a node; repeated ids are ignored.
func (rg *RelationGraph) AddEntity(id string) {
	if _, exists := rg.ids[id]; exists {
		return
	}
	nid := int64(len(rg.names))
	rg.ids[id] = nid
	rg.names = append(rg.names, id)
	rg.graph.AddNode(simple.Node(nid))
}

// AddRelation adds a directed edge between two known entities. Self loops are
// skipped since simple graphs cannot hold them and they never lengthen a path.
func (rg *RelationGraph) AddRelation(src, dst string) bool {
	from, ok := rg.ids[src]
	if !ok {
		return false
	}
	to, ok := rg.ids[dst]
	if !ok || from == to {
		return false
	}
	if !rg.graph.HasEdgeFromTo(from, to) {
		rg.graph.SetEdge(rg.graph.NewEdge(simple.Node(from), simple.Node(to)))
	}
	return true
}

// Reachable reports whether any directed path leads from src to dst.
func (rg *RelationGraph) Reachable(src, dst string) bool {
	from, ok := rg.ids[src]
	if !ok {
		return false
	}
	to, ok := rg.ids[dst]
	if !ok {
		return false
	}
	if from == to {
		return true
	}
	return topo.PathExistsIn(rg.graph, simple.Node(from), simple.Node(to))
}

// Cycles returns the groups of entities that reach each other.
func (rg *RelationGraph) Cycles() []cycles.Cycle {
	return cycles.Find(rg.graph, func(id int64) string {
		return rg.names[id]
	})
}
