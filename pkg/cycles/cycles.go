// Package cycles reports strongly connected components of relationship graphs.
package cycles

import (
	"sort"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/topo"
)

// Cycle is a set of nodes that can all reach each other.
type Cycle struct {
	Members []string `json:"members"`
}

// Find returns every strongly connected component with more than one node.
// name maps gonum node ids back to caller ids; members are sorted for stable output.
func Find(g graph.Directed, name func(int64) string) []Cycle {
	sccs := topo.TarjanSCC(g)

	cycles := make([]Cycle, 0)
	for _, scc := range sccs {
		if len(scc) < 2 {
			continue
		}
		members := make([]string, 0, len(scc))
		for _, n := range scc {
			members = append(members, name(n.ID()))
		}
		sort.Strings(members)
		cycles = append(cycles, Cycle{Members: members})
	}

	sort.Slice(cycles, func(i, j int) bool {
		return cycles[i].Members[0] < cycles[j].Members[0]
	})
	return cycles
}
