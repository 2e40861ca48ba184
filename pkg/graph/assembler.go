// Package graph turns result payloads into render-ready snapshots.
package graph

import (
	"github.com/ritzau/relgraph/pkg/cycles"
	"github.com/ritzau/relgraph/pkg/logging"
	"github.com/ritzau/relgraph/pkg/model"
)

// Report is a snapshot together with what was discarded or noticed while
// building it.
type Report struct {
	Snapshot  *model.Snapshot
	Dropped   []model.Relationship // relationships with an unknown endpoint
	Cycles    []cycles.Cycle
	Reachable bool // some directed path leads from Start to End
}

// Assemble builds a snapshot from one result payload.
func Assemble(entities []model.Entity, relationships []model.Relationship) *model.Snapshot {
	return AssembleReport(entities, relationships).Snapshot
}

// AssembleReport builds a snapshot and reports dropped relationships, cycles and
// reachability. The snapshot is self-contained: every edge endpoint is a node.
func AssembleReport(entities []model.Entity, relationships []model.Relationship) Report {
	snap := model.NewSnapshot()

	nodes, order := projectEntities(entities)
	if len(order) == 0 {
		if len(relationships) > 0 {
			logging.Warn("result without entities", "relationships", len(relationships))
		}
		return Report{Snapshot: snap, Dropped: append([]model.Relationship(nil), relationships...)}
	}

	startID, endID := endpoints(entities, order)

	known := make(map[string]bool, len(order))
	for _, id := range order {
		known[id] = true
	}
	kept, dropped := FilterRelationships(relationships, known)
	for _, r := range dropped {
		logging.Debug("dropping relationship with unknown endpoint",
			"src", r.EntitySrc, "dst", r.EntityDst, "type", r.RelationshipType)
	}
	if len(dropped) > 0 {
		logging.Warn("relationships dropped", "dropped", len(dropped), "kept", len(kept))
	}
	if len(kept) == 0 {
		logging.Warn("no relationships survived filtering", "entities", len(order))
	}

	path, found := TracePath(startID, endID, kept, len(order))
	onPath := make(map[string]bool, len(path))
	for _, id := range path {
		onPath[id] = true
	}

	for _, id := range order {
		n := nodes[id]
		switch {
		case id == startID:
			n.Classification = model.ClassStart
			n.OnPath = true
		case id == endID:
			n.Classification = model.ClassEnd
			n.OnPath = found
		case onPath[id]:
			n.Classification = model.ClassOnPath
			n.OnPath = true
		default:
			n.Classification = model.ClassOffPath
		}
		n.Color = ColorFor(n.Classification)
		n.Val = ValFor(n.Classification)
		snap.Nodes = append(snap.Nodes, n)
	}

	for _, r := range kept {
		snap.Edges = append(snap.Edges, model.GraphEdge{
			Source:           r.EntitySrc,
			Target:           r.EntityDst,
			RelationshipType: r.RelationshipType,
			Description:      r.ShortDescription,
			RefLink:          r.RefLink,
		})
	}
	snap.Path = path
	snap.PathFound = found
	snap.Explored = len(snap.Nodes)

	rg := BuildRelationGraph(order, kept)
	report := Report{
		Snapshot:  snap,
		Dropped:   dropped,
		Cycles:    rg.Cycles(),
		Reachable: rg.Reachable(startID, endID),
	}
	if !found && report.Reachable {
		logging.Warn("end is reachable but the first-edge trace missed it",
			"start", startID, "end", endID)
	}
	for _, c := range report.Cycles {
		logging.Warn("relationships form a cycle", "members", c.Members)
	}
	return report
}

// projectEntities converts entities to nodes keyed by id, keeping the first
// occurrence of each id and the arrival order.
func projectEntities(entities []model.Entity) (map[string]model.GraphNode, []string) {
	nodes := make(map[string]model.GraphNode, len(entities))
	order := make([]string, 0, len(entities))
	for _, e := range entities {
		if e.ID == "" {
			logging.Debug("skipping entity without id", "name", e.Name)
			continue
		}
		if _, dup := nodes[e.ID]; dup {
			continue
		}
		nodes[e.ID] = model.GraphNode{
			ID:          e.ID,
			Name:        e.Name,
			RefLink:     e.RefLink,
			EntityType:  e.EntityType,
			Description: e.ShortDescription,
		}
		order = append(order, e.ID)
	}
	return nodes, order
}

// endpoints picks Start and End. Explicit role markers win; otherwise the first
// and last entities of the payload are the endpoints.
func endpoints(entities []model.Entity, order []string) (string, string) {
	startID, endID := order[0], order[len(order)-1]
	for _, e := range entities {
		if e.ID == "" {
			continue
		}
		switch e.Role {
		case model.RoleStart:
			startID = e.ID
		case model.RoleEnd:
			endID = e.ID
		}
	}
	return startID, endID
}

// FilterRelationships keeps relationships whose endpoints are both known, in
// their original order. Filtering its own output again changes nothing.
func FilterRelationships(rels []model.Relationship, known map[string]bool) (kept, dropped []model.Relationship) {
	kept = make([]model.Relationship, 0, len(rels))
	for _, r := range rels {
		if known[r.EntitySrc] && known[r.EntityDst] {
			kept = append(kept, r)
		} else {
			dropped = append(dropped, r)
		}
	}
	return kept, dropped
}

// TracePath walks from start by following, at each node, the first relationship
// leaving it. The walk stops at end, at a node without outgoing relationships, or
// before revisiting a node, and never takes more than maxSteps steps. It returns
// the visited ids in order, starting with start, and whether end was reached.
func TracePath(start, end string, rels []model.Relationship, maxSteps int) ([]string, bool) {
	first := make(map[string]string, len(rels))
	for _, r := range rels {
		if _, seen := first[r.EntitySrc]; !seen {
			first[r.EntitySrc] = r.EntityDst
		}
	}

	path := []string{start}
	visited := map[string]bool{start: true}
	current := start
	for steps := 0; current != end && steps < maxSteps; steps++ {
		next, ok := first[current]
		if !ok || visited[next] {
			break
		}
		visited[next] = true
		path = append(path, next)
		current = next
	}
	return path, current == end
}
