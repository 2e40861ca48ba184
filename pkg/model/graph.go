package model

// Classification partitions graph nodes for rendering. The renderer depends on the
// four-way distinction; the exact colors are chosen in pkg/graph.
type Classification string

const (
	ClassStart   Classification = "start"
	ClassEnd     Classification = "end"
	ClassOnPath  Classification = "on_path"
	ClassOffPath Classification = "off_path"
)

// GraphNode is the render-ready projection of an Entity.
type GraphNode struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	RefLink        string         `json:"ref_link"`
	EntityType     string         `json:"entity_type"`
	Description    string         `json:"description"`
	Classification Classification `json:"classification"`
	OnPath         bool           `json:"on_path"`
	Color          string         `json:"color"`
	Val            float64        `json:"val"` // node size hint for the force layout
}

// GraphEdge is the render-ready projection of a Relationship, or a link the user
// drew between two nodes.
type GraphEdge struct {
	Source           string `json:"source"`
	Target           string `json:"target"`
	RelationshipType string `json:"relationship_type"`
	Description      string `json:"description"`
	RefLink          string `json:"ref_link"`
	IsUserCreated    bool   `json:"isUserCreated"`
}

// Snapshot is the complete graph state at a point in time. A snapshot is never
// mutated after it has been handed out; updates produce a new snapshot.
type Snapshot struct {
	RequestID string      `json:"request_id,omitempty"`
	Nodes     []GraphNode `json:"nodes"`
	Edges     []GraphEdge `json:"edges"`
	Path      []string    `json:"path"`       // node ids visited by the path trace, in order
	PathFound bool        `json:"path_found"` // trace reached the End node
	Explored  int         `json:"explored"`
	Version   int         `json:"version"`
}

// NewSnapshot creates an empty snapshot.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		Nodes: make([]GraphNode, 0),
		Edges: make([]GraphEdge, 0),
		Path:  make([]string, 0),
	}
}

// Node returns the node with the given id.
func (s *Snapshot) Node(id string) (GraphNode, bool) {
	for _, n := range s.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return GraphNode{}, false
}

// Clone returns a deep copy of the snapshot.
func (s *Snapshot) Clone() *Snapshot {
	c := *s
	c.Nodes = append(make([]GraphNode, 0, len(s.Nodes)), s.Nodes...)
	c.Edges = append(make([]GraphEdge, 0, len(s.Edges)), s.Edges...)
	c.Path = append(make([]string, 0, len(s.Path)), s.Path...)
	return &c
}

// WithUserEdge returns a copy of the snapshot with a user-created edge appended.
// User edges skip relationship filtering: their endpoints come from node clicks.
func (s *Snapshot) WithUserEdge(source, target, label string) *Snapshot {
	c := s.Clone()
	c.Edges = append(c.Edges, GraphEdge{
		Source:           source,
		Target:           target,
		RelationshipType: label,
		IsUserCreated:    true,
	})
	c.Version++
	return c
}
