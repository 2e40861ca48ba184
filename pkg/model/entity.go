package model

// EntityRole is an optional marker a backend may attach to an entity to name the
// endpoints of the search explicitly.
type EntityRole string

const (
	RoleNone  EntityRole = ""
	RoleStart EntityRole = "start"
	RoleEnd   EntityRole = "end"
)

// Entity represents a backend-identified topic. Entities are immutable once received.
type Entity struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	RefLink          string     `json:"ref_link"`
	EntityType       string     `json:"entity_type"`
	ShortDescription string     `json:"short_description"`
	Role             EntityRole `json:"role,omitempty"`
}

// Relationship represents a directed, typed connection between two entities.
type Relationship struct {
	EntitySrc        string `json:"entity_src"`
	EntityDst        string `json:"entity_dst"`
	RelationshipType string `json:"relationship_type"`
	ShortDescription string `json:"short_description"`
	RefLink          string `json:"ref_link"`
}
