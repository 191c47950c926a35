package domain

import "time"

// Position is a node's last reported location in degrees.
type Position struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`
	Altitude  *int    `json:"alt,omitempty"` // meters above sea level
}

// NodeRecord is one directory entry for a mesh participant.
// Records are created on first sighting and mutated in place afterwards;
// they are never deleted during normal operation.
type NodeRecord struct {
	ID        string    `json:"id"` // normalized "!hex"
	LongName  *string   `json:"longname,omitempty"`
	ShortName *string   `json:"shortname,omitempty"`
	Position  *Position `json:"position,omitempty"`

	UpdatedAt         time.Time  `json:"updated_at"`
	PositionUpdatedAt *time.Time `json:"position_updated_at,omitempty"`
}

// Name returns the preferred display name: long name over short name.
func (n *NodeRecord) Name() *string {
	if n.LongName != nil && *n.LongName != "" {
		return n.LongName
	}
	if n.ShortName != nil && *n.ShortName != "" {
		return n.ShortName
	}
	return nil
}

// HasPosition reports whether the record holds coordinates.
func (n *NodeRecord) HasPosition() bool {
	return n.Position != nil
}
