package domain

import "time"

// RoutingMode is the audience scope under which a packet is processed.
type RoutingMode string

const (
	ModeAll          RoutingMode = "all"           // everything, including non-text packets
	ModePrivate      RoutingMode = "private"       // addressed user only
	ModeGroup        RoutingMode = "group"         // shared channel only
	ModePrivateGroup RoutingMode = "private_group" // shared channel + addressed user
)

// Observation records that one node reported having received a logical
// message. Entries are created once and never mutated.
type Observation struct {
	NodeID    string    `json:"node_id"` // the receiving node, from the topic tail or gateway id
	NodeName  *string   `json:"node_name,omitempty"`
	NodeShort *string   `json:"node_short,omitempty"`
	RSSI      *int      `json:"rssi,omitempty"`
	SNR       *float64  `json:"snr,omitempty"`
	Hops      *int      `json:"hops,omitempty"`
	RelayID   *string   `json:"relay_id,omitempty"` // node that forwarded to this receiver
	RelayName *string   `json:"relay_name,omitempty"`
	SeenAt    time.Time `json:"seen_at"`
}

// ReceptionGroup aggregates every observation of one logical message and the
// single outbound notification that represents them. The observation list
// holds at most one entry per node id.
type ReceptionGroup struct {
	MessageID      string        `json:"message_id"`
	NotificationID *int          `json:"notification_id,omitempty"` // nil until the first post succeeds
	Packet         *PacketRecord `json:"packet,omitempty"`          // the triggering packet
	ObservedBy     []Observation `json:"observed_by"`
	CreatedAt      time.Time     `json:"created_at"`
	LastUpdated    time.Time     `json:"last_updated"`
}

// AddObserver appends the observation unless its node id is already present.
// It never touches LastUpdated: whether an observation extends the edit
// window is the aggregation engine's decision, since a stale group keeps
// recording observers without reopening its window.
func (g *ReceptionGroup) AddObserver(obs Observation) bool {
	for _, existing := range g.ObservedBy {
		if existing.NodeID == obs.NodeID {
			return false
		}
	}
	g.ObservedBy = append(g.ObservedBy, obs)
	return true
}
