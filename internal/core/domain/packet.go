package domain

import "time"

// PacketKind is the semantic category of a packet payload, derived from the
// JSON "type" field or from the port identifier of the binary envelope.
type PacketKind string

const (
	KindText       PacketKind = "text"
	KindNodeInfo   PacketKind = "nodeinfo"
	KindPosition   PacketKind = "position"
	KindTelemetry  PacketKind = "telemetry"
	KindRouting    PacketKind = "routing"
	KindAdmin      PacketKind = "admin"
	KindPaxCounter PacketKind = "paxcounter"
	KindWaypoint   PacketKind = "waypoint"
	KindAudio      PacketKind = "audio"
	KindIPTunnel   PacketKind = "ip_tunnel"
	KindUnknown    PacketKind = "unknown"
)

// Broadcast is the label used for the reserved all-nodes destination
// (0xffffffff) instead of a hex identifier.
const Broadcast = "Broadcast"

// PacketRecord is the canonical decoded form of one inbound packet.
// It is built once by the decoder and never mutated afterwards.
// Optional fields are pointers: nil means the wire payload did not carry
// the value, which is distinct from a zero value (e.g. hops == 0).
type PacketRecord struct {
	Topic     string     `json:"topic"`
	MessageID *string    `json:"message_id,omitempty"`
	Kind      PacketKind `json:"kind"`

	Sender      *string `json:"sender,omitempty"` // normalized "!hex" id
	SenderName  *string `json:"sender_name,omitempty"`
	SenderShort *string `json:"sender_short,omitempty"`

	Relay      *string `json:"relay,omitempty"` // node that republished to MQTT
	RelayName  *string `json:"relay_name,omitempty"`
	RelayShort *string `json:"relay_short,omitempty"`

	Destination      *string `json:"destination,omitempty"` // "!hex" or Broadcast
	DestinationName  *string `json:"destination_name,omitempty"`
	DestinationShort *string `json:"destination_short,omitempty"`

	Hops      *int     `json:"hops,omitempty"`
	Text      *string  `json:"text,omitempty"`
	Timestamp *int64   `json:"timestamp,omitempty"` // unix seconds from the packet itself
	RSSI      *int     `json:"rssi,omitempty"`
	SNR       *float64 `json:"snr,omitempty"`

	// Raw is the untouched wire payload, kept for verbatim re-publication.
	Raw []byte `json:"-"`

	ReceivedAt time.Time `json:"received_at"`
}

// HasText reports whether the packet is a text message with a non-empty
// body. Unknown-kind records carry a best-effort dump in Text for logging
// and never count as text here.
func (p *PacketRecord) HasText() bool {
	return p.Kind == KindText && p.Text != nil && *p.Text != ""
}

// SenderLabel returns the best human-readable identity for the sender:
// long name, then short name, then the raw id.
func (p *PacketRecord) SenderLabel() string {
	if p.SenderName != nil && *p.SenderName != "" {
		return *p.SenderName
	}
	if p.SenderShort != nil && *p.SenderShort != "" {
		return *p.SenderShort
	}
	if p.Sender != nil {
		return *p.Sender
	}
	return ""
}
