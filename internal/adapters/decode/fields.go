package decode

import (
	"strconv"

	"github.com/meshgram/meshgram/internal/core/domain"
)

// packetFields is the wire-level parse result shared by both encodings,
// before identifier normalization and directory enrichment.
type packetFields struct {
	Kind      domain.PacketKind
	MessageID any
	From      any // raw sender value
	Relay     any // gateway node that republished to MQTT
	To        any

	HopsAway *int
	HopStart *int
	HopLimit *int

	Timestamp *int64
	RSSI      *int
	SNR       *float64
	Text      *string

	// node-identity payload
	InfoID    any
	LongName  *string
	ShortName *string

	// position payload, raw scale
	Latitude  *float64
	Longitude *float64
	Altitude  *int
}

// messageIDString renders the message id as a stable string key regardless
// of its wire type.
func (f *packetFields) messageIDString() *string {
	switch v := f.MessageID.(type) {
	case nil:
		return nil
	case string:
		if v == "" {
			return nil
		}
		return &v
	case float64:
		s := strconv.FormatFloat(v, 'f', -1, 64)
		return &s
	case uint32:
		s := strconv.FormatUint(uint64(v), 10)
		return &s
	case uint64:
		s := strconv.FormatUint(v, 10)
		return &s
	case int:
		s := strconv.Itoa(v)
		return &s
	case int64:
		s := strconv.FormatInt(v, 10)
		return &s
	default:
		return nil
	}
}
