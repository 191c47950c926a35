package decode

import (
	"encoding/json"

	"github.com/meshgram/meshgram/internal/core/domain"
)

var jsonKinds = map[string]domain.PacketKind{
	"text":       domain.KindText,
	"nodeinfo":   domain.KindNodeInfo,
	"position":   domain.KindPosition,
	"telemetry":  domain.KindTelemetry,
	"routing":    domain.KindRouting,
	"admin":      domain.KindAdmin,
	"paxcounter": domain.KindPaxCounter,
	"waypoint":   domain.KindWaypoint,
	"audio":      domain.KindAudio,
	"ip_tunnel":  domain.KindIPTunnel,
}

// parseJSON decodes the textual payload encoding: a flat object with a
// kind-specific "payload" sub-object. Returns nil when the bytes are not a
// JSON object.
func parseJSON(payload []byte) *packetFields {
	var raw map[string]any
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil
	}

	f := &packetFields{Kind: domain.KindUnknown}
	if typeName, ok := raw["type"].(string); ok {
		if kind, known := jsonKinds[typeName]; known {
			f.Kind = kind
		}
	}

	f.MessageID = raw["id"]
	f.From = raw["from"]
	f.Relay = raw["sender"]
	f.To = raw["to"]

	f.HopsAway = asInt(raw["hops_away"])
	f.HopStart = asInt(raw["hop_start"])
	f.HopLimit = asInt(raw["hop_limit"])
	f.Timestamp = asInt64(raw["rx_time"])
	if f.Timestamp == nil {
		f.Timestamp = asInt64(raw["timestamp"])
	}
	f.RSSI = asInt(raw["rssi"])
	f.SNR = asFloat(raw["snr"])

	sub, _ := raw["payload"].(map[string]any)

	switch f.Kind {
	case domain.KindText:
		if sub != nil {
			f.Text = asString(sub["text"])
		}
		if f.Text == nil {
			f.Text = asString(raw["text"])
		}
	case domain.KindNodeInfo:
		if sub != nil {
			// Identity fields appear in snake_case or camelCase depending on
			// the publishing firmware.
			f.LongName = firstString(sub, "longname", "long_name", "longName")
			f.ShortName = firstString(sub, "shortname", "short_name", "shortName")
			f.InfoID = firstValue(sub, "id", "user_id", "userId")
		}
	case domain.KindPosition:
		if sub != nil {
			f.Latitude = asFloat(sub["latitude_i"])
			f.Longitude = asFloat(sub["longitude_i"])
			f.Altitude = asInt(sub["altitude"])
		}
	}
	return f
}

func firstString(m map[string]any, keys ...string) *string {
	for _, key := range keys {
		if s := asString(m[key]); s != nil {
			return s
		}
	}
	return nil
}

func firstValue(m map[string]any, keys ...string) any {
	for _, key := range keys {
		if v, ok := m[key]; ok && v != nil {
			return v
		}
	}
	return nil
}

func asString(v any) *string {
	if s, ok := v.(string); ok && s != "" {
		return &s
	}
	return nil
}

func asInt(v any) *int {
	if n, ok := v.(float64); ok {
		i := int(n)
		return &i
	}
	return nil
}

func asInt64(v any) *int64 {
	if n, ok := v.(float64); ok {
		i := int64(n)
		return &i
	}
	return nil
}

func asFloat(v any) *float64 {
	if n, ok := v.(float64); ok {
		return &n
	}
	return nil
}
