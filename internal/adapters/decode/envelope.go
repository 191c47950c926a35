package decode

import (
	"encoding/hex"
	"log/slog"
	"math"
	"strings"
	"unicode/utf8"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/meshgram/meshgram/internal/core/domain"
)

// Wire field numbers of the mesh envelope, kept in one place.
const (
	envPacket    = 1
	envGatewayID = 3

	pktFrom     = 1
	pktTo       = 2
	pktDecoded  = 4
	pktID       = 6
	pktRxTime   = 7
	pktRxSNR    = 8
	pktHopLimit = 9
	pktRxRSSI   = 12
	pktHopStart = 15

	dataPort    = 1
	dataPayload = 2

	userID        = 1
	userLongName  = 2
	userShortName = 3

	posLatitudeI  = 1
	posLongitudeI = 2
	posAltitude   = 3
)

var portNames = map[uint64]string{
	1:  "TEXT_MESSAGE_APP",
	3:  "POSITION_APP",
	4:  "NODEINFO_APP",
	5:  "ROUTING_APP",
	6:  "ADMIN_APP",
	7:  "TEXT_MESSAGE_COMPRESSED_APP",
	8:  "WAYPOINT_APP",
	9:  "AUDIO_APP",
	33: "IP_TUNNEL_APP",
	34: "PAXCOUNTER_APP",
	67: "TELEMETRY_APP",
}

// kindFromPort maps a port name onto a packet kind by substring, so future
// port aliases with the same stem still classify.
func kindFromPort(name string) domain.PacketKind {
	n := strings.ToLower(name)
	switch {
	case strings.Contains(n, "text_message_compressed"):
		return domain.KindText
	case strings.Contains(n, "text_message"):
		return domain.KindText
	case strings.Contains(n, "nodeinfo"):
		return domain.KindNodeInfo
	case strings.Contains(n, "position"):
		return domain.KindPosition
	case strings.Contains(n, "telemetry"):
		return domain.KindTelemetry
	case strings.Contains(n, "routing"):
		return domain.KindRouting
	case strings.Contains(n, "admin"):
		return domain.KindAdmin
	case strings.Contains(n, "paxcounter"):
		return domain.KindPaxCounter
	case strings.Contains(n, "waypoint"):
		return domain.KindWaypoint
	case strings.Contains(n, "audio"):
		return domain.KindAudio
	case strings.Contains(n, "ip_tunnel"):
		return domain.KindIPTunnel
	default:
		return domain.KindUnknown
	}
}

// parseEnvelope walks the binary service envelope field by field with
// protowire. Unknown fields are skipped, truncated input returns nil.
func parseEnvelope(payload []byte) *packetFields {
	var packet []byte
	var gateway string

	b := payload
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil
		}
		b = b[n:]
		switch {
		case num == envPacket && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil
			}
			packet = v
			b = b[n:]
		case num == envGatewayID && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil
			}
			gateway = string(v)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil
			}
			b = b[n:]
		}
	}
	if packet == nil {
		return nil
	}

	f := parseMeshPacket(packet)
	if f == nil {
		return nil
	}
	if f.Relay == nil && gateway != "" {
		f.Relay = gateway
	}
	return f
}

func parseMeshPacket(packet []byte) *packetFields {
	f := &packetFields{Kind: domain.KindUnknown}

	b := packet
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil
		}
		b = b[n:]
		switch {
		case num == pktFrom && typ == protowire.Fixed32Type:
			v, n := protowire.ConsumeFixed32(b)
			if n < 0 {
				return nil
			}
			f.From = v
			b = b[n:]
		case num == pktTo && typ == protowire.Fixed32Type:
			v, n := protowire.ConsumeFixed32(b)
			if n < 0 {
				return nil
			}
			f.To = v
			b = b[n:]
		case num == pktDecoded && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil
			}
			parseData(f, v)
			b = b[n:]
		case num == pktID && typ == protowire.Fixed32Type:
			v, n := protowire.ConsumeFixed32(b)
			if n < 0 {
				return nil
			}
			f.MessageID = v
			b = b[n:]
		case num == pktRxTime && typ == protowire.Fixed32Type:
			v, n := protowire.ConsumeFixed32(b)
			if n < 0 {
				return nil
			}
			ts := int64(v)
			f.Timestamp = &ts
			b = b[n:]
		case num == pktRxSNR && typ == protowire.Fixed32Type:
			v, n := protowire.ConsumeFixed32(b)
			if n < 0 {
				return nil
			}
			snr := float64(math.Float32frombits(v))
			f.SNR = &snr
			b = b[n:]
		case num == pktHopLimit && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil
			}
			hl := int(v)
			f.HopLimit = &hl
			b = b[n:]
		case num == pktRxRSSI && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil
			}
			rssi := int(int32(v))
			f.RSSI = &rssi
			b = b[n:]
		case num == pktHopStart && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil
			}
			hs := int(v)
			f.HopStart = &hs
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil
			}
			b = b[n:]
		}
	}
	return f
}

// parseData unwraps the inner data message: a port number selecting the
// kind and a per-kind payload blob. Encrypted packets never reach here, so
// an empty result stays kind unknown.
func parseData(f *packetFields, data []byte) {
	var port uint64
	var blob []byte

	b := data
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return
		}
		b = b[n:]
		switch {
		case num == dataPort && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return
			}
			port = v
			b = b[n:]
		case num == dataPayload && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return
			}
			blob = v
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return
			}
			b = b[n:]
		}
	}

	name, known := portNames[port]
	if !known {
		return
	}
	f.Kind = kindFromPort(name)

	switch f.Kind {
	case domain.KindText:
		text := textFromBlob(name, blob)
		if text != "" {
			f.Text = &text
		}
	case domain.KindNodeInfo:
		parseUser(f, blob)
	case domain.KindPosition:
		parsePosition(f, blob)
	}
}

// textFromBlob extracts the message body. Compressed text has no decoder
// here; when the blob happens to be readable it is used as-is, otherwise it
// degrades to hex.
func textFromBlob(portName string, blob []byte) string {
	if strings.Contains(strings.ToLower(portName), "compressed") && !utf8.Valid(blob) {
		slog.Warn("compressed text payload not decodable, keeping hex dump", "size", len(blob))
		return hex.EncodeToString(blob)
	}
	if utf8.Valid(blob) {
		return string(blob)
	}
	return hex.EncodeToString(blob)
}

func parseUser(f *packetFields, blob []byte) {
	b := blob
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return
		}
		b = b[n:]
		if typ != protowire.BytesType {
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return
			}
			b = b[n:]
			continue
		}
		v, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return
		}
		b = b[n:]
		s := string(v)
		switch num {
		case userID:
			if s != "" {
				f.InfoID = s
			}
		case userLongName:
			if s != "" {
				f.LongName = &s
			}
		case userShortName:
			if s != "" {
				f.ShortName = &s
			}
		}
	}
}

func parsePosition(f *packetFields, blob []byte) {
	b := blob
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return
		}
		b = b[n:]
		switch {
		case num == posLatitudeI && typ == protowire.Fixed32Type:
			v, n := protowire.ConsumeFixed32(b)
			if n < 0 {
				return
			}
			lat := float64(int32(v))
			f.Latitude = &lat
			b = b[n:]
		case num == posLongitudeI && typ == protowire.Fixed32Type:
			v, n := protowire.ConsumeFixed32(b)
			if n < 0 {
				return
			}
			lon := float64(int32(v))
			f.Longitude = &lon
			b = b[n:]
		case num == posAltitude && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return
			}
			alt := int(int32(v))
			f.Altitude = &alt
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return
			}
			b = b[n:]
		}
	}
}
