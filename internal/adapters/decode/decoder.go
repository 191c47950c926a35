package decode

import (
	"encoding/hex"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/meshgram/meshgram/internal/core/domain"
	"github.com/meshgram/meshgram/internal/core/ports"
)

// Decoder turns raw MQTT payloads into canonical packet records. A nil
// directory disables name enrichment and identity/position side effects.
type Decoder struct {
	directory ports.NodeDirectory
	now       func() time.Time
}

func New(directory ports.NodeDirectory) *Decoder {
	return &Decoder{directory: directory, now: time.Now}
}

// DetectEncoding classifies a topic by shape: the binary envelope rides on
// an "/e/" segment, everything else carries JSON.
func (d *Decoder) DetectEncoding(topic string) ports.PayloadEncoding {
	if strings.Contains(topic, "/e/") && !strings.Contains(topic, "/json/") {
		return ports.EncodingProtobuf
	}
	return ports.EncodingJSON
}

// Decode never fails: payloads that cannot be parsed come back as an
// unknown-kind record carrying a best-effort dump, so logging and fan-out
// keep working.
func (d *Decoder) Decode(topic string, payload []byte) *domain.PacketRecord {
	var fields *packetFields
	switch d.DetectEncoding(topic) {
	case ports.EncodingProtobuf:
		fields = parseEnvelope(payload)
	default:
		fields = parseJSON(payload)
	}
	if fields == nil {
		slog.Debug("undecodable payload", "topic", topic, "size", len(payload))
		return d.unknownRecord(topic, payload)
	}
	return d.build(topic, payload, fields)
}

// RefreshDirectory parses purely for node-identity and position side
// effects, producing no record. Called for payloads whose detected encoding
// is not the configured one.
func (d *Decoder) RefreshDirectory(topic string, payload []byte) {
	if d.directory == nil {
		return
	}
	var fields *packetFields
	switch d.DetectEncoding(topic) {
	case ports.EncodingProtobuf:
		fields = parseEnvelope(payload)
	default:
		fields = parseJSON(payload)
	}
	if fields == nil {
		return
	}
	switch fields.Kind {
	case domain.KindNodeInfo:
		d.applyIdentity(fields)
	case domain.KindPosition:
		d.applyPosition(fields)
	}
}

func (d *Decoder) build(topic string, payload []byte, f *packetFields) *domain.PacketRecord {
	p := &domain.PacketRecord{
		Topic:      topic,
		Kind:       f.Kind,
		Raw:        payload,
		ReceivedAt: d.now(),
	}
	p.MessageID = f.messageIDString()
	p.Sender = domain.NormalizeNodeID(f.From)
	p.Relay = domain.NormalizeNodeID(f.Relay)
	p.Destination = domain.NormalizeDestination(f.To)
	p.Hops = resolveHops(f)
	p.Text = f.Text
	p.Timestamp = f.Timestamp
	p.RSSI = f.RSSI
	p.SNR = f.SNR

	switch f.Kind {
	case domain.KindNodeInfo:
		d.applyIdentity(f)
	case domain.KindPosition:
		d.applyPosition(f)
		d.enrichNames(p)
	default:
		d.enrichNames(p)
	}
	return p
}

// resolveHops prefers an explicit hop count and falls back to
// hop_start - hop_limit when both are present and non-negative.
func resolveHops(f *packetFields) *int {
	if f.HopsAway != nil {
		return f.HopsAway
	}
	if f.HopStart != nil && f.HopLimit != nil {
		diff := *f.HopStart - *f.HopLimit
		if diff >= 0 {
			return &diff
		}
	}
	return nil
}

func (d *Decoder) applyIdentity(f *packetFields) {
	if d.directory == nil {
		return
	}
	id := domain.NormalizeNodeID(f.InfoID)
	if id == nil {
		id = domain.NormalizeNodeID(f.From)
	}
	if id == nil {
		slog.Warn("nodeinfo packet without a node id")
		return
	}
	d.directory.UpdateIdentity(*id, f.LongName, f.ShortName, false)
}

func (d *Decoder) applyPosition(f *packetFields) {
	if d.directory == nil {
		return
	}
	id := domain.NormalizeNodeID(f.From)
	if id == nil {
		slog.Debug("position packet without a sender id")
		return
	}
	if f.Latitude == nil || f.Longitude == nil {
		slog.Debug("position packet without coordinates", "node_id", *id)
		return
	}
	lat, lon := *f.Latitude, *f.Longitude
	// Binary payloads scale coordinates by 1e7; JSON may carry plain degrees.
	if lat > 1000 || lat < -1000 || lon > 1000 || lon < -1000 {
		lat /= 1e7
		lon /= 1e7
	}
	d.directory.UpdatePosition(*id, lat, lon, f.Altitude, false)
}

// enrichNames fills display names for sender, relay and destination from
// the directory. Reads only.
func (d *Decoder) enrichNames(p *domain.PacketRecord) {
	if d.directory == nil {
		return
	}
	if p.Sender != nil {
		p.SenderName = d.directory.GetName(*p.Sender)
		p.SenderShort = d.directory.GetShortName(*p.Sender)
	}
	if p.Relay != nil {
		p.RelayName = d.directory.GetName(*p.Relay)
		p.RelayShort = d.directory.GetShortName(*p.Relay)
	}
	if p.Destination != nil && *p.Destination != domain.Broadcast {
		p.DestinationName = d.directory.GetName(*p.Destination)
		p.DestinationShort = d.directory.GetShortName(*p.Destination)
	}
}

func (d *Decoder) unknownRecord(topic string, payload []byte) *domain.PacketRecord {
	dump := dumpPayload(payload)
	return &domain.PacketRecord{
		Topic:      topic,
		Kind:       domain.KindUnknown,
		Text:       &dump,
		Raw:        payload,
		ReceivedAt: d.now(),
	}
}

// dumpPayload renders a payload as text when it is valid UTF-8 and as hex
// otherwise.
func dumpPayload(payload []byte) string {
	if utf8.Valid(payload) {
		return string(payload)
	}
	return hex.EncodeToString(payload)
}
