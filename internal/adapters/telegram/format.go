package telegram

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/meshgram/meshgram/internal/core/domain"
	"github.com/meshgram/meshgram/internal/core/ports"
)

// Formatter renders packet records as Telegram HTML. A nil directory
// disables position links.
type Formatter struct {
	directory ports.NodeDirectory
}

func NewFormatter(directory ports.NodeDirectory) *Formatter {
	return &Formatter{directory: directory}
}

// rssiGlyph maps an RSSI reading onto a quality indicator. LoRa readings
// live in -150..0 dBm; anything outside is treated as invalid.
func rssiGlyph(rssi *int) string {
	if rssi == nil {
		return "⚪"
	}
	v := *rssi
	if v >= 0 || v < -150 {
		return "⚪"
	}
	switch {
	case v > -80:
		return "🟢"
	case v >= -100:
		return "🟡"
	case v >= -120:
		return "🔴"
	default:
		return "⚫"
	}
}

// snrGlyph maps an SNR reading onto a quality indicator. Valid LoRa range
// is -20..30 dB.
func snrGlyph(snr *float64) string {
	if snr == nil {
		return "⚪"
	}
	v := *snr
	if v < -20 || v > 30 {
		return "⚪"
	}
	switch {
	case v >= 10:
		return "🟢"
	case v >= 5:
		return "🟡"
	case v >= 0:
		return "🟠"
	case v >= -5:
		return "🔴"
	default:
		return "⚫"
	}
}

// label renders "Long Name (SHRT)" falling back through short name and id.
func label(name, short, id *string) string {
	switch {
	case deref(name) != "" && deref(short) != "":
		return fmt.Sprintf("%s (%s)", html.EscapeString(*name), html.EscapeString(*short))
	case deref(name) != "":
		return html.EscapeString(*name)
	case deref(short) != "":
		return html.EscapeString(*short)
	case deref(id) != "":
		return html.EscapeString(*id)
	default:
		return ""
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Format renders a single-packet notification.
func (f *Formatter) Format(p *domain.PacketRecord) string {
	var parts []string

	parts = appendTimestamp(parts, p.Timestamp)
	parts = f.appendEnvelopeLines(parts, p)

	if p.Hops != nil {
		if *p.Hops == 0 {
			parts = append(parts, "📬 Direct delivery")
		} else {
			parts = append(parts, fmt.Sprintf("🔄 Relayed %d times", *p.Hops))
		}
	}

	if signal := signalLine(p.RSSI, p.SNR); signal != "" {
		parts = append(parts, signal)
	}

	if link := f.positionLink(p.Sender, "Sender location"); link != "" {
		parts = append(parts, link)
	}

	if p.Text != nil && *p.Text != "" {
		parts = append(parts, fmt.Sprintf("\n💬 <b>Message:</b>\n<blockquote>%s</blockquote>", html.EscapeString(*p.Text)))
	}

	if len(parts) == 0 {
		parts = append(parts, "📨 New mesh packet", html.EscapeString(p.Topic))
	}
	return strings.Join(parts, "\n")
}

// FormatGrouped renders the shared-channel notification with the full
// received-by listing. The observer list is already deduplicated.
func (f *Formatter) FormatGrouped(p *domain.PacketRecord, observers []domain.Observation) string {
	var parts []string

	parts = appendTimestamp(parts, p.Timestamp)
	parts = f.appendEnvelopeLines(parts, p)

	if len(observers) > 0 {
		parts = append(parts, "\n📥 <b>Received by:</b>")
		for _, obs := range observers {
			line := "  • " + label(obs.NodeName, obs.NodeShort, &obs.NodeID)
			if obs.Hops != nil {
				line += fmt.Sprintf(" 🔄 Hops: %d", *obs.Hops)
			} else {
				line += " 🔄 Hops: 0"
			}
			if signal := signalLine(obs.RSSI, obs.SNR); signal != "" {
				line += "\n     " + signal
			}
			if obs.RelayID != nil && (p.Sender == nil || *obs.RelayID != *p.Sender) {
				line += "\n     ⬆️ via " + label(obs.RelayName, nil, obs.RelayID)
			}
			parts = append(parts, line)
		}
	}

	if p.Text != nil && *p.Text != "" {
		parts = append(parts, fmt.Sprintf("\n💬 <b>Message:</b>\n<blockquote>%s</blockquote>", html.EscapeString(*p.Text)))
	}

	if len(parts) == 0 {
		parts = append(parts, "📨 New mesh packet", html.EscapeString(p.Topic))
	}
	return strings.Join(parts, "\n")
}

// FormatNonText renders kind-specific notifications for non-text packets.
// Unknown kinds render to an empty string and are never delivered.
func (f *Formatter) FormatNonText(p *domain.PacketRecord) string {
	sender := label(p.SenderName, p.SenderShort, p.Sender)
	if sender == "" {
		sender = "unknown node"
	}

	var parts []string
	switch p.Kind {
	case domain.KindNodeInfo:
		parts = append(parts, fmt.Sprintf("🪪 <b>Node info</b> from %s", sender))
	case domain.KindPosition:
		parts = append(parts, fmt.Sprintf("📍 <b>Position</b> from %s", sender))
		if link := f.positionLink(p.Sender, "Open map"); link != "" {
			parts = append(parts, link)
		}
	case domain.KindTelemetry:
		parts = append(parts, fmt.Sprintf("📊 <b>Telemetry</b> from %s", sender))
	case domain.KindRouting:
		parts = append(parts, fmt.Sprintf("🧭 <b>Routing</b> from %s", sender))
	case domain.KindWaypoint:
		parts = append(parts, fmt.Sprintf("🚩 <b>Waypoint</b> from %s", sender))
	case domain.KindPaxCounter:
		parts = append(parts, fmt.Sprintf("👥 <b>Pax counter</b> from %s", sender))
	case domain.KindAdmin, domain.KindAudio, domain.KindIPTunnel:
		parts = append(parts, fmt.Sprintf("📦 <b>%s</b> from %s", html.EscapeString(string(p.Kind)), sender))
	default:
		return ""
	}

	if signal := signalLine(p.RSSI, p.SNR); signal != "" {
		parts = append(parts, signal)
	}
	return strings.Join(parts, "\n")
}

func appendTimestamp(parts []string, ts *int64) []string {
	if ts == nil || *ts <= 0 {
		return parts
	}
	t := time.Unix(*ts, 0)
	return append(parts, fmt.Sprintf("🕐 <b>%s</b>", t.Format("15:04 02.01.2006")))
}

// appendEnvelopeLines adds sender, relay and destination lines shared by
// the single and grouped layouts.
func (f *Formatter) appendEnvelopeLines(parts []string, p *domain.PacketRecord) []string {
	if sender := label(p.SenderName, p.SenderShort, p.Sender); sender != "" {
		parts = append(parts, fmt.Sprintf("\n📡 <b>From:</b> %s", sender))
	}

	// The relay line only appears when the packet actually travelled
	// through another node.
	if p.Relay != nil && (p.Sender == nil || !strings.EqualFold(*p.Relay, *p.Sender)) {
		if relay := label(p.RelayName, p.RelayShort, p.Relay); relay != "" {
			parts = append(parts, fmt.Sprintf("🔄 <b>Relayed by:</b> %s", relay))
		}
	}

	if p.Destination != nil {
		dest := *p.Destination
		if dest == domain.Broadcast {
			parts = append(parts, "📨 <b>To:</b> Broadcast\n")
		} else {
			name := label(p.DestinationName, p.DestinationShort, nil)
			if name != "" {
				parts = append(parts, fmt.Sprintf("📨 <b>To:</b> %s (%s)\n", name, html.EscapeString(dest)))
			} else {
				parts = append(parts, fmt.Sprintf("📨 <b>To:</b> %s\n", html.EscapeString(dest)))
			}
		}
	}
	return parts
}

func signalLine(rssi *int, snr *float64) string {
	var sig []string
	if rssi != nil {
		if glyph := rssiGlyph(rssi); glyph != "⚪" {
			sig = append(sig, fmt.Sprintf("%s RSSI: %d dBm", glyph, *rssi))
		}
	}
	if snr != nil {
		if glyph := snrGlyph(snr); glyph != "⚪" {
			sig = append(sig, fmt.Sprintf("%s SNR: %.1f dB", glyph, *snr))
		}
	}
	if len(sig) == 0 {
		return ""
	}
	return "📶 " + strings.Join(sig, " | ")
}

func (f *Formatter) positionLink(nodeID *string, caption string) string {
	if f.directory == nil || nodeID == nil {
		return ""
	}
	pos := f.directory.GetPosition(*nodeID)
	if pos == nil {
		return ""
	}
	url := fmt.Sprintf("https://www.openstreetmap.org/?mlat=%.6f&mlon=%.6f#map=15", pos.Latitude, pos.Longitude)
	return fmt.Sprintf("📍 <a href=\"%s\">%s</a>", url, caption)
}
