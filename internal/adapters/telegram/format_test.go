package telegram

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/meshgram/meshgram/internal/core/domain"
)

func ptr[T any](v T) *T { return &v }

type positionDirectory struct {
	positions map[string]domain.Position
}

func (d *positionDirectory) GetName(id string) *string      { return nil }
func (d *positionDirectory) GetShortName(id string) *string { return nil }

func (d *positionDirectory) GetPosition(id string) *domain.Position {
	if pos, ok := d.positions[id]; ok {
		return &pos
	}
	return nil
}

func (d *positionDirectory) UpdateIdentity(id string, longName, shortName *string, force bool) bool {
	return false
}

func (d *positionDirectory) UpdatePosition(id string, lat, lon float64, alt *int, forceDisk bool) bool {
	return false
}

func (d *positionDirectory) Snapshot() []domain.NodeRecord { return nil }
func (d *positionDirectory) Len() int                      { return 0 }

func TestRSSIGlyphScale(t *testing.T) {
	tests := []struct {
		name   string
		rssi   *int
		expect string
	}{
		{"nil", nil, "⚪"},
		{"zero invalid", ptr(0), "⚪"},
		{"positive invalid", ptr(10), "⚪"},
		{"below range invalid", ptr(-151), "⚪"},
		{"excellent", ptr(-60), "🟢"},
		{"normal", ptr(-90), "🟡"},
		{"boundary normal", ptr(-100), "🟡"},
		{"poor", ptr(-110), "🔴"},
		{"very poor", ptr(-130), "⚫"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, rssiGlyph(tt.rssi))
		})
	}
}

func TestSNRGlyphScale(t *testing.T) {
	tests := []struct {
		name   string
		snr    *float64
		expect string
	}{
		{"nil", nil, "⚪"},
		{"above range invalid", ptr(31.0), "⚪"},
		{"below range invalid", ptr(-21.0), "⚪"},
		{"excellent", ptr(12.0), "🟢"},
		{"good", ptr(6.0), "🟡"},
		{"fair", ptr(2.5), "🟠"},
		{"poor", ptr(-3.0), "🔴"},
		{"very poor", ptr(-10.0), "⚫"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, snrGlyph(tt.snr))
		})
	}
}

func basePacket() *domain.PacketRecord {
	return &domain.PacketRecord{
		Topic:       "msh/2/json/LongFast/!da63f001",
		Kind:        domain.KindText,
		MessageID:   ptr("100"),
		Sender:      ptr("!698535e0"),
		SenderName:  ptr("Trail Node"),
		SenderShort: ptr("TRN"),
		Relay:       ptr("!da63f001"),
		RelayName:   ptr("City Gate"),
		Destination: ptr(domain.Broadcast),
		Hops:        ptr(2),
		Text:        ptr("hello <world>"),
		Timestamp:   ptr(time.Date(2026, 3, 1, 22, 30, 0, 0, time.Local).Unix()),
		RSSI:        ptr(-92),
		SNR:         ptr(6.25),
		ReceivedAt:  time.Now(),
	}
}

func TestFormatSinglePacket(t *testing.T) {
	f := NewFormatter(nil)
	out := f.Format(basePacket())

	assert.Contains(t, out, "22:30 01.03.2026")
	assert.Contains(t, out, "<b>From:</b> Trail Node (TRN)")
	assert.Contains(t, out, "<b>Relayed by:</b> City Gate")
	assert.Contains(t, out, "<b>To:</b> Broadcast")
	assert.Contains(t, out, "Relayed 2 times")
	assert.Contains(t, out, "🟡 RSSI: -92 dBm")
	assert.Contains(t, out, "🟡 SNR: 6.2 dB")
	assert.Contains(t, out, "<blockquote>hello &lt;world&gt;</blockquote>")
}

func TestFormatEscapesUserData(t *testing.T) {
	f := NewFormatter(nil)
	p := basePacket()
	p.SenderName = ptr("<script>alert(1)</script>")

	out := f.Format(p)
	assert.NotContains(t, out, "<script>")
	assert.Contains(t, out, "&lt;script&gt;")
}

func TestFormatRelayLineHiddenWhenSenderIsGateway(t *testing.T) {
	f := NewFormatter(nil)
	p := basePacket()
	p.Relay = ptr("!698535e0")

	out := f.Format(p)
	assert.NotContains(t, out, "Relayed by:")
}

func TestFormatDirectDelivery(t *testing.T) {
	f := NewFormatter(nil)
	p := basePacket()
	p.Hops = ptr(0)

	out := f.Format(p)
	assert.Contains(t, out, "📬 Direct delivery")
}

func TestFormatPositionLink(t *testing.T) {
	dir := &positionDirectory{positions: map[string]domain.Position{
		"!698535e0": {Latitude: 55.6751, Longitude: 37.6178},
	}}
	f := NewFormatter(dir)

	out := f.Format(basePacket())
	assert.Contains(t, out, "openstreetmap.org/?mlat=55.675100&mlon=37.617800")
}

func TestFormatGroupedListsObservers(t *testing.T) {
	f := NewFormatter(nil)
	p := basePacket()
	observers := []domain.Observation{
		{
			NodeID:    "!bb000002",
			NodeName:  ptr("North Gateway"),
			NodeShort: ptr("NGW"),
			RSSI:      ptr(-75),
			SNR:       ptr(11.0),
			Hops:      ptr(0),
		},
		{
			NodeID:    "!cc000003",
			Hops:      ptr(3),
			RelayID:   ptr("!dd000004"),
			RelayName: ptr("Hilltop"),
		},
	}

	out := f.FormatGrouped(p, observers)
	assert.Contains(t, out, "<b>Received by:</b>")
	assert.Contains(t, out, "North Gateway (NGW)")
	assert.Contains(t, out, "🔄 Hops: 0")
	assert.Contains(t, out, "🟢 RSSI: -75 dBm")
	assert.Contains(t, out, "!cc000003")
	assert.Contains(t, out, "🔄 Hops: 3")
	assert.Contains(t, out, "⬆️ via Hilltop")
	assert.Contains(t, out, "<blockquote>hello &lt;world&gt;</blockquote>")
}

func TestFormatNonText(t *testing.T) {
	f := NewFormatter(nil)

	p := basePacket()
	p.Kind = domain.KindTelemetry
	p.Text = nil
	out := f.FormatNonText(p)
	assert.Contains(t, out, "<b>Telemetry</b> from Trail Node (TRN)")
	assert.Contains(t, out, "RSSI: -92 dBm")

	p.Kind = domain.KindUnknown
	assert.Empty(t, f.FormatNonText(p), "unknown packets never render")
}
