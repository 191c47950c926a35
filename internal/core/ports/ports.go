package ports

import (
	"context"

	"github.com/meshgram/meshgram/internal/core/domain"
)

// NodeDirectory holds per-node identity and last-known position.
// Reads never fail; a miss returns nil.
type NodeDirectory interface {
	GetName(id string) *string
	GetShortName(id string) *string
	GetPosition(id string) *domain.Position
	// UpdateIdentity applies the update in memory unconditionally and returns
	// whether a persisted write occurred (age past the refresh interval, or force).
	UpdateIdentity(id string, longName, shortName *string, force bool) bool
	// UpdatePosition behaves like UpdateIdentity for coordinates.
	UpdatePosition(id string, lat, lon float64, alt *int, forceDisk bool) bool
	Snapshot() []domain.NodeRecord
	Len() int
}

// DirectoryStore persists the whole directory as a snapshot: read once at
// startup, rewritten in full on every persisted write.
type DirectoryStore interface {
	LoadAll() ([]domain.NodeRecord, error)
	SaveAll(nodes []domain.NodeRecord) error
	Close() error
}

// PayloadEncoding selects which wire format a payload is parsed as.
type PayloadEncoding string

const (
	EncodingJSON     PayloadEncoding = "json"
	EncodingProtobuf PayloadEncoding = "protobuf"
	// EncodingBoth is a configured preference only, never a detection result.
	EncodingBoth PayloadEncoding = "both"
)

// PacketDecoder turns a topic plus raw bytes into a canonical PacketRecord.
// Decode never fails: irrecoverable input yields a record of kind unknown
// with a best-effort dump as its text.
type PacketDecoder interface {
	Decode(topic string, payload []byte) *domain.PacketRecord
	DetectEncoding(topic string) PayloadEncoding
	// RefreshDirectory parses best-effort purely for node-identity and
	// position side effects, producing no record. Used when the detected
	// encoding is not the configured one but the directory should stay warm.
	RefreshDirectory(topic string, payload []byte)
}

// RelayOutcome is the per-target result of one fan-out publish.
type RelayOutcome struct {
	Target string
	Err    error
}

// Relay republishes raw inbound payloads to a set of downstream brokers.
// A failing target never aborts its siblings; Relay reports per-target
// outcomes instead of returning a single error.
type Relay interface {
	Start(ctx context.Context) error
	Stop()
	Relay(ctx context.Context, topic string, raw []byte) []RelayOutcome
}

// ChatSink is the outbound notification surface.
type ChatSink interface {
	// PostToChannel posts to the shared channel and returns the opaque
	// notification id used for later edits.
	PostToChannel(ctx context.Context, text string) (*int, error)
	EditChannelMessage(ctx context.Context, notificationID int, text string) error
	SendToUser(ctx context.Context, userID int64, text string) error
	IsUserAllowed(userID int64) bool
}

// Formatter renders packet records into notification bodies. The pipeline
// treats the result as an opaque pre-rendered string.
type Formatter interface {
	Format(p *domain.PacketRecord) string
	FormatGrouped(p *domain.PacketRecord, observers []domain.Observation) string
	FormatNonText(p *domain.PacketRecord) string
}
