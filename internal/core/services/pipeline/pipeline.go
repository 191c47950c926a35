package pipeline

import (
	"context"
	"log/slog"
	"strings"

	"github.com/meshgram/meshgram/internal/core/domain"
	"github.com/meshgram/meshgram/internal/core/ports"
	"github.com/meshgram/meshgram/internal/core/services/aggregate"
	"github.com/meshgram/meshgram/internal/core/services/routing"
	"github.com/meshgram/meshgram/internal/telemetry"
)

// Options wires the pipeline's collaborators. Relay and OnPacket are
// optional; everything else must be set.
type Options struct {
	Decoder   ports.PacketDecoder
	Router    *routing.Router
	Engine    *aggregate.Engine
	Directory ports.NodeDirectory
	Relay     ports.Relay
	Sink      ports.ChatSink
	Formatter ports.Formatter

	// Preference is the configured payload encoding: json, protobuf or both.
	Preference ports.PayloadEncoding

	// AllowedUsers receive direct notifications for non-text packets in
	// unscoped mode.
	AllowedUsers []int64

	// OnPacket observes every decoded record, e.g. for a live web feed.
	OnPacket func(*domain.PacketRecord)
}

// Service runs the per-packet processing path: relay, decode, route,
// aggregate, notify. HandleMessage processes one packet fully before the
// subscriber hands it the next, so ordering within one source broker is
// preserved.
type Service struct {
	decoder   ports.PacketDecoder
	router    *routing.Router
	engine    *aggregate.Engine
	directory ports.NodeDirectory
	relay     ports.Relay
	sink      ports.ChatSink
	formatter ports.Formatter

	preference ports.PayloadEncoding
	allowed    []int64
	onPacket   func(*domain.PacketRecord)
}

func New(opts Options) *Service {
	pref := opts.Preference
	if pref == "" {
		pref = ports.EncodingBoth
	}
	return &Service{
		decoder:    opts.Decoder,
		router:     opts.Router,
		engine:     opts.Engine,
		directory:  opts.Directory,
		relay:      opts.Relay,
		sink:       opts.Sink,
		formatter:  opts.Formatter,
		preference: pref,
		allowed:    opts.AllowedUsers,
		onPacket:   opts.OnPacket,
	}
}

// HandleMessage processes one inbound MQTT message end to end. It never
// returns an error: every failure is scoped to this packet and logged.
func (s *Service) HandleMessage(ctx context.Context, topic string, payload []byte) {
	telemetry.PacketsReceived.Inc()

	mode, topicUser := s.router.Resolve(topic)

	// Privately addressed traffic stays off the downstream brokers.
	if s.relay != nil && mode != domain.ModePrivate {
		for _, outcome := range s.relay.Relay(ctx, topic, payload) {
			if outcome.Err != nil {
				slog.Debug("proxy target failed", "target", outcome.Target, "error", outcome.Err)
			}
		}
	}

	detected := s.decoder.DetectEncoding(topic)
	if s.preference != ports.EncodingBoth && detected != s.preference {
		// Keep the directory warm even when the payload format is not the
		// configured one.
		s.decoder.RefreshDirectory(topic, payload)
		return
	}

	p := s.decoder.Decode(topic, payload)
	if p == nil {
		return
	}
	if p.Kind == domain.KindUnknown {
		telemetry.PacketsUnknown.Inc()
	} else {
		telemetry.PacketsDecoded.WithLabelValues(string(p.Kind)).Inc()
	}
	if s.onPacket != nil {
		s.onPacket(p)
	}

	effectiveMode, userID := s.router.ResolveEffective(topic, topicUser)
	s.strategyFor(effectiveMode).process(ctx, p, userID)

	if reaped := s.engine.ReapExpired(); reaped > 0 {
		telemetry.GroupsReaped.Add(float64(reaped))
	}
}

// receiverID resolves which mesh node received this packet: the trailing
// "!hex" topic segment when present, otherwise the gateway that republished
// it to MQTT.
func (s *Service) receiverID(p *domain.PacketRecord) string {
	segments := strings.Split(p.Topic, "/")
	if last := segments[len(segments)-1]; strings.HasPrefix(last, "!") {
		if id := domain.NormalizeNodeID(last); id != nil {
			return *id
		}
	}
	if p.Relay != nil {
		return *p.Relay
	}
	return ""
}

// notifyChannel folds the packet into its reception group and posts or edits
// the shared-channel notification per the group's state.
func (s *Service) notifyChannel(ctx context.Context, p *domain.PacketRecord) {
	receiver := s.receiverID(p)
	if p.MessageID == nil || receiver == "" {
		// Nothing to aggregate on; a single ungrouped notification.
		s.postOnce(ctx, s.formatter.Format(p))
		return
	}

	messageID := *p.MessageID
	wasNew, active := s.engine.AddObservation(messageID, p, receiver, s.directory)
	group, ok := s.engine.GroupView(messageID)
	if !ok {
		return
	}

	switch {
	case group.NotificationID == nil:
		body := s.formatter.FormatGrouped(group.Packet, group.ObservedBy)
		notificationID, err := s.sink.PostToChannel(ctx, body)
		if err != nil {
			// The observation is already recorded; the next one retries the post.
			slog.Warn("notification post failed", "message_id", messageID, "error", err)
			return
		}
		if notificationID != nil {
			s.engine.SetNotificationID(messageID, *notificationID)
		}
		telemetry.NotificationsPosted.Inc()
	case wasNew && active:
		// Activity is judged at arrival: a late observer is still recorded
		// above, but it never resurrects the notification.
		body := s.formatter.FormatGrouped(group.Packet, group.ObservedBy)
		if err := s.sink.EditChannelMessage(ctx, *group.NotificationID, body); err != nil {
			slog.Warn("notification edit failed", "message_id", messageID, "error", err)
			return
		}
		telemetry.NotificationsEdited.Inc()
	}
}

func (s *Service) postOnce(ctx context.Context, body string) {
	if _, err := s.sink.PostToChannel(ctx, body); err != nil {
		slog.Warn("notification post failed", "error", err)
		return
	}
	telemetry.NotificationsPosted.Inc()
}

// sendDirect delivers a single-packet notification to the addressed user.
func (s *Service) sendDirect(ctx context.Context, p *domain.PacketRecord, userID *int64) {
	if userID == nil {
		slog.Debug("privately routed packet without an addressed user", "topic", p.Topic)
		return
	}
	if !s.sink.IsUserAllowed(*userID) {
		slog.Debug("addressed user not in allow list", "user_id", *userID)
		return
	}
	var body string
	if p.HasText() {
		body = s.formatter.Format(p)
	} else {
		body = s.formatter.FormatNonText(p)
	}
	if body == "" {
		return
	}
	if err := s.sink.SendToUser(ctx, *userID, body); err != nil {
		slog.Warn("direct notification failed", "user_id", *userID, "error", err)
	}
}

// broadcastToUsers delivers a non-text notification to every allowed user.
func (s *Service) broadcastToUsers(ctx context.Context, p *domain.PacketRecord) {
	body := s.formatter.FormatNonText(p)
	if body == "" {
		return
	}
	for _, userID := range s.allowed {
		if !s.sink.IsUserAllowed(userID) {
			continue
		}
		if err := s.sink.SendToUser(ctx, userID, body); err != nil {
			slog.Warn("direct notification failed", "user_id", userID, "error", err)
		}
	}
}
