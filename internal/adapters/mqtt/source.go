package mqtt

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

// Handler processes one inbound message. The source calls it for one
// message at a time, so handlers never run concurrently.
type Handler func(ctx context.Context, topic string, payload []byte)

// SourceConfig describes the upstream broker subscription.
type SourceConfig struct {
	Host      string
	Port      int
	Username  string
	Password  string
	Topic     string
	ClientID  string
	Keepalive time.Duration
	QoS       byte
}

// Source subscribes to the upstream broker and feeds every message through
// a single processing loop.
type Source struct {
	cfg     SourceConfig
	handler Handler

	client   pahomqtt.Client
	messages chan inboundMessage

	// newClient is swappable for tests.
	newClient func(*pahomqtt.ClientOptions) pahomqtt.Client
}

type inboundMessage struct {
	topic   string
	payload []byte
}

func NewSource(cfg SourceConfig, handler Handler) *Source {
	if cfg.ClientID == "" {
		cfg.ClientID = "meshgram-" + uuid.NewString()[:8]
	}
	if cfg.Keepalive == 0 {
		cfg.Keepalive = 60 * time.Second
	}
	return &Source{
		cfg:     cfg,
		handler: handler,
		// Small buffer absorbs bursts while a notification edit is in flight.
		messages:  make(chan inboundMessage, 64),
		newClient: pahomqtt.NewClient,
	}
}

// Run connects, subscribes and processes messages until the context is
// cancelled. It returns on cancellation or a failed connect/subscribe.
func (s *Source) Run(ctx context.Context) error {
	opts := pahomqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%s:%d", s.cfg.Host, s.cfg.Port)).
		SetClientID(s.cfg.ClientID).
		SetKeepAlive(s.cfg.Keepalive).
		SetAutoReconnect(true).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
			slog.Warn("source broker connection lost", "error", err)
		}).
		SetOnConnectHandler(func(client pahomqtt.Client) {
			slog.Info("connected to source broker", "host", s.cfg.Host, "topic", s.cfg.Topic)
			token := client.Subscribe(s.cfg.Topic, s.cfg.QoS, s.onMessage)
			token.Wait()
			if err := token.Error(); err != nil {
				slog.Error("subscribe failed", "topic", s.cfg.Topic, "error", err)
			}
		})
	if s.cfg.Username != "" {
		opts.SetUsername(s.cfg.Username)
		opts.SetPassword(s.cfg.Password)
	}

	s.client = s.newClient(opts)
	token := s.client.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("connect to source broker %s:%d: %w", s.cfg.Host, s.cfg.Port, err)
	}

	for {
		select {
		case <-ctx.Done():
			s.client.Unsubscribe(s.cfg.Topic)
			s.client.Disconnect(250)
			return ctx.Err()
		case msg := <-s.messages:
			s.handler(ctx, msg.topic, msg.payload)
		}
	}
}

// IsConnected reports whether the source broker connection is up.
func (s *Source) IsConnected() bool {
	return s.client != nil && s.client.IsConnected()
}

func (s *Source) onMessage(_ pahomqtt.Client, msg pahomqtt.Message) {
	payload := make([]byte, len(msg.Payload()))
	copy(payload, msg.Payload())
	select {
	case s.messages <- inboundMessage{topic: msg.Topic(), payload: payload}:
	default:
		slog.Warn("inbound queue full, dropping message", "topic", msg.Topic())
	}
}
