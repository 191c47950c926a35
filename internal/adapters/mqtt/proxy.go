package mqtt

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/meshgram/meshgram/internal/core/ports"
	"github.com/meshgram/meshgram/internal/telemetry"
)

// TargetConfig describes one downstream broker.
type TargetConfig struct {
	Name        string
	Host        string
	Port        int
	Username    string
	Password    string
	ClientID    string
	TopicPrefix string
	TLS         bool
	TLSInsecure bool
	QoS         byte
	Enabled     bool
}

type target struct {
	cfg    TargetConfig
	client pahomqtt.Client
}

// isConnected reports the paho client's live session state, so auto-reconnect
// drops and recoveries show through without any bookkeeping here.
func (t *target) isConnected() bool {
	return t.client != nil && t.client.IsConnected()
}

// TargetStatus is the per-target connectivity view for the status surfaces.
type TargetStatus struct {
	Name      string `json:"name"`
	Enabled   bool   `json:"enabled"`
	Connected bool   `json:"connected"`
}

// Proxy republishes raw inbound payloads to every enabled target. One
// target failing never affects its siblings.
type Proxy struct {
	sourcePrefix string
	targets      []*target

	// newClient is swappable for tests.
	newClient func(*pahomqtt.ClientOptions) pahomqtt.Client
}

// NewProxy builds a proxy. sourcePrefix is the subscription prefix stripped
// from inbound topics before the per-target prefix is applied; it is
// normalized to end in exactly one separator.
func NewProxy(sourcePrefix string, configs []TargetConfig) *Proxy {
	p := &Proxy{
		sourcePrefix: normalizePrefix(sourcePrefix),
		newClient:    pahomqtt.NewClient,
	}
	for _, cfg := range configs {
		if !cfg.Enabled {
			slog.Debug("proxy target disabled", "target", cfg.Name)
			continue
		}
		p.targets = append(p.targets, &target{cfg: cfg})
	}
	return p
}

func normalizePrefix(prefix string) string {
	if prefix == "" {
		return ""
	}
	return strings.TrimRight(prefix, "/") + "/"
}

// Start connects every enabled target. A failed connect is logged and the
// target stays disconnected; the rest proceed.
func (p *Proxy) Start(ctx context.Context) error {
	for _, t := range p.targets {
		if err := p.connect(t); err != nil {
			slog.Error("proxy target connect failed", "target", t.cfg.Name, "error", err)
			continue
		}
		slog.Info("proxy target connected", "target", t.cfg.Name, "host", t.cfg.Host)
	}
	return nil
}

func (p *Proxy) connect(t *target) error {
	scheme := "tcp"
	if t.cfg.TLS {
		scheme = "ssl"
	}
	clientID := t.cfg.ClientID
	if clientID == "" {
		clientID = fmt.Sprintf("meshgram-proxy-%s-%s", t.cfg.Name, uuid.NewString()[:8])
	}
	opts := pahomqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("%s://%s:%d", scheme, t.cfg.Host, t.cfg.Port)).
		SetClientID(clientID).
		SetAutoReconnect(true)
	if t.cfg.Username != "" {
		opts.SetUsername(t.cfg.Username)
		opts.SetPassword(t.cfg.Password)
	}
	if t.cfg.TLS && t.cfg.TLSInsecure {
		opts.SetTLSConfig(&tls.Config{InsecureSkipVerify: true})
	}

	t.client = p.newClient(opts)
	token := t.client.Connect()
	token.Wait()
	return token.Error()
}

// Stop disconnects every connected target.
func (p *Proxy) Stop() {
	for _, t := range p.targets {
		if t.isConnected() {
			t.client.Disconnect(250)
			slog.Info("proxy target disconnected", "target", t.cfg.Name)
		}
	}
}

// Relay publishes the unmodified raw bytes to all targets concurrently and
// collects per-target outcomes.
func (p *Proxy) Relay(ctx context.Context, topic string, raw []byte) []ports.RelayOutcome {
	if len(p.targets) == 0 {
		return nil
	}

	outcomes := make([]ports.RelayOutcome, len(p.targets))
	var wg sync.WaitGroup
	for i, t := range p.targets {
		wg.Add(1)
		go func(i int, t *target) {
			defer wg.Done()
			outcomes[i] = ports.RelayOutcome{
				Target: t.cfg.Name,
				Err:    p.publish(t, topic, raw),
			}
		}(i, t)
	}
	wg.Wait()
	return outcomes
}

func (p *Proxy) publish(t *target, topic string, raw []byte) error {
	if !t.isConnected() {
		telemetry.ProxyErrors.WithLabelValues(t.cfg.Name).Inc()
		return fmt.Errorf("target %s not connected", t.cfg.Name)
	}

	outTopic := p.rewriteTopic(t.cfg, topic)
	token := t.client.Publish(outTopic, t.cfg.QoS, false, raw)
	token.Wait()
	if err := token.Error(); err != nil {
		telemetry.ProxyErrors.WithLabelValues(t.cfg.Name).Inc()
		slog.Warn("proxy publish failed", "target", t.cfg.Name, "topic", outTopic, "error", err)
		return err
	}
	telemetry.ProxyPublishes.WithLabelValues(t.cfg.Name).Inc()
	slog.Debug("proxied message", "target", t.cfg.Name, "topic", outTopic, "size", len(raw))
	return nil
}

func (p *Proxy) rewriteTopic(cfg TargetConfig, topic string) string {
	rewritten := topic
	if p.sourcePrefix != "" && strings.HasPrefix(rewritten, p.sourcePrefix) {
		rewritten = rewritten[len(p.sourcePrefix):]
	}
	if cfg.TopicPrefix != "" {
		rewritten = strings.TrimRight(cfg.TopicPrefix, "/") + "/" + strings.TrimLeft(rewritten, "/")
	}
	return rewritten
}

// Statuses reports per-target connectivity. Disabled targets never appear.
func (p *Proxy) Statuses() []TargetStatus {
	statuses := make([]TargetStatus, 0, len(p.targets))
	for _, t := range p.targets {
		statuses = append(statuses, TargetStatus{
			Name:      t.cfg.Name,
			Enabled:   t.cfg.Enabled,
			Connected: t.isConnected(),
		})
	}
	return statuses
}
