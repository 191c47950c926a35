package config

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// SourceConfig describes the upstream broker subscription.
type SourceConfig struct {
	Host      string
	Port      int
	Username  string
	Password  string
	Topic     string
	ClientID  string
	Keepalive time.Duration
	QoS       int
}

// ProxyTargetConfig describes one downstream broker the proxy mirrors into.
type ProxyTargetConfig struct {
	Name        string
	Host        string
	Port        int
	Username    string
	Password    string
	ClientID    string
	TopicPrefix string
	TLS         bool
	TLSInsecure bool
	QoS         int
	Enabled     bool
}

// TelegramConfig holds the bot credentials and audience.
type TelegramConfig struct {
	Token          string
	GroupChatID    int64
	AllowedUserIDs []int64
}

// Config holds all application configuration.
type Config struct {
	Source   SourceConfig
	Proxy    []ProxyTargetConfig
	Telegram TelegramConfig

	TopicRoot          string
	DefaultMode        string
	PayloadFormat      string // json, protobuf or both
	AggregationTimeout time.Duration
	RefreshInterval    time.Duration
	DBPath             string
	Addr               string
	Debug              bool
}

// Load reads environment variables, lets command line flags override them and
// validates the result.
func Load() (*Config, error) {
	cfg := FromEnv()

	flag.StringVar(&cfg.Source.Host, "mqtt-host", cfg.Source.Host, "Source MQTT broker host")
	flag.IntVar(&cfg.Source.Port, "mqtt-port", cfg.Source.Port, "Source MQTT broker port")
	flag.StringVar(&cfg.Source.Topic, "topic", cfg.Source.Topic, "MQTT subscription topic")
	flag.StringVar(&cfg.DBPath, "db", cfg.DBPath, "Path to SQLite node directory")
	flag.StringVar(&cfg.Addr, "addr", cfg.Addr, "Status HTTP server address")
	flag.StringVar(&cfg.PayloadFormat, "format", cfg.PayloadFormat, "Payload format: json, protobuf or both")
	flag.BoolVar(&cfg.Debug, "debug", cfg.Debug, "Enable verbose debug logging")
	flag.Parse()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromEnv populates a Config from MESHGRAM_-prefixed environment variables
// without touching the flag package. Callers that need flag overrides use
// Load instead.
func FromEnv() *Config {
	cfg := &Config{
		Source: SourceConfig{
			Host:      getEnv("MESHGRAM_MQTT_HOST", "localhost"),
			Port:      getEnvInt("MESHGRAM_MQTT_PORT", 1883),
			Username:  getEnv("MESHGRAM_MQTT_USERNAME", ""),
			Password:  getEnv("MESHGRAM_MQTT_PASSWORD", ""),
			Topic:     getEnv("MESHGRAM_MQTT_TOPIC", "msh/2/json/#"),
			ClientID:  getEnv("MESHGRAM_MQTT_CLIENT_ID", ""),
			Keepalive: getEnvDuration("MESHGRAM_MQTT_KEEPALIVE", 60*time.Second),
			QoS:       getEnvInt("MESHGRAM_MQTT_QOS", 1),
		},
		Telegram: TelegramConfig{
			Token:          getEnv("MESHGRAM_TELEGRAM_TOKEN", ""),
			GroupChatID:    getEnvInt64("MESHGRAM_TELEGRAM_GROUP_CHAT_ID", 0),
			AllowedUserIDs: parseUserIDs(getEnv("MESHGRAM_TELEGRAM_ALLOWED_USER_IDS", "")),
		},
		TopicRoot:          getEnv("MESHGRAM_TOPIC_ROOT", "msh"),
		DefaultMode:        getEnv("MESHGRAM_DEFAULT_MODE", "all"),
		PayloadFormat:      getEnv("MESHGRAM_PAYLOAD_FORMAT", "json"),
		AggregationTimeout: getEnvDuration("MESHGRAM_AGGREGATION_TIMEOUT", 30*time.Second),
		RefreshInterval:    getEnvDuration("MESHGRAM_REFRESH_INTERVAL", 72*time.Hour),
		DBPath:             getEnv("MESHGRAM_DB", getDefaultDBPath()),
		Addr:               getEnv("MESHGRAM_ADDR", ":8080"),
		Debug:              getEnvBool("MESHGRAM_DEBUG", false),
	}
	cfg.Proxy = loadProxyTargets()
	return cfg
}

// Validate rejects configurations the adapters cannot run with.
func (c *Config) Validate() error {
	if c.Source.Host == "" {
		return fmt.Errorf("config: source MQTT host is required")
	}
	if c.Source.Port <= 0 || c.Source.Port > 65535 {
		return fmt.Errorf("config: invalid source MQTT port %d", c.Source.Port)
	}
	if err := validateQoS(c.Source.QoS); err != nil {
		return fmt.Errorf("config: source: %w", err)
	}
	switch c.PayloadFormat {
	case "json", "protobuf", "both":
	default:
		return fmt.Errorf("config: payload format must be json, protobuf or both, got %q", c.PayloadFormat)
	}
	switch c.DefaultMode {
	case "all", "private", "group", "private_group":
	default:
		return fmt.Errorf("config: unknown default mode %q", c.DefaultMode)
	}
	if c.AggregationTimeout <= 0 {
		return fmt.Errorf("config: aggregation timeout must be positive")
	}
	for _, t := range c.Proxy {
		if t.Host == "" {
			return fmt.Errorf("config: proxy target %q has no host", t.Name)
		}
		if err := validateQoS(t.QoS); err != nil {
			return fmt.Errorf("config: proxy target %q: %w", t.Name, err)
		}
	}
	return nil
}

func validateQoS(qos int) error {
	if qos < 0 || qos > 2 {
		return fmt.Errorf("QoS must be 0, 1 or 2, got %d", qos)
	}
	return nil
}

// loadProxyTargets reads indexed target blocks: MESHGRAM_PROXY_0_HOST,
// MESHGRAM_PROXY_0_NAME and so on, stopping at the first index without a host.
func loadProxyTargets() []ProxyTargetConfig {
	var targets []ProxyTargetConfig
	for i := 0; ; i++ {
		prefix := fmt.Sprintf("MESHGRAM_PROXY_%d_", i)
		host := getEnv(prefix+"HOST", "")
		if host == "" {
			break
		}
		targets = append(targets, ProxyTargetConfig{
			Name:        getEnv(prefix+"NAME", fmt.Sprintf("target-%d", i)),
			Host:        host,
			Port:        getEnvInt(prefix+"PORT", 1883),
			Username:    getEnv(prefix+"USERNAME", ""),
			Password:    getEnv(prefix+"PASSWORD", ""),
			ClientID:    getEnv(prefix+"CLIENT_ID", ""),
			TopicPrefix: getEnv(prefix+"TOPIC_PREFIX", ""),
			TLS:         getEnvBool(prefix+"TLS", false),
			TLSInsecure: getEnvBool(prefix+"TLS_INSECURE", false),
			QoS:         getEnvInt(prefix+"QOS", 1),
			Enabled:     getEnvBool(prefix+"ENABLED", true),
		})
	}
	return targets
}

// parseUserIDs splits a comma separated id list; malformed entries are skipped
// with a warning rather than aborting startup.
func parseUserIDs(s string) []int64 {
	var ids []int64
	for _, part := range strings.Split(s, ",") {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		id, err := strconv.ParseInt(trimmed, 10, 64)
		if err != nil {
			slog.Warn("skipping malformed user id", "value", trimmed)
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if value, ok := os.LookupEnv(key); ok {
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

// getEnvDuration accepts Go duration strings and falls back to plain seconds
// for compatibility with older deployments.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		if n, err := strconv.Atoi(value); err == nil {
			return time.Duration(n) * time.Second
		}
	}
	return fallback
}

// getDefaultDBPath returns the default database path in the user's home
// directory, creating ~/.meshgram when needed.
func getDefaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		slog.Warn("could not determine home directory, using current dir", "error", err)
		return "meshgram.db"
	}

	dir := filepath.Join(home, ".meshgram")
	if err := os.MkdirAll(dir, 0755); err != nil {
		slog.Warn("could not create data directory, using current dir", "error", err)
		return "meshgram.db"
	}

	return filepath.Join(dir, "meshgram.db")
}
