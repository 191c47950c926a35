package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// PacketsReceived counts raw MQTT messages taken off the source subscription
	PacketsReceived = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "meshgram",
			Name:      "packets_received_total",
			Help:      "Total number of raw packets received from the source broker",
		},
	)

	// PacketsDecoded counts packets that decoded into a known kind
	PacketsDecoded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "meshgram",
			Name:      "packets_decoded_total",
			Help:      "Total number of packets decoded, by kind",
		},
		[]string{"kind"},
	)

	// PacketsUnknown counts packets that fell through to the unknown kind
	PacketsUnknown = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "meshgram",
			Name:      "packets_unknown_total",
			Help:      "Total number of packets that could not be decoded",
		},
	)

	// ProxyPublishes counts successful fan-out publishes per target
	ProxyPublishes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "meshgram",
			Name:      "proxy_publishes_total",
			Help:      "Total number of successful proxy publishes, by target",
		},
		[]string{"target"},
	)

	// ProxyErrors counts failed fan-out publishes per target
	ProxyErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "meshgram",
			Name:      "proxy_errors_total",
			Help:      "Total number of failed proxy publishes, by target",
		},
		[]string{"target"},
	)

	// NotificationsPosted counts first-time chat notifications
	NotificationsPosted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "meshgram",
			Name:      "notifications_posted_total",
			Help:      "Total number of chat notifications posted",
		},
	)

	// NotificationsEdited counts in-place notification edits
	NotificationsEdited = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "meshgram",
			Name:      "notifications_edited_total",
			Help:      "Total number of chat notifications edited in place",
		},
	)

	// GroupsReaped counts reception groups removed after the aggregation timeout
	GroupsReaped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "meshgram",
			Name:      "groups_reaped_total",
			Help:      "Total number of reception groups reaped",
		},
	)

	// Ensure metrics are only registered once
	once sync.Once
)

// InitMetrics registers all metrics with the global Prometheus registry
// This function is idempotent and can be called multiple times safely
func InitMetrics() {
	once.Do(func() {
		// Register metrics, ignoring errors if already registered
		// This prevents panics when metrics are already in the registry
		prometheus.DefaultRegisterer.Register(PacketsReceived)
		prometheus.DefaultRegisterer.Register(PacketsDecoded)
		prometheus.DefaultRegisterer.Register(PacketsUnknown)
		prometheus.DefaultRegisterer.Register(ProxyPublishes)
		prometheus.DefaultRegisterer.Register(ProxyErrors)
		prometheus.DefaultRegisterer.Register(NotificationsPosted)
		prometheus.DefaultRegisterer.Register(NotificationsEdited)
		prometheus.DefaultRegisterer.Register(GroupsReaped)
	})
}
