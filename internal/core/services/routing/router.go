package routing

import (
	"log/slog"
	"regexp"
	"strconv"
	"sync"

	"github.com/meshgram/meshgram/internal/core/domain"
)

// rule pairs a mode with its topic pattern. Rules are checked in order, most
// specific first, so PRIVATE_GROUP wins over GROUP and ALL on the same topic.
type rule struct {
	mode    domain.RoutingMode
	pattern *regexp.Regexp
}

// Router derives a processing mode and an optional addressed-user id from a
// topic, with a per-user manual override taking precedence over the topic.
type Router struct {
	defaultMode domain.RoutingMode
	rules       []rule

	mu        sync.RWMutex
	userModes map[int64]domain.RoutingMode
}

// New builds a router for the given topic root (typically "msh").
func New(root string, defaultMode domain.RoutingMode) *Router {
	if defaultMode == "" {
		defaultMode = domain.ModeAll
	}
	q := regexp.QuoteMeta(root)
	return &Router{
		defaultMode: defaultMode,
		rules: []rule{
			{domain.ModePrivateGroup, regexp.MustCompile(`^` + q + `/private/(\d+)/group/`)},
			{domain.ModePrivate, regexp.MustCompile(`^` + q + `/private/(\d+)/`)},
			{domain.ModeGroup, regexp.MustCompile(`^` + q + `/group/`)},
			{domain.ModeAll, regexp.MustCompile(`^` + q + `/`)},
		},
		userModes: make(map[int64]domain.RoutingMode),
	}
}

// Resolve returns the topic-derived mode and the addressed user id when the
// topic carries one. Topics matching no rule fall back to the default mode.
func (r *Router) Resolve(topic string) (domain.RoutingMode, *int64) {
	for _, rl := range r.rules {
		m := rl.pattern.FindStringSubmatch(topic)
		if m == nil {
			continue
		}
		var userID *int64
		if len(m) > 1 {
			if id, err := strconv.ParseInt(m[1], 10, 64); err == nil {
				userID = &id
			}
		}
		return rl.mode, userID
	}
	return r.defaultMode, nil
}

// ResolveEffective applies any per-user override on top of the topic-derived
// mode. A caller-supplied user id takes precedence over one from the topic.
func (r *Router) ResolveEffective(topic string, knownUserID *int64) (domain.RoutingMode, *int64) {
	mode, topicUserID := r.Resolve(topic)
	userID := knownUserID
	if userID == nil {
		userID = topicUserID
	}
	if userID != nil {
		if override, ok := r.GetUserMode(*userID); ok {
			slog.Debug("routing mode overridden by user setting",
				"topic", topic, "topic_mode", mode, "user_mode", override, "user_id", *userID)
			return override, userID
		}
	}
	return mode, userID
}

// SetUserMode pins the mode for a user regardless of publishing topic.
func (r *Router) SetUserMode(userID int64, mode domain.RoutingMode) {
	r.mu.Lock()
	r.userModes[userID] = mode
	r.mu.Unlock()
	slog.Info("user routing mode set", "user_id", userID, "mode", mode)
}

// ClearUserMode removes the override; the topic-derived mode applies again.
func (r *Router) ClearUserMode(userID int64) {
	r.mu.Lock()
	delete(r.userModes, userID)
	r.mu.Unlock()
}

// GetUserMode returns the override for a user, if any.
func (r *Router) GetUserMode(userID int64) (domain.RoutingMode, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	mode, ok := r.userModes[userID]
	return mode, ok
}
