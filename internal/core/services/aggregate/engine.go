package aggregate

import (
	"log/slog"
	"sync"
	"time"

	"github.com/meshgram/meshgram/internal/core/domain"
	"github.com/meshgram/meshgram/internal/core/ports"
)

// DefaultTimeout is how long a reception group keeps accepting notification
// edits after its last new observer.
const DefaultTimeout = 30 * time.Second

// Engine owns the per-message aggregation state. The map is private: every
// mutation goes through these methods, and a single mutex serializes the
// packet path against readers such as the status API.
type Engine struct {
	mu      sync.Mutex
	groups  map[string]*domain.ReceptionGroup
	timeout time.Duration
	now     func() time.Time
}

// New creates an engine with the given edit-window timeout.
func New(timeout time.Duration) *Engine {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Engine{
		groups:  make(map[string]*domain.ReceptionGroup),
		timeout: timeout,
		now:     time.Now,
	}
}

// AddObservation folds one reception of messageID by receiverID into the
// group, creating the group on first sight. It returns whether the receiver
// was new to the group and whether the group was still inside its edit
// window when the observation arrived; a repeated (message, receiver) pair
// is a no-op. A stale group keeps recording observers, but its window is
// never reopened: only an observation landing while the group is active
// refreshes LastUpdated.
// Receiver and relay names are resolved against the directory at observation
// time so the notification body reflects what was known when the node
// reported in.
func (e *Engine) AddObservation(messageID string, p *domain.PacketRecord, receiverID string, dir ports.NodeDirectory) (wasNew, active bool) {
	if messageID == "" || receiverID == "" {
		return false, false
	}

	obs := domain.Observation{
		NodeID: receiverID,
		RSSI:   p.RSSI,
		SNR:    p.SNR,
		Hops:   p.Hops,
		SeenAt: p.ReceivedAt,
	}
	if dir != nil {
		obs.NodeName = dir.GetName(receiverID)
		obs.NodeShort = dir.GetShortName(receiverID)
	}
	if p.Relay != nil {
		obs.RelayID = p.Relay
		obs.RelayName = p.RelayName
		if obs.RelayName == nil && dir != nil {
			obs.RelayName = dir.GetName(*p.Relay)
		}
	}

	if obs.SeenAt.IsZero() {
		obs.SeenAt = e.now()
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	group, ok := e.groups[messageID]
	if !ok {
		now := e.now()
		group = &domain.ReceptionGroup{
			MessageID:   messageID,
			Packet:      p,
			CreatedAt:   now,
			LastUpdated: now,
		}
		e.groups[messageID] = group
		slog.Debug("reception group created", "message_id", messageID)
	}
	if group.Packet == nil {
		group.Packet = p
	}

	active = e.now().Sub(group.LastUpdated) < e.timeout
	wasNew = group.AddObserver(obs)
	if wasNew && active {
		group.LastUpdated = obs.SeenAt
	}
	return wasNew, active
}

// SetNotificationID records the outbound notification id after the first
// successful post.
func (e *Engine) SetNotificationID(messageID string, notificationID int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if group, ok := e.groups[messageID]; ok {
		group.NotificationID = &notificationID
	}
}

// IsActive reports whether the group still accepts notification edits.
func (e *Engine) IsActive(messageID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	group, ok := e.groups[messageID]
	if !ok {
		return false
	}
	return e.now().Sub(group.LastUpdated) < e.timeout
}

// GroupView returns a copy of the group for decision making and rendering.
func (e *Engine) GroupView(messageID string) (domain.ReceptionGroup, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	group, ok := e.groups[messageID]
	if !ok {
		return domain.ReceptionGroup{}, false
	}
	return copyGroup(group), true
}

// Groups lists every resident group, for the status API.
func (e *Engine) Groups() []domain.ReceptionGroup {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.ReceptionGroup, 0, len(e.groups))
	for _, group := range e.groups {
		out = append(out, copyGroup(group))
	}
	return out
}

// Len returns the number of resident groups.
func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.groups)
}

// ReapExpired drops every group past the timeout and returns how many were
// removed. Called opportunistically after each processed packet; memory
// between packets is bounded by traffic, not wall clock.
func (e *Engine) ReapExpired() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.now()
	removed := 0
	for id, group := range e.groups {
		if now.Sub(group.LastUpdated) > e.timeout {
			delete(e.groups, id)
			removed++
		}
	}
	if removed > 0 {
		slog.Debug("reception groups reaped", "count", removed)
	}
	return removed
}

func copyGroup(g *domain.ReceptionGroup) domain.ReceptionGroup {
	cp := *g
	cp.ObservedBy = make([]domain.Observation, len(g.ObservedBy))
	copy(cp.ObservedBy, g.ObservedBy)
	return cp
}
