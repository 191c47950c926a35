package directory

import (
	"log/slog"
	"sync"
	"time"

	"github.com/meshgram/meshgram/internal/core/domain"
	"github.com/meshgram/meshgram/internal/core/ports"
)

// DefaultRefreshInterval bounds how often a chatty node may trigger a
// persisted snapshot rewrite.
const DefaultRefreshInterval = 3 * 24 * time.Hour

// Service is the in-memory node directory backed by a snapshot store.
// Memory is always current; disk writes are rate-limited per node by the
// refresh interval. Implements ports.NodeDirectory.
type Service struct {
	mu    sync.RWMutex
	nodes map[string]*domain.NodeRecord

	store    ports.DirectoryStore
	interval time.Duration
	now      func() time.Time
}

// New loads the persisted snapshot and returns a ready directory.
// A corrupt or unreadable snapshot is not fatal: the directory starts empty
// and rebuilds from traffic.
func New(store ports.DirectoryStore, interval time.Duration) *Service {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	s := &Service{
		nodes:    make(map[string]*domain.NodeRecord),
		store:    store,
		interval: interval,
		now:      time.Now,
	}
	if store != nil {
		records, err := store.LoadAll()
		if err != nil {
			slog.Warn("node directory snapshot unreadable, starting empty", "error", err)
		} else {
			for i := range records {
				rec := records[i]
				s.nodes[rec.ID] = &rec
			}
			slog.Info("node directory loaded", "nodes", len(s.nodes))
		}
	}
	return s
}

func (s *Service) GetName(id string) *string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if rec, ok := s.nodes[id]; ok {
		return rec.Name()
	}
	return nil
}

func (s *Service) GetShortName(id string) *string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if rec, ok := s.nodes[id]; ok {
		return rec.ShortName
	}
	return nil
}

func (s *Service) GetPosition(id string) *domain.Position {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if rec, ok := s.nodes[id]; ok && rec.HasPosition() {
		pos := *rec.Position
		return &pos
	}
	return nil
}

// UpdateIdentity merges the names into the in-memory record unconditionally.
// UpdatedAt tracks the last persisted write, so the snapshot is rewritten at
// most once per refresh interval per node unless force is set.
func (s *Service) UpdateIdentity(id string, longName, shortName *string, force bool) bool {
	if id == "" {
		return false
	}
	s.mu.Lock()
	rec, ok := s.nodes[id]
	if !ok {
		rec = &domain.NodeRecord{ID: id}
		s.nodes[id] = rec
	}
	if longName != nil && *longName != "" {
		rec.LongName = longName
	}
	if shortName != nil && *shortName != "" {
		rec.ShortName = shortName
	}
	persist := force || !ok || s.now().Sub(rec.UpdatedAt) >= s.interval
	if persist {
		rec.UpdatedAt = s.now()
	}
	s.mu.Unlock()

	if !persist {
		return false
	}
	return s.persist(id)
}

// UpdatePosition stores the coordinates in memory unconditionally and
// persists under the same rate limit as UpdateIdentity.
func (s *Service) UpdatePosition(id string, lat, lon float64, alt *int, forceDisk bool) bool {
	if id == "" {
		return false
	}
	s.mu.Lock()
	rec, ok := s.nodes[id]
	if !ok {
		rec = &domain.NodeRecord{ID: id}
		s.nodes[id] = rec
	}
	rec.Position = &domain.Position{Latitude: lat, Longitude: lon, Altitude: alt}
	persist := forceDisk || !ok || rec.PositionUpdatedAt == nil ||
		s.now().Sub(*rec.PositionUpdatedAt) >= s.interval
	if persist {
		now := s.now()
		rec.PositionUpdatedAt = &now
	}
	s.mu.Unlock()

	if !persist {
		return false
	}
	return s.persist(id)
}

// Snapshot returns a copy of every record, for persistence and the status API.
func (s *Service) Snapshot() []domain.NodeRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.NodeRecord, 0, len(s.nodes))
	for _, rec := range s.nodes {
		out = append(out, *rec)
	}
	return out
}

func (s *Service) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}

func (s *Service) persist(id string) bool {
	if s.store == nil {
		return false
	}
	if err := s.store.SaveAll(s.Snapshot()); err != nil {
		slog.Error("node directory snapshot write failed", "node", id, "error", err)
		return false
	}
	return true
}
