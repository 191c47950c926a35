package web

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/meshgram/meshgram/internal/adapters/mqtt"
	"github.com/meshgram/meshgram/internal/core/domain"
)

// statusResponse is the /api/status body.
type statusResponse struct {
	SourceConnected bool                `json:"source_connected"`
	Targets         []mqtt.TargetStatus `json:"targets"`
	Nodes           int                 `json:"nodes"`
	ActiveGroups    int                 `json:"active_groups"`
	FeedClients     int                 `json:"feed_clients"`
}

func SetupRoutes(s *Server) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/api/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/api/nodes", s.handleNodes).Methods(http.MethodGet)
	r.HandleFunc("/api/nodes/{id}", s.handleNode).Methods(http.MethodGet)
	r.HandleFunc("/api/groups", s.handleGroups).Methods(http.MethodGet)

	r.HandleFunc("/ws", s.Feed.HandleWebSocket)

	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := statusResponse{
		Nodes:        s.Directory.Len(),
		ActiveGroups: s.Engine.Len(),
		FeedClients:  s.Feed.ClientCount(),
	}
	if s.SourceConnected != nil {
		resp.SourceConnected = s.SourceConnected()
	}
	if s.TargetStatuses != nil {
		resp.Targets = s.TargetStatuses()
	}
	if resp.Targets == nil {
		resp.Targets = []mqtt.TargetStatus{}
	}
	writeJSON(w, resp)
}

func (s *Server) handleNodes(w http.ResponseWriter, _ *http.Request) {
	nodes := s.Directory.Snapshot()
	if nodes == nil {
		nodes = []domain.NodeRecord{}
	}
	writeJSON(w, nodes)
}

func (s *Server) handleNode(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := vars["id"]
	if norm := domain.NormalizeNodeID(id); norm != nil {
		id = *norm
	}
	for _, node := range s.Directory.Snapshot() {
		if node.ID == id {
			writeJSON(w, node)
			return
		}
	}
	http.Error(w, "node not found", http.StatusNotFound)
}

func (s *Server) handleGroups(w http.ResponseWriter, _ *http.Request) {
	groups := s.Engine.Groups()
	if groups == nil {
		groups = []domain.ReceptionGroup{}
	}
	writeJSON(w, groups)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("response encode failed", "error", err)
	}
}
