package web_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshgram/meshgram/internal/adapters/mqtt"
	"github.com/meshgram/meshgram/internal/adapters/web"
	"github.com/meshgram/meshgram/internal/core/domain"
	"github.com/meshgram/meshgram/internal/core/services/aggregate"
)

func ptr[T any](v T) *T { return &v }

type fakeDirectory struct {
	nodes []domain.NodeRecord
}

func (d *fakeDirectory) GetName(string) *string                                  { return nil }
func (d *fakeDirectory) GetShortName(string) *string                             { return nil }
func (d *fakeDirectory) GetPosition(string) *domain.Position                     { return nil }
func (d *fakeDirectory) UpdateIdentity(string, *string, *string, bool) bool      { return false }
func (d *fakeDirectory) UpdatePosition(string, float64, float64, *int, bool) bool { return false }
func (d *fakeDirectory) Snapshot() []domain.NodeRecord                           { return d.nodes }
func (d *fakeDirectory) Len() int                                                { return len(d.nodes) }

func setupServer(t *testing.T) (*web.Server, *fakeDirectory, *aggregate.Engine) {
	t.Helper()

	dir := &fakeDirectory{
		nodes: []domain.NodeRecord{
			{ID: "!aa000001", LongName: ptr("Alpha Node"), UpdatedAt: time.Now()},
			{ID: "!bb000002", ShortName: ptr("BRVO"), UpdatedAt: time.Now()},
		},
	}
	engine := aggregate.New(30 * time.Second)

	srv := web.NewServer(":0", dir, engine,
		func() bool { return true },
		func() []mqtt.TargetStatus {
			return []mqtt.TargetStatus{{Name: "backup", Enabled: true, Connected: false}}
		})
	return srv, dir, engine
}

func doGet(t *testing.T, handler http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	srv, _, _ := setupServer(t)
	rec := doGet(t, web.SetupRoutes(srv), "/healthz")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}

func TestStatusReportsCounts(t *testing.T) {
	srv, _, engine := setupServer(t)
	engine.AddObservation("m1", &domain.PacketRecord{Sender: ptr("!aa000001")}, "!bb000002", &fakeDirectory{})

	rec := doGet(t, web.SetupRoutes(srv), "/api/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var status struct {
		SourceConnected bool                `json:"source_connected"`
		Targets         []mqtt.TargetStatus `json:"targets"`
		Nodes           int                 `json:"nodes"`
		ActiveGroups    int                 `json:"active_groups"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))

	assert.True(t, status.SourceConnected)
	assert.Equal(t, 2, status.Nodes)
	assert.Equal(t, 1, status.ActiveGroups)
	require.Len(t, status.Targets, 1)
	assert.Equal(t, "backup", status.Targets[0].Name)
}

func TestListNodes(t *testing.T) {
	srv, _, _ := setupServer(t)
	rec := doGet(t, web.SetupRoutes(srv), "/api/nodes")
	require.Equal(t, http.StatusOK, rec.Code)

	var nodes []domain.NodeRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &nodes))
	require.Len(t, nodes, 2)
	assert.Equal(t, "!aa000001", nodes[0].ID)
}

func TestGetNodeNormalizesID(t *testing.T) {
	srv, _, _ := setupServer(t)
	handler := web.SetupRoutes(srv)

	// Uppercase hex without the bang still resolves.
	rec := doGet(t, handler, "/api/nodes/AA000001")
	require.Equal(t, http.StatusOK, rec.Code)

	var node domain.NodeRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &node))
	assert.Equal(t, "!aa000001", node.ID)
	assert.Equal(t, "Alpha Node", *node.LongName)
}

func TestGetNodeNotFound(t *testing.T) {
	srv, _, _ := setupServer(t)
	rec := doGet(t, web.SetupRoutes(srv), "/api/nodes/!deadbeef")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListGroups(t *testing.T) {
	srv, _, engine := setupServer(t)
	engine.AddObservation("msg-7", &domain.PacketRecord{
		MessageID: ptr("msg-7"),
		Sender:    ptr("!aa000001"),
		Text:      ptr("hello"),
	}, "!bb000002", &fakeDirectory{})

	rec := doGet(t, web.SetupRoutes(srv), "/api/groups")
	require.Equal(t, http.StatusOK, rec.Code)

	var groups []domain.ReceptionGroup
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &groups))
	require.Len(t, groups, 1)
	assert.Equal(t, "msg-7", groups[0].MessageID)
	require.Len(t, groups[0].ObservedBy, 1)
	assert.Equal(t, "!bb000002", groups[0].ObservedBy[0].NodeID)
}

func TestEmptyGroupsEncodeAsArray(t *testing.T) {
	srv, _, _ := setupServer(t)
	rec := doGet(t, web.SetupRoutes(srv), "/api/groups")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _, _ := setupServer(t)
	rec := doGet(t, web.SetupRoutes(srv), "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
}
