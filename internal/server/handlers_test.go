package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scenecast/scenecast/internal/broadcast"
	"github.com/scenecast/scenecast/internal/config"
	"github.com/scenecast/scenecast/internal/domain"
	"github.com/scenecast/scenecast/internal/postcache"
	"github.com/scenecast/scenecast/internal/query"
	"github.com/scenecast/scenecast/internal/state"
)

type stubCatalog struct {
	mu     sync.Mutex
	scenes []domain.Scene
	err    error
}

func (s *stubCatalog) setScenes(scenes ...domain.Scene) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scenes = scenes
}

func (s *stubCatalog) GetAll(ctx context.Context) ([]domain.Scene, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scenes, s.err
}

func (s *stubCatalog) GetAllSorted(ctx context.Context) ([]domain.Scene, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scenes, s.err
}

type stubAdmin struct {
	added   []domain.Scene
	deleted []int64
	addErr  error
	delErr  error
}

func (s *stubAdmin) Add(ctx context.Context, scene domain.Scene) error {
	if s.addErr != nil {
		return s.addErr
	}
	s.added = append(s.added, scene)
	return nil
}

func (s *stubAdmin) Delete(ctx context.Context, sceneID int64) error {
	if s.delErr != nil {
		return s.delErr
	}
	s.deleted = append(s.deleted, sceneID)
	return nil
}

type stubRecorder struct{}

func (stubRecorder) Record(ctx context.Context, externalID string, upvoted bool) error {
	return nil
}

type stubFetcher struct {
	posts map[string]domain.Post
}

func (s *stubFetcher) FetchPostByRef(ctx context.Context, ref string) (domain.Post, error) {
	post, ok := s.posts[ref]
	if !ok {
		return domain.Post{}, domain.ErrPostNotFound
	}
	return post, nil
}

func (s *stubFetcher) FetchPostByURL(ctx context.Context, postURL string) (domain.Post, error) {
	return domain.Post{}, domain.ErrPostNotFound
}

type stubPinger struct {
	err error
}

func (s *stubPinger) Ping(ctx context.Context) error {
	return s.err
}

type testServer struct {
	srv     *Server
	catalog *stubCatalog
	admin   *stubAdmin
	pinger  *stubPinger
	hub     *broadcast.Hub
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	catalog := &stubCatalog{}
	admin := &stubAdmin{}
	pinger := &stubPinger{}
	fetcher := &stubFetcher{posts: map[string]domain.Post{}}

	cache := postcache.New(postcache.DefaultTTL, clockwork.NewFakeClock())
	store := state.NewStore()
	querySvc := query.NewService(catalog, store, cache, fetcher)
	hub := broadcast.NewHub(catalog, stubRecorder{}, store, clockwork.NewRealClock())
	t.Cleanup(hub.Stop)

	cfg := &config.Config{Port: "0"}
	srv := NewServer(cfg, querySvc, hub, admin, pinger)

	return &testServer{srv: srv, catalog: catalog, admin: admin, pinger: pinger, hub: hub}
}

func (ts *testServer) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	ts.srv.echo.ServeHTTP(rec, req)
	return rec
}

func TestHandleTargets(t *testing.T) {
	ts := newTestServer(t)
	ts.catalog.setScenes(
		domain.Scene{ID: 1, ExternalRef: "t3_abc", Chapter: 1},
		domain.Scene{ID: 2, ExternalRef: "t3_def", Chapter: 2},
	)

	rec := ts.do(http.MethodGet, "/api/targets", "")

	require.Equal(t, http.StatusOK, rec.Code)

	var resp targetsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Targets, 2)
	assert.Equal(t, "t3_abc", resp.Targets[0].Fullname)
	assert.Equal(t, "t3_def", resp.Targets[1].Fullname)
}

func TestHandleTargets_CatalogFailure(t *testing.T) {
	ts := newTestServer(t)
	ts.catalog.err = fmt.Errorf("connection refused")

	rec := ts.do(http.MethodGet, "/api/targets", "")

	require.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "error")
}

func TestHandleAddScene(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/api/scenes", `{"scene_id":42,"fullname":"t3_xyz","chapter":3}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, ts.admin.added, 1)
	assert.Equal(t, domain.Scene{ID: 42, ExternalRef: "t3_xyz", Chapter: 3}, ts.admin.added[0])
}

func TestHandleAddScene_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing scene_id", `{"fullname":"t3_xyz"}`},
		{"negative scene_id", `{"scene_id":-1,"fullname":"t3_xyz"}`},
		{"missing fullname", `{"scene_id":42}`},
		{"malformed json", `{"scene_id":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)

			rec := ts.do(http.MethodPost, "/api/scenes", tt.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Empty(t, ts.admin.added)
		})
	}
}

func TestHandleAddScene_Duplicate(t *testing.T) {
	ts := newTestServer(t)
	ts.admin.addErr = domain.ErrSceneExists

	rec := ts.do(http.MethodPost, "/api/scenes", `{"scene_id":42,"fullname":"t3_xyz"}`)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandleDeleteScene(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodDelete, "/api/scenes/42", "")

	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []int64{42}, ts.admin.deleted)
}

func TestHandleDeleteScene_InvalidID(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodDelete, "/api/scenes/abc", "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, ts.admin.deleted)
}

func TestHandleDeleteScene_NotFound(t *testing.T) {
	ts := newTestServer(t)
	ts.admin.delErr = domain.ErrSceneNotFound

	rec := ts.do(http.MethodDelete, "/api/scenes/42", "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleLiveness(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/healthz", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}

func TestHandleReadiness(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/readyz", "")

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleReadiness_PostgresDown(t *testing.T) {
	ts := newTestServer(t)
	ts.pinger.err = fmt.Errorf("connection refused")

	rec := ts.do(http.MethodGet, "/readyz", "")

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "postgres")
}

func TestHandleMetrics(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/metrics", "")

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWebSocketReceivesScenesOnConnect(t *testing.T) {
	ts := newTestServer(t)
	ts.catalog.setScenes(domain.Scene{ID: 1, ExternalRef: "t3_abc", Chapter: 1})

	httpSrv := httptest.NewServer(ts.srv.echo)
	defer httpSrv.Close()

	wsURL := "ws" + strings.TrimPrefix(httpSrv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var frame domain.ScenesFrame
	require.NoError(t, json.Unmarshal(data, &frame))
	assert.Equal(t, domain.FrameScenes, frame.Type)
	assert.Equal(t, []string{"t3_abc"}, frame.Fullnames)
}

func TestWebSocketBroadcastOnAdminMutation(t *testing.T) {
	ts := newTestServer(t)
	ts.catalog.setScenes(domain.Scene{ID: 1, ExternalRef: "t3_abc", Chapter: 1})

	httpSrv := httptest.NewServer(ts.srv.echo)
	defer httpSrv.Close()

	wsURL := "ws" + strings.TrimPrefix(httpSrv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	// Join frame first.
	_, _, err = conn.ReadMessage()
	require.NoError(t, err)

	// Admin mutation grows the catalog; every subscriber gets the new list.
	ts.catalog.setScenes(
		domain.Scene{ID: 1, ExternalRef: "t3_abc", Chapter: 1},
		domain.Scene{ID: 2, ExternalRef: "t3_def", Chapter: 2},
	)
	rec := ts.do(http.MethodPost, "/api/scenes", `{"scene_id":2,"fullname":"t3_def","chapter":2}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var frame domain.ScenesFrame
	require.NoError(t, json.Unmarshal(data, &frame))
	assert.Equal(t, []string{"t3_abc", "t3_def"}, frame.Fullnames)
}
