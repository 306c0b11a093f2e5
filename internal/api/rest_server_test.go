package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/voxel-nav/internal/cache"
	"github.com/annel0/voxel-nav/internal/logging"
	"github.com/annel0/voxel-nav/internal/navgraph"
	"github.com/annel0/voxel-nav/internal/pathservice"
	"github.com/annel0/voxel-nav/internal/scheduler"
	"github.com/annel0/voxel-nav/internal/storage"
	"github.com/annel0/voxel-nav/internal/vec"
	"github.com/annel0/voxel-nav/internal/world"
)

type inlineSubmitter struct{}

func (inlineSubmitter) Submit(ctx context.Context, task *scheduler.Task) error {
	task.Run(ctx)
	return nil
}

func quiet(component string) *logging.Logger {
	return logging.NewWriterLogger(component, io.Discard, logging.ERROR)
}

// newTestServer поднимает коридор 8×1 и сервис путей с циклом доставки
func newTestServer(t *testing.T) (*RestServer, *navgraph.Manager) {
	rs, m, _, _ := newCachedTestServer(t, nil, nil)
	return rs, m
}

// countingRequester считает запросы, дошедшие до сервиса
type countingRequester struct {
	*pathservice.Service
	mu    sync.Mutex
	calls int
}

func (c *countingRequester) RequestPath(ctx context.Context, starts []vec.Vec3, target vec.Vec3, h pathservice.Handler) (uint64, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return c.Service.RequestPath(ctx, starts, target, h)
}

func (c *countingRequester) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func newCachedTestServer(t *testing.T, pathCache cache.CacheRepo, store ChunkSaver) (*RestServer, *navgraph.Manager, *world.VoxelWorld, *countingRequester) {
	t.Helper()
	w := world.NewVoxelWorld(8, 4, 1)
	m := navgraph.NewManager(w, inlineSubmitter{}, navgraph.Dimensions{SizeX: 8, Height: 4, SizeZ: 1},
		navgraph.WithLogger(quiet("navgraph")))
	w.AddListener(m)
	t.Cleanup(m.Close)

	c := world.NewChunk(vec.Vec2{}, 8, 4, 1)
	for x := 0; x < 8; x++ {
		c.FillColumn(x, 0, 1)
	}
	c.ClearChanges()
	w.LoadChunk(c)

	svc := pathservice.NewService(m, inlineSubmitter{}, pathservice.WithLogger(quiet("path")))
	ctx, cancel := context.WithCancel(context.Background())
	go svc.Run(ctx, nil)
	t.Cleanup(cancel)

	paths := &countingRequester{Service: svc}
	rs := NewRestServer(Config{
		Graph:       m,
		Paths:       paths,
		World:       w,
		Store:       store,
		Registry:    prometheus.NewRegistry(),
		PathTimeout: time.Second,
		Cache:       pathCache,
		Namespace:   "test",
		Logger:      quiet("server"),
	})
	return rs, m, w, paths
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), "ответ должен быть JSON")
	return body
}

func do(rs *RestServer, method, url string, body []byte) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(method, url, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rs.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	rs, _ := newTestServer(t)
	rec := do(rs, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["status"])
}

func TestLookup(t *testing.T) {
	rs, _ := newTestServer(t)

	rec := do(rs, http.MethodGet, "/api/v1/lookup?x=3&y=2&z=0", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	data := decode(t, rec)["data"].(map[string]interface{})
	assert.Equal(t, []interface{}{3.0, 1.0, 0.0}, data["position"], "поиск идёт вниз до пола")
	assert.Len(t, data["neighbors"], 2, "в коридоре два соседа")

	rec = do(rs, http.MethodGet, "/api/v1/lookup?x=100&y=1&z=0", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(rs, http.MethodGet, "/api/v1/lookup?x=a&y=1&z=0", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPathFound(t *testing.T) {
	rs, _ := newTestServer(t)

	body := []byte(`{"starts":[[0,1,0]],"target":[5,1,0]}`)
	rec := do(rs, http.MethodPost, "/api/v1/path", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	data := decode(t, rec)["data"].(map[string]interface{})
	assert.Equal(t, true, data["valid"])
	assert.InDelta(t, 5.0, data["length"], 1e-9)
	assert.Len(t, data["nodes"], 6)
	assert.Equal(t, 1.0, data["request_id"], "идентификаторы начинаются с 1")
}

func TestPathUnresolved(t *testing.T) {
	rs, _ := newTestServer(t)

	rec := do(rs, http.MethodPost, "/api/v1/path", []byte(`{"starts":[[0,1,0]],"target":[50,1,0]}`))
	require.Equal(t, http.StatusOK, rec.Code)
	data := decode(t, rec)["data"].(map[string]interface{})
	assert.Equal(t, false, data["valid"], "цель вне графа даёт INVALID")
}

func TestPathBadRequest(t *testing.T) {
	rs, _ := newTestServer(t)

	rec := do(rs, http.MethodPost, "/api/v1/path", []byte(`{"starts":[],"target":[1,1,0]}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(rs, http.MethodPost, "/api/v1/path", []byte(`not json`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// silentRequester принимает запросы, но никогда не отвечает
type silentRequester struct {
	mu        sync.Mutex
	cancelled []uint64
}

func (s *silentRequester) RequestPath(context.Context, []vec.Vec3, vec.Vec3, pathservice.Handler) (uint64, error) {
	return 7, nil
}

func (s *silentRequester) Cancel(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelled = append(s.cancelled, id)
}

func TestPathTimeoutCancelsRequest(t *testing.T) {
	_, m := newTestServer(t)
	paths := &silentRequester{}
	rs := NewRestServer(Config{
		Graph:       m,
		Paths:       paths,
		PathTimeout: 20 * time.Millisecond,
		Logger:      quiet("server"),
	})

	rec := do(rs, http.MethodPost, "/api/v1/path", []byte(`{"starts":[[0,1,0]],"target":[5,1,0]}`))
	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)

	paths.mu.Lock()
	defer paths.mu.Unlock()
	assert.Equal(t, []uint64{7}, paths.cancelled, "просроченный запрос отменяется")
}

func TestStatsAndMetrics(t *testing.T) {
	rs, m := newTestServer(t)

	rec := do(rs, http.MethodGet, "/api/v1/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	data := decode(t, rec)["data"].(map[string]interface{})
	graph := data["graph"].(map[string]interface{})
	assert.Equal(t, float64(m.Version()), graph["version"])
	assert.Equal(t, 1.0, graph["chunks"])

	rec = do(rs, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "nav_rest", "HTTP-метрики экспортируются")
}

func newMemoryStorage(t *testing.T) *storage.WorldStorage {
	t.Helper()
	store, err := storage.NewInMemoryWorldStorage()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func setVoxel(t *testing.T, rs *RestServer, body string) map[string]interface{} {
	t.Helper()
	rec := do(rs, http.MethodPost, "/api/v1/voxel", []byte(body))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decode(t, rec)["data"].(map[string]interface{})
}

func TestVoxelEditInvalidatesCachedPath(t *testing.T) {
	pathCache, err := cache.NewMemoryCache(100)
	require.NoError(t, err)
	defer pathCache.Close()
	store := newMemoryStorage(t)
	rs, m, w, paths := newCachedTestServer(t, pathCache, store)

	body := []byte(`{"starts":[[0,1,0]],"target":[5,1,0]}`)
	first := decode(t, do(rs, http.MethodPost, "/api/v1/path", body))["data"].(map[string]interface{})
	assert.Equal(t, false, first["cached"])

	second := decode(t, do(rs, http.MethodPost, "/api/v1/path", body))["data"].(map[string]interface{})
	assert.Equal(t, true, second["cached"], "повторный запрос берётся из кеша")
	assert.Equal(t, first["nodes"], second["nodes"])
	assert.Equal(t, 1, paths.count(), "поиск выполнялся один раз")

	saved, err := store.SaveDirty(w)
	require.NoError(t, err)
	assert.Zero(t, saved, "до правок сохранять нечего")

	// стена посреди коридора
	revision := m.Revision()
	setVoxel(t, rs, `{"pos":[3,1,0],"solid":true}`)
	data := setVoxel(t, rs, `{"pos":[3,2,0],"solid":true}`)
	assert.Equal(t, float64(revision+2), data["revision"], "каждая правка продвигает ревизию")
	assert.Equal(t, true, data["solid"])

	third := decode(t, do(rs, http.MethodPost, "/api/v1/path", body))["data"].(map[string]interface{})
	assert.Equal(t, false, third["cached"], "после правки кеш не используется")
	assert.Equal(t, false, third["valid"], "коридор перекрыт")
	assert.Equal(t, 2, paths.count())

	saved, err = store.SaveDirty(w)
	require.NoError(t, err)
	assert.Equal(t, 1, saved, "изменённый чанк сохраняется")

	restored, ok, err := store.LoadChunk(vec.Vec2{}, 8, 4, 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, restored.IsSolid(vec.Vec3{X: 3, Y: 2, Z: 0}), "в хранилище попала стена")
}

func TestVoxelBadRequests(t *testing.T) {
	rs, _ := newTestServer(t)

	rec := do(rs, http.MethodPost, "/api/v1/voxel", []byte(`{"pos":[1,1,0]}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code, "solid обязателен")

	rec = do(rs, http.MethodPost, "/api/v1/voxel", []byte(`{"pos":[100,1,0],"solid":false}`))
	assert.Equal(t, http.StatusNotFound, rec.Code, "чанк не загружен")
}

func TestReadOnlyServerHasNoEditRoutes(t *testing.T) {
	_, m := newTestServer(t)
	rs := NewRestServer(Config{Graph: m, Logger: quiet("server")})

	rec := do(rs, http.MethodPost, "/api/v1/voxel", []byte(`{"pos":[1,1,0],"solid":true}`))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUnloadChunkPersistsEdits(t *testing.T) {
	store := newMemoryStorage(t)
	rs, m, _, _ := newCachedTestServer(t, nil, store)

	setVoxel(t, rs, `{"pos":[6,1,0],"solid":true}`)

	rec := do(rs, http.MethodDelete, "/api/v1/chunks/0/0", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	data := decode(t, rec)["data"].(map[string]interface{})
	assert.Equal(t, true, data["saved"])

	count, err := store.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	assert.Empty(t, m.ChunkCoords(), "граф выгруженного чанка удалён")
	rec = do(rs, http.MethodGet, "/api/v1/lookup?x=3&y=1&z=0", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(rs, http.MethodDelete, "/api/v1/chunks/0/0", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = do(rs, http.MethodDelete, "/api/v1/chunks/a/0", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
