package rest

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"flowstudio/application/commands/bus"
	cmdhandlers "flowstudio/application/commands/handlers"
	querybus "flowstudio/application/queries/bus"
	queryhandlers "flowstudio/application/queries/handlers"
	"flowstudio/application/services"
	"flowstudio/domain/core/valueobjects"
	"flowstudio/infrastructure/assets"
	"flowstudio/infrastructure/config"
	"flowstudio/pkg/observability"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
}

type errorBody struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func newTestServer(t *testing.T) (http.Handler, *services.Dispatcher) {
	t.Helper()
	logger := zap.NewNop()
	metrics := observability.NewCollector("flowstudio")
	dispatcher := services.NewDispatcher(services.DispatcherDeps{Metrics: metrics}, logger)
	t.Cleanup(dispatcher.Close)

	commandBus := bus.NewCommandBus(bus.RecoveryMiddleware(logger))
	require.NoError(t, cmdhandlers.NewNodeCommandHandler(dispatcher, logger).Register(commandBus))
	require.NoError(t, cmdhandlers.NewAssetCommandHandler(nil, logger).Register(commandBus))
	queryBus := querybus.NewQueryBus()
	require.NoError(t, queryhandlers.NewEditorQueryHandler(dispatcher, nil, logger).Register(queryBus))

	router := NewRouter(commandBus, queryBus, metrics, config.Defaults(), logger)
	router.AddReadinessCheck("graph", func() error { return nil })
	return router.Setup(), dispatcher
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func createNode(t *testing.T, h http.Handler, body string) string {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/api/v1/nodes", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	var id string
	require.NoError(t, json.Unmarshal(env.Data, &id))
	return id
}

func TestRouter_Health(t *testing.T) {
	h, _ := newTestServer(t)

	for _, path := range []string{"/health", "/ready"} {
		rec := do(t, h, http.MethodGet, path, "")
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.NotEmpty(t, rec.Header().Get("Content-Type"))
	}
}

func TestRouter_ReadinessFailure(t *testing.T) {
	logger := zap.NewNop()
	router := NewRouter(bus.NewCommandBus(), querybus.NewQueryBus(), nil, config.Defaults(), logger)
	router.AddReadinessCheck("assets", func() error { return assert.AnError })

	rec := do(t, router.Setup(), http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "assets")
}

func TestRouter_NodeLifecycle(t *testing.T) {
	h, dispatcher := newTestServer(t)

	textID := createNode(t, h, `{"type":"text","text":"a red fox"}`)
	imageID := createNode(t, h, `{"type":"image"}`)

	rec := do(t, h, http.MethodPost, "/api/v1/edges",
		`{"source":"`+textID+`","target":"`+imageID+`","target_handle":"prompt"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/api/v1/graph", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	var graph struct {
		Nodes []json.RawMessage `json:"nodes"`
		Edges []json.RawMessage `json:"edges"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &graph))
	assert.Len(t, graph.Nodes, 2)
	assert.Len(t, graph.Edges, 1)

	rec = do(t, h, http.MethodGet, "/api/v1/nodes/"+imageID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"incoming"`)

	rec = do(t, h, http.MethodPatch, "/api/v1/nodes/"+textID, `{"editing":true}`)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
	editing, ok := dispatcher.Editing()
	require.True(t, ok)
	assert.Equal(t, textID, editing.String())

	rec = do(t, h, http.MethodDelete, "/api/v1/nodes/"+textID, "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, dispatcher.Graph().Snapshot().Edges)
}

func TestRouter_Errors(t *testing.T) {
	h, _ := newTestServer(t)
	textID := createNode(t, h, `{"type":"text"}`)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		code   string
	}{
		{
			name:   "missing node",
			method: http.MethodGet,
			path:   "/api/v1/nodes/1700000000000-99-image",
			status: http.StatusNotFound,
			code:   "NODE_NOT_FOUND",
		},
		{
			name:   "unknown field",
			method: http.MethodPost,
			path:   "/api/v1/nodes",
			body:   `{"type":"text","colour":"red"}`,
			status: http.StatusBadRequest,
		},
		{
			name:   "invalid node type",
			method: http.MethodPost,
			path:   "/api/v1/nodes",
			body:   `{"type":"audio"}`,
			status: http.StatusBadRequest,
		},
		{
			name:   "self connection",
			method: http.MethodPost,
			path:   "/api/v1/edges",
			body:   `{"source":"` + textID + `","target":"` + textID + `"}`,
			status: http.StatusUnprocessableEntity,
			code:   "SELF_CONNECTION",
		},
		{
			name:   "asset store not configured",
			method: http.MethodGet,
			path:   "/api/v1/assets",
			status: http.StatusServiceUnavailable,
			code:   "SERVICE_UNAVAILABLE",
		},
		{
			name:   "asset edit without store",
			method: http.MethodPatch,
			path:   "/api/v1/assets/asset-1",
			body:   `{"name":"cover"}`,
			status: http.StatusServiceUnavailable,
			code:   "SERVICE_UNAVAILABLE",
		},
		{
			name:   "resize without crop session",
			method: http.MethodPatch,
			path:   "/api/v1/nodes/" + textID + "/crop",
			body:   `{"width":400,"height":300}`,
			status: http.StatusConflict,
			code:   "NO_CROP_SESSION",
		},
		{
			name:   "unknown crop action",
			method: http.MethodPost,
			path:   "/api/v1/nodes/" + textID + "/crop/rotate",
			status: http.StatusNotFound,
		},
		{
			name:   "unknown route",
			method: http.MethodGet,
			path:   "/api/v1/graphs",
			status: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			if tt.code != "" {
				var body errorBody
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
				assert.Equal(t, tt.code, body.Code)
			}
		})
	}
}

func TestRouter_Assets(t *testing.T) {
	logger := zap.NewNop()
	store, err := assets.Open(filepath.Join(t.TempDir(), "assets.db"), nil, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	dispatcher := services.NewDispatcher(services.DispatcherDeps{Assets: store}, logger)
	t.Cleanup(dispatcher.Close)

	commandBus := bus.NewCommandBus(bus.RecoveryMiddleware(logger))
	require.NoError(t, cmdhandlers.NewNodeCommandHandler(dispatcher, logger).Register(commandBus))
	require.NoError(t, cmdhandlers.NewAssetCommandHandler(store, logger).Register(commandBus))
	h := NewRouter(commandBus, querybus.NewQueryBus(), nil, config.Defaults(), logger).Setup()

	source := createNode(t, h, `{"type":"image","media_url":"https://cdn.test/fox.png"}`)
	rec := do(t, h, http.MethodPost, "/api/v1/nodes/"+source+"/download", "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	var asset struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &asset))

	rec = do(t, h, http.MethodPatch, "/api/v1/assets/"+asset.ID, `{"name":"cover"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"name":"cover"`)

	target := createNode(t, h, `{"type":"image"}`)
	rec = do(t, h, http.MethodPost, "/api/v1/nodes/"+target+"/asset", `{"asset_id":"`+asset.ID+`"}`)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
	node, ok := dispatcher.Graph().Node(valueobjects.MustParseNodeID(target))
	require.True(t, ok)
	assert.Equal(t, "https://cdn.test/fox.png", node.Data.MediaURL())

	rec = do(t, h, http.MethodDelete, "/api/v1/assets/"+asset.ID, "")
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodDelete, "/api/v1/assets/"+asset.ID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ASSET_NOT_FOUND", body.Code)
}

func TestRouter_Metrics(t *testing.T) {
	h, _ := newTestServer(t)
	do(t, h, http.MethodGet, "/api/v1/graph", "")

	rec := do(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "flowstudio_http_requests_total"))
	assert.Contains(t, body, `route="/api/v1/graph"`)
}

func TestRouter_CORS(t *testing.T) {
	h, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/graph", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.NotEmpty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouter_GenerationRateLimit(t *testing.T) {
	logger := zap.NewNop()
	dispatcher := services.NewDispatcher(services.DispatcherDeps{}, logger)
	t.Cleanup(dispatcher.Close)

	commandBus := bus.NewCommandBus()
	require.NoError(t, cmdhandlers.NewNodeCommandHandler(dispatcher, logger).Register(commandBus))

	cfg := config.Defaults()
	cfg.GenerationRateLimit = 1
	h := NewRouter(commandBus, querybus.NewQueryBus(), nil, cfg, logger).Setup()

	id := createNode(t, h, `{"type":"image","prompt":"a lighthouse"}`)
	path := "/api/v1/nodes/" + id + "/generate"

	first := do(t, h, http.MethodPost, path, "")
	assert.NotEqual(t, http.StatusTooManyRequests, first.Code)

	second := do(t, h, http.MethodPost, path, "")
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "60", second.Header().Get("Retry-After"))

	var body errorBody
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &body))
	assert.Equal(t, "RATE_LIMIT", body.Type)

	// other routes are not throttled
	rec := do(t, h, http.MethodPost, "/api/v1/nodes/"+id+"/replace", "")
	assert.NotEqual(t, http.StatusTooManyRequests, rec.Code)
}
