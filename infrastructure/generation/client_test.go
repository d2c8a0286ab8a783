package generation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"flowstudio/application/ports"
	pkgerrors "flowstudio/pkg/errors"
	"flowstudio/pkg/observability"
)

func newTestClient(t *testing.T, h http.HandlerFunc, maxFailures int) (*Client, *observability.Collector) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	metrics := observability.NewCollector("test")
	c, err := NewClient(Config{
		BaseURL:     srv.URL + "/",
		APIKey:      "secret",
		MaxFailures: maxFailures,
		OpenTimeout: time.Minute,
		HTTPClient:  srv.Client(),
	}, metrics, zap.NewNop())
	require.NoError(t, err)
	return c, metrics
}

func TestClient_GenerateImage(t *testing.T) {
	var got ports.ImageRequest
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/images", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"url":"https://cdn.test/a.png","asset_id":"as-1"}`))
	}, 3)

	res, err := c.GenerateImage(context.Background(), ports.ImageRequest{Prompt: "a fox", Model: "flux-schnell"})

	require.NoError(t, err)
	assert.Equal(t, ports.GenerationResult{URL: "https://cdn.test/a.png", AssetID: "as-1"}, res)
	assert.Equal(t, "a fox", got.Prompt)
	assert.Equal(t, "flux-schnell", got.Model)
}

func TestClient_Routes(t *testing.T) {
	var paths []string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		_, _ = w.Write([]byte(`{"url":"https://cdn.test/out"}`))
	}, 3)
	ctx := context.Background()

	_, err := c.GenerateVideo(ctx, ports.VideoRequest{Prompt: "pan", FirstFrameURL: "https://cdn.test/f.png"})
	require.NoError(t, err)
	_, err = c.GenerateModel(ctx, ports.ModelRequest{ImageURL: "https://cdn.test/f.png"})
	require.NoError(t, err)
	_, err = c.RemoveBackground(ctx, "https://cdn.test/f.png")
	require.NoError(t, err)

	assert.Equal(t, []string{"/v1/videos", "/v1/models", "/v1/background-removal"}, paths)
}

func TestClient_Errors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantType pkgerrors.ErrorType
	}{
		{name: "client error", status: http.StatusBadRequest, body: `{"error":"nsfw"}`, wantType: pkgerrors.ErrorTypeExternal},
		{name: "server error", status: http.StatusBadGateway, body: "upstream", wantType: pkgerrors.ErrorTypeExternal},
		{name: "empty url", status: http.StatusOK, body: `{}`, wantType: pkgerrors.ErrorTypeExternal},
		{name: "bad json", status: http.StatusOK, body: `{`, wantType: pkgerrors.ErrorTypeExternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}, 3)

			_, err := c.GenerateImage(context.Background(), ports.ImageRequest{Prompt: "x"})

			require.Error(t, err)
			assert.True(t, pkgerrors.IsType(err, tt.wantType))
		})
	}
}

func TestClient_BreakerOpensOnServerFailures(t *testing.T) {
	var hits atomic.Int32
	c, metrics := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}, 2)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := c.GenerateImage(ctx, ports.ImageRequest{Prompt: "x"})
		require.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateOpen, c.State())

	_, err := c.GenerateImage(ctx, ports.ImageRequest{Prompt: "x"})
	assert.True(t, pkgerrors.IsType(err, pkgerrors.ErrorTypeUnavailable))
	assert.Equal(t, int32(2), hits.Load())

	var m dto.Metric
	require.NoError(t, metrics.CircuitBreakerState.WithLabelValues(breakerName).Write(&m))
	assert.Equal(t, float64(2), m.GetGauge().GetValue())
}

func TestClient_ClientErrorsDoNotTrip(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}, 1)

	for i := 0; i < 3; i++ {
		_, err := c.GenerateImage(context.Background(), ports.ImageRequest{Prompt: "x"})
		require.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateClosed, c.State())
}

func TestClient_ContextCancelled(t *testing.T) {
	release := make(chan struct{})
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}, 1)
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := c.GenerateImage(ctx, ports.ImageRequest{Prompt: "x"})

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewClient_RequiresURL(t *testing.T) {
	_, err := NewClient(Config{}, nil, nil)
	assert.True(t, pkgerrors.IsValidation(err))
}
