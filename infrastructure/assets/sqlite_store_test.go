package assets

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"flowstudio/application/ports"
	"flowstudio/domain/core/valueobjects"
	pkgerrors "flowstudio/pkg/errors"
	"flowstudio/pkg/observability"
)

func openStore(t *testing.T) (*SQLiteStore, *observability.Collector) {
	t.Helper()
	metrics := observability.NewCollector("test")
	s, err := Open(filepath.Join(t.TempDir(), "assets.db"), metrics, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, metrics
}

func TestSQLiteStore_SaveGetList(t *testing.T) {
	s, _ := openStore(t)
	ctx := context.Background()
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	first, err := s.Save(ctx, ports.Asset{NodeID: "image-1", Name: "Fox", Type: valueobjects.NodeTypeImage, URL: "https://cdn.test/fox.png"})
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)
	second, err := s.Save(ctx, ports.Asset{ID: "as-2", Type: valueobjects.NodeTypeVideo, URL: "https://cdn.test/pan.mp4"})
	require.NoError(t, err)
	assert.Equal(t, "as-2", second.ID)

	got, err := s.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, first, got)

	all, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "as-2", all[0].ID)
	assert.Equal(t, first.ID, all[1].ID)
}

func TestSQLiteStore_UpdateDelete(t *testing.T) {
	s, _ := openStore(t)
	ctx := context.Background()
	a, err := s.Save(ctx, ports.Asset{Name: "Draft", Type: valueobjects.NodeTypeImage, URL: "https://cdn.test/a.png"})
	require.NoError(t, err)

	a.Name = "Final"
	a.URL = "https://cdn.test/b.png"
	require.NoError(t, s.Update(ctx, a))

	got, err := s.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "Final", got.Name)
	assert.Equal(t, "https://cdn.test/b.png", got.URL)

	require.NoError(t, s.Delete(ctx, a.ID))
	_, err = s.Get(ctx, a.ID)
	assert.ErrorIs(t, err, pkgerrors.ErrAssetNotFound)
}

func TestSQLiteStore_Missing(t *testing.T) {
	s, metrics := openStore(t)
	ctx := context.Background()

	tests := []struct {
		name string
		call func() error
	}{
		{name: "get", call: func() error { _, err := s.Get(ctx, "nope"); return err }},
		{name: "update", call: func() error { return s.Update(ctx, ports.Asset{ID: "nope", URL: "x"}) }},
		{name: "delete", call: func() error { return s.Delete(ctx, "nope") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			assert.ErrorIs(t, err, pkgerrors.ErrAssetNotFound)
			assert.True(t, pkgerrors.IsNotFound(err))
		})
	}

	var m dto.Metric
	require.NoError(t, metrics.DBOperations.WithLabelValues("get", table, "success").Write(&m))
	assert.Equal(t, float64(1), m.GetCounter().GetValue())
}

func TestSQLiteStore_SaveRequiresURL(t *testing.T) {
	s, metrics := openStore(t)

	_, err := s.Save(context.Background(), ports.Asset{Name: "empty"})

	assert.True(t, pkgerrors.IsValidation(err))
	var m dto.Metric
	require.NoError(t, metrics.DBOperations.WithLabelValues("save", table, "error").Write(&m))
	assert.Equal(t, float64(1), m.GetCounter().GetValue())
}

func TestSQLiteStore_EmptyList(t *testing.T) {
	s, _ := openStore(t)

	all, err := s.List(context.Background())

	require.NoError(t, err)
	assert.NotNil(t, all)
	assert.Empty(t, all)
}

func TestOpen_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "assets.db")
	s, err := Open(path, nil, nil)
	require.NoError(t, err)
	a, err := s.Save(context.Background(), ports.Asset{URL: "https://cdn.test/a.png", Type: valueobjects.NodeType3D})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path, nil, nil)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Get(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, valueobjects.NodeType3D, got.Type)
}
