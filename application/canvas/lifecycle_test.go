package canvas

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"flowstudio/application/ports"
)

func disposable() *MockSurface {
	s := &MockSurface{}
	s.On("Clear").Return(nil)
	s.On("Dispose").Return(nil)
	return s
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, g.Write(&m))
	return m.GetGauge().GetValue()
}

func TestLifecycle_CreateCanvas(t *testing.T) {
	s := disposable()
	l := NewLifecycle(&fakeRenderer{available: true, surfaces: []*MockSurface{s}}, zap.NewNop())

	got := l.CreateCanvas(&ports.Element{ID: "crop-1"}, 800, 600)

	require.NotNil(t, got)
	assert.Same(t, s, got)
	assert.True(t, l.Live())
}

func TestLifecycle_CreateCanvas_Unavailable(t *testing.T) {
	tests := []struct {
		name     string
		renderer ports.Renderer
		element  *ports.Element
	}{
		{"no renderer", nil, &ports.Element{ID: "a"}},
		{"renderer unavailable", &fakeRenderer{available: false}, &ports.Element{ID: "a"}},
		{"missing element", &fakeRenderer{available: true, surfaces: []*MockSurface{disposable()}}, nil},
		{"construction fails", &fakeRenderer{available: true}, &ports.Element{ID: "a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewLifecycle(tt.renderer, zap.NewNop())

			assert.Nil(t, l.CreateCanvas(tt.element, 100, 100))
			assert.False(t, l.Live())
		})
	}
}

func TestLifecycle_DoubleCreateReleasesFirst(t *testing.T) {
	first, second := disposable(), disposable()
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "live_surfaces"})
	l := NewLifecycle(&fakeRenderer{available: true, surfaces: []*MockSurface{first, second}}, zap.NewNop(), WithLiveGauge(gauge))

	l.CreateCanvas(&ports.Element{ID: "a"}, 100, 100)
	l.CreateCanvas(&ports.Element{ID: "b"}, 100, 100)

	first.AssertNumberOfCalls(t, "Dispose", 1)
	second.AssertNotCalled(t, "Dispose")
	assert.Equal(t, float64(1), gaugeValue(t, gauge))

	l.DestroyCanvas()

	second.AssertNumberOfCalls(t, "Dispose", 1)
	first.AssertNumberOfCalls(t, "Dispose", 1)
	assert.Equal(t, float64(0), gaugeValue(t, gauge))
}

func TestLifecycle_DestroyIsIdempotent(t *testing.T) {
	s := disposable()
	l := NewLifecycle(&fakeRenderer{available: true, surfaces: []*MockSurface{s}}, zap.NewNop())
	l.CreateCanvas(&ports.Element{ID: "a"}, 10, 10)

	l.DestroyCanvas()
	l.DestroyCanvas()

	s.AssertNumberOfCalls(t, "Dispose", 1)
	assert.Nil(t, l.Surface())
}

func TestLifecycle_DestroySwallowsDisposalErrors(t *testing.T) {
	s := &MockSurface{}
	s.On("Clear").Return(errors.New("context lost"))
	s.On("Dispose").Return(errors.New("already disposed"))
	l := NewLifecycle(&fakeRenderer{available: true, surfaces: []*MockSurface{s}}, zap.NewNop())
	l.CreateCanvas(&ports.Element{ID: "a"}, 10, 10)

	assert.NotPanics(t, l.DestroyCanvas)
	assert.False(t, l.Live())
}

func TestLifecycle_DestroyRecoversPanickingSurface(t *testing.T) {
	s := &MockSurface{}
	s.On("Clear").Return(nil)
	s.On("Dispose").Run(func(mock.Arguments) { panic("invalid handle") }).Return(nil)
	l := NewLifecycle(&fakeRenderer{available: true, surfaces: []*MockSurface{s}}, zap.NewNop())
	l.CreateCanvas(&ports.Element{ID: "a"}, 10, 10)

	assert.NotPanics(t, l.DestroyCanvas)
	assert.False(t, l.Live())
}

func TestLifecycle_DestroyDisposesAfterPanickingClear(t *testing.T) {
	s := &MockSurface{}
	s.On("Clear").Run(func(mock.Arguments) { panic("context lost") }).Return(nil)
	s.On("Dispose").Return(nil)
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "live_surfaces"})
	l := NewLifecycle(&fakeRenderer{available: true, surfaces: []*MockSurface{s}}, zap.NewNop(), WithLiveGauge(gauge))
	l.CreateCanvas(&ports.Element{ID: "a"}, 10, 10)

	assert.NotPanics(t, l.DestroyCanvas)

	s.AssertCalled(t, "Dispose")
	assert.False(t, l.Live())
	assert.Zero(t, gaugeValue(t, gauge))
}

func TestLifecycle_UpdateDimensions(t *testing.T) {
	s := disposable()
	s.On("SetDimensions", 1024, 768).Return(nil)
	s.On("Render").Return(nil)
	l := NewLifecycle(&fakeRenderer{available: true, surfaces: []*MockSurface{s}}, zap.NewNop())

	// No surface yet: nothing happens.
	require.NoError(t, l.UpdateDimensions(1024, 768))
	s.AssertNotCalled(t, "SetDimensions", mock.Anything, mock.Anything)

	l.CreateCanvas(&ports.Element{ID: "a"}, 10, 10)
	require.NoError(t, l.UpdateDimensions(1024, 768))

	s.AssertCalled(t, "SetDimensions", 1024, 768)
	s.AssertNumberOfCalls(t, "Render", 1)
}
