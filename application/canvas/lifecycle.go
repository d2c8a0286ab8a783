package canvas

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"flowstudio/application/ports"
)

// Defaults applied to every surface the lifecycle creates.
const (
	DefaultBackground = "#1e1e1e"
)

// Lifecycle owns at most one live drawing surface. Creating a surface
// while one is live releases the old one first, so each session holds
// exactly one resource.
type Lifecycle struct {
	mu       sync.Mutex
	renderer ports.Renderer
	logger   *zap.Logger
	live     prometheus.Gauge
	surface  ports.Surface
	element  *ports.Element
}

// Option configures a Lifecycle.
type Option func(*Lifecycle)

// WithLiveGauge reports the number of live surfaces on g.
func WithLiveGauge(g prometheus.Gauge) Option {
	return func(l *Lifecycle) { l.live = g }
}

// NewLifecycle creates a lifecycle manager over renderer.
func NewLifecycle(renderer ports.Renderer, logger *zap.Logger, opts ...Option) *Lifecycle {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Lifecycle{renderer: renderer, logger: logger}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// CreateCanvas binds a new surface to el and returns it. It returns nil
// when rendering is unavailable, el is nil or construction fails.
func (l *Lifecycle) CreateCanvas(el *ports.Element, width, height int) ports.Surface {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.renderer == nil || !l.renderer.Available() {
		l.logger.Warn("Rendering capability unavailable")
		return nil
	}
	if el == nil {
		l.logger.Warn("Canvas element missing")
		return nil
	}

	if l.surface != nil {
		l.logger.Debug("Replacing live canvas", zap.String("element", l.element.ID))
		l.destroyLocked()
	}

	surface, err := l.renderer.NewSurface(el, ports.SurfaceOptions{
		Width:                  width,
		Height:                 height,
		Background:             DefaultBackground,
		Selection:              false,
		PreserveObjectStacking: true,
	})
	if err != nil {
		l.logger.Error("Failed to create canvas",
			zap.String("element", el.ID),
			zap.Int("width", width),
			zap.Int("height", height),
			zap.Error(err),
		)
		return nil
	}

	l.surface = surface
	l.element = el
	if l.live != nil {
		l.live.Inc()
	}
	l.logger.Debug("Canvas created",
		zap.String("element", el.ID),
		zap.Int("width", width),
		zap.Int("height", height),
	)
	return surface
}

// DestroyCanvas clears and disposes the live surface. Failures are logged
// and never propagated; afterwards no surface is live. Calling it with
// nothing live is a no-op.
func (l *Lifecycle) DestroyCanvas() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.destroyLocked()
}

func (l *Lifecycle) destroyLocked() {
	if l.surface == nil {
		return
	}

	surface, el := l.surface, l.element
	l.surface, l.element = nil, nil
	if l.live != nil {
		l.live.Dec()
	}

	l.safely("clear", el, surface.Clear)
	l.safely("dispose", el, surface.Dispose)
}

// safely runs one teardown step. Errors and panics are logged so the next
// step still runs.
func (l *Lifecycle) safely(step string, el *ports.Element, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("Canvas teardown panicked",
				zap.String("step", step),
				zap.String("element", el.ID),
				zap.Any("panic", r),
			)
		}
	}()
	if err := fn(); err != nil {
		l.logger.Warn("Canvas teardown failed", zap.String("step", step), zap.String("element", el.ID), zap.Error(err))
	}
}

// UpdateDimensions resizes the live surface and redraws it. It is a no-op
// when nothing is live.
func (l *Lifecycle) UpdateDimensions(width, height int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.surface == nil {
		return nil
	}
	if err := l.surface.SetDimensions(width, height); err != nil {
		return err
	}
	return l.surface.Render()
}

// Surface returns the live surface or nil.
func (l *Lifecycle) Surface() ports.Surface {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.surface
}

// Live reports whether a surface is live.
func (l *Lifecycle) Live() bool {
	return l.Surface() != nil
}
