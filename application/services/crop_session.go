package services

import (
	"context"
	"math"
	"sync"

	"go.uber.org/zap"

	"flowstudio/application/canvas"
	"flowstudio/application/ports"
	"flowstudio/domain/core/valueobjects"
	pkgerrors "flowstudio/pkg/errors"
)

// CropState describes the live crop session of a node.
type CropState struct {
	NodeID  valueobjects.NodeID `json:"nodeId"`
	Box     valueobjects.Rect   `json:"box"`
	Scale   valueobjects.Scale  `json:"scale"`
	Image   valueobjects.Rect   `json:"image"`
	CanUndo bool                `json:"canUndo"`
	CanRedo bool                `json:"canRedo"`
	Steps   int                 `json:"steps"`
}

type cropSession struct {
	nodeID  valueobjects.NodeID
	surface ports.Surface
	image   ports.Object
	box     ports.Object
	history *canvas.CropHistory
}

func (s *cropSession) state() CropState {
	return CropState{
		NodeID:  s.nodeID,
		Box:     s.box.Bounds(),
		Scale:   s.image.Scale(),
		Image:   displayed(s.image),
		CanUndo: s.history.CanUndo(),
		CanRedo: s.history.CanRedo(),
		Steps:   s.history.Len(),
	}
}

// cropSessions holds the single crop session the editor can have open.
// Its lock is taken before the graph's, never after.
type cropSessions struct {
	mu        sync.Mutex
	d         *Dispatcher
	lifecycle *canvas.Lifecycle
	current   *cropSession
	maxSteps  int
}

func newCropSessions(d *Dispatcher) *cropSessions {
	return &cropSessions{
		d:         d,
		lifecycle: canvas.NewLifecycle(d.renderer, d.logger, canvas.WithLiveGauge(d.metrics.LiveSurfaces)),
		maxSteps:  d.config.MaxHistorySteps,
	}
}

// StartCropSession opens a crop surface over the node's image, replacing
// any session already open. The image is scaled down to fit width by
// height and the crop box starts over the whole image.
func (d *Dispatcher) StartCropSession(ctx context.Context, id valueobjects.NodeID, width, height int) (CropState, error) {
	node, ok := d.graph.Node(id)
	if !ok {
		return CropState{}, notFound(id)
	}
	src := node.Data.MediaURL()
	if node.Type != valueobjects.NodeTypeImage || src == "" {
		return CropState{}, pkgerrors.ErrNoSourceMedia.New().WithDetail("node_id", id.String())
	}

	c := d.crops
	c.mu.Lock()
	defer c.mu.Unlock()

	c.endLocked()

	surface := c.lifecycle.CreateCanvas(&ports.Element{ID: "crop-" + id.String()}, width, height)
	if surface == nil {
		return CropState{}, pkgerrors.ErrCanvasUnavailable.New()
	}

	image, err := d.renderer.LoadImage(ctx, src)
	if err != nil {
		c.lifecycle.DestroyCanvas()
		return CropState{}, pkgerrors.NewRenderError("load image", err)
	}
	fit(image, width, height)

	box := d.renderer.NewRect(displayed(image))
	if err := surface.Add(image, box); err != nil {
		c.lifecycle.DestroyCanvas()
		return CropState{}, pkgerrors.NewRenderError("add objects", err)
	}
	if err := surface.Render(); err != nil {
		c.lifecycle.DestroyCanvas()
		return CropState{}, pkgerrors.NewRenderError("render", err)
	}

	s := &cropSession{
		nodeID:  id,
		surface: surface,
		image:   image,
		box:     box,
		history: canvas.NewCropHistory(c.maxSteps),
	}
	s.history.SaveCurrentState(box, image)
	c.current = s

	d.metrics.CropOperations.WithLabelValues("start").Inc()
	d.logger.Debug("Crop session started", zap.String("nodeID", id.String()), zap.Int("width", width), zap.Int("height", height))
	return s.state(), nil
}

// UpdateCrop moves the crop box and rescales the image, then records the
// result. The box is clipped to the displayed image.
func (d *Dispatcher) UpdateCrop(id valueobjects.NodeID, box valueobjects.Rect, scale valueobjects.Scale) (CropState, error) {
	c := d.crops
	c.mu.Lock()
	defer c.mu.Unlock()

	s, err := c.sessionLocked(id)
	if err != nil {
		return CropState{}, err
	}

	if scale.X > 0 && scale.Y > 0 {
		s.image.SetScale(scale)
	}
	clipped := box.Intersect(displayed(s.image))
	if clipped.IsEmpty() {
		return CropState{}, pkgerrors.NewValidationError("crop box does not overlap the image")
	}
	s.box.SetBounds(clipped)

	if err := s.surface.Render(); err != nil {
		return CropState{}, pkgerrors.NewRenderError("render", err)
	}
	s.history.SaveCurrentState(s.box, s.image)
	d.metrics.CropOperations.WithLabelValues("update").Inc()
	return s.state(), nil
}

// ResizeCropSession resizes the crop surface to width by height, refits
// the image to it and clips the box to the new image area. A box left
// with no overlap is reset to cover the whole image.
func (d *Dispatcher) ResizeCropSession(id valueobjects.NodeID, width, height int) (CropState, error) {
	c := d.crops
	c.mu.Lock()
	defer c.mu.Unlock()

	s, err := c.sessionLocked(id)
	if err != nil {
		return CropState{}, err
	}
	if err := c.lifecycle.UpdateDimensions(width, height); err != nil {
		return CropState{}, pkgerrors.NewRenderError("resize", err)
	}

	fit(s.image, width, height)
	area := displayed(s.image)
	clipped := s.box.Bounds().Intersect(area)
	if clipped.IsEmpty() {
		clipped = area
	}
	s.box.SetBounds(clipped)

	if err := s.surface.Render(); err != nil {
		return CropState{}, pkgerrors.NewRenderError("render", err)
	}
	s.history.SaveCurrentState(s.box, s.image)
	d.metrics.CropOperations.WithLabelValues("resize").Inc()
	d.logger.Debug("Crop session resized", zap.String("nodeID", id.String()), zap.Int("width", width), zap.Int("height", height))
	return s.state(), nil
}

// UndoCrop restores the previous crop geometry. At the baseline it leaves
// the session as it is.
func (d *Dispatcher) UndoCrop(id valueobjects.NodeID) (CropState, error) {
	return d.stepCrop(id, "undo", (*canvas.CropHistory).Undo)
}

// RedoCrop reapplies the most recently undone crop geometry.
func (d *Dispatcher) RedoCrop(id valueobjects.NodeID) (CropState, error) {
	return d.stepCrop(id, "redo", (*canvas.CropHistory).Redo)
}

type historyStep func(*canvas.CropHistory, ports.Object, ports.Object, ports.Surface) (valueobjects.CropRecord, bool, error)

func (d *Dispatcher) stepCrop(id valueobjects.NodeID, op string, step historyStep) (CropState, error) {
	c := d.crops
	c.mu.Lock()
	defer c.mu.Unlock()

	s, err := c.sessionLocked(id)
	if err != nil {
		return CropState{}, err
	}
	_, moved, err := step(s.history, s.box, s.image, s.surface)
	if err != nil {
		return CropState{}, pkgerrors.NewRenderError(op, err)
	}
	if moved {
		d.metrics.CropOperations.WithLabelValues(op).Inc()
	}
	return s.state(), nil
}

// CommitCrop exports the area under the crop box and stores it as the
// node's media. The session ends either way once the export succeeded.
func (d *Dispatcher) CommitCrop(id valueobjects.NodeID) (string, error) {
	c := d.crops
	c.mu.Lock()
	s, err := c.sessionLocked(id)
	if err != nil {
		c.mu.Unlock()
		return "", err
	}
	url, err := d.renderer.ExportCrop(s.image, s.box.Bounds())
	c.mu.Unlock()
	if err != nil {
		return "", pkgerrors.NewRenderError("export crop", err)
	}

	if err := d.HandleCropComplete(id, url); err != nil {
		return "", err
	}
	return url, nil
}

// CropSession returns the state of the node's open crop session.
func (d *Dispatcher) CropSession(id valueobjects.NodeID) (CropState, bool) {
	c := d.crops
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil || !c.current.nodeID.Equals(id) {
		return CropState{}, false
	}
	return c.current.state(), true
}

// EndCropSession closes the node's crop session without applying it.
func (d *Dispatcher) EndCropSession(id valueobjects.NodeID) {
	d.crops.end(id)
}

func (c *cropSessions) sessionLocked(id valueobjects.NodeID) (*cropSession, error) {
	if c.current == nil || !c.current.nodeID.Equals(id) {
		return nil, pkgerrors.ErrNoCropSession.New().WithDetail("node_id", id.String())
	}
	return c.current, nil
}

// end closes the session if it belongs to id.
func (c *cropSessions) end(id valueobjects.NodeID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil && c.current.nodeID.Equals(id) {
		c.endLocked()
	}
}

func (c *cropSessions) endLocked() {
	if c.current == nil {
		return
	}
	c.current.history.Reset()
	c.current = nil
	c.lifecycle.DestroyCanvas()
}

func (c *cropSessions) setMaxSteps(n int) {
	if n <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.maxSteps = n
	if c.current != nil {
		c.current.history.SetMaxSteps(n)
	}
}

func (c *cropSessions) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.endLocked()
}

// displayed returns the on-surface rectangle of an image object: its
// natural size multiplied by its scale.
func displayed(image ports.Object) valueobjects.Rect {
	b, s := image.Bounds(), image.Scale()
	return valueobjects.Rect{Left: b.Left, Top: b.Top, Width: b.Width * s.X, Height: b.Height * s.Y}
}

// fit scales image down uniformly so it fits width by height. Images that
// already fit keep their natural size.
func fit(image ports.Object, width, height int) {
	b := image.Bounds()
	if b.Width <= 0 || b.Height <= 0 || width <= 0 || height <= 0 {
		image.SetScale(valueobjects.IdentityScale)
		return
	}
	k := math.Min(1, math.Min(float64(width)/b.Width, float64(height)/b.Height))
	image.SetScale(valueobjects.Scale{X: k, Y: k})
}
