// Package rendering implements the drawing surfaces used by crop sessions
// on top of an in-memory raster.
package rendering

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/fogleman/gg"
	"go.uber.org/zap"
	"golang.org/x/image/draw"

	"flowstudio/application/ports"
	"flowstudio/domain/core/valueobjects"
	pkgerrors "flowstudio/pkg/errors"
)

// ErrSurfaceDisposed is returned by every call on a disposed surface.
var ErrSurfaceDisposed = errors.New("surface disposed")

// Options configure a Renderer.
type Options struct {
	Enabled bool
	// FetchTimeout bounds loading a remote image.
	FetchTimeout time.Duration
	// MaxImageBytes caps the size of a loaded image.
	MaxImageBytes int64
	// MaxExportSide scales exports down so neither side exceeds it. Zero
	// keeps the source resolution.
	MaxExportSide int
	Client        *http.Client
}

// Renderer draws surfaces into RGBA rasters with gg.
type Renderer struct {
	opts   Options
	client *http.Client
	logger *zap.Logger
}

var _ ports.Renderer = (*Renderer)(nil)

// NewRenderer creates a raster renderer.
func NewRenderer(opts Options, logger *zap.Logger) *Renderer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 20 * time.Second
	}
	if opts.MaxImageBytes <= 0 {
		opts.MaxImageBytes = 32 << 20
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.FetchTimeout}
	}
	return &Renderer{opts: opts, client: client, logger: logger}
}

// Available reports whether the renderer was enabled.
func (r *Renderer) Available() bool {
	return r != nil && r.opts.Enabled
}

// NewSurface allocates a surface of the requested size.
func (r *Renderer) NewSurface(el *ports.Element, opts ports.SurfaceOptions) (ports.Surface, error) {
	if el == nil {
		return nil, pkgerrors.NewValidationError("surface element is required")
	}
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, pkgerrors.NewValidationError(fmt.Sprintf("invalid surface size %dx%d", opts.Width, opts.Height))
	}
	s := &Surface{
		element:    el.ID,
		background: opts.Background,
		dc:         gg.NewContext(opts.Width, opts.Height),
	}
	r.logger.Debug("Surface created", zap.String("element", el.ID), zap.Int("width", opts.Width), zap.Int("height", opts.Height))
	return s, nil
}

// LoadImage decodes a PNG, JPEG or GIF from a data URL or an http(s) URL.
func (r *Renderer) LoadImage(ctx context.Context, src string) (ports.Object, error) {
	var (
		raw []byte
		err error
	)
	switch {
	case strings.HasPrefix(src, "data:"):
		raw, err = decodeDataURL(src)
	case strings.HasPrefix(src, "http://"), strings.HasPrefix(src, "https://"):
		raw, err = r.fetch(ctx, src)
	default:
		return nil, pkgerrors.NewValidationError("unsupported image source")
	}
	if err != nil {
		return nil, err
	}

	img, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, pkgerrors.NewRenderError("decode image", err)
	}
	b := img.Bounds()
	r.logger.Debug("Image loaded", zap.String("format", format), zap.Int("width", b.Dx()), zap.Int("height", b.Dy()))

	return &ImageObject{
		img:    img,
		bounds: valueobjects.Rect{Width: float64(b.Dx()), Height: float64(b.Dy())},
		scale:  valueobjects.IdentityScale,
	}, nil
}

func (r *Renderer) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, pkgerrors.NewValidationError("invalid image url")
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, pkgerrors.NewExternalError("image host", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, pkgerrors.NewExternalError("image host", fmt.Errorf("unexpected status %d", resp.StatusCode))
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, r.opts.MaxImageBytes+1))
	if err != nil {
		return nil, pkgerrors.NewExternalError("image host", err)
	}
	if int64(len(raw)) > r.opts.MaxImageBytes {
		return nil, pkgerrors.NewValidationError("image too large")
	}
	return raw, nil
}

// NewRect returns a crop box object.
func (r *Renderer) NewRect(rect valueobjects.Rect) ports.Object {
	return &RectObject{bounds: rect, scale: valueobjects.IdentityScale}
}

// ExportCrop cuts the area under box out of image at source resolution
// and returns it as a PNG data URL.
func (r *Renderer) ExportCrop(obj ports.Object, box valueobjects.Rect) (string, error) {
	source, ok := obj.(*ImageObject)
	if !ok || source == nil {
		return "", pkgerrors.NewValidationError("crop source is not an image")
	}

	b := source.Bounds()
	src := valueobjects.NewCropRecord(box, source.Scale()).SourceRect(b.Left, b.Top)
	natural := valueobjects.Rect{Width: b.Width, Height: b.Height}
	src = src.Intersect(natural)
	if src.IsEmpty() {
		return "", pkgerrors.NewValidationError("crop box does not overlap the image")
	}

	origin := source.img.Bounds().Min
	sr := image.Rect(
		origin.X+int(math.Floor(src.Left)),
		origin.Y+int(math.Floor(src.Top)),
		origin.X+int(math.Ceil(src.Left+src.Width)),
		origin.Y+int(math.Ceil(src.Top+src.Height)),
	)

	w, h := fitSide(sr.Dx(), sr.Dy(), r.opts.MaxExportSide)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	if w == sr.Dx() && h == sr.Dy() {
		draw.Copy(dst, image.Point{}, source.img, sr, draw.Src, nil)
	} else {
		draw.CatmullRom.Scale(dst, dst.Bounds(), source.img, sr, draw.Src, nil)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return "", pkgerrors.NewRenderError("encode png", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func fitSide(w, h, limit int) (int, int) {
	if limit <= 0 || (w <= limit && h <= limit) {
		return w, h
	}
	k := math.Min(float64(limit)/float64(w), float64(limit)/float64(h))
	return int(math.Max(1, math.Round(float64(w)*k))), int(math.Max(1, math.Round(float64(h)*k)))
}

func decodeDataURL(src string) ([]byte, error) {
	header, payload, ok := strings.Cut(src, ",")
	if !ok {
		return nil, pkgerrors.NewValidationError("malformed data url")
	}
	if !strings.HasSuffix(header, ";base64") {
		return nil, pkgerrors.NewValidationError("data url must be base64 encoded")
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, pkgerrors.NewValidationError("malformed data url payload")
	}
	return raw, nil
}

// ImageObject is a decoded image placed on a surface. Bounds hold the
// natural size; the displayed size is bounds times scale.
type ImageObject struct {
	mu     sync.RWMutex
	img    image.Image
	bounds valueobjects.Rect
	scale  valueobjects.Scale
}

func (o *ImageObject) Bounds() valueobjects.Rect {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.bounds
}

func (o *ImageObject) SetBounds(r valueobjects.Rect) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.bounds = r
}

func (o *ImageObject) Scale() valueobjects.Scale {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.scale
}

func (o *ImageObject) SetScale(s valueobjects.Scale) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.scale = s
}

// RectObject is the crop box outline.
type RectObject struct {
	mu     sync.RWMutex
	bounds valueobjects.Rect
	scale  valueobjects.Scale
}

func (o *RectObject) Bounds() valueobjects.Rect {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.bounds
}

func (o *RectObject) SetBounds(r valueobjects.Rect) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.bounds = r
}

func (o *RectObject) Scale() valueobjects.Scale {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.scale
}

func (o *RectObject) SetScale(s valueobjects.Scale) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.scale = s
}

// Surface is a gg drawing context plus the objects stacked on it, first
// added drawn first.
type Surface struct {
	mu         sync.Mutex
	element    string
	background string
	dc         *gg.Context
	objects    []ports.Object
	disposed   bool
}

var _ ports.Surface = (*Surface)(nil)

// Element returns the id of the element the surface is bound to.
func (s *Surface) Element() string {
	return s.element
}

func (s *Surface) SetDimensions(width, height int) error {
	if width <= 0 || height <= 0 {
		return pkgerrors.NewValidationError(fmt.Sprintf("invalid surface size %dx%d", width, height))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return ErrSurfaceDisposed
	}
	s.dc = gg.NewContext(width, height)
	return nil
}

func (s *Surface) Add(objs ...ports.Object) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return ErrSurfaceDisposed
	}
	for _, o := range objs {
		if o != nil {
			s.objects = append(s.objects, o)
		}
	}
	return nil
}

func (s *Surface) Objects() []ports.Object {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ports.Object, len(s.objects))
	copy(out, s.objects)
	return out
}

// Render repaints the background and every object.
func (s *Surface) Render() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return ErrSurfaceDisposed
	}

	dc := s.dc
	if s.background != "" {
		dc.SetHexColor(s.background)
	} else {
		dc.SetRGBA(0, 0, 0, 0)
	}
	dc.Clear()

	for _, o := range s.objects {
		switch obj := o.(type) {
		case *ImageObject:
			b, sc := obj.Bounds(), obj.Scale()
			dc.Push()
			dc.Translate(b.Left, b.Top)
			dc.Scale(sc.X, sc.Y)
			dc.DrawImage(obj.img, 0, 0)
			dc.Pop()
		case *RectObject:
			b := obj.Bounds()
			dc.Push()
			dc.SetRGBA(1, 1, 1, 0.9)
			dc.SetLineWidth(2)
			dc.SetDash(6, 4)
			dc.DrawRectangle(b.Left, b.Top, b.Width, b.Height)
			dc.Stroke()
			dc.Pop()
		}
	}
	return nil
}

// Clear drops every object.
func (s *Surface) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return ErrSurfaceDisposed
	}
	s.objects = nil
	return nil
}

// Dispose releases the raster. The surface is unusable afterwards.
func (s *Surface) Dispose() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return ErrSurfaceDisposed
	}
	s.disposed = true
	s.objects = nil
	s.dc = nil
	return nil
}

// Snapshot returns a copy of the last rendered frame.
func (s *Surface) Snapshot() (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return nil, ErrSurfaceDisposed
	}
	src := s.dc.Image()
	dst := image.NewRGBA(src.Bounds())
	draw.Copy(dst, image.Point{}, src, src.Bounds(), draw.Src, nil)
	return dst, nil
}
