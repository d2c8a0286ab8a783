package rendering

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"flowstudio/application/ports"
	"flowstudio/domain/core/valueobjects"
)

// quadrants is a 40x20 image: red on the left half, blue on the right.
func quadrants(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 40, 20))
	for y := 0; y < 20; y++ {
		for x := 0; x < 40; x++ {
			c := color.RGBA{R: 255, A: 255}
			if x >= 20 {
				c = color.RGBA{B: 255, A: 255}
			}
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func dataURL(raw []byte) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(raw)
}

func decodeExport(t *testing.T, url string) image.Image {
	t.Helper()
	require.True(t, strings.HasPrefix(url, "data:image/png;base64,"))
	raw, err := decodeDataURL(url)
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	return img
}

func newRenderer() *Renderer {
	return NewRenderer(Options{Enabled: true}, zap.NewNop())
}

func TestRenderer_Available(t *testing.T) {
	assert.True(t, newRenderer().Available())
	assert.False(t, NewRenderer(Options{}, nil).Available())
	var r *Renderer
	assert.False(t, r.Available())
}

func TestRenderer_LoadImage_DataURL(t *testing.T) {
	obj, err := newRenderer().LoadImage(context.Background(), dataURL(quadrants(t)))

	require.NoError(t, err)
	assert.Equal(t, valueobjects.Rect{Width: 40, Height: 20}, obj.Bounds())
	assert.Equal(t, valueobjects.IdentityScale, obj.Scale())
}

func TestRenderer_LoadImage_HTTP(t *testing.T) {
	raw := quadrants(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/a.png" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(raw)
	}))
	defer srv.Close()
	r := NewRenderer(Options{Enabled: true, Client: srv.Client()}, zap.NewNop())

	obj, err := r.LoadImage(context.Background(), srv.URL+"/a.png")
	require.NoError(t, err)
	assert.Equal(t, 40.0, obj.Bounds().Width)

	_, err = r.LoadImage(context.Background(), srv.URL+"/missing.png")
	assert.Error(t, err)
}

func TestRenderer_LoadImage_Rejects(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{name: "unsupported scheme", src: "ftp://host/a.png"},
		{name: "not base64", src: "data:image/png,raw"},
		{name: "bad payload", src: "data:image/png;base64,!!!"},
		{name: "not an image", src: "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("hello"))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newRenderer().LoadImage(context.Background(), tt.src)
			assert.Error(t, err)
		})
	}
}

func TestRenderer_ExportCrop(t *testing.T) {
	r := newRenderer()
	obj, err := r.LoadImage(context.Background(), dataURL(quadrants(t)))
	require.NoError(t, err)

	// Image shown at half size: the box covers source x 20..40, the blue half.
	obj.SetScale(valueobjects.Scale{X: 0.5, Y: 0.5})
	url, err := r.ExportCrop(obj, valueobjects.Rect{Left: 10, Top: 0, Width: 10, Height: 10})
	require.NoError(t, err)

	img := decodeExport(t, url)
	assert.Equal(t, 20, img.Bounds().Dx())
	assert.Equal(t, 20, img.Bounds().Dy())
	_, _, b, _ := img.At(5, 5).RGBA()
	assert.Equal(t, uint32(0xffff), b)
}

func TestRenderer_ExportCrop_ClipsAndDownscales(t *testing.T) {
	r := NewRenderer(Options{Enabled: true, MaxExportSide: 10}, zap.NewNop())
	obj, err := r.LoadImage(context.Background(), dataURL(quadrants(t)))
	require.NoError(t, err)

	url, err := r.ExportCrop(obj, valueobjects.Rect{Left: -5, Top: -5, Width: 100, Height: 100})
	require.NoError(t, err)

	img := decodeExport(t, url)
	assert.Equal(t, 10, img.Bounds().Dx())
	assert.Equal(t, 5, img.Bounds().Dy())
}

func TestRenderer_ExportCrop_Rejects(t *testing.T) {
	r := newRenderer()
	obj, err := r.LoadImage(context.Background(), dataURL(quadrants(t)))
	require.NoError(t, err)

	_, err = r.ExportCrop(obj, valueobjects.Rect{Left: 100, Top: 100, Width: 10, Height: 10})
	assert.Error(t, err)

	_, err = r.ExportCrop(r.NewRect(valueobjects.Rect{Width: 5, Height: 5}), valueobjects.Rect{Width: 5, Height: 5})
	assert.Error(t, err)
}

func TestSurface_RenderAndDispose(t *testing.T) {
	r := newRenderer()
	s, err := r.NewSurface(&ports.Element{ID: "crop-1"}, ports.SurfaceOptions{Width: 50, Height: 30, Background: "#1e1e1e"})
	require.NoError(t, err)

	obj, err := r.LoadImage(context.Background(), dataURL(quadrants(t)))
	require.NoError(t, err)
	box := r.NewRect(valueobjects.Rect{Left: 2, Top: 2, Width: 20, Height: 10})
	require.NoError(t, s.Add(obj, box, nil))
	assert.Len(t, s.Objects(), 2)

	require.NoError(t, s.Render())
	frame, err := s.(*Surface).Snapshot()
	require.NoError(t, err)
	red, _, _, _ := frame.At(5, 15).RGBA()
	assert.Equal(t, uint32(0xffff), red)
	bgR, _, _, _ := frame.At(45, 25).RGBA()
	assert.Equal(t, uint32(0x1e1e), bgR)

	require.NoError(t, s.SetDimensions(80, 60))
	require.NoError(t, s.Clear())
	assert.Empty(t, s.Objects())

	require.NoError(t, s.Dispose())
	assert.ErrorIs(t, s.Render(), ErrSurfaceDisposed)
	assert.ErrorIs(t, s.Dispose(), ErrSurfaceDisposed)
}

func TestRenderer_NewSurface_Invalid(t *testing.T) {
	r := newRenderer()

	_, err := r.NewSurface(nil, ports.SurfaceOptions{Width: 10, Height: 10})
	assert.Error(t, err)
	_, err = r.NewSurface(&ports.Element{ID: "x"}, ports.SurfaceOptions{})
	assert.Error(t, err)
}
