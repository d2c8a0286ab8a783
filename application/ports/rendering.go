package ports

import (
	"context"

	"flowstudio/domain/core/valueobjects"
)

// Element identifies the host a surface is mounted on.
type Element struct {
	ID string
}

// SurfaceOptions are fixed at construction.
type SurfaceOptions struct {
	Width                  int
	Height                 int
	Background             string
	Selection              bool
	PreserveObjectStacking bool
}

// Object is a drawable with position, size and scale.
type Object interface {
	Bounds() valueobjects.Rect
	SetBounds(r valueobjects.Rect)
	Scale() valueobjects.Scale
	SetScale(s valueobjects.Scale)
}

// Surface is one live drawing surface.
type Surface interface {
	SetDimensions(width, height int) error
	Add(objs ...Object) error
	Objects() []Object
	Render() error
	Clear() error
	Dispose() error
}

// Renderer is the rendering capability the canvas code depends on.
type Renderer interface {
	// Available reports whether surfaces can be created at all.
	Available() bool
	NewSurface(el *Element, opts SurfaceOptions) (Surface, error)
	LoadImage(ctx context.Context, src string) (Object, error)
	NewRect(r valueobjects.Rect) Object
	// ExportCrop renders the part of image under box and returns it as a
	// data URL.
	ExportCrop(image Object, box valueobjects.Rect) (string, error)
}
