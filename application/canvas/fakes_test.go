package canvas

import (
	"context"
	"errors"

	"github.com/stretchr/testify/mock"

	"flowstudio/application/ports"
	"flowstudio/domain/core/valueobjects"
)

type fakeObject struct {
	bounds valueobjects.Rect
	scale  valueobjects.Scale
}

func (o *fakeObject) Bounds() valueobjects.Rect     { return o.bounds }
func (o *fakeObject) SetBounds(r valueobjects.Rect) { o.bounds = r }
func (o *fakeObject) Scale() valueobjects.Scale     { return o.scale }
func (o *fakeObject) SetScale(s valueobjects.Scale) { o.scale = s }

type MockSurface struct {
	mock.Mock
}

func (m *MockSurface) SetDimensions(width, height int) error {
	return m.Called(width, height).Error(0)
}

func (m *MockSurface) Add(objs ...ports.Object) error {
	return m.Called(objs).Error(0)
}

func (m *MockSurface) Objects() []ports.Object {
	return nil
}

func (m *MockSurface) Render() error {
	return m.Called().Error(0)
}

func (m *MockSurface) Clear() error {
	return m.Called().Error(0)
}

func (m *MockSurface) Dispose() error {
	return m.Called().Error(0)
}

// fakeRenderer hands out the queued surfaces in order.
type fakeRenderer struct {
	available bool
	surfaces  []*MockSurface
	created   int
}

func (r *fakeRenderer) Available() bool { return r.available }

func (r *fakeRenderer) NewSurface(el *ports.Element, opts ports.SurfaceOptions) (ports.Surface, error) {
	if r.created >= len(r.surfaces) {
		return nil, errors.New("no surface queued")
	}
	s := r.surfaces[r.created]
	r.created++
	return s, nil
}

func (r *fakeRenderer) LoadImage(ctx context.Context, src string) (ports.Object, error) {
	return &fakeObject{scale: valueobjects.IdentityScale}, nil
}

func (r *fakeRenderer) NewRect(rect valueobjects.Rect) ports.Object {
	return &fakeObject{bounds: rect, scale: valueobjects.IdentityScale}
}

func (r *fakeRenderer) ExportCrop(image ports.Object, box valueobjects.Rect) (string, error) {
	return "data:image/png;base64,AAAA", nil
}
