package handlers

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"flowstudio/application/ports"
	"flowstudio/application/queries"
	"flowstudio/application/queries/bus"
	"flowstudio/application/services"
	"flowstudio/domain/core/valueobjects"
	pkgerrors "flowstudio/pkg/errors"
)

// MockAssetService is a mock implementation of ports.AssetService
type MockAssetService struct {
	mock.Mock
}

func (m *MockAssetService) List(ctx context.Context) ([]ports.Asset, error) {
	args := m.Called(ctx)
	return args.Get(0).([]ports.Asset), args.Error(1)
}

func (m *MockAssetService) Get(ctx context.Context, id string) (ports.Asset, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(ports.Asset), args.Error(1)
}

func (m *MockAssetService) Save(ctx context.Context, a ports.Asset) (ports.Asset, error) {
	args := m.Called(ctx, a)
	return args.Get(0).(ports.Asset), args.Error(1)
}

func (m *MockAssetService) Update(ctx context.Context, a ports.Asset) error {
	return m.Called(ctx, a).Error(0)
}

func (m *MockAssetService) Delete(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func setup(t *testing.T, assets ports.AssetService) (*bus.QueryBus, *services.Dispatcher) {
	t.Helper()
	d := services.NewDispatcher(services.DispatcherDeps{}, zap.NewNop())
	t.Cleanup(d.Close)
	b := bus.NewQueryBus(bus.LoggingMiddleware(zap.NewNop(), 0))
	require.NoError(t, NewEditorQueryHandler(d, assets, nil).Register(b))
	return b, d
}

func TestEditorQueryHandler_Graph(t *testing.T) {
	b, d := setup(t, nil)
	text, err := d.HandleAddNode(valueobjects.NodeTypeText, nil)
	require.NoError(t, err)
	image, err := d.HandleAddNode(valueobjects.NodeTypeImage, nil)
	require.NoError(t, err)
	_, err = d.HandleConnect(text, image, valueobjects.HandleDefault, valueobjects.HandlePrompt)
	require.NoError(t, err)
	require.NoError(t, d.HandleEditingChange(text, true))

	res, err := b.Ask(context.Background(), queries.GetGraphQuery{})

	require.NoError(t, err)
	graph := res.(queries.GetGraphResult)
	assert.Len(t, graph.Nodes, 2)
	assert.Len(t, graph.Edges, 1)
	assert.Equal(t, text.String(), graph.EditingNodeID)
	assert.Zero(t, graph.InFlight)
}

func TestEditorQueryHandler_Node(t *testing.T) {
	b, d := setup(t, nil)
	text, _ := d.HandleAddNode(valueobjects.NodeTypeText, nil)
	image, _ := d.HandleAddNode(valueobjects.NodeTypeImage, nil)
	_, err := d.HandleConnect(text, image, valueobjects.HandleDefault, valueobjects.HandlePrompt)
	require.NoError(t, err)

	res, err := b.Ask(context.Background(), queries.GetNodeQuery{NodeID: image.String()})

	require.NoError(t, err)
	node := res.(queries.GetNodeResult)
	assert.Equal(t, valueobjects.NodeTypeImage, node.Type)
	require.Len(t, node.Incoming, 1)
	assert.True(t, node.Incoming[0].Source.Equals(text))
	assert.Nil(t, node.Crop)
}

func TestEditorQueryHandler_Missing(t *testing.T) {
	b, d := setup(t, nil)
	id, _ := d.HandleAddNode(valueobjects.NodeTypeImage, nil)
	require.NoError(t, d.HandleDelete(id))

	_, err := b.Ask(context.Background(), queries.GetNodeQuery{NodeID: id.String()})
	assert.ErrorIs(t, err, pkgerrors.ErrNodeNotFound)

	_, err = b.Ask(context.Background(), queries.GetCropSessionQuery{NodeID: id.String()})
	assert.ErrorIs(t, err, pkgerrors.ErrNoCropSession)

	_, err = b.Ask(context.Background(), queries.GetNodeQuery{NodeID: "nope"})
	assert.True(t, pkgerrors.IsValidation(err))

	_, err = b.Ask(context.Background(), queries.ListAssetsQuery{})
	assert.ErrorIs(t, err, pkgerrors.ErrServiceUnavailable)
}

func TestEditorQueryHandler_Assets(t *testing.T) {
	assets := new(MockAssetService)
	assets.On("List", mock.Anything).Return([]ports.Asset{
		{ID: "a1", NodeID: "n1"},
		{ID: "a2", NodeID: "n2"},
		{ID: "a3", NodeID: "n1"},
	}, nil)
	b, _ := setup(t, assets)

	res, err := b.Ask(context.Background(), queries.ListAssetsQuery{NodeID: "n1"})
	require.NoError(t, err)
	got := res.([]ports.Asset)
	assert.Equal(t, []string{"a1", "a3"}, []string{got[0].ID, got[1].ID})

	res, err = b.Ask(context.Background(), queries.ListAssetsQuery{})
	require.NoError(t, err)
	assert.Len(t, res, 3)
}

func TestEditorQueryHandler_AssetStoreError(t *testing.T) {
	assets := new(MockAssetService)
	assets.On("List", mock.Anything).Return([]ports.Asset(nil), errors.New("disk full"))
	b, _ := setup(t, assets)

	_, err := b.Ask(context.Background(), queries.ListAssetsQuery{})

	assert.EqualError(t, err, "disk full")
}
