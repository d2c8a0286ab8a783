package handlers

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"flowstudio/application/ports"
	"flowstudio/application/queries"
	"flowstudio/application/queries/bus"
	"flowstudio/application/services"
	"flowstudio/domain/core/aggregates"
	"flowstudio/domain/core/valueobjects"
	pkgerrors "flowstudio/pkg/errors"
)

// EditorState is the read side of the editor. *services.Dispatcher
// implements it.
type EditorState interface {
	Graph() *aggregates.Graph
	Editing() (valueobjects.NodeID, bool)
	InFlight() int
	CropSession(id valueobjects.NodeID) (services.CropState, bool)
}

var _ EditorState = (*services.Dispatcher)(nil)

// EditorQueryHandler answers graph, node, crop and asset queries
type EditorQueryHandler struct {
	state  EditorState
	assets ports.AssetService
	logger *zap.Logger
}

// NewEditorQueryHandler creates a new query handler. assets may be nil.
func NewEditorQueryHandler(state EditorState, assets ports.AssetService, logger *zap.Logger) *EditorQueryHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EditorQueryHandler{state: state, assets: assets, logger: logger}
}

// Register binds every editor query to this handler.
func (h *EditorQueryHandler) Register(b *bus.QueryBus) error {
	for _, q := range []bus.Query{
		queries.GetGraphQuery{},
		queries.GetNodeQuery{},
		queries.ListAssetsQuery{},
		queries.GetCropSessionQuery{},
	} {
		if err := b.Register(q, h); err != nil {
			return err
		}
	}
	return nil
}

// Handle implements bus.QueryHandler
func (h *EditorQueryHandler) Handle(ctx context.Context, query bus.Query) (interface{}, error) {
	switch q := query.(type) {
	case queries.GetGraphQuery:
		result := queries.GetGraphResult{
			GraphView: h.state.Graph().Snapshot(),
			InFlight:  h.state.InFlight(),
		}
		if id, ok := h.state.Editing(); ok {
			result.EditingNodeID = id.String()
		}
		return result, nil

	case queries.GetNodeQuery:
		id := valueobjects.MustParseNodeID(q.NodeID)
		node, ok := h.state.Graph().Node(id)
		if !ok {
			return nil, pkgerrors.ErrNodeNotFound.New().WithDetail("node_id", q.NodeID)
		}
		result := queries.GetNodeResult{
			NodeView: node,
			Incoming: h.state.Graph().IncomingEdges(id),
		}
		if crop, ok := h.state.CropSession(id); ok {
			result.Crop = &crop
		}
		return result, nil

	case queries.ListAssetsQuery:
		return h.listAssets(ctx, q)

	case queries.GetCropSessionQuery:
		crop, ok := h.state.CropSession(valueobjects.MustParseNodeID(q.NodeID))
		if !ok {
			return nil, pkgerrors.ErrNoCropSession.New().WithDetail("node_id", q.NodeID)
		}
		return crop, nil
	}
	return nil, pkgerrors.NewInternalError(fmt.Sprintf("unexpected query %T", query))
}

func (h *EditorQueryHandler) listAssets(ctx context.Context, q queries.ListAssetsQuery) ([]ports.Asset, error) {
	if h.assets == nil {
		return nil, pkgerrors.ErrServiceUnavailable.New().WithDetail("service", "assets")
	}
	all, err := h.assets.List(ctx)
	if err != nil {
		return nil, err
	}
	if q.NodeID == "" {
		return all, nil
	}
	filtered := make([]ports.Asset, 0, len(all))
	for _, a := range all {
		if a.NodeID == q.NodeID {
			filtered = append(filtered, a)
		}
	}
	return filtered, nil
}
