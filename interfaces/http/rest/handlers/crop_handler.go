package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"flowstudio/application/commands"
	"flowstudio/application/commands/bus"
	"flowstudio/application/queries"
	querybus "flowstudio/application/queries/bus"
	pkgerrors "flowstudio/pkg/errors"
)

// CropHandler exposes the crop session of an image node
type CropHandler struct {
	base
}

// NewCropHandler creates a new crop handler
func NewCropHandler(
	commandBus *bus.CommandBus,
	queryBus *querybus.QueryBus,
	errs *pkgerrors.ErrorHandler,
	logger *zap.Logger,
) *CropHandler {
	return &CropHandler{base: newBase(commandBus, queryBus, errs, logger)}
}

// Start handles POST /nodes/{nodeID}/crop
func (h *CropHandler) Start(w http.ResponseWriter, r *http.Request) {
	var cmd commands.StartCropCommand
	if !h.decode(w, r, &cmd, false) {
		return
	}
	cmd.NodeRef = nodeRef(r)
	h.send(w, r, cmd, http.StatusCreated)
}

// Get handles GET /nodes/{nodeID}/crop
func (h *CropHandler) Get(w http.ResponseWriter, r *http.Request) {
	h.ask(w, r, queries.GetCropSessionQuery{NodeID: chi.URLParam(r, "nodeID")})
}

// Update handles PUT /nodes/{nodeID}/crop
func (h *CropHandler) Update(w http.ResponseWriter, r *http.Request) {
	var cmd commands.UpdateCropCommand
	if !h.decode(w, r, &cmd, false) {
		return
	}
	cmd.NodeRef = nodeRef(r)
	h.send(w, r, cmd, http.StatusOK)
}

// Resize handles PATCH /nodes/{nodeID}/crop when the viewport changes
func (h *CropHandler) Resize(w http.ResponseWriter, r *http.Request) {
	var cmd commands.ResizeCropCommand
	if !h.decode(w, r, &cmd, false) {
		return
	}
	cmd.NodeRef = nodeRef(r)
	h.send(w, r, cmd, http.StatusOK)
}

// Step handles POST /nodes/{nodeID}/crop/{action} for undo, redo and
// commit.
func (h *CropHandler) Step(w http.ResponseWriter, r *http.Request) {
	h.send(w, r, commands.CropActionCommand{
		NodeRef: nodeRef(r),
		Action:  chi.URLParam(r, "action"),
	}, http.StatusOK)
}

// End handles DELETE /nodes/{nodeID}/crop
func (h *CropHandler) End(w http.ResponseWriter, r *http.Request) {
	h.send(w, r, commands.CropActionCommand{NodeRef: nodeRef(r), Action: commands.CropEnd}, http.StatusNoContent)
}
