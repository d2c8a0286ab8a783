package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"flowstudio/application/commands"
	"flowstudio/application/commands/bus"
	pkgerrors "flowstudio/pkg/errors"
)

// EdgeHandler handles edge-related HTTP requests
type EdgeHandler struct {
	base
}

// NewEdgeHandler creates a new edge handler
func NewEdgeHandler(commandBus *bus.CommandBus, errs *pkgerrors.ErrorHandler, logger *zap.Logger) *EdgeHandler {
	return &EdgeHandler{base: newBase(commandBus, nil, errs, logger)}
}

// CreateEdge handles POST /edges
func (h *EdgeHandler) CreateEdge(w http.ResponseWriter, r *http.Request) {
	var cmd commands.ConnectNodesCommand
	if !h.decode(w, r, &cmd, false) {
		return
	}
	h.send(w, r, cmd, http.StatusCreated)
}

// DeleteEdge handles DELETE /edges/{edgeID}
func (h *EdgeHandler) DeleteEdge(w http.ResponseWriter, r *http.Request) {
	h.send(w, r, commands.DisconnectCommand{EdgeID: chi.URLParam(r, "edgeID")}, http.StatusNoContent)
}
