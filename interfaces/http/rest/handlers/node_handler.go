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

// NodeHandler handles node-related HTTP requests
type NodeHandler struct {
	base
}

// NewNodeHandler creates a new node handler
func NewNodeHandler(
	commandBus *bus.CommandBus,
	queryBus *querybus.QueryBus,
	errs *pkgerrors.ErrorHandler,
	logger *zap.Logger,
) *NodeHandler {
	return &NodeHandler{base: newBase(commandBus, queryBus, errs, logger)}
}

func nodeRef(r *http.Request) commands.NodeRef {
	return commands.NodeRef{NodeID: chi.URLParam(r, "nodeID")}
}

// GetGraph handles GET /graph
func (h *NodeHandler) GetGraph(w http.ResponseWriter, r *http.Request) {
	h.ask(w, r, queries.GetGraphQuery{})
}

// CreateNode handles POST /nodes
func (h *NodeHandler) CreateNode(w http.ResponseWriter, r *http.Request) {
	var cmd commands.AddNodeCommand
	if !h.decode(w, r, &cmd, false) {
		return
	}
	h.send(w, r, cmd, http.StatusCreated)
}

// GetNode handles GET /nodes/{nodeID}
func (h *NodeHandler) GetNode(w http.ResponseWriter, r *http.Request) {
	h.ask(w, r, queries.GetNodeQuery{NodeID: chi.URLParam(r, "nodeID")})
}

// UpdateNode handles PATCH /nodes/{nodeID}
func (h *NodeHandler) UpdateNode(w http.ResponseWriter, r *http.Request) {
	var cmd commands.UpdateNodeCommand
	if !h.decode(w, r, &cmd, false) {
		return
	}
	cmd.NodeRef = nodeRef(r)
	h.send(w, r, cmd, http.StatusNoContent)
}

// DeleteNode handles DELETE /nodes/{nodeID}
func (h *NodeHandler) DeleteNode(w http.ResponseWriter, r *http.Request) {
	h.send(w, r, commands.DeleteNodeCommand{NodeRef: nodeRef(r)}, http.StatusNoContent)
}

// Generate handles POST /nodes/{nodeID}/generate. The result arrives on
// the node; the response only acknowledges the start.
func (h *NodeHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var cmd commands.GenerateCommand
	if !h.decode(w, r, &cmd, true) {
		return
	}
	cmd.NodeRef = nodeRef(r)
	h.send(w, r, cmd, http.StatusAccepted)
}

// Replace handles POST /nodes/{nodeID}/replace
func (h *NodeHandler) Replace(w http.ResponseWriter, r *http.Request) {
	h.send(w, r, commands.ReplaceMediaCommand{NodeRef: nodeRef(r)}, http.StatusNoContent)
}

// SetMedia handles POST /nodes/{nodeID}/media
func (h *NodeHandler) SetMedia(w http.ResponseWriter, r *http.Request) {
	var cmd commands.SetMediaCommand
	if !h.decode(w, r, &cmd, false) {
		return
	}
	cmd.NodeRef = nodeRef(r)
	h.send(w, r, cmd, http.StatusNoContent)
}

// UseAsset handles POST /nodes/{nodeID}/asset
func (h *NodeHandler) UseAsset(w http.ResponseWriter, r *http.Request) {
	var cmd commands.UseAssetCommand
	if !h.decode(w, r, &cmd, false) {
		return
	}
	cmd.NodeRef = nodeRef(r)
	h.send(w, r, cmd, http.StatusNoContent)
}

// RemoveBackground handles POST /nodes/{nodeID}/background-removal
func (h *NodeHandler) RemoveBackground(w http.ResponseWriter, r *http.Request) {
	h.send(w, r, commands.RemoveBackgroundCommand{NodeRef: nodeRef(r)}, http.StatusAccepted)
}

// Download handles POST /nodes/{nodeID}/download
func (h *NodeHandler) Download(w http.ResponseWriter, r *http.Request) {
	h.send(w, r, commands.DownloadCommand{NodeRef: nodeRef(r)}, http.StatusCreated)
}
