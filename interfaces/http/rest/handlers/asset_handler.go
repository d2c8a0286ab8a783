package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"flowstudio/application/commands"
	"flowstudio/application/commands/bus"
	"flowstudio/application/ports"
	"flowstudio/application/queries"
	querybus "flowstudio/application/queries/bus"
	"flowstudio/pkg/common"
	pkgerrors "flowstudio/pkg/errors"
)

// AssetHandler lists, edits and removes stored media
type AssetHandler struct {
	base
}

// NewAssetHandler creates a new asset handler
func NewAssetHandler(
	commandBus *bus.CommandBus,
	queryBus *querybus.QueryBus,
	errs *pkgerrors.ErrorHandler,
	logger *zap.Logger,
) *AssetHandler {
	return &AssetHandler{base: newBase(commandBus, queryBus, errs, logger)}
}

// ListAssets handles GET /assets?node_id=&page=&page_size=&order=
func (h *AssetHandler) ListAssets(w http.ResponseWriter, r *http.Request) {
	result, err := h.queryBus.Ask(r.Context(), queries.ListAssetsQuery{NodeID: r.URL.Query().Get("node_id")})
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	assets, _ := result.([]ports.Asset)

	page, meta := common.Paginate(assets, common.ExtractPaginationParams(r))
	common.RespondWithMeta(w, r, http.StatusOK, page, &common.MetaInfo{Pagination: meta})
}

// UpdateAsset handles PATCH /assets/{assetID}
func (h *AssetHandler) UpdateAsset(w http.ResponseWriter, r *http.Request) {
	var cmd commands.UpdateAssetCommand
	if !h.decode(w, r, &cmd, false) {
		return
	}
	cmd.AssetID = chi.URLParam(r, "assetID")
	h.send(w, r, cmd, http.StatusOK)
}

// DeleteAsset handles DELETE /assets/{assetID}
func (h *AssetHandler) DeleteAsset(w http.ResponseWriter, r *http.Request) {
	h.send(w, r, commands.DeleteAssetCommand{AssetID: chi.URLParam(r, "assetID")}, http.StatusNoContent)
}
