package handlers

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"flowstudio/application/commands"
	"flowstudio/application/commands/bus"
	"flowstudio/application/ports"
	pkgerrors "flowstudio/pkg/errors"
)

// AssetCommandHandler edits and removes stored assets.
type AssetCommandHandler struct {
	assets ports.AssetService
	logger *zap.Logger
}

// NewAssetCommandHandler creates a handler over assets, which may be nil
// when no asset store is configured.
func NewAssetCommandHandler(assets ports.AssetService, logger *zap.Logger) *AssetCommandHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssetCommandHandler{assets: assets, logger: logger}
}

// Register binds the asset commands to this handler.
func (h *AssetCommandHandler) Register(b *bus.CommandBus) error {
	for _, cmd := range []bus.Command{
		commands.UpdateAssetCommand{},
		commands.DeleteAssetCommand{},
	} {
		if err := b.Register(cmd, h); err != nil {
			return err
		}
	}
	return nil
}

// Handle implements bus.CommandHandler
func (h *AssetCommandHandler) Handle(ctx context.Context, cmd bus.Command) (interface{}, error) {
	if h.assets == nil {
		return nil, pkgerrors.ErrServiceUnavailable.New().WithDetail("service", "assets")
	}

	switch c := cmd.(type) {
	case commands.UpdateAssetCommand:
		return h.update(ctx, c)

	case commands.DeleteAssetCommand:
		if err := h.assets.Delete(ctx, c.AssetID); err != nil {
			return nil, pkgerrors.Wrap(err, "delete asset")
		}
		h.logger.Info("Asset deleted", zap.String("assetID", c.AssetID))
		return nil, nil
	}
	return nil, pkgerrors.NewInternalError(fmt.Sprintf("unexpected command %T", cmd))
}

func (h *AssetCommandHandler) update(ctx context.Context, c commands.UpdateAssetCommand) (ports.Asset, error) {
	asset, err := h.assets.Get(ctx, c.AssetID)
	if err != nil {
		return ports.Asset{}, pkgerrors.Wrap(err, "load asset")
	}
	if c.Name != nil {
		asset.Name = *c.Name
	}
	if c.URL != nil {
		asset.URL = *c.URL
	}
	if err := h.assets.Update(ctx, asset); err != nil {
		return ports.Asset{}, pkgerrors.Wrap(err, "update asset")
	}
	h.logger.Info("Asset updated", zap.String("assetID", asset.ID))
	return asset, nil
}
