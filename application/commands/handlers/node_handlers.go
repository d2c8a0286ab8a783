package handlers

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"flowstudio/application/commands"
	"flowstudio/application/commands/bus"
	"flowstudio/application/services"
	"flowstudio/domain/core/valueobjects"
	pkgerrors "flowstudio/pkg/errors"
)

// Editor is everything the command handlers drive: node intents plus the
// crop session controls. *services.Dispatcher implements it.
type Editor interface {
	services.NodeOperations
	StartCropSession(ctx context.Context, id valueobjects.NodeID, width, height int) (services.CropState, error)
	UpdateCrop(id valueobjects.NodeID, box valueobjects.Rect, scale valueobjects.Scale) (services.CropState, error)
	ResizeCropSession(id valueobjects.NodeID, width, height int) (services.CropState, error)
	UndoCrop(id valueobjects.NodeID) (services.CropState, error)
	RedoCrop(id valueobjects.NodeID) (services.CropState, error)
	CommitCrop(id valueobjects.NodeID) (string, error)
	EndCropSession(id valueobjects.NodeID)
	HandleAssetSelect(ctx context.Context, id valueobjects.NodeID, assetID string) error
}

var _ Editor = (*services.Dispatcher)(nil)

// CropCommitted is the result of committing a crop.
type CropCommitted struct {
	NodeID string `json:"node_id"`
	URL    string `json:"url"`
}

// NodeCommandHandler translates commands into editor intents.
type NodeCommandHandler struct {
	editor Editor
	logger *zap.Logger
}

// NewNodeCommandHandler creates a new handler instance
func NewNodeCommandHandler(editor Editor, logger *zap.Logger) *NodeCommandHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NodeCommandHandler{editor: editor, logger: logger}
}

// Register binds every node command to this handler.
func (h *NodeCommandHandler) Register(b *bus.CommandBus) error {
	for _, cmd := range []bus.Command{
		commands.AddNodeCommand{},
		commands.ConnectNodesCommand{},
		commands.DisconnectCommand{},
		commands.DeleteNodeCommand{},
		commands.ReplaceMediaCommand{},
		commands.SetMediaCommand{},
		commands.UpdateNodeCommand{},
		commands.GenerateCommand{},
		commands.RemoveBackgroundCommand{},
		commands.DownloadCommand{},
		commands.UseAssetCommand{},
		commands.StartCropCommand{},
		commands.UpdateCropCommand{},
		commands.ResizeCropCommand{},
		commands.CropActionCommand{},
	} {
		if err := b.Register(cmd, h); err != nil {
			return err
		}
	}
	return nil
}

// Handle implements bus.CommandHandler
func (h *NodeCommandHandler) Handle(ctx context.Context, cmd bus.Command) (interface{}, error) {
	switch c := cmd.(type) {
	case commands.AddNodeCommand:
		data, err := c.Data()
		if err != nil {
			return nil, pkgerrors.ErrInvalidNodeType.New().WithCause(err)
		}
		id, err := h.editor.HandleAddNode(valueobjects.NodeType(c.Type), data)
		if err != nil {
			return nil, err
		}
		h.logger.Info("Node added", zap.String("nodeID", id.String()), zap.String("type", c.Type))
		return id, nil

	case commands.ConnectNodesCommand:
		source, _ := valueobjects.ParseNodeID(c.Source)
		target, _ := valueobjects.ParseNodeID(c.Target)
		return h.editor.HandleConnect(source, target, valueobjects.Handle(c.SourceHandle), valueobjects.Handle(c.TargetHandle))

	case commands.DisconnectCommand:
		return nil, h.editor.HandleDisconnect(c.EdgeID)

	case commands.DeleteNodeCommand:
		if err := h.editor.HandleDelete(c.ID()); err != nil {
			return nil, err
		}
		h.logger.Info("Node deleted", zap.String("nodeID", c.NodeID))
		return nil, nil

	case commands.ReplaceMediaCommand:
		return nil, h.editor.HandleReplace(c.ID())

	case commands.SetMediaCommand:
		return nil, h.editor.HandleImageUpdate(c.ID(), c.URL)

	case commands.UpdateNodeCommand:
		return nil, h.updateNode(c)

	case commands.GenerateCommand:
		return nil, h.editor.HandleGenerate(ctx, c.ID(), services.GenerateOptions{Prompt: c.Prompt, Model: c.Model})

	case commands.RemoveBackgroundCommand:
		return nil, h.editor.HandleBackgroundRemove(ctx, c.ID())

	case commands.DownloadCommand:
		return h.editor.HandleDownload(ctx, c.ID())

	case commands.UseAssetCommand:
		return nil, h.editor.HandleAssetSelect(ctx, c.ID(), c.AssetID)

	case commands.StartCropCommand:
		return h.editor.StartCropSession(ctx, c.ID(), c.Width, c.Height)

	case commands.UpdateCropCommand:
		return h.editor.UpdateCrop(c.ID(), c.Box, valueobjects.Scale{X: c.ScaleX, Y: c.ScaleY})

	case commands.ResizeCropCommand:
		return h.editor.ResizeCropSession(c.ID(), c.Width, c.Height)

	case commands.CropActionCommand:
		return h.cropAction(c)
	}
	return nil, pkgerrors.NewInternalError(fmt.Sprintf("unexpected command %T", cmd))
}

// updateNode applies the fields in order and stops at the first failure.
func (h *NodeCommandHandler) updateNode(c commands.UpdateNodeCommand) error {
	id := c.ID()
	if c.FontType != nil {
		if err := h.editor.HandleFontTypeChange(id, *c.FontType); err != nil {
			return err
		}
	}
	if c.BackgroundColor != nil {
		if err := h.editor.HandleBackgroundColorChange(id, *c.BackgroundColor); err != nil {
			return err
		}
	}
	if c.Editing != nil {
		if err := h.editor.HandleEditingChange(id, *c.Editing); err != nil {
			return err
		}
	}
	return nil
}

func (h *NodeCommandHandler) cropAction(c commands.CropActionCommand) (interface{}, error) {
	id := c.ID()
	switch c.Action {
	case commands.CropUndo:
		return h.editor.UndoCrop(id)
	case commands.CropRedo:
		return h.editor.RedoCrop(id)
	case commands.CropCommit:
		url, err := h.editor.CommitCrop(id)
		if err != nil {
			return nil, err
		}
		return CropCommitted{NodeID: c.NodeID, URL: url}, nil
	case commands.CropEnd:
		h.editor.EndCropSession(id)
		return nil, nil
	}
	return nil, pkgerrors.NewValidationError(fmt.Sprintf("unknown crop action %q", c.Action))
}
