package services

import (
	"context"

	"flowstudio/application/ports"
	"flowstudio/domain/core/aggregates"
	"flowstudio/domain/core/valueobjects"
)

// GenerateOptions override what a node would otherwise generate with.
type GenerateOptions struct {
	Prompt string `json:"prompt,omitempty"`
	Model  string `json:"model,omitempty"`
}

// NodeOperations is the set of intents the editor issues against nodes.
// Mutating intents on an absent node change nothing and return nil: the
// node may have been deleted while the intent was on its way. Only
// HandleDownload, which must return an asset, reports ErrNodeNotFound.
type NodeOperations interface {
	HandleAddNode(nodeType valueobjects.NodeType, data valueobjects.NodeData) (valueobjects.NodeID, error)
	HandleConnect(source, target valueobjects.NodeID, sourceHandle, targetHandle valueobjects.Handle) (aggregates.Edge, error)
	HandleDisconnect(edgeID string) error
	HandleReplace(id valueobjects.NodeID) error
	HandleImageUpdate(id valueobjects.NodeID, url string) error
	HandleDelete(id valueobjects.NodeID) error
	HandleCropComplete(id valueobjects.NodeID, croppedURL string) error
	HandleBackgroundRemove(ctx context.Context, id valueobjects.NodeID) error
	HandleDownload(ctx context.Context, id valueobjects.NodeID) (ports.Asset, error)
	HandleFontTypeChange(id valueobjects.NodeID, fontType string) error
	HandleBackgroundColorChange(id valueobjects.NodeID, color string) error
	HandleEditingChange(id valueobjects.NodeID, editing bool) error
	HandleGenerate(ctx context.Context, id valueobjects.NodeID, opts GenerateOptions) error
}

// NopNodeOperations ignores every intent. It is the explicit default for
// views mounted without a dispatcher.
type NopNodeOperations struct{}

var _ NodeOperations = NopNodeOperations{}

func (NopNodeOperations) HandleAddNode(valueobjects.NodeType, valueobjects.NodeData) (valueobjects.NodeID, error) {
	return valueobjects.NodeID{}, nil
}

func (NopNodeOperations) HandleConnect(valueobjects.NodeID, valueobjects.NodeID, valueobjects.Handle, valueobjects.Handle) (aggregates.Edge, error) {
	return aggregates.Edge{}, nil
}

func (NopNodeOperations) HandleDisconnect(string) error                        { return nil }
func (NopNodeOperations) HandleReplace(valueobjects.NodeID) error              { return nil }
func (NopNodeOperations) HandleImageUpdate(valueobjects.NodeID, string) error  { return nil }
func (NopNodeOperations) HandleDelete(valueobjects.NodeID) error               { return nil }
func (NopNodeOperations) HandleCropComplete(valueobjects.NodeID, string) error { return nil }

func (NopNodeOperations) HandleBackgroundRemove(context.Context, valueobjects.NodeID) error {
	return nil
}

func (NopNodeOperations) HandleDownload(context.Context, valueobjects.NodeID) (ports.Asset, error) {
	return ports.Asset{}, nil
}

func (NopNodeOperations) HandleFontTypeChange(valueobjects.NodeID, string) error        { return nil }
func (NopNodeOperations) HandleBackgroundColorChange(valueobjects.NodeID, string) error { return nil }
func (NopNodeOperations) HandleEditingChange(valueobjects.NodeID, bool) error           { return nil }

func (NopNodeOperations) HandleGenerate(context.Context, valueobjects.NodeID, GenerateOptions) error {
	return nil
}
