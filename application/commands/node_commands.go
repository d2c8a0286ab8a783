package commands

import (
	"errors"

	"flowstudio/domain/core/valueobjects"
	"flowstudio/pkg/utils"
)

// NodeRef names the node a command acts on.
type NodeRef struct {
	NodeID string `json:"node_id" validate:"required"`
}

// ID returns the parsed node id. Call it after Validate.
func (r NodeRef) ID() valueobjects.NodeID {
	id, _ := valueobjects.ParseNodeID(r.NodeID)
	return id
}

func (r NodeRef) validate() error {
	if r.NodeID == "" {
		return errors.New("node_id is required")
	}
	_, err := valueobjects.ParseNodeID(r.NodeID)
	return err
}

// validate runs tag validation, then the node reference check.
func validate(cmd interface{}, ref *NodeRef) error {
	if err := utils.ValidateStruct(cmd); err != nil {
		return err
	}
	if ref != nil {
		return ref.validate()
	}
	return nil
}

// AddNodeCommand creates a node. The optional fields seed its payload.
type AddNodeCommand struct {
	Type     string `json:"type" validate:"required,oneof=text image video 3d"`
	Label    string `json:"label" validate:"max=200"`
	Text     string `json:"text" validate:"max=50000"`
	MediaURL string `json:"media_url"`
	Prompt   string `json:"prompt" validate:"max=4000"`
}

func (c AddNodeCommand) Validate() error {
	return validate(c, nil)
}

// Data builds the initial payload for the node.
func (c AddNodeCommand) Data() (valueobjects.NodeData, error) {
	nodeType, err := valueobjects.ParseNodeType(c.Type)
	if err != nil {
		return nil, err
	}
	data, err := valueobjects.NewNodeData(nodeType)
	if err != nil {
		return nil, err
	}
	var patch valueobjects.DataPatch
	if c.Label != "" {
		patch.Label = &c.Label
	}
	if c.Text != "" {
		patch.Text = &c.Text
	}
	if c.MediaURL != "" {
		patch.MediaURL = &c.MediaURL
	}
	if c.Prompt != "" {
		patch.Prompt = &c.Prompt
	}
	return valueobjects.ApplyPatch(data, patch), nil
}

// ConnectNodesCommand draws an edge from Source into Target.
type ConnectNodesCommand struct {
	Source       string `json:"source" validate:"required"`
	Target       string `json:"target" validate:"required"`
	SourceHandle string `json:"source_handle"`
	TargetHandle string `json:"target_handle" validate:"omitempty,oneof=prompt reference first-frame last-frame"`
}

func (c ConnectNodesCommand) Validate() error {
	if err := validate(c, nil); err != nil {
		return err
	}
	if err := (NodeRef{NodeID: c.Source}).validate(); err != nil {
		return err
	}
	return NodeRef{NodeID: c.Target}.validate()
}

// DisconnectCommand removes an edge.
type DisconnectCommand struct {
	EdgeID string `json:"edge_id" validate:"required"`
}

func (c DisconnectCommand) Validate() error {
	return validate(c, nil)
}

// DeleteNodeCommand removes a node, its edges and any work in flight.
type DeleteNodeCommand struct {
	NodeRef
}

func (c DeleteNodeCommand) Validate() error {
	return validate(c, &c.NodeRef)
}

// ReplaceMediaCommand marks a media node as awaiting new media.
type ReplaceMediaCommand struct {
	NodeRef
}

func (c ReplaceMediaCommand) Validate() error {
	return validate(c, &c.NodeRef)
}

// SetMediaCommand sets a node's media directly, settling any running
// operation.
type SetMediaCommand struct {
	NodeRef
	URL string `json:"url" validate:"required"`
}

func (c SetMediaCommand) Validate() error {
	return validate(c, &c.NodeRef)
}

// UpdateNodeCommand changes presentation fields. At least one must be set.
type UpdateNodeCommand struct {
	NodeRef
	FontType        *string `json:"font_type" validate:"omitempty,max=64"`
	BackgroundColor *string `json:"background_color" validate:"omitempty,hexcolor"`
	Editing         *bool   `json:"editing"`
}

func (c UpdateNodeCommand) Validate() error {
	if err := validate(c, &c.NodeRef); err != nil {
		return err
	}
	if c.FontType == nil && c.BackgroundColor == nil && c.Editing == nil {
		return errors.New("nothing to update")
	}
	return nil
}

// GenerateCommand starts generation on a media node.
type GenerateCommand struct {
	NodeRef
	Prompt string `json:"prompt" validate:"max=4000"`
	Model  string `json:"model" validate:"max=100"`
}

func (c GenerateCommand) Validate() error {
	return validate(c, &c.NodeRef)
}

// RemoveBackgroundCommand starts background removal on an image node.
type RemoveBackgroundCommand struct {
	NodeRef
}

func (c RemoveBackgroundCommand) Validate() error {
	return validate(c, &c.NodeRef)
}

// DownloadCommand stores a node's media as an asset.
type DownloadCommand struct {
	NodeRef
}

func (c DownloadCommand) Validate() error {
	return validate(c, &c.NodeRef)
}

// StartCropCommand opens a crop session sized to the editor viewport.
type StartCropCommand struct {
	NodeRef
	Width  int `json:"width" validate:"gte=1,lte=8192"`
	Height int `json:"height" validate:"gte=1,lte=8192"`
}

func (c StartCropCommand) Validate() error {
	return validate(c, &c.NodeRef)
}

// UpdateCropCommand moves the crop box. A zero scale keeps the current one.
type UpdateCropCommand struct {
	NodeRef
	Box    valueobjects.Rect `json:"box"`
	ScaleX float64           `json:"scale_x" validate:"gte=0"`
	ScaleY float64           `json:"scale_y" validate:"gte=0"`
}

func (c UpdateCropCommand) Validate() error {
	if err := validate(c, &c.NodeRef); err != nil {
		return err
	}
	if c.Box.IsEmpty() {
		return errors.New("box must have an area")
	}
	return nil
}

// Crop session steps.
const (
	CropUndo   = "undo"
	CropRedo   = "redo"
	CropCommit = "commit"
	CropEnd    = "end"
)

// CropActionCommand steps a crop session.
type CropActionCommand struct {
	NodeRef
	Action string `json:"action" validate:"required,oneof=undo redo commit end"`
}

func (c CropActionCommand) Validate() error {
	return validate(c, &c.NodeRef)
}

// ResizeCropCommand resizes an open crop session to a new viewport.
type ResizeCropCommand struct {
	NodeRef
	Width  int `json:"width" validate:"gte=1,lte=8192"`
	Height int `json:"height" validate:"gte=1,lte=8192"`
}

func (c ResizeCropCommand) Validate() error {
	return validate(c, &c.NodeRef)
}

// UseAssetCommand sets a node's media from a stored asset.
type UseAssetCommand struct {
	NodeRef
	AssetID string `json:"asset_id" validate:"required,max=100"`
}

func (c UseAssetCommand) Validate() error {
	return validate(c, &c.NodeRef)
}
