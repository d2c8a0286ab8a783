package valueobjects

import (
	"fmt"
	"strings"
)

// NodeData is the payload of a node. It is a closed union: the concrete
// type is fixed by the node's NodeType and only the types in this package
// implement it.
type NodeData interface {
	Type() NodeType
	Base() Common
	MediaURL() string
	apply(p DataPatch) NodeData
}

// Common holds the fields every node payload carries.
type Common struct {
	Label           string `json:"label"`
	IsLoading       bool   `json:"isLoading"`
	Error           string `json:"error,omitempty"`
	BackgroundColor string `json:"backgroundColor,omitempty"`
}

// TextData is the payload of a text node.
type TextData struct {
	Common
	Text     string `json:"text"`
	FontType string `json:"fontType,omitempty"`
}

// ImageData is the payload of an image node.
type ImageData struct {
	Common
	ImageURL string `json:"imageUrl,omitempty"`
	Prompt   string `json:"prompt,omitempty"`
	Model    string `json:"model,omitempty"`
	AssetID  string `json:"assetId,omitempty"`
}

// VideoData is the payload of a video node.
type VideoData struct {
	Common
	VideoURL string `json:"videoUrl,omitempty"`
	Prompt   string `json:"prompt,omitempty"`
	Model    string `json:"model,omitempty"`
	AssetID  string `json:"assetId,omitempty"`
}

// ModelData is the payload of a 3d node.
type ModelData struct {
	Common
	ModelURL string `json:"modelUrl,omitempty"`
	Prompt   string `json:"prompt,omitempty"`
	AssetID  string `json:"assetId,omitempty"`
}

func (d TextData) Type() NodeType  { return NodeTypeText }
func (d ImageData) Type() NodeType { return NodeTypeImage }
func (d VideoData) Type() NodeType { return NodeTypeVideo }
func (d ModelData) Type() NodeType { return NodeType3D }

func (d TextData) Base() Common  { return d.Common }
func (d ImageData) Base() Common { return d.Common }
func (d VideoData) Base() Common { return d.Common }
func (d ModelData) Base() Common { return d.Common }

func (d TextData) MediaURL() string  { return "" }
func (d ImageData) MediaURL() string { return d.ImageURL }
func (d VideoData) MediaURL() string { return d.VideoURL }
func (d ModelData) MediaURL() string { return d.ModelURL }

// DataPatch is a partial update. Nil fields are left untouched; fields that
// do not apply to the target node type are ignored.
type DataPatch struct {
	Label           *string `json:"label,omitempty"`
	Text            *string `json:"text,omitempty"`
	MediaURL        *string `json:"mediaUrl,omitempty"`
	Prompt          *string `json:"prompt,omitempty"`
	Model           *string `json:"model,omitempty"`
	AssetID         *string `json:"assetId,omitempty"`
	FontType        *string `json:"fontType,omitempty"`
	BackgroundColor *string `json:"backgroundColor,omitempty"`
	IsLoading       *bool   `json:"isLoading,omitempty"`
	Error           *string `json:"error,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p DataPatch) IsEmpty() bool {
	return p == DataPatch{}
}

// Ptr returns a pointer to v. It keeps patch literals short.
func Ptr[T any](v T) *T {
	return &v
}

// NewNodeData returns an empty payload for the given type.
func NewNodeData(t NodeType) (NodeData, error) {
	label := defaultLabel(t)
	switch t {
	case NodeTypeText:
		return TextData{Common: Common{Label: label}}, nil
	case NodeTypeImage:
		return ImageData{Common: Common{Label: label}}, nil
	case NodeTypeVideo:
		return VideoData{Common: Common{Label: label}}, nil
	case NodeType3D:
		return ModelData{Common: Common{Label: label}}, nil
	}
	return nil, fmt.Errorf("unknown node type %q", t)
}

// ApplyPatch merges p into d and returns the result. d is not modified.
func ApplyPatch(d NodeData, p DataPatch) NodeData {
	if d == nil {
		return nil
	}
	return d.apply(p)
}

func defaultLabel(t NodeType) string {
	if t == NodeType3D {
		return "3D"
	}
	s := string(t)
	if s == "" {
		return ""
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func (c Common) apply(p DataPatch) Common {
	if p.Label != nil {
		c.Label = *p.Label
	}
	if p.BackgroundColor != nil {
		c.BackgroundColor = *p.BackgroundColor
	}
	if p.IsLoading != nil {
		c.IsLoading = *p.IsLoading
		if c.IsLoading {
			c.Error = ""
		}
	}
	if p.Error != nil {
		c.Error = *p.Error
	}
	// Loading and error are exclusive; an error reported in the same patch
	// as a loading flag wins.
	if c.Error != "" {
		c.IsLoading = false
	}
	return c
}

func (d TextData) apply(p DataPatch) NodeData {
	d.Common = d.Common.apply(p)
	if p.Text != nil {
		d.Text = *p.Text
	}
	if p.FontType != nil {
		d.FontType = *p.FontType
	}
	return d
}

func (d ImageData) apply(p DataPatch) NodeData {
	d.Common = d.Common.apply(p)
	if p.MediaURL != nil {
		d.ImageURL = *p.MediaURL
	}
	if p.Prompt != nil {
		d.Prompt = *p.Prompt
	}
	if p.Model != nil {
		d.Model = *p.Model
	}
	if p.AssetID != nil {
		d.AssetID = *p.AssetID
	}
	return d
}

func (d VideoData) apply(p DataPatch) NodeData {
	d.Common = d.Common.apply(p)
	if p.MediaURL != nil {
		d.VideoURL = *p.MediaURL
	}
	if p.Prompt != nil {
		d.Prompt = *p.Prompt
	}
	if p.Model != nil {
		d.Model = *p.Model
	}
	if p.AssetID != nil {
		d.AssetID = *p.AssetID
	}
	return d
}

func (d ModelData) apply(p DataPatch) NodeData {
	d.Common = d.Common.apply(p)
	if p.MediaURL != nil {
		d.ModelURL = *p.MediaURL
	}
	if p.Prompt != nil {
		d.Prompt = *p.Prompt
	}
	if p.AssetID != nil {
		d.AssetID = *p.AssetID
	}
	return d
}

// PromptOf returns the prompt a payload carries: the text of a text node or
// the prompt field of a media node.
func PromptOf(d NodeData) string {
	switch v := d.(type) {
	case TextData:
		return v.Text
	case ImageData:
		return v.Prompt
	case VideoData:
		return v.Prompt
	case ModelData:
		return v.Prompt
	}
	return ""
}
