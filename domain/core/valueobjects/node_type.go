package valueobjects

import "fmt"

// NodeType identifies the kind of content a node holds
type NodeType string

const (
	NodeTypeText  NodeType = "text"
	NodeTypeImage NodeType = "image"
	NodeTypeVideo NodeType = "video"
	NodeType3D    NodeType = "3d"
)

// AllNodeTypes lists every supported node type.
func AllNodeTypes() []NodeType {
	return []NodeType{NodeTypeText, NodeTypeImage, NodeTypeVideo, NodeType3D}
}

// ParseNodeType validates a node type string.
func ParseNodeType(s string) (NodeType, error) {
	t := NodeType(s)
	if !t.IsValid() {
		return "", fmt.Errorf("unknown node type %q", s)
	}
	return t, nil
}

// IsValid reports whether t is a supported node type.
func (t NodeType) IsValid() bool {
	switch t {
	case NodeTypeText, NodeTypeImage, NodeTypeVideo, NodeType3D:
		return true
	}
	return false
}

// Handle names a port on a node. The empty handle is the default port.
type Handle string

const (
	HandleDefault    Handle = ""
	HandlePrompt     Handle = "prompt"
	HandleReference  Handle = "reference"
	HandleFirstFrame Handle = "first-frame"
	HandleLastFrame  Handle = "last-frame"
)
