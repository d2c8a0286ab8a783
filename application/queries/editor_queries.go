package queries

import (
	"errors"

	"flowstudio/application/services"
	"flowstudio/domain/core/aggregates"
	"flowstudio/domain/core/valueobjects"
)

// GetGraphQuery reads the whole workflow.
type GetGraphQuery struct{}

// Validate validates the GetGraphQuery
func (q GetGraphQuery) Validate() error { return nil }

// GetGraphResult is the graph plus editor-wide state
type GetGraphResult struct {
	aggregates.GraphView
	EditingNodeID string `json:"editingNodeId,omitempty"`
	InFlight      int    `json:"inFlight"`
}

// GetNodeQuery reads a single node
type GetNodeQuery struct {
	NodeID string
}

// Validate validates the GetNodeQuery
func (q GetNodeQuery) Validate() error {
	if q.NodeID == "" {
		return errors.New("node ID is required")
	}
	_, err := valueobjects.ParseNodeID(q.NodeID)
	return err
}

// GetNodeResult is a node with the edges that feed it
type GetNodeResult struct {
	aggregates.NodeView
	Incoming []aggregates.Edge   `json:"incoming"`
	Crop     *services.CropState `json:"crop,omitempty"`
}

// ListAssetsQuery lists stored media
type ListAssetsQuery struct {
	NodeID string
}

// Validate validates the ListAssetsQuery
func (q ListAssetsQuery) Validate() error { return nil }

// GetCropSessionQuery reads the live crop session of a node
type GetCropSessionQuery struct {
	NodeID string
}

// Validate validates the GetCropSessionQuery
func (q GetCropSessionQuery) Validate() error {
	return GetNodeQuery(q).Validate()
}
