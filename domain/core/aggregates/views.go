package aggregates

import (
	"time"

	"flowstudio/domain/core/entities"
	"flowstudio/domain/core/valueobjects"
)

// NodeView is an immutable copy of a node for readers outside the graph.
type NodeView struct {
	ID        valueobjects.NodeID   `json:"id"`
	Type      valueobjects.NodeType `json:"type"`
	Data      valueobjects.NodeData `json:"data"`
	Status    entities.NodeStatus   `json:"status"`
	Editing   bool                  `json:"editing"`
	Replacing bool                  `json:"replacing"`
	InFlight  bool                  `json:"inFlight"`
	Version   int                   `json:"version"`
	CreatedAt time.Time             `json:"createdAt"`
	UpdatedAt time.Time             `json:"updatedAt"`
}

func newNodeView(n *entities.Node) NodeView {
	return NodeView{
		ID:        n.ID(),
		Type:      n.Type(),
		Data:      n.Data(),
		Status:    n.Status(),
		Editing:   n.IsEditing(),
		Replacing: n.IsReplacing(),
		InFlight:  n.InFlight(),
		Version:   n.Version(),
		CreatedAt: n.CreatedAt(),
		UpdatedAt: n.UpdatedAt(),
	}
}

// GraphView is a consistent snapshot of the whole graph.
type GraphView struct {
	ID        string     `json:"id"`
	Version   int        `json:"version"`
	Nodes     []NodeView `json:"nodes"`
	Edges     []Edge     `json:"edges"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// Node finds a node in the snapshot.
func (v GraphView) Node(id valueobjects.NodeID) (NodeView, bool) {
	for _, n := range v.Nodes {
		if n.ID.Equals(id) {
			return n, true
		}
	}
	return NodeView{}, false
}
