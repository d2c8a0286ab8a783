package entities

import (
	"time"

	"flowstudio/domain/core/valueobjects"
	pkgerrors "flowstudio/pkg/errors"
)

// NodeStatus represents the lifecycle state of a node
type NodeStatus string

const (
	StatusCreated    NodeStatus = "created"
	StatusIdle       NodeStatus = "idle"
	StatusEditing    NodeStatus = "editing"
	StatusGenerating NodeStatus = "generating"
	StatusReady      NodeStatus = "ready"
	StatusError      NodeStatus = "error"
	StatusDeleted    NodeStatus = "deleted"
)

// Node is one unit of content in the workflow graph together with its
// generation state.
type Node struct {
	id        valueobjects.NodeID
	nodeType  valueobjects.NodeType
	data      valueobjects.NodeData
	status    NodeStatus
	editing   bool
	replacing bool

	// opToken identifies the asynchronous operation currently allowed to
	// complete. Zero means none is in flight.
	opToken uint64
	opSeq   uint64

	createdAt time.Time
	updatedAt time.Time
	version   int
}

// NewNode creates a node of the given type. A nil data payload is replaced
// by the empty payload for the type.
func NewNode(id valueobjects.NodeID, nodeType valueobjects.NodeType, data valueobjects.NodeData) (*Node, error) {
	if id.IsZero() {
		return nil, pkgerrors.NewValidationError("node id cannot be empty")
	}
	if !nodeType.IsValid() {
		return nil, pkgerrors.NewValidationError("unknown node type: " + string(nodeType))
	}
	if data == nil {
		var err error
		if data, err = valueobjects.NewNodeData(nodeType); err != nil {
			return nil, pkgerrors.NewValidationError(err.Error())
		}
	}
	if data.Type() != nodeType {
		return nil, pkgerrors.NewValidationError("payload of type " + string(data.Type()) + " does not match node type " + string(nodeType))
	}

	now := time.Now()
	return &Node{
		id:        id,
		nodeType:  nodeType,
		data:      data,
		status:    StatusCreated,
		createdAt: now,
		updatedAt: now,
		version:   1,
	}, nil
}

// ID returns the node's unique identifier
func (n *Node) ID() valueobjects.NodeID {
	return n.id
}

// Type returns the node type
func (n *Node) Type() valueobjects.NodeType {
	return n.nodeType
}

// Data returns the node payload
func (n *Node) Data() valueobjects.NodeData {
	return n.data
}

// Status returns the node's current lifecycle state
func (n *Node) Status() NodeStatus {
	return n.status
}

// IsEditing reports whether the node holds exclusive-edit mode
func (n *Node) IsEditing() bool {
	return n.editing
}

// IsReplacing reports whether the node awaits new source media
func (n *Node) IsReplacing() bool {
	return n.replacing
}

// IsDeleted reports whether the node was removed from its graph
func (n *Node) IsDeleted() bool {
	return n.status == StatusDeleted
}

// Version returns the number of applied mutations
func (n *Node) Version() int {
	return n.version
}

// CreatedAt returns when the node was created
func (n *Node) CreatedAt() time.Time {
	return n.createdAt
}

// UpdatedAt returns when the node was last updated
func (n *Node) UpdatedAt() time.Time {
	return n.updatedAt
}

// InFlight reports whether an asynchronous operation may still complete
func (n *Node) InFlight() bool {
	return n.opToken != 0
}

// ApplyPatch merges a partial update into the payload.
func (n *Node) ApplyPatch(p valueobjects.DataPatch) error {
	if n.status == StatusDeleted {
		return pkgerrors.NewValidationError("cannot update deleted node")
	}
	if p.IsEmpty() {
		return nil
	}

	n.data = valueobjects.ApplyPatch(n.data, p)
	if p.MediaURL != nil {
		n.replacing = false
	}

	switch {
	case n.status == StatusGenerating && n.data.Base().IsLoading:
	case n.status == StatusGenerating:
		// Settled out of band, e.g. media set directly while a task ran.
		n.opToken = 0
		n.status = n.settledStatus()
	default:
		n.status = n.settledStatus()
	}
	n.touch()
	return nil
}

// SetEditing toggles exclusive-edit mode. A generating node keeps its
// status; the flag is still recorded.
func (n *Node) SetEditing(editing bool) error {
	if n.status == StatusDeleted {
		return pkgerrors.NewValidationError("cannot edit deleted node")
	}
	if n.editing == editing {
		return nil
	}

	n.editing = editing
	switch n.status {
	case StatusCreated, StatusIdle, StatusReady, StatusError, StatusEditing:
		if editing {
			n.status = StatusEditing
		} else {
			n.status = n.settledStatus()
		}
	}
	n.touch()
	return nil
}

// MarkReplacing flags the node as waiting for new source media.
func (n *Node) MarkReplacing() error {
	if n.status == StatusDeleted {
		return pkgerrors.NewValidationError("cannot replace media of deleted node")
	}
	n.replacing = true
	n.touch()
	return nil
}

// BeginOperation moves the node into generating and returns the token the
// completion must present. Starting a new operation supersedes any
// previous one.
func (n *Node) BeginOperation() (uint64, error) {
	if n.status == StatusDeleted {
		return 0, pkgerrors.NewValidationError("cannot start operation on deleted node")
	}

	n.opSeq++
	n.opToken = n.opSeq
	n.status = StatusGenerating
	n.data = valueobjects.ApplyPatch(n.data, valueobjects.DataPatch{
		IsLoading: valueobjects.Ptr(true),
		Error:     valueobjects.Ptr(""),
	})
	n.touch()
	return n.opToken, nil
}

// CompleteOperation settles the operation identified by token. It reports
// false, leaving the node untouched, when the token is not the current one.
func (n *Node) CompleteOperation(token uint64, result valueobjects.DataPatch, opErr error) bool {
	if n.status == StatusDeleted || token == 0 || token != n.opToken {
		return false
	}

	n.opToken = 0
	if opErr != nil {
		result.IsLoading = valueobjects.Ptr(false)
		result.Error = valueobjects.Ptr(opErr.Error())
		n.data = valueobjects.ApplyPatch(n.data, result)
		n.status = StatusError
	} else {
		result.IsLoading = valueobjects.Ptr(false)
		result.Error = valueobjects.Ptr("")
		n.data = valueobjects.ApplyPatch(n.data, result)
		if result.MediaURL != nil {
			n.replacing = false
		}
		n.status = StatusReady
	}
	n.touch()
	return true
}

// CancelOperation invalidates the in-flight token, if any, so a late
// completion is ignored.
func (n *Node) CancelOperation() {
	if n.opToken == 0 {
		return
	}
	n.opToken = 0
	if n.status == StatusGenerating {
		n.data = valueobjects.ApplyPatch(n.data, valueobjects.DataPatch{IsLoading: valueobjects.Ptr(false)})
		n.status = n.settledStatus()
	}
	n.touch()
}

// MarkDeleted makes the node inert to any further transition.
func (n *Node) MarkDeleted() {
	n.opToken = 0
	n.editing = false
	n.status = StatusDeleted
	n.touch()
}

// Clone returns a detached copy suitable for read models.
func (n *Node) Clone() *Node {
	cp := *n
	return &cp
}

func (n *Node) settledStatus() NodeStatus {
	base := n.data.Base()
	switch {
	case n.editing:
		return StatusEditing
	case base.Error != "":
		return StatusError
	case n.data.MediaURL() != "":
		return StatusReady
	default:
		return StatusIdle
	}
}

func (n *Node) touch() {
	n.updatedAt = time.Now()
	n.version++
}
