package events

import (
	"time"

	"flowstudio/domain/core/valueobjects"
)

// DomainEvent is the base interface for all domain events
// Events represent something that has happened in the past
type DomainEvent interface {
	GetAggregateID() string
	GetEventType() string
	GetTimestamp() time.Time
	GetVersion() int
}

// BaseEvent provides common event fields
type BaseEvent struct {
	AggregateID string    `json:"aggregate_id"`
	EventType   string    `json:"event_type"`
	Timestamp   time.Time `json:"timestamp"`
	Version     int       `json:"version"`
}

func (e BaseEvent) GetAggregateID() string  { return e.AggregateID }
func (e BaseEvent) GetEventType() string    { return e.EventType }
func (e BaseEvent) GetTimestamp() time.Time { return e.Timestamp }
func (e BaseEvent) GetVersion() int         { return e.Version }

// Event type names
const (
	TypeNodeAdded          = "node.added"
	TypeNodeRemoved        = "node.removed"
	TypeNodeDataUpdated    = "node.data_updated"
	TypeEdgeAdded          = "edge.added"
	TypeEdgeRemoved        = "edge.removed"
	TypeOperationStarted   = "operation.started"
	TypeOperationCompleted = "operation.completed"
	TypeOperationDiscarded = "operation.discarded"
)

func base(aggregateID, eventType string, version int, timestamp time.Time) BaseEvent {
	return BaseEvent{
		AggregateID: aggregateID,
		EventType:   eventType,
		Timestamp:   timestamp,
		Version:     version,
	}
}

// Node Events

// NodeAdded is raised when a node joins the graph
type NodeAdded struct {
	BaseEvent
	NodeID   valueobjects.NodeID   `json:"node_id"`
	NodeType valueobjects.NodeType `json:"node_type"`
}

// NewNodeAdded creates a NodeAdded event
func NewNodeAdded(graphID string, version int, nodeID valueobjects.NodeID, nodeType valueobjects.NodeType, timestamp time.Time) NodeAdded {
	return NodeAdded{
		BaseEvent: base(graphID, TypeNodeAdded, version, timestamp),
		NodeID:    nodeID,
		NodeType:  nodeType,
	}
}

// NodeRemoved is raised when a node and its incident edges leave the graph
type NodeRemoved struct {
	BaseEvent
	NodeID         valueobjects.NodeID `json:"node_id"`
	RemovedEdgeIDs []string            `json:"removed_edge_ids,omitempty"`
}

// NewNodeRemoved creates a NodeRemoved event
func NewNodeRemoved(graphID string, version int, nodeID valueobjects.NodeID, edgeIDs []string, timestamp time.Time) NodeRemoved {
	return NodeRemoved{
		BaseEvent:      base(graphID, TypeNodeRemoved, version, timestamp),
		NodeID:         nodeID,
		RemovedEdgeIDs: edgeIDs,
	}
}

// NodeDataUpdated is raised when a patch is merged into a node payload
type NodeDataUpdated struct {
	BaseEvent
	NodeID valueobjects.NodeID    `json:"node_id"`
	Patch  valueobjects.DataPatch `json:"patch"`
}

// NewNodeDataUpdated creates a NodeDataUpdated event
func NewNodeDataUpdated(graphID string, version int, nodeID valueobjects.NodeID, patch valueobjects.DataPatch, timestamp time.Time) NodeDataUpdated {
	return NodeDataUpdated{
		BaseEvent: base(graphID, TypeNodeDataUpdated, version, timestamp),
		NodeID:    nodeID,
		Patch:     patch,
	}
}

// Edge Events

// EdgeAdded is raised when two nodes are connected
type EdgeAdded struct {
	BaseEvent
	EdgeID       string              `json:"edge_id"`
	SourceID     valueobjects.NodeID `json:"source_id"`
	TargetID     valueobjects.NodeID `json:"target_id"`
	TargetHandle valueobjects.Handle `json:"target_handle,omitempty"`
}

// NewEdgeAdded creates an EdgeAdded event
func NewEdgeAdded(graphID string, version int, edgeID string, source, target valueobjects.NodeID, handle valueobjects.Handle, timestamp time.Time) EdgeAdded {
	return EdgeAdded{
		BaseEvent:    base(graphID, TypeEdgeAdded, version, timestamp),
		EdgeID:       edgeID,
		SourceID:     source,
		TargetID:     target,
		TargetHandle: handle,
	}
}

// EdgeRemoved is raised when a connection is removed explicitly
type EdgeRemoved struct {
	BaseEvent
	EdgeID   string              `json:"edge_id"`
	SourceID valueobjects.NodeID `json:"source_id"`
	TargetID valueobjects.NodeID `json:"target_id"`
}

// NewEdgeRemoved creates an EdgeRemoved event
func NewEdgeRemoved(graphID string, version int, edgeID string, source, target valueobjects.NodeID, timestamp time.Time) EdgeRemoved {
	return EdgeRemoved{
		BaseEvent: base(graphID, TypeEdgeRemoved, version, timestamp),
		EdgeID:    edgeID,
		SourceID:  source,
		TargetID:  target,
	}
}

// Operation Events

// OperationStarted is raised when a node enters generating
type OperationStarted struct {
	BaseEvent
	NodeID valueobjects.NodeID `json:"node_id"`
	Token  uint64              `json:"token"`
}

// NewOperationStarted creates an OperationStarted event
func NewOperationStarted(graphID string, version int, nodeID valueobjects.NodeID, token uint64, timestamp time.Time) OperationStarted {
	return OperationStarted{
		BaseEvent: base(graphID, TypeOperationStarted, version, timestamp),
		NodeID:    nodeID,
		Token:     token,
	}
}

// OperationCompleted is raised when an operation settles its node
type OperationCompleted struct {
	BaseEvent
	NodeID valueobjects.NodeID `json:"node_id"`
	Token  uint64              `json:"token"`
	Failed bool                `json:"failed"`
	Error  string              `json:"error,omitempty"`
}

// NewOperationCompleted creates an OperationCompleted event
func NewOperationCompleted(graphID string, version int, nodeID valueobjects.NodeID, token uint64, opErr error, timestamp time.Time) OperationCompleted {
	e := OperationCompleted{
		BaseEvent: base(graphID, TypeOperationCompleted, version, timestamp),
		NodeID:    nodeID,
		Token:     token,
	}
	if opErr != nil {
		e.Failed = true
		e.Error = opErr.Error()
	}
	return e
}

// OperationDiscarded is raised when a completion arrives for a node that
// was deleted or whose operation was superseded
type OperationDiscarded struct {
	BaseEvent
	NodeID valueobjects.NodeID `json:"node_id"`
	Token  uint64              `json:"token"`
}

// NewOperationDiscarded creates an OperationDiscarded event
func NewOperationDiscarded(graphID string, version int, nodeID valueobjects.NodeID, token uint64, timestamp time.Time) OperationDiscarded {
	return OperationDiscarded{
		BaseEvent: base(graphID, TypeOperationDiscarded, version, timestamp),
		NodeID:    nodeID,
		Token:     token,
	}
}
