package aggregates

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"flowstudio/domain/config"
	"flowstudio/domain/core/entities"
	"flowstudio/domain/core/validators"
	"flowstudio/domain/core/valueobjects"
	"flowstudio/domain/events"
	pkgerrors "flowstudio/pkg/errors"
)

// Rejections returned by the graph. Match them with errors.Is.
var (
	ErrNodeNotFound         = pkgerrors.ErrNodeNotFound
	ErrEdgeNotFound         = pkgerrors.ErrEdgeNotFound
	ErrConnectionNotAllowed = pkgerrors.ErrConnectionNotAllowed
	ErrHandleOccupied       = pkgerrors.ErrHandleOccupied
	ErrSelfConnection       = pkgerrors.ErrSelfConnection
	ErrDuplicateEdge        = pkgerrors.ErrDuplicateEdge
	ErrStaleCompletion      = pkgerrors.ErrStaleCompletion
	ErrNodeLimitReached     = pkgerrors.ErrNodeLimitReached
	ErrEdgeLimitReached     = pkgerrors.ErrEdgeLimitReached
)

// GraphID represents a unique graph identifier
type GraphID string

// NewGraphID creates a new random GraphID
func NewGraphID() GraphID {
	return GraphID(uuid.New().String())
}

// String returns the string representation
func (id GraphID) String() string {
	return string(id)
}

// Edge is a directed connection between two live nodes
type Edge struct {
	ID           string              `json:"id"`
	Source       valueobjects.NodeID `json:"source"`
	Target       valueobjects.NodeID `json:"target"`
	SourceHandle valueobjects.Handle `json:"sourceHandle,omitempty"`
	TargetHandle valueobjects.Handle `json:"targetHandle,omitempty"`
	CreatedAt    time.Time           `json:"createdAt"`
}

// Touches reports whether the node is either endpoint of the edge
func (e Edge) Touches(id valueobjects.NodeID) bool {
	return e.Source.Equals(id) || e.Target.Equals(id)
}

// Graph is the aggregate root of the workflow. It owns every node and
// edge and is safe for concurrent use.
type Graph struct {
	mu sync.RWMutex

	id        GraphID
	nodes     map[valueobjects.NodeID]*entities.Node
	edges     map[string]*Edge
	edgeOrder []string

	ids       *valueobjects.IDGenerator
	validator *validators.ConnectionValidator
	config    *config.DomainConfig

	createdAt time.Time
	updatedAt time.Time
	version   int
	events    []events.DomainEvent
}

// NewGraph creates an empty graph. Nil arguments fall back to defaults.
func NewGraph(validator *validators.ConnectionValidator, cfg *config.DomainConfig) *Graph {
	return NewGraphWithIDs(validator, cfg, valueobjects.NewIDGenerator())
}

// NewGraphWithIDs creates an empty graph issuing node ids from ids.
func NewGraphWithIDs(validator *validators.ConnectionValidator, cfg *config.DomainConfig, ids *valueobjects.IDGenerator) *Graph {
	if validator == nil {
		validator = validators.NewConnectionValidator()
	}
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}
	if ids == nil {
		ids = valueobjects.NewIDGenerator()
	}

	now := time.Now()
	return &Graph{
		id:        NewGraphID(),
		nodes:     make(map[valueobjects.NodeID]*entities.Node),
		edges:     make(map[string]*Edge),
		ids:       ids,
		validator: validator,
		config:    cfg,
		createdAt: now,
		updatedAt: now,
		version:   1,
	}
}

// ID returns the graph's unique identifier
func (g *Graph) ID() GraphID {
	return g.id
}

// Version returns the number of applied mutations
func (g *Graph) Version() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.version
}

// AddNode creates a node of the given type and returns its fresh id. A
// nil payload starts from the empty payload for the type.
func (g *Graph) AddNode(nodeType valueobjects.NodeType, data valueobjects.NodeData) (valueobjects.NodeID, error) {
	if !nodeType.IsValid() {
		return valueobjects.NodeID{}, pkgerrors.ErrInvalidNodeType.New().WithDetail("type", string(nodeType))
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.nodes) >= g.config.MaxNodesPerGraph {
		return valueobjects.NodeID{}, ErrNodeLimitReached.New().WithDetail("limit", g.config.MaxNodesPerGraph)
	}

	id := g.ids.Next(nodeType)
	node, err := entities.NewNode(id, nodeType, data)
	if err != nil {
		return valueobjects.NodeID{}, err
	}

	g.nodes[id] = node
	g.mutated()
	g.addEvent(events.NewNodeAdded(g.id.String(), g.version, id, nodeType, g.updatedAt))
	return id, nil
}

// RemoveNode deletes the node together with every incident edge. It
// returns the ids of the removed edges and false when the node is absent.
func (g *Graph) RemoveNode(id valueobjects.NodeID) ([]string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	node, ok := g.nodes[id]
	if !ok {
		return nil, false
	}

	var removed []string
	kept := g.edgeOrder[:0]
	for _, edgeID := range g.edgeOrder {
		if g.edges[edgeID].Touches(id) {
			delete(g.edges, edgeID)
			removed = append(removed, edgeID)
			continue
		}
		kept = append(kept, edgeID)
	}
	g.edgeOrder = kept

	node.MarkDeleted()
	delete(g.nodes, id)
	g.mutated()
	g.addEvent(events.NewNodeRemoved(g.id.String(), g.version, id, removed, g.updatedAt))
	return removed, true
}

// UpdateNodeData merges patch into the node payload. It reports false when
// the node is absent.
func (g *Graph) UpdateNodeData(id valueobjects.NodeID, patch valueobjects.DataPatch) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	node, ok := g.nodes[id]
	if !ok {
		return false
	}
	if patch.IsEmpty() {
		return true
	}
	if err := node.ApplyPatch(patch); err != nil {
		return false
	}

	g.mutated()
	g.addEvent(events.NewNodeDataUpdated(g.id.String(), g.version, id, patch, g.updatedAt))
	return true
}

// SetEditing toggles the node's exclusive-edit flag.
func (g *Graph) SetEditing(id valueobjects.NodeID, editing bool) bool {
	return g.withNode(id, func(n *entities.Node) error { return n.SetEditing(editing) })
}

// MarkReplacing flags the node as waiting for new source media.
func (g *Graph) MarkReplacing(id valueobjects.NodeID) bool {
	return g.withNode(id, func(n *entities.Node) error { return n.MarkReplacing() })
}

func (g *Graph) withNode(id valueobjects.NodeID, fn func(*entities.Node) error) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	node, ok := g.nodes[id]
	if !ok {
		return false
	}
	if err := fn(node); err != nil {
		return false
	}
	g.mutated()
	return true
}

// AddEdge connects source to target. A rejected edge leaves the graph
// exactly as it was and is reported through one of the Err* values.
func (g *Graph) AddEdge(source, target valueobjects.NodeID, sourceHandle, targetHandle valueobjects.Handle) (Edge, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	src, ok := g.nodes[source]
	if !ok {
		return Edge{}, ErrNodeNotFound.New().WithDetail("node_id", source.String())
	}
	dst, ok := g.nodes[target]
	if !ok {
		return Edge{}, ErrNodeNotFound.New().WithDetail("node_id", target.String())
	}
	if source.Equals(target) && !g.config.AllowSelfConnections {
		return Edge{}, ErrSelfConnection.New()
	}
	if !g.validator.IsAllowed(src.Type(), dst.Type(), targetHandle) {
		return Edge{}, ErrConnectionNotAllowed.New().
			WithDetail("source_type", string(src.Type())).
			WithDetail("target_type", string(dst.Type())).
			WithDetail("handle", string(targetHandle))
	}

	for _, e := range g.edges {
		if !e.Target.Equals(target) || e.TargetHandle != targetHandle {
			continue
		}
		if e.Source.Equals(source) && e.SourceHandle == sourceHandle && !g.config.AllowDuplicateEdges {
			return Edge{}, ErrDuplicateEdge.New().WithDetail("edge_id", e.ID)
		}
		// First connection wins; replacing it is an explicit disconnect.
		if g.validator.IsSingleInput(targetHandle) {
			return Edge{}, ErrHandleOccupied.New().
				WithDetail("handle", string(targetHandle)).
				WithDetail("edge_id", e.ID)
		}
	}

	if len(g.edges) >= g.config.MaxEdgesPerGraph {
		return Edge{}, ErrEdgeLimitReached.New().WithDetail("limit", g.config.MaxEdgesPerGraph)
	}

	edge := &Edge{
		ID:           uuid.New().String(),
		Source:       source,
		Target:       target,
		SourceHandle: sourceHandle,
		TargetHandle: targetHandle,
		CreatedAt:    time.Now(),
	}
	g.edges[edge.ID] = edge
	g.edgeOrder = append(g.edgeOrder, edge.ID)
	g.mutated()
	g.addEvent(events.NewEdgeAdded(g.id.String(), g.version, edge.ID, source, target, targetHandle, g.updatedAt))
	return *edge, nil
}

// RemoveEdge deletes the edge. It reports false when the edge is absent.
func (g *Graph) RemoveEdge(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	edge, ok := g.edges[id]
	if !ok {
		return false
	}
	delete(g.edges, id)
	if i := slices.Index(g.edgeOrder, id); i >= 0 {
		g.edgeOrder = slices.Delete(g.edgeOrder, i, i+1)
	}
	g.mutated()
	g.addEvent(events.NewEdgeRemoved(g.id.String(), g.version, id, edge.Source, edge.Target, g.updatedAt))
	return true
}

// BeginOperation moves the node into generating and returns the token its
// completion must present. A new operation supersedes the previous one.
func (g *Graph) BeginOperation(id valueobjects.NodeID) (uint64, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	node, ok := g.nodes[id]
	if !ok {
		return 0, false
	}
	token, err := node.BeginOperation()
	if err != nil {
		return 0, false
	}
	g.mutated()
	g.addEvent(events.NewOperationStarted(g.id.String(), g.version, id, token, g.updatedAt))
	return token, true
}

// CompleteOperation applies the result of the operation identified by
// token. Liveness and token are checked in the same critical section as
// the write, so a completion for a deleted or superseded operation never
// lands; it is reported as ErrStaleCompletion.
func (g *Graph) CompleteOperation(id valueobjects.NodeID, token uint64, result valueobjects.DataPatch, opErr error) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	node, ok := g.nodes[id]
	if !ok || !node.CompleteOperation(token, result, opErr) {
		g.addEvent(events.NewOperationDiscarded(g.id.String(), g.version, id, token, time.Now()))
		return ErrStaleCompletion.New().
			WithDetail("node_id", id.String()).
			WithDetail("token", token)
	}

	g.mutated()
	g.addEvent(events.NewOperationCompleted(g.id.String(), g.version, id, token, opErr, g.updatedAt))
	return nil
}

// CancelOperation invalidates the node's in-flight operation, if any.
func (g *Graph) CancelOperation(id valueobjects.NodeID) bool {
	return g.withNode(id, func(n *entities.Node) error {
		n.CancelOperation()
		return nil
	})
}

// Node returns a read-only view of the node.
func (g *Graph) Node(id valueobjects.NodeID) (NodeView, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	node, ok := g.nodes[id]
	if !ok {
		return NodeView{}, false
	}
	return newNodeView(node), true
}

// HasNode reports whether the node is live.
func (g *Graph) HasNode(id valueobjects.NodeID) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.nodes[id]
	return ok
}

// Nodes returns every live node in creation order.
func (g *Graph) Nodes() []NodeView {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.nodeViews()
}

// Edges returns every edge in insertion order.
func (g *Graph) Edges() []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.edgeViews(func(Edge) bool { return true })
}

// IncomingEdges returns the edges ending at id.
func (g *Graph) IncomingEdges(id valueobjects.NodeID) []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.edgeViews(func(e Edge) bool { return e.Target.Equals(id) })
}

// Upstream returns the source node of the first edge entering id on the
// given handle.
func (g *Graph) Upstream(id valueobjects.NodeID, handle valueobjects.Handle) (NodeView, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for _, edgeID := range g.edgeOrder {
		e := g.edges[edgeID]
		if !e.Target.Equals(id) || e.TargetHandle != handle {
			continue
		}
		if src, ok := g.nodes[e.Source]; ok {
			return newNodeView(src), true
		}
	}
	return NodeView{}, false
}

// Snapshot returns a consistent copy of the whole graph.
func (g *Graph) Snapshot() GraphView {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return GraphView{
		ID:        g.id.String(),
		Version:   g.version,
		Nodes:     g.nodeViews(),
		Edges:     g.edgeViews(func(Edge) bool { return true }),
		UpdatedAt: g.updatedAt,
	}
}

// Validate checks the structural invariants: every edge joins two live
// nodes and the edge index matches the edge set.
func (g *Graph) Validate() error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if len(g.edgeOrder) != len(g.edges) {
		return fmt.Errorf("edge index has %d entries for %d edges", len(g.edgeOrder), len(g.edges))
	}
	for _, id := range g.edgeOrder {
		e, ok := g.edges[id]
		if !ok {
			return fmt.Errorf("edge index references unknown edge %s", id)
		}
		if _, ok := g.nodes[e.Source]; !ok {
			return fmt.Errorf("edge %s has dangling source %s", id, e.Source)
		}
		if _, ok := g.nodes[e.Target]; !ok {
			return fmt.Errorf("edge %s has dangling target %s", id, e.Target)
		}
	}
	for id, n := range g.nodes {
		if n.IsDeleted() {
			return fmt.Errorf("node %s is deleted but still in graph", id)
		}
		if b := n.Data().Base(); b.IsLoading && b.Error != "" {
			return fmt.Errorf("node %s is both loading and failed", id)
		}
	}
	return nil
}

// GetUncommittedEvents returns all uncommitted domain events
func (g *Graph) GetUncommittedEvents() []events.DomainEvent {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return slices.Clone(g.events)
}

// PullEvents returns the uncommitted events and clears them in one step.
func (g *Graph) PullEvents() []events.DomainEvent {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := g.events
	g.events = nil
	return out
}

func (g *Graph) nodeViews() []NodeView {
	views := make([]NodeView, 0, len(g.nodes))
	for _, n := range g.nodes {
		views = append(views, newNodeView(n))
	}
	slices.SortFunc(views, func(a, b NodeView) int {
		switch {
		case a.ID.Before(b.ID):
			return -1
		case b.ID.Before(a.ID):
			return 1
		default:
			return 0
		}
	})
	return views
}

func (g *Graph) edgeViews(keep func(Edge) bool) []Edge {
	out := make([]Edge, 0, len(g.edgeOrder))
	for _, id := range g.edgeOrder {
		if e := *g.edges[id]; keep(e) {
			out = append(out, e)
		}
	}
	return out
}

func (g *Graph) mutated() {
	g.updatedAt = time.Now()
	g.version++
}

func (g *Graph) addEvent(event events.DomainEvent) {
	g.events = append(g.events, event)
}
