package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"flowstudio/application/ports"
	"flowstudio/domain/config"
	"flowstudio/domain/core/aggregates"
	"flowstudio/domain/core/valueobjects"
	pkgerrors "flowstudio/pkg/errors"
	"flowstudio/pkg/observability"
)

// Operation kinds, used as metric labels and span names.
const (
	KindImage             = "image"
	KindVideo             = "video"
	KindModel             = "3d"
	KindBackgroundRemoval = "background_removal"
	KindDownload          = "download"
)

// DispatcherDeps are the collaborators of a Dispatcher. Only Graph is
// required; missing services make the intents that need them fail with
// ErrServiceUnavailable.
type DispatcherDeps struct {
	Graph     *aggregates.Graph
	Generator ports.GenerationService
	Assets    ports.AssetService
	Renderer  ports.Renderer
	Runner    ports.TaskRunner
	Events    ports.EventPublisher
	Metrics   *observability.Collector
	Config    *config.DomainConfig
}

type runningTask struct {
	id     string
	token  uint64
	cancel context.CancelFunc
}

// Dispatcher turns editor intents into graph mutations and runs the
// asynchronous work some of them start. Every deferred result goes through
// Graph.CompleteOperation, which discards it when its node was deleted or
// its operation superseded.
type Dispatcher struct {
	graph     *aggregates.Graph
	generator ports.GenerationService
	assets    ports.AssetService
	renderer  ports.Renderer
	runner    ports.TaskRunner
	events    ports.EventPublisher
	metrics   *observability.Collector
	tracer    *observability.Tracer
	config    *config.DomainConfig
	logger    *zap.Logger

	mu      sync.Mutex
	editing valueobjects.NodeID
	tasks   map[valueobjects.NodeID]runningTask
	crops   *cropSessions
}

var _ NodeOperations = (*Dispatcher)(nil)

// NewDispatcher creates a dispatcher over deps.Graph.
func NewDispatcher(deps DispatcherDeps, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Graph == nil {
		deps.Graph = aggregates.NewGraph(nil, deps.Config)
	}
	if deps.Config == nil {
		deps.Config = config.DefaultDomainConfig()
	}
	if deps.Metrics == nil {
		deps.Metrics = observability.NewCollector("flowstudio")
	}
	if deps.Runner == nil {
		deps.Runner = goroutineRunner{}
	}

	d := &Dispatcher{
		graph:     deps.Graph,
		generator: deps.Generator,
		assets:    deps.Assets,
		renderer:  deps.Renderer,
		runner:    deps.Runner,
		events:    deps.Events,
		metrics:   deps.Metrics,
		tracer:    observability.NewTracer("flowstudio/dispatcher"),
		config:    deps.Config,
		logger:    logger,
		tasks:     make(map[valueobjects.NodeID]runningTask),
	}
	d.crops = newCropSessions(d)
	return d
}

// Graph returns the store the dispatcher mutates.
func (d *Dispatcher) Graph() *aggregates.Graph {
	return d.graph
}

// HandleAddNode creates a node.
func (d *Dispatcher) HandleAddNode(nodeType valueobjects.NodeType, data valueobjects.NodeData) (valueobjects.NodeID, error) {
	id, err := d.graph.AddNode(nodeType, data)
	if err != nil {
		return valueobjects.NodeID{}, err
	}
	d.metrics.NodesCreated.Inc()
	d.logger.Debug("Node added", zap.String("nodeID", id.String()), zap.String("type", string(nodeType)))
	d.publish(context.Background())
	return id, nil
}

// HandleConnect adds an edge. A refused edge leaves the graph unchanged and
// is returned as a value for the caller to ignore or surface.
func (d *Dispatcher) HandleConnect(source, target valueobjects.NodeID, sourceHandle, targetHandle valueobjects.Handle) (aggregates.Edge, error) {
	edge, err := d.graph.AddEdge(source, target, sourceHandle, targetHandle)
	if err != nil {
		reason := "unknown"
		if de := pkgerrors.GetDomainError(err); de != nil {
			reason = de.Code
		}
		d.metrics.EdgesRejected.WithLabelValues(reason).Inc()
		d.logger.Debug("Connection refused",
			zap.String("source", source.String()),
			zap.String("target", target.String()),
			zap.String("handle", string(targetHandle)),
			zap.String("reason", reason),
		)
		return aggregates.Edge{}, err
	}

	d.metrics.EdgesCreated.Inc()
	d.publish(context.Background())
	return edge, nil
}

// HandleDisconnect removes an edge.
func (d *Dispatcher) HandleDisconnect(edgeID string) error {
	if !d.graph.RemoveEdge(edgeID) {
		return aggregates.ErrEdgeNotFound.New().WithDetail("edge_id", edgeID)
	}
	d.publish(context.Background())
	return nil
}

// HandleReplace flags the node as awaiting new source media. The media
// itself changes only when the next update lands.
func (d *Dispatcher) HandleReplace(id valueobjects.NodeID) error {
	if !d.graph.MarkReplacing(id) {
		return d.absent("replace", id)
	}
	return nil
}

// HandleImageUpdate sets the node's media directly, settling any running
// operation on it.
func (d *Dispatcher) HandleImageUpdate(id valueobjects.NodeID, url string) error {
	ok := d.graph.UpdateNodeData(id, valueobjects.DataPatch{
		MediaURL:  &url,
		IsLoading: valueobjects.Ptr(false),
		Error:     valueobjects.Ptr(""),
	})
	if !ok {
		return d.absent("image_update", id)
	}
	d.cancelTask(id)
	d.publish(context.Background())
	return nil
}

// HandleDelete removes the node and its edges. Its running task is
// cancelled, and any completion that still arrives is discarded.
func (d *Dispatcher) HandleDelete(id valueobjects.NodeID) error {
	edges, ok := d.graph.RemoveNode(id)
	d.cancelTask(id)
	d.crops.end(id)

	d.mu.Lock()
	if d.editing.Equals(id) {
		d.editing = valueobjects.NodeID{}
	}
	d.mu.Unlock()

	if !ok {
		return d.absent("delete", id)
	}
	d.metrics.NodesDeleted.Inc()
	d.logger.Debug("Node deleted", zap.String("nodeID", id.String()), zap.Int("edgesRemoved", len(edges)))
	d.publish(context.Background())
	return nil
}

// HandleCropComplete stores the cropped media on the node and drops the
// node's crop session with its history. A result for a deleted node is
// discarded.
func (d *Dispatcher) HandleCropComplete(id valueobjects.NodeID, croppedURL string) error {
	ok := d.graph.UpdateNodeData(id, valueobjects.DataPatch{
		MediaURL:  &croppedURL,
		IsLoading: valueobjects.Ptr(false),
		Error:     valueobjects.Ptr(""),
	})
	d.crops.end(id)
	if !ok {
		return d.absent("crop_complete", id)
	}
	d.metrics.CropOperations.WithLabelValues("commit").Inc()
	d.publish(context.Background())
	return nil
}

// HandleFontTypeChange sets the font of a text node.
func (d *Dispatcher) HandleFontTypeChange(id valueobjects.NodeID, fontType string) error {
	return d.patch("font_type", id, valueobjects.DataPatch{FontType: &fontType})
}

// HandleBackgroundColorChange sets the node's background colour.
func (d *Dispatcher) HandleBackgroundColorChange(id valueobjects.NodeID, color string) error {
	return d.patch("background_color", id, valueobjects.DataPatch{BackgroundColor: &color})
}

// HandleEditingChange toggles exclusive-edit mode. At most one node edits
// at a time; entering edit mode evicts the previous holder.
func (d *Dispatcher) HandleEditingChange(id valueobjects.NodeID, editing bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.graph.HasNode(id) {
		return d.absent("editing", id)
	}

	if !editing {
		d.graph.SetEditing(id, false)
		if d.editing.Equals(id) {
			d.editing = valueobjects.NodeID{}
		}
		return nil
	}

	if prev := d.editing; !prev.IsZero() && !prev.Equals(id) {
		d.graph.SetEditing(prev, false)
		d.logger.Debug("Editing holder evicted", zap.String("previous", prev.String()), zap.String("next", id.String()))
	}
	if !d.graph.SetEditing(id, true) {
		return d.absent("editing", id)
	}
	d.editing = id
	return nil
}

// Editing returns the node currently in exclusive-edit mode.
func (d *Dispatcher) Editing() (valueobjects.NodeID, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.editing, !d.editing.IsZero()
}

// HandleGenerate starts generating media for the node and returns once the
// work is queued. Inputs come from the node and its upstream edges: the
// prompt from an upstream text node on the prompt handle, video frames
// from the frame handles. A newer generation supersedes a running one.
func (d *Dispatcher) HandleGenerate(ctx context.Context, id valueobjects.NodeID, opts GenerateOptions) error {
	if d.generator == nil {
		return pkgerrors.ErrServiceUnavailable.New().WithDetail("service", "generation")
	}
	node, ok := d.graph.Node(id)
	if !ok {
		return d.absent("generate", id)
	}

	kind, work, err := d.generationWork(node, opts)
	if err != nil {
		return err
	}

	var inputs valueobjects.DataPatch
	if opts.Prompt != "" {
		inputs.Prompt = &opts.Prompt
	}
	if opts.Model != "" {
		inputs.Model = &opts.Model
	}
	d.graph.UpdateNodeData(id, inputs)
	d.cancelTask(id)
	return d.start(ctx, id, kind, work)
}

func (d *Dispatcher) generationWork(node aggregates.NodeView, opts GenerateOptions) (string, func(context.Context) (valueobjects.DataPatch, error), error) {
	if opts.Prompt == "" {
		opts.Prompt = valueobjects.PromptOf(node.Data)
	}
	if opts.Prompt == "" {
		if up, ok := d.graph.Upstream(node.ID, valueobjects.HandlePrompt); ok {
			opts.Prompt = valueobjects.PromptOf(up.Data)
		}
	}

	switch node.Type {
	case valueobjects.NodeTypeImage:
		if opts.Prompt == "" {
			return "", nil, pkgerrors.ErrMissingPrompt.New()
		}
		req := ports.ImageRequest{
			Prompt:        opts.Prompt,
			Model:         firstNonEmpty(opts.Model, modelOf(node.Data), d.config.DefaultImageModel),
			ReferenceURLs: d.upstreamMedia(node.ID, valueobjects.HandleReference),
		}
		return KindImage, func(ctx context.Context) (valueobjects.DataPatch, error) {
			res, err := d.generator.GenerateImage(ctx, req)
			return resultPatch(res, req.Model), err
		}, nil

	case valueobjects.NodeTypeVideo:
		req := ports.VideoRequest{
			Prompt: opts.Prompt,
			Model:  firstNonEmpty(opts.Model, modelOf(node.Data), d.config.DefaultVideoModel),
		}
		if urls := d.upstreamMedia(node.ID, valueobjects.HandleFirstFrame); len(urls) > 0 {
			req.FirstFrameURL = urls[0]
		}
		if urls := d.upstreamMedia(node.ID, valueobjects.HandleLastFrame); len(urls) > 0 {
			req.LastFrameURL = urls[0]
		}
		if req.Prompt == "" && req.FirstFrameURL == "" {
			return "", nil, pkgerrors.ErrMissingPrompt.New()
		}
		return KindVideo, func(ctx context.Context) (valueobjects.DataPatch, error) {
			res, err := d.generator.GenerateVideo(ctx, req)
			return resultPatch(res, req.Model), err
		}, nil

	case valueobjects.NodeType3D:
		req := ports.ModelRequest{Prompt: opts.Prompt}
		if urls := d.upstreamMedia(node.ID, valueobjects.HandleDefault); len(urls) > 0 {
			req.ImageURL = urls[0]
		}
		if req.Prompt == "" && req.ImageURL == "" {
			return "", nil, pkgerrors.ErrMissingPrompt.New()
		}
		return KindModel, func(ctx context.Context) (valueobjects.DataPatch, error) {
			res, err := d.generator.GenerateModel(ctx, req)
			return resultPatch(res, ""), err
		}, nil
	}

	return "", nil, pkgerrors.ErrNotGeneratable.New().WithDetail("type", string(node.Type))
}

// HandleBackgroundRemove replaces an image node's media with a version
// without background. The call runs asynchronously.
func (d *Dispatcher) HandleBackgroundRemove(ctx context.Context, id valueobjects.NodeID) error {
	if d.generator == nil {
		return pkgerrors.ErrServiceUnavailable.New().WithDetail("service", "generation")
	}
	node, ok := d.graph.Node(id)
	if !ok {
		return d.absent("background_removal", id)
	}
	if node.InFlight {
		return pkgerrors.ErrOperationInFlight.New().WithDetail("node_id", id.String())
	}
	src := node.Data.MediaURL()
	if node.Type != valueobjects.NodeTypeImage || src == "" {
		return pkgerrors.ErrNoSourceMedia.New().WithDetail("node_id", id.String())
	}

	return d.start(ctx, id, KindBackgroundRemoval, func(ctx context.Context) (valueobjects.DataPatch, error) {
		res, err := d.generator.RemoveBackground(ctx, src)
		return resultPatch(res, ""), err
	})
}

// HandleDownload stores the node's media as an asset and links it to the
// node. The node shows loading while the store runs and the error if it
// fails; the error is returned as well.
func (d *Dispatcher) HandleDownload(ctx context.Context, id valueobjects.NodeID) (ports.Asset, error) {
	if d.assets == nil {
		return ports.Asset{}, pkgerrors.ErrServiceUnavailable.New().WithDetail("service", "assets")
	}
	node, ok := d.graph.Node(id)
	if !ok {
		return ports.Asset{}, notFound(id)
	}
	if node.InFlight {
		return ports.Asset{}, pkgerrors.ErrOperationInFlight.New().WithDetail("node_id", id.String())
	}
	url := node.Data.MediaURL()
	if url == "" {
		return ports.Asset{}, pkgerrors.ErrNoSourceMedia.New().WithDetail("node_id", id.String())
	}

	token, ok := d.graph.BeginOperation(id)
	if !ok {
		return ports.Asset{}, notFound(id)
	}
	d.publish(ctx)

	start := time.Now()
	var asset ports.Asset
	err := d.tracer.TraceFunction(ctx, "dispatcher."+KindDownload, func(ctx context.Context) error {
		var err error
		asset, err = d.assets.Save(ctx, ports.Asset{
			ID:     uuid.New().String(),
			NodeID: id.String(),
			Name:   node.Data.Base().Label,
			Type:   node.Type,
			URL:    url,
		})
		return err
	}, attribute.String("node.id", id.String()))

	patch := valueobjects.DataPatch{}
	if err == nil {
		patch.AssetID = &asset.ID
	}
	d.complete(ctx, id, token, KindDownload, start, patch, err)
	if err != nil {
		return ports.Asset{}, pkgerrors.Wrap(err, "store asset")
	}
	return asset, nil
}

// HandleAssetSelect sets the node's media from a stored asset and links
// the asset to it, settling any running operation like HandleImageUpdate.
// The asset must hold media of the node's type.
func (d *Dispatcher) HandleAssetSelect(ctx context.Context, id valueobjects.NodeID, assetID string) error {
	if d.assets == nil {
		return pkgerrors.ErrServiceUnavailable.New().WithDetail("service", "assets")
	}
	node, ok := d.graph.Node(id)
	if !ok {
		return d.absent("asset_select", id)
	}

	asset, err := d.assets.Get(ctx, assetID)
	if err != nil {
		return pkgerrors.Wrap(err, "load asset")
	}
	if asset.Type != node.Type {
		return pkgerrors.NewValidationError(fmt.Sprintf("asset %s holds %s media, node is %s", asset.ID, asset.Type, node.Type))
	}

	ok = d.graph.UpdateNodeData(id, valueobjects.DataPatch{
		MediaURL:  &asset.URL,
		AssetID:   &asset.ID,
		IsLoading: valueobjects.Ptr(false),
		Error:     valueobjects.Ptr(""),
	})
	if !ok {
		return d.absent("asset_select", id)
	}
	d.cancelTask(id)
	d.logger.Debug("Asset selected", zap.String("nodeID", id.String()), zap.String("assetID", asset.ID))
	d.publish(ctx)
	return nil
}

// start moves the node into generating and queues work. The task outlives
// the request that started it; deleting the node, setting its media
// directly or superseding the operation cancels it.
func (d *Dispatcher) start(ctx context.Context, id valueobjects.NodeID, kind string, work func(context.Context) (valueobjects.DataPatch, error)) error {
	token, ok := d.graph.BeginOperation(id)
	if !ok {
		return d.absent(kind, id)
	}

	taskCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.config.GenerationTimeout)
	task := runningTask{id: uuid.New().String(), token: token, cancel: cancel}

	d.mu.Lock()
	if prev, ok := d.tasks[id]; ok {
		prev.cancel()
		d.metrics.OperationsInFlight.Dec()
	}
	d.tasks[id] = task
	d.metrics.OperationsInFlight.Inc()
	d.mu.Unlock()

	d.publish(ctx)

	err := d.runner.Submit(ctx, ports.Task{
		ID:     task.id,
		NodeID: id.String(),
		Execute: func(poolCtx context.Context) error {
			stop := context.AfterFunc(poolCtx, cancel)
			defer stop()
			defer d.finishTask(id, task.id)

			started := time.Now()
			var patch valueobjects.DataPatch
			err := d.tracer.TraceFunction(taskCtx, "dispatcher."+kind, func(ctx context.Context) error {
				var err error
				patch, err = work(ctx)
				return err
			}, attribute.String("node.id", id.String()), attribute.String("task.id", task.id))
			if errors.Is(err, context.DeadlineExceeded) {
				err = pkgerrors.NewTimeoutError(kind).WithCause(err)
			}
			d.complete(taskCtx, id, token, kind, started, patch, err)
			return err
		},
	})
	if err != nil {
		d.finishTask(id, task.id)
		d.graph.CompleteOperation(id, token, valueobjects.DataPatch{}, err)
		d.publish(ctx)
		return pkgerrors.Wrap(err, "queue "+kind)
	}

	d.logger.Debug("Operation queued",
		zap.String("nodeID", id.String()),
		zap.String("kind", kind),
		zap.String("taskID", task.id),
	)
	return nil
}

// complete lands a result through the graph's token check.
func (d *Dispatcher) complete(ctx context.Context, id valueobjects.NodeID, token uint64, kind string, started time.Time, patch valueobjects.DataPatch, opErr error) {
	d.metrics.OperationDuration.WithLabelValues(kind).Observe(time.Since(started).Seconds())

	if err := d.graph.CompleteOperation(id, token, patch, opErr); err != nil {
		d.metrics.StaleCompletions.Inc()
		d.metrics.Operations.WithLabelValues(kind, "discarded").Inc()
		d.logger.Debug("Discarded stale completion",
			zap.String("nodeID", id.String()),
			zap.String("kind", kind),
			zap.Uint64("token", token),
		)
		d.publish(ctx)
		return
	}

	if opErr != nil {
		d.metrics.Operations.WithLabelValues(kind, "failed").Inc()
		d.logger.Warn("Node operation failed",
			zap.String("nodeID", id.String()),
			zap.String("kind", kind),
			zap.Error(opErr),
		)
	} else {
		d.metrics.Operations.WithLabelValues(kind, "succeeded").Inc()
	}
	d.publish(ctx)
}

func (d *Dispatcher) finishTask(id valueobjects.NodeID, taskID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t, ok := d.tasks[id]; ok && t.id == taskID {
		t.cancel()
		delete(d.tasks, id)
		d.metrics.OperationsInFlight.Dec()
	}
}

// cancelTask cancels the node's running task, if any.
func (d *Dispatcher) cancelTask(id valueobjects.NodeID) {
	d.mu.Lock()
	t, ok := d.tasks[id]
	if ok {
		delete(d.tasks, id)
		d.metrics.OperationsInFlight.Dec()
	}
	d.mu.Unlock()

	if ok {
		t.cancel()
		d.logger.Debug("Operation cancelled", zap.String("nodeID", id.String()), zap.String("taskID", t.id))
	}
}

// InFlight returns the number of running tasks.
func (d *Dispatcher) InFlight() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.tasks)
}

// SetMaxHistorySteps changes the crop history depth for the live session
// and every later one.
func (d *Dispatcher) SetMaxHistorySteps(n int) {
	d.crops.setMaxSteps(n)
}

// Close cancels every running task and tears down the crop session.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	tasks := d.tasks
	d.tasks = make(map[valueobjects.NodeID]runningTask)
	d.mu.Unlock()

	for _, t := range tasks {
		t.cancel()
		d.metrics.OperationsInFlight.Dec()
	}
	d.crops.close()
}

func (d *Dispatcher) patch(intent string, id valueobjects.NodeID, p valueobjects.DataPatch) error {
	if !d.graph.UpdateNodeData(id, p) {
		return d.absent(intent, id)
	}
	d.publish(context.Background())
	return nil
}

func (d *Dispatcher) upstreamMedia(id valueobjects.NodeID, handle valueobjects.Handle) []string {
	var urls []string
	for _, e := range d.graph.IncomingEdges(id) {
		if e.TargetHandle != handle {
			continue
		}
		if src, ok := d.graph.Node(e.Source); ok && src.Data.MediaURL() != "" {
			urls = append(urls, src.Data.MediaURL())
		}
	}
	return urls
}

func (d *Dispatcher) publish(ctx context.Context) {
	evts := d.graph.PullEvents()
	if len(evts) == 0 || d.events == nil {
		return
	}
	if err := d.events.PublishBatch(ctx, evts); err != nil {
		d.logger.Warn("Failed to publish domain events", zap.Int("count", len(evts)), zap.Error(err))
	}
}

// absent records an intent that found its node gone. The node may have
// been deleted while the intent was on its way, so this is not an error.
func (d *Dispatcher) absent(intent string, id valueobjects.NodeID) error {
	d.metrics.AbsentNodeIntents.WithLabelValues(intent).Inc()
	d.logger.Debug("Intent on absent node ignored", zap.String("intent", intent), zap.String("nodeID", id.String()))
	return nil
}

func notFound(id valueobjects.NodeID) error {
	return aggregates.ErrNodeNotFound.New().WithDetail("node_id", id.String())
}

func resultPatch(res ports.GenerationResult, model string) valueobjects.DataPatch {
	p := valueobjects.DataPatch{MediaURL: &res.URL}
	if res.AssetID != "" {
		p.AssetID = &res.AssetID
	}
	if model != "" {
		p.Model = &model
	}
	return p
}

func modelOf(d valueobjects.NodeData) string {
	switch v := d.(type) {
	case valueobjects.ImageData:
		return v.Model
	case valueobjects.VideoData:
		return v.Model
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// goroutineRunner runs each task on its own goroutine.
type goroutineRunner struct{}

func (goroutineRunner) Submit(ctx context.Context, task ports.Task) error {
	go func() {
		err := task.Execute(context.Background())
		if task.Callback != nil {
			task.Callback(task.ID, err)
		}
	}()
	return nil
}
