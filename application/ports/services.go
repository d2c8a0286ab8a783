package ports

import (
	"context"
	"time"

	"flowstudio/domain/core/valueobjects"
)

// ImageRequest asks the generation service for a still image.
type ImageRequest struct {
	Prompt        string   `json:"prompt"`
	Model         string   `json:"model,omitempty"`
	ReferenceURLs []string `json:"reference_urls,omitempty"`
}

// VideoRequest asks the generation service for a clip. Frame URLs are
// optional and come from images wired into the frame handles.
type VideoRequest struct {
	Prompt        string `json:"prompt"`
	Model         string `json:"model,omitempty"`
	FirstFrameURL string `json:"first_frame_url,omitempty"`
	LastFrameURL  string `json:"last_frame_url,omitempty"`
}

// ModelRequest asks the generation service for a 3d model.
type ModelRequest struct {
	Prompt   string `json:"prompt,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

// GenerationResult is what a finished generation produced.
type GenerationResult struct {
	URL     string `json:"url"`
	AssetID string `json:"asset_id,omitempty"`
}

// GenerationService produces media. Implementations are remote and slow;
// every call honours ctx cancellation.
type GenerationService interface {
	GenerateImage(ctx context.Context, req ImageRequest) (GenerationResult, error)
	GenerateVideo(ctx context.Context, req VideoRequest) (GenerationResult, error)
	GenerateModel(ctx context.Context, req ModelRequest) (GenerationResult, error)
	RemoveBackground(ctx context.Context, imageURL string) (GenerationResult, error)
}

// Asset is a stored piece of media.
type Asset struct {
	ID        string                `json:"id"`
	NodeID    string                `json:"node_id,omitempty"`
	Name      string                `json:"name"`
	Type      valueobjects.NodeType `json:"type"`
	URL       string                `json:"url"`
	CreatedAt time.Time             `json:"created_at"`
	UpdatedAt time.Time             `json:"updated_at"`
}

// AssetService stores media produced by the workflow.
type AssetService interface {
	List(ctx context.Context) ([]Asset, error)
	Get(ctx context.Context, id string) (Asset, error)
	Save(ctx context.Context, asset Asset) (Asset, error)
	Update(ctx context.Context, asset Asset) error
	Delete(ctx context.Context, id string) error
}

// Task is a unit of asynchronous work bound to one node.
type Task struct {
	ID       string
	NodeID   string
	Execute  func(ctx context.Context) error
	Callback func(id string, err error)
}

// TaskRunner executes tasks off the caller's goroutine.
type TaskRunner interface {
	Submit(ctx context.Context, task Task) error
}
