package errors

import "fmt"

// DomainErrorType represents the category of domain error
type DomainErrorType string

const (
	// DomainValidationError indicates input validation failure
	DomainValidationError DomainErrorType = "VALIDATION_ERROR"

	// DomainBusinessRuleError indicates a business rule violation
	DomainBusinessRuleError DomainErrorType = "BUSINESS_RULE_ERROR"

	// DomainNotFoundError indicates a resource was not found
	DomainNotFoundError DomainErrorType = "NOT_FOUND"

	// DomainConflictError indicates a conflict with existing state
	DomainConflictError DomainErrorType = "CONFLICT"

	// DomainInfrastructureError indicates an infrastructure-level failure
	DomainInfrastructureError DomainErrorType = "INFRASTRUCTURE_ERROR"

	// DomainUnavailableError indicates a collaborator is not available
	DomainUnavailableError DomainErrorType = "UNAVAILABLE"

	// DomainTimeoutError indicates operation timeout
	DomainTimeoutError DomainErrorType = "TIMEOUT_ERROR"
)

// DomainError represents a domain-specific error with rich context
type DomainError struct {
	Type       DomainErrorType        `json:"type"`
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Cause      error                  `json:"-"`
	Retryable  bool                   `json:"retryable"`
	StatusCode int                    `json:"status_code"`
}

// NewDomainError creates a new domain error
func NewDomainError(errorType DomainErrorType, code string, message string) *DomainError {
	return &DomainError{
		Type:       errorType,
		Code:       code,
		Message:    message,
		Details:    make(map[string]interface{}),
		Retryable:  false,
		StatusCode: domainErrorTypeToStatusCode(errorType),
	}
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Type, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Type, e.Code, e.Message)
}

// New returns a copy of a predefined error that can carry its own details
// and cause. The copy still matches the original under errors.Is.
func (e *DomainError) New() *DomainError {
	cp := *e
	cp.Details = make(map[string]interface{}, len(e.Details))
	for k, v := range e.Details {
		cp.Details[k] = v
	}
	return &cp
}

// WithCause adds a cause to the error
func (e *DomainError) WithCause(cause error) *DomainError {
	e.Cause = cause
	return e
}

// WithDetail adds a detail to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	e.Details[key] = value
	return e
}

// WithRetryable sets whether the error is retryable
func (e *DomainError) WithRetryable(retryable bool) *DomainError {
	e.Retryable = retryable
	return e
}

// Is checks if the error is of a specific type
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Type == t.Type && e.Code == t.Code
}

// Unwrap returns the underlying cause
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// domainErrorTypeToStatusCode maps error types to HTTP status codes
func domainErrorTypeToStatusCode(errorType DomainErrorType) int {
	switch errorType {
	case DomainValidationError:
		return 400 // Bad Request
	case DomainBusinessRuleError:
		return 422 // Unprocessable Entity
	case DomainNotFoundError:
		return 404 // Not Found
	case DomainConflictError:
		return 409 // Conflict
	case DomainUnavailableError:
		return 503 // Service Unavailable
	case DomainTimeoutError:
		return 504 // Gateway Timeout
	default:
		return 500 // Internal Server Error
	}
}

// Predefined domain errors. Return them through New() when attaching
// details so the shared values stay untouched.

var (
	// Node errors
	ErrNodeNotFound = NewDomainError(
		DomainNotFoundError,
		"NODE_NOT_FOUND",
		"The requested node does not exist",
	)

	ErrInvalidNodeType = NewDomainError(
		DomainValidationError,
		"INVALID_NODE_TYPE",
		"Node type must be one of text, image, video or 3d",
	)

	ErrNodeLimitReached = NewDomainError(
		DomainBusinessRuleError,
		"NODE_LIMIT_REACHED",
		"Maximum number of nodes in graph reached",
	)

	ErrNoSourceMedia = NewDomainError(
		DomainBusinessRuleError,
		"NO_SOURCE_MEDIA",
		"The node has no media to operate on",
	)

	ErrMissingPrompt = NewDomainError(
		DomainValidationError,
		"MISSING_PROMPT",
		"A prompt is required to generate media",
	)

	// Edge errors
	ErrEdgeNotFound = NewDomainError(
		DomainNotFoundError,
		"EDGE_NOT_FOUND",
		"The requested edge does not exist",
	)

	ErrConnectionNotAllowed = NewDomainError(
		DomainBusinessRuleError,
		"CONNECTION_NOT_ALLOWED",
		"This connection is not allowed between these node types",
	)

	ErrHandleOccupied = NewDomainError(
		DomainConflictError,
		"HANDLE_OCCUPIED",
		"The target handle accepts a single connection and already has one",
	)

	ErrSelfConnection = NewDomainError(
		DomainBusinessRuleError,
		"SELF_CONNECTION",
		"Cannot connect a node to itself",
	)

	ErrDuplicateEdge = NewDomainError(
		DomainConflictError,
		"DUPLICATE_EDGE",
		"An identical connection already exists",
	)

	ErrEdgeLimitReached = NewDomainError(
		DomainBusinessRuleError,
		"EDGE_LIMIT_REACHED",
		"Maximum number of connections in graph reached",
	)

	// Operation errors
	ErrStaleCompletion = NewDomainError(
		DomainConflictError,
		"STALE_COMPLETION",
		"The operation was superseded or its node was deleted",
	)

	ErrOperationInFlight = NewDomainError(
		DomainConflictError,
		"OPERATION_IN_FLIGHT",
		"Another operation is running on this node",
	)

	ErrNotGeneratable = NewDomainError(
		DomainBusinessRuleError,
		"NOT_GENERATABLE",
		"This node type has nothing to generate",
	)

	ErrServiceUnavailable = NewDomainError(
		DomainUnavailableError,
		"SERVICE_UNAVAILABLE",
		"A required service is not configured",
	)

	// Canvas errors
	ErrCanvasUnavailable = NewDomainError(
		DomainUnavailableError,
		"CANVAS_UNAVAILABLE",
		"No drawing surface is available",
	)

	ErrNoCropSession = NewDomainError(
		DomainConflictError,
		"NO_CROP_SESSION",
		"No crop session is active for this node",
	)

	// Asset errors
	ErrAssetNotFound = NewDomainError(
		DomainNotFoundError,
		"ASSET_NOT_FOUND",
		"The requested asset does not exist",
	)

	// Infrastructure errors
	ErrEventPublishFailed = NewDomainError(
		DomainInfrastructureError,
		"EVENT_PUBLISH_FAILED",
		"Failed to publish domain event",
	).WithRetryable(true)
)
