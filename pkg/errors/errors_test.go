package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDomainError_NewKeepsIdentity(t *testing.T) {
	err := ErrHandleOccupied.New().WithDetail("handle", "first-frame")

	assert.True(t, Is(err, ErrHandleOccupied))
	assert.False(t, Is(err, ErrDuplicateEdge))
	assert.Equal(t, "first-frame", err.Details["handle"])
	assert.Empty(t, ErrHandleOccupied.Details, "shared value must stay untouched")
}

func TestWrap_PreservesDomainError(t *testing.T) {
	wrapped := Wrap(ErrNodeNotFound.New(), "remove node")

	assert.True(t, Is(wrapped, ErrNodeNotFound))
	assert.True(t, IsNotFound(wrapped))
	assert.Contains(t, wrapped.Error(), "remove node")
}

func TestWrap_PlainErrorBecomesInternal(t *testing.T) {
	wrapped := Wrap(fmt.Errorf("disk full"), "save asset")

	appErr := GetAppError(wrapped)
	require.NotNil(t, appErr)
	assert.Equal(t, ErrorTypeInternal, appErr.Type)
	assert.Nil(t, Wrap(nil, "noop"))
}

func TestErrorHandler_Handle(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantType   string
		wantCode   string
	}{
		{
			name:       "domain not found",
			err:        ErrNodeNotFound.New(),
			wantStatus: http.StatusNotFound,
			wantType:   string(DomainNotFoundError),
			wantCode:   "NODE_NOT_FOUND",
		},
		{
			name:       "domain business rule",
			err:        ErrConnectionNotAllowed.New(),
			wantStatus: http.StatusUnprocessableEntity,
			wantType:   string(DomainBusinessRuleError),
			wantCode:   "CONNECTION_NOT_ALLOWED",
		},
		{
			name:       "app validation",
			err:        NewValidationError("bad input"),
			wantStatus: http.StatusBadRequest,
			wantType:   string(ErrorTypeValidation),
		},
		{
			name:       "unknown error",
			err:        fmt.Errorf("boom"),
			wantStatus: http.StatusInternalServerError,
			wantType:   string(ErrorTypeInternal),
		},
	}

	h := NewErrorHandler(zap.NewNop(), false)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/api/v1/graph", nil)

			h.Handle(rec, req, tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)
			var body ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.True(t, body.Error)
			assert.Equal(t, tt.wantType, body.Type)
			assert.Equal(t, tt.wantCode, body.Code)
		})
	}
}

func TestErrorHandler_MiddlewareRecoversPanic(t *testing.T) {
	h := NewErrorHandler(zap.NewNop(), false)
	handler := h.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("kaboom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
