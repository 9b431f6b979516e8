package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Behavior(t *testing.T) {
	err := NewConfigurationError("database missing").WithCode("CFG001").WithDetail("database_id", "db1").WithComponent("binder")
	assert.Equal(t, ErrorTypeConfiguration, err.Type)
	assert.Equal(t, "database missing", err.Message)
	assert.Equal(t, "CFG001", err.Code)
	assert.Equal(t, "binder", err.Component)
	assert.Equal(t, "db1", err.Details["database_id"])
	assert.Equal(t, "database missing", err.Error())
}

func TestAppError_WithCause_Unwrap(t *testing.T) {
	err := NewConfigurationError("database missing").WithCause(ErrDatabaseNotFound)
	assert.Equal(t, ErrDatabaseNotFound, err.Unwrap())
	assert.True(t, errors.Is(err, ErrDatabaseNotFound))
	assert.True(t, IsConfiguration(err))
	assert.False(t, IsNotFound(err))
}

func TestValidationErrors(t *testing.T) {
	ve := NewValidationErrors()
	ve.Add("name", "must be set", "")
	assert.True(t, ve.HasErrors())
	appErr := ve.ToAppError()
	assert.NotNil(t, appErr)
	assert.Equal(t, ErrorTypeValidation, appErr.Type)
	assert.True(t, IsValidation(appErr))
}

func TestPredicates(t *testing.T) {
	nf := NewNotFoundError("document")
	assert.True(t, IsNotFound(nf))
	assert.True(t, errors.Is(nf, ErrNotFound))
	assert.False(t, IsConflict(nf))
	assert.True(t, IsNotFound(fmt.Errorf("lookup: %w", ErrDocumentNotFound)))

	conflict := NewConflictError("collection exists")
	assert.True(t, IsConflict(conflict))

	cause := errors.New("connection reset")
	remote := NewRemoteError("insert failed", cause)
	assert.True(t, IsRemote(remote))
	assert.True(t, errors.Is(remote, cause))
	assert.True(t, IsRemote(fmt.Errorf("wrapped: %w", remote)))
}

func TestBatchError(t *testing.T) {
	cause := NewRemoteError("replace failed", errors.New("throttled"))
	err := &BatchError{Operation: "add_or_update", Succeeded: 2, FailedIndex: 2, FailedID: "w3", Cause: cause}

	assert.True(t, IsPartialBatch(err))
	assert.True(t, IsRemote(err))
	assert.Equal(t, ErrorTypePartialBatch, err.Type())
	assert.Contains(t, err.Error(), `"w3"`)
	assert.Contains(t, err.Error(), "after 2 succeeded")
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, HTTPStatus(NewNotFoundError("document")))
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(NewValidationError("bad")))
	assert.Equal(t, http.StatusBadGateway, HTTPStatus(NewRemoteError("down", errors.New("x"))))
	assert.Equal(t, http.StatusGatewayTimeout, HTTPStatus(context.DeadlineExceeded))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(errors.New("boom")))
	assert.Equal(t, http.StatusMultiStatus, HTTPStatus(&BatchError{Cause: NewNotFoundError("document")}))
	assert.Equal(t, http.StatusMultiStatus, HTTPStatus(&BatchError{Cause: errors.New("boom")}))
}
