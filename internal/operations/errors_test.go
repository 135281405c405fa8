package operations_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"zipenrich/internal/operations"
)

func TestOperationErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		err  *operations.OperationError
		want string
	}{
		{
			name: "with step and cause",
			err:  operations.NewExecutionError("export", errors.New("disk full")),
			want: "[execution] export: step execution failed: disk full",
		},
		{
			name: "without step",
			err:  operations.NewValidationError("", "no steps registered for this run"),
			want: "[validation] no steps registered for this run",
		},
		{
			name: "fatal",
			err:  operations.NewFatalError("load", "cannot read input", errors.New("no such file")),
			want: "[fatal] load: cannot read input: no such file",
		},
		{
			name: "nil",
			err:  nil,
			want: "unknown operation error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestOperationErrorUnwrap(t *testing.T) {
	cause := context.DeadlineExceeded
	err := operations.NewFatalError("reload", "cannot read checkpoint", cause)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Nil(t, operations.NewCancellationError("impute").Unwrap())
}

func TestGetErrorType(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want operations.ErrorType
	}{
		{name: "nil", err: nil, want: ""},
		{name: "plain error", err: errors.New("x"), want: operations.ErrorTypeExecution},
		{name: "timeout", err: operations.NewTimeoutError("load", "1s"), want: operations.ErrorTypeTimeout},
		{name: "cancellation", err: operations.NewCancellationError("enrich"), want: operations.ErrorTypeCancellation},
		{
			name: "wrapped fatal",
			err:  fmt.Errorf("run: %w", operations.NewFatalError("load", "cannot read input", nil)),
			want: operations.ErrorTypeFatal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, operations.GetErrorType(tt.err))
		})
	}
}

func TestIsFatal(t *testing.T) {
	assert.True(t, operations.IsFatal(operations.NewFatalError("load", "x", nil)))
	assert.False(t, operations.IsFatal(operations.NewExecutionError("clean", nil)))
	assert.False(t, operations.IsFatal(nil))
}

func TestWrapError(t *testing.T) {
	assert.Nil(t, operations.WrapError(nil, "load", "msg"))

	plain := operations.WrapError(errors.New("boom"), "export", "write failed")
	assert.Equal(t, operations.ErrorTypeExecution, plain.Type)
	assert.Equal(t, "export", plain.Step)
	assert.EqualError(t, plain.Cause, "boom")

	fatal := operations.NewFatalError("", "cannot read input", nil)
	wrapped := operations.WrapError(fatal, "load", "")
	assert.Same(t, fatal, wrapped)
	assert.Equal(t, "load", wrapped.Step, "empty step is filled in")
	assert.Equal(t, operations.ErrorTypeFatal, wrapped.Type)
}

func TestErrOperationNotFound(t *testing.T) {
	err := fmt.Errorf("operation x: %w", operations.ErrOperationNotFound)
	assert.ErrorIs(t, err, operations.ErrOperationNotFound)
	assert.Equal(t, operations.ErrorTypeNotFound, operations.GetErrorType(err))
}
