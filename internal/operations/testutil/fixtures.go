package testutil

import (
	"context"
	"errors"
	"time"

	"zipenrich/internal/operations"
)

// CreateTestRegistry creates a registry with the given steps
func CreateTestRegistry(steps ...operations.Step) *operations.Registry {
	registry := operations.NewRegistry()
	for _, s := range steps {
		if err := registry.Register(s); err != nil {
			panic(err)
		}
	}
	return registry
}

// CreateSuccessfulStage creates a step that always succeeds
func CreateSuccessfulStage(id, name string) *MockStage {
	return &MockStage{
		IDValue:   id,
		NameValue: name,
	}
}

// CreateFailingStage creates a step that always fails
func CreateFailingStage(id, name string, err error) *MockStage {
	if err == nil {
		err = errors.New("step failed")
	}

	return &MockStage{
		IDValue:   id,
		NameValue: name,
		ExecuteFunc: func(ctx context.Context, state *operations.OperationState) error {
			return err
		},
	}
}

// CreateSlowStage creates a step that takes a specific duration
func CreateSlowStage(id, name string, duration time.Duration) *MockStage {
	return &MockStage{
		IDValue:   id,
		NameValue: name,
		ExecuteFunc: func(ctx context.Context, state *operations.OperationState) error {
			timer := time.NewTimer(duration)
			defer timer.Stop()
			select {
			case <-timer.C:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	}
}

// CreateValidationFailingStage creates a step that fails validation
func CreateValidationFailingStage(id, name string, validationErr error) *MockStage {
	if validationErr == nil {
		validationErr = errors.New("validation failed")
	}

	return &MockStage{
		IDValue:   id,
		NameValue: name,
		ValidateFunc: func(state *operations.OperationState) error {
			return validationErr
		},
	}
}

// CreateContextWritingStage creates a step that stores value under key
func CreateContextWritingStage(id, name, key string, value interface{}) *MockStage {
	return &MockStage{
		IDValue:   id,
		NameValue: name,
		ExecuteFunc: func(ctx context.Context, state *operations.OperationState) error {
			state.SetContext(key, value)
			return nil
		},
	}
}
