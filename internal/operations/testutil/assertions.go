package testutil

import (
	"testing"

	"zipenrich/internal/operations"
)

// FindStep returns the snapshot of stepID in resp
func FindStep(t *testing.T, resp *operations.OperationResponse, stepID string) operations.StepSnapshot {
	t.Helper()
	if resp == nil {
		t.Fatal("operation response is nil")
	}
	for _, s := range resp.Steps {
		if s.ID == stepID {
			return s
		}
	}
	t.Fatalf("step %s not found in response", stepID)
	return operations.StepSnapshot{}
}

// AssertStepStatus verifies a step in resp has the expected status
func AssertStepStatus(t *testing.T, resp *operations.OperationResponse, stepID string, expected operations.StepStatus) {
	t.Helper()
	if got := FindStep(t, resp, stepID).Status; got != expected {
		t.Errorf("step %s status = %v, want %v", stepID, got, expected)
	}
}

// AssertStepOrder verifies the steps in resp appear in the given order
func AssertStepOrder(t *testing.T, resp *operations.OperationResponse, expected ...string) {
	t.Helper()
	if len(resp.Steps) != len(expected) {
		t.Fatalf("step count = %d, want %d", len(resp.Steps), len(expected))
	}
	for i, s := range resp.Steps {
		if s.ID != expected[i] {
			t.Errorf("step[%d] = %s, want %s", i, s.ID, expected[i])
		}
	}
}

// AssertErrorType verifies the type of an operation error
func AssertErrorType(t *testing.T, err error, expectedType operations.ErrorType) {
	t.Helper()
	if err == nil {
		t.Fatal("error is nil")
	}
	if got := operations.GetErrorType(err); got != expectedType {
		t.Errorf("error type = %v, want %v (error: %v)", got, expectedType, err)
	}
}
