package operations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"zipenrich/internal/infrastructure"
)

// Manager runs the registered steps of the pipeline in order. A step error
// is recorded on the step and the run continues with the next step, unless
// the error is fatal or the run was cancelled.
type Manager struct {
	registry *Registry
	config   *Config
	tracer   *OperationTracer
	logger   *slog.Logger

	mu         sync.RWMutex
	operations map[string]*OperationState
	latest     string
}

// NewManager creates a new operation manager
func NewManager(registry *Registry, config *Config, tracer *OperationTracer, logger *slog.Logger) *Manager {
	if registry == nil {
		registry = NewRegistry()
	}
	if config == nil {
		config = NewConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if tracer == nil {
		tracer, _ = NewOperationTracer(nil, nil)
	}

	return &Manager{
		registry:   registry,
		config:     config,
		tracer:     tracer,
		logger:     logger,
		operations: make(map[string]*OperationState),
	}
}

// Execute runs the pipeline for req. It returns an error only when the run
// was stopped by a fatal step error or by cancellation; failures of other
// steps are reported in the response.
func (m *Manager) Execute(ctx context.Context, req OperationRequest) (*OperationResponse, error) {
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	ctx = infrastructure.EnsureTraceID(ctx)

	state := NewOperationState(req.ID)
	if req.Input != "" {
		state.SetConfig(ConfigKeyInput, req.Input)
	}
	state.SetConfig(ConfigKeyFromCheckpoint, req.FromCheckpoint)
	for k, v := range req.Parameters {
		state.SetConfig(k, v)
	}

	steps := m.planSteps(req)
	for _, step := range steps {
		state.SetStage(step.ID(), NewStepState(step.ID(), step.Name()))
	}
	m.storeOperation(state)

	ctx, span := m.tracer.TraceOperationExecution(ctx, req.ID, req)
	defer span.End()

	m.logOperationStart(ctx, req, len(steps))
	state.Start()

	if len(steps) == 0 {
		err := NewValidationError("", "no steps registered for this run")
		state.Fail(err)
		m.logOperationError(ctx, req.ID, err)
		m.tracer.RecordOperationCompletion(ctx, span, state.GetStatus(), err)
		return m.createResponse(state), err
	}

	err := m.executeSequential(ctx, state, steps)
	switch {
	case err == nil:
		state.Complete()
	case GetErrorType(err) == ErrorTypeCancellation:
		state.Cancel(err)
		m.logOperationError(ctx, req.ID, err)
	default:
		state.Fail(err)
		m.logOperationError(ctx, req.ID, err)
	}

	m.logOperationComplete(ctx, state)
	m.tracer.RecordOperationCompletion(ctx, span, state.GetStatus(), err)
	return m.createResponse(state), err
}

// planSteps selects the registered steps for req in registration order. A
// checkpoint run replaces load, clean and checkpoint with reload.
func (m *Manager) planSteps(req OperationRequest) []Step {
	var steps []Step
	for _, step := range m.registry.List() {
		switch step.ID() {
		case StepIDLoad, StepIDClean, StepIDCheckpoint:
			if req.FromCheckpoint {
				continue
			}
		case StepIDReload:
			if !req.FromCheckpoint {
				continue
			}
		}
		steps = append(steps, step)
	}
	return steps
}

// executeSequential executes steps one by one
func (m *Manager) executeSequential(ctx context.Context, state *OperationState, steps []Step) error {
	for i, step := range steps {
		if ctx.Err() != nil {
			m.logger.WarnContext(ctx, "operation_cancelled",
				slog.String("operation_id", state.ID),
				slog.String("step", step.ID()))
			m.skipRemaining(state, steps[i:], "operation cancelled")
			return NewCancellationError(step.ID())
		}

		m.logger.DebugContext(ctx, "executing_stage",
			slog.String("operation_id", state.ID),
			slog.String("step", step.ID()),
			slog.Int("stage_number", i+1),
			slog.Int("total_stages", len(steps)))

		err := m.executeStage(ctx, state, step)
		if err == nil {
			continue
		}

		if IsFatal(err) {
			m.skipRemaining(state, steps[i+1:], fmt.Sprintf("fatal error in step %s", step.ID()))
			return err
		}
		if ctx.Err() != nil {
			m.skipRemaining(state, steps[i+1:], "operation cancelled")
			return NewCancellationError(step.ID())
		}

		m.logger.WarnContext(ctx, "stage_failed_continuing",
			slog.String("operation_id", state.ID),
			slog.String("step", step.ID()),
			slog.String("error", err.Error()))
	}
	return nil
}

// executeStage validates and runs a single step. Steps are never retried.
func (m *Manager) executeStage(ctx context.Context, state *OperationState, step Step) error {
	stepState := state.GetStage(step.ID())
	if stepState == nil {
		return NewFatalError(step.ID(), "step state not found", nil)
	}

	if err := step.Validate(state); err != nil {
		m.logger.WarnContext(ctx, "validation_failed",
			slog.String("operation_id", state.ID),
			slog.String("step", step.ID()),
			slog.String("error", err.Error()))
		stepState.Skip(fmt.Sprintf("validation failed: %v", err))
		return NewValidationError(step.ID(), err.Error())
	}

	stageCtx := ctx
	timeout := m.config.GetStageTimeout(step.ID())
	if timeout > 0 {
		var cancel context.CancelFunc
		stageCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	stageCtx, span := m.tracer.TraceStageExecution(stageCtx, state.ID, step.ID())
	defer span.End()

	m.logStageStart(stageCtx, state.ID, step.ID())
	stepState.Start()

	startTime := time.Now()
	err := step.Execute(stageCtx, state)
	duration := time.Since(startTime)
	records := recordCount(state)

	if err == nil {
		stepState.Complete()
		stepState.SetMetadata(MetadataKeyRecords, records)
		m.logStageComplete(stageCtx, state.ID, step.ID(), duration, records)
		m.tracer.RecordStageCompletion(stageCtx, span, step.ID(), StepStatusCompleted, duration, records, nil)
		return nil
	}

	if errors.Is(stageCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil && !IsFatal(err) {
		err = NewTimeoutError(step.ID(), timeout.String())
	}

	opErr := WrapError(err, step.ID(), "")
	stepState.Fail(opErr)
	m.logStageError(stageCtx, state.ID, step.ID(), opErr)
	m.tracer.RecordStageCompletion(stageCtx, span, step.ID(), StepStatusFailed, duration, records, opErr)
	return opErr
}

// skipRemaining marks pending steps as skipped
func (m *Manager) skipRemaining(state *OperationState, steps []Step, reason string) {
	for _, step := range steps {
		if s := state.GetStage(step.ID()); s != nil && s.GetStatus() == StepStatusPending {
			s.Skip(reason)
		}
	}
}

// recordCount returns the size of the table currently held by the run
func recordCount(state *OperationState) int {
	if enriched, err := EnrichedFrom(state); err == nil {
		return len(enriched)
	}
	if table, err := TableFrom(state); err == nil {
		return table.Len()
	}
	return 0
}

// createResponse creates a response from state
func (m *Manager) createResponse(state *OperationState) *OperationResponse {
	snap := state.Snapshot()
	return &OperationResponse{
		ID:       snap.ID,
		Status:   snap.Status,
		Duration: state.Duration(),
		Steps:    snap.Steps,
		Error:    snap.Error,
	}
}

// GetOperation returns a snapshot of the run with the given ID
func (m *Manager) GetOperation(id string) (OperationSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, exists := m.operations[id]
	if !exists {
		return OperationSnapshot{}, fmt.Errorf("operation %s: %w", id, ErrOperationNotFound)
	}
	return state.Snapshot(), nil
}

// LatestOperation returns a snapshot of the most recently started run
func (m *Manager) LatestOperation() (OperationSnapshot, error) {
	m.mu.RLock()
	id := m.latest
	m.mu.RUnlock()

	if id == "" {
		return OperationSnapshot{}, ErrOperationNotFound
	}
	return m.GetOperation(id)
}

// ListOperations returns snapshots of every run started by this manager
func (m *Manager) ListOperations() []OperationSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	operations := make([]OperationSnapshot, 0, len(m.operations))
	for _, state := range m.operations {
		operations = append(operations, state.Snapshot())
	}
	return operations
}

// storeOperation stores an operation state
func (m *Manager) storeOperation(state *OperationState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.operations[state.ID] = state
	m.latest = state.ID
}
