package operations

import (
	"context"
	"log/slog"
	"time"
)

// logOperationStart logs the start of a pipeline run
func (m *Manager) logOperationStart(ctx context.Context, req OperationRequest, stepCount int) {
	m.logger.InfoContext(ctx, "operation_start",
		slog.String("operation_id", req.ID),
		slog.String("input", req.Input),
		slog.Bool("from_checkpoint", req.FromCheckpoint),
		slog.Int("step_count", stepCount))
}

// logOperationComplete logs the end of a pipeline run
func (m *Manager) logOperationComplete(ctx context.Context, state *OperationState) {
	failed := state.GetFailedStages()
	attrs := []any{
		slog.String("operation_id", state.ID),
		slog.String("status", string(state.GetStatus())),
		slog.Duration("duration", state.Duration()),
		slog.Int("failed_steps", len(failed)),
	}
	if len(failed) > 0 {
		m.logger.WarnContext(ctx, "operation_complete", attrs...)
		return
	}
	m.logger.InfoContext(ctx, "operation_complete", attrs...)
}

// logOperationError logs an error that stopped the run
func (m *Manager) logOperationError(ctx context.Context, operationID string, err error) {
	errorMsg := "unknown error"
	if err != nil {
		errorMsg = err.Error()
	}
	m.logger.ErrorContext(ctx, "operation_error",
		slog.String("operation_id", operationID),
		slog.String("error", errorMsg))
}

// logStageStart logs the start of a Step execution
func (m *Manager) logStageStart(ctx context.Context, operationID, stageID string) {
	m.logger.InfoContext(ctx, "stage_start",
		slog.String("operation_id", operationID),
		slog.String("step", stageID))
}

// logStageComplete logs the completion of a Step execution
func (m *Manager) logStageComplete(ctx context.Context, operationID, stageID string, duration time.Duration, records int) {
	m.logger.InfoContext(ctx, "stage_complete",
		slog.String("operation_id", operationID),
		slog.String("step", stageID),
		slog.Duration("duration", duration),
		slog.Int("records", records))
}

// logStageError logs a Step error
func (m *Manager) logStageError(ctx context.Context, operationID, stageID string, err error) {
	errorMsg := "unknown error"
	if err != nil {
		errorMsg = err.Error()
	}
	m.logger.ErrorContext(ctx, "stage_error",
		slog.String("operation_id", operationID),
		slog.String("step", stageID),
		slog.String("error_type", string(GetErrorType(err))),
		slog.String("error", errorMsg))
}
