package operations_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"zipenrich/internal/infrastructure"
	"zipenrich/internal/operations"
	"zipenrich/internal/operations/testutil"
	logtest "zipenrich/internal/shared/testutil"
)

func newTestManager(t *testing.T, steps ...operations.Step) (*operations.Manager, *logtest.BufferedSlogHandler) {
	t.Helper()
	logger, handler := logtest.NewTestLogger(t)
	return operations.NewManager(testutil.CreateTestRegistry(steps...), nil, nil, logger), handler
}

func TestManagerExecute_AllStepsSucceed(t *testing.T) {
	load := testutil.CreateSuccessfulStage(operations.StepIDLoad, operations.StepNameLoad)
	clean := testutil.CreateSuccessfulStage(operations.StepIDClean, operations.StepNameClean)
	export := testutil.CreateSuccessfulStage(operations.StepIDExport, operations.StepNameExport)
	manager, handler := newTestManager(t, load, clean, export)

	resp, err := manager.Execute(context.Background(), operations.OperationRequest{ID: "run-1"})
	require.NoError(t, err)

	assert.Equal(t, "run-1", resp.ID)
	assert.Equal(t, operations.OperationStatusCompleted, resp.Status)
	testutil.AssertStepOrder(t, resp, operations.StepIDLoad, operations.StepIDClean, operations.StepIDExport)
	for _, s := range resp.Steps {
		assert.Equal(t, operations.StepStatusCompleted, s.Status, s.ID)
	}
	assert.Equal(t, 1, load.GetExecuteCalls())
	assert.Equal(t, 1, export.GetExecuteCalls())

	logtest.AssertLogContains(t, handler, slog.LevelInfo, "operation_start")
	logtest.AssertLogContains(t, handler, slog.LevelInfo, "stage_complete")
	logtest.AssertNoErrors(t, handler)
}

func TestManagerExecute_GeneratesID(t *testing.T) {
	manager, _ := newTestManager(t, testutil.CreateSuccessfulStage("load", "Load"))

	resp, err := manager.Execute(context.Background(), operations.OperationRequest{})
	require.NoError(t, err)
	assert.Len(t, resp.ID, 36)
}

func TestManagerExecute_NonFatalFailureContinues(t *testing.T) {
	impute := testutil.CreateFailingStage(operations.StepIDImpute, operations.StepNameImpute, errors.New("geocoder unreachable"))
	enrich := testutil.CreateSuccessfulStage(operations.StepIDEnrich, operations.StepNameEnrich)
	manager, handler := newTestManager(t,
		testutil.CreateSuccessfulStage(operations.StepIDLoad, operations.StepNameLoad),
		impute,
		enrich,
	)

	resp, err := manager.Execute(context.Background(), operations.OperationRequest{ID: "run"})
	require.NoError(t, err, "only fatal errors stop the run")

	assert.Equal(t, operations.OperationStatusCompleted, resp.Status)
	testutil.AssertStepStatus(t, resp, operations.StepIDImpute, operations.StepStatusFailed)
	testutil.AssertStepStatus(t, resp, operations.StepIDEnrich, operations.StepStatusCompleted)
	assert.Contains(t, testutil.FindStep(t, resp, operations.StepIDImpute).Error, "geocoder unreachable")
	assert.Equal(t, 1, enrich.GetExecuteCalls())

	assert.True(t, handler.ContainsMessage("stage_error"))
	assert.True(t, handler.ContainsMessage("stage_failed_continuing"))
}

func TestManagerExecute_FatalErrorStops(t *testing.T) {
	load := testutil.CreateFailingStage(operations.StepIDLoad, operations.StepNameLoad,
		operations.NewFatalError(operations.StepIDLoad, "cannot read input", errors.New("no such file")))
	clean := testutil.CreateSuccessfulStage(operations.StepIDClean, operations.StepNameClean)
	manager, handler := newTestManager(t, load, clean)

	resp, err := manager.Execute(context.Background(), operations.OperationRequest{ID: "run"})
	testutil.AssertErrorType(t, err, operations.ErrorTypeFatal)

	assert.Equal(t, operations.OperationStatusFailed, resp.Status)
	assert.Contains(t, resp.Error, "cannot read input")
	testutil.AssertStepStatus(t, resp, operations.StepIDLoad, operations.StepStatusFailed)
	testutil.AssertStepStatus(t, resp, operations.StepIDClean, operations.StepStatusSkipped)
	assert.Zero(t, clean.GetExecuteCalls())
	logtest.AssertLogContains(t, handler, slog.LevelError, "operation_error")
}

func TestManagerExecute_ValidationFailureSkipsStep(t *testing.T) {
	export := testutil.CreateValidationFailingStage(operations.StepIDExport, operations.StepNameExport, errors.New("no enriched records"))
	manager, _ := newTestManager(t,
		testutil.CreateSuccessfulStage(operations.StepIDLoad, operations.StepNameLoad),
		export,
	)

	resp, err := manager.Execute(context.Background(), operations.OperationRequest{ID: "run"})
	require.NoError(t, err)

	step := testutil.FindStep(t, resp, operations.StepIDExport)
	assert.Equal(t, operations.StepStatusSkipped, step.Status)
	assert.Contains(t, step.Message, "no enriched records")
	assert.Zero(t, export.GetExecuteCalls())
	assert.Equal(t, 1, export.GetValidateCalls())
}

func TestManagerExecute_PlansCheckpointRun(t *testing.T) {
	ids := []string{
		operations.StepIDLoad,
		operations.StepIDClean,
		operations.StepIDCheckpoint,
		operations.StepIDReload,
		operations.StepIDImpute,
		operations.StepIDEnrich,
		operations.StepIDExport,
	}

	tests := []struct {
		name           string
		fromCheckpoint bool
		want           []string
	}{
		{
			name: "full run",
			want: []string{"load", "clean", "checkpoint", "impute", "enrich", "export"},
		},
		{
			name:           "from checkpoint",
			fromCheckpoint: true,
			want:           []string{"reload", "impute", "enrich", "export"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			steps := make([]operations.Step, 0, len(ids))
			for _, id := range ids {
				steps = append(steps, testutil.CreateSuccessfulStage(id, id))
			}
			manager, _ := newTestManager(t, steps...)

			resp, err := manager.Execute(context.Background(), operations.OperationRequest{FromCheckpoint: tt.fromCheckpoint})
			require.NoError(t, err)
			testutil.AssertStepOrder(t, resp, tt.want...)
		})
	}
}

func TestManagerExecute_CancelledBeforeStart(t *testing.T) {
	load := testutil.CreateSuccessfulStage(operations.StepIDLoad, operations.StepNameLoad)
	manager, _ := newTestManager(t, load)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resp, err := manager.Execute(ctx, operations.OperationRequest{ID: "run"})
	testutil.AssertErrorType(t, err, operations.ErrorTypeCancellation)
	assert.Equal(t, operations.OperationStatusCancelled, resp.Status)
	testutil.AssertStepStatus(t, resp, operations.StepIDLoad, operations.StepStatusSkipped)
	assert.Zero(t, load.GetExecuteCalls())
}

func TestManagerExecute_CancelledDuringStep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	impute := &testutil.MockStage{
		IDValue:   operations.StepIDImpute,
		NameValue: operations.StepNameImpute,
		ExecuteFunc: func(ctx context.Context, state *operations.OperationState) error {
			cancel()
			return operations.NewCancellationError(operations.StepIDImpute)
		},
	}
	enrich := testutil.CreateSuccessfulStage(operations.StepIDEnrich, operations.StepNameEnrich)
	manager, _ := newTestManager(t, impute, enrich)

	resp, err := manager.Execute(ctx, operations.OperationRequest{ID: "run"})
	testutil.AssertErrorType(t, err, operations.ErrorTypeCancellation)
	assert.Equal(t, operations.OperationStatusCancelled, resp.Status)
	testutil.AssertStepStatus(t, resp, operations.StepIDImpute, operations.StepStatusFailed)
	testutil.AssertStepStatus(t, resp, operations.StepIDEnrich, operations.StepStatusSkipped)
	assert.Zero(t, enrich.GetExecuteCalls())
}

func TestManagerExecute_StepTimeout(t *testing.T) {
	slow := testutil.CreateSlowStage(operations.StepIDCheckpoint, operations.StepNameCheckpoint, time.Second)
	next := testutil.CreateSuccessfulStage(operations.StepIDImpute, operations.StepNameImpute)

	cfg := operations.NewConfig()
	cfg.SetStageTimeout(operations.StepIDCheckpoint, 20*time.Millisecond)

	logger, _ := logtest.NewTestLogger(t)
	manager := operations.NewManager(testutil.CreateTestRegistry(slow, next), cfg, nil, logger)

	start := time.Now()
	resp, err := manager.Execute(context.Background(), operations.OperationRequest{ID: "run"})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	step := testutil.FindStep(t, resp, operations.StepIDCheckpoint)
	assert.Equal(t, operations.StepStatusFailed, step.Status)
	assert.Contains(t, step.Error, "timeout")
	testutil.AssertStepStatus(t, resp, operations.StepIDImpute, operations.StepStatusCompleted)
}

func TestManagerExecute_NoSteps(t *testing.T) {
	manager, _ := newTestManager(t)

	resp, err := manager.Execute(context.Background(), operations.OperationRequest{ID: "empty"})
	testutil.AssertErrorType(t, err, operations.ErrorTypeValidation)
	assert.Equal(t, operations.OperationStatusFailed, resp.Status)
}

func TestManagerExecute_PassesRequestToSteps(t *testing.T) {
	var input string
	var fromCheckpoint interface{}
	load := &testutil.MockStage{
		IDValue:   operations.StepIDReload,
		NameValue: operations.StepNameReload,
		ExecuteFunc: func(ctx context.Context, state *operations.OperationState) error {
			input = state.GetConfigString(operations.ConfigKeyInput)
			fromCheckpoint, _ = state.GetConfig(operations.ConfigKeyFromCheckpoint)
			return nil
		},
	}
	manager, _ := newTestManager(t, load)

	_, err := manager.Execute(context.Background(), operations.OperationRequest{
		Input:          "s3://bucket/collisions.csv",
		FromCheckpoint: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "s3://bucket/collisions.csv", input)
	assert.Equal(t, true, fromCheckpoint)
}

func TestManagerOperationLookup(t *testing.T) {
	manager, _ := newTestManager(t, testutil.CreateSuccessfulStage("load", "Load"))

	_, err := manager.LatestOperation()
	assert.ErrorIs(t, err, operations.ErrOperationNotFound)

	_, err = manager.Execute(context.Background(), operations.OperationRequest{ID: "first"})
	require.NoError(t, err)
	_, err = manager.Execute(context.Background(), operations.OperationRequest{ID: "second"})
	require.NoError(t, err)

	latest, err := manager.LatestOperation()
	require.NoError(t, err)
	assert.Equal(t, "second", latest.ID)
	assert.Equal(t, operations.OperationStatusCompleted, latest.Status)

	first, err := manager.GetOperation("first")
	require.NoError(t, err)
	assert.Equal(t, "first", first.ID)

	_, err = manager.GetOperation("missing")
	assert.ErrorIs(t, err, operations.ErrOperationNotFound)

	assert.Len(t, manager.ListOperations(), 2)
}

func TestManagerExecute_RecordsMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer mp.Shutdown(context.Background())

	tracer, err := operations.NewOperationTracer(&infrastructure.OTelProviders{Meter: mp.Meter("test")}, nil)
	require.NoError(t, err)

	logger, _ := logtest.NewTestLogger(t)
	registry := testutil.CreateTestRegistry(
		testutil.CreateSuccessfulStage("load", "Load"),
		testutil.CreateFailingStage("clean", "Clean", nil),
	)
	manager := operations.NewManager(registry, nil, tracer, logger)

	_, err = manager.Execute(context.Background(), operations.OperationRequest{ID: "run"})
	require.NoError(t, err)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	var steps int64
	names := map[string]bool{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			names[m.Name] = true
			if m.Name != "pipeline_steps_total" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				steps += dp.Value
			}
		}
	}
	assert.Equal(t, int64(2), steps)
	assert.True(t, names["pipeline_step_duration_seconds"])
	assert.True(t, names["pipeline_operations_total"])
}
