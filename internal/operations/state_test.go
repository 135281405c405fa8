package operations_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zipenrich/internal/operations"
)

func TestOperationStateLifecycle(t *testing.T) {
	tests := []struct {
		name   string
		finish func(*operations.OperationState)
		want   operations.OperationStatusValue
		hasErr bool
	}{
		{
			name:   "complete",
			finish: func(s *operations.OperationState) { s.Complete() },
			want:   operations.OperationStatusCompleted,
		},
		{
			name:   "fail",
			finish: func(s *operations.OperationState) { s.Fail(errors.New("input missing")) },
			want:   operations.OperationStatusFailed,
			hasErr: true,
		},
		{
			name:   "cancel",
			finish: func(s *operations.OperationState) { s.Cancel(operations.NewCancellationError("impute")) },
			want:   operations.OperationStatusCancelled,
			hasErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := operations.NewOperationState("op-1")
			assert.Equal(t, operations.OperationStatusPending, s.GetStatus())

			s.Start()
			assert.Equal(t, operations.OperationStatusRunning, s.GetStatus())

			tt.finish(s)
			assert.Equal(t, tt.want, s.GetStatus())
			require.NotNil(t, s.EndTime)
			assert.Equal(t, tt.hasErr, s.Error != nil)
		})
	}
}

func TestOperationStateStepOrder(t *testing.T) {
	s := operations.NewOperationState("op")
	for _, id := range []string{"load", "clean", "impute"} {
		s.SetStage(id, operations.NewStepState(id, id))
	}
	s.SetStage("clean", operations.NewStepState("clean", "replaced"))

	assert.Equal(t, []string{"load", "clean", "impute"}, s.StepIDs())
	assert.Equal(t, "replaced", s.GetStage("clean").Name)
	assert.Nil(t, s.GetStage("export"))
}

func TestOperationStateQueries(t *testing.T) {
	s := operations.NewOperationState("op")
	load := operations.NewStepState("load", "Load")
	clean := operations.NewStepState("clean", "Clean")
	export := operations.NewStepState("export", "Export")
	s.SetStage("load", load)
	s.SetStage("clean", clean)
	s.SetStage("export", export)

	assert.False(t, s.IsComplete())

	load.Complete()
	clean.Fail(errors.New("bad"))
	export.Skip("no data")

	assert.True(t, s.IsComplete())
	assert.True(t, s.HasFailures())
	require.Len(t, s.GetFailedStages(), 1)
	assert.Equal(t, "clean", s.GetFailedStages()[0].ID)
	require.Len(t, s.GetCompletedStages(), 1)
	assert.Equal(t, "load", s.GetCompletedStages()[0].ID)
}

func TestOperationStateContextAndConfig(t *testing.T) {
	s := operations.NewOperationState("op")

	s.SetContext("table", 42)
	v, ok := s.GetContext("table")
	assert.True(t, ok)
	assert.Equal(t, 42, v)

	_, ok = s.GetContext("missing")
	assert.False(t, ok)

	s.SetConfig(operations.ConfigKeyInput, "collisions.csv")
	s.SetConfig("flag", true)
	assert.Equal(t, "collisions.csv", s.GetConfigString(operations.ConfigKeyInput))
	assert.Empty(t, s.GetConfigString("flag"), "non-string values read as empty")
	assert.Empty(t, s.GetConfigString("absent"))
}

func TestOperationStateSnapshot(t *testing.T) {
	s := operations.NewOperationState("op")
	s.SetStage("load", operations.NewStepState("load", "Load"))
	s.SetStage("clean", operations.NewStepState("clean", "Clean"))
	s.SetContext("table", "not serialized")
	s.Start()
	s.Fail(errors.New("fatal"))

	snap := s.Snapshot()
	assert.Equal(t, "op", snap.ID)
	assert.Equal(t, operations.OperationStatusFailed, snap.Status)
	assert.Equal(t, "fatal", snap.Error)
	require.Len(t, snap.Steps, 2)
	assert.Equal(t, "load", snap.Steps[0].ID)
	assert.Equal(t, "clean", snap.Steps[1].ID)
}

func TestOperationStateConcurrentAccess(t *testing.T) {
	s := operations.NewOperationState("op")
	s.SetStage("load", operations.NewStepState("load", "Load"))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			s.SetContext("key", i)
			s.GetStage("load").SetMetadata("i", i)
		}(i)
		go func() {
			defer wg.Done()
			_ = s.Snapshot()
		}()
	}
	wg.Wait()
}
