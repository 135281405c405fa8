package operations

import (
	"sync"
	"time"
)

// OperationStatusValue represents the overall operation status enum
type OperationStatusValue string

const (
	OperationStatusPending   OperationStatusValue = "pending"
	OperationStatusRunning   OperationStatusValue = "running"
	OperationStatusCompleted OperationStatusValue = "completed"
	OperationStatusFailed    OperationStatusValue = "failed"
	OperationStatusCancelled OperationStatusValue = "cancelled"
)

// OperationState represents the complete state of a pipeline run
type OperationState struct {
	mu sync.RWMutex

	ID        string
	Status    OperationStatusValue
	StartTime time.Time
	EndTime   *time.Time

	// Steps holds the state of each planned step; order holds their IDs in
	// execution order.
	Steps map[string]*StepState
	order []string

	// Context passes data between steps
	Context map[string]interface{}

	// Config holds per-run settings copied from the request
	Config map[string]interface{}

	Error error
}

// NewOperationState creates a new operation state
func NewOperationState(id string) *OperationState {
	return &OperationState{
		ID:        id,
		Status:    OperationStatusPending,
		StartTime: time.Now(),
		Steps:     make(map[string]*StepState),
		Context:   make(map[string]interface{}),
		Config:    make(map[string]interface{}),
	}
}

// Start marks the operation as running
func (p *OperationState) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Status = OperationStatusRunning
	p.StartTime = time.Now()
}

// Complete marks the operation as completed
func (p *OperationState) Complete() {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now()
	p.EndTime = &now
	p.Status = OperationStatusCompleted
}

// Fail marks the operation as failed
func (p *OperationState) Fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now()
	p.EndTime = &now
	p.Status = OperationStatusFailed
	p.Error = err
}

// Cancel marks the operation as cancelled
func (p *OperationState) Cancel(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now()
	p.EndTime = &now
	p.Status = OperationStatusCancelled
	p.Error = err
}

// GetStatus returns the operation status
func (p *OperationState) GetStatus() OperationStatusValue {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.Status
}

// GetStage returns the state of a specific Step
func (p *OperationState) GetStage(stageID string) *StepState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.Steps[stageID]
}

// SetStage adds or replaces the state of a Step. New steps are appended to
// the execution order.
func (p *OperationState) SetStage(stageID string, state *StepState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.Steps[stageID]; !exists {
		p.order = append(p.order, stageID)
	}
	p.Steps[stageID] = state
}

// StepIDs returns the planned step IDs in execution order
func (p *OperationState) StepIDs() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ids := make([]string, len(p.order))
	copy(ids, p.order)
	return ids
}

// GetContext retrieves a value from the operation context
func (p *OperationState) GetContext(key string) (interface{}, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	val, ok := p.Context[key]
	return val, ok
}

// SetContext sets a value in the operation context
func (p *OperationState) SetContext(key string, value interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Context[key] = value
}

// GetConfig retrieves a configuration value
func (p *OperationState) GetConfig(key string) (interface{}, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	val, ok := p.Config[key]
	return val, ok
}

// SetConfig sets a configuration value
func (p *OperationState) SetConfig(key string, value interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Config[key] = value
}

// GetConfigString returns a string configuration value, or "" if it is
// absent or not a string
func (p *OperationState) GetConfigString(key string) string {
	v, ok := p.GetConfig(key)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// Duration returns the duration of the operation execution
func (p *OperationState) Duration() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.EndTime != nil {
		return p.EndTime.Sub(p.StartTime)
	}
	return time.Since(p.StartTime)
}

// GetFailedStages returns all failed steps in execution order
func (p *OperationState) GetFailedStages() []*StepState {
	return p.stagesWithStatus(StepStatusFailed)
}

// GetCompletedStages returns all completed steps in execution order
func (p *OperationState) GetCompletedStages() []*StepState {
	return p.stagesWithStatus(StepStatusCompleted)
}

func (p *OperationState) stagesWithStatus(status StepStatus) []*StepState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []*StepState
	for _, id := range p.order {
		if s := p.Steps[id]; s != nil && s.GetStatus() == status {
			out = append(out, s)
		}
	}
	return out
}

// IsComplete returns true if no step is pending or active
func (p *OperationState) IsComplete() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, s := range p.Steps {
		if st := s.GetStatus(); st == StepStatusPending || st == StepStatusActive {
			return false
		}
	}
	return true
}

// HasFailures returns true if any Step has failed
func (p *OperationState) HasFailures() bool {
	return len(p.GetFailedStages()) > 0
}

// OperationSnapshot is a point-in-time, JSON-friendly copy of an
// OperationState. Inter-step data in Context is not included.
type OperationSnapshot struct {
	ID         string               `json:"id"`
	Status     OperationStatusValue `json:"status"`
	StartTime  time.Time            `json:"start_time"`
	EndTime    *time.Time           `json:"end_time,omitempty"`
	DurationMS int64                `json:"duration_ms"`
	Steps      []StepSnapshot       `json:"steps"`
	Error      string               `json:"error,omitempty"`
}

// Snapshot copies the operation state
func (p *OperationState) Snapshot() OperationSnapshot {
	duration := p.Duration()

	p.mu.RLock()
	defer p.mu.RUnlock()

	snap := OperationSnapshot{
		ID:         p.ID,
		Status:     p.Status,
		StartTime:  p.StartTime,
		DurationMS: duration.Milliseconds(),
		Steps:      make([]StepSnapshot, 0, len(p.order)),
	}
	if p.EndTime != nil {
		end := *p.EndTime
		snap.EndTime = &end
	}
	if p.Error != nil {
		snap.Error = p.Error.Error()
	}
	for _, id := range p.order {
		if s := p.Steps[id]; s != nil {
			snap.Steps = append(snap.Steps, s.Snapshot())
		}
	}
	return snap
}
