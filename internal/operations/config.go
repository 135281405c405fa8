package operations

import (
	"time"
)

// Config represents the manager configuration
type Config struct {
	// StageTimeouts bounds individual steps; steps without an entry use
	// DefaultTimeout
	StageTimeouts map[string]time.Duration `json:"stage_timeouts"`

	// DefaultTimeout bounds steps without their own timeout. Zero means no
	// timeout.
	DefaultTimeout time.Duration `json:"default_timeout"`
}

// NewConfig returns the default manager configuration. Imputation is left
// unbounded because its duration scales with the geocoder's rate limit.
func NewConfig() *Config {
	return &Config{
		StageTimeouts: map[string]time.Duration{
			StepIDLoad:       10 * time.Minute,
			StepIDClean:      10 * time.Minute,
			StepIDCheckpoint: 10 * time.Minute,
			StepIDReload:     10 * time.Minute,
			StepIDExport:     10 * time.Minute,
		},
	}
}

// GetStageTimeout returns the timeout for a specific step, zero for none
func (c *Config) GetStageTimeout(stageID string) time.Duration {
	if timeout, ok := c.StageTimeouts[stageID]; ok {
		return timeout
	}
	return c.DefaultTimeout
}

// SetStageTimeout sets the timeout for a specific step
func (c *Config) SetStageTimeout(stageID string, timeout time.Duration) {
	if c.StageTimeouts == nil {
		c.StageTimeouts = make(map[string]time.Duration)
	}
	c.StageTimeouts[stageID] = timeout
}
