package operations

import (
	"time"
)

// Pipeline step identifiers
const (
	StepIDLoad       = "load"
	StepIDClean      = "clean"
	StepIDCheckpoint = "checkpoint"
	StepIDReload     = "reload"
	StepIDImpute     = "impute"
	StepIDEnrich     = "enrich"
	StepIDExport     = "export"
)

// Pipeline step names
const (
	StepNameLoad       = "Load Input"
	StepNameClean      = "Clean Records"
	StepNameCheckpoint = "Write Checkpoint"
	StepNameReload     = "Reload Checkpoint"
	StepNameImpute     = "Impute Zip Codes"
	StepNameEnrich     = "Enrich Demographics"
	StepNameExport     = "Export CSV"
)

// Context keys for data passed between steps
const (
	ContextKeyTable    = "table"
	ContextKeyEnriched = "enriched"
)

// Config keys copied from the request
const (
	ConfigKeyInput          = "input"
	ConfigKeyFromCheckpoint = "from_checkpoint"
)

// Metadata keys set on step states
const (
	MetadataKeyReport  = "report"
	MetadataKeyRecords = "records"
	MetadataKeyPath    = "path"
)

// OperationRequest represents a request to run the pipeline
type OperationRequest struct {
	ID string `json:"id"`

	// Input overrides the configured input location for the load step
	Input string `json:"input,omitempty"`

	// FromCheckpoint replaces load and clean with a reload of the parquet
	// checkpoint written by a previous run
	FromCheckpoint bool `json:"from_checkpoint"`

	Parameters map[string]interface{} `json:"parameters,omitempty"`
}

// OperationResponse represents the response from a pipeline run
type OperationResponse struct {
	ID       string               `json:"id"`
	Status   OperationStatusValue `json:"status"`
	Duration time.Duration        `json:"duration"`
	Steps    []StepSnapshot       `json:"steps"`
	Error    string               `json:"error,omitempty"`
}
