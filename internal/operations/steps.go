package operations

import (
	"context"
	"fmt"

	"zipenrich/internal/cleaner"
	"zipenrich/internal/columnar"
	"zipenrich/internal/demographics"
	"zipenrich/internal/exporter"
	"zipenrich/internal/imputer"
	"zipenrich/internal/loader"
	"zipenrich/pkg/contracts/domain"
)

// TableFrom returns the table held by the run
func TableFrom(state *OperationState) (*domain.Table, error) {
	v, ok := state.GetContext(ContextKeyTable)
	if !ok {
		return nil, fmt.Errorf("no table loaded")
	}
	table, ok := v.(*domain.Table)
	if !ok || table == nil {
		return nil, fmt.Errorf("context key %q holds %T, not a table", ContextKeyTable, v)
	}
	return table, nil
}

// EnrichedFrom returns the enriched records held by the run
func EnrichedFrom(state *OperationState) ([]domain.EnrichedRecord, error) {
	v, ok := state.GetContext(ContextKeyEnriched)
	if !ok {
		return nil, fmt.Errorf("no enriched records")
	}
	enriched, ok := v.([]domain.EnrichedRecord)
	if !ok {
		return nil, fmt.Errorf("context key %q holds %T, not enriched records", ContextKeyEnriched, v)
	}
	return enriched, nil
}

func setStepMetadata(state *OperationState, stepID, key string, value interface{}) {
	if s := state.GetStage(stepID); s != nil {
		s.SetMetadata(key, value)
	}
}

// requireTable is the Validate of every step that transforms the table
func requireTable(state *OperationState) error {
	_, err := TableFrom(state)
	return err
}

// LoadStep reads the input file into the run's table. Any failure to read
// the input is fatal.
type LoadStep struct {
	BaseStage
	loader     *loader.Loader
	input      string
	sourceOpts loader.SourceOptions
}

// NewLoadStep creates the load step. input is used unless the request
// overrides it.
func NewLoadStep(l *loader.Loader, input string, sourceOpts loader.SourceOptions) *LoadStep {
	return &LoadStep{
		BaseStage:  NewBaseStage(StepIDLoad, StepNameLoad),
		loader:     l,
		input:      input,
		sourceOpts: sourceOpts,
	}
}

// Execute implements Step
func (s *LoadStep) Execute(ctx context.Context, state *OperationState) error {
	location := state.GetConfigString(ConfigKeyInput)
	if location == "" {
		location = s.input
	}
	if location == "" {
		return NewFatalError(s.ID(), "no input configured", nil)
	}

	src, err := loader.NewSource(location, s.sourceOpts)
	if err != nil {
		return NewFatalError(s.ID(), "cannot open input", err)
	}

	table, report, err := s.loader.Load(ctx, src)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return NewFatalError(s.ID(), "cannot read input", err)
	}

	state.SetContext(ContextKeyTable, table)
	setStepMetadata(state, s.ID(), MetadataKeyReport, report)
	setStepMetadata(state, s.ID(), MetadataKeyPath, src.Name())
	return nil
}

// CleanStep applies the cleaning rules to the table
type CleanStep struct {
	BaseStage
	cleaner *cleaner.Cleaner
}

// NewCleanStep creates the clean step
func NewCleanStep(c *cleaner.Cleaner) *CleanStep {
	return &CleanStep{BaseStage: NewBaseStage(StepIDClean, StepNameClean), cleaner: c}
}

// Validate implements Step
func (s *CleanStep) Validate(state *OperationState) error {
	return requireTable(state)
}

// Execute implements Step
func (s *CleanStep) Execute(ctx context.Context, state *OperationState) error {
	table, err := TableFrom(state)
	if err != nil {
		return err
	}
	report, err := s.cleaner.Clean(ctx, table)
	if report != nil {
		setStepMetadata(state, s.ID(), MetadataKeyReport, report)
	}
	return err
}

// CheckpointStep writes the cleaned table to parquet
type CheckpointStep struct {
	BaseStage
	path string
	opts columnar.WriteOptions
}

// NewCheckpointStep creates the checkpoint step
func NewCheckpointStep(path string, opts columnar.WriteOptions) *CheckpointStep {
	return &CheckpointStep{
		BaseStage: NewBaseStage(StepIDCheckpoint, StepNameCheckpoint),
		path:      path,
		opts:      opts,
	}
}

// Validate implements Step
func (s *CheckpointStep) Validate(state *OperationState) error {
	return requireTable(state)
}

// Execute implements Step
func (s *CheckpointStep) Execute(ctx context.Context, state *OperationState) error {
	table, err := TableFrom(state)
	if err != nil {
		return err
	}
	if err := columnar.WriteFile(s.path, table, s.opts); err != nil {
		return err
	}
	setStepMetadata(state, s.ID(), MetadataKeyPath, s.path)
	return nil
}

// ReloadStep reads the table back from a parquet checkpoint. It stands in
// for load and clean, so a failure is fatal.
type ReloadStep struct {
	BaseStage
	path string
}

// NewReloadStep creates the reload step
func NewReloadStep(path string) *ReloadStep {
	return &ReloadStep{BaseStage: NewBaseStage(StepIDReload, StepNameReload), path: path}
}

// Execute implements Step
func (s *ReloadStep) Execute(ctx context.Context, state *OperationState) error {
	table, err := columnar.ReadFile(ctx, s.path)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return NewFatalError(s.ID(), "cannot read checkpoint", err)
	}
	state.SetContext(ContextKeyTable, table)
	setStepMetadata(state, s.ID(), MetadataKeyPath, s.path)
	return nil
}

// ImputeStep fills missing zip codes and boroughs
type ImputeStep struct {
	BaseStage
	imputer *imputer.Imputer
}

// NewImputeStep creates the impute step
func NewImputeStep(im *imputer.Imputer) *ImputeStep {
	return &ImputeStep{BaseStage: NewBaseStage(StepIDImpute, StepNameImpute), imputer: im}
}

// Validate implements Step
func (s *ImputeStep) Validate(state *OperationState) error {
	return requireTable(state)
}

// Execute implements Step
func (s *ImputeStep) Execute(ctx context.Context, state *OperationState) error {
	table, err := TableFrom(state)
	if err != nil {
		return err
	}
	report := s.imputer.Impute(ctx, table)
	setStepMetadata(state, s.ID(), MetadataKeyReport, report)
	if report.Interrupted {
		return NewCancellationError(s.ID())
	}
	return nil
}

// EnrichStep joins demographic data onto every record
type EnrichStep struct {
	BaseStage
	enricher *demographics.Enricher
}

// NewEnrichStep creates the enrich step
func NewEnrichStep(e *demographics.Enricher) *EnrichStep {
	return &EnrichStep{BaseStage: NewBaseStage(StepIDEnrich, StepNameEnrich), enricher: e}
}

// Validate implements Step
func (s *EnrichStep) Validate(state *OperationState) error {
	return requireTable(state)
}

// Execute implements Step
func (s *EnrichStep) Execute(ctx context.Context, state *OperationState) error {
	table, err := TableFrom(state)
	if err != nil {
		return err
	}
	enriched, stats := s.enricher.Enrich(ctx, table.Records)
	state.SetContext(ContextKeyEnriched, enriched)
	setStepMetadata(state, s.ID(), MetadataKeyReport, stats)
	if ctx.Err() != nil {
		return NewCancellationError(s.ID())
	}
	return nil
}

// ExportStep writes the enriched table as CSV
type ExportStep struct {
	BaseStage
	writer *exporter.CSVWriter
	path   string
}

// NewExportStep creates the export step
func NewExportStep(w *exporter.CSVWriter, path string) *ExportStep {
	return &ExportStep{BaseStage: NewBaseStage(StepIDExport, StepNameExport), writer: w, path: path}
}

// Validate implements Step
func (s *ExportStep) Validate(state *OperationState) error {
	if err := requireTable(state); err != nil {
		return err
	}
	_, err := EnrichedFrom(state)
	return err
}

// Execute implements Step
func (s *ExportStep) Execute(ctx context.Context, state *OperationState) error {
	table, err := TableFrom(state)
	if err != nil {
		return err
	}
	enriched, err := EnrichedFrom(state)
	if err != nil {
		return err
	}
	if err := s.writer.WriteEnriched(s.path, enriched, table.Columns); err != nil {
		return err
	}
	setStepMetadata(state, s.ID(), MetadataKeyPath, s.path)
	return nil
}

// Components are the collaborators of the pipeline steps
type Components struct {
	Loader         *loader.Loader
	Input          string
	SourceOptions  loader.SourceOptions
	Cleaner        *cleaner.Cleaner
	CheckpointPath string
	Parquet        columnar.WriteOptions
	Imputer        *imputer.Imputer
	Enricher       *demographics.Enricher
	Exporter       *exporter.CSVWriter
	OutputPath     string
}

// NewPipelineRegistry registers every pipeline step in execution order
func NewPipelineRegistry(c Components) (*Registry, error) {
	if c.Loader == nil || c.Cleaner == nil || c.Imputer == nil || c.Enricher == nil || c.Exporter == nil {
		return nil, fmt.Errorf("pipeline components are incomplete")
	}

	registry := NewRegistry()
	steps := []Step{
		NewLoadStep(c.Loader, c.Input, c.SourceOptions),
		NewCleanStep(c.Cleaner),
		NewCheckpointStep(c.CheckpointPath, c.Parquet),
		NewReloadStep(c.CheckpointPath),
		NewImputeStep(c.Imputer),
		NewEnrichStep(c.Enricher),
		NewExportStep(c.Exporter, c.OutputPath),
	}
	for _, step := range steps {
		if err := registry.Register(step); err != nil {
			return nil, err
		}
	}
	return registry, nil
}
