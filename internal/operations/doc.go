// Package operations runs the enrichment pipeline as an ordered list of
// steps and tracks the state of every run.
//
// Core Components:
//
// Manager: plans the steps for a request, runs them one after another and
// keeps a snapshot of every run for the status endpoint. A plain run is
// load, clean, checkpoint, impute, enrich and export. A checkpoint run
// replaces the first three with reload.
//
// Step: a single unit of work. Steps hand data to each other through the
// operation context: the working table under ContextKeyTable and the joined
// output under ContextKeyEnriched.
//
// Registry: holds the steps in registration order.
//
// State: runtime status of the run and of each step, with snapshots that are
// safe to read while the run is in progress.
//
// Error Handling:
//
// A failed step is recorded and the run moves on. Only a fatal error, raised
// when the input or the checkpoint cannot be read, stops the run early; the
// remaining steps are marked skipped. Cancelling the context stops the run
// between steps and leaves it in the cancelled state.
//
// Usage:
//
//	registry, err := operations.NewPipelineRegistry(components)
//	if err != nil {
//		return err
//	}
//	manager := operations.NewManager(registry, operations.NewConfig(), tracer, logger)
//	resp, err := manager.Execute(ctx, operations.OperationRequest{Input: "collisions.csv"})
package operations
