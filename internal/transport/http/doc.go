// Package http serves the read-only status API of a pipeline process.
//
// Routes:
//
//	GET /healthz        liveness probe
//	GET /status         snapshot of the most recent run
//	GET /status/{id}    snapshot of a run by operation ID
//	GET /metrics        Prometheus exposition
//
// Handlers stay thin: they read a snapshot from the operations manager and
// render it as JSON. Errors are rendered as RFC 7807 problem documents.
package http
