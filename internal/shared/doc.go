// Package shared holds helpers used by more than one pipeline package.
//
// The testutil subpackage provides a capturing slog handler for
// asserting on log output. It must not import any pipeline package so that every
// package's tests can depend on it.
package shared
