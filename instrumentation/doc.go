// Package instrumentation provides OpenTelemetry metrics and tracing
// for the validator and its storage backends.
//
// When disabled (or not installed at all) every component falls back to
// no-op providers, so instrumentation never becomes a hard dependency
// of the decision path.
package instrumentation
