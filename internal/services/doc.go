// Package services defines shared utilities consumed by the processing
// pipeline and its supporting components.
//
// Key responsibilities:
//   - Context helpers that stamp track IDs, worker IDs, and correlation
//     identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper that translate failures
//     into consistent retry-or-skip decisions.
//
// Use these helpers when wiring new pipeline logic so operational behaviour
// (error handling, observability, retries) stays uniform across components.
package services
