// Package services defines shared utilities consumed by the assembly stages
// and external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, episode IDs, stage names, attempt
//     numbers, and correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper. Every fatal failure maps
//     to a stable error_kind string through Kind, and Retryable tells the
//     orchestrator whether another attempt can help.
//
// Use these helpers when wiring new stage logic so operational behaviour (error
// handling, observability, retries) stays uniform across the pipeline.
package services
