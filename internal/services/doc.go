// Package services defines shared utilities consumed by the pipeline and the
// provider integrations.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, call IDs, stage names, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper so callers can tell input
//     mistakes apart from transient provider trouble.
//   - HTTPStatusError, the common shape every provider client returns for
//     non-2xx responses, and Snippet for bounded error excerpts.
//
// Use these helpers when wiring new provider code so error handling and
// observability stay uniform across the pipeline.
package services
