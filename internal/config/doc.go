// Package config loads, normalizes, and validates callscope configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// GEMINI_API_KEY, OPENAI_API_KEY, AWS_REGION and SUPABASE_URL. The Config type
// centralizes the segmentation budget, provider credentials, retry policy and
// segment store backend so the CLI, HTTP server and watcher share one view.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
