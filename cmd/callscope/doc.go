// Package main hosts the callscope CLI entrypoint and command graph.
//
// Commands fall into three groups: one-shot processing ("process",
// "segment"), long-running intake ("serve" with the HTTP API, "watch" for a
// drop folder), and inspection ("calls", "config", "preflight"). Every
// command resolves configuration once through commandContext and builds its
// collaborators through newApp, so the wiring order (config, logger, call
// store, segment store, providers, pipeline, scheduler, ingest) lives in a
// single place.
package main
