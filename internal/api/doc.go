// Package api serves the HTTP surface used by web clients: uploading call
// recordings, browsing calls and their analyses, and watching jobs.
//
// # Routes
//
//	POST   /api/calls                multipart upload (file, owner, name)
//	GET    /api/calls                list calls (owner, status, limit)
//	GET    /api/calls/{id}           one call
//	GET    /api/calls/{id}/analysis  the call's scorecard
//	GET    /api/jobs                 tracked jobs
//	GET    /api/jobs/{id}            one job
//	DELETE /api/jobs/{id}            dismiss a job (it keeps running)
//	GET    /api/status               counts and backend locations
//	GET    /ws/jobs                  websocket stream of job snapshots
//
// Every route except the websocket answers JSON; errors use the
// {"error": "..."} envelope. When a token is configured, requests must carry
// "Authorization: Bearer <token>".
//
// Job snapshots use snake_case JSON tags and RFC3339 timestamps. The stream
// opens with the current job list and then sends one message per update.
// Slow clients miss updates instead of stalling jobs.
package api
