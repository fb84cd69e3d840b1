// Package api hosts the operator HTTP server. Notable routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/runs for recent session run summaries.
//   - GET /v1/sessions/{session}/snapshot to read a written snapshot back.
//   - POST /v1/sessions/{session}/runs to trigger a run asynchronously.
package api
