// Package api hosts the HTTP server, middleware, and REST handlers. Notable
// routes:
//   - GET /healthz and /readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/extract to run the pipeline over posted seeds.
//   - GET /v1/runs and /v1/runs/{run_id} for reports of recent runs.
package api
