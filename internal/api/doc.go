// Package api hosts the HTTP server, middleware, and REST handlers. Notable
// routes:
//   - GET /healthz and /readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/resources and /v1/resources/{id} for request-time gathering.
//   - POST /v1/curator/runs to trigger a curator pass, and GET to list
//     recent runs.
package api
