// Package api hosts the operator HTTP surface. Routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/sources lists scheduled sources with their last run.
//   - POST /v1/sources/{name}/trigger queues a manual run.
package api
