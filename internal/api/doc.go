// Package api hosts the operational HTTP surface. Notable routes:
//   - GET /healthz and /readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/pools for live proxy pool health.
//   - GET /v1/progress for the active run's snapshot.
package api
