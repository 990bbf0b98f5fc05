// Package api hosts the HTTP server for icon harvesting. Routes:
//   - GET /healthz and /readyz for Kubernetes health checks.
//   - GET /metrics for Prometheus scraping.
//   - POST /upload and /api/upload take a CSV word list and return a zip.
//   - GET / serves the static upload page when a directory is configured.
package api
