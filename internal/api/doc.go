// Package api hosts the HTTP server in front of the site. Notable routes:
//   - GET /healthz / readyz for Kubernetes health checks.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/annotate to mark up a content fragment for content tracking.
//   - GET /v1/views?url= for the cached view counts of a page.
//   - GET/POST /admin/settings for the collector settings screen.
//   - POST /admin/session/login and /logout to record a login in the session
//     cookie (session identity mode only).
//
// Every other request is proxied to the upstream site through the tracking
// pipeline.
package api
