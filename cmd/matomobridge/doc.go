// Package main hosts the bridge entrypoint.
//
// Architecture overview:
//   - HTTP surface: internal/api.Server exposes health, metrics, the annotate and view-count APIs, and the settings
//     screen. Every other path is reverse proxied to upstream.url through internal/bridge.
//   - Tracking pipeline: for each eligible GET the bridge resolves the effective options (store plus environment
//     overrides), identifies the visitor, sends the server-side page view (login call first), refreshes view counts for
//     single content pages, annotates configured content blocks, and injects the client script before </head>.
//   - Persistence: options, user memberships, and view counts live in Postgres when db.dsn is set, otherwise in memory
//     seeded from the memberships section of the config file.
//   - Configuration & plumbing: Viper populates config from env/files; zap provides structured logging; Prometheus
//     metrics are exported on /metrics; collector calls are traced with OpenTelemetry.
//
// Commands:
//   - serve (default): run the HTTP server until SIGINT/SIGTERM, then drain within server.shutdown_timeout_seconds.
//   - check: run the collector connectivity check with the effective options and print the notices.
//   - annotate -name NAME: read an HTML fragment on stdin and print it annotated for content tracking.
//
// Quick checklist:
//   - Configure env vars: MATOMO_BRIDGE_UPSTREAM_URL, MATOMO_BRIDGE_SITE_BASE_URL, MATOMO_BRIDGE_DB_DSN, and the
//     MAI_ANALYTICS* option overrides.
//   - Run locally: go run ./cmd/matomobridge -config config.yaml serve
package main
