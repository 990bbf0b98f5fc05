// Architecture overview:
//   - HTTP API: internal/api.Server accepts a multipart CSV upload, parses it into words, and answers with a zip
//     archive plus report headers (X-Batch-ID, X-Processed-Words, X-Failed-Words, X-Batch-Report).
//   - Worker pool: internal/dispatcher runs a fixed number of long-lived workers over an unbounded FIFO queue. Each
//     submitted job gets a future; panics and errors settle the future instead of escaping the worker.
//   - Job executor: internal/worker creates the word directory, asks internal/search for up to two icon URLs (a plain Colly
//     fetch, optionally promoted to headless Chromedp), downloads them concurrently, and removes the directory if
//     anything fails.
//   - Aggregation: internal/batch submits every word before waiting, collects outcomes in completion order, and
//     reports per-word failures. internal/archive zips the surviving directories.
//   - Configuration & plumbing: Viper populates config from HARVESTER_* env vars and an optional file; zap provides
//     structured logging; Prometheus metrics are exported on /metrics; a Pub/Sub notification is published per batch
//     when a topic is configured.
//
// Quick checklist:
//   - Run locally: go run ./cmd/iconharvester serve --config config.yaml
//   - One-off batch: go run ./cmd/iconharvester batch --csv words.csv --out icons.zip
//   - Tune HARVESTER_POOL_WORKERS, HARVESTER_HTTP_TIMEOUT_SECONDS and HARVESTER_POOL_JOB_TIMEOUT_SECONDS (0 means no
//     limit) before pointing the service at a slow source.
package main
