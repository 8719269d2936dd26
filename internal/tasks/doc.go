// Package tasks orchestrates multi-request dashboard reads with real-time progress reporting.
//
// # Core Operations
//
//  1. [OverviewEngine.Overview] : read every dashboard section
//     - Songs, comments, ratings, subscriptions, karaoke and analytics list endpoints
//     - Bounded worker pool sharing one rate limiter
//     - Degraded sections (403, outage, timeout) are flagged, not fatal
//
//  2. [OverviewEngine.Export] : write an overview to disk
//     - One file per section in JSON, CSV, Markdown or text
//     - An export_manifest.json listing records, degraded flags and errors
//
// # Progress Reporting
//
// All operations use non-blocking channels for progress updates.
//
// The [ProgressUpdate] struct contains phase, step counters, messages, and optional data for advanced UI rendering.
// Updates use select with default to prevent blocking.
package tasks
