// Package prometheus exposes engine metrics through prometheus/client_golang.
//
// [Collector] reads Engine.MetricsSnapshot on every scrape; nothing is
// registered globally. [Handler] wraps a private registry holding the
// collector plus the Go runtime collector, ready to mount at /metrics.
package prometheus
