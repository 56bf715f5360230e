// Package internaldefs names the metrics both exporters publish, so the
// Prometheus and OpenTelemetry views of the engine stay identical.
package internaldefs
