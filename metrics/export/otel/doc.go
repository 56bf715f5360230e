// Package otel publishes portalauth counters through an OpenTelemetry meter.
//
// Counters that describe one flow share an instrument and are told apart by
// the outcome attribute: portalauth.otp, portalauth.password_reset and
// portalauth.login. Email latency is reported as a bucket gauge keyed by le
// plus a count gauge, and only when the engine keeps latency histograms.
// The caller owns the MeterProvider.
package otel
