package otel

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/premproperties/portalauth"
	"github.com/premproperties/portalauth/metrics/export/internaldefs"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

// OutcomeKey splits a flow instrument by result.
const OutcomeKey = attribute.Key("outcome")

type metricsSource interface {
	MetricsSnapshot() portalauth.MetricsSnapshot
	AuditDropped() uint64
}

type outcome struct {
	id    portalauth.MetricID
	attrs attribute.Set
}

// flow is one OTel counter fed by several engine counters.
type flow struct {
	name     string
	desc     string
	outcomes []outcome
	counter  metric.Int64ObservableCounter
}

func tagged(id portalauth.MetricID, label string) outcome {
	return outcome{id: id, attrs: attribute.NewSet(OutcomeKey.String(label))}
}

func single(id portalauth.MetricID) []outcome {
	return []outcome{{id: id, attrs: attribute.NewSet()}}
}

func portalFlows() []*flow {
	return []*flow{
		{
			name: "portalauth.otp",
			desc: "One-time code activity by outcome.",
			outcomes: []outcome{
				tagged(portalauth.MetricOTPRequest, "requested"),
				tagged(portalauth.MetricOTPVerifySuccess, "verified"),
				tagged(portalauth.MetricOTPVerifyFailure, "rejected"),
				tagged(portalauth.MetricOTPExhausted, "exhausted"),
			},
		},
		{
			name: "portalauth.password_reset",
			desc: "Password reset activity by outcome.",
			outcomes: []outcome{
				tagged(portalauth.MetricPasswordResetRequest, "requested"),
				tagged(portalauth.MetricPasswordResetConfirmSuccess, "completed"),
				tagged(portalauth.MetricPasswordResetConfirmFailure, "failed"),
			},
		},
		{
			name: "portalauth.login",
			desc: "Password logins by outcome.",
			outcomes: []outcome{
				tagged(portalauth.MetricLoginSuccess, "succeeded"),
				tagged(portalauth.MetricLoginFailure, "failed"),
				tagged(portalauth.MetricLegacyCredential, "legacy_credential"),
			},
		},
		{
			name:     "portalauth.session.issued",
			desc:     "Session cookies issued.",
			outcomes: single(portalauth.MetricSessionIssued),
		},
		{
			name:     "portalauth.rate_limit.denied",
			desc:     "Requests refused by a rate limiter.",
			outcomes: single(portalauth.MetricRateLimitHit),
		},
		{
			name:     "portalauth.email.failed",
			desc:     "Emails the notifier could not send.",
			outcomes: single(portalauth.MetricDeliveryFailure),
		},
		{
			name:     "portalauth.tokens.purged",
			desc:     "Expired code and reset records removed by the sweeper.",
			outcomes: single(portalauth.MetricTokensPurged),
		},
	}
}

// Exporter publishes engine snapshots through an OTel meter.
type Exporter struct {
	source       metricsSource
	registration metric.Registration
	flows        []*flow

	latencyBuckets metric.Int64ObservableGauge
	latencyCount   metric.Int64ObservableGauge
	bucketAttrs    [8]attribute.Set
	auditDropped   metric.Int64ObservableCounter
}

// NewExporter registers one callback on meter that reads a single snapshot
// per collection. Close unregisters it.
func NewExporter(meter metric.Meter, source metricsSource) (*Exporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &Exporter{source: source, flows: portalFlows()}
	observables := make([]metric.Observable, 0, len(e.flows)+3)

	for _, f := range e.flows {
		c, err := meter.Int64ObservableCounter(f.name, metric.WithDescription(f.desc), metric.WithUnit("{event}"))
		if err != nil {
			return nil, fmt.Errorf("create counter %s: %w", f.name, err)
		}
		f.counter = c
		observables = append(observables, c)
	}

	var err error
	e.latencyBuckets, err = meter.Int64ObservableGauge("portalauth.email.latency.bucket",
		metric.WithDescription("Cumulative email send count at or under the le bound in seconds."),
		metric.WithUnit("{email}"))
	if err != nil {
		return nil, fmt.Errorf("create latency bucket gauge: %w", err)
	}
	e.latencyCount, err = meter.Int64ObservableGauge("portalauth.email.latency.count",
		metric.WithDescription("Email sends timed."),
		metric.WithUnit("{email}"))
	if err != nil {
		return nil, fmt.Errorf("create latency count gauge: %w", err)
	}
	for i, bound := range internaldefs.HistogramUpperBounds {
		e.bucketAttrs[i] = attribute.NewSet(attribute.String("le", strconv.FormatFloat(bound, 'g', -1, 64)))
	}
	e.bucketAttrs[len(e.bucketAttrs)-1] = attribute.NewSet(attribute.String("le", "+Inf"))

	e.auditDropped, err = meter.Int64ObservableCounter("portalauth.audit.dropped",
		metric.WithDescription(internaldefs.AuditDroppedHelp),
		metric.WithUnit("{event}"))
	if err != nil {
		return nil, fmt.Errorf("create audit dropped counter: %w", err)
	}
	observables = append(observables, e.latencyBuckets, e.latencyCount, e.auditDropped)

	e.registration, err = meter.RegisterCallback(e.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	return e, nil
}

func (e *Exporter) observe(_ context.Context, o metric.Observer) error {
	snap := e.source.MetricsSnapshot()
	for _, f := range e.flows {
		for _, oc := range f.outcomes {
			o.ObserveInt64(f.counter, int64(snap.Counters[oc.id]), metric.WithAttributeSet(oc.attrs))
		}
	}

	if raw, ok := snap.Histograms[portalauth.MetricDeliveryLatency]; ok {
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(raw))
		for i, n := range cumulative {
			o.ObserveInt64(e.latencyBuckets, int64(n), metric.WithAttributeSet(e.bucketAttrs[i]))
		}
		o.ObserveInt64(e.latencyCount, int64(cumulative[len(cumulative)-1]))
	}

	o.ObserveInt64(e.auditDropped, int64(e.source.AuditDropped()))
	return nil
}

func (e *Exporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
