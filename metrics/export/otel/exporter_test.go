package otel

import (
	"context"
	"sync"
	"testing"

	"github.com/premproperties/portalauth"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

type fakeSource struct {
	mu       sync.RWMutex
	snapshot portalauth.MetricsSnapshot
	dropped  uint64
}

func (f *fakeSource) MetricsSnapshot() portalauth.MetricsSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := portalauth.MetricsSnapshot{
		Counters:   make(map[portalauth.MetricID]uint64, len(f.snapshot.Counters)),
		Histograms: make(map[portalauth.MetricID][]uint64, len(f.snapshot.Histograms)),
	}
	for k, v := range f.snapshot.Counters {
		out.Counters[k] = v
	}
	for k, buckets := range f.snapshot.Histograms {
		out.Histograms[k] = append([]uint64(nil), buckets...)
	}
	return out
}

func (f *fakeSource) AuditDropped() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dropped
}

func newMeter() (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	reader := sdkmetric.NewManualReader()
	return reader, sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
}

// point returns the value recorded for name under exactly attrs.
func point(rm metricdata.ResourceMetrics, name string, attrs ...attribute.KeyValue) (int64, bool) {
	want := attribute.NewSet(attrs...)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			var points []metricdata.DataPoint[int64]
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				points = data.DataPoints
			case metricdata.Gauge[int64]:
				points = data.DataPoints
			}
			for _, dp := range points {
				if dp.Attributes.Equals(&want) {
					return dp.Value, true
				}
			}
		}
	}
	return 0, false
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	return rm
}

func TestExporterGroupsFlowsByOutcome(t *testing.T) {
	reader, provider := newMeter()
	src := &fakeSource{
		snapshot: portalauth.MetricsSnapshot{
			Counters: map[portalauth.MetricID]uint64{
				portalauth.MetricOTPRequest:                  9,
				portalauth.MetricOTPVerifySuccess:            3,
				portalauth.MetricOTPExhausted:                1,
				portalauth.MetricPasswordResetConfirmSuccess: 2,
				portalauth.MetricLoginFailure:                6,
				portalauth.MetricLegacyCredential:            4,
				portalauth.MetricRateLimitHit:                5,
			},
		},
		dropped: 2,
	}

	exp, err := NewExporter(provider.Meter("portalauth-test"), src)
	if err != nil {
		t.Fatalf("NewExporter failed: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}()
	rm := collect(t, reader)

	cases := []struct {
		name    string
		outcome string
		want    int64
	}{
		{"portalauth.otp", "requested", 9},
		{"portalauth.otp", "verified", 3},
		{"portalauth.otp", "rejected", 0},
		{"portalauth.otp", "exhausted", 1},
		{"portalauth.password_reset", "completed", 2},
		{"portalauth.password_reset", "failed", 0},
		{"portalauth.login", "failed", 6},
		{"portalauth.login", "legacy_credential", 4},
		{"portalauth.rate_limit.denied", "", 5},
		{"portalauth.session.issued", "", 0},
		{"portalauth.audit.dropped", "", 2},
	}
	for _, tc := range cases {
		var attrs []attribute.KeyValue
		if tc.outcome != "" {
			attrs = append(attrs, OutcomeKey.String(tc.outcome))
		}
		got, ok := point(rm, tc.name, attrs...)
		if !ok {
			t.Fatalf("%s{outcome=%q} not collected", tc.name, tc.outcome)
		}
		if got != tc.want {
			t.Fatalf("%s{outcome=%q}: expected %d, got %d", tc.name, tc.outcome, tc.want, got)
		}
	}

	if _, ok := point(rm, "portalauth.email.latency.count"); ok {
		t.Fatal("latency must not be reported when the engine keeps no histogram")
	}
}

func TestExporterEmailLatencyBuckets(t *testing.T) {
	reader, provider := newMeter()
	src := &fakeSource{
		snapshot: portalauth.MetricsSnapshot{
			Histograms: map[portalauth.MetricID][]uint64{
				portalauth.MetricDeliveryLatency: {1, 1, 1, 1, 1, 1, 1, 1},
			},
		},
	}
	exp, err := NewExporter(provider.Meter("portalauth-test"), src)
	if err != nil {
		t.Fatalf("NewExporter failed: %v", err)
	}
	defer exp.Close()
	rm := collect(t, reader)

	for le, want := range map[string]int64{"0.05": 1, "0.5": 4, "5": 7, "+Inf": 8} {
		got, ok := point(rm, "portalauth.email.latency.bucket", attribute.String("le", le))
		if !ok || got != want {
			t.Fatalf("bucket le=%s: expected %d, got %d (found=%v)", le, want, got, ok)
		}
	}
	if got, ok := point(rm, "portalauth.email.latency.count"); !ok || got != 8 {
		t.Fatalf("expected count 8, got %d (found=%v)", got, ok)
	}
}

func TestExporterRejectsNilInputs(t *testing.T) {
	_, provider := newMeter()
	meter := provider.Meter("portalauth-test")

	if _, err := NewExporter(meter, nil); err != ErrNilSource {
		t.Fatalf("expected ErrNilSource, got %v", err)
	}
	if _, err := NewExporter(nil, &fakeSource{}); err != ErrNilMeter {
		t.Fatalf("expected ErrNilMeter, got %v", err)
	}
}

func TestExporterCloseStopsObserving(t *testing.T) {
	reader, provider := newMeter()
	meter := provider.Meter("portalauth-test")

	exp, err := NewExporter(meter, &fakeSource{
		snapshot: portalauth.MetricsSnapshot{
			Counters: map[portalauth.MetricID]uint64{portalauth.MetricLoginSuccess: 4},
		},
	})
	if err != nil {
		t.Fatalf("NewExporter failed: %v", err)
	}
	if err := exp.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	rm := collect(t, reader)
	if _, ok := point(rm, "portalauth.login", OutcomeKey.String("succeeded")); ok {
		t.Fatal("expected no observations after Close")
	}

	var nilExp *Exporter
	if err := nilExp.Close(); err != nil {
		t.Fatalf("nil Close: %v", err)
	}
}

func TestExporterConcurrentCollectNoPanic(t *testing.T) {
	reader, provider := newMeter()
	meter := provider.Meter("portalauth-test")

	src := &fakeSource{
		snapshot: portalauth.MetricsSnapshot{
			Counters: map[portalauth.MetricID]uint64{
				portalauth.MetricLoginSuccess: 1,
			},
			Histograms: map[portalauth.MetricID][]uint64{
				portalauth.MetricDeliveryLatency: {1, 0, 0, 0, 0, 0, 0, 0},
			},
		},
	}

	exp, err := NewExporter(meter, src)
	if err != nil {
		t.Fatalf("NewExporter failed: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(v uint64) {
			defer wg.Done()
			src.mu.Lock()
			src.snapshot.Counters[portalauth.MetricLoginSuccess] = v
			src.mu.Unlock()

			var rm metricdata.ResourceMetrics
			_ = reader.Collect(context.Background(), &rm)
		}(uint64(i + 1))
	}
	wg.Wait()
}
