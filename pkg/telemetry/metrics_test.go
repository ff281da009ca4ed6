package telemetry

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/openfroyo/catalogd/pkg/engine"
)

func newTestMetrics(t *testing.T) *Metrics {
	t.Helper()
	cfg := DefaultConfig().Metrics
	cfg.Namespace = "test"
	m, err := NewMetrics(cfg)
	if err != nil {
		t.Fatalf("NewMetrics failed: %v", err)
	}
	return m
}

func TestMetricsRecordDispatch(t *testing.T) {
	m := newTestMetrics(t)
	action := engine.Action{Kind: engine.KindHost, Operation: engine.OperationCreate}

	m.RecordDispatch(action, engine.DispatchPending, 10*time.Millisecond)
	m.RecordDispatch(action, engine.DispatchPending, 20*time.Millisecond)
	m.RecordDispatch(action, engine.DispatchFailed, time.Millisecond)

	pending := testutil.ToFloat64(m.workItemsSent.WithLabelValues("host", "create", engine.DispatchPending.String()))
	if pending != 2 {
		t.Errorf("expected 2 pending dispatches, got %v", pending)
	}
	failed := testutil.ToFloat64(m.workItemsSent.WithLabelValues("host", "create", engine.DispatchFailed.String()))
	if failed != 1 {
		t.Errorf("expected 1 failed dispatch, got %v", failed)
	}
	if n := testutil.CollectAndCount(m.sendDuration); n != 1 {
		t.Errorf("expected 1 send duration series, got %d", n)
	}
}

func TestMetricsRecordOutcome(t *testing.T) {
	m := newTestMetrics(t)
	action := engine.Action{Kind: engine.KindEndpoint, Operation: engine.OperationDelete}

	m.RecordOutcome(action, true, time.Second)
	m.RecordOutcome(action, false, time.Second)
	m.RecordOutcome(action, false, time.Second)

	if v := testutil.ToFloat64(m.callbacks.WithLabelValues("endpoint", "delete", "success")); v != 1 {
		t.Errorf("expected 1 success, got %v", v)
	}
	if v := testutil.ToFloat64(m.callbacks.WithLabelValues("endpoint", "delete", "fail")); v != 2 {
		t.Errorf("expected 2 failures, got %v", v)
	}
}

func TestMetricsChainCounters(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordIntegrityFault(engine.ErrCodeUnknownWorkItem)
	m.RecordIntegrityFault(engine.ErrCodeUnknownWorkItem)
	m.RecordRollback(3)
	m.RecordRollback(0)
	m.RecordExpired(1)
	m.SetPendingWorkItems(7)

	if v := testutil.ToFloat64(m.integrityFaults.WithLabelValues(engine.ErrCodeUnknownWorkItem)); v != 2 {
		t.Errorf("expected 2 integrity faults, got %v", v)
	}
	if v := testutil.ToFloat64(m.rolledBack); v != 3 {
		t.Errorf("expected 3 rolled back, got %v", v)
	}
	if v := testutil.ToFloat64(m.expired); v != 1 {
		t.Errorf("expected 1 expired, got %v", v)
	}
	if v := testutil.ToFloat64(m.pending); v != 7 {
		t.Errorf("expected 7 pending, got %v", v)
	}
}

func TestMetricsDisabledIsNoop(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Enabled: false})
	if err != nil {
		t.Fatalf("NewMetrics failed: %v", err)
	}

	action := engine.Action{Kind: engine.KindHost, Operation: engine.OperationDeploy}
	m.RecordDispatch(action, engine.DispatchSucceeded, time.Millisecond)
	m.RecordOutcome(action, true, time.Millisecond)
	m.RecordIntegrityFault("X")
	m.RecordRollback(1)
	m.RecordExpired(1)
	m.RecordHTTPRequest("/healthz", 200)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 from disabled metrics handler, got %d", rec.Code)
	}
}

func TestMetricsHandlerExposesNamespace(t *testing.T) {
	m := newTestMetrics(t)
	m.RecordHTTPRequest("/v1/workitems", 200)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `test_http_requests_total{code="200",route="/v1/workitems"} 1`) {
		t.Errorf("expected request counter in exposition, got:\n%s", rec.Body.String())
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		valid  bool
	}{
		{"default", func(*Config) {}, true},
		{"production", func(c *Config) { *c = *ProductionConfig() }, true},
		{"development", func(c *Config) { *c = *DevelopmentConfig() }, true},
		{"missing service name", func(c *Config) { c.ServiceName = "" }, false},
		{"bad level", func(c *Config) { c.Logging.Level = "verbose" }, false},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, false},
		{"bad exporter", func(c *Config) { c.Tracing.Enabled = true; c.Tracing.Exporter = "jaeger" }, false},
		{"bad sampling rate", func(c *Config) { c.Tracing.SamplingRate = 2 }, false},
		{"relative metrics path", func(c *Config) { c.Metrics.Path = "metrics" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.valid && err != nil {
				t.Errorf("expected valid config, got %v", err)
			}
			if !tt.valid && err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoggerWithWorkItem(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(LoggingConfig{Level: "debug", Format: "json"}, &buf)

	logger.NewComponentLogger("processor").WithWorkItem("wi-1", "host", "deploy").Info("Dispatched")

	out := buf.String()
	for _, want := range []string{`"component":"processor"`, `"work_item_id":"wi-1"`, `"kind":"host"`, `"operation":"deploy"`, `"message":"Dispatched"`} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %s in log line %s", want, out)
		}
	}
}
