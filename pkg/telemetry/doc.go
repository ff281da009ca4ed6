// Package telemetry provides observability instrumentation for catalogd.
//
// It combines structured logging (zerolog), distributed tracing (OpenTelemetry)
// and metrics (Prometheus) behind a single Telemetry value built from Config.
//
// # Usage
//
// Initialize telemetry at startup:
//
//	cfg := telemetry.DefaultConfig()
//	cfg.ServiceVersion = version
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(context.Background())
//
//	ctx = tel.WithContext(ctx)
//
// # Structured Logging
//
// Component loggers carry a "component" field. Work item loggers add
// work_item_id, kind and operation:
//
//	logger := tel.Logger.NewComponentLogger("callback")
//	logger.WithWorkItem(item.ID, string(item.Kind), string(item.Operation)).Info("Callback received")
//
// Packages that take a zerolog.Logger directly, such as the engine, receive
// tel.Logger.NewComponentLogger("processor").Zerolog().
//
// # Distributed Tracing
//
// Tracer satisfies engine.SpanStarter, so the processor emits workitem.submit
// and workitem.resolve spans through it. The API opens one server span per request
// with StartRequestSpan, and the webhook sender injects the trace context into
// outgoing requests. Supported exporters are otlp (gRPC), stdout and none.
//
// # Metrics
//
// Metrics implements engine.Recorder:
//
//	workitems_sent_total{kind,operation,result}
//	workitem_send_duration_seconds{kind,operation}
//	workitem_callbacks_total{kind,operation,outcome}
//	workitem_callback_duration_seconds{kind,operation}
//	workitem_integrity_faults_total{code}
//	workitems_rolled_back_total
//	workitems_expired_total
//	workitems_pending
//	http_requests_total{route,code}
//
// Every name is prefixed with the configured namespace. Handler exposes the
// registry, normally mounted on the API listener at /metrics; setting
// metrics.listen_address starts a dedicated listener instead.
package telemetry
