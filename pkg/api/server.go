package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"

	"github.com/openfroyo/catalogd/pkg/catalog"
	"github.com/openfroyo/catalogd/pkg/stores"
	"github.com/openfroyo/catalogd/pkg/telemetry"
)

const (
	// maxBodyBytes bounds every request body.
	maxBodyBytes = 1 << 20

	shutdownTimeout = 10 * time.Second
)

// Server exposes the callback endpoint, the catalog requests and the operational endpoints.
type Server struct {
	callbackPath string
	catalog      *catalog.Service
	callbacks    *CallbackHandler
	store        stores.Store
	telemetry    *telemetry.Telemetry
	logger       zerolog.Logger
}

// NewServer creates the API server. callbackPath is where executors post callbacks.
func NewServer(
	callbackPath string,
	svc *catalog.Service,
	resolver Resolver,
	store stores.Store,
	tel *telemetry.Telemetry,
) *Server {
	logger := tel.Logger.NewComponentLogger("api").Zerolog()
	return &Server{
		callbackPath: callbackPath,
		catalog:      svc,
		callbacks:    NewCallbackHandler(resolver, tel.Logger.NewComponentLogger("callback").Zerolog()),
		store:        store,
		telemetry:    tel,
		logger:       logger,
	}
}

// Handler returns the routed and instrumented HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	s.route(mux, "POST "+s.callbackPath, s.callbacks)

	s.route(mux, "POST /v1/hosts", http.HandlerFunc(s.handleCreateHosts))
	s.route(mux, "POST /v1/hosts/backfill", http.HandlerFunc(s.handleBackfillHosts))
	s.route(mux, "PUT /v1/hosts/deploy", http.HandlerFunc(s.handleDeployHosts))
	s.route(mux, "PUT /v1/hosts/restart", http.HandlerFunc(s.handleRestartHosts))
	s.route(mux, "DELETE /v1/hosts/{serviceId}/{hostId}", http.HandlerFunc(s.handleDeleteHost))

	s.route(mux, "POST /v1/endpoints", http.HandlerFunc(s.handleCreateEndpoint))
	s.route(mux, "PUT /v1/endpoints/{endpointId}", http.HandlerFunc(s.handleUpdateEndpoint))
	s.route(mux, "DELETE /v1/endpoints/{serviceId}/{endpointId}", http.HandlerFunc(s.handleDeleteEndpoint))

	s.route(mux, "POST /v1/memberships", http.HandlerFunc(s.handleAddMemberships))
	s.route(mux, "DELETE /v1/memberships/{hostId}/{endpointId}", http.HandlerFunc(s.handleDeleteMembership))

	s.route(mux, "GET /v1/workitems", http.HandlerFunc(s.handleListWorkItems))
	s.route(mux, "GET /v1/audits/{serviceId}", http.HandlerFunc(s.handleListAudits))
	s.route(mux, "GET /healthz", http.HandlerFunc(s.handleHealth))

	metrics := s.telemetry.Config.Metrics
	if metrics.Enabled && metrics.ListenAddress == "" {
		mux.Handle("GET "+metrics.Path, s.telemetry.Metrics.Handler())
	}

	return mux
}

// route registers h under pattern, wrapped with request tracing and metrics.
func (s *Server) route(mux *http.ServeMux, pattern string, h http.Handler) {
	method, path, _ := strings.Cut(pattern, " ")
	mux.Handle(pattern, s.instrument(method, path, h))
}

func (s *Server) instrument(method, route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ctx, span := s.telemetry.Tracer.StartRequestSpan(r.Context(), method, route)
		defer span.End()
		ctx = s.telemetry.WithContext(ctx)

		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		if traceID := span.SpanContext().TraceID(); traceID.IsValid() {
			sw.Header().Set("X-Trace-Id", traceID.String())
		}

		r.Body = http.MaxBytesReader(sw, r.Body, maxBodyBytes)
		next.ServeHTTP(sw, r.WithContext(ctx))

		span.SetAttributes(telemetry.AttrHTTPStatusCode.Int(sw.status))
		if sw.status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(sw.status))
		}
		s.telemetry.Metrics.RecordHTTPRequest(route, sw.status)

		s.logger.Debug().
			Str("method", method).
			Str("route", route).
			Int("status", sw.status).
			Dur("duration", time.Since(start)).
			Msg("Request served")
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("address", addr).Str("callback_path", s.callbackPath).Msg("API server listening")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("API server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	s.logger.Info().Msg("Shutting down API server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down API server: %w", err)
	}
	return nil
}
