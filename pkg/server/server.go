// Package server exposes the engine over HTTP. Turns stream as server-sent
// events; routing previews, cache invalidation and stats are plain JSON.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/pario-ai/tierwise/pkg/dispatch"
	"github.com/pario-ai/tierwise/pkg/engine"
	"github.com/pario-ai/tierwise/pkg/ledger"
	"github.com/pario-ai/tierwise/pkg/metrics"
	"github.com/pario-ai/tierwise/pkg/models"
)

// CacheHeader reports whether a turn was served from cache. It is sent as a
// trailer because the answer is only known once the turn has finished.
const CacheHeader = "X-Tierwise-Cache"

// Engine is the subset of engine.Engine the server needs.
type Engine interface {
	Handle(ctx context.Context, t engine.Turn, emit dispatch.EmitFunc, opts ...dispatch.CallOption) (*engine.Result, error)
	Route(ctx context.Context, sig models.ConversationSignal, utterance string) models.RoutingDecision
	InvalidateTenant(tenant string) int
	InvalidateTag(tag string) int
	UsageStats(f models.UsageFilter) models.UsageStats
	CacheStats() models.CacheStats
}

// Server is the tierwise HTTP front end.
type Server struct {
	listen  string
	engine  Engine
	metrics *metrics.Collector
	mux     *http.ServeMux
	logger  *zap.Logger
}

// New creates a Server. m may be nil to disable /metrics.
func New(listen string, e Engine, m *metrics.Collector, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		listen:  listen,
		engine:  e,
		metrics: m,
		mux:     http.NewServeMux(),
		logger:  logger.With(zap.String("component", "server")),
	}
	s.mux.HandleFunc("POST /v1/turns", s.handleTurn)
	s.mux.HandleFunc("POST /v1/route", s.handleRoute)
	s.mux.HandleFunc("POST /v1/cache/invalidate", s.handleInvalidate)
	s.mux.HandleFunc("GET /v1/stats", s.handleStats)
	s.mux.HandleFunc("GET /v1/cache/stats", s.handleCacheStats)
	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if m != nil {
		s.mux.Handle("GET /metrics", m.Handler())
	}
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	s.mux.ServeHTTP(rec, r)

	path := r.Pattern
	if path == "" {
		path = "unmatched"
	}
	s.metrics.RecordHTTP(path, rec.status, time.Since(start))
	s.logger.Debug("request served",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Int("status", rec.status),
		zap.Duration("duration", time.Since(start)))
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.listen,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("tierwise listening", zap.String("addr", s.listen))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.logger.Info("shutting down")
		return srv.Shutdown(shutCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

type deltaEvent struct {
	Delta string `json:"delta"`
}

type errorEvent struct {
	Error string `json:"error"`
}

// resetEvent tells the client to drop the deltas received so far: the model
// that produced them failed and another candidate takes over.
type resetEvent struct {
	DiscardedModel string `json:"discarded_model"`
}

func (s *Server) handleTurn(w http.ResponseWriter, r *http.Request) {
	var turn engine.Turn
	if err := json.NewDecoder(r.Body).Decode(&turn); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSONError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	started := false
	begin := func() {
		if started {
			return
		}
		started = true
		h := w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		h.Set("Trailer", CacheHeader)
		w.WriteHeader(http.StatusOK)
	}

	res, err := s.engine.Handle(r.Context(), turn, func(chunk string) error {
		begin()
		if err := writeEvent(w, "", deltaEvent{Delta: chunk}); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}, dispatch.OnReset(func(model string) {
		s.logger.Warn("discarding streamed output", zap.String("model", model))
		_ = writeEvent(w, "reset", resetEvent{DiscardedModel: model})
		flusher.Flush()
	}))
	if err != nil {
		if r.Context().Err() != nil {
			return
		}
		if !started {
			writeJSONError(w, statusFor(err), err.Error())
			return
		}
		_ = writeEvent(w, "error", errorEvent{Error: err.Error()})
		flusher.Flush()
		return
	}

	begin()
	_ = writeEvent(w, "done", res)
	if res.Cached {
		w.Header().Set(CacheHeader, "hit")
	} else {
		w.Header().Set(CacheHeader, "miss")
	}
	flusher.Flush()
}

type routeRequest struct {
	Utterance string                    `json:"utterance"`
	Signal    models.ConversationSignal `json:"signal"`
}

type routeResponse struct {
	models.RoutingDecision
	Explanation string `json:"explanation"`
}

func (s *Server) handleRoute(w http.ResponseWriter, r *http.Request) {
	var req routeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	d := s.engine.Route(r.Context(), req.Signal, req.Utterance)
	writeJSON(w, http.StatusOK, routeResponse{RoutingDecision: d, Explanation: d.Explain()})
}

type invalidateRequest struct {
	TenantID string `json:"tenant_id"`
	Tag      string `json:"tag"`
}

func (s *Server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	var req invalidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var n int
	switch {
	case req.TenantID != "" && req.Tag != "":
		writeJSONError(w, http.StatusBadRequest, "set either tenant_id or tag, not both")
		return
	case req.TenantID != "":
		n = s.engine.InvalidateTenant(req.TenantID)
	case req.Tag != "":
		n = s.engine.InvalidateTag(req.Tag)
	default:
		writeJSONError(w, http.StatusBadRequest, "tenant_id or tag is required")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"removed": n})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	f, err := ledger.ParseFilter(r.URL.Query().Get, time.Now())
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.engine.UsageStats(f))
}

type cacheStatsResponse struct {
	models.CacheStats
	HitRate float64 `json:"hit_rate"`
}

func (s *Server) handleCacheStats(w http.ResponseWriter, _ *http.Request) {
	st := s.engine.CacheStats()
	writeJSON(w, http.StatusOK, cacheStatsResponse{CacheStats: st, HitRate: st.HitRate()})
}

func statusFor(err error) int {
	var upErr *dispatch.UpstreamError
	switch {
	case errors.Is(err, dispatch.ErrNoModelAvailable):
		return http.StatusServiceUnavailable
	case errors.As(err, &upErr) && upErr.StatusCode == http.StatusTooManyRequests:
		return http.StatusTooManyRequests
	default:
		return http.StatusBadGateway
	}
}

func writeEvent(w http.ResponseWriter, event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if event != "" {
		if _, err := fmt.Fprintf(w, "event: %s\n", event); err != nil {
			return err
		}
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	fmt.Fprintf(w, `{"error":{"message":%q,"type":"tierwise_error","code":%d}}`, message, code)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
