// Package server exposes the decision engine and run history over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/siteverify/internal/decision"
	"github.com/sells-group/siteverify/internal/evidence"
	"github.com/sells-group/siteverify/internal/store"
)

// maxBodyBytes caps classify request bodies.
const maxBodyBytes = 4 << 20

// maxBatch caps the number of bundles per batch request.
const maxBatch = 1000

// Options configures a Server.
type Options struct {
	// Store backs the run-history endpoints. Nil disables them.
	Store           store.Store
	Policy          decision.EquivalencePolicy
	AnchorTimestamp string
	AllowedOrigins  []string
	// Now defaults to time.Now.
	Now func() time.Time
}

// Server routes API requests.
type Server struct {
	opts   Options
	router chi.Router
}

// New builds a Server with its routes and middleware.
func New(opts Options) *Server {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	s := &Server{opts: opts, router: r}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/v1", func(r chi.Router) {
		r.Post("/classify", s.handleClassify)
		r.Post("/classify/batch", s.handleClassifyBatch)
		r.Post("/classify/override", s.handleClassifyOverride)

		r.Get("/runs", s.handleListRuns)
		r.Get("/runs/{id}", s.handleGetRun)
		r.Get("/runs/{id}/outcomes", s.handleListOutcomes)
		r.Get("/runs/{id}/compare/{other}", s.handleCompareRuns)
	})
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zap.L().Info("starting server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return eris.Wrap(err, "server: listen")
	case <-ctx.Done():
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return eris.Wrap(srv.Shutdown(shutdownCtx), "server: shutdown")
	}
}

func (s *Server) decideOptions() (decision.Options, error) {
	ts, err := decision.RunTimestamp(s.opts.AnchorTimestamp, s.opts.Now)
	if err != nil {
		return decision.Options{}, err
	}
	return decision.Options{Policy: s.opts.Policy, Timestamp: ts}, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{"status": "ok"}
	if s.opts.Store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.opts.Store.Ping(ctx); err != nil {
			zap.L().Warn("server: store ping failed", zap.Error(err))
			status["store"] = "unavailable"
		} else {
			status["store"] = "ok"
		}
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	b := evidence.NewRequestBundle()
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&b); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if b.Geocode.InputID == "" {
		writeError(w, http.StatusBadRequest, "geocode.input_id is required")
		return
	}
	b.Complete()

	opts, err := s.decideOptions()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, decision.Decide(b, opts))
}

type batchRequest struct {
	Bundles []json.RawMessage `json:"bundles"`
}

type batchResponse struct {
	Records []decision.Record `json:"records"`
	Summary decision.Summary  `json:"summary"`
}

func (s *Server) handleClassifyBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Bundles) > maxBatch {
		writeError(w, http.StatusRequestEntityTooLarge, "too many bundles, max "+strconv.Itoa(maxBatch))
		return
	}

	bundles := make([]evidence.Bundle, len(req.Bundles))
	for i, raw := range req.Bundles {
		b := evidence.NewRequestBundle()
		if err := json.Unmarshal(raw, &b); err != nil {
			writeError(w, http.StatusBadRequest, "invalid bundle at index "+strconv.Itoa(i))
			return
		}
		if b.Geocode.InputID == "" {
			writeError(w, http.StatusBadRequest, "geocode.input_id is required at index "+strconv.Itoa(i))
			return
		}
		b.Complete()
		bundles[i] = b
	}

	opts, err := s.decideOptions()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	recs := decision.DecideAll(bundles, opts)
	writeJSON(w, http.StatusOK, batchResponse{
		Records: recs,
		Summary: decision.Summarize("", opts.Timestamp, recs, evidence.JoinStats{}),
	})
}

type overrideRequest struct {
	Bundle    json.RawMessage `json:"bundle"`
	FinalFlag string          `json:"final_flag"`
	Notes     string          `json:"notes"`
}

// handleClassifyOverride classifies a bundle and returns the derived record
// carrying a reviewer's flag and notes. Nothing is persisted.
func (s *Server) handleClassifyOverride(w http.ResponseWriter, r *http.Request) {
	var req overrideRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	b := evidence.NewRequestBundle()
	if len(req.Bundle) == 0 || json.Unmarshal(req.Bundle, &b) != nil {
		writeError(w, http.StatusBadRequest, "invalid bundle")
		return
	}
	if b.Geocode.InputID == "" {
		writeError(w, http.StatusBadRequest, "geocode.input_id is required")
		return
	}
	b.Complete()

	opts, err := s.decideOptions()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	rec, err := decision.Decide(b, opts).WithReviewOverride(decision.FinalFlag(req.FinalFlag), req.Notes)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unknown final_flag "+strconv.Quote(req.FinalFlag))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	q := r.URL.Query()
	filter := store.RunFilter{
		RunKey: q.Get("run_key"),
		Limit:  parseIntParam(q.Get("limit"), 0),
		Offset: parseIntParam(q.Get("offset"), 0),
	}

	runs, err := s.opts.Store.ListRuns(r.Context(), filter)
	if err != nil {
		s.storeError(w, err)
		return
	}
	if runs == nil {
		runs = []store.RunRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	run, err := s.opts.Store.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleListOutcomes(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	id := chi.URLParam(r, "id")
	if _, err := s.opts.Store.GetRun(r.Context(), id); err != nil {
		s.storeError(w, err)
		return
	}
	outcomes, err := s.opts.Store.ListOutcomes(r.Context(), id)
	if err != nil {
		s.storeError(w, err)
		return
	}
	if outcomes == nil {
		outcomes = []store.Outcome{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"outcomes": outcomes})
}

func (s *Server) handleCompareRuns(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	cmp, err := store.LoadComparison(r.Context(), s.opts.Store, chi.URLParam(r, "id"), chi.URLParam(r, "other"))
	if err != nil {
		s.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cmp)
}

func (s *Server) requireStore(w http.ResponseWriter) bool {
	if s.opts.Store == nil {
		writeError(w, http.StatusServiceUnavailable, "run history is disabled")
		return false
	}
	return true
}

func (s *Server) storeError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	zap.L().Error("server: store request failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

func parseIntParam(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("server: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
