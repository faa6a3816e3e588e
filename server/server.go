// Package server exposes test runs over HTTP. Runs are started with a POST
// and their progress is streamed back as server-sent events.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/perfgo/pwbox/config"
	"github.com/perfgo/pwbox/events"
	"github.com/perfgo/pwbox/history"
	"github.com/perfgo/pwbox/model"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

const maxRequestBytes = 10 << 20

// Runner starts a run and streams its events.
type Runner interface {
	Stream(ctx context.Context, script string) <-chan events.Event
}

// RunRequest is the body of POST /run_tests.
type RunRequest struct {
	Script string `json:"script"`
	// ProjectURL is informational; the script carries its own targets.
	ProjectURL string `json:"project_url,omitempty"`
}

type Server struct {
	logger zerolog.Logger
	cfg    *config.Config
	runner Runner
	server *http.Server
}

func New(logger zerolog.Logger, cfg *config.Config, runner Runner) *Server {
	s := &Server{
		logger: logger,
		cfg:    cfg,
		runner: runner,
	}
	s.server = &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the routed, CORS-wrapped handler.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(s.logRequests)

	r.HandleFunc("/run_tests", s.handleRunTests).Methods(http.MethodPost)
	r.HandleFunc("/runs", s.handleListRuns).Methods(http.MethodGet)
	r.HandleFunc("/runs/{id}", s.handleGetRun).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	if base := strings.TrimRight(s.cfg.ArtifactBaseURL, "/"); strings.HasPrefix(base, "/") {
		files := http.StripPrefix(base+"/", http.FileServer(http.Dir(s.cfg.OutputRoot)))
		r.PathPrefix(base + "/").Handler(files).Methods(http.MethodGet, http.MethodHead)
	}

	c := cors.New(cors.Options{
		AllowedOrigins: s.cfg.Server.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	})
	return c.Handler(r)
}

// ListenAndServe serves on the configured address until Shutdown.
func (s *Server) ListenAndServe() error {
	s.logger.Info().Str("addr", s.cfg.Server.Addr).Msg("Listening")
	err := s.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleRunTests(w http.ResponseWriter, r *http.Request) {
	req, err := parseRunRequest(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Script) == "" {
		writeError(w, http.StatusBadRequest, "script is required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	if s.cfg.Server.RunTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Server.RunTimeout)
		defer cancel()
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	s.logger.Info().
		Str("remote", r.RemoteAddr).
		Str("project_url", req.ProjectURL).
		Int("script_bytes", len(req.Script)).
		Msg("Run requested")

	// Keep draining after a failed write so the run observes the
	// cancellation and ends.
	var gone, terminated bool
	for ev := range s.runner.Stream(ctx, req.Script) {
		if gone {
			continue
		}
		if err := events.WriteSSE(w, ev); err != nil {
			s.logger.Warn().Err(err).Msg("Client went away")
			gone = true
			cancel()
			continue
		}
		flusher.Flush()
		terminated = ev.Type.Terminal()
	}

	if !gone && !terminated && r.Context().Err() == nil {
		// the run deadline passed and the terminal event was dropped
		events.WriteSSE(w, events.Event{Type: events.TypeError, Message: "Run timed out"}) //nolint:errcheck
		flusher.Flush()
	}
}

func parseRunRequest(w http.ResponseWriter, r *http.Request) (RunRequest, error) {
	var req RunRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/json":
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return req, errors.New("invalid JSON body")
		}
	case "multipart/form-data":
		if err := r.ParseMultipartForm(maxRequestBytes); err != nil {
			return req, errors.New("invalid form body")
		}
		req.Script = r.FormValue("script")
		req.ProjectURL = r.FormValue("project_url")
	default:
		if err := r.ParseForm(); err != nil {
			return req, errors.New("invalid form body")
		}
		req.Script = r.PostFormValue("script")
		req.ProjectURL = r.PostFormValue("project_url")
	}
	return req, nil
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	entries, err := history.LoadEntries(s.logger, s.cfg.OutputRoot)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	runs := make([]model.Run, 0, len(entries))
	for _, e := range entries {
		runs = append(runs, e.Run)
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	entries, err := history.LoadEntries(s.logger, s.cfg.OutputRoot)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	entry, err := history.Find(entries, id)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, entry.Run)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("OK")) //nolint:errcheck
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("duration", time.Since(start)).
			Msg("Handled request")
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
