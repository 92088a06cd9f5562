package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nishant160406/soft-skill-ai-coach/internal/domain"
	"github.com/nishant160406/soft-skill-ai-coach/internal/practice"
)

// TabHeader carries the browser tab id that scopes practice state.
const TabHeader = "X-Coach-Tab"

// Controller is the voice capture façade.
type Controller interface {
	Start(ctx context.Context, languageTag string) bool
	Stop() string
	Clear() bool
	Snapshot() domain.Snapshot
	Supported() bool
}

type Practice interface {
	Submit(ctx context.Context, scope string, question string, answer string) (domain.QuestionResult, error)
	Analyze(ctx context.Context, text string) (domain.QuestionResult, error)
	Report(ctx context.Context, scope string) (domain.Report, error)
	Reset(ctx context.Context, scope string) error
}

type Questions interface {
	Random() string
	All() []string
}

type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (string, error)
}

type Deps struct {
	Controller     Controller
	Practice       Practice
	Questions      Questions
	Synthesizer    Synthesizer
	Hub            *Hub
	Metrics        http.Handler
	// Language is used when a start request names none.
	Language       string
	// AllowedOrigins lists the browser origins that may call the API. Requests
	// without an Origin header (CLI, curl) are always accepted.
	AllowedOrigins []string
}

// Server exposes the coach over HTTP.
type Server struct {
	deps     Deps
	router   chi.Router
	upgrader websocket.Upgrader
	logger   *log.Logger
}

func New(deps Deps, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	if deps.Hub == nil {
		deps.Hub = NewHub(logger)
	}
	if deps.Language == "" {
		deps.Language = "en-US"
	}
	s := &Server{
		deps:   deps,
		logger: logger.WithPrefix("http"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	s.upgrader.CheckOrigin = func(r *http.Request) bool {
		return s.originAllowed(r.Header.Get("Origin"))
	}
	s.router = s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowOriginFunc: func(_ *http.Request, origin string) bool { return s.originAllowed(origin) },
		AllowedMethods:  []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:  []string{"Content-Type", TabHeader},
		ExposedHeaders:  []string{TabHeader},
		MaxAge:          300,
	}))
	r.Use(s.requireOrigin)

	r.Get("/api/health", s.handleHealth)

	r.Route("/api/session", func(r chi.Router) {
		r.Get("/", s.handleSnapshot)
		r.Post("/start", s.handleStart)
		r.Post("/stop", s.handleStop)
		r.Post("/clear", s.handleClear)
		r.Get("/events", s.handleEvents)
	})

	r.Get("/api/questions", s.handleQuestions)
	r.Get("/api/questions/random", s.handleRandomQuestion)

	r.Route("/api/practice", func(r chi.Router) {
		r.Post("/answers", s.handleSubmit)
		r.Get("/report", s.handleReport)
		r.Delete("/", s.handleReset)
	})
	r.Post("/api/analyze", s.handleAnalyze)
	r.Post("/api/tts", s.handleTTS)

	if s.deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.deps.Metrics)
	}
	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"supported": s.deps.Controller.Supported(),
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Controller.Snapshot())
}

type startRequest struct {
	Language string `json:"language"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	language := strings.TrimSpace(req.Language)
	if language == "" {
		language = s.deps.Language
	}

	if !s.deps.Controller.Supported() {
		writeError(w, http.StatusServiceUnavailable, "voice input is not supported on this device")
		return
	}
	// The recording outlives the request.
	if !s.deps.Controller.Start(context.WithoutCancel(r.Context()), language) {
		writeJSON(w, http.StatusConflict, s.deps.Controller.Snapshot())
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Controller.Snapshot())
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	text := s.deps.Controller.Stop()
	writeJSON(w, http.StatusOK, map[string]any{
		"text":     text,
		"snapshot": s.deps.Controller.Snapshot(),
	})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if !s.deps.Controller.Clear() {
		writeError(w, http.StatusConflict, "cannot clear while recording")
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Controller.Snapshot())
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "err", err)
		return
	}
	s.deps.Hub.serve(conn, s.deps.Controller.Snapshot)
}

func (s *Server) handleQuestions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"questions": s.deps.Questions.All()})
}

func (s *Server) handleRandomQuestion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"question": s.deps.Questions.Random()})
}

type answerRequest struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	scope := tabID(r)
	if scope == "" {
		scope = uuid.NewString()
	}
	w.Header().Set(TabHeader, scope)

	result, err := s.deps.Practice.Submit(r.Context(), scope, req.Question, req.Answer)
	if err != nil {
		s.practiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	scope := tabID(r)
	if scope == "" {
		writeError(w, http.StatusBadRequest, "missing "+TabHeader+" header")
		return
	}
	report, err := s.deps.Practice.Report(r.Context(), scope)
	if err != nil {
		s.practiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	scope := tabID(r)
	if scope == "" {
		writeError(w, http.StatusBadRequest, "missing "+TabHeader+" header")
		return
	}
	if err := s.deps.Practice.Reset(r.Context(), scope); err != nil {
		s.practiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type textRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	result, err := s.deps.Practice.Analyze(r.Context(), req.Text)
	if err != nil {
		s.practiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleTTS(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "missing 'text' in request body")
		return
	}
	path, err := s.deps.Synthesizer.Synthesize(r.Context(), req.Text)
	if err != nil {
		s.logger.Warn("speech synthesis failed", "err", err)
		writeError(w, http.StatusBadGateway, "speech synthesis failed")
		return
	}
	w.Header().Set("Content-Type", "audio/mpeg")
	http.ServeFile(w, r, path)
}

func (s *Server) practiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, practice.ErrEmptyAnswer):
		writeError(w, http.StatusBadRequest, "missing 'answer' in request body")
	case errors.Is(err, practice.ErrNoResults):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		s.logger.Error("practice request failed", "err", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		started := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(started),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// requireOrigin refuses cross-origin browser requests from origins outside
// the allow-list. CORS headers alone do not stop simple requests from
// reaching the handler.
func (s *Server) requireOrigin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); !s.originAllowed(origin) {
			s.logger.Warn("refusing request from foreign origin", "origin", origin, "path", r.URL.Path)
			writeError(w, http.StatusForbidden, "origin not allowed")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) originAllowed(origin string) bool {
	if origin == "" {
		return true
	}
	for _, allowed := range s.deps.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

func tabID(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(TabHeader)); id != "" {
		return id
	}
	return strings.TrimSpace(r.URL.Query().Get("tab"))
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
