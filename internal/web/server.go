package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"shoe-concept-studio/internal/generation"
	"shoe-concept-studio/internal/imaging"
	"shoe-concept-studio/internal/journal"
	"shoe-concept-studio/internal/request"
	"shoe-concept-studio/internal/session"
	"shoe-concept-studio/internal/studio"
)

const (
	CookieName     = "studio_session"
	maxUploadBytes = 25 << 20
)

// Journal reads a session's past attempts, including the failures history drops.
type Journal interface {
	Recent(ctx context.Context, session string, limit int) ([]journal.Record, error)
}

type Options struct {
	Sessions       *session.Store
	Logger         *slog.Logger
	RequestTimeout time.Duration
	// Journal, when set, is served at /api/journal.
	Journal Journal
	// Static, when set, is served at the root.
	Static fs.FS
}

type Server struct {
	sessions       *session.Store
	logger         *slog.Logger
	requestTimeout time.Duration
	journal        Journal
	static         fs.FS

	// blank answers reads from browsers that have no session yet.
	blank *studio.Studio
}

func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	sessions := opts.Sessions
	if sessions == nil {
		sessions = session.NewStore(session.Options{})
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = 240 * time.Second
	}

	return &Server{
		sessions:       sessions,
		logger:         logger,
		requestTimeout: timeout,
		journal:        opts.Journal,
		static:         opts.Static,
		blank:          studio.New(studio.Options{}),
	}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.withLogging)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/presets", s.handlePresets)

		r.Post("/generate", s.handleGenerate)
		r.Post("/regenerate", s.handleRegenerate)

		r.Get("/locks", s.handleLocks)
		r.Post("/locks/{field}", s.handleLockToggle)

		r.Get("/history", s.handleHistory)
		r.Delete("/history", s.handleHistoryClear)
		r.Post("/history/{index}/reuse", s.handleHistoryReuse)

		r.Get("/prompt/last", s.handleLastPrompt)
		r.Get("/journal", s.handleJournal)
	})

	if s.static != nil {
		r.Handle("/*", http.FileServer(http.FS(s.static)))
	}
	return r
}

// sessionID reads the browser's session cookie, issuing a new one if absent.
func (s *Server) sessionID(w http.ResponseWriter, r *http.Request) string {
	if id, ok := cookieSession(r); ok {
		return id
	}

	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https",
	})
	return id
}

func cookieSession(r *http.Request) (string, bool) {
	c, err := r.Cookie(CookieName)
	if err != nil {
		return "", false
	}
	if _, err := uuid.Parse(c.Value); err != nil {
		return "", false
	}
	return c.Value, true
}

// studio returns the caller's studio, creating the session if needed. Only
// mutating routes use it.
func (s *Server) studio(w http.ResponseWriter, r *http.Request) *studio.Studio {
	return s.sessions.Studio(s.sessionID(w, r))
}

// viewStudio returns the caller's existing studio. Without a session it answers
// from an empty studio that never generates, and allocates nothing.
func (s *Server) viewStudio(r *http.Request) *studio.Studio {
	if id, ok := cookieSession(r); ok {
		if st, ok := s.sessions.Lookup(id); ok {
			return st
		}
	}
	return s.blank
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"req_id", middleware.GetReqID(r.Context()),
			"dur_ms", time.Since(start).Milliseconds(),
		)
	})
}

func (s *Server) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.requestTimeout)
}

type apiError struct {
	Error     string   `json:"error"`
	Kind      string   `json:"kind,omitempty"`
	Missing   []string `json:"missing,omitempty"`
	Slot      string   `json:"slot,omitempty"`
	Retryable bool     `json:"retryable"`
}

// uploadError names the form field an unsupported file arrived in.
type uploadError struct {
	slot request.Slot
	err  error
}

func (e *uploadError) Error() string { return string(e.slot) + ": " + e.err.Error() }
func (e *uploadError) Unwrap() error { return e.err }

func writeError(w http.ResponseWriter, err error) {
	body := apiError{Error: studio.Message(err)}
	status := http.StatusInternalServerError

	var verr *request.ValidationError
	var upErr *uploadError
	var unsupported *imaging.UnsupportedError
	switch {
	case errors.As(err, &verr):
		status = http.StatusBadRequest
		body.Kind = string(verr.Reason)
		for _, slot := range verr.Missing {
			body.Missing = append(body.Missing, string(slot))
		}
	case errors.As(err, &upErr) && errors.As(err, &unsupported):
		status = http.StatusBadRequest
		body.Kind = "unsupported_image"
		body.Slot = string(upErr.slot)
		body.Error = "Unsupported " + strings.ToLower(upErr.slot.Label()) + " image: " + unsupported.Label()
	case generation.KindOf(err) != "":
		status = http.StatusBadGateway
		body.Kind = string(generation.KindOf(err))
		body.Retryable = generation.IsRetryable(err)
	case errors.Is(err, studio.ErrBusy):
		status = http.StatusConflict
		body.Kind = "busy"
		body.Retryable = true
	case errors.Is(err, studio.ErrNoSuchEntry):
		status = http.StatusNotFound
		body.Kind = "not_found"
	}

	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
