package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"taskpulse/internal/auth"
	"taskpulse/internal/domain"
	"taskpulse/internal/realtime"
	"taskpulse/internal/store"
)

type Notifier interface {
	Notify(ctx context.Context, n domain.Notification, task *domain.Task) (domain.Notification, error)
}

type Options struct {
	Repo           store.Repository
	Notifier       Notifier
	Registry       *realtime.Registry
	JWTSecret      string
	AllowedOrigins []string
	EnableDebug    bool
}

type Server struct {
	repo     store.Repository
	notifier Notifier
	registry *realtime.Registry
}

func NewServer(opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, requestLogger, middleware.Recoverer)

	s := &Server{repo: opts.Repo, notifier: opts.Notifier, registry: opts.Registry}

	r.Get("/health", s.health)
	r.Get("/metrics", s.metrics)
	r.Get("/ws", realtime.Handler(opts.Registry, auth.Authenticate(opts.JWTSecret), opts.AllowedOrigins))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(auth.Middleware(opts.JWTSecret, writeError))
		r.Use(middleware.AllowContentType("application/json"))

		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", s.listTasks)
			r.Post("/", s.createTask)
			r.Put("/reorder", s.reorderTasks)
			r.Get("/{id}", s.getTask)
			r.Put("/{id}", s.updateTask)
			r.Delete("/{id}", s.deleteTask)
			r.Put("/{id}/archive", s.toggleArchive)
		})
		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", s.listNotifications)
			r.Put("/read-all", s.markAllRead)
			r.Put("/{id}/read", s.markRead)
			r.Delete("/", s.deleteAllNotifications)
			r.Delete("/{id}", s.deleteNotification)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("Route %s not found.", r.URL.Path))
	})

	// Debug routes (pprof)
	if opts.EnableDebug {
		r.HandleFunc("/debug/pprof/", pprof.Index)
		r.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		r.HandleFunc("/debug/pprof/profile", pprof.Profile)
		r.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		r.HandleFunc("/debug/pprof/trace", pprof.Trace)
		r.Handle("/debug/pprof/goroutine", pprof.Handler("goroutine"))
		r.Handle("/debug/pprof/heap", pprof.Handler("heap"))
	}

	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) metrics(w http.ResponseWriter, r *http.Request) {
	users, channels := s.registry.Stats()
	w.Header().Set("content-type", "text/plain; version=0.0.4")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "taskpulse_up 1\ntaskpulse_online_users %d\ntaskpulse_realtime_channels %d\n", users, channels)
}

// notify runs the shared notification path detached from the request so a
// client hanging up does not cancel it. Failures are already logged by the
// notifier and never fail the request.
func (s *Server) notify(r *http.Request, task domain.Task, typ domain.NotificationType, msg string) {
	ctx := context.WithoutCancel(r.Context())
	_, _ = s.notifier.Notify(ctx, domain.Notification{
		UserID:  task.UserID,
		TaskID:  &task.ID,
		Message: msg,
		Type:    typ,
	}, &task)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{"success": false, "message": msg})
}

// writeStoreError maps store errors to responses, logging unexpected ones.
func writeStoreError(w http.ResponseWriter, r *http.Request, err error, notFound string) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, notFound)
		return
	}
	log.Error().Err(err).
		Str("request_id", middleware.GetReqID(r.Context())).
		Str("path", r.URL.Path).
		Msg("store error")
	writeError(w, http.StatusInternalServerError, "Internal server error.")
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			log.Info().
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("took", time.Since(start)).
				Msg("request")
		}()
		next.ServeHTTP(ww, r)
	})
}
