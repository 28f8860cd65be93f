package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MikeSquared-Agency/historico/internal/chatlog"
	"github.com/MikeSquared-Agency/historico/internal/history"
	"github.com/MikeSquared-Agency/historico/internal/metrics"
)

// Conversations is the slice of history.Service the API serves.
type Conversations interface {
	Import(ctx context.Context, userID int64, src io.Reader, source string) (*history.ImportResult, error)
	List(ctx context.Context, userID int64) ([]chatlog.Conversation, error)
	Search(ctx context.Context, userID int64, query string) ([]chatlog.Conversation, error)
	Count(ctx context.Context, userID int64) (int, error)
	Delete(ctx context.Context, userID, conversationID int64) error
}

type Server struct {
	router    *chi.Mux
	port      int
	history   Conversations
	maxUpload int64
	logger    *slog.Logger
	http      *http.Server
}

func NewServer(port int, conversations Conversations, maxUploadBytes int64, logger *slog.Logger) *Server {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(recordMetrics)

	s := &Server{
		router:    router,
		port:      port,
		history:   conversations,
		maxUpload: maxUploadBytes,
		logger:    logger,
	}

	router.Get("/health", s.health)
	router.Handle("/metrics", metrics.Handler())

	router.Route("/api/v1/conversations", func(r chi.Router) {
		r.Post("/upload", s.upload)
		r.Get("/{userID}", s.list)
		r.Get("/{userID}/count", s.count)
		r.Get("/{userID}/search", s.search)
		r.Delete("/{userID}/{conversationID}", s.delete)
	})

	return s
}

func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("API server starting", "addr", addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func recordMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.RecordRequest(r.Method, route, strconv.Itoa(status), time.Since(start).Seconds())
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
