package webhook

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/Enriquefft/webhook-funnel/internal/jsoncodec"
	"github.com/Enriquefft/webhook-funnel/internal/logging"
	"github.com/Enriquefft/webhook-funnel/internal/metrics"
	"github.com/Enriquefft/webhook-funnel/internal/queue"
	"github.com/Enriquefft/webhook-funnel/internal/security"
)

const defaultMaxBodyBytes = 5 << 20

// Sources reports which parser names the endpoint accepts as a route hint.
type Sources interface {
	Has(name string) bool
}

// Server is the HTTP ingestion endpoint. It validates webhook payloads and
// pushes them onto the queue; it never waits on parsing or delivery.
type Server struct {
	Addr         string
	MaxBodyBytes int64
	Queue        *queue.Queue
	Sources      Sources
	Guard        *security.Guard
	Metrics      *metrics.Metrics
	Logger       *slog.Logger

	mu       sync.Mutex
	listener net.Listener
}

// Run starts the webhook HTTP server. It blocks until ctx is cancelled, at
// which point the server is gracefully shut down.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return fmt.Errorf("webhook listen: %w", err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	s.logger().Info("webhook server listening", "addr", ln.Addr().String())

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("webhook serve: %w", err)
	}
	return nil
}

// ListenAddr returns the bound address once Run has started listening.
func (s *Server) ListenAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Handler returns the endpoint's routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", handleRoot)
	mux.HandleFunc("GET /health", handleHealth)
	mux.HandleFunc("POST /webhook", s.handleEvent)
	mux.HandleFunc("POST /webhook/{source}", s.handleEvent)
	mux.Handle("GET /metrics", s.Metrics.Handler())
	return mux
}

// handleEvent validates a webhook POST and queues it for dispatch.
func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	log := s.logger()

	source := r.PathValue("source")
	if source != "" && (s.Sources == nil || !s.Sources.Has(source)) {
		s.Metrics.Rejected("unknown_source")
		http.Error(w, "unknown source", http.StatusNotFound)
		return
	}

	limit := s.MaxBodyBytes
	if limit <= 0 {
		limit = defaultMaxBodyBytes
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.Metrics.Rejected("too_large")
			http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
			return
		}
		s.Metrics.Rejected("read_error")
		http.Error(w, "read error", http.StatusBadRequest)
		return
	}

	if s.Guard != nil {
		switch s.Guard.Check(r, body) {
		case security.Deny:
			log.Warn("webhook: invalid token or signature", "remote", r.RemoteAddr)
			s.Metrics.Rejected("unauthorized")
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		case security.RateLimited:
			s.Metrics.Rejected("rate_limited")
			w.Header().Set("Retry-After", "1")
			http.Error(w, "rate limited", http.StatusTooManyRequests)
			return
		}
	}

	if !utf8.Valid(body) || !jsoncodec.Valid(body) {
		log.Warn("webhook: invalid JSON", "remote", r.RemoteAddr, "bytes", len(body))
		s.Metrics.Rejected("invalid_json")
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	ev, err := s.Queue.Push(queue.Event{Source: source, Body: string(body)})
	if err != nil {
		s.Metrics.Rejected("closed")
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	s.Metrics.Received(source)
	s.Metrics.SetQueueDepth(s.Queue.Len())

	log.Debug("webhook: queued event", "event", ev.ID, "source", source, "bytes", len(body))
	w.WriteHeader(http.StatusOK)
}

func (s *Server) logger() *slog.Logger {
	return logging.Default(s.Logger).With("component", "webhook")
}

func handleRoot(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "The webhook funnel is live and running.")
}

// handleHealth answers the CLI status probe.
func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "ok")
}
