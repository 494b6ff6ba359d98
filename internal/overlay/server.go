package overlay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rbright/livesub/internal/domain"
	"github.com/rbright/livesub/internal/history"
)

// HistoryLister is the read side of the subtitle history.
type HistoryLister interface {
	List(ctx context.Context, source domain.SourceID, limit int) ([]history.Entry, error)
}

// Server exposes the hub over HTTP.
type Server struct {
	hub      *Hub
	history  HistoryLister
	logger   *slog.Logger
	upgrader websocket.Upgrader

	listener net.Listener
	server   *http.Server
}

// NewServer builds the overlay HTTP surface. history may be nil.
func NewServer(hub *Hub, history HistoryLister, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Server{
		hub:     hub,
		history: history,
		logger:  logger.With("component", "overlay-server"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     allowLocalOrigin,
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebsocket)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/api/history", s.handleHistory)

	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.server.Handler }

// Start listens on addr and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("overlay listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("overlay server error", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	s.logger.Info("overlay server listening", "address", listener.Addr().String())
	return nil
}

// Addr returns the bound address once started.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop disconnects clients and shuts the HTTP server down.
func (s *Server) Stop() {
	s.hub.closeAll()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("overlay upgrade failed", "error", err)
		return
	}
	c := s.hub.attach(conn)
	s.logger.Info("overlay client connected", "remote", r.RemoteAddr, "clients", s.hub.Clients())
	go s.hub.writeLoop(c)
	s.hub.readLoop(c)
	s.logger.Info("overlay client disconnected", "remote", r.RemoteAddr)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "clients": s.hub.Clients()})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.history == nil {
		s.writeError(w, http.StatusNotFound, "history disabled")
		return
	}
	query := r.URL.Query()
	limit, _ := strconv.Atoi(query.Get("limit"))
	source := domain.SourceID(strings.TrimSpace(query.Get("source")))

	entries, err := s.history.List(r.Context(), source, limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// allowLocalOrigin accepts non-browser clients and pages served from localhost.
func allowLocalOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, prefix := range []string{"http://localhost", "http://127.0.0.1", "file://", "null"} {
		if strings.HasPrefix(origin, prefix) {
			return true
		}
	}
	return false
}
