package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/jpalmerr/aether/internal/metrics"
	"github.com/jpalmerr/aether/internal/pubsub"
	"github.com/jpalmerr/aether/internal/router"
)

const (
	// DefaultWriteTimeout is the maximum time allowed for a single frame write.
	// Must be <= shutdown timeout to ensure clean shutdown.
	DefaultWriteTimeout = 5 * time.Second

	// DefaultMaxMessageBytes is the largest inbound frame accepted.
	DefaultMaxMessageBytes = 1 << 20

	// shutdownTimeout bounds the graceful shutdown of the HTTP server.
	shutdownTimeout = 5 * time.Second

	// defaultTitle is used when no custom title is configured.
	defaultTitle = "Aether"

	// titlePlaceholder is the marker in HTML that gets replaced with the actual title.
	titlePlaceholder = "{{.Title}}"
)

// Counter reports the number of live entries in the value store.
type Counter interface {
	Len() int
}

// CommandEvent describes one executed command.
type CommandEvent struct {
	ClientID string
	Command  string
	Duration time.Duration

	// Err is the router error, or nil on success.
	Err error
}

// Config holds everything a [Server] needs.
type Config struct {
	// Host and Port form the listen address. Port 0 picks a free port.
	Host string
	Port int

	Store    Counter
	Registry *pubsub.Registry
	Router   *router.Router

	// Metrics may be nil.
	Metrics *metrics.Recorder

	// Assets holds assets/index.html for the console page. May be nil.
	Assets fs.FS
	Title  string

	// OutboxSize bounds each session's broadcast queue.
	OutboxSize int

	// WriteTimeout bounds every frame write. Zero uses DefaultWriteTimeout.
	WriteTimeout time.Duration

	// MaxMessageBytes bounds inbound frames. Zero uses DefaultMaxMessageBytes.
	MaxMessageBytes int64

	// OnCommand is called after every executed command. May be nil.
	OnCommand func(CommandEvent)
}

// Server accepts WebSocket connections and serves the HTTP side endpoints.
//
// Server provides these endpoints:
//   - GET /ws: WebSocket command connection
//   - GET /health: liveness probe
//   - GET /api/stats: key, channel and session counts as JSON
//   - GET /metrics: Prometheus metrics
//   - GET /: the embedded console page
//
// The server is designed for graceful shutdown via context cancellation.
type Server struct {
	cfg        Config
	upgrader   websocket.Upgrader
	httpServer *http.Server
	logger     *slog.Logger

	mu   sync.Mutex
	addr net.Addr

	conns sync.WaitGroup
}

// NewServer creates a new [Server]. The server is not started until
// [Server.Start] is called.
func NewServer(cfg Config, logger *slog.Logger) *Server {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.MaxMessageBytes <= 0 {
		cfg.MaxMessageBytes = DefaultMaxMessageBytes
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:    cfg,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Handler returns the HTTP handler with all routes mounted.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/stats", s.handleStats)
	mux.Handle("/metrics", s.cfg.Metrics.Handler())

	// serve console assets
	if s.cfg.Assets != nil {
		mux.HandleFunc("/", s.handleConsole)
	}

	return mux
}

// Start begins serving HTTP requests in a background goroutine.
//
// Start is non-blocking and returns immediately after confirming the server
// is listening. The server will continue running until the context is
// cancelled, at which point it closes every WebSocket connection and
// initiates a graceful shutdown with a 5-second timeout.
//
// Returns an error if the server fails to bind to the configured address.
func (s *Server) Start(ctx context.Context) error {
	// create listener first to verify port availability synchronously
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind to %s: %w", addr, err)
	}

	s.mu.Lock()
	s.addr = ln.Addr()
	s.mu.Unlock()

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// BaseContext derives all request contexts from the server context.
		// When ctx is cancelled, every connection's context is cancelled too,
		// which closes hijacked WebSocket connections Shutdown cannot see.
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", "error", err)
		}
	}()

	// shutdown on context cancellation
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("http server shutdown error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound listen address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Wait blocks until every WebSocket connection has been torn down.
func (s *Server) Wait() {
	s.conns.Wait()
}

// handleWS upgrades the request and runs the connection until it closes.
//
// The client id comes from the client_id query parameter, or is a fresh
// uuid. A client id that is already connected is refused with 409.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	clientID := r.URL.Query().Get("client_id")
	if clientID == "" {
		clientID = uuid.NewString()
	}

	session := pubsub.NewSession(clientID, s.cfg.OutboxSize)
	if err := s.cfg.Registry.Attach(session); err != nil {
		s.logger.Warn("connection refused", "client_id", clientID, "error", err)
		http.Error(w, "client id already connected", http.StatusConflict)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied with an HTTP error
		s.cfg.Registry.DropSession(session)
		s.logger.Debug("websocket upgrade failed", "client_id", clientID, "error", err)
		return
	}

	s.conns.Add(1)
	defer s.conns.Done()

	c := newConn(s, ws, session)
	c.run(r.Context())
}

// handleHealth reports liveness.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	if _, err := w.Write([]byte(`{"status":"ok"}` + "\n")); err != nil {
		s.logger.Error("failed to write health response", "error", err)
	}
}

// Stats is the body of GET /api/stats.
type Stats struct {
	Keys     int `json:"keys"`
	Channels int `json:"channels"`
	Sessions int `json:"sessions"`
}

// handleStats returns current engine counts as JSON.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats := Stats{
		Channels: s.cfg.Registry.ChannelCount(),
		Sessions: s.cfg.Registry.SessionCount(),
	}
	if s.cfg.Store != nil {
		stats.Keys = s.cfg.Store.Len()
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")

	if err := json.NewEncoder(w).Encode(stats); err != nil {
		s.logger.Error("failed to encode stats response", "error", err)
	}
}

// handleConsole serves the console page.
func (s *Server) handleConsole(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	if s.cfg.Assets == nil {
		http.Error(w, "Console not found", http.StatusInternalServerError)
		return
	}

	content, err := fs.ReadFile(s.cfg.Assets, "assets/index.html")
	if err != nil {
		http.Error(w, "Console not found", http.StatusInternalServerError)
		return
	}

	// apply title substitution with HTML escaping to prevent XSS
	title := s.cfg.Title
	if title == "" {
		title = defaultTitle
	}
	rendered := strings.ReplaceAll(string(content), titlePlaceholder, html.EscapeString(title))

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err = w.Write([]byte(rendered)); err != nil {
		s.logger.Error("failed to write console response", "error", err)
	}
}
