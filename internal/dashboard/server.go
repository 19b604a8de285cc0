// Package dashboard provides the real-time WebSocket event bus and the
// read-only JSON API of cadence.
//
// The server broadcasts resync progress, ingested files and watcher errors to
// connected WebSocket clients, and answers query requests (summary, dashboard
// cards, heatmaps, streaks) over plain HTTP.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/CleoKiama/cadence/internal/query"
)

// MessageType names a bus event.
type MessageType string

const (
	// MessageTypeHello is the first frame every client receives.
	MessageTypeHello MessageType = "hello"

	MessageTypeSyncStart    MessageType = "sync_start"
	MessageTypeSyncProgress MessageType = "sync_progress"

	// MessageTypeSyncComplete follows the last submitted file of a resync,
	// including a cancelled one.
	MessageTypeSyncComplete MessageType = "sync_complete"

	// MessageTypeFileIngested reports a journal file written to or purged
	// from the store.
	MessageTypeFileIngested MessageType = "file_ingested"

	MessageTypeWatchError MessageType = "watch_error"
)

// Message is one frame on the bus.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

const (
	eventQueueSize  = 100
	clientQueueSize = 16
	writeTimeout    = 5 * time.Second
	shutdownTimeout = 5 * time.Second
)

// Config holds server configuration
type Config struct {
	// Host to bind; empty binds every interface.
	Host string

	// Port to listen on; 0 picks a free port.
	Port int

	// Engine answers /api requests. Without it the API returns 503.
	Engine *query.Engine

	Logger *log.Logger
}

// DefaultConfig listens on 127.0.0.1:8080 without a query engine.
func DefaultConfig() *Config {
	return &Config{
		Host:   "127.0.0.1",
		Port:   8080,
		Logger: log.Default(),
	}
}

// Server is the dashboard HTTP server and event bus.
type Server struct {
	addr   string
	engine *query.Engine
	logger *log.Logger

	httpServer *http.Server
	listener   net.Listener

	events chan []byte

	mu      sync.Mutex
	clients map[*client]struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer creates a server. It does not listen until Start.
func NewServer(cfg *Config) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:    net.JoinHostPort(cfg.Host, fmt.Sprint(cfg.Port)),
		engine:  cfg.Engine,
		logger:  logger,
		events:  make(chan []byte, eventQueueSize),
		clients: make(map[*client]struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start listens and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.wg.Add(2)
	go s.fanOut()
	go func() {
		defer s.wg.Done()
		s.logger.Printf("Listening on %s", ln.Addr())
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Printf("ERROR: serve: %v", err)
		}
	}()
	return nil
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/summary", s.handleSummary)
	mux.HandleFunc("GET /api/dashboard", s.handleDashboard)
	mux.HandleFunc("GET /api/activity/week", s.handleWeeklyActivity)
	mux.HandleFunc("GET /api/habits/{name}/heatmap", s.handleHeatmap)
	mux.HandleFunc("GET /api/habits/{name}/streak", s.handleStreak)
	mux.HandleFunc("GET /{$}", s.handleIndex)
	return mux
}

// Stop disconnects every client and shuts the HTTP server down.
func (s *Server) Stop() error {
	s.cancel()
	s.disconnectAll()

	if s.httpServer == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down dashboard: %w", err)
	}
	s.wg.Wait()

	s.logger.Println("Stopped")
	return nil
}

// GetAddr returns the bound address once started, else the configured one.
func (s *Server) GetAddr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"clients": s.ClientCount(),
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head><title>cadence</title></head>
<body>
<h1>cadence</h1>
<ul>
<li>Events: <code>ws://%[1]s/ws</code></li>
<li><a href="/api/summary">/api/summary</a></li>
<li><a href="/api/dashboard">/api/dashboard</a></li>
<li><a href="/api/activity/week">/api/activity/week</a></li>
<li><a href="/health">/health</a></li>
</ul>
</body>
</html>
`, r.Host)
}
