package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// HealthFunc reports the engine's liveness for the /health route — it
// should be cheap and side-effect-free.
type HealthFunc func() HealthStatus

// HealthStatus is the JSON body of the /health route.
type HealthStatus struct {
	Status    string            `json:"status"`
	RunMode   string            `json:"run_mode"`
	Ready     bool              `json:"ready"`
	Dropped   map[string]uint64 `json:"dropped_telemetry_messages"`
	TimestampNs int64           `json:"timestamp_ns"`
}

// Server exposes the telemetry publisher over HTTP: WebSocket upgrade
// routes for /metrics, /risk, /alerts, and a plain JSON /health route.
type Server struct {
	pub        *Publisher
	health     HealthFunc
	httpServer *http.Server
	logger     *slog.Logger
	stop       chan struct{}
}

func NewServer(addr string, pub *Publisher, health HealthFunc, logger *slog.Logger) *Server {
	logger = logger.With("component", "telemetry-server")
	s := &Server{pub: pub, health: health, logger: logger, stop: make(chan struct{})}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/metrics", s.handleUpgrade(pub.metrics, pub.marshalLastMetric))
	mux.HandleFunc("/risk", s.handleUpgrade(pub.risk, pub.marshalLastRisk))
	mux.HandleFunc("/alerts", s.handleUpgrade(pub.alerts, pub.marshalRecentAlerts))

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start runs the hub loops and the HTTP server; blocks until the server
// stops.
func (s *Server) Start() error {
	s.pub.Run(s.stop)

	s.logger.Info("telemetry server starting", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("telemetry server error: %w", err)
	}
	return nil
}

// Stop gracefully shuts the HTTP server down and stops the hub loops.
func (s *Server) Stop() error {
	close(s.stop)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.health()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleUpgrade returns a handler that upgrades to a WebSocket, registers
// a Client on hub, and (if backfill is non-nil) replays recent state
// before streaming live updates.
func (s *Server) handleUpgrade(hub *Hub, backfill func() []byte) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.logger.Error("websocket upgrade failed", "error", err, "topic", hub.topic)
			return
		}

		client := NewClient(hub, conn)
		if backfill != nil {
			if data := backfill(); data != nil {
				client.Send(data)
			}
		}
	}
}
