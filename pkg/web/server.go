// Package web serves a small observability dashboard for a running
// conversation session: current status, transcript, metrics, and a live
// WebSocket event stream. It is an observer surface only; all conversation
// traffic flows through the session, never through here.
package web

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/vozlab/go-charla/pkg/hub"
	"github.com/vozlab/go-charla/pkg/session"
	"github.com/vozlab/go-charla/pkg/transcript"
)

// Source is the session view the dashboard reads from.
// *session.Session satisfies it.
type Source interface {
	Status() string
	State() session.State
	History() []transcript.Entry
	Metrics() session.Metrics
	ConversationID() string
}

// Server is the dashboard server.
type Server struct {
	app    *fiber.App
	port   string
	logger *slog.Logger

	source   Source
	eventHub *hub.Hub
}

// NewServer creates a dashboard for the given session view.
func NewServer(port string, source Source, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		port:     port,
		logger:   logger.With("component", "web"),
		source:   source,
		eventHub: hub.New("events", logger),
	}

	app := fiber.New(fiber.Config{
		AppName:               "charla dashboard",
		DisableStartupMessage: true,
	})

	// CORS for local development
	app.Use(cors.New())

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/transcript", s.handleTranscript)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/status", websocket.New(s.handleStatusWS))

	s.app = app
	return s
}

// Start starts the dashboard and blocks.
func (s *Server) Start() error {
	s.logger.Info("dashboard listening", "addr", "http://localhost:"+s.port)
	go s.eventHub.Run()
	return s.app.Listen(":" + s.port)
}

// StartAsync starts the dashboard in a goroutine.
func (s *Server) StartAsync() {
	go func() {
		if err := s.Start(); err != nil {
			s.logger.Error("dashboard server failed", "error", err)
		}
	}()
}

// PublishStatus pushes a status change to connected observers.
// Wire it to the session's OnStatus callback.
func (s *Server) PublishStatus(status string) {
	_ = s.eventHub.BroadcastEvent("status", fiber.Map{
		"status": status,
		"state":  s.source.State(),
	})
}

// PublishTranscript pushes a transcript update to connected observers.
// Wire it to the session's OnTranscript callback.
func (s *Server) PublishTranscript(entry transcript.Entry) {
	_ = s.eventHub.BroadcastEvent("transcript", entry)
}

// PublishMetrics pushes a metrics snapshot to connected observers.
func (s *Server) PublishMetrics() {
	_ = s.eventHub.BroadcastEvent("metrics", s.source.Metrics())
}

// Observers returns the number of connected dashboard clients.
func (s *Server) Observers() int {
	return s.eventHub.ClientCount()
}

// Shutdown gracefully stops the dashboard.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
