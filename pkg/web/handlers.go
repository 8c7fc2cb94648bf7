package web

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/vozlab/go-charla/pkg/hub"
)

// handleStatus returns the current session snapshot.
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":          s.source.Status(),
		"state":           s.source.State(),
		"conversation_id": s.source.ConversationID(),
		"metrics":         s.source.Metrics(),
		"observers":       s.eventHub.ClientCount(),
	})
}

// handleTranscript returns the transcript window.
func (s *Server) handleTranscript(c *fiber.Ctx) error {
	return c.JSON(s.source.History())
}

// handleStatusWS streams session events to one observer.
func (s *Server) handleStatusWS(c *websocket.Conn) {
	client := hub.NewClient(s.eventHub, c)

	// Catch the observer up before live events start. The queue hands the
	// snapshot to the write pump, so only one goroutine ever writes.
	_ = client.QueueEvent("status", fiber.Map{
		"status": s.source.Status(),
		"state":  s.source.State(),
	})
	for _, entry := range s.source.History() {
		_ = client.QueueEvent("transcript", entry)
	}

	client.Run() // Blocks until the observer disconnects
}
