// Package config provides configuration helpers for go-charla commands.
package config

import (
	"fmt"
	"os"
)

// Default endpoints for local development.
const (
	DefaultWSURL  = "ws://localhost:8000/ws/chat/"
	DefaultAPIURL = "http://localhost:8000"
)

// WSURL returns the conversation WebSocket URL from CHARLA_WS_URL.
// Falls back to the local development default if not set.
func WSURL() string {
	if u := os.Getenv("CHARLA_WS_URL"); u != "" {
		return u
	}
	return DefaultWSURL
}

// APIURL returns the conversation REST base URL from CHARLA_API_URL.
// Falls back to the local development default if not set.
func APIURL() string {
	if u := os.Getenv("CHARLA_API_URL"); u != "" {
		return u
	}
	return DefaultAPIURL
}

// Token returns the access token from CHARLA_TOKEN. May be empty for
// backends that do not require authentication.
func Token() string {
	return os.Getenv("CHARLA_TOKEN")
}

// CharacterIDRequired returns the character ID from CHARLA_CHARACTER_ID.
// Exits with usage help if not set.
func CharacterIDRequired() string {
	id := os.Getenv("CHARLA_CHARACTER_ID")
	if id == "" {
		fmt.Fprintln(os.Stderr, "Error: CHARLA_CHARACTER_ID environment variable is required")
		fmt.Fprintln(os.Stderr, "Usage: CHARLA_CHARACTER_ID=<uuid> go run ./cmd/charla")
		os.Exit(1)
	}
	return id
}

// ConversationID returns the conversation ID from CHARLA_CONVERSATION_ID.
// Falls back to the provided default (typically a freshly generated UUID).
func ConversationID(defaultID string) string {
	if id := os.Getenv("CHARLA_CONVERSATION_ID"); id != "" {
		return id
	}
	return defaultID
}
