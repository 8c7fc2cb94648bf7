// Package poller fetches conversation state over plain HTTP when the live
// WebSocket push is delayed or unavailable. It is the fallback path: after a
// message is sent and no response arrives, polling picks up whatever the
// backend has persisted.
package poller

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/oauth2"

	"github.com/vozlab/go-charla/internal/httpc"
	"github.com/vozlab/go-charla/pkg/transcript"
)

// Message is one persisted conversation message as the REST API returns it.
// The backend has shipped several field spellings over time; UnmarshalJSON
// normalizes them.
type Message struct {
	ID      string
	Role    transcript.Role
	Content string
	Audio   string
}

// rawMessage covers every spelling the backend has used.
type rawMessage struct {
	ID        json.RawMessage `json:"id"`
	Role      string          `json:"role"`
	Sender    string          `json:"sender"`
	Content   string          `json:"content"`
	Text      string          `json:"text"`
	Message   string          `json:"message"`
	Audio     string          `json:"audio"`
	AudioData string          `json:"audio_data"`
	AudioURL  string          `json:"audioUrl"`
}

func (m *Message) UnmarshalJSON(data []byte) error {
	var raw rawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	// IDs arrive as numbers or strings depending on backend version.
	if len(raw.ID) > 0 {
		var s string
		if err := json.Unmarshal(raw.ID, &s); err == nil {
			m.ID = s
		} else {
			m.ID = strings.Trim(string(raw.ID), `"`)
		}
	}

	role := raw.Role
	if role == "" {
		role = raw.Sender
	}
	switch strings.ToLower(role) {
	case "assistant", "ai", "character":
		m.Role = transcript.RoleAssistant
	case "system":
		m.Role = transcript.RoleSystem
	default:
		m.Role = transcript.RoleUser
	}

	m.Content = firstNonEmpty(raw.Content, raw.Text, raw.Message)
	m.Audio = firstNonEmpty(raw.Audio, raw.AudioData, raw.AudioURL)
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// Conversation is the REST representation of a conversation.
type Conversation struct {
	ID       string    `json:"id"`
	Messages []Message `json:"messages"`
}

func (c *Conversation) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID       json.RawMessage `json:"id"`
		Messages []Message       `json:"messages"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw.ID) > 0 {
		var s string
		if err := json.Unmarshal(raw.ID, &s); err == nil {
			c.ID = s
		} else {
			c.ID = strings.Trim(string(raw.ID), `"`)
		}
	}
	c.Messages = raw.Messages
	return nil
}

// Client fetches conversations from the REST API.
type Client struct {
	baseURL string
	tokens  oauth2.TokenSource
	http    *http.Client
}

// NewClient creates a REST client for baseURL. tokens may be nil.
func NewClient(baseURL string, tokens oauth2.TokenSource) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		tokens:  tokens,
		http:    httpc.Client,
	}
}

// FetchConversation retrieves one conversation by ID.
func (c *Client) FetchConversation(ctx context.Context, id string) (*Conversation, error) {
	url := fmt.Sprintf("%s/conversations/%s/", c.baseURL, id)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("poller: build request: %w", err)
	}
	if c.tokens != nil {
		tok, err := c.tokens.Token()
		if err != nil {
			return nil, fmt.Errorf("poller: token: %w", err)
		}
		tok.SetAuthHeader(req)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("poller: fetch conversation: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("poller: fetch conversation: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var conv Conversation
	if err := json.NewDecoder(resp.Body).Decode(&conv); err != nil {
		return nil, fmt.Errorf("poller: decode conversation: %w", err)
	}
	return &conv, nil
}
