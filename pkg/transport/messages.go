package transport

// Wire message vocabulary for the conversation backend.
//
// Every frame is a JSON text message with a "type" discriminator. Outbound
// frames always carry the conversation and character so the backend can
// route them; inbound frames carry whichever payload fields their type uses.

// Outbound message types.
const (
	TypeInit  = "init"
	TypeText  = "text"
	TypeAudio = "audio"
)

// Inbound message types. The backend has shipped two names for some events
// over time, so both spellings are handled.
const (
	TypeStatus              = "status"
	TypeTranscription       = "transcription"
	TypeTranscriptionResult = "transcription_result"
	TypeTextResponse        = "text_response"
	TypeAIMessage           = "ai_message"
	TypeAudioResponse       = "audio_response"
	TypeInterrupted         = "interrupted"
	TypeError               = "error"
)

// outgoing is the frame sent to the backend.
type outgoing struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id"`
	CharacterID    string `json:"character_id"`
	Text           string `json:"text,omitempty"`
	Audio          string `json:"audio,omitempty"`
}

// incoming is the frame received from the backend. Fields are a union over
// all inbound types; only the ones matching Type are populated.
type incoming struct {
	Type string `json:"type"`

	// status
	Status string `json:"status,omitempty"`

	// transcription / transcription_result
	Text    string `json:"text,omitempty"`
	IsFinal bool   `json:"is_final,omitempty"`

	// text_response / ai_message
	Content string `json:"content,omitempty"`
	Audio   string `json:"audio,omitempty"`

	// message ID, when the backend assigns one
	ID string `json:"id,omitempty"`

	// conversation routing echo
	ConversationID string `json:"conversation_id,omitempty"`

	// error
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// text returns the textual payload regardless of which field carried it.
func (m *incoming) text() string {
	if m.Text != "" {
		return m.Text
	}
	return m.Content
}

// errorMessage returns the error payload regardless of which field carried it.
func (m *incoming) errorMessage() string {
	if m.Message != "" {
		return m.Message
	}
	return m.Error
}
