package session

// State is the session connection state machine.
//
// Disconnected -> Connecting -> Connected -> Disconnected
//                                         -> Error
//
// Error is terminal for the attempt; a new Connect starts a fresh attempt
// from Disconnected.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateError        State = "error"
)

// User-facing status strings. The product UI is Spanish.
const (
	StatusConnecting   = "Conectando..."
	StatusConnected    = "Conectado"
	StatusRecording    = "Grabando voz..."
	StatusProcessing   = "Procesando audio..."
	StatusGenerating   = "Generando audio..."
	StatusReady        = "Listo"
	StatusDisconnected = "Desconectado"
)

// StatusError formats a terminal error status.
func StatusError(msg string) string {
	return "Error: " + msg
}
