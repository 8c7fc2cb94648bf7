package session

import (
	"sync/atomic"
	"time"
)

// Metrics is a snapshot of session counters.
type Metrics struct {
	ConnectedAt        time.Time `json:"connected_at"`
	MessagesSent       int64     `json:"messages_sent"`
	MessagesReceived   int64     `json:"messages_received"`
	AudioBytesSent     int64     `json:"audio_bytes_sent"`
	AudioBytesReceived int64     `json:"audio_bytes_received"`
	ChunksDropped      int64     `json:"chunks_dropped"`
	Interruptions      int64     `json:"interruptions"`
	Errors             int64     `json:"errors"`
}

// metrics holds the live atomic counters behind Metrics.
type metrics struct {
	connectedAt        atomic.Int64 // unix nanos, 0 = never
	messagesSent       atomic.Int64
	messagesReceived   atomic.Int64
	audioBytesSent     atomic.Int64
	audioBytesReceived atomic.Int64
	chunksDropped      atomic.Int64
	errors             atomic.Int64
}

func (m *metrics) markConnected() {
	m.connectedAt.Store(time.Now().UnixNano())
}

func (m *metrics) snapshot(interruptions int64) Metrics {
	out := Metrics{
		MessagesSent:       m.messagesSent.Load(),
		MessagesReceived:   m.messagesReceived.Load(),
		AudioBytesSent:     m.audioBytesSent.Load(),
		AudioBytesReceived: m.audioBytesReceived.Load(),
		ChunksDropped:      m.chunksDropped.Load(),
		Interruptions:      interruptions,
		Errors:             m.errors.Load(),
	}
	if ns := m.connectedAt.Load(); ns != 0 {
		out.ConnectedAt = time.Unix(0, ns)
	}
	return out
}
