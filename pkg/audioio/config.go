// Package audioio provides audio capture and playback primitives for the
// conversation engine.
//
// Sources deliver native-rate floating-point samples the way a capture
// device does; sinks accept the same chunk type for playback. Two backends
// ship with the package:
//   - Pipe - raw PCM16 over an io.Reader/io.Writer (arecord/aplay, files)
//   - Mock - synthetic audio for CI/testing without hardware
package audioio

import (
	"fmt"
	"time"
)

// Backend represents the audio backend type.
type Backend string

const (
	// BackendAuto automatically selects the best available backend.
	BackendAuto Backend = "auto"
	// BackendPipe streams raw PCM16 through an io.Reader/io.Writer.
	BackendPipe Backend = "pipe"
	// BackendMock uses a mock implementation for testing.
	BackendMock Backend = "mock"
)

// Standard sample rates for the conversation wire format.
const (
	// CaptureRate is the sample rate frames are sent upstream at.
	CaptureRate = 16000
	// PlaybackRate is the sample rate synthesized audio arrives at.
	PlaybackRate = 24000
)

// Config holds audio configuration.
type Config struct {
	// Backend specifies which audio backend to use.
	// Default: "auto"
	Backend Backend `yaml:"backend" json:"backend"`

	// SampleRate is the native sample rate of the device in Hz.
	// Default: 48000
	SampleRate int `yaml:"sample_rate" json:"sample_rate"`

	// Channels is the number of audio channels.
	// Default: 1 (mono)
	Channels int `yaml:"channels" json:"channels"`

	// BufferDuration is the size of audio buffers.
	// Default: 20ms
	BufferDuration time.Duration `yaml:"buffer_duration" json:"buffer_duration"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Backend:        BackendAuto,
		SampleRate:     48000,
		Channels:       1,
		BufferDuration: 20 * time.Millisecond,
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", c.SampleRate)
	}
	if c.Channels <= 0 {
		return fmt.Errorf("channels must be positive, got %d", c.Channels)
	}
	if c.BufferDuration <= 0 {
		return fmt.Errorf("buffer_duration must be positive, got %v", c.BufferDuration)
	}
	return nil
}

// BufferSize returns the number of samples per buffer.
func (c *Config) BufferSize() int {
	return int(float64(c.SampleRate) * c.BufferDuration.Seconds())
}

// BufferBytes returns the size of a buffer in bytes (assuming int16 samples).
func (c *Config) BufferBytes() int {
	return c.BufferSize() * c.Channels * 2 // 2 bytes per int16 sample
}
