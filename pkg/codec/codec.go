// Package codec decodes the audio payloads the backend sends over the wire.
//
// Payloads arrive base64-encoded. The decoded bytes are usually raw PCM16
// little-endian at the playback rate, but some backends ship WebM/Matroska
// containers carrying Opus, or bare Opus packets. Sniff picks the container
// apart so callers never have to care which variant arrived.
package codec

import (
	"encoding/base64"
	"fmt"
	"strings"

	"gopkg.in/hraban/opus.v2"
)

// Format identifies the payload encoding detected by Sniff.
type Format string

const (
	// FormatPCM16 is raw 16-bit little-endian PCM.
	FormatPCM16 Format = "pcm16"
	// FormatWebM is a WebM/Matroska container carrying Opus.
	FormatWebM Format = "webm"
	// FormatOpus is a bare Opus packet stream.
	FormatOpus Format = "opus"
)

// DecodeError wraps a payload decoding failure. Callers drop the chunk and
// keep the stream alive rather than tearing the session down.
type DecodeError struct {
	Format Format
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("codec: decoding %s payload: %v", e.Format, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// ebmlMagic is the EBML header ID that opens every WebM/Matroska file.
var ebmlMagic = []byte{0x1A, 0x45, 0xDF, 0xA3}

// Sniff inspects decoded payload bytes and guesses their format.
// Raw PCM is the default when nothing else matches.
func Sniff(data []byte) Format {
	if len(data) >= 4 &&
		data[0] == ebmlMagic[0] && data[1] == ebmlMagic[1] &&
		data[2] == ebmlMagic[2] && data[3] == ebmlMagic[3] {
		return FormatWebM
	}
	if len(data) >= 8 && string(data[:8]) == "OpusHead" {
		return FormatOpus
	}
	return FormatPCM16
}

// DecodeBase64 decodes a base64 payload, tolerating whitespace and newlines
// that some backends insert into long payloads.
func DecodeBase64(s string) ([]byte, error) {
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\n', '\r', '\t':
			return -1
		}
		return r
	}, s)

	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		// Some encoders omit padding.
		data, err = base64.RawStdEncoding.DecodeString(s)
		if err != nil {
			return nil, &DecodeError{Format: "base64", Err: err}
		}
	}
	return data, nil
}

// Decoder turns wire audio payloads into PCM16 samples at the given rate.
// The Opus decoder is created lazily on first use and reused for the life
// of the stream; Opus decoding is stateful across packets.
type Decoder struct {
	sampleRate int
	channels   int

	opusDec *opus.Decoder
	pcmBuf  []int16
}

// NewDecoder creates a decoder producing PCM16 at sampleRate Hz.
func NewDecoder(sampleRate, channels int) *Decoder {
	return &Decoder{
		sampleRate: sampleRate,
		channels:   channels,
	}
}

// Decode converts one decoded-from-base64 payload into PCM16 samples.
// The returned slice is owned by the caller.
func (d *Decoder) Decode(data []byte) ([]int16, error) {
	switch Sniff(data) {
	case FormatWebM:
		packets, err := extractOpusPackets(data)
		if err != nil {
			return nil, &DecodeError{Format: FormatWebM, Err: err}
		}
		return d.decodeOpusPackets(packets)
	case FormatOpus:
		return d.decodeOpusPackets([][]byte{data})
	default:
		return bytesToPCM16(data), nil
	}
}

func (d *Decoder) decodeOpusPackets(packets [][]byte) ([]int16, error) {
	if d.opusDec == nil {
		dec, err := opus.NewDecoder(d.sampleRate, d.channels)
		if err != nil {
			return nil, &DecodeError{Format: FormatOpus, Err: err}
		}
		d.opusDec = dec
		// 120ms is the largest frame Opus allows.
		d.pcmBuf = make([]int16, d.sampleRate*120/1000*d.channels)
	}

	var out []int16
	for _, pkt := range packets {
		if len(pkt) == 0 {
			continue
		}
		n, err := d.opusDec.Decode(pkt, d.pcmBuf)
		if err != nil {
			return nil, &DecodeError{Format: FormatOpus, Err: err}
		}
		out = append(out, d.pcmBuf[:n*d.channels]...)
	}
	return out, nil
}

// Reset drops decoder state between utterances.
func (d *Decoder) Reset() {
	d.opusDec = nil
}

func bytesToPCM16(data []byte) []int16 {
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(data[i*2]) | int16(data[i*2+1])<<8
	}
	return samples
}
