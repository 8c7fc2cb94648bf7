package audioio

import (
	"math"
	"testing"
)

func TestResamplerFrameCount(t *testing.T) {
	tests := []struct {
		name    string
		srcRate int
		dstRate int
		inLen   int
		wantLen int
	}{
		{"48k to 16k", 48000, 16000, 960, 320},
		{"44.1k to 16k", 44100, 16000, 441, 160},
		{"16k to 16k", 16000, 16000, 320, 320},
		{"8k to 16k upsample", 8000, 16000, 160, 320},
		{"odd length floors", 48000, 16000, 961, 320},
		{"empty input", 48000, 16000, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewResampler(tt.srcRate, tt.dstRate)
			in := make([]float32, tt.inLen)
			out := r.Process(in)
			if len(out) != tt.wantLen {
				t.Errorf("Process() len = %d, want %d", len(out), tt.wantLen)
			}
		})
	}
}

func TestResamplerReusesBuffer(t *testing.T) {
	r := NewResampler(48000, 16000)
	in := make([]float32, 960)

	first := r.Process(in)
	second := r.Process(in)

	if len(first) != len(second) {
		t.Fatalf("lengths differ: %d vs %d", len(first), len(second))
	}
	if &first[0] != &second[0] {
		t.Error("expected output buffer to be reused across calls")
	}
}

func TestQuantizeClamping(t *testing.T) {
	tests := []struct {
		name string
		in   float64
		want int16
	}{
		{"zero", 0, 0},
		{"full positive", 1.0, 32767},
		{"full negative", -1.0, -32768},
		{"over range clamps", 2.5, 32767},
		{"under range clamps", -2.5, -32768},
		{"half positive", 0.5, 16383},
		{"half negative", -0.5, -16384},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := quantize(tt.in); got != tt.want {
				t.Errorf("quantize(%v) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestResamplerNoWraparound(t *testing.T) {
	r := NewResampler(48000, 16000)

	// Input deliberately out of the nominal [-1, 1] range.
	in := make([]float32, 960)
	for i := range in {
		if i%2 == 0 {
			in[i] = 3.0
		} else {
			in[i] = -3.0
		}
	}

	for _, s := range r.Process(in) {
		if s > 32767 || s < -32768 {
			t.Fatalf("sample %d out of int16 range", s)
		}
	}
}

func TestResampleFloats(t *testing.T) {
	in := make([]float32, 480)
	for i := range in {
		in[i] = float32(math.Sin(2 * math.Pi * float64(i) / 48))
	}

	out := ResampleFloats(in, 48000, 24000)
	if len(out) != 240 {
		t.Errorf("len = %d, want 240", len(out))
	}

	// Same rate should return the input unchanged.
	same := ResampleFloats(in, 48000, 48000)
	if len(same) != len(in) {
		t.Errorf("same-rate resample changed length: %d", len(same))
	}
}

func TestPCM16RoundTrip(t *testing.T) {
	pcm := []int16{0, 100, -100, 32767, -32768}

	floats := PCM16ToFloats(pcm)
	back := FloatsToPCM16(floats)

	for i := range pcm {
		// Asymmetric quantization loses at most one step on positives.
		diff := int(pcm[i]) - int(back[i])
		if diff < -1 || diff > 1 {
			t.Errorf("index %d: %d -> %d", i, pcm[i], back[i])
		}
	}
}

func TestBytesSamplesRoundTrip(t *testing.T) {
	samples := []int16{0, 1, -1, 12345, -12345, 32767, -32768}

	data := SamplesToBytes(samples)
	if len(data) != len(samples)*2 {
		t.Fatalf("byte len = %d, want %d", len(data), len(samples)*2)
	}

	back := BytesToSamples(data)
	for i := range samples {
		if back[i] != samples[i] {
			t.Errorf("index %d: got %d, want %d", i, back[i], samples[i])
		}
	}
}

func TestCalculateRMS(t *testing.T) {
	if rms := CalculateRMS(nil); rms != 0 {
		t.Errorf("RMS of empty = %v, want 0", rms)
	}

	silence := make([]float32, 100)
	if rms := CalculateRMS(silence); rms != 0 {
		t.Errorf("RMS of silence = %v, want 0", rms)
	}

	// Full-scale square wave has RMS 1.
	square := make([]float32, 100)
	for i := range square {
		if i%2 == 0 {
			square[i] = 1
		} else {
			square[i] = -1
		}
	}
	if rms := CalculateRMS(square); math.Abs(rms-1) > 1e-6 {
		t.Errorf("RMS of square wave = %v, want 1", rms)
	}
}

func BenchmarkResamplerProcess(b *testing.B) {
	r := NewResampler(48000, 16000)
	in := make([]float32, 960) // 20ms at 48kHz
	for i := range in {
		in[i] = float32(math.Sin(2 * math.Pi * float64(i) / 48))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		r.Process(in)
	}
}
