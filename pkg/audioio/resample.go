package audioio

import "math"

// Resampler converts native-rate floating-point samples to 16-bit PCM at a
// fixed target rate using linear interpolation. It reuses its output buffer
// across calls, so it is safe to run on every processing callback without
// unbounded allocation. The returned slice is only valid until the next
// Process call; copy it if the frame outlives the callback.
type Resampler struct {
	srcRate int
	dstRate int
	out     []int16
}

// NewResampler creates a resampler from srcRate to dstRate (Hz).
func NewResampler(srcRate, dstRate int) *Resampler {
	return &Resampler{
		srcRate: srcRate,
		dstRate: dstRate,
	}
}

// Process resamples one chunk of float samples in [-1.0, 1.0] and quantizes
// to 16-bit signed PCM. The output length is floor(len(in) * dstRate/srcRate).
// Samples are clamped to [-1, 1] before quantization so out-of-range input
// cannot wrap around.
func (r *Resampler) Process(in []float32) []int16 {
	if len(in) == 0 {
		return r.out[:0]
	}

	ratio := float64(r.srcRate) / float64(r.dstRate)
	n := int(float64(len(in)) / ratio)
	if n == 0 {
		return r.out[:0]
	}

	if cap(r.out) < n {
		r.out = make([]int16, n)
	}
	r.out = r.out[:n]

	last := len(in) - 1
	for i := 0; i < n; i++ {
		srcPos := float64(i) * ratio
		idx := int(srcPos)
		frac := srcPos - float64(idx)

		s1 := in[idx]
		s2 := s1
		if idx < last {
			s2 = in[idx+1]
		}

		s := float64(s1) + frac*float64(s2-s1)
		r.out[i] = quantize(s)
	}

	return r.out
}

// quantize clamps a sample to [-1, 1] and converts to int16.
// Negative samples scale by 0x8000 and positive by 0x7FFF so that both
// extremes map onto the full int16 range without overflow.
func quantize(s float64) int16 {
	if s > 1 {
		s = 1
	} else if s < -1 {
		s = -1
	}
	if s < 0 {
		return int16(s * 0x8000)
	}
	return int16(s * 0x7FFF)
}

// ResampleFloats converts float samples from one sample rate to another using
// linear interpolation. This is a simple resampler suitable for speech audio.
func ResampleFloats(samples []float32, fromRate, toRate int) []float32 {
	if fromRate == toRate || len(samples) == 0 {
		return samples
	}

	ratio := float64(fromRate) / float64(toRate)
	newLen := int(float64(len(samples)) / ratio)
	if newLen == 0 {
		return []float32{}
	}

	result := make([]float32, newLen)
	for i := 0; i < newLen; i++ {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := float32(srcPos - float64(srcIdx))

		if srcIdx >= len(samples)-1 {
			result[i] = samples[len(samples)-1]
		} else {
			s1 := samples[srcIdx]
			s2 := samples[srcIdx+1]
			result[i] = s1 + frac*(s2-s1)
		}
	}

	return result
}

// PCM16ToFloats converts int16 PCM samples to float samples in [-1.0, 1.0).
func PCM16ToFloats(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s) / 32768
	}
	return out
}

// FloatsToPCM16 converts float samples to int16 PCM, clamping to [-1, 1].
func FloatsToPCM16(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		out[i] = quantize(float64(s))
	}
	return out
}

// BytesToSamples converts raw PCM16 little-endian bytes to int16 samples.
func BytesToSamples(data []byte) []int16 {
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(data[i*2]) | int16(data[i*2+1])<<8
	}
	return samples
}

// SamplesToBytes converts int16 samples to raw PCM16 little-endian bytes.
func SamplesToBytes(samples []int16) []byte {
	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		data[i*2] = byte(s)
		data[i*2+1] = byte(s >> 8)
	}
	return data
}

// CalculateRMS calculates the root mean square of float samples.
// Returns a value between 0.0 and 1.0.
func CalculateRMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}

	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}

	return math.Sqrt(sum / float64(len(samples)))
}
