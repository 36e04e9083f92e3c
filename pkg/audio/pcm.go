// Package audio provides PCM helpers shared by the recording pipeline, the
// voice activity gate, and the transcription backends: linear-interpolation
// resampling, RMS energy measurement, and WAV container encoding.
//
// All functions operate on mono 16-bit signed little-endian PCM, the only
// format the capture contract produces.
package audio

import (
	"encoding/binary"
	"math"
)

// BytesPerSample is the byte width of one 16-bit PCM sample.
const BytesPerSample = 2

// ResampleMono16 resamples 16-bit mono PCM from srcRate to dstRate using
// linear interpolation. The input must be little-endian int16 samples. If
// srcRate == dstRate, the input is returned unchanged.
func ResampleMono16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 {
		return pcm
	}
	if srcRate == dstRate || len(pcm) < BytesPerSample {
		return pcm
	}
	srcSamples := len(pcm) / BytesPerSample
	dstSamples := int(int64(srcSamples) * int64(dstRate) / int64(srcRate))
	if dstSamples == 0 {
		return nil
	}

	out := make([]byte, dstSamples*BytesPerSample)
	ratio := float64(srcRate) / float64(dstRate)

	for i := range dstSamples {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		s0 := int16(pcm[srcIdx*2]) | int16(pcm[srcIdx*2+1])<<8
		var s1 int16
		if srcIdx+1 < srcSamples {
			s1 = int16(pcm[(srcIdx+1)*2]) | int16(pcm[(srcIdx+1)*2+1])<<8
		} else {
			s1 = s0
		}

		interpolated := int16(float64(s0)*(1-frac) + float64(s1)*frac)
		out[i*2] = byte(interpolated)
		out[i*2+1] = byte(interpolated >> 8)
	}
	return out
}

// Resampler incrementally resamples a 16-bit mono PCM stream from srcRate to
// dstRate using linear interpolation. Unlike [ResampleMono16] it accepts the
// stream in arbitrary slices: a trailing partial sample is carried to the
// next call and the interpolation phase is preserved across calls, so the
// output is independent of how the stream was split into reads.
type Resampler struct {
	step        float64 // source samples advanced per output sample
	passthrough bool

	carry   [BytesPerSample]byte
	carried int

	prev    int16
	hasPrev bool
	pos     float64 // next output position, in source samples past prev
}

// NewResampler creates a stream resampler. Equal or non-positive rates yield
// a passthrough that still copies its input.
func NewResampler(srcRate, dstRate int) *Resampler {
	r := &Resampler{}
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate {
		r.passthrough = true
		return r
	}
	r.step = float64(srcRate) / float64(dstRate)
	return r
}

// Resample consumes the next slice of the source stream and returns the
// output samples it produced, which may be empty. The returned slice is
// freshly allocated and never aliases chunk.
func (r *Resampler) Resample(chunk []byte) []byte {
	if r.passthrough {
		return append([]byte(nil), chunk...)
	}

	data := chunk
	if r.carried > 0 {
		joined := make([]byte, 0, r.carried+len(chunk))
		joined = append(joined, r.carry[:r.carried]...)
		data = append(joined, chunk...)
		r.carried = 0
	}
	if n := len(data) % BytesPerSample; n != 0 {
		r.carried = copy(r.carry[:], data[len(data)-n:])
		data = data[:len(data)-n]
	}

	var out []byte
	for i := 0; i+BytesPerSample <= len(data); i += BytesPerSample {
		cur := int16(binary.LittleEndian.Uint16(data[i : i+BytesPerSample]))
		if !r.hasPrev {
			// The first output sample lands exactly on the first source
			// sample, emitted once its successor arrives.
			r.prev, r.hasPrev = cur, true
			continue
		}
		for r.pos < 1 {
			v := int16(float64(r.prev)*(1-r.pos) + float64(cur)*r.pos)
			out = binary.LittleEndian.AppendUint16(out, uint16(v))
			r.pos += r.step
		}
		r.pos--
		r.prev = cur
	}
	return out
}

// Flush emits the outputs that fall on or past the final source sample,
// extending it flat the way [ResampleMono16] treats the end of a buffer.
// The resampler must not be reused afterwards.
func (r *Resampler) Flush() []byte {
	if r.passthrough || !r.hasPrev {
		return nil
	}
	var out []byte
	for ; r.pos < 1; r.pos += r.step {
		out = binary.LittleEndian.AppendUint16(out, uint16(r.prev))
	}
	return out
}

// RMS returns the root-mean-square energy of a 16-bit signed little-endian
// PCM buffer. Returns 0 for buffers shorter than one sample. The result is
// expressed in the same units as PCM sample values (0–32 767).
func RMS(pcm []byte) float64 {
	n := len(pcm) / BytesPerSample
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		sample := int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
		v := float64(sample)
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}

// DurationMs returns the duration of a mono PCM buffer in milliseconds at the
// given sample rate. Returns 0 for invalid inputs.
func DurationMs(pcm []byte, sampleRate int) int {
	if sampleRate <= 0 {
		return 0
	}
	bytesPerSec := sampleRate * BytesPerSample
	return len(pcm) * 1000 / bytesPerSec
}
