package audio

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"
)

// makeSine generates `samples` 16-bit little-endian samples of a 440 Hz sine
// wave at the given amplitude.
func makeSine(samples int, amplitude float64) []byte {
	buf := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		v := int16(amplitude * math.Sin(2*math.Pi*440*float64(i)/16000))
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(v))
	}
	return buf
}

func TestResampleMono16_SameRate_ReturnsInputUnchanged(t *testing.T) {
	in := makeSine(160, 1000)
	out := ResampleMono16(in, 16000, 16000)
	if &out[0] != &in[0] {
		t.Error("expected same-rate resample to return the input slice")
	}
}

func TestResampleMono16_Downsample_HalvesSampleCount(t *testing.T) {
	in := makeSine(480, 1000) // 10 ms at 48 kHz
	out := ResampleMono16(in, 48000, 16000)
	if got, want := len(out)/2, 160; got != want {
		t.Errorf("resampled sample count = %d, want %d", got, want)
	}
}

func TestResampleMono16_Upsample_GrowsSampleCount(t *testing.T) {
	in := makeSine(80, 1000) // 10 ms at 8 kHz
	out := ResampleMono16(in, 8000, 16000)
	if got, want := len(out)/2, 160; got != want {
		t.Errorf("resampled sample count = %d, want %d", got, want)
	}
}

func TestResampleMono16_PreservesDCLevel(t *testing.T) {
	// A constant signal must stay constant through linear interpolation.
	in := make([]byte, 200*2)
	for i := 0; i < 200; i++ {
		binary.LittleEndian.PutUint16(in[i*2:], uint16(int16(5000)))
	}
	out := ResampleMono16(in, 44100, 16000)
	for i := 0; i+1 < len(out); i += 2 {
		s := int16(binary.LittleEndian.Uint16(out[i:]))
		if s != 5000 {
			t.Fatalf("sample %d = %d, want 5000", i/2, s)
		}
	}
}

// resampleStream feeds in through a Resampler in chunkSize slices (the whole
// buffer at once when chunkSize <= 0) and returns the flushed output.
func resampleStream(in []byte, srcRate, dstRate, chunkSize int) []byte {
	r := NewResampler(srcRate, dstRate)
	var out []byte
	if chunkSize <= 0 {
		chunkSize = len(in)
	}
	for i := 0; i < len(in); i += chunkSize {
		end := i + chunkSize
		if end > len(in) {
			end = len(in)
		}
		out = append(out, r.Resample(in[i:end])...)
	}
	return append(out, r.Flush()...)
}

func TestResampler_OddChunks_MatchSingleCall(t *testing.T) {
	// Splitting the stream mid-sample must not change the output: the
	// trailing byte is carried into the next call, not dropped.
	in := makeSine(441, 12000) // 10 ms at 44.1 kHz
	whole := resampleStream(in, 44100, 16000, 0)
	for _, chunk := range []int{1, 3, 101} {
		split := resampleStream(in, 44100, 16000, chunk)
		if !bytes.Equal(whole, split) {
			t.Fatalf("chunk size %d changed the output: whole=%d bytes, split=%d bytes",
				chunk, len(whole), len(split))
		}
	}
}

func TestResampler_PhaseSurvivesChunkBoundary(t *testing.T) {
	// At a non-integer ratio the interpolation position lands between
	// chunks; per-chunk phase resets would lose roughly a sample per read.
	in := makeSine(4410, 12000) // 100 ms at 44.1 kHz
	whole := resampleStream(in, 44100, 16000, 0)
	split := resampleStream(in, 44100, 16000, 64) // even size, no byte carry
	if !bytes.Equal(whole, split) {
		t.Fatalf("chunked output diverged: whole=%d bytes, split=%d bytes", len(whole), len(split))
	}
	if got, want := len(whole)/2, 1600; got < want-2 || got > want+2 {
		t.Fatalf("output sample count = %d, want ≈ %d", got, want)
	}
}

func TestResampler_Downsample_SampleCount(t *testing.T) {
	in := makeSine(48000, 8000) // 1 s at 48 kHz
	out := resampleStream(in, 48000, 16000, 4096)
	if got, want := len(out)/2, 16000; got != want {
		t.Errorf("output sample count = %d, want %d", got, want)
	}
}

func TestResampler_SameRate_CopiesInput(t *testing.T) {
	in := makeSine(160, 1000)
	r := NewResampler(16000, 16000)
	out := r.Resample(in)
	if !bytes.Equal(out, in) {
		t.Fatal("passthrough altered the data")
	}
	if &out[0] == &in[0] {
		t.Error("passthrough must copy, not alias the input")
	}
	if flushed := r.Flush(); len(flushed) != 0 {
		t.Errorf("passthrough Flush returned %d bytes, want 0", len(flushed))
	}
}

func TestRMS_Silence_IsZero(t *testing.T) {
	if got := RMS(make([]byte, 320)); got != 0 {
		t.Errorf("RMS of silence = %f, want 0", got)
	}
}

func TestRMS_SineWave_NearExpected(t *testing.T) {
	// RMS of a sine wave is amplitude / sqrt(2).
	got := RMS(makeSine(16000, 10000))
	want := 10000 / math.Sqrt2
	if math.Abs(got-want) > want*0.05 {
		t.Errorf("RMS = %f, want ≈ %f", got, want)
	}
}

func TestRMS_EmptyBuffer_IsZero(t *testing.T) {
	if got := RMS(nil); got != 0 {
		t.Errorf("RMS(nil) = %f, want 0", got)
	}
}

func TestDurationMs(t *testing.T) {
	// 16 kHz mono 16-bit: 32 bytes per millisecond.
	if got := DurationMs(make([]byte, 3200), 16000); got != 100 {
		t.Errorf("DurationMs = %d, want 100", got)
	}
	if got := DurationMs(nil, 0); got != 0 {
		t.Errorf("DurationMs with zero rate = %d, want 0", got)
	}
}

func TestEncodeWAV_HeaderFields(t *testing.T) {
	pcm := makeSine(160, 1000)
	wav := EncodeWAV(pcm, 16000, 1)

	if got, want := len(wav), 44+len(pcm); got != want {
		t.Fatalf("wav length = %d, want %d", got, want)
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		t.Error("missing RIFF/WAVE magic")
	}
	if rate := binary.LittleEndian.Uint32(wav[24:28]); rate != 16000 {
		t.Errorf("sample rate = %d, want 16000", rate)
	}
	if ch := binary.LittleEndian.Uint16(wav[22:24]); ch != 1 {
		t.Errorf("channels = %d, want 1", ch)
	}
	if size := binary.LittleEndian.Uint32(wav[40:44]); int(size) != len(pcm) {
		t.Errorf("data size = %d, want %d", size, len(pcm))
	}
}
