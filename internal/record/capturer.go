package record

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"sync"
)

// ErrDeviceUnavailable indicates the capture subprocess is missing or could
// not start. Fatal for the current call, recoverable for the next.
var ErrDeviceUnavailable = errors.New("capture device unavailable")

// Capturer owns the microphone capture subprocess. Start begins a continuous
// stream of raw mono 16-bit little-endian PCM; Stop must terminate the
// subprocess on demand — a leaked capture subprocess blocks the physical
// microphone indefinitely.
type Capturer interface {
	// Start spawns the capture subprocess and returns its PCM output stream
	// together with the sample rate of the delivered data. The rate is the
	// device's native rate; the recording pipeline resamples downstream.
	Start(ctx context.Context) (stream io.ReadCloser, sampleRate int, err error)

	// Stop terminates the capture subprocess. It must be safe to call on
	// every exit path, including after a failed Start, and more than once.
	Stop() error
}

// defaultDeviceRate is assumed when the device's native rate has not been
// probed or configured. 48 kHz is what consumer audio hardware delivers.
const defaultDeviceRate = 48000

// FFmpegCapturer captures microphone audio by spawning ffmpeg with the
// platform's default input device and reading s16le PCM from its stdout.
type FFmpegCapturer struct {
	binary     string
	deviceRate int

	mu  sync.Mutex
	cmd *exec.Cmd
}

// Compile-time interface assertion.
var _ Capturer = (*FFmpegCapturer)(nil)

// FFmpegOption is a functional option for configuring an FFmpegCapturer.
type FFmpegOption func(*FFmpegCapturer)

// WithBinary overrides the ffmpeg executable name or path.
func WithBinary(path string) FFmpegOption {
	return func(c *FFmpegCapturer) {
		if path != "" {
			c.binary = path
		}
	}
}

// WithDeviceRate sets the sample rate requested from the capture device.
// Defaults to 48000.
func WithDeviceRate(rate int) FFmpegOption {
	return func(c *FFmpegCapturer) {
		if rate > 0 {
			c.deviceRate = rate
		}
	}
}

// NewFFmpegCapturer creates a capturer that records from the platform default
// microphone via ffmpeg.
func NewFFmpegCapturer(opts ...FFmpegOption) *FFmpegCapturer {
	c := &FFmpegCapturer{
		binary:     "ffmpeg",
		deviceRate: defaultDeviceRate,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// inputArgs returns the platform-specific ffmpeg input device arguments.
func inputArgs() []string {
	switch runtime.GOOS {
	case "darwin":
		return []string{"-f", "avfoundation", "-i", ":default"}
	case "windows":
		return []string{"-f", "dshow", "-i", "audio=default"}
	default:
		return []string{"-f", "alsa", "-i", "default"}
	}
}

// Start spawns ffmpeg streaming mono s16le PCM at the device rate to stdout.
// A missing binary or a failed spawn is reported as [ErrDeviceUnavailable].
// Start refuses to run while a previous subprocess is still live: overlapping
// captures would orphan the first subprocess and hold the microphone past its
// Stop.
func (c *FFmpegCapturer) Start(ctx context.Context) (io.ReadCloser, int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cmd != nil {
		return nil, 0, fmt.Errorf("%w: capture already in progress", ErrDeviceUnavailable)
	}

	if _, err := exec.LookPath(c.binary); err != nil {
		return nil, 0, fmt.Errorf("%w: %q not found in PATH", ErrDeviceUnavailable, c.binary)
	}

	args := []string{"-hide_banner", "-loglevel", "error"}
	args = append(args, inputArgs()...)
	args = append(args,
		"-ac", "1",
		"-ar", fmt.Sprint(c.deviceRate),
		"-f", "s16le",
		"-",
	)

	cmd := exec.CommandContext(ctx, c.binary, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, 0, fmt.Errorf("%w: stdout pipe: %v", ErrDeviceUnavailable, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	c.cmd = cmd

	return stdout, c.deviceRate, nil
}

// Stop kills the capture subprocess and reaps it. Calling Stop without a
// running subprocess, or more than once, is a no-op.
func (c *FFmpegCapturer) Stop() error {
	c.mu.Lock()
	cmd := c.cmd
	c.cmd = nil
	c.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return nil
	}
	_ = cmd.Process.Kill()
	// Wait reaps the child; the error is the expected kill signal.
	_ = cmd.Wait()
	return nil
}
