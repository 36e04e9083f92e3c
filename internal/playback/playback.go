// Package playback plays synthesized audio clips through a subprocess and
// tracks their completion asynchronously, so the orchestrator can start the
// next phase of an interaction while a prompt is still sounding and wait for
// it (or cut it short) before the microphone opens.
package playback

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"github.com/voicelayer/voicelayer/pkg/provider/tts"
)

// ErrPlayerUnavailable reports that no playback binary is installed.
var ErrPlayerUnavailable = errors.New("playback: player binary not found")

// Handle tracks one in-flight playback.
type Handle interface {
	// Done is closed when playback finishes, for any reason.
	Done() <-chan struct{}

	// Err reports how playback ended. Nil until Done is closed; nil after
	// Done when playback completed or was stopped deliberately.
	Err() error

	// Stop cuts the playback short. Idempotent; Done closes promptly.
	Stop() error
}

// Player starts clip playback.
type Player interface {
	// Play begins playing the clip and returns immediately with a Handle.
	Play(ctx context.Context, clip *tts.Clip) (Handle, error)
}

// FFplayPlayer plays clips through an ffplay subprocess, writing the encoded
// clip to its stdin. ffplay ships with ffmpeg, which the capture pipeline
// already requires.
type FFplayPlayer struct {
	binary string
}

// Compile-time interface assertion.
var _ Player = (*FFplayPlayer)(nil)

// FFplayOption configures an FFplayPlayer.
type FFplayOption func(*FFplayPlayer)

// WithBinary overrides the player binary name or path. Defaults to "ffplay".
func WithBinary(path string) FFplayOption {
	return func(p *FFplayPlayer) { p.binary = path }
}

// NewFFplay creates an FFplayPlayer.
func NewFFplay(opts ...FFplayOption) *FFplayPlayer {
	p := &FFplayPlayer{binary: "ffplay"}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Play spawns ffplay and streams the clip into it. The returned Handle's Done
// channel closes when the process exits.
func (p *FFplayPlayer) Play(ctx context.Context, clip *tts.Clip) (Handle, error) {
	bin, err := exec.LookPath(p.binary)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrPlayerUnavailable, p.binary)
	}

	format := clip.Format
	if format == "" {
		format = "mp3"
	}

	cmd := exec.CommandContext(ctx, bin,
		"-hide_banner", "-loglevel", "error",
		"-autoexit", "-nodisp",
		"-f", format,
		"-i", "-",
	)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("playback: stdin pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("playback: start %s: %w", p.binary, err)
	}

	h := &processHandle{cmd: cmd, done: make(chan struct{})}
	go func() {
		defer close(h.done)
		// A write error just means the player stopped reading; the exit
		// status below is authoritative.
		_, _ = io.Copy(stdin, bytes.NewReader(clip.Audio))
		stdin.Close()
		waitErr := cmd.Wait()

		h.mu.Lock()
		defer h.mu.Unlock()
		if h.stopped {
			// Killing the process makes Wait report an exit error that the
			// caller asked for.
			return
		}
		if waitErr != nil {
			h.err = fmt.Errorf("playback: player exited: %w", waitErr)
		}
	}()
	return h, nil
}

// processHandle is the Handle for a subprocess playback.
type processHandle struct {
	cmd  *exec.Cmd
	done chan struct{}

	mu      sync.Mutex
	stopped bool
	err     error
}

func (h *processHandle) Done() <-chan struct{} { return h.done }

func (h *processHandle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

func (h *processHandle) Stop() error {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return nil
	}
	h.stopped = true
	h.mu.Unlock()

	select {
	case <-h.done:
		return nil
	default:
	}
	if h.cmd.Process != nil {
		h.cmd.Process.Kill()
	}
	<-h.done
	return nil
}

// ---- test double ------------------------------------------------------------

// MemHandle is an in-memory Handle whose completion the test controls.
type MemHandle struct {
	done chan struct{}

	mu        sync.Mutex
	err       error
	stopCount int
}

// NewMemHandle creates a pending MemHandle.
func NewMemHandle() *MemHandle {
	return &MemHandle{done: make(chan struct{})}
}

// Finish completes the playback with the given error. Safe to call once.
func (h *MemHandle) Finish(err error) {
	h.mu.Lock()
	h.err = err
	h.mu.Unlock()
	close(h.done)
}

func (h *MemHandle) Done() <-chan struct{} { return h.done }

func (h *MemHandle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Stop records the call and completes the playback if still pending.
func (h *MemHandle) Stop() error {
	h.mu.Lock()
	h.stopCount++
	first := h.stopCount == 1
	h.mu.Unlock()
	if first {
		select {
		case <-h.done:
		default:
			close(h.done)
		}
	}
	return nil
}

// StopCount reports how many times Stop was called.
func (h *MemHandle) StopCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stopCount
}

// MemPlayer is an in-memory Player for tests. Each Play returns the next
// scripted handle, or a fresh completed handle when the script is exhausted.
type MemPlayer struct {
	mu sync.Mutex

	// Handles are returned by Play in order.
	Handles []*MemHandle

	// PlayErr, if non-nil, is returned by every Play call.
	PlayErr error

	// PlayCalls records the clips passed to Play.
	PlayCalls []*tts.Clip

	next int
}

// Compile-time interface assertion.
var _ Player = (*MemPlayer)(nil)

// Play records the call and returns the next scripted handle.
func (p *MemPlayer) Play(_ context.Context, clip *tts.Clip) (Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.PlayCalls = append(p.PlayCalls, clip)
	if p.PlayErr != nil {
		return nil, p.PlayErr
	}
	if p.next < len(p.Handles) {
		h := p.Handles[p.next]
		p.next++
		return h, nil
	}
	h := NewMemHandle()
	h.Finish(nil)
	return h, nil
}
