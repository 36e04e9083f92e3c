package config

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Reloader applies hot-reloadable config changes while the session runs.
// Only the fields carried by [ConfigDiff] — recording tuning and the log
// level — take effect without a restart; paths and backend selection are
// part of the cross-process protocol and a rewrite touching only those is
// noted in the log and left for the next start.
//
// The file is polled by content hash behind a cheap mtime check. Recording
// thresholds do not need sub-second reload latency, and polling keeps the
// reload path free of platform notification dependencies.
type Reloader struct {
	path     string
	interval time.Duration
	apply    func(diff ConfigDiff, cfg *Config)

	mu      sync.Mutex
	current *Config
	seen    fileState

	done     chan struct{}
	stopOnce sync.Once
}

// fileState is the last observed identity of the config file.
type fileState struct {
	mtime time.Time
	sum   [sha256.Size]byte
}

// ReloaderOption configures a [Reloader].
type ReloaderOption func(*Reloader)

// WithInterval sets the polling interval. The default is 5 seconds.
func WithInterval(d time.Duration) ReloaderOption {
	return func(r *Reloader) {
		if d > 0 {
			r.interval = d
		}
	}
}

// NewReloader loads path immediately and starts polling it in a background
// goroutine. apply runs, outside the reloader's lock, for every rewrite that
// changes a hot-reloadable field; it may be nil.
func NewReloader(path string, apply func(ConfigDiff, *Config), opts ...ReloaderOption) (*Reloader, error) {
	r := &Reloader{
		path:     path,
		interval: 5 * time.Second,
		apply:    apply,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}

	cfg, state, err := r.read()
	if err != nil {
		return nil, fmt.Errorf("config: initial load: %w", err)
	}
	r.current = cfg
	r.seen = state

	go r.loop()
	return r, nil
}

// Current returns the most recently loaded valid config.
func (r *Reloader) Current() *Config {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Recording returns the live recording settings. The orchestrating layer
// reads these once per interaction, so a reload takes effect on the next
// ask without restarting the session.
func (r *Reloader) Recording() RecordingConfig {
	return r.Current().Recording
}

// Stop ends the polling goroutine. Safe to call more than once.
func (r *Reloader) Stop() {
	r.stopOnce.Do(func() {
		close(r.done)
	})
}

func (r *Reloader) loop() {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
			r.reload()
		}
	}
}

// reload re-reads the file if it looks modified. An invalid rewrite keeps
// the previous config in force; a valid one replaces it and, when a
// hot-reloadable field changed, runs the apply callback.
func (r *Reloader) reload() {
	info, err := os.Stat(r.path)
	if err != nil {
		slog.Warn("config reload: cannot stat file", "path", r.path, "err", err)
		return
	}

	r.mu.Lock()
	unchanged := info.ModTime().Equal(r.seen.mtime)
	r.mu.Unlock()
	if unchanged {
		return
	}

	cfg, state, err := r.read()
	if err != nil {
		slog.Warn("config reload: rewrite is invalid, keeping previous config",
			"path", r.path, "err", err)
		return
	}

	r.mu.Lock()
	if state.sum == r.seen.sum {
		// Touched, content identical.
		r.seen.mtime = state.mtime
		r.mu.Unlock()
		return
	}
	old := r.current
	r.current = cfg
	r.seen = state
	r.mu.Unlock()

	diff := Diff(old, cfg)
	if diff.Empty() {
		slog.Info("config changed without hot-reloadable fields, restart to apply",
			"path", r.path)
		return
	}
	slog.Info("config reloaded", "path", r.path)
	if r.apply != nil {
		r.apply(diff, cfg)
	}
}

// read loads and validates the file, returning the config together with the
// file identity used for change detection.
func (r *Reloader) read() (*Config, fileState, error) {
	info, err := os.Stat(r.path)
	if err != nil {
		return nil, fileState{}, err
	}
	data, err := os.ReadFile(r.path)
	if err != nil {
		return nil, fileState{}, err
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fileState{}, err
	}
	return cfg, fileState{mtime: info.ModTime(), sum: sha256.Sum256(data)}, nil
}
