// Package daemon provides a tts.Provider backed by the local VoiceLayer TTS
// daemon, a long-lived process that keeps the synthesis model warm and
// exposes a small REST API on 127.0.0.1:8880:
//
//	POST /synthesize — text + reference voice in, base64 MP3 out
//	GET  /health     — model load status
//
// The daemon performs zero-shot voice cloning, so every request carries the
// reference recording path and its transcript alongside the text.
package daemon

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/voicelayer/voicelayer/pkg/provider/tts"
)

const (
	// ProviderName identifies the local daemon backend.
	ProviderName = "tts-daemon"

	// DefaultBaseURL is where the daemon listens by convention.
	DefaultBaseURL = "http://127.0.0.1:8880"
)

// Compile-time interface assertion.
var _ tts.Provider = (*Client)(nil)

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithTimeout sets the per-request HTTP timeout. Synthesis of long prompts
// can take several seconds on first use; defaults to 30 s.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithHTTPClient replaces the HTTP client, mainly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// Client implements tts.Provider against the daemon's REST API.
type Client struct {
	baseURL       string
	referenceWAV  string
	referenceText string
	httpClient    *http.Client
}

// New creates a Client for the daemon at baseURL. referenceWAV is the path to
// the 24 kHz mono reference recording the daemon clones, and referenceText is
// its transcript; both must be non-empty because the daemon rejects requests
// without them.
func New(baseURL, referenceWAV, referenceText string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if referenceWAV == "" {
		return nil, errors.New("daemon: referenceWAV must not be empty")
	}
	if referenceText == "" {
		return nil, errors.New("daemon: referenceText must not be empty")
	}
	c := &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		referenceWAV:  referenceWAV,
		referenceText: referenceText,
		httpClient:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Name returns ProviderName.
func (c *Client) Name() string { return ProviderName }

// Available probes GET /health and requires the model to be loaded. The probe
// is bounded to two seconds.
func (c *Client) Available(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false
	}

	var health struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return false
	}
	return health.Status == "ok"
}

// synthesizeRequest mirrors the daemon's POST /synthesize schema.
type synthesizeRequest struct {
	Text          string `json:"text"`
	ReferenceWAV  string `json:"reference_wav"`
	ReferenceText string `json:"reference_text"`
}

type synthesizeResponse struct {
	AudioB64   string  `json:"audio_b64"`
	DurationMs float64 `json:"duration_ms"`
}

// Synthesize sends the text to the daemon and decodes the returned MP3 clip.
func (c *Client) Synthesize(ctx context.Context, text string) (*tts.Clip, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("daemon: text must not be empty")
	}

	payload, err := json.Marshal(synthesizeRequest{
		Text:          text,
		ReferenceWAV:  c.referenceWAV,
		ReferenceText: c.referenceText,
	})
	if err != nil {
		return nil, fmt.Errorf("daemon: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/synthesize", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("daemon: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("daemon: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("daemon: server returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var sr synthesizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("daemon: parse response: %w", err)
	}
	audio, err := base64.StdEncoding.DecodeString(sr.AudioB64)
	if err != nil {
		return nil, fmt.Errorf("daemon: decode audio payload: %w", err)
	}

	return &tts.Clip{
		Audio:    audio,
		Format:   "mp3",
		Duration: time.Duration(sr.DurationMs * float64(time.Millisecond)),
	}, nil
}
