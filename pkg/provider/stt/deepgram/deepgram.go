// Package deepgram provides a Deepgram-backed transcription provider using
// the Deepgram streaming WebSocket API. It implements the stt.Provider
// interface.
//
// Although Deepgram's API is a stream, utterances arrive here already
// complete: Transcribe dials one WebSocket per call, pushes the whole
// utterance as binary frames, signals CloseStream, and collects the final
// results before the server closes the connection. The provider is the cloud
// fallback — it is only selected when no local backend is available, and it
// requires a configured API key.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/coder/websocket"

	"github.com/voicelayer/voicelayer/pkg/provider/stt"
)

const (
	// ProviderName identifies the Deepgram backend to the Selector.
	ProviderName = "deepgram"

	defaultEndpoint   = "wss://api.deepgram.com/v1/listen"
	defaultModel      = "nova-3"
	defaultLanguage   = "en"
	defaultCallBudget = 30 * time.Second

	// chunkBytes is the binary frame size for audio upload. 8 KiB keeps
	// frames well under Deepgram's message limits.
	chunkBytes = 8192
)

// Compile-time assertion that Provider implements stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring the Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model to use (e.g., "nova-3", "base").
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithLanguage sets the BCP-47 language code for recognition (e.g., "en",
// "de-DE").
func WithLanguage(language string) Option {
	return func(p *Provider) { p.language = language }
}

// WithEndpoint overrides the WebSocket endpoint, mainly for tests.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) { p.endpoint = endpoint }
}

// Provider implements stt.Provider backed by the Deepgram streaming API.
type Provider struct {
	apiKey   string
	model    string
	language string
	endpoint string
}

// New creates a Deepgram Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:   apiKey,
		model:    defaultModel,
		language: defaultLanguage,
		endpoint: defaultEndpoint,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Name returns ProviderName.
func (p *Provider) Name() string { return ProviderName }

// Available reports whether the backend is configured. The credential is
// validated on first use rather than probed here: a network round trip per
// selection would add latency to every interaction, and Deepgram bills some
// probe endpoints.
func (p *Provider) Available(_ context.Context) bool {
	return p.apiKey != ""
}

// Transcribe streams the utterance over one WebSocket connection and returns
// the concatenated final transcripts.
func (p *Provider) Transcribe(ctx context.Context, pcm []byte, sampleRate int) (*stt.Result, error) {
	start := time.Now()

	text, err := p.run(ctx, pcm, sampleRate)
	if err != nil {
		return nil, &stt.BackendError{Backend: ProviderName, Err: err}
	}
	return &stt.Result{
		Text:    strings.TrimSpace(text),
		Backend: ProviderName,
		Elapsed: time.Since(start),
	}, nil
}

func (p *Provider) run(ctx context.Context, pcm []byte, sampleRate int) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultCallBudget)
	defer cancel()

	wsURL, err := p.buildURL(sampleRate)
	if err != nil {
		return "", fmt.Errorf("build URL: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.apiKey)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: headers,
	})
	if err != nil {
		return "", fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	// Upload in fixed-size binary frames, then tell Deepgram the stream is
	// complete so it flushes the last segment.
	for off := 0; off < len(pcm); off += chunkBytes {
		end := off + chunkBytes
		if end > len(pcm) {
			end = len(pcm)
		}
		if err := conn.Write(ctx, websocket.MessageBinary, pcm[off:end]); err != nil {
			return "", fmt.Errorf("send audio: %w", err)
		}
	}
	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"type":"CloseStream"}`)); err != nil {
		return "", fmt.Errorf("close stream: %w", err)
	}

	// Collect finals until the Metadata message that follows CloseStream,
	// or until the server closes the connection.
	var parts []string
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			var closeErr websocket.CloseError
			if errors.As(err, &closeErr) && closeErr.Code == websocket.StatusNormalClosure {
				break
			}
			if len(parts) > 0 {
				// The server may drop the connection instead of closing
				// cleanly once results are delivered.
				break
			}
			return "", fmt.Errorf("read: %w", err)
		}

		msgType, text, isFinal := parseMessage(msg)
		switch msgType {
		case "Results":
			if isFinal && text != "" {
				parts = append(parts, text)
			}
		case "Metadata":
			return strings.Join(parts, " "), nil
		}
	}
	return strings.Join(parts, " "), nil
}

// buildURL constructs the streaming endpoint URL for raw 16-bit mono PCM at
// the given rate.
func (p *Provider) buildURL(sampleRate int) (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("model", p.model)
	q.Set("language", p.language)
	q.Set("punctuate", "true")
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(sampleRate))
	q.Set("channels", "1")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// response is the subset of Deepgram's message schema the provider consumes.
type response struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// parseMessage extracts the message type and, for Results, the first
// alternative's transcript.
func parseMessage(data []byte) (msgType, text string, isFinal bool) {
	var resp response
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", "", false
	}
	if resp.Type != "Results" {
		return resp.Type, "", false
	}
	if len(resp.Channel.Alternatives) == 0 {
		return resp.Type, "", resp.IsFinal
	}
	return resp.Type, resp.Channel.Alternatives[0].Transcript, resp.IsFinal
}
