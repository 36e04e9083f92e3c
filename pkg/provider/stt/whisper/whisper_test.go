package whisper_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/voicelayer/voicelayer/pkg/provider/stt"
	"github.com/voicelayer/voicelayer/pkg/provider/stt/whisper"
)

// fakeServer mimics whisper-server: GET /health answers healthStatus, POST
// /inference answers inferenceStatus/inferenceBody and records the submitted
// multipart fields.
type fakeServer struct {
	*httptest.Server

	healthStatus    int
	inferenceStatus int
	inferenceBody   string

	mu     sync.Mutex
	fields map[string]string
}

func newFakeServer(t *testing.T, healthStatus, inferenceStatus int, inferenceBody string) *fakeServer {
	t.Helper()
	fs := &fakeServer{
		healthStatus:    healthStatus,
		inferenceStatus: inferenceStatus,
		inferenceBody:   inferenceBody,
		fields:          map[string]string{},
	}
	fs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			w.WriteHeader(fs.healthStatus)
		case "/inference":
			if err := r.ParseMultipartForm(10 << 20); err != nil {
				t.Errorf("parse multipart: %v", err)
			}
			fs.mu.Lock()
			for k, v := range r.MultipartForm.Value {
				if len(v) > 0 {
					fs.fields[k] = v[0]
				}
			}
			if f, _, err := r.FormFile("file"); err == nil {
				magic := make([]byte, 4)
				f.Read(magic)
				fs.fields["_file_magic"] = string(magic)
				f.Close()
			}
			fs.mu.Unlock()
			w.WriteHeader(fs.inferenceStatus)
			w.Write([]byte(fs.inferenceBody))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(fs.Server.Close)
	return fs
}

func (fs *fakeServer) field(name string) string {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.fields[name]
}

func TestNew_EmptyServerURL_ReturnsError(t *testing.T) {
	_, err := whisper.New("")
	if err == nil {
		t.Fatal("expected error for empty server URL, got nil")
	}
}

func TestName_IsStable(t *testing.T) {
	p, err := whisper.New("http://localhost:8080")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.Name() != "whisper-server" {
		t.Fatalf("Name() = %q, want %q", p.Name(), "whisper-server")
	}
}

func TestAvailable_HealthyServer_ReturnsTrue(t *testing.T) {
	fs := newFakeServer(t, http.StatusOK, http.StatusOK, `{"text":""}`)
	p, err := whisper.New(fs.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !p.Available(context.Background()) {
		t.Fatal("Available() = false for healthy server")
	}
}

func TestAvailable_UnhealthyServer_ReturnsFalse(t *testing.T) {
	fs := newFakeServer(t, http.StatusServiceUnavailable, http.StatusOK, `{"text":""}`)
	p, err := whisper.New(fs.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.Available(context.Background()) {
		t.Fatal("Available() = true for unhealthy server")
	}
}

func TestAvailable_ServerDown_ReturnsFalse(t *testing.T) {
	fs := newFakeServer(t, http.StatusOK, http.StatusOK, `{"text":""}`)
	url := fs.URL
	fs.Close()
	p, err := whisper.New(url)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.Available(context.Background()) {
		t.Fatal("Available() = true for stopped server")
	}
}

func TestTranscribe_ReturnsTrimmedText(t *testing.T) {
	fs := newFakeServer(t, http.StatusOK, http.StatusOK, "{\"text\":\"  hello world \\n\"}")
	p, err := whisper.New(fs.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res, err := p.Transcribe(context.Background(), make([]byte, 3200), 16000)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if res.Text != "hello world" {
		t.Fatalf("Text = %q, want %q", res.Text, "hello world")
	}
	if res.Backend != "whisper-server" {
		t.Fatalf("Backend = %q, want %q", res.Backend, "whisper-server")
	}
}

func TestTranscribe_SendsWAVAndHintFields(t *testing.T) {
	fs := newFakeServer(t, http.StatusOK, http.StatusOK, `{"text":"ok"}`)
	p, err := whisper.New(fs.URL, whisper.WithLanguage("de"), whisper.WithModel("small"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := p.Transcribe(context.Background(), make([]byte, 640), 16000); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if got := fs.field("_file_magic"); got != "RIFF" {
		t.Fatalf("uploaded file does not start with RIFF, got %q", got)
	}
	if got := fs.field("language"); got != "de" {
		t.Fatalf("language field = %q, want %q", got, "de")
	}
	if got := fs.field("model"); got != "small" {
		t.Fatalf("model field = %q, want %q", got, "small")
	}
}

func TestTranscribe_ServerError_ReturnsBackendError(t *testing.T) {
	fs := newFakeServer(t, http.StatusOK, http.StatusInternalServerError, "boom")
	p, err := whisper.New(fs.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = p.Transcribe(context.Background(), make([]byte, 640), 16000)
	var be *stt.BackendError
	if !errors.As(err, &be) {
		t.Fatalf("err = %v, want *stt.BackendError", err)
	}
	if be.Backend != "whisper-server" {
		t.Fatalf("Backend = %q, want %q", be.Backend, "whisper-server")
	}
	if !strings.Contains(be.Error(), "500") {
		t.Fatalf("error does not mention the HTTP status: %v", be)
	}
}

func TestTranscribe_MalformedJSON_ReturnsBackendError(t *testing.T) {
	fs := newFakeServer(t, http.StatusOK, http.StatusOK, `not json`)
	p, err := whisper.New(fs.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = p.Transcribe(context.Background(), make([]byte, 640), 16000)
	var be *stt.BackendError
	if !errors.As(err, &be) {
		t.Fatalf("err = %v, want *stt.BackendError", err)
	}
}

func TestTranscribe_CancelledContext_ReturnsError(t *testing.T) {
	fs := newFakeServer(t, http.StatusOK, http.StatusOK, `{"text":"ok"}`)
	p, err := whisper.New(fs.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Transcribe(ctx, make([]byte, 640), 16000); err == nil {
		t.Fatal("expected error for cancelled context, got nil")
	}
}

func TestTranscribe_EmptyResponseText_IsNotAnError(t *testing.T) {
	// The engine heard nothing intelligible: empty text, nil error.
	fs := newFakeServer(t, http.StatusOK, http.StatusOK, `{"text":""}`)
	p, err := whisper.New(fs.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res, err := p.Transcribe(context.Background(), make([]byte, 640), 16000)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if res.Text != "" {
		t.Fatalf("Text = %q, want empty", res.Text)
	}
}
