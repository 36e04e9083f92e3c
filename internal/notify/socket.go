package notify

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
)

// wire event shapes, matching what the status bar parses. One JSON object per
// line.
type stateEvent struct {
	Type        string `json:"type"`
	State       State  `json:"state"`
	Text        string `json:"text,omitempty"`
	Mode        string `json:"mode,omitempty"`
	SilenceMode string `json:"silence_mode,omitempty"`
}

type speechEvent struct {
	Type     string `json:"type"`
	Detected bool   `json:"detected"`
}

type transcriptionEvent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type errorEvent struct {
	Type        string `json:"type"`
	Message     string `json:"message"`
	Recoverable bool   `json:"recoverable"`
}

// Socket broadcasts notifications as newline-delimited JSON over a Unix
// domain socket. Any number of status-bar clients may be connected; a client
// that connects mid-session immediately receives the last state event so its
// display starts out correct. Slow or dead clients are dropped, never waited
// on.
type Socket struct {
	ln net.Listener

	mu        sync.Mutex
	conns     map[net.Conn]struct{}
	lastState []byte
	closed    bool
}

// Compile-time interface assertion.
var _ Notifier = (*Socket)(nil)

// ListenSocket creates the socket at path and starts accepting clients. A
// stale socket file from a previous process is removed first. The caller must
// Close the returned Socket at shutdown.
func ListenSocket(path string) (*Socket, error) {
	// A dead server leaves the socket file behind; bind would fail with
	// "address already in use".
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("notify: remove stale socket: %w", err)
	}

	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("notify: listen on %q: %w", path, err)
	}

	s := &Socket{
		ln:    ln,
		conns: make(map[net.Conn]struct{}),
	}
	go s.acceptLoop()
	slog.Info("status notification socket listening", "path", path)
	return s, nil
}

// Close stops accepting clients, disconnects everyone, and removes the socket
// file. Calling Close more than once is safe.
func (s *Socket) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	conns := make([]net.Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.conns = map[net.Conn]struct{}{}
	s.mu.Unlock()

	for _, c := range conns {
		_ = c.Close()
	}
	return s.ln.Close()
}

// Addr returns the socket address the server is bound to.
func (s *Socket) Addr() net.Addr { return s.ln.Addr() }

// StateChanged broadcasts a state event and remembers it for late joiners.
func (s *Socket) StateChanged(change StateChange) {
	line, err := marshalLine(stateEvent{
		Type:        "state",
		State:       change.State,
		Text:        change.Text,
		Mode:        change.Mode,
		SilenceMode: change.SilenceMode,
	})
	if err != nil {
		return
	}
	s.mu.Lock()
	s.lastState = line
	s.mu.Unlock()
	s.broadcast(line)
}

// SpeechDetected broadcasts one per-frame classification result.
func (s *Socket) SpeechDetected(detected bool) {
	line, err := marshalLine(speechEvent{Type: "speech", Detected: detected})
	if err != nil {
		return
	}
	s.broadcast(line)
}

// Transcription broadcasts the final transcribed text.
func (s *Socket) Transcription(text string) {
	line, err := marshalLine(transcriptionEvent{Type: "transcription", Text: text})
	if err != nil {
		return
	}
	s.broadcast(line)
}

// Failure broadcasts a surfaced error.
func (s *Socket) Failure(message string, recoverable bool) {
	line, err := marshalLine(errorEvent{Type: "error", Message: message, Recoverable: recoverable})
	if err != nil {
		return
	}
	s.broadcast(line)
}

func (s *Socket) acceptLoop() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			// Listener closed during shutdown.
			return
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			_ = conn.Close()
			return
		}
		last := s.lastState
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		if last != nil {
			if _, err := conn.Write(last); err != nil {
				s.drop(conn)
			}
		}
	}
}

// broadcast writes line to every connected client, dropping the ones that
// fail.
func (s *Socket) broadcast(line []byte) {
	s.mu.Lock()
	conns := make([]net.Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		if _, err := c.Write(line); err != nil {
			s.drop(c)
		}
	}
}

func (s *Socket) drop(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	_ = conn.Close()
}

func marshalLine(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}
