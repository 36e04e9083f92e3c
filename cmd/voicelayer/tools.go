package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/voicelayer/voicelayer/internal/config"
	"github.com/voicelayer/voicelayer/internal/observe"
	"github.com/voicelayer/voicelayer/internal/orchestrate"
	"github.com/voicelayer/voicelayer/internal/record"
	"github.com/voicelayer/voicelayer/internal/sessionlock"
)

// converseArgs are the inputs of the converse tool. Unset fields inherit the
// configured recording defaults.
type converseArgs struct {
	// Message is spoken aloud before the microphone opens. Optional.
	Message string `json:"message,omitempty" jsonschema:"question or status to speak aloud before listening"`

	// SilenceMode overrides how long to wait after the user stops
	// speaking: quick, standard or thoughtful.
	SilenceMode string `json:"silence_mode,omitempty" jsonschema:"silence policy: quick, standard or thoughtful"`

	// PressToTalk records until the stop signal instead of using voice
	// activity detection.
	PressToTalk bool `json:"press_to_talk,omitempty" jsonschema:"record until the stop signal fires, no voice activity detection"`
}

// converseResult is the structured output of the converse tool.
type converseResult struct {
	// Status is ok, busy, no-response or error.
	Status string `json:"status"`

	// Text is the transcribed reply. Only set for status ok.
	Text string `json:"text,omitempty"`

	// Backend names the transcription backend used. Only set for status ok.
	Backend string `json:"backend,omitempty"`

	// Detail is a human-readable explanation for non-ok statuses.
	Detail string `json:"detail,omitempty"`
}

type speakArgs struct {
	Text string `json:"text" jsonschema:"the text to speak aloud"`
}

type speakResult struct {
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

type statusArgs struct{}

type statusResult struct {
	// Microphone is free, held-by-us or held-by-other.
	Microphone string `json:"microphone"`

	SessionID string `json:"session_id,omitempty"`
	PID       int    `json:"pid,omitempty"`
	Since     string `json:"since,omitempty"`
}

// toolServer binds the MCP tools to the orchestrator.
type toolServer struct {
	orch      *orchestrate.Orchestrator
	recording func() config.RecordingConfig
	metrics   *observe.Metrics
	server    *mcpsdk.Server
}

// newToolServer builds the MCP server with the converse, speak and
// voice_status tools registered.
func newToolServer(orch *orchestrate.Orchestrator, recording func() config.RecordingConfig, metrics *observe.Metrics) *toolServer {
	ts := &toolServer{
		orch:      orch,
		recording: recording,
		metrics:   metrics,
	}

	srv := mcpsdk.NewServer(&mcpsdk.Implementation{Name: "voicelayer", Version: version}, nil)
	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name:        "converse",
		Description: "Speak a message aloud, then record and transcribe the user's spoken reply. Blocks until the user finishes speaking or a timeout fires.",
	}, ts.converse)
	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name:        "speak",
		Description: "Speak text aloud without waiting for a reply. Returns immediately; the next converse call waits for playback to finish.",
	}, ts.speak)
	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name:        "voice_status",
		Description: "Report who currently owns the microphone.",
	}, ts.status)

	ts.server = srv
	return ts
}

// Run serves MCP over the given transport until ctx is cancelled.
func (ts *toolServer) Run(ctx context.Context, transport mcpsdk.Transport) error {
	return ts.server.Run(ctx, transport)
}

func (ts *toolServer) converse(ctx context.Context, _ *mcpsdk.CallToolRequest, args converseArgs) (*mcpsdk.CallToolResult, converseResult, error) {
	rec := ts.recording()

	mode := record.SilenceMode(rec.SilenceMode)
	if args.SilenceMode != "" {
		mode = record.SilenceMode(args.SilenceMode)
		if !mode.IsValid() {
			return errorResult(fmt.Sprintf("silence_mode %q is invalid; valid values: quick, standard, thoughtful", args.SilenceMode)),
				converseResult{Status: "error", Detail: "invalid silence_mode"}, nil
		}
	}

	out := ts.orch.Ask(ctx, orchestrate.AskOptions{
		Prompt: args.Message,
		Record: record.Options{
			SilenceMode:      mode,
			PreSpeechTimeout: rec.PreSpeechTimeout.Std(),
			HardTimeout:      rec.HardTimeout.Std(),
			PressToTalk:      args.PressToTalk,
		},
	})
	ts.metrics.RecordToolCall(ctx, "converse", string(out.Kind))

	res := converseResult{Status: string(out.Kind)}
	switch out.Kind {
	case orchestrate.KindOk:
		res.Text = out.Text
		res.Backend = out.Backend
		return textResult(out.Text), res, nil
	case orchestrate.KindErr:
		res.Detail = out.Message()
		slog.Error("converse failed", "code", out.Code, "err", out.Err)
		return errorResult(out.Message()), res, nil
	default:
		// busy and no-response are normal outcomes the assistant should
		// read and react to, not protocol errors. Prefix the text with the
		// status so it cannot be mistaken for a transcript.
		res.Detail = out.Message()
		return textResult(fmt.Sprintf("[%s] %s", out.Kind, out.Message())), res, nil
	}
}

func (ts *toolServer) speak(ctx context.Context, _ *mcpsdk.CallToolRequest, args speakArgs) (*mcpsdk.CallToolResult, speakResult, error) {
	if err := ts.orch.Say(ctx, args.Text); err != nil {
		ts.metrics.RecordToolCall(ctx, "speak", "error")
		return errorResult("speak failed: "+err.Error()), speakResult{Status: "error", Detail: err.Error()}, nil
	}
	ts.metrics.RecordToolCall(ctx, "speak", "ok")
	return textResult("speaking"), speakResult{Status: "ok"}, nil
}

func (ts *toolServer) status(ctx context.Context, _ *mcpsdk.CallToolRequest, _ statusArgs) (*mcpsdk.CallToolResult, statusResult, error) {
	holder, lock, err := ts.orch.Status()
	if err != nil {
		ts.metrics.RecordToolCall(ctx, "voice_status", "error")
		return errorResult("status check failed: "+err.Error()), statusResult{}, nil
	}
	ts.metrics.RecordToolCall(ctx, "voice_status", "ok")

	res := statusResult{Microphone: holderLabel(holder)}
	if holder != sessionlock.Free {
		res.SessionID = lock.SessionID
		res.PID = lock.PID
		res.Since = lock.StartedAt.Format(time.RFC3339)
	}
	return textResult(fmt.Sprintf("microphone: %s", res.Microphone)), res, nil
}

func holderLabel(h sessionlock.Holder) string {
	switch h {
	case sessionlock.HeldByUs:
		return "held-by-us"
	case sessionlock.HeldByOther:
		return "held-by-other"
	default:
		return "free"
	}
}

func textResult(text string) *mcpsdk.CallToolResult {
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: text}},
	}
}

func errorResult(text string) *mcpsdk.CallToolResult {
	return &mcpsdk.CallToolResult{
		IsError: true,
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: text}},
	}
}
