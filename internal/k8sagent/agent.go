// Package k8sagent wraps an ADK tool-calling agent and exposes its progress
// as a stream of status records.
package k8sagent

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"

	"google.golang.org/adk/agent"
	"google.golang.org/adk/agent/llmagent"
	adkmodel "google.golang.org/adk/model"
	"google.golang.org/adk/runner"
	"google.golang.org/adk/session"
	"google.golang.org/adk/tool"
	"google.golang.org/genai"

	"kubeagent/internal/logging"
	"kubeagent/internal/mcptools"
	"kubeagent/internal/metrics"
	"kubeagent/prompts"
)

const (
	// AgentName is the agent's name in the session store and on the agent card.
	AgentName = "k8s_agent"
	// AgentDescription is published on the agent card.
	AgentDescription = "Kubernetes management agent that inspects and troubleshoots clusters with the tools of its tool server."

	appName = "kubeagent"
	userID  = "a2a_user"

	fallbackToolName = "Kubernetes tool"
)

// User-facing status texts.
const (
	MsgProcessing    = "Processing your Kubernetes request..."
	MsgNoResponse    = "No response received. Please try again."
	MsgFinalizeRetry = "We encountered an issue processing the response. Please try your request again."
	msgErrorPrefix   = "Error processing your request: "
)

// SupportedContentTypes are the input and output modes of the agent.
var SupportedContentTypes = []string{"text", "text/plain"}

// ErrNotInitialized is reported when Stream runs before Initialize.
var ErrNotInitialized = errors.New("agent is not initialized")

// Response is one status record. At most one of IsComplete and
// RequireUserInput is set; a record with neither is a progress update.
type Response struct {
	IsComplete       bool
	RequireUserInput bool
	Content          string
}

// Tools is the tool surface of the agent.
type Tools struct {
	Tools    []tool.Tool
	Toolsets []tool.Toolset
}

// Options configures an Agent.
type Options struct {
	// Instruction defaults to prompts.K8s.
	Instruction string
	// Temperature is the sampling temperature; zero by default.
	Temperature float32
	// Sessions is the checkpoint store. Required.
	Sessions session.Service
	Metrics  *metrics.Metrics
}

// Agent answers Kubernetes questions. Initialize must succeed before Stream.
type Agent struct {
	llm      adkmodel.LLM
	opts     Options
	sessions session.Service
	runner   *runner.Runner
}

// New binds the model and the session store. No tools are attached yet.
func New(llm adkmodel.LLM, opts Options) *Agent {
	if opts.Instruction == "" {
		opts.Instruction = prompts.K8s
	}
	return &Agent{llm: llm, opts: opts, sessions: opts.Sessions}
}

// Initialize builds the agent loop over the given tools.
func (a *Agent) Initialize(tools Tools) error {
	if a.sessions == nil {
		return errors.New("session store is required")
	}

	llmAgent, err := llmagent.New(llmagent.Config{
		Name:        AgentName,
		Description: AgentDescription,
		Instruction: a.opts.Instruction,
		Model:       a.llm,
		Tools:       tools.Tools,
		Toolsets:    tools.Toolsets,
		GenerateContentConfig: &genai.GenerateContentConfig{
			Temperature: genai.Ptr(a.opts.Temperature),
		},
	})
	if err != nil {
		slog.Error("failed to create agent", "err", err)
		return fmt.Errorf("failed to create agent: %w", err)
	}

	r, err := runner.New(runner.Config{
		AppName:        appName,
		Agent:          llmAgent,
		SessionService: a.sessions,
	})
	if err != nil {
		slog.Error("failed to create runner", "err", err)
		return fmt.Errorf("failed to create runner: %w", err)
	}
	a.runner = r

	slog.Info("agent initialized", "tools", len(tools.Tools), "toolsets", len(tools.Toolsets))
	return nil
}

// InitializeFromServer discovers the tool server's tools and initializes the
// agent with them.
func (a *Agent) InitializeFromServer(ctx context.Context, launch mcptools.Launch) (*mcptools.Discovery, error) {
	d, err := mcptools.Discover(ctx, launch)
	if err != nil {
		slog.Error("failed to discover tools", "path", launch.Path, "err", err)
		return nil, err
	}
	ts, err := d.Toolset()
	if err != nil {
		return nil, err
	}
	if err := a.Initialize(Tools{Toolsets: []tool.Toolset{ts}}); err != nil {
		return nil, err
	}
	return d, nil
}

// Stream runs query in the conversation identified by sessionID. The
// sequence ends with exactly one record that is complete or requires user
// input; every record before it is a progress update.
func (a *Agent) Stream(ctx context.Context, query, sessionID string) iter.Seq[Response] {
	return func(yield func(Response) bool) {
		if a.runner == nil {
			yield(errorResponse(ErrNotInitialized))
			return
		}
		if err := a.ensureSession(ctx, sessionID); err != nil {
			slog.Error("failed to open session", "session_id", sessionID, "err", err)
			yield(errorResponse(err))
			return
		}

		msg := genai.NewContentFromText(query, genai.RoleUser)
		for ev, err := range a.runner.Run(ctx, userID, sessionID, msg, agent.RunConfig{}) {
			if err != nil {
				slog.Error("error in stream processing", "session_id", sessionID, "err", err)
				yield(errorResponse(err))
				return
			}
			for _, r := range a.progress(ev) {
				if !yield(r) {
					return
				}
			}
		}

		yield(a.finalResponse(ctx, sessionID))
	}
}

// progress maps an agent event to zero or more progress records.
func (a *Agent) progress(ev *session.Event) []Response {
	if ev == nil || ev.Content == nil || ev.Partial {
		return nil
	}
	var calls bool
	var out []Response
	for _, p := range ev.Content.Parts {
		switch {
		case p == nil:
		case p.FunctionCall != nil:
			calls = true
		case p.FunctionResponse != nil:
			name := p.FunctionResponse.Name
			if name == "" {
				name = fallbackToolName
			}
			a.opts.Metrics.RecordToolEvent(name)
			out = append(out, Response{Content: "Executing " + name + "..."})
		}
	}
	if calls {
		return []Response{{Content: MsgProcessing}}
	}
	return out
}

func (a *Agent) ensureSession(ctx context.Context, sessionID string) error {
	_, err := a.sessions.Get(ctx, &session.GetRequest{AppName: appName, UserID: userID, SessionID: sessionID})
	if err == nil {
		return nil
	}
	_, err = a.sessions.Create(ctx, &session.CreateRequest{AppName: appName, UserID: userID, SessionID: sessionID})
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	slog.Debug("session created", "session_id", sessionID)
	return nil
}

// finalResponse reads the conversation state after the loop and reports the
// model's last answer.
func (a *Agent) finalResponse(ctx context.Context, sessionID string) Response {
	resp, err := a.sessions.Get(ctx, &session.GetRequest{AppName: appName, UserID: userID, SessionID: sessionID})
	if err != nil {
		slog.Error("error processing agent response", "session_id", sessionID, "err", err)
		return Response{RequireUserInput: true, Content: MsgFinalizeRetry}
	}

	events := resp.Session.Events()
	if events.Len() == 0 {
		return Response{RequireUserInput: true, Content: MsgNoResponse}
	}
	text, ok := modelText(events.At(events.Len() - 1))
	if !ok {
		return Response{RequireUserInput: true, Content: MsgNoResponse}
	}
	slog.Debug("final response", "session_id", sessionID, "content", logging.Truncate(text, 100))
	return Response{IsComplete: true, Content: text}
}

// modelText returns the text of an event authored by the agent that carries
// only text parts.
func modelText(ev *session.Event) (string, bool) {
	if ev == nil || ev.Content == nil || ev.Author == "user" {
		return "", false
	}
	var b strings.Builder
	for _, p := range ev.Content.Parts {
		if p == nil {
			continue
		}
		if p.FunctionCall != nil || p.FunctionResponse != nil {
			return "", false
		}
		b.WriteString(p.Text)
	}
	if b.Len() == 0 {
		return "", false
	}
	return b.String(), true
}

func errorResponse(err error) Response {
	return Response{RequireUserInput: true, Content: msgErrorPrefix + err.Error()}
}
