// Package executor adapts the agent's status stream to the A2A task
// lifecycle.
package executor

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/a2aproject/a2a-go/a2asrv"
	"github.com/a2aproject/a2a-go/a2asrv/eventqueue"

	"kubeagent/internal/k8sagent"
	"kubeagent/internal/logging"
	"kubeagent/internal/metrics"
)

const (
	artifactName        = "current_result"
	artifactDescription = "Result of request to agent."
)

var (
	// ErrNoMessage is returned when a request carries no user message.
	ErrNoMessage = errors.New("no message provided")
	// ErrCancelNotSupported is returned by every Cancel call.
	ErrCancelNotSupported = errors.New("cancel not supported")
)

// Streamer is the agent surface the executor drives.
type Streamer interface {
	Stream(ctx context.Context, query, sessionID string) iter.Seq[k8sagent.Response]
}

type eventWriter interface {
	Write(ctx context.Context, event a2a.Event) error
}

// Executor implements a2asrv.AgentExecutor. It owns no state; the
// conversation lives in the agent's session store keyed by context id.
type Executor struct {
	agent   Streamer
	metrics *metrics.Metrics
}

var _ a2asrv.AgentExecutor = (*Executor)(nil)

// New returns an executor over agent. m may be nil.
func New(agent Streamer, m *metrics.Metrics) *Executor {
	return &Executor{agent: agent, metrics: m}
}

// Execute runs one request and writes its task events to queue.
func (e *Executor) Execute(ctx context.Context, reqCtx *a2asrv.RequestContext, queue eventqueue.Queue) error {
	return e.execute(ctx, reqCtx, queue)
}

// Cancel is not supported.
func (e *Executor) Cancel(ctx context.Context, reqCtx *a2asrv.RequestContext, queue eventqueue.Queue) error {
	slog.Warn("cancel requested but not supported", "task_id", reqCtx.TaskID, "context_id", reqCtx.ContextID)
	return ErrCancelNotSupported
}

func (e *Executor) execute(ctx context.Context, reqCtx *a2asrv.RequestContext, w eventWriter) error {
	if reqCtx.Message == nil {
		slog.Error("no message provided in request", "context_id", reqCtx.ContextID)
		return ErrNoMessage
	}

	query := messageText(reqCtx.Message)
	log := slog.With("task_id", reqCtx.TaskID, "context_id", reqCtx.ContextID)
	log.Info("received request", "input", logging.Truncate(query, 50))

	if reqCtx.StoredTask == nil {
		if err := w.Write(ctx, a2a.NewSubmittedTask(reqCtx, reqCtx.Message)); err != nil {
			return fmt.Errorf("failed to write task: %w", err)
		}
		log.Info("new task created")
	}

	for r := range e.agent.Stream(ctx, query, reqCtx.ContextID) {
		var err error
		switch {
		case r.IsComplete:
			log.Info("task completed")
			log.Debug("completion content", "content", logging.Truncate(r.Content, 100))
			err = e.writeCompleted(ctx, reqCtx, w, r.Content)
		case r.RequireUserInput:
			log.Info("user input required")
			log.Debug("input request content", "content", logging.Truncate(r.Content, 100))
			err = e.writeStatus(ctx, reqCtx, w, a2a.TaskStateInputRequired, r.Content, true)
		default:
			log.Debug("task in progress", "content", logging.Truncate(r.Content, 100))
			err = e.writeStatus(ctx, reqCtx, w, a2a.TaskStateWorking, r.Content, false)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (e *Executor) writeCompleted(ctx context.Context, reqCtx *a2asrv.RequestContext, w eventWriter, content string) error {
	artifact := a2a.NewArtifactEvent(reqCtx, a2a.TextPart{Text: content})
	artifact.Artifact.Name = artifactName
	artifact.Artifact.Description = artifactDescription
	artifact.Append = false
	artifact.LastChunk = true
	if err := w.Write(ctx, artifact); err != nil {
		return fmt.Errorf("failed to write artifact: %w", err)
	}

	status := a2a.NewStatusUpdateEvent(reqCtx, a2a.TaskStateCompleted, nil)
	status.Final = true
	if err := w.Write(ctx, status); err != nil {
		return fmt.Errorf("failed to write status: %w", err)
	}
	e.metrics.RecordTask(string(a2a.TaskStateCompleted))
	return nil
}

func (e *Executor) writeStatus(ctx context.Context, reqCtx *a2asrv.RequestContext, w eventWriter, state a2a.TaskState, content string, final bool) error {
	msg := a2a.NewMessageForTask(a2a.MessageRoleAgent, reqCtx, a2a.TextPart{Text: content})
	status := a2a.NewStatusUpdateEvent(reqCtx, state, msg)
	status.Final = final
	if err := w.Write(ctx, status); err != nil {
		return fmt.Errorf("failed to write status: %w", err)
	}
	if final {
		e.metrics.RecordTask(string(state))
	}
	return nil
}

// messageText joins the text parts of msg.
func messageText(msg *a2a.Message) string {
	var texts []string
	for _, p := range msg.Parts {
		switch tp := p.(type) {
		case a2a.TextPart:
			texts = append(texts, tp.Text)
		case *a2a.TextPart:
			texts = append(texts, tp.Text)
		}
	}
	return strings.Join(texts, "\n")
}
