// Package client talks to an A2A agent: it fetches the agent card, sends a
// text prompt and extracts the text of the reply.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/a2aproject/a2a-go/a2aclient"
	"github.com/a2aproject/a2a-go/a2asrv"

	"kubeagent/internal/faults"
)

// Reply is the agent's answer to one prompt.
type Reply struct {
	Text      string
	ContextID string
	TaskID    a2a.TaskID
	State     a2a.TaskState
	Duration  time.Duration
}

// Client sends prompts to the agent at one base URL.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// Card fetches the agent card from the well-known path. The card's invoke
// URL is rebased onto BaseURL, since a server bound to a wildcard or
// container address advertises a host the client cannot reach.
func (c *Client) Card(ctx context.Context) (*a2a.AgentCard, error) {
	cardURL := strings.TrimSuffix(c.BaseURL, "/") + a2asrv.WellKnownAgentCardPath
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cardURL, nil)
	if err != nil {
		return nil, err
	}

	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, faults.New(faults.TransportFailed, "fetch agent card", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, faults.New(faults.TransportFailed, "fetch agent card", fmt.Errorf("HTTP %d from %s", resp.StatusCode, cardURL))
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, faults.New(faults.TransportFailed, "fetch agent card", err)
	}

	var card a2a.AgentCard
	if err := json.Unmarshal(body, &card); err != nil {
		return nil, fmt.Errorf("failed to decode agent card: %w", err)
	}
	card.URL = rebase(c.BaseURL, card.URL)
	return &card, nil
}

func rebase(baseURL, invokeURL string) string {
	u, err := url.Parse(invokeURL)
	if err != nil || u.Path == "" {
		return invokeURL
	}
	return strings.TrimSuffix(baseURL, "/") + u.Path
}

// Ask sends prompt and waits for the reply. A non-empty contextID continues
// an earlier conversation.
func (c *Client) Ask(ctx context.Context, prompt, contextID string) (*Reply, error) {
	start := time.Now()

	card, err := c.Card(ctx)
	if err != nil {
		return nil, err
	}
	a2aClient, err := a2aclient.NewFromCard(ctx, card)
	if err != nil {
		return nil, fmt.Errorf("failed to create A2A client for %s: %w", c.BaseURL, err)
	}

	msg := a2a.NewMessage(a2a.MessageRoleUser, a2a.TextPart{Text: prompt})
	msg.ContextID = contextID
	result, err := a2aClient.SendMessage(ctx, &a2a.MessageSendParams{Message: msg})
	if err != nil {
		return nil, faults.New(faults.TransportFailed, "send message", err)
	}

	reply := &Reply{Text: ExtractText(result)}
	switch v := result.(type) {
	case *a2a.Task:
		reply.ContextID = v.ContextID
		reply.TaskID = v.ID
		reply.State = v.Status.State
	case *a2a.Message:
		reply.ContextID = v.ContextID
	}
	reply.Duration = time.Since(start)
	return reply, nil
}

// ExtractText returns the reply text of a send result. For a task the
// artifacts win, then the status message, then the latest agent message in
// the history.
func ExtractText(result a2a.SendMessageResult) string {
	switch v := result.(type) {
	case *a2a.Task:
		var texts []string
		for _, art := range v.Artifacts {
			if t := partsText(art.Parts); t != "" {
				texts = append(texts, t)
			}
		}
		if len(texts) > 0 {
			return strings.Join(texts, "\n")
		}
		if v.Status.Message != nil {
			if t := partsText(v.Status.Message.Parts); t != "" {
				return t
			}
		}
		for i := len(v.History) - 1; i >= 0; i-- {
			if v.History[i].Role == a2a.MessageRoleAgent {
				if t := partsText(v.History[i].Parts); t != "" {
					return t
				}
			}
		}
	case *a2a.Message:
		return partsText(v.Parts)
	}
	return ""
}

func partsText(parts a2a.ContentParts) string {
	var texts []string
	for _, p := range parts {
		switch tp := p.(type) {
		case a2a.TextPart:
			texts = append(texts, tp.Text)
		case *a2a.TextPart:
			texts = append(texts, tp.Text)
		}
	}
	return strings.Join(texts, "\n")
}
