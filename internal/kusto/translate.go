// Package kusto turns free-text requests into Application Insights (KQL)
// queries, runs them against the query API and renders the results.
package kusto

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/openai/openai-go"

	"kubeagent/internal/faults"
	"kubeagent/internal/logging"
	"kubeagent/prompts"
)

// Translator asks a chat model for a KQL query.
type Translator struct {
	client     openai.Client
	deployment string
	prompt     string
}

// NewTranslator returns a translator using the given deployment. A non-empty
// schema document is appended to the system prompt.
func NewTranslator(client openai.Client, deployment, schema string) *Translator {
	prompt := prompts.Kusto
	if s := strings.TrimSpace(schema); s != "" {
		prompt += "\nThe available tables and columns are:\n" + s
	}
	return &Translator{client: client, deployment: deployment, prompt: prompt}
}

// Translate returns the query for text.
func (t *Translator) Translate(ctx context.Context, text string) (string, error) {
	resp, err := t.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: t.deployment,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(t.prompt),
			openai.UserMessage(text),
		},
	})
	if err != nil {
		return "", faults.New(faults.ModelCallFailed, "translate query", err)
	}
	if len(resp.Choices) == 0 {
		return "", faults.New(faults.ModelCallFailed, "translate query", errors.New("no choices in response"))
	}

	query := stripFences(resp.Choices[0].Message.Content)
	slog.Debug("query translated", "request", logging.Truncate(text, 50), "query", logging.Truncate(query, 100))
	return query, nil
}

// stripFences removes a surrounding markdown code fence, with or without a
// language tag.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		// Drop the language tag line ("kql", "kusto", ...).
		if tag := strings.TrimSpace(s[:nl]); !strings.ContainsAny(tag, " |") {
			s = s[nl+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
