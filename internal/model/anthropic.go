package model

import (
	"context"
	"encoding/json"
	"iter"
	"log/slog"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	adkmodel "google.golang.org/adk/model"
	"google.golang.org/genai"

	"kubeagent/internal/faults"
)

const anthropicMaxTokens = 4096

// AnthropicModel implements adkmodel.LLM for Anthropic Claude.
type AnthropicModel struct {
	client      anthropic.Client
	modelName   string
	temperature float64
}

// NewAnthropicModel creates a model client. Extra options (base URL, HTTP
// client) are passed through to the SDK.
func NewAnthropicModel(modelName, apiKey string, temperature float64, opts ...option.RequestOption) *AnthropicModel {
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &AnthropicModel{
		client:      anthropic.NewClient(opts...),
		modelName:   modelName,
		temperature: temperature,
	}
}

// Name returns the model name.
func (m *AnthropicModel) Name() string {
	return m.modelName
}

// GenerateContent implements adkmodel.LLM. Responses are never streamed.
func (m *AnthropicModel) GenerateContent(ctx context.Context, req *adkmodel.LLMRequest, stream bool) iter.Seq2[*adkmodel.LLMResponse, error] {
	return func(yield func(*adkmodel.LLMResponse, error) bool) {
		params, err := m.convertRequest(req)
		if err != nil {
			yield(nil, faults.New(faults.ModelCallFailed, "convert request", err))
			return
		}

		slog.Debug("anthropic request", "model", m.modelName, "messages", len(params.Messages), "tools", len(params.Tools))
		resp, err := m.client.Messages.New(ctx, params)
		if err != nil {
			yield(nil, faults.New(faults.ModelCallFailed, "anthropic messages", err))
			return
		}
		yield(convertAnthropicResponse(resp), nil)
	}
}

func (m *AnthropicModel) convertRequest(req *adkmodel.LLMRequest) (anthropic.MessageNewParams, error) {
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(m.modelName),
		MaxTokens:   anthropicMaxTokens,
		Temperature: anthropic.Float(m.temperature),
	}
	for _, p := range systemPrompts(req) {
		params.System = append(params.System, anthropic.TextBlockParam{Text: p})
	}

	for _, content := range req.Contents {
		if content == nil || content.Role == "system" {
			continue
		}
		msg, err := anthropicMessage(content)
		if err != nil {
			return anthropic.MessageNewParams{}, err
		}
		params.Messages = append(params.Messages, msg)
	}

	if t, ok := temperature(req); ok {
		params.Temperature = anthropic.Float(t)
	}
	if req.Config != nil && req.Config.MaxOutputTokens != 0 {
		params.MaxTokens = int64(req.Config.MaxOutputTokens)
	}

	specs, err := toolSpecs(req.Tools)
	if err != nil {
		return anthropic.MessageNewParams{}, err
	}
	for _, s := range specs {
		schema := anthropic.ToolInputSchemaParam{Properties: s.Parameters["properties"]}
		if required, ok := s.Parameters["required"].([]any); ok {
			for _, r := range required {
				if name, ok := r.(string); ok {
					schema.Required = append(schema.Required, name)
				}
			}
		}
		params.Tools = append(params.Tools, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        s.Name,
				Description: anthropic.String(s.Description),
				InputSchema: schema,
			},
		})
	}
	return params, nil
}

func anthropicMessage(content *genai.Content) (anthropic.MessageParam, error) {
	var blocks []anthropic.ContentBlockParamUnion
	for _, part := range content.Parts {
		switch {
		case part == nil:
		case part.Text != "":
			blocks = append(blocks, anthropic.NewTextBlock(part.Text))
		case part.FunctionCall != nil:
			blocks = append(blocks, anthropic.NewToolUseBlock(part.FunctionCall.ID, part.FunctionCall.Args, part.FunctionCall.Name))
		case part.FunctionResponse != nil:
			result, err := json.Marshal(part.FunctionResponse.Response)
			if err != nil {
				return anthropic.MessageParam{}, err
			}
			blocks = append(blocks, anthropic.NewToolResultBlock(part.FunctionResponse.ID, string(result), false))
		}
	}
	if isModelRole(content.Role) {
		return anthropic.NewAssistantMessage(blocks...), nil
	}
	return anthropic.NewUserMessage(blocks...), nil
}

func convertAnthropicResponse(resp *anthropic.Message) *adkmodel.LLMResponse {
	var parts []*genai.Part
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			parts = append(parts, &genai.Part{Text: block.Text})
		case "tool_use":
			parts = append(parts, &genai.Part{
				FunctionCall: &genai.FunctionCall{
					ID:   block.ID,
					Name: block.Name,
					Args: parseArgs(string(block.Input)),
				},
			})
		}
	}

	llmResp := &adkmodel.LLMResponse{
		Content:      &genai.Content{Role: genai.RoleModel, Parts: parts},
		FinishReason: genai.FinishReasonStop,
		TurnComplete: true,
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{
			PromptTokenCount:     int32(resp.Usage.InputTokens),
			CandidatesTokenCount: int32(resp.Usage.OutputTokens),
			TotalTokenCount:      int32(resp.Usage.InputTokens + resp.Usage.OutputTokens),
		},
	}
	switch resp.StopReason {
	case "tool_use":
		// The tool still has to run.
		llmResp.TurnComplete = false
	case "max_tokens":
		llmResp.FinishReason = genai.FinishReasonMaxTokens
	}
	return llmResp
}
