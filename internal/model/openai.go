package model

import (
	"context"
	"encoding/json"
	"iter"
	"log/slog"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/azure"
	"github.com/openai/openai-go/option"
	adkmodel "google.golang.org/adk/model"
	"google.golang.org/genai"

	"kubeagent/internal/faults"
)

// OpenAIModel implements adkmodel.LLM over the chat-completions API. Against
// Azure the model name is the deployment name.
type OpenAIModel struct {
	client      openai.Client
	modelName   string
	temperature float64
}

// AzureOptions configures an Azure OpenAI deployment. Credential is used
// when APIKey is empty.
type AzureOptions struct {
	Endpoint       string
	APIVersion     string
	APIKey         string
	DeploymentName string
	Credential     azcore.TokenCredential
	Temperature    float64
}

// AzureRequestOptions returns the client options for an Azure OpenAI
// endpoint, authenticated by key or by token credential.
func AzureRequestOptions(opts AzureOptions) []option.RequestOption {
	reqOpts := []option.RequestOption{azure.WithEndpoint(opts.Endpoint, opts.APIVersion)}
	if opts.APIKey != "" {
		reqOpts = append(reqOpts, azure.WithAPIKey(opts.APIKey))
	} else if opts.Credential != nil {
		reqOpts = append(reqOpts, azure.WithTokenCredential(opts.Credential))
	}
	return reqOpts
}

// NewAzureOpenAIModel creates a model bound to an Azure OpenAI deployment.
func NewAzureOpenAIModel(opts AzureOptions) *OpenAIModel {
	client := openai.NewClient(AzureRequestOptions(opts)...)
	return NewOpenAIModel(client, opts.DeploymentName, opts.Temperature)
}

// NewOpenAIModel wraps an existing client.
func NewOpenAIModel(client openai.Client, modelName string, temperature float64) *OpenAIModel {
	return &OpenAIModel{client: client, modelName: modelName, temperature: temperature}
}

// Name returns the model or deployment name.
func (m *OpenAIModel) Name() string {
	return m.modelName
}

// GenerateContent implements adkmodel.LLM. Responses are never streamed.
func (m *OpenAIModel) GenerateContent(ctx context.Context, req *adkmodel.LLMRequest, stream bool) iter.Seq2[*adkmodel.LLMResponse, error] {
	return func(yield func(*adkmodel.LLMResponse, error) bool) {
		params, err := m.convertRequest(req)
		if err != nil {
			yield(nil, faults.New(faults.ModelCallFailed, "convert request", err))
			return
		}

		slog.Debug("chat completion request", "model", m.modelName, "messages", len(params.Messages), "tools", len(params.Tools))
		resp, err := m.client.Chat.Completions.New(ctx, params)
		if err != nil {
			yield(nil, faults.New(faults.ModelCallFailed, "chat completion", err))
			return
		}
		yield(convertOpenAIResponse(resp), nil)
	}
}

func (m *OpenAIModel) convertRequest(req *adkmodel.LLMRequest) (openai.ChatCompletionNewParams, error) {
	var messages []openai.ChatCompletionMessageParamUnion
	if prompts := systemPrompts(req); len(prompts) > 0 {
		messages = append(messages, openai.SystemMessage(strings.Join(prompts, "\n\n")))
	}
	for _, content := range req.Contents {
		if content == nil || content.Role == "system" {
			continue
		}
		converted, err := openAIMessages(content)
		if err != nil {
			return openai.ChatCompletionNewParams{}, err
		}
		messages = append(messages, converted...)
	}

	params := openai.ChatCompletionNewParams{
		Model:       m.modelName,
		Messages:    messages,
		Temperature: openai.Float(m.temperature),
	}
	if t, ok := temperature(req); ok {
		params.Temperature = openai.Float(t)
	}

	if len(req.Tools) > 0 {
		specs, err := toolSpecs(req.Tools)
		if err != nil {
			return openai.ChatCompletionNewParams{}, err
		}
		for _, s := range specs {
			params.Tools = append(params.Tools, openai.ChatCompletionToolParam{
				Function: openai.FunctionDefinitionParam{
					Name:        s.Name,
					Description: openai.String(s.Description),
					Parameters:  openai.FunctionParameters(s.Parameters),
				},
			})
		}
	}
	return params, nil
}

// openAIMessages converts one conversation turn. A model turn becomes a
// single assistant message; a user turn becomes one tool message per
// function response plus a user message for any text.
func openAIMessages(content *genai.Content) ([]openai.ChatCompletionMessageParamUnion, error) {
	if isModelRole(content.Role) {
		var assistant openai.ChatCompletionAssistantMessageParam
		if text := strings.Join(partsText(content.Parts), "\n"); text != "" {
			assistant.Content.OfString = openai.String(text)
		}
		for _, p := range content.Parts {
			if p == nil || p.FunctionCall == nil {
				continue
			}
			args, err := json.Marshal(p.FunctionCall.Args)
			if err != nil {
				return nil, err
			}
			assistant.ToolCalls = append(assistant.ToolCalls, openai.ChatCompletionMessageToolCallParam{
				ID: p.FunctionCall.ID,
				Function: openai.ChatCompletionMessageToolCallFunctionParam{
					Name:      p.FunctionCall.Name,
					Arguments: string(args),
				},
			})
		}
		return []openai.ChatCompletionMessageParamUnion{{OfAssistant: &assistant}}, nil
	}

	var out []openai.ChatCompletionMessageParamUnion
	for _, p := range content.Parts {
		if p == nil || p.FunctionResponse == nil {
			continue
		}
		result, err := json.Marshal(p.FunctionResponse.Response)
		if err != nil {
			return nil, err
		}
		out = append(out, openai.ToolMessage(string(result), p.FunctionResponse.ID))
	}
	if text := strings.Join(partsText(content.Parts), "\n"); text != "" {
		out = append(out, openai.UserMessage(text))
	}
	return out, nil
}

func convertOpenAIResponse(resp *openai.ChatCompletion) *adkmodel.LLMResponse {
	llmResp := &adkmodel.LLMResponse{
		Content:      &genai.Content{Role: genai.RoleModel},
		TurnComplete: true,
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{
			PromptTokenCount:     int32(resp.Usage.PromptTokens),
			CandidatesTokenCount: int32(resp.Usage.CompletionTokens),
			TotalTokenCount:      int32(resp.Usage.TotalTokens),
		},
	}
	if len(resp.Choices) == 0 {
		return llmResp
	}

	choice := resp.Choices[0]
	if choice.Message.Content != "" {
		llmResp.Content.Parts = append(llmResp.Content.Parts, &genai.Part{Text: choice.Message.Content})
	}
	for _, call := range choice.Message.ToolCalls {
		llmResp.Content.Parts = append(llmResp.Content.Parts, &genai.Part{
			FunctionCall: &genai.FunctionCall{
				ID:   call.ID,
				Name: call.Function.Name,
				Args: parseArgs(call.Function.Arguments),
			},
		})
	}

	switch choice.FinishReason {
	case "tool_calls":
		llmResp.FinishReason = genai.FinishReasonStop
		llmResp.TurnComplete = false
	case "length":
		llmResp.FinishReason = genai.FinishReasonMaxTokens
	case "content_filter":
		llmResp.FinishReason = genai.FinishReasonSafety
	default:
		llmResp.FinishReason = genai.FinishReasonStop
	}
	return llmResp
}
