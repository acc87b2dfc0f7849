// Package model adapts chat-completion vendors to the ADK model.LLM
// interface so the agent loop can run on Azure OpenAI or Anthropic.
package model

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	adkmodel "google.golang.org/adk/model"
	"google.golang.org/genai"
)

// toolSpec is a vendor-neutral function declaration.
type toolSpec struct {
	Name        string
	Description string
	Parameters  map[string]any
}

type describer interface {
	Description() string
}

type declarationProvider interface {
	Declaration() *genai.FunctionDeclaration
}

// toolSpecs extracts declarations from the request's tools, sorted by name.
func toolSpecs(tools map[string]any) ([]toolSpec, error) {
	specs := make([]toolSpec, 0, len(tools))
	for name, def := range tools {
		var decl *genai.FunctionDeclaration
		switch d := def.(type) {
		case *genai.FunctionDeclaration:
			decl = d
		case genai.FunctionDeclaration:
			decl = &d
		case declarationProvider:
			decl = d.Declaration()
		}

		spec := toolSpec{Name: name}
		if t, ok := def.(describer); ok {
			spec.Description = t.Description()
		}
		if decl != nil {
			if spec.Description == "" {
				spec.Description = decl.Description
			}
			params, err := parameterSchema(decl)
			if err != nil {
				return nil, fmt.Errorf("tool %s: %w", name, err)
			}
			spec.Parameters = params
		} else {
			slog.Warn("tool has no declaration", "tool", name, "type", fmt.Sprintf("%T", def))
		}
		specs = append(specs, spec)
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs, nil
}

// parameterSchema returns the declaration's parameters as a JSON Schema
// object. Tools backed by MCP carry a raw JSON schema; in-process tools carry
// a genai.Schema whose type names are upper case.
func parameterSchema(decl *genai.FunctionDeclaration) (map[string]any, error) {
	var src any
	switch {
	case decl.ParametersJsonSchema != nil:
		src = decl.ParametersJsonSchema
	case decl.Parameters != nil:
		src = decl.Parameters
	default:
		return map[string]any{"type": "object", "properties": map[string]any{}}, nil
	}

	data, err := json.Marshal(src)
	if err != nil {
		return nil, err
	}
	var schema map[string]any
	if err := json.Unmarshal(data, &schema); err != nil {
		return nil, err
	}
	lowerTypes(schema)
	if _, ok := schema["properties"]; !ok {
		schema["properties"] = map[string]any{}
	}
	return schema, nil
}

func lowerTypes(v any) {
	switch n := v.(type) {
	case map[string]any:
		for k, child := range n {
			if s, ok := child.(string); ok && k == "type" {
				n[k] = strings.ToLower(s)
				continue
			}
			lowerTypes(child)
		}
	case []any:
		for _, child := range n {
			lowerTypes(child)
		}
	}
}

// systemPrompts collects the system instruction and any system-role contents.
func systemPrompts(req *adkmodel.LLMRequest) []string {
	var prompts []string
	if req.Config != nil && req.Config.SystemInstruction != nil {
		prompts = append(prompts, partsText(req.Config.SystemInstruction.Parts)...)
	}
	for _, c := range req.Contents {
		if c != nil && c.Role == "system" {
			prompts = append(prompts, partsText(c.Parts)...)
		}
	}
	return prompts
}

func partsText(parts []*genai.Part) []string {
	var out []string
	for _, p := range parts {
		if p != nil && p.Text != "" {
			out = append(out, p.Text)
		}
	}
	return out
}

func isModelRole(role string) bool {
	return role == genai.RoleModel || role == "assistant"
}

// parseArgs decodes a tool-call argument document, tolerating empty input.
func parseArgs(raw string) map[string]any {
	args := map[string]any{}
	if strings.TrimSpace(raw) == "" {
		return args
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		slog.Warn("could not parse tool arguments", "err", err)
	}
	return args
}

func temperature(req *adkmodel.LLMRequest) (float64, bool) {
	if req.Config == nil || req.Config.Temperature == nil {
		return 0, false
	}
	return float64(*req.Config.Temperature), true
}
