package model

import (
	"testing"

	adkmodel "google.golang.org/adk/model"
	"google.golang.org/genai"
)

func TestToolSpecs(t *testing.T) {
	tools := map[string]any{
		"get_services": fakeTool{name: "get_services", desc: "List services"},
		"get_pods": &genai.FunctionDeclaration{
			Name:        "get_pods",
			Description: "List pods",
			ParametersJsonSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{"namespace": map[string]any{"type": "string"}},
			},
		},
	}

	specs, err := toolSpecs(tools)
	if err != nil {
		t.Fatalf("toolSpecs: %v", err)
	}
	if len(specs) != 2 || specs[0].Name != "get_pods" || specs[1].Name != "get_services" {
		t.Fatalf("specs = %+v, want sorted get_pods, get_services", specs)
	}
	if specs[0].Description != "List pods" {
		t.Errorf("description = %q", specs[0].Description)
	}
	props := specs[0].Parameters["properties"].(map[string]any)
	if _, ok := props["namespace"]; !ok {
		t.Errorf("raw JSON schema properties lost: %v", specs[0].Parameters)
	}
	// A declaration without parameters still yields an object schema.
	if specs[1].Parameters["type"] != "object" {
		t.Errorf("empty parameters = %v", specs[1].Parameters)
	}
}

func TestLowerTypes(t *testing.T) {
	schema := map[string]any{
		"type": "OBJECT",
		"properties": map[string]any{
			"labels": map[string]any{"type": "ARRAY", "items": map[string]any{"type": "STRING"}},
			"type":   map[string]any{"type": "STRING"},
		},
	}
	lowerTypes(schema)

	props := schema["properties"].(map[string]any)
	labels := props["labels"].(map[string]any)
	tests := []struct {
		name string
		got  any
		want string
	}{
		{"root", schema["type"], "object"},
		{"array", labels["type"], "array"},
		{"items", labels["items"].(map[string]any)["type"], "string"},
		{"property named type", props["type"].(map[string]any)["type"], "string"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s: type = %v, want %s", tt.name, tt.got, tt.want)
		}
	}
}

func TestSystemPrompts(t *testing.T) {
	req := &adkmodel.LLMRequest{
		Config: &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText("first", genai.RoleUser),
		},
		Contents: []*genai.Content{
			{Role: "system", Parts: []*genai.Part{{Text: "second"}}},
			genai.NewContentFromText("not a prompt", genai.RoleUser),
		},
	}
	got := systemPrompts(req)
	if len(got) != 2 || got[0] != "first" || got[1] != "second" {
		t.Errorf("systemPrompts = %q", got)
	}
}

func TestParseArgs(t *testing.T) {
	if got := parseArgs(""); len(got) != 0 {
		t.Errorf("parseArgs(empty) = %v", got)
	}
	if got := parseArgs("{not json"); len(got) != 0 {
		t.Errorf("parseArgs(invalid) = %v", got)
	}
	if got := parseArgs(`{"n":1}`); got["n"] != float64(1) {
		t.Errorf("parseArgs = %v", got)
	}
}
