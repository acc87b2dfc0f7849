// Package agentutil holds the boilerplate shared by the agent binaries: LLM
// creation from settings, the agent card and the A2A server.
package agentutil

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/a2aproject/a2a-go/a2a"
	"github.com/a2aproject/a2a-go/a2asrv"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	adkmodel "google.golang.org/adk/model"
	"google.golang.org/adk/model/gemini"
	"google.golang.org/genai"

	"kubeagent/internal/config"
	"kubeagent/internal/k8sagent"
	"kubeagent/internal/metrics"
	"kubeagent/internal/model"
)

const (
	invokePath  = "/invoke"
	metricsPath = "/metrics"
)

// NewLLM creates the chat model selected by settings.Model.Vendor: azure
// (the default), openai, anthropic, or google/gemini.
func NewLLM(ctx context.Context, s *config.Settings) (adkmodel.LLM, error) {
	temp := float64(s.Model.Temperature)

	switch strings.ToLower(s.Model.Vendor) {
	case "", "azure":
		v, err := s.Require(config.KeyEndpoint, config.KeyAPIVersion, config.KeyDeploymentName)
		if err != nil {
			return nil, err
		}
		opts := model.AzureOptions{
			Endpoint:       v[0],
			APIVersion:     v[1],
			DeploymentName: v[2],
			APIKey:         s.AzureOpenAI.APIKey,
			Temperature:    temp,
		}
		if opts.APIKey == "" {
			cred, err := azidentity.NewDefaultAzureCredential(nil)
			if err != nil {
				return nil, fmt.Errorf("failed to create Azure credential: %w", err)
			}
			opts.Credential = cred
		}
		slog.Info("using model", "vendor", "azure", "deployment", opts.DeploymentName, "key_auth", opts.APIKey != "")
		return model.NewAzureOpenAIModel(opts), nil

	case "openai":
		v, err := s.Require(config.KeyModelName, config.KeyModelAPIKey)
		if err != nil {
			return nil, err
		}
		slog.Info("using model", "vendor", "openai", "model", v[0])
		return model.NewOpenAIModel(openai.NewClient(option.WithAPIKey(v[1])), v[0], temp), nil

	case "anthropic":
		v, err := s.Require(config.KeyModelName, config.KeyModelAPIKey)
		if err != nil {
			return nil, err
		}
		slog.Info("using model", "vendor", "anthropic", "model", v[0])
		return model.NewAnthropicModel(v[0], v[1], temp), nil

	case "google", "gemini":
		v, err := s.Require(config.KeyModelName, config.KeyModelAPIKey)
		if err != nil {
			return nil, err
		}
		llm, err := gemini.NewModel(ctx, v[0], &genai.ClientConfig{APIKey: v[1]})
		if err != nil {
			return nil, fmt.Errorf("failed to create Gemini model: %w", err)
		}
		slog.Info("using model", "vendor", "gemini", "model", v[0])
		return llm, nil

	default:
		return nil, fmt.Errorf("unknown model vendor: %s (supported: azure, openai, anthropic, google, gemini)", s.Model.Vendor)
	}
}

// Skill is a tool advertised on the agent card.
type Skill struct {
	Name        string
	Description string
}

// CardOptions enriches the generated agent card.
type CardOptions struct {
	Version          string
	DocumentationURL string
	Provider         *a2a.AgentProvider

	// SkillTags and SkillExamples are keyed by skill ID: the agent name for
	// the agent skill, "<agent>-<tool>" for tool skills.
	SkillTags     map[string][]string
	SkillExamples map[string][]string
}

func applyCardOptions(card *a2a.AgentCard, opts CardOptions) {
	if opts.Version != "" {
		card.Version = opts.Version
	}
	if opts.DocumentationURL != "" {
		card.DocumentationURL = opts.DocumentationURL
	}
	if opts.Provider != nil {
		card.Provider = opts.Provider
	}
	for i := range card.Skills {
		skill := &card.Skills[i]
		if tags, ok := opts.SkillTags[skill.ID]; ok {
			skill.Tags = append(skill.Tags, tags...)
		}
		if examples, ok := opts.SkillExamples[skill.ID]; ok {
			skill.Examples = examples
		}
	}
}

// AgentCard describes an agent served at baseURL: one skill for the agent
// itself and one per tool.
func AgentCard(name, description, baseURL string, tools []Skill, opts ...CardOptions) *a2a.AgentCard {
	skills := []a2a.AgentSkill{{
		ID:          name,
		Name:        name,
		Description: description,
		Tags:        []string{"kubernetes"},
	}}
	for _, t := range tools {
		skills = append(skills, a2a.AgentSkill{
			ID:          name + "-" + t.Name,
			Name:        t.Name,
			Description: t.Description,
			Tags:        []string{"tool"},
		})
	}

	card := &a2a.AgentCard{
		Name:               name,
		Description:        description,
		URL:                strings.TrimSuffix(baseURL, "/") + invokePath,
		PreferredTransport: a2a.TransportProtocolJSONRPC,
		Version:            "1.0.0",
		Capabilities:       a2a.AgentCapabilities{Streaming: true},
		DefaultInputModes:  k8sagent.SupportedContentTypes,
		DefaultOutputModes: k8sagent.SupportedContentTypes,
		Skills:             skills,
	}
	if len(opts) > 0 {
		applyCardOptions(card, opts[0])
	}
	return card
}

// Handler routes the agent card, the JSON-RPC endpoint and, when m is
// non-nil, the metrics endpoint.
func Handler(card *a2a.AgentCard, executor a2asrv.AgentExecutor, m *metrics.Metrics) http.Handler {
	mux := http.NewServeMux()
	mux.Handle(a2asrv.WellKnownAgentCardPath, a2asrv.NewStaticAgentCardHandler(card))
	mux.Handle(invokePath, a2asrv.NewJSONRPCHandler(a2asrv.NewHandler(executor)))
	if m != nil {
		mux.Handle(metricsPath, m.Handler())
	}
	return mux
}

// ServeConfig describes one agent server.
type ServeConfig struct {
	ListenAddr  string
	Name        string
	Description string
	Tools       []Skill
	Executor    a2asrv.AgentExecutor
	Metrics     *metrics.Metrics
	Card        CardOptions
}

// Serve binds cfg.ListenAddr and serves the agent until ctx is done.
func Serve(ctx context.Context, cfg ServeConfig) error {
	listener, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to bind to %s: %w", cfg.ListenAddr, err)
	}

	baseURL := &url.URL{Scheme: "http", Host: listener.Addr().String()}
	card := AgentCard(cfg.Name, cfg.Description, baseURL.String(), cfg.Tools, cfg.Card)
	srv := &http.Server{
		Handler:           Handler(card, cfg.Executor, cfg.Metrics),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("server shutdown", "err", err)
		}
	}()

	slog.Info("starting A2A server",
		"agent", cfg.Name,
		"url", baseURL.String(),
		"card", baseURL.String()+a2asrv.WellKnownAgentCardPath,
		"tools", len(cfg.Tools),
	)
	if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
