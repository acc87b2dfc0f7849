// Package main implements the Kubernetes agent server. It answers
// Kubernetes questions over the A2A protocol with a tool-calling agent whose
// tools come from an external MCP tool server, or from the built-in
// read-only toolset when no tool server is configured.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/spf13/cobra"
	"google.golang.org/adk/session"

	"kubeagent/agentutil"
	"kubeagent/internal/config"
	"kubeagent/internal/executor"
	"kubeagent/internal/faults"
	"kubeagent/internal/inventory"
	"kubeagent/internal/k8sagent"
	"kubeagent/internal/k8stools"
	"kubeagent/internal/logging"
	"kubeagent/internal/mcptools"
	"kubeagent/internal/metrics"
	"kubeagent/prompts"
)

type flags struct {
	configPath string
	host       string
	port       int
	toolServer string
}

func main() {
	args := logging.InitLogging(os.Args[1:])

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := newRootCmd()
	cmd.SetArgs(args)
	if err := cmd.ExecuteContext(ctx); err != nil {
		slog.Error("k8s agent stopped", "kind", faults.KindOf(err), "err", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:           "k8s-agent",
		Short:         "Serve the Kubernetes agent over A2A",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := config.Load(f.configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("host") {
				settings.Server.Host = f.host
			}
			if cmd.Flags().Changed("port") {
				settings.Server.Port = f.port
			}
			if cmd.Flags().Changed("tool-server") {
				settings.ToolServer.Path = f.toolServer
			}
			return run(cmd.Context(), settings)
		},
	}
	cmd.Flags().StringVar(&f.configPath, "config", "config.yaml", "path to the YAML configuration file")
	cmd.Flags().StringVar(&f.host, "host", "localhost", "listen host")
	cmd.Flags().IntVar(&f.port, "port", 10000, "listen port")
	cmd.Flags().StringVar(&f.toolServer, "tool-server", "", "directory of the MCP tool server (built-in tools when empty)")
	return cmd
}

func run(ctx context.Context, settings *config.Settings) error {
	llm, err := agentutil.NewLLM(ctx, settings)
	if err != nil {
		return err
	}

	var inv *inventory.Inventory
	instruction := prompts.K8s
	if settings.Inventory != "" {
		if inv, err = inventory.Load(settings.Inventory); err != nil {
			return err
		}
		instruction += "\n\n## Known Clusters\n\n" + inv.Summary()
		slog.Info("cluster inventory loaded", "clusters", len(inv.Clusters))
	}

	m := metrics.New()
	agent := k8sagent.New(llm, k8sagent.Options{
		Instruction: instruction,
		Temperature: settings.Model.Temperature,
		Sessions:    session.InMemoryService(),
		Metrics:     m,
	})

	var skills []agentutil.Skill
	if settings.ToolServer.Path != "" {
		d, err := agent.InitializeFromServer(ctx, mcptools.Launch{
			Path:    settings.ToolServer.Path,
			Command: settings.ToolServer.Command,
			Script:  settings.ToolServer.Script,
		})
		if err != nil {
			return err
		}
		for _, t := range d.Tools {
			skills = append(skills, agentutil.Skill{Name: t.Name, Description: t.Description})
		}
		slog.Info("using tool server", "path", settings.ToolServer.Path, "tools", d.Names())
	} else {
		tools, err := k8stools.New(k8stools.NewClient(), inv).Tools()
		if err != nil {
			return err
		}
		if err := agent.Initialize(k8sagent.Tools{Tools: tools}); err != nil {
			return err
		}
		for _, t := range tools {
			skills = append(skills, agentutil.Skill{Name: t.Name(), Description: t.Description()})
		}
		slog.Info("using built-in kubernetes tools", "tools", len(tools))
	}

	err = agentutil.Serve(ctx, agentutil.ServeConfig{
		ListenAddr:  settings.ListenAddr(),
		Name:        k8sagent.AgentName,
		Description: k8sagent.AgentDescription,
		Tools:       skills,
		Executor:    executor.New(agent, m),
		Metrics:     m,
		Card: agentutil.CardOptions{
			Provider: &a2a.AgentProvider{Org: "kubeagent"},
			SkillTags: map[string][]string{
				k8sagent.AgentName:                    {"infrastructure", "diagnostics"},
				k8sagent.AgentName + "-get_pods":      {"pods", "workloads"},
				k8sagent.AgentName + "-get_services":  {"services", "networking"},
				k8sagent.AgentName + "-get_endpoints": {"endpoints", "networking"},
				k8sagent.AgentName + "-get_events":    {"events", "cluster"},
				k8sagent.AgentName + "-get_nodes":     {"nodes", "cluster"},
			},
			SkillExamples: map[string][]string{
				k8sagent.AgentName: {"Why is the checkout deployment not ready?"},
			},
		},
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
