// kqlquery translates free-text requests into Application Insights (KQL)
// queries with an Azure OpenAI deployment and prints their results.
//
// Usage:
//
//	kqlquery [--config config.yaml] [--schema schema.txt] [--metrics-addr :9090] [--log-level debug]
//
// The user logs in through the browser on start. Type "exit" or send EOF to
// quit.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/openai/openai-go"
	"github.com/spf13/cobra"

	"kubeagent/internal/config"
	"kubeagent/internal/faults"
	"kubeagent/internal/kusto"
	"kubeagent/internal/logging"
	"kubeagent/internal/metrics"
	"kubeagent/internal/model"
)

func main() {
	args := logging.InitLogging(os.Args[1:])

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := newRootCmd()
	cmd.SetArgs(args)
	if err := cmd.ExecuteContext(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("kqlquery failed", "kind", faults.KindOf(err), "err", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath  string
		schemaPath  string
		metricsAddr string
	)
	cmd := &cobra.Command{
		Use:           "kqlquery",
		Short:         "Ask Application Insights questions in plain language",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), configPath, schemaPath, metricsAddr)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "config.yaml", "path to the YAML configuration file")
	cmd.Flags().StringVar(&schemaPath, "schema", "", "table schema document appended to the prompt (overrides appinsight.schema_file)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	return cmd
}

func run(ctx context.Context, configPath, schemaPath, metricsAddr string) error {
	settings, err := config.Load(configPath)
	if err != nil {
		return err
	}
	values, err := settings.Require(config.KeyAPIKey, config.KeyAPIVersion, config.KeyEndpoint, config.KeyDeploymentName, config.KeyAppID)
	if err != nil {
		return err
	}
	apiKey, apiVersion, endpoint, deployment, appID := values[0], values[1], values[2], values[3], values[4]

	if schemaPath == "" {
		schemaPath = settings.AppInsight.SchemaFile
	}
	var schema string
	if schemaPath != "" {
		data, err := os.ReadFile(schemaPath)
		if err != nil {
			return fmt.Errorf("failed to read schema file: %w", err)
		}
		schema = string(data)
	}

	m := metrics.New()
	if metricsAddr != "" {
		go func() {
			slog.Info("serving metrics", "addr", metricsAddr)
			if err := http.ListenAndServe(metricsAddr, m.Handler()); err != nil {
				slog.Error("metrics server stopped", "err", err)
			}
		}()
	}

	cred, err := azidentity.NewInteractiveBrowserCredential(nil)
	if err != nil {
		return fmt.Errorf("failed to create browser credential: %w", err)
	}
	// Log in up front so the browser prompt comes before the first question.
	if _, err := cred.GetToken(ctx, policy.TokenRequestOptions{Scopes: []string{kusto.Scope}}); err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	slog.Info("logged in", "app_id", appID)

	client := openai.NewClient(model.AzureRequestOptions(model.AzureOptions{
		Endpoint:   endpoint,
		APIVersion: apiVersion,
		APIKey:     apiKey,
	})...)
	translator := kusto.NewTranslator(client, deployment, schema)
	querier := &kusto.Client{
		Endpoint:   settings.AppInsight.Endpoint,
		AppID:      appID,
		Credential: cred,
		Metrics:    m,
	}

	loop := &kusto.Loop{
		In:        os.Stdin,
		Out:       os.Stdout,
		Translate: translator.Translate,
		Query:     querier.Query,
	}
	return loop.Run(ctx)
}
