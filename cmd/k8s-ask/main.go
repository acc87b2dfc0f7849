// k8s-ask sends one question to a running k8s-agent and prints the answer.
//
// Usage:
//
//	k8s-ask [--url http://localhost:10000] [--context <id>] "why is my pod pending?"
//
// Pass the printed context id back with --context to continue the
// conversation.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"kubeagent/internal/client"
	"kubeagent/internal/faults"
	"kubeagent/internal/logging"
)

func main() {
	args := logging.InitLogging(os.Args[1:])

	cmd := newRootCmd()
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		slog.Error("request failed", "kind", faults.KindOf(err), "err", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		agentURL  string
		contextID string
		newCtx    bool
	)
	cmd := &cobra.Command{
		Use:           "k8s-ask [question]",
		Short:         "Ask the Kubernetes agent a question",
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if newCtx && contextID == "" {
				contextID = uuid.NewString()
			}
			c := &client.Client{BaseURL: agentURL}
			reply, err := c.Ask(cmd.Context(), strings.Join(args, " "), contextID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, reply.Text)
			fmt.Fprintf(out, "\n[context %s, state %s, %s]\n", reply.ContextID, reply.State, reply.Duration.Round(time.Millisecond))
			return nil
		},
	}
	cmd.Flags().StringVar(&agentURL, "url", "http://localhost:10000", "base URL of the agent")
	cmd.Flags().StringVar(&contextID, "context", "", "context id of an earlier conversation")
	cmd.Flags().BoolVar(&newCtx, "new-context", false, "start a conversation under a fresh client-chosen context id")
	return cmd
}
