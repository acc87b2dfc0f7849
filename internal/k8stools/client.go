// Package k8stools is the in-process, read-only Kubernetes toolset the agent
// falls back to when no external tool server is configured.
package k8stools

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

const requestTimeout = 10 * time.Second

// Client hands out clientsets keyed by kubeconfig context, creating each one
// on first use.
type Client struct {
	mu      sync.Mutex
	clients map[string]kubernetes.Interface
	build   func(kubeContext string) (kubernetes.Interface, error)
}

// NewClient returns a client that loads in-cluster configuration for the
// empty context and the local kubeconfig otherwise.
func NewClient() *Client {
	return &Client{clients: map[string]kubernetes.Interface{}, build: buildClientset}
}

func (c *Client) clientset(kubeContext string) (kubernetes.Interface, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cs, ok := c.clients[kubeContext]; ok {
		return cs, nil
	}
	cs, err := c.build(kubeContext)
	if err != nil {
		return nil, diagnose(err)
	}
	c.clients[kubeContext] = cs
	return cs, nil
}

func buildClientset(kubeContext string) (kubernetes.Interface, error) {
	var (
		config *rest.Config
		err    error
	)
	if kubeContext == "" {
		config, err = rest.InClusterConfig()
		if err != nil {
			slog.Debug("in-cluster config not available, using kubeconfig", "err", err)
			config, err = kubeconfig("")
		}
	} else {
		config, err = kubeconfig(kubeContext)
	}
	if err != nil {
		return nil, err
	}
	config.Timeout = requestTimeout

	cs, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, err
	}
	slog.Info("k8s clientset created", "context", kubeContext)
	return cs, nil
}

func kubeconfig(kubeContext string) (*rest.Config, error) {
	return clientcmd.NewNonInteractiveDeferredLoadingClientConfig(
		clientcmd.NewDefaultClientConfigLoadingRules(),
		&clientcmd.ConfigOverrides{CurrentContext: kubeContext},
	).ClientConfig()
}

// DiagnosedError pairs a client error with advice the model can relay.
type DiagnosedError struct {
	Hint string
	Err  error
}

func (e *DiagnosedError) Error() string {
	return fmt.Sprintf("%s\n\nRaw error: %v", e.Hint, e.Err)
}

func (e *DiagnosedError) Unwrap() error { return e.Err }

const (
	hintContext      = "The Kubernetes context does not exist in the local kubeconfig. Run 'kubectl config get-contexts' to list the available contexts."
	hintRefused      = "Connection refused by the Kubernetes API server. The cluster may be down, or a VPN or tunnel may need to be active."
	hintUnreachable  = "Cannot reach the Kubernetes API server. Check network connectivity and the server address in kubeconfig."
	hintUnauthorized = "Authentication to the cluster failed. The credentials may have expired; re-authenticate and retry."
	hintForbidden    = "Permission denied. The current user or service account lacks the RBAC permissions for this operation."
	hintNamespace    = "The namespace does not exist in this cluster. Run 'kubectl get namespaces' to list namespaces."
	hintNotFound     = "The requested resource was not found. Verify its name and namespace."
	hintTimeout      = "Request to the Kubernetes API server timed out. The cluster may be overloaded or the network slow."
	hintTLS          = "TLS certificate error talking to the cluster. Re-fetch the cluster credentials or update the kubeconfig."
	hintConfig       = "The kubeconfig file is invalid or missing. Check ~/.kube/config or set KUBECONFIG."
)

// diagnose translates client-go failures into actionable messages. Errors
// it does not recognize are returned unchanged.
func diagnose(err error) error {
	if err == nil {
		return nil
	}
	if hint := hintFor(err); hint != "" {
		return &DiagnosedError{Hint: hint, Err: err}
	}
	return err
}

func hintFor(err error) string {
	lower := strings.ToLower(err.Error())
	has := func(subs ...string) bool {
		for _, s := range subs {
			if !strings.Contains(lower, s) {
				return false
			}
		}
		return true
	}

	var statusErr *apierrors.StatusError
	if errors.As(err, &statusErr) {
		switch {
		case apierrors.IsUnauthorized(statusErr):
			return hintUnauthorized
		case apierrors.IsForbidden(statusErr):
			return hintForbidden
		case apierrors.IsNotFound(statusErr) && has("namespace"):
			return hintNamespace
		case apierrors.IsNotFound(statusErr):
			return hintNotFound
		}
	}

	var netErr *net.OpError
	switch {
	case has("context", "does not exist"):
		return hintContext
	case has("connection refused"):
		return hintRefused
	case errors.As(err, &netErr), has("unable to connect to the server"):
		return hintUnreachable
	case os.IsTimeout(err), has("deadline exceeded"), has("i/o timeout"):
		return hintTimeout
	case has("certificate") && (has("expired") || has("invalid") || has("unknown authority")):
		return hintTLS
	case has("no configuration"), has("invalid configuration"):
		return hintConfig
	}
	return ""
}
