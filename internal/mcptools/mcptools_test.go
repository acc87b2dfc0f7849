package mcptools

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"kubeagent/internal/faults"
)

type namespaceArgs struct {
	Namespace string `json:"namespace"`
}

func noop(context.Context, *mcp.CallToolRequest, namespaceArgs) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: "ok"}}}, nil, nil
}

// startServer serves the named tools over an in-memory transport and returns
// the client end.
func startServer(t *testing.T, pageSize int, names ...string) mcp.Transport {
	t.Helper()
	ct, _ := serve(t, pageSize, names...)
	return ct
}

// serve is startServer that also returns the server session.
func serve(t *testing.T, pageSize int, names ...string) (mcp.Transport, *mcp.ServerSession) {
	t.Helper()
	server := mcp.NewServer(&mcp.Implementation{Name: "k8s-tools", Version: "0.1.0"}, &mcp.ServerOptions{PageSize: pageSize})
	for _, name := range names {
		mcp.AddTool(server, &mcp.Tool{Name: name, Description: "lists " + name}, noop)
	}
	serverT, clientT := mcp.NewInMemoryTransports()
	ss, err := server.Connect(context.Background(), serverT, nil)
	if err != nil {
		t.Fatalf("server connect: %v", err)
	}
	t.Cleanup(func() { ss.Close() })
	return clientT, ss
}

func TestDiscover_FollowsPagination(t *testing.T) {
	want := []string{"get_deployments", "get_pods", "get_services"}
	ct := startServer(t, 1, want...)

	d, err := discover(context.Background(), ct, nil)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}

	got := d.Names()
	slices.Sort(got)
	if !slices.Equal(got, want) {
		t.Errorf("Names() = %v, want %v", got, want)
	}
	for _, tool := range d.Tools {
		if !strings.HasPrefix(tool.Description, "lists ") {
			t.Errorf("tool %s lost its description: %q", tool.Name, tool.Description)
		}
	}
}

func TestDiscover_EmptyServer(t *testing.T) {
	d, err := discover(context.Background(), startServer(t, 0), nil)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if len(d.Tools) != 0 {
		t.Errorf("got %d tools, want 0", len(d.Tools))
	}
}

func TestDiscover_MissingPath(t *testing.T) {
	_, err := Discover(context.Background(), Launch{})
	if !faults.Is(err, faults.ConfigMissing) {
		t.Fatalf("Discover(no path) error = %v, want ConfigMissing", err)
	}
}

func TestDiscover_StartFailure(t *testing.T) {
	_, err := Discover(context.Background(), Launch{
		Path:    t.TempDir(),
		Command: "kubeagent-no-such-binary",
	})
	if err == nil {
		t.Fatal("Discover with missing command succeeded")
	}
	if !faults.Is(err, faults.DiscoveryFailed) {
		t.Errorf("error kind = %v, want DiscoveryFailed", faults.KindOf(err))
	}
	var fe *faults.Error
	if !errors.As(err, &fe) || fe.Op != "connect to tool server" {
		t.Errorf("error = %v, want connect failure", err)
	}
}

func TestLaunch_Cmd(t *testing.T) {
	tests := []struct {
		name   string
		launch Launch
		want   []string
	}{
		{
			name:   "defaults",
			launch: Launch{Path: "/opt/k8s-mcp"},
			want:   []string{"uv", "--directory", "/opt/k8s-mcp", "run", "server.py"},
		},
		{
			name:   "overrides",
			launch: Launch{Path: "/srv", Command: "uvx", Script: "main.py"},
			want:   []string{"uvx", "--directory", "/srv", "run", "main.py"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := tt.launch.Cmd(context.Background())
			if !slices.Equal(cmd.Args, tt.want) {
				t.Errorf("Args = %q, want %q", cmd.Args, tt.want)
			}
		})
	}
}

func TestDiscovery_Toolset(t *testing.T) {
	var opened int
	newTransport := func() mcp.Transport {
		opened++
		return startServer(t, 0, "get_pods", "delete_pod")
	}
	d, err := discover(context.Background(), startServer(t, 0, "get_pods"), newTransport)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}

	ts, err := d.Toolset()
	if err != nil {
		t.Fatalf("Toolset: %v", err)
	}
	if ts == nil {
		t.Fatal("Toolset() = nil")
	}
	if opened != 1 {
		t.Errorf("transports opened = %d, want 1", opened)
	}
}

func TestDiscover_ClosesSession(t *testing.T) {
	ct, ss := serve(t, 1, "get_pods", "get_services")
	if _, err := discover(context.Background(), ct, nil); err != nil {
		t.Fatalf("discover: %v", err)
	}

	done := make(chan struct{})
	go func() {
		ss.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("server session still open after discover returned")
	}
}
