// Package mcptools discovers the tools published by an external MCP tool
// server launched as a subprocess over stdio.
package mcptools

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"google.golang.org/adk/tool"
	"google.golang.org/adk/tool/mcptoolset"

	"kubeagent/internal/faults"
)

const (
	defaultCommand = "uv"
	defaultScript  = "server.py"

	clientName    = "kubeagent"
	clientVersion = "1.0.0"
)

// Launch describes how to start the tool server: Command --directory Path run Script.
type Launch struct {
	Path    string
	Command string
	Script  string
}

// Cmd builds the subprocess command. Each call returns a fresh *exec.Cmd.
func (l Launch) Cmd(ctx context.Context) *exec.Cmd {
	command, script := l.Command, l.Script
	if command == "" {
		command = defaultCommand
	}
	if script == "" {
		script = defaultScript
	}
	return exec.CommandContext(ctx, command, "--directory", l.Path, "run", script)
}

// Discovery is the result of listing a tool server's tools. The discovery
// session is already closed; Toolset opens its own connection.
type Discovery struct {
	Tools []*mcp.Tool

	transport func() mcp.Transport
}

// Names returns the discovered tool names in server order.
func (d *Discovery) Names() []string {
	names := make([]string, 0, len(d.Tools))
	for _, t := range d.Tools {
		names = append(names, t.Name)
	}
	return names
}

// Toolset returns an ADK toolset over a new connection to the tool server,
// restricted to the discovered tools. The connection is opened on first use.
func (d *Discovery) Toolset() (tool.Toolset, error) {
	ts, err := mcptoolset.New(mcptoolset.Config{
		Transport:  d.transport(),
		ToolFilter: tool.StringPredicate(d.Names()),
	})
	if err != nil {
		return nil, faults.New(faults.DiscoveryFailed, "create toolset", err)
	}
	return ts, nil
}

// Discover starts the tool server described by l and lists its tools.
func Discover(ctx context.Context, l Launch) (*Discovery, error) {
	if l.Path == "" {
		return nil, faults.Missing("tool_server.path")
	}
	slog.Info("discovering tools", "command", l.Cmd(ctx).String())

	// Toolsets outlive the discovery context, so their processes are not
	// bound to it.
	newTransport := func() mcp.Transport {
		return &mcp.CommandTransport{Command: l.Cmd(context.Background())}
	}
	return discover(ctx, &mcp.CommandTransport{Command: l.Cmd(ctx)}, newTransport)
}

func discover(ctx context.Context, t mcp.Transport, newTransport func() mcp.Transport) (*Discovery, error) {
	client := mcp.NewClient(&mcp.Implementation{Name: clientName, Version: clientVersion}, nil)
	session, err := client.Connect(ctx, t, nil)
	if err != nil {
		return nil, faults.New(faults.DiscoveryFailed, "connect to tool server", err)
	}
	// Closing the session terminates the discovery subprocess.
	defer session.Close()

	var tools []*mcp.Tool
	params := &mcp.ListToolsParams{}
	for {
		res, err := session.ListTools(ctx, params)
		if err != nil {
			return nil, faults.New(faults.DiscoveryFailed, "list tools", err)
		}
		tools = append(tools, res.Tools...)
		if res.NextCursor == "" {
			break
		}
		params = &mcp.ListToolsParams{Cursor: res.NextCursor}
	}

	d := &Discovery{Tools: tools, transport: newTransport}
	slog.Info("tools discovered", "count", len(tools), "tools", fmt.Sprint(d.Names()))
	return d, nil
}
