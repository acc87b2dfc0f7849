// Package config loads the settings shared by the agent server and the
// query tool. Values come from built-in defaults, an optional YAML file and
// environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"kubeagent/internal/faults"
)

// Well-known keys accepted by Settings.Get and Settings.Require.
const (
	KeyDeploymentName = "azure_openai.deployment_name"
	KeyAPIVersion     = "azure_openai.api_version"
	KeyEndpoint       = "azure_openai.endpoint"
	KeyAPIKey         = "azure_openai.api_key"
	KeyAppID          = "appinsight.app_id"
	KeyModelVendor    = "model.vendor"
	KeyModelName      = "model.name"
	KeyModelAPIKey    = "model.api_key"
	KeyToolServerPath = "tool_server.path"
)

// AzureOpenAI holds the chat-completion endpoint settings.
type AzureOpenAI struct {
	APIKey         string `yaml:"api_key"`
	Endpoint       string `yaml:"endpoint"`
	APIVersion     string `yaml:"api_version"`
	DeploymentName string `yaml:"deployment_name"`
}

// AppInsight holds the telemetry query settings.
type AppInsight struct {
	AppID      string `yaml:"app_id"`
	Endpoint   string `yaml:"endpoint"`
	SchemaFile string `yaml:"schema_file"`
}

// Model selects the LLM vendor. Vendor "azure" uses the AzureOpenAI block;
// "anthropic" and "gemini" use Name and APIKey.
type Model struct {
	Vendor      string  `yaml:"vendor"`
	Name        string  `yaml:"name"`
	APIKey      string  `yaml:"api_key"`
	Temperature float32 `yaml:"temperature"`
}

// ToolServer describes how to launch the MCP tool server.
type ToolServer struct {
	Path    string `yaml:"path"`
	Command string `yaml:"command"`
	Script  string `yaml:"script"`
}

// Server is the A2A listen address.
type Server struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Settings is the merged configuration. It is built once by Load and
// treated as read-only afterwards.
type Settings struct {
	AzureOpenAI AzureOpenAI `yaml:"azure_openai"`
	AppInsight  AppInsight  `yaml:"appinsight"`
	Model       Model       `yaml:"model"`
	ToolServer  ToolServer  `yaml:"tool_server"`
	Server      Server      `yaml:"server"`
	// Inventory is an optional cluster inventory file.
	Inventory string `yaml:"inventory_file"`
}

// Defaults returns the built-in settings. Credentials and endpoints have no
// defaults and must come from the file or the environment.
func Defaults() *Settings {
	return &Settings{
		AppInsight: AppInsight{
			Endpoint: "https://api.applicationinsights.io",
		},
		Model: Model{
			Vendor: "azure",
		},
		ToolServer: ToolServer{
			Command: "uv",
			Script:  "server.py",
		},
		Server: Server{
			Host: "localhost",
			Port: 10000,
		},
	}
}

// envOverrides maps environment variables onto settings fields.
var envOverrides = []struct {
	name  string
	apply func(s *Settings, v string)
}{
	{"AZURE_OPENAI_API_KEY", func(s *Settings, v string) { s.AzureOpenAI.APIKey = v }},
	{"AZURE_OPENAI_ENDPOINT", func(s *Settings, v string) { s.AzureOpenAI.Endpoint = v }},
	{"AZURE_OPENAI_API_VERSION", func(s *Settings, v string) { s.AzureOpenAI.APIVersion = v }},
	{"AZURE_OPENAI_DEPLOYMENT_NAME", func(s *Settings, v string) { s.AzureOpenAI.DeploymentName = v }},
	{"AZURE_APPINSIGHT_ID", func(s *Settings, v string) { s.AppInsight.AppID = v }},
	{"KUBEAGENT_MODEL_VENDOR", func(s *Settings, v string) { s.Model.Vendor = v }},
	{"KUBEAGENT_MODEL_NAME", func(s *Settings, v string) { s.Model.Name = v }},
	{"KUBEAGENT_API_KEY", func(s *Settings, v string) { s.Model.APIKey = v }},
	{"KUBEAGENT_TOOL_SERVER", func(s *Settings, v string) { s.ToolServer.Path = v }},
	{"KUBEAGENT_TOOL_COMMAND", func(s *Settings, v string) { s.ToolServer.Command = v }},
	{"KUBEAGENT_INVENTORY", func(s *Settings, v string) { s.Inventory = v }},
	{"KUBEAGENT_HOST", func(s *Settings, v string) { s.Server.Host = v }},
	{"KUBEAGENT_PORT", func(s *Settings, v string) {
		if port, err := strconv.Atoi(v); err == nil {
			s.Server.Port = port
		} else {
			slog.Warn("ignoring invalid KUBEAGENT_PORT", "value", v)
		}
	}},
}

// Load merges the defaults, the YAML file at path (skipped when path is
// empty or does not exist) and the environment. A .env file in the working
// directory is loaded first; it never replaces variables that are already set.
// A missing .env is not an error; an unreadable or malformed one is.
func Load(path string) (*Settings, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	s := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			slog.Debug("config file not found, using defaults", "path", path)
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, s); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
			slog.Debug("config file loaded", "path", path)
		}
	}

	for _, o := range envOverrides {
		if v := os.Getenv(o.name); v != "" {
			o.apply(s, v)
		}
	}

	return s, nil
}

// Get returns the value of a well-known key and whether the key is known.
func (s *Settings) Get(key string) (string, bool) {
	switch key {
	case KeyDeploymentName:
		return s.AzureOpenAI.DeploymentName, true
	case KeyAPIVersion:
		return s.AzureOpenAI.APIVersion, true
	case KeyEndpoint:
		return s.AzureOpenAI.Endpoint, true
	case KeyAPIKey:
		return s.AzureOpenAI.APIKey, true
	case KeyAppID:
		return s.AppInsight.AppID, true
	case KeyModelVendor:
		return s.Model.Vendor, true
	case KeyModelName:
		return s.Model.Name, true
	case KeyModelAPIKey:
		return s.Model.APIKey, true
	case KeyToolServerPath:
		return s.ToolServer.Path, true
	default:
		return "", false
	}
}

// Require returns the values of the given keys in order, or a
// faults.ConfigMissing error naming the first key that is unset.
func (s *Settings) Require(keys ...string) ([]string, error) {
	values := make([]string, 0, len(keys))
	for _, key := range keys {
		v, ok := s.Get(key)
		if !ok {
			return nil, fmt.Errorf("unknown configuration key %q", key)
		}
		if strings.TrimSpace(v) == "" {
			return nil, faults.Missing(key)
		}
		values = append(values, v)
	}
	return values, nil
}

// ListenAddr returns host:port for the A2A server.
func (s *Settings) ListenAddr() string {
	return fmt.Sprintf("%s:%d", s.Server.Host, s.Server.Port)
}
