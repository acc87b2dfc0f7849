package config

import (
	"os"
	"path/filepath"
	"testing"

	"kubeagent/internal/faults"
)

const sampleYAML = `
azure_openai:
  deployment_name: from-file
  endpoint: https://file.openai.azure.com
appinsight:
  app_id: file-app
server:
  port: 9999
inventory_file: clusters.yaml
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

// clearEnv blanks every variable Load reads so the host environment
// cannot leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, o := range envOverrides {
		t.Setenv(o.name, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	s, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Model.Vendor != "azure" {
		t.Errorf("Model.Vendor = %q, want azure", s.Model.Vendor)
	}
	if s.ToolServer.Command != "uv" || s.ToolServer.Script != "server.py" {
		t.Errorf("ToolServer = %+v, want uv/server.py", s.ToolServer)
	}
	if got := s.ListenAddr(); got != "localhost:10000" {
		t.Errorf("ListenAddr() = %q, want localhost:10000", got)
	}
	if s.AzureOpenAI.APIKey != "" {
		t.Errorf("APIKey should have no default, got %q", s.AzureOpenAI.APIKey)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, sampleYAML)

	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.AzureOpenAI.DeploymentName != "from-file" {
		t.Errorf("DeploymentName = %q, want from-file", s.AzureOpenAI.DeploymentName)
	}
	if s.Server.Port != 9999 {
		t.Errorf("Server.Port = %d, want 9999", s.Server.Port)
	}
	// Keys absent from the file keep their defaults.
	if s.Server.Host != "localhost" {
		t.Errorf("Server.Host = %q, want default localhost", s.Server.Host)
	}
	if s.AppInsight.Endpoint != "https://api.applicationinsights.io" {
		t.Errorf("AppInsight.Endpoint = %q, want default", s.AppInsight.Endpoint)
	}
	if s.Inventory != "clusters.yaml" {
		t.Errorf("Inventory = %q, want clusters.yaml", s.Inventory)
	}
}

func TestLoad_EnvOverridesFileAndDefault(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, sampleYAML)
	t.Setenv("AZURE_OPENAI_DEPLOYMENT_NAME", "from-env")
	t.Setenv("AZURE_APPINSIGHT_ID", "env-app")
	t.Setenv("KUBEAGENT_TOOL_COMMAND", "python")

	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"deployment (env over file)", s.AzureOpenAI.DeploymentName, "from-env"},
		{"app id (env over file)", s.AppInsight.AppID, "env-app"},
		{"tool command (env over default)", s.ToolServer.Command, "python"},
		{"endpoint (file only)", s.AzureOpenAI.Endpoint, "https://file.openai.azure.com"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %q, want %q", tt.name, tt.got, tt.want)
		}
	}
}

func TestLoad_MissingFileIsNotAnError(t *testing.T) {
	clearEnv(t)
	s, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load(missing) error = %v, want nil", err)
	}
	if s.Model.Vendor != "azure" {
		t.Errorf("expected defaults, got vendor %q", s.Model.Vendor)
	}
}

func TestLoad_MalformedFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "azure_openai: [not, a, map")
	if _, err := Load(path); err == nil {
		t.Fatal("Load(malformed) error = nil, want parse error")
	}
}

func TestLoad_DotEnv(t *testing.T) {
	clearEnv(t)
	os.Unsetenv("AZURE_APPINSIGHT_ID")
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("AZURE_APPINSIGHT_ID=dotenv-app\n"), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Chdir(dir)

	s, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.AppInsight.AppID != "dotenv-app" {
		t.Errorf("AppID = %q, want %q", s.AppInsight.AppID, "dotenv-app")
	}
}

func TestLoad_MalformedDotEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("BAD-KEY=value\n"), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Chdir(dir)

	if _, err := Load(""); err == nil {
		t.Fatal("Load with malformed .env error = nil, want error")
	}
}

func TestLoad_NoDotEnv(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())
	if _, err := Load(""); err != nil {
		t.Fatalf("Load without .env error = %v, want nil", err)
	}
}

func TestLoad_InvalidPortIgnored(t *testing.T) {
	clearEnv(t)
	t.Setenv("KUBEAGENT_PORT", "not-a-port")
	s, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Server.Port != 10000 {
		t.Errorf("Server.Port = %d, want default 10000", s.Server.Port)
	}
}

func TestRequire(t *testing.T) {
	s := Defaults()
	s.AzureOpenAI.APIKey = "key"

	got, err := s.Require(KeyAPIKey, KeyModelVendor)
	if err != nil {
		t.Fatalf("Require: %v", err)
	}
	if got[0] != "key" || got[1] != "azure" {
		t.Errorf("Require values = %v", got)
	}

	_, err = s.Require(KeyAPIKey, KeyEndpoint)
	if !faults.Is(err, faults.ConfigMissing) {
		t.Fatalf("Require(unset) error = %v, want ConfigMissing", err)
	}

	if _, err := s.Require("no.such.key"); err == nil || faults.Is(err, faults.ConfigMissing) {
		t.Errorf("Require(unknown) error = %v, want plain unknown-key error", err)
	}
}
