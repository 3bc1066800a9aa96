package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/redoraai/redora-cli/config"
	"github.com/redoraai/redora-cli/pkg/buildinfo"
)

// runRoot executes the root command with args in an isolated config dir.
func runRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("REDORA_CONFIG_DIR", t.TempDir())
	for _, key := range []string{"REDORA_SERVER_ADDRESS", "REDORA_OUTPUT_FORMAT", "REDORA_REDIS_ADDR", "REDORA_API_TOKEN"} {
		t.Setenv(key, "")
	}
	return execRoot(t, args...)
}

func execRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Cleanup(resetGlobals)

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	rootCmd.SetOut(nil)
	rootCmd.SetErr(nil)
	return buf.String(), err
}

func resetGlobals() {
	serverAddr, outputFormat, tenantID = "", "", ""
	timeout = 0
	debug, insecure = false, false
	cfg = nil
	for _, name := range []string{"server", "output", "tenant", "timeout", "debug", "insecure"} {
		if f := rootCmd.PersistentFlags().Lookup(name); f != nil {
			f.Changed = false
		}
	}
}

func TestRootCommandTree(t *testing.T) {
	want := []string{"leads", "status", "auth", "config", "completion", "version"}
	for _, name := range want {
		found := false
		for _, c := range rootCmd.Commands() {
			if c.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("root command is missing %q", name)
		}
	}

	for _, name := range []string{"server", "timeout", "output", "tenant", "debug", "insecure"} {
		if rootCmd.PersistentFlags().Lookup(name) == nil {
			t.Errorf("missing persistent flag --%s", name)
		}
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := runRoot(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.HasPrefix(out, "redora version ") {
		t.Errorf("unexpected output: %q", out)
	}
	if !strings.Contains(out, "commit:") {
		t.Errorf("output missing commit line: %q", out)
	}
}

func TestVersionCommand_JSON(t *testing.T) {
	out, err := runRoot(t, "version", "--output", "json")
	if err != nil {
		t.Fatalf("version: %v", err)
	}

	var info buildinfo.Info
	if err := json.Unmarshal([]byte(out), &info); err != nil {
		t.Fatalf("decoding %q: %v", out, err)
	}
	if info.ServiceName != serviceName {
		t.Errorf("ServiceName = %q, want %q", info.ServiceName, serviceName)
	}
}

func TestConfigInitSetShow(t *testing.T) {
	if _, err := runRoot(t, "config", "init"); err != nil {
		t.Fatalf("config init: %v", err)
	}

	out, err := execRoot(t, "config", "set", "leads.default_score", "75")
	if err != nil {
		t.Fatalf("config set: %v", err)
	}
	if !strings.Contains(out, "Set leads.default_score = 75") {
		t.Errorf("unexpected set output: %q", out)
	}

	saved, err := config.LoadFile()
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if saved.Leads.DefaultScore != 75 {
		t.Errorf("DefaultScore = %d, want 75", saved.Leads.DefaultScore)
	}

	out, err = execRoot(t, "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	if !strings.Contains(out, "Default score:     75") {
		t.Errorf("show output missing score: %q", out)
	}
}

func TestConfigSet_UnknownKey(t *testing.T) {
	_, err := runRoot(t, "config", "set", "nope", "1")
	if err == nil || !strings.Contains(err.Error(), "unknown config key") {
		t.Fatalf("expected unknown key error, got %v", err)
	}
}

func TestConfigSet_DoesNotPersistEnv(t *testing.T) {
	t.Setenv("REDORA_CONFIG_DIR", t.TempDir())
	t.Setenv("REDORA_SERVER_ADDRESS", "from-env:1")

	if _, err := execRoot(t, "config", "set", "tenant_id", "acme"); err != nil {
		t.Fatalf("config set: %v", err)
	}
	saved, err := config.LoadFile()
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if saved.ServerAddress != config.DefaultServerAddress {
		t.Errorf("ServerAddress = %q, env value leaked into the file", saved.ServerAddress)
	}
	if saved.TenantID != "acme" {
		t.Errorf("TenantID = %q, want acme", saved.TenantID)
	}
}

func TestApplyFlagOverrides(t *testing.T) {
	t.Cleanup(resetGlobals)

	c := config.DefaultConfig()
	serverAddr = "flag:443"
	timeout = 3 * time.Second
	outputFormat = "yaml"
	tenantID = "t-1"
	debug = true
	insecure = true

	applyFlagOverrides(c)

	if c.ServerAddress != "flag:443" || c.Timeout != 3*time.Second || c.TenantID != "t-1" {
		t.Errorf("overrides not applied: %+v", c)
	}
	if c.OutputFormat != config.OutputFormatYAML {
		t.Errorf("OutputFormat = %q", c.OutputFormat)
	}
	if !c.Debug || !c.Insecure {
		t.Error("expected Debug and Insecure")
	}
}

func TestApplyFlagOverrides_EmptyKeepsValues(t *testing.T) {
	t.Cleanup(resetGlobals)
	resetGlobals()

	c := config.DefaultConfig()
	c.TenantID = "from-file"
	applyFlagOverrides(c)

	if c.TenantID != "from-file" || c.ServerAddress != config.DefaultServerAddress {
		t.Errorf("unset flags changed config: %+v", c)
	}
}

func TestCoordinatorOptions_EventsDisabled(t *testing.T) {
	c := config.DefaultConfig()
	if got := len(coordinatorOptions(c)); got != 3 {
		t.Errorf("got %d options, want 3", got)
	}
	if err := closeResources(); err != nil {
		t.Errorf("closeResources: %v", err)
	}
}

func TestValueOrDefault(t *testing.T) {
	tests := []struct {
		value, def, want string
	}{
		{"", "(not set)", "(not set)"},
		{"acme", "(not set)", "acme"},
	}
	for _, tt := range tests {
		if got := valueOrDefault(tt.value, tt.def); got != tt.want {
			t.Errorf("valueOrDefault(%q, %q) = %q, want %q", tt.value, tt.def, got, tt.want)
		}
	}
}
