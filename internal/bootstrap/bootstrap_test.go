package bootstrap

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	platformconfig "plantid-server-go/internal/platform/config"
	platformlogging "plantid-server-go/internal/platform/logging"
)

func writeTestConfig(t *testing.T, staticFiles map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	static := filepath.Join(dir, "web")
	if err := os.MkdirAll(static, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	for name, body := range staticFiles {
		if err := os.WriteFile(filepath.Join(static, name), []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	cfg := `
server:
  port: 18080
log:
  log_level: error
  log_dir: ` + filepath.Join(dir, "logs") + `
shell:
  generation: plantid-test
  static_dir: ` + static + `
store:
  driver: memory
`
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(cfg), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

var shellFiles = map[string]string{
	"index.html":    "<html></html>",
	"manifest.json": `{"name":"PlantID"}`,
}

func TestInitGraphOrder(t *testing.T) {
	want := []string{
		"config:load",
		"logging:init-provider",
		"observability:setup-hooks",
		"storage:init-store",
		"events:init-bus",
		"relay:init-service",
		"shell:init-controller",
		"shell:register-worker",
	}
	steps := InitGraph()
	if len(steps) != len(want) {
		t.Fatalf("unexpected step count: got %d want %d", len(steps), len(want))
	}
	for i, step := range steps {
		if step.ID != want[i] {
			t.Fatalf("step %d mismatch: got %s want %s", i, step.ID, want[i])
		}
	}
}

func TestExecuteInitGraph(t *testing.T) {
	state := &appState{configPath: writeTestConfig(t, shellFiles)}
	if err := executeInitSteps(context.Background(), InitGraph(), state); err != nil {
		t.Fatalf("executeInitSteps failed: %v", err)
	}
	defer state.close()

	if state.relay == nil || state.store == nil || state.observabilityShutdown == nil {
		t.Fatal("state not fully initialised")
	}
	if state.origin != "http://localhost:18080" {
		t.Fatalf("origin = %q", state.origin)
	}
	active, ok := state.controller.Active()
	if !ok || active != "plantid-test" {
		t.Fatalf("expected plantid-test active, got %q", active)
	}
	keys, err := state.store.Keys(context.Background(), "plantid-test")
	if err != nil || len(keys) != 3 {
		t.Fatalf("expected 3 cached shell files, got %v (%v)", keys, err)
	}
}

func TestInstallFailureDoesNotAbortStartup(t *testing.T) {
	// manifest.json missing from the static dir
	state := &appState{configPath: writeTestConfig(t, map[string]string{"index.html": "<html></html>"})}
	if err := executeInitSteps(context.Background(), InitGraph(), state); err != nil {
		t.Fatalf("executeInitSteps failed: %v", err)
	}
	defer state.close()

	if _, ok := state.controller.Active(); ok {
		t.Fatal("no generation should be active after a failed install")
	}
	if state.controller.Status().LastError == "" {
		t.Fatal("expected install error to be recorded")
	}
}

func TestExecuteInitStepsDependencies(t *testing.T) {
	steps := []initStep{
		{ID: "b", DependsOn: []string{"a"}, Execute: func(context.Context, *appState) error { return nil }},
	}
	if err := executeInitSteps(context.Background(), steps, &appState{}); err == nil {
		t.Fatal("expected unsatisfied dependency error")
	}
	if err := executeInitSteps(context.Background(), []initStep{{ID: "x"}}, &appState{}); err == nil {
		t.Fatal("expected missing execute error")
	}
	if err := executeInitSteps(context.Background(), nil, nil); err == nil {
		t.Fatal("expected nil state error")
	}
}

func TestLogBootstrapGraphOutput(t *testing.T) {
	var buf bytes.Buffer
	logger, err := platformlogging.New(platformlogging.Config{Level: "info", Console: &buf, NoColor: true})
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	logBootstrapGraph(InitGraph(), logger)

	content := buf.String()
	for _, id := range []string{"config:load", "storage:init-store", "shell:register-worker"} {
		if !strings.Contains(content, id) {
			t.Fatalf("expected graph output to contain %q, got: %s", id, content)
		}
	}
}

func TestShellOrigin(t *testing.T) {
	cfg := platformconfig.DefaultConfig()
	cfg.Server.IP = "0.0.0.0"
	cfg.Server.Port = 9000
	if got := ShellOrigin(cfg); got != "http://localhost:9000" {
		t.Fatalf("ShellOrigin = %q", got)
	}
	cfg.Shell.Origin = "https://plantid.example.com/"
	if got := ShellOrigin(cfg); got != "https://plantid.example.com" {
		t.Fatalf("ShellOrigin = %q", got)
	}
}
