package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mitchins/SmolRouter/internal/upstreamtest"
	"github.com/mitchins/SmolRouter/pkg/cli"
)

const testConfig = `
default_upstream: http://127.0.0.1:1
servers:
  gpu: http://10.0.0.5:11434/v1
routes:
  - match: {source_host: 10.0.0.9, model: "/^llama/"}
    route: {upstream: gpu, model: llama3}
aliases:
  coder:
    - gpu/qwen
    - server: http://10.0.0.6:8000
      model: qwen-backup
model_map:
  qwen: qwen2.5-coder:32b
`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

// execute runs the CLI with args and returns its stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(args, "--no-color"))
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version error = %v", err)
	}
	if !strings.Contains(out, "SmolRouter "+Version) {
		t.Errorf("output = %q", out)
	}
	if !strings.Contains(out, "Go Version:") {
		t.Errorf("output missing Go version: %q", out)
	}
}

func TestValidateCommand(t *testing.T) {
	path := writeFile(t, "config.yaml", testConfig)

	out, err := execute(t, "validate", "-c", path)
	if err != nil {
		t.Fatalf("validate error = %v\n%s", err, out)
	}
	for _, want := range []string{"✓ Configuration valid", "default upstream:", "coder:", "[gpu/qwen http://10.0.0.6:8000/qwen-backup]"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestValidateCommand_JSON(t *testing.T) {
	path := writeFile(t, "config.yaml", testConfig)

	out, err := execute(t, "validate", "-c", path, "-o", "json")
	if err != nil {
		t.Fatalf("validate error = %v", err)
	}
	var summary configSummary
	if err := json.Unmarshal([]byte(out), &summary); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if !summary.Valid || summary.Routes != 1 || summary.ModelMap != 1 {
		t.Errorf("summary = %+v", summary)
	}
	if len(summary.Aliases["coder"]) != 2 {
		t.Errorf("aliases = %v", summary.Aliases)
	}
}

func TestValidateCommand_Invalid(t *testing.T) {
	path := writeFile(t, "config.yaml", `
routes:
  - match: {model: "/[unclosed/"}
    route: {upstream: http://127.0.0.1:1}
`)

	out, err := execute(t, "validate", "-c", path)
	if err == nil {
		t.Fatalf("validate succeeded on an invalid config:\n%s", out)
	}
	if cli.ExitCode(err) != cli.ExitConfigError {
		t.Errorf("exit code = %d, want %d", cli.ExitCode(err), cli.ExitConfigError)
	}
	if !strings.Contains(out, "✗ Configuration invalid") {
		t.Errorf("output = %q", out)
	}
}

func TestValidateCommand_Probe(t *testing.T) {
	up := upstreamtest.New()
	defer up.Close()
	up.SetResponse("/api/tags", upstreamtest.Response{Body: upstreamtest.OllamaTags("llama3", "qwen")})

	path := writeFile(t, "config.yaml", `
default_upstream: local
providers:
  - name: local
    type: ollama
    url: `+up.URL()+`
`)

	out, err := execute(t, "validate", "-c", path, "--probe")
	if err != nil {
		t.Fatalf("validate --probe error = %v\n%s", err, out)
	}
	if !strings.Contains(out, "[1/1] local") || !strings.Contains(out, "1 ok, 0 failed") {
		t.Errorf("missing probe progress:\n%s", out)
	}
	if !strings.Contains(out, "2 models") {
		t.Errorf("missing model count:\n%s", out)
	}
}

func TestValidateCommand_ProbeFailure(t *testing.T) {
	path := writeFile(t, "config.yaml", `
default_upstream: local
providers:
  - name: local
    type: ollama
    url: http://127.0.0.1:1
`)

	out, err := execute(t, "validate", "-c", path, "--probe", "--probe-timeout", "2s")
	var cmdErr *cli.CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("error = %v, want a CommandError\n%s", err, out)
	}
	if !strings.Contains(out, "0 ok, 1 failed") {
		t.Errorf("output = %s", out)
	}
}

func TestRouteCommand(t *testing.T) {
	path := writeFile(t, "config.yaml", testConfig)

	tests := []struct {
		name      string
		args      []string
		wantPlan  string
		wantAlias bool
		want      []routeTarget
	}{
		{
			name:      "alias with model map",
			args:      []string{"--model", "coder"},
			wantPlan:  "coder",
			wantAlias: true,
			want: []routeTarget{
				{Server: "gpu", Endpoint: "http://10.0.0.5:11434/v1", Type: "openai", Model: "qwen", UpstreamModel: "qwen2.5-coder:32b"},
				{Server: "http://10.0.0.6:8000", Endpoint: "http://10.0.0.6:8000", Type: "openai", Model: "qwen-backup", UpstreamModel: "qwen-backup"},
			},
		},
		{
			name:     "route for matching host",
			args:     []string{"--model", "llama-7b", "--host", "10.0.0.9"},
			wantPlan: "route[0]",
			want: []routeTarget{
				{Server: "gpu", Endpoint: "http://10.0.0.5:11434/v1", Type: "openai", Model: "llama3", UpstreamModel: "llama3"},
			},
		},
		{
			name:     "default for other hosts",
			args:     []string{"--model", "llama-7b", "--host", "10.0.0.1"},
			wantPlan: "default",
			want: []routeTarget{
				{Server: "http://127.0.0.1:1", Endpoint: "http://127.0.0.1:1", Type: "openai", Model: "llama-7b", UpstreamModel: "llama-7b"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"route", "-c", path, "-o", "json"}, tt.args...)
			out, err := execute(t, args...)
			if err != nil {
				t.Fatalf("route error = %v\n%s", err, out)
			}
			var got routeResult
			if err := json.Unmarshal([]byte(out), &got); err != nil {
				t.Fatalf("output is not JSON: %v\n%s", err, out)
			}
			if got.Plan != tt.wantPlan || got.Alias != tt.wantAlias {
				t.Errorf("plan = %q alias = %v, want %q %v", got.Plan, got.Alias, tt.wantPlan, tt.wantAlias)
			}
			if len(got.Instances) != len(tt.want) {
				t.Fatalf("instances = %+v", got.Instances)
			}
			for i := range tt.want {
				if got.Instances[i] != tt.want[i] {
					t.Errorf("instance %d = %+v, want %+v", i, got.Instances[i], tt.want[i])
				}
			}
		})
	}
}

func TestRouteCommand_NoUpstream(t *testing.T) {
	path := writeFile(t, "config.yaml", `
routes:
  - match: {model: only-this}
    route: {upstream: http://127.0.0.1:1}
`)

	out, err := execute(t, "route", "-c", path, "--model", "other")
	if err == nil {
		t.Fatalf("route succeeded without an upstream:\n%s", out)
	}
	if !strings.Contains(out, `no upstream configured for model "other"`) {
		t.Errorf("output = %q", out)
	}
}

func TestRunCommand_DryRun(t *testing.T) {
	path := writeFile(t, "config.yaml", testConfig)

	out, err := execute(t, "run", "-c", path, "--dry-run", "--listen", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("run --dry-run error = %v\n%s", err, out)
	}
	if !strings.Contains(out, "not starting") || !strings.Contains(out, "127.0.0.1:0") {
		t.Errorf("output = %q", out)
	}
}

func TestEnvFile(t *testing.T) {
	cfgPath := writeFile(t, "config.yaml", "servers:\n  gpu: http://10.0.0.5:8000\n")
	envPath := writeFile(t, "test.env", "SMOLROUTER_DEFAULT_UPSTREAM=gpu\n")
	t.Cleanup(func() { os.Unsetenv("SMOLROUTER_DEFAULT_UPSTREAM") })

	out, err := execute(t, "route", "-c", cfgPath, "--env-file", envPath, "--model", "m", "-o", "json")
	if err != nil {
		t.Fatalf("route error = %v\n%s", err, out)
	}
	var got routeResult
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if got.Plan != "default" || got.Instances[0].Server != "gpu" {
		t.Errorf("result = %+v, want the env file's default upstream", got)
	}

	if _, err := execute(t, "version", "--env-file", filepath.Join(t.TempDir(), "missing.env")); err == nil {
		t.Error("missing --env-file accepted")
	}
}
