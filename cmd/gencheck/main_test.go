package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"gencheck/internal/diagfmt"
)

const catModel = `declarations:
  - {name: Person, kind: class}
  - {name: Cat, kind: class}
  - {name: takesPerson, kind: function, params: [{name: person, native: Person}], native-return: void}
  - {name: makeCat, kind: function, native-return: Cat}
flows:
  - name: main
    sites:
      - {call: makeCat, bind: $cat}
      - {call: takesPerson, args: [$cat]}
`

// execute runs the root command with args after restoring every flag to its
// default, so tests do not leak flag values into each other.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	resetFlags(rootCmd)
	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	finishRun()
	return stdout.String(), stderr.String(), err
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func writeProject(t *testing.T, config string) (dir, cfgPath, model string) {
	t.Helper()
	dir = t.TempDir()
	cfgPath = filepath.Join(dir, "gencheck.toml")
	if err := os.WriteFile(cfgPath, []byte(config), 0o644); err != nil {
		t.Fatal(err)
	}
	model = filepath.Join(dir, "cat.yaml")
	if err := os.WriteFile(model, []byte(catModel), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir, cfgPath, model
}

func TestCheckShortReportsMismatch(t *testing.T) {
	_, cfg, model := writeProject(t, "[cache]\nenabled = false\n")
	stdout, _, err := execute(t, "check", "--config", cfg, "--format", "short", "--show-types", model)
	if !errors.Is(err, errFindings) {
		t.Fatalf("expected errFindings, got %v", err)
	}
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	if len(lines) != 3 {
		t.Fatalf("unexpected output:\n%s", stdout)
	}
	if !strings.HasPrefix(lines[0], "error SEM3002 "+model+":10") {
		t.Fatalf("unexpected diagnostic line %q", lines[0])
	}
	if diff := cmp.Diff([]string{model + ": flow main", "  $cat: Cat"}, lines[1:]); diff != "" {
		t.Fatalf("flow types (-want +got):\n%s", diff)
	}
}

func TestCheckUsesConfiguredModelsAndFormat(t *testing.T) {
	_, cfg, model := writeProject(t, `[check]
models = ["*.yaml"]

[output]
format = "json"

[cache]
enabled = false
`)
	stdout, _, err := execute(t, "check", "--config", cfg)
	if !errors.Is(err, errFindings) {
		t.Fatalf("expected errFindings, got %v", err)
	}
	var out diagfmt.DiagnosticsOutput
	if err := json.Unmarshal([]byte(stdout), &out); err != nil {
		t.Fatalf("decode: %v\n%s", err, stdout)
	}
	if len(out.Files) != 1 || out.Files[0].Path != model || out.Errors != 1 {
		t.Fatalf("unexpected report: %+v", out)
	}
	if got := out.Files[0].Diagnostics[0].Kind; got != "type-mismatch" {
		t.Fatalf("kind = %q", got)
	}
}

func TestCheckCachesResults(t *testing.T) {
	dir, cfg, model := writeProject(t, "[cache]\nenabled = true\ndir = \"cache\"\n")
	if _, _, err := execute(t, "check", "--config", cfg, "--format", "json", model); !errors.Is(err, errFindings) {
		t.Fatalf("first run: %v", err)
	}
	stdout, _, err := execute(t, "check", "--config", cfg, "--format", "json", model)
	if !errors.Is(err, errFindings) {
		t.Fatalf("second run: %v", err)
	}
	var out diagfmt.DiagnosticsOutput
	if err := json.Unmarshal([]byte(stdout), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !out.Files[0].Cached || out.Errors != 1 {
		t.Fatalf("expected a cached result with the same finding: %+v", out)
	}
	if entries, err := os.ReadDir(filepath.Join(dir, "cache")); err != nil || len(entries) == 0 {
		t.Fatalf("cache dir not populated: %v", err)
	}
}

func TestCacheCleanRemovesResults(t *testing.T) {
	dir, cfg, model := writeProject(t, "[cache]\nenabled = true\ndir = \"cache\"\n")
	if _, _, err := execute(t, "check", "--config", cfg, "--format", "json", model); !errors.Is(err, errFindings) {
		t.Fatalf("check: %v", err)
	}
	stdout, _, err := execute(t, "cache", "dir", "--config", cfg)
	if err != nil {
		t.Fatalf("cache dir: %v", err)
	}
	if got := strings.TrimSpace(stdout); got != filepath.Join(dir, "cache") {
		t.Fatalf("cache dir = %q", got)
	}
	if _, _, err := execute(t, "cache", "clean", "--config", cfg); err != nil {
		t.Fatalf("cache clean: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "cache", "results")); !os.IsNotExist(err) {
		t.Fatalf("results survived clean: %v", err)
	}
	stdout, _, _ = execute(t, "check", "--config", cfg, "--format", "json", model)
	var out diagfmt.DiagnosticsOutput
	if err := json.Unmarshal([]byte(stdout), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Files[0].Cached {
		t.Fatal("result served from a cleaned cache")
	}
}

const unorderedModel = `flows:
  - sites:
      - {call: takesInt, args: [string]}
declarations:
  - {name: takesInt, kind: function, params: [{name: value, native: int}], native-return: void}
  - {name: takesMissing, kind: function, params: [{name: value, type: Missing, native: Missing}], native-return: void}
`

func TestCheckSortByPosition(t *testing.T) {
	dir, cfg, _ := writeProject(t, "[cache]\nenabled = false\n")
	model := filepath.Join(dir, "unordered.yaml")
	if err := os.WriteFile(model, []byte(unorderedModel), 0o644); err != nil {
		t.Fatal(err)
	}
	codes := func(stdout string) []string {
		var out []string
		for _, line := range strings.Split(strings.TrimSpace(stdout), "\n") {
			out = append(out, strings.Fields(line)[1])
		}
		return out
	}

	stdout, _, err := execute(t, "check", "--config", cfg, "--format", "short", model)
	if !errors.Is(err, errFindings) {
		t.Fatalf("expected errFindings, got %v", err)
	}
	if diff := cmp.Diff([]string{"SEM3005", "SEM3005", "SEM3002"}, codes(stdout)); diff != "" {
		t.Fatalf("emission order (-want +got):\n%s", diff)
	}

	stdout, _, err = execute(t, "check", "--config", cfg, "--format", "short", "--sort", "position", model)
	if !errors.Is(err, errFindings) {
		t.Fatalf("expected errFindings, got %v", err)
	}
	if diff := cmp.Diff([]string{"SEM3002", "SEM3005"}, codes(stdout)); diff != "" {
		t.Fatalf("position order (-want +got):\n%s", diff)
	}

	if _, _, err := execute(t, "check", "--config", cfg, "--sort", "random", model); err == nil || !strings.Contains(err.Error(), "unknown sort order") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCheckInvalidConfigIsReported(t *testing.T) {
	_, cfg, model := writeProject(t, "[check]\njobs = -1\n")
	stdout, _, err := execute(t, "check", "--config", cfg, "--format", "short", model)
	if !errors.Is(err, errFindings) {
		t.Fatalf("expected errFindings, got %v", err)
	}
	if !strings.HasPrefix(stdout, "error PRJ5001 "+cfg) {
		t.Fatalf("unexpected output %q", stdout)
	}
}

func TestCheckRejectsUnknownFormat(t *testing.T) {
	_, cfg, model := writeProject(t, "")
	_, _, err := execute(t, "check", "--config", cfg, "--format", "xml", model)
	if err == nil || errors.Is(err, errFindings) || !strings.Contains(err.Error(), "unknown format") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestTypesPrintsCanonicalForms(t *testing.T) {
	stdout, _, err := execute(t, "types", "--template", "T", `\Entities\Dog[]`, "list<T>", "?Dog")
	if err != nil {
		t.Fatalf("types: %v", err)
	}
	want := "array<int|string, Entities\\Dog>\narray<int, T>\nDog|null\n"
	if diff := cmp.Diff(want, stdout); diff != "" {
		t.Fatalf("types (-want +got):\n%s", diff)
	}
}

func TestTypesReportsMalformedExpressions(t *testing.T) {
	stdout, stderr, err := execute(t, "types", "array<", "int")
	if !errors.Is(err, errFindings) {
		t.Fatalf("expected errFindings, got %v", err)
	}
	if stdout != "int\n" || !strings.Contains(stderr, `"array<"`) {
		t.Fatalf("stdout=%q stderr=%q", stdout, stderr)
	}
}

func TestVersionJSON(t *testing.T) {
	stdout, _, err := execute(t, "version", "--format", "json")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	var payload versionPayload
	if err := json.Unmarshal([]byte(stdout), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Tool != "gencheck" || payload.Version == "" {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestReadUIMode(t *testing.T) {
	for in, want := range map[string]uiMode{"": uiModeAuto, "AUTO": uiModeAuto, " on ": uiModeOn, "off": uiModeOff} {
		got, err := readUIMode(in)
		if err != nil || got != want {
			t.Fatalf("readUIMode(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := readUIMode("sometimes"); err == nil {
		t.Fatal("expected an error for an unknown mode")
	}
	if !shouldUseTUI(uiModeOn) || shouldUseTUI(uiModeOff) {
		t.Fatal("explicit modes must win over terminal detection")
	}
}

func TestTraceFlagsWriteNDJSON(t *testing.T) {
	_, cfg, model := writeProject(t, "[cache]\nenabled = false\n")
	tracePath := filepath.Join(t.TempDir(), "trace.ndjson")
	if _, _, err := execute(t, "--trace", tracePath, "--trace-level", "phase", "check", "--config", cfg, "--format", "short", model); !errors.Is(err, errFindings) {
		t.Fatalf("check: %v", err)
	}
	data, err := os.ReadFile(tracePath)
	if err != nil {
		t.Fatalf("read trace: %v", err)
	}
	for _, phase := range []string{"lower", "register", "validate", "check"} {
		if !strings.Contains(string(data), `"`+phase+`"`) {
			t.Fatalf("trace misses phase %q:\n%s", phase, data)
		}
	}
}
