package project

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"gencheck/internal/solver"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, ConfigFileName)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDiscoverWalksUp(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, `
[check]
models = ["models/*.yaml"]
jobs = 3
object-bound = "explicit"

[output]
format = "json"
color = "off"

[cache]
dir = ".cache"
`)
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(root, "models"), 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"b.yaml", "a.yaml", "skip.txt"} {
		if err := os.WriteFile(filepath.Join(root, "models", name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	cfg, ok, err := Discover(nested)
	if err != nil || !ok {
		t.Fatalf("Discover: ok=%v err=%v", ok, err)
	}
	if cfg.Root != root || cfg.Check.Jobs != 3 || cfg.ObjectBound() != solver.ObjectBoundExplicit {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.Output.Format != "json" || cfg.Output.Color != "off" {
		t.Fatalf("unexpected output: %+v", cfg.Output)
	}
	if !cfg.Cache.Enabled || cfg.CacheDir() != filepath.Join(root, ".cache") {
		t.Fatalf("unexpected cache: %+v (%s)", cfg.Cache, cfg.CacheDir())
	}
	files, err := cfg.ModelFiles()
	if err != nil {
		t.Fatal(err)
	}
	want := []string{filepath.Join(root, "models", "a.yaml"), filepath.Join(root, "models", "b.yaml")}
	if diff := cmp.Diff(want, files); diff != "" {
		t.Fatalf("model files mismatch (-want +got):\n%s", diff)
	}
}

func TestDiscoverWithoutConfigUsesDefaults(t *testing.T) {
	cfg, ok, err := Discover(t.TempDir())
	if err != nil || ok {
		t.Fatalf("Discover: ok=%v err=%v", ok, err)
	}
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Fatalf("defaults mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"policy":  "[check]\nobject-bound = \"sometimes\"\n",
		"format":  "[output]\nformat = \"xml\"\n",
		"color":   "[output]\ncolor = \"maybe\"\n",
		"jobs":    "[check]\njobs = -1\n",
		"unknown": "[check]\nthreads = 4\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := writeConfig(t, t.TempDir(), body)
			_, err := LoadConfig(path)
			if !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
	path := writeConfig(t, t.TempDir(), "[check\n")
	if _, err := LoadConfig(path); err == nil || errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected a TOML parse error, got %v", err)
	}
}

func TestDigest(t *testing.T) {
	a, b := Sum([]byte("a")), Sum([]byte("b"))
	if a == b || a.IsZero() || !(Digest{}).IsZero() {
		t.Fatalf("unexpected digests %s %s", a, b)
	}
	if Combine(a, b) == Combine(b, a) {
		t.Fatalf("Combine must be order sensitive")
	}
	if len(a.String()) != 64 {
		t.Fatalf("hex digest length = %d", len(a.String()))
	}
}
