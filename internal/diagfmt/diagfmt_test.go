package diagfmt

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"gencheck/internal/diag"
	"gencheck/internal/source"
)

const gameSource = `declarations:
  - {name: Dog, kind: class}
flows:
  - sites:
      - {method: play, on: $dogGame, args: [$cat]}
`

func sampleBag() *diag.Bag {
	bag := diag.NewBag(0)
	at := source.Pos{File: "/work/models/game.yaml", Line: 5, Col: 9}
	bag.Add(diag.NewError(diag.SemaTypeMismatch, at, "argument 1 of DogGame::play: expected Dog, got Cat").
		WithTypes("Dog", "Cat").
		WithNote(source.NoPos, "in argument 1"))
	bag.Add(diag.New(diag.SevWarning, diag.SemaInfo, source.Pos{File: "/work/models/game.yaml", Line: 2}, "unused"))
	return bag
}

func TestPrettyQuotesSourceAndTypes(t *testing.T) {
	src := NewFileSources()
	src.Add("/work/models/game.yaml", []byte(gameSource))

	var buf bytes.Buffer
	Pretty(&buf, sampleBag(), src, PrettyOpts{
		PathMode:   PathModeBasename,
		ShowNotes:  true,
		ShowTypes:  true,
		ShowSource: true,
	})
	want := strings.Join([]string{
		"game.yaml:5:9: error SEM3002: argument 1 of DogGame::play: expected Dog, got Cat",
		" 5 |       - {method: play, on: $dogGame, args: [$cat]}",
		"   |         ^",
		"   = expected: Dog",
		"   = actual: Cat",
		"   = note game.yaml:5:9: in argument 1",
		"",
		"game.yaml:2: warning SEM3000: unused",
		" 2 |   - {name: Dog, kind: class}",
		"",
	}, "\n")
	if diff := cmp.Diff(want, buf.String()); diff != "" {
		t.Fatalf("pretty output (-want +got):\n%s", diff)
	}
}

func TestPrettyCaretCountsDisplayCells(t *testing.T) {
	src := NewFileSources()
	src.Add("m.yaml", []byte("名前: x\n"))
	bag := diag.NewBag(0)
	bag.Add(diag.NewError(diag.SynBadTypeExpr, source.Pos{File: "m.yaml", Line: 1, Col: 5}, "bad"))

	var buf bytes.Buffer
	Pretty(&buf, bag, src, PrettyOpts{ShowSource: true})
	lines := strings.Split(buf.String(), "\n")
	if len(lines) < 3 {
		t.Fatalf("unexpected output:\n%s", buf.String())
	}
	// "名前: " spans six cells.
	if want := "   |       ^"; lines[2] != want {
		t.Fatalf("caret line = %q, want %q", lines[2], want)
	}
}

func TestPrettyColorToggle(t *testing.T) {
	var plain, colored bytes.Buffer
	Pretty(&plain, sampleBag(), nil, PrettyOpts{})
	Pretty(&colored, sampleBag(), nil, PrettyOpts{Color: true})
	if strings.Contains(plain.String(), "\x1b[") {
		t.Fatal("plain output contains escape sequences")
	}
	if !strings.Contains(colored.String(), "\x1b[") {
		t.Fatal("colored output has no escape sequences")
	}
}

func TestPrettyReportsDroppedDiagnostics(t *testing.T) {
	bag := diag.NewBag(1)
	for i := 0; i < 3; i++ {
		bag.Add(diag.NewError(diag.SemaTypeMismatch, source.Pos{File: "m.yaml", Line: uint32(i + 1)}, "x"))
	}
	var buf bytes.Buffer
	Pretty(&buf, bag, nil, PrettyOpts{})
	if !strings.Contains(buf.String(), "... 2 more diagnostics not shown (limit 1)") {
		t.Fatalf("missing dropped summary:\n%s", buf.String())
	}
}

func TestJSONOutput(t *testing.T) {
	files := []FileReport{
		{Path: "/work/models/game.yaml", Bag: sampleBag()},
		{Path: "/work/models/empty.yaml", Bag: diag.NewBag(0), Cached: true},
	}
	var buf bytes.Buffer
	if err := JSON(&buf, files, JSONOpts{PathMode: PathModeBasename, IncludeNotes: true}); err != nil {
		t.Fatalf("json: %v", err)
	}
	var got DiagnosticsOutput
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v\n%s", err, buf.String())
	}
	want := DiagnosticsOutput{
		Files: []FileJSON{
			{
				Path: "game.yaml",
				Diagnostics: []DiagnosticJSON{
					{
						Severity: "error", Code: "SEM3002", Kind: "type-mismatch",
						Message:  "argument 1 of DogGame::play: expected Dog, got Cat",
						Location: LocationJSON{File: "game.yaml", Line: 5, Col: 9},
						Expected: "Dog", Actual: "Cat",
						Notes: []NoteJSON{{Message: "in argument 1", Location: LocationJSON{File: "game.yaml", Line: 5, Col: 9}}},
					},
					{
						Severity: "warning", Code: "SEM3000", Kind: "unknown",
						Message:  "unused",
						Location: LocationJSON{File: "game.yaml", Line: 2},
					},
				},
			},
			{Path: "empty.yaml", Cached: true, Diagnostics: []DiagnosticJSON{}},
		},
		Count:    2,
		Errors:   1,
		Warnings: 1,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("json (-want +got):\n%s", diff)
	}
}

func TestJSONMaxTrimsOutputOnly(t *testing.T) {
	out := BuildDiagnosticsOutput([]FileReport{{Path: "m.yaml", Bag: sampleBag()}}, JSONOpts{Max: 1})
	if len(out.Files[0].Diagnostics) != 1 || out.Files[0].Dropped != 1 || out.Count != 2 {
		t.Fatalf("unexpected trimming: %+v", out)
	}
}

func TestShortOutput(t *testing.T) {
	var buf bytes.Buffer
	files := []FileReport{{Path: "a", Bag: diag.NewBag(0)}, {Path: "b", Bag: sampleBag()}}
	if err := Short(&buf, files, false); err != nil {
		t.Fatalf("short: %v", err)
	}
	want := "error SEM3002 /work/models/game.yaml:5:9 argument 1 of DogGame::play: expected Dog, got Cat\n" +
		"warning SEM3000 /work/models/game.yaml:2 unused\n"
	if diff := cmp.Diff(want, buf.String()); diff != "" {
		t.Fatalf("short (-want +got):\n%s", diff)
	}
}

func TestSarifOutput(t *testing.T) {
	var buf bytes.Buffer
	meta := SarifRunMeta{ToolName: "gencheck", ToolVersion: "test", InvocationArgs: []string{"check"}, PathMode: PathModeBasename}
	if err := Sarif(&buf, []FileReport{{Path: "game.yaml", Bag: sampleBag()}}, meta); err != nil {
		t.Fatalf("sarif: %v", err)
	}
	var log sarifLog
	if err := json.Unmarshal(buf.Bytes(), &log); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if log.Version != sarifVersion || len(log.Runs) != 1 {
		t.Fatalf("unexpected log: %+v", log)
	}
	run := log.Runs[0]
	var rules []string
	for _, r := range run.Tool.Driver.Rules {
		rules = append(rules, r.ID)
	}
	if diff := cmp.Diff([]string{"SEM3000", "SEM3002"}, rules); diff != "" {
		t.Fatalf("rules (-want +got):\n%s", diff)
	}
	if len(run.Results) != 2 || run.Results[0].Level != "error" || run.Results[1].Level != "warning" {
		t.Fatalf("unexpected results: %+v", run.Results)
	}
	region := run.Results[0].Locations[0].PhysicalLocation.Region
	if region == nil || region.StartLine != 5 || region.StartColumn != 9 {
		t.Fatalf("unexpected region: %+v", region)
	}
	if run.Invocations[0].ExecutionSuccessful {
		t.Fatal("a run with errors is not successful")
	}
}

func TestFormatPath(t *testing.T) {
	tests := []struct {
		mode PathMode
		base string
		in   string
		want string
	}{
		{PathModeAuto, "", "models/game.yaml", "models/game.yaml"},
		{PathModeBasename, "", "/work/models/game.yaml", "game.yaml"},
		{PathModeRelative, "/work", "/work/models/game.yaml", "models/game.yaml"},
		{PathModeRelative, "/elsewhere", "/work/models/game.yaml", "/work/models/game.yaml"},
		{PathModeAbsolute, "", "/work/models/game.yaml", "/work/models/game.yaml"},
	}
	for _, tt := range tests {
		if got := formatPath(tt.in, tt.mode, tt.base); got != tt.want {
			t.Errorf("formatPath(%q, %d, %q) = %q, want %q", tt.in, tt.mode, tt.base, got, tt.want)
		}
	}
}
