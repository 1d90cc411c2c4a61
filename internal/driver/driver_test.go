package driver

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"gencheck/internal/diag"
	"gencheck/internal/model"
	"gencheck/internal/solver"
	"gencheck/internal/testkit"
)

type finding struct {
	Line int
	Code string
}

// expectations gathers the expect codes written anywhere in prog.
func expectations(prog *model.Program) []finding {
	var out []finding
	add := func(line int, codes model.Codes) {
		for _, c := range codes {
			out = append(out, finding{Line: line, Code: c.ID()})
		}
	}
	var site func(s *model.SiteSpec)
	operand := func(op *model.Operand) {
		if op != nil && op.Site != nil {
			site(op.Site)
		}
	}
	site = func(s *model.SiteSpec) {
		add(s.Line, s.Expect)
		for _, op := range []*model.Operand{s.Iterate, s.Send, s.GetReturn, s.Return, s.Yield, s.YieldKey, s.On, s.Value} {
			operand(op)
		}
		for i := range s.Args {
			operand(&s.Args[i])
		}
	}
	params := func(ps []model.ParamSpec) {
		for _, p := range ps {
			add(p.Line, p.Expect)
		}
	}
	templates := func(ts []model.TemplateSpec) {
		for _, t := range ts {
			add(t.Line, t.Expect)
		}
	}
	for _, d := range prog.Declarations {
		add(d.Line, d.Expect)
		templates(d.Templates)
		for _, r := range append(append([]model.TypeRef(nil), d.Implement...), d.Extend...) {
			add(r.Line, r.Expect)
		}
		params(d.Params)
		for _, m := range d.Methods {
			add(m.Line, m.Expect)
			templates(m.Templates)
			params(m.Params)
		}
		for _, p := range d.Properties {
			add(p.Line, p.Expect)
		}
	}
	for _, f := range prog.Flows {
		for i := range f.Sites {
			site(&f.Sites[i])
		}
	}
	return sortFindings(out)
}

func reported(res *Result) []finding {
	var out []finding
	for _, d := range res.Bag.Items() {
		out = append(out, finding{Line: int(d.Primary.Line), Code: d.Code.ID()})
	}
	return sortFindings(out)
}

func sortFindings(fs []finding) []finding {
	sort.Slice(fs, func(i, j int) bool {
		if fs[i].Line != fs[j].Line {
			return fs[i].Line < fs[j].Line
		}
		return fs[i].Code < fs[j].Code
	})
	return fs
}

func TestFixtures(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("testdata", "*.yaml"))
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(paths) == 0 {
		t.Fatal("no fixtures found")
	}
	explicit := map[string]bool{"class_string_edgecase_explicit.yaml": true}

	for _, path := range paths {
		name := filepath.Base(path)
		t.Run(strings.TrimSuffix(name, ".yaml"), func(t *testing.T) {
			prog, err := model.Load(path)
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			opts := Options{Jobs: 2}
			if explicit[name] {
				opts.ObjectBound = solver.ObjectBoundExplicit
			}
			res, err := Run(context.Background(), prog, opts)
			if err != nil {
				t.Fatalf("run: %v", err)
			}
			if err := testkit.CheckTableInvariants(res.Table); err != nil {
				t.Fatalf("table invariants: %v", err)
			}
			want, got := expectations(prog), reported(res)
			if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
				t.Fatalf("diagnostics (-want +got):\n%s\n%s", diff, diag.FormatShortDiagnostics(res.Bag.Items(), false))
			}
		})
	}
}

func TestFlowVariables(t *testing.T) {
	res, err := RunFile(context.Background(), filepath.Join("testdata", "class_string_templates.yaml"), Options{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(res.Flows) != 1 {
		t.Fatalf("flows = %d, want 1", len(res.Flows))
	}
	want := []string{`$dog: Entities\Dog`, `$person: Entities\Person`}
	if diff := cmp.Diff(want, res.Flows[0].SortedVars()); diff != "" {
		t.Fatalf("vars (-want +got):\n%s", diff)
	}

	res, err = RunFile(context.Background(), filepath.Join("testdata", "generator_full.yaml"), Options{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	want = []string{"$key: int", "$value: string"}
	if diff := cmp.Diff(want, res.Flows[0].SortedVars()); diff != "" {
		t.Fatalf("loop vars (-want +got):\n%s", diff)
	}
	if got := res.Flows[1].Vars["person"]; got != "Person" {
		t.Fatalf("getReturn bound %q, want Person", got)
	}
}

func TestOutputDoesNotDependOnJobs(t *testing.T) {
	prog, err := model.Load(filepath.Join("testdata", "arrays.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	var outputs []string
	for _, jobs := range []int{1, 3, 16} {
		res, err := Run(context.Background(), prog, Options{Jobs: jobs})
		if err != nil {
			t.Fatalf("run with %d jobs: %v", jobs, err)
		}
		outputs = append(outputs, diag.FormatShortDiagnostics(res.Bag.Items(), true))
	}
	for i := 1; i < len(outputs); i++ {
		if outputs[i] != outputs[0] {
			t.Fatalf("output differs between runs:\n%s\n---\n%s", outputs[0], outputs[i])
		}
	}
}

func TestFlowDiagnosticsKeepFlowOrder(t *testing.T) {
	res, err := RunFile(context.Background(), filepath.Join("testdata", "template_class_param.yaml"), Options{Jobs: 4})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	items := res.Bag.Items()
	if len(items) != 2 {
		t.Fatalf("want 2 diagnostics, got:\n%s", diag.FormatShortDiagnostics(items, false))
	}
	if !strings.Contains(items[0].Message, "takesString") || !strings.Contains(items[1].Message, "takesIntValueHolder") {
		t.Fatalf("unexpected order:\n%s", diag.FormatShortDiagnostics(items, false))
	}
}

func TestMaxDiagnosticsCapsTheBag(t *testing.T) {
	res, err := RunFile(context.Background(), filepath.Join("testdata", "arrays.yaml"), Options{MaxDiagnostics: 3})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Bag.Len() != 3 || res.Bag.Dropped() == 0 {
		t.Fatalf("len=%d dropped=%d", res.Bag.Len(), res.Bag.Dropped())
	}
}

func TestPhaseObserver(t *testing.T) {
	var events []string
	opts := Options{Observer: func(ev PhaseEvent) {
		status := "start"
		if ev.Status == PhaseEnd {
			status = "end"
		}
		events = append(events, ev.Name+":"+status)
	}}
	if _, err := RunFile(context.Background(), filepath.Join("testdata", "template_function.yaml"), opts); err != nil {
		t.Fatalf("run: %v", err)
	}
	want := []string{
		"lower:start", "lower:end",
		"register:start", "register:end",
		"validate:start", "validate:end",
		"check:start", "check:end",
	}
	if diff := cmp.Diff(want, events); diff != "" {
		t.Fatalf("events (-want +got):\n%s", diff)
	}
}

func TestRunHonoursCancellation(t *testing.T) {
	prog, err := model.Load(filepath.Join("testdata", "arrays.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Run(ctx, prog, Options{}); err == nil {
		t.Fatal("expected an error from a cancelled run")
	}
}

func TestRunFileReportsLoadFailures(t *testing.T) {
	dir := t.TempDir()
	broken := filepath.Join(dir, "broken.yaml")
	if err := os.WriteFile(broken, []byte("declarations: [\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	unknown := filepath.Join(dir, "unknown.yaml")
	if err := os.WriteFile(unknown, []byte("declarations:\n  - {name: A, kind: class, colour: red}\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	for _, path := range []string{filepath.Join(dir, "missing.yaml"), broken, unknown} {
		res, err := RunFile(context.Background(), path, Options{})
		if err != nil {
			t.Fatalf("%s: %v", path, err)
		}
		items := res.Bag.Items()
		if len(items) != 1 || items[0].Code != diag.IOLoadFileError {
			t.Fatalf("%s: want one IO4001, got:\n%s", path, diag.FormatShortDiagnostics(items, false))
		}
		if res.Table != nil || res.Flows != nil {
			t.Fatalf("%s: load failure should not produce a table", path)
		}
	}
}

func TestDiskCacheReplaysDiagnostics(t *testing.T) {
	dir := t.TempDir()
	src, err := os.ReadFile(filepath.Join("testdata", "animal_game.yaml"))
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	path := filepath.Join(dir, "game.yaml")
	if err := os.WriteFile(path, src, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cache, err := OpenDiskCache(filepath.Join(dir, "cache"))
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	opts := Options{Cache: cache}

	first, err := RunFile(context.Background(), path, opts)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if first.Cached || first.Digest.IsZero() {
		t.Fatalf("first run: cached=%v digest=%s", first.Cached, first.Digest)
	}
	second, err := RunFile(context.Background(), path, opts)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if !second.Cached || second.Digest != first.Digest {
		t.Fatalf("second run should hit the cache: cached=%v", second.Cached)
	}
	if diff := cmp.Diff(first.Bag.Items(), second.Bag.Items(), cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("replayed diagnostics (-first +second):\n%s", diff)
	}

	opts.ObjectBound = solver.ObjectBoundExplicit
	third, err := RunFile(context.Background(), path, opts)
	if err != nil {
		t.Fatalf("third run: %v", err)
	}
	if third.Cached {
		t.Fatal("a different policy must not reuse the cached result")
	}

	if err := os.WriteFile(path, append(src, '\n'), 0o600); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	fourth, err := RunFile(context.Background(), path, Options{Cache: cache})
	if err != nil {
		t.Fatalf("fourth run: %v", err)
	}
	if fourth.Cached {
		t.Fatal("changed content must not reuse the cached result")
	}

	if err := cache.DropAll(); err != nil {
		t.Fatalf("drop: %v", err)
	}
	fifth, err := RunFile(context.Background(), path, Options{Cache: cache})
	if err != nil {
		t.Fatalf("fifth run: %v", err)
	}
	if fifth.Cached {
		t.Fatal("dropped cache must miss")
	}
}

func TestNilCacheIsInert(t *testing.T) {
	var c *DiskCache
	if c.Dir() != "" {
		t.Fatal("nil cache has no dir")
	}
	if err := c.Put(cacheKey([]byte("x"), Options{}), &DiskPayload{}); err != nil {
		t.Fatalf("put on nil cache: %v", err)
	}
	if _, ok := c.lookup(cacheKey([]byte("x"), Options{})); ok {
		t.Fatal("nil cache cannot hit")
	}
}
