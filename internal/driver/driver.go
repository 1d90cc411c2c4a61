// Package driver runs the checking pipeline over a program model: lowering,
// registration of declarations and instantiations, validation, and the
// parallel check of flows against the frozen registry.
package driver

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"gencheck/internal/diag"
	"gencheck/internal/model"
	"gencheck/internal/observ"
	"gencheck/internal/project"
	"gencheck/internal/sema"
	"gencheck/internal/solver"
	"gencheck/internal/source"
	"gencheck/internal/symbols"
	"gencheck/internal/trace"
	"gencheck/internal/types"
)

// Options configure a run.
type Options struct {
	ObjectBound solver.ObjectBound
	// Jobs caps concurrently checked flows; 0 means GOMAXPROCS.
	Jobs int
	// MaxDiagnostics caps the diagnostics kept per file; 0 means no cap.
	MaxDiagnostics int
	// Cache, when set, stores diagnostics per model content and options.
	Cache    *DiskCache
	Timer    *observ.Timer
	Observer PhaseObserver
}

// FlowResult is the outcome of one flow.
type FlowResult struct {
	Name string
	// Vars maps each variable, without "$", to its rendered final type.
	Vars map[string]string
	Bag  *diag.Bag
}

// Result is the outcome of checking one model file.
type Result struct {
	Path string
	// Bag holds registration diagnostics followed by flow diagnostics in
	// flow order.
	Bag *diag.Bag
	// Table and Flows are nil when the result came from the cache.
	Table  *symbols.Table
	Flows  []FlowResult
	Cached bool
	Digest project.Digest
}

type runner struct {
	path   string
	opts   Options
	tracer trace.Tracer
	parent uint64
}

func (r *runner) phase(name string, fn func() string) {
	if r.opts.Observer != nil {
		r.opts.Observer(PhaseEvent{Path: r.path, Name: name, Status: PhaseStart})
	}
	span := trace.Begin(r.tracer, trace.ScopePass, name, r.parent)
	done := r.opts.Timer.Track(name)
	start := time.Now()
	note := fn()
	done(note)
	span.End(note)
	if r.opts.Observer != nil {
		r.opts.Observer(PhaseEvent{Path: r.path, Name: name, Status: PhaseEnd, Elapsed: time.Since(start)})
	}
}

// Run checks prog. Analysis findings go to the result's bag; an error is
// returned only when ctx is cancelled.
func Run(ctx context.Context, prog *model.Program, opts Options) (*Result, error) {
	tracer := trace.FromContext(ctx)
	span := trace.Begin(tracer, trace.ScopeDriver, "run", trace.CurrentSpan(ctx)).WithExtra("path", prog.Path)
	defer span.End("")
	ctx = trace.WithSpan(ctx, span.ID())

	r := &runner{path: prog.Path, opts: opts, tracer: tracer, parent: span.ID()}
	bag := diag.NewBag(opts.MaxDiagnostics)
	rep := diag.BagReporter{Bag: bag}
	in := types.NewInterner()

	var unit *model.Unit
	r.phase("lower", func() string {
		unit = model.Lower(prog, in, rep)
		return fmt.Sprintf("decls=%d insts=%d flows=%d", len(unit.Decls), len(unit.Insts), len(unit.Flows))
	})

	hint := uint(len(unit.Decls))
	tab := symbols.NewTable(in, symbols.Options{ObjectBound: opts.ObjectBound, Hint: hint})
	r.phase("register", func() string {
		for _, d := range unit.Decls {
			tab.Register(d, rep)
		}
		ok := 0
		for _, inst := range unit.Insts {
			if tab.RegisterInstantiation(inst, rep) {
				ok++
			}
		}
		return fmt.Sprintf("decls=%d insts=%d/%d", tab.Len(), ok, len(unit.Insts))
	})
	r.phase("validate", func() string {
		before := bag.Len()
		tab.Validate(rep)
		return fmt.Sprintf("diags=%d", bag.Len()-before)
	})
	tab.Freeze()

	var (
		flows []FlowResult
		err   error
	)
	r.phase("check", func() string {
		flows, err = r.checkFlows(ctx, tab, unit.Flows)
		return fmt.Sprintf("flows=%d", len(unit.Flows))
	})
	if err != nil {
		return nil, err
	}
	for _, f := range flows {
		bag.Merge(f.Bag)
	}
	return &Result{Path: prog.Path, Bag: bag, Table: tab, Flows: flows}, nil
}

// checkFlows checks every flow concurrently. Each flow reports into its own
// bag so the merged order never depends on scheduling.
func (r *runner) checkFlows(ctx context.Context, tab *symbols.Table, flows []sema.Flow) ([]FlowResult, error) {
	results := make([]FlowResult, len(flows))
	if len(flows) == 0 {
		return results, nil
	}
	jobs := r.opts.Jobs
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(jobs, len(flows)))
	for i := range flows {
		g.Go(func() error {
			flow := &flows[i]
			span := trace.Begin(r.tracer, trace.ScopeFlow, "flow", r.parent).WithExtra("flow", flow.Name)
			bag := diag.NewBag(0)
			res, err := sema.Check(trace.WithSpan(gctx, span.ID()), flow, sema.Options{
				Reporter: diag.BagReporter{Bag: bag},
				Table:    tab,
			})
			span.End(fmt.Sprintf("diags=%d", bag.Len()))
			if err != nil {
				return fmt.Errorf("flow %s: %w", flow.Name, err)
			}
			vars := make(map[string]string, len(res.Vars))
			for name, id := range res.Vars {
				vars[name] = tab.Types.Format(id)
			}
			results[i] = FlowResult{Name: flow.Name, Vars: vars, Bag: bag}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// RunFile reads, decodes and checks the model at path, consulting the cache
// when one is configured. A file that cannot be read or decoded yields a
// result carrying a single IO4001 diagnostic.
func RunFile(ctx context.Context, path string, opts Options) (*Result, error) {
	path = source.NormalizePath(path)
	data, err := os.ReadFile(path)
	if err != nil {
		return loadFailure(path, opts, err), nil
	}
	key := cacheKey(data, opts)
	if payload, ok := opts.Cache.lookup(key); ok {
		bag := diag.NewBag(opts.MaxDiagnostics)
		for _, d := range payload.Diagnostics {
			bag.Add(d)
		}
		return &Result{Path: path, Bag: bag, Cached: true, Digest: key}, nil
	}
	prog, err := model.Decode(path, data)
	if err != nil {
		return loadFailure(path, opts, err), nil
	}
	res, err := Run(ctx, prog, opts)
	if err != nil {
		return nil, err
	}
	res.Digest = key
	if opts.Cache != nil {
		if err := opts.Cache.Put(key, newPayload(path, res.Bag)); err != nil {
			trace.Point(trace.FromContext(ctx), trace.ScopeDriver, "cache-write-failed", trace.CurrentSpan(ctx), err.Error())
		}
	}
	return res, nil
}

// RunFiles checks each file in order and returns one result per file.
func RunFiles(ctx context.Context, paths []string, opts Options) ([]*Result, error) {
	out := make([]*Result, 0, len(paths))
	for _, p := range paths {
		res, err := RunFile(ctx, p, opts)
		if err != nil {
			return out, err
		}
		out = append(out, res)
	}
	return out, nil
}

func loadFailure(path string, opts Options, err error) *Result {
	bag := diag.NewBag(opts.MaxDiagnostics)
	diag.ReportError(diag.BagReporter{Bag: bag}, diag.IOLoadFileError, source.Pos{File: path}, err.Error()).Emit()
	return &Result{Path: path, Bag: bag}
}

// SortedVars returns the flow's variables sorted by name, rendered "$name: type".
func (f FlowResult) SortedVars() []string {
	out := make([]string, 0, len(f.Vars))
	for name, t := range f.Vars {
		out = append(out, "$"+name+": "+t)
	}
	sort.Strings(out)
	return out
}
