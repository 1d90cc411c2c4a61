package main

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"gencheck/internal/diag"
	"gencheck/internal/diagfmt"
	"gencheck/internal/driver"
	"gencheck/internal/observ"
	"gencheck/internal/project"
	"gencheck/internal/solver"
	"gencheck/internal/source"
	"gencheck/internal/trace"
	"gencheck/internal/version"
)

var checkCmd = &cobra.Command{
	Use:   "check [flags] [model.yaml...]",
	Short: "Check program models for template constraint violations",
	Long: `Check lowers each model, registers its declarations and instantiations,
validates template bounds and infers template arguments along every flow.
Without arguments the [check].models globs of gencheck.toml are used.`,
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().String("config", "", "path to gencheck.toml (default: discovered upward from the working directory)")
	checkCmd.Flags().String("format", "", "output format (pretty|short|json|sarif)")
	checkCmd.Flags().Int("jobs", 0, "max flows checked in parallel (0=auto)")
	checkCmd.Flags().String("object-bound", "", "object bound policy for unbounded class-string templates (implicit|explicit)")
	checkCmd.Flags().Bool("no-cache", false, "do not read or write the diagnostics cache")
	checkCmd.Flags().Bool("with-notes", false, "include diagnostic notes in output")
	checkCmd.Flags().Bool("fullpath", false, "emit absolute file paths in output")
	checkCmd.Flags().Bool("show-types", false, "print the inferred type of every flow variable")
	checkCmd.Flags().String("sort", "emission", "diagnostic order (emission|position); position also folds exact duplicates")
}

// checkSettings is the merged view of gencheck.toml and command flags.
type checkSettings struct {
	cfg        project.Config
	format     string
	color      bool
	quiet      bool
	timings    bool
	withNotes  bool
	showTypes  bool
	useCache   bool
	ui         uiMode
	pathMode   diagfmt.PathMode
	positional bool
	driverOpts driver.Options
}

// loadProjectConfig loads --config or discovers gencheck.toml. The returned
// path is set whenever a file was involved, even when loading failed.
func loadProjectConfig(cmd *cobra.Command) (project.Config, string, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return project.Config{}, "", fmt.Errorf("failed to get config flag: %w", err)
	}
	if path == "" {
		wd, err := os.Getwd()
		if err != nil {
			return project.Config{}, "", fmt.Errorf("failed to get working directory: %w", err)
		}
		found, ok, err := project.FindConfig(wd)
		if err != nil {
			return project.Config{}, "", err
		}
		if !ok {
			return project.Default(), "", nil
		}
		path = found
	}
	cfg, err := project.LoadConfig(path)
	return cfg, path, err
}

// resolveCheckSettings applies command flags over cfg. Flags win only when
// given explicitly.
func resolveCheckSettings(cmd *cobra.Command, cfg project.Config) (checkSettings, error) {
	s := checkSettings{cfg: cfg, useCache: cfg.Cache.Enabled}
	flags := cmd.Flags()
	root := cmd.Root().PersistentFlags()

	s.format = cfg.Output.Format
	if flags.Changed("format") || s.format == "" {
		format, err := flags.GetString("format")
		if err != nil {
			return s, fmt.Errorf("failed to get format flag: %w", err)
		}
		s.format = strings.ToLower(format)
	}
	if s.format == "" {
		s.format = "pretty"
	}
	if !slices.Contains(project.Formats, s.format) {
		return s, fmt.Errorf("unknown format %q (expected %s)", s.format, strings.Join(project.Formats, "|"))
	}

	colorMode := cfg.Output.Color
	if root.Changed("color") || colorMode == "" {
		mode, err := root.GetString("color")
		if err != nil {
			return s, fmt.Errorf("failed to get color flag: %w", err)
		}
		colorMode = mode
	}
	s.color = colorEnabled(colorMode)

	jobs := cfg.Check.Jobs
	if flags.Changed("jobs") {
		v, err := flags.GetInt("jobs")
		if err != nil {
			return s, fmt.Errorf("failed to get jobs flag: %w", err)
		}
		if v < 0 {
			return s, fmt.Errorf("--jobs must not be negative")
		}
		jobs = v
	}

	maxDiagnostics, err := root.GetInt("max-diagnostics")
	if err != nil {
		return s, fmt.Errorf("failed to get max-diagnostics flag: %w", err)
	}
	if !root.Changed("max-diagnostics") && cfg.Check.MaxDiagnostics > 0 {
		maxDiagnostics = cfg.Check.MaxDiagnostics
	}

	policy := cfg.ObjectBound()
	if flags.Changed("object-bound") {
		v, err := flags.GetString("object-bound")
		if err != nil {
			return s, fmt.Errorf("failed to get object-bound flag: %w", err)
		}
		if policy, err = solver.ParseObjectBound(v); err != nil {
			return s, err
		}
	}

	noCache, err := flags.GetBool("no-cache")
	if err != nil {
		return s, fmt.Errorf("failed to get no-cache flag: %w", err)
	}
	s.useCache = s.useCache && !noCache

	if s.withNotes, err = flags.GetBool("with-notes"); err != nil {
		return s, fmt.Errorf("failed to get with-notes flag: %w", err)
	}
	if s.showTypes, err = flags.GetBool("show-types"); err != nil {
		return s, fmt.Errorf("failed to get show-types flag: %w", err)
	}
	fullPath, err := flags.GetBool("fullpath")
	if err != nil {
		return s, fmt.Errorf("failed to get fullpath flag: %w", err)
	}
	if fullPath {
		s.pathMode = diagfmt.PathModeAbsolute
	}
	order, err := flags.GetString("sort")
	if err != nil {
		return s, fmt.Errorf("failed to get sort flag: %w", err)
	}
	switch strings.ToLower(order) {
	case "emission":
	case "position":
		s.positional = true
	default:
		return s, fmt.Errorf("unknown sort order %q (expected emission|position)", order)
	}
	if s.quiet, err = root.GetBool("quiet"); err != nil {
		return s, fmt.Errorf("failed to get quiet flag: %w", err)
	}
	if s.timings, err = root.GetBool("timings"); err != nil {
		return s, fmt.Errorf("failed to get timings flag: %w", err)
	}
	uiValue, err := root.GetString("ui")
	if err != nil {
		return s, fmt.Errorf("failed to get ui flag: %w", err)
	}
	if s.ui, err = readUIMode(uiValue); err != nil {
		return s, err
	}

	s.driverOpts = driver.Options{
		ObjectBound:    policy,
		Jobs:           jobs,
		MaxDiagnostics: maxDiagnostics,
	}
	return s, nil
}

// runCheck executes the "check" command. It returns errFindings when any
// file has errors, after all output was written.
func runCheck(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	errOut := cmd.ErrOrStderr()
	ctx := cmd.Context()
	tracer := trace.FromContext(ctx)

	cfg, cfgPath, cfgErr := loadProjectConfig(cmd)
	if cfgErr != nil {
		// Report through the normal formatter so tools still get a document.
		format, _ := cmd.Flags().GetString("format")
		if format == "" {
			format = "pretty"
		}
		bag := diag.NewBag(0)
		diag.ReportError(diag.BagReporter{Bag: bag}, diag.ProjInvalidConfig, source.Pos{File: cfgPath}, cfgErr.Error()).Emit()
		s := checkSettings{format: format, color: colorEnabled("auto")}
		if err := writeReports(out, []diagfmt.FileReport{{Path: cfgPath, Bag: bag}}, s, args); err != nil {
			return err
		}
		return errFindings
	}

	s, err := resolveCheckSettings(cmd, cfg)
	if err != nil {
		return err
	}

	files := args
	if len(files) == 0 {
		if files, err = cfg.ModelFiles(); err != nil {
			return err
		}
	}
	if len(files) == 0 {
		return fmt.Errorf("no model files given and no [check].models in gencheck.toml")
	}

	if s.useCache {
		cache, err := driver.OpenDiskCache(cfg.CacheDir())
		if err != nil {
			trace.Point(tracer, trace.ScopeDriver, "cache-disabled", 0, err.Error())
			if !s.quiet {
				fmt.Fprintf(errOut, "warning: cache disabled: %v\n", err)
			}
		} else {
			s.driverOpts.Cache = cache
		}
	}
	var timer *observ.Timer
	if s.timings {
		timer = observ.NewTimer()
		s.driverOpts.Timer = timer
	}

	var results []*driver.Result
	if shouldUseTUI(s.ui) && !s.quiet {
		results, err = checkFilesWithUI(ctx, "gencheck check", files, s.driverOpts)
	} else {
		results, err = checkFiles(ctx, files, s.driverOpts, nil)
	}
	if err != nil {
		return fmt.Errorf("check failed: %w", err)
	}

	reports := make([]diagfmt.FileReport, 0, len(results))
	failed := false
	for _, r := range results {
		if s.positional {
			r.Bag.Sort()
			r.Bag.Dedup()
		}
		reports = append(reports, diagfmt.FileReport{Path: r.Path, Cached: r.Cached, Bag: r.Bag})
		failed = failed || r.Bag.HasErrors()
	}
	if err := writeReports(out, reports, s, args); err != nil {
		return err
	}
	if s.showTypes && (s.format == "pretty" || s.format == "short") {
		printFlowTypes(out, results)
	}
	if timer != nil {
		fmt.Fprint(errOut, timer.Summary())
	}
	if !s.quiet && s.format == "pretty" {
		printSummary(errOut, results)
	}
	if failed {
		return errFindings
	}
	return nil
}

func writeReports(out io.Writer, reports []diagfmt.FileReport, s checkSettings, args []string) error {
	switch s.format {
	case "pretty":
		src := diagfmt.NewFileSources()
		opts := diagfmt.PrettyOpts{
			Color:      s.color,
			PathMode:   s.pathMode,
			ShowNotes:  s.withNotes,
			ShowTypes:  true,
			ShowSource: true,
		}
		for _, r := range reports {
			if r.Bag == nil || r.Bag.Len() == 0 {
				continue
			}
			diagfmt.Pretty(out, r.Bag, src, opts)
		}
		return nil
	case "short":
		return diagfmt.Short(out, reports, s.withNotes)
	case "json":
		return diagfmt.JSON(out, reports, diagfmt.JSONOpts{
			PathMode:     s.pathMode,
			IncludeNotes: s.withNotes,
			Indent:       true,
		})
	case "sarif":
		return diagfmt.Sarif(out, reports, diagfmt.SarifRunMeta{
			ToolName:       "gencheck",
			ToolVersion:    version.Version,
			InvocationArgs: append([]string{"check"}, args...),
			PathMode:       s.pathMode,
		})
	default:
		return fmt.Errorf("unknown format: %s", s.format)
	}
}

// printFlowTypes lists the final type of each flow variable. Cached results
// carry no flows and are skipped.
func printFlowTypes(out io.Writer, results []*driver.Result) {
	for _, r := range results {
		for _, f := range r.Flows {
			fmt.Fprintf(out, "%s: flow %s\n", r.Path, f.Name)
			for _, v := range f.SortedVars() {
				fmt.Fprintf(out, "  %s\n", v)
			}
		}
	}
}

func printSummary(out io.Writer, results []*driver.Result) {
	var errs, warns, cached int
	for _, r := range results {
		for _, d := range r.Bag.Items() {
			switch d.Severity {
			case diag.SevError:
				errs++
			case diag.SevWarning:
				warns++
			}
		}
		if r.Cached {
			cached++
		}
	}
	fmt.Fprintf(out, "checked %d file(s), %d cached: %d error(s), %d warning(s)\n", len(results), cached, errs, warns)
}
