package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"gencheck/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "gencheck",
	Short: "Generic type constraint checker for program models",
	Long:  `gencheck validates template bounds and infers template arguments over YAML program models`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		stopProfiling, err := setupProfiling(cmd)
		if err != nil {
			return err
		}
		cleanupTrace, err := setupTracing(cmd)
		if err != nil {
			stopProfiling()
			return err
		}
		runCleanup = func() {
			cleanupTrace()
			stopProfiling()
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		finishRun()
	},
}

// runCleanup flushes the tracer and stops the profilers installed by
// PersistentPreRunE. Cobra skips PersistentPostRun when RunE fails, so main
// calls it too.
var runCleanup func()

func finishRun() {
	if runCleanup != nil {
		runCleanup()
		runCleanup = nil
	}
}

// errFindings signals that diagnostics with errors were printed; the
// process exits 1 without an extra message.
var errFindings = errors.New("errors found")

func init() {
	rootCmd.Version = version.Version
	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true

	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(typesCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(versionCmd)

	rootCmd.PersistentFlags().String("color", "auto", "colorize output (auto|on|off)")
	rootCmd.PersistentFlags().Bool("quiet", false, "suppress non-essential output")
	rootCmd.PersistentFlags().Bool("timings", false, "show timing information")
	rootCmd.PersistentFlags().Int("max-diagnostics", 100, "maximum number of diagnostics to keep per file")
	rootCmd.PersistentFlags().String("ui", "off", "progress UI (auto|on|off)")

	rootCmd.PersistentFlags().String("trace", "", "trace output file (- for stderr)")
	rootCmd.PersistentFlags().String("trace-level", "off", "trace level (off|error|phase|detail|debug)")
	rootCmd.PersistentFlags().String("trace-mode", "stream", "trace storage mode (stream|ring|both)")
	rootCmd.PersistentFlags().String("trace-format", "auto", "trace format (auto|text|ndjson)")
	rootCmd.PersistentFlags().Int("trace-ring-size", 4096, "events kept by the ring tracer")
	rootCmd.PersistentFlags().Duration("trace-heartbeat", 0, "heartbeat interval (0 disables)")

	rootCmd.PersistentFlags().String("cpu-profile", "", "write a CPU profile to file")
	rootCmd.PersistentFlags().String("mem-profile", "", "write a heap profile to file on exit")
	rootCmd.PersistentFlags().String("runtime-trace", "", "write a Go runtime trace to file")
}

// main runs the root command. Any error, including errFindings, exits 1.
func main() {
	err := rootCmd.Execute()
	finishRun()
	if err != nil {
		if !errors.Is(err, errFindings) {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(1)
	}
}

// isTerminal reports whether f is attached to a terminal.
func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// colorEnabled resolves an auto|on|off colour mode against stdout.
func colorEnabled(mode string) bool {
	switch mode {
	case "on":
		return true
	case "off":
		return false
	default:
		return isTerminal(os.Stdout)
	}
}
