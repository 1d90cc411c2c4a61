// Package diagfmt renders diagnostics for people and tools: a pretty form
// with source context, the one-line short form, JSON and SARIF.
package diagfmt

import (
	"path/filepath"
	"strings"
)

// PathMode specifies how file paths are displayed.
type PathMode uint8

const (
	// PathModeAuto keeps paths as given.
	PathModeAuto PathMode = iota
	// PathModeAbsolute always uses absolute paths.
	PathModeAbsolute
	PathModeRelative
	PathModeBasename
)

// PrettyOpts configures pretty-printing of diagnostics.
type PrettyOpts struct {
	Color    bool
	PathMode PathMode
	// BaseDir anchors PathModeRelative; empty means the working directory.
	BaseDir string
	// Width truncates quoted source lines; 0 means no limit.
	Width     int
	ShowNotes bool
	// ShowTypes prints the expected and actual types and the template
	// parameter a finding carries.
	ShowTypes bool
	// ShowSource quotes the model line under each finding.
	ShowSource bool
}

// JSONOpts configures JSON output of diagnostics.
type JSONOpts struct {
	PathMode     PathMode
	BaseDir      string
	Max          int // trims the output, not the bag
	IncludeNotes bool
	Indent       bool
}

// SarifRunMeta provides metadata for SARIF output.
type SarifRunMeta struct {
	ToolName       string
	ToolVersion    string
	InvocationArgs []string
	PathMode       PathMode
	BaseDir        string
}

func formatPath(path string, mode PathMode, base string) string {
	if path == "" {
		return path
	}
	switch mode {
	case PathModeAbsolute:
		if abs, err := filepath.Abs(path); err == nil {
			return filepath.ToSlash(abs)
		}
	case PathModeRelative:
		if base == "" {
			base = "."
		}
		absBase, errBase := filepath.Abs(base)
		absPath, errPath := filepath.Abs(path)
		if errBase == nil && errPath == nil {
			if rel, err := filepath.Rel(absBase, absPath); err == nil && !strings.HasPrefix(rel, "..") {
				return filepath.ToSlash(rel)
			}
		}
	case PathModeBasename:
		return filepath.Base(path)
	}
	return filepath.ToSlash(path)
}
