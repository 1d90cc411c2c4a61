package diagfmt

import (
	"encoding/json"
	"io"
	"strings"

	"gencheck/internal/diag"
	"gencheck/internal/source"
)

// LocationJSON is a position in a model file.
type LocationJSON struct {
	File string `json:"file"`
	Line uint32 `json:"line,omitempty"`
	Col  uint32 `json:"col,omitempty"`
}

// NoteJSON is an attached note.
type NoteJSON struct {
	Message  string       `json:"message"`
	Location LocationJSON `json:"location"`
}

// DiagnosticJSON is one finding. Kind is the stable spelled-out form of
// Code; Expected, Actual and Param are omitted when the finding has none.
type DiagnosticJSON struct {
	Severity string       `json:"severity"`
	Code     string       `json:"code"`
	Kind     string       `json:"kind"`
	Message  string       `json:"message"`
	Location LocationJSON `json:"location"`
	Expected string       `json:"expected,omitempty"`
	Actual   string       `json:"actual,omitempty"`
	Param    string       `json:"param,omitempty"`
	Notes    []NoteJSON   `json:"notes,omitempty"`
}

// FileJSON groups the findings of one model file.
type FileJSON struct {
	Path        string           `json:"path"`
	Cached      bool             `json:"cached,omitempty"`
	Diagnostics []DiagnosticJSON `json:"diagnostics"`
	Dropped     int              `json:"dropped,omitempty"`
}

// DiagnosticsOutput is the root of the JSON output.
type DiagnosticsOutput struct {
	Files    []FileJSON `json:"files"`
	Count    int        `json:"count"`
	Errors   int        `json:"errors"`
	Warnings int        `json:"warnings"`
}

// FileReport is what the formatters need from one checked file.
type FileReport struct {
	Path   string
	Cached bool
	Bag    *diag.Bag
}

func makeLocation(pos source.Pos, opts JSONOpts) LocationJSON {
	return LocationJSON{File: formatPath(pos.File, opts.PathMode, opts.BaseDir), Line: pos.Line, Col: pos.Col}
}

// BuildDiagnosticsOutput assembles the JSON document without encoding it.
func BuildDiagnosticsOutput(files []FileReport, opts JSONOpts) DiagnosticsOutput {
	out := DiagnosticsOutput{Files: make([]FileJSON, 0, len(files))}
	for _, f := range files {
		fj := FileJSON{
			Path:        formatPath(f.Path, opts.PathMode, opts.BaseDir),
			Cached:      f.Cached,
			Diagnostics: []DiagnosticJSON{},
		}
		var items []diag.Diagnostic
		if f.Bag != nil {
			items = f.Bag.Items()
			fj.Dropped = f.Bag.Dropped()
		}
		for _, d := range items {
			switch d.Severity {
			case diag.SevError:
				out.Errors++
			case diag.SevWarning:
				out.Warnings++
			}
			out.Count++
			if opts.Max > 0 && len(fj.Diagnostics) >= opts.Max {
				fj.Dropped++
				continue
			}
			dj := DiagnosticJSON{
				Severity: strings.ToLower(d.Severity.String()),
				Code:     d.Code.ID(),
				Kind:     d.Code.Kind(),
				Message:  d.Message,
				Location: makeLocation(d.Primary, opts),
				Expected: d.Expected,
				Actual:   d.Actual,
				Param:    d.Param,
			}
			if opts.IncludeNotes {
				for _, n := range d.Notes {
					dj.Notes = append(dj.Notes, NoteJSON{Message: n.Msg, Location: makeLocation(n.Pos.Or(d.Primary), opts)})
				}
			}
			fj.Diagnostics = append(fj.Diagnostics, dj)
		}
		out.Files = append(out.Files, fj)
	}
	return out
}

// JSON encodes the findings of files to w.
func JSON(w io.Writer, files []FileReport, opts JSONOpts) error {
	enc := json.NewEncoder(w)
	if opts.Indent {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(BuildDiagnosticsOutput(files, opts))
}

// Short writes the one-line-per-finding form of every file, in order.
func Short(w io.Writer, files []FileReport, includeNotes bool) error {
	for _, f := range files {
		if f.Bag == nil || f.Bag.Len() == 0 {
			continue
		}
		if _, err := io.WriteString(w, diag.FormatShortDiagnostics(f.Bag.Items(), includeNotes)+"\n"); err != nil {
			return err
		}
	}
	return nil
}
