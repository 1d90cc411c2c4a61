package diagfmt

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"

	"gencheck/internal/diag"
	"gencheck/internal/source"
)

// Sources returns the text of a model line for source quotes.
type Sources interface {
	Line(path string, line uint32) (string, bool)
}

// FileSources reads model files from disk on first use and keeps their
// lines. It is not safe for concurrent use.
type FileSources struct {
	files map[string][]string
}

func NewFileSources() *FileSources {
	return &FileSources{files: make(map[string][]string)}
}

// Add registers content for path, replacing whatever was read before.
func (s *FileSources) Add(path string, content []byte) {
	s.files[path] = strings.Split(strings.ReplaceAll(string(content), "\r\n", "\n"), "\n")
}

func (s *FileSources) Line(path string, line uint32) (string, bool) {
	lines, ok := s.files[path]
	if !ok {
		lines = readLines(path)
		s.files[path] = lines
	}
	if line == 0 || int(line) > len(lines) {
		return "", false
	}
	return lines[line-1], true
}

func readLines(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	var out []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		out = append(out, sc.Text())
	}
	return out
}

type palette struct {
	err, warn, info, code, path, gutter, caret, label *color.Color
}

func newPalette(enabled bool) palette {
	p := palette{
		err:    color.New(color.FgRed, color.Bold),
		warn:   color.New(color.FgYellow, color.Bold),
		info:   color.New(color.FgCyan, color.Bold),
		code:   color.New(color.Bold),
		path:   color.New(color.FgWhite, color.Bold),
		gutter: color.New(color.FgBlue),
		caret:  color.New(color.FgRed, color.Bold),
		label:  color.New(color.FgCyan),
	}
	for _, c := range []*color.Color{p.err, p.warn, p.info, p.code, p.path, p.gutter, p.caret, p.label} {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

func (p palette) severity(sev diag.Severity) *color.Color {
	switch sev {
	case diag.SevError:
		return p.err
	case diag.SevWarning:
		return p.warn
	default:
		return p.info
	}
}

// Pretty writes every diagnostic of bag in the order it holds them:
//
//	game.yaml:42:9: error SEM3002: argument 1 of DogGame::play: expected Dog, got Cat
//	   42 |       - {method: play, on: $dogGame, args: [$cat]}
//	      |         ^
//	      = expected: Dog
//	      = actual: Cat
//
// src may be nil when no source quotes are wanted.
func Pretty(w io.Writer, bag *diag.Bag, src Sources, opts PrettyOpts) {
	if bag == nil {
		return
	}
	p := newPalette(opts.Color)
	bw := bufio.NewWriter(w)
	defer bw.Flush()
	for i, d := range bag.Items() {
		if i > 0 {
			bw.WriteByte('\n')
		}
		writePretty(bw, d, src, opts, p)
	}
	if n := bag.Dropped(); n > 0 {
		fmt.Fprintf(bw, "\n%s\n", p.label.Sprintf("... %d more diagnostics not shown (limit %d)", n, bag.Cap()))
	}
}

func writePretty(w *bufio.Writer, d diag.Diagnostic, src Sources, opts PrettyOpts, p palette) {
	fmt.Fprintf(w, "%s: %s %s: %s\n",
		p.path.Sprint(position(d.Primary, opts.PathMode, opts.BaseDir)),
		p.severity(d.Severity).Sprint(strings.ToLower(d.Severity.String())),
		p.code.Sprint(d.Code.ID()),
		d.Message)

	gutter := len(fmt.Sprint(d.Primary.Line))
	if opts.ShowSource && src != nil {
		writeQuote(w, d.Primary, src, opts, p, gutter)
	}
	pad := strings.Repeat(" ", gutter+2)
	if opts.ShowTypes {
		if d.Expected != "" {
			fmt.Fprintf(w, "%s%s expected: %s\n", pad, p.gutter.Sprint("="), d.Expected)
		}
		if d.Actual != "" {
			fmt.Fprintf(w, "%s%s actual: %s\n", pad, p.gutter.Sprint("="), d.Actual)
		}
		if d.Param != "" {
			fmt.Fprintf(w, "%s%s template: %s\n", pad, p.gutter.Sprint("="), d.Param)
		}
	}
	if !opts.ShowNotes {
		return
	}
	for _, n := range d.Notes {
		at := n.Pos.Or(d.Primary)
		fmt.Fprintf(w, "%s%s %s %s: %s\n", pad, p.gutter.Sprint("="),
			p.label.Sprint("note"), position(at, opts.PathMode, opts.BaseDir), n.Msg)
	}
}

// writeQuote prints the primary line with a caret under the column. The
// caret offset is measured in display cells so wide runes line up.
func writeQuote(w *bufio.Writer, pos source.Pos, src Sources, opts PrettyOpts, p palette, gutter int) {
	line, ok := src.Line(pos.File, pos.Line)
	if !ok {
		return
	}
	line = strings.ReplaceAll(line, "\t", "    ")
	if opts.Width > 0 {
		line = runewidth.Truncate(line, opts.Width, "...")
	}
	num := fmt.Sprintf("%*d", gutter+1, pos.Line)
	blank := strings.Repeat(" ", gutter+1)
	fmt.Fprintf(w, "%s %s %s\n", p.gutter.Sprint(num), p.gutter.Sprint("|"), line)
	if pos.Col == 0 {
		return
	}
	prefix := line
	if runes := []rune(line); int(pos.Col)-1 <= len(runes) {
		prefix = string(runes[:pos.Col-1])
	}
	offset := runewidth.StringWidth(prefix)
	fmt.Fprintf(w, "%s %s %s%s\n", blank, p.gutter.Sprint("|"), strings.Repeat(" ", offset), p.caret.Sprint("^"))
}

func position(pos source.Pos, mode PathMode, base string) string {
	if pos.File == "" {
		return pos.String()
	}
	pos.File = formatPath(pos.File, mode, base)
	return pos.String()
}
