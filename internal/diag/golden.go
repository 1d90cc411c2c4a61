package diag

import (
	"fmt"
	"strings"
)

// FormatShortDiagnostics renders diagnostics one per line, in the given order:
//
//	error SEM3002 arrays.php:37 expected array<int, Person>, got array<int|string, Person>
//
// The output is byte-stable for identical input and is what golden files and
// the "short" CLI format contain.
func FormatShortDiagnostics(diags []Diagnostic, includeNotes bool) string {
	if len(diags) == 0 {
		return ""
	}
	var b strings.Builder
	for i, d := range diags {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s %s %s %s", severityLabel(d.Severity), d.Code.ID(), d.Primary, sanitizeMessage(d.Message))
		if !includeNotes {
			continue
		}
		for _, note := range d.Notes {
			fmt.Fprintf(&b, "\nnote %s %s %s", d.Code.ID(), note.Pos.Or(d.Primary), sanitizeMessage(note.Msg))
		}
	}
	return b.String()
}

func severityLabel(sev Severity) string {
	switch sev {
	case SevError:
		return "error"
	case SevWarning:
		return "warning"
	default:
		return "info"
	}
}

func sanitizeMessage(msg string) string {
	msg = strings.ReplaceAll(msg, "\r\n", "\n")
	msg = strings.ReplaceAll(msg, "\r", "\n")
	msg = strings.ReplaceAll(msg, "\n", " ")
	return strings.TrimSpace(msg)
}
