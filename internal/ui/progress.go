// Package ui renders a live progress view of a multi-file check.
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"gencheck/internal/driver"
)

// Event is one progress update. A phase event carries the phase name; a
// file finishes with Done set, and Failed when it produced errors.
type Event struct {
	Phase  driver.PhaseEvent
	Done   bool
	Failed bool
	Cached bool
}

type fileState uint8

const (
	stateQueued fileState = iota
	stateRunning
	stateOK
	stateCached
	stateFailed
)

func (s fileState) finished() bool { return s >= stateOK }

// phaseWeight is the share of a file's work done once a phase starts, in
// the order driver.Run runs them.
var phaseWeight = map[string]float64{
	"lower":    0.1,
	"register": 0.3,
	"validate": 0.5,
	"check":    0.7,
}

type fileRow struct {
	path    string
	state   fileState
	phase   string
	elapsed time.Duration
}

func (r fileRow) label() string {
	switch r.state {
	case stateRunning:
		return r.phase
	case stateOK:
		return "ok"
	case stateCached:
		return "cached"
	case stateFailed:
		return "errors"
	default:
		return "queued"
	}
}

func (r fileRow) fraction() float64 {
	switch {
	case r.state.finished():
		return 1
	case r.state == stateRunning:
		return phaseWeight[r.phase]
	default:
		return 0
	}
}

// board is the file table behind the view.
type board struct {
	rows  []fileRow
	index map[string]int
}

func newBoard(files []string) board {
	b := board{rows: make([]fileRow, len(files)), index: make(map[string]int, len(files))}
	for i, f := range files {
		b.rows[i] = fileRow{path: f}
		b.index[f] = i
	}
	return b
}

// apply records ev and reports whether it touched a known file.
func (b *board) apply(ev Event) bool {
	i, ok := b.index[ev.Phase.Path]
	if !ok {
		return false
	}
	row := &b.rows[i]
	switch {
	case ev.Done && ev.Cached:
		row.state = stateCached
	case ev.Done && ev.Failed:
		row.state = stateFailed
	case ev.Done:
		row.state = stateOK
	case ev.Phase.Status == driver.PhaseStart:
		row.state = stateRunning
		row.phase = ev.Phase.Name
	default:
		row.elapsed += ev.Phase.Elapsed
	}
	return true
}

func (b *board) percent() float64 {
	if len(b.rows) == 0 {
		return 0
	}
	total := 0.0
	for _, r := range b.rows {
		total += r.fraction()
	}
	return total / float64(len(b.rows))
}

func (b *board) counts() (ok, cached, failed int) {
	for _, r := range b.rows {
		switch r.state {
		case stateOK:
			ok++
		case stateCached:
			cached++
		case stateFailed:
			failed++
		}
	}
	return ok, cached, failed
}

type progressModel struct {
	title   string
	events  <-chan Event
	spinner spinner.Model
	bar     progress.Model
	board   board
	current string
	width   int
	done    bool
}

type eventMsg Event
type doneMsg struct{}

// NewProgressModel returns a Bubble Tea model that renders check progress
// for files. It quits when events is closed.
func NewProgressModel(title string, files []string, events <-chan Event) tea.Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))

	bar := progress.New(progress.WithDefaultGradient())
	bar.Width = 76

	return &progressModel{
		title:   title,
		events:  events,
		spinner: sp,
		bar:     bar,
		board:   newBoard(files),
		width:   80,
	}
}

func (m *progressModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.next())
}

func (m *progressModel) next() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.events
		if !ok {
			return doneMsg{}
		}
		return eventMsg(ev)
	}
}

func (m *progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case eventMsg:
		ev := Event(msg)
		if !m.board.apply(ev) {
			return m, m.next()
		}
		if ev.Phase.Status == driver.PhaseStart && !ev.Done {
			m.current = ev.Phase.Name
		}
		return m, tea.Batch(m.bar.SetPercent(m.board.percent()), m.next())
	case doneMsg:
		m.done = true
		return m, tea.Quit
	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.WindowSizeMsg:
		if msg.Width > 0 {
			m.width = msg.Width
			m.bar.Width = msg.Width - 4
		}
		return m, nil
	case progress.FrameMsg:
		bm, cmd := m.bar.Update(msg)
		m.bar = bm.(progress.Model)
		return m, cmd
	}
	return m, nil
}

func (m *progressModel) View() string {
	if len(m.board.rows) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(m.header())
	b.WriteString("\n\n")

	nameWidth := max(m.width-24, 20)
	for _, r := range m.board.rows {
		status := statusStyle(r.state).Render(fmt.Sprintf("%10s", r.label()))
		fmt.Fprintf(&b, "  %s %s", status, truncate(r.path, nameWidth))
		if r.state.finished() && r.elapsed > 0 {
			fmt.Fprintf(&b, "  %.1fms", float64(r.elapsed)/float64(time.Millisecond))
		}
		b.WriteByte('\n')
	}

	b.WriteByte('\n')
	if m.done {
		b.WriteString(m.bar.ViewAs(1))
	} else {
		b.WriteString(m.bar.View())
	}
	ok, cached, failed := m.board.counts()
	fmt.Fprintf(&b, "\n%d ok, %d cached, %d with errors\n", ok, cached, failed)
	return b.String()
}

func (m *progressModel) header() string {
	style := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("7"))
	if m.done {
		return style.Render("done: " + m.title)
	}
	title := m.title
	if m.current != "" {
		title += " (" + m.current + ")"
	}
	return style.Render(m.spinner.View() + " " + title)
}

func statusStyle(s fileState) lipgloss.Style {
	color := "6"
	switch s {
	case stateOK, stateCached:
		color = "2"
	case stateFailed:
		color = "1"
	case stateQueued:
		color = "7"
	}
	return lipgloss.NewStyle().Foreground(lipgloss.Color(color))
}

// truncate shortens value to width display cells with a trailing "...".
func truncate(value string, width int) string {
	if width <= 0 || runewidth.StringWidth(value) <= width {
		return value
	}
	if width <= 3 {
		return runewidth.Truncate(value, width, "")
	}
	return runewidth.Truncate(value, width, "...")
}
