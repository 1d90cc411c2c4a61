package main

import (
	"context"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"gencheck/internal/driver"
	"gencheck/internal/source"
	"gencheck/internal/ui"
)

type checkOutcome struct {
	results []*driver.Result
	err     error
}

// checkFiles runs every file in order. progress, when set, receives each
// phase boundary and one Done event per file.
func checkFiles(ctx context.Context, files []string, opts driver.Options, progress func(ui.Event)) ([]*driver.Result, error) {
	if progress != nil {
		opts.Observer = func(ev driver.PhaseEvent) { progress(ui.Event{Phase: ev}) }
	}
	results := make([]*driver.Result, 0, len(files))
	for _, file := range files {
		file = source.NormalizePath(file)
		res, err := driver.RunFile(ctx, file, opts)
		if err != nil {
			return results, err
		}
		results = append(results, res)
		if progress != nil {
			progress(ui.Event{
				Phase:  driver.PhaseEvent{Path: file, Status: driver.PhaseEnd},
				Done:   true,
				Failed: res.Bag.HasErrors(),
				Cached: res.Cached,
			})
		}
	}
	return results, nil
}

// checkFilesWithUI runs checkFiles in the background while a Bubble Tea
// program renders its progress.
func checkFilesWithUI(ctx context.Context, title string, files []string, opts driver.Options) ([]*driver.Result, error) {
	events := make(chan ui.Event, 256)
	outcomeCh := make(chan checkOutcome, 1)

	go func() {
		res, err := checkFiles(ctx, files, opts, func(ev ui.Event) { events <- ev })
		outcomeCh <- checkOutcome{results: res, err: err}
		close(events)
	}()

	model := ui.NewProgressModel(title, files, events)
	program := tea.NewProgram(model, tea.WithOutput(os.Stderr))
	_, uiErr := program.Run()
	if uiErr != nil {
		go func() {
			for range events {
			}
		}()
	}
	outcome := <-outcomeCh
	if uiErr != nil {
		return outcome.results, uiErr
	}
	return outcome.results, outcome.err
}
