package main

import (
	"context"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"forge/internal/buildpipeline"
	"forge/internal/diag"
	"forge/internal/ui"
)

type buildOutcome struct {
	result buildpipeline.BuildResult
	err    error
	fatal  *diag.Fatal
}

// runBuildWithUI runs the build on a background goroutine while the progress
// view owns the terminal. A fatal diagnostic raised by the build is re-raised
// here once the view has exited.
func runBuildWithUI(ctx context.Context, title string, units []string, req *buildpipeline.BuildRequest) (buildpipeline.BuildResult, error) {
	if req == nil {
		return buildpipeline.BuildResult{}, fmt.Errorf("missing build request")
	}
	events := make(chan buildpipeline.Event, 256)
	outcomeCh := make(chan buildOutcome, 1)

	go func() {
		var outcome buildOutcome
		defer func() {
			close(events)
			outcomeCh <- outcome
		}()
		reqCopy := *req
		reqCopy.Progress = buildpipeline.ChannelSink{Ch: events}
		outcome.fatal = diag.Catch(func() {
			outcome.result, outcome.err = buildpipeline.Build(ctx, &reqCopy)
		})
	}()

	model := ui.NewProgressModel(title, units, events)
	program := tea.NewProgram(model, tea.WithOutput(os.Stdout))
	_, uiErr := program.Run()
	outcome := <-outcomeCh
	if outcome.fatal != nil {
		panic(outcome.fatal)
	}
	if uiErr != nil {
		return outcome.result, uiErr
	}
	return outcome.result, outcome.err
}
