package buildpipeline

import (
	"time"

	"forge/internal/scheduler"
)

func emitStage(sink ProgressSink, stage Stage, status Status, err error, elapsed time.Duration) {
	if sink == nil {
		return
	}
	sink.OnEvent(Event{Stage: stage, Status: status, Err: err, Elapsed: elapsed})
}

// unitObserver forwards scheduler progress to a sink.
func unitObserver(sink ProgressSink) func(scheduler.UnitEvent) {
	if sink == nil {
		return nil
	}
	return func(ev scheduler.UnitEvent) {
		out := Event{Unit: ev.Unit, Stage: StageCodegen, Err: ev.Err, Elapsed: ev.Elapsed}
		switch ev.Phase {
		case scheduler.UnitQueued:
			out.Status = StatusQueued
		case scheduler.UnitWorking:
			out.Status = StatusWorking
		case scheduler.UnitDone:
			out.Status = StatusDone
			if ev.Reused {
				out.Status = StatusReused
			}
		case scheduler.UnitFailed:
			out.Status = StatusError
		}
		sink.OnEvent(out)
	}
}
