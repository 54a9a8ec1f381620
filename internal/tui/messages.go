package tui

import (
	"github.com/scottwilkos/openspec-flow/internal/orchestrator"
)

// runEventMsg delivers one orchestrator event to the watch model.
type runEventMsg struct {
	event orchestrator.RunEvent
}

// eventsClosedMsg signals that the event stream ended without a
// run.completed event, which happens when the run aborts before the
// worker pool is initialized.
type eventsClosedMsg struct{}
