// Package tui renders a live terminal view of an executing run. The watch
// view subscribes to orchestrator events and shows per-node progress,
// batch by batch, until the run completes or is cancelled.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/scottwilkos/openspec-flow/internal/orchestrator"
	"github.com/scottwilkos/openspec-flow/internal/tui/styles"
)

// nodePhase is the display state of one node in the watch view.
type nodePhase int

const (
	phasePending nodePhase = iota
	phaseRunning
	phaseCompleted
	phaseFailed
	phaseBlocked
)

// nodeState tracks what the view knows about one node.
type nodeState struct {
	phase  nodePhase
	detail string
}

// WatchView is a Bubble Tea model that renders run progress from a
// stream of orchestrator events. The event channel closing is the quit
// signal: the run driver closes the emitter once execution returns, so
// the view exits on every path, including aborts before the pool exists.
type WatchView struct {
	events <-chan orchestrator.RunEvent
	cancel context.CancelFunc

	keyMap  KeyMap
	theme   *styles.Theme
	spinner spinner.Model

	runID        string
	batches      [][]string
	nodes        map[string]*nodeState
	currentBatch int
	startedAt    time.Time

	width      int
	cancelling bool
	done       bool
	success    bool
	summary    string
}

// NewWatchView creates a watch view reading from events. Pressing q (or
// ctrl+c, esc) invokes cancel to stop the run; the view itself keeps
// running until the event stream ends so teardown progress stays visible.
func NewWatchView(events <-chan orchestrator.RunEvent, cancel context.CancelFunc) *WatchView {
	theme := styles.DefaultTheme()

	sp := spinner.New(
		spinner.WithSpinner(spinner.Dot),
		spinner.WithStyle(theme.StatusRunning),
	)

	return &WatchView{
		events:       events,
		cancel:       cancel,
		keyMap:       DefaultKeyMap(),
		theme:        theme,
		spinner:      sp,
		nodes:        make(map[string]*nodeState),
		currentBatch: -1,
		width:        80,
	}
}

// Init starts the spinner and the event pump.
func (w *WatchView) Init() tea.Cmd {
	return tea.Batch(w.spinner.Tick, w.waitForEvent())
}

// waitForEvent blocks on the event channel and converts the next event
// into a message. A closed channel becomes eventsClosedMsg.
func (w *WatchView) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		event, ok := <-w.events
		if !ok {
			return eventsClosedMsg{}
		}
		return runEventMsg{event: event}
	}
}

// Update handles messages and updates the watch view state.
func (w *WatchView) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		w.width = msg.Width
		return w, nil

	case tea.KeyMsg:
		if key.Matches(msg, w.keyMap.Cancel) {
			if !w.cancelling {
				w.cancelling = true
				if w.cancel != nil {
					w.cancel()
				}
			}
			return w, nil
		}
		return w, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		w.spinner, cmd = w.spinner.Update(msg)
		return w, cmd

	case runEventMsg:
		w.apply(msg.event)
		if w.done {
			return w, tea.Quit
		}
		return w, w.waitForEvent()

	case eventsClosedMsg:
		return w, tea.Quit
	}

	return w, nil
}

// apply folds one run event into the view state.
func (w *WatchView) apply(event orchestrator.RunEvent) {
	switch event.Type {
	case orchestrator.EventRunStarted:
		w.runID = event.RunID.String()
		w.startedAt = event.Timestamp
		if payload, ok := event.Payload.(*orchestrator.RunStartedPayload); ok {
			w.batches = payload.Batches
			for _, id := range payload.Order {
				w.nodes[id] = &nodeState{phase: phasePending}
			}
		}

	case orchestrator.EventBatchStarted:
		if payload, ok := event.Payload.(*orchestrator.BatchPayload); ok {
			w.currentBatch = payload.Index
		}

	case orchestrator.EventNodeStarted:
		w.setPhase(event.NodeID, phaseRunning, "")

	case orchestrator.EventNodeCompleted:
		detail := "done"
		if payload, ok := event.Payload.(*orchestrator.NodeCompletedPayload); ok {
			detail = fmt.Sprintf("done in %s", payload.Elapsed.Round(10*time.Millisecond))
		}
		w.setPhase(event.NodeID, phaseCompleted, detail)

	case orchestrator.EventNodeFailed:
		detail := "failed"
		if payload, ok := event.Payload.(*orchestrator.NodeFailedPayload); ok {
			detail = payload.Reason
		}
		w.setPhase(event.NodeID, phaseFailed, detail)

	case orchestrator.EventNodeBlocked:
		detail := "blocked"
		if payload, ok := event.Payload.(*orchestrator.NodeBlockedPayload); ok {
			detail = "blocked by " + strings.Join(payload.Blockers, ", ")
		}
		w.setPhase(event.NodeID, phaseBlocked, detail)

	case orchestrator.EventRunCompleted:
		w.done = true
		if payload, ok := event.Payload.(*orchestrator.RunCompletedPayload); ok {
			w.success = payload.Success
			w.summary = fmt.Sprintf("%d completed, %d failed, %d blocked in %s",
				payload.Completed, payload.Failed, payload.Blocked,
				payload.Elapsed.Round(10*time.Millisecond))
		}
	}
}

// setPhase updates a node's display state, creating it when the node was
// not part of the announced plan.
func (w *WatchView) setPhase(id string, phase nodePhase, detail string) {
	if id == "" {
		return
	}
	state, ok := w.nodes[id]
	if !ok {
		state = &nodeState{}
		w.nodes[id] = state
	}
	state.phase = phase
	state.detail = detail
}

// View renders the current state of the run.
func (w *WatchView) View() string {
	var b strings.Builder

	b.WriteString(w.renderHeader())
	b.WriteString("\n\n")

	for i, batch := range w.batches {
		b.WriteString(w.renderBatchHeader(i))
		b.WriteString("\n")
		for _, id := range batch {
			b.WriteString(w.renderNode(id))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(w.renderFooter())
	b.WriteString("\n")

	return b.String()
}

func (w *WatchView) renderHeader() string {
	title := w.theme.TitleStyle.Render("openspec-flow")

	if w.runID == "" {
		return fmt.Sprintf("%s %s starting run...", w.spinner.View(), title)
	}

	elapsed := time.Since(w.startedAt).Round(time.Second)
	if w.done {
		return fmt.Sprintf("  %s run %s", title, w.runID)
	}
	return fmt.Sprintf("%s %s run %s  %s", w.spinner.View(), title, w.runID,
		w.theme.FooterStyle.Render(elapsed.String()))
}

func (w *WatchView) renderBatchHeader(index int) string {
	label := fmt.Sprintf("batch %d/%d", index+1, len(w.batches))
	if index == w.currentBatch && !w.done {
		return "  " + w.theme.HeaderStyle.Render(label)
	}
	return "  " + w.theme.FooterStyle.Render(label)
}

func (w *WatchView) renderNode(id string) string {
	state, ok := w.nodes[id]
	if !ok {
		state = &nodeState{phase: phasePending}
	}

	var glyph, detail string
	var style lipgloss.Style

	switch state.phase {
	case phaseRunning:
		glyph = strings.TrimRight(w.spinner.View(), " ")
		style = w.theme.StatusRunning
		detail = "running"
	case phaseCompleted:
		glyph = "✓"
		style = w.theme.StatusCompleted
		detail = state.detail
	case phaseFailed:
		glyph = "✗"
		style = w.theme.StatusFailed
		detail = state.detail
	case phaseBlocked:
		glyph = "⊘"
		style = w.theme.StatusBlocked
		detail = state.detail
	default:
		glyph = "·"
		style = w.theme.StatusPending
		detail = "pending"
	}

	line := fmt.Sprintf("    %s %-24s %s", glyph, id, detail)
	return style.Render(line)
}

func (w *WatchView) renderFooter() string {
	if w.done {
		style := w.theme.StatusCompleted
		label := "run succeeded"
		if !w.success {
			style = w.theme.StatusFailed
			label = "run failed"
		}
		if w.summary != "" {
			return style.Render(fmt.Sprintf("%s: %s", label, w.summary))
		}
		return style.Render(label)
	}

	if w.cancelling {
		return w.theme.StatusFailed.Render("cancelling, waiting for workers to stop...")
	}

	return w.theme.FooterStyle.Render("press q to cancel")
}
