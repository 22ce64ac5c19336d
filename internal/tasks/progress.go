package tasks

import "fmt"

// ProgressUpdate represents a progress event during a cycle.
//
// Used to send real-time updates to the CLI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Cycle phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
}

// Phase enumerates the stages of one cycle.
type Phase int

const (
	PhaseReconcile Phase = iota
	PhaseSchedule
	PhaseMatch
	PhaseFetch
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseReconcile:
		return "reconcile"
	case PhaseSchedule:
		return "schedule"
	case PhaseMatch:
		return "match"
	case PhaseFetch:
		return "fetch"
	case PhaseDone:
		return "done"
	default:
		return "unknown"
	}
}

func reconcileUpdate(caughtUp int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   PhaseReconcile,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("reconciled %d series cursor(s) from the ledger", caughtUp),
	}
}

func scheduleUpdate(entries int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   PhaseSchedule,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("schedule snapshot carries %d released episode(s)", entries),
	}
}

func matchUpdate(actionable int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   PhaseMatch,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("%d episode(s) actionable", actionable),
	}
}

func fetchUpdate(step, total int, title string, episode int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   PhaseFetch,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("fetching %s E%d", title, episode),
	}
}

func doneUpdate(succeeded, failed int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   PhaseDone,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("cycle finished: %d succeeded, %d failed", succeeded, failed),
	}
}
