package schedule

import (
	"time"

	"vowline/internal/domain"
)

// PathTiming is the critical-path result for one task. Times refer to the
// task's service start; setup and breakdown are folded into the bounds so an
// occupied interval starting at EarliestStart-setup still fits the window.
type PathTiming struct {
	EarliestStart time.Time
	LatestStart   time.Time
	SlackMinutes  int
	Critical      bool
}

// ComputeCriticalPath runs the standard two-pass CPM over the topological
// order: a forward pass for earliest starts and a backward pass anchored at
// the venue window end for latest starts. Slack is their difference; tasks
// with zero slack form the critical path and must not be shifted.
//
// A negative slack anywhere means the dependency chain does not fit the
// window; that is reported as InfeasibleWindowError, never clamped.
func ComputeCriticalPath(event domain.Event, tasks []domain.VendorTask, orderedIDs []string, edges []domain.DependencyEdge) (map[string]PathTiming, error) {
	byID := make(map[string]domain.VendorTask, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
	}
	incoming := map[string][]domain.DependencyEdge{}
	outgoing := map[string][]domain.DependencyEdge{}
	for _, e := range edges {
		incoming[e.ToTaskID] = append(incoming[e.ToTaskID], e)
		outgoing[e.FromTaskID] = append(outgoing[e.FromTaskID], e)
	}

	minutes := func(m int) time.Duration { return time.Duration(m) * time.Minute }

	// Forward pass: earliest service start per task, following edge
	// constraints in topological order.
	earliest := make(map[string]time.Time, len(orderedIDs))
	for _, id := range orderedIDs {
		t := byID[id]
		es := event.WindowStart.Add(minutes(t.SetupMinutes))
		for _, e := range incoming[id] {
			from := byID[e.FromTaskID]
			fromES := earliest[e.FromTaskID]
			var bound time.Time
			switch e.Kind {
			case domain.EdgeStartToStart:
				bound = fromES
			case domain.EdgeMilestoneGate:
				bound = fromES.Add(minutes(from.DurationMinutes + from.BreakdownMinutes))
			default: // finish-to-start
				bound = fromES.Add(minutes(from.DurationMinutes + t.SetupMinutes))
			}
			if bound.After(es) {
				es = bound
			}
		}
		earliest[id] = es
	}

	// Backward pass over the reverse order, anchored so the occupied
	// interval (breakdown included) ends inside the window.
	latest := make(map[string]time.Time, len(orderedIDs))
	for i := len(orderedIDs) - 1; i >= 0; i-- {
		id := orderedIDs[i]
		t := byID[id]
		ls := event.WindowEnd.Add(-minutes(t.DurationMinutes + t.BreakdownMinutes))
		for _, e := range outgoing[id] {
			to := byID[e.ToTaskID]
			toLS := latest[e.ToTaskID]
			var bound time.Time
			switch e.Kind {
			case domain.EdgeStartToStart:
				bound = toLS
			case domain.EdgeMilestoneGate:
				bound = toLS.Add(-minutes(t.DurationMinutes + t.BreakdownMinutes))
			default: // finish-to-start
				bound = toLS.Add(-minutes(to.SetupMinutes + t.DurationMinutes))
			}
			if bound.Before(ls) {
				ls = bound
			}
		}
		latest[id] = ls
	}

	out := make(map[string]PathTiming, len(orderedIDs))
	var negative []string
	shortfall := 0
	for _, id := range orderedIDs {
		slack := int(latest[id].Sub(earliest[id]) / time.Minute)
		if slack < 0 {
			negative = append(negative, id)
			if -slack > shortfall {
				shortfall = -slack
			}
		}
		out[id] = PathTiming{
			EarliestStart: earliest[id],
			LatestStart:   latest[id],
			SlackMinutes:  slack,
			Critical:      slack == 0,
		}
	}
	if len(negative) > 0 {
		return nil, &InfeasibleWindowError{TaskIDs: negative, ShortfallMinutes: shortfall}
	}
	return out, nil
}
