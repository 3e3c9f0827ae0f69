package optimizer

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"vowline/internal/config"
	"vowline/internal/domain"
	"vowline/internal/profile"
	"vowline/internal/schedule"
)

const (
	MoveShift  = "shift-within-slack"
	MoveBuffer = "insert-buffer"
)

// Budget bounds one optimization run. The context deadline bounds wall
// time; MaxIterations bounds conflicts attempted. When either expires the
// run returns the best partial result found so far rather than blocking.
type Budget struct {
	MaxIterations int
}

// Progress is reported after each processed conflict when a callback is set.
type Progress struct {
	EventID           string  `json:"event_id"`
	PercentComplete   float64 `json:"percent_complete"`
	ConflictsResolved int     `json:"conflicts_resolved"`
	ConflictsTotal    int     `json:"conflicts_total"`
}

// Optimizer proposes a revised schedule via constrained local search. The
// problem is NP-hard in general; a bounded, explainable result beats
// optimality here, so every outcome records which move was attempted and
// why it failed.
type Optimizer struct {
	Config   *config.Config
	Scorer   profile.Scorer
	Progress func(Progress)
}

type candidate struct {
	move     string
	taskID   string
	newStart time.Time
	buffer   int
	reason   string
	ok       bool
}

// Optimize walks conflicts by severity descending, attempting for each the
// cheapest of: (a) shift the lower-priority task within its slack, (b)
// insert a small buffer when both tasks sit on the critical path, (c) flag
// unresolved. After each applied move only the moved task's groups are
// re-checked. Tasks never leave their [earliestStart, latestStart] bounds.
func (o Optimizer) Optimize(ctx context.Context, snap schedule.Snapshot, conflicts []domain.ConflictRecord, timings map[string]schedule.PathTiming, budget Budget) domain.OptimizationResult {
	working := snap
	working.Tasks = make([]domain.VendorTask, len(snap.Tasks))
	copy(working.Tasks, snap.Tasks)

	detector := schedule.Detector{Config: o.Config}
	maxIter := budget.MaxIterations
	if maxIter <= 0 {
		maxIter = o.Config.Optimizer.MaxIterations
	}

	queue := make([]domain.ConflictRecord, len(conflicts))
	copy(queue, conflicts)
	sort.SliceStable(queue, func(i, j int) bool { return queue[i].Severity > queue[j].Severity })

	result := domain.OptimizationResult{
		EventID:     snap.Event.ID,
		Adjustments: []domain.Adjustment{},
		Resolved:    []domain.ResolvedConflict{},
		Unresolved:  []domain.UnresolvedConflict{},
	}
	adjustedBy := map[string]domain.Adjustment{}
	iterations := 0

	for idx, c := range queue {
		if iterations >= maxIter || ctx.Err() != nil {
			result.Partial = true
			result.Unresolved = append(result.Unresolved, domain.UnresolvedConflict{
				Conflict: c,
				Cause:    "budget-exhausted",
			})
			continue
		}
		iterations++

		// A previous move may have already eliminated this conflict.
		if !conflictPresent(detector, working, c) {
			result.Resolved = append(result.Resolved, resolvedByEarlierMove(c, adjustedBy))
			o.report(snap.Event.ID, idx+1, len(queue), len(result.Resolved))
			continue
		}

		cand, attempts := o.bestMove(ctx, detector, working, c, timings)
		if !cand.ok {
			result.Unresolved = append(result.Unresolved, domain.UnresolvedConflict{
				Conflict:       c,
				Cause:          "infeasible",
				AttemptedMoves: attempts,
			})
			o.report(snap.Event.ID, idx+1, len(queue), len(result.Resolved))
			continue
		}

		adj := o.applyMove(&working, cand)
		adjustedBy[cand.taskID] = adj
		result.Adjustments = upsertAdjustment(result.Adjustments, adj)
		result.Resolved = append(result.Resolved, domain.ResolvedConflict{
			Conflict: c,
			Move:     cand.move,
			TaskID:   cand.taskID,
		})
		o.report(snap.Event.ID, idx+1, len(queue), len(result.Resolved))
	}

	result.IterationsUsed = iterations
	result.RiskScore = o.riskScore(working, result, timings)
	return result
}

// bestMove evaluates the candidate moves for one conflict concurrently and
// returns the preferred valid one. Evaluation is bounded by the configured
// per-conflict timeout.
func (o Optimizer) bestMove(ctx context.Context, detector schedule.Detector, working schedule.Snapshot, c domain.ConflictRecord, timings map[string]schedule.PathTiming) (candidate, []string) {
	timeout := time.Duration(o.Config.Optimizer.MoveTimeoutMillis) * time.Millisecond
	evalCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var shiftCand, bufferCand candidate
	g, _ := errgroup.WithContext(evalCtx)
	g.Go(func() error {
		shiftCand = o.evalShift(detector, working, c, timings)
		return nil
	})
	g.Go(func() error {
		bufferCand = o.evalBuffer(working, c, timings)
		return nil
	})
	_ = g.Wait()

	attempts := []string{}
	if shiftCand.ok {
		return shiftCand, nil
	}
	attempts = append(attempts, MoveShift+": "+shiftCand.reason)
	if bufferCand.ok {
		return bufferCand, nil
	}
	attempts = append(attempts, MoveBuffer+": "+bufferCand.reason)
	return candidate{}, attempts
}

// evalShift picks the mover (larger slack; ties by later start, then ID)
// and the smallest start shift that clears the conflict, then validates the
// shifted schedule with a localized re-check.
func (o Optimizer) evalShift(detector schedule.Detector, working schedule.Snapshot, c domain.ConflictRecord, timings map[string]schedule.PathTiming) candidate {
	mover, target, reason := o.shiftTarget(working, c, timings)
	if reason != "" {
		return candidate{move: MoveShift, reason: reason}
	}
	bounds, ok := timings[mover.ID]
	if !ok {
		return candidate{move: MoveShift, reason: "no critical-path bounds for task " + mover.ID}
	}
	if target.Before(bounds.EarliestStart) {
		target = bounds.EarliestStart
	}
	if target.After(bounds.LatestStart) {
		return candidate{move: MoveShift, reason: fmt.Sprintf(
			"required start %s exceeds latest feasible start %s",
			target.Format("15:04"), bounds.LatestStart.Format("15:04"))}
	}

	trial := working
	trial.Tasks = shiftTask(working.Tasks, mover.ID, target)
	before := conflictSet(detector.DetectTask(working, mover.ID))
	after := detector.DetectTask(trial, mover.ID)
	for _, rec := range after {
		if rec.ID == c.ID {
			return candidate{move: MoveShift, reason: "shift does not clear the overlap"}
		}
		if _, preexisting := before[rec.ID]; !preexisting {
			return candidate{move: MoveShift, reason: "shift creates new conflict " + string(rec.Kind)}
		}
	}
	return candidate{move: MoveShift, taskID: mover.ID, newStart: target, ok: true}
}

// evalBuffer applies when both tasks are pinned to the critical path and
// the overlap is small enough to absorb with an explicit buffer.
func (o Optimizer) evalBuffer(working schedule.Snapshot, c domain.ConflictRecord, timings map[string]schedule.PathTiming) candidate {
	if c.TaskB == "" || c.Kind == domain.ConflictVenueWindow {
		return candidate{move: MoveBuffer, reason: "buffering applies to task pairs only"}
	}
	a, b := timings[c.TaskA], timings[c.TaskB]
	if a.SlackMinutes > 0 || b.SlackMinutes > 0 {
		return candidate{move: MoveBuffer, reason: "a task still has slack; shifting preferred"}
	}
	if c.OverlapMinutes > o.Config.Optimizer.SmallOverlapMins {
		return candidate{move: MoveBuffer, reason: fmt.Sprintf(
			"overlap %dm exceeds small-overlap threshold %dm",
			c.OverlapMinutes, o.Config.Optimizer.SmallOverlapMins)}
	}
	later := c.TaskB
	ta, okA := working.Task(c.TaskA)
	tb, okB := working.Task(c.TaskB)
	if okA && okB && tb.Start.Before(ta.Start) {
		later = c.TaskA
	}
	buffer := c.OverlapMinutes
	if step := o.Config.Optimizer.BufferStepMinutes; step > 0 && buffer%step != 0 {
		buffer += step - buffer%step
	}
	return candidate{move: MoveBuffer, taskID: later, buffer: buffer, ok: true}
}

// shiftTarget decides which of a conflict's tasks moves and to when.
func (o Optimizer) shiftTarget(working schedule.Snapshot, c domain.ConflictRecord, timings map[string]schedule.PathTiming) (domain.VendorTask, time.Time, string) {
	minutes := func(m int) time.Duration { return time.Duration(m) * time.Minute }
	switch c.Kind {
	case domain.ConflictVenueWindow:
		t, ok := working.Task(c.TaskA)
		if !ok {
			return domain.VendorTask{}, time.Time{}, "task not in snapshot"
		}
		bounds := timings[t.ID]
		target := t.Start
		if target.Before(bounds.EarliestStart) {
			target = bounds.EarliestStart
		}
		if target.After(bounds.LatestStart) {
			target = bounds.LatestStart
		}
		if target.Equal(t.Start) {
			return domain.VendorTask{}, time.Time{}, "task already at its feasible bound"
		}
		return t, target, ""
	case domain.ConflictDependencyViolation:
		_, okFrom := working.Task(c.TaskA)
		to, okTo := working.Task(c.TaskB)
		if !okFrom || !okTo {
			return domain.VendorTask{}, time.Time{}, "task not in snapshot"
		}
		// The successor moves past the predecessor's gate.
		return to, to.Start.Add(minutes(c.OverlapMinutes)), ""
	default:
		ta, okA := working.Task(c.TaskA)
		tb, okB := working.Task(c.TaskB)
		if !okA || !okB {
			return domain.VendorTask{}, time.Time{}, "task not in snapshot"
		}
		mover, other := pickMover(ta, tb, timings)
		if timings[mover.ID].SlackMinutes <= 0 {
			return domain.VendorTask{}, time.Time{}, "both tasks are on the critical path"
		}
		// Clear the overlap: the mover's occupied start lands on the other
		// task's occupied end.
		target := other.OccupiedEnd().Add(minutes(mover.SetupMinutes))
		return mover, target, ""
	}
}

// pickMover prefers the task with more room to move: larger slack, then the
// later planned start, then the larger ID for determinism.
func pickMover(a, b domain.VendorTask, timings map[string]schedule.PathTiming) (mover, other domain.VendorTask) {
	sa, sb := timings[a.ID].SlackMinutes, timings[b.ID].SlackMinutes
	switch {
	case sa != sb:
		if sa > sb {
			return a, b
		}
		return b, a
	case !a.Start.Equal(b.Start):
		if a.Start.After(b.Start) {
			return a, b
		}
		return b, a
	case a.ID > b.ID:
		return a, b
	default:
		return b, a
	}
}

func (o Optimizer) applyMove(working *schedule.Snapshot, cand candidate) domain.Adjustment {
	t, _ := working.Task(cand.taskID)
	adj := domain.Adjustment{
		TaskID:   cand.taskID,
		OldStart: t.Start,
		NewStart: t.Start,
		Move:     cand.move,
	}
	switch cand.move {
	case MoveShift:
		adj.NewStart = cand.newStart
		adj.Reason = "shifted within slack to clear conflict"
		working.Tasks = shiftTask(working.Tasks, cand.taskID, cand.newStart)
	case MoveBuffer:
		adj.AddedBufferMinutes = cand.buffer
		adj.Reason = "buffer absorbs small overlap between zero-slack tasks"
	}
	return adj
}

// riskScore weighs residual conflict severity plus expected vendor delay on
// tasks whose move consumed slack.
func (o Optimizer) riskScore(working schedule.Snapshot, result domain.OptimizationResult, timings map[string]schedule.PathTiming) float64 {
	score := 0.0
	for _, u := range result.Unresolved {
		score += u.Conflict.Severity
	}
	horizon := float64(o.Config.Optimizer.SlackRiskHorizonMn)
	if horizon <= 0 {
		horizon = 60
	}
	for _, adj := range result.Adjustments {
		t, ok := working.Task(adj.TaskID)
		if !ok {
			continue
		}
		bounds := timings[adj.TaskID]
		remaining := float64(bounds.LatestStart.Sub(t.Start) / time.Minute)
		consumed := 1 - remaining/horizon
		if consumed < 0 {
			consumed = 0
		}
		if consumed > 1 {
			consumed = 1
		}
		rel := o.Scorer.Score(t.VendorID, t.Category)
		score += rel.ExpectedDelayMinutes * consumed
	}
	return score
}

func (o Optimizer) report(eventID string, processed, total, resolved int) {
	if o.Progress == nil || total == 0 {
		return
	}
	o.Progress(Progress{
		EventID:           eventID,
		PercentComplete:   100 * float64(processed) / float64(total),
		ConflictsResolved: resolved,
		ConflictsTotal:    total,
	})
}

func shiftTask(tasks []domain.VendorTask, id string, start time.Time) []domain.VendorTask {
	out := make([]domain.VendorTask, len(tasks))
	copy(out, tasks)
	for i := range out {
		if out[i].ID == id {
			out[i].Start = start
		}
	}
	return out
}

func conflictPresent(d schedule.Detector, snap schedule.Snapshot, c domain.ConflictRecord) bool {
	for _, rec := range d.DetectTask(snap, c.TaskA) {
		if rec.ID == c.ID {
			return true
		}
	}
	return false
}

func conflictSet(records []domain.ConflictRecord) map[string]struct{} {
	set := make(map[string]struct{}, len(records))
	for _, r := range records {
		set[r.ID] = struct{}{}
	}
	return set
}

func resolvedByEarlierMove(c domain.ConflictRecord, adjustedBy map[string]domain.Adjustment) domain.ResolvedConflict {
	res := domain.ResolvedConflict{Conflict: c, Move: MoveShift}
	if adj, ok := adjustedBy[c.TaskB]; ok {
		res.Move = adj.Move
		res.TaskID = adj.TaskID
	} else if adj, ok := adjustedBy[c.TaskA]; ok {
		res.Move = adj.Move
		res.TaskID = adj.TaskID
	}
	return res
}

func upsertAdjustment(list []domain.Adjustment, adj domain.Adjustment) []domain.Adjustment {
	for i, existing := range list {
		if existing.TaskID == adj.TaskID && existing.Move == adj.Move {
			if adj.Move == MoveShift {
				adj.OldStart = existing.OldStart
			} else {
				adj.AddedBufferMinutes += existing.AddedBufferMinutes
			}
			list[i] = adj
			return list
		}
	}
	return append(list, adj)
}
