package optimizer_test

import (
	"context"
	"testing"
	"time"

	"vowline/internal/config"
	"vowline/internal/domain"
	"vowline/internal/optimizer"
	"vowline/internal/profile"
	"vowline/internal/schedule"
)

func at(hh, mm int) time.Time {
	return time.Date(2025, 6, 15, hh, mm, 0, 0, time.UTC)
}

func testEvent() domain.Event {
	return domain.Event{ID: "wedding-1", WindowStart: at(14, 0), WindowEnd: at(22, 0)}
}

func task(id, vendor, zone string, hh, mm, duration, setup, breakdown int) domain.VendorTask {
	return domain.VendorTask{
		ID:               id,
		EventID:          "wedding-1",
		VendorID:         vendor,
		Category:         "catering",
		Title:            id,
		Zone:             zone,
		Start:            at(hh, mm),
		DurationMinutes:  duration,
		SetupMinutes:     setup,
		BreakdownMinutes: breakdown,
	}
}

func newOptimizer() optimizer.Optimizer {
	cfg := config.Default("wedding-1")
	return optimizer.Optimizer{Config: cfg, Scorer: profile.NewStore(cfg)}
}

// pipeline runs detection and CPM the way a full run would, so optimizer
// tests exercise realistic inputs.
func pipeline(t *testing.T, snap schedule.Snapshot) ([]domain.ConflictRecord, map[string]schedule.PathTiming) {
	t.Helper()
	cfg := config.Default("wedding-1")
	order, err := schedule.Resolve(snap.Tasks, snap.Edges)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	conflicts, err := schedule.Detector{Config: cfg}.Detect(context.Background(), snap)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	timings, err := schedule.ComputeCriticalPath(snap.Event, snap.Tasks, order, snap.Edges)
	if err != nil {
		t.Fatalf("cpm: %v", err)
	}
	return conflicts, timings
}

func applyAdjustments(snap schedule.Snapshot, result domain.OptimizationResult) schedule.Snapshot {
	out := snap
	out.Tasks = make([]domain.VendorTask, len(snap.Tasks))
	copy(out.Tasks, snap.Tasks)
	for _, adj := range result.Adjustments {
		if adj.Move != optimizer.MoveShift {
			continue
		}
		for i := range out.Tasks {
			if out.Tasks[i].ID == adj.TaskID {
				out.Tasks[i].Start = adj.NewStart
			}
		}
	}
	return out
}

func TestOptimizeShiftClearsZoneOverlap(t *testing.T) {
	snap := schedule.Snapshot{Event: testEvent(), Tasks: []domain.VendorTask{
		task("florals", "florals-co", "ceremony", 15, 0, 60, 0, 0),
		task("quartet", "strings-co", "ceremony", 15, 30, 60, 0, 0),
	}}
	conflicts, timings := pipeline(t, snap)
	if len(conflicts) != 1 {
		t.Fatalf("conflicts = %d, want 1", len(conflicts))
	}
	result := newOptimizer().Optimize(context.Background(), snap, conflicts, timings, optimizer.Budget{})
	if len(result.Unresolved) != 0 {
		t.Fatalf("unresolved = %v", result.Unresolved)
	}
	if len(result.Resolved) != 1 || result.Resolved[0].Move != optimizer.MoveShift {
		t.Fatalf("resolved = %+v", result.Resolved)
	}
	if result.Partial {
		t.Fatalf("run should not be partial")
	}
	for _, adj := range result.Adjustments {
		bounds := timings[adj.TaskID]
		if adj.NewStart.Before(bounds.EarliestStart) || adj.NewStart.After(bounds.LatestStart) {
			t.Fatalf("adjustment %v outside [%v, %v]", adj.NewStart, bounds.EarliestStart, bounds.LatestStart)
		}
	}
	after, _ := pipeline(t, applyAdjustments(snap, result))
	if len(after) != 0 {
		t.Fatalf("conflicts remain after applying adjustments: %v", after)
	}
}

func TestOptimizeConflictFreeIsNoop(t *testing.T) {
	snap := schedule.Snapshot{Event: testEvent(), Tasks: []domain.VendorTask{
		task("florals", "florals-co", "ceremony", 14, 0, 60, 0, 0),
		task("dinner", "catering-co", "reception", 17, 0, 120, 30, 30),
	}}
	conflicts, timings := pipeline(t, snap)
	if len(conflicts) != 0 {
		t.Fatalf("setup expected conflict-free, got %v", conflicts)
	}
	result := newOptimizer().Optimize(context.Background(), snap, conflicts, timings, optimizer.Budget{})
	if len(result.Adjustments) != 0 || len(result.Resolved) != 0 || len(result.Unresolved) != 0 {
		t.Fatalf("noop run produced changes: %+v", result)
	}
	if result.RiskScore != 0 {
		t.Fatalf("risk = %.2f, want 0", result.RiskScore)
	}
}

func TestOptimizeBudgetExhaustion(t *testing.T) {
	// Two independent overlapping pairs; budget covers one conflict.
	snap := schedule.Snapshot{Event: testEvent(), Tasks: []domain.VendorTask{
		task("a1", "v1", "ceremony", 15, 0, 60, 0, 0),
		task("a2", "v2", "ceremony", 15, 30, 60, 0, 0),
		task("b1", "v3", "reception", 18, 0, 60, 0, 0),
		task("b2", "v4", "reception", 18, 30, 60, 0, 0),
	}}
	conflicts, timings := pipeline(t, snap)
	if len(conflicts) != 2 {
		t.Fatalf("conflicts = %d, want 2", len(conflicts))
	}
	result := newOptimizer().Optimize(context.Background(), snap, conflicts, timings, optimizer.Budget{MaxIterations: 1})
	if !result.Partial {
		t.Fatalf("expected partial result")
	}
	if result.IterationsUsed != 1 {
		t.Fatalf("iterations = %d, want 1", result.IterationsUsed)
	}
	if len(result.Unresolved) != 1 || result.Unresolved[0].Cause != "budget-exhausted" {
		t.Fatalf("unresolved = %+v", result.Unresolved)
	}
}

func TestOptimizeBufferForZeroSlackSmallOverlap(t *testing.T) {
	snap := schedule.Snapshot{Event: testEvent(), Tasks: []domain.VendorTask{
		task("dinner", "catering-co", "reception", 16, 0, 60, 0, 0),
		task("dessert", "catering-co", "garden", 16, 50, 60, 0, 0),
	}}
	cfg := config.Default("wedding-1")
	conflicts, err := schedule.Detector{Config: cfg}.Detect(context.Background(), snap)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if len(conflicts) != 1 || conflicts[0].OverlapMinutes != 10 {
		t.Fatalf("conflicts = %+v", conflicts)
	}
	// Pin both tasks to the critical path so shifting is off the table.
	timings := map[string]schedule.PathTiming{
		"dinner":  {EarliestStart: at(16, 0), LatestStart: at(16, 0), SlackMinutes: 0, Critical: true},
		"dessert": {EarliestStart: at(16, 50), LatestStart: at(16, 50), SlackMinutes: 0, Critical: true},
	}
	result := newOptimizer().Optimize(context.Background(), snap, conflicts, timings, optimizer.Budget{})
	if len(result.Resolved) != 1 || result.Resolved[0].Move != optimizer.MoveBuffer {
		t.Fatalf("resolved = %+v", result.Resolved)
	}
	if len(result.Adjustments) != 1 {
		t.Fatalf("adjustments = %+v", result.Adjustments)
	}
	adj := result.Adjustments[0]
	if adj.TaskID != "dessert" || adj.AddedBufferMinutes != 10 {
		t.Fatalf("adjustment = %+v", adj)
	}
	if !adj.NewStart.Equal(adj.OldStart) {
		t.Fatalf("buffer move must not change the start")
	}
}

func TestOptimizeInfeasibleConflictExplainsAttempts(t *testing.T) {
	// Zero slack on both sides and an overlap too large to buffer.
	snap := schedule.Snapshot{Event: testEvent(), Tasks: []domain.VendorTask{
		task("dinner", "catering-co", "reception", 16, 0, 60, 0, 0),
		task("dessert", "catering-co", "garden", 16, 30, 60, 0, 0),
	}}
	cfg := config.Default("wedding-1")
	conflicts, err := schedule.Detector{Config: cfg}.Detect(context.Background(), snap)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	timings := map[string]schedule.PathTiming{
		"dinner":  {EarliestStart: at(16, 0), LatestStart: at(16, 0), SlackMinutes: 0, Critical: true},
		"dessert": {EarliestStart: at(16, 30), LatestStart: at(16, 30), SlackMinutes: 0, Critical: true},
	}
	result := newOptimizer().Optimize(context.Background(), snap, conflicts, timings, optimizer.Budget{})
	if len(result.Unresolved) != 1 {
		t.Fatalf("unresolved = %+v", result.Unresolved)
	}
	u := result.Unresolved[0]
	if u.Cause != "infeasible" {
		t.Fatalf("cause = %s", u.Cause)
	}
	if len(u.AttemptedMoves) != 2 {
		t.Fatalf("attempted moves = %v, want shift and buffer reasons", u.AttemptedMoves)
	}
}

func TestOptimizeDependencyViolationShiftsSuccessor(t *testing.T) {
	from := task("ceremony", "officiant", "ceremony", 14, 0, 60, 0, 0)
	to := task("cocktails", "catering-co", "garden", 14, 30, 60, 0, 0)
	snap := schedule.Snapshot{
		Event: testEvent(),
		Tasks: []domain.VendorTask{from, to},
		Edges: []domain.DependencyEdge{{EventID: "wedding-1", FromTaskID: "ceremony", ToTaskID: "cocktails", Kind: domain.EdgeFinishToStart}},
	}
	conflicts, timings := pipeline(t, snap)
	if len(conflicts) != 1 || conflicts[0].Kind != domain.ConflictDependencyViolation {
		t.Fatalf("conflicts = %+v", conflicts)
	}
	result := newOptimizer().Optimize(context.Background(), snap, conflicts, timings, optimizer.Budget{})
	if len(result.Resolved) != 1 {
		t.Fatalf("resolved = %+v, unresolved = %+v", result.Resolved, result.Unresolved)
	}
	if result.Resolved[0].TaskID != "cocktails" {
		t.Fatalf("mover = %s, want the successor", result.Resolved[0].TaskID)
	}
	after, _ := pipeline(t, applyAdjustments(snap, result))
	if len(after) != 0 {
		t.Fatalf("conflicts remain: %v", after)
	}
}

func TestOptimizeReportsProgress(t *testing.T) {
	snap := schedule.Snapshot{Event: testEvent(), Tasks: []domain.VendorTask{
		task("florals", "florals-co", "ceremony", 15, 0, 60, 0, 0),
		task("quartet", "strings-co", "ceremony", 15, 30, 60, 0, 0),
	}}
	conflicts, timings := pipeline(t, snap)
	var updates []optimizer.Progress
	opt := newOptimizer()
	opt.Progress = func(p optimizer.Progress) { updates = append(updates, p) }
	opt.Optimize(context.Background(), snap, conflicts, timings, optimizer.Budget{})
	if len(updates) == 0 {
		t.Fatalf("no progress reported")
	}
	last := updates[len(updates)-1]
	if last.PercentComplete != 100 || last.ConflictsTotal != 1 {
		t.Fatalf("last progress = %+v", last)
	}
}

func TestOptimizeDoubleBookingShiftsLaterTask(t *testing.T) {
	snap := schedule.Snapshot{Event: testEvent(), Tasks: []domain.VendorTask{
		task("course-one", "catering-co", "kitchen", 17, 0, 120, 0, 0),
		task("course-two", "catering-co", "garden", 18, 30, 90, 0, 0),
	}}
	conflicts, timings := pipeline(t, snap)
	if len(conflicts) != 1 || conflicts[0].Kind != domain.ConflictVendorDoubleBooking {
		t.Fatalf("conflicts = %+v, want one vendor-double-booking", conflicts)
	}
	result := newOptimizer().Optimize(context.Background(), snap, conflicts, timings, optimizer.Budget{})
	if len(result.Unresolved) != 0 {
		t.Fatalf("unresolved = %v", result.Unresolved)
	}
	if len(result.Adjustments) != 1 {
		t.Fatalf("adjustments = %+v", result.Adjustments)
	}
	adj := result.Adjustments[0]
	if adj.TaskID != "course-two" || !adj.NewStart.Equal(at(19, 0)) {
		t.Fatalf("adjustment = %+v, want course-two shifted to 19:00", adj)
	}
	after, _ := pipeline(t, applyAdjustments(snap, result))
	if len(after) != 0 {
		t.Fatalf("conflicts remain after applying adjustments: %v", after)
	}
}
