package schedule_test

import (
	"errors"
	"testing"

	"vowline/internal/domain"
	"vowline/internal/schedule"
)

func mustResolve(t *testing.T, tasks []domain.VendorTask, edges []domain.DependencyEdge) []string {
	t.Helper()
	order, err := schedule.Resolve(tasks, edges)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	return order
}

func TestCriticalPathSingleTaskSlack(t *testing.T) {
	tasks := []domain.VendorTask{task("dinner", "catering-co", "reception", 17, 0, 60, 0, 0)}
	order := mustResolve(t, tasks, nil)
	timings, err := schedule.ComputeCriticalPath(testEvent(), tasks, order, nil)
	if err != nil {
		t.Fatalf("cpm: %v", err)
	}
	tm := timings["dinner"]
	if !tm.EarliestStart.Equal(at(14, 0)) {
		t.Fatalf("earliest = %v", tm.EarliestStart)
	}
	if !tm.LatestStart.Equal(at(21, 0)) {
		t.Fatalf("latest = %v", tm.LatestStart)
	}
	if tm.SlackMinutes != 420 || tm.Critical {
		t.Fatalf("slack = %d critical = %v", tm.SlackMinutes, tm.Critical)
	}
}

func TestCriticalPathSetupAndBreakdownTightenBounds(t *testing.T) {
	tasks := []domain.VendorTask{task("stage", "venue-co", "reception", 17, 0, 60, 30, 45)}
	order := mustResolve(t, tasks, nil)
	timings, err := schedule.ComputeCriticalPath(testEvent(), tasks, order, nil)
	if err != nil {
		t.Fatalf("cpm: %v", err)
	}
	tm := timings["stage"]
	// Setup must fit after window open; breakdown before window close.
	if !tm.EarliestStart.Equal(at(14, 30)) {
		t.Fatalf("earliest = %v, want 14:30", tm.EarliestStart)
	}
	if !tm.LatestStart.Equal(at(20, 15)) {
		t.Fatalf("latest = %v, want 20:15", tm.LatestStart)
	}
}

func TestCriticalPathChainZeroSlack(t *testing.T) {
	tasks := []domain.VendorTask{
		task("ceremony", "officiant", "ceremony", 14, 0, 240, 0, 0),
		task("reception", "catering-co", "reception", 18, 0, 240, 0, 0),
	}
	edges := []domain.DependencyEdge{edge("ceremony", "reception", domain.EdgeFinishToStart)}
	order := mustResolve(t, tasks, edges)
	timings, err := schedule.ComputeCriticalPath(testEvent(), tasks, order, edges)
	if err != nil {
		t.Fatalf("cpm: %v", err)
	}
	for _, id := range []string{"ceremony", "reception"} {
		tm := timings[id]
		if tm.SlackMinutes != 0 || !tm.Critical {
			t.Fatalf("%s slack = %d critical = %v, want 0/true", id, tm.SlackMinutes, tm.Critical)
		}
	}
	if !timings["reception"].EarliestStart.Equal(at(18, 0)) {
		t.Fatalf("reception earliest = %v", timings["reception"].EarliestStart)
	}
}

func TestCriticalPathInfeasibleChain(t *testing.T) {
	// 5h + 5h chained into an 8h window misses by 2h.
	tasks := []domain.VendorTask{
		task("first", "v1", "ceremony", 14, 0, 300, 0, 0),
		task("second", "v2", "reception", 19, 0, 300, 0, 0),
	}
	edges := []domain.DependencyEdge{edge("first", "second", domain.EdgeFinishToStart)}
	order := mustResolve(t, tasks, edges)
	_, err := schedule.ComputeCriticalPath(testEvent(), tasks, order, edges)
	if !errors.Is(err, schedule.ErrInfeasibleWindow) {
		t.Fatalf("expected infeasible window, got %v", err)
	}
	var iw *schedule.InfeasibleWindowError
	if !errors.As(err, &iw) {
		t.Fatalf("expected *InfeasibleWindowError, got %T", err)
	}
	if iw.ShortfallMinutes != 120 {
		t.Fatalf("shortfall = %d, want 120", iw.ShortfallMinutes)
	}
	if len(iw.TaskIDs) == 0 {
		t.Fatalf("no tasks named in %v", iw)
	}
}

func TestCriticalPathStartToStart(t *testing.T) {
	tasks := []domain.VendorTask{
		task("load-in", "venue-co", "parking", 14, 0, 120, 0, 0),
		task("decorate", "florals-co", "reception", 14, 0, 60, 0, 0),
	}
	edges := []domain.DependencyEdge{edge("load-in", "decorate", domain.EdgeStartToStart)}
	order := mustResolve(t, tasks, edges)
	timings, err := schedule.ComputeCriticalPath(testEvent(), tasks, order, edges)
	if err != nil {
		t.Fatalf("cpm: %v", err)
	}
	// Decorate may start at window open together with load-in, not after it.
	if !timings["decorate"].EarliestStart.Equal(at(14, 0)) {
		t.Fatalf("decorate earliest = %v", timings["decorate"].EarliestStart)
	}
}
