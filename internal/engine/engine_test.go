package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"vowline/internal/config"
	"vowline/internal/db"
	"vowline/internal/domain"
	"vowline/internal/engine"
	"vowline/internal/migrate"
	"vowline/internal/schedule"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func at(hh, mm int) time.Time {
	return time.Date(2025, 6, 15, hh, mm, 0, 0, time.UTC)
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, config.Default("wedding-1"))
	eng.Now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	ctx := context.Background()
	if _, err := eng.CreateEvent(ctx, engine.EventCreateOptions{
		ID:          "wedding-1",
		Name:        "Riverside Wedding",
		WindowStart: at(14, 0),
		WindowEnd:   at(22, 0),
		ActorID:     "tester",
	}); err != nil {
		t.Fatalf("create event: %v", err)
	}
	return testEnv{Engine: eng, Ctx: ctx}
}

func (env testEnv) addTask(t *testing.T, id, vendor, zone string, hh, mm, duration, setup, breakdown int) domain.VendorTask {
	t.Helper()
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
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
		ActorID:          "tester",
	})
	if err != nil {
		t.Fatalf("create task %s: %v", id, err)
	}
	return task
}

func TestOptimizeEventPersistsResult(t *testing.T) {
	env := newTestEnv(t)
	env.addTask(t, "florals", "florals-co", "ceremony", 15, 0, 60, 0, 0)
	env.addTask(t, "quartet", "strings-co", "ceremony", 15, 30, 60, 0, 0)

	result, err := env.Engine.OptimizeEvent(env.Ctx, "wedding-1", engine.OptimizeOptions{ActorID: "tester"})
	if err != nil {
		t.Fatalf("optimize: %v", err)
	}
	if result.RunID == "" || result.SnapshotHash == "" {
		t.Fatalf("result missing identity: %+v", result)
	}
	if len(result.Resolved) != 1 || len(result.Unresolved) != 0 {
		t.Fatalf("resolved = %d unresolved = %d", len(result.Resolved), len(result.Unresolved))
	}

	stored, err := env.Engine.Repo.GetResult(env.Ctx, result.RunID)
	if err != nil {
		t.Fatalf("get result: %v", err)
	}
	if stored.SnapshotHash != result.SnapshotHash || len(stored.Adjustments) != len(result.Adjustments) {
		t.Fatalf("stored result differs: %+v vs %+v", stored, result)
	}

	entries, err := env.Engine.Repo.LatestEvents(env.Ctx, 5, "wedding-1", "run.completed", "", "")
	if err != nil {
		t.Fatalf("latest events: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("run.completed entries = %d, want 1", len(entries))
	}
}

func TestResultsAreImmutableHistory(t *testing.T) {
	env := newTestEnv(t)
	env.addTask(t, "florals", "florals-co", "ceremony", 15, 0, 60, 0, 0)
	env.addTask(t, "quartet", "strings-co", "ceremony", 15, 30, 60, 0, 0)

	first, err := env.Engine.OptimizeEvent(env.Ctx, "wedding-1", engine.OptimizeOptions{})
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := env.Engine.OptimizeEvent(env.Ctx, "wedding-1", engine.OptimizeOptions{})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if first.RunID == second.RunID {
		t.Fatalf("runs must not share an id")
	}
	// Runs never mutate the stored timeline, so both hashes agree.
	if first.SnapshotHash != second.SnapshotHash {
		t.Fatalf("snapshot hash changed between runs over the same timeline")
	}
	results, err := env.Engine.Repo.ListResults(env.Ctx, "wedding-1", 10)
	if err != nil {
		t.Fatalf("list results: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
}

func TestAddDependencyRejectsCycleAtEditTime(t *testing.T) {
	env := newTestEnv(t)
	env.addTask(t, "a", "v1", "ceremony", 14, 0, 30, 0, 0)
	env.addTask(t, "b", "v2", "reception", 15, 0, 30, 0, 0)
	if _, err := env.Engine.AddDependency(env.Ctx, "wedding-1", "a", "b", domain.EdgeFinishToStart, "tester"); err != nil {
		t.Fatalf("a->b: %v", err)
	}
	_, err := env.Engine.AddDependency(env.Ctx, "wedding-1", "b", "a", domain.EdgeFinishToStart, "tester")
	if !errors.Is(err, schedule.ErrCycle) {
		t.Fatalf("expected cycle rejection, got %v", err)
	}
	edges, err := env.Engine.Repo.ListEdges(env.Ctx, "wedding-1")
	if err != nil {
		t.Fatalf("list edges: %v", err)
	}
	if len(edges) != 1 {
		t.Fatalf("rejected edge was stored: %v", edges)
	}
}

func TestDetectConflictsIsReadOnly(t *testing.T) {
	env := newTestEnv(t)
	env.addTask(t, "florals", "florals-co", "ceremony", 15, 0, 60, 0, 0)
	env.addTask(t, "quartet", "strings-co", "ceremony", 15, 30, 60, 0, 0)

	conflicts, err := env.Engine.DetectConflicts(env.Ctx, "wedding-1")
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if len(conflicts) != 1 {
		t.Fatalf("conflicts = %d, want 1", len(conflicts))
	}
	results, err := env.Engine.Repo.ListResults(env.Ctx, "wedding-1", 10)
	if err != nil {
		t.Fatalf("list results: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("detect-only run persisted a result")
	}
}

func TestRecordActualsFeedsProfile(t *testing.T) {
	env := newTestEnv(t)
	if err := env.Engine.Start(env.Ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	env.addTask(t, "dinner", "catering-co", "reception", 17, 0, 60, 0, 0)

	actual, err := env.Engine.RecordActuals(env.Ctx, "wedding-1", "dinner", at(17, 20), 75, "tester")
	if err != nil {
		t.Fatalf("record actuals: %v", err)
	}
	if actual.DelayMinutes != 20 || actual.DurationDeltaMinutes != 15 {
		t.Fatalf("actual = %+v", actual)
	}
	env.Engine.Updater.Close()

	p, ok := env.Engine.Profiles.Get("catering-co", "catering")
	if !ok {
		t.Fatalf("profile not updated")
	}
	// Finish delay: 20 late + 15 overrun.
	if p.MeanDelayMinutes != 35 || p.SampleCount != 1 {
		t.Fatalf("profile = %+v", p)
	}
	stored, err := env.Engine.Repo.GetProfile(env.Ctx, "catering-co", "catering")
	if err != nil {
		t.Fatalf("get profile: %v", err)
	}
	if stored.MeanDelayMinutes != 35 {
		t.Fatalf("persisted profile = %+v", stored)
	}
}

func TestOptimizeInfeasibleWindowAborts(t *testing.T) {
	env := newTestEnv(t)
	env.addTask(t, "first", "v1", "ceremony", 14, 0, 300, 0, 0)
	env.addTask(t, "second", "v2", "reception", 19, 0, 300, 0, 0)
	if _, err := env.Engine.AddDependency(env.Ctx, "wedding-1", "first", "second", domain.EdgeFinishToStart, "tester"); err != nil {
		t.Fatalf("add edge: %v", err)
	}
	_, err := env.Engine.OptimizeEvent(env.Ctx, "wedding-1", engine.OptimizeOptions{})
	if !errors.Is(err, schedule.ErrInfeasibleWindow) {
		t.Fatalf("expected infeasible window, got %v", err)
	}
	results, _ := env.Engine.Repo.ListResults(env.Ctx, "wedding-1", 10)
	if len(results) != 0 {
		t.Fatalf("aborted run persisted a result")
	}
}

func TestUpdateTaskMovesStart(t *testing.T) {
	env := newTestEnv(t)
	env.addTask(t, "florals", "florals-co", "ceremony", 15, 0, 60, 0, 0)
	newStart := at(16, 0)
	updated, err := env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{
		ID: "florals", Start: &newStart, ActorID: "tester",
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !updated.Start.Equal(newStart) {
		t.Fatalf("start = %v", updated.Start)
	}
	got, err := env.Engine.Repo.GetTask(env.Ctx, "florals")
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if !got.Start.Equal(newStart) {
		t.Fatalf("stored start = %v", got.Start)
	}
}
