package schedule_test

import (
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"vowline/internal/domain"
	"vowline/internal/schedule"
)

func at(hh, mm int) time.Time {
	return time.Date(2025, 6, 15, hh, mm, 0, 0, time.UTC)
}

func testEvent() domain.Event {
	return domain.Event{
		ID:          "wedding-1",
		WindowStart: at(14, 0),
		WindowEnd:   at(22, 0),
	}
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

func edge(from, to string, kind domain.EdgeKind) domain.DependencyEdge {
	return domain.DependencyEdge{EventID: "wedding-1", FromTaskID: from, ToTaskID: to, Kind: kind}
}

func TestResolveOrdersByStartThenID(t *testing.T) {
	tasks := []domain.VendorTask{
		task("b-photos", "photo", "garden", 16, 0, 60, 0, 0),
		task("a-florals", "florals", "ceremony", 15, 0, 60, 0, 0),
		task("c-cake", "bakery", "reception", 15, 0, 30, 0, 0),
	}
	order, err := schedule.Resolve(tasks, nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	want := []string{"a-florals", "c-cake", "b-photos"}
	if !reflect.DeepEqual(order, want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
}

func TestResolveInputOrderIrrelevant(t *testing.T) {
	a := task("setup-chairs", "venue-co", "ceremony", 14, 0, 60, 0, 0)
	b := task("florals", "florals", "ceremony", 15, 0, 60, 0, 0)
	c := task("sound-check", "dj", "reception", 16, 0, 30, 0, 0)
	edges := []domain.DependencyEdge{
		edge("setup-chairs", "florals", domain.EdgeFinishToStart),
		edge("florals", "sound-check", domain.EdgeFinishToStart),
	}
	first, err := schedule.Resolve([]domain.VendorTask{a, b, c}, edges)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	second, err := schedule.Resolve([]domain.VendorTask{c, a, b}, edges)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("orders differ: %v vs %v", first, second)
	}
}

func TestResolveRespectsEdgeAgainstStartOrder(t *testing.T) {
	// late starts first in the plan, but the edge forces it before early.
	early := task("early", "v1", "ceremony", 14, 0, 30, 0, 0)
	late := task("late", "v2", "reception", 18, 0, 30, 0, 0)
	order, err := schedule.Resolve(
		[]domain.VendorTask{early, late},
		[]domain.DependencyEdge{edge("late", "early", domain.EdgeFinishToStart)},
	)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if order[0] != "late" || order[1] != "early" {
		t.Fatalf("order = %v, want [late early]", order)
	}
}

func TestResolveCycleWitness(t *testing.T) {
	tasks := []domain.VendorTask{
		task("a", "v1", "ceremony", 14, 0, 30, 0, 0),
		task("b", "v2", "ceremony", 15, 0, 30, 0, 0),
		task("c", "v3", "ceremony", 16, 0, 30, 0, 0),
	}
	edges := []domain.DependencyEdge{
		edge("a", "b", domain.EdgeFinishToStart),
		edge("b", "c", domain.EdgeFinishToStart),
		edge("c", "a", domain.EdgeFinishToStart),
	}
	_, err := schedule.Resolve(tasks, edges)
	if !errors.Is(err, schedule.ErrCycle) {
		t.Fatalf("expected cycle error, got %v", err)
	}
	var ce *schedule.CycleError
	if !errors.As(err, &ce) {
		t.Fatalf("expected *CycleError, got %T", err)
	}
	if len(ce.Cycle) < 4 || ce.Cycle[0] != ce.Cycle[len(ce.Cycle)-1] {
		t.Fatalf("witness not closed: %v", ce.Cycle)
	}
	if fix := ce.SuggestedFix(); !strings.Contains(fix, "remove dependency edge") {
		t.Fatalf("suggested fix %q", fix)
	}
}

func TestResolveEdgeValidation(t *testing.T) {
	a := task("a", "v1", "ceremony", 14, 0, 30, 0, 0)
	b := task("b", "v2", "ceremony", 15, 0, 30, 0, 0)
	cases := []struct {
		name  string
		edges []domain.DependencyEdge
	}{
		{"unknown task", []domain.DependencyEdge{edge("a", "ghost", domain.EdgeFinishToStart)}},
		{"self loop", []domain.DependencyEdge{edge("a", "a", domain.EdgeFinishToStart)}},
		{"bad kind", []domain.DependencyEdge{edge("a", "b", "sometime-later")}},
		{"duplicate", []domain.DependencyEdge{
			edge("a", "b", domain.EdgeFinishToStart),
			edge("a", "b", domain.EdgeStartToStart),
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := schedule.Resolve([]domain.VendorTask{a, b}, tc.edges)
			if !errors.Is(err, schedule.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestSnapshotValidate(t *testing.T) {
	snap := schedule.Snapshot{Event: testEvent(), Tasks: []domain.VendorTask{
		task("a", "v1", "ceremony", 14, 0, 30, 0, 0),
		task("a", "v2", "ceremony", 15, 0, 30, 0, 0),
	}}
	if err := snap.Validate(); !errors.Is(err, schedule.ErrValidation) {
		t.Fatalf("expected duplicate id rejection, got %v", err)
	}
	inverted := schedule.Snapshot{Event: domain.Event{ID: "e", WindowStart: at(22, 0), WindowEnd: at(14, 0)}}
	if err := inverted.Validate(); !errors.Is(err, schedule.ErrValidation) {
		t.Fatalf("expected window inversion rejection, got %v", err)
	}
}

func TestSnapshotHashStability(t *testing.T) {
	a := task("a", "v1", "ceremony", 14, 0, 30, 0, 0)
	b := task("b", "v2", "reception", 15, 0, 30, 0, 0)
	one := schedule.Snapshot{Event: testEvent(), Tasks: []domain.VendorTask{a, b}}
	two := schedule.Snapshot{Event: testEvent(), Tasks: []domain.VendorTask{b, a}}
	if one.Hash() != two.Hash() {
		t.Fatalf("hash should not depend on task order")
	}
	moved := schedule.Snapshot{Event: testEvent(), Tasks: []domain.VendorTask{a, task("b", "v2", "reception", 15, 30, 30, 0, 0)}}
	if one.Hash() == moved.Hash() {
		t.Fatalf("hash should change when a start moves")
	}
}
