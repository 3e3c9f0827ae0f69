package schedule_test

import (
	"context"
	"testing"

	"vowline/internal/config"
	"vowline/internal/domain"
	"vowline/internal/schedule"
)

func newDetector() schedule.Detector {
	return schedule.Detector{Config: config.Default("wedding-1")}
}

func TestDetectZoneOverlapMinutes(t *testing.T) {
	snap := schedule.Snapshot{Event: testEvent(), Tasks: []domain.VendorTask{
		task("florals", "florals-co", "ceremony", 15, 0, 60, 0, 0),
		task("quartet", "strings-co", "ceremony", 15, 30, 60, 0, 0),
	}}
	records, err := newDetector().Detect(context.Background(), snap)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("records = %d, want 1", len(records))
	}
	rec := records[0]
	if rec.Kind != domain.ConflictZoneOverlap {
		t.Fatalf("kind = %s", rec.Kind)
	}
	if rec.OverlapMinutes != 30 {
		t.Fatalf("overlap = %d, want 30", rec.OverlapMinutes)
	}
	if rec.Severity != 30 { // zone weight 1.0 x 30 minutes
		t.Fatalf("severity = %.1f, want 30", rec.Severity)
	}
	if rec.TaskA != "florals" || rec.TaskB != "quartet" {
		t.Fatalf("pair = %s/%s", rec.TaskA, rec.TaskB)
	}
}

func TestDetectDoubleBookingIncludesSetupAndBreakdown(t *testing.T) {
	// Service intervals do not touch, but breakdown of the first runs into
	// setup of the second at the same caterer.
	snap := schedule.Snapshot{Event: testEvent(), Tasks: []domain.VendorTask{
		task("dinner", "catering-co", "reception", 16, 0, 60, 0, 30),
		task("dessert", "catering-co", "garden", 17, 15, 60, 15, 0),
	}}
	records, err := newDetector().Detect(context.Background(), snap)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("records = %d, want 1", len(records))
	}
	rec := records[0]
	if rec.Kind != domain.ConflictVendorDoubleBooking {
		t.Fatalf("kind = %s", rec.Kind)
	}
	// occupied [16:00, 17:30) vs [17:00, 18:15)
	if rec.OverlapMinutes != 30 {
		t.Fatalf("overlap = %d, want 30", rec.OverlapMinutes)
	}
	if rec.Severity != 60 { // double-booking weight 2.0 x 30
		t.Fatalf("severity = %.1f, want 60", rec.Severity)
	}
}

func TestDetectConcurrentZoneIsSilent(t *testing.T) {
	snap := schedule.Snapshot{Event: testEvent(), Tasks: []domain.VendorTask{
		task("prep", "catering-co", "kitchen", 15, 0, 120, 0, 0),
		task("plating", "bakery-co", "kitchen", 15, 30, 60, 0, 0),
	}}
	records, err := newDetector().Detect(context.Background(), snap)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("shared kitchen should not conflict, got %v", records)
	}
}

func TestDetectVenueWindowViolation(t *testing.T) {
	// Setup starts 30 minutes before the window opens.
	snap := schedule.Snapshot{Event: testEvent(), Tasks: []domain.VendorTask{
		task("early-load-in", "venue-co", "parking", 14, 0, 60, 30, 0),
	}}
	records, err := newDetector().Detect(context.Background(), snap)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("records = %d, want 1", len(records))
	}
	rec := records[0]
	if rec.Kind != domain.ConflictVenueWindow {
		t.Fatalf("kind = %s", rec.Kind)
	}
	if rec.OverlapMinutes != 30 {
		t.Fatalf("outside minutes = %d, want 30", rec.OverlapMinutes)
	}
	if rec.TaskB != "" {
		t.Fatalf("window violation should have no second task")
	}
}

func TestDetectDependencyViolationPerKind(t *testing.T) {
	cases := []struct {
		name    string
		kind    domain.EdgeKind
		to      domain.VendorTask
		minutes int
	}{
		{
			// from service ends 15:00, successor setup starts 14:45.
			name:    "finish-to-start counts setup",
			kind:    domain.EdgeFinishToStart,
			to:      task("to", "v2", "reception", 15, 0, 60, 15, 0),
			minutes: 15,
		},
		{
			// successor starts 20 minutes before the predecessor.
			name:    "start-to-start",
			kind:    domain.EdgeStartToStart,
			to:      task("to", "v2", "reception", 13, 40, 60, 0, 0),
			minutes: 20,
		},
		{
			// predecessor occupied until 15:30 (breakdown), successor at 15:00.
			name:    "milestone-gate waits for breakdown",
			kind:    domain.EdgeMilestoneGate,
			to:      task("to", "v2", "reception", 15, 0, 60, 0, 0),
			minutes: 30,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			from := task("from", "v1", "ceremony", 14, 0, 60, 0, 30)
			snap := schedule.Snapshot{
				Event: testEvent(),
				Tasks: []domain.VendorTask{from, tc.to},
				Edges: []domain.DependencyEdge{edge("from", "to", tc.kind)},
			}
			records, err := newDetector().Detect(context.Background(), snap)
			if err != nil {
				t.Fatalf("detect: %v", err)
			}
			var found *domain.ConflictRecord
			for i := range records {
				if records[i].Kind == domain.ConflictDependencyViolation {
					found = &records[i]
				}
			}
			if found == nil {
				t.Fatalf("no dependency violation in %v", records)
			}
			if found.OverlapMinutes != tc.minutes {
				t.Fatalf("violation minutes = %d, want %d", found.OverlapMinutes, tc.minutes)
			}
		})
	}
}

func TestDetectSatisfiedEdgeIsSilent(t *testing.T) {
	from := task("from", "v1", "ceremony", 14, 0, 60, 0, 0)
	to := task("to", "v2", "reception", 15, 30, 60, 15, 0)
	snap := schedule.Snapshot{
		Event: testEvent(),
		Tasks: []domain.VendorTask{from, to},
		Edges: []domain.DependencyEdge{edge("from", "to", domain.EdgeFinishToStart)},
	}
	records, err := newDetector().Detect(context.Background(), snap)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("satisfied edge should not conflict, got %v", records)
	}
}

func TestDetectDeterministicAcrossInputOrder(t *testing.T) {
	a := task("florals", "florals-co", "ceremony", 15, 0, 60, 0, 0)
	b := task("quartet", "strings-co", "ceremony", 15, 30, 60, 0, 0)
	c := task("dinner", "catering-co", "reception", 16, 0, 60, 0, 30)
	d := task("dessert", "catering-co", "garden", 17, 15, 60, 15, 0)

	one, err := newDetector().Detect(context.Background(),
		schedule.Snapshot{Event: testEvent(), Tasks: []domain.VendorTask{a, b, c, d}})
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	two, err := newDetector().Detect(context.Background(),
		schedule.Snapshot{Event: testEvent(), Tasks: []domain.VendorTask{d, c, b, a}})
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if len(one) != len(two) {
		t.Fatalf("lengths differ: %d vs %d", len(one), len(two))
	}
	for i := range one {
		if one[i].ID != two[i].ID {
			t.Fatalf("record %d differs: %s vs %s", i, one[i].ID, two[i].ID)
		}
	}
}

func TestDetectTaskIsLocalized(t *testing.T) {
	snap := schedule.Snapshot{Event: testEvent(), Tasks: []domain.VendorTask{
		task("florals", "florals-co", "ceremony", 15, 0, 60, 0, 0),
		task("quartet", "strings-co", "ceremony", 15, 30, 60, 0, 0),
		task("dinner", "catering-co", "reception", 16, 0, 60, 0, 30),
		task("dessert", "catering-co", "garden", 17, 15, 60, 15, 0),
	}}
	records := newDetector().DetectTask(snap, "florals")
	if len(records) != 1 {
		t.Fatalf("records = %d, want 1", len(records))
	}
	if records[0].TaskA != "florals" && records[0].TaskB != "florals" {
		t.Fatalf("record does not involve florals: %+v", records[0])
	}
}
