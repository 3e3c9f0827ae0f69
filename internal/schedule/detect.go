package schedule

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"vowline/internal/config"
	"vowline/internal/domain"
)

// Detector finds all scheduling conflicts in a snapshot. Detection is pure
// and deterministic: the same snapshot always yields the same record set,
// regardless of input task order.
type Detector struct {
	Config *config.Config
}

// Detect sweeps zone and vendor groups for occupied-interval overlaps and
// checks every dependency edge and the venue window. Groups are independent
// and scanned in parallel; results merge into one deterministically sorted
// slice.
func (d Detector) Detect(ctx context.Context, snap Snapshot) ([]domain.ConflictRecord, error) {
	byZone := map[string][]domain.VendorTask{}
	byVendor := map[string][]domain.VendorTask{}
	for _, t := range snap.Tasks {
		if t.Zone != "" && !d.Config.ZoneAllowsConcurrent(t.Zone) {
			byZone[t.Zone] = append(byZone[t.Zone], t)
		}
		byVendor[t.VendorID] = append(byVendor[t.VendorID], t)
	}

	var (
		mu  sync.Mutex
		out []domain.ConflictRecord
	)
	g, ctx := errgroup.WithContext(ctx)
	for zone, group := range byZone {
		zone, group := zone, group
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			records := sweepGroup(snap.Event.ID, group, domain.ConflictZoneOverlap,
				d.Config.Weight(string(domain.ConflictZoneOverlap)), "zone "+zone)
			mu.Lock()
			out = append(out, records...)
			mu.Unlock()
			return nil
		})
	}
	for vendor, group := range byVendor {
		vendor, group := vendor, group
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			records := sweepGroup(snap.Event.ID, group, domain.ConflictVendorDoubleBooking,
				d.Config.Weight(string(domain.ConflictVendorDoubleBooking)), "vendor "+vendor)
			mu.Lock()
			out = append(out, records...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, e := range snap.Edges {
		if rec, ok := d.edgeViolation(snap, e); ok {
			out = append(out, rec)
		}
	}
	for _, t := range snap.Tasks {
		if rec, ok := d.windowViolation(snap.Event, t); ok {
			out = append(out, rec)
		}
	}

	sortConflicts(out)
	return out, nil
}

// DetectTask reports only conflicts involving the given task: its zone and
// vendor groups, its incident edges and the venue window. Used for localized
// re-checks after an optimizer move.
func (d Detector) DetectTask(snap Snapshot, taskID string) []domain.ConflictRecord {
	target, ok := snap.Task(taskID)
	if !ok {
		return nil
	}
	var out []domain.ConflictRecord
	var zoneGroup, vendorGroup []domain.VendorTask
	for _, t := range snap.Tasks {
		if t.Zone == target.Zone && target.Zone != "" && !d.Config.ZoneAllowsConcurrent(target.Zone) {
			zoneGroup = append(zoneGroup, t)
		}
		if t.VendorID == target.VendorID {
			vendorGroup = append(vendorGroup, t)
		}
	}
	for _, rec := range sweepGroup(snap.Event.ID, zoneGroup, domain.ConflictZoneOverlap,
		d.Config.Weight(string(domain.ConflictZoneOverlap)), "zone "+target.Zone) {
		if rec.TaskA == taskID || rec.TaskB == taskID {
			out = append(out, rec)
		}
	}
	for _, rec := range sweepGroup(snap.Event.ID, vendorGroup, domain.ConflictVendorDoubleBooking,
		d.Config.Weight(string(domain.ConflictVendorDoubleBooking)), "vendor "+target.VendorID) {
		if rec.TaskA == taskID || rec.TaskB == taskID {
			out = append(out, rec)
		}
	}
	for _, e := range snap.Edges {
		if e.FromTaskID != taskID && e.ToTaskID != taskID {
			continue
		}
		if rec, ok := d.edgeViolation(snap, e); ok {
			out = append(out, rec)
		}
	}
	if rec, ok := d.windowViolation(snap.Event, target); ok {
		out = append(out, rec)
	}
	sortConflicts(out)
	return out
}

// sweepGroup sorts the group's occupied intervals by start and walks each
// interval forward while successors still begin before it ends. O(n log n)
// plus output size.
func sweepGroup(eventID string, group []domain.VendorTask, kind domain.ConflictKind, weight float64, detail string) []domain.ConflictRecord {
	if len(group) < 2 {
		return nil
	}
	sorted := make([]domain.VendorTask, len(group))
	copy(sorted, group)
	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if !a.OccupiedStart().Equal(b.OccupiedStart()) {
			return a.OccupiedStart().Before(b.OccupiedStart())
		}
		return a.ID < b.ID
	})
	var out []domain.ConflictRecord
	for i := 0; i < len(sorted); i++ {
		end := sorted[i].OccupiedEnd()
		for j := i + 1; j < len(sorted); j++ {
			if !sorted[j].OccupiedStart().Before(end) {
				break
			}
			overlapEnd := end
			if sorted[j].OccupiedEnd().Before(overlapEnd) {
				overlapEnd = sorted[j].OccupiedEnd()
			}
			overlapStart := sorted[j].OccupiedStart()
			minutes := int(overlapEnd.Sub(overlapStart) / time.Minute)
			a, b := sorted[i].ID, sorted[j].ID
			if b < a {
				a, b = b, a
			}
			out = append(out, newConflict(eventID, kind, a, b, overlapStart, minutes, weight, detail))
		}
	}
	return out
}

func (d Detector) edgeViolation(snap Snapshot, e domain.DependencyEdge) (domain.ConflictRecord, bool) {
	from, okFrom := snap.Task(e.FromTaskID)
	to, okTo := snap.Task(e.ToTaskID)
	if !okFrom || !okTo {
		return domain.ConflictRecord{}, false
	}
	var required time.Time
	var actual time.Time
	switch e.Kind {
	case domain.EdgeFinishToStart:
		required = from.ServiceEnd()
		actual = to.OccupiedStart()
	case domain.EdgeStartToStart:
		required = from.Start
		actual = to.Start
	case domain.EdgeMilestoneGate:
		required = from.OccupiedEnd()
		actual = to.Start
	default:
		return domain.ConflictRecord{}, false
	}
	if !actual.Before(required) {
		return domain.ConflictRecord{}, false
	}
	minutes := int(required.Sub(actual) / time.Minute)
	detail := fmt.Sprintf("%s edge %s -> %s violated by %d minutes", e.Kind, e.FromTaskID, e.ToTaskID, minutes)
	rec := newConflict(snap.Event.ID, domain.ConflictDependencyViolation, e.FromTaskID, e.ToTaskID,
		actual, minutes, d.Config.Weight(string(domain.ConflictDependencyViolation)), detail)
	return rec, true
}

func (d Detector) windowViolation(event domain.Event, t domain.VendorTask) (domain.ConflictRecord, bool) {
	outside := 0
	start := t.OccupiedStart()
	if start.Before(event.WindowStart) {
		outside += int(event.WindowStart.Sub(start) / time.Minute)
		start = event.WindowStart
	}
	if t.OccupiedEnd().After(event.WindowEnd) {
		outside += int(t.OccupiedEnd().Sub(event.WindowEnd) / time.Minute)
	}
	if outside == 0 {
		return domain.ConflictRecord{}, false
	}
	detail := fmt.Sprintf("occupied interval extends %d minutes outside venue window", outside)
	rec := newConflict(event.ID, domain.ConflictVenueWindow, t.ID, "",
		t.OccupiedStart(), outside, d.Config.Weight(string(domain.ConflictVenueWindow)), detail)
	return rec, true
}

// newConflict assigns a deterministic ID so the record set is stable across
// runs over the same snapshot.
func newConflict(eventID string, kind domain.ConflictKind, taskA, taskB string, overlapStart time.Time, minutes int, weight float64, detail string) domain.ConflictRecord {
	if minutes < 1 {
		minutes = 1
	}
	sum := sha256.Sum256([]byte(eventID + "|" + string(kind) + "|" + taskA + "|" + taskB))
	return domain.ConflictRecord{
		ID:             hex.EncodeToString(sum[:8]),
		EventID:        eventID,
		Kind:           kind,
		TaskA:          taskA,
		TaskB:          taskB,
		OverlapStart:   overlapStart,
		OverlapMinutes: minutes,
		Severity:       weight * float64(minutes),
		Detail:         detail,
	}
}

func sortConflicts(records []domain.ConflictRecord) {
	sort.Slice(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if a.Severity != b.Severity {
			return a.Severity > b.Severity
		}
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		if a.TaskA != b.TaskA {
			return a.TaskA < b.TaskA
		}
		return a.TaskB < b.TaskB
	})
}
