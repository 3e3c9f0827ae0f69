package schedule

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"sort"

	"vowline/internal/domain"
)

// Snapshot is the immutable input to one optimization run: the event, its
// vendor tasks and declared dependencies, captured once. Concurrent edits to
// the underlying timeline do not affect a run in flight; the hash identifies
// exactly what the run was computed against.
type Snapshot struct {
	Event domain.Event
	Tasks []domain.VendorTask
	Edges []domain.DependencyEdge
}

// Task returns the task with the given ID.
func (s Snapshot) Task(id string) (domain.VendorTask, bool) {
	for _, t := range s.Tasks {
		if t.ID == id {
			return t, true
		}
	}
	return domain.VendorTask{}, false
}

// Validate rejects malformed input before any computation: empty or
// duplicate task IDs, negative durations, and window inversion.
func (s Snapshot) Validate() error {
	if !s.Event.WindowEnd.After(s.Event.WindowStart) {
		return invalidf(nil, "event window end must be after start")
	}
	seen := make(map[string]struct{}, len(s.Tasks))
	for _, t := range s.Tasks {
		if t.ID == "" {
			return invalidf(nil, "task id is required")
		}
		if _, dup := seen[t.ID]; dup {
			return invalidf([]string{t.ID}, "duplicate task id")
		}
		seen[t.ID] = struct{}{}
		if t.VendorID == "" {
			return invalidf([]string{t.ID}, "task vendor is required")
		}
		if t.DurationMinutes < 0 || t.SetupMinutes < 0 || t.BreakdownMinutes < 0 {
			return invalidf([]string{t.ID}, "durations must not be negative")
		}
	}
	return nil
}

// Hash computes a stable identity over the snapshot's scheduling-relevant
// fields, in canonical order. Length-prefixed fields keep distinct inputs
// from colliding on concatenation.
func (s Snapshot) Hash() string {
	h := sha256.New()
	writeField := func(data []byte) {
		var length [8]byte
		binary.BigEndian.PutUint64(length[:], uint64(len(data)))
		h.Write(length[:])
		h.Write(data)
	}
	writeInt := func(v int64) {
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], uint64(v))
		writeField(buf[:])
	}

	writeField([]byte(s.Event.ID))
	writeInt(s.Event.WindowStart.Unix())
	writeInt(s.Event.WindowEnd.Unix())

	tasks := make([]domain.VendorTask, len(s.Tasks))
	copy(tasks, s.Tasks)
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })
	writeInt(int64(len(tasks)))
	for _, t := range tasks {
		writeField([]byte(t.ID))
		writeField([]byte(t.VendorID))
		writeField([]byte(t.Category))
		writeField([]byte(t.Zone))
		writeInt(t.Start.Unix())
		writeInt(int64(t.DurationMinutes))
		writeInt(int64(t.SetupMinutes))
		writeInt(int64(t.BreakdownMinutes))
	}

	edges := make([]domain.DependencyEdge, len(s.Edges))
	copy(edges, s.Edges)
	sort.Slice(edges, func(i, j int) bool {
		a, b := edges[i], edges[j]
		if a.FromTaskID != b.FromTaskID {
			return a.FromTaskID < b.FromTaskID
		}
		if a.ToTaskID != b.ToTaskID {
			return a.ToTaskID < b.ToTaskID
		}
		return a.Kind < b.Kind
	})
	writeInt(int64(len(edges)))
	for _, e := range edges {
		writeField([]byte(e.FromTaskID))
		writeField([]byte(e.ToTaskID))
		writeField([]byte(e.Kind))
	}

	return hex.EncodeToString(h.Sum(nil))
}
