package domain

import "time"

// Event is one wedding-day schedule container. Every task belongs to
// exactly one event and should fit inside its venue window.
type Event struct {
	ID          string    `json:"id"`
	Name        string    `json:"name,omitempty"`
	Date        string    `json:"date" format:"date"`
	WindowStart time.Time `json:"window_start" format:"date-time"`
	WindowEnd   time.Time `json:"window_end" format:"date-time"`
	Status      string    `json:"status" enum:"planning,confirmed,completed"`
	CreatedAt   string    `json:"created_at" format:"date-time"`
}

// WindowMinutes returns the venue window length in whole minutes.
func (e Event) WindowMinutes() int {
	return int(e.WindowEnd.Sub(e.WindowStart) / time.Minute)
}

type VendorTask struct {
	ID               string    `json:"id"`
	EventID          string    `json:"event_id"`
	VendorID         string    `json:"vendor_id"`
	Category         string    `json:"category"`
	Title            string    `json:"title"`
	Zone             string    `json:"zone"`
	Start            time.Time `json:"start" format:"date-time"`
	DurationMinutes  int       `json:"duration_minutes"`
	SetupMinutes     int       `json:"setup_minutes"`
	BreakdownMinutes int       `json:"breakdown_minutes"`
	Priority         int       `json:"priority,omitempty"`
	CreatedAt        string    `json:"created_at" format:"date-time"`
	UpdatedAt        string    `json:"updated_at" format:"date-time"`
}

// OccupiedStart is the real-world footprint start, including setup.
func (t VendorTask) OccupiedStart() time.Time {
	return t.Start.Add(-time.Duration(t.SetupMinutes) * time.Minute)
}

// OccupiedEnd is the footprint end, including breakdown. The occupied
// interval is half-open: [OccupiedStart, OccupiedEnd).
func (t VendorTask) OccupiedEnd() time.Time {
	return t.Start.Add(time.Duration(t.DurationMinutes+t.BreakdownMinutes) * time.Minute)
}

// ServiceEnd is the advertised service finish, excluding breakdown.
func (t VendorTask) ServiceEnd() time.Time {
	return t.Start.Add(time.Duration(t.DurationMinutes) * time.Minute)
}

// EdgeKind constrains how a dependency gates its successor.
type EdgeKind string

const (
	// EdgeFinishToStart requires the successor's occupied interval to begin
	// after the predecessor's service finish.
	EdgeFinishToStart EdgeKind = "finish-to-start"
	// EdgeStartToStart requires the successor's service start to follow the
	// predecessor's service start.
	EdgeStartToStart EdgeKind = "start-to-start"
	// EdgeMilestoneGate requires the predecessor to be fully cleared out,
	// breakdown included, before the successor's service start.
	EdgeMilestoneGate EdgeKind = "milestone-gate"
)

func (k EdgeKind) Valid() bool {
	switch k {
	case EdgeFinishToStart, EdgeStartToStart, EdgeMilestoneGate:
		return true
	}
	return false
}

type DependencyEdge struct {
	EventID    string   `json:"event_id"`
	FromTaskID string   `json:"from_task_id"`
	ToTaskID   string   `json:"to_task_id"`
	Kind       EdgeKind `json:"kind" enum:"finish-to-start,start-to-start,milestone-gate"`
	CreatedAt  string   `json:"created_at" format:"date-time"`
}

// ConflictKind is a closed enumeration of conflict categories.
type ConflictKind string

const (
	ConflictZoneOverlap         ConflictKind = "zone-overlap"
	ConflictVendorDoubleBooking ConflictKind = "vendor-double-booking"
	ConflictDependencyViolation ConflictKind = "dependency-violation"
	ConflictVenueWindow         ConflictKind = "venue-window-violation"
)

// ConflictRecord is a detected scheduling conflict between a pair of tasks,
// or between one task and the venue window. Records are produced fresh on
// every detection run and never mutated.
type ConflictRecord struct {
	ID             string       `json:"id"`
	EventID        string       `json:"event_id"`
	Kind           ConflictKind `json:"kind" enum:"zone-overlap,vendor-double-booking,dependency-violation,venue-window-violation"`
	TaskA          string       `json:"task_a"`
	TaskB          string       `json:"task_b,omitempty"`
	OverlapStart   time.Time    `json:"overlap_start" format:"date-time"`
	OverlapMinutes int          `json:"overlap_minutes"`
	Severity       float64      `json:"severity"`
	Detail         string       `json:"detail,omitempty"`
}

// VendorPerformanceProfile is the rolling per vendor+category summary of
// actual-vs-planned outcomes. Updated asynchronously after actuals are
// recorded; read-only during an optimization run.
type VendorPerformanceProfile struct {
	VendorID         string  `json:"vendor_id"`
	Category         string  `json:"category"`
	MeanDelayMinutes float64 `json:"mean_delay_minutes"`
	DelayVariance    float64 `json:"delay_variance"`
	OnTimeRate       float64 `json:"on_time_rate"`
	SampleCount      int     `json:"sample_count"`
	UpdatedAt        string  `json:"updated_at" format:"date-time"`
}

// ReliabilityScore is what the optimizer consumes. Confidence below the
// configured threshold means the vendor is treated as category-average.
type ReliabilityScore struct {
	ExpectedDelayMinutes float64 `json:"expected_delay_minutes"`
	DelayVariance        float64 `json:"delay_variance"`
	Confidence           float64 `json:"confidence"`
}

// TaskActual records a measured outcome for one task of a completed event.
type TaskActual struct {
	EventID              string    `json:"event_id"`
	TaskID               string    `json:"task_id"`
	ActualStart          time.Time `json:"actual_start" format:"date-time"`
	ActualDurationMins   int       `json:"actual_duration_minutes"`
	DelayMinutes         int       `json:"delay_minutes"`
	DurationDeltaMinutes int       `json:"duration_delta_minutes"`
	RecordedAt           string    `json:"recorded_at" format:"date-time"`
}

// Adjustment is one proposed schedule change in an optimization result.
type Adjustment struct {
	TaskID             string    `json:"task_id"`
	OldStart           time.Time `json:"old_start" format:"date-time"`
	NewStart           time.Time `json:"new_start" format:"date-time"`
	AddedBufferMinutes int       `json:"added_buffer_minutes,omitempty"`
	Move               string    `json:"move" enum:"shift-within-slack,insert-buffer"`
	Reason             string    `json:"reason,omitempty"`
}

// ResolvedConflict pairs a conflict with the move that eliminated it.
type ResolvedConflict struct {
	Conflict ConflictRecord `json:"conflict"`
	Move     string         `json:"move" enum:"shift-within-slack,insert-buffer"`
	TaskID   string         `json:"task_id"`
}

// UnresolvedConflict explains why a conflict survived the run: which moves
// were attempted and why they failed, plus whether the cause was structural
// infeasibility or budget exhaustion.
type UnresolvedConflict struct {
	Conflict       ConflictRecord `json:"conflict"`
	Cause          string         `json:"cause" enum:"infeasible,budget-exhausted"`
	AttemptedMoves []string       `json:"attempted_moves,omitempty"`
}

// OptimizationResult is the engine's proposed revised schedule. Immutable;
// a new run produces a new result rather than patching the old one.
type OptimizationResult struct {
	RunID          string               `json:"run_id"`
	EventID        string               `json:"event_id"`
	SnapshotHash   string               `json:"snapshot_hash"`
	Adjustments    []Adjustment         `json:"adjustments"`
	Resolved       []ResolvedConflict   `json:"resolved"`
	Unresolved     []UnresolvedConflict `json:"unresolved"`
	RiskScore      float64              `json:"risk_score"`
	Partial        bool                 `json:"partial"`
	IterationsUsed int                  `json:"iterations_used"`
	CreatedAt      string               `json:"created_at" format:"date-time"`
}

// AuditEvent is one row of the append-only engine log.
type AuditEvent struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EventID    string `json:"event_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
