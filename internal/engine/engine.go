package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"vowline/internal/config"
	"vowline/internal/domain"
	"vowline/internal/events"
	"vowline/internal/optimizer"
	"vowline/internal/profile"
	"vowline/internal/repo"
	"vowline/internal/schedule"
)

// Engine wires the timeline store, the scheduling core and the vendor
// profile feedback loop. One Engine serves many events; each optimization
// run works on its own captured snapshot, so runs for different events are
// safe to execute in parallel.
type Engine struct {
	DB       *sql.DB
	Repo     repo.Repo
	Events   events.Writer
	Config   *config.Config
	Profiles *profile.Store
	Updater  *profile.Updater
	Now      func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	r := repo.Repo{DB: db}
	store := profile.NewStore(cfg)
	e := Engine{
		DB:       db,
		Repo:     r,
		Events:   events.Writer{DB: db},
		Config:   cfg,
		Profiles: store,
		Now:      time.Now,
	}
	e.Updater = profile.NewUpdater(store, func(ctx context.Context, p domain.VendorPerformanceProfile) error {
		return r.UpsertProfile(ctx, p)
	})
	return e
}

// Start loads persisted profiles into the read snapshot and starts the
// asynchronous profile worker.
func (e Engine) Start(ctx context.Context) error {
	profiles, err := e.Repo.ListProfiles(ctx)
	if err != nil {
		return fmt.Errorf("load vendor profiles: %w", err)
	}
	e.Profiles.Load(profiles)
	e.Updater.Start(ctx)
	return nil
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// EventCreateOptions are parameters for creating an event.
type EventCreateOptions struct {
	ID          string
	Name        string
	Date        string
	WindowStart time.Time
	WindowEnd   time.Time
	ActorID     string
}

func (e Engine) CreateEvent(ctx context.Context, opts EventCreateOptions) (domain.Event, error) {
	if opts.ID == "" {
		return domain.Event{}, errors.New("event id is required")
	}
	if !opts.WindowEnd.After(opts.WindowStart) {
		return domain.Event{}, errors.New("window end must be after window start")
	}
	if opts.Date == "" {
		opts.Date = opts.WindowStart.UTC().Format("2006-01-02")
	}
	ev := domain.Event{
		ID:          opts.ID,
		Name:        opts.Name,
		Date:        opts.Date,
		WindowStart: opts.WindowStart.UTC(),
		WindowEnd:   opts.WindowEnd.UTC(),
		Status:      "planning",
		CreatedAt:   e.now().UTC().Format(time.RFC3339),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Event{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertEvent(ctx, tx, ev); err != nil {
		return domain.Event{}, fmt.Errorf("insert event: %w", err)
	}
	if err := e.Repo.UpsertEventConfigTx(ctx, tx, ev.ID, config.Default(ev.ID)); err != nil {
		return domain.Event{}, fmt.Errorf("seed event config: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "event.created", ev.ID, "event", ev.ID, opts.ActorID, events.EventPayload{
		"window_start": ev.WindowStart.Format(time.RFC3339),
		"window_end":   ev.WindowEnd.Format(time.RFC3339),
	}); err != nil {
		return domain.Event{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Event{}, err
	}
	return ev, nil
}

// TaskCreateOptions are parameters for creating a vendor task.
type TaskCreateOptions struct {
	ID               string
	EventID          string
	VendorID         string
	Category         string
	Title            string
	Zone             string
	Start            time.Time
	DurationMinutes  int
	SetupMinutes     int
	BreakdownMinutes int
	Priority         int
	ActorID          string
}

func (e Engine) CreateTask(ctx context.Context, opts TaskCreateOptions) (domain.VendorTask, error) {
	if opts.EventID == "" {
		return domain.VendorTask{}, errors.New("event is required")
	}
	if opts.VendorID == "" {
		return domain.VendorTask{}, errors.New("vendor is required")
	}
	if opts.Category == "" {
		return domain.VendorTask{}, errors.New("category is required")
	}
	if opts.DurationMinutes < 0 || opts.SetupMinutes < 0 || opts.BreakdownMinutes < 0 {
		return domain.VendorTask{}, errors.New("durations must not be negative")
	}
	if _, err := e.Repo.GetEvent(ctx, opts.EventID); err != nil {
		return domain.VendorTask{}, err
	}
	now := e.now().UTC().Format(time.RFC3339)
	id := opts.ID
	if id == "" {
		id = uuid.NewSHA1(uuid.NameSpaceOID, []byte(opts.EventID+"|"+opts.VendorID+"|"+opts.Title+"|"+now)).String()
	}
	t := domain.VendorTask{
		ID:               id,
		EventID:          opts.EventID,
		VendorID:         opts.VendorID,
		Category:         opts.Category,
		Title:            opts.Title,
		Zone:             opts.Zone,
		Start:            opts.Start.UTC(),
		DurationMinutes:  opts.DurationMinutes,
		SetupMinutes:     opts.SetupMinutes,
		BreakdownMinutes: opts.BreakdownMinutes,
		Priority:         opts.Priority,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.VendorTask{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertTask(ctx, tx, t); err != nil {
		return domain.VendorTask{}, err
	}
	if err := e.Events.Append(ctx, tx, "task.created", t.EventID, "task", t.ID, opts.ActorID, events.EventPayload{
		"vendor": t.VendorID, "zone": t.Zone, "start": t.Start.Format(time.RFC3339),
	}); err != nil {
		return domain.VendorTask{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.VendorTask{}, err
	}
	return t, nil
}

// TaskUpdateOptions encapsulates allowed updates. Nil fields stay as-is.
type TaskUpdateOptions struct {
	ID               string
	Start            *time.Time
	DurationMinutes  *int
	SetupMinutes     *int
	BreakdownMinutes *int
	Zone             *string
	Priority         *int
	ActorID          string
}

func (e Engine) UpdateTask(ctx context.Context, opts TaskUpdateOptions) (domain.VendorTask, error) {
	t, err := e.Repo.GetTask(ctx, opts.ID)
	if err != nil {
		return t, err
	}
	if opts.Start != nil {
		t.Start = opts.Start.UTC()
	}
	if opts.DurationMinutes != nil {
		t.DurationMinutes = *opts.DurationMinutes
	}
	if opts.SetupMinutes != nil {
		t.SetupMinutes = *opts.SetupMinutes
	}
	if opts.BreakdownMinutes != nil {
		t.BreakdownMinutes = *opts.BreakdownMinutes
	}
	if opts.Zone != nil {
		t.Zone = *opts.Zone
	}
	if opts.Priority != nil {
		t.Priority = *opts.Priority
	}
	if t.DurationMinutes < 0 || t.SetupMinutes < 0 || t.BreakdownMinutes < 0 {
		return t, errors.New("durations must not be negative")
	}
	t.UpdatedAt = e.now().UTC().Format(time.RFC3339)
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return t, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return t, err
	}
	if err := e.Events.Append(ctx, tx, "task.updated", t.EventID, "task", t.ID, opts.ActorID, events.EventPayload{
		"start": t.Start.Format(time.RFC3339),
	}); err != nil {
		return t, err
	}
	if err := tx.Commit(); err != nil {
		return t, err
	}
	return t, nil
}

func (e Engine) DeleteTask(ctx context.Context, taskID, actorID string) error {
	t, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteTask(ctx, tx, taskID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "task.deleted", t.EventID, "task", taskID, actorID, events.EventPayload{}); err != nil {
		return err
	}
	return tx.Commit()
}

// AddDependency inserts an edge after proving the graph stays acyclic, so a
// planner learns about a cycle at edit time instead of at the next run.
func (e Engine) AddDependency(ctx context.Context, eventID, fromTaskID, toTaskID string, kind domain.EdgeKind, actorID string) (domain.DependencyEdge, error) {
	if kind == "" {
		kind = domain.EdgeFinishToStart
	}
	if !kind.Valid() {
		return domain.DependencyEdge{}, fmt.Errorf("unknown edge kind %q", kind)
	}
	for _, id := range []string{fromTaskID, toTaskID} {
		t, err := e.Repo.GetTask(ctx, id)
		if err != nil {
			return domain.DependencyEdge{}, fmt.Errorf("task %s: %w", id, err)
		}
		if t.EventID != eventID {
			return domain.DependencyEdge{}, fmt.Errorf("task %s not in event %s", id, eventID)
		}
	}
	edge := domain.DependencyEdge{
		EventID:    eventID,
		FromTaskID: fromTaskID,
		ToTaskID:   toTaskID,
		Kind:       kind,
		CreatedAt:  e.now().UTC().Format(time.RFC3339),
	}
	tasks, err := e.Repo.ListTasks(ctx, eventID)
	if err != nil {
		return domain.DependencyEdge{}, err
	}
	existing, err := e.Repo.ListEdges(ctx, eventID)
	if err != nil {
		return domain.DependencyEdge{}, err
	}
	if _, err := schedule.Resolve(tasks, append(existing, edge)); err != nil {
		return domain.DependencyEdge{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.DependencyEdge{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertEdge(ctx, tx, edge); err != nil {
		return domain.DependencyEdge{}, err
	}
	if err := e.Events.Append(ctx, tx, "dependency.added", eventID, "dependency", fromTaskID+"->"+toTaskID, actorID, events.EventPayload{
		"kind": string(kind),
	}); err != nil {
		return domain.DependencyEdge{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.DependencyEdge{}, err
	}
	return edge, nil
}

func (e Engine) RemoveDependency(ctx context.Context, eventID, fromTaskID, toTaskID, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteEdge(ctx, tx, fromTaskID, toTaskID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "dependency.removed", eventID, "dependency", fromTaskID+"->"+toTaskID, actorID, events.EventPayload{}); err != nil {
		return err
	}
	return tx.Commit()
}

// Snapshot captures the event timeline as the immutable input for one run.
// Later edits to the stored timeline do not affect the returned value.
func (e Engine) Snapshot(ctx context.Context, eventID string) (schedule.Snapshot, error) {
	ev, err := e.Repo.GetEvent(ctx, eventID)
	if err != nil {
		return schedule.Snapshot{}, err
	}
	tasks, err := e.Repo.ListTasks(ctx, eventID)
	if err != nil {
		return schedule.Snapshot{}, err
	}
	edges, err := e.Repo.ListEdges(ctx, eventID)
	if err != nil {
		return schedule.Snapshot{}, err
	}
	return schedule.Snapshot{Event: ev, Tasks: tasks, Edges: edges}, nil
}

// DetectConflicts runs validation and detection only; no schedule changes
// are proposed. Planners use this as a dry run.
func (e Engine) DetectConflicts(ctx context.Context, eventID string) ([]domain.ConflictRecord, error) {
	snap, err := e.Snapshot(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if err := snap.Validate(); err != nil {
		return nil, err
	}
	if _, err := schedule.Resolve(snap.Tasks, snap.Edges); err != nil {
		return nil, err
	}
	detector := schedule.Detector{Config: e.Config}
	return detector.Detect(ctx, snap)
}

// OptimizeOptions tune one run.
type OptimizeOptions struct {
	BudgetIterations int
	Progress         func(optimizer.Progress)
	ActorID          string
}

// OptimizeEvent runs the full pipeline: snapshot, validate, resolve, detect,
// critical path, local search, persist. Structural errors (validation,
// cycle, infeasible window) abort before optimization and are never retried
// here; unresolved conflicts are part of a successful result.
func (e Engine) OptimizeEvent(ctx context.Context, eventID string, opts OptimizeOptions) (domain.OptimizationResult, error) {
	snap, err := e.Snapshot(ctx, eventID)
	if err != nil {
		return domain.OptimizationResult{}, err
	}
	if err := snap.Validate(); err != nil {
		return domain.OptimizationResult{}, err
	}
	order, err := schedule.Resolve(snap.Tasks, snap.Edges)
	if err != nil {
		return domain.OptimizationResult{}, err
	}
	detector := schedule.Detector{Config: e.Config}
	conflicts, err := detector.Detect(ctx, snap)
	if err != nil {
		return domain.OptimizationResult{}, err
	}
	timings, err := schedule.ComputeCriticalPath(snap.Event, snap.Tasks, order, snap.Edges)
	if err != nil {
		return domain.OptimizationResult{}, err
	}
	opt := optimizer.Optimizer{Config: e.Config, Scorer: e.Profiles, Progress: opts.Progress}
	result := opt.Optimize(ctx, snap, conflicts, timings, optimizer.Budget{MaxIterations: opts.BudgetIterations})
	result.RunID = uuid.New().String()
	result.EventID = eventID
	result.SnapshotHash = snap.Hash()
	result.CreatedAt = e.now().UTC().Format(time.RFC3339)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return result, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertResult(ctx, tx, result); err != nil {
		return result, fmt.Errorf("persist result: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "run.completed", eventID, "run", result.RunID, opts.ActorID, events.EventPayload{
		"snapshot_hash": result.SnapshotHash,
		"risk_score":    result.RiskScore,
		"resolved":      len(result.Resolved),
		"unresolved":    len(result.Unresolved),
		"partial":       result.Partial,
	}); err != nil {
		return result, err
	}
	if err := tx.Commit(); err != nil {
		return result, err
	}
	return result, nil
}

// RecordActuals feeds a measured outcome into the profile update path. The
// write is synchronous; the statistical aggregation happens on the profile
// worker so this call stays cheap for the event-completion workflow.
func (e Engine) RecordActuals(ctx context.Context, eventID, taskID string, actualStart time.Time, actualDurationMinutes int, actorID string) (domain.TaskActual, error) {
	if actualDurationMinutes < 0 {
		return domain.TaskActual{}, errors.New("actual duration must not be negative")
	}
	t, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return domain.TaskActual{}, err
	}
	if t.EventID != eventID {
		return domain.TaskActual{}, fmt.Errorf("task %s not in event %s", taskID, eventID)
	}
	actual := domain.TaskActual{
		EventID:              eventID,
		TaskID:               taskID,
		ActualStart:          actualStart.UTC(),
		ActualDurationMins:   actualDurationMinutes,
		DelayMinutes:         int(actualStart.Sub(t.Start) / time.Minute),
		DurationDeltaMinutes: actualDurationMinutes - t.DurationMinutes,
		RecordedAt:           e.now().UTC().Format(time.RFC3339),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return actual, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpsertActual(ctx, tx, actual); err != nil {
		return actual, err
	}
	if err := e.Events.Append(ctx, tx, "actuals.recorded", eventID, "task", taskID, actorID, events.EventPayload{
		"delay_minutes":          actual.DelayMinutes,
		"duration_delta_minutes": actual.DurationDeltaMinutes,
	}); err != nil {
		return actual, err
	}
	if err := tx.Commit(); err != nil {
		return actual, err
	}

	// Finish delay is what the planner feels: late start plus overrun.
	finishDelay := float64(actual.DelayMinutes + actual.DurationDeltaMinutes)
	e.Updater.Enqueue(profile.Update{
		VendorID:     t.VendorID,
		Category:     t.Category,
		DelayMinutes: finishDelay,
		OnTime:       finishDelay <= 0,
	})
	return actual, nil
}

// Score exposes the profile read path.
func (e Engine) Score(vendorID, category string) domain.ReliabilityScore {
	return e.Profiles.Score(vendorID, category)
}
