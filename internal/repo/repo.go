package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"vowline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

func fmtTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

// --- events ---

func (r Repo) InsertEvent(ctx context.Context, tx *sql.Tx, e domain.Event) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO events(id,name,date,window_start,window_end,status,created_at) VALUES (?,?,?,?,?,?,?)`,
		e.ID, nullable(e.Name), e.Date, fmtTime(e.WindowStart), fmtTime(e.WindowEnd), e.Status, e.CreatedAt)
	return err
}

func scanEvent(row *sql.Row) (domain.Event, error) {
	var e domain.Event
	var name sql.NullString
	var start, end string
	err := row.Scan(&e.ID, &name, &e.Date, &start, &end, &e.Status, &e.CreatedAt)
	if err == sql.ErrNoRows {
		return e, ErrNotFound
	}
	if err != nil {
		return e, err
	}
	if name.Valid {
		e.Name = name.String
	}
	e.WindowStart = parseTime(start)
	e.WindowEnd = parseTime(end)
	return e, nil
}

func (r Repo) GetEvent(ctx context.Context, id string) (domain.Event, error) {
	return scanEvent(r.DB.QueryRowContext(ctx,
		`SELECT id,name,date,window_start,window_end,status,created_at FROM events WHERE id=?`, id))
}

func (r Repo) ListEvents(ctx context.Context) ([]domain.Event, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id,name,date,window_start,window_end,status,created_at FROM events ORDER BY date, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Event
	for rows.Next() {
		var e domain.Event
		var name sql.NullString
		var start, end string
		if err := rows.Scan(&e.ID, &name, &e.Date, &start, &end, &e.Status, &e.CreatedAt); err != nil {
			return nil, err
		}
		if name.Valid {
			e.Name = name.String
		}
		e.WindowStart = parseTime(start)
		e.WindowEnd = parseTime(end)
		out = append(out, e)
	}
	return out, rows.Err()
}

// SingleEvent returns the only event in the workspace, or an error telling
// the caller to disambiguate.
func (r Repo) SingleEvent(ctx context.Context) (domain.Event, error) {
	items, err := r.ListEvents(ctx)
	if err != nil {
		return domain.Event{}, err
	}
	if len(items) == 0 {
		return domain.Event{}, ErrNotFound
	}
	if len(items) > 1 {
		return domain.Event{}, fmt.Errorf("multiple events exist; specify --event")
	}
	return items[0], nil
}

func (r Repo) UpdateEventStatus(ctx context.Context, tx *sql.Tx, id, status string) error {
	res, err := tx.ExecContext(ctx, `UPDATE events SET status=? WHERE id=?`, status, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteEvent(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM events WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- vendor tasks ---

const taskColumns = `id,event_id,vendor_id,category,COALESCE(title,''),zone,start,duration_minutes,setup_minutes,breakdown_minutes,priority,created_at,updated_at`

func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.VendorTask) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO vendor_tasks(id,event_id,vendor_id,category,title,zone,start,duration_minutes,setup_minutes,breakdown_minutes,priority,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.EventID, t.VendorID, t.Category, nullable(t.Title), t.Zone, fmtTime(t.Start),
		t.DurationMinutes, t.SetupMinutes, t.BreakdownMinutes, t.Priority, t.CreatedAt, t.UpdatedAt)
	return err
}

func scanTaskRow(scan func(dest ...any) error) (domain.VendorTask, error) {
	var t domain.VendorTask
	var start string
	err := scan(&t.ID, &t.EventID, &t.VendorID, &t.Category, &t.Title, &t.Zone, &start,
		&t.DurationMinutes, &t.SetupMinutes, &t.BreakdownMinutes, &t.Priority, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return t, err
	}
	t.Start = parseTime(start)
	return t, nil
}

func (r Repo) GetTask(ctx context.Context, id string) (domain.VendorTask, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM vendor_tasks WHERE id=?`, id)
	t, err := scanTaskRow(row.Scan)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	return t, err
}

func (r Repo) ListTasks(ctx context.Context, eventID string) ([]domain.VendorTask, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM vendor_tasks WHERE event_id=? ORDER BY start, id`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.VendorTask
	for rows.Next() {
		t, err := scanTaskRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r Repo) UpdateTask(ctx context.Context, tx *sql.Tx, t domain.VendorTask) error {
	res, err := tx.ExecContext(ctx, `UPDATE vendor_tasks SET vendor_id=?,category=?,title=?,zone=?,start=?,duration_minutes=?,setup_minutes=?,breakdown_minutes=?,priority=?,updated_at=? WHERE id=?`,
		t.VendorID, t.Category, nullable(t.Title), t.Zone, fmtTime(t.Start),
		t.DurationMinutes, t.SetupMinutes, t.BreakdownMinutes, t.Priority, t.UpdatedAt, t.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteTask(ctx context.Context, tx *sql.Tx, id string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM dependency_edges WHERE from_task_id=? OR to_task_id=?`, id, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM vendor_tasks WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- dependency edges ---

func (r Repo) InsertEdge(ctx context.Context, tx *sql.Tx, e domain.DependencyEdge) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO dependency_edges(event_id,from_task_id,to_task_id,kind,created_at) VALUES (?,?,?,?,?)`,
		e.EventID, e.FromTaskID, e.ToTaskID, string(e.Kind), e.CreatedAt)
	if err != nil && strings.Contains(err.Error(), "UNIQUE") {
		return fmt.Errorf("dependency edge %s -> %s already exists", e.FromTaskID, e.ToTaskID)
	}
	return err
}

func (r Repo) ListEdges(ctx context.Context, eventID string) ([]domain.DependencyEdge, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT event_id,from_task_id,to_task_id,kind,created_at FROM dependency_edges WHERE event_id=? ORDER BY from_task_id,to_task_id`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.DependencyEdge
	for rows.Next() {
		var e domain.DependencyEdge
		var kind string
		if err := rows.Scan(&e.EventID, &e.FromTaskID, &e.ToTaskID, &kind, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Kind = domain.EdgeKind(kind)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r Repo) DeleteEdge(ctx context.Context, tx *sql.Tx, fromTaskID, toTaskID string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM dependency_edges WHERE from_task_id=? AND to_task_id=?`, fromTaskID, toTaskID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- audit log ---

func (r Repo) LatestEvents(ctx context.Context, n int, eventID, evtType, entityKind, entityID string) ([]domain.AuditEvent, error) {
	query := `SELECT id,ts,type,COALESCE(event_id,''),entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM audit_log WHERE 1=1`
	var args []any
	if eventID != "" {
		query += ` AND event_id=?`
		args = append(args, eventID)
	}
	if evtType != "" {
		query += ` AND type=?`
		args = append(args, evtType)
	}
	if entityKind != "" {
		query += ` AND entity_kind=?`
		args = append(args, entityKind)
	}
	if entityID != "" {
		query += ` AND entity_id=?`
		args = append(args, entityID)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, n)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.AuditEvent
	for rows.Next() {
		var e domain.AuditEvent
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.EventID, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// EventsAfter returns audit rows after a cursor, oldest first. Used by the
// webhook dispatcher.
func (r Repo) EventsAfter(ctx context.Context, limit int, afterID int64, eventID string) ([]domain.AuditEvent, error) {
	query := `SELECT id,ts,type,COALESCE(event_id,''),entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM audit_log WHERE id>?`
	args := []any{afterID}
	if eventID != "" {
		query += ` AND event_id=?`
		args = append(args, eventID)
	}
	query += ` ORDER BY id ASC LIMIT ?`
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.AuditEvent
	for rows.Next() {
		var e domain.AuditEvent
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.EventID, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r Repo) LatestEventID(ctx context.Context, eventID string) (int64, error) {
	query := `SELECT COALESCE(MAX(id),0) FROM audit_log`
	var args []any
	if eventID != "" {
		query += ` WHERE event_id=?`
		args = append(args, eventID)
	}
	var id int64
	err := r.DB.QueryRowContext(ctx, query, args...).Scan(&id)
	return id, err
}
