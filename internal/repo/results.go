package repo

import (
	"context"
	"database/sql"
	"encoding/json"

	"vowline/internal/domain"
)

// InsertResult stores an optimization result and its conflict rows inside
// the caller's transaction. Results are write-once: a new run inserts a new
// row and never updates an old one.
func (r Repo) InsertResult(ctx context.Context, tx *sql.Tx, res domain.OptimizationResult) error {
	payload, err := json.Marshal(res)
	if err != nil {
		return err
	}
	partial := 0
	if res.Partial {
		partial = 1
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO optimization_results(run_id,event_id,snapshot_hash,result_json,risk_score,partial,created_at) VALUES (?,?,?,?,?,?,?)`,
		res.RunID, res.EventID, res.SnapshotHash, string(payload), res.RiskScore, partial, res.CreatedAt); err != nil {
		return err
	}
	insert := func(c domain.ConflictRecord) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO conflict_records(run_id,event_id,conflict_id,kind,task_a,task_b,overlap_start,overlap_minutes,severity,detail) VALUES (?,?,?,?,?,?,?,?,?,?)`,
			res.RunID, c.EventID, c.ID, string(c.Kind), c.TaskA, nullable(c.TaskB),
			fmtTime(c.OverlapStart), c.OverlapMinutes, c.Severity, nullable(c.Detail))
		return err
	}
	for _, rc := range res.Resolved {
		if err := insert(rc.Conflict); err != nil {
			return err
		}
	}
	for _, uc := range res.Unresolved {
		if err := insert(uc.Conflict); err != nil {
			return err
		}
	}
	return nil
}

func (r Repo) GetResult(ctx context.Context, runID string) (domain.OptimizationResult, error) {
	var payload string
	err := r.DB.QueryRowContext(ctx, `SELECT result_json FROM optimization_results WHERE run_id=?`, runID).Scan(&payload)
	if err == sql.ErrNoRows {
		return domain.OptimizationResult{}, ErrNotFound
	}
	if err != nil {
		return domain.OptimizationResult{}, err
	}
	var res domain.OptimizationResult
	if err := json.Unmarshal([]byte(payload), &res); err != nil {
		return domain.OptimizationResult{}, err
	}
	return res, nil
}

func (r Repo) ListResults(ctx context.Context, eventID string, limit int) ([]domain.OptimizationResult, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.DB.QueryContext(ctx,
		`SELECT result_json FROM optimization_results WHERE event_id=? ORDER BY created_at DESC, run_id DESC LIMIT ?`, eventID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.OptimizationResult
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var res domain.OptimizationResult
		if err := json.Unmarshal([]byte(payload), &res); err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

func (r Repo) LatestResult(ctx context.Context, eventID string) (domain.OptimizationResult, error) {
	results, err := r.ListResults(ctx, eventID, 1)
	if err != nil {
		return domain.OptimizationResult{}, err
	}
	if len(results) == 0 {
		return domain.OptimizationResult{}, ErrNotFound
	}
	return results[0], nil
}
