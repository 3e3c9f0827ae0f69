package repo

import (
	"context"
	"database/sql"

	"vowline/internal/domain"
)

func (r Repo) UpsertProfile(ctx context.Context, p domain.VendorPerformanceProfile) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO vendor_profiles(vendor_id,category,mean_delay_minutes,delay_variance,on_time_rate,sample_count,updated_at)
VALUES (?,?,?,?,?,?,?)
ON CONFLICT(vendor_id,category) DO UPDATE SET mean_delay_minutes=excluded.mean_delay_minutes,
delay_variance=excluded.delay_variance, on_time_rate=excluded.on_time_rate,
sample_count=excluded.sample_count, updated_at=excluded.updated_at`,
		p.VendorID, p.Category, p.MeanDelayMinutes, p.DelayVariance, p.OnTimeRate, p.SampleCount, p.UpdatedAt)
	return err
}

func (r Repo) GetProfile(ctx context.Context, vendorID, category string) (domain.VendorPerformanceProfile, error) {
	var p domain.VendorPerformanceProfile
	err := r.DB.QueryRowContext(ctx,
		`SELECT vendor_id,category,mean_delay_minutes,delay_variance,on_time_rate,sample_count,updated_at FROM vendor_profiles WHERE vendor_id=? AND category=?`,
		vendorID, category).
		Scan(&p.VendorID, &p.Category, &p.MeanDelayMinutes, &p.DelayVariance, &p.OnTimeRate, &p.SampleCount, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	return p, err
}

func (r Repo) ListProfiles(ctx context.Context) ([]domain.VendorPerformanceProfile, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT vendor_id,category,mean_delay_minutes,delay_variance,on_time_rate,sample_count,updated_at FROM vendor_profiles ORDER BY vendor_id,category`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.VendorPerformanceProfile
	for rows.Next() {
		var p domain.VendorPerformanceProfile
		if err := rows.Scan(&p.VendorID, &p.Category, &p.MeanDelayMinutes, &p.DelayVariance, &p.OnTimeRate, &p.SampleCount, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r Repo) UpsertActual(ctx context.Context, tx *sql.Tx, a domain.TaskActual) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO task_actuals(event_id,task_id,actual_start,actual_duration_minutes,delay_minutes,duration_delta_minutes,recorded_at)
VALUES (?,?,?,?,?,?,?)
ON CONFLICT(event_id,task_id) DO UPDATE SET actual_start=excluded.actual_start,
actual_duration_minutes=excluded.actual_duration_minutes, delay_minutes=excluded.delay_minutes,
duration_delta_minutes=excluded.duration_delta_minutes, recorded_at=excluded.recorded_at`,
		a.EventID, a.TaskID, fmtTime(a.ActualStart), a.ActualDurationMins, a.DelayMinutes, a.DurationDeltaMinutes, a.RecordedAt)
	return err
}

func (r Repo) ListActuals(ctx context.Context, eventID string) ([]domain.TaskActual, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT event_id,task_id,actual_start,actual_duration_minutes,delay_minutes,duration_delta_minutes,recorded_at FROM task_actuals WHERE event_id=? ORDER BY task_id`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.TaskActual
	for rows.Next() {
		var a domain.TaskActual
		var start string
		if err := rows.Scan(&a.EventID, &a.TaskID, &start, &a.ActualDurationMins, &a.DelayMinutes, &a.DurationDeltaMinutes, &a.RecordedAt); err != nil {
			return nil, err
		}
		a.ActualStart = parseTime(start)
		out = append(out, a)
	}
	return out, rows.Err()
}
