package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"vowline/internal/config"
)

func (r Repo) UpsertEventConfig(ctx context.Context, eventID string, cfg *config.Config) error {
	return upsertEventConfig(ctx, r.DB, nil, eventID, cfg)
}

func (r Repo) UpsertEventConfigTx(ctx context.Context, tx *sql.Tx, eventID string, cfg *config.Config) error {
	return upsertEventConfig(ctx, nil, tx, eventID, cfg)
}

func upsertEventConfig(ctx context.Context, db *sql.DB, tx *sql.Tx, eventID string, cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("config nil")
	}
	cfg.Event.ID = eventID
	if err := cfg.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	exec := func(query string, args ...any) (sql.Result, error) {
		if tx != nil {
			return tx.ExecContext(ctx, query, args...)
		}
		return db.ExecContext(ctx, query, args...)
	}
	_, err = exec(`INSERT INTO event_configs(event_id,config_json,created_at,updated_at) VALUES (?,?,?,?)
ON CONFLICT(event_id) DO UPDATE SET config_json=excluded.config_json, updated_at=excluded.updated_at`,
		eventID, string(payload), now, now)
	return err
}

func (r Repo) GetEventConfig(ctx context.Context, eventID string) (*config.Config, error) {
	var payload string
	err := r.DB.QueryRowContext(ctx, `SELECT config_json FROM event_configs WHERE event_id=?`, eventID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var cfg config.Config
	if err := json.Unmarshal([]byte(payload), &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
