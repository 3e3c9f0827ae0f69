package app

import (
	"context"
	"errors"
	"fmt"

	"vowline/internal/config"
	"vowline/internal/repo"
)

// ResolveEventAndConfig picks the active event and loads its stored config,
// seeding defaults if the config row is missing. It prefers the override,
// then the single event in the DB. Events are never created implicitly;
// the venue window has no sensible default.
func ResolveEventAndConfig(ctx context.Context, eventOverride string, r repo.Repo) (string, *config.Config, error) {
	eventID := eventOverride
	if eventID == "" {
		ev, err := r.SingleEvent(ctx)
		if err != nil {
			return "", nil, err
		}
		eventID = ev.ID
	}
	if _, err := r.GetEvent(ctx, eventID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return "", nil, fmt.Errorf("event %q not found; create it with 'vl event create'", eventID)
		}
		return "", nil, err
	}
	cfg, err := r.GetEventConfig(ctx, eventID)
	if err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			return "", nil, err
		}
		cfg = config.Default(eventID)
		if err := r.UpsertEventConfig(ctx, eventID, cfg); err != nil {
			return "", nil, fmt.Errorf("seed event config: %w", err)
		}
	}
	cfg.Event.ID = eventID
	return eventID, cfg, nil
}
