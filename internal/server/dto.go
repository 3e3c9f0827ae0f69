package server

import (
	"time"

	"vowline/internal/domain"
)

// Request payloads

type CreateEventRequest struct {
	ID          string    `json:"id"`
	Name        *string   `json:"name,omitempty"`
	Date        *string   `json:"date,omitempty" format:"date"`
	WindowStart time.Time `json:"window_start" format:"date-time"`
	WindowEnd   time.Time `json:"window_end" format:"date-time"`
}

type CreateTaskRequest struct {
	ID               *string   `json:"id,omitempty"`
	VendorID         string    `json:"vendor_id"`
	Category         string    `json:"category"`
	Title            string    `json:"title"`
	Zone             string    `json:"zone"`
	Start            time.Time `json:"start" format:"date-time"`
	DurationMinutes  int       `json:"duration_minutes"`
	SetupMinutes     int       `json:"setup_minutes,omitempty"`
	BreakdownMinutes int       `json:"breakdown_minutes,omitempty"`
	Priority         *int      `json:"priority,omitempty"`
}

type UpdateTaskRequest struct {
	Start            *time.Time `json:"start,omitempty" format:"date-time"`
	DurationMinutes  *int       `json:"duration_minutes,omitempty"`
	SetupMinutes     *int       `json:"setup_minutes,omitempty"`
	BreakdownMinutes *int       `json:"breakdown_minutes,omitempty"`
	Zone             *string    `json:"zone,omitempty"`
	Priority         *int       `json:"priority,omitempty"`
}

type AddDependencyRequest struct {
	FromTaskID string `json:"from_task_id"`
	ToTaskID   string `json:"to_task_id"`
	Kind       string `json:"kind,omitempty" enum:"finish-to-start,start-to-start,milestone-gate"`
}

type RecordActualsRequest struct {
	TaskID                string    `json:"task_id"`
	ActualStart           time.Time `json:"actual_start" format:"date-time"`
	ActualDurationMinutes int       `json:"actual_duration_minutes"`
}

// Response payloads. Domain types already carry JSON tags; responses that
// add nothing wrap them directly.

type ActualsAck struct {
	Recorded             bool `json:"recorded"`
	DelayMinutes         int  `json:"delay_minutes"`
	DurationDeltaMinutes int  `json:"duration_delta_minutes"`
	ProfileUpdateQueued  bool `json:"profile_update_queued"`
}

type VendorProfileResponse struct {
	VendorID string                  `json:"vendor_id"`
	Category string                  `json:"category"`
	Score    domain.ReliabilityScore `json:"score"`
	Samples  int                     `json:"samples"`
}

type EventStatusResponse struct {
	EventID     string  `json:"event_id"`
	Status      string  `json:"status"`
	Tasks       int     `json:"tasks"`
	Edges       int     `json:"edges"`
	LatestRunID string  `json:"latest_run_id,omitempty"`
	RiskScore   float64 `json:"risk_score,omitempty"`
}
