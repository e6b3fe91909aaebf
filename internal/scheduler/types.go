package scheduler

import (
	"context"
	"errors"
	"fmt"
)

// ErrNoSchedule is returned when an action needs a loaded schedule.
var ErrNoSchedule = errors.New("schedule not loaded")

// DefaultLogLimit is how many executions the panel shows.
const DefaultLogLimit = 5

// Schedule is one recurring agent job as reported by the scheduler service.
type Schedule struct {
	ID             string `json:"id"`
	AgentID        string `json:"agent_id,omitempty"`
	CronExpression string `json:"cron_expression"`
	Timezone       string `json:"timezone,omitempty"`
	IsActive       bool   `json:"is_active"`
	NextRunTime    string `json:"next_run_time,omitempty"`
	LastRunAt      string `json:"last_run_at,omitempty"`
}

// Describe renders the cron expression for humans, with the timezone when
// known.
func (s *Schedule) Describe() string {
	if s == nil {
		return ""
	}
	d := CronToHuman(s.CronExpression)
	if s.Timezone != "" {
		d += " (" + s.Timezone + ")"
	}
	return d
}

// ExecutionLog is one past run of a schedule.
type ExecutionLog struct {
	ID         string `json:"id"`
	ExecutedAt string `json:"executed_at"`
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
}

// Service is the remote scheduler.
type Service interface {
	GetSchedule(ctx context.Context, id string) (*Schedule, error)
	GetScheduleLogs(ctx context.Context, id string, limit int) ([]ExecutionLog, error)
	PauseSchedule(ctx context.Context, id string) error
	ResumeSchedule(ctx context.Context, id string) error
	TriggerScheduleNow(ctx context.Context, id string) error
}

// APIError is a failure reported by the scheduler service.
type APIError struct {
	// Op is the operation that failed (e.g., "get", "pause", "trigger")
	Op string

	// StatusCode is the HTTP status, 0 when the service answered 2xx with
	// success=false
	StatusCode int

	// Message is the service's error text
	Message string
}

// Error implements the error interface
func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("scheduler %s: %s (status %d)", e.Op, e.Message, e.StatusCode)
	}
	return fmt.Sprintf("scheduler %s: %s", e.Op, e.Message)
}
