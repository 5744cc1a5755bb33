package webhook

import (
	"context"
	"time"
)

type TimerEventType string

const (
	TimerEventStarted TimerEventType = "timer.started"
	TimerEventStopped TimerEventType = "timer.stopped"
	TimerEventReset   TimerEventType = "timer.reset"
)

// TimerEvent is posted after a timer mutation has been committed.
type TimerEvent struct {
	Type                 TimerEventType `json:"type"`
	TaskID               string         `json:"task_id"`
	UserID               string         `json:"user_id"`
	SessionID            string         `json:"session_id,omitempty"`
	OccurredAt           time.Time      `json:"occurred_at"`
	FinalizedCount       int            `json:"finalized_count,omitempty"`
	TotalDurationSeconds int64          `json:"total_duration_seconds,omitempty"`
	DeletedSessions      int64          `json:"deleted_sessions,omitempty"`
}

type Sender interface {
	SendTimerEvent(ctx context.Context, event TimerEvent) error
}
