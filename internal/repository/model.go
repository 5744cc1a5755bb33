package repository

import (
	"math"
	"time"
)

// TimeSession is one user's measured interval of work on one task.
// EndTime == nil means the session is still running.
type TimeSession struct {
	ID              string     `json:"id"`
	TaskID          string     `json:"task_id"`
	UserID          string     `json:"user_id"`
	StartTime       time.Time  `json:"start_time"`
	EndTime         *time.Time `json:"end_time"`
	DurationSeconds *int64     `json:"duration_seconds"`
	CreatedAt       time.Time  `json:"created_at"`
}

func (s *TimeSession) IsOpen() bool {
	return s.EndTime == nil
}

// Close sets EndTime and DurationSeconds. A closed session is left untouched.
func (s *TimeSession) Close(endedAt time.Time) bool {
	if s.EndTime != nil {
		return false
	}
	end := endedAt
	d := RoundedSeconds(s.StartTime, end)
	s.EndTime = &end
	s.DurationSeconds = &d
	return true
}

// Duration returns the stored duration for closed sessions and 0 otherwise.
func (s *TimeSession) Duration() int64 {
	if s.DurationSeconds == nil {
		return 0
	}
	return *s.DurationSeconds
}

// RoundedSeconds is round(end - start) in whole seconds, floored at zero so
// clock skew between writer and reader never yields negative time.
func RoundedSeconds(start, end time.Time) int64 {
	secs := math.Round(end.Sub(start).Seconds())
	if secs < 0 {
		return 0
	}
	return int64(secs)
}

type Task struct {
	ID    string
	Title string
}

type UserProfile struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url"`
}

type Comment struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"task_id"`
	AuthorID  string    `json:"author_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}
