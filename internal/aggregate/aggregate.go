package aggregate

import (
	"fmt"
	"slices"
	"time"

	"github.com/foxseedlab/tasktimer/internal/repository"
)

type Formatted struct {
	Completed string `json:"completed"`
	Active    string `json:"active"`
	Total     string `json:"total"`
}

// UserTotal is one user's time on one task: finished sessions plus the live
// elapsed time of the open one.
type UserTotal struct {
	TaskID                string                  `json:"task_id"`
	TotalCompletedSeconds int64                   `json:"total_completed_seconds"`
	ActiveSeconds         int64                   `json:"active_seconds"`
	TotalSeconds          int64                   `json:"total_seconds"`
	Formatted             Formatted               `json:"formatted"`
	HasActiveSession      bool                    `json:"has_active_session"`
	ActiveSession         *repository.TimeSession `json:"active_session,omitempty"`
}

type ActiveUser struct {
	UserID           string    `json:"user_id"`
	DisplayName      string    `json:"display_name"`
	AvatarURL        string    `json:"avatar_url"`
	SessionID        string    `json:"session_id"`
	StartTime        time.Time `json:"start_time"`
	ElapsedSeconds   int64     `json:"elapsed_seconds"`
	ElapsedFormatted string    `json:"elapsed_formatted"`
}

type Stats struct {
	TotalSessions     int          `json:"total_sessions"`
	CompletedSessions int          `json:"completed_sessions"`
	ActiveSessions    int          `json:"active_sessions"`
	TotalSeconds      int64        `json:"total_seconds"`
	TotalFormatted    string       `json:"total_formatted"`
	ActiveUsers       []ActiveUser `json:"active_users"`
}

// TaskSnapshot is the multi-user view of a task. TotalSeconds only counts
// completed sessions; running ones are reported through ActiveUsers.
type TaskSnapshot struct {
	TaskID             string                   `json:"task_id"`
	Sessions           []repository.TimeSession `json:"sessions"`
	Stats              Stats                    `json:"stats"`
	MyActiveSession    *repository.TimeSession  `json:"my_active_session"`
	HasMyActiveSession bool                     `json:"has_my_active_session"`
}

// ElapsedSeconds rounds to the nearest second and never goes below zero.
func ElapsedSeconds(start, end time.Time) int64 {
	return repository.RoundedSeconds(start, end)
}

// FormatHMS renders seconds as HH:MM:SS. Hours are not capped at 99.
func FormatHMS(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

func ComputeUserTotal(completed []repository.TimeSession, open *repository.TimeSession, now time.Time) UserTotal {
	var t UserTotal
	for _, s := range completed {
		if s.IsOpen() {
			continue
		}
		t.TotalCompletedSeconds += s.Duration()
	}
	if open != nil && open.IsOpen() {
		t.HasActiveSession = true
		t.ActiveSeconds = ElapsedSeconds(open.StartTime, now)
		active := *open
		t.ActiveSession = &active
		t.TaskID = open.TaskID
	}
	if t.TaskID == "" && len(completed) > 0 {
		t.TaskID = completed[0].TaskID
	}
	t.TotalSeconds = t.TotalCompletedSeconds + t.ActiveSeconds
	t.Formatted = Formatted{
		Completed: FormatHMS(t.TotalCompletedSeconds),
		Active:    FormatHMS(t.ActiveSeconds),
		Total:     FormatHMS(t.TotalSeconds),
	}
	return t
}

// ComputeTaskSnapshot partitions sessions into completed and open ones. Any
// number of users may be running at once; missing profiles only leave the
// display fields empty.
func ComputeTaskSnapshot(
	taskID string,
	sessions []repository.TimeSession,
	profiles map[string]repository.UserProfile,
	requestingUserID string,
	now time.Time,
) TaskSnapshot {
	snap := TaskSnapshot{
		TaskID:   taskID,
		Sessions: sessions,
		Stats: Stats{
			TotalSessions: len(sessions),
			ActiveUsers:   []ActiveUser{},
		},
	}
	if snap.Sessions == nil {
		snap.Sessions = []repository.TimeSession{}
	}

	for i := range sessions {
		s := sessions[i]
		if !s.IsOpen() {
			snap.Stats.CompletedSessions++
			snap.Stats.TotalSeconds += s.Duration()
			continue
		}
		snap.Stats.ActiveSessions++
		elapsed := ElapsedSeconds(s.StartTime, now)
		p := profiles[s.UserID]
		snap.Stats.ActiveUsers = append(snap.Stats.ActiveUsers, ActiveUser{
			UserID:           s.UserID,
			DisplayName:      p.DisplayName,
			AvatarURL:        p.AvatarURL,
			SessionID:        s.ID,
			StartTime:        s.StartTime,
			ElapsedSeconds:   elapsed,
			ElapsedFormatted: FormatHMS(elapsed),
		})
		if requestingUserID != "" && s.UserID == requestingUserID && snap.MyActiveSession == nil {
			mine := s
			snap.MyActiveSession = &mine
			snap.HasMyActiveSession = true
		}
	}
	snap.Stats.TotalFormatted = FormatHMS(snap.Stats.TotalSeconds)

	slices.SortStableFunc(snap.Stats.ActiveUsers, func(a, b ActiveUser) int {
		if c := a.StartTime.Compare(b.StartTime); c != 0 {
			return c
		}
		if a.UserID < b.UserID {
			return -1
		}
		if a.UserID > b.UserID {
			return 1
		}
		return 0
	})
	return snap
}

// ActiveUserIDs lists the owners of open sessions, for profile lookups.
func ActiveUserIDs(sessions []repository.TimeSession) []string {
	ids := make([]string, 0)
	for _, s := range sessions {
		if s.IsOpen() && !slices.Contains(ids, s.UserID) {
			ids = append(ids, s.UserID)
		}
	}
	return ids
}
