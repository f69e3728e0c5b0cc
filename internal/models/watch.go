// Package models holds the data transfer objects shared by the store,
// the worker and the HTTP control plane.
package models

import "time"

// Status is the watch's last-observed outcome.
type Status string

const (
	StatusOK      Status = "OK"
	StatusFailed  Status = "FAILED"
	StatusUnknown Status = "UNKNOWN"
)

// Watch is the persisted definition and last-known status of one monitored script.
type Watch struct {
	ID               int64   `json:"id"`
	Name             string  `json:"name"`
	Interval         int     `json:"interval"` // seconds
	Script           string  `json:"script"`
	Emails           string  `json:"emails"` // comma-joined, possibly empty
	Status           Status  `json:"status"`
	Time             *int64  `json:"time,omitempty"`              // epoch seconds, nil when never checked
	ReminderInterval *int    `json:"reminder_interval,omitempty"` // seconds, nil disables reminders
	LastAlert        *int64  `json:"last_alert,omitempty"`        // epoch seconds, nil when never notified
}

// FormattedTime renders Time as "YYYY-MM-DD HH:MM:SS UTC", or "" if unset.
func (w *Watch) FormattedTime() string {
	if w.Time == nil {
		return ""
	}
	return time.Unix(*w.Time, 0).UTC().Format("2006-01-02 15:04:05 UTC")
}

// StatusReport is the shape returned by the status HTTP endpoint and the
// live status stream.
type StatusReport struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Status   string `json:"status"`
	Time     string `json:"time,omitempty"`
	Alive    bool   `json:"alive"`
	Building bool   `json:"building"`
}

// NotificationJob is the payload carried by the notifier retry queue (§4.5).
type NotificationJob struct {
	ID          string     `json:"id"`
	WatchID     int64      `json:"watch_id"`
	Sender      string     `json:"sender"`
	Recipients  []string   `json:"recipients"`
	Subject     string     `json:"subject"`
	Body        string     `json:"body"`
	Attempts    int        `json:"attempts"`
	MaxAttempts int        `json:"max_attempts"`
	LastError   *string    `json:"last_error,omitempty"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
}
