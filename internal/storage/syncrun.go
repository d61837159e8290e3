package storage

import "time"

// SyncRun is one reconciliation pass as seen by the local store
type SyncRun struct {
	UserID       string    `json:"user_id"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
	LocalWrites  int       `json:"local_writes"`
	RemoteWrites int       `json:"remote_writes"`
	Failures     int       `json:"failures"`
	Error        string    `json:"error,omitempty"`
}

func (r SyncRun) Succeeded() bool {
	return r.Failures == 0 && r.Error == ""
}
