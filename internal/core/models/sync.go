package models

import "time"

type SyncStatus string

const (
	SyncCompleted SyncStatus = "completed"
	SyncFailed    SyncStatus = "failed"
)

type SyncType string

const (
	SyncFull     SyncType = "full"
	SyncDeferred SyncType = "deferred"
)

// SyncLog is one append-only record of a reconciliation pass.
type SyncLog struct {
	ID             int64
	AccountID      string
	Type           SyncType
	Status         SyncStatus
	GroupsSeen     int
	GroupsInserted int
	GroupsUpdated  int
	ErrorMessage   string
	SyncedAt       time.Time
}
