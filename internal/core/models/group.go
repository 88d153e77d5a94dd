package models

import (
	"errors"
	"time"
)

// PendingSyncName is stored as a group's name when its metadata could not
// be read yet. Rows carrying it are filled in by the next reconciliation.
const PendingSyncName = "pending sync"

// Group is a chat room the session belongs to (or once belonged to).
// Rows are keyed by (RoomID, AccountID) and never deleted.
type Group struct {
	ID              int64
	RoomID          string
	AccountID       string
	Name            string
	MemberCount     int
	Avatar          string // empty when the room has no usable avatar
	Managed         bool   // false after the session left the room
	LastSummaryTime time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Validate checks if the group has required fields
func (g *Group) Validate() error {
	if g.RoomID == "" {
		return errors.New("room_id is required")
	}
	if g.AccountID == "" {
		return errors.New("account_id is required")
	}
	return nil
}

// IsPlaceholder reports whether the row still waits for real metadata.
func (g *Group) IsPlaceholder() bool {
	return g.Name == PendingSyncName
}

// Summarized reports whether a watermark has been set.
func (g *Group) Summarized() bool {
	return !g.LastSummaryTime.IsZero()
}
