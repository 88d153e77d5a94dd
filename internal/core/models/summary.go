package models

import "time"

// Summary is one generated digest covering (StartTime, EndTime] of a group.
type Summary struct {
	ID           int64
	RoomID       string
	AccountID    string
	Hash         string
	PromptDigest string
	Text         string
	StartTime    time.Time
	EndTime      time.Time
	MessageCount int
	Model        string
	CreatedAt    time.Time
}
