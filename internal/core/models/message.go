package models

import (
	"errors"
	"strconv"
	"time"
)

// MessageKind is the canonical message category stored in messages.msg_type.
// Codes the session reports that have no canonical name are stored as their
// decimal code.
type MessageKind string

const (
	KindUnknown  MessageKind = "unknown"
	KindFile     MessageKind = "file"
	KindVoice    MessageKind = "voice"
	KindCard     MessageKind = "card"
	KindEmoticon MessageKind = "emoticon"
	KindImage    MessageKind = "image"
	KindText     MessageKind = "text"
	KindLocation MessageKind = "location"
	KindSystem   MessageKind = "system"
	KindRecalled MessageKind = "recalled"
	KindLink     MessageKind = "link"
	KindVideo    MessageKind = "video"
)

// kindCodes maps the session's numeric message types.
var kindCodes = map[int]MessageKind{
	0:  KindUnknown,
	1:  KindFile,
	2:  KindVoice,
	3:  KindCard,
	5:  KindEmoticon,
	6:  KindImage,
	7:  KindText,
	8:  KindLocation,
	10: KindSystem,
	13: KindRecalled,
	14: KindLink,
	15: KindVideo,
}

// KindFromCode maps a raw type code. Unmapped codes pass through as text.
func KindFromCode(code int) MessageKind {
	if k, ok := kindCodes[code]; ok {
		return k
	}
	return MessageKind(strconv.Itoa(code))
}

// Message is one chat message observed in a group.
// Uniqueness is (RoomID, MsgID, AccountID); a later write replaces earlier fields.
type Message struct {
	ID           int64
	RoomID       string
	AccountID    string
	MsgID        string
	SenderID     string
	SenderName   string
	Content      string
	Timestamp    time.Time
	Kind         MessageKind
	MentionsSelf bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Validate checks if the message has required fields
func (m *Message) Validate() error {
	if m.RoomID == "" {
		return errors.New("room_id is required")
	}
	if m.MsgID == "" {
		return errors.New("msg_id is required")
	}
	if m.AccountID == "" {
		return errors.New("account_id is required")
	}
	if m.Timestamp.IsZero() {
		return errors.New("timestamp is required")
	}
	return nil
}

// SenderDisplayName picks the first non-empty of the room alias, display
// name and sender id, falling back to "unknown".
func SenderDisplayName(alias, name, id string) string {
	for _, s := range []string{alias, name, id} {
		if s != "" {
			return s
		}
	}
	return "unknown"
}
