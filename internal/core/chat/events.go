package chat

// Event is one of the session's event variants below.
type Event interface {
	eventName() string
}

// Scan carries a login QR code that must be confirmed on the phone.
type Scan struct {
	URL    string `json:"url"`
	Status int    `json:"status"`
}

type Login struct {
	User Contact `json:"user"`
}

type Logout struct {
	User   Contact `json:"user"`
	Reason string  `json:"reason"`
}

type MessageReceived struct {
	Message Message `json:"message"`
}

type RoomJoined struct {
	RoomID   string    `json:"room_id"`
	Invitees []Contact `json:"invitees"`
	Inviter  Contact   `json:"inviter"`
}

type RoomLeft struct {
	RoomID  string    `json:"room_id"`
	Leavers []Contact `json:"leavers"`
	Remover Contact   `json:"remover"`
}

type RoomTopicChanged struct {
	RoomID   string  `json:"room_id"`
	NewTopic string  `json:"new_topic"`
	OldTopic string  `json:"old_topic"`
	Changer  Contact `json:"changer"`
}

// ClientError reports a problem inside the session itself.
type ClientError struct {
	Message string `json:"message"`
}

func (Scan) eventName() string             { return "scan" }
func (Login) eventName() string            { return "login" }
func (Logout) eventName() string           { return "logout" }
func (MessageReceived) eventName() string  { return "message" }
func (RoomJoined) eventName() string       { return "room-join" }
func (RoomLeft) eventName() string         { return "room-leave" }
func (RoomTopicChanged) eventName() string { return "room-topic" }
func (ClientError) eventName() string      { return "error" }

// Name returns the wire name of an event.
func Name(ev Event) string { return ev.eventName() }

// Includes reports whether id is among contacts.
func Includes(contacts []Contact, id string) bool {
	for _, c := range contacts {
		if c.ID == id {
			return true
		}
	}
	return false
}
