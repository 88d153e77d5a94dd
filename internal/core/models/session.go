package models

import "time"

// Session is the live binding to the external chat process. AccountID is
// empty until login completes.
type Session struct {
	ID            string
	AccountID     string
	Authenticated bool
	StartedAt     time.Time
	LoginDeadline time.Time
}

// LoginOverdue reports whether the session is still unauthenticated past
// its deadline.
func (s Session) LoginOverdue(now time.Time) bool {
	return !s.Authenticated && !s.LoginDeadline.IsZero() && now.After(s.LoginDeadline)
}
