package domain

import "time"

// User is the slice of the external profile store the messaging core needs:
// identity, display data for conversation summaries, and the accepted
// connections a user may chat with. Full profile storage lives elsewhere.
type User struct {
	ID          string
	FirstName   string
	LastName    string
	ProfilePic  string
	Connections []string
	CreatedAt   time.Time
}

func (u User) DisplayName() string {
	return u.FirstName + " " + u.LastName
}
