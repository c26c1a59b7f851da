// Package domain contains core concepts of the messaging system.
// This file defines the Message exchanged between two users.
// Messages are immutable except the read flag, which only moves false -> true.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Message represents one persisted chat message between two users.
type Message struct {
	ID        uuid.UUID // unique identifier
	From      string    // sender identity
	To        string    // recipient identity
	Text      string
	CreatedAt time.Time
	Read      bool
}
