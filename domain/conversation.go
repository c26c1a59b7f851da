package domain

import "time"

// ConversationSummary is the read model backing the conversation list:
// one row per connection, enriched with the latest message and unread count.
type ConversationSummary struct {
	PeerID       string
	Name         string
	Avatar       string
	LastMessage  string
	Unread       int
	LastActivity time.Time
}
