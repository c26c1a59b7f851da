package services

import (
	"log/slog"
	"sort"

	"commute-chat/contract"
	"commute-chat/domain"
	"commute-chat/repositories"
)

// IChatService is the single entry point for conversation state.
// Frame handlers and HTTP handlers both go through it.
type IChatService interface {
	// SendMessage persists the message, then pushes it to the recipient
	// when a live session exists. The bool reports whether the push happened.
	SendMessage(from string, to string, text string) (domain.Message, bool, error)
	MarkRead(from string, to string) error
	History(user1 string, user2 string, before *string) ([]domain.Message, *string, error)
	Conversations(userID string) ([]domain.ConversationSummary, error)
	Subscribe(identity string, session contract.LiveSession) error
	// Unsubscribe releases the identity only when session still holds it.
	Unsubscribe(identity string, session contract.LiveSession)
}

type ChatService struct {
	messages repositories.IMessageRepository
	users    repositories.IUserRepository
	registry contract.IRegistry
	log      *slog.Logger
}

func NewChatService(messages repositories.IMessageRepository, users repositories.IUserRepository,
	registry contract.IRegistry, log *slog.Logger) *ChatService {
	return &ChatService{messages: messages, users: users, registry: registry, log: log}
}

func (c *ChatService) SendMessage(from string, to string, text string) (domain.Message, bool, error) {
	message, err := c.messages.Append(from, to, text)
	if err != nil {
		return domain.Message{}, false, err
	}

	session, ok := c.registry.Resolve(to)
	if !ok {
		// Recipient is offline, the message waits in storage
		return message, false, nil
	}

	delivered := session.Deliver(message)
	if !delivered {
		c.log.Warn("Dropped push to saturated session", slog.String("to", to))
	}
	return message, delivered, nil
}

func (c *ChatService) MarkRead(from string, to string) error {
	return c.messages.MarkRead(from, to)
}

func (c *ChatService) History(user1 string, user2 string, before *string) ([]domain.Message, *string, error) {
	return c.messages.Page(user1, user2, before)
}

// Conversations builds one summary per known connection of the user,
// most recently active first.
func (c *ChatService) Conversations(userID string) ([]domain.ConversationSummary, error) {
	peers, err := c.users.Connections(userID)
	if err != nil {
		return nil, err
	}

	summaries := make([]domain.ConversationSummary, 0, len(peers))
	for _, peerID := range peers {
		peer, err := c.users.Get(peerID)
		if err != nil {
			c.log.Warn("Skipping unknown connection", slog.String("peer_id", peerID), slog.Any("error", err))
			continue
		}

		summary := domain.ConversationSummary{
			PeerID: peer.ID,
			Name:   peer.DisplayName(),
			Avatar: peer.ProfilePic,
			// An empty conversation sorts by the relation creation date
			LastActivity: peer.CreatedAt,
		}

		last, found, err := c.messages.LastMessage(userID, peerID)
		if err != nil {
			return nil, err
		}
		if found {
			summary.LastMessage = last.Text
			summary.LastActivity = last.CreatedAt
		}

		unread, err := c.messages.UnreadCount(peerID, userID)
		if err != nil {
			return nil, err
		}
		summary.Unread = unread

		summaries = append(summaries, summary)
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].LastActivity.After(summaries[j].LastActivity)
	})
	return summaries, nil
}

func (c *ChatService) Subscribe(identity string, session contract.LiveSession) error {
	return c.registry.Subscribe(identity, session)
}

func (c *ChatService) Unsubscribe(identity string, session contract.LiveSession) {
	c.registry.UnsubscribeSession(identity, session)
}
