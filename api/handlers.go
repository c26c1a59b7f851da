// Package api exposes the HTTP read side: conversation summaries and
// paginated message history.
package api

import (
	stderrors "errors"
	"log/slog"
	"net/http"
	"time"

	"commute-chat/domain"
	"commute-chat/errors"
	"commute-chat/services"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
)

type Handler struct {
	service services.IChatService
	log     *slog.Logger
}

func NewHandler(service services.IChatService, log *slog.Logger) *Handler {
	return &Handler{service: service, log: log}
}

// Register mounts the read endpoints on the router.
func (h *Handler) Register(router gin.IRouter) {
	group := router.Group("/api")
	group.GET("/conversations/:userId", h.getConversations)
	group.GET("/messages", h.getMessages)
}

type envelope struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func ok(data any) envelope { return envelope{Status: "success", Data: data} }

func fail(message string) envelope { return envelope{Status: "error", Message: message} }

// messageView is the wire shape of one stored message.
type messageView struct {
	ID        string    `json:"id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	Read      bool      `json:"read"`
}

type historyView struct {
	Messages   []messageView `json:"messages"`
	NextCursor *string       `json:"nextCursor"`
}

// conversationView is the wire shape of one conversation summary row.
type conversationView struct {
	PeerID       string    `json:"peerId"`
	Name         string    `json:"name"`
	Avatar       string    `json:"avatar,omitempty"`
	LastMessage  string    `json:"lastMessage,omitempty"`
	Unread       int       `json:"unread"`
	LastActivity time.Time `json:"lastActivity"`
}

func toConversationView(s domain.ConversationSummary) conversationView {
	return conversationView{
		PeerID:       s.PeerID,
		Name:         s.Name,
		Avatar:       s.Avatar,
		LastMessage:  s.LastMessage,
		Unread:       s.Unread,
		LastActivity: s.LastActivity,
	}
}

func toMessageView(m domain.Message) messageView {
	return messageView{
		ID:        m.ID.String(),
		From:      m.From,
		To:        m.To,
		Text:      m.Text,
		Timestamp: m.CreatedAt,
		Read:      m.Read,
	}
}

func (h *Handler) getConversations(c *gin.Context) {
	userID := c.Param("userId")

	summaries, err := h.service.Conversations(userID)
	if err != nil {
		if stderrors.Is(err, errors.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, fail("User not found."))
			return
		}
		h.log.Error("Failed to build conversation summaries",
			slog.String("user_id", userID), slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, fail("Failed to load conversations."))
		return
	}

	view := lo.Map(summaries, func(s domain.ConversationSummary, _ int) conversationView {
		return toConversationView(s)
	})
	c.JSON(http.StatusOK, ok(view))
}

func (h *Handler) getMessages(c *gin.Context) {
	user1 := c.Query("user1")
	user2 := c.Query("user2")
	if user1 == "" || user2 == "" {
		c.JSON(http.StatusBadRequest, fail("Both user1 and user2 are required."))
		return
	}

	var before *string
	if cursor := c.Query("before"); cursor != "" {
		before = &cursor
	}

	messages, next, err := h.service.History(user1, user2, before)
	if err != nil {
		if stderrors.Is(err, errors.ErrInvalidCursor) {
			c.JSON(http.StatusBadRequest, fail("Invalid pagination cursor."))
			return
		}
		h.log.Error("Failed to load message history",
			slog.String("user1", user1), slog.String("user2", user2), slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, fail("Failed to load messages."))
		return
	}

	view := historyView{
		Messages:   lo.Map(messages, func(m domain.Message, _ int) messageView { return toMessageView(m) }),
		NextCursor: next,
	}
	c.JSON(http.StatusOK, ok(view))
}
