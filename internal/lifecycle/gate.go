package lifecycle

import (
	"context"
	"errors"
	"sort"
	"time"

	"match-service/internal/apperr"
	"match-service/internal/clock"
	"match-service/internal/models"
	"match-service/internal/notify"
	"match-service/internal/repositories"
)

const maxMessageLen = 1000

// Gate admits messages into a connection's chat. Every write re-evaluates the
// chat window at call time; there is no cached "open" flag to go stale.
type Gate struct {
	connections repositories.ConnectionRepository
	messages    repositories.MessageRepository
	notifier    notify.Notifier
	clock       clock.Clock
}

// NewGate constructs a Gate.
func NewGate(connections repositories.ConnectionRepository, messages repositories.MessageRepository, notifier notify.Notifier, clk clock.Clock) *Gate {
	return &Gate{connections: connections, messages: messages, notifier: notifier, clock: clk}
}

// MessagePage is a page of messages plus the chat-window readout the client
// renders alongside it.
type MessagePage struct {
	Messages          []models.Message `json:"messages"`
	TotalMessages     int64            `json:"totalMessages"`
	UnreadCount       int64            `json:"unreadCount"`
	ChatExpiresAt     *string          `json:"chatExpiresAt"`
	TimeLeftMS        int64            `json:"timeLeft"`
	TimeLeftFormatted string           `json:"timeLeftFormatted"`
}

// ChatSummaryEntry is one open chat in the user's inbox view.
type ChatSummaryEntry struct {
	ConnectionID      int64           `json:"connectionId"`
	OtherUserID       int64           `json:"otherUserId"`
	OtherUserName     string          `json:"otherUserName,omitempty"`
	UnreadCount       int64           `json:"unreadCount"`
	LastMessage       *models.Message `json:"lastMessage"`
	ChatExpiresAt     string          `json:"chatExpiresAt"`
	TimeLeftMS        int64           `json:"timeLeft"`
	TimeLeftFormatted string          `json:"timeLeftFormatted"`
}

// PostMessage stores a message if and only if the connection's chat window is
// open at the time of the call.
func (g *Gate) PostMessage(ctx context.Context, connectionID, senderID int64, content string, media *models.Media) (models.Message, error) {
	if content == "" && media == nil {
		return models.Message{}, apperr.E(apperr.InvalidInput, "message content required")
	}
	if len(content) > maxMessageLen {
		return models.Message{}, apperr.Errorf(apperr.InvalidInput, "message exceeds %d characters", maxMessageLen)
	}
	if media != nil && !media.Type.Valid() {
		return models.Message{}, apperr.E(apperr.InvalidInput, "unknown media type")
	}

	conn, err := g.participantConnection(ctx, connectionID, senderID)
	if err != nil {
		return models.Message{}, err
	}

	now := g.clock.Now()
	if !IsChatOpen(conn, now) {
		if conn.Status != models.ConnectionAccepted {
			return models.Message{}, apperr.E(apperr.InvalidState, "connection must be accepted to send messages")
		}
		return models.Message{}, apperr.E(apperr.InvalidState, "chat window closed")
	}

	msg := models.Message{
		ConnectionID: conn.ID,
		SenderID:     senderID,
		ReceiverID:   conn.OtherParticipant(senderID),
		Content:      content,
		CreatedAt:    now,
	}
	if media != nil {
		msg.IsMedia = true
		msg.MediaURL = &media.URL
		msg.MediaType = &media.Type
	}
	if err := g.messages.Create(ctx, &msg); err != nil {
		return models.Message{}, apperr.Wrap(apperr.Unavailable, "store message", err)
	}

	g.notifier.Notify(ctx, msg.ReceiverID, notify.KindNewMessage, map[string]any{
		"connection_id": conn.ID,
		"message_id":    msg.ID,
		"sender_id":     senderID,
	})
	return msg, nil
}

// ListMessages returns a page of a connection's messages, oldest first within
// the page, along with unread count and the chat-window readout.
func (g *Gate) ListMessages(ctx context.Context, connectionID, callerID int64, query repositories.MessageQuery) (MessagePage, error) {
	conn, err := g.participantConnection(ctx, connectionID, callerID)
	if err != nil {
		return MessagePage{}, err
	}

	msgs, err := g.messages.List(ctx, conn.ID, query)
	if err != nil {
		return MessagePage{}, apperr.Wrap(apperr.Unavailable, "list messages", err)
	}
	total, err := g.messages.Count(ctx, conn.ID)
	if err != nil {
		return MessagePage{}, apperr.Wrap(apperr.Unavailable, "count messages", err)
	}
	unread, err := g.messages.CountUnread(ctx, conn.ID, callerID)
	if err != nil {
		return MessagePage{}, apperr.Wrap(apperr.Unavailable, "count unread messages", err)
	}

	page := MessagePage{
		Messages:      msgs,
		TotalMessages: total,
		UnreadCount:   unread,
	}
	page.TimeLeftMS, page.TimeLeftFormatted, page.ChatExpiresAt = windowReadout(conn, g.clock.Now())
	return page, nil
}

// MarkRead marks the given messages as read by the caller. Only the caller's
// own unread incoming messages count; re-marking is a no-op, and the returned
// count reflects rows actually flipped.
func (g *Gate) MarkRead(ctx context.Context, connectionID, readerID int64, messageIDs []int64) (int64, error) {
	if _, err := g.participantConnection(ctx, connectionID, readerID); err != nil {
		return 0, err
	}
	if len(messageIDs) == 0 {
		return 0, nil
	}
	count, err := g.messages.MarkRead(ctx, connectionID, readerID, messageIDs, g.clock.Now())
	if err != nil {
		return 0, apperr.Wrap(apperr.Unavailable, "mark messages read", err)
	}
	return count, nil
}

// DeleteMessage soft-deletes a message and returns it. Only the sender may
// delete, and the record survives for audit; reads simply stop returning it.
func (g *Gate) DeleteMessage(ctx context.Context, messageID, requesterID int64) (models.Message, error) {
	msg, err := g.messages.GetByID(ctx, messageID)
	if errors.Is(err, repositories.ErrMessageNotFound) {
		return models.Message{}, apperr.E(apperr.NotFound, "message not found")
	}
	if err != nil {
		return models.Message{}, apperr.Wrap(apperr.Unavailable, "load message", err)
	}
	if msg.IsDeleted {
		return models.Message{}, apperr.E(apperr.NotFound, "message not found")
	}
	if msg.SenderID != requesterID {
		return models.Message{}, apperr.E(apperr.Forbidden, "only the sender can delete a message")
	}
	if err := g.messages.SoftDelete(ctx, messageID); err != nil {
		return models.Message{}, apperr.Wrap(apperr.Unavailable, "delete message", err)
	}
	msg.IsDeleted = true
	return msg, nil
}

// ChatSummary returns the caller's open chats, most recent activity first,
// plus the total unread count across them.
func (g *Gate) ChatSummary(ctx context.Context, userID int64) ([]ChatSummaryEntry, int64, error) {
	now := g.clock.Now()
	conns, err := g.connections.ListActiveChats(ctx, userID, now)
	if err != nil {
		return nil, 0, apperr.Wrap(apperr.Unavailable, "list active chats", err)
	}

	entries := make([]ChatSummaryEntry, 0, len(conns))
	var totalUnread int64
	for _, conn := range conns {
		unread, err := g.messages.CountUnread(ctx, conn.ID, userID)
		if err != nil {
			return nil, 0, apperr.Wrap(apperr.Unavailable, "count unread messages", err)
		}
		last, err := g.messages.LastMessage(ctx, conn.ID)
		if err != nil {
			return nil, 0, apperr.Wrap(apperr.Unavailable, "load last message", err)
		}

		entry := ChatSummaryEntry{
			ConnectionID: conn.ID,
			OtherUserID:  conn.OtherParticipant(userID),
			UnreadCount:  unread,
			LastMessage:  last,
		}
		var expiresAt *string
		entry.TimeLeftMS, entry.TimeLeftFormatted, expiresAt = windowReadout(conn, now)
		if expiresAt != nil {
			entry.ChatExpiresAt = *expiresAt
		}
		entries = append(entries, entry)
		totalUnread += unread
	}

	sort.SliceStable(entries, func(i, j int) bool {
		li, lj := entries[i].LastMessage, entries[j].LastMessage
		switch {
		case li == nil:
			return false
		case lj == nil:
			return true
		default:
			return li.CreatedAt.After(lj.CreatedAt)
		}
	})
	return entries, totalUnread, nil
}

func (g *Gate) participantConnection(ctx context.Context, connectionID, userID int64) (models.Connection, error) {
	conn, err := g.connections.GetByID(ctx, connectionID)
	if errors.Is(err, repositories.ErrConnectionNotFound) {
		return models.Connection{}, apperr.E(apperr.NotFound, "connection not found")
	}
	if err != nil {
		return models.Connection{}, apperr.Wrap(apperr.Unavailable, "load connection", err)
	}
	if !conn.HasParticipant(userID) {
		return models.Connection{}, apperr.E(apperr.Forbidden, "not a participant in this connection")
	}
	return conn, nil
}

func windowReadout(conn models.Connection, now time.Time) (int64, string, *string) {
	remaining, ok := TimeRemaining(conn, now)
	if !ok {
		return 0, FormatTimeLeft(0), nil
	}
	formatted := FormatTimeLeft(remaining)
	expires := conn.ChatExpiresAt.UTC().Format(time.RFC3339)
	return remaining.Milliseconds(), formatted, &expires
}
