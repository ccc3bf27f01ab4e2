// Package lifecycle owns the connection state machine: request, lazy expiry,
// accept/reject, and the chat window that acceptance opens.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"match-service/internal/apperr"
	"match-service/internal/clock"
	"match-service/internal/models"
	"match-service/internal/notify"
	"match-service/internal/repositories"
)

const maxIntroMessageLen = 300

// Engine applies lifecycle transitions against the connection store. It keeps
// no state between calls; every decision is made against the stored record
// and the injected clock.
type Engine struct {
	connections repositories.ConnectionRepository
	users       repositories.UserRepository
	notifier    notify.Notifier
	clock       clock.Clock

	requestWindow time.Duration
	chatWindow    time.Duration
}

// NewEngine constructs an Engine with the given policy windows.
func NewEngine(connections repositories.ConnectionRepository, users repositories.UserRepository, notifier notify.Notifier, clk clock.Clock, requestWindow, chatWindow time.Duration) *Engine {
	return &Engine{
		connections:   connections,
		users:         users,
		notifier:      notifier,
		clock:         clk,
		requestWindow: requestWindow,
		chatWindow:    chatWindow,
	}
}

// RequestConnection creates a pending connection from requester to receiver.
// At most one connection may exist per unordered pair; a duplicate in either
// direction yields Conflict carrying the existing status.
func (e *Engine) RequestConnection(ctx context.Context, requesterID, receiverID int64, message string) (models.Connection, error) {
	if requesterID == receiverID {
		return models.Connection{}, apperr.E(apperr.InvalidInput, "cannot send a connection request to yourself")
	}
	if len(message) > maxIntroMessageLen {
		return models.Connection{}, apperr.Errorf(apperr.InvalidInput, "message exceeds %d characters", maxIntroMessageLen)
	}

	exists, err := e.users.Exists(ctx, receiverID)
	if err != nil {
		return models.Connection{}, apperr.Wrap(apperr.Unavailable, "check receiver", err)
	}
	if !exists {
		return models.Connection{}, apperr.E(apperr.NotFound, "user not found")
	}

	if existing, err := e.connections.FindByPair(ctx, requesterID, receiverID); err == nil {
		return models.Connection{}, apperr.E(apperr.Conflict, "connection already exists").
			WithMeta("status", existing.Status)
	} else if !errors.Is(err, repositories.ErrConnectionNotFound) {
		return models.Connection{}, apperr.Wrap(apperr.Unavailable, "look up connection", err)
	}

	now := e.clock.Now()
	conn := models.Connection{
		RequesterID:      requesterID,
		ReceiverID:       receiverID,
		Status:           models.ConnectionPending,
		Message:          message,
		CreatedAt:        now,
		RequestExpiresAt: now.Add(e.requestWindow),
	}
	if err := e.connections.Create(ctx, &conn); err != nil {
		if errors.Is(err, repositories.ErrDuplicateConnection) {
			// Lost a race with the mirror-direction request.
			conflict := apperr.E(apperr.Conflict, "connection already exists")
			if existing, lookupErr := e.connections.FindByPair(ctx, requesterID, receiverID); lookupErr == nil {
				conflict.WithMeta("status", existing.Status)
			}
			return models.Connection{}, conflict
		}
		return models.Connection{}, apperr.Wrap(apperr.Unavailable, "create connection", err)
	}

	e.notifier.Notify(ctx, receiverID, notify.KindConnectionRequest, map[string]any{
		"connection_id": conn.ID,
		"requester_id":  requesterID,
	})
	return conn, nil
}

// UpdateStatus resolves a pending request. Only the receiver may act, and
// expiry is checked before the action is applied: a request past its deadline
// is persisted as expired and the call fails, even when both happen at the
// same instant.
func (e *Engine) UpdateStatus(ctx context.Context, connectionID, actorID int64, newStatus models.ConnectionStatus) (models.Connection, error) {
	if newStatus != models.ConnectionAccepted && newStatus != models.ConnectionRejected {
		return models.Connection{}, apperr.E(apperr.InvalidInput, "status must be accepted or rejected")
	}

	conn, err := e.getConnection(ctx, connectionID)
	if err != nil {
		return models.Connection{}, err
	}
	if conn.ReceiverID != actorID {
		return models.Connection{}, apperr.E(apperr.Forbidden, "only the receiver can act on a connection request")
	}
	if conn.Status != models.ConnectionPending {
		return models.Connection{}, apperr.E(apperr.InvalidState, "connection request is no longer pending")
	}

	now := e.clock.Now()
	if !conn.RequestExpiresAt.After(now) {
		applied, err := e.connections.TransitionStatus(ctx, conn.ID, models.ConnectionPending, models.ConnectionExpired, nil)
		if err != nil {
			return models.Connection{}, apperr.Wrap(apperr.Unavailable, "expire connection", err)
		}
		if applied {
			e.notifier.Notify(ctx, conn.RequesterID, notify.KindConnectionExpired, map[string]any{
				"connection_id": conn.ID,
			})
		}
		return models.Connection{}, apperr.E(apperr.InvalidState, "connection request has expired")
	}

	var chatExpiresAt *time.Time
	if newStatus == models.ConnectionAccepted {
		t := now.Add(e.chatWindow)
		chatExpiresAt = &t
	}

	applied, err := e.connections.TransitionStatus(ctx, conn.ID, models.ConnectionPending, newStatus, chatExpiresAt)
	if err != nil {
		return models.Connection{}, apperr.Wrap(apperr.Unavailable, "update connection status", err)
	}
	if !applied {
		// Another call resolved the request first.
		return models.Connection{}, apperr.E(apperr.InvalidState, "connection request is no longer pending")
	}

	conn.Status = newStatus
	conn.ChatExpiresAt = chatExpiresAt
	if newStatus == models.ConnectionAccepted {
		e.notifier.Notify(ctx, conn.RequesterID, notify.KindConnectionAccepted, map[string]any{
			"connection_id":   conn.ID,
			"chat_expires_at": chatExpiresAt.UTC().Format(time.RFC3339),
		})
	}
	return conn, nil
}

// Get returns a connection visible to one of its participants.
func (e *Engine) Get(ctx context.Context, connectionID, callerID int64) (models.Connection, error) {
	conn, err := e.getConnection(ctx, connectionID)
	if err != nil {
		return models.Connection{}, err
	}
	if !conn.HasParticipant(callerID) {
		return models.Connection{}, apperr.E(apperr.Forbidden, "not a participant in this connection")
	}
	return conn, nil
}

// ListForUser returns the user's connections plus the total for pagination.
func (e *Engine) ListForUser(ctx context.Context, userID int64, filter repositories.ConnectionFilter) ([]models.Connection, int64, error) {
	conns, err := e.connections.ListForUser(ctx, userID, filter)
	if err != nil {
		return nil, 0, apperr.Wrap(apperr.Unavailable, "list connections", err)
	}
	total, err := e.connections.CountForUser(ctx, userID, filter)
	if err != nil {
		return nil, 0, apperr.Wrap(apperr.Unavailable, "count connections", err)
	}
	return conns, total, nil
}

// ActiveChats returns accepted connections whose chat window is open now,
// soonest-to-expire first.
func (e *Engine) ActiveChats(ctx context.Context, userID int64) ([]models.Connection, error) {
	conns, err := e.connections.ListActiveChats(ctx, userID, e.clock.Now())
	if err != nil {
		return nil, apperr.Wrap(apperr.Unavailable, "list active chats", err)
	}
	return conns, nil
}

// Delete removes a connection entirely. Administrative operation, restricted
// to participants; the state machine itself never hard-deletes.
func (e *Engine) Delete(ctx context.Context, connectionID, actorID int64) error {
	conn, err := e.getConnection(ctx, connectionID)
	if err != nil {
		return err
	}
	if !conn.HasParticipant(actorID) {
		return apperr.E(apperr.Forbidden, "not a participant in this connection")
	}
	if err := e.connections.Delete(ctx, conn.ID); err != nil {
		if errors.Is(err, repositories.ErrConnectionNotFound) {
			return apperr.E(apperr.NotFound, "connection not found")
		}
		return apperr.Wrap(apperr.Unavailable, "delete connection", err)
	}
	return nil
}

func (e *Engine) getConnection(ctx context.Context, connectionID int64) (models.Connection, error) {
	conn, err := e.connections.GetByID(ctx, connectionID)
	if errors.Is(err, repositories.ErrConnectionNotFound) {
		return models.Connection{}, apperr.E(apperr.NotFound, "connection not found")
	}
	if err != nil {
		return models.Connection{}, apperr.Wrap(apperr.Unavailable, "load connection", err)
	}
	return conn, nil
}

// IsChatOpen is the single source of truth for message eligibility. It is
// recomputed from the raw timestamps on every call; the stored status alone
// is never trusted for the time dimension.
func IsChatOpen(conn models.Connection, now time.Time) bool {
	return conn.Status == models.ConnectionAccepted &&
		conn.ChatExpiresAt != nil &&
		conn.ChatExpiresAt.After(now)
}

// TimeRemaining returns how long the chat window stays open, clamped at zero.
// ok is false when the connection never opened a window. Display only; gating
// always goes through IsChatOpen.
func TimeRemaining(conn models.Connection, now time.Time) (time.Duration, bool) {
	if conn.ChatExpiresAt == nil {
		return 0, false
	}
	remaining := conn.ChatExpiresAt.Sub(now)
	if remaining < 0 {
		remaining = 0
	}
	return remaining, true
}

// FormatTimeLeft renders a remaining duration for display: "3h 12m", "45m",
// or "Expired".
func FormatTimeLeft(d time.Duration) string {
	hours := int(d / time.Hour)
	minutes := int(d%time.Hour) / int(time.Minute)
	switch {
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes)
	case minutes > 0:
		return fmt.Sprintf("%dm", minutes)
	default:
		return "Expired"
	}
}
