package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"match-service/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

// MessageQuery controls pagination for List. Before/After reference an
// existing message id; the repository resolves them to that message's
// timestamp so the boundary stays stable while new messages append.
type MessageQuery struct {
	Before int64
	After  int64
	Limit  int
	Offset int
}

// MessageRepository defines interactions for connection messages.
type MessageRepository interface {
	Create(ctx context.Context, msg *models.Message) error
	GetByID(ctx context.Context, id int64) (models.Message, error)
	List(ctx context.Context, connectionID int64, q MessageQuery) ([]models.Message, error)
	Count(ctx context.Context, connectionID int64) (int64, error)
	CountUnread(ctx context.Context, connectionID, userID int64) (int64, error)
	LastMessage(ctx context.Context, connectionID int64) (*models.Message, error)
	MarkRead(ctx context.Context, connectionID, readerID int64, ids []int64, readAt time.Time) (int64, error)
	SoftDelete(ctx context.Context, id int64) error
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs a MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

const messageColumns = `id, connection_id, sender_id, receiver_id, content, is_media, media_url, media_type, created_at, is_deleted, is_read, read_at`

// Create stores a message.
func (r *MessageRepo) Create(ctx context.Context, msg *models.Message) error {
	return r.db.QueryRowxContext(ctx,
		`INSERT INTO messages (connection_id, sender_id, receiver_id, content, is_media, media_url, media_type, created_at)
         VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
         RETURNING `+messageColumns,
		msg.ConnectionID, msg.SenderID, msg.ReceiverID, msg.Content, msg.IsMedia, msg.MediaURL, msg.MediaType, msg.CreatedAt).
		StructScan(msg)
}

// GetByID retrieves a single message, deleted ones included (callers decide).
func (r *MessageRepo) GetByID(ctx context.Context, id int64) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `SELECT `+messageColumns+` FROM messages WHERE id=$1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// List returns non-deleted messages in chronological order. An unknown
// Before/After id is ignored rather than failing the read.
func (r *MessageRepo) List(ctx context.Context, connectionID int64, q MessageQuery) ([]models.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE connection_id=$1 AND is_deleted=FALSE`
	args := []any{connectionID}

	if q.Before != 0 {
		if ts, ok, err := r.timestampOf(ctx, q.Before); err != nil {
			return nil, err
		} else if ok {
			args = append(args, ts)
			query += ` AND created_at < $` + itoa(len(args))
		}
	}
	if q.After != 0 {
		if ts, ok, err := r.timestampOf(ctx, q.After); err != nil {
			return nil, err
		} else if ok {
			args = append(args, ts)
			query += ` AND created_at > $` + itoa(len(args))
		}
	}

	query += ` ORDER BY created_at DESC, id DESC`
	if q.Limit > 0 {
		args = append(args, q.Limit, q.Offset)
		query += ` LIMIT $` + itoa(len(args)-1) + ` OFFSET $` + itoa(len(args))
	}

	var msgs []models.Message
	if err := r.db.SelectContext(ctx, &msgs, query, args...); err != nil {
		return nil, err
	}
	// Query is newest-first for the limit; callers expect oldest first.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (r *MessageRepo) timestampOf(ctx context.Context, id int64) (time.Time, bool, error) {
	var ts time.Time
	err := r.db.GetContext(ctx, &ts, `SELECT created_at FROM messages WHERE id=$1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return ts, true, nil
}

// Count counts non-deleted messages on a connection.
func (r *MessageRepo) Count(ctx context.Context, connectionID int64) (int64, error) {
	var total int64
	err := r.db.GetContext(ctx, &total,
		`SELECT COUNT(*) FROM messages WHERE connection_id=$1 AND is_deleted=FALSE`, connectionID)
	return total, err
}

// CountUnread counts messages the user has not read yet.
func (r *MessageRepo) CountUnread(ctx context.Context, connectionID, userID int64) (int64, error) {
	var total int64
	err := r.db.GetContext(ctx, &total,
		`SELECT COUNT(*) FROM messages
         WHERE connection_id=$1 AND receiver_id=$2 AND is_read=FALSE AND is_deleted=FALSE`,
		connectionID, userID)
	return total, err
}

// LastMessage returns the newest non-deleted message, or nil when there is none.
func (r *MessageRepo) LastMessage(ctx context.Context, connectionID int64) (*models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg,
		`SELECT `+messageColumns+` FROM messages
         WHERE connection_id=$1 AND is_deleted=FALSE
         ORDER BY created_at DESC, id DESC LIMIT 1`, connectionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// MarkRead flips unread messages addressed to the reader and reports how many
// actually changed. Re-marking already-read ids is a no-op, never an error.
func (r *MessageRepo) MarkRead(ctx context.Context, connectionID, readerID int64, ids []int64, readAt time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE messages SET is_read=TRUE, read_at=$4
         WHERE id = ANY($3) AND connection_id=$1 AND receiver_id=$2 AND is_read=FALSE`,
		connectionID, readerID, pq.Array(ids), readAt)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// SoftDelete marks a message deleted; the row stays for audit.
func (r *MessageRepo) SoftDelete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `UPDATE messages SET is_deleted=TRUE WHERE id=$1`, id)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrMessageNotFound
	}
	return nil
}
