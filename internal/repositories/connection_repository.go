package repositories

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"match-service/internal/models"
)

var (
	ErrConnectionNotFound  = errors.New("connection not found")
	ErrDuplicateConnection = errors.New("connection already exists")
)

// ConnectionFilter narrows ListForUser results.
type ConnectionFilter struct {
	// Type is "sent", "received" or "" for both directions.
	Type   string
	Status models.ConnectionStatus
	Limit  int
	Offset int
}

// ConnectionRepository abstracts connection persistence. TransitionStatus is
// the serialization point for the lifecycle state machine: it only applies
// when the stored status still matches the expected one, so two racing
// updates resolve to exactly one winner.
type ConnectionRepository interface {
	Create(ctx context.Context, conn *models.Connection) error
	GetByID(ctx context.Context, id int64) (models.Connection, error)
	FindByPair(ctx context.Context, userA, userB int64) (models.Connection, error)
	TransitionStatus(ctx context.Context, id int64, from, to models.ConnectionStatus, chatExpiresAt *time.Time) (bool, error)
	ListForUser(ctx context.Context, userID int64, filter ConnectionFilter) ([]models.Connection, error)
	CountForUser(ctx context.Context, userID int64, filter ConnectionFilter) (int64, error)
	ListActiveChats(ctx context.Context, userID int64, now time.Time) ([]models.Connection, error)
	Delete(ctx context.Context, id int64) error
}

// ConnectionRepo is a sqlx implementation of ConnectionRepository.
type ConnectionRepo struct {
	db *sqlx.DB
}

// NewConnectionRepo constructs a ConnectionRepo.
func NewConnectionRepo(db *sqlx.DB) *ConnectionRepo {
	return &ConnectionRepo{db: db}
}

const connectionColumns = `id, requester_id, receiver_id, status, message, created_at, request_expires_at, chat_expires_at`

// Create inserts a pending connection. The unordered-pair unique index turns
// a concurrent duplicate (in either direction) into ErrDuplicateConnection.
func (r *ConnectionRepo) Create(ctx context.Context, conn *models.Connection) error {
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO connections (requester_id, receiver_id, status, message, created_at, request_expires_at)
         VALUES ($1, $2, $3, $4, $5, $6)
         RETURNING `+connectionColumns,
		conn.RequesterID, conn.ReceiverID, conn.Status, conn.Message, conn.CreatedAt, conn.RequestExpiresAt).
		StructScan(conn)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicateConnection
		}
		return err
	}
	return nil
}

// GetByID fetches a connection by id.
func (r *ConnectionRepo) GetByID(ctx context.Context, id int64) (models.Connection, error) {
	var conn models.Connection
	err := r.db.GetContext(ctx, &conn, `SELECT `+connectionColumns+` FROM connections WHERE id=$1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Connection{}, ErrConnectionNotFound
	}
	return conn, err
}

// FindByPair looks up the connection between two users regardless of which
// side requested it.
func (r *ConnectionRepo) FindByPair(ctx context.Context, userA, userB int64) (models.Connection, error) {
	var conn models.Connection
	err := r.db.GetContext(ctx, &conn,
		`SELECT `+connectionColumns+` FROM connections
         WHERE (requester_id=$1 AND receiver_id=$2) OR (requester_id=$2 AND receiver_id=$1)`,
		userA, userB)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Connection{}, ErrConnectionNotFound
	}
	return conn, err
}

// TransitionStatus applies a conditional status change and reports whether
// this call was the one that applied it. chatExpiresAt is written only when
// non-nil (the accept transition).
func (r *ConnectionRepo) TransitionStatus(ctx context.Context, id int64, from, to models.ConnectionStatus, chatExpiresAt *time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE connections SET status=$3, chat_expires_at=COALESCE($4, chat_expires_at)
         WHERE id=$1 AND status=$2`,
		id, from, to, chatExpiresAt)
	if err != nil {
		return false, err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return count == 1, nil
}

// ListForUser returns the user's connections newest first.
func (r *ConnectionRepo) ListForUser(ctx context.Context, userID int64, filter ConnectionFilter) ([]models.Connection, error) {
	query, args := buildConnectionFilter(`SELECT `+connectionColumns+` FROM connections`, userID, filter)
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit, filter.Offset)
		query += ` LIMIT $` + itoa(len(args)-1) + ` OFFSET $` + itoa(len(args))
	}

	var conns []models.Connection
	err := r.db.SelectContext(ctx, &conns, query, args...)
	return conns, err
}

// CountForUser counts connections matching the filter.
func (r *ConnectionRepo) CountForUser(ctx context.Context, userID int64, filter ConnectionFilter) (int64, error) {
	filter.Limit = 0
	query, args := buildConnectionFilter(`SELECT COUNT(*) FROM connections`, userID, filter)
	var total int64
	err := r.db.GetContext(ctx, &total, query, args...)
	return total, err
}

// ListActiveChats returns accepted connections whose chat window is still
// open, soonest-to-expire first.
func (r *ConnectionRepo) ListActiveChats(ctx context.Context, userID int64, now time.Time) ([]models.Connection, error) {
	var conns []models.Connection
	err := r.db.SelectContext(ctx, &conns,
		`SELECT `+connectionColumns+` FROM connections
         WHERE (requester_id=$1 OR receiver_id=$1) AND status=$2 AND chat_expires_at > $3
         ORDER BY chat_expires_at ASC`,
		userID, models.ConnectionAccepted, now)
	return conns, err
}

// Delete removes a connection and, via cascade, its messages. Administrative
// operation; the lifecycle engine never calls it.
func (r *ConnectionRepo) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM connections WHERE id=$1`, id)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrConnectionNotFound
	}
	return nil
}

func buildConnectionFilter(base string, userID int64, filter ConnectionFilter) (string, []any) {
	args := []any{userID}
	switch filter.Type {
	case "sent":
		base += ` WHERE requester_id=$1`
	case "received":
		base += ` WHERE receiver_id=$1`
	default:
		base += ` WHERE (requester_id=$1 OR receiver_id=$1)`
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		base += ` AND status=$` + itoa(len(args))
	}
	return base, args
}

func itoa(n int) string { return strconv.Itoa(n) }
