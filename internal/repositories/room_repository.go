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

var (
	ErrRoomNotFound         = errors.New("room not found")
	ErrRoomInactive         = errors.New("room is not active")
	ErrRoomFull             = errors.New("room is full")
	ErrAlreadyParticipant   = errors.New("already a participant")
	ErrNotParticipant       = errors.New("not a participant")
	ErrCapacityBelowCurrent = errors.New("max participants below current participant count")
)

// RoomFilter narrows ListRooms.
type RoomFilter struct {
	RoomType  models.RoomType
	Tags      []string
	IsPrivate *bool
	// ViewerID hides private rooms the viewer does not belong to.
	ViewerID int64
	Limit    int
	Offset   int
}

// RoomSettings carries the creator-editable fields for UpdateSettings. Nil
// means "leave unchanged". ClearSchedule resets ScheduledFor to NULL.
type RoomSettings struct {
	Name            *string
	Description     *string
	MaxParticipants *int
	Tags            []string
	IsPrivate       *bool
	ScheduledFor    *time.Time
	ClearSchedule   bool
	DurationMinutes *int
}

// RoomRepository abstracts room persistence. AddParticipant and
// RemoveParticipant run their membership checks and mutations inside one
// transaction with the room row locked, so a capacity race resolves to
// exactly one winner and ownership transfer is atomic with the leave.
type RoomRepository interface {
	Create(ctx context.Context, room *models.Room, joinedAt time.Time) error
	GetByID(ctx context.Context, id int64) (models.Room, error)
	Participants(ctx context.Context, roomID int64) ([]models.RoomParticipant, error)
	AddParticipant(ctx context.Context, roomID, userID int64, joinedAt time.Time) (models.Room, error)
	RemoveParticipant(ctx context.Context, roomID, userID int64) (models.Room, error)
	UpdateSettings(ctx context.Context, roomID int64, set RoomSettings) (models.Room, error)
	Deactivate(ctx context.Context, roomID int64) error
	ListRooms(ctx context.Context, filter RoomFilter) ([]models.Room, error)
	ListCreated(ctx context.Context, userID int64) ([]models.Room, error)
	ListJoined(ctx context.Context, userID int64) ([]models.Room, error)
}

// RoomRepo is a sqlx implementation of RoomRepository.
type RoomRepo struct {
	db *sqlx.DB
}

// NewRoomRepo constructs a RoomRepo.
func NewRoomRepo(db *sqlx.DB) *RoomRepo {
	return &RoomRepo{db: db}
}

const roomColumns = `id, name, description, created_by, max_participants, room_type, tags, is_private, scheduled_for, duration_minutes, is_active, created_at`

// Create inserts a room and seats the creator as its first participant.
func (r *RoomRepo) Create(ctx context.Context, room *models.Room, joinedAt time.Time) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if err = tx.QueryRowxContext(ctx,
		`INSERT INTO rooms (name, description, created_by, max_participants, room_type, tags, is_private, scheduled_for, duration_minutes, created_at)
         VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
         RETURNING `+roomColumns,
		room.Name, room.Description, room.CreatedBy, room.MaxParticipants, room.RoomType,
		room.Tags, room.IsPrivate, room.ScheduledFor, room.DurationMinutes, room.CreatedAt).
		StructScan(room); err != nil {
		return err
	}

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO room_participants (room_id, user_id, joined_at) VALUES ($1, $2, $3)`,
		room.ID, room.CreatedBy, joinedAt); err != nil {
		return err
	}

	return tx.Commit()
}

// GetByID fetches a room by id.
func (r *RoomRepo) GetByID(ctx context.Context, id int64) (models.Room, error) {
	var room models.Room
	err := r.db.GetContext(ctx, &room, `SELECT `+roomColumns+` FROM rooms WHERE id=$1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Room{}, ErrRoomNotFound
	}
	return room, err
}

// Participants returns membership in join order.
func (r *RoomRepo) Participants(ctx context.Context, roomID int64) ([]models.RoomParticipant, error) {
	var participants []models.RoomParticipant
	err := r.db.SelectContext(ctx, &participants,
		`SELECT id, room_id, user_id, joined_at FROM room_participants
         WHERE room_id=$1 ORDER BY joined_at ASC, id ASC`, roomID)
	return participants, err
}

// AddParticipant seats a user if the room is active, not full and the user is
// not already seated. The capacity check and the insert share one locked
// transaction.
func (r *RoomRepo) AddParticipant(ctx context.Context, roomID, userID int64, joinedAt time.Time) (models.Room, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Room{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	room, err := lockRoom(ctx, tx, roomID)
	if err != nil {
		return models.Room{}, err
	}
	if !room.IsActive {
		err = ErrRoomInactive
		return models.Room{}, err
	}

	var seated bool
	if err = tx.GetContext(ctx, &seated,
		`SELECT EXISTS(SELECT 1 FROM room_participants WHERE room_id=$1 AND user_id=$2)`,
		roomID, userID); err != nil {
		return models.Room{}, err
	}
	if seated {
		err = ErrAlreadyParticipant
		return models.Room{}, err
	}

	var count int
	if err = tx.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM room_participants WHERE room_id=$1`, roomID); err != nil {
		return models.Room{}, err
	}
	if count >= room.MaxParticipants {
		err = ErrRoomFull
		return models.Room{}, err
	}

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO room_participants (room_id, user_id, joined_at) VALUES ($1, $2, $3)`,
		roomID, userID, joinedAt); err != nil {
		return models.Room{}, err
	}

	if err = tx.Commit(); err != nil {
		return models.Room{}, err
	}
	return room, nil
}

// RemoveParticipant unseats a user. When the creator leaves and others
// remain, ownership moves to the earliest remaining joiner; when the room
// empties it is deactivated, never deleted.
func (r *RoomRepo) RemoveParticipant(ctx context.Context, roomID, userID int64) (models.Room, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Room{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	room, err := lockRoom(ctx, tx, roomID)
	if err != nil {
		return models.Room{}, err
	}

	res, err := tx.ExecContext(ctx,
		`DELETE FROM room_participants WHERE room_id=$1 AND user_id=$2`, roomID, userID)
	if err != nil {
		return models.Room{}, err
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return models.Room{}, err
	}
	if removed == 0 {
		err = ErrNotParticipant
		return models.Room{}, err
	}

	var successor int64
	err = tx.GetContext(ctx, &successor,
		`SELECT user_id FROM room_participants WHERE room_id=$1 ORDER BY joined_at ASC, id ASC LIMIT 1`,
		roomID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		err = nil
		if _, err = tx.ExecContext(ctx, `UPDATE rooms SET is_active=FALSE WHERE id=$1`, roomID); err != nil {
			return models.Room{}, err
		}
		room.IsActive = false
	case err != nil:
		return models.Room{}, err
	case room.CreatedBy == userID:
		if _, err = tx.ExecContext(ctx, `UPDATE rooms SET created_by=$2 WHERE id=$1`, roomID, successor); err != nil {
			return models.Room{}, err
		}
		room.CreatedBy = successor
	}

	if err = tx.Commit(); err != nil {
		return models.Room{}, err
	}
	return room, nil
}

// UpdateSettings applies creator edits. Lowering capacity below the current
// participant count fails inside the transaction.
func (r *RoomRepo) UpdateSettings(ctx context.Context, roomID int64, set RoomSettings) (models.Room, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Room{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	room, err := lockRoom(ctx, tx, roomID)
	if err != nil {
		return models.Room{}, err
	}

	if set.MaxParticipants != nil {
		var count int
		if err = tx.GetContext(ctx, &count,
			`SELECT COUNT(*) FROM room_participants WHERE room_id=$1`, roomID); err != nil {
			return models.Room{}, err
		}
		if *set.MaxParticipants < count {
			err = ErrCapacityBelowCurrent
			return models.Room{}, err
		}
		room.MaxParticipants = *set.MaxParticipants
	}
	if set.Name != nil {
		room.Name = *set.Name
	}
	if set.Description != nil {
		room.Description = *set.Description
	}
	if set.Tags != nil {
		room.Tags = set.Tags
	}
	if set.IsPrivate != nil {
		room.IsPrivate = *set.IsPrivate
	}
	if set.ClearSchedule {
		room.ScheduledFor = nil
	} else if set.ScheduledFor != nil {
		room.ScheduledFor = set.ScheduledFor
	}
	if set.DurationMinutes != nil {
		room.DurationMinutes = *set.DurationMinutes
	}

	if _, err = tx.ExecContext(ctx,
		`UPDATE rooms SET name=$2, description=$3, max_participants=$4, tags=$5, is_private=$6, scheduled_for=$7, duration_minutes=$8
         WHERE id=$1`,
		roomID, room.Name, room.Description, room.MaxParticipants, room.Tags,
		room.IsPrivate, room.ScheduledFor, room.DurationMinutes); err != nil {
		return models.Room{}, err
	}

	if err = tx.Commit(); err != nil {
		return models.Room{}, err
	}
	return room, nil
}

// Deactivate soft-closes a room.
func (r *RoomRepo) Deactivate(ctx context.Context, roomID int64) error {
	res, err := r.db.ExecContext(ctx, `UPDATE rooms SET is_active=FALSE WHERE id=$1`, roomID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrRoomNotFound
	}
	return nil
}

// ListRooms returns active rooms matching the filter, newest first. Private
// rooms are visible only to their participants.
func (r *RoomRepo) ListRooms(ctx context.Context, filter RoomFilter) ([]models.Room, error) {
	query := `SELECT ` + roomColumns + ` FROM rooms WHERE is_active=TRUE`
	args := []any{}

	if filter.RoomType != "" {
		args = append(args, filter.RoomType)
		query += ` AND room_type=$` + itoa(len(args))
	}
	if len(filter.Tags) > 0 {
		args = append(args, pq.Array(filter.Tags))
		query += ` AND tags && $` + itoa(len(args))
	}
	if filter.IsPrivate != nil {
		args = append(args, *filter.IsPrivate)
		query += ` AND is_private=$` + itoa(len(args))
	}
	if filter.ViewerID != 0 {
		args = append(args, filter.ViewerID)
		query += ` AND (is_private=FALSE OR EXISTS(SELECT 1 FROM room_participants rp WHERE rp.room_id=rooms.id AND rp.user_id=$` + itoa(len(args)) + `))`
	}

	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit, filter.Offset)
		query += ` LIMIT $` + itoa(len(args)-1) + ` OFFSET $` + itoa(len(args))
	}

	var rooms []models.Room
	err := r.db.SelectContext(ctx, &rooms, query, args...)
	return rooms, err
}

// ListCreated returns active rooms the user owns.
func (r *RoomRepo) ListCreated(ctx context.Context, userID int64) ([]models.Room, error) {
	var rooms []models.Room
	err := r.db.SelectContext(ctx, &rooms,
		`SELECT `+roomColumns+` FROM rooms WHERE created_by=$1 AND is_active=TRUE ORDER BY created_at DESC`,
		userID)
	return rooms, err
}

// ListJoined returns active rooms the user participates in but does not own.
func (r *RoomRepo) ListJoined(ctx context.Context, userID int64) ([]models.Room, error) {
	var rooms []models.Room
	err := r.db.SelectContext(ctx, &rooms,
		`SELECT rooms.* FROM rooms
         INNER JOIN room_participants rp ON rp.room_id = rooms.id
         WHERE rp.user_id=$1 AND rooms.created_by<>$1 AND rooms.is_active=TRUE
         ORDER BY rooms.created_at DESC`,
		userID)
	return rooms, err
}

func lockRoom(ctx context.Context, tx *sqlx.Tx, roomID int64) (models.Room, error) {
	var room models.Room
	err := tx.GetContext(ctx, &room,
		`SELECT `+roomColumns+` FROM rooms WHERE id=$1 FOR UPDATE`, roomID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Room{}, ErrRoomNotFound
	}
	return room, err
}
