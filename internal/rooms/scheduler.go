// Package rooms manages group rooms: capacity-bounded membership, schedule
// driven live/upcoming/ended status and ownership transfer when the creator
// leaves.
package rooms

import (
	"context"
	"errors"
	"time"

	"match-service/internal/apperr"
	"match-service/internal/clock"
	"match-service/internal/models"
	"match-service/internal/notify"
	"match-service/internal/repositories"
)

// Scheduler implements room operations on top of the room store. Status is
// always derived from the schedule and the clock at read time; it is never
// persisted.
type Scheduler struct {
	rooms    repositories.RoomRepository
	users    repositories.UserRepository
	notifier notify.Notifier
	clock    clock.Clock
}

// NewScheduler constructs a Scheduler.
func NewScheduler(rooms repositories.RoomRepository, users repositories.UserRepository, notifier notify.Notifier, clk clock.Clock) *Scheduler {
	return &Scheduler{rooms: rooms, users: users, notifier: notifier, clock: clk}
}

// RoomView is a room plus its derived, per-request fields.
type RoomView struct {
	models.Room
	Status           models.RoomStatus `json:"status"`
	ParticipantCount int               `json:"participant_count"`
	SpotsAvailable   int               `json:"spots_available"`
}

// CreateRoomInput carries the creator-supplied fields for CreateRoom.
type CreateRoomInput struct {
	Name            string
	Description     string
	MaxParticipants int
	RoomType        models.RoomType
	Tags            []string
	IsPrivate       bool
	ScheduledFor    *time.Time
	DurationMinutes int
}

// Status derives a room's lifecycle phase at a given instant. A room with no
// schedule is live for as long as it is active; a scheduled room is upcoming
// until its start, live from start for its duration, then ended.
func Status(scheduledFor *time.Time, durationMinutes int, now time.Time) models.RoomStatus {
	if scheduledFor == nil {
		return models.RoomLive
	}
	if now.Before(*scheduledFor) {
		return models.RoomUpcoming
	}
	if durationMinutes <= 0 {
		durationMinutes = models.RoomDefaultDuration
	}
	end := scheduledFor.Add(time.Duration(durationMinutes) * time.Minute)
	if now.Before(end) {
		return models.RoomLive
	}
	return models.RoomEnded
}

// CreateRoom validates the input, creates the room and seats the creator.
func (s *Scheduler) CreateRoom(ctx context.Context, creatorID int64, in CreateRoomInput) (RoomView, error) {
	if in.Name == "" {
		return RoomView{}, apperr.E(apperr.InvalidInput, "room name required")
	}
	if !in.RoomType.Valid() {
		return RoomView{}, apperr.E(apperr.InvalidInput, "unknown room type")
	}
	if in.MaxParticipants == 0 {
		in.MaxParticipants = 5
	}
	if in.MaxParticipants < models.RoomMinParticipants || in.MaxParticipants > models.RoomMaxParticipants {
		return RoomView{}, apperr.Errorf(apperr.InvalidInput, "max participants must be between %d and %d",
			models.RoomMinParticipants, models.RoomMaxParticipants)
	}
	now := s.clock.Now()
	if in.ScheduledFor != nil && !in.ScheduledFor.After(now) {
		return RoomView{}, apperr.E(apperr.InvalidInput, "scheduled time must be in the future")
	}
	if in.DurationMinutes == 0 {
		in.DurationMinutes = models.RoomDefaultDuration
	}
	if in.DurationMinutes < 0 {
		return RoomView{}, apperr.E(apperr.InvalidInput, "duration must be positive")
	}

	room := models.Room{
		Name:            in.Name,
		Description:     in.Description,
		CreatedBy:       creatorID,
		MaxParticipants: in.MaxParticipants,
		RoomType:        in.RoomType,
		Tags:            in.Tags,
		IsPrivate:       in.IsPrivate,
		ScheduledFor:    in.ScheduledFor,
		DurationMinutes: in.DurationMinutes,
		IsActive:        true,
		CreatedAt:       now,
	}
	if err := s.rooms.Create(ctx, &room, now); err != nil {
		return RoomView{}, apperr.Wrap(apperr.Unavailable, "create room", err)
	}
	return s.view(ctx, room, now)
}

// GetRoom returns a room with its derived status and seating.
func (s *Scheduler) GetRoom(ctx context.Context, roomID int64) (RoomView, error) {
	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		return RoomView{}, roomErr("load room", err)
	}
	return s.view(ctx, room, s.clock.Now())
}

// ParticipantView is one seated user, joined with their directory entry.
type ParticipantView struct {
	UserID   int64     `json:"user_id"`
	Name     string    `json:"name,omitempty"`
	PhotoURL string    `json:"photo_url,omitempty"`
	JoinedAt time.Time `json:"joined_at"`
}

// Participants returns a room's membership in join order, with display data
// from the identity directory where available.
func (s *Scheduler) Participants(ctx context.Context, roomID int64) ([]ParticipantView, error) {
	if _, err := s.rooms.GetByID(ctx, roomID); err != nil {
		return nil, roomErr("load room", err)
	}
	participants, err := s.rooms.Participants(ctx, roomID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Unavailable, "list participants", err)
	}

	ids := make([]int64, 0, len(participants))
	for _, p := range participants {
		ids = append(ids, p.UserID)
	}
	users, err := s.users.BulkUsers(ctx, ids)
	if err != nil {
		return nil, apperr.Wrap(apperr.Unavailable, "load participant users", err)
	}
	byID := make(map[int64]models.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}

	views := make([]ParticipantView, 0, len(participants))
	for _, p := range participants {
		v := ParticipantView{UserID: p.UserID, JoinedAt: p.JoinedAt}
		if u, ok := byID[p.UserID]; ok {
			v.Name = u.Name
			v.PhotoURL = u.PhotoURL
		}
		views = append(views, v)
	}
	return views, nil
}

// Join seats the caller in a room. Refusals are checked in order: inactive,
// already seated, full, ended. The store re-runs the membership and capacity
// checks inside its transaction, so the pre-checks here only decide which
// refusal the caller sees; a race at the capacity boundary still resolves to
// one winner.
func (s *Scheduler) Join(ctx context.Context, roomID, userID int64) (RoomView, error) {
	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		return RoomView{}, roomErr("load room", err)
	}
	if !room.IsActive {
		return RoomView{}, apperr.E(apperr.InvalidState, "room is not active")
	}
	participants, err := s.rooms.Participants(ctx, roomID)
	if err != nil {
		return RoomView{}, apperr.Wrap(apperr.Unavailable, "list participants", err)
	}
	for _, p := range participants {
		if p.UserID == userID {
			return RoomView{}, apperr.E(apperr.Conflict, "already a participant")
		}
	}
	if len(participants) >= room.MaxParticipants {
		return RoomView{}, apperr.E(apperr.Capacity, "room is full")
	}
	now := s.clock.Now()
	if Status(room.ScheduledFor, room.DurationMinutes, now) == models.RoomEnded {
		return RoomView{}, apperr.E(apperr.InvalidState, "room has ended")
	}

	room, err = s.rooms.AddParticipant(ctx, roomID, userID, now)
	if err != nil {
		return RoomView{}, roomErr("join room", err)
	}

	s.notifier.Notify(ctx, room.CreatedBy, notify.KindRoomJoined, map[string]any{
		"room_id": room.ID,
		"user_id": userID,
	})
	return s.view(ctx, room, now)
}

// Leave unseats the caller. Ownership transfer and empty-room deactivation
// happen atomically with the removal.
func (s *Scheduler) Leave(ctx context.Context, roomID, userID int64) (RoomView, error) {
	room, err := s.rooms.RemoveParticipant(ctx, roomID, userID)
	if err != nil {
		return RoomView{}, roomErr("leave room", err)
	}
	return s.view(ctx, room, s.clock.Now())
}

// UpdateSettings applies creator edits to a room.
func (s *Scheduler) UpdateSettings(ctx context.Context, roomID, actorID int64, set repositories.RoomSettings) (RoomView, error) {
	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		return RoomView{}, roomErr("load room", err)
	}
	if room.CreatedBy != actorID {
		return RoomView{}, apperr.E(apperr.Forbidden, "only the room creator can update settings")
	}

	now := s.clock.Now()
	if set.MaxParticipants != nil &&
		(*set.MaxParticipants < models.RoomMinParticipants || *set.MaxParticipants > models.RoomMaxParticipants) {
		return RoomView{}, apperr.Errorf(apperr.InvalidInput, "max participants must be between %d and %d",
			models.RoomMinParticipants, models.RoomMaxParticipants)
	}
	if set.ScheduledFor != nil && !set.ScheduledFor.After(now) {
		return RoomView{}, apperr.E(apperr.InvalidInput, "scheduled time must be in the future")
	}
	if set.DurationMinutes != nil && *set.DurationMinutes <= 0 {
		return RoomView{}, apperr.E(apperr.InvalidInput, "duration must be positive")
	}

	room, err = s.rooms.UpdateSettings(ctx, roomID, set)
	if err != nil {
		return RoomView{}, roomErr("update room", err)
	}
	return s.view(ctx, room, now)
}

// Deactivate closes a room. Creator only; the record is kept.
func (s *Scheduler) Deactivate(ctx context.Context, roomID, actorID int64) error {
	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		return roomErr("load room", err)
	}
	if room.CreatedBy != actorID {
		return apperr.E(apperr.Forbidden, "only the room creator can deactivate the room")
	}
	if err := s.rooms.Deactivate(ctx, roomID); err != nil {
		return roomErr("deactivate room", err)
	}
	return nil
}

// ListRooms returns active rooms matching the filter, with derived fields.
func (s *Scheduler) ListRooms(ctx context.Context, filter repositories.RoomFilter) ([]RoomView, error) {
	rs, err := s.rooms.ListRooms(ctx, filter)
	if err != nil {
		return nil, apperr.Wrap(apperr.Unavailable, "list rooms", err)
	}
	return s.views(ctx, rs)
}

// MyRooms returns the rooms the user created and the ones they joined.
func (s *Scheduler) MyRooms(ctx context.Context, userID int64) (created, joined []RoomView, err error) {
	createdRooms, err := s.rooms.ListCreated(ctx, userID)
	if err != nil {
		return nil, nil, apperr.Wrap(apperr.Unavailable, "list created rooms", err)
	}
	joinedRooms, err := s.rooms.ListJoined(ctx, userID)
	if err != nil {
		return nil, nil, apperr.Wrap(apperr.Unavailable, "list joined rooms", err)
	}
	if created, err = s.views(ctx, createdRooms); err != nil {
		return nil, nil, err
	}
	if joined, err = s.views(ctx, joinedRooms); err != nil {
		return nil, nil, err
	}
	return created, joined, nil
}

func (s *Scheduler) view(ctx context.Context, room models.Room, now time.Time) (RoomView, error) {
	participants, err := s.rooms.Participants(ctx, room.ID)
	if err != nil {
		return RoomView{}, apperr.Wrap(apperr.Unavailable, "list participants", err)
	}
	spots := room.MaxParticipants - len(participants)
	if spots < 0 {
		spots = 0
	}
	return RoomView{
		Room:             room,
		Status:           Status(room.ScheduledFor, room.DurationMinutes, now),
		ParticipantCount: len(participants),
		SpotsAvailable:   spots,
	}, nil
}

func (s *Scheduler) views(ctx context.Context, rs []models.Room) ([]RoomView, error) {
	now := s.clock.Now()
	views := make([]RoomView, 0, len(rs))
	for _, room := range rs {
		v, err := s.view(ctx, room, now)
		if err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	return views, nil
}

func roomErr(op string, err error) error {
	switch {
	case errors.Is(err, repositories.ErrRoomNotFound):
		return apperr.E(apperr.NotFound, "room not found")
	case errors.Is(err, repositories.ErrRoomInactive):
		return apperr.E(apperr.InvalidState, "room is not active")
	case errors.Is(err, repositories.ErrRoomFull):
		return apperr.E(apperr.Capacity, "room is full")
	case errors.Is(err, repositories.ErrAlreadyParticipant):
		return apperr.E(apperr.Conflict, "already a participant")
	case errors.Is(err, repositories.ErrNotParticipant):
		return apperr.E(apperr.InvalidState, "not a participant in this room")
	case errors.Is(err, repositories.ErrCapacityBelowCurrent):
		return apperr.E(apperr.InvalidState, "max participants below current participant count")
	default:
		return apperr.Wrap(apperr.Unavailable, op, err)
	}
}
