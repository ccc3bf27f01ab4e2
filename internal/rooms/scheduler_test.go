package rooms

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"match-service/internal/apperr"
	"match-service/internal/clock"
	"match-service/internal/mocks"
	"match-service/internal/models"
	"match-service/internal/notify"
	"match-service/internal/repositories"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestScheduler(rooms *mocks.RoomRepositoryMock, users *mocks.UserRepositoryMock, notifier *mocks.NotifierMock, clk clock.Clock) *Scheduler {
	return NewScheduler(rooms, users, notifier, clk)
}

func TestStatusDerivation(t *testing.T) {
	start := t0.Add(time.Hour)

	tests := []struct {
		name         string
		scheduledFor *time.Time
		duration     int
		now          time.Time
		want         models.RoomStatus
	}{
		{"no schedule is always live", nil, 60, t0, models.RoomLive},
		{"before start", &start, 60, t0, models.RoomUpcoming},
		{"at start", &start, 60, start, models.RoomLive},
		{"mid-session", &start, 60, start.Add(30 * time.Minute), models.RoomLive},
		{"at end", &start, 60, start.Add(60 * time.Minute), models.RoomEnded},
		{"after end", &start, 60, start.Add(2 * time.Hour), models.RoomEnded},
		{"zero duration falls back to default", &start, 0, start.Add(59 * time.Minute), models.RoomLive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Status(tt.scheduledFor, tt.duration, tt.now))
		})
	}
}

func TestCreateRoomDefaults(t *testing.T) {
	roomRepo := new(mocks.RoomRepositoryMock)
	scheduler := newTestScheduler(roomRepo, new(mocks.UserRepositoryMock), new(mocks.NotifierMock), clock.NewFixed(t0))

	roomRepo.On("Create", mock.Anything, mock.AnythingOfType("*models.Room"), t0).
		Run(func(args mock.Arguments) {
			room := args.Get(1).(*models.Room)
			room.ID = 5
			assert.Equal(t, 5, room.MaxParticipants)
			assert.Equal(t, models.RoomDefaultDuration, room.DurationMinutes)
			assert.True(t, room.IsActive)
		}).Return(nil).Once()
	roomRepo.On("Participants", mock.Anything, int64(5)).
		Return([]models.RoomParticipant{{RoomID: 5, UserID: 1, JoinedAt: t0}}, nil).Once()

	view, err := scheduler.CreateRoom(context.Background(), 1, CreateRoomInput{
		Name:     "go night",
		RoomType: models.RoomTypeHobby,
	})
	require.NoError(t, err)
	assert.Equal(t, models.RoomLive, view.Status)
	assert.Equal(t, 1, view.ParticipantCount)
	assert.Equal(t, 4, view.SpotsAvailable)
	roomRepo.AssertExpectations(t)
}

func TestCreateRoomValidation(t *testing.T) {
	scheduler := newTestScheduler(new(mocks.RoomRepositoryMock), new(mocks.UserRepositoryMock), new(mocks.NotifierMock), clock.NewFixed(t0))

	_, err := scheduler.CreateRoom(context.Background(), 1, CreateRoomInput{RoomType: models.RoomTypeHobby})
	assert.True(t, apperr.IsKind(err, apperr.InvalidInput))

	_, err = scheduler.CreateRoom(context.Background(), 1, CreateRoomInput{Name: "x", RoomType: "karaoke"})
	assert.True(t, apperr.IsKind(err, apperr.InvalidInput))

	_, err = scheduler.CreateRoom(context.Background(), 1, CreateRoomInput{Name: "x", RoomType: models.RoomTypeHobby, MaxParticipants: 11})
	assert.True(t, apperr.IsKind(err, apperr.InvalidInput))

	_, err = scheduler.CreateRoom(context.Background(), 1, CreateRoomInput{Name: "x", RoomType: models.RoomTypeHobby, MaxParticipants: 1})
	assert.True(t, apperr.IsKind(err, apperr.InvalidInput))

	past := t0.Add(-time.Minute)
	_, err = scheduler.CreateRoom(context.Background(), 1, CreateRoomInput{Name: "x", RoomType: models.RoomTypeHobby, ScheduledFor: &past})
	assert.True(t, apperr.IsKind(err, apperr.InvalidInput))
}

func TestJoinInactiveRoom(t *testing.T) {
	roomRepo := new(mocks.RoomRepositoryMock)
	scheduler := newTestScheduler(roomRepo, new(mocks.UserRepositoryMock), new(mocks.NotifierMock), clock.NewFixed(t0))

	room := models.Room{ID: 5, CreatedBy: 1, MaxParticipants: 5, IsActive: false}
	roomRepo.On("GetByID", mock.Anything, int64(5)).Return(room, nil).Once()

	_, err := scheduler.Join(context.Background(), 5, 3)
	require.True(t, apperr.IsKind(err, apperr.InvalidState))
	assert.EqualError(t, err, "room is not active")
	roomRepo.AssertNotCalled(t, "AddParticipant", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestJoinFullRoom(t *testing.T) {
	roomRepo := new(mocks.RoomRepositoryMock)
	scheduler := newTestScheduler(roomRepo, new(mocks.UserRepositoryMock), new(mocks.NotifierMock), clock.NewFixed(t0))

	room := models.Room{ID: 5, CreatedBy: 1, MaxParticipants: 2, IsActive: true}
	roomRepo.On("GetByID", mock.Anything, int64(5)).Return(room, nil).Once()
	roomRepo.On("Participants", mock.Anything, int64(5)).
		Return([]models.RoomParticipant{{UserID: 1}, {UserID: 2}}, nil).Once()

	_, err := scheduler.Join(context.Background(), 5, 3)
	assert.True(t, apperr.IsKind(err, apperr.Capacity))
	roomRepo.AssertNotCalled(t, "AddParticipant", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestJoinCapacityRace(t *testing.T) {
	roomRepo := new(mocks.RoomRepositoryMock)
	scheduler := newTestScheduler(roomRepo, new(mocks.UserRepositoryMock), new(mocks.NotifierMock), clock.NewFixed(t0))

	// The pre-check saw a free seat; the store transaction finds it taken.
	room := models.Room{ID: 5, CreatedBy: 1, MaxParticipants: 2, IsActive: true}
	roomRepo.On("GetByID", mock.Anything, int64(5)).Return(room, nil).Once()
	roomRepo.On("Participants", mock.Anything, int64(5)).
		Return([]models.RoomParticipant{{UserID: 1}}, nil).Once()
	roomRepo.On("AddParticipant", mock.Anything, int64(5), int64(3), t0).
		Return(models.Room{}, repositories.ErrRoomFull).Once()

	_, err := scheduler.Join(context.Background(), 5, 3)
	assert.True(t, apperr.IsKind(err, apperr.Capacity))
}

func TestJoinEndedRoom(t *testing.T) {
	roomRepo := new(mocks.RoomRepositoryMock)
	scheduler := newTestScheduler(roomRepo, new(mocks.UserRepositoryMock), new(mocks.NotifierMock), clock.NewFixed(t0))

	start := t0.Add(-2 * time.Hour)
	room := models.Room{ID: 5, CreatedBy: 1, MaxParticipants: 5, IsActive: true, ScheduledFor: &start, DurationMinutes: 60}
	roomRepo.On("GetByID", mock.Anything, int64(5)).Return(room, nil).Once()
	roomRepo.On("Participants", mock.Anything, int64(5)).
		Return([]models.RoomParticipant{{UserID: 1}}, nil).Once()

	_, err := scheduler.Join(context.Background(), 5, 3)
	require.True(t, apperr.IsKind(err, apperr.InvalidState))
	assert.EqualError(t, err, "room has ended")
	roomRepo.AssertNotCalled(t, "AddParticipant", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestJoinNotifiesCreator(t *testing.T) {
	roomRepo := new(mocks.RoomRepositoryMock)
	notifier := new(mocks.NotifierMock)
	scheduler := newTestScheduler(roomRepo, new(mocks.UserRepositoryMock), notifier, clock.NewFixed(t0))

	room := models.Room{ID: 5, CreatedBy: 1, MaxParticipants: 5, IsActive: true}
	roomRepo.On("GetByID", mock.Anything, int64(5)).Return(room, nil).Once()
	roomRepo.On("Participants", mock.Anything, int64(5)).
		Return([]models.RoomParticipant{{UserID: 1}}, nil).Once()
	roomRepo.On("AddParticipant", mock.Anything, int64(5), int64(3), t0).Return(room, nil).Once()
	roomRepo.On("Participants", mock.Anything, int64(5)).
		Return([]models.RoomParticipant{{UserID: 1}, {UserID: 3}}, nil).Once()
	notifier.On("Notify", mock.Anything, int64(1), notify.KindRoomJoined, mock.Anything).Once()

	view, err := scheduler.Join(context.Background(), 5, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, view.ParticipantCount)
	assert.Equal(t, 3, view.SpotsAvailable)
	notifier.AssertExpectations(t)
}

func TestJoinDuplicateConflict(t *testing.T) {
	roomRepo := new(mocks.RoomRepositoryMock)
	scheduler := newTestScheduler(roomRepo, new(mocks.UserRepositoryMock), new(mocks.NotifierMock), clock.NewFixed(t0))

	room := models.Room{ID: 5, CreatedBy: 1, MaxParticipants: 5, IsActive: true}
	roomRepo.On("GetByID", mock.Anything, int64(5)).Return(room, nil).Once()
	roomRepo.On("Participants", mock.Anything, int64(5)).
		Return([]models.RoomParticipant{{UserID: 1}, {UserID: 3}}, nil).Once()

	_, err := scheduler.Join(context.Background(), 5, 3)
	assert.True(t, apperr.IsKind(err, apperr.Conflict))
	roomRepo.AssertNotCalled(t, "AddParticipant", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestJoinDuplicateWinsOverEnded(t *testing.T) {
	roomRepo := new(mocks.RoomRepositoryMock)
	scheduler := newTestScheduler(roomRepo, new(mocks.UserRepositoryMock), new(mocks.NotifierMock), clock.NewFixed(t0))

	start := t0.Add(-2 * time.Hour)
	room := models.Room{ID: 5, CreatedBy: 1, MaxParticipants: 5, IsActive: true, ScheduledFor: &start, DurationMinutes: 60}
	roomRepo.On("GetByID", mock.Anything, int64(5)).Return(room, nil).Once()
	roomRepo.On("Participants", mock.Anything, int64(5)).
		Return([]models.RoomParticipant{{UserID: 3}}, nil).Once()

	_, err := scheduler.Join(context.Background(), 5, 3)
	assert.True(t, apperr.IsKind(err, apperr.Conflict))
}

func TestLeaveTransfersOwnership(t *testing.T) {
	roomRepo := new(mocks.RoomRepositoryMock)
	scheduler := newTestScheduler(roomRepo, new(mocks.UserRepositoryMock), new(mocks.NotifierMock), clock.NewFixed(t0))

	// Store already applied the transfer atomically with the removal.
	after := models.Room{ID: 5, CreatedBy: 3, MaxParticipants: 5, IsActive: true}
	roomRepo.On("RemoveParticipant", mock.Anything, int64(5), int64(1)).Return(after, nil).Once()
	roomRepo.On("Participants", mock.Anything, int64(5)).
		Return([]models.RoomParticipant{{UserID: 3}}, nil).Once()

	view, err := scheduler.Leave(context.Background(), 5, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(3), view.CreatedBy)
}

func TestLeaveLastParticipantDeactivates(t *testing.T) {
	roomRepo := new(mocks.RoomRepositoryMock)
	scheduler := newTestScheduler(roomRepo, new(mocks.UserRepositoryMock), new(mocks.NotifierMock), clock.NewFixed(t0))

	after := models.Room{ID: 5, CreatedBy: 1, MaxParticipants: 5, IsActive: false}
	roomRepo.On("RemoveParticipant", mock.Anything, int64(5), int64(1)).Return(after, nil).Once()
	roomRepo.On("Participants", mock.Anything, int64(5)).Return([]models.RoomParticipant(nil), nil).Once()

	view, err := scheduler.Leave(context.Background(), 5, 1)
	require.NoError(t, err)
	assert.False(t, view.IsActive)
}

func TestLeaveNotParticipant(t *testing.T) {
	roomRepo := new(mocks.RoomRepositoryMock)
	scheduler := newTestScheduler(roomRepo, new(mocks.UserRepositoryMock), new(mocks.NotifierMock), clock.NewFixed(t0))

	roomRepo.On("RemoveParticipant", mock.Anything, int64(5), int64(9)).
		Return(models.Room{}, repositories.ErrNotParticipant).Once()

	_, err := scheduler.Leave(context.Background(), 5, 9)
	assert.True(t, apperr.IsKind(err, apperr.InvalidState))
}

func TestUpdateSettingsCreatorOnly(t *testing.T) {
	roomRepo := new(mocks.RoomRepositoryMock)
	scheduler := newTestScheduler(roomRepo, new(mocks.UserRepositoryMock), new(mocks.NotifierMock), clock.NewFixed(t0))

	room := models.Room{ID: 5, CreatedBy: 1, MaxParticipants: 5, IsActive: true}
	roomRepo.On("GetByID", mock.Anything, int64(5)).Return(room, nil).Once()

	name := "new name"
	_, err := scheduler.UpdateSettings(context.Background(), 5, 2, repositories.RoomSettings{Name: &name})
	assert.True(t, apperr.IsKind(err, apperr.Forbidden))
}

func TestUpdateSettingsCapacityBelowCurrent(t *testing.T) {
	roomRepo := new(mocks.RoomRepositoryMock)
	scheduler := newTestScheduler(roomRepo, new(mocks.UserRepositoryMock), new(mocks.NotifierMock), clock.NewFixed(t0))

	room := models.Room{ID: 5, CreatedBy: 1, MaxParticipants: 5, IsActive: true}
	roomRepo.On("GetByID", mock.Anything, int64(5)).Return(room, nil).Once()

	capacity := 2
	roomRepo.On("UpdateSettings", mock.Anything, int64(5), mock.Anything).
		Return(models.Room{}, repositories.ErrCapacityBelowCurrent).Once()

	_, err := scheduler.UpdateSettings(context.Background(), 5, 1, repositories.RoomSettings{MaxParticipants: &capacity})
	assert.True(t, apperr.IsKind(err, apperr.InvalidState))
}

func TestDeactivateCreatorOnly(t *testing.T) {
	roomRepo := new(mocks.RoomRepositoryMock)
	scheduler := newTestScheduler(roomRepo, new(mocks.UserRepositoryMock), new(mocks.NotifierMock), clock.NewFixed(t0))

	room := models.Room{ID: 5, CreatedBy: 1, IsActive: true}
	roomRepo.On("GetByID", mock.Anything, int64(5)).Return(room, nil).Twice()
	roomRepo.On("Deactivate", mock.Anything, int64(5)).Return(nil).Once()

	assert.True(t, apperr.IsKind(scheduler.Deactivate(context.Background(), 5, 2), apperr.Forbidden))
	require.NoError(t, scheduler.Deactivate(context.Background(), 5, 1))
	roomRepo.AssertExpectations(t)
}

func TestParticipantsJoinsDirectory(t *testing.T) {
	roomRepo := new(mocks.RoomRepositoryMock)
	userRepo := new(mocks.UserRepositoryMock)
	scheduler := newTestScheduler(roomRepo, userRepo, new(mocks.NotifierMock), clock.NewFixed(t0))

	roomRepo.On("GetByID", mock.Anything, int64(5)).Return(models.Room{ID: 5, IsActive: true}, nil).Once()
	roomRepo.On("Participants", mock.Anything, int64(5)).
		Return([]models.RoomParticipant{{UserID: 1, JoinedAt: t0}, {UserID: 2, JoinedAt: t0.Add(time.Minute)}}, nil).Once()
	userRepo.On("BulkUsers", mock.Anything, []int64{1, 2}).
		Return([]models.User{{ID: 1, Name: "ann"}}, nil).Once()

	views, err := scheduler.Participants(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, "ann", views[0].Name)
	// Unknown directory entries still appear, just without display data.
	assert.Equal(t, int64(2), views[1].UserID)
	assert.Empty(t, views[1].Name)
}
