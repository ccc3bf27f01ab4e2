package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"match-service/internal/models"
	"match-service/internal/repositories"
)

type ConnectionRepositoryMock struct {
	mock.Mock
}

func (m *ConnectionRepositoryMock) Create(ctx context.Context, conn *models.Connection) error {
	args := m.Called(ctx, conn)
	return args.Error(0)
}

func (m *ConnectionRepositoryMock) GetByID(ctx context.Context, id int64) (models.Connection, error) {
	args := m.Called(ctx, id)
	var conn models.Connection
	if val := args.Get(0); val != nil {
		conn = val.(models.Connection)
	}
	return conn, args.Error(1)
}

func (m *ConnectionRepositoryMock) FindByPair(ctx context.Context, userA, userB int64) (models.Connection, error) {
	args := m.Called(ctx, userA, userB)
	var conn models.Connection
	if val := args.Get(0); val != nil {
		conn = val.(models.Connection)
	}
	return conn, args.Error(1)
}

func (m *ConnectionRepositoryMock) TransitionStatus(ctx context.Context, id int64, from, to models.ConnectionStatus, chatExpiresAt *time.Time) (bool, error) {
	args := m.Called(ctx, id, from, to, chatExpiresAt)
	return args.Bool(0), args.Error(1)
}

func (m *ConnectionRepositoryMock) ListForUser(ctx context.Context, userID int64, filter repositories.ConnectionFilter) ([]models.Connection, error) {
	args := m.Called(ctx, userID, filter)
	var conns []models.Connection
	if val := args.Get(0); val != nil {
		conns = val.([]models.Connection)
	}
	return conns, args.Error(1)
}

func (m *ConnectionRepositoryMock) CountForUser(ctx context.Context, userID int64, filter repositories.ConnectionFilter) (int64, error) {
	args := m.Called(ctx, userID, filter)
	return args.Get(0).(int64), args.Error(1)
}

func (m *ConnectionRepositoryMock) ListActiveChats(ctx context.Context, userID int64, now time.Time) ([]models.Connection, error) {
	args := m.Called(ctx, userID, now)
	var conns []models.Connection
	if val := args.Get(0); val != nil {
		conns = val.([]models.Connection)
	}
	return conns, args.Error(1)
}

func (m *ConnectionRepositoryMock) Delete(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) Create(ctx context.Context, msg *models.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *MessageRepositoryMock) GetByID(ctx context.Context, id int64) (models.Message, error) {
	args := m.Called(ctx, id)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) List(ctx context.Context, connectionID int64, q repositories.MessageQuery) ([]models.Message, error) {
	args := m.Called(ctx, connectionID, q)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) Count(ctx context.Context, connectionID int64) (int64, error) {
	args := m.Called(ctx, connectionID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MessageRepositoryMock) CountUnread(ctx context.Context, connectionID, userID int64) (int64, error) {
	args := m.Called(ctx, connectionID, userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MessageRepositoryMock) LastMessage(ctx context.Context, connectionID int64) (*models.Message, error) {
	args := m.Called(ctx, connectionID)
	var msg *models.Message
	if val := args.Get(0); val != nil {
		msg = val.(*models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) MarkRead(ctx context.Context, connectionID, readerID int64, ids []int64, readAt time.Time) (int64, error) {
	args := m.Called(ctx, connectionID, readerID, ids, readAt)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MessageRepositoryMock) SoftDelete(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type RoomRepositoryMock struct {
	mock.Mock
}

func (m *RoomRepositoryMock) Create(ctx context.Context, room *models.Room, joinedAt time.Time) error {
	args := m.Called(ctx, room, joinedAt)
	return args.Error(0)
}

func (m *RoomRepositoryMock) GetByID(ctx context.Context, id int64) (models.Room, error) {
	args := m.Called(ctx, id)
	var room models.Room
	if val := args.Get(0); val != nil {
		room = val.(models.Room)
	}
	return room, args.Error(1)
}

func (m *RoomRepositoryMock) Participants(ctx context.Context, roomID int64) ([]models.RoomParticipant, error) {
	args := m.Called(ctx, roomID)
	var participants []models.RoomParticipant
	if val := args.Get(0); val != nil {
		participants = val.([]models.RoomParticipant)
	}
	return participants, args.Error(1)
}

func (m *RoomRepositoryMock) AddParticipant(ctx context.Context, roomID, userID int64, joinedAt time.Time) (models.Room, error) {
	args := m.Called(ctx, roomID, userID, joinedAt)
	var room models.Room
	if val := args.Get(0); val != nil {
		room = val.(models.Room)
	}
	return room, args.Error(1)
}

func (m *RoomRepositoryMock) RemoveParticipant(ctx context.Context, roomID, userID int64) (models.Room, error) {
	args := m.Called(ctx, roomID, userID)
	var room models.Room
	if val := args.Get(0); val != nil {
		room = val.(models.Room)
	}
	return room, args.Error(1)
}

func (m *RoomRepositoryMock) UpdateSettings(ctx context.Context, roomID int64, set repositories.RoomSettings) (models.Room, error) {
	args := m.Called(ctx, roomID, set)
	var room models.Room
	if val := args.Get(0); val != nil {
		room = val.(models.Room)
	}
	return room, args.Error(1)
}

func (m *RoomRepositoryMock) Deactivate(ctx context.Context, roomID int64) error {
	args := m.Called(ctx, roomID)
	return args.Error(0)
}

func (m *RoomRepositoryMock) ListRooms(ctx context.Context, filter repositories.RoomFilter) ([]models.Room, error) {
	args := m.Called(ctx, filter)
	var rooms []models.Room
	if val := args.Get(0); val != nil {
		rooms = val.([]models.Room)
	}
	return rooms, args.Error(1)
}

func (m *RoomRepositoryMock) ListCreated(ctx context.Context, userID int64) ([]models.Room, error) {
	args := m.Called(ctx, userID)
	var rooms []models.Room
	if val := args.Get(0); val != nil {
		rooms = val.([]models.Room)
	}
	return rooms, args.Error(1)
}

func (m *RoomRepositoryMock) ListJoined(ctx context.Context, userID int64) ([]models.Room, error) {
	args := m.Called(ctx, userID)
	var rooms []models.Room
	if val := args.Get(0); val != nil {
		rooms = val.([]models.Room)
	}
	return rooms, args.Error(1)
}

type UserRepositoryMock struct {
	mock.Mock
}

func (m *UserRepositoryMock) Exists(ctx context.Context, id int64) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *UserRepositoryMock) GetByID(ctx context.Context, id int64) (models.User, error) {
	args := m.Called(ctx, id)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

func (m *UserRepositoryMock) BulkUsers(ctx context.Context, ids []int64) ([]models.User, error) {
	args := m.Called(ctx, ids)
	var users []models.User
	if val := args.Get(0); val != nil {
		users = val.([]models.User)
	}
	return users, args.Error(1)
}

type NotifierMock struct {
	mock.Mock
}

func (m *NotifierMock) Notify(ctx context.Context, userID int64, kind string, payload map[string]any) {
	m.Called(ctx, userID, kind, payload)
}

type PublisherMock struct {
	mock.Mock
}

func (m *PublisherMock) Publish(ctx context.Context, routingKey string, event any) error {
	args := m.Called(ctx, routingKey, event)
	return args.Error(0)
}

func (m *PublisherMock) Close() error {
	args := m.Called()
	return args.Error(0)
}
