package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"match-service/internal/clock"
	"match-service/internal/lifecycle"
	"match-service/internal/mocks"
	"match-service/internal/models"
	"match-service/internal/ws"
)

func setupMessageRouter(handler *MessageHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", int64(1))
		c.Next()
	})
	r.POST("/connections/:connection_id/messages", handler.Post)
	r.GET("/connections/:connection_id/messages", handler.List)
	r.POST("/connections/:connection_id/messages/read", handler.MarkRead)
	r.DELETE("/messages/:message_id", handler.Delete)
	r.GET("/chats/summary", handler.Summary)
	return r
}

func newMessageHandler(conns *mocks.ConnectionRepositoryMock, msgs *mocks.MessageRepositoryMock, users *mocks.UserRepositoryMock, clk clock.Clock) *MessageHandler {
	notifier := new(mocks.NotifierMock)
	notifier.On("Notify", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Maybe()
	gate := lifecycle.NewGate(conns, msgs, notifier, clk)
	return NewMessageHandler(gate, users, ws.NewHub())
}

func acceptedConnection(expiry time.Time) models.Connection {
	return models.Connection{
		ID: 10, RequesterID: 1, ReceiverID: 2,
		Status:        models.ConnectionAccepted,
		ChatExpiresAt: &expiry,
	}
}

func TestPostMessageSuccess(t *testing.T) {
	conns := new(mocks.ConnectionRepositoryMock)
	msgs := new(mocks.MessageRepositoryMock)
	handler := newMessageHandler(conns, msgs, new(mocks.UserRepositoryMock), clock.NewFixed(t0))
	router := setupMessageRouter(handler)

	conns.On("GetByID", mock.Anything, int64(10)).Return(acceptedConnection(t0.Add(time.Hour)), nil).Once()
	msgs.On("Create", mock.Anything, mock.AnythingOfType("*models.Message")).
		Run(func(args mock.Arguments) {
			args.Get(1).(*models.Message).ID = 77
		}).Return(nil).Once()

	body := bytes.NewBufferString(`{"content":"hello"}`)
	req := httptest.NewRequest(http.MethodPost, "/connections/10/messages", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":77`)
	msgs.AssertExpectations(t)
}

func TestPostMessageClosedWindow(t *testing.T) {
	conns := new(mocks.ConnectionRepositoryMock)
	msgs := new(mocks.MessageRepositoryMock)
	handler := newMessageHandler(conns, msgs, new(mocks.UserRepositoryMock), clock.NewFixed(t0))
	router := setupMessageRouter(handler)

	conns.On("GetByID", mock.Anything, int64(10)).Return(acceptedConnection(t0.Add(-time.Second)), nil).Once()

	body := bytes.NewBufferString(`{"content":"too late"}`)
	req := httptest.NewRequest(http.MethodPost, "/connections/10/messages", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "chat window closed")
	msgs.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestListMessages(t *testing.T) {
	conns := new(mocks.ConnectionRepositoryMock)
	msgs := new(mocks.MessageRepositoryMock)
	handler := newMessageHandler(conns, msgs, new(mocks.UserRepositoryMock), clock.NewFixed(t0))
	router := setupMessageRouter(handler)

	conns.On("GetByID", mock.Anything, int64(10)).Return(acceptedConnection(t0.Add(time.Hour)), nil).Once()
	msgs.On("List", mock.Anything, int64(10), mock.Anything).
		Return([]models.Message{{ID: 1, Content: "a"}}, nil).Once()
	msgs.On("Count", mock.Anything, int64(10)).Return(int64(1), nil).Once()
	msgs.On("CountUnread", mock.Anything, int64(10), int64(1)).Return(int64(1), nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/connections/10/messages?limit=10", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, float64(1), resp["unreadCount"])
	assert.Equal(t, "1h 0m", resp["timeLeftFormatted"])
}

func TestMarkReadReportsCount(t *testing.T) {
	conns := new(mocks.ConnectionRepositoryMock)
	msgs := new(mocks.MessageRepositoryMock)
	handler := newMessageHandler(conns, msgs, new(mocks.UserRepositoryMock), clock.NewFixed(t0))
	router := setupMessageRouter(handler)

	conns.On("GetByID", mock.Anything, int64(10)).Return(acceptedConnection(t0.Add(time.Hour)), nil).Once()
	msgs.On("MarkRead", mock.Anything, int64(10), int64(1), []int64{5, 6}, t0).Return(int64(2), nil).Once()

	body := bytes.NewBufferString(`{"message_ids":[5,6]}`)
	req := httptest.NewRequest(http.MethodPost, "/connections/10/messages/read", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"marked_count":2`)
}

func TestDeleteMessageForbidden(t *testing.T) {
	conns := new(mocks.ConnectionRepositoryMock)
	msgs := new(mocks.MessageRepositoryMock)
	handler := newMessageHandler(conns, msgs, new(mocks.UserRepositoryMock), clock.NewFixed(t0))
	router := setupMessageRouter(handler)

	msgs.On("GetByID", mock.Anything, int64(77)).
		Return(models.Message{ID: 77, ConnectionID: 10, SenderID: 2}, nil).Once()

	req := httptest.NewRequest(http.MethodDelete, "/messages/77", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestDeleteMessageSuccess(t *testing.T) {
	conns := new(mocks.ConnectionRepositoryMock)
	msgs := new(mocks.MessageRepositoryMock)
	handler := newMessageHandler(conns, msgs, new(mocks.UserRepositoryMock), clock.NewFixed(t0))
	router := setupMessageRouter(handler)

	msgs.On("GetByID", mock.Anything, int64(77)).
		Return(models.Message{ID: 77, ConnectionID: 10, SenderID: 1}, nil).Once()
	msgs.On("SoftDelete", mock.Anything, int64(77)).Return(nil).Once()

	req := httptest.NewRequest(http.MethodDelete, "/messages/77", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	msgs.AssertExpectations(t)
}

func TestChatSummary(t *testing.T) {
	conns := new(mocks.ConnectionRepositoryMock)
	msgs := new(mocks.MessageRepositoryMock)
	users := new(mocks.UserRepositoryMock)
	handler := newMessageHandler(conns, msgs, users, clock.NewFixed(t0))
	router := setupMessageRouter(handler)

	expiry := t0.Add(time.Hour)
	active := []models.Connection{{ID: 10, RequesterID: 1, ReceiverID: 2, Status: models.ConnectionAccepted, ChatExpiresAt: &expiry}}
	conns.On("ListActiveChats", mock.Anything, int64(1), t0).Return(active, nil).Once()
	msgs.On("CountUnread", mock.Anything, int64(10), int64(1)).Return(int64(2), nil).Once()
	msgs.On("LastMessage", mock.Anything, int64(10)).Return(&models.Message{ID: 9, Content: "yo", CreatedAt: t0}, nil).Once()
	users.On("BulkUsers", mock.Anything, []int64{2}).Return([]models.User{{ID: 2, Name: "bob"}}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/chats/summary", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total_unread":2`)
	assert.Contains(t, rec.Body.String(), "bob")
}
