package lifecycle

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

func newTestEngine(conns *mocks.ConnectionRepositoryMock, users *mocks.UserRepositoryMock, notifier *mocks.NotifierMock, clk clock.Clock) *Engine {
	return NewEngine(conns, users, notifier, clk, 7*24*time.Hour, 24*time.Hour)
}

func TestRequestConnectionSuccess(t *testing.T) {
	conns := new(mocks.ConnectionRepositoryMock)
	users := new(mocks.UserRepositoryMock)
	notifier := new(mocks.NotifierMock)
	engine := newTestEngine(conns, users, notifier, clock.NewFixed(t0))

	users.On("Exists", mock.Anything, int64(2)).Return(true, nil).Once()
	conns.On("FindByPair", mock.Anything, int64(1), int64(2)).
		Return(models.Connection{}, repositories.ErrConnectionNotFound).Once()
	conns.On("Create", mock.Anything, mock.AnythingOfType("*models.Connection")).
		Run(func(args mock.Arguments) {
			args.Get(1).(*models.Connection).ID = 10
		}).Return(nil).Once()
	notifier.On("Notify", mock.Anything, int64(2), notify.KindConnectionRequest, mock.Anything).Once()

	conn, err := engine.RequestConnection(context.Background(), 1, 2, "hi")
	require.NoError(t, err)
	assert.Equal(t, int64(10), conn.ID)
	assert.Equal(t, models.ConnectionPending, conn.Status)
	assert.Equal(t, t0, conn.CreatedAt)
	assert.Equal(t, t0.Add(7*24*time.Hour), conn.RequestExpiresAt)
	assert.Nil(t, conn.ChatExpiresAt)
	conns.AssertExpectations(t)
	notifier.AssertExpectations(t)
}

func TestRequestConnectionSelf(t *testing.T) {
	engine := newTestEngine(new(mocks.ConnectionRepositoryMock), new(mocks.UserRepositoryMock), new(mocks.NotifierMock), clock.NewFixed(t0))

	_, err := engine.RequestConnection(context.Background(), 1, 1, "")
	assert.True(t, apperr.IsKind(err, apperr.InvalidInput))
}

func TestRequestConnectionUnknownReceiver(t *testing.T) {
	conns := new(mocks.ConnectionRepositoryMock)
	users := new(mocks.UserRepositoryMock)
	engine := newTestEngine(conns, users, new(mocks.NotifierMock), clock.NewFixed(t0))

	users.On("Exists", mock.Anything, int64(99)).Return(false, nil).Once()

	_, err := engine.RequestConnection(context.Background(), 1, 99, "")
	assert.True(t, apperr.IsKind(err, apperr.NotFound))
}

func TestRequestConnectionDuplicateEitherDirection(t *testing.T) {
	conns := new(mocks.ConnectionRepositoryMock)
	users := new(mocks.UserRepositoryMock)
	engine := newTestEngine(conns, users, new(mocks.NotifierMock), clock.NewFixed(t0))

	// The existing connection was requested in the opposite direction.
	users.On("Exists", mock.Anything, int64(2)).Return(true, nil).Once()
	conns.On("FindByPair", mock.Anything, int64(1), int64(2)).
		Return(models.Connection{ID: 5, RequesterID: 2, ReceiverID: 1, Status: models.ConnectionAccepted}, nil).Once()

	_, err := engine.RequestConnection(context.Background(), 1, 2, "")
	require.True(t, apperr.IsKind(err, apperr.Conflict))
	assert.Equal(t, models.ConnectionAccepted, apperr.MetaOf(err)["status"])
}

func TestRequestConnectionLosesCreateRace(t *testing.T) {
	conns := new(mocks.ConnectionRepositoryMock)
	users := new(mocks.UserRepositoryMock)
	engine := newTestEngine(conns, users, new(mocks.NotifierMock), clock.NewFixed(t0))

	users.On("Exists", mock.Anything, int64(2)).Return(true, nil).Once()
	conns.On("FindByPair", mock.Anything, int64(1), int64(2)).
		Return(models.Connection{}, repositories.ErrConnectionNotFound).Once()
	conns.On("Create", mock.Anything, mock.Anything).Return(repositories.ErrDuplicateConnection).Once()
	conns.On("FindByPair", mock.Anything, int64(1), int64(2)).
		Return(models.Connection{ID: 5, Status: models.ConnectionPending}, nil).Once()

	_, err := engine.RequestConnection(context.Background(), 1, 2, "")
	require.True(t, apperr.IsKind(err, apperr.Conflict))
	assert.Equal(t, models.ConnectionPending, apperr.MetaOf(err)["status"])
	conns.AssertExpectations(t)
}

func TestUpdateStatusAcceptOpensChatWindow(t *testing.T) {
	conns := new(mocks.ConnectionRepositoryMock)
	notifier := new(mocks.NotifierMock)
	clk := clock.NewFixed(t0)
	engine := newTestEngine(conns, new(mocks.UserRepositoryMock), notifier, clk)

	pending := models.Connection{
		ID: 10, RequesterID: 1, ReceiverID: 2,
		Status:           models.ConnectionPending,
		CreatedAt:        t0.Add(-time.Hour),
		RequestExpiresAt: t0.Add(7 * 24 * time.Hour),
	}
	wantExpiry := t0.Add(24 * time.Hour)

	conns.On("GetByID", mock.Anything, int64(10)).Return(pending, nil).Once()
	conns.On("TransitionStatus", mock.Anything, int64(10), models.ConnectionPending, models.ConnectionAccepted, &wantExpiry).
		Return(true, nil).Once()
	notifier.On("Notify", mock.Anything, int64(1), notify.KindConnectionAccepted, mock.Anything).Once()

	conn, err := engine.UpdateStatus(context.Background(), 10, 2, models.ConnectionAccepted)
	require.NoError(t, err)
	assert.Equal(t, models.ConnectionAccepted, conn.Status)
	require.NotNil(t, conn.ChatExpiresAt)
	assert.Equal(t, wantExpiry, *conn.ChatExpiresAt)
	conns.AssertExpectations(t)
	notifier.AssertExpectations(t)
}

func TestUpdateStatusRejectLeavesChatClosed(t *testing.T) {
	conns := new(mocks.ConnectionRepositoryMock)
	engine := newTestEngine(conns, new(mocks.UserRepositoryMock), new(mocks.NotifierMock), clock.NewFixed(t0))

	pending := models.Connection{
		ID: 10, RequesterID: 1, ReceiverID: 2,
		Status:           models.ConnectionPending,
		RequestExpiresAt: t0.Add(time.Hour),
	}
	conns.On("GetByID", mock.Anything, int64(10)).Return(pending, nil).Once()
	conns.On("TransitionStatus", mock.Anything, int64(10), models.ConnectionPending, models.ConnectionRejected, (*time.Time)(nil)).
		Return(true, nil).Once()

	conn, err := engine.UpdateStatus(context.Background(), 10, 2, models.ConnectionRejected)
	require.NoError(t, err)
	assert.Equal(t, models.ConnectionRejected, conn.Status)
	assert.Nil(t, conn.ChatExpiresAt)
	conns.AssertExpectations(t)
}

func TestUpdateStatusOnlyReceiver(t *testing.T) {
	conns := new(mocks.ConnectionRepositoryMock)
	engine := newTestEngine(conns, new(mocks.UserRepositoryMock), new(mocks.NotifierMock), clock.NewFixed(t0))

	pending := models.Connection{
		ID: 10, RequesterID: 1, ReceiverID: 2,
		Status:           models.ConnectionPending,
		RequestExpiresAt: t0.Add(time.Hour),
	}
	conns.On("GetByID", mock.Anything, int64(10)).Return(pending, nil).Once()

	_, err := engine.UpdateStatus(context.Background(), 10, 1, models.ConnectionAccepted)
	assert.True(t, apperr.IsKind(err, apperr.Forbidden))
}

func TestUpdateStatusExpiredRequestPersistsExpiry(t *testing.T) {
	// Accept arrives one second past the deadline: the request is persisted as
	// expired, the requester is notified, and the accept fails.
	conns := new(mocks.ConnectionRepositoryMock)
	notifier := new(mocks.NotifierMock)
	clk := clock.NewFixed(t0.Add(7*24*time.Hour + time.Second))
	engine := newTestEngine(conns, new(mocks.UserRepositoryMock), notifier, clk)

	pending := models.Connection{
		ID: 10, RequesterID: 1, ReceiverID: 2,
		Status:           models.ConnectionPending,
		CreatedAt:        t0,
		RequestExpiresAt: t0.Add(7 * 24 * time.Hour),
	}
	conns.On("GetByID", mock.Anything, int64(10)).Return(pending, nil).Once()
	conns.On("TransitionStatus", mock.Anything, int64(10), models.ConnectionPending, models.ConnectionExpired, (*time.Time)(nil)).
		Return(true, nil).Once()
	notifier.On("Notify", mock.Anything, int64(1), notify.KindConnectionExpired, mock.Anything).Once()

	_, err := engine.UpdateStatus(context.Background(), 10, 2, models.ConnectionAccepted)
	require.True(t, apperr.IsKind(err, apperr.InvalidState))
	conns.AssertExpectations(t)
	notifier.AssertExpectations(t)
}

func TestUpdateStatusExpiryWinsTie(t *testing.T) {
	// Accept at the exact expiry instant loses to expiry.
	conns := new(mocks.ConnectionRepositoryMock)
	notifier := new(mocks.NotifierMock)
	deadline := t0.Add(7 * 24 * time.Hour)
	engine := newTestEngine(conns, new(mocks.UserRepositoryMock), notifier, clock.NewFixed(deadline))

	pending := models.Connection{
		ID: 10, RequesterID: 1, ReceiverID: 2,
		Status:           models.ConnectionPending,
		RequestExpiresAt: deadline,
	}
	conns.On("GetByID", mock.Anything, int64(10)).Return(pending, nil).Once()
	conns.On("TransitionStatus", mock.Anything, int64(10), models.ConnectionPending, models.ConnectionExpired, (*time.Time)(nil)).
		Return(true, nil).Once()
	notifier.On("Notify", mock.Anything, int64(1), notify.KindConnectionExpired, mock.Anything).Once()

	_, err := engine.UpdateStatus(context.Background(), 10, 2, models.ConnectionAccepted)
	assert.True(t, apperr.IsKind(err, apperr.InvalidState))
}

func TestUpdateStatusCASLoser(t *testing.T) {
	// Another call resolved the request between the read and the transition.
	conns := new(mocks.ConnectionRepositoryMock)
	engine := newTestEngine(conns, new(mocks.UserRepositoryMock), new(mocks.NotifierMock), clock.NewFixed(t0))

	pending := models.Connection{
		ID: 10, RequesterID: 1, ReceiverID: 2,
		Status:           models.ConnectionPending,
		RequestExpiresAt: t0.Add(time.Hour),
	}
	conns.On("GetByID", mock.Anything, int64(10)).Return(pending, nil).Once()
	conns.On("TransitionStatus", mock.Anything, int64(10), models.ConnectionPending, models.ConnectionRejected, (*time.Time)(nil)).
		Return(false, nil).Once()

	_, err := engine.UpdateStatus(context.Background(), 10, 2, models.ConnectionRejected)
	assert.True(t, apperr.IsKind(err, apperr.InvalidState))
}

func TestUpdateStatusNotPending(t *testing.T) {
	conns := new(mocks.ConnectionRepositoryMock)
	engine := newTestEngine(conns, new(mocks.UserRepositoryMock), new(mocks.NotifierMock), clock.NewFixed(t0))

	conns.On("GetByID", mock.Anything, int64(10)).
		Return(models.Connection{ID: 10, RequesterID: 1, ReceiverID: 2, Status: models.ConnectionRejected}, nil).Once()

	_, err := engine.UpdateStatus(context.Background(), 10, 2, models.ConnectionAccepted)
	assert.True(t, apperr.IsKind(err, apperr.InvalidState))
}

func TestIsChatOpen(t *testing.T) {
	open := t0.Add(24 * time.Hour)
	accepted := models.Connection{Status: models.ConnectionAccepted, ChatExpiresAt: &open}

	assert.True(t, IsChatOpen(accepted, t0.Add(23*time.Hour+59*time.Minute)))
	// The window is open strictly before the deadline only.
	assert.False(t, IsChatOpen(accepted, open))
	assert.False(t, IsChatOpen(accepted, open.Add(time.Second)))
	assert.False(t, IsChatOpen(models.Connection{Status: models.ConnectionPending}, t0))
	assert.False(t, IsChatOpen(models.Connection{Status: models.ConnectionAccepted}, t0))
}

func TestTimeRemaining(t *testing.T) {
	open := t0.Add(2 * time.Hour)
	conn := models.Connection{Status: models.ConnectionAccepted, ChatExpiresAt: &open}

	remaining, ok := TimeRemaining(conn, t0)
	require.True(t, ok)
	assert.Equal(t, 2*time.Hour, remaining)

	remaining, ok = TimeRemaining(conn, open.Add(time.Hour))
	require.True(t, ok)
	assert.Equal(t, time.Duration(0), remaining)

	_, ok = TimeRemaining(models.Connection{}, t0)
	assert.False(t, ok)
}

func TestFormatTimeLeft(t *testing.T) {
	assert.Equal(t, "3h 12m", FormatTimeLeft(3*time.Hour+12*time.Minute))
	assert.Equal(t, "45m", FormatTimeLeft(45*time.Minute))
	assert.Equal(t, "Expired", FormatTimeLeft(0))
	assert.Equal(t, "Expired", FormatTimeLeft(30*time.Second))
}
