package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"match-service/internal/mocks"
)

func TestEmitPublishesEnvelope(t *testing.T) {
	publisher := new(mocks.PublisherMock)
	emitter := NewAuditEmitter(publisher, "audit.match", "match-service", "test")

	var captured AuditEnvelope
	publisher.On("Publish", mock.Anything, "audit.match", mock.Anything).
		Run(func(args mock.Arguments) {
			captured = args.Get(2).(AuditEnvelope)
		}).
		Return(nil).
		Once()

	userID := int64(42)
	emitter.Emit(context.Background(), "info", "connection requested", "req-1", &userID)

	publisher.AssertExpectations(t)
	assert.Equal(t, 1, captured.SchemaVersion)
	assert.Equal(t, "audit_log", captured.EventType)
	assert.Equal(t, "match-service", captured.Service)
	assert.Equal(t, "test", captured.Environment)
	assert.Equal(t, "req-1", captured.RequestID)
	assert.Equal(t, &userID, captured.UserID)
	assert.Equal(t, "info", captured.Payload.Level)
	assert.Equal(t, "connection requested", captured.Payload.Text)
	assert.NotEmpty(t, captured.OccurredAt)
}

func TestEmitSwallowsPublishError(t *testing.T) {
	publisher := new(mocks.PublisherMock)
	emitter := NewAuditEmitter(publisher, "audit.match", "match-service", "test")

	publisher.On("Publish", mock.Anything, "audit.match", mock.Anything).
		Return(errors.New("broker down")).
		Once()

	emitter.Emit(context.Background(), "warn", "room closed", "req-2", nil)

	publisher.AssertExpectations(t)
}

func TestEmitNilEmitterIsSafe(t *testing.T) {
	var emitter *AuditEmitter
	emitter.Emit(context.Background(), "info", "ignored", "req-3", nil)
}
