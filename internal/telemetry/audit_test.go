package telemetry_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/mock"

	"chitchat-service/internal/mocks"
	"chitchat-service/internal/telemetry"
)

func TestEmitPublishesRequestIDHeader(t *testing.T) {
	publisher := new(mocks.PublisherMock)
	emitter := telemetry.NewAuditEmitter(publisher, "audit.logs", "chitchat-service", "test")

	publisher.On("Publish", mock.Anything, "audit.logs", mock.MatchedBy(func(event any) bool {
		envelope, ok := event.(telemetry.AuditEnvelope)
		return ok && envelope.EventType == "audit_log" && envelope.RequestID == "req-7" && envelope.Payload.Level == "warn"
	}), map[string]string{"x-request-id": "req-7"}).Return(nil)

	emitter.Emit(context.Background(), "warn", "group member removed", "req-7", nil)
	publisher.AssertExpectations(t)
}

func TestEmitWithoutRequestIDSendsEmptyHeaders(t *testing.T) {
	publisher := new(mocks.PublisherMock)
	emitter := telemetry.NewAuditEmitter(publisher, "audit.logs", "chitchat-service", "test")

	publisher.On("Publish", mock.Anything, "audit.logs", mock.Anything, map[string]string{}).Return(nil)

	emitter.Emit(context.Background(), "info", "startup", "", nil)
	publisher.AssertExpectations(t)
}
