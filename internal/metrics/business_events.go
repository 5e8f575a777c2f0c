// Package metrics provides metrics collection including business event logging.
package metrics

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jkindrix/callbridge/internal/domain"
	"github.com/jkindrix/callbridge/internal/sanitize"
)

// BusinessEventLogger provides structured logging for business events.
// This complements Prometheus metrics by providing detailed, searchable logs
// for business intelligence, debugging, and compliance. It also implements
// domain.EventSink so state transitions flow through it.
type BusinessEventLogger struct {
	logger *zap.Logger
}

// NewBusinessEventLogger creates a new business event logger.
func NewBusinessEventLogger(logger *zap.Logger) *BusinessEventLogger {
	return &BusinessEventLogger{
		logger: logger.Named("business_events"),
	}
}

// RequestChanged logs a request state transition. Implements domain.EventSink.
func (l *BusinessEventLogger) RequestChanged(requestID uuid.UUID, status domain.RequestStatus) {
	l.logger.Info("request_changed",
		zap.String("event_type", "request.changed"),
		zap.String("request_id", requestID.String()),
		zap.String("status", string(status)),
		zap.Time("timestamp", time.Now().UTC()),
	)
}

// CallDispatched logs an outbound call being handed to the vendor.
func (l *BusinessEventLogger) CallDispatched(callID, providerName, phone string, method domain.CallMethod) {
	l.logger.Info("call_dispatched",
		zap.String("event_type", "call.dispatched"),
		zap.String("call_id", callID),
		zap.String("provider_name", providerName),
		zap.String("phone", sanitize.Phone(phone)),
		zap.String("method", string(method)),
		zap.Time("timestamp", time.Now().UTC()),
	)
}

// CallFinished logs a terminal call result.
func (l *BusinessEventLogger) CallFinished(result *domain.CallResult) {
	fields := []zap.Field{
		zap.String("event_type", "call.finished"),
		zap.String("call_id", result.CallID),
		zap.String("status", string(result.Status)),
		zap.String("method", string(result.CallMethod)),
		zap.Float64("duration_minutes", result.DurationMinutes),
		zap.Time("timestamp", time.Now().UTC()),
	}
	if result.Cost != nil {
		fields = append(fields, zap.Float64("cost", *result.Cost))
	}
	if result.ProviderName != "" {
		fields = append(fields, zap.String("provider_name", result.ProviderName))
	}
	l.logger.Info("call_finished", fields...)
}

// RecommendationsReady logs a finished recommendation run.
func (l *BusinessEventLogger) RecommendationsReady(requestID uuid.UUID, ranked, candidates int) {
	l.logger.Info("recommendations_ready",
		zap.String("event_type", "recommendations.ready"),
		zap.String("request_id", requestID.String()),
		zap.Int("ranked", ranked),
		zap.Int("candidates", candidates),
		zap.Time("timestamp", time.Now().UTC()),
	)
}

// BookingFinished logs the outcome of a booking call.
func (l *BusinessEventLogger) BookingFinished(requestID, providerID uuid.UUID, confirmed bool) {
	l.logger.Info("booking_finished",
		zap.String("event_type", "booking.finished"),
		zap.String("request_id", requestID.String()),
		zap.String("provider_id", providerID.String()),
		zap.Bool("confirmed", confirmed),
		zap.Time("timestamp", time.Now().UTC()),
	)
}
