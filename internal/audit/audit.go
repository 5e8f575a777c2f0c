// Package audit provides security event logging for compliance and forensics.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventType represents the type of audit event.
type EventType string

// Audit event types.
const (
	// Webhook events
	EventWebhookReceived       EventType = "webhook.received"
	EventWebhookValidationFail EventType = "webhook.validation.failed"

	// Outbound call events
	EventCallDispatched EventType = "call.dispatched"
	EventCallFinished   EventType = "call.finished"

	// Request lifecycle events
	EventRequestCreated   EventType = "request.created"
	EventRequestFailed    EventType = "request.failed"
	EventBookingRequested EventType = "booking.requested"
	EventBookingConfirmed EventType = "booking.confirmed"

	// Access events
	EventRateLimitExceeded EventType = "access.ratelimit.exceeded"
	EventCacheEvicted      EventType = "cache.entry.evicted"

	// System events
	EventServiceStarted  EventType = "system.started"
	EventServiceStopping EventType = "system.stopping"
	EventLogLevelChanged EventType = "system.loglevel.changed"
)

// Severity represents the severity level of an audit event.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Event represents an audit log entry.
type Event struct {
	// ID is a unique identifier for this event.
	ID string `json:"id"`

	// Timestamp when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type of event (e.g., "webhook.received").
	Type EventType `json:"type"`

	// Severity level.
	Severity Severity `json:"severity"`

	// Actor identification (who performed the action).
	ActorType string `json:"actor_type,omitempty"` // "api", "system", "webhook"
	ActorName string `json:"actor_name,omitempty"`

	// Source of the event.
	SourceIP  string `json:"source_ip,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	RequestID string `json:"request_id,omitempty"` // Correlation ID

	// Resource being accessed/modified.
	ResourceType string `json:"resource_type,omitempty"` // "call", "request", "provider"
	ResourceID   string `json:"resource_id,omitempty"`

	// Action details.
	Action  string `json:"action"`           // Brief action description
	Outcome string `json:"outcome"`          // "success", "failure", "denied"
	Reason  string `json:"reason,omitempty"` // Failure/denial reason

	// Additional context.
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Logger provides audit logging capabilities.
type Logger struct {
	logger *zap.Logger
}

// NewLogger creates a new audit logger.
func NewLogger(baseLogger *zap.Logger) *Logger {
	return &Logger{
		logger: baseLogger.Named("audit"),
	}
}

// Log records an audit event.
func (l *Logger) Log(ctx context.Context, event *Event) {
	// Ensure ID and timestamp are set
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	level := zap.InfoLevel
	switch event.Severity {
	case SeverityWarning:
		level = zap.WarnLevel
	case SeverityError, SeverityCritical:
		level = zap.ErrorLevel
	}

	var metadataJSON []byte
	if len(event.Metadata) > 0 {
		var err error
		metadataJSON, err = json.Marshal(event.Metadata)
		if err != nil {
			metadataJSON = []byte(`{"error":"failed to marshal metadata"}`)
		}
	}

	fields := []zap.Field{
		zap.String("audit_id", event.ID),
		zap.Time("audit_timestamp", event.Timestamp),
		zap.String("event_type", string(event.Type)),
		zap.String("severity", string(event.Severity)),
		zap.String("action", event.Action),
		zap.String("outcome", event.Outcome),
	}

	if event.ActorType != "" {
		fields = append(fields, zap.String("actor_type", event.ActorType))
	}
	if event.ActorName != "" {
		fields = append(fields, zap.String("actor_name", event.ActorName))
	}
	if event.SourceIP != "" {
		fields = append(fields, zap.String("source_ip", event.SourceIP))
	}
	if event.UserAgent != "" {
		fields = append(fields, zap.String("user_agent", event.UserAgent))
	}
	if event.RequestID != "" {
		fields = append(fields, zap.String("request_id", event.RequestID))
	}
	if event.ResourceType != "" {
		fields = append(fields, zap.String("resource_type", event.ResourceType))
	}
	if event.ResourceID != "" {
		fields = append(fields, zap.String("resource_id", event.ResourceID))
	}
	if event.Reason != "" {
		fields = append(fields, zap.String("reason", event.Reason))
	}
	if len(metadataJSON) > 0 {
		fields = append(fields, zap.ByteString("metadata", metadataJSON))
	}

	if ce := l.logger.Check(level, "audit event"); ce != nil {
		ce.Write(fields...)
	}
}

// Helper methods for common audit scenarios

// WebhookReceived logs an accepted vendor webhook.
func (l *Logger) WebhookReceived(ctx context.Context, callID, ip, requestID string) {
	l.Log(ctx, &Event{
		Type:         EventWebhookReceived,
		Severity:     SeverityInfo,
		ActorType:    "webhook",
		SourceIP:     ip,
		RequestID:    requestID,
		ResourceType: "call",
		ResourceID:   callID,
		Action:       "vendor webhook received",
		Outcome:      "success",
	})
}

// WebhookValidationFailed logs a webhook that failed signature validation.
func (l *Logger) WebhookValidationFailed(ctx context.Context, ip, requestID, reason string) {
	l.Log(ctx, &Event{
		Type:      EventWebhookValidationFail,
		Severity:  SeverityWarning,
		ActorType: "webhook",
		SourceIP:  ip,
		RequestID: requestID,
		Action:    "vendor webhook rejected",
		Outcome:   "denied",
		Reason:    reason,
	})
}

// CallDispatched logs an outbound call handed to the vendor.
func (l *Logger) CallDispatched(ctx context.Context, callID, providerName, requestID string) {
	l.Log(ctx, &Event{
		Type:         EventCallDispatched,
		Severity:     SeverityInfo,
		ActorType:    "system",
		RequestID:    requestID,
		ResourceType: "call",
		ResourceID:   callID,
		ActorName:    providerName,
		Action:       "outbound call dispatched",
		Outcome:      "success",
	})
}

// RequestCreated logs a new service request.
func (l *Logger) RequestCreated(ctx context.Context, requestID, title, ip string) {
	l.Log(ctx, &Event{
		Type:         EventRequestCreated,
		Severity:     SeverityInfo,
		ActorType:    "api",
		SourceIP:     ip,
		ResourceType: "request",
		ResourceID:   requestID,
		Action:       "service request created",
		Outcome:      "success",
		Metadata:     map[string]interface{}{"title": title},
	})
}

// BookingRequested logs a user selecting a provider for booking.
func (l *Logger) BookingRequested(ctx context.Context, requestID, providerID, ip string) {
	l.Log(ctx, &Event{
		Type:         EventBookingRequested,
		Severity:     SeverityInfo,
		ActorType:    "api",
		SourceIP:     ip,
		ResourceType: "request",
		ResourceID:   requestID,
		Action:       "booking requested",
		Outcome:      "success",
		Metadata:     map[string]interface{}{"provider_id": providerID},
	})
}

// RateLimitExceeded logs a rate limited caller.
func (l *Logger) RateLimitExceeded(ctx context.Context, ip, requestID, path string) {
	l.Log(ctx, &Event{
		Type:      EventRateLimitExceeded,
		Severity:  SeverityWarning,
		ActorType: "api",
		SourceIP:  ip,
		RequestID: requestID,
		Action:    "request rate limited",
		Outcome:   "denied",
		Metadata:  map[string]interface{}{"path": path},
	})
}

// ServiceStarted logs service startup.
func (l *Logger) ServiceStarted(ctx context.Context, version, environment string) {
	l.Log(ctx, &Event{
		Type:      EventServiceStarted,
		Severity:  SeverityInfo,
		ActorType: "system",
		Action:    "service started",
		Outcome:   "success",
		Metadata: map[string]interface{}{
			"version":     version,
			"environment": environment,
		},
	})
}

// ServiceStopping logs service shutdown.
func (l *Logger) ServiceStopping(ctx context.Context, reason string) {
	l.Log(ctx, &Event{
		Type:      EventServiceStopping,
		Severity:  SeverityInfo,
		ActorType: "system",
		Action:    "service stopping",
		Outcome:   "success",
		Reason:    reason,
	})
}
