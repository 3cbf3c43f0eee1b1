package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
)

// Event types published on notifications.permits.<event_type>.
const (
	EventApplicationSubmitted         = "application_submitted"
	EventApplicationStatusChanged     = "application_status_changed"
	EventApplicationRevisionRequested = "application_revision_requested"
	EventApplicationResubmitted       = "application_resubmitted"
	EventApplicationCommentAdded      = "application_comment_added"
)

// Publisher is the subset of *nats.Conn the notification publisher needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NotificationPublisher publishes application workflow events to NATS for
// the notifications service.
//
// Publishing never fails the caller: errors are logged and dropped.
type NotificationPublisher struct {
	conn Publisher
	log  zerolog.Logger
}

// NotificationEvent is the JSON schema published to NATS.
type NotificationEvent struct {
	EventType    string         `json:"event_type"`
	ActorID      string         `json:"actor_id"`
	Recipients   []string       `json:"recipients"`
	ResourceType string         `json:"resource_type"`
	ResourceID   string         `json:"resource_id"`
	Reference    string         `json:"reference,omitempty"`
	IsActionable bool           `json:"is_actionable,omitempty"`
	Severity     string         `json:"severity,omitempty"`
	Payload      map[string]any `json:"payload,omitempty"`
}

// NewNotificationPublisher creates a publisher. A nil conn disables
// publishing.
func NewNotificationPublisher(conn Publisher, log zerolog.Logger) *NotificationPublisher {
	return &NotificationPublisher{conn: conn, log: log}
}

// PublishApplicationEvent publishes one application event to NATS.
// Subject: notifications.permits.<eventType>
func (p *NotificationPublisher) PublishApplicationEvent(ctx context.Context, eventType, applicationID, reference, actorID string, recipients []string, payload map[string]any) {
	if p == nil || p.conn == nil || len(recipients) == 0 {
		return
	}

	severity := "info"
	actionable := false
	if eventType == EventApplicationRevisionRequested {
		severity = "warning"
		actionable = true
	}

	event := &NotificationEvent{
		EventType:    eventType,
		ActorID:      actorID,
		Recipients:   recipients,
		ResourceType: "application",
		ResourceID:   applicationID,
		Reference:    reference,
		IsActionable: actionable,
		Severity:     severity,
		Payload:      payload,
	}

	data, err := json.Marshal(event)
	if err != nil {
		p.log.Warn().Err(err).Str("event_type", eventType).Msg("notification: failed to marshal event")
		return
	}

	subject := fmt.Sprintf("notifications.permits.%s", eventType)
	if err := p.conn.Publish(subject, data); err != nil {
		p.log.Warn().Err(err).
			Str("subject", subject).
			Str("application_id", applicationID).
			Msg("notification: failed to publish NATS event (non-fatal)")
		return
	}

	p.log.Debug().
		Str("subject", subject).
		Str("application_id", applicationID).
		Int("recipients", len(recipients)).
		Msg("notification: event published")
}
