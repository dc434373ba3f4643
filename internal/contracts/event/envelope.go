package event

import "time"

// NotificationEnvelope is the canonical envelope published on the
// notification exchange. Consumers (the admin UI bridge) tolerate extra
// fields; message_id is optional for backward compatibility.
type NotificationEnvelope[T any] struct {
	Version    int       `json:"version"`
	Producer   string    `json:"producer"`
	TraceID    string    `json:"trace_id,omitempty"`
	MessageID  string    `json:"message_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    T         `json:"payload"`
}

// NotificationPayload mirrors domain.Notification on the wire.
type NotificationPayload struct {
	Severity    string `json:"severity"`
	Title       string `json:"title"`
	Description string `json:"description"`
}
