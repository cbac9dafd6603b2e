// Package queue carries outbound email over RabbitMQ: the API publishes
// EmailRequestedEvent messages and the worker delivers them.
package queue

import "time"

// EmailQueue is the default queue name for outbound email.
const EmailQueue = "notification.email"

// EmailRequestedEvent is one email to deliver.  It is self-contained so the
// worker never needs to touch the primary database.
type EmailRequestedEvent struct {
	ID          string    `json:"id"`
	To          string    `json:"to"`
	Subject     string    `json:"subject"`
	Text        string    `json:"text"`
	HTML        string    `json:"html,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
}
