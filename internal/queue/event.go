// Package queue defines the notification payload exchanged over the message
// broker and the consumer that turns it into email.
package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/iliyamo/showtime-booking/internal/notify"
)

// NotificationEvent is published for every booking email.  It carries the
// rendered message so the consumer never has to query the database.
type NotificationEvent struct {
	Kind      string `json:"kind"`
	BookingID string `json:"booking_id"`
	To        string `json:"to"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
	QueuedAt  string `json:"queued_at"`
}

// NewEvent wraps msg for publishing, stamped with at.
func NewEvent(msg notify.Message, at time.Time) NotificationEvent {
	return NotificationEvent{
		Kind:      msg.Kind,
		BookingID: msg.BookingID,
		To:        msg.To,
		Subject:   msg.Subject,
		Body:      msg.Body,
		QueuedAt:  at.UTC().Format(time.RFC3339),
	}
}

// Message converts the event back into a dispatcher message.
func (e NotificationEvent) Message() notify.Message {
	return notify.Message{
		Kind:      e.Kind,
		BookingID: e.BookingID,
		To:        e.To,
		Subject:   e.Subject,
		Body:      e.Body,
	}
}

// DecodeEvent parses a broker payload.  Events without a recipient are
// rejected since nothing could ever deliver them.
func DecodeEvent(body []byte) (NotificationEvent, error) {
	var ev NotificationEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return ev, fmt.Errorf("unmarshal: %w", err)
	}
	if ev.To == "" {
		return ev, fmt.Errorf("event %q for booking %q has no recipient", ev.Kind, ev.BookingID)
	}
	return ev, nil
}
