// Package events publishes booking lifecycle notifications.
package events

import (
	"context"
	"time"
)

// Event types carried in the event-type header and the payload.
const (
	TypeBookingCreated  = "booking.created"
	TypeBookingCanceled = "booking.canceled"
)

// Header keys attached to every message.
const (
	HeaderEventID   = "event-id"
	HeaderEventType = "event-type"
)

// BookingEvent is the JSON payload published for booking changes.
type BookingEvent struct {
	EventID    string    `json:"event_id"`
	Type       string    `json:"type"`
	BookingID  int64     `json:"booking_id"`
	RoomID     int64     `json:"room_id"`
	UserID     int64     `json:"user_id"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Publisher delivers booking events.
type Publisher interface {
	Publish(ctx context.Context, event BookingEvent) error
	Close() error
}

// NopPublisher discards every event. It is used when no brokers are configured.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(context.Context, BookingEvent) error { return nil }

// Close implements Publisher.
func (NopPublisher) Close() error { return nil }
