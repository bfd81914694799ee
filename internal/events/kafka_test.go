package events

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
)

type recordingWriter struct {
	messages []kafka.Message
	err      error
	closed   int
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed++
	return nil
}

func headerValue(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestKafkaPublisherPublish(t *testing.T) {
	writer := &recordingWriter{}
	now := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
	publisher := newKafkaPublisher(writer, func() time.Time { return now }, slog.New(slog.NewTextHandler(io.Discard, nil)))

	event := BookingEvent{
		Type:      TypeBookingCreated,
		BookingID: 9,
		RoomID:    3,
		UserID:    5,
		Start:     now.Add(time.Hour),
		End:       now.Add(2 * time.Hour),
	}
	if err := publisher.Publish(context.Background(), event); err != nil {
		t.Fatalf("Publish returned error: %v", err)
	}

	if len(writer.messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(writer.messages))
	}
	msg := writer.messages[0]
	if string(msg.Key) != "3" {
		t.Fatalf("expected key 3, got %q", msg.Key)
	}
	if headerValue(msg, HeaderEventType) != TypeBookingCreated {
		t.Fatalf("unexpected event-type header: %q", headerValue(msg, HeaderEventType))
	}

	var decoded BookingEvent
	if err := json.Unmarshal(msg.Value, &decoded); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if decoded.EventID == "" || decoded.EventID != headerValue(msg, HeaderEventID) {
		t.Fatalf("event id missing or not mirrored in header: %q vs %q", decoded.EventID, headerValue(msg, HeaderEventID))
	}
	if !decoded.OccurredAt.Equal(now) {
		t.Fatalf("expected occurred_at %v, got %v", now, decoded.OccurredAt)
	}
	if decoded.BookingID != 9 || decoded.UserID != 5 {
		t.Fatalf("unexpected payload: %+v", decoded)
	}
}

func TestKafkaPublisherErrors(t *testing.T) {
	writer := &recordingWriter{err: errors.New("broker down")}
	publisher := newKafkaPublisher(writer, nil, nil)

	if err := publisher.Publish(context.Background(), BookingEvent{Type: TypeBookingCanceled, RoomID: 1}); err == nil {
		t.Fatalf("expected write error to surface")
	}

	if err := publisher.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
	if err := publisher.Close(); err != nil {
		t.Fatalf("second Close returned error: %v", err)
	}
	if writer.closed != 1 {
		t.Fatalf("writer should be closed exactly once, got %d", writer.closed)
	}
	if err := publisher.Publish(context.Background(), BookingEvent{}); !errors.Is(err, ErrPublisherClosed) {
		t.Fatalf("expected ErrPublisherClosed, got %v", err)
	}
}

func TestNewKafkaPublisherValidatesConfig(t *testing.T) {
	if _, err := NewKafkaPublisher(KafkaConfig{Topic: "room-bookings"}, nil); err == nil {
		t.Fatalf("expected error without brokers")
	}
	if _, err := NewKafkaPublisher(KafkaConfig{Brokers: []string{"localhost:9092"}}, nil); err == nil {
		t.Fatalf("expected error without topic")
	}
	publisher, err := NewKafkaPublisher(KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "room-bookings"}, nil)
	if err != nil {
		t.Fatalf("NewKafkaPublisher returned error: %v", err)
	}
	if err := publisher.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
}

func TestNopPublisher(t *testing.T) {
	var publisher Publisher = NopPublisher{}
	if err := publisher.Publish(context.Background(), BookingEvent{}); err != nil {
		t.Fatalf("NopPublisher.Publish returned error: %v", err)
	}
}
