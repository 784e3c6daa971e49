package events

import (
	"context"
	"testing"
	"time"
)

func TestStream_PublishDropsWhenBufferFull(t *testing.T) {
	s := NewStream()
	defer s.Close()

	for i := 0; i < cap(s.events); i++ {
		s.Publish(Event{Kind: KindStep, TickIndex: 1, Step: i})
	}

	s.Publish(Event{Kind: KindStep, TickIndex: 1, Step: 999})
	if s.Dropped() != 1 {
		t.Fatalf("expected dropped count 1, got %d", s.Dropped())
	}
}

func TestStream_NextReturnsPublishedEvent(t *testing.T) {
	s := NewStream()
	defer s.Close()

	s.Publish(Event{Kind: KindTickStarted, TickIndex: 2})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	event, ok := s.Next(ctx)
	if !ok {
		t.Fatal("expected an event")
	}
	if event.Kind != KindTickStarted || event.TickIndex != 2 {
		t.Fatalf("unexpected event: %+v", event)
	}
	if event.Timestamp.IsZero() {
		t.Fatal("expected timestamp to be stamped")
	}
}

func TestStream_NextHonorsContext(t *testing.T) {
	s := NewStream()
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, ok := s.Next(ctx); ok {
		t.Fatal("expected no event after cancellation")
	}
}

func TestStream_PublishAfterCloseIsNoop(t *testing.T) {
	s := NewStream()
	s.Close()
	s.Publish(Event{Kind: KindStep})
	s.Close() // double close must not panic
}
