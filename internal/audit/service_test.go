package audit

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestAppend_FillsIDAndTimestamp(t *testing.T) {
	repo := NewMemoryRepo()
	s := NewService(repo)
	fixed := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s.clock = func() time.Time { return fixed }

	if err := s.Append(context.Background(), Event{Type: EventTypeCallInitiated, RoutingID: "rid-1"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	events := repo.Events()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].ID == "" {
		t.Fatalf("expected generated id")
	}
	if !events[0].CreatedAt.Equal(fixed) {
		t.Fatalf("expected clock timestamp, got %v", events[0].CreatedAt)
	}
}

func TestAppend_RejectsMissingType(t *testing.T) {
	s := NewService(NewMemoryRepo())
	err := s.Append(context.Background(), Event{RoutingID: "rid-1"})
	if !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("expected ErrInvalidEvent, got %v", err)
	}
}

func TestHelpers_ProduceTypedEvents(t *testing.T) {
	repo := NewMemoryRepo()
	s := NewService(repo)

	ctx := context.Background()
	if err := s.LogScan(ctx, "slug-1", "own-1", "claimed"); err != nil {
		t.Fatalf("log scan: %v", err)
	}
	if err := s.LogInitiation(ctx, "rid-1", "own-1"); err != nil {
		t.Fatalf("log initiation: %v", err)
	}
	if err := s.LogLegStatus(ctx, "leg-1", "in-progress", "CallSid=leg-1"); err != nil {
		t.Fatalf("log leg status: %v", err)
	}

	events := repo.Events()
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if events[0].Type != EventTypeQRScan || events[0].SlugID != "slug-1" {
		t.Fatalf("unexpected scan event: %+v", events[0])
	}
	if events[1].Type != EventTypeCallInitiated || events[1].Mode != "bridged" {
		t.Fatalf("unexpected initiation event: %+v", events[1])
	}
	if events[2].Type != EventTypeLegStatus || events[2].Metadata == "" {
		t.Fatalf("unexpected leg event: %+v", events[2])
	}
}

func TestMemoryRepo_ListEventsRange(t *testing.T) {
	repo := NewMemoryRepo()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		_ = repo.Append(context.Background(), Event{
			Type:      EventTypeQRScan,
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		})
	}

	got, err := repo.ListEvents(context.Background(), base, base.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected half-open range to yield 2 events, got %d", len(got))
	}
}
