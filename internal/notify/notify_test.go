package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
)

type recordChannel struct {
	notifications []Notification
	events        []Events
	displayErr    error
	closed        bool
}

func (c *recordChannel) Display(ctx context.Context, n Notification, ev Events) error {
	c.notifications = append(c.notifications, n)
	c.events = append(c.events, ev)
	return c.displayErr
}

func (c *recordChannel) Close() error {
	c.closed = true
	return nil
}

func TestServiceFansOut(t *testing.T) {
	primary := &recordChannel{}
	mirror := &recordChannel{}
	s := NewService(primary, zerolog.Nop(), mirror)

	clicked := false
	err := s.Display(context.Background(), Notification{Title: "t", Body: "b"}, Events{
		OnActivated: func() { clicked = true },
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(primary.notifications) != 1 || len(mirror.notifications) != 1 {
		t.Fatalf("primary=%d mirror=%d", len(primary.notifications), len(mirror.notifications))
	}
	// Only the primary channel gets the subscriptions.
	if primary.events[0].OnActivated == nil {
		t.Fatal("primary lost its activation handler")
	}
	if mirror.events[0].OnActivated != nil || mirror.events[0].OnTimedOut != nil {
		t.Fatal("mirror received event subscriptions")
	}
	primary.events[0].OnActivated()
	if !clicked {
		t.Fatal("activation handler not wired through")
	}
}

func TestServiceMirrorFailureDoesNotMaskPrimary(t *testing.T) {
	primary := &recordChannel{}
	mirror := &recordChannel{displayErr: errors.New("mirror down")}
	s := NewService(primary, zerolog.Nop(), mirror)

	if err := s.Display(context.Background(), Notification{Title: "t"}, Events{}); err != nil {
		t.Fatalf("mirror failure surfaced: %v", err)
	}

	primary.displayErr = errors.New("bus gone")
	if err := s.Display(context.Background(), Notification{Title: "t"}, Events{}); err == nil {
		t.Fatal("primary failure swallowed")
	}
	// Mirrors are still attempted after a primary failure.
	if len(mirror.notifications) != 2 {
		t.Fatalf("mirror displays = %d", len(mirror.notifications))
	}
}

func TestServiceCloseClosesAll(t *testing.T) {
	primary := &recordChannel{}
	mirror := &recordChannel{}
	s := NewService(primary, zerolog.Nop(), mirror)
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if !primary.closed || !mirror.closed {
		t.Fatalf("closed: primary=%v mirror=%v", primary.closed, mirror.closed)
	}
}

func TestLogChannelNeverFires(t *testing.T) {
	c := LogChannel{Log: zerolog.Nop()}
	err := c.Display(context.Background(), Notification{Title: "t"}, Events{
		OnActivated: func() { t.Fatal("log channel fired an event") },
		OnTimedOut:  func() { t.Fatal("log channel fired an event") },
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
}
