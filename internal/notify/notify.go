// Package notify carries desktop notifications out of the process and
// routes the user's reaction back in.
package notify

import (
	"context"

	"github.com/rs/zerolog"
)

type Notification struct {
	Title string
	Body  string
}

// Events are the one-shot subscriptions attached to a displayed
// notification: at most one pair is live per channel, and a later
// Display replaces it. Either handler may be nil.
type Events struct {
	OnActivated func() // user clicked the notification
	OnTimedOut  func() // notification went away without a click
}

type Channel interface {
	Display(ctx context.Context, n Notification, ev Events) error
	Close() error
}

// Service fans a notification out to the interactive channel and any
// display-only mirrors. Only the primary channel receives the event
// subscriptions; mirrors never feed back into notification state.
type Service struct {
	primary Channel
	mirrors []Channel
	log     zerolog.Logger
}

func NewService(primary Channel, log zerolog.Logger, mirrors ...Channel) *Service {
	return &Service{primary: primary, mirrors: mirrors, log: log}
}

func (s *Service) Display(ctx context.Context, n Notification, ev Events) error {
	err := s.primary.Display(ctx, n, ev)
	if err != nil {
		s.log.Warn().Str("title", n.Title).Err(err).Msg("notification display failed")
	}
	for _, m := range s.mirrors {
		if merr := m.Display(ctx, n, Events{}); merr != nil {
			s.log.Warn().Str("title", n.Title).Err(merr).Msg("notification mirror failed")
		}
	}
	return err
}

func (s *Service) Close() error {
	err := s.primary.Close()
	for _, m := range s.mirrors {
		_ = m.Close()
	}
	return err
}
