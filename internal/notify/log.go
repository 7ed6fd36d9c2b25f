package notify

import (
	"context"

	"github.com/rs/zerolog"
)

// LogChannel is the headless fallback when no session bus is available:
// notifications land in the log and no click/timeout events ever fire.
type LogChannel struct {
	Log zerolog.Logger
}

func (c LogChannel) Display(ctx context.Context, n Notification, _ Events) error {
	c.Log.Info().Str("title", n.Title).Str("body", n.Body).Msg("notification")
	return nil
}

func (c LogChannel) Close() error { return nil }
