// Package tray defines the port to the tray surface. Rendering the icon
// and menu belongs to the embedding shell; the daemon only drives the
// two-state indicator.
package tray

import "github.com/rs/zerolog"

// Indicator mirrors the shared notification state: the icon image and
// the "open most recent issue" menu entry move in lockstep.
type Indicator interface {
	// Notifying switches to the notification icon and enables the
	// most-recent-issue entry for the given account index.
	Notifying(accountIndex int)
	// Normal restores the idle icon and disables the entry.
	Normal()
}

// LogIndicator is the headless stand-in: it records transitions and
// renders nothing.
type LogIndicator struct {
	Log zerolog.Logger
}

func (t LogIndicator) Notifying(accountIndex int) {
	t.Log.Info().Int("account", accountIndex).Msg("tray: notifying")
}

func (t LogIndicator) Normal() {
	t.Log.Info().Msg("tray: normal")
}
