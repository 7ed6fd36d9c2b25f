package notifier

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"backlognotify/internal/config"
	"backlognotify/internal/storage"
)

// ErrValidation marks a user-facing validation failure on save or
// connection test. Nothing is persisted when it is returned.
var ErrValidation = errors.New("space id and api key are required")

// Settings is one account slot's configuration. The same value type is
// built from the store and from unsaved user input; both go through
// Validate.
type Settings struct {
	SpaceID          string
	APIKey           string
	ProjectID        string
	FetchIntervalSec int
}

func (s Settings) Validate() error {
	if strings.TrimSpace(s.SpaceID) == "" || strings.TrimSpace(s.APIKey) == "" {
		return ErrValidation
	}
	return nil
}

// Configured reports whether the slot holds a saved space. Enumeration
// and the contiguous-allocation check key off the space id alone.
func (s Settings) Configured() bool { return s.SpaceID != "" }

// Interval returns the polling period: the default for unset slots,
// otherwise the configured value clamped to at least one second.
func (s Settings) Interval() time.Duration {
	sec := s.FetchIntervalSec
	if sec == 0 {
		sec = config.DefaultFetchIntervalSec
	}
	if sec < 1 {
		sec = 1
	}
	return time.Duration(sec) * time.Second
}

// Storage keys, one flat namespace per account index plus two globals.
func keySpaceID(idx int) string       { return fmt.Sprintf("spaceId%d", idx) }
func keyAPIKey(idx int) string        { return fmt.Sprintf("apiKey%d", idx) }
func keyProjectID(idx int) string     { return fmt.Sprintf("projectId%d", idx) }
func keyFetchInterval(idx int) string { return fmt.Sprintf("fetchIntervalSec%d", idx) }
func keyWatermark(idx int) string     { return fmt.Sprintf("lastExecutionTime%d", idx) }

const (
	keyNotifierCount = "notifierCount"
	keyLastDisplayed = "lastDisplayedNotifierIndex"
)

// loadSettings reads a slot from the store. Missing or corrupted fields
// degrade to zero values; the slot then simply fails validation.
func loadSettings(ctx context.Context, st storage.Store, idx int) (Settings, error) {
	var s Settings
	var err error
	if s.SpaceID, _, err = st.Get(ctx, keySpaceID(idx)); err != nil {
		return Settings{}, err
	}
	if s.APIKey, _, err = st.Get(ctx, keyAPIKey(idx)); err != nil {
		return Settings{}, err
	}
	if s.ProjectID, _, err = st.Get(ctx, keyProjectID(idx)); err != nil {
		return Settings{}, err
	}
	raw, _, err := st.Get(ctx, keyFetchInterval(idx))
	if err != nil {
		return Settings{}, err
	}
	if n, convErr := strconv.Atoi(strings.TrimSpace(raw)); convErr == nil && n > 0 {
		s.FetchIntervalSec = n
	}
	return s, nil
}

// persistSettings writes the slot's four settings keys. The watermark
// key is written only by ArmWatermark.
func persistSettings(ctx context.Context, st storage.Store, idx int, s Settings) error {
	if err := st.Set(ctx, keySpaceID(idx), s.SpaceID); err != nil {
		return err
	}
	if err := st.Set(ctx, keyAPIKey(idx), s.APIKey); err != nil {
		return err
	}
	if err := st.Set(ctx, keyProjectID(idx), s.ProjectID); err != nil {
		return err
	}
	interval := ""
	if s.FetchIntervalSec > 0 {
		interval = strconv.Itoa(s.FetchIntervalSec)
	}
	return st.Set(ctx, keyFetchInterval(idx), interval)
}

func deleteSlot(ctx context.Context, st storage.Store, idx int) error {
	return st.Delete(ctx,
		keySpaceID(idx),
		keyAPIKey(idx),
		keyProjectID(idx),
		keyFetchInterval(idx),
		keyWatermark(idx),
	)
}

func getStoredInt(ctx context.Context, st storage.Store, key string) int {
	v, ok, err := st.Get(ctx, key)
	if err != nil || !ok {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0
	}
	return n
}
