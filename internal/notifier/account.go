package notifier

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"backlognotify/internal/notify"
	"backlognotify/internal/tracker"
)

const watermarkDateLayout = "2006-01-02"

// Account owns one slot's settings, watermark, cron entry, and
// most-recent issue key, and runs that slot's independent polling
// cycle. Accounts are created and wired by the Registry; their index is
// a position in the persisted ordered list and goes stale after a
// delete/compact.
type Account struct {
	reg *Registry
	log zerolog.Logger

	mu         sync.Mutex
	index      int
	settings   Settings
	pendingNew bool
	watermark  time.Time
	recentKey  string
	entryID    cron.EntryID
}

func newAccount(reg *Registry, index int) *Account {
	return &Account{
		reg: reg,
		log: reg.log.With().Int("account", index).Logger(),

		index: index,
	}
}

func (a *Account) Index() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.index
}

func (a *Account) Settings() Settings {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.settings
}

func (a *Account) PendingNew() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pendingNew
}

// MostRecentIssueKey is meaningful only while the shared state names
// this account's index.
func (a *Account) MostRecentIssueKey() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.recentKey
}

// ArmWatermark moves the watermark to the current instant (UTC, second
// precision), in memory and in the store. It runs at startup and after
// every fetch attempt, successful or not.
func (a *Account) ArmWatermark(ctx context.Context) error {
	now := time.Now().UTC().Truncate(time.Second)
	a.mu.Lock()
	a.watermark = now
	idx := a.index
	a.mu.Unlock()
	return a.reg.store.Set(ctx, keyWatermark(idx), now.Format(time.RFC3339))
}

// loadStored replaces the in-memory settings with the persisted slot.
func (a *Account) loadStored(ctx context.Context) error {
	a.mu.Lock()
	idx := a.index
	a.mu.Unlock()
	s, err := loadSettings(ctx, a.reg.store, idx)
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.settings = s
	a.mu.Unlock()
	return nil
}

// save persists caller-supplied settings under this slot. The watermark
// key is untouched.
func (a *Account) save(ctx context.Context, s Settings) error {
	a.mu.Lock()
	a.settings = s
	idx := a.index
	a.mu.Unlock()
	return persistSettings(ctx, a.reg.store, idx, s)
}

// schedule (re)arms the recurring fetch. The previous entry, if any, is
// removed first: at most one active timer per account. SkipIfStillRunning
// guarantees at most one in-flight fetch; a tick that fires during an
// outstanding fetch is skipped, not queued.
func (a *Account) schedule() error {
	a.unschedule()

	a.mu.Lock()
	every := a.settings.Interval()
	a.mu.Unlock()

	job := cron.NewChain(cron.SkipIfStillRunning(cronLogger{a.log})).
		Then(cron.FuncJob(a.fetchCycle))
	id, err := a.reg.cron.AddJob(fmt.Sprintf("@every %s", every), job)
	if err != nil {
		return err
	}

	a.mu.Lock()
	a.entryID = id
	a.mu.Unlock()
	a.log.Info().Dur("every", every).Msg("fetch scheduled")
	return nil
}

func (a *Account) unschedule() {
	a.mu.Lock()
	id := a.entryID
	a.entryID = 0
	a.mu.Unlock()
	if id != 0 {
		a.reg.cron.Remove(id)
	}
}

// fetchCycle is one scheduled poll. Request-level failures are contained
// here: the cycle degrades to "no new issues" and never reaches the
// scheduler or other accounts. The watermark advances regardless of
// outcome.
func (a *Account) fetchCycle() {
	ctx := a.reg.baseCtx()

	a.mu.Lock()
	s := a.settings
	wm := a.watermark
	a.mu.Unlock()

	issues, err := a.reg.client.ListUpdated(ctx, tracker.Query{
		SpaceID:      s.SpaceID,
		APIKey:       s.APIKey,
		ProjectID:    s.ProjectID,
		UpdatedSince: wm.Format(watermarkDateLayout),
	})
	if err != nil {
		a.log.Debug().Err(err).Msg("fetch failed; treating cycle as empty")
	} else {
		a.notifyIssues(ctx, PickUpdated(issues, wm))
	}

	if err := a.ArmWatermark(ctx); err != nil {
		a.log.Warn().Err(err).Msg("watermark persist failed")
	}
}

// PickUpdated keeps the issues updated at or after the watermark. The
// request already narrowed by calendar date; this is the full-timestamp
// dedup filter. Issues with unparseable timestamps are dropped.
func PickUpdated(issues []tracker.Issue, watermark time.Time) []tracker.Issue {
	var fresh []tracker.Issue
	for _, issue := range issues {
		t, ok := issue.UpdatedAt()
		if ok && !t.Before(watermark) {
			fresh = append(fresh, issue)
		}
	}
	return fresh
}

// notifyIssues raises one OS notification for a non-empty batch. The
// first issue represents the batch (the tracker sorts by update
// recency). Click opens the issue and resets the shared state; a
// timeout leaves the tray indicator active until the user acts.
func (a *Account) notifyIssues(ctx context.Context, issues []tracker.Issue) {
	if len(issues) == 0 {
		return
	}
	first := issues[0]

	a.mu.Lock()
	a.recentKey = first.IssueKey
	idx := a.index
	spaceID := a.settings.SpaceID
	a.mu.Unlock()

	a.reg.MarkNotifying(idx)

	viewURL := a.reg.client.ViewURL(spaceID, first.IssueKey)
	n := notify.Notification{
		Title: fmt.Sprintf("(%d) %s", len(issues), a.reg.appName),
		Body:  first.Summary,
	}
	err := a.reg.channel.Display(ctx, n, notify.Events{
		OnActivated: func() {
			if err := a.reg.opener.Open(context.Background(), viewURL); err != nil {
				a.log.Warn().Err(err).Str("url", viewURL).Msg("browser open failed")
			}
			a.reg.MarkNormal()
		},
		// Timed out: the subscription is gone but the tray stays in the
		// notifying state until the user opens the issue.
		OnTimedOut: nil,
	})
	if err != nil {
		a.log.Warn().Err(err).Msg("notification failed")
	}
	a.log.Info().Int("issues", len(issues)).Str("issue_key", first.IssueKey).Msg("new issue activity")
}

// TestConnection runs the fetch query with unsaved, caller-supplied
// settings. Nothing persisted, no watermark movement; failures are the
// caller's to present.
func (a *Account) TestConnection(ctx context.Context, s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}

	a.mu.Lock()
	wm := a.watermark
	a.mu.Unlock()

	_, err := a.reg.client.ListUpdated(ctx, tracker.Query{
		SpaceID:      s.SpaceID,
		APIKey:       s.APIKey,
		ProjectID:    s.ProjectID,
		UpdatedSince: wm.Format(watermarkDateLayout),
	})
	return err
}

// cronLogger adapts zerolog to the cron.Logger interface. Skipped ticks
// surface as Info from the SkipIfStillRunning wrapper; keep them at
// debug.
type cronLogger struct{ log zerolog.Logger }

func (l cronLogger) Info(msg string, kv ...interface{}) {
	l.log.Debug().Fields(kv).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, kv ...interface{}) {
	l.log.Warn().Err(err).Fields(kv).Msg(msg)
}
