package notifier

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"backlognotify/internal/browser"
	"backlognotify/internal/notify"
	"backlognotify/internal/storage"
	"backlognotify/internal/tracker"
	"backlognotify/internal/tray"
)

var (
	// ErrUnconfiguredSlot rejects adding a slot while the last one is
	// still unsaved; allocation stays contiguous.
	ErrUnconfiguredSlot = errors.New("configure the current account before adding another")
	// ErrNothingToOpen means no unacknowledged notification exists.
	ErrNothingToOpen = errors.New("no recent issue to open")
)

// Channel is the outbound notification surface the registry's accounts
// display through. *notify.Service satisfies it.
type Channel interface {
	Display(ctx context.Context, n notify.Notification, ev notify.Events) error
}

// TrackerClient is the slice of the tracker API the registry needs.
// *tracker.Client satisfies it.
type TrackerClient interface {
	ListUpdated(ctx context.Context, q tracker.Query) ([]tracker.Issue, error)
	ViewURL(spaceID, issueKey string) string
}

type Deps struct {
	Store   storage.Store
	Client  TrackerClient
	Channel Channel
	Opener  browser.Opener
	Tray    tray.Indicator
	Log     zerolog.Logger
	// AppName appears in notification titles.
	AppName string
}

// Registry owns the ordered account list, the displayed-index pointer,
// and the shared notification state. All cross-account and persistence
// operations go through it; everything shared is guarded by one mutex.
type Registry struct {
	store   storage.Store
	client  TrackerClient
	channel Channel
	opener  browser.Opener
	tray    tray.Indicator
	log     zerolog.Logger
	appName string

	cron *cron.Cron

	mu        sync.Mutex
	ctx       context.Context
	accounts  []*Account
	displayed int
	state     State
}

func NewRegistry(d Deps) *Registry {
	return &Registry{
		store:   d.Store,
		client:  d.Client,
		channel: d.Channel,
		opener:  d.Opener,
		tray:    d.Tray,
		log:     d.Log,
		appName: d.AppName,
		cron:    cron.New(),
		state:   normalState(),
	}
}

func (r *Registry) baseCtx() context.Context {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ctx == nil {
		return context.Background()
	}
	return r.ctx
}

// Bootstrap builds one account per persisted slot, arms watermarks,
// and schedules the slots that validate. A fresh install gets a single
// unconfigured, unscheduled slot at index 0. The cron runner starts
// here and stops in Shutdown.
func (r *Registry) Bootstrap(ctx context.Context) error {
	r.mu.Lock()
	r.ctx = ctx
	r.mu.Unlock()

	count := getStoredInt(ctx, r.store, keyNotifierCount)
	accounts := make([]*Account, 0, count)
	for i := 0; i < count; i++ {
		a := newAccount(r, i)
		if err := a.ArmWatermark(ctx); err != nil {
			return fmt.Errorf("arm watermark for slot %d: %w", i, err)
		}
		if err := a.loadStored(ctx); err != nil {
			return fmt.Errorf("load slot %d: %w", i, err)
		}
		if err := a.Settings().Validate(); err != nil {
			a.log.Warn().Msg("slot unconfigured; not scheduled")
		} else if err := a.schedule(); err != nil {
			return fmt.Errorf("schedule slot %d: %w", i, err)
		}
		accounts = append(accounts, a)
	}

	if len(accounts) == 0 {
		a := newAccount(r, 0)
		if err := a.ArmWatermark(ctx); err != nil {
			return err
		}
		if err := a.loadStored(ctx); err != nil {
			return err
		}
		accounts = append(accounts, a)
	}

	displayed := getStoredInt(ctx, r.store, keyLastDisplayed)
	if displayed < 0 || displayed >= len(accounts) {
		displayed = 0
	}

	r.mu.Lock()
	r.accounts = accounts
	r.displayed = displayed
	r.mu.Unlock()

	r.cron.Start()
	r.log.Info().Int("accounts", len(accounts)).Int("displayed", displayed).Msg("registry bootstrapped")
	return nil
}

// Displayed returns the account currently shown for editing and its
// position. The handle goes stale after a delete/compact.
func (r *Registry) Displayed() (*Account, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.accounts[r.displayed], r.displayed
}

func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.accounts)
}

// SelectForDisplay moves the displayed-index pointer. The pointer is
// persisted only for saved slots, never for a pending-new one.
func (r *Registry) SelectForDisplay(ctx context.Context, index int) (*Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if index < 0 || index >= len(r.accounts) {
		return nil, fmt.Errorf("no account at index %d", index)
	}
	r.displayed = index
	a := r.accounts[index]
	if !a.PendingNew() {
		if err := r.store.Set(ctx, keyLastDisplayed, strconv.Itoa(index)); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// AddAccount appends a pending-new slot at index N and displays it.
// Rejected while the last slot is still unconfigured.
func (r *Registry) AddAccount(ctx context.Context) (*Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	last := r.accounts[len(r.accounts)-1]
	if !last.Settings().Configured() {
		return nil, ErrUnconfiguredSlot
	}

	index := len(r.accounts)
	a := newAccount(r, index)
	if err := a.ArmWatermark(ctx); err != nil {
		return nil, err
	}
	if err := a.loadStored(ctx); err != nil {
		return nil, err
	}
	a.mu.Lock()
	a.pendingNew = true
	a.mu.Unlock()

	r.accounts = append(r.accounts, a)
	r.displayed = index
	r.log.Info().Int("account", index).Msg("account slot added")
	return a, nil
}

// SaveDisplayed validates and persists user-entered settings into the
// displayed slot, rescheduling its fetch with the new interval. On
// validation failure the display reverts to the stored settings and
// nothing is persisted.
func (r *Registry) SaveDisplayed(ctx context.Context, s Settings) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a := r.accounts[r.displayed]
	if err := s.Validate(); err != nil {
		_ = a.loadStored(ctx)
		return err
	}

	if err := a.save(ctx, s); err != nil {
		return err
	}
	if err := a.schedule(); err != nil {
		return err
	}
	if err := r.store.Set(ctx, keyNotifierCount, strconv.Itoa(len(r.accounts))); err != nil {
		return err
	}

	a.mu.Lock()
	wasPending := a.pendingNew
	a.pendingNew = false
	a.mu.Unlock()
	if wasPending {
		if err := r.store.Set(ctx, keyLastDisplayed, strconv.Itoa(r.displayed)); err != nil {
			return err
		}
	}

	r.log.Info().Int("account", r.displayed).Str("space", s.SpaceID).Msg("account saved")
	return nil
}

// RevertDisplayed reloads the displayed slot's stored settings,
// discarding unsaved edits.
func (r *Registry) RevertDisplayed(ctx context.Context) (Settings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a := r.accounts[r.displayed]
	if err := a.loadStored(ctx); err != nil {
		return Settings{}, err
	}
	return a.Settings(), nil
}

// DeleteDisplayed removes the displayed slot and compacts the surviving
// configured accounts to contiguous indices, rewriting the store so no
// stale tail keys remain. Existing account handles are stale after this
// returns. Display falls back per the original behavior: fresh slot at
// 0 when nothing remains, else the preceding index when the old pointer
// ran off the end.
func (r *Registry) DeleteDisplayed(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a := r.accounts[r.displayed]
	a.unschedule()
	if err := deleteSlot(ctx, r.store, a.Index()); err != nil {
		return err
	}
	if err := a.loadStored(ctx); err != nil {
		return err
	}

	survivors := make([]*Account, 0, len(r.accounts))
	for _, acct := range r.accounts {
		if acct.Settings().Configured() {
			survivors = append(survivors, acct)
		}
	}

	if err := r.store.Clear(ctx); err != nil {
		return err
	}
	for newIndex, acct := range survivors {
		acct.mu.Lock()
		acct.index = newIndex
		acct.log = r.log.With().Int("account", newIndex).Logger()
		s := acct.settings
		wm := acct.watermark
		acct.mu.Unlock()
		if err := persistSettings(ctx, r.store, newIndex, s); err != nil {
			return err
		}
		if err := r.store.Set(ctx, keyWatermark(newIndex), wm.Format(time.RFC3339)); err != nil {
			return err
		}
	}
	r.accounts = survivors
	if err := r.store.Set(ctx, keyNotifierCount, strconv.Itoa(len(r.accounts))); err != nil {
		return err
	}

	switch {
	case len(r.accounts) == 0:
		fresh := newAccount(r, 0)
		if err := fresh.ArmWatermark(ctx); err != nil {
			return err
		}
		if err := fresh.loadStored(ctx); err != nil {
			return err
		}
		r.accounts = []*Account{fresh}
		r.displayed = 0
	case r.displayed >= len(r.accounts):
		r.displayed--
		if r.displayed < 0 {
			r.displayed = 0
		}
	}

	r.log.Info().Int("accounts", len(r.accounts)).Int("displayed", r.displayed).Msg("account deleted; slots compacted")
	return nil
}

// EnumerateConfigured snapshots the accounts with a saved space id, for
// the switch-account surface.
func (r *Registry) EnumerateConfigured() []*Account {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Account
	for _, a := range r.accounts {
		if a.Settings().Configured() {
			out = append(out, a)
		}
	}
	return out
}

// SelectConfigured picks a position within the configured set, displays
// it, and replaces the in-memory list with that filtered set.
func (r *Registry) SelectConfigured(ctx context.Context, position int) (*Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var configured []*Account
	for _, a := range r.accounts {
		if a.Settings().Configured() {
			configured = append(configured, a)
		}
	}
	if position < 0 || position >= len(configured) {
		return nil, fmt.Errorf("no configured account at position %d", position)
	}

	r.accounts = configured
	r.displayed = position
	a := configured[position]
	if err := a.loadStored(ctx); err != nil {
		return nil, err
	}
	if err := r.store.Set(ctx, keyLastDisplayed, strconv.Itoa(position)); err != nil {
		return nil, err
	}
	return a, nil
}

// MarkNotifying points the shared state at the given account index.
// Last write wins; an earlier unacknowledged notification is simply
// overwritten.
func (r *Registry) MarkNotifying(index int) {
	r.mu.Lock()
	r.state = notifyingState(index)
	r.mu.Unlock()
	r.tray.Notifying(index)
}

// MarkNormal resets the shared state; driven by the notification click
// handler or the open-most-recent action, never by a timeout.
func (r *Registry) MarkNormal() {
	r.mu.Lock()
	r.state = normalState()
	r.mu.Unlock()
	r.tray.Normal()
}

func (r *Registry) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// OpenMostRecent opens the notifying account's most recent issue in the
// browser and resets the shared state. The menu action behind the tray
// entry that MarkNotifying enables.
func (r *Registry) OpenMostRecent(ctx context.Context) error {
	r.mu.Lock()
	st := r.state
	var target *Account
	if st.Notifying {
		for _, a := range r.accounts {
			if a.Index() == st.Account {
				target = a
				break
			}
		}
	}
	r.mu.Unlock()

	if target == nil {
		return ErrNothingToOpen
	}
	url := r.client.ViewURL(target.Settings().SpaceID, target.MostRecentIssueKey())
	if err := r.opener.Open(ctx, url); err != nil {
		return err
	}
	r.MarkNormal()
	return nil
}

// Shutdown stops the cron runner (waiting out in-flight fetches) and
// persists the display pointer, unless it points at a never-saved
// pending-new slot that won't exist on the next launch.
func (r *Registry) Shutdown(ctx context.Context) {
	stopped := r.cron.Stop()
	select {
	case <-stopped.Done():
	case <-ctx.Done():
	}

	r.mu.Lock()
	a := r.accounts[r.displayed]
	displayed := r.displayed
	r.mu.Unlock()

	if !a.PendingNew() {
		if err := r.store.Set(ctx, keyLastDisplayed, strconv.Itoa(displayed)); err != nil {
			r.log.Warn().Err(err).Msg("display pointer persist failed on shutdown")
		}
	}
	r.log.Info().Msg("registry stopped")
}
