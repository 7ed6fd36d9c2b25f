package notifier

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"backlognotify/internal/notify"
	"backlognotify/internal/storage"
	"backlognotify/internal/tracker"
)

type fakeClient struct {
	mu     sync.Mutex
	issues []tracker.Issue
	err    error
	calls  []tracker.Query
	gate   chan struct{} // when set, ListUpdated parks until closed
}

func (f *fakeClient) ListUpdated(ctx context.Context, q tracker.Query) ([]tracker.Issue, error) {
	f.mu.Lock()
	f.calls = append(f.calls, q)
	issues, err, gate := f.issues, f.err, f.gate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return issues, err
}

func (f *fakeClient) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeClient) ViewURL(spaceID, issueKey string) string {
	return "https://" + spaceID + ".backlog.jp/view/" + issueKey
}

func (f *fakeClient) set(issues []tracker.Issue, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.issues, f.err = issues, err
}

type fakeChannel struct {
	mu        sync.Mutex
	displayed []notify.Notification
	ev        notify.Events
}

func (c *fakeChannel) Display(ctx context.Context, n notify.Notification, ev notify.Events) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.displayed = append(c.displayed, n)
	c.ev = ev // replaces the previous subscription
	return nil
}

func (c *fakeChannel) last(t *testing.T) (notify.Notification, notify.Events) {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.displayed) == 0 {
		t.Fatal("no notification displayed")
	}
	return c.displayed[len(c.displayed)-1], c.ev
}

func (c *fakeChannel) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.displayed)
}

type fakeTray struct {
	mu          sync.Mutex
	transitions []int // account index, or -1 for normal
}

func (f *fakeTray) Notifying(accountIndex int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transitions = append(f.transitions, accountIndex)
}

func (f *fakeTray) Normal() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transitions = append(f.transitions, -1)
}

type fakeOpener struct {
	mu   sync.Mutex
	urls []string
}

func (f *fakeOpener) Open(ctx context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.urls = append(f.urls, url)
	return nil
}

type harness struct {
	reg     *Registry
	store   storage.Store
	client  *fakeClient
	channel *fakeChannel
	tray    *fakeTray
	opener  *fakeOpener
}

// newHarness builds a registry on a real file store, optionally
// pre-seeded, and bootstraps it.
func newHarness(t *testing.T, seed map[string]string) *harness {
	t.Helper()
	ctx := context.Background()

	st, err := storage.Open(storage.Config{
		Driver: "file",
		Path:   filepath.Join(t.TempDir(), "settings.json"),
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	for k, v := range seed {
		if err := st.Set(ctx, k, v); err != nil {
			t.Fatalf("seed %s: %v", k, err)
		}
	}

	h := &harness{
		store:   st,
		client:  &fakeClient{},
		channel: &fakeChannel{},
		tray:    &fakeTray{},
		opener:  &fakeOpener{},
	}
	h.reg = NewRegistry(Deps{
		Store:   st,
		Client:  h.client,
		Channel: h.channel,
		Opener:  h.opener,
		Tray:    h.tray,
		Log:     zerolog.Nop(),
		AppName: "Backlog Notifier",
	})
	if err := h.reg.Bootstrap(ctx); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	t.Cleanup(func() { h.reg.Shutdown(context.Background()) })
	return h
}

// saveAccount configures the displayed slot with valid settings.
func (h *harness) saveAccount(t *testing.T, space string, intervalSec int) {
	t.Helper()
	err := h.reg.SaveDisplayed(context.Background(), Settings{
		SpaceID:          space,
		APIKey:           "key-" + space,
		ProjectID:        "",
		FetchIntervalSec: intervalSec,
	})
	if err != nil {
		t.Fatalf("save %s: %v", space, err)
	}
}

// addAndSave appends a new slot and configures it.
func (h *harness) addAndSave(t *testing.T, space string, intervalSec int) {
	t.Helper()
	if _, err := h.reg.AddAccount(context.Background()); err != nil {
		t.Fatalf("add account for %s: %v", space, err)
	}
	h.saveAccount(t, space, intervalSec)
}

func (h *harness) storedValue(t *testing.T, key string) (string, bool) {
	t.Helper()
	v, ok, err := h.store.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("store get %s: %v", key, err)
	}
	return v, ok
}
