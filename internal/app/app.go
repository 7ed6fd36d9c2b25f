// Package app wires the daemon's components together and owns their
// start/stop order.
package app

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"backlognotify/internal/browser"
	"backlognotify/internal/config"
	"backlognotify/internal/logging"
	"backlognotify/internal/notifier"
	"backlognotify/internal/notify"
	"backlognotify/internal/storage"
	"backlognotify/internal/tracker"
	"backlognotify/internal/tray"
)

type App struct {
	cfgMgr    *config.Manager
	log       zerolog.Logger
	logCloser io.Closer

	store    storage.Store
	client   *tracker.Client
	channel  *notify.Service
	registry *notifier.Registry

	watchCancel context.CancelFunc
	cfgSub      chan *config.Config
	wg          sync.WaitGroup
}

func New(cfgPath string) (*App, error) {
	mgr := config.NewManager(cfgPath, zerolog.Nop())
	cfg, err := mgr.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log, logCloser := logging.New(logging.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logging.FileConfig{
			Enabled:    cfg.Logging.File.Enabled,
			Path:       cfg.Logging.File.Path,
			MaxSizeMB:  cfg.Logging.File.MaxSizeMB,
			MaxBackups: cfg.Logging.File.MaxBackups,
			MaxAgeDays: cfg.Logging.File.MaxAgeDays,
		},
	})
	mgr.SetLogger(log.With().Str("component", "config").Logger())

	store, err := storage.Open(storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: cfg.BusyTimeout(),
	}, log.With().Str("component", "storage").Logger())
	if err != nil {
		_ = logCloser.Close()
		return nil, fmt.Errorf("open storage: %w", err)
	}

	client := tracker.NewClient(tracker.Config{
		Domain:     cfg.Tracker.Domain,
		Timeout:    cfg.HTTPTimeout(),
		RatePerSec: cfg.Tracker.RatePerSec,
	}, log.With().Str("component", "tracker").Logger())

	var primary notify.Channel
	desktop, err := notify.NewDesktop(cfg.App.Name, log.With().Str("component", "notify").Logger())
	if err != nil {
		log.Warn().Err(err).Msg("session bus unavailable; notifications go to the log")
		primary = notify.LogChannel{Log: log}
	} else {
		primary = desktop
	}

	var mirrors []notify.Channel
	if cfg.Telegram.Enabled {
		tg, err := notify.NewTelegram(cfg.Telegram.Token, cfg.Telegram.ChatID,
			log.With().Str("component", "telegram").Logger())
		if err != nil {
			log.Warn().Err(err).Msg("telegram mirror unavailable; continuing without it")
		} else {
			mirrors = append(mirrors, tg)
		}
	}
	channel := notify.NewService(primary, log.With().Str("component", "notify").Logger(), mirrors...)

	registry := notifier.NewRegistry(notifier.Deps{
		Store:   store,
		Client:  client,
		Channel: channel,
		Opener:  browser.ExecOpener{Log: log.With().Str("component", "browser").Logger()},
		Tray:    tray.LogIndicator{Log: log.With().Str("component", "tray").Logger()},
		Log:     log.With().Str("component", "notifier").Logger(),
		AppName: cfg.App.Name,
	})

	return &App{
		cfgMgr:    mgr,
		log:       log,
		logCloser: logCloser,
		store:     store,
		client:    client,
		channel:   channel,
		registry:  registry,
	}, nil
}

func (a *App) Registry() *notifier.Registry { return a.registry }

func (a *App) Start(ctx context.Context) error {
	if err := a.registry.Bootstrap(ctx); err != nil {
		return fmt.Errorf("bootstrap registry: %w", err)
	}

	wctx, cancel := context.WithCancel(context.Background())
	a.watchCancel = cancel
	a.cfgSub = a.cfgMgr.Subscribe(1)

	a.wg.Add(2)
	go func() {
		defer a.wg.Done()
		if err := a.cfgMgr.Watch(wctx); err != nil {
			a.log.Warn().Err(err).Msg("config watch stopped")
		}
	}()
	go func() {
		defer a.wg.Done()
		for cfg := range a.cfgSub {
			a.apply(cfg)
		}
	}()

	a.log.Info().Msg("backlognotify started")
	return nil
}

// apply hot-reloads what can change without a restart: log level and
// the tracker's domain/rate limit.
func (a *App) apply(cfg *config.Config) {
	zerolog.SetGlobalLevel(logging.ParseLevel(cfg.Logging.Level, zerolog.InfoLevel))
	a.client.Apply(tracker.Config{
		Domain:     cfg.Tracker.Domain,
		RatePerSec: cfg.Tracker.RatePerSec,
	})
	a.log.Info().Msg("config applied")
}

func (a *App) Stop(ctx context.Context) error {
	a.registry.Shutdown(ctx)
	if a.watchCancel != nil {
		a.watchCancel()
	}
	if a.cfgSub != nil {
		a.cfgMgr.Unsubscribe(a.cfgSub)
	}
	a.wg.Wait()

	_ = a.channel.Close()
	err := a.store.Close()
	a.log.Info().Msg("backlognotify stopped")
	_ = a.logCloser.Close()
	return err
}
