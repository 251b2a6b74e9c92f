// Package app wires the bot together and owns its lifecycle.
package app

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"rollbot/internal/config"
	"rollbot/internal/dispense"
	"rollbot/internal/favorites"
	"rollbot/internal/registry"
	"rollbot/internal/router"
	"rollbot/internal/services/maintenance"
	"rollbot/internal/storage"
	kit "rollbot/internal/transport"
	tgadapter "rollbot/internal/transport/telegram/adapter"
	logx "rollbot/pkg/logx"
)

const updateQueueSize = 256

type App struct {
	cfgMgr *config.Manager
	logSvc *logx.Service
	log    logx.Logger

	store   *storage.Store
	adapter *tgadapter.Adapter
	router  *router.Router
	maint   *maintenance.Service

	updates chan kit.Update
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func New(cfgPath string) (*App, error) {
	mgr := config.NewManager(cfgPath)
	cfg, err := mgr.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	mgr.SetLogger(log.With(logx.String("comp", "config")))

	a := &App{cfgMgr: mgr, logSvc: logSvc, log: log}
	if err := a.build(cfg); err != nil {
		logSvc.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(cfg *config.Config) error {
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 5*time.Second)
	if err != nil {
		return err
	}
	store, err := storage.Open(storage.Config{
		Path:        cfg.Storage.Path,
		BusyTimeout: busy,
	}, a.log.With(logx.String("comp", "storage")))
	if err != nil {
		return err
	}
	a.store = store

	token := strings.TrimSpace(cfg.Telegram.Token)
	if token == "" {
		token = strings.TrimSpace(os.Getenv("TELEGRAM_BOT_TOKEN"))
	}
	if token == "" {
		return errors.New("telegram token missing (config telegram.token or TELEGRAM_BOT_TOKEN)")
	}
	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return err
	}
	ad, err := tgadapter.New(tgadapter.Config{
		Token:          token,
		PollTimeout:    pollTimeout,
		SendRatePerSec: cfg.Telegram.SendRatePerSec,
	}, a.log.With(logx.String("comp", "telegram")))
	if err != nil {
		return err
	}
	a.adapter = ad

	reg := registry.New(store, a.log.With(logx.String("comp", "registry")))
	favs := favorites.New(store, a.log.With(logx.String("comp", "favorites")))
	delivery := router.NewDelivery(ad, a.log.With(logx.String("comp", "delivery")))
	engine := dispense.NewEngine(store, store, store, reg, delivery,
		a.log.With(logx.String("comp", "dispense")))
	a.router = router.New(ad, ad, store, reg, engine, favs,
		a.log.With(logx.String("comp", "router")))

	mcfg := maintenance.Config{}
	enabled := true
	if mc := cfg.Maintenance; mc != nil {
		if mc.Enabled != nil {
			enabled = *mc.Enabled
		}
		mcfg.Schedule = mc.Schedule
		retention, err := config.ParseDurationField("maintenance.cooldown_retention", mc.CooldownRetention)
		if err != nil {
			return err
		}
		mcfg.CooldownRetention = retention
	}
	if enabled {
		a.maint = maintenance.New(mcfg, store, a.log.With(logx.String("comp", "maintenance")))
	}

	return nil
}

func (a *App) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	a.updates = make(chan kit.Update, updateQueueSize)
	if err := a.adapter.Start(runCtx, a.updates); err != nil {
		cancel()
		return err
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.router.Run(runCtx, a.updates)
	}()

	// Hot-reload: only logging is live-applied; transport/storage changes
	// need a restart.
	sub := a.cfgMgr.Subscribe(1)
	a.wg.Add(2)
	go func() {
		defer a.wg.Done()
		_ = a.cfgMgr.Watch(runCtx)
	}()
	go func() {
		defer a.wg.Done()
		for {
			select {
			case <-runCtx.Done():
				a.cfgMgr.Unsubscribe(sub)
				return
			case cfg, ok := <-sub:
				if !ok {
					return
				}
				if cfg == nil {
					continue
				}
				a.logSvc.Apply(logx.Config{
					Level:   cfg.Logging.Level,
					Console: cfg.Logging.Console,
					File: logx.FileConfig{
						Enabled: cfg.Logging.File.Enabled,
						Path:    cfg.Logging.File.Path,
					},
				})
				a.log.Info("logging config applied")
			}
		}
	}()

	if a.maint != nil {
		if err := a.maint.Start(); err != nil {
			a.log.Warn("maintenance start failed", logx.Err(err))
		}
	}

	// Best-effort: a no-op outside systemd units.
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	a.log.Info("started")
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	if a.cancel != nil {
		a.cancel()
	}
	if a.maint != nil {
		_ = a.maint.Stop(ctx)
	}
	if a.adapter != nil {
		_ = a.adapter.Stop(ctx)
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		a.log.Warn("shutdown timed out waiting for workers")
	}

	if a.store != nil {
		_ = a.store.Close()
	}
	a.log.Info("stopped")
	return a.logSvc.Close()
}
