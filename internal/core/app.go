// Package core wires the bot's components into one explicit App object:
// config, logging, transport, settings, marketplace client, novelty
// tracking, dispatch, polling, and command handling. There is no ambient
// global state; everything lives for the App's lifetime.
package core

import (
	"context"
	"fmt"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"sellerbot/internal/bot"
	"sellerbot/internal/config"
	"sellerbot/internal/dispatch"
	"sellerbot/internal/marketplace"
	"sellerbot/internal/novelty"
	"sellerbot/internal/poller"
	"sellerbot/internal/settings"
	kit "sellerbot/internal/transport"
	"sellerbot/internal/transport/telegram"
	logx "sellerbot/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	sup  *Supervisor

	log  logx.Logger
	logs *logx.Service

	adapter kit.Adapter
	store   settings.Store
	client  *marketplace.Client
	tracker *novelty.Tracker
	disp    *dispatch.Dispatcher
	poll    *poller.Poller
	handler *bot.Handler

	pollEnabled bool
	updates     chan kit.Update
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
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
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	adapter, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, log.With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, err
	}

	busyTimeout, err := config.ParseDurationField("settings.busy_timeout", cfg.Settings.BusyTimeout)
	if err != nil {
		return nil, err
	}
	store, err := settings.Open(settings.Config{
		Driver:      cfg.Settings.Driver,
		Path:        cfg.Settings.Path,
		BusyTimeout: busyTimeout,
	}, log.With(logx.String("comp", "settings")))
	if err != nil {
		return nil, fmt.Errorf("open settings store: %w", err)
	}

	reqTimeout, err := config.ParseDurationOrDefault("wildberries.request_timeout", cfg.Wildberries.RequestTimeout, 15*time.Second)
	if err != nil {
		return nil, err
	}
	client, err := marketplace.New(marketplace.Config{
		APIKey:         cfg.Wildberries.APIKey,
		StatisticsURL:  cfg.Wildberries.StatisticsURL,
		FeedbacksURL:   cfg.Wildberries.FeedbacksURL,
		RequestTimeout: reqTimeout,
		RatePerSec:     cfg.Wildberries.RatePerSec,
	}, log.With(logx.String("comp", "marketplace")))
	if err != nil {
		return nil, err
	}

	tracker := novelty.NewTracker()
	disp := dispatch.New(adapter, store, cfg.Telegram.AllowedUserIDs, 0,
		log.With(logx.String("comp", "dispatch")))

	salesEvery, err := config.ParseDurationOrDefault("poll.sales_every", cfg.Poll.SalesEvery, 10*time.Minute)
	if err != nil {
		return nil, err
	}
	feedbackEvery, err := config.ParseDurationOrDefault("poll.feedback_every", cfg.Poll.FeedbackEvery, 3*time.Minute)
	if err != nil {
		return nil, err
	}
	retryMax := 3
	if cfg.Poll.RetryMax != nil {
		retryMax = *cfg.Poll.RetryMax
	}
	poll := poller.New(poller.Config{
		SalesEvery:    salesEvery,
		FeedbackEvery: feedbackEvery,
		PageSize:      cfg.Poll.PageSize,
		RetryMax:      retryMax,
	}, client, tracker, disp, log.With(logx.String("comp", "poller")))

	handler := bot.New(adapter, client, store, cfg.Telegram.AllowedUserIDs,
		log.With(logx.String("comp", "commands")))

	return &App{
		cfgm:        cfgm,
		log:         log,
		logs:        logSvc,
		adapter:     adapter,
		store:       store,
		client:      client,
		tracker:     tracker,
		disp:        disp,
		poll:        poll,
		handler:     handler,
		pollEnabled: cfg.Poll.Enabled,
		updates:     make(chan kit.Update, 256),
	}, nil
}

func (a *App) Start(ctx context.Context) error {
	a.sup = NewSupervisor(ctx, WithLogger(a.log), WithCancelOnError(true))

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}

	// Best-effort; the bot works fine without the Telegram menu entry.
	a.handler.RegisterMenu(a.sup.Context())

	if a.pollEnabled {
		if err := a.poll.Start(a.sup.Context()); err != nil {
			return err
		}
	} else {
		a.log.Info("background polling disabled by config")
	}

	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.handler.DispatchLoop(c, a.updates)
	})

	// Hot reload: logging knobs and allow-list membership apply live.
	sub := a.cfgm.Subscribe(8)
	a.sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		for {
			select {
			case <-c.Done():
				return nil
			case newCfg, ok := <-sub:
				if !ok {
					return nil
				}
				a.applyConfig(newCfg)
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	// Signal readiness to systemd; a no-op outside a unit.
	if sent, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.log.Debug("sd_notify failed", logx.Err(err))
	} else if sent {
		a.log.Debug("sd_notify ready sent")
	}

	a.log.Info("app started")
	return nil
}

func (a *App) applyConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}
	a.logs.Apply(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	a.handler.SetAllowed(cfg.Telegram.AllowedUserIDs)
	a.disp.SetRecipients(cfg.Telegram.AllowedUserIDs)
	a.log.Info("config reloaded", logx.Int("allowed_users", len(cfg.Telegram.AllowedUserIDs)))
}

// Done is closed when the app supervisor context is cancelled.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping")
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	// Cancel the run context first so background loops start unwinding.
	a.sup.Cancel()

	// Bounded shutdown steps so one component can't stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		stepCtx := ctx
		var cancel context.CancelFunc
		if max > 0 {
			if dl, ok := ctx.Deadline(); ok {
				if rem := time.Until(dl); rem > 0 && rem < max {
					max = rem
				}
			}
			stepCtx, cancel = context.WithTimeout(ctx, max)
			defer cancel()
		}
		if err := fn(stepCtx); err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
	}

	step("poller", 3*time.Second, func(c context.Context) error { a.poll.Stop(c); return nil })
	step("adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	step("settings", time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	_ = a.logs.Close()
	return nil
}
