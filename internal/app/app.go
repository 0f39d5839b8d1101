// Package app wires the relay together: config, logging, storage, the
// webhook server, the liveness sweep and the outbound adapters.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"smsrelay/internal/command"
	"smsrelay/internal/config"
	"smsrelay/internal/device"
	"smsrelay/internal/liveness"
	"smsrelay/internal/push"
	"smsrelay/internal/relay"
	"smsrelay/internal/storage"
	"smsrelay/internal/sweep"
	kit "smsrelay/internal/transport"
	"smsrelay/internal/transport/telegram"
	"smsrelay/pkg/buildinfo"
	logx "smsrelay/pkg/logx"
)

type App struct {
	log    logx.Logger
	logSvc *logx.Service

	mgr    *config.Manager
	sub    chan *config.Config
	sender *logSender

	store      storage.Store
	adapter    *telegram.Adapter
	registry   *device.Registry
	tracker    *liveness.Tracker
	runner     *relay.Runner
	classifier *relay.Classifier
	dispatcher *command.Dispatcher
	router     *relay.Router
	sweeper    *sweep.Service

	e *echo.Echo

	wg sync.WaitGroup
}

func New(cfgPath string) (*App, error) {
	mgr := config.NewManager(cfgPath)
	cfg, err := mgr.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	sender := &logSender{}
	logSvc, log := logx.New(logConfig(cfg), sender)
	mgr.SetLogger(log.With(logx.String("comp", "config")))
	mgr.SetValidator(validate)

	if err := validate(context.Background(), cfg); err != nil {
		logSvc.Close()
		return nil, err
	}

	tgTimeout, _ := config.ParseDurationOrDefault("telegram.timeout", cfg.Telegram.Timeout, 8*time.Second)
	adapter := telegram.New(telegram.Config{Timeout: tgTimeout}, log.With(logx.String("comp", "telegram")))
	sender.adapter = adapter
	sender.setToken(cfg.DefaultBotToken)

	storeCfg, err := storageConfig(cfg)
	if err != nil {
		logSvc.Close()
		return nil, err
	}
	store, err := storage.Open(storeCfg, log.With(logx.String("comp", "storage")))
	if err != nil {
		logSvc.Close()
		return nil, fmt.Errorf("open storage: %w", err)
	}

	registry := device.NewRegistry(cfg)
	tracker := liveness.New(store, cfg.Heartbeat(), log.With(logx.String("comp", "liveness")))
	runner := relay.NewRunner(4, 512, log.With(logx.String("comp", "runner")))
	pusher := push.New(tgTimeout, log.With(logx.String("comp", "push")))
	dispatcher := command.NewDispatcher(registry, adapter, pusher, store, buildinfo.Summary, log.With(logx.String("comp", "command")))
	classifier := relay.NewClassifier(registry, cfg.BotSecretToken)
	router := relay.NewRouter(classifier, tracker, registry, adapter, dispatcher, runner, log.With(logx.String("comp", "router")))

	sweeper := sweep.New(tracker, registry, router.AlertDown, pruneFunc(store), log.With(logx.String("comp", "sweep")))

	a := &App{
		log:        log,
		logSvc:     logSvc,
		mgr:        mgr,
		sender:     sender,
		store:      store,
		adapter:    adapter,
		registry:   registry,
		tracker:    tracker,
		runner:     runner,
		classifier: classifier,
		dispatcher: dispatcher,
		router:     router,
		sweeper:    sweeper,
	}
	a.e = a.newEcho()
	a.apply(cfg)
	return a, nil
}

func validate(_ context.Context, cfg *config.Config) error {
	if strings.TrimSpace(cfg.Listen) == "" {
		return errors.New("listen address is required")
	}
	if _, err := config.ParseDurationField("heartbeat_interval", cfg.HeartbeatInterval); err != nil {
		return err
	}
	for id, d := range cfg.Devices {
		if strings.TrimSpace(d.Token) == "" {
			return fmt.Errorf("devices.%s: token is required", id)
		}
	}
	return nil
}

func logConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			ChatID:     cfg.Telegram.LogChatID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

func storageConfig(cfg *config.Config) (storage.Config, error) {
	busy, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return storage.Config{}, err
	}
	path := strings.TrimSpace(cfg.Storage.Path)
	if path == "" {
		path = "./smsrelay_store"
	}
	return storage.Config{Driver: cfg.Storage.Driver, Path: path, BusyTimeout: busy}, nil
}

func pruneFunc(store storage.Store) func(context.Context) error {
	if store == nil {
		return nil
	}
	return store.Prune
}

func (a *App) newEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(a.requestLog)
	a.router.Register(e)
	return e
}

// requestLog traces inbound requests without leaking credentials: paths may
// carry device tokens, so only the method and outcome are recorded.
func (a *App) requestLog(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		a.log.Debug("request",
			logx.String("method", c.Request().Method),
			logx.Int("status", c.Response().Status),
			logx.Duration("took", time.Since(start)))
		return err
	}
}

// apply pushes a (re)loaded config into every component that supports hot
// reload. The listen address and the storage driver are fixed at startup.
func (a *App) apply(cfg *config.Config) {
	a.registry.Apply(cfg)
	a.classifier.SetBotSecret(cfg.BotSecretToken)
	a.tracker.SetHeartbeat(cfg.Heartbeat())
	a.router.SetTemplate(cfg.ConfigTemplate)
	a.dispatcher.SetAccess(command.Access{
		ChatIDs:  cfg.AllowedChatIDs,
		UserIDs:  cfg.AllowedUserIDs,
		BotToken: cfg.DefaultBotToken,
	})
	a.sender.setToken(cfg.DefaultBotToken)
	a.logSvc.Apply(logConfig(cfg))
	a.sweeper.Apply(sweep.Config{Enabled: cfg.Sweep.Enabled, Schedule: cfg.Sweep.Schedule}, cfg.Heartbeat())
}

func (a *App) Start(ctx context.Context) error {
	cfg := a.mgr.Get()

	a.runner.Start(ctx)

	// Serve the webhook endpoint.
	listen := cfg.Listen
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.e.Start(listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("http server stopped", logx.Err(err))
		}
	}()

	// Config hot reload.
	a.sub = a.mgr.Subscribe(4)
	sub := a.sub
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		for c := range sub {
			a.apply(c)
		}
	}()
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		_ = a.mgr.Watch(ctx)
	}()

	a.log.Info("relay started",
		logx.String("listen", listen),
		logx.Int("devices", a.registry.Len()),
		logx.Duration("heartbeat", cfg.Heartbeat()))

	// Best-effort: tells systemd we're ready; a no-op elsewhere.
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	sctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := a.e.Shutdown(sctx); err != nil {
		a.log.Warn("http shutdown", logx.Err(err))
	}

	a.sweeper.Stop(ctx)
	a.runner.Stop(ctx)

	if a.sub != nil {
		a.mgr.Unsubscribe(a.sub)
		a.sub = nil
	}
	a.wg.Wait()

	if a.store != nil {
		_ = a.store.Close()
	}
	a.log.Info("relay stopped")
	return a.logSvc.Close()
}

// logSender bridges logx's telegram sink to the adapter without giving logx
// access to bot credentials.
type logSender struct {
	adapter *telegram.Adapter

	mu    sync.RWMutex
	token string
}

func (s *logSender) setToken(t string) {
	s.mu.Lock()
	s.token = t
	s.mu.Unlock()
}

func (s *logSender) SendLog(ctx context.Context, chatID int64, text string) error {
	s.mu.RLock()
	tok := s.token
	s.mu.RUnlock()
	if s.adapter == nil || tok == "" || chatID == 0 {
		return nil
	}
	_, err := s.adapter.SendText(ctx, tok, kit.ChatTarget{ChatID: chatID}, text, &kit.SendOptions{DisablePreview: true})
	return err
}
