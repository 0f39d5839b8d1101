// Package sweep periodically evaluates every configured device's liveness
// and emits "down" alerts for devices in the inactive window.
package sweep

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"smsrelay/internal/device"
	"smsrelay/internal/liveness"
	logx "smsrelay/pkg/logx"
)

type Config struct {
	Enabled bool
	// Schedule is a cron spec; empty means every heartbeat interval.
	Schedule string
}

// Service drives the periodic sweep. Exactly Inactive triggers the alert:
// Dead devices already alerted while passing through the inactive window
// and are not re-alerted every run. The sweep is deliberately not
// idempotent; running it twice against an inactive device alerts twice.
type Service struct {
	log     logx.Logger
	tracker *liveness.Tracker
	devices *device.Registry
	alert   func(ctx context.Context, dev device.Device)
	prune   func(ctx context.Context) error // optional store cleanup

	mu   sync.Mutex
	c    *cron.Cron
	spec string
}

func New(tracker *liveness.Tracker, devices *device.Registry, alert func(context.Context, device.Device), prune func(context.Context) error, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{log: log, tracker: tracker, devices: devices, alert: alert, prune: prune}
}

func resolveSpec(cfg Config, heartbeat time.Duration) string {
	spec := strings.TrimSpace(cfg.Schedule)
	if spec == "" {
		spec = "@every " + heartbeat.String()
	}
	return spec
}

// Apply starts, restarts or stops the cron entry to match cfg.
func (s *Service) Apply(cfg Config, heartbeat time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !cfg.Enabled {
		s.stopLocked(context.Background())
		return
	}

	spec := resolveSpec(cfg, heartbeat)
	if s.c != nil && spec == s.spec {
		return
	}
	s.stopLocked(context.Background())

	c := cron.New()
	if _, err := c.AddFunc(spec, s.run); err != nil {
		s.log.Error("invalid sweep schedule", logx.String("spec", spec), logx.Err(err))
		return
	}
	c.Start()
	s.c = c
	s.spec = spec
	s.log.Info("sweep scheduled", logx.String("spec", spec))
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked(ctx)
}

func (s *Service) stopLocked(ctx context.Context) {
	if s.c == nil {
		return
	}
	stopCtx := s.c.Stop()
	// Let a running sweep finish briefly; it is best-effort anyway.
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
	}
	s.c = nil
	s.spec = ""
}

func (s *Service) run() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	s.Run(ctx)
}

// Run performs one sweep pass.
func (s *Service) Run(ctx context.Context) {
	devs := s.devices.All()
	ids := make([]string, len(devs))
	byID := make(map[string]device.Device, len(devs))
	for i, d := range devs {
		ids[i] = d.ID
		byID[d.ID] = d
	}

	for _, st := range s.tracker.Sweep(ctx, ids) {
		if st.Status != liveness.StatusInactive {
			continue
		}
		s.log.Info("device inactive", logx.String("device", st.Device))
		if s.alert != nil {
			s.alert(ctx, byID[st.Device])
		}
	}

	if s.prune != nil {
		if err := s.prune(ctx); err != nil {
			s.log.Debug("store prune failed", logx.Err(err))
		}
	}
}
