package sweep

import (
	"context"
	"testing"
	"time"

	"smsrelay/internal/config"
	"smsrelay/internal/device"
	"smsrelay/internal/liveness"
	"smsrelay/internal/storage"
	logx "smsrelay/pkg/logx"
)

type seenStore struct {
	seen map[string]time.Time
}

func (s *seenStore) PutLastSeen(_ context.Context, dev string, at, _ time.Time) error {
	s.seen[dev] = at
	return nil
}

func (s *seenStore) GetLastSeen(_ context.Context, dev string) (time.Time, bool, error) {
	at, ok := s.seen[dev]
	return at, ok, nil
}

func (s *seenStore) Prune(context.Context) error { return nil }
func (s *seenStore) AppendAudit(context.Context, storage.AuditEntry) error {
	return nil
}
func (s *seenStore) Close() error { return nil }

func TestRunAlertsOnExactlyInactive(t *testing.T) {
	const h = 10 * time.Second
	now := time.Now()

	store := &seenStore{seen: map[string]time.Time{
		"fresh":    now.Add(-2 * time.Second),  // active
		"stale":    now.Add(-18 * time.Second), // inactive
		"longgone": now.Add(-60 * time.Second), // dead
	}}
	tracker := liveness.New(store, h, logx.Nop())

	reg := device.NewRegistry(&config.Config{Devices: map[string]config.DeviceConfig{
		"fresh":    {Token: "t1", ChatID: 1},
		"stale":    {Token: "t2", ChatID: 2},
		"longgone": {Token: "t3", ChatID: 3},
	}})

	var alerted []string
	svc := New(tracker, reg, func(_ context.Context, d device.Device) {
		alerted = append(alerted, d.ID)
	}, nil, logx.Nop())

	svc.Run(context.Background())
	if len(alerted) != 1 || alerted[0] != "stale" {
		t.Fatalf("alerted = %v, want [stale]", alerted)
	}
}

func TestRunIsNotIdempotent(t *testing.T) {
	const h = 10 * time.Second
	store := &seenStore{seen: map[string]time.Time{
		"stale": time.Now().Add(-18 * time.Second),
	}}
	tracker := liveness.New(store, h, logx.Nop())
	reg := device.NewRegistry(&config.Config{Devices: map[string]config.DeviceConfig{
		"stale": {Token: "t", ChatID: 1},
	}})

	var count int
	svc := New(tracker, reg, func(context.Context, device.Device) { count++ }, nil, logx.Nop())

	svc.Run(context.Background())
	svc.Run(context.Background())
	if count != 2 {
		t.Fatalf("alert count = %d, want 2 (one per pass)", count)
	}
}

func TestRunCallsPrune(t *testing.T) {
	store := &seenStore{seen: map[string]time.Time{}}
	tracker := liveness.New(store, 10*time.Second, logx.Nop())
	reg := device.NewRegistry(&config.Config{})

	var pruned bool
	svc := New(tracker, reg, nil, func(context.Context) error {
		pruned = true
		return nil
	}, logx.Nop())

	svc.Run(context.Background())
	if !pruned {
		t.Fatal("prune was not invoked")
	}
}

func TestResolveSpecDefaultsToHeartbeat(t *testing.T) {
	if got := resolveSpec(Config{}, 300*time.Second); got != "@every 5m0s" {
		t.Fatalf("spec = %q", got)
	}
	if got := resolveSpec(Config{Schedule: "*/5 * * * *"}, 300*time.Second); got != "*/5 * * * *" {
		t.Fatalf("spec = %q", got)
	}
}
