// Package liveness classifies device aliveness from elapsed time since the
// last recorded activity. Status is derived on every evaluation; nothing
// stores "previous status" or "alert already sent".
package liveness

import (
	"context"
	"sync"
	"time"

	"smsrelay/internal/storage"
	logx "smsrelay/pkg/logx"
)

type Status int

const (
	StatusActive Status = iota
	StatusInactive
	StatusDead
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusInactive:
		return "inactive"
	case StatusDead:
		return "dead"
	default:
		return "unknown"
	}
}

// Tracker evaluates and records device activity against the store.
//
// Thresholds, with H = heartbeat interval:
//
//	elapsed < 1.5H          active
//	1.5H <= elapsed < 2.5H  inactive
//	elapsed >= 2.5H         dead (same horizon as the record TTL)
//
// Refresh is plain read-then-write: two concurrent refreshes for the same
// device may both observe a stale non-active previous status and the caller
// may emit a duplicate "up" alert. Tolerated; whichever write lands last
// determines the stored timestamp.
type Tracker struct {
	store storage.Store
	log   logx.Logger

	mu        sync.RWMutex
	heartbeat time.Duration

	now func() time.Time
}

func New(store storage.Store, heartbeat time.Duration, log logx.Logger) *Tracker {
	if heartbeat <= 0 {
		heartbeat = 300 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Tracker{store: store, heartbeat: heartbeat, log: log, now: time.Now}
}

// SetHeartbeat applies a reloaded heartbeat interval.
func (t *Tracker) SetHeartbeat(d time.Duration) {
	if d <= 0 {
		return
	}
	t.mu.Lock()
	t.heartbeat = d
	t.mu.Unlock()
}

func (t *Tracker) hb() time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.heartbeat
}

// Status reads the device's last activity and classifies it.
// A missing or expired record reads as dead; so does a store failure
// (logged; the relay degrades rather than erroring).
func (t *Tracker) Status(ctx context.Context, device string) Status {
	if t.store == nil {
		return StatusDead
	}
	at, ok, err := t.store.GetLastSeen(ctx, device)
	if err != nil {
		t.log.Warn("last-seen read failed", logx.String("device", device), logx.Err(err))
		return StatusDead
	}
	if !ok {
		return StatusDead
	}

	h := t.hb()
	elapsed := t.now().Sub(at)
	switch {
	case elapsed < h*3/2:
		return StatusActive
	case elapsed < h*5/2:
		return StatusInactive
	default:
		return StatusDead
	}
}

// Refresh records activity now and returns the status as it was BEFORE the
// write. A non-active previous status means the device just came back up;
// the caller owns the resulting alert.
func (t *Tracker) Refresh(ctx context.Context, device string) Status {
	prev := t.Status(ctx, device)
	if t.store == nil {
		return prev
	}

	now := t.now()
	until := now.Add(t.hb() * 5 / 2)
	if err := t.store.PutLastSeen(ctx, device, now, until); err != nil {
		t.log.Warn("last-seen write failed", logx.String("device", device), logx.Err(err))
	}
	return prev
}

type DeviceStatus struct {
	Device string
	Status Status
}

// Sweep evaluates every given device. The caller alerts on exactly
// StatusInactive; dead devices are not re-alerted. Running the sweep at
// cadence H keeps duplicate "down" alerts bounded (not eliminated).
func (t *Tracker) Sweep(ctx context.Context, devices []string) []DeviceStatus {
	out := make([]DeviceStatus, 0, len(devices))
	for _, d := range devices {
		out = append(out, DeviceStatus{Device: d, Status: t.Status(ctx, d)})
	}
	return out
}
