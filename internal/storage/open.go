package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "smsrelay/pkg/logx"
)

// Store is the persistence API used by the liveness tracker and the
// command dispatcher.
//
// GetLastSeen treats an expired record as absent: absence is meaningful
// (the device reads as Dead).
type Store interface {
	PutLastSeen(ctx context.Context, device string, at, until time.Time) error
	GetLastSeen(ctx context.Context, device string) (at time.Time, ok bool, err error)
	Prune(ctx context.Context) error

	AppendAudit(ctx context.Context, e AuditEntry) error

	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "", "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
