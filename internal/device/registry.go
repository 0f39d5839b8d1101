// Package device holds the read-only credential registry. Devices are
// provisioned out of band (config file); the relay never creates or
// deletes them, it only reads credentials and tracks liveness.
package device

import (
	"sort"
	"strings"
	"sync"

	"smsrelay/internal/config"
	kit "smsrelay/internal/transport"
)

type Device struct {
	ID     string
	Token  string
	ChatID int64

	// BotToken is already resolved against the default credential.
	BotToken string

	PushURL   string
	PushToken string
	StickerID string
}

// Target is the device's notification chat.
func (d Device) Target() kit.ChatTarget { return kit.ChatTarget{ChatID: d.ChatID} }

// Registry is a hot-swappable view over the configured device set.
// Apply replaces the whole set; lookups never observe a partial update.
type Registry struct {
	mu      sync.RWMutex
	devices map[string]Device
}

func NewRegistry(cfg *config.Config) *Registry {
	r := &Registry{devices: map[string]Device{}}
	if cfg != nil {
		r.Apply(cfg)
	}
	return r
}

func (r *Registry) Apply(cfg *config.Config) {
	next := make(map[string]Device, len(cfg.Devices))
	for id, dc := range cfg.Devices {
		id = strings.TrimSpace(id)
		if id == "" || strings.TrimSpace(dc.Token) == "" {
			continue
		}
		bot := strings.TrimSpace(dc.BotToken)
		if bot == "" {
			bot = strings.TrimSpace(cfg.DefaultBotToken)
		}
		next[id] = Device{
			ID:        id,
			Token:     dc.Token,
			ChatID:    dc.ChatID,
			BotToken:  bot,
			PushURL:   strings.TrimSpace(dc.PushURL),
			PushToken: dc.PushToken,
			StickerID: strings.TrimSpace(dc.StickerID),
		}
	}

	r.mu.Lock()
	r.devices = next
	r.mu.Unlock()
}

func (r *Registry) Lookup(id string) (Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.devices[id]
	return d, ok
}

// All returns the device set sorted by id for stable sweep order.
func (r *Registry) All() []Device {
	r.mu.RLock()
	out := make([]Device, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, d)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}
