// Package command parses operator commands arriving on the chat channel
// and orchestrates their effects. The command set is fixed and small;
// anything unrecognized, or anything from an untrusted principal, is a
// silent no-op.
package command

import (
	"context"
	"strings"
	"sync"
	"time"

	"smsrelay/internal/device"
	"smsrelay/internal/push"
	"smsrelay/internal/storage"
	kit "smsrelay/internal/transport"
	logx "smsrelay/pkg/logx"
)

// Update is an inbound operator chat message.
type Update struct {
	ChatID    int64
	UserID    int64
	Username  string
	MessageID int
	Text      string
}

// Access is the operator trust configuration: the chat allow-list, the
// optional user allow-list, and the bot credential used for replies.
type Access struct {
	ChatIDs  []int64
	UserIDs  []int64
	BotToken string
}

type Dispatcher struct {
	log      logx.Logger
	devices  *device.Registry
	notifier kit.Notifier
	push     *push.Client
	store    storage.Store // may be nil
	version  func() string

	mu    sync.RWMutex
	chats map[int64]struct{}
	users map[int64]struct{}
	token string
}

func NewDispatcher(devices *device.Registry, notifier kit.Notifier, pusher *push.Client, store storage.Store, version func() string, log logx.Logger) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Dispatcher{
		log:      log,
		devices:  devices,
		notifier: notifier,
		push:     pusher,
		store:    store,
		version:  version,
		chats:    map[int64]struct{}{},
		users:    map[int64]struct{}{},
	}
}

// SetAccess applies (re)loaded trust configuration.
func (d *Dispatcher) SetAccess(a Access) {
	chats := make(map[int64]struct{}, len(a.ChatIDs))
	for _, id := range a.ChatIDs {
		chats[id] = struct{}{}
	}
	users := make(map[int64]struct{}, len(a.UserIDs))
	for _, id := range a.UserIDs {
		users[id] = struct{}{}
	}

	d.mu.Lock()
	d.chats = chats
	d.users = users
	d.token = a.BotToken
	d.mu.Unlock()
}

// authorized checks the chat allow-list and, when a user allow-list is
// configured, the user allow-list too.
func (d *Dispatcher) authorized(up Update) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if _, ok := d.chats[up.ChatID]; !ok {
		return false
	}
	if len(d.users) > 0 {
		if _, ok := d.users[up.UserID]; !ok {
			return false
		}
	}
	return true
}

func (d *Dispatcher) botToken() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.token
}

// Handle runs one operator update to completion. Unauthorized updates and
// unrecognized commands produce no response at all.
func (d *Dispatcher) Handle(ctx context.Context, up Update) {
	if !d.authorized(up) {
		d.log.Debug("operator update ignored (not allowed)",
			logx.Int64("chat_id", up.ChatID), logx.Int64("user_id", up.UserID))
		return
	}

	fields := strings.Fields(up.Text)
	if len(fields) == 0 {
		return
	}
	cmd, _, _ := strings.Cut(fields[0], "@") // strip @botname suffix
	args := fields[1:]

	started := time.Now()
	switch cmd {
	case "/version":
		d.reply(ctx, up, d.version())
		d.audit(up, cmd, "", true, "", started)
	case "/info":
		d.handleInfo(ctx, up, args, started)
	default:
		// silently ignored
	}
}

// handleInfo validates the target device and runs the send -> act -> edit
// sequence: a placeholder message is sent, the remote command goes out over
// the out-of-band transport, and the placeholder is edited in place. Only
// the message id returned by the initial send is ever edited.
func (d *Dispatcher) handleInfo(ctx context.Context, up Update, args []string, started time.Time) {
	if len(args) == 0 {
		d.reply(ctx, up, "Usage: /info <device>")
		d.audit(up, "/info", "", false, "missing argument", started)
		return
	}
	name := args[0]

	dev, ok := d.devices.Lookup(name)
	if !ok {
		d.reply(ctx, up, "Device not found")
		d.audit(up, "/info", name, false, "device not found", started)
		return
	}
	if dev.PushURL == "" {
		d.reply(ctx, up, "Device has no command transport configured")
		d.audit(up, "/info", name, false, "push not configured", started)
		return
	}

	to := kit.ChatTarget{ChatID: up.ChatID}
	ref, err := d.notifier.SendText(ctx, d.botToken(), to, "Sending command to "+dev.ID+"...", nil)
	if err != nil {
		d.log.Warn("placeholder send failed", logx.String("device", dev.ID), logx.Err(err))
		d.audit(up, "/info", name, false, "placeholder send failed", started)
		return
	}

	pushErr := d.push.SendCommand(ctx, dev, "status")

	text := "Requested status from " + dev.ID
	if pushErr != nil {
		d.log.Warn("command push failed", logx.String("device", dev.ID), logx.Err(pushErr))
		text = "Failed to send command to " + dev.ID
	}
	if err := d.notifier.EditText(ctx, d.botToken(), ref, text, nil); err != nil {
		d.log.Warn("placeholder edit failed", logx.String("device", dev.ID), logx.Err(err))
	}
	d.audit(up, "/info", name, pushErr == nil, errString(pushErr), started)
}

func (d *Dispatcher) reply(ctx context.Context, up Update, text string) {
	to := kit.ChatTarget{ChatID: up.ChatID}
	if _, err := d.notifier.SendText(ctx, d.botToken(), to, text, nil); err != nil {
		d.log.Warn("reply failed", logx.Int64("chat_id", up.ChatID), logx.Err(err))
	}
}

func (d *Dispatcher) audit(up Update, cmd, target string, ok bool, errMsg string, started time.Time) {
	if d.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := d.store.AppendAudit(ctx, storage.AuditEntry{
		At:       started,
		ChatID:   up.ChatID,
		UserID:   up.UserID,
		Username: up.Username,
		Command:  cmd,
		Target:   target,
		OK:       ok,
		Error:    errMsg,
		TookMS:   time.Since(started).Milliseconds(),
	})
	if err != nil {
		d.log.Debug("audit append failed", logx.Err(err))
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
