package relay

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/labstack/echo/v4"

	"smsrelay/internal/command"
	"smsrelay/internal/device"
	"smsrelay/internal/liveness"
	kit "smsrelay/internal/transport"
	logx "smsrelay/pkg/logx"
)

// maxBodyBytes caps inbound payloads. Unknown bodies are echoed back to the
// notification chat, so there is no reason to accept more than this.
const maxBodyBytes = 256 * 1024

// Router composes the classifier, the liveness tracker, the formatter and
// the command dispatcher. Every inbound request gets the same immediate
// success response; everything that can fail happens afterwards on the
// detached runner and degrades to "notification not delivered".
type Router struct {
	log        logx.Logger
	classifier *Classifier
	tracker    *liveness.Tracker
	devices    *device.Registry
	notifier   kit.Notifier
	dispatcher *command.Dispatcher
	runner     *Runner

	mu       sync.RWMutex
	template string
}

func NewRouter(
	classifier *Classifier,
	tracker *liveness.Tracker,
	devices *device.Registry,
	notifier kit.Notifier,
	dispatcher *command.Dispatcher,
	runner *Runner,
	log logx.Logger,
) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Router{
		log:        log,
		classifier: classifier,
		tracker:    tracker,
		devices:    devices,
		notifier:   notifier,
		dispatcher: dispatcher,
		runner:     runner,
	}
}

// SetTemplate applies the (re)loaded config template served on GET.
func (rt *Router) SetTemplate(t string) {
	rt.mu.Lock()
	rt.template = t
	rt.mu.Unlock()
}

func (rt *Router) currentTemplate() string {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return rt.template
}

// Register mounts the single webhook endpoint. The whole path space belongs
// to the relay: path segments may carry credentials.
func (rt *Router) Register(e *echo.Echo) {
	e.Any("/", rt.handle)
	e.Any("/*", rt.handle)
}

// handle serves one inbound request. The HTTP-level outcome is uniform:
// rejected, malformed and fully processed requests all get the same
// response, so nothing is observable to an attacker probing credentials.
func (rt *Router) handle(c echo.Context) error {
	req := c.Request()

	body, err := io.ReadAll(io.LimitReader(req.Body, maxBodyBytes))
	if err != nil {
		return c.NoContent(http.StatusOK)
	}

	ev, ok := rt.classifier.Classify(req.Method, req.URL.Path, req.Header, body)
	if !ok {
		return c.NoContent(http.StatusOK)
	}

	rt.log.Debug("event accepted",
		logx.String("kind", ev.Kind.String()), logx.String("device", ev.Device))

	// Config fetch is the one synchronous response; it still counts as
	// authenticated device activity.
	if ev.Kind == EventGetConfig {
		rt.scheduleRefresh(ev.Device)
		tpl := strings.ReplaceAll(rt.currentTemplate(), "{{credential}}", ev.Device+"/"+ev.Token)
		return c.String(http.StatusOK, tpl)
	}

	rt.Dispatch(ev)
	return c.NoContent(http.StatusOK)
}

// Dispatch schedules the event's downstream effects and returns without
// waiting for them.
func (rt *Router) Dispatch(ev Event) {
	switch ev.Kind {
	case EventOperatorUpdate:
		up := ev.Update
		rt.runner.Go("command", func(ctx context.Context) {
			rt.dispatcher.Handle(ctx, up)
		})
	case EventHeartbeat:
		rt.scheduleRefresh(ev.Device)
	default:
		rt.scheduleRefresh(ev.Device)
		rt.runner.Go("notify."+ev.Kind.String(), func(ctx context.Context) {
			rt.deliver(ctx, ev)
		})
	}
}

// scheduleRefresh records device activity and emits the edge-triggered
// "came back up" alert: whenever the status before the refresh was not
// active, exactly one alert goes out for this refresh call. Concurrent
// refreshes may both observe the stale status and duplicate the alert
// (documented race, tolerated).
func (rt *Router) scheduleRefresh(devID string) {
	rt.runner.Go("liveness.refresh", func(ctx context.Context) {
		prev := rt.tracker.Refresh(ctx, devID)
		if prev == liveness.StatusActive {
			return
		}
		rt.log.Info("device came back up",
			logx.String("device", devID), logx.String("was", prev.String()))

		dev, ok := rt.devices.Lookup(devID)
		if !ok {
			return
		}
		rt.notify(ctx, dev, RenderUp(devID), nil)
		if dev.StickerID != "" {
			if _, err := rt.notifier.SendSticker(ctx, dev.BotToken, dev.Target(), dev.StickerID); err != nil {
				rt.log.Warn("sticker send failed", logx.String("device", devID), logx.Err(err))
			}
		}
	})
}

// deliver renders and sends the notification for a device event.
func (rt *Router) deliver(ctx context.Context, ev Event) {
	dev, ok := rt.devices.Lookup(ev.Device)
	if !ok {
		// Device disappeared from config between classify and delivery.
		rt.log.Warn("device not configured for delivery", logx.String("device", ev.Device))
		return
	}
	if dev.BotToken == "" || dev.ChatID == 0 {
		rt.log.Warn("notification credentials missing",
			logx.String("device", ev.Device), logx.Int64("chat_id", dev.ChatID))
		return
	}

	text := Render(ev)
	if text == "" {
		return
	}
	rt.notify(ctx, dev, text, &kit.SendOptions{ParseMode: kit.ParseModeHTML, DisablePreview: true})
}

func (rt *Router) notify(ctx context.Context, dev device.Device, text string, opt *kit.SendOptions) {
	if opt == nil {
		opt = &kit.SendOptions{ParseMode: kit.ParseModeHTML, DisablePreview: true}
	}
	if _, err := rt.notifier.SendText(ctx, dev.BotToken, dev.Target(), text, opt); err != nil {
		// Logged and not retried.
		rt.log.Warn("notification send failed",
			logx.String("device", dev.ID), logx.Int64("chat_id", dev.ChatID), logx.Err(err))
	}
}

// AlertDown sends the sweep's "down" notification for a device.
func (rt *Router) AlertDown(ctx context.Context, dev device.Device) {
	rt.notify(ctx, dev, RenderDown(dev.ID), nil)
}
