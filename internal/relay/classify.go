package relay

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	tele "gopkg.in/telebot.v4"

	"smsrelay/internal/command"
	"smsrelay/internal/device"
)

// botSecretHeader authenticates the operator-update path the same way
// Telegram's webhook secret does.
const botSecretHeader = "X-Telegram-Bot-Api-Secret-Token"

// Classifier authenticates an inbound request and resolves its shape.
//
// Rejection is silent by contract: the router answers every request with the
// same success response, so auth failure is not observable to the caller.
type Classifier struct {
	devices *device.Registry

	mu        sync.RWMutex
	botSecret string
}

func NewClassifier(devices *device.Registry, botSecret string) *Classifier {
	return &Classifier{devices: devices, botSecret: botSecret}
}

// SetBotSecret applies a reloaded operator-path secret.
func (c *Classifier) SetBotSecret(s string) {
	c.mu.Lock()
	c.botSecret = s
	c.mu.Unlock()
}

func (c *Classifier) currentBotSecret() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.botSecret
}

// Classify returns the authenticated event for a request, or ok=false for a
// silent rejection.
//
// Credential extraction order: Authorization "Bearer <device>/<token>", then
// the request path as "<device>/<token>". An empty path on POST without a
// bearer credential falls through to the operator-update path instead.
func (c *Classifier) Classify(method, path string, header http.Header, body []byte) (Event, bool) {
	if method != http.MethodGet && method != http.MethodPost {
		return Event{}, false
	}

	cred := strings.TrimSpace(header.Get("Authorization"))
	cred = strings.TrimPrefix(cred, "Bearer ")
	if cred == "" {
		cred = strings.Trim(path, "/")
		if cred == "" {
			if method == http.MethodPost {
				return c.classifyOperatorUpdate(header, body)
			}
			return Event{}, false
		}
	}

	id, token, ok := strings.Cut(cred, "/")
	if !ok {
		return Event{}, false
	}
	dev, ok := c.devices.Lookup(id)
	if !ok {
		return Event{}, false
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(dev.Token)) != 1 {
		return Event{}, false
	}

	if method == http.MethodGet {
		return Event{Kind: EventGetConfig, Device: dev.ID, Token: token}, true
	}
	if len(body) == 0 {
		return Event{Kind: EventHeartbeat, Device: dev.ID}, true
	}
	return classifyBody(dev.ID, body), true
}

func (c *Classifier) classifyOperatorUpdate(header http.Header, body []byte) (Event, bool) {
	secret := c.currentBotSecret()
	if secret == "" {
		return Event{}, false
	}
	got := header.Get(botSecretHeader)
	if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
		return Event{}, false
	}

	var up tele.Update
	if err := json.Unmarshal(body, &up); err != nil {
		return Event{}, false
	}
	m := up.Message
	if m == nil || m.Chat == nil || m.Sender == nil {
		return Event{}, false
	}
	return Event{
		Kind: EventOperatorUpdate,
		Update: command.Update{
			ChatID:    m.Chat.ID,
			UserID:    m.Sender.ID,
			Username:  m.Sender.Username,
			MessageID: m.ID,
			Text:      m.Text,
		},
	}, true
}

// Body schemas are tried in fixed precedence order; the first one the body
// satisfies wins. This resolves ambiguity between overlapping shapes: a body
// matching both classifies as the message-filter variant.
func classifyBody(devID string, body []byte) Event {
	if sender, text, ok := parseFilterQuery(body); ok {
		return Event{Kind: EventForward, Device: devID, Sender: sender, Text: text}
	}
	if battery, charging, ok := parseStatusReport(body); ok {
		return Event{Kind: EventStatusReport, Device: devID, Battery: battery, Charging: charging}
	}
	return Event{Kind: EventUnknown, Device: devID, RawBody: body}
}

// parseFilterQuery matches the message-filter query shape:
//
//	{"query": {"sender": "...", "message": {"text": "..."}}}
//
// Pointer fields distinguish "absent" from "empty": every leaf must be
// present for the shape to be satisfied.
func parseFilterQuery(body []byte) (sender, text string, ok bool) {
	var q struct {
		Query *struct {
			Sender  *string `json:"sender"`
			Message *struct {
				Text *string `json:"text"`
			} `json:"message"`
		} `json:"query"`
	}
	if err := json.Unmarshal(body, &q); err != nil {
		return "", "", false
	}
	if q.Query == nil || q.Query.Sender == nil || q.Query.Message == nil || q.Query.Message.Text == nil {
		return "", "", false
	}
	return *q.Query.Sender, *q.Query.Message.Text, true
}

// parseStatusReport matches the status-report shape:
//
//	{"status": {"battery": 0..100, "charging": bool}}
func parseStatusReport(body []byte) (battery int, charging bool, ok bool) {
	var s struct {
		Status *struct {
			Battery  *int  `json:"battery"`
			Charging *bool `json:"charging"`
		} `json:"status"`
	}
	if err := json.Unmarshal(body, &s); err != nil {
		return 0, false, false
	}
	if s.Status == nil || s.Status.Battery == nil {
		return 0, false, false
	}
	if s.Status.Charging != nil {
		charging = *s.Status.Charging
	}
	return *s.Status.Battery, charging, true
}
