package relay

import (
	"fmt"
	"regexp"
	"strings"
)

// Code extraction, compiled once at startup. The gate regex decides whether
// the message talks about a verification code at all; the code regex then
// extracts the first 4-8 digit run (optionally with one leading alphanumeric
// joined by a hyphen) bounded by non-digits or string edges.
var (
	reHasCode = regexp.MustCompile(`验证码|校验码|交易码|[Cc](?:ODE|ode)|[Vv](?:ERIFY|erify|ERIFICATION|erification)`)
	reCode    = regexp.MustCompile(`(?:^|[^0-9])((?:[0-9A-Za-z]-)?[0-9]{4,8})(?:$|[^0-9])`)
)

// escapeHTML escapes user-controlled text for Telegram HTML parse mode.
// Order matters: '&' first so inserted entities aren't double-escaped.
func escapeHTML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}

// Render produces the outbound HTML markup for an event. Heartbeats and
// operator updates have no notification of their own; only a liveness
// transition or the command dispatcher respond to those.
//
// Every user-controlled substring is escaped before it is embedded in
// markup. This is the sole injection-safety boundary in the system.
func Render(ev Event) string {
	switch ev.Kind {
	case EventForward:
		return renderForward(ev.Device, ev.Sender, ev.Text)
	case EventStatusReport:
		return renderStatus(ev.Device, ev.Battery, ev.Charging)
	case EventUnknown:
		return ev.Device + "\n\n<pre>" + escapeHTML(lossyText(ev.RawBody)) + "</pre>"
	default:
		return ""
	}
}

func renderForward(dev, sender, text string) string {
	return dev + " <code>" + escapeHTML(sender) + "</code>\n\n" + highlightCode(text)
}

// highlightCode escapes text and, when a verification code is present,
// brackets the first match: <b>[<code>123456</code>]</b>.
func highlightCode(text string) string {
	if !reHasCode.MatchString(text) {
		return escapeHTML(text)
	}
	idx := reCode.FindStringSubmatchIndex(text)
	if idx == nil {
		return escapeHTML(text)
	}
	start, end := idx[2], idx[3]
	return escapeHTML(text[:start]) +
		"<b>[<code>" + escapeHTML(text[start:end]) + "</code>]</b>" +
		escapeHTML(text[end:])
}

func renderStatus(dev string, battery int, charging bool) string {
	emoji, word := "🔋", "discharging"
	if charging {
		emoji, word = "⚡", "charging"
	}
	return fmt.Sprintf("%s %s %d%% %s", emoji, dev, battery, word)
}

// RenderUp and RenderDown are the liveness transition alerts.
func RenderUp(dev string) string   { return "🟢 " + dev + " is up" }
func RenderDown(dev string) string { return "🔴 " + dev + " is down" }

// lossyText decodes body bytes as text, replacing invalid UTF-8.
func lossyText(b []byte) string {
	return strings.ToValidUTF8(string(b), "�")
}
