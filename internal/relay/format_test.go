package relay

import (
	"strings"
	"testing"
)

func TestEscapeHTML(t *testing.T) {
	t.Parallel()
	got := escapeHTML(`A&B<script>`)
	want := "A&amp;B&lt;script&gt;"
	if got != want {
		t.Fatalf("escapeHTML = %q, want %q", got, want)
	}
	// '&' first, so entities are not double-escaped.
	if escapeHTML("&lt;") != "&amp;lt;" {
		t.Fatalf("entity input not escaped as literal text: %q", escapeHTML("&lt;"))
	}
}

func TestRenderForward(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name        string
		text        string
		wantCode    string
		wantNoMark  bool
		wantLiteral string
	}{
		{name: "code highlighted", text: "your code is 123456", wantCode: "123456"},
		{name: "no digits", text: "no numbers here", wantNoMark: true},
		{name: "digits without keyword", text: "call me at 555123", wantNoMark: true},
		{name: "keyword chinese", text: "验证码 8842", wantCode: "8842"},
		{name: "hyphen joined", text: "CODE G-123456", wantCode: "G-123456"},
		{name: "too short", text: "code 123", wantNoMark: true},
		{name: "escaped text survives", text: "verify <b>9999</b>", wantCode: "9999", wantLiteral: "&lt;b&gt;"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Render(Event{Kind: EventForward, Device: "phone1", Sender: "Bank", Text: tt.text})
			if !strings.HasPrefix(got, "phone1 <code>Bank</code>\n\n") {
				t.Fatalf("missing header: %q", got)
			}
			if tt.wantNoMark {
				if strings.Contains(got, "<b>[") {
					t.Fatalf("unexpected highlight in %q", got)
				}
				return
			}
			mark := "<b>[<code>" + tt.wantCode + "</code>]</b>"
			if !strings.Contains(got, mark) {
				t.Fatalf("missing highlight %q in %q", mark, got)
			}
			if tt.wantLiteral != "" && !strings.Contains(got, tt.wantLiteral) {
				t.Fatalf("missing escaped literal %q in %q", tt.wantLiteral, got)
			}
		})
	}
}

func TestRenderForwardEscapesSender(t *testing.T) {
	t.Parallel()
	got := Render(Event{Kind: EventForward, Device: "d", Sender: "A&B<script>", Text: "hi"})
	if strings.Contains(strings.TrimPrefix(got, "d "), "<script>") {
		t.Fatalf("raw markup survived: %q", got)
	}
	if !strings.Contains(got, "A&amp;B&lt;script&gt;") {
		t.Fatalf("sender not escaped: %q", got)
	}
}

func TestRenderStatus(t *testing.T) {
	t.Parallel()
	got := Render(Event{Kind: EventStatusReport, Device: "phone1", Battery: 80, Charging: true})
	if got != "⚡ phone1 80% charging" {
		t.Fatalf("charging = %q", got)
	}
	got = Render(Event{Kind: EventStatusReport, Device: "phone1", Battery: 79, Charging: false})
	if got != "🔋 phone1 79% discharging" {
		t.Fatalf("discharging = %q", got)
	}
}

func TestRenderUnknown(t *testing.T) {
	t.Parallel()
	got := Render(Event{Kind: EventUnknown, Device: "d", RawBody: []byte("<xml>&\xff</xml>")})
	if !strings.HasPrefix(got, "d\n\n<pre>") || !strings.HasSuffix(got, "</pre>") {
		t.Fatalf("unexpected frame: %q", got)
	}
	if strings.Contains(got, "<xml>") {
		t.Fatalf("raw markup survived: %q", got)
	}
	if !strings.Contains(got, "�") {
		t.Fatalf("invalid bytes not replaced: %q", got)
	}
}

func TestRenderHeartbeatEmpty(t *testing.T) {
	t.Parallel()
	if got := Render(Event{Kind: EventHeartbeat, Device: "d"}); got != "" {
		t.Fatalf("heartbeat rendered %q, want empty", got)
	}
}
