package relay

import (
	"net/http"
	"testing"

	"smsrelay/internal/config"
	"smsrelay/internal/device"
)

func testRegistry() *device.Registry {
	return device.NewRegistry(&config.Config{
		DefaultBotToken: "bot-token",
		Devices: map[string]config.DeviceConfig{
			"phone1": {Token: "secret1", ChatID: 100},
			"phone2": {Token: "secret2", ChatID: 200},
		},
	})
}

func headers(kv ...string) http.Header {
	h := http.Header{}
	for i := 0; i+1 < len(kv); i += 2 {
		h.Set(kv[i], kv[i+1])
	}
	return h
}

func TestClassifyAuth(t *testing.T) {
	t.Parallel()
	c := NewClassifier(testRegistry(), "hook-secret")

	tests := []struct {
		name   string
		method string
		path   string
		header http.Header
		body   string
		ok     bool
		kind   EventKind
		device string
	}{
		{name: "bearer ok", method: "POST", path: "/", header: headers("Authorization", "Bearer phone1/secret1"), ok: true, kind: EventHeartbeat, device: "phone1"},
		{name: "path creds ok", method: "POST", path: "/phone1/secret1", ok: true, kind: EventHeartbeat, device: "phone1"},
		{name: "path creds trailing slash", method: "POST", path: "/phone1/secret1/", ok: true, kind: EventHeartbeat, device: "phone1"},
		{name: "get config", method: "GET", path: "/phone1/secret1", ok: true, kind: EventGetConfig, device: "phone1"},
		{name: "wrong token", method: "POST", path: "/phone1/wrong", ok: false},
		{name: "token of other device", method: "POST", path: "/phone1/secret2", ok: false},
		{name: "unknown device", method: "POST", path: "/ghost/secret1", ok: false},
		{name: "no slash in cred", method: "POST", path: "/phone1", ok: false},
		{name: "method not allowed", method: "DELETE", path: "/phone1/secret1", ok: false},
		{name: "empty path GET rejected", method: "GET", path: "/", ok: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := tt.header
			if h == nil {
				h = http.Header{}
			}
			ev, ok := c.Classify(tt.method, tt.path, h, []byte(tt.body))
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if !ok {
				return
			}
			if ev.Kind != tt.kind {
				t.Fatalf("Kind = %v, want %v", ev.Kind, tt.kind)
			}
			if ev.Device != tt.device {
				t.Fatalf("Device = %q, want %q", ev.Device, tt.device)
			}
		})
	}
}

func TestClassifyBodyShapes(t *testing.T) {
	t.Parallel()
	c := NewClassifier(testRegistry(), "")
	h := headers("Authorization", "Bearer phone1/secret1")

	forward := `{"query":{"sender":"+12345","message":{"text":"hello"}}}`
	ev, ok := c.Classify("POST", "/", h, []byte(forward))
	if !ok || ev.Kind != EventForward {
		t.Fatalf("forward body: kind = %v ok = %v", ev.Kind, ok)
	}
	if ev.Sender != "+12345" || ev.Text != "hello" {
		t.Fatalf("forward fields: sender=%q text=%q", ev.Sender, ev.Text)
	}

	status := `{"status":{"battery":73,"charging":true}}`
	ev, ok = c.Classify("POST", "/", h, []byte(status))
	if !ok || ev.Kind != EventStatusReport {
		t.Fatalf("status body: kind = %v ok = %v", ev.Kind, ok)
	}
	if ev.Battery != 73 || !ev.Charging {
		t.Fatalf("status fields: battery=%d charging=%v", ev.Battery, ev.Charging)
	}

	// A body satisfying both shapes classifies as the message-filter
	// variant: precedence is fixed.
	both := `{"query":{"sender":"s","message":{"text":"t"}},"status":{"battery":1,"charging":false}}`
	ev, ok = c.Classify("POST", "/", h, []byte(both))
	if !ok || ev.Kind != EventForward {
		t.Fatalf("overlapping body: kind = %v, want forward", ev.Kind)
	}

	junk := `{"something":"else"}`
	ev, ok = c.Classify("POST", "/", h, []byte(junk))
	if !ok || ev.Kind != EventUnknown {
		t.Fatalf("junk body: kind = %v, want unknown", ev.Kind)
	}
	if string(ev.RawBody) != junk {
		t.Fatalf("RawBody = %q, want verbatim echo", ev.RawBody)
	}

	notJSON := `battery low`
	ev, _ = c.Classify("POST", "/", h, []byte(notJSON))
	if ev.Kind != EventUnknown {
		t.Fatalf("non-json body: kind = %v, want unknown", ev.Kind)
	}
}

func TestClassifyOperatorUpdate(t *testing.T) {
	t.Parallel()
	c := NewClassifier(testRegistry(), "hook-secret")

	update := `{"update_id":1,"message":{"message_id":42,"from":{"id":7,"username":"op"},"chat":{"id":-100},"text":"/info phone1"}}`

	ev, ok := c.Classify("POST", "/", headers(botSecretHeader, "hook-secret"), []byte(update))
	if !ok || ev.Kind != EventOperatorUpdate {
		t.Fatalf("operator update: kind = %v ok = %v", ev.Kind, ok)
	}
	up := ev.Update
	if up.ChatID != -100 || up.UserID != 7 || up.MessageID != 42 || up.Text != "/info phone1" {
		t.Fatalf("unexpected update: %+v", up)
	}

	if _, ok := c.Classify("POST", "/", headers(botSecretHeader, "wrong"), []byte(update)); ok {
		t.Fatal("bad bot secret accepted")
	}
	if _, ok := c.Classify("POST", "/", http.Header{}, []byte(update)); ok {
		t.Fatal("missing bot secret accepted")
	}
	if _, ok := c.Classify("POST", "/", headers(botSecretHeader, "hook-secret"), []byte(`{"update_id":1}`)); ok {
		t.Fatal("update without message accepted")
	}

	// No server secret configured: the operator path is closed entirely.
	closed := NewClassifier(testRegistry(), "")
	if _, ok := closed.Classify("POST", "/", headers(botSecretHeader, ""), []byte(update)); ok {
		t.Fatal("operator path open without configured secret")
	}
}
