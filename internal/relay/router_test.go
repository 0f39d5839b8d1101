package relay

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"smsrelay/internal/command"
	"smsrelay/internal/device"
	"smsrelay/internal/liveness"
	"smsrelay/internal/push"
	kit "smsrelay/internal/transport"
	logx "smsrelay/pkg/logx"
)

// stubNotifier records sends for async assertions.
type stubNotifier struct {
	mu    sync.Mutex
	texts []string
	sent  chan string
}

func newStubNotifier() *stubNotifier {
	return &stubNotifier{sent: make(chan string, 16)}
}

func (s *stubNotifier) SendText(_ context.Context, _ string, _ kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	s.mu.Lock()
	s.texts = append(s.texts, text)
	s.mu.Unlock()
	select {
	case s.sent <- text:
	default:
	}
	return kit.MessageRef{MessageID: 1}, nil
}

func (s *stubNotifier) EditText(context.Context, string, kit.MessageRef, string, *kit.SendOptions) error {
	return nil
}

func (s *stubNotifier) SendSticker(context.Context, string, kit.ChatTarget, string) (kit.MessageRef, error) {
	return kit.MessageRef{MessageID: 2}, nil
}

func testServer(t *testing.T, startRunner bool) (*echo.Echo, *Router, *stubNotifier, *Runner) {
	t.Helper()
	reg := testRegistry()
	cls := NewClassifier(reg, "")
	tracker := liveness.New(nil, 300*time.Second, logx.Nop())
	fn := newStubNotifier()
	disp := command.NewDispatcher(reg, fn, push.New(time.Second, logx.Nop()), nil, func() string { return "v0" }, logx.Nop())
	runner := NewRunner(2, 64, logx.Nop())
	if startRunner {
		runner.Start(context.Background())
		t.Cleanup(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			runner.Stop(ctx)
		})
	}
	rt := NewRouter(cls, tracker, reg, fn, disp, runner, logx.Nop())

	e := echo.New()
	rt.Register(e)
	return e, rt, fn, runner
}

func do(e *echo.Echo, method, path, body string, hdr map[string]string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

// Rejected and accepted requests must be indistinguishable at the HTTP level.
func TestHandleUniformResponse(t *testing.T) {
	e, _, _, _ := testServer(t, false)

	reqs := []struct {
		name   string
		method string
		path   string
		body   string
	}{
		{name: "valid heartbeat", method: http.MethodPost, path: "/phone1/secret1", body: ""},
		{name: "valid forward", method: http.MethodPost, path: "/phone1/secret1", body: `{"query":{"sender":"a","message":{"text":"b"}}}`},
		{name: "bad token", method: http.MethodPost, path: "/phone1/wrong", body: ""},
		{name: "unknown device", method: http.MethodPost, path: "/ghost/secret1", body: ""},
		{name: "no credential", method: http.MethodPost, path: "/", body: "x"},
		{name: "bad method", method: http.MethodDelete, path: "/phone1/secret1", body: ""},
	}

	for _, r := range reqs {
		t.Run(r.name, func(t *testing.T) {
			rec := do(e, r.method, r.path, r.body, nil)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", rec.Code)
			}
			if rec.Body.Len() != 0 {
				t.Fatalf("body = %q, want empty", rec.Body.String())
			}
		})
	}
}

func TestHandleGetConfigTemplate(t *testing.T) {
	e, rt, _, _ := testServer(t, false)
	rt.SetTemplate("endpoint: https://relay.example/{{credential}}\n")

	rec := do(e, http.MethodGet, "/phone1/secret1", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	want := "endpoint: https://relay.example/phone1/secret1\n"
	if rec.Body.String() != want {
		t.Fatalf("body = %q, want %q", rec.Body.String(), want)
	}

	// Unauthenticated GET must not leak the template.
	rec = do(e, http.MethodGet, "/phone1/wrong", "", nil)
	if rec.Body.Len() != 0 {
		t.Fatalf("template leaked: %q", rec.Body.String())
	}
}

func TestHandleGetConfigViaBearer(t *testing.T) {
	e, rt, _, _ := testServer(t, false)
	rt.SetTemplate("{{credential}}")

	rec := do(e, http.MethodGet, "/", "", map[string]string{"Authorization": "Bearer phone1/secret1"})
	if rec.Body.String() != "phone1/secret1" {
		t.Fatalf("body = %q", rec.Body.String())
	}
}

func TestHeartbeatEmitsUpAlert(t *testing.T) {
	e, _, fn, _ := testServer(t, true)

	// No stored history: the device reads as dead, so the first heartbeat
	// crosses the edge and produces exactly one "up" alert.
	rec := do(e, http.MethodPost, "/phone1/secret1", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	select {
	case text := <-fn.sent:
		if text != "🟢 phone1 is up" {
			t.Fatalf("alert = %q", text)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no up alert delivered")
	}
}

func TestForwardDelivery(t *testing.T) {
	e, _, fn, _ := testServer(t, true)

	body := `{"query":{"sender":"10086","message":{"text":"your code is 123456"}}}`
	do(e, http.MethodPost, "/phone1/secret1", body, nil)

	want := "phone1 <code>10086</code>\n\nyour code is <b>[<code>123456</code>]</b>"
	deadline := time.After(2 * time.Second)
	for {
		select {
		case text := <-fn.sent:
			if text == want {
				return
			}
			// the up alert may arrive first
		case <-deadline:
			fn.mu.Lock()
			defer fn.mu.Unlock()
			t.Fatalf("notification %q never delivered; got %v", want, fn.texts)
		}
	}
}

func TestAlertDown(t *testing.T) {
	_, rt, fn, _ := testServer(t, false)
	rt.AlertDown(context.Background(), device.Device{ID: "phone1", ChatID: 100, BotToken: "b"})

	fn.mu.Lock()
	defer fn.mu.Unlock()
	if len(fn.texts) != 1 || fn.texts[0] != "🔴 phone1 is down" {
		t.Fatalf("texts = %v", fn.texts)
	}
}
