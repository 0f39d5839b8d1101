package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) *Manager {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return NewManager(path)
}

const sampleYAML = `
listen: ":8080"
heartbeat_interval: "120s"
bot_secret_token: "webhook-secret"
allowed_chat_ids: [-1001234]
default_bot_token: "123:abc"
config_template: "endpoint: https://relay.example/{{credential}}"
devices:
  phone1:
    token: "secret1"
    chat_id: 100
    sticker_id: "CAACAgUAAx"
  phone2:
    token: "secret2"
    chat_id: 200
    bot_token: "456:def"
logging:
  level: "info"
  console: true
  file:
    enabled: false
    path: ""
`

func TestParseYAML(t *testing.T) {
	cfg, err := writeConfig(t, sampleYAML).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Listen != ":8080" {
		t.Fatalf("listen = %q", cfg.Listen)
	}
	if cfg.BotSecretToken != "webhook-secret" {
		t.Fatalf("bot_secret_token = %q", cfg.BotSecretToken)
	}
	if len(cfg.AllowedChatIDs) != 1 || cfg.AllowedChatIDs[0] != -1001234 {
		t.Fatalf("allowed_chat_ids = %v", cfg.AllowedChatIDs)
	}

	d1, ok := cfg.Devices["phone1"]
	if !ok || d1.Token != "secret1" || d1.ChatID != 100 || d1.StickerID != "CAACAgUAAx" {
		t.Fatalf("phone1 = %+v, ok = %v", d1, ok)
	}
	if d2 := cfg.Devices["phone2"]; d2.BotToken != "456:def" {
		t.Fatalf("phone2 bot_token = %q", d2.BotToken)
	}

	if got := cfg.Heartbeat(); got != 120*time.Second {
		t.Fatalf("Heartbeat = %v", got)
	}
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	_, err := writeConfig(t, "listen: \":8080\"\nliten_typo: true\ndevices: {}\nlogging:\n  level: info\n  console: true\n  file:\n    enabled: false\n    path: \"\"\n").Parse()
	if err == nil {
		t.Fatal("unknown key should be rejected")
	}
}

func TestHeartbeatDefaults(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want time.Duration
	}{
		{name: "empty", raw: "", want: DefaultHeartbeatInterval},
		{name: "explicit", raw: "90s", want: 90 * time.Second},
		{name: "minutes", raw: "5m", want: 5 * time.Minute},
		{name: "garbage falls back", raw: "soon", want: DefaultHeartbeatInterval},
		{name: "non-positive falls back", raw: "-10s", want: DefaultHeartbeatInterval},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{HeartbeatInterval: tt.raw}
			if got := cfg.Heartbeat(); got != tt.want {
				t.Fatalf("Heartbeat(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestLoadCommitGet(t *testing.T) {
	m := writeConfig(t, sampleYAML)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if m.Get() != cfg {
		t.Fatal("Get should return the committed config")
	}
}

func TestParseDurationOrDefault(t *testing.T) {
	if got, err := ParseDurationOrDefault("f", "", 8*time.Second); err != nil || got != 8*time.Second {
		t.Fatalf("empty = %v, %v", got, err)
	}
	if got, err := ParseDurationOrDefault("f", "3s", 8*time.Second); err != nil || got != 3*time.Second {
		t.Fatalf("3s = %v, %v", got, err)
	}
	if _, err := ParseDurationOrDefault("f", "bogus", 8*time.Second); err == nil {
		t.Fatal("bogus should error")
	}
	if _, err := ParseDurationOrDefault("f", "-10s", 8*time.Second); err == nil {
		t.Fatal("negative should error")
	}
}
