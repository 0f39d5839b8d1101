package device

import (
	"testing"

	"smsrelay/internal/config"
)

func TestApplyResolvesBotToken(t *testing.T) {
	reg := NewRegistry(&config.Config{
		DefaultBotToken: "default-bot",
		Devices: map[string]config.DeviceConfig{
			"phone1": {Token: "secret1", ChatID: 100},
			"phone2": {Token: "secret2", ChatID: 200, BotToken: "own-bot"},
		},
	})

	d1, ok := reg.Lookup("phone1")
	if !ok || d1.BotToken != "default-bot" {
		t.Fatalf("phone1 = %+v, ok = %v", d1, ok)
	}
	d2, _ := reg.Lookup("phone2")
	if d2.BotToken != "own-bot" {
		t.Fatalf("phone2 bot token = %q", d2.BotToken)
	}
}

func TestApplySkipsIncompleteEntries(t *testing.T) {
	reg := NewRegistry(&config.Config{Devices: map[string]config.DeviceConfig{
		"phone1":  {Token: "secret1", ChatID: 100},
		"notoken": {ChatID: 200},
		"  ":      {Token: "secret3", ChatID: 300},
	}})
	if reg.Len() != 1 {
		t.Fatalf("Len = %d, want 1", reg.Len())
	}
	if _, ok := reg.Lookup("notoken"); ok {
		t.Fatal("tokenless device should not be registered")
	}
}

func TestApplyReplacesWholeSet(t *testing.T) {
	reg := NewRegistry(&config.Config{Devices: map[string]config.DeviceConfig{
		"old": {Token: "t", ChatID: 1},
	}})
	reg.Apply(&config.Config{Devices: map[string]config.DeviceConfig{
		"new": {Token: "t", ChatID: 2},
	}})

	if _, ok := reg.Lookup("old"); ok {
		t.Fatal("stale device survived Apply")
	}
	if _, ok := reg.Lookup("new"); !ok {
		t.Fatal("new device missing after Apply")
	}
}

func TestAllSorted(t *testing.T) {
	reg := NewRegistry(&config.Config{Devices: map[string]config.DeviceConfig{
		"c": {Token: "t", ChatID: 3},
		"a": {Token: "t", ChatID: 1},
		"b": {Token: "t", ChatID: 2},
	}})
	all := reg.All()
	if len(all) != 3 || all[0].ID != "a" || all[1].ID != "b" || all[2].ID != "c" {
		t.Fatalf("All = %v", all)
	}
}

func TestTarget(t *testing.T) {
	d := Device{ID: "phone1", ChatID: 42}
	if got := d.Target(); got.ChatID != 42 {
		t.Fatalf("Target = %+v", got)
	}
}
