package config

import (
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DatabasePath != "./data/familycal.db" || cfg.ServerAddr != ":8080" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.Timezone.String() != "Europe/Moscow" {
		t.Fatalf("Timezone = %s, want Europe/Moscow", cfg.Timezone)
	}
	if cfg.ExpandMaxCount != 1000 || cfg.WarmupHorizonDays != 14 {
		t.Fatalf("ExpandMaxCount = %d, WarmupHorizonDays = %d", cfg.ExpandMaxCount, cfg.WarmupHorizonDays)
	}
	if cfg.BotEnabled() || cfg.CalDAVEnabled() {
		t.Fatal("optional integrations enabled without credentials")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("TIMEZONE", "Asia/Yekaterinburg")
	t.Setenv("FAMILY_IDS", "ivanovs,petrovs")
	t.Setenv("EXPAND_MAX_COUNT", "50")
	t.Setenv("CALDAV_USERNAME", "me")
	t.Setenv("CALDAV_PASSWORD", "secret")
	t.Setenv("CALDAV_CALENDAR", "/cal/home/")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Timezone.String() != "Asia/Yekaterinburg" {
		t.Fatalf("Timezone = %s", cfg.Timezone)
	}
	if len(cfg.FamilyIDs) != 2 || cfg.FamilyIDs[1] != "petrovs" {
		t.Fatalf("FamilyIDs = %v", cfg.FamilyIDs)
	}
	if cfg.ExpandMaxCount != 50 {
		t.Fatalf("ExpandMaxCount = %d", cfg.ExpandMaxCount)
	}
	if !cfg.CalDAVEnabled() {
		t.Fatal("CalDAV not enabled with full credentials")
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"bad timezone", map[string]string{"TIMEZONE": "Mars/Olympus"}},
		{"zero max count", map[string]string{"EXPAND_MAX_COUNT": "0"}},
		{"not a number", map[string]string{"EXPAND_MAX_COUNT": "many"}},
		{"bot without family", map[string]string{"TELEGRAM_BOT_TOKEN": "123:abc"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
