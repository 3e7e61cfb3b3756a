package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Server.Port)
	}
	if cfg.Retention.Days != 30 {
		t.Errorf("Retention.Days = %d, want 30", cfg.Retention.Days)
	}
	if cfg.Retention.SweepIntervalMin != 60 {
		t.Errorf("Retention.SweepIntervalMin = %d, want 60", cfg.Retention.SweepIntervalMin)
	}
	if cfg.Notify.WebhookURL != "" {
		t.Errorf("Notify.WebhookURL = %q, want empty", cfg.Notify.WebhookURL)
	}
	if cfg.Database.MaxConns != 10 {
		t.Errorf("Database.MaxConns = %d, want 10", cfg.Database.MaxConns)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("RETENTION_DAYS", "7")
	t.Setenv("FEEDBACK_WEBHOOK_URL", "https://hooks.example.com/feedback")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != "9999" {
		t.Errorf("Port = %q, want 9999", cfg.Server.Port)
	}
	if cfg.Retention.Days != 7 {
		t.Errorf("Retention.Days = %d, want 7", cfg.Retention.Days)
	}
	if cfg.Notify.WebhookURL != "https://hooks.example.com/feedback" {
		t.Errorf("Notify.WebhookURL = %q", cfg.Notify.WebhookURL)
	}
}

func TestDSN(t *testing.T) {
	c := DatabaseConfig{
		Host: "db", Port: "5432", User: "app", Password: "secret",
		DBName: "poplygo", SSLMode: "disable",
	}
	want := "postgres://app:secret@db:5432/poplygo?sslmode=disable"
	if got := c.DSN(); got != want {
		t.Errorf("DSN() = %q, want %q", got, want)
	}

	c.URL = "postgres://elsewhere/db"
	if got := c.DSN(); got != c.URL {
		t.Errorf("DSN() = %q, want URL passthrough", got)
	}
}
