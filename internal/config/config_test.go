package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("APP_PORT", "")
	t.Setenv("OUTBOX_BATCH_SIZE", "")
	t.Setenv("SLA_SWEEP_SCHEDULE", "")
	t.Setenv("CASES_TIMEZONE", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.App.Addr() != "0.0.0.0:8080" {
		t.Errorf("addr = %s", cfg.App.Addr())
	}
	if cfg.Outbox.BatchSize != 10 {
		t.Errorf("batch size = %d", cfg.Outbox.BatchSize)
	}
	if cfg.SLA.SweepSchedule != "@every 15m" {
		t.Errorf("schedule = %s", cfg.SLA.SweepSchedule)
	}
	if cfg.SLA.UrgentWindow() != 30*time.Minute || cfg.SLA.MissedCooldown() != 6*time.Hour {
		t.Errorf("unexpected SLA durations %+v", cfg.SLA)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("OUTBOX_DELIVERY_TIMEOUT_SECONDS", "3")
	t.Setenv("SLA_URGENT_COOLDOWN_MINUTES", "45")
	t.Setenv("HTTP_CLIENT_CONNECT_TIMEOUT", "750ms")
	t.Setenv("CASES_TIMEZONE", "Asia/Bangkok")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "k2:9092" {
		t.Errorf("brokers = %v", cfg.Kafka.Brokers)
	}
	if cfg.Outbox.DeliveryTimeout() != 3*time.Second {
		t.Errorf("delivery timeout = %s", cfg.Outbox.DeliveryTimeout())
	}
	if cfg.SLA.UrgentCooldown() != 45*time.Minute {
		t.Errorf("urgent cooldown = %s", cfg.SLA.UrgentCooldown())
	}
	if cfg.HTTPClient.ConnectTimeout != 750*time.Millisecond {
		t.Errorf("connect timeout = %s", cfg.HTTPClient.ConnectTimeout)
	}
	if cfg.Cases.Location().String() != "Asia/Bangkok" {
		t.Errorf("location = %s", cfg.Cases.Location())
	}
}

func TestLoadRejectsBadTimezone(t *testing.T) {
	t.Setenv("CASES_TIMEZONE", "Not/AZone")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown timezone")
	}
}

func TestDeliveryTimeoutIsCapped(t *testing.T) {
	tests := []struct {
		seconds int
		want    time.Duration
	}{
		{0, 10 * time.Second},
		{-1, 10 * time.Second},
		{4, 4 * time.Second},
		{60, 10 * time.Second},
	}
	for _, tt := range tests {
		got := OutboxConfig{DeliveryTimeoutSeconds: tt.seconds}.DeliveryTimeout()
		if got != tt.want {
			t.Errorf("DeliveryTimeout(%d) = %s, want %s", tt.seconds, got, tt.want)
		}
	}
}

func TestMessagingConfigured(t *testing.T) {
	if (MessagingConfig{Endpoint: "https://chat"}).Configured() {
		t.Error("target is required")
	}
	if !(MessagingConfig{Endpoint: "https://chat", Target: "room"}).Configured() {
		t.Error("endpoint and target should be enough")
	}
}
