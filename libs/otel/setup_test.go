package otelx

import (
	"context"
	"testing"
)

func TestParseRatio(t *testing.T) {
	cases := map[string]float64{
		"0.25": 0.25,
		" 0 ":  0,
		"1":    1,
		"1.5":  1,
		"-0.1": 1,
		"abc":  1,
	}
	for raw, want := range cases {
		if got := parseRatio(raw); got != want {
			t.Fatalf("parseRatio(%q) = %v, want %v", raw, got, want)
		}
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("OTEL_ENABLED", "false")
	t.Setenv("OTEL_SAMPLING_RATIO", "0.5")
	t.Setenv("DEPLOY_ENV", "staging")

	cfg := ConfigFromEnv("booking-service")
	if cfg.Enabled || cfg.SampleRatio != 0.5 || cfg.Environment != "staging" || cfg.ServiceName != "booking-service" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if got := len(cfg.attributes()); got != 3 {
		t.Fatalf("expected 3 resource attributes, got %d", got)
	}
}

func TestSetup_DisabledIsNoop(t *testing.T) {
	shutdown, err := Setup(context.Background(), Config{ServiceName: "booking-service"})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
