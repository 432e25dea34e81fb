package observability

import (
	"testing"

	"go.uber.org/zap"
)

func TestGetLogLevel(t *testing.T) {
	tests := []struct {
		env, level string
		want       string
	}{
		{"", "", "info"},
		{"dev", "", "debug"},
		{"production", "warn", "warn"},
		{"dev", "ERROR", "error"},
		{"", "verbose", "info"},
	}
	for _, tt := range tests {
		t.Setenv("ENV", tt.env)
		t.Setenv("LOG_LEVEL", tt.level)
		if got := getLogLevel().String(); got != tt.want {
			t.Errorf("ENV=%q LOG_LEVEL=%q: got %s want %s", tt.env, tt.level, got, tt.want)
		}
	}
}

func TestCLILoggerDefaultsToWarn(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	l, err := InitCLILogger("flagctl")
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if l.Core().Enabled(zap.InfoLevel) {
		t.Fatal("info should be disabled for the CLI logger by default")
	}
}

func TestMockRegistryCounts(t *testing.T) {
	m := &MockMetricsRegistry{}
	var reg MetricsRegistry = m
	reg.IncrementFlagTransitions("assign", "success")
	reg.IncrementFlagTransitions("assign", "success")
	reg.IncrementClientRequests("list_flags", "failure")
	if m.Count("transition", "assign/success") != 2 {
		t.Fatalf("unexpected transition count %d", m.Count("transition", "assign/success"))
	}
	if m.Count("client", "list_flags/failure") != 1 {
		t.Fatal("client failure not recorded")
	}
}
