package temporalx

import (
	"context"
	"errors"
	"testing"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestConfigDefaults(t *testing.T) {
	cfg := Config{Address: " temporal:7233 ", RetentionDays: 900}.WithDefaults()
	if !cfg.Enabled() {
		t.Fatal("expected enabled")
	}
	if cfg.Address != "temporal:7233" {
		t.Fatalf("address not trimmed: %q", cfg.Address)
	}
	if cfg.Namespace != "listingtrust" || cfg.TaskQueue != "listingtrust" {
		t.Fatalf("unexpected namespace/queue: %q %q", cfg.Namespace, cfg.TaskQueue)
	}
	if cfg.RetentionDays != 365 {
		t.Fatalf("retention not capped: %d", cfg.RetentionDays)
	}
	if (Config{}).Enabled() {
		t.Fatal("empty address must disable temporal")
	}
}

func TestNewClientDisabled(t *testing.T) {
	c, err := NewClient(nil, Config{})
	if err != nil || c != nil {
		t.Fatalf("expected nil client, got %v %v", c, err)
	}
}

func TestClampBackoff(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 250 * time.Millisecond},
		{2, 500 * time.Millisecond},
		{3, time.Second},
		{10, 2 * time.Second},
	}
	for _, tt := range tests {
		if got := ClampBackoff(250*time.Millisecond, 2*time.Second, tt.attempt); got != tt.want {
			t.Fatalf("attempt %d: got %v want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestIsRetryableRPC(t *testing.T) {
	if !isRetryableRPC(status.Error(codes.Unavailable, "down")) {
		t.Fatal("unavailable should retry")
	}
	if isRetryableRPC(status.Error(codes.PermissionDenied, "no")) {
		t.Fatal("permission denied should not retry")
	}
	if !isRetryableRPC(context.DeadlineExceeded) {
		t.Fatal("deadline should retry")
	}
	if isRetryableRPC(errors.New("boom")) {
		t.Fatal("plain error should not retry")
	}
}
