package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	c, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.SignalingURL == "" {
		t.Fatalf("expected default signaling_url")
	}
	if c.ProposalTimeout.Milliseconds() != 60_000 {
		t.Fatalf("expected 60s proposal timeout, got %v", c.ProposalTimeout)
	}
	if c.BufferedMsgLimit != 256 {
		t.Fatalf("expected default buffered_msg_limit 256, got %d", c.BufferedMsgLimit)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("WALLETCORE_SIGNALING_URL", "ws://example.test/ws")
	t.Setenv("WALLETCORE_BUFFERED_MSG_LIMIT", "64")

	c, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.SignalingURL != "ws://example.test/ws" {
		t.Fatalf("expected env override, got %s", c.SignalingURL)
	}
	if c.BufferedMsgLimit != 64 {
		t.Fatalf("expected env override 64, got %d", c.BufferedMsgLimit)
	}
}

func TestLoadRejectsInvalidThreshold(t *testing.T) {
	t.Setenv("WALLETCORE_DEFAULT_THRESHOLD", "5")
	t.Setenv("WALLETCORE_DEFAULT_TOTAL", "3")

	if _, err := Load(""); err == nil {
		t.Fatalf("expected validation error for threshold > total")
	}
}
