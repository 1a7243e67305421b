package config

import (
	"encoding/json"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.LoadDefaults()

	if cfg.EndpointAddrHTTP == "" || cfg.DatabaseDSN == "" || cfg.DataDir == "" {
		t.Fatalf("defaults incomplete: %+v", cfg)
	}
	if cfg.ShareTTL != 15*time.Minute {
		t.Fatalf("expected 15m share TTL, got %v", cfg.ShareTTL)
	}
	if cfg.TransferShareTTL != 24*time.Hour {
		t.Fatalf("expected 24h transfer share TTL, got %v", cfg.TransferShareTTL)
	}
}

func TestJsonConfig_DurationForms(t *testing.T) {
	raw := []byte(`{
		"endpoint_addr_http": ":9000",
		"share_ttl": "30m",
		"transfer_share_ttl": 3600000000000
	}`)

	c := &JsonConfig{}
	if err := json.Unmarshal(raw, c); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if c.EndpointAddrHTTP != ":9000" {
		t.Fatalf("unexpected address: %q", c.EndpointAddrHTTP)
	}
	if c.ShareTTL.Duration != 30*time.Minute {
		t.Fatalf("expected 30m, got %v", c.ShareTTL.Duration)
	}
	if c.TransferShareTTL.Duration != time.Hour {
		t.Fatalf("expected 1h from nanoseconds, got %v", c.TransferShareTTL.Duration)
	}
}
