package config

import (
	"testing"
	"time"
)

func TestLoadAppliesDefaults(t *testing.T) {
	v := NewViper()
	v.Set("broker.url", "ws://localhost:9000/ws")
	v.Set("api.base_url", "http://localhost:9000")

	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTPAddress != defaultHTTPAddress {
		t.Fatalf("unexpected http address: %q", cfg.HTTPAddress)
	}
	if cfg.SnapshotSource != SnapshotSourcePush {
		t.Fatalf("unexpected snapshot source: %q", cfg.SnapshotSource)
	}
	if cfg.HeartbeatInterval != 10*time.Second {
		t.Fatalf("unexpected heartbeat interval: %v", cfg.HeartbeatInterval)
	}
	if cfg.MaxReconnectAttempts != 10 {
		t.Fatalf("unexpected reconnect attempts: %d", cfg.MaxReconnectAttempts)
	}
}

func TestLoadRejectsMissingBrokerURL(t *testing.T) {
	v := NewViper()
	v.Set("api.base_url", "http://localhost:9000")

	if _, err := Load(v); err == nil {
		t.Fatalf("expected missing broker url to fail validation")
	}
}

func TestLoadRejectsUnknownSnapshotSource(t *testing.T) {
	v := NewViper()
	v.Set("broker.url", "ws://localhost:9000/ws")
	v.Set("api.base_url", "http://localhost:9000")
	v.Set("snapshots.source", "carrier-pigeon")

	if _, err := Load(v); err == nil {
		t.Fatalf("expected unknown snapshot source to fail validation")
	}
}

func TestLoadRejectsNonPositiveDurations(t *testing.T) {
	v := NewViper()
	v.Set("broker.url", "ws://localhost:9000/ws")
	v.Set("api.base_url", "http://localhost:9000")
	v.Set("channel.heartbeat_interval", "0s")

	if _, err := Load(v); err == nil {
		t.Fatalf("expected zero heartbeat interval to fail validation")
	}
}
