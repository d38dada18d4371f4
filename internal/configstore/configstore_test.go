package configstore

import "testing"

func TestLoadWithNilDBUsesEnvironmentDefaults(t *testing.T) {
	s := New(nil)
	cfg, err := s.Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port == 0 {
		t.Error("expected a non-zero default port")
	}
	if len(cfg.IMEI) != 15 {
		t.Errorf("expected a 15-digit IMEI, got %q", cfg.IMEI)
	}
}

func TestPutWithNilDBIsNoOp(t *testing.T) {
	s := New(nil)
	if err := s.Put("host", "example.invalid"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestApplyEntryOverridesField(t *testing.T) {
	s := New(nil)
	cfg, err := s.Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	applyEntry(&cfg, "host", "override.example")
	if cfg.Host != "override.example" {
		t.Errorf("got host %q", cfg.Host)
	}
	applyEntry(&cfg, "heartbeat_seconds", "45")
	if cfg.HeartbeatInterval.Seconds() != 45 {
		t.Errorf("got heartbeat interval %v", cfg.HeartbeatInterval)
	}
}
