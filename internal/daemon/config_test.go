package daemon

import "testing"

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Node.ID != "modesp-001" {
		t.Errorf("Node.ID = %q, want %q", cfg.Node.ID, "modesp-001")
	}
	if cfg.Diag.ListenAddr != "0.0.0.0:8080" {
		t.Errorf("Diag.ListenAddr = %q, want %q", cfg.Diag.ListenAddr, "0.0.0.0:8080")
	}
	if cfg.Heartbeat.Policy != "restart" {
		t.Errorf("Heartbeat.Policy = %q, want %q", cfg.Heartbeat.Policy, "restart")
	}
	if cfg.Heartbeat.RestartCap != 3 {
		t.Errorf("Heartbeat.RestartCap = %d, want 3", cfg.Heartbeat.RestartCap)
	}
}

func TestLoadConfigFallsBackToDefaultsWithoutFile(t *testing.T) {
	t.Setenv("MODESP_HOME", t.TempDir())

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Node.ID != "modesp-001" {
		t.Errorf("Node.ID = %q, want default", cfg.Node.ID)
	}
}

func TestSaveConfigThenLoadRoundTrips(t *testing.T) {
	t.Setenv("MODESP_HOME", t.TempDir())

	cfg := DefaultConfig()
	cfg.Node.ID = "chamber-7"
	cfg.Diag.ListenAddr = "127.0.0.1:9999"
	if err := SaveConfig(cfg); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}

	loaded, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if loaded.Node.ID != "chamber-7" {
		t.Errorf("Node.ID = %q, want %q", loaded.Node.ID, "chamber-7")
	}
	if loaded.Diag.ListenAddr != "127.0.0.1:9999" {
		t.Errorf("Diag.ListenAddr = %q, want %q", loaded.Diag.ListenAddr, "127.0.0.1:9999")
	}
}
