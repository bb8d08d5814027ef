package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error: %v", err)
	}
	if cfg.Port != 8888 {
		t.Errorf("Port = %d, want 8888", cfg.Port)
	}
	if cfg.ListenAddr != "0.0.0.0" {
		t.Errorf("ListenAddr = %q, want 0.0.0.0", cfg.ListenAddr)
	}
	if cfg.ThreadPoolSize != 8 {
		t.Errorf("ThreadPoolSize = %d, want 8", cfg.ThreadPoolSize)
	}
}

func TestLoadFromYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "avstreamd.yaml")
	content := []byte("port: 9000\nmax_connections: 50\nrecv_timeout_ms: 3000\n")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}
	if cfg.Port != 9000 {
		t.Errorf("Port = %d, want 9000", cfg.Port)
	}
	if cfg.MaxConnections != 50 {
		t.Errorf("MaxConnections = %d, want 50", cfg.MaxConnections)
	}
	if cfg.RecvTimeout() != 3*time.Second {
		t.Errorf("RecvTimeout() = %v, want 3s", cfg.RecvTimeout())
	}
}

func TestLoadMissingFileErrors(t *testing.T) {
	if _, err := Load("/nonexistent/path/avstreamd.yaml"); err == nil {
		t.Fatal("Load on a missing file returned nil error")
	}
}

func TestValidateRejectsBadPort(t *testing.T) {
	cfg := &Config{Port: 0, ListenAddr: "0.0.0.0", RecvBufferSize: 1, SendBufferSize: 1, ThreadPoolSize: 1}
	if err := Validate(cfg); err == nil {
		t.Fatal("Validate accepted port 0")
	}

	cfg.Port = 70000
	if err := Validate(cfg); err == nil {
		t.Fatal("Validate accepted port 70000")
	}
}

func TestValidateRejectsZeroBufferSizes(t *testing.T) {
	cfg := &Config{Port: 8888, ListenAddr: "0.0.0.0", ThreadPoolSize: 1}
	if err := Validate(cfg); err == nil {
		t.Fatal("Validate accepted zero recv/send buffer sizes")
	}
}

func TestDumpRoundTripsThroughLoad(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error: %v", err)
	}
	cfg.Port = 9001

	out, err := Dump(cfg)
	if err != nil {
		t.Fatalf("Dump error: %v", err)
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "dumped.yaml")
	if err := os.WriteFile(path, out, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}
	if reloaded.Port != 9001 {
		t.Errorf("Port = %d, want 9001", reloaded.Port)
	}
	if reloaded.ThreadPoolSize != cfg.ThreadPoolSize {
		t.Errorf("ThreadPoolSize = %d, want %d", reloaded.ThreadPoolSize, cfg.ThreadPoolSize)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(out, &raw); err != nil {
		t.Fatalf("yaml.Unmarshal(Dump output): %v", err)
	}
	if _, ok := raw["listen_addr"]; !ok {
		t.Error("dumped YAML missing listen_addr key")
	}
}

func TestDurationHelpers(t *testing.T) {
	cfg := Config{
		RecvTimeoutMS:       1000,
		SendTimeoutMS:       2000,
		HeartbeatIntervalMS: 15000,
		HeartbeatTimeoutMS:  45000,
	}
	if cfg.RecvTimeout() != time.Second {
		t.Errorf("RecvTimeout() = %v, want 1s", cfg.RecvTimeout())
	}
	if cfg.SendTimeout() != 2*time.Second {
		t.Errorf("SendTimeout() = %v, want 2s", cfg.SendTimeout())
	}
	if cfg.HeartbeatInterval() != 15*time.Second {
		t.Errorf("HeartbeatInterval() = %v, want 15s", cfg.HeartbeatInterval())
	}
	if cfg.HeartbeatTimeout() != 45*time.Second {
		t.Errorf("HeartbeatTimeout() = %v, want 45s", cfg.HeartbeatTimeout())
	}
}
