package config

import (
	"os"
	"path/filepath"
	"testing"
)

// TestDefaultsWhenFileMissing 配置文件不存在时返回默认配置
func TestDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "no-such.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Analysis.Padding != MinThumbnailPadding {
		t.Errorf("Expected default padding %d, got %d", MinThumbnailPadding, cfg.Analysis.Padding)
	}
	if cfg.Analysis.DataStreamIndex != 2 {
		t.Errorf("Expected default data stream 2, got %d", cfg.Analysis.DataStreamIndex)
	}
	if cfg.Phabrix.Port != PhabrixPort {
		t.Errorf("Expected default phabrix port %d, got %d", PhabrixPort, cfg.Phabrix.Port)
	}
	if cfg.Morpheus.DeviceName() != DeviceTLN {
		t.Errorf("Expected default device %s, got %s", DeviceTLN, cfg.Morpheus.DeviceName())
	}
}

// TestPartialFileOverlaysDefaults 部分配置只覆盖出现的字段
func TestPartialFileOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "analyzer.yaml")
	partial := "server:\n  port: 9090\nmorpheus:\n  device: ads\n"
	if err := os.WriteFile(path, []byte(partial), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Expected default host kept, got %s", cfg.Server.Host)
	}
	if cfg.Morpheus.DeviceName() != DeviceAds {
		t.Errorf("Expected ads device, got %s", cfg.Morpheus.DeviceName())
	}
	if cfg.Analysis.ResultsDir != DefaultResultsDir {
		t.Errorf("Expected default results dir kept, got %s", cfg.Analysis.ResultsDir)
	}
}

// TestValidation 非法配置被拒绝
func TestValidation(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"bad_port", "server:\n  port: -1\n"},
		{"bad_input", "phabrix:\n  input: 4\n"},
		{"bad_device", "morpheus:\n  device: xyz\n"},
		{"bad_interval", "phabrix:\n  interval_seconds: 0\n"},
	}
	for _, tc := range cases {
		path := filepath.Join(t.TempDir(), "analyzer.yaml")
		if err := os.WriteFile(path, []byte(tc.yaml), 0o644); err != nil {
			t.Fatalf("%s: WriteFile failed: %v", tc.name, err)
		}
		if _, err := LoadConfig(path); err == nil {
			t.Errorf("%s: expected validation error", tc.name)
		}
	}
}
