package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "none.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Tools.Segment != "sct_deepseg_sc" {
		t.Errorf("Tools.Segment = %v, want default", cfg.Tools.Segment)
	}
	if cfg.Viewer.Opacity != 70.0 {
		t.Errorf("Viewer.Opacity = %v, want 70", cfg.Viewer.Opacity)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte("tools:\n  viewer: itksnap\nledger:\n  dsn: off\nmirror:\n  bucket: labels\n")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Tools.Viewer != "itksnap" {
		t.Errorf("Tools.Viewer = %v, want itksnap", cfg.Tools.Viewer)
	}
	if cfg.Tools.Converter != "dcm2niix" {
		t.Errorf("unset values should keep their default, got %v", cfg.Tools.Converter)
	}
	if cfg.LedgerEnabled() {
		t.Errorf("LedgerEnabled() = true, want false")
	}
	if cfg.Mirror.Bucket != "labels" {
		t.Errorf("Mirror.Bucket = %v", cfg.Mirror.Bucket)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SCI_MIRROR_S3_BUCKET", "verified")
	t.Setenv("SCI_MIRROR_S3_PATH_STYLE", "TRUE")
	t.Setenv("SCI_LEDGER_DSN", "postgres://localhost/sci")
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "none.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Mirror.Bucket != "verified" || !cfg.Mirror.PathStyle {
		t.Errorf("mirror = %+v", cfg.Mirror)
	}
	if got := cfg.LedgerDSN("/results"); got != "postgres://localhost/sci" {
		t.Errorf("LedgerDSN() = %v", got)
	}
}

func TestSaveConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")
	cfg := DefaultConfig()
	cfg.Tools.Segment = "sct_deepseg"
	if err := SaveConfig(cfg, path); err != nil {
		t.Fatal(err)
	}
	got, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.Tools.Segment != "sct_deepseg" {
		t.Errorf("Tools.Segment = %v", got.Tools.Segment)
	}
	if got.LedgerDSN("/r") != filepath.Join("/r", "sci_ledger.db") {
		t.Errorf("LedgerDSN() = %v", got.LedgerDSN("/r"))
	}
}
