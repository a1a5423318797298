package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.WorkerConcurrency != 5 {
		t.Errorf("worker concurrency = %d, want 5", cfg.WorkerConcurrency)
	}
	if cfg.BatchCharLimit != 6000 {
		t.Errorf("batch char limit = %d, want 6000", cfg.BatchCharLimit)
	}
	if cfg.TranslateTimeout != 10*time.Minute {
		t.Errorf("translate timeout = %s, want 10m", cfg.TranslateTimeout)
	}
	if cfg.MaxRetries != 3 {
		t.Errorf("max retries = %d, want 3", cfg.MaxRetries)
	}
	if len(cfg.Models) == 0 {
		t.Error("no default model chain")
	}
	if cfg.TargetLanguage != "ar" || cfg.TargetDirection != "rtl" {
		t.Errorf("target = %s/%s", cfg.TargetLanguage, cfg.TargetDirection)
	}
	if cfg.Export.TextAlignment != AlignRight {
		t.Errorf("alignment = %s", cfg.Export.TextAlignment)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mutarjim.yaml")
	content := `
worker_concurrency: 2
batch_char_limit: 1000
models:
  - test-model
export:
  text_alignment: justify
  force_alignment: true
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.WorkerConcurrency != 2 || cfg.BatchCharLimit != 1000 {
		t.Errorf("overrides not applied: %+v", cfg)
	}
	if len(cfg.Models) != 1 || cfg.Models[0] != "test-model" {
		t.Errorf("models = %v", cfg.Models)
	}
	if cfg.Export.TextAlignment != AlignJustify || !cfg.Export.ForceAlignment {
		t.Errorf("export settings = %+v", cfg.Export)
	}
}

func TestValidateRejectsBadAlignment(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfg.Export.TextAlignment = "sideways"
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for unknown alignment")
	}
}
