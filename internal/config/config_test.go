package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, warnings, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("unexpected warnings: %v", warnings)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("default port = %d", cfg.Server.Port)
	}
	if cfg.HTTP.MaxPageSizeKB != 512 {
		t.Errorf("default page size = %d", cfg.HTTP.MaxPageSizeKB)
	}
	if cfg.Image.DitherPriority != DitherQuality {
		t.Errorf("default dither = %q", cfg.Image.DitherPriority)
	}
	if !cfg.Security.AttemptHTTPSUpgrade {
		t.Error("https upgrade should default on")
	}
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "xiino.yml")
	content := "server:\n  port: 4040\nimage:\n  dither_priority: performance\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, _, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 4040 {
		t.Errorf("port = %d, want 4040", cfg.Server.Port)
	}
	if cfg.Image.DitherPriority != DitherPerformance {
		t.Errorf("dither = %q", cfg.Image.DitherPriority)
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("IMAGE_DITHER_PRIORITY", "performance")
	t.Setenv("SECURITY_MAX_REQUESTS_PER_MIN", "30")
	t.Setenv("SOME_UNRELATED_VAR", "ignored")

	cfg, warnings, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("unexpected warnings: %v", warnings)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Image.DitherPriority != DitherPerformance {
		t.Errorf("dither = %q", cfg.Image.DitherPriority)
	}
	if cfg.Security.MaxRequestsPerMin != 30 {
		t.Errorf("rate = %d, want 30", cfg.Security.MaxRequestsPerMin)
	}
}

func TestInvalidValuesFallBack(t *testing.T) {
	t.Setenv("PORT", "99999")
	t.Setenv("IMAGE_DITHER_PRIORITY", "ludicrous")
	t.Setenv("LOG_LEVEL", "shouty")

	cfg, warnings, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("port should fall back to 8080, got %d", cfg.Server.Port)
	}
	if cfg.Image.DitherPriority != DitherQuality {
		t.Errorf("dither should fall back to quality, got %q", cfg.Image.DitherPriority)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("log level should fall back to info, got %q", cfg.Log.Level)
	}
	if len(warnings) != 3 {
		t.Errorf("expected 3 warnings, got %v", warnings)
	}
	for _, w := range warnings {
		if !strings.Contains(w, "invalid value") {
			t.Errorf("warning %q should name the fallback", w)
		}
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "xiino.yml")
	cfg := DefaultConfig()
	cfg.Server.Port = 4040
	cfg.HTTP.SocksProxy = "socks5://127.0.0.1:1080"
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, _, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Server.Port != 4040 {
		t.Errorf("port = %d", loaded.Server.Port)
	}
	if loaded.HTTP.SocksProxy != cfg.HTTP.SocksProxy {
		t.Errorf("socks proxy = %q", loaded.HTTP.SocksProxy)
	}
}

func TestUnitHelpers(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.MaxPageBytes() != 512*1024 {
		t.Errorf("MaxPageBytes = %d", cfg.MaxPageBytes())
	}
	if cfg.MaxImageBytes() != 5*1024*1024 {
		t.Errorf("MaxImageBytes = %d", cfg.MaxImageBytes())
	}
	if cfg.MaxRequestBytes() != 10*1024*1024 {
		t.Errorf("MaxRequestBytes = %d", cfg.MaxRequestBytes())
	}
}
