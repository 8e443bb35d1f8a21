package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestEnvOr(t *testing.T) {
	key := "ALTTAB_TEST_ENV"
	fallback := "default"

	_ = os.Unsetenv(key)
	if got := envOr(key, fallback); got != fallback {
		t.Errorf("envOr() = %v, want %v", got, fallback)
	}

	_ = os.Setenv(key, "set")
	defer os.Unsetenv(key)
	if got := envOr(key, fallback); got != "set" {
		t.Errorf("envOr() = %v, want set", got)
	}
}

func TestEnvIntOr(t *testing.T) {
	key := "ALTTAB_TEST_INT"

	_ = os.Unsetenv(key)
	if got := envIntOr(key, 42); got != 42 {
		t.Errorf("envIntOr() = %v, want 42", got)
	}

	_ = os.Setenv(key, "100")
	defer os.Unsetenv(key)
	if got := envIntOr(key, 42); got != 100 {
		t.Errorf("envIntOr() = %v, want 100", got)
	}

	_ = os.Setenv(key, "invalid")
	if got := envIntOr(key, 42); got != 42 {
		t.Errorf("envIntOr() = %v, want fallback", got)
	}
}

func TestEnvBoolOr(t *testing.T) {
	key := "ALTTAB_TEST_BOOL"

	_ = os.Unsetenv(key)
	if got := envBoolOr(key, true); got != true {
		t.Errorf("envBoolOr() = %v, want fallback", got)
	}

	tests := []struct {
		val  string
		want bool
	}{
		{"1", true}, {"true", true}, {"yes", true}, {"on", true},
		{"0", false}, {"false", false}, {"no", false}, {"off", false},
		{"garbage", true}, // fallback
	}

	defer os.Unsetenv(key)
	for _, tt := range tests {
		_ = os.Setenv(key, tt.val)
		if got := envBoolOr(key, true); got != tt.want {
			t.Errorf("envBoolOr(%q) = %v, want %v", tt.val, got, tt.want)
		}
	}
}

func TestLoadFileConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	data := `{"port":"7000","archiveUrl":"http://archive.test","sweepSec":5}`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	_ = os.Setenv("ALTTAB_CONFIG", path)
	defer os.Unsetenv("ALTTAB_CONFIG")
	_ = os.Unsetenv("ALTTAB_PORT")
	_ = os.Unsetenv("ALTTAB_ARCHIVE_URL")
	_ = os.Unsetenv("ALTTAB_SWEEP_SEC")

	cfg := Load()
	if cfg.Port != "7000" {
		t.Errorf("Port = %v, want 7000", cfg.Port)
	}
	if cfg.ArchiveURL != "http://archive.test" {
		t.Errorf("ArchiveURL = %v", cfg.ArchiveURL)
	}
	if cfg.SweepInterval != 5*time.Second {
		t.Errorf("SweepInterval = %v, want 5s", cfg.SweepInterval)
	}
}

func TestLoadEnvWinsOverFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{"port":"7000"}`), 0644); err != nil {
		t.Fatal(err)
	}

	_ = os.Setenv("ALTTAB_CONFIG", path)
	_ = os.Setenv("ALTTAB_PORT", "8000")
	defer os.Unsetenv("ALTTAB_CONFIG")
	defer os.Unsetenv("ALTTAB_PORT")

	cfg := Load()
	if cfg.Port != "8000" {
		t.Errorf("Port = %v, env must win over file", cfg.Port)
	}
}

func TestMaskToken(t *testing.T) {
	tests := []struct {
		token string
		want  string
	}{
		{"", "(none)"},
		{"short", "***"},
		{"very-long-token-secret", "very...cret"},
	}
	for _, tt := range tests {
		if got := MaskToken(tt.token); got != tt.want {
			t.Errorf("MaskToken(%q) = %q, want %q", tt.token, got, tt.want)
		}
	}
}

func TestListenAddr(t *testing.T) {
	c := &RuntimeConfig{Bind: "127.0.0.1", Port: "9868"}
	if got := c.ListenAddr(); got != "127.0.0.1:9868" {
		t.Errorf("ListenAddr() = %v", got)
	}
}
