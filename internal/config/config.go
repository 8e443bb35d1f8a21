package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type RuntimeConfig struct {
	Bind            string
	Port            string
	CdpURL          string
	Token           string
	StateDir        string
	ProfileDir      string
	Headless        bool
	ChromeBinary    string
	ArchiveURL      string
	SweepInterval   time.Duration
	RefreshInterval time.Duration
	BridgeTimeout   time.Duration
	RestoreTimeout  time.Duration
	ShutdownTimeout time.Duration
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func envBoolOr(key string, fallback bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func homeDir() string {
	h, _ := os.UserHomeDir()
	return h
}

func (c *RuntimeConfig) ListenAddr() string {
	return c.Bind + ":" + c.Port
}

type FileConfig struct {
	Port       string `json:"port"`
	CdpURL     string `json:"cdpUrl,omitempty"`
	Token      string `json:"token,omitempty"`
	StateDir   string `json:"stateDir"`
	ArchiveURL string `json:"archiveUrl,omitempty"`
	Headless   *bool  `json:"headless,omitempty"`
	SweepSec   int    `json:"sweepSec,omitempty"`
	RefreshSec int    `json:"refreshSec,omitempty"`
}

func Load() *RuntimeConfig {
	cfg := &RuntimeConfig{
		Bind:            envOr("ALTTAB_BIND", "127.0.0.1"),
		Port:            envOr("ALTTAB_PORT", "9868"),
		CdpURL:          os.Getenv("CDP_URL"),
		Token:           os.Getenv("ALTTAB_TOKEN"),
		StateDir:        envOr("ALTTAB_STATE_DIR", filepath.Join(homeDir(), ".alttab")),
		ProfileDir:      envOr("ALTTAB_PROFILE", filepath.Join(homeDir(), ".alttab", "chrome-profile")),
		Headless:        envBoolOr("ALTTAB_HEADLESS", true),
		ChromeBinary:    os.Getenv("CHROME_BINARY"),
		ArchiveURL:      envOr("ALTTAB_ARCHIVE_URL", "http://127.0.0.1:9869"),
		SweepInterval:   time.Duration(envIntOr("ALTTAB_SWEEP_SEC", 60)) * time.Second,
		RefreshInterval: time.Duration(envIntOr("ALTTAB_REFRESH_SEC", 60)) * time.Second,
		BridgeTimeout:   3 * time.Second,
		RestoreTimeout:  5 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}

	configPath := envOr("ALTTAB_CONFIG", filepath.Join(homeDir(), ".alttab", "config.json"))

	data, err := os.ReadFile(configPath)
	if err != nil {
		return cfg
	}

	var fc FileConfig
	if err := json.Unmarshal(data, &fc); err != nil {
		return cfg
	}

	if fc.Port != "" && os.Getenv("ALTTAB_PORT") == "" {
		cfg.Port = fc.Port
	}
	if fc.CdpURL != "" && os.Getenv("CDP_URL") == "" {
		cfg.CdpURL = fc.CdpURL
	}
	if fc.Token != "" && os.Getenv("ALTTAB_TOKEN") == "" {
		cfg.Token = fc.Token
	}
	if fc.StateDir != "" && os.Getenv("ALTTAB_STATE_DIR") == "" {
		cfg.StateDir = fc.StateDir
	}
	if fc.ArchiveURL != "" && os.Getenv("ALTTAB_ARCHIVE_URL") == "" {
		cfg.ArchiveURL = fc.ArchiveURL
	}
	if fc.Headless != nil && os.Getenv("ALTTAB_HEADLESS") == "" {
		cfg.Headless = *fc.Headless
	}
	if fc.SweepSec > 0 && os.Getenv("ALTTAB_SWEEP_SEC") == "" {
		cfg.SweepInterval = time.Duration(fc.SweepSec) * time.Second
	}
	if fc.RefreshSec > 0 && os.Getenv("ALTTAB_REFRESH_SEC") == "" {
		cfg.RefreshInterval = time.Duration(fc.RefreshSec) * time.Second
	}

	return cfg
}

func MaskToken(t string) string {
	if t == "" {
		return "(none)"
	}
	if len(t) <= 8 {
		return "***"
	}
	return t[:4] + "..." + t[len(t)-4:]
}
