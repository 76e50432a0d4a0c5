package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spyhelmet/helmetmon/internal/config"
)

func TestLoadConfig_WrittenConfigReloads(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "in.yaml")
	data := "server:\n  url: https://helmet.example.com\npoll:\n  interval: 1s\n"
	if err := os.WriteFile(src, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := loadConfig(config.CLIOverrides{Listen: "127.0.0.1:9999"}, src)
	if err != nil {
		t.Fatal(err)
	}

	out := filepath.Join(dir, "out", "effective.yaml")
	if err := config.WriteConfig(cfg, out); err != nil {
		t.Fatal(err)
	}

	again, err := loadConfig(config.CLIOverrides{}, out)
	if err != nil {
		t.Fatal(err)
	}
	if again.Server.URL != "https://helmet.example.com" {
		t.Errorf("URL = %q, want file value", again.Server.URL)
	}
	if again.Poll.Interval.Duration != time.Second {
		t.Errorf("interval = %v, want 1s", again.Poll.Interval.Duration)
	}
	if again.HTTP.Listen != "127.0.0.1:9999" {
		t.Errorf("listen = %q, want CLI value persisted", again.HTTP.Listen)
	}
	if len(again.Channels) != len(cfg.Channels) {
		t.Errorf("got %d channels, want %d", len(again.Channels), len(cfg.Channels))
	}
}

func TestLoadConfig_RejectsInvalid(t *testing.T) {
	src := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(src, []byte("server:\n  url: ftp://helmet.local\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	_, err := loadConfig(config.CLIOverrides{}, src)
	if err == nil || !strings.Contains(err.Error(), "invalid configuration") {
		t.Fatalf("err = %v, want invalid configuration", err)
	}
}
