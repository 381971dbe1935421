package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
source:
  url: rtsp://camera.local/stream
database:
  host: localhost
  user: facewatch
  password: secret
  name: facewatch
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d; want default 8080", cfg.Server.Port)
	}
	if cfg.Source.FPS != 5 {
		t.Errorf("Source.FPS = %d; want default 5", cfg.Source.FPS)
	}
	if cfg.Tracking.TTL != 5 || cfg.Tracking.HistorySize != 10 {
		t.Errorf("Tracking = %+v; want TTL 5, HistorySize 10", cfg.Tracking)
	}
	if cfg.Learner.StatePath != "data/learner_state.json" {
		t.Errorf("Learner.StatePath = %q; want default", cfg.Learner.StatePath)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %+v; want info/json", cfg.Logging)
	}
}

func TestLoadExplicitValues(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
  api_key: sekrit
source:
  url: /var/video/lobby.mp4
  fps: 10
  width: 1280
tracking:
  ttl: 8
  history_size: 15
learner:
  learning_rate: 0.05
  min_threshold: 0.6
  max_threshold: 0.95
  state_path: /var/lib/facewatch/state.json
logging:
  level: debug
  format: text
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 9090 || cfg.Server.APIKey != "sekrit" {
		t.Errorf("Server = %+v", cfg.Server)
	}
	if cfg.Source.FPS != 10 || cfg.Source.Width != 1280 {
		t.Errorf("Source = %+v", cfg.Source)
	}
	if cfg.Tracking.TTL != 8 || cfg.Tracking.HistorySize != 15 {
		t.Errorf("Tracking = %+v", cfg.Tracking)
	}
	if cfg.Learner.LearningRate != 0.05 || cfg.Learner.StatePath != "/var/lib/facewatch/state.json" {
		t.Errorf("Learner = %+v", cfg.Learner)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "text" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 8080
source:
  url: rtsp://camera.local/stream
`)

	t.Setenv("FW_SERVER_PORT", "7070")
	t.Setenv("FW_SOURCE_URL", "rtsp://other.local/stream")
	t.Setenv("FW_LEARNER_STATE_PATH", "/tmp/state.json")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 7070 {
		t.Errorf("Server.Port = %d; want env override 7070", cfg.Server.Port)
	}
	if cfg.Source.URL != "rtsp://other.local/stream" {
		t.Errorf("Source.URL = %q; want env override", cfg.Source.URL)
	}
	if cfg.Learner.StatePath != "/tmp/state.json" {
		t.Errorf("Learner.StatePath = %q; want env override", cfg.Learner.StatePath)
	}
}

func TestDatabaseDSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5432, Name: "facewatch", User: "fw", Password: "pw"}
	want := "postgres://fw:pw@db:5432/facewatch?sslmode=disable"
	if got := d.DSN(); got != want {
		t.Errorf("DSN() = %q; want %q", got, want)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}
