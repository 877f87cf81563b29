package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWithDefaults(t *testing.T) {
	env := map[string]string{
		"API_FIRESTORE_PROJECT_ID": "sc-dev",
	}

	cfg, err := Load(WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.PubSub.ProjectID != "sc-dev" {
		t.Errorf("expected pubsub project to default to firestore project, got %s", cfg.PubSub.ProjectID)
	}
	if cfg.PubSub.EventsTopic != defaultEventsTopic {
		t.Errorf("unexpected default events topic: %s", cfg.PubSub.EventsTopic)
	}
	if !cfg.Features.EnablePromotions {
		t.Error("expected promotions enabled by default")
	}
	if !cfg.Features.EnableChangeEvents {
		t.Error("expected change events enabled by default")
	}
}

func TestLoadWithOverrides(t *testing.T) {
	env := map[string]string{
		"API_SERVER_PORT":             "9090",
		"API_SERVER_READ_TIMEOUT":     "20s",
		"API_SERVER_WRITE_TIMEOUT":    "25s",
		"API_SERVER_IDLE_TIMEOUT":     "2m",
		"API_FIRESTORE_PROJECT_ID":    "sc-fire",
		"API_FIRESTORE_EMULATOR_HOST": "localhost:8200",
		"API_PUBSUB_PROJECT_ID":       "sc-events",
		"API_PUBSUB_EVENTS_TOPIC":     "order-changes-prod",
		"API_FEATURE_PROMOTIONS":      "false",
		"API_FEATURE_CHANGE_EVENTS":   "off",
	}

	cfg, err := Load(WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("unexpected port: %s", cfg.Server.Port)
	}
	if cfg.Server.WriteTimeout != 25*time.Second {
		t.Errorf("unexpected write timeout: %s", cfg.Server.WriteTimeout)
	}
	if cfg.Server.IdleTimeout != 2*time.Minute {
		t.Errorf("unexpected idle timeout: %s", cfg.Server.IdleTimeout)
	}
	if cfg.Firestore.EmulatorHost != "localhost:8200" {
		t.Errorf("unexpected emulator host: %s", cfg.Firestore.EmulatorHost)
	}
	if cfg.PubSub.ProjectID != "sc-events" {
		t.Errorf("unexpected pubsub project: %s", cfg.PubSub.ProjectID)
	}
	if cfg.PubSub.EventsTopic != "order-changes-prod" {
		t.Errorf("unexpected events topic: %s", cfg.PubSub.EventsTopic)
	}
	if cfg.Features.EnablePromotions {
		t.Error("expected promotions disabled")
	}
	if cfg.Features.EnableChangeEvents {
		t.Error("expected change events disabled")
	}
}

func TestLoadValidationFailure(t *testing.T) {
	_, err := Load(WithEnvMap(map[string]string{}), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatal("expected validation error")
	}

	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	fields := validation.Fields()
	if len(fields) == 0 || fields[0] != "Firestore.ProjectID" {
		t.Fatalf("expected Firestore.ProjectID flagged, got %v", fields)
	}
}

func TestLoadReadsDotEnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	contents := "API_FIRESTORE_PROJECT_ID=sc-local\nexport API_SERVER_PORT=7070\n# comment\nAPI_PUBSUB_EVENTS_TOPIC=\"quoted-topic\"\n"
	if err := os.WriteFile(envFile, []byte(contents), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	cfg, err := Load(WithEnvFile(envFile), WithoutSystemEnv())
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Firestore.ProjectID != "sc-local" {
		t.Errorf("unexpected project id: %s", cfg.Firestore.ProjectID)
	}
	if cfg.Server.Port != "7070" {
		t.Errorf("expected export-prefixed value honoured, got %s", cfg.Server.Port)
	}
	if cfg.PubSub.EventsTopic != "quoted-topic" {
		t.Errorf("expected quotes stripped, got %s", cfg.PubSub.EventsTopic)
	}
}

func TestLoadEnvMapTakesPrecedence(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	if err := os.WriteFile(envFile, []byte("API_FIRESTORE_PROJECT_ID=from-file\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	cfg, err := Load(
		WithEnvFile(envFile),
		WithEnvMap(map[string]string{"API_FIRESTORE_PROJECT_ID": "from-map"}),
		WithoutSystemEnv(),
	)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Firestore.ProjectID != "from-map" {
		t.Errorf("expected env map to win, got %s", cfg.Firestore.ProjectID)
	}
}
