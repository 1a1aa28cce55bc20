package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"sixty/internal/config"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Storage.Driver != "sqlite" {
		t.Fatalf("driver = %q", cfg.Storage.Driver)
	}
	if cfg.Assistant.Voice != "Zephyr" {
		t.Fatalf("voice = %q", cfg.Assistant.Voice)
	}
	if len(cfg.Assistant.Player) == 0 || cfg.Assistant.Player[0] != "aplay" {
		t.Fatalf("player = %v", cfg.Assistant.Player)
	}
}

func TestFromYAMLKeepsDefaultsForMissingKeys(t *testing.T) {
	cfg, err := config.FromYAML([]byte("storage:\n  driver: file\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Storage.Driver != "file" {
		t.Fatalf("driver = %q", cfg.Storage.Driver)
	}
	if cfg.Assistant.ChatModel == "" || cfg.Server.BasePath != "/v0" {
		t.Fatalf("defaults lost: %+v", cfg)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"driver":    "storage:\n  driver: postgres\n",
		"base path": "server:\n  base_path: v0\n",
		"webhook":   "webhooks:\n  - url: \"\"\n",
		"yaml":      "storage: [",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := config.FromYAML([]byte(doc)); err == nil {
				t.Fatalf("expected error for %q", doc)
			}
		})
	}
}

func TestWriteDefaultAndLoad(t *testing.T) {
	dir := t.TempDir()
	if _, err := config.LoadOptional(dir); err != nil {
		t.Fatalf("load optional without file: %v", err)
	}
	if _, err := config.Load(dir); err == nil {
		t.Fatalf("expected missing config error")
	}
	path, err := config.WriteDefault(dir, "ada")
	if err != nil {
		t.Fatalf("write default: %v", err)
	}
	if path != filepath.Join(dir, config.FileName) {
		t.Fatalf("path = %s", path)
	}
	cfg, err := config.Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Learner.Name != "ada" {
		t.Fatalf("name = %q", cfg.Learner.Name)
	}
	if _, err := config.WriteDefault(dir, "ada"); err == nil {
		t.Fatalf("expected error when config exists")
	}
}

func TestAPIKeyFromEnv(t *testing.T) {
	cfg := config.Default()
	cfg.Assistant.APIKeyEnv = "SIXTY_TEST_KEY"
	t.Setenv("SIXTY_TEST_KEY", " secret ")
	if got := cfg.Assistant.APIKey(); got != "secret" {
		t.Fatalf("api key = %q", got)
	}
	os.Unsetenv("SIXTY_TEST_KEY")
	if got := cfg.Assistant.APIKey(); got != "" {
		t.Fatalf("api key = %q", got)
	}
}
