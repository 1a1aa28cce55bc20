package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const FileName = "sixty.yml"

// Config models sixty.yml.
type Config struct {
	Learner struct {
		Name string `yaml:"name"`
	} `yaml:"learner"`
	Storage struct {
		Driver string `yaml:"driver"`
	} `yaml:"storage"`
	Assistant AssistantConfig `yaml:"assistant"`
	Server    struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

type AssistantConfig struct {
	ChatModel   string   `yaml:"chat_model"`
	SpeechModel string   `yaml:"speech_model"`
	Voice       string   `yaml:"voice"`
	APIKeyEnv   string   `yaml:"api_key_env"`
	Player      []string `yaml:"player"`
}

type WebhookConfig struct {
	URL     string   `yaml:"url"`
	Events  []string `yaml:"events"`
	Secret  string   `yaml:"secret"`
	Enabled *bool    `yaml:"enabled"`
}

// APIKey resolves the Gemini key from the configured environment variable.
func (a AssistantConfig) APIKey() string {
	name := a.APIKeyEnv
	if name == "" {
		name = "GEMINI_API_KEY"
	}
	return strings.TrimSpace(os.Getenv(name))
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "sqlite", "file":
	default:
		return fmt.Errorf("config.storage.driver must be 'sqlite' or 'file'")
	}
	if c.Assistant.ChatModel == "" {
		return fmt.Errorf("config.assistant.chat_model is required")
	}
	if c.Assistant.SpeechModel == "" {
		return fmt.Errorf("config.assistant.speech_model is required")
	}
	if c.Assistant.Voice == "" {
		return fmt.Errorf("config.assistant.voice is required")
	}
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	for i, hook := range c.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("webhook %d has empty url", i)
		}
		for _, evt := range hook.Events {
			if evt == "" {
				return fmt.Errorf("webhook %d has empty event type", i)
			}
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, FileName)
}

// GenerateDefault returns default config YAML.
func GenerateDefault(name string) string {
	if name == "" {
		name = "learner"
	}
	return fmt.Sprintf(defaultTemplate, name)
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with sixty init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional falls back to Default when the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(GenerateDefault(""))).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Keys missing from
// data keep their default values.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// WriteDefault creates sixty.yml unless one already exists.
func WriteDefault(workspace, name string) (string, error) {
	path := Path(workspace)
	if _, err := os.Stat(path); err == nil {
		return path, fmt.Errorf("config %s already exists", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return path, err
	}
	return path, os.WriteFile(path, []byte(GenerateDefault(name)), 0o644)
}

const defaultTemplate = `learner:
  name: %s

storage:
  driver: sqlite

assistant:
  chat_model: gemini-3-pro-preview
  speech_model: gemini-2.5-flash-preview-tts
  voice: Zephyr
  api_key_env: GEMINI_API_KEY
  player: [aplay, -q, -t, raw, -f, S16_LE, -r, "24000", -c, "1"]

server:
  addr: 127.0.0.1:8080
  base_path: /v0

webhooks: []
`
