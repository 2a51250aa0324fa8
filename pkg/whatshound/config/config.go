// Package config loads WhatsHound configuration from YAML with credential
// resolution through environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"whatshound/pkg/whatshound/channels/twilio"
	"whatshound/pkg/whatshound/channels/whatsapp"
	"whatshound/pkg/whatshound/chunkhound"
	"whatshound/pkg/whatshound/gateway"
	"whatshound/pkg/whatshound/scheduler"
	"whatshound/pkg/whatshound/store"
)

// AssistantConfig tunes the chat core.
type AssistantConfig struct {
	Name        string        `yaml:"name"`
	MaxReplyLen int           `yaml:"max_reply_len"`
	MaxHistory  int           `yaml:"max_history"`
	SessionTTL  time.Duration `yaml:"session_ttl"`
}

// LogConfig controls the slog setup.
type LogConfig struct {
	// Level is "debug", "info", "warn", or "error".
	Level string `yaml:"level"`
	// Format is "text" or "json".
	Format string `yaml:"format"`
}

// Config is the root configuration.
type Config struct {
	Assistant  AssistantConfig   `yaml:"assistant"`
	Database   store.Config      `yaml:"database"`
	Gateway    gateway.Config    `yaml:"gateway"`
	Twilio     twilio.Config     `yaml:"twilio"`
	WhatsApp   whatsapp.Config   `yaml:"whatsapp"`
	ChunkHound chunkhound.Config `yaml:"chunkhound"`
	Scheduler  scheduler.Config  `yaml:"scheduler"`
	Log        LogConfig         `yaml:"log"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		Assistant: AssistantConfig{
			Name:       "WhatsHound",
			SessionTTL: 24 * time.Hour,
		},
		WhatsApp: whatsapp.DefaultConfig(),
		Log:      LogConfig{Level: "info", Format: "text"},
	}
}

// envVarPattern matches ${VAR} and ${VAR:-default} in config values.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// Load reads the config file, expands environment references, and overlays
// credentials from the environment. A missing path yields defaults.
func Load(path string) (*Config, error) {
	// .env is best-effort and never overwrites existing env vars.
	_ = godotenv.Load()

	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		expanded := expandEnvVars(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parsing config YAML: %w", err)
		}
	}

	resolveSecrets(cfg)
	return cfg, nil
}

// FindConfigFile searches the standard config locations and returns the
// first that exists, or "".
func FindConfigFile() string {
	candidates := []string{
		"config.yaml",
		"config.yml",
		"whatshound.yaml",
		"whatshound.yml",
		"configs/whatshound.yaml",
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// expandEnvVars substitutes ${VAR} and ${VAR:-default} references.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if v, ok := os.LookupEnv(groups[1]); ok {
			return v
		}
		return groups[2]
	})
}

// resolveSecrets overlays credentials from well-known environment variables
// onto empty config fields, so secrets never need to live in the YAML.
func resolveSecrets(cfg *Config) {
	if v := os.Getenv("TWILIO_ACCOUNT_SID"); v != "" && cfg.Twilio.AccountSID == "" {
		cfg.Twilio.AccountSID = v
	}
	if v := os.Getenv("TWILIO_AUTH_TOKEN"); v != "" && cfg.Twilio.AuthToken == "" {
		cfg.Twilio.AuthToken = v
	}
	if v := os.Getenv("TWILIO_WHATSAPP_FROM"); v != "" && cfg.Twilio.From == "" {
		cfg.Twilio.From = v
	}
	if v := os.Getenv("CHUNKHOUND_PROJECT_PATH"); v != "" && cfg.ChunkHound.ProjectPath == "" {
		cfg.ChunkHound.ProjectPath = v
	}
}
