// Package config loads server settings from defaults, an optional YAML file,
// OMNIASSIST_* environment variables and command-line flags, in increasing
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/omniassist/server/llm"
)

const EnvPrefix = "OMNIASSIST"

var ErrMissingAuthToken = errors.New("server.auth_token is required (use --auth-token or OMNIASSIST_SERVER_AUTH_TOKEN)")

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Store     StoreConfig     `mapstructure:"store"`
	Model     ModelConfig     `mapstructure:"model"`
	Assistant AssistantConfig `mapstructure:"assistant"`
	Sessions  SessionsConfig  `mapstructure:"sessions"`
	Desktop   DesktopConfig   `mapstructure:"desktop"`
}

type ServerConfig struct {
	Port      int    `mapstructure:"port"`
	AuthToken string `mapstructure:"auth_token"`
	DevMode   bool   `mapstructure:"dev_mode"`
	DataDir   string `mapstructure:"data_dir"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type StoreConfig struct {
	// URL selects the key-value backend, e.g. file:///var/lib/omniassist,
	// redis://localhost:6379/0 or postgres://.... Empty means files in the
	// data directory.
	URL string `mapstructure:"url"`
}

type ModelConfig struct {
	Provider  string        `mapstructure:"provider"`
	Name      string        `mapstructure:"name"`
	APIKey    string        `mapstructure:"api_key"`
	Endpoint  string        `mapstructure:"endpoint"`
	Timeout   time.Duration `mapstructure:"timeout"`
	MaxTokens int           `mapstructure:"max_tokens"`
}

type AssistantConfig struct {
	Name string `mapstructure:"name"`
}

type SessionsConfig struct {
	StoreKey        string `mapstructure:"store_key"`
	DefaultTitle    string `mapstructure:"default_title"`
	SortPinned      bool   `mapstructure:"sort_pinned"`
	InterimTitleMax int    `mapstructure:"interim_title_max"`
}

type DesktopConfig struct {
	// AppsFile is a YAML application catalog, watched for changes.
	AppsFile string `mapstructure:"apps_file"`
}

// Default returns every setting's default value.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:    8080,
			DataDir: ".omniassist",
		},
		Log: LogConfig{Level: "info"},
		Model: ModelConfig{
			Provider: string(llm.DefaultProvider),
			Timeout:  60 * time.Second,
		},
		Assistant: AssistantConfig{Name: "Assistant"},
		Sessions: SessionsConfig{
			StoreKey:        "chatSessions",
			DefaultTitle:    "New Chat",
			SortPinned:      true,
			InterimTitleMax: 50,
		},
	}
}

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"port":       "server.port",
	"auth-token": "server.auth_token",
	"dev":        "server.dev_mode",
	"data-dir":   "server.data_dir",
	"log-level":  "log.level",
	"store":      "store.url",
	"provider":   "model.provider",
	"model":      "model.name",
	"endpoint":   "model.endpoint",
	"timeout":    "model.timeout",
	"apps-file":  "desktop.apps_file",
}

type Options struct {
	// File is an explicit config file. When empty, config.yaml is looked up
	// in the working directory and ~/.omniassist; a missing file is fine.
	File string
	// Flags overrides file and environment values for flags that were set.
	Flags *pflag.FlagSet
}

func Load(opts Options) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetConfigType("yaml")
	if opts.File != "" {
		v.SetConfigFile(opts.File)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".omniassist"))
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if opts.File != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if opts.Flags != nil {
		for name, key := range flagKeys {
			if f := opts.Flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.applyKeyFallback()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.auth_token", d.Server.AuthToken)
	v.SetDefault("server.dev_mode", d.Server.DevMode)
	v.SetDefault("server.data_dir", d.Server.DataDir)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("store.url", d.Store.URL)
	v.SetDefault("model.provider", d.Model.Provider)
	v.SetDefault("model.name", d.Model.Name)
	v.SetDefault("model.api_key", d.Model.APIKey)
	v.SetDefault("model.endpoint", d.Model.Endpoint)
	v.SetDefault("model.timeout", d.Model.Timeout)
	v.SetDefault("model.max_tokens", d.Model.MaxTokens)
	v.SetDefault("assistant.name", d.Assistant.Name)
	v.SetDefault("sessions.store_key", d.Sessions.StoreKey)
	v.SetDefault("sessions.default_title", d.Sessions.DefaultTitle)
	v.SetDefault("sessions.sort_pinned", d.Sessions.SortPinned)
	v.SetDefault("sessions.interim_title_max", d.Sessions.InterimTitleMax)
	v.SetDefault("desktop.apps_file", d.Desktop.AppsFile)
}

// applyKeyFallback reads the provider's conventional key variable when no
// key was configured.
func (c *Config) applyKeyFallback() {
	if c.Model.APIKey != "" {
		return
	}
	switch llm.Provider(c.Model.Provider) {
	case llm.ProviderGemini:
		c.Model.APIKey = os.Getenv("GEMINI_API_KEY")
	case llm.ProviderOpenAI:
		c.Model.APIKey = os.Getenv("OPENAI_API_KEY")
	}
}

func (c *Config) validate() error {
	if !llm.Provider(c.Model.Provider).IsValid() {
		return fmt.Errorf("unknown model provider %q", c.Model.Provider)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Model.Timeout < 0 {
		return fmt.Errorf("invalid model timeout %s", c.Model.Timeout)
	}
	return nil
}

// RequireAuthToken is checked by commands that serve the network API.
func (c *Config) RequireAuthToken() error {
	if c.Server.AuthToken == "" {
		return ErrMissingAuthToken
	}
	return nil
}

// ResolveDataDir makes the data directory absolute.
func (c *Config) ResolveDataDir() error {
	abs, err := filepath.Abs(c.Server.DataDir)
	if err != nil {
		return fmt.Errorf("resolve data directory: %w", err)
	}
	c.Server.DataDir = abs
	return nil
}
