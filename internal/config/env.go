package config

import (
	"fmt"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix is the prefix for environment overrides.
const EnvPrefix = "LINKWATCH"

// Env holds the settings that may come from the environment instead of
// the config file. Empty values leave the file value alone.
type Env struct {
	TelegramToken string `envconfig:"TELEGRAM_TOKEN"`
	DiscordToken  string `envconfig:"DISCORD_TOKEN"`
	LogLevel      string `envconfig:"LOG_LEVEL"`
	StoragePath   string `envconfig:"STORAGE_PATH"`
	HTTPToken     string `envconfig:"HTTP_TOKEN"`
}

// LoadEnv reads LINKWATCH_* variables.
func LoadEnv() (Env, error) {
	var e Env
	if err := envconfig.Process(EnvPrefix, &e); err != nil {
		return Env{}, fmt.Errorf("env: %w", err)
	}
	return e, nil
}

// Overlay copies non-empty env values onto cfg.
func (e Env) Overlay(cfg *Config) {
	if cfg == nil {
		return
	}
	set := func(dst *string, v string) {
		if v = strings.TrimSpace(v); v != "" {
			*dst = v
		}
	}
	set(&cfg.Telegram.Token, e.TelegramToken)
	set(&cfg.Discord.Token, e.DiscordToken)
	set(&cfg.Logging.Level, e.LogLevel)
	set(&cfg.Storage.Path, e.StoragePath)
	set(&cfg.HTTP.Token, e.HTTPToken)
}
