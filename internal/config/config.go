package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Port          int
	DatabaseURL   string
	StoreDriver   string
	SQLitePath    string
	NatsURL       string
	NatsToken     string
	LogLevel      string
	MaxUploadMB   int
	SlackBotToken string
	SlackChannel  string
}

var defaults = map[string]any{
	"historico_port":  8760,
	"database_url":    "",
	"store_driver":    "postgres",
	"sqlite_path":     "historico.db",
	"nats_url":        "",
	"nats_token":      "",
	"log_level":       "info",
	"max_upload_mb":   50,
	"slack_bot_token": "",
	"slack_channel":   "",
}

// Load reads configuration from the environment. When path is non-empty (or
// HISTORICO_CONFIG is set) the YAML file there supplies values that the
// environment has not set.
func Load(path string) (Config, error) {
	v := viper.New()
	for key, val := range defaults {
		v.SetDefault(key, val)
	}
	v.AutomaticEnv()

	if path == "" {
		path = v.GetString("historico_config")
	}
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	return Config{
		Port:          intOr(v, "historico_port"),
		DatabaseURL:   v.GetString("database_url"),
		StoreDriver:   strings.ToLower(v.GetString("store_driver")),
		SQLitePath:    v.GetString("sqlite_path"),
		NatsURL:       v.GetString("nats_url"),
		NatsToken:     v.GetString("nats_token"),
		LogLevel:      v.GetString("log_level"),
		MaxUploadMB:   intOr(v, "max_upload_mb"),
		SlackBotToken: v.GetString("slack_bot_token"),
		SlackChannel:  v.GetString("slack_channel"),
	}, nil
}

// intOr parses key as an integer, falling back to the default on garbage.
func intOr(v *viper.Viper, key string) int {
	if n, err := strconv.Atoi(strings.TrimSpace(v.GetString(key))); err == nil {
		return n
	}
	return defaults[key].(int)
}
