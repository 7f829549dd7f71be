// Package config loads CardioRisk configuration from a YAML file, a .env file
// and CARDIORISK_* environment variables.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/opensource-finance/cardiorisk/internal/domain"
)

// EnvPrefix prefixes every environment override, e.g. CARDIORISK_SERVER_PORT.
const EnvPrefix = "CARDIORISK"

// Load builds the configuration. Defaults come from the tier selected by the
// file or CARDIORISK_TIER; the file overrides defaults and the environment
// overrides both. An empty path skips the file.
func Load(path string) (*domain.Config, error) {
	if err := loadEnvFile(".env"); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	base := domain.DefaultConfig()
	if domain.Tier(v.GetString("tier")) == domain.TierPro {
		base = domain.ProConfig()
	}
	if err := setDefaults(v, base); err != nil {
		return nil, err
	}
	for _, key := range secretKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	cfg := &domain.Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// PORT is the platform convention for the listen port.
	if _, ok := os.LookupEnv(EnvPrefix + "_SERVER_PORT"); !ok {
		if port := os.Getenv("PORT"); port != "" {
			p, err := strconv.Atoi(port)
			if err != nil {
				return nil, fmt.Errorf("invalid PORT %q: %w", port, err)
			}
			cfg.Server.Port = p
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// secretKeys are excluded from JSON and so have no default to hang an
// environment override on.
var secretKeys = []string{
	"repository.postgresPassword",
	"cache.redisPassword",
	"eventBus.natsToken",
}

func loadEnvFile(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("failed to load %s: %w", path, err)
}

// setDefaults registers every leaf of base as a viper default so that
// AutomaticEnv can override keys the file never mentions.
func setDefaults(v *viper.Viper, base *domain.Config) error {
	data, err := json.Marshal(base)
	if err != nil {
		return fmt.Errorf("failed to encode defaults: %w", err)
	}
	var tree map[string]any
	if err := json.Unmarshal(data, &tree); err != nil {
		return fmt.Errorf("failed to decode defaults: %w", err)
	}
	flatten("", tree, v.SetDefault)
	return nil
}

func flatten(prefix string, node map[string]any, set func(string, any)) {
	for k, val := range node {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if child, ok := val.(map[string]any); ok {
			flatten(key, child, set)
			continue
		}
		set(key, val)
	}
}

// Validate checks that the configuration names supported components and
// sensible limits.
func Validate(cfg *domain.Config) error {
	switch cfg.Tier {
	case domain.TierCommunity, domain.TierPro:
	default:
		return fmt.Errorf("tier must be %q or %q, got %q", domain.TierCommunity, domain.TierPro, cfg.Tier)
	}

	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", cfg.Server.Port)
	}
	if cfg.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("server.maxUploadBytes must be positive")
	}

	if cfg.Artifacts.Dir == "" {
		return fmt.Errorf("artifacts.dir is required")
	}
	if cfg.Pipeline.Workers < 1 {
		return fmt.Errorf("pipeline.workers must be at least 1, got %d", cfg.Pipeline.Workers)
	}
	if cfg.Pipeline.HighRiskThreshold < 0 || cfg.Pipeline.HighRiskThreshold > 100 {
		return fmt.Errorf("pipeline.highRiskThreshold must be between 0 and 100, got %g", cfg.Pipeline.HighRiskThreshold)
	}

	switch cfg.Repository.Driver {
	case "sqlite", "postgres", "none":
	default:
		return fmt.Errorf("unsupported repository driver: %s", cfg.Repository.Driver)
	}
	switch cfg.Cache.Type {
	case "memory", "redis":
	default:
		return fmt.Errorf("unsupported cache type: %s", cfg.Cache.Type)
	}
	switch cfg.EventBus.Type {
	case "channel", "nats":
	default:
		return fmt.Errorf("unsupported event bus type: %s", cfg.EventBus.Type)
	}

	switch strings.ToLower(cfg.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unsupported log level: %s", cfg.Logging.Level)
	}
	switch cfg.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("unsupported log format: %s", cfg.Logging.Format)
	}
	return nil
}
