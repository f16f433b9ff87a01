package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	envPrefix         = "ROOMCHAT"
	defaultConfigName = "roomchat.yaml"
)

// Load builds configuration from defaults, an optional YAML file and
// ROOMCHAT_* env vars, and returns the file path that was read ("" if none).
// Precedence: defaults < config file < env vars < caller overrides.
func Load(logger *slog.Logger, explicitPath string) (Config, string, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetDefault("addr", cfg.Addr)
	v.SetDefault("metrics_addr", cfg.MetricsAddr)
	v.SetDefault("log_dir", cfg.LogDir)
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("log_format", cfg.LogFormat)
	v.SetDefault("max_clients", cfg.MaxClients)
	v.SetDefault("max_name_length", cfg.MaxNameLength)
	v.SetDefault("max_message_size", cfg.MaxMessageSize)
	v.SetDefault("list_rooms", cfg.ListRooms)
	v.SetDefault("write_timeout", cfg.WriteTimeout)
	v.SetDefault("shutdown_timeout", cfg.ShutdownTimeout)
	v.SetDefault("admin_console", cfg.AdminConsole)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	configPath := resolveConfigPath(explicitPath)
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if explicitPath == "" && (errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist)) {
				configPath = ""
			} else {
				return cfg, configPath, fmt.Errorf("read config: %w", err)
			}
		} else {
			logger.Debug("config file loaded", "path", configPath)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, configPath, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, configPath, nil
}

// WriteYAML renders cfg the way it would be written to a config file.
func WriteYAML(w io.Writer, cfg Config) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return enc.Close()
}

func resolveConfigPath(explicitPath string) string {
	if explicitPath != "" {
		return explicitPath
	}
	if _, err := os.Stat(defaultConfigName); err == nil {
		return defaultConfigName
	}
	return ""
}
