package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds server configuration values.
type Config struct {
	Addr            string        `mapstructure:"addr" yaml:"addr"`
	MetricsAddr     string        `mapstructure:"metrics_addr" yaml:"metrics_addr"`
	LogDir          string        `mapstructure:"log_dir" yaml:"log_dir"`
	LogLevel        string        `mapstructure:"log_level" yaml:"log_level"`
	LogFormat       string        `mapstructure:"log_format" yaml:"log_format"`
	MaxClients      int           `mapstructure:"max_clients" yaml:"max_clients"`
	MaxNameLength   int           `mapstructure:"max_name_length" yaml:"max_name_length"`
	MaxMessageSize  int           `mapstructure:"max_message_size" yaml:"max_message_size"`
	ListRooms       int           `mapstructure:"list_rooms" yaml:"list_rooms"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	AdminConsole    bool          `mapstructure:"admin_console" yaml:"admin_console"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:            ":5100",
		MetricsAddr:     ":9090",
		LogDir:          "logs",
		LogLevel:        "info",
		LogFormat:       "json",
		MaxClients:      64,
		MaxNameLength:   64,
		MaxMessageSize:  1024,
		ListRooms:       5,
		WriteTimeout:    5 * time.Second,
		ShutdownTimeout: 5 * time.Second,
		AdminConsole:    true,
	}
}

// Validate reports every setting that cannot be used to start a server.
func (c Config) Validate() error {
	var errs []error
	if c.Addr == "" {
		errs = append(errs, errors.New("addr must not be empty"))
	}
	if c.LogDir == "" {
		errs = append(errs, errors.New("log_dir must not be empty"))
	}
	if c.MaxClients <= 0 {
		errs = append(errs, fmt.Errorf("max_clients must be positive, got %d", c.MaxClients))
	}
	if c.MaxNameLength <= 0 {
		errs = append(errs, fmt.Errorf("max_name_length must be positive, got %d", c.MaxNameLength))
	}
	if c.MaxMessageSize <= 0 {
		errs = append(errs, fmt.Errorf("max_message_size must be positive, got %d", c.MaxMessageSize))
	}
	if c.ListRooms < 0 {
		errs = append(errs, fmt.Errorf("list_rooms must not be negative, got %d", c.ListRooms))
	}
	if c.WriteTimeout < 0 || c.ShutdownTimeout < 0 {
		errs = append(errs, errors.New("timeouts must not be negative"))
	}
	return errors.Join(errs...)
}
