// Package config provides Viper-based configuration loading for the lobby server.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig holds the HTTP/websocket listener settings.
type ServerConfig struct {
	// Host is the bind address.
	Host string `mapstructure:"host"`
	// Port is the TCP port.
	Port int `mapstructure:"port"`
	// ShutdownTimeout bounds graceful shutdown, including closing every game.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// WriteTimeout is the per-frame websocket write deadline.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// PongTimeout is how long a websocket may stay silent before it is dropped.
	// Pings are sent at 9/10 of this interval.
	PongTimeout time.Duration `mapstructure:"pong_timeout"`
	// MaxMessageBytes caps the size of one inbound websocket message.
	MaxMessageBytes int64 `mapstructure:"max_message_bytes"`
	// AllowedOrigins lists browser origins allowed to open websockets.
	// Empty means same-host and loopback origins only.
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Addr returns the "host:port" listen address.
//
// Postcondition: Returns a non-empty string in "host:port" format.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LobbyConfig holds per-session settings.
type LobbyConfig struct {
	// DefaultCapacity is the seat count of games created without one.
	DefaultCapacity int `mapstructure:"default_capacity"`
	// MaxCapacity is the largest seat count a client may request.
	MaxCapacity int `mapstructure:"max_capacity"`
	// ScriptsDir holds calls.yaml and the Lua scripts it names. Empty disables
	// scripted calls.
	ScriptsDir string `mapstructure:"scripts_dir"`
	// ScriptInstructionLimit caps Lua opcodes per scripted call; 0 uses the default.
	ScriptInstructionLimit int `mapstructure:"script_instruction_limit"`
	// IdleGameTimeout is how long a game may have no clients before it is
	// closed and removed. 0 keeps idle games forever.
	IdleGameTimeout time.Duration `mapstructure:"idle_game_timeout"`
	// ReapInterval is how often idle games are looked for.
	ReapInterval time.Duration `mapstructure:"reap_interval"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
	// Service is attached to every log entry as the "service" field.
	Service string `mapstructure:"service"`
}

// Config is the top-level application configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Lobby   LobbyConfig   `mapstructure:"lobby"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	if err := validateServer(c.Server); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateLobby(c.Lobby); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateLogging(c.Logging); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateServer(s ServerConfig) error {
	var errs []string
	if s.Port < 0 || s.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 0-65535, got %d", s.Port))
	}
	if s.ShutdownTimeout <= 0 {
		errs = append(errs, "server.shutdown_timeout must be positive")
	}
	if s.WriteTimeout <= 0 {
		errs = append(errs, "server.write_timeout must be positive")
	}
	if s.PongTimeout <= 0 {
		errs = append(errs, "server.pong_timeout must be positive")
	}
	if s.MaxMessageBytes < 1 {
		errs = append(errs, fmt.Sprintf("server.max_message_bytes must be >= 1, got %d", s.MaxMessageBytes))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateLobby(l LobbyConfig) error {
	var errs []string
	if l.DefaultCapacity < 1 {
		errs = append(errs, fmt.Sprintf("lobby.default_capacity must be >= 1, got %d", l.DefaultCapacity))
	}
	if l.MaxCapacity < l.DefaultCapacity {
		errs = append(errs, "lobby.max_capacity must not be below lobby.default_capacity")
	}
	if l.ScriptInstructionLimit < 0 {
		errs = append(errs, fmt.Sprintf("lobby.script_instruction_limit must be >= 0, got %d", l.ScriptInstructionLimit))
	}
	if l.IdleGameTimeout < 0 {
		errs = append(errs, "lobby.idle_game_timeout must not be negative")
	}
	if l.IdleGameTimeout > 0 && l.ReapInterval <= 0 {
		errs = append(errs, "lobby.reap_interval must be positive when lobby.idle_game_timeout is set")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	if strings.TrimSpace(l.Service) == "" {
		return fmt.Errorf("logging.service must not be empty")
	}
	return nil
}

// Load reads configuration from the given file path, applies environment variable
// overrides, and validates the result. An empty path loads defaults and
// environment overrides only.
//
// Precondition: path must be empty or a readable YAML file.
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := viper.New()

	// Environment variable overrides with LOBBY_ prefix
	v.SetEnvPrefix("LOBBY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
	}

	return LoadFromViper(v)
}

// LoadFromViper builds a Config from an already-configured Viper instance.
//
// Precondition: v must be non-nil and have configuration values set.
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("server.pong_timeout", "60s")
	v.SetDefault("server.max_message_bytes", 64*1024)
	v.SetDefault("server.allowed_origins", []string{})

	v.SetDefault("lobby.default_capacity", 4)
	v.SetDefault("lobby.max_capacity", 16)
	v.SetDefault("lobby.scripts_dir", "")
	v.SetDefault("lobby.script_instruction_limit", 0)
	v.SetDefault("lobby.idle_game_timeout", "0s")
	v.SetDefault("lobby.reap_interval", "30s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.service", "lobbyserver")
}
