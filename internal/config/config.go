// Package config provides Viper-based configuration loading for the pong server.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store backend identifiers.
const (
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendMemory   = "memory"
)

// ServerConfig holds top-level server settings.
type ServerConfig struct {
	// Name identifies this server instance in logs and published events.
	Name string `mapstructure:"name"`
}

// StoreConfig selects and tunes the Account Store backend.
type StoreConfig struct {
	// Backend is one of "postgres", "sqlite", or "memory".
	Backend string `mapstructure:"backend"`
	// SQLitePath is the database file used by the sqlite backend.
	SQLitePath string `mapstructure:"sqlite_path"`
	// SeedFile is an optional YAML file of accounts applied at startup.
	SeedFile string `mapstructure:"seed_file"`
	// Timeout bounds every individual Account Store call.
	Timeout time.Duration `mapstructure:"timeout"`
	// FallbackToMemory starts on the in-memory store with demo accounts when the
	// durable backend cannot be opened.
	FallbackToMemory bool `mapstructure:"fallback_to_memory"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// DSN returns the PostgreSQL connection string.
//
// Precondition: Host, Port, User, and Name must be non-empty.
// Postcondition: Returns a valid PostgreSQL DSN string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// WebSocketConfig holds the client-facing WebSocket listener settings.
type WebSocketConfig struct {
	// Host is the bind address for the HTTP listener.
	Host string `mapstructure:"host"`
	// Port is the TCP port for the HTTP listener.
	Port int `mapstructure:"port"`
	// Path is the HTTP route upgraded to WebSocket.
	Path string `mapstructure:"path"`
	// ReadTimeout is how long a connection may stay silent (no frame, no pong).
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout is the per-frame write deadline.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// PingInterval is how often the server pings an idle client. Must be below ReadTimeout.
	PingInterval time.Duration `mapstructure:"ping_interval"`
	// SendBuffer is the number of outbound frames queued per connection.
	SendBuffer int `mapstructure:"send_buffer"`
	// MaxMessageSize is the largest inbound frame accepted, in bytes.
	MaxMessageSize int64 `mapstructure:"max_message_size"`
}

// Addr returns the "host:port" listen address.
//
// Postcondition: Returns a non-empty string in "host:port" format.
func (w WebSocketConfig) Addr() string {
	return fmt.Sprintf("%s:%d", w.Host, w.Port)
}

// OpsConfig holds the operational gRPC (health) listener settings.
type OpsConfig struct {
	GRPCHost string `mapstructure:"grpc_host"`
	// GRPCPort of 0 disables the ops listener.
	GRPCPort int `mapstructure:"grpc_port"`
}

// Enabled reports whether the ops listener should be started.
func (o OpsConfig) Enabled() bool {
	return o.GRPCPort != 0
}

// Addr returns the "host:port" gRPC address.
func (o OpsConfig) Addr() string {
	return fmt.Sprintf("%s:%d", o.GRPCHost, o.GRPCPort)
}

// EventsConfig holds match-result publishing settings.
type EventsConfig struct {
	// NATSURL is the NATS server URL. Empty disables publishing.
	NATSURL string `mapstructure:"nats_url"`
	// Subject is the NATS subject match results are published on.
	Subject string `mapstructure:"subject"`
}

// Enabled reports whether match results should be published.
func (e EventsConfig) Enabled() bool {
	return e.NATSURL != ""
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// GameConfig holds match timing and scoring settings.
type GameConfig struct {
	// TickRate is the number of simulation steps per second.
	TickRate int `mapstructure:"tick_rate"`
	// StartDelay is the grace period between both players readying and kickoff.
	StartDelay time.Duration `mapstructure:"start_delay"`
	// EndDelay is the pause between the final goal and the lobby reset.
	EndDelay time.Duration `mapstructure:"end_delay"`
	// WinningScore is the score that ends a match.
	WinningScore int `mapstructure:"winning_score"`
}

// TickInterval returns the duration of one simulation step.
//
// Precondition: TickRate > 0.
func (g GameConfig) TickInterval() time.Duration {
	return time.Second / time.Duration(g.TickRate)
}

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Store     StoreConfig     `mapstructure:"store"`
	Database  DatabaseConfig  `mapstructure:"database"`
	WebSocket WebSocketConfig `mapstructure:"websocket"`
	Ops       OpsConfig       `mapstructure:"ops"`
	Events    EventsConfig    `mapstructure:"events"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Game      GameConfig      `mapstructure:"game"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	if c.Server.Name == "" {
		errs = append(errs, "server.name must not be empty")
	}
	if err := validateStore(c.Store); err != nil {
		errs = append(errs, err.Error())
	}
	if c.Store.Backend == BackendPostgres {
		if err := c.Database.Validate(); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if err := validateWebSocket(c.WebSocket); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateOps(c.Ops); err != nil {
		errs = append(errs, err.Error())
	}
	if c.Events.Enabled() && c.Events.Subject == "" {
		errs = append(errs, "events.subject must not be empty when events.nats_url is set")
	}
	if err := validateLogging(c.Logging); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateGame(c.Game); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateStore(s StoreConfig) error {
	var errs []string
	switch s.Backend {
	case BackendPostgres, BackendMemory:
	case BackendSQLite:
		if s.SQLitePath == "" {
			errs = append(errs, "store.sqlite_path must not be empty for the sqlite backend")
		}
	default:
		errs = append(errs, fmt.Sprintf("store.backend must be one of [postgres, sqlite, memory], got %q", s.Backend))
	}
	if s.Timeout <= 0 {
		errs = append(errs, fmt.Sprintf("store.timeout must be positive, got %s", s.Timeout))
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// Validate checks the database settings on their own, for tools that only
// talk to PostgreSQL.
func (d DatabaseConfig) Validate() error {
	var errs []string
	if d.Host == "" {
		errs = append(errs, "database.host must not be empty")
	}
	if d.Port < 1 || d.Port > 65535 {
		errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", d.Port))
	}
	if d.User == "" {
		errs = append(errs, "database.user must not be empty")
	}
	if d.Name == "" {
		errs = append(errs, "database.name must not be empty")
	}
	validSSL := map[string]bool{"disable": true, "require": true, "verify-ca": true, "verify-full": true}
	if !validSSL[d.SSLMode] {
		errs = append(errs, fmt.Sprintf("database.sslmode must be one of [disable, require, verify-ca, verify-full], got %q", d.SSLMode))
	}
	if d.MaxConns < 1 {
		errs = append(errs, fmt.Sprintf("database.max_conns must be >= 1, got %d", d.MaxConns))
	}
	if d.MinConns < 0 {
		errs = append(errs, fmt.Sprintf("database.min_conns must be >= 0, got %d", d.MinConns))
	}
	if d.MinConns > d.MaxConns {
		errs = append(errs, "database.min_conns must not exceed database.max_conns")
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func validateWebSocket(w WebSocketConfig) error {
	var errs []string
	if w.Port < 1 || w.Port > 65535 {
		errs = append(errs, fmt.Sprintf("websocket.port must be 1-65535, got %d", w.Port))
	}
	if !strings.HasPrefix(w.Path, "/") {
		errs = append(errs, fmt.Sprintf("websocket.path must start with '/', got %q", w.Path))
	}
	if w.ReadTimeout <= 0 {
		errs = append(errs, "websocket.read_timeout must be positive")
	}
	if w.WriteTimeout <= 0 {
		errs = append(errs, "websocket.write_timeout must be positive")
	}
	if w.PingInterval <= 0 || w.PingInterval >= w.ReadTimeout {
		errs = append(errs, "websocket.ping_interval must be positive and below websocket.read_timeout")
	}
	if w.SendBuffer < 1 {
		errs = append(errs, fmt.Sprintf("websocket.send_buffer must be >= 1, got %d", w.SendBuffer))
	}
	if w.MaxMessageSize < 1 {
		errs = append(errs, fmt.Sprintf("websocket.max_message_size must be >= 1, got %d", w.MaxMessageSize))
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func validateOps(o OpsConfig) error {
	if o.GRPCPort < 0 || o.GRPCPort > 65535 {
		return fmt.Errorf("ops.grpc_port must be 0-65535, got %d", o.GRPCPort)
	}
	if o.Enabled() && o.GRPCHost == "" {
		return errors.New("ops.grpc_host must not be empty when ops.grpc_port is set")
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
	return nil
}

func validateGame(g GameConfig) error {
	var errs []string
	if g.TickRate < 1 {
		errs = append(errs, fmt.Sprintf("game.tick_rate must be >= 1, got %d", g.TickRate))
	}
	if g.StartDelay < 0 {
		errs = append(errs, "game.start_delay must not be negative")
	}
	if g.EndDelay < 0 {
		errs = append(errs, "game.end_delay must not be negative")
	}
	if g.WinningScore < 1 {
		errs = append(errs, fmt.Sprintf("game.winning_score must be >= 1, got %d", g.WinningScore))
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// Load reads configuration from the given file path, applies environment variable
// overrides, and validates the result.
//
// Precondition: path must be a valid file path to a YAML configuration file.
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// Environment variable overrides with PONG_ prefix
	v.SetEnvPrefix("PONG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
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

// SetDefaults registers the default value of every configuration key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.name", "pong")

	v.SetDefault("store.backend", BackendMemory)
	v.SetDefault("store.sqlite_path", "pong.db")
	v.SetDefault("store.timeout", "5s")
	v.SetDefault("store.fallback_to_memory", true)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "pong")
	v.SetDefault("database.password", "pong")
	v.SetDefault("database.name", "pong")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")

	v.SetDefault("websocket.host", "0.0.0.0")
	v.SetDefault("websocket.port", 3000)
	v.SetDefault("websocket.path", "/ws")
	v.SetDefault("websocket.read_timeout", "60s")
	v.SetDefault("websocket.write_timeout", "10s")
	v.SetDefault("websocket.ping_interval", "54s")
	v.SetDefault("websocket.send_buffer", 256)
	v.SetDefault("websocket.max_message_size", 4096)

	v.SetDefault("ops.grpc_host", "127.0.0.1")
	v.SetDefault("ops.grpc_port", 50051)

	v.SetDefault("events.nats_url", "")
	v.SetDefault("events.subject", "pong.match.result")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("game.tick_rate", 60)
	v.SetDefault("game.start_delay", "1s")
	v.SetDefault("game.end_delay", "3s")
	v.SetDefault("game.winning_score", 5)
}
