package config

import (
	"log/slog"
	"time"
)

// Config is the root configuration for a sessiond instance.
type Config struct {
	Instance   InstanceConfig   `yaml:"instance"`
	Log        LogConfig        `yaml:"log"`
	API        APIConfig        `yaml:"api"`
	Bridge     BridgeConfig     `yaml:"bridge"`
	Store      StoreConfig      `yaml:"store"`
	Supervisor SupervisorConfig `yaml:"supervisor"`
	Reconcile  ReconcileConfig  `yaml:"reconcile"`
	Hooks      HooksConfig      `yaml:"hooks"`
}

// InstanceConfig identifies this sessiond.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// SlogLevel maps the configured level name onto slog. Unknown names fall back
// to info.
func (l LogConfig) SlogLevel() slog.Level {
	switch l.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// APIConfig holds admin HTTP API settings.
type APIConfig struct {
	ListenAddr      string        `yaml:"listen_addr"`
	AuthToken       string        `yaml:"auth_token"` // empty disables auth
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// BridgeConfig holds provider bridge connection settings.
type BridgeConfig struct {
	URL              string        `yaml:"url"`
	AuthToken        string        `yaml:"auth_token"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	AckTimeout       time.Duration `yaml:"ack_timeout"`
	PingInterval     time.Duration `yaml:"ping_interval"`
	PongTimeout      time.Duration `yaml:"pong_timeout"`
	BufferSize       int           `yaml:"buffer_size"`
}

// StoreConfig selects and configures the credential store backend.
type StoreConfig struct {
	Backend  string         `yaml:"backend"` // memory, badger, postgres
	Badger   BadgerConfig   `yaml:"badger"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// BadgerConfig holds the embedded store settings.
type BadgerConfig struct {
	Path string `yaml:"path"`
}

// PostgresConfig holds a PostgreSQL connection.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// SupervisorConfig holds session lifecycle settings.
type SupervisorConfig struct {
	MaxRestartAttempts int           `yaml:"max_restart_attempts"`
	RestartDelay       time.Duration `yaml:"restart_delay"`
	PairingGrace       time.Duration `yaml:"pairing_grace"`
	ShutdownTimeout    time.Duration `yaml:"shutdown_timeout"`
}

// ReconcileConfig holds startup reconciliation settings.
type ReconcileConfig struct {
	StartupDelay time.Duration `yaml:"startup_delay"`
	Spacing      time.Duration `yaml:"spacing"`
}

// HooksConfig holds the post-connect hook settings.
type HooksConfig struct {
	Channels       []string `yaml:"channels"`
	Groups         []string `yaml:"groups"`
	WelcomeMessage string   `yaml:"welcome_message"`
}
