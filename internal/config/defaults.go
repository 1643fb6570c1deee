package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultLogLevel = "info"

	DefaultListenAddr         = ":8080"
	DefaultRequestTimeout     = 30 * time.Second
	DefaultAPIShutdownTimeout = 10 * time.Second

	DefaultBridgeURL        = "ws://localhost:8765/session"
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultWriteTimeout     = 5 * time.Second
	DefaultAckTimeout       = 10 * time.Second
	DefaultPingInterval     = 30 * time.Second
	DefaultPongTimeout      = 90 * time.Second
	DefaultBufferSize       = 256

	DefaultStoreBackend = "badger"
	DefaultBadgerPath   = "data/sessions"
	DefaultDBPort       = 5432
	DefaultDBSSLMode    = "prefer"
	DefaultMaxConns     = 10
	DefaultMinConns     = 2

	DefaultMaxRestartAttempts = 5
	DefaultRestartDelay       = 5 * time.Second
	DefaultPairingGrace       = 2 * time.Minute
	DefaultShutdownTimeout    = 15 * time.Second

	DefaultStartupDelay = 3 * time.Second
	DefaultSpacing      = 2 * time.Second
)

func (c *Config) applyDefaults() {
	// Log defaults
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}

	// API defaults
	if c.API.ListenAddr == "" {
		c.API.ListenAddr = DefaultListenAddr
	}
	if c.API.RequestTimeout == 0 {
		c.API.RequestTimeout = DefaultRequestTimeout
	}
	if c.API.ShutdownTimeout == 0 {
		c.API.ShutdownTimeout = DefaultAPIShutdownTimeout
	}

	// Bridge defaults
	if c.Bridge.URL == "" {
		c.Bridge.URL = DefaultBridgeURL
	}
	if c.Bridge.HandshakeTimeout == 0 {
		c.Bridge.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Bridge.WriteTimeout == 0 {
		c.Bridge.WriteTimeout = DefaultWriteTimeout
	}
	if c.Bridge.AckTimeout == 0 {
		c.Bridge.AckTimeout = DefaultAckTimeout
	}
	if c.Bridge.PingInterval == 0 {
		c.Bridge.PingInterval = DefaultPingInterval
	}
	if c.Bridge.PongTimeout == 0 {
		c.Bridge.PongTimeout = DefaultPongTimeout
	}
	if c.Bridge.BufferSize == 0 {
		c.Bridge.BufferSize = DefaultBufferSize
	}

	// Store defaults
	if c.Store.Backend == "" {
		c.Store.Backend = DefaultStoreBackend
	}
	if c.Store.Badger.Path == "" {
		c.Store.Badger.Path = DefaultBadgerPath
	}
	applyDBDefaults(&c.Store.Postgres)

	// Supervisor defaults
	if c.Supervisor.MaxRestartAttempts == 0 {
		c.Supervisor.MaxRestartAttempts = DefaultMaxRestartAttempts
	}
	if c.Supervisor.RestartDelay == 0 {
		c.Supervisor.RestartDelay = DefaultRestartDelay
	}
	if c.Supervisor.PairingGrace == 0 {
		c.Supervisor.PairingGrace = DefaultPairingGrace
	}
	if c.Supervisor.ShutdownTimeout == 0 {
		c.Supervisor.ShutdownTimeout = DefaultShutdownTimeout
	}

	// Reconcile defaults
	if c.Reconcile.StartupDelay == 0 {
		c.Reconcile.StartupDelay = DefaultStartupDelay
	}
	if c.Reconcile.Spacing == 0 {
		c.Reconcile.Spacing = DefaultSpacing
	}
}

func applyDBDefaults(db *PostgresConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
