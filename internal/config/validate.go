package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn, or error, got %q", c.Log.Level)
	}

	if c.Bridge.URL == "" {
		return errors.New("bridge.url is required")
	}

	switch c.Store.Backend {
	case "memory":
	case "badger":
		if c.Store.Badger.Path == "" {
			return errors.New("store.badger.path is required")
		}
	case "postgres":
		if err := c.Store.Postgres.validate("store.postgres"); err != nil {
			return err
		}
	default:
		return fmt.Errorf("store.backend must be memory, badger, or postgres, got %q", c.Store.Backend)
	}

	if c.Supervisor.MaxRestartAttempts < 0 {
		return errors.New("supervisor.max_restart_attempts must be >= 0")
	}
	if c.Supervisor.RestartDelay < 0 {
		return errors.New("supervisor.restart_delay must be >= 0")
	}
	if c.Reconcile.Spacing < 0 {
		return errors.New("reconcile.spacing must be >= 0")
	}

	return nil
}

func (db *PostgresConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
