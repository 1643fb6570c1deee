// Package database provides PostgreSQL connection pool management for the
// postgres session-store backend.
package database
