// Package session implements the connection supervisor.
//
// The Supervisor:
//   - Owns start/stop/restart of per-identity provider sessions
//   - Serializes work per identity with a keyed lock table; distinct
//     identities never block each other
//   - Tracks live connections in a registry (at most one per identity)
//   - Classifies disconnects into purge / ignore / retry and applies a
//     fixed-delay, bounded retry policy with a terminal gave-up state
//   - Runs ordered post-connect hooks and publishes lifecycle events
//
// The Reconciler restores previously active identities at process start,
// spacing the connect attempts to avoid a burst against the provider.
package session
