// Package server exposes the admin HTTP API: session start/stop/restart
// triggers, status inspection, and a health probe.
//
// The API is a thin shell over the session supervisor; it owns no session
// state of its own. Writes are authenticated with a static bearer token when
// one is configured.
package server
