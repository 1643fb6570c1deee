// Package bridge implements the protocol interfaces over a WebSocket
// connection to a provider bridge.
//
// Each dialed session is one WebSocket: the client announces the identity in
// a connect frame, the bridge answers with lifecycle and traffic events, and
// follow/join/send commands are acknowledged by id. Heartbeats run both ways;
// a bridge that stops answering pings is reported as a lost transport so the
// supervisor can retry.
package bridge
