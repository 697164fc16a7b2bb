// Package bridge maintains a persistent WebSocket session to a coven
// gateway, sends user text and correlates asynchronous replies back to
// the caller that issued them.
//
// # Overview
//
// The Client wraps one transport connection at a time behind a small
// state machine (Disconnected, Connecting, Connected). It handles
// connection establishment and handshake, reconnection with exponential
// backoff, request correlation, per-request timeouts, and draining of
// in-flight work on disconnect.
//
// # Usage
//
//	client, err := bridge.New(bridge.Options{
//	    ResolveURL: cfg.ResolveURL,
//	    Dialect:    bridge.NewGatewayDialect(bridge.GatewayDialectConfig{Token: token}),
//	})
//	...
//	resp := client.SendMessage(ctx, "hello")
//	if resp == nil {
//	    // timed out, disconnected, or unreachable
//	}
//
// # Failure model
//
// SendMessage never returns an error. Every failure mode (unreachable
// gateway, handshake rejection, request timeout, disconnect with work in
// flight, a malformed reply) resolves the affected request with nil.
// The connectivity subscription (SubscribeConnectivity) is the
// out-of-band signal for "currently unable to serve requests".
//
// # Reconnection
//
// A drop from Connected schedules automatic reconnects with delays of
// 1s, 2s and 4s. After three consecutive failures the client stays down
// until an explicit Connect or SendMessage. A failed initial Connect
// never auto-retries.
//
// # Dialects
//
// Two wire protocols are supported behind the Dialect interface: the
// keyed request/response gateway protocol (with a connect handshake) and
// the legacy single-in-flight unkeyed protocol. A session speaks exactly
// one dialect.
package bridge
