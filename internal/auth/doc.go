// Package auth resolves the opaque auth token the bridge forwards during
// the gateway handshake, and inspects JWT-shaped tokens for early expiry
// warnings. Verification is the gateway's job; nothing here checks
// signatures.
package auth
