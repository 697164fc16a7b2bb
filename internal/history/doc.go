// Package history keeps a local SQLite ledger of messages sent to and
// received from the gateway, for the /history command and offline review.
package history
