// Package dedupe tracks recently seen gateway message IDs in a TTL cache
// so replayed response frames are dropped instead of resolving requests.
package dedupe
