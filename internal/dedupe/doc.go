// Package dedupe provides update deduplication using a time-based cache
// to prevent processing redelivered Telegram updates within a configurable
// window.
package dedupe
