// Package envelope validates and normalizes inbound provider notifications
// into canonical pending events. Malformed input is rejected with a bad-input
// error before anything is durably recorded.
package envelope
