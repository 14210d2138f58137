// Package rate implements the per-address sliding-window limiter that
// gates every login attempt before any credential lookup happens.
//
// Each address keeps a rolling window of attempt timestamps. Crossing the
// threshold installs a block with a fixed duration; the check-and-record
// step runs as a single Lua script so concurrent attempts from the same
// address are serialized by Redis.
package rate
