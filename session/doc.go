// Package session implements the bounded per-identity session store.
//
// Each identity holds at most a configured number of live sessions
// (default 5). Static session fields live in a JSON blob keyed by session
// ID; last-activity ordering lives in a per-identity sorted set scored by
// activity time. Creation beyond capacity evicts the least recently active
// sessions inside a single Lua script, so two concurrent logins for the
// same identity can never overshoot the cap.
package session
