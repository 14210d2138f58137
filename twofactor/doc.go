// Package twofactor implements second-factor verification: time-based
// one-time passwords with a bounded clock-skew window, and single-use
// backup codes stored as SHA-256 hashes.
package twofactor
