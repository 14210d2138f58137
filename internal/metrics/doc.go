// Package metrics implements the engine's in-process counters. Counters
// are plain atomics with no external dependency; exporters live under
// metrics/export in the public tree.
package metrics
