// Package internal holds cross-cutting helpers shared by the authcore
// engine and its subpackages: session ID generation and backup-code
// canonicalization. Nothing here is part of the public API.
package internal
