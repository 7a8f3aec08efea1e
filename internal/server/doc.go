// Package server implements the core WebSocket server functionality for
// chatrelay: the hub that owns presence and room state, per-connection
// clients, event routing under the configured policy, and graceful shutdown.
//
// The implementation is organized into specialized files for the hub,
// clients, protocol types, routing, and HTTP handlers to keep the codebase
// maintainable and testable as the project grows.
package server
