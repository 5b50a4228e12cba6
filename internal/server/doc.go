// Package server implements the core routing and delivery engine for Courier.
//
// The implementation is organized into specialized files for configuration,
// the presence registry, direct-message routing, channel pub/sub, the
// deletion scheduler, session lifecycle, clients, and HTTP handlers to keep
// the codebase maintainable and testable as the project grows.
package server
