// Package api defines the core domain types for the ausweis orchestration
// service: sessions, turns, capability call payloads, access decisions,
// the error taxonomy, and status transition rules.
//
// This package is the dependency-free core that every other package
// imports. It must not depend on any other ausweis package or on
// third-party libraries.
package api
