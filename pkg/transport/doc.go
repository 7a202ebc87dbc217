// Package transport defines the handler interfaces and middleware chain
// for the ausweis HTTP control surface.
//
// The transport layer bridges external drivers and the orchestration
// engine. It deserializes incoming requests into the core types defined
// in pkg/api, dispatches them to a SessionController, and serializes
// session state back to the client.
//
// # Handler Interfaces
//
// SessionStarter handles the core start-session operation and is the
// target of the middleware chain. SessionController extends it with the
// query and cancel operations every driver needs.
//
// # Middleware
//
// The middleware chain wraps SessionStarter with cross-cutting concerns:
// panic recovery, request ID assignment (X-Request-ID), and structured
// logging via log/slog.
package transport
