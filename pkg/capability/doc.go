// Package capability builds and serves the capability registry: the set
// of remote operations the identity platform exposes, derived from an
// externally supplied machine-readable API description.
//
// Descriptors are immutable once the registry is built. The registry is
// read-only after Build and safe for concurrent use without locking.
// Argument validation against a descriptor's parameter schema happens
// before any invocation is attempted; see the invoker subpackage.
package capability
