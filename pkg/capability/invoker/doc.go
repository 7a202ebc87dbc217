// Package invoker executes capability invocations against an identity
// platform's admin API. Arguments are validated against the descriptor's
// parameter schema before anything touches the network, and every result
// is classified into exactly one outcome. The invoker itself never
// retries: retry policy belongs to the caller, which knows the
// capability's side-effect class.
package invoker
