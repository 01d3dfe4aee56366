// Package guard evaluates the only_if and not_if predicates that make
// resource actions idempotent.
//
// A resource runs when every only_if predicate holds and no not_if
// predicate holds. Predicates are read-only probes: a command exit status,
// a match on command output, a file test, or a closure over the attribute
// store. A probe that cannot run (missing binary, permission denied) counts
// as false and is reported as a warning; it never fails the run by itself.
//
// Nothing is cached. Each Evaluate call probes again, because another node
// may have changed the cluster in the meantime.
package guard
