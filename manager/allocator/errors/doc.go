// Package errors holds the error kinds returned by the address allocator, the
// address range and the range registry. Every kind is an unexported type with
// an ErrXxx constructor and an IsErrXxx predicate, so callers can branch on the
// kind of failure without string matching, even after the error has been
// wrapped by a storage layer.
package errors
