package topo

import "fmt"

// MisuseError reports a violation of the runtime's strict-LIFO
// contract: a non-LIFO frame release. Use of a Runtime or a
// Local/SharedLocal cache from a second goroutine is not detected and
// does not produce a MisuseError.
//
// Per the error-handling model, misuse is always fatal — there is no
// recoverable path once stack discipline is broken, so callers should treat a MisuseError as a programming bug
// rather than something to retry.
type MisuseError struct {
	Op     string
	Detail string
}

func (e *MisuseError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("topo: misuse in %s", e.Op)
	}
	return fmt.Sprintf("topo: misuse in %s: %s", e.Op, e.Detail)
}

func misuse(op, detail string) *MisuseError {
	return &MisuseError{Op: op, Detail: detail}
}

// InitError wraps a failure returned by a cache entry's initializer.
// GetOrInit never stores a value alongside an InitError — the entry
// is removed before the error is returned, so a retry sees a clean
// miss rather than a poisoned entry.
type InitError struct {
	Scope CallId
	Cause error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("topo: initializer failed for scope %s: %v", e.Scope, e.Cause)
}

func (e *InitError) Unwrap() error {
	return e.Cause
}

func wrapInit(scope CallId, cause error) error {
	if cause == nil {
		return nil
	}
	return &InitError{Scope: scope, Cause: cause}
}
