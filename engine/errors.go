package engine

import (
	"errors"
	"fmt"
)

// Error strings carry their wire error code so callers can encode them into
// an error reply verbatim.
var (
	// ErrNoScript is returned when a digest-based invocation misses the
	// script cache.
	ErrNoScript = errors.New("NOSCRIPT No matching script. Please use EVAL.")

	// ErrNumKeysNegative rejects a negative declared key count.
	ErrNumKeysNegative = errors.New("ERR Number of keys can't be negative")

	// ErrNumKeysRange rejects a declared key count that exceeds the
	// trailing arguments.
	ErrNumKeysRange = errors.New("ERR Number of keys can't be greater than number of args")
)

// CompileError reports a script body that failed to compile.
type CompileError struct {
	Detail string
}

func (e *CompileError) Error() string {
	return "ERR Error compiling script (new function): " + e.Detail
}

// RunError reports a script that failed at runtime with an error the script
// did not shape into an error reply itself.
type RunError struct {
	// Func is the cached function name the script runs as.
	Func   string
	Detail string
}

func (e *RunError) Error() string {
	return fmt.Sprintf("ERR Error running script (call to %s): %s", e.Func, e.Detail)
}

// KilledError reports a script aborted by the execution monitor.
type KilledError struct {
	Reason string
}

func (e *KilledError) Error() string { return e.Reason }

// LockError reports a failure to acquire the declared key set.
type LockError struct {
	Err error
}

func (e *LockError) Error() string {
	return "ERR Error acquiring script key locks: " + e.Err.Error()
}

func (e *LockError) Unwrap() error { return e.Err }
