// Package command defines the surface through which the scripting engine
// talks to the rest of the server: command descriptors and their flags, the
// command table used for prechecks, the executor that dispatches a command
// against a session, the key-lock manager, and the script-control signals
// polled during execution.
//
// The engine consumes these as narrow interfaces; the store and keylock
// packages carry the reference implementations.
package command

import "context"

// Flags describe command properties the gateway consults before dispatch.
type Flags uint32

const (
	// FlagWrite marks commands that may modify the keyspace.
	FlagWrite Flags = 1 << iota
	// FlagReadOnly marks commands that never modify the keyspace.
	FlagReadOnly
	// FlagNoScript marks commands that must not run inside a script.
	FlagNoScript
	// FlagRandom marks commands with non-deterministic output.
	FlagRandom
	// FlagSortForScript marks commands whose multi-bulk output must be
	// sorted before a script sees it, so whole-script replication stays
	// deterministic.
	FlagSortForScript
)

// Descriptor is the per-command metadata looked up by name.
//
// Arity follows the usual convention: a positive value is the exact argument
// count including the command name, a negative value is the minimum.
type Descriptor struct {
	Name  string
	Arity int
	Flags Flags
}

// Has reports whether all bits of f are set.
func (d *Descriptor) Has(f Flags) bool {
	return d.Flags&f == f
}

// AcceptsArity reports whether n arguments satisfy the descriptor.
func (d *Descriptor) AcceptsArity(n int) bool {
	if d.Arity < 0 {
		return n >= -d.Arity
	}
	return n == d.Arity
}

// Table resolves and validates a command line before execution.
type Table interface {
	// Precheck looks up args[0] and validates arity. The returned error is
	// surfaced to the script verbatim as an error reply.
	Precheck(args []string) (*Descriptor, error)
}

// Executor runs one command against a session and returns its encoded wire
// reply. Command-level failures are expected inside the reply (a '-' error
// reply); the error return is reserved for executor-level failures and is
// also translated into an error reply by the caller.
type Executor interface {
	Exec(sess *Session, args []string) ([]byte, error)
}

// LockMode selects lock semantics for LockAll.
type LockMode int

const (
	// LockExclusive grants a writer lock.
	LockExclusive LockMode = iota
	// LockShared grants a reader lock.
	LockShared
)

// LockManager acquires locks on every key a script declares, atomically with
// respect to other multi-key acquisitions. Acquisition order must be
// canonicalized by the manager (by key, never by argument position) so
// overlapping declarations cannot deadlock.
type LockManager interface {
	// LockAll locks args[i] for every i in keyIndices on behalf of sess and
	// returns a release function. On failure nothing stays locked.
	LockAll(ctx context.Context, sess *Session, args []string, keyIndices []int, mode LockMode) (func(), error)
}

// Control exposes the signals the execution monitor polls while a script
// runs.
type Control interface {
	// KillRequested reports whether an operator asked for the running script
	// to be aborted.
	KillRequested() bool
	// ServerStopping reports whether the server is shutting down.
	ServerStopping() bool
}
