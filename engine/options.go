package engine

import (
	"time"

	"go.uber.org/zap"
)

const (
	defaultTimeLimit    = 5 * time.Second
	defaultHookInterval = 10 * time.Millisecond
	defaultLockTimeout  = 5 * time.Second
)

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithLogger sets the logger. The default discards everything.
func WithLogger(log *zap.Logger) Option {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// WithTimeLimit sets the advisory script time limit. Exceeding it is logged
// but never interrupts the script on its own; only a kill request or server
// shutdown does. Zero disables the warning.
func WithTimeLimit(d time.Duration) Option {
	return func(e *Engine) { e.timeLimit = d }
}

// WithHookInterval sets how often the execution monitor polls control
// signals while a script runs.
func WithHookInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.hookInterval = d
		}
	}
}

// WithLockTimeout bounds how long an invocation may wait to acquire its
// declared key set. Zero waits as long as the invocation context allows.
func WithLockTimeout(d time.Duration) Option {
	return func(e *Engine) { e.lockTimeout = d }
}

// WithClusterMode enables the cluster-only gateway checks, such as refusing
// writes on behalf of a read-only caller.
func WithClusterMode(on bool) Option {
	return func(e *Engine) { e.clusterMode = on }
}
