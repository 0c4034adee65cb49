// Package engine runs scripts against a command table inside a hardened
// interpreter. One Engine owns one interpreter; invocations on it are
// serialized, and the content-addressed function cache lives in the
// interpreter's globals so a script compiled once is reused by every later
// invocation of the same body.
package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/lodisdb/lodis/command"
	"github.com/lodisdb/lodis/sandbox"
)

// Engine executes scripts. Construct with New, release with Close.
type Engine struct {
	table command.Table
	exec  command.Executor
	locks command.LockManager
	ctl   command.Control
	log   *zap.Logger

	timeLimit    time.Duration
	hookInterval time.Duration
	lockTimeout  time.Duration
	clusterMode  bool

	// mu serializes invocations; everything below it is owned by the
	// invocation holding it, except the fields noted as monitor-shared.
	mu   sync.Mutex
	L    *lua.LState
	rand *sandbox.Rand

	// sess is the engine's bound non-networked session; caller is the
	// session of the client whose invocation is running.
	sess   *command.Session
	caller *command.Session

	inCall            bool
	randomDirty       bool
	replicateCommands bool

	// Monitor-shared state.
	writeDirty atomic.Bool
	timedOut   atomic.Bool
	started    time.Time

	killMu  sync.Mutex
	killMsg string
}

// New builds an Engine over the given collaborators. table and exec are
// usually the same object; they are split so a dispatch wrapper can be
// layered over a raw table.
func New(table command.Table, exec command.Executor, locks command.LockManager, ctl command.Control, opts ...Option) *Engine {
	e := &Engine{
		table:        table,
		exec:         exec,
		locks:        locks,
		ctl:          ctl,
		log:          zap.NewNop(),
		timeLimit:    defaultTimeLimit,
		hookInterval: defaultHookInterval,
		lockTimeout:  defaultLockTimeout,
		rand:         sandbox.NewRand(),
		sess:         &command.Session{InScript: true},
	}
	for _, opt := range opts {
		opt(e)
	}
	e.L = e.newInterpreter()
	return e
}

// Close releases the interpreter. The engine must not be used afterwards.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.L.Close()
}

// Flush discards every cached script by replacing the interpreter with a
// fresh hardened one.
func (e *Engine) Flush() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.L.Close()
	e.L = e.newInterpreter()
}

// newInterpreter creates a hardened interpreter wired to this engine's
// gateway and control hooks.
func (e *Engine) newInterpreter() *lua.LState {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	sandbox.Install(L, sandbox.Capabilities{
		Call:              e.luaCall,
		PCall:             e.luaPCall,
		Log:               e.luaLog,
		ReplicateCommands: e.luaReplicateCommands,
		Rand:              e.rand,
	})
	return L
}

// armMonitor starts the goroutine that watches a running script. It warns
// once when the advisory time limit is crossed and cancels the interpreter
// context when a kill is permitted or the server is stopping. The returned
// stop function tears the monitor down and detaches the context.
func (e *Engine) armMonitor(ctx context.Context) (stop func()) {
	runCtx, cancel := context.WithCancel(ctx)
	e.L.SetContext(runCtx)

	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(e.hookInterval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
			}
			if e.timeLimit > 0 && !e.timedOut.Load() && time.Since(e.started) > e.timeLimit {
				e.timedOut.Store(true)
				e.log.Warn("slow script detected, still running",
					zap.Duration("elapsed", time.Since(e.started)),
					zap.Duration("limit", e.timeLimit))
			}
			if e.ctl.ServerStopping() {
				e.setKillMsg("ERR Lua script aborted because the server is shutting down")
				cancel()
				return
			}
			if e.ctl.KillRequested() && !e.writeDirty.Load() {
				e.setKillMsg("ERR Lua script killed by user with SCRIPT KILL...")
				cancel()
				return
			}
		}
	}()

	return func() {
		cancel()
		<-done
		e.L.RemoveContext()
	}
}

func (e *Engine) setKillMsg(msg string) {
	e.killMu.Lock()
	e.killMsg = msg
	e.killMu.Unlock()
}

func (e *Engine) takeKillMsg() string {
	e.killMu.Lock()
	defer e.killMu.Unlock()
	msg := e.killMsg
	e.killMsg = ""
	return msg
}
