package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/lodisdb/lodis/command"
	"github.com/lodisdb/lodis/resp"
	"github.com/lodisdb/lodis/sandbox"
)

// Eval runs a script by body. args is the full command line:
// ["eval", body, numkeys, key..., arg...].
func (e *Engine) Eval(ctx context.Context, caller *command.Session, args []string) ([]byte, error) {
	return e.evalGeneric(ctx, caller, args, false)
}

// EvalSha runs a cached script by digest. args is the full command line:
// ["evalsha", digest, numkeys, key..., arg...]. A digest with no cached
// script yields ErrNoScript; EvalSha never compiles.
func (e *Engine) EvalSha(ctx context.Context, caller *command.Session, args []string) ([]byte, error) {
	return e.evalGeneric(ctx, caller, args, true)
}

func (e *Engine) evalGeneric(ctx context.Context, caller *command.Session, args []string, fromSha bool) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	name := "eval"
	if fromSha {
		name = "evalsha"
	}
	if len(args) < 3 {
		return nil, fmt.Errorf("ERR wrong number of arguments for '%s' command", name)
	}
	numkeys, err := strconv.Atoi(args[2])
	if err != nil {
		return nil, errors.New("ERR value is not an integer or out of range")
	}
	if numkeys < 0 {
		return nil, ErrNumKeysNegative
	}
	if numkeys > len(args)-3 {
		return nil, ErrNumKeysRange
	}

	e.resetInvocation(caller)
	defer func() { e.caller = nil }()

	var digest string
	if fromSha {
		digest = strings.ToLower(args[1])
	} else {
		digest = sandbox.Sha1Hex(args[1])
	}
	fn, funcname, err := e.resolveOrCompile(args[1], digest, fromSha)
	if err != nil {
		return nil, err
	}

	e.bindArrays(args[3:3+numkeys], args[3+numkeys:])

	keyIdx := make([]int, numkeys)
	for i := range keyIdx {
		keyIdx[i] = 3 + i
	}
	lockCtx := ctx
	if e.lockTimeout > 0 {
		var cancel context.CancelFunc
		lockCtx, cancel = context.WithTimeout(ctx, e.lockTimeout)
		defer cancel()
	}
	release, err := e.locks.LockAll(lockCtx, e.sess, args, keyIdx, command.LockExclusive)
	if err != nil {
		return nil, &LockError{Err: err}
	}
	defer release()

	errh, _ := e.L.G.Global.RawGetString("__redis__err__handler").(*lua.LFunction)
	e.started = time.Now()
	stop := e.armMonitor(ctx)
	e.L.Push(fn)
	perr := e.L.PCall(0, 1, errh)
	stop()

	if perr != nil {
		e.L.SetTop(0)
		if msg := e.takeKillMsg(); msg != "" {
			return nil, &KilledError{Reason: msg}
		}
		return nil, e.runError(funcname, perr)
	}
	ret := e.L.Get(-1)
	reply := resp.EncodeLua(ret)
	e.L.SetTop(0)
	return reply, nil
}

// resetInvocation clears all per-invocation state. Randomness is reseeded to
// a fixed value so identical invocations observe identical draws.
func (e *Engine) resetInvocation(caller *command.Session) {
	e.caller = caller
	e.sess.SyncFrom(caller)
	e.rand.Seed(0)
	e.inCall = false
	e.randomDirty = false
	e.replicateCommands = false
	e.writeDirty.Store(false)
	e.timedOut.Store(false)
	e.takeKillMsg()
}

// bindArrays publishes KEYS and ARGV. Raw global writes bypass the sandbox's
// globals protection metatable.
func (e *Engine) bindArrays(keys, argv []string) {
	keysTab := e.L.NewTable()
	for i, k := range keys {
		keysTab.RawSetInt(i+1, lua.LString(k))
	}
	argvTab := e.L.NewTable()
	for i, a := range argv {
		argvTab.RawSetInt(i+1, lua.LString(a))
	}
	e.L.G.Global.RawSetString("KEYS", keysTab)
	e.L.G.Global.RawSetString("ARGV", argvTab)
}

// runError shapes a script failure. Error tables carry a ready error reply
// line in their err field and surface verbatim; anything else is wrapped
// with the cached function name.
func (e *Engine) runError(funcname string, err error) error {
	var apiErr *lua.ApiError
	if errors.As(err, &apiErr) {
		if tab, ok := apiErr.Object.(*lua.LTable); ok {
			if msg := tab.RawGetString("err"); msg != lua.LNil {
				return errors.New(resp.SanitizeLine(msg.String()))
			}
		}
	}
	return &RunError{Func: funcname, Detail: resp.SanitizeLine(err.Error())}
}
