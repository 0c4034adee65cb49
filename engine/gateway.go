package engine

import (
	"strconv"
	"strings"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/lodisdb/lodis/command"
	"github.com/lodisdb/lodis/resp"
	"github.com/lodisdb/lodis/sandbox"
)

// luaCall backs redis.call: command failures abort the script.
func (e *Engine) luaCall(L *lua.LState) int { return e.dispatch(L, true) }

// luaPCall backs redis.pcall: command failures come back as error tables.
func (e *Engine) luaPCall(L *lua.LState) int { return e.dispatch(L, false) }

// dispatch is the command gateway. It validates the call, enforces the
// script-visible command policy, executes, and translates the wire reply
// into the script's data model.
func (e *Engine) dispatch(L *lua.LState, raise bool) int {
	if e.inCall {
		e.log.Warn("recursive gateway call rejected")
		return e.fail(L, raise, "ERR redis.call() is not allowed from inside redis.call()")
	}
	e.inCall = true
	defer func() { e.inCall = false }()

	e.sess.SyncFrom(e.caller)

	argc := L.GetTop()
	if argc == 0 {
		return e.fail(L, raise, "Please specify at least one argument for redis.call()")
	}
	args := make([]string, argc)
	for i := 1; i <= argc; i++ {
		switch v := L.Get(i).(type) {
		case lua.LString:
			args[i-1] = string(v)
		case lua.LNumber:
			args[i-1] = strconv.FormatFloat(float64(v), 'g', 17, 64)
		default:
			return e.fail(L, raise, "Lua redis() command arguments must be strings or integers")
		}
	}

	desc, err := e.table.Precheck(args)
	if err != nil {
		return e.fail(L, raise, err.Error())
	}
	if desc.Has(command.FlagNoScript) {
		return e.fail(L, raise, "This Redis command is not allowed from scripts")
	}
	if desc.Has(command.FlagWrite) {
		if e.randomDirty && !e.replicateCommands {
			return e.fail(L, raise, "Write commands not allowed after non deterministic commands. Call redis.replicate_commands() at the start of your script in order to switch to single commands replication mode.")
		}
		if e.clusterMode && e.caller != nil && e.caller.ReadOnly {
			return e.fail(L, raise, "READONLY You can't write against a read only replica.")
		}
		e.writeDirty.Store(true)
	}
	if desc.Has(command.FlagRandom) {
		e.randomDirty = true
	}

	reply, err := e.exec.Exec(e.sess, args)
	if err != nil {
		return e.fail(L, raise, err.Error())
	}
	lv, _, err := resp.DecodeLua(L, reply)
	if err != nil {
		return e.fail(L, raise, "ERR malformed reply from command '"+desc.Name+"': "+err.Error())
	}

	if raise && len(reply) > 0 && reply[0] == '-' {
		L.Error(lv, 0)
		return 0
	}
	// Ordering only matters for whole-script replication; once the script
	// switched to single-command replication the reply passes through as-is.
	if desc.Has(command.FlagSortForScript) && !e.replicateCommands {
		e.sortReply(L, lv)
	}
	L.Push(lv)
	return 1
}

// fail reports a gateway failure: raised for redis.call, returned as an
// error table for redis.pcall.
func (e *Engine) fail(L *lua.LState, raise bool, msg string) int {
	t := L.NewTable()
	t.RawSetString("err", lua.LString(resp.SanitizeLine(msg)))
	if raise {
		L.Error(t, 0)
		return 0
	}
	L.Push(t)
	return 1
}

// sortReply orders a multi-bulk reply with the comparator that tolerates
// false holes, so commands with unspecified result order stay deterministic
// for whole-script replication. Non-tables pass through untouched.
func (e *Engine) sortReply(L *lua.LState, lv lua.LValue) {
	tab, ok := lv.(*lua.LTable)
	if !ok {
		return
	}
	tableLib, ok := e.L.G.Global.RawGetString("table").(*lua.LTable)
	if !ok {
		return
	}
	sortFn := tableLib.RawGetString("sort")
	cmp := e.L.G.Global.RawGetString("__redis__compare_helper")
	if err := L.CallByParam(lua.P{Fn: sortFn, NRet: 0, Protect: true}, tab, cmp); err != nil {
		e.log.Debug("reply sort failed", zap.Error(err))
	}
}

// luaLog backs redis.log. Arguments after the level are joined with spaces;
// only strings and numbers are accepted.
func (e *Engine) luaLog(L *lua.LState) int {
	argc := L.GetTop()
	if argc < 2 {
		L.RaiseError("redis.log() requires two arguments or more.")
		return 0
	}
	level := L.Get(1)
	if _, ok := level.(lua.LNumber); !ok {
		L.RaiseError("First argument must be a number (log level).")
		return 0
	}
	parts := make([]string, 0, argc-1)
	for i := 2; i <= argc; i++ {
		switch v := L.Get(i).(type) {
		case lua.LString:
			parts = append(parts, string(v))
		case lua.LNumber:
			parts = append(parts, v.String())
		default:
			L.RaiseError("Lua redis.log() command arguments must be strings or numbers")
			return 0
		}
	}
	msg := strings.Join(parts, " ")
	switch int(level.(lua.LNumber)) {
	case sandbox.LogDebug, sandbox.LogVerbose:
		e.log.Debug(msg, zap.String("source", "script"))
	case sandbox.LogNotice:
		e.log.Info(msg, zap.String("source", "script"))
	case sandbox.LogWarning:
		e.log.Warn(msg, zap.String("source", "script"))
	default:
		L.RaiseError("Invalid debug level.")
	}
	return 0
}

// luaReplicateCommands backs redis.replicate_commands. Switching is refused
// once the invocation has already written.
func (e *Engine) luaReplicateCommands(L *lua.LState) int {
	if e.writeDirty.Load() {
		L.Push(lua.LFalse)
		return 1
	}
	e.replicateCommands = true
	L.Push(lua.LTrue)
	return 1
}
