// Package sandbox turns a bare Lua interpreter into the hardened environment
// scripts execute in: a curated standard library, the redis table of host
// capabilities, deterministic randomness, data-format modules, and a
// metatable on the globals table that rejects stray global reads and writes.
package sandbox

import (
	"crypto/sha1"
	"encoding/hex"

	lua "github.com/yuin/gopher-lua"
	luajson "layeh.com/gopher-json"
)

// Log level constants exposed on the redis table.
const (
	LogDebug = iota
	LogVerbose
	LogNotice
	LogWarning
)

// Capabilities are the host hooks Install binds into the redis table. Call
// and PCall carry command execution; Log receives (level, message...);
// ReplicateCommands flips the invocation into effect replication. Rand backs
// math.random and math.randomseed.
type Capabilities struct {
	Call              lua.LGFunction
	PCall             lua.LGFunction
	Log               lua.LGFunction
	ReplicateCommands lua.LGFunction
	Rand              *Rand
}

// Sha1Hex returns the lowercase hex SHA-1 digest of s.
func Sha1Hex(s string) string {
	sum := sha1.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// Install hardens L in place. It is idempotent; a state that already carries
// a redis table is left untouched. The order matters: libraries and host
// bindings first, globals protection last, so the installation itself is not
// subject to the protection it sets up.
func Install(L *lua.LState, caps Capabilities) {
	if L.GetGlobal("redis") != lua.LNil {
		return
	}

	openLibraries(L)
	removeLoaders(L)

	L.SetGlobal("cjson", loadModule(L, luajson.Loader))
	L.SetGlobal("cmsgpack", openMsgpack(L))
	L.SetGlobal("bit", openBit(L))

	installRedisTable(L, caps)
	installRandom(L, caps.Rand)

	if err := L.DoString(helperChunk); err != nil {
		panic("sandbox: helper chunk: " + err.Error())
	}
	if err := L.DoString(protectGlobalsChunk); err != nil {
		panic("sandbox: globals protection chunk: " + err.Error())
	}
}

// openLibraries loads only the standard libraries scripts are allowed to
// see. The package library is loaded because the string library registers
// through it, then its globals are withdrawn by removeLoaders.
func openLibraries(L *lua.LState) {
	libs := []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.LoadLibName, lua.OpenPackage},
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	}
	for _, lib := range libs {
		L.Push(L.NewFunction(lib.fn))
		L.Push(lua.LString(lib.name))
		L.Call(1, 0)
	}
}

// removeLoaders strips every primitive that can reach the filesystem or pull
// in code from outside the script body.
func removeLoaders(L *lua.LState) {
	for _, name := range []string{"loadfile", "dofile", "require", "package", "module"} {
		L.SetGlobal(name, lua.LNil)
	}
}

func loadModule(L *lua.LState, loader lua.LGFunction) lua.LValue {
	L.Push(L.NewFunction(loader))
	L.Call(0, 1)
	mod := L.Get(-1)
	L.Pop(1)
	return mod
}

func installRedisTable(L *lua.LState, caps Capabilities) {
	redis := L.NewTable()
	redis.RawSetString("call", L.NewFunction(caps.Call))
	redis.RawSetString("pcall", L.NewFunction(caps.PCall))
	redis.RawSetString("log", L.NewFunction(caps.Log))
	redis.RawSetString("replicate_commands", L.NewFunction(caps.ReplicateCommands))
	redis.RawSetString("error_reply", L.NewFunction(redisErrorReply))
	redis.RawSetString("status_reply", L.NewFunction(redisStatusReply))
	redis.RawSetString("sha1hex", L.NewFunction(redisSha1Hex))
	redis.RawSetString("LOG_DEBUG", lua.LNumber(LogDebug))
	redis.RawSetString("LOG_VERBOSE", lua.LNumber(LogVerbose))
	redis.RawSetString("LOG_NOTICE", lua.LNumber(LogNotice))
	redis.RawSetString("LOG_WARNING", lua.LNumber(LogWarning))
	L.SetGlobal("redis", redis)
}

func redisErrorReply(L *lua.LState) int {
	t := L.NewTable()
	t.RawSetString("err", lua.LString(L.CheckString(1)))
	L.Push(t)
	return 1
}

func redisStatusReply(L *lua.LState) int {
	t := L.NewTable()
	t.RawSetString("ok", lua.LString(L.CheckString(1)))
	L.Push(t)
	return 1
}

func redisSha1Hex(L *lua.LState) int {
	L.Push(lua.LString(Sha1Hex(L.CheckString(1))))
	return 1
}

// installRandom rebinds math.random and math.randomseed onto the
// deterministic generator, mirroring the C library rand semantics scripts
// were written against.
func installRandom(L *lua.LState, r *Rand) {
	math := L.GetGlobal("math").(*lua.LTable)
	math.RawSetString("random", L.NewFunction(func(L *lua.LState) int {
		f := float64(r.Next()) / float64(RandMax)
		switch L.GetTop() {
		case 0:
			L.Push(lua.LNumber(f))
		case 1:
			upper := int64(L.CheckNumber(1))
			if upper < 1 {
				L.ArgError(1, "interval is empty")
			}
			L.Push(lua.LNumber(int64(f*float64(upper)) + 1))
		default:
			lower := int64(L.CheckNumber(1))
			upper := int64(L.CheckNumber(2))
			if lower > upper {
				L.ArgError(2, "interval is empty")
			}
			L.Push(lua.LNumber(int64(f*float64(upper-lower+1)) + lower))
		}
		return 1
	}))
	math.RawSetString("randomseed", L.NewFunction(func(L *lua.LState) int {
		r.Seed(int64(L.CheckNumber(1)))
		return 0
	}))
}

// helperChunk defines the comparator used to sort replies from commands with
// undefined ordering, and the error handler wrapped around every script call
// to keep raised tables intact while decorating plain string errors.
const helperChunk = `
function __redis__compare_helper(a, b)
  if a == false then a = '' end
  if b == false then b = '' end
  return a < b
end

function __redis__err__handler(err)
  if type(err) == 'table' and err.err ~= nil then
    return err
  end
  return {err = 'user_script: ' .. tostring(err)}
end
`

// protectGlobalsChunk seals the globals table. Scripts run after this chunk
// cannot create or read undeclared globals; the host bypasses the metatable
// with raw access when it binds KEYS, ARGV, and cached script functions.
const protectGlobalsChunk = `
local mt = {}
mt.__newindex = function (t, n, v)
  error("Script attempted to create global variable '" .. tostring(n) .. "'", 2)
end
mt.__index = function (t, n)
  error("Script attempted to access nonexistent global variable '" .. tostring(n) .. "'", 2)
end
setmetatable(_G, mt)
`
