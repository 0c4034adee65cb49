package sandbox

import (
	"bytes"
	"io"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
	lua "github.com/yuin/gopher-lua"
)

// openMsgpack builds the "cmsgpack" module table with pack and unpack.
func openMsgpack(L *lua.LState) *lua.LTable {
	mod := L.NewTable()
	mod.RawSetString("pack", L.NewFunction(msgpackPack))
	mod.RawSetString("unpack", L.NewFunction(msgpackUnpack))
	return mod
}

// msgpackPack encodes each argument in order and returns the concatenated
// binary payload as a string.
func msgpackPack(L *lua.LState) int {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	for i := 1; i <= L.GetTop(); i++ {
		if err := enc.Encode(luaToGo(L.Get(i))); err != nil {
			L.RaiseError("cmsgpack.pack: %s", err.Error())
		}
	}
	L.Push(lua.LString(buf.String()))
	return 1
}

// msgpackUnpack decodes every object in the payload, returning one Lua value
// per decoded object.
func msgpackUnpack(L *lua.LState) int {
	dec := msgpack.NewDecoder(strings.NewReader(L.CheckString(1)))
	n := 0
	for {
		v, err := dec.DecodeInterface()
		if err == io.EOF {
			break
		}
		if err != nil {
			L.RaiseError("cmsgpack.unpack: %s", err.Error())
		}
		L.Push(goToLua(L, v))
		n++
	}
	return n
}

// luaToGo maps a Lua value onto the plain Go value msgpack encodes. Tables
// with consecutive integer keys from 1 become arrays, everything else a map.
func luaToGo(v lua.LValue) interface{} {
	switch lv := v.(type) {
	case *lua.LNilType:
		return nil
	case lua.LBool:
		return bool(lv)
	case lua.LNumber:
		f := float64(lv)
		if f == float64(int64(f)) {
			return int64(f)
		}
		return f
	case lua.LString:
		return string(lv)
	case *lua.LTable:
		n := lv.Len()
		if n > 0 {
			arr := make([]interface{}, 0, n)
			for i := 1; i <= n; i++ {
				arr = append(arr, luaToGo(lv.RawGetInt(i)))
			}
			return arr
		}
		m := make(map[string]interface{})
		lv.ForEach(func(k, val lua.LValue) {
			m[k.String()] = luaToGo(val)
		})
		if len(m) == 0 {
			return []interface{}{}
		}
		return m
	default:
		return nil
	}
}

func goToLua(L *lua.LState, v interface{}) lua.LValue {
	switch gv := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(gv)
	case int64:
		return lua.LNumber(gv)
	case uint64:
		return lua.LNumber(gv)
	case float32:
		return lua.LNumber(gv)
	case float64:
		return lua.LNumber(gv)
	case string:
		return lua.LString(gv)
	case []byte:
		return lua.LString(gv)
	case []interface{}:
		t := L.NewTable()
		for i, el := range gv {
			t.RawSetInt(i+1, goToLua(L, el))
		}
		return t
	case map[string]interface{}:
		t := L.NewTable()
		for k, el := range gv {
			t.RawSetString(k, goToLua(L, el))
		}
		return t
	case map[interface{}]interface{}:
		t := L.NewTable()
		for k, el := range gv {
			t.RawSet(goToLua(L, k), goToLua(L, el))
		}
		return t
	default:
		return lua.LNil
	}
}
