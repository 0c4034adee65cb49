package resp

import (
	lua "github.com/yuin/gopher-lua"
)

// EncodeLua converts a script's return value into one wire reply. It is
// total: every Lua value encodes to something, with unhandled types mapping
// to the nil bulk reply.
//
// Tables are inspected for an "err" entry first, then an "ok" entry; neither
// makes the table an ordinal array encoded element by element until the
// first missing index. Note the deliberate non-bijection with DecodeLua:
// false always encodes to the nil bulk reply, never to a nil multi-bulk.
func EncodeLua(v lua.LValue) []byte {
	switch lv := v.(type) {
	case lua.LString:
		return Bulk(string(lv))
	case lua.LBool:
		if lv == lua.LTrue {
			return Integer(1)
		}
		return Nil()
	case lua.LNumber:
		return Integer(int64(lv))
	case *lua.LTable:
		return encodeTable(lv)
	default:
		return Nil()
	}
}

func encodeTable(t *lua.LTable) []byte {
	if errField, ok := t.RawGetString("err").(lua.LString); ok {
		return Error(string(errField))
	}
	if okField, ok := t.RawGetString("ok").(lua.LString); ok {
		return Status(string(okField))
	}

	var elems [][]byte
	for i := 1; ; i++ {
		elem := t.RawGetInt(i)
		if elem == lua.LNil {
			break
		}
		elems = append(elems, EncodeLua(elem))
	}
	return Array(elems...)
}
