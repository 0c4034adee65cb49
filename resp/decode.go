package resp

import (
	"fmt"
	"strconv"

	lua "github.com/yuin/gopher-lua"
)

// DecodeLua converts one wire reply into the script value model and returns
// the first unconsumed byte, so nested multi-bulk replies decode without
// buffering sub-replies.
//
// The mapping is fixed: integer -> number, bulk -> string, nil bulk and nil
// multi-bulk -> false, status -> {ok=line}, error -> {err=line}, multi-bulk
// -> 1-based array table.
func DecodeLua(L *lua.LState, reply []byte) (lua.LValue, []byte, error) {
	if len(reply) == 0 {
		return nil, nil, fmt.Errorf("resp: empty reply")
	}
	switch reply[0] {
	case ':':
		return decodeInteger(reply)
	case '$':
		return decodeBulk(reply)
	case '+':
		return decodeLine(L, reply, "ok")
	case '-':
		return decodeLine(L, reply, "err")
	case '*':
		return decodeMultiBulk(L, reply)
	default:
		return nil, nil, fmt.Errorf("resp: unknown reply tag %q", reply[0])
	}
}

func decodeInteger(reply []byte) (lua.LValue, []byte, error) {
	line, rest, err := readLine(reply[1:])
	if err != nil {
		return nil, nil, err
	}
	v, err := strconv.ParseInt(string(line), 10, 64)
	if err != nil {
		return nil, nil, fmt.Errorf("resp: bad integer reply: %w", err)
	}
	return lua.LNumber(v), rest, nil
}

func decodeBulk(reply []byte) (lua.LValue, []byte, error) {
	line, rest, err := readLine(reply[1:])
	if err != nil {
		return nil, nil, err
	}
	n, err := strconv.ParseInt(string(line), 10, 64)
	if err != nil {
		return nil, nil, fmt.Errorf("resp: bad bulk length: %w", err)
	}
	if n < 0 {
		return lua.LFalse, rest, nil
	}
	if int64(len(rest)) < n+2 {
		return nil, nil, fmt.Errorf("resp: truncated bulk reply")
	}
	return lua.LString(rest[:n]), rest[n+2:], nil
}

func decodeLine(L *lua.LState, reply []byte, field string) (lua.LValue, []byte, error) {
	line, rest, err := readLine(reply[1:])
	if err != nil {
		return nil, nil, err
	}
	tbl := L.CreateTable(0, 1)
	tbl.RawSetString(field, lua.LString(line))
	return tbl, rest, nil
}

func decodeMultiBulk(L *lua.LState, reply []byte) (lua.LValue, []byte, error) {
	line, rest, err := readLine(reply[1:])
	if err != nil {
		return nil, nil, err
	}
	n, err := strconv.ParseInt(string(line), 10, 64)
	if err != nil {
		return nil, nil, fmt.Errorf("resp: bad multi-bulk length: %w", err)
	}
	if n < 0 {
		return lua.LFalse, rest, nil
	}
	tbl := L.CreateTable(int(n), 0)
	for i := int64(0); i < n; i++ {
		var elem lua.LValue
		elem, rest, err = DecodeLua(L, rest)
		if err != nil {
			return nil, nil, err
		}
		tbl.RawSetInt(int(i+1), elem)
	}
	return tbl, rest, nil
}
