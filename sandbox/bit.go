package sandbox

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"
)

// openBit builds the "bit" module table. All operations normalize their
// arguments to 32-bit integers and return results as signed 32-bit numbers,
// the same range scripts see from the classic BitOp library.
func openBit(L *lua.LState) *lua.LTable {
	mod := L.NewTable()
	fns := map[string]lua.LGFunction{
		"tobit":   bitToBit,
		"bnot":    bitNot,
		"band":    bitFold(func(a, b uint32) uint32 { return a & b }),
		"bor":     bitFold(func(a, b uint32) uint32 { return a | b }),
		"bxor":    bitFold(func(a, b uint32) uint32 { return a ^ b }),
		"lshift":  bitShift(func(v uint32, n uint) uint32 { return v << n }),
		"rshift":  bitShift(func(v uint32, n uint) uint32 { return v >> n }),
		"arshift": bitShift(func(v uint32, n uint) uint32 { return uint32(int32(v) >> n) }),
		"tohex":   bitToHex,
	}
	for name, fn := range fns {
		mod.RawSetString(name, L.NewFunction(fn))
	}
	return mod
}

func checkBitArg(L *lua.LState, n int) uint32 {
	return uint32(int64(L.CheckNumber(n)))
}

func bitToBit(L *lua.LState) int {
	L.Push(lua.LNumber(int32(checkBitArg(L, 1))))
	return 1
}

func bitNot(L *lua.LState) int {
	L.Push(lua.LNumber(int32(^checkBitArg(L, 1))))
	return 1
}

func bitFold(op func(a, b uint32) uint32) lua.LGFunction {
	return func(L *lua.LState) int {
		acc := checkBitArg(L, 1)
		for i := 2; i <= L.GetTop(); i++ {
			acc = op(acc, checkBitArg(L, i))
		}
		L.Push(lua.LNumber(int32(acc)))
		return 1
	}
}

func bitShift(op func(v uint32, n uint) uint32) lua.LGFunction {
	return func(L *lua.LState) int {
		v := checkBitArg(L, 1)
		n := uint(int64(L.CheckNumber(2))) & 31
		L.Push(lua.LNumber(int32(op(v, n))))
		return 1
	}
}

func bitToHex(L *lua.LState) int {
	L.Push(lua.LString(fmt.Sprintf("%08x", checkBitArg(L, 1))))
	return 1
}
