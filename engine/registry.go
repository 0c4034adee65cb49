package engine

import (
	"strings"

	lua "github.com/yuin/gopher-lua"

	"github.com/lodisdb/lodis/sandbox"
)

const funcPrefix = "f_"

// chunkName is the source name scripts compile under. Runtime errors carry
// it, so scripts see positions as user_script:<line>.
const chunkName = "@user_script"

// resolveOrCompile returns the cached function registered for digest,
// compiling and caching body on a miss. With fromSha set a miss is a
// NOSCRIPT error instead of a compile.
//
// Cached functions live in the interpreter globals under f_<digest>. Access
// goes through raw table operations: the globals metatable installed by the
// sandbox rejects regular lookups of absent names.
func (e *Engine) resolveOrCompile(body, digest string, fromSha bool) (lua.LValue, string, error) {
	funcname := funcPrefix + digest
	if fn := e.L.G.Global.RawGetString(funcname); fn != lua.LNil {
		return fn, funcname, nil
	}
	if fromSha {
		return nil, funcname, ErrNoScript
	}
	fn, err := e.L.Load(strings.NewReader(body), chunkName)
	if err != nil {
		return nil, funcname, &CompileError{Detail: err.Error()}
	}
	e.L.G.Global.RawSetString(funcname, fn)
	return fn, funcname, nil
}

// LoadScript compiles and caches a script body without running it, returning
// its digest. Loading an already cached body is a no-op.
func (e *Engine) LoadScript(body string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	digest := sandbox.Sha1Hex(body)
	if _, _, err := e.resolveOrCompile(body, digest, false); err != nil {
		return "", err
	}
	return digest, nil
}

// ScriptExists reports for each digest whether a script is cached under it.
// Digests are matched case-insensitively.
func (e *Engine) ScriptExists(digests ...string) []bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]bool, len(digests))
	for i, d := range digests {
		out[i] = e.L.G.Global.RawGetString(funcPrefix+strings.ToLower(d)) != lua.LNil
	}
	return out
}
