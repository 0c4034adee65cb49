// Package lodis provides an embeddable Lua scripting engine with EVAL
// semantics for key-value stores.
//
// # Overview
//
// Scripts run inside a hardened interpreter: no filesystem or network
// access, deterministic randomness, and a protected globals table. They
// reach the keyspace only through redis.call and redis.pcall, which enforce
// command policy (arity, script-banned commands, write-after-random gating)
// before dispatch. Compiled scripts are cached by the SHA-1 digest of their
// body, so EVALSHA can invoke them without resending the source.
//
// # Basic Usage
//
//	st := store.New()
//	eng := engine.New(st, st, keylock.New(), &command.ControlState{})
//	defer eng.Close()
//
//	reply, err := eng.Eval(ctx, sess, []string{
//	    "eval", "return redis.call('get', KEYS[1])", "1", "mykey",
//	})
//
//	// Cache a script, invoke it by digest
//	digest, _ := eng.LoadScript("return ARGV[1]")
//	reply, err = eng.EvalSha(ctx, sess, []string{"evalsha", digest, "0", "hi"})
//
// The store package is a reference backend; any implementation of the
// command package's Table and Executor interfaces can stand behind the
// gateway.
//
// See the [engine], [sandbox], [resp], and [keylock] packages for detailed
// API documentation.
package lodis
