package engine

import (
	"bytes"
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/lodisdb/lodis/command"
	"github.com/lodisdb/lodis/keylock"
	"github.com/lodisdb/lodis/resp"
	"github.com/lodisdb/lodis/sandbox"
	"github.com/lodisdb/lodis/store"
)

func newTestEngine(t *testing.T, opts ...Option) (*Engine, *store.Store, *command.ControlState) {
	t.Helper()
	st := store.New()
	ctl := &command.ControlState{}
	opts = append([]Option{WithHookInterval(time.Millisecond)}, opts...)
	e := New(st, st, keylock.New(), ctl, opts...)
	t.Cleanup(e.Close)
	return e, st, ctl
}

func evalArgs(script string, keys, argv []string) []string {
	args := []string{"eval", script, strconv.Itoa(len(keys))}
	args = append(args, keys...)
	args = append(args, argv...)
	return args
}

func mustEval(t *testing.T, e *Engine, script string, keys, argv []string) []byte {
	t.Helper()
	reply, err := e.Eval(context.Background(), &command.Session{}, evalArgs(script, keys, argv))
	if err != nil {
		t.Fatalf("eval %q: %v", script, err)
	}
	return reply
}

func evalErr(t *testing.T, e *Engine, script string, keys, argv []string) error {
	t.Helper()
	_, err := e.Eval(context.Background(), &command.Session{}, evalArgs(script, keys, argv))
	if err == nil {
		t.Fatalf("eval %q: expected error", script)
	}
	return err
}

func TestEvalScalarResults(t *testing.T) {
	e, _, _ := newTestEngine(t)
	cases := []struct {
		script string
		want   []byte
	}{
		{"return 1", resp.Integer(1)},
		{"return 3.7", resp.Integer(3)},
		{"return 'hello'", resp.Bulk("hello")},
		{"return true", resp.Integer(1)},
		{"return false", resp.Nil()},
		{"return nil", resp.Nil()},
		{"return {ok='STATE'}", resp.Status("STATE")},
		{"return {1,2,'three'}", resp.Array(resp.Integer(1), resp.Integer(2), resp.Bulk("three"))},
		{"return", resp.Nil()},
	}
	for _, c := range cases {
		if got := mustEval(t, e, c.script, nil, nil); !bytes.Equal(got, c.want) {
			t.Errorf("eval %q = %q, want %q", c.script, got, c.want)
		}
	}
}

func TestRedisCallReadsWrites(t *testing.T) {
	e, st, _ := newTestEngine(t)
	reply := mustEval(t, e, "redis.call('set', KEYS[1], ARGV[1]) return redis.call('get', KEYS[1])",
		[]string{"greeting"}, []string{"hello"})
	if want := resp.Bulk("hello"); !bytes.Equal(reply, want) {
		t.Fatalf("reply = %q, want %q", reply, want)
	}

	// The write is visible outside the script.
	got, err := st.Exec(&command.Session{}, []string{"get", "greeting"})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if want := resp.Bulk("hello"); !bytes.Equal(got, want) {
		t.Fatalf("store get = %q, want %q", got, want)
	}
}

func TestKeysArgvBinding(t *testing.T) {
	e, _, _ := newTestEngine(t)
	reply := mustEval(t, e, "return {KEYS[1], KEYS[2], ARGV[1], #KEYS, #ARGV}",
		[]string{"k1", "k2"}, []string{"a1"})
	want := resp.Array(resp.Bulk("k1"), resp.Bulk("k2"), resp.Bulk("a1"), resp.Integer(2), resp.Integer(1))
	if !bytes.Equal(reply, want) {
		t.Fatalf("reply = %q, want %q", reply, want)
	}
}

func TestEvalShaCacheFlow(t *testing.T) {
	e, _, _ := newTestEngine(t)
	script := "return 'cached'"
	digest := sandbox.Sha1Hex(script)

	// Cold digest invocation misses.
	_, err := e.EvalSha(context.Background(), &command.Session{}, []string{"evalsha", digest, "0"})
	if !errors.Is(err, ErrNoScript) {
		t.Fatalf("cold evalsha error = %v, want ErrNoScript", err)
	}

	// Eval primes the cache; evalsha then hits, case-insensitively.
	mustEval(t, e, script, nil, nil)
	for _, d := range []string{digest, strings.ToUpper(digest)} {
		reply, err := e.EvalSha(context.Background(), &command.Session{}, []string{"evalsha", d, "0"})
		if err != nil {
			t.Fatalf("evalsha %s: %v", d, err)
		}
		if want := resp.Bulk("cached"); !bytes.Equal(reply, want) {
			t.Fatalf("evalsha reply = %q, want %q", reply, want)
		}
	}

	if got := e.ScriptExists(digest, strings.Repeat("0", 40)); !got[0] || got[1] {
		t.Fatalf("ScriptExists = %v", got)
	}
}

func TestLoadScriptPrimesEvalSha(t *testing.T) {
	e, _, _ := newTestEngine(t)
	digest, err := e.LoadScript("return 42")
	if err != nil {
		t.Fatalf("LoadScript: %v", err)
	}
	reply, err := e.EvalSha(context.Background(), &command.Session{}, []string{"evalsha", digest, "0"})
	if err != nil {
		t.Fatalf("evalsha after load: %v", err)
	}
	if want := resp.Integer(42); !bytes.Equal(reply, want) {
		t.Fatalf("reply = %q, want %q", reply, want)
	}
}

func TestCompileErrorIsNotCached(t *testing.T) {
	e, _, _ := newTestEngine(t)
	script := "this is not lua (("
	err := evalErr(t, e, script, nil, nil)
	var cerr *CompileError
	if !errors.As(err, &cerr) {
		t.Fatalf("error = %v, want CompileError", err)
	}
	if got := e.ScriptExists(sandbox.Sha1Hex(script)); got[0] {
		t.Fatal("failed compile left a cache entry")
	}
}

func TestFlushDropsCache(t *testing.T) {
	e, _, _ := newTestEngine(t)
	digest, err := e.LoadScript("return 1")
	if err != nil {
		t.Fatalf("LoadScript: %v", err)
	}
	e.Flush()
	if got := e.ScriptExists(digest); got[0] {
		t.Fatal("cache survived Flush")
	}
}

func TestNumkeysValidation(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()
	sess := &command.Session{}

	if _, err := e.Eval(ctx, sess, []string{"eval", "return 1", "-1"}); !errors.Is(err, ErrNumKeysNegative) {
		t.Fatalf("negative numkeys: %v", err)
	}
	if _, err := e.Eval(ctx, sess, []string{"eval", "return 1", "3", "onlykey"}); !errors.Is(err, ErrNumKeysRange) {
		t.Fatalf("oversized numkeys: %v", err)
	}
	if _, err := e.Eval(ctx, sess, []string{"eval", "return 1", "abc"}); err == nil || !strings.Contains(err.Error(), "not an integer") {
		t.Fatalf("non-integer numkeys: %v", err)
	}
	if _, err := e.Eval(ctx, sess, []string{"eval", "return 1"}); err == nil || !strings.Contains(err.Error(), "wrong number of arguments") {
		t.Fatalf("short command line: %v", err)
	}
}

func TestCallFailureAbortsScript(t *testing.T) {
	e, _, _ := newTestEngine(t)
	mustEval(t, e, "return redis.call('set', KEYS[1], 'notanumber')", []string{"counter"}, nil)
	err := evalErr(t, e, "redis.call('incr', KEYS[1]) return 'unreachable'", []string{"counter"}, nil)
	if !strings.Contains(err.Error(), "not an integer") {
		t.Fatalf("error = %v", err)
	}
}

func TestPCallFailureIsCatchable(t *testing.T) {
	e, _, _ := newTestEngine(t)
	mustEval(t, e, "redis.call('set', KEYS[1], 'notanumber')", []string{"counter"}, nil)
	reply := mustEval(t, e,
		"local r = redis.pcall('incr', KEYS[1]) if r.err then return 'caught' end return 'missed'",
		[]string{"counter"}, nil)
	if want := resp.Bulk("caught"); !bytes.Equal(reply, want) {
		t.Fatalf("reply = %q, want %q", reply, want)
	}
}

func TestReturnedErrorTableEncodesAsErrorReply(t *testing.T) {
	e, _, _ := newTestEngine(t)
	reply := mustEval(t, e, "return redis.error_reply('MYCODE something went wrong')", nil, nil)
	if want := resp.Error("MYCODE something went wrong"); !bytes.Equal(reply, want) {
		t.Fatalf("reply = %q, want %q", reply, want)
	}
}

func TestRaisedLuaErrorWrapsMessage(t *testing.T) {
	e, _, _ := newTestEngine(t)
	err := evalErr(t, e, "error('boom')", nil, nil)
	if !strings.Contains(err.Error(), "user_script") || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("error = %v", err)
	}
}

func TestNoScriptCommandRejected(t *testing.T) {
	e, _, _ := newTestEngine(t)
	err := evalErr(t, e, "return redis.call('auth', 'secret')", nil, nil)
	if !strings.Contains(err.Error(), "not allowed from scripts") {
		t.Fatalf("error = %v", err)
	}
}

func TestUnknownCommandRejected(t *testing.T) {
	e, _, _ := newTestEngine(t)
	err := evalErr(t, e, "return redis.call('flooble')", nil, nil)
	if !strings.Contains(err.Error(), "unknown command") {
		t.Fatalf("error = %v", err)
	}
}

func TestArgumentTypingRejectsTables(t *testing.T) {
	e, _, _ := newTestEngine(t)
	err := evalErr(t, e, "return redis.call('set', KEYS[1], {1,2})", []string{"k"}, nil)
	if !strings.Contains(err.Error(), "must be strings or integers") {
		t.Fatalf("error = %v", err)
	}
}

func TestNumbersFormatAsIntegers(t *testing.T) {
	e, _, _ := newTestEngine(t)
	mustEval(t, e, "redis.call('set', KEYS[1], 123)", []string{"n"}, nil)
	reply := mustEval(t, e, "return redis.call('get', KEYS[1])", []string{"n"}, nil)
	if want := resp.Bulk("123"); !bytes.Equal(reply, want) {
		t.Fatalf("reply = %q, want %q", reply, want)
	}
}

func TestWriteAfterRandomGate(t *testing.T) {
	e, _, _ := newTestEngine(t)
	mustEval(t, e, "redis.call('set', KEYS[1], 'seed')", []string{"seedkey"}, nil)

	err := evalErr(t, e, "redis.call('randomkey') redis.call('set', KEYS[1], 'v') return 1",
		[]string{"k"}, nil)
	if !strings.Contains(err.Error(), "Write commands not allowed after non deterministic commands") {
		t.Fatalf("error = %v", err)
	}

	// Opting into effect replication lifts the gate.
	reply := mustEval(t, e,
		"redis.replicate_commands() redis.call('randomkey') redis.call('set', KEYS[1], 'v') return 1",
		[]string{"k"}, nil)
	if want := resp.Integer(1); !bytes.Equal(reply, want) {
		t.Fatalf("reply = %q, want %q", reply, want)
	}
}

func TestReplicateCommandsRefusedAfterWrite(t *testing.T) {
	e, _, _ := newTestEngine(t)
	reply := mustEval(t, e,
		"redis.call('set', KEYS[1], 'v') if redis.replicate_commands() then return 'switched' end return 'refused'",
		[]string{"k"}, nil)
	if want := resp.Bulk("refused"); !bytes.Equal(reply, want) {
		t.Fatalf("reply = %q, want %q", reply, want)
	}
}

func TestSortForScriptOrdersReplies(t *testing.T) {
	e, _, _ := newTestEngine(t)
	mustEval(t, e, "redis.call('sadd', KEYS[1], 'pear', 'apple', 'mango')", []string{"fruit"}, nil)

	want := resp.Array(resp.Bulk("apple"), resp.Bulk("mango"), resp.Bulk("pear"))
	for i := 0; i < 5; i++ {
		reply := mustEval(t, e, "return redis.call('smembers', KEYS[1])", []string{"fruit"}, nil)
		if !bytes.Equal(reply, want) {
			t.Fatalf("run %d: reply = %q, want %q", i, reply, want)
		}
	}
}

func TestRandomIsDeterministicPerInvocation(t *testing.T) {
	e, _, _ := newTestEngine(t)
	script := "return tostring(math.random(2^30))"
	first := mustEval(t, e, script, nil, nil)
	second := mustEval(t, e, script, nil, nil)
	if !bytes.Equal(first, second) {
		t.Fatalf("random diverged across invocations: %q vs %q", first, second)
	}
}

func TestClusterReadOnlyCallerCannotWrite(t *testing.T) {
	e, _, _ := newTestEngine(t, WithClusterMode(true))
	caller := &command.Session{ReadOnly: true}
	_, err := e.Eval(context.Background(), caller,
		evalArgs("return redis.call('set', KEYS[1], 'v')", []string{"k"}, nil))
	if err == nil || !strings.Contains(err.Error(), "READONLY") {
		t.Fatalf("error = %v", err)
	}

	// Reads remain allowed.
	if _, err := e.Eval(context.Background(), caller,
		evalArgs("return redis.call('get', KEYS[1])", []string{"k"}, nil)); err != nil {
		t.Fatalf("read-only get: %v", err)
	}
}

func TestKillAbortsRunningScript(t *testing.T) {
	e, _, ctl := newTestEngine(t)
	ctl.RequestKill()
	t.Cleanup(ctl.ClearKill)

	_, err := e.Eval(context.Background(), &command.Session{},
		evalArgs("local i = 0 while true do i = i + 1 end", nil, nil))
	var kerr *KilledError
	if !errors.As(err, &kerr) || !strings.Contains(kerr.Reason, "SCRIPT KILL") {
		t.Fatalf("error = %v", err)
	}

	// The interpreter stays usable afterwards.
	ctl.ClearKill()
	if got := mustEval(t, e, "return 'alive'", nil, nil); !bytes.Equal(got, resp.Bulk("alive")) {
		t.Fatalf("post-kill eval = %q", got)
	}
}

func TestShutdownAbortsWritingScript(t *testing.T) {
	e, _, ctl := newTestEngine(t)
	ctl.Shutdown()

	_, err := e.Eval(context.Background(), &command.Session{},
		evalArgs("redis.call('set', KEYS[1], 'v') local i = 0 while true do i = i + 1 end", []string{"k"}, nil))
	var kerr *KilledError
	if !errors.As(err, &kerr) || !strings.Contains(kerr.Reason, "shutting down") {
		t.Fatalf("error = %v", err)
	}
}

func TestAdvisoryTimeLimitDoesNotAbort(t *testing.T) {
	e, _, _ := newTestEngine(t, WithTimeLimit(time.Millisecond))
	reply := mustEval(t, e, "local i = 0 for j = 1, 2000000 do i = i + 1 end return 7", nil, nil)
	if want := resp.Integer(7); !bytes.Equal(reply, want) {
		t.Fatalf("reply = %q, want %q", reply, want)
	}
}

func TestSessionDatabaseFollowsCaller(t *testing.T) {
	e, st, _ := newTestEngine(t)
	caller := &command.Session{DB: 3}
	if _, err := e.Eval(context.Background(), caller,
		evalArgs("return redis.call('set', KEYS[1], 'v3')", []string{"k"}, nil)); err != nil {
		t.Fatalf("eval in db 3: %v", err)
	}

	if got, _ := st.Exec(&command.Session{DB: 3}, []string{"get", "k"}); !bytes.Equal(got, resp.Bulk("v3")) {
		t.Fatalf("db 3 get = %q", got)
	}
	if got, _ := st.Exec(&command.Session{DB: 0}, []string{"get", "k"}); !bytes.Equal(got, resp.Nil()) {
		t.Fatalf("db 0 get = %q, want nil", got)
	}
}

func TestDataFormatModulesAvailableToScripts(t *testing.T) {
	e, _, _ := newTestEngine(t)
	reply := mustEval(t, e, "return cjson.encode({1, 2, 3})", nil, nil)
	if want := resp.Bulk("[1,2,3]"); !bytes.Equal(reply, want) {
		t.Fatalf("cjson reply = %q, want %q", reply, want)
	}
	reply = mustEval(t, e, "return cmsgpack.unpack(cmsgpack.pack('roundtrip'))", nil, nil)
	if want := resp.Bulk("roundtrip"); !bytes.Equal(reply, want) {
		t.Fatalf("cmsgpack reply = %q, want %q", reply, want)
	}
	reply = mustEval(t, e, "return bit.bor(1, 2, 4)", nil, nil)
	if want := resp.Integer(7); !bytes.Equal(reply, want) {
		t.Fatalf("bit reply = %q, want %q", reply, want)
	}
}

func TestGlobalLeakIsRejected(t *testing.T) {
	e, _, _ := newTestEngine(t)
	err := evalErr(t, e, "leaked = 'state'", nil, nil)
	if !strings.Contains(err.Error(), "attempted to create global variable") {
		t.Fatalf("error = %v", err)
	}
}
