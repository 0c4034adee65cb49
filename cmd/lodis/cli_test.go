package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/lodisdb/lodis/command"
	"github.com/lodisdb/lodis/engine"
	"github.com/lodisdb/lodis/keylock"
	"github.com/lodisdb/lodis/resp"
	"github.com/lodisdb/lodis/store"
)

func executeCommand(root *cobra.Command, args ...string) (string, error) {
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func testEngine(t *testing.T) *engine.Engine {
	t.Helper()
	st := store.New()
	eng := engine.New(st, st, keylock.New(), &command.ControlState{})
	t.Cleanup(eng.Close)
	return eng
}

func TestCLIHelp(t *testing.T) {
	output, err := executeCommand(rootCmd, "--help")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expectedPhrases := []string{
		"lodis",
		"Lua",
		"eval",
		"repl",
		"digest",
	}

	for _, phrase := range expectedPhrases {
		if !strings.Contains(output, phrase) {
			t.Errorf("help output should contain %q", phrase)
		}
	}
}

func TestCLIEvalHelp(t *testing.T) {
	output, err := executeCommand(rootCmd, "eval", "--help")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expectedPhrases := []string{
		"--code",
		"--key",
		"--arg",
		"stdin",
	}

	for _, phrase := range expectedPhrases {
		if !strings.Contains(output, phrase) {
			t.Errorf("eval help output should contain %q", phrase)
		}
	}
}

func TestCLIReplHelp(t *testing.T) {
	output, err := executeCommand(rootCmd, "repl", "--help")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expectedPhrases := []string{
		"--history",
		"Command history",
		"Line editing",
		"evalsha",
		"script load",
	}

	for _, phrase := range expectedPhrases {
		if !strings.Contains(output, phrase) {
			t.Errorf("repl help output should contain %q", phrase)
		}
	}
}

func TestRenderReply(t *testing.T) {
	cases := []struct {
		name  string
		reply []byte
		want  string
	}{
		{"Status", resp.Status("OK"), "OK"},
		{"Error", resp.Error("ERR boom"), "(error) ERR boom"},
		{"Integer", resp.Integer(42), "(integer) 42"},
		{"Bulk", resp.Bulk("hello"), `"hello"`},
		{"NilBulk", resp.Nil(), "(nil)"},
		{"EmptyArray", resp.Array(), "(empty array)"},
		{"Array", resp.Array(resp.Integer(1), resp.Bulk("two")),
			"1) (integer) 1\n2) \"two\""},
		{"NestedArray", resp.Array(resp.Array(resp.Integer(1))),
			"1) 1) (integer) 1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := renderReply(tc.reply); got != tc.want {
				t.Fatalf("renderReply = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestSplitFields(t *testing.T) {
	cases := []struct {
		line string
		want []string
	}{
		{"eval 'return 1' 0", []string{"eval", "return 1", "0"}},
		{`eval "return 'x'" 1 mykey`, []string{"eval", "return 'x'", "1", "mykey"}},
		{"script  flush", []string{"script", "flush"}},
	}
	for _, tc := range cases {
		got, err := splitFields(tc.line)
		if err != nil {
			t.Fatalf("splitFields(%q): %v", tc.line, err)
		}
		if len(got) != len(tc.want) {
			t.Fatalf("splitFields(%q) = %v, want %v", tc.line, got, tc.want)
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Fatalf("splitFields(%q)[%d] = %q, want %q", tc.line, i, got[i], tc.want[i])
			}
		}
	}

	if _, err := splitFields("eval 'unterminated"); err == nil {
		t.Fatal("unbalanced quotes accepted")
	}
}

func TestEvalLine(t *testing.T) {
	eng := testEngine(t)

	if got := evalLine(eng, "return 1 + 1"); got != "(integer) 2" {
		t.Fatalf("bare script line = %q", got)
	}
	if got := evalLine(eng, "eval 'return KEYS[1]' 1 mykey"); got != `"mykey"` {
		t.Fatalf("eval line = %q", got)
	}
	if got := evalLine(eng, "redis.call('set', 'k', 'v') return redis.call('get', 'k')"); got != `"v"` {
		t.Fatalf("call line = %q", got)
	}
}

func TestEvalLineScriptCache(t *testing.T) {
	eng := testEngine(t)

	digest := evalLine(eng, "script load 'return 99'")
	if len(digest) != 40 {
		t.Fatalf("script load returned %q", digest)
	}
	if got := evalLine(eng, "evalsha "+digest+" 0"); got != "(integer) 99" {
		t.Fatalf("evalsha line = %q", got)
	}
	if got := evalLine(eng, "script exists "+digest); got != "1) (integer) 1" {
		t.Fatalf("script exists = %q", got)
	}
	if got := evalLine(eng, "script flush"); got != "OK" {
		t.Fatalf("script flush = %q", got)
	}
	if got := evalLine(eng, "script exists "+digest); got != "1) (integer) 0" {
		t.Fatalf("script exists after flush = %q", got)
	}
}
