package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lodisdb/lodis/command"
	"github.com/lodisdb/lodis/config"
	"github.com/lodisdb/lodis/engine"
	"github.com/lodisdb/lodis/keylock"
	"github.com/lodisdb/lodis/logger"
	"github.com/lodisdb/lodis/store"
)

var rootCmd = &cobra.Command{
	Use:   "lodis",
	Short: "Lua scripting engine over an in-memory key-value store",
	Long: `lodis - Run Lua scripts against a key-value store with EVAL semantics.

Scripts see the KEYS and ARGV arrays, call commands through redis.call and
redis.pcall, and run inside a hardened interpreter: no filesystem access,
deterministic randomness, and protected globals. Replies translate between
the wire protocol and the script data model in both directions.

Use eval for one-shot scripts or repl for an interactive session with a
persistent store and script cache.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newEngine wires an engine over a fresh in-memory store using the loaded
// configuration. The returned cleanup releases the interpreter.
func newEngine() (*engine.Engine, func(), error) {
	cfg, err := config.New()
	if err != nil {
		return nil, nil, err
	}
	log, err := logger.New(cfg.Logging.Mode, cfg.Logging.Level)
	if err != nil {
		return nil, nil, err
	}

	st := store.New()
	ctl := &command.ControlState{}
	eng := engine.New(st, st, keylock.New(), ctl,
		engine.WithLogger(log),
		engine.WithTimeLimit(cfg.TimeLimit()),
		engine.WithHookInterval(cfg.HookInterval()),
		engine.WithLockTimeout(cfg.LockTimeout()),
		engine.WithClusterMode(cfg.Engine.Cluster),
	)
	cleanup := func() {
		eng.Close()
		log.Sync()
	}
	return eng, cleanup, nil
}

func addScriptFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("code", "c", "", "Script body to execute")
	cmd.Flags().StringSlice("key", nil, "Script key, becomes KEYS[n] (repeatable)")
	cmd.Flags().StringSlice("arg", nil, "Script argument, becomes ARGV[n] (repeatable)")
}

// readSource resolves the script body from --code, a file argument, or
// stdin, in that order.
func readSource(cmd *cobra.Command, args []string) (string, error) {
	code, _ := cmd.Flags().GetString("code")

	switch {
	case code != "":
		return code, nil
	case len(args) > 0:
		data, err := os.ReadFile(args[0])
		if err != nil {
			return "", fmt.Errorf("reading script file: %w", err)
		}
		return string(data), nil
	default:
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		source := string(data)
		if strings.TrimSpace(source) == "" {
			return "", fmt.Errorf("no script given: use -c 'script', a file argument, or stdin")
		}
		return source, nil
	}
}
