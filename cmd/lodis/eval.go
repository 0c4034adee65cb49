package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/lodisdb/lodis/command"
)

var evalCmd = &cobra.Command{
	Use:   "eval [file]",
	Short: "Run a script once against a fresh store",
	Long: `Execute one Lua script with EVAL semantics.

The script can be provided via:
  - File argument: lodis eval script.lua
  - Inline flag: lodis eval -c 'return redis.call("get", KEYS[1])'
  - stdin: echo 'return 1' | lodis eval

Keys and arguments are bound with repeatable flags:
  lodis eval -c 'return {KEYS[1], ARGV[1]}' --key mykey --arg myvalue`,
	Args: cobra.MaximumNArgs(1),
	Run:  runEval,
}

func init() {
	addScriptFlags(evalCmd)
	rootCmd.AddCommand(evalCmd)
}

func runEval(cmd *cobra.Command, args []string) {
	source, err := readSource(cmd, args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	keys, _ := cmd.Flags().GetStringSlice("key")
	argv, _ := cmd.Flags().GetStringSlice("arg")

	eng, cleanup, err := newEngine()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	line := append([]string{"eval", source, strconv.Itoa(len(keys))}, keys...)
	line = append(line, argv...)

	reply, err := eng.Eval(context.Background(), &command.Session{}, line)
	if err != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "(error) %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderReply(reply))
}
