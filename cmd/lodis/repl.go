package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/lodisdb/lodis/command"
	"github.com/lodisdb/lodis/engine"
)

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Interactive session with a persistent store and script cache",
	Long: `Start an interactive REPL (Read-Eval-Print Loop) session.

Each input line is a Lua script evaluated with zero keys. Lines starting
with a command word are interpreted instead:

  eval <script> <numkeys> [key ...] [arg ...]
  evalsha <digest> <numkeys> [key ...] [arg ...]
  script load <script> | script exists <digest ...> | script flush
  digest <script>

Features:
  - Command history (up/down arrows)
  - Line editing (left/right, backspace, delete)
  - History search (Ctrl+R)
  - Multi-line input (end line with \)

Type 'exit' or 'quit' to end the session, or press Ctrl+D.`,
	Run: runRepl,
}

func init() {
	replCmd.Flags().String("history", "", "History file path (default: ~/.lodis_history)")
	rootCmd.AddCommand(replCmd)
}

func runRepl(cmd *cobra.Command, args []string) {
	historyFile, _ := cmd.Flags().GetString("history")
	if historyFile == "" {
		home, _ := os.UserHomeDir()
		historyFile = filepath.Join(home, ".lodis_history")
	}

	eng, cleanup, err := newEngine()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:            "lodis> ",
		HistoryFile:       historyFile,
		HistoryLimit:      1000,
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing readline: %v\n", err)
		os.Exit(1)
	}
	defer rl.Close()

	fmt.Fprintln(os.Stderr, "lodis REPL (type 'exit' to quit, Ctrl+D to exit)")

	var multiLine strings.Builder
	inMultiLine := false

	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				if inMultiLine {
					multiLine.Reset()
					inMultiLine = false
					rl.SetPrompt("lodis> ")
				}
				continue
			}
			if err == io.EOF {
				fmt.Println()
				break
			}
			fmt.Fprintf(os.Stderr, "Error reading input: %v\n", err)
			break
		}

		// Handle multi-line input
		if strings.HasSuffix(line, "\\") {
			multiLine.WriteString(strings.TrimSuffix(line, "\\"))
			multiLine.WriteString("\n")
			inMultiLine = true
			rl.SetPrompt("  ...> ")
			continue
		}

		if inMultiLine {
			multiLine.WriteString(line)
			line = multiLine.String()
			multiLine.Reset()
			inMultiLine = false
			rl.SetPrompt("lodis> ")
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}

		fmt.Println(evalLine(eng, line))
	}
}

// evalLine interprets one REPL line and returns the rendered result.
func evalLine(eng *engine.Engine, line string) string {
	ctx := context.Background()
	sess := &command.Session{}

	fields, err := splitFields(line)
	if err != nil {
		return fmt.Sprintf("(error) %v", err)
	}

	switch strings.ToLower(fields[0]) {
	case "eval":
		reply, err := eng.Eval(ctx, sess, fields)
		if err != nil {
			return fmt.Sprintf("(error) %v", err)
		}
		return renderReply(reply)
	case "evalsha":
		reply, err := eng.EvalSha(ctx, sess, fields)
		if err != nil {
			return fmt.Sprintf("(error) %v", err)
		}
		return renderReply(reply)
	case "script":
		return scriptSubcommand(eng, fields)
	case "digest":
		if len(fields) != 2 {
			return "(error) usage: digest <script>"
		}
		digest, err := eng.LoadScript(fields[1])
		if err != nil {
			return fmt.Sprintf("(error) %v", err)
		}
		return digest
	default:
		// A bare line is a script body evaluated with zero keys.
		reply, err := eng.Eval(ctx, sess, []string{"eval", line, "0"})
		if err != nil {
			return fmt.Sprintf("(error) %v", err)
		}
		return renderReply(reply)
	}
}

func scriptSubcommand(eng *engine.Engine, fields []string) string {
	if len(fields) < 2 {
		return "(error) usage: script load|exists|flush"
	}
	switch strings.ToLower(fields[1]) {
	case "load":
		if len(fields) != 3 {
			return "(error) usage: script load <script>"
		}
		digest, err := eng.LoadScript(fields[2])
		if err != nil {
			return fmt.Sprintf("(error) %v", err)
		}
		return digest
	case "exists":
		if len(fields) < 3 {
			return "(error) usage: script exists <digest ...>"
		}
		var sb strings.Builder
		for i, hit := range eng.ScriptExists(fields[2:]...) {
			if i > 0 {
				sb.WriteString("\n")
			}
			n := 0
			if hit {
				n = 1
			}
			fmt.Fprintf(&sb, "%d) (integer) %d", i+1, n)
		}
		return sb.String()
	case "flush":
		eng.Flush()
		return "OK"
	default:
		return fmt.Sprintf("(error) unknown script subcommand '%s'", fields[1])
	}
}

// splitFields breaks a REPL line into fields, honoring single and double
// quotes so script bodies with spaces survive as one field.
func splitFields(line string) ([]string, error) {
	var fields []string
	var cur strings.Builder
	inField := false
	var quote byte

	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			} else {
				cur.WriteByte(c)
			}
		case c == '\'' || c == '"':
			quote = c
			inField = true
		case c == ' ' || c == '\t':
			if inField {
				fields = append(fields, cur.String())
				cur.Reset()
				inField = false
			}
		default:
			cur.WriteByte(c)
			inField = true
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("unbalanced quotes")
	}
	if inField {
		fields = append(fields, cur.String())
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty line")
	}
	return fields, nil
}
