package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"

	"github.com/shelbyd/flock-deprecated/pkg/asm"
)

const (
	historyFile = ".flock_history"
	promptMain  = "flock> "
)

func (c *cli) replCommand(ctx context.Context, env *runEnv, args []string) int {
	if len(args) != 0 {
		fmt.Fprintln(c.stderr, "flock repl: unexpected arguments")
		return exitUsage
	}

	home, _ := os.UserHomeDir()
	histPath := filepath.Join(home, historyFile)

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	if f, err := os.Open(histPath); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}

	session := &replSession{c: c, env: env, ctx: ctx}
	fmt.Fprintln(c.stdout, "flock repl: enter instructions, :run to execute, :help for commands")
	for {
		line, err := ln.Prompt(promptMain)
		if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
			fmt.Fprintln(c.stdout)
			break
		}
		if err != nil {
			fmt.Fprintf(c.stderr, "flock repl: %v\n", err)
			return exitFailure
		}
		if strings.TrimSpace(line) != "" {
			ln.AppendHistory(line)
		}
		if session.handle(line) {
			break
		}
	}

	if f, err := os.Create(histPath); err == nil {
		_, _ = ln.WriteHistory(f)
		_ = f.Close()
	}
	return exitOK
}

// replSession accumulates source lines between :run commands.
type replSession struct {
	c     *cli
	env   *runEnv
	ctx   context.Context
	lines []string
}

// handle processes one input line and reports whether the session should end.
func (s *replSession) handle(line string) bool {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, ":") {
		s.lines = append(s.lines, line)
		return false
	}
	fields := strings.Fields(trimmed)
	out := s.c.stdout
	switch fields[0] {
	case ":quit", ":q", ":exit":
		return true
	case ":help":
		fmt.Fprintln(out, ":run          assemble and run the buffer")
		fmt.Fprintln(out, ":list         show the buffer")
		fmt.Fprintln(out, ":disasm       show the assembled buffer")
		fmt.Fprintln(out, ":load <file>  replace the buffer with a file")
		fmt.Fprintln(out, ":reset        clear the buffer")
		fmt.Fprintln(out, ":quit         leave")
	case ":list":
		for i, l := range s.lines {
			fmt.Fprintf(out, "%4d  %s\n", i+1, l)
		}
	case ":reset":
		s.lines = nil
	case ":load":
		if len(fields) != 2 {
			fmt.Fprintln(s.c.stderr, ":load expects a file")
			return false
		}
		src, err := s.env.loader.ReadFile(fields[1])
		if err != nil {
			fmt.Fprintln(s.c.stderr, err)
			return false
		}
		s.lines = strings.Split(strings.TrimRight(string(src.Data), "\n"), "\n")
	case ":disasm":
		prog, err := asm.AssembleString("repl", s.source())
		if err != nil {
			fmt.Fprintln(s.c.stderr, err)
			return false
		}
		_ = prog.Disassemble(out)
	case ":run":
		prog, err := asm.AssembleString("repl", s.source())
		if err != nil {
			fmt.Fprintln(s.c.stderr, err)
			return false
		}
		res, err := s.c.execute(s.ctx, s.env, prog)
		if err != nil {
			fmt.Fprintln(s.c.stderr, err)
			return false
		}
		if !res.Success() {
			reportFailure(s.c.stderr, prog, res)
			return false
		}
		fmt.Fprintf(out, "=> %d\n", res.Result)
	default:
		fmt.Fprintf(s.c.stderr, "unknown command %s (try :help)\n", fields[0])
	}
	return false
}

func (s *replSession) source() string {
	return strings.Join(s.lines, "\n") + "\n"
}
