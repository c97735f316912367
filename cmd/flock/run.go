package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/shelbyd/flock-deprecated/pkg/driver"
	"github.com/shelbyd/flock-deprecated/pkg/program"
	"github.com/shelbyd/flock-deprecated/pkg/vm"
)

// sourceArgs selects a program on disk or in git.
type sourceArgs struct {
	path   string
	git    string
	rev    string
	useGit bool
}

type runArgs struct {
	source  sourceArgs
	workers int
	quantum int
}

func parseRunArgs(args []string, allowTuning bool) (runArgs, error) {
	var out runArgs
	var positional []string
	for i := 0; i < len(args); i++ {
		if value, next, ok, err := flagValue(args, i, "--git"); ok {
			if err != nil {
				return out, err
			}
			out.source.git, out.source.useGit, i = value, true, next
			continue
		}
		if value, next, ok, err := flagValue(args, i, "--rev"); ok {
			if err != nil {
				return out, err
			}
			out.source.rev, i = value, next
			continue
		}
		if allowTuning {
			if value, next, ok, err := flagValue(args, i, "--workers"); ok {
				if err != nil {
					return out, err
				}
				n, err := strconv.Atoi(value)
				if err != nil || n < 1 {
					return out, fmt.Errorf("--workers expects a positive integer, got %q", value)
				}
				out.workers, i = n, next
				continue
			}
			if value, next, ok, err := flagValue(args, i, "--quantum"); ok {
				if err != nil {
					return out, err
				}
				n, err := strconv.Atoi(value)
				if err != nil || n < 1 {
					return out, fmt.Errorf("--quantum expects a positive integer, got %q", value)
				}
				out.quantum, i = n, next
				continue
			}
		}
		positional = append(positional, args[i])
	}
	if len(positional) != 1 {
		return out, fmt.Errorf("expected exactly one program path, got %d", len(positional))
	}
	if out.source.rev != "" && !out.source.useGit {
		return out, fmt.Errorf("--rev requires --git")
	}
	out.source.path = positional[0]
	return out, nil
}

func (e *runEnv) load(src sourceArgs) (*program.Program, error) {
	if src.useGit {
		return e.loader.LoadGit(driver.GitRef{URL: src.git, Rev: src.rev, Path: src.path})
	}
	return e.loader.Load(src.path)
}

func (c *cli) runCommand(ctx context.Context, env *runEnv, args []string) int {
	parsed, err := parseRunArgs(args, true)
	if err != nil {
		fmt.Fprintf(c.stderr, "flock run: %v\n", err)
		return exitUsage
	}
	if parsed.workers > 0 {
		env.cfg.Workers = parsed.workers
	}
	if parsed.quantum > 0 {
		env.cfg.Quantum = parsed.quantum
	}
	prog, err := env.load(parsed.source)
	if err != nil {
		fmt.Fprintf(c.stderr, "flock run: %v\n", err)
		return exitUsage
	}
	out, err := c.execute(ctx, env, prog)
	if err != nil {
		fmt.Fprintf(c.stderr, "flock run: %v\n", err)
		return exitFailure
	}
	if !out.Success() {
		reportFailure(c.stderr, prog, out)
		return exitFailure
	}
	fmt.Fprintln(c.stdout, out.Result)
	return exitOK
}

// execute runs prog with the configured sink and returns the outcome. The
// error is only for sink output failures.
func (c *cli) execute(ctx context.Context, env *runEnv, prog *program.Program) (vm.Outcome, error) {
	sink := newDumpSink(env.cfg.DebugFormat, c.stdout, c.tty)
	opts := append(env.cfg.VMOptions(), vm.WithSink(sink), vm.WithLogger(env.log))
	out := vm.Run(ctx, prog, opts...)
	if err := sink.Close(); err != nil {
		return out, err
	}
	return out, nil
}

// reportFailure prints the reason and the instructions around the origin of
// the failure.
func reportFailure(w io.Writer, prog *program.Program, out vm.Outcome) {
	task, pc, reason := out.Failure()
	fmt.Fprintf(w, "flock: %v\n", reason)
	if errors.Is(reason, vm.Cancelled) || !prog.Contains(pc) {
		return
	}
	fmt.Fprintf(w, "task %d stopped at:\n", task)
	for _, row := range prog.Surrounding(pc, 2) {
		marker := "  "
		if row.PC == pc {
			marker = "> "
		}
		line := ""
		if row.Line > 0 {
			line = fmt.Sprintf(" ; line %d", row.Line)
		}
		fmt.Fprintf(w, "%s%04d  %-24s%s\n", marker, row.PC, row.Instr, line)
	}
}

func (c *cli) disasmCommand(env *runEnv, args []string) int {
	parsed, err := parseRunArgs(args, false)
	if err != nil {
		fmt.Fprintf(c.stderr, "flock disasm: %v\n", err)
		return exitUsage
	}
	prog, err := env.load(parsed.source)
	if err != nil {
		fmt.Fprintf(c.stderr, "flock disasm: %v\n", err)
		return exitUsage
	}
	if err := prog.Disassemble(c.stdout); err != nil {
		fmt.Fprintf(c.stderr, "flock disasm: %v\n", err)
		return exitFailure
	}
	return exitOK
}
