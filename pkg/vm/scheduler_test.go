package vm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/shelbyd/flock-deprecated/pkg/asm"
	"github.com/shelbyd/flock-deprecated/pkg/memory"
	"github.com/shelbyd/flock-deprecated/pkg/program"
)

func assemble(t *testing.T, src string) *program.Program {
	t.Helper()
	p, err := asm.AssembleString(t.Name(), src)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	return p
}

func loadExample(t *testing.T, name string) *program.Program {
	t.Helper()
	path := filepath.Join("..", "..", "examples", name)
	src, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	p, err := asm.Assemble(path, src)
	if err != nil {
		t.Fatalf("assemble %s: %v", path, err)
	}
	return p
}

func mustSucceed(t *testing.T, out Outcome) int64 {
	t.Helper()
	if !out.Success() {
		t.Fatalf("program failed: %v", out.Err)
	}
	return out.Result
}

type runConfig struct {
	workers int
	quantum int
}

var runConfigs = []runConfig{
	{workers: 1, quantum: 1},
	{workers: 1, quantum: 3},
	{workers: 1, quantum: DefaultQuantum},
	{workers: 4, quantum: 1},
	{workers: 4, quantum: 7},
	{workers: 8, quantum: DefaultQuantum},
}

func TestExamplePrograms(t *testing.T) {
	cases := []struct {
		file string
		want int64
	}{
		{"fib.fasm", 55},
		{"pfib.fasm", 55},
		{"readers.fasm", 42},
	}
	for _, tc := range cases {
		prog := loadExample(t, tc.file)
		for _, cfg := range runConfigs {
			t.Run(fmt.Sprintf("%s/workers=%d/quantum=%d", tc.file, cfg.workers, cfg.quantum), func(t *testing.T) {
				out := Run(context.Background(), prog, WithWorkers(cfg.workers), WithQuantum(cfg.quantum))
				if got := mustSucceed(t, out); got != tc.want {
					t.Fatalf("result = %d, want %d", got, tc.want)
				}
				if out.Stats.Joined != out.Stats.Spawned {
					t.Fatalf("joined %d of %d spawned tasks", out.Stats.Joined, out.Stats.Spawned)
				}
			})
		}
	}
}

func TestReadersStats(t *testing.T) {
	out := Run(context.Background(), loadExample(t, "readers.fasm"), WithWorkers(1))
	mustSucceed(t, out)
	if out.Stats.Spawned != 1000 {
		t.Fatalf("spawned = %d, want 1000", out.Stats.Spawned)
	}
	if out.Stats.PeakLive < 2 || out.Stats.PeakLive > 1001 {
		t.Fatalf("peak live = %d", out.Stats.PeakLive)
	}
	if out.Stats.Steps == 0 {
		t.Fatal("steps not counted")
	}
}

func TestForkChain(t *testing.T) {
	if testing.Short() {
		t.Skip("long fork chain")
	}
	for _, workers := range []int{1, 4} {
		out := Run(context.Background(), loadExample(t, "chain.fasm"), WithWorkers(workers))
		if got := mustSucceed(t, out); got != 7 {
			t.Fatalf("workers=%d: result = %d, want 7", workers, got)
		}
		if out.Stats.Spawned != 100000 || out.Stats.Joined != 100000 {
			t.Fatalf("workers=%d: stats %+v", workers, out.Stats)
		}
	}
}

func TestForkDiscriminators(t *testing.T) {
	prog := assemble(t, `
	FORK
	DUMP_DEBUG
	DUP
	JMP f, child
	JOIN 0
	HALT
child:
	PUSH 5
	ADD
	HALT
`)
	dumps := map[int64][]int64{}
	sink := SinkFunc(func(id int64, stack []int64) { dumps[id] = stack })
	out := Run(context.Background(), prog, WithWorkers(1), WithSink(sink))
	if got := mustSucceed(t, out); got != 5 {
		t.Fatalf("result = %d, want 5", got)
	}
	want := map[int64][]int64{0: {1}, 1: {0}}
	if !reflect.DeepEqual(dumps, want) {
		t.Fatalf("dumps got=%v want=%v", dumps, want)
	}
}

func TestJoinTwiceIsUnknownTask(t *testing.T) {
	prog := assemble(t, `
	FORK
	DUP
	JMP f, child
	DUP
	JOIN 0
	POP
	JOIN 0
	HALT
child:
	PUSH 1
	HALT
`)
	out := Run(context.Background(), prog, WithWorkers(2))
	if out.Success() || !errors.Is(out.Err, UnknownTask) {
		t.Fatalf("expected unknown task, got %v", out.Err)
	}
	if out.Err.Ref != 1 || out.Err.Task != 0 || out.Err.PC != 6 {
		t.Fatalf("error = %+v", out.Err)
	}
}

func TestJoinFailures(t *testing.T) {
	cases := []struct {
		name string
		src  string
		trap Trap
		ref  int64
	}{
		{"self join", "PUSH 0\nJOIN\nHALT\n", SelfJoin, 0},
		{"never issued", "PUSH 99\nJOIN\nHALT\n", UnknownTask, 99},
		{"negative id", "PUSH -1\nJOIN\nHALT\n", UnknownTask, -1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out := Run(context.Background(), assemble(t, tc.src))
			if out.Success() || out.Err.Trap != tc.trap || out.Err.Ref != tc.ref {
				t.Fatalf("got %v, want %v on %d", out.Err, tc.trap, tc.ref)
			}
		})
	}
}

func TestPanicPropagatesThroughJoin(t *testing.T) {
	prog := assemble(t, `
	FORK
	DUP
	JMP f, child
	JOIN 0
	HALT
child:
	PANIC
`)
	for _, cfg := range runConfigs {
		out := Run(context.Background(), prog, WithWorkers(cfg.workers), WithQuantum(cfg.quantum))
		if out.Success() {
			t.Fatalf("%+v: expected failure", cfg)
		}
		if out.Err.Trap != Panic || out.Err.Task != 0 || out.Err.Cause == nil {
			t.Fatalf("%+v: error = %v", cfg, out.Err)
		}
		task, pc, reason := out.Failure()
		if task != 1 || pc != 5 || reason == nil {
			t.Fatalf("%+v: Failure() = %d, %d, %v", cfg, task, pc, reason)
		}
		if !strings.Contains(reason.Error(), "joined panic in task 1 at 5 (PANIC)") {
			t.Fatalf("%+v: reason %q", cfg, reason)
		}
	}
}

func TestPanicChainReachesMain(t *testing.T) {
	prog := assemble(t, `
	PUSH 3
chain:
	DUP
	JMP z, bottom
	PUSH -1
	ADD
	FORK
	DUP
	JMP f, chain_child
	JOIN 0
	HALT
chain_child:
	POP
	JMP chain
bottom:
	PANIC
`)
	out := Run(context.Background(), prog, WithWorkers(2))
	if out.Success() {
		t.Fatal("expected failure")
	}
	depth := 0
	for e := out.Err; e.Cause != nil; e = e.Cause {
		depth++
	}
	if depth != 3 {
		t.Fatalf("cause chain depth = %d, want 3: %v", depth, out.Err)
	}
	if task, _, _ := out.Failure(); task != 3 {
		t.Fatalf("origin task = %d, want 3", task)
	}
}

func TestUnjoinedPanicFailsProgram(t *testing.T) {
	prog := assemble(t, `
	FORK
	DUP
	JMP f, bad
	POP
	FORK
	DUP
	JMP f, good
	JOIN 0
	HALT
bad:
	PANIC
good:
	PUSH 3
	HALT
`)
	out := Run(context.Background(), prog, WithWorkers(1))
	if out.Success() {
		t.Fatalf("expected failure, got result %d", out.Result)
	}
	if out.Err.Trap != Panic || out.Err.Task != 1 || out.Err.PC != 9 {
		t.Fatalf("error = %v", out.Err)
	}
}

func TestMainPanic(t *testing.T) {
	out := Run(context.Background(), assemble(t, "PUSH 1\nPANIC\n"))
	task, pc, reason := out.Failure()
	if out.Success() || task != 0 || pc != 1 || !errors.Is(reason, Panic) {
		t.Fatalf("Failure() = %d, %d, %v", task, pc, reason)
	}
}

func TestEngineTrapInChildAbortsProgram(t *testing.T) {
	prog := assemble(t, `
	FORK
	DUP
	JMP f, child
	JOIN 0
	HALT
child:
	POP
	POP
	HALT
`)
	out := Run(context.Background(), prog, WithWorkers(2))
	if out.Success() || out.Err.Trap != StackUnderflow || out.Err.Task != 1 || out.Err.PC != 6 {
		t.Fatalf("error = %v", out.Err)
	}
}

func TestMutualJoinWaitsForCancellation(t *testing.T) {
	prog := assemble(t, `
	FORK
	DUP
	JMP f, child
	JOIN 0
	HALT
child:
	PUSH 0
	JOIN 0
	HALT
`)
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	start := time.Now()
	out := Run(ctx, prog, WithWorkers(2))
	if elapsed := time.Since(start); elapsed < 150*time.Millisecond {
		t.Fatalf("run returned after %v, before the deadline", elapsed)
	}
	if out.Success() || out.Err.Trap != Cancelled {
		t.Fatalf("error = %v", out.Err)
	}
	if !errors.Is(out.Err, context.DeadlineExceeded) {
		t.Fatalf("cause = %v", out.Err.Err)
	}
}

func TestSinkPanicStopsRun(t *testing.T) {
	prog := assemble(t, `
	PUSH 1
	FORK
	DUMP_DEBUG
	HALT
`)
	sink := SinkFunc(func(int64, []int64) { panic("sink exploded") })
	out := Run(context.Background(), prog, WithWorkers(2), WithSink(sink))
	if out.Success() || out.Err.Trap != Cancelled {
		t.Fatalf("error = %v", out.Err)
	}
	if !strings.Contains(out.Err.Error(), "sink exploded") {
		t.Fatalf("error = %v", out.Err)
	}
}

func TestFairnessWithSingleWorker(t *testing.T) {
	prog := assemble(t, `
	FORK
	JMP f, child
wait:
	LOAD 0
	JMP z, wait
	PUSH 9
	HALT
child:
	PUSH 1
	STORE 0
	HALT
`)
	for _, quantum := range []int{1, 2, 64} {
		out := Run(context.Background(), prog, WithWorkers(1), WithQuantum(quantum))
		if got := mustSucceed(t, out); got != 9 {
			t.Fatalf("quantum=%d: result = %d", quantum, got)
		}
	}
}

func TestRunningOrphansAreAbandoned(t *testing.T) {
	prog := assemble(t, `
	FORK
	JMP f, spin
	PUSH 4
	HALT
spin:
	JMP spin
`)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	out := Run(ctx, prog, WithWorkers(2), WithQuantum(1))
	if got := mustSucceed(t, out); got != 4 {
		t.Fatalf("result = %d, want 4", got)
	}
}

func TestCancel(t *testing.T) {
	prog := assemble(t, "loop: JMP loop\n")
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)
	out := Run(ctx, prog, WithWorkers(2))
	if out.Success() || out.Err.Trap != Cancelled {
		t.Fatalf("error = %v", out.Err)
	}
	if !errors.Is(out.Err, context.Canceled) {
		t.Fatalf("cancel cause lost: %v", out.Err)
	}
}

func TestDumpsAreSerialised(t *testing.T) {
	prog := assemble(t, `
	PUSH 0
	PUSH 200
spawn:
	DUP
	JMP z, join_all
	FORK
	DUP
	JMP f, child
	BURY 1
	PUSH -1
	ADD
	JMP spawn
join_all:
	POP
join_loop:
	DUP
	JMP z, done
	JOIN 0
	POP
	JMP join_loop
done:
	HALT
child:
	DUMP_DEBUG
	HALT
`)
	var dumps [][]int64
	sink := SinkFunc(func(_ int64, stack []int64) { dumps = append(dumps, stack) })
	out := Run(context.Background(), prog, WithWorkers(8), WithQuantum(1), WithSink(sink))
	mustSucceed(t, out)
	if len(dumps) != 200 {
		t.Fatalf("got %d dumps, want 200", len(dumps))
	}
}

func TestSharedMemoryOption(t *testing.T) {
	mem := memory.New(8)
	prog := assemble(t, "PUSH 7\nSTORE 3\nHALT\n")
	mustSucceed(t, Run(context.Background(), prog, WithMemory(mem)))
	if v, _ := mem.Load(3); v != 7 {
		t.Fatalf("mem[3] = %d, want 7", v)
	}

	out := Run(context.Background(), assemble(t, "PUSH 1\nSTORE 4\nHALT\n"), WithMemoryWords(4))
	if out.Success() || out.Err.Trap != InvalidAddress || out.Err.Addr != 4 {
		t.Fatalf("error = %v", out.Err)
	}
}

func TestHaltValue(t *testing.T) {
	if got := mustSucceed(t, Run(context.Background(), assemble(t, "HALT\n"))); got != 0 {
		t.Fatalf("empty stack halt = %d, want 0", got)
	}
	if got := mustSucceed(t, Run(context.Background(), assemble(t, "PUSH 1\nPUSH 2\nHALT\n"))); got != 2 {
		t.Fatalf("halt = %d, want 2", got)
	}
}

func TestInvalidProgram(t *testing.T) {
	out := Run(context.Background(), &program.Program{})
	if out.Success() || out.Err.Trap != InvalidAddress {
		t.Fatalf("error = %v", out.Err)
	}
}

func TestTraceLogging(t *testing.T) {
	prev := zerolog.GlobalLevel()
	zerolog.SetGlobalLevel(zerolog.TraceLevel)
	t.Cleanup(func() { zerolog.SetGlobalLevel(prev) })

	var buf bytes.Buffer
	log := zerolog.New(&buf).Level(zerolog.TraceLevel)
	mustSucceed(t, Run(context.Background(), assemble(t, "PUSH 1\nHALT\n"), WithLogger(log)))
	for _, want := range []string{`"message":"step"`, `"instr":"PUSH 1"`, `"message":"run finished"`} {
		if !strings.Contains(buf.String(), want) {
			t.Fatalf("log missing %s:\n%s", want, buf.String())
		}
	}
}

func TestMachineDefaults(t *testing.T) {
	m := New(WithWorkers(0), WithQuantum(-1))
	if m.Workers() < 1 {
		t.Fatalf("workers = %d", m.Workers())
	}
	if m.opts.quantum != DefaultQuantum {
		t.Fatalf("quantum = %d", m.opts.quantum)
	}
}
