package vm

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/shelbyd/flock-deprecated/pkg/memory"
	"github.com/shelbyd/flock-deprecated/pkg/program"
)

// Machine runs programs on a bounded pool of workers. A Machine holds only
// configuration; every Run gets its own scheduler and task registry.
type Machine struct {
	opts options
}

func New(opts ...Option) *Machine {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Machine{opts: o}
}

// Workers reports the configured pool size.
func (m *Machine) Workers() int { return m.opts.workers }

// Run executes prog until the main task halts, the program fails, or ctx is
// cancelled.
func (m *Machine) Run(ctx context.Context, prog *program.Program) Outcome {
	if err := prog.Validate(); err != nil {
		return Outcome{Err: &Error{Trap: InvalidAddress, Task: mainTaskID, Err: err}}
	}
	mem := m.opts.mem
	if mem == nil {
		mem = memory.New(m.opts.memoryWords)
	}

	var sinkMu sync.Mutex
	sink := m.opts.sink
	in := &interpreter{
		prog: prog,
		mem:  mem,
		dump: func(taskID int64, stack []int64) {
			sinkMu.Lock()
			defer sinkMu.Unlock()
			sink.OnDump(taskID, stack)
		},
	}
	s := newScheduler(prog, in, m.opts.quantum, m.opts.log)

	log := m.opts.log
	log.Debug().Int("workers", m.opts.workers).Int("quantum", m.opts.quantum).
		Int("instructions", prog.Len()).Msg("run started")

	stop := context.AfterFunc(ctx, func() { s.cancel(context.Cause(ctx)) })
	defer stop()

	var g errgroup.Group
	for i := 0; i < m.opts.workers; i++ {
		g.Go(func() error {
			for {
				t := s.next()
				if t == nil {
					return nil
				}
				if err := s.turn(t); err != nil {
					return err
				}
			}
		})
	}
	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("worker stopped by host panic")
	}

	out := s.result()
	log.Debug().Bool("success", out.Success()).Int64("result", out.Result).
		Int64("spawned", out.Stats.Spawned).Int64("joined", out.Stats.Joined).
		Int64("peak_live", out.Stats.PeakLive).Int64("steps", out.Stats.Steps).Msg("run finished")
	return out
}

// Run executes prog on a Machine built from opts.
func Run(ctx context.Context, prog *program.Program, opts ...Option) Outcome {
	return New(opts...).Run(ctx, prog)
}
