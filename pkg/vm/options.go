package vm

import (
	"runtime"

	"github.com/rs/zerolog"

	"github.com/shelbyd/flock-deprecated/pkg/memory"
)

// DefaultQuantum is the number of instructions a task may execute before it
// goes back to the end of the run-queue.
const DefaultQuantum = 256

type options struct {
	workers     int
	quantum     int
	memoryWords int
	mem         *memory.Memory
	sink        DebugSink
	log         zerolog.Logger
}

func defaultOptions() options {
	return options{
		workers: runtime.GOMAXPROCS(0),
		quantum: DefaultQuantum,
		sink:    NopSink,
		log:     zerolog.Nop(),
	}
}

// Option configures a Machine.
type Option func(*options)

// WithWorkers sets the worker pool size. Values below one select GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(o *options) {
		if n < 1 {
			n = runtime.GOMAXPROCS(0)
		}
		o.workers = n
	}
}

// WithQuantum sets the per-turn instruction budget. Values below one select DefaultQuantum.
func WithQuantum(n int) Option {
	return func(o *options) {
		if n < 1 {
			n = DefaultQuantum
		}
		o.quantum = n
	}
}

// WithMemoryWords sets the size of the memory allocated for each run.
func WithMemoryWords(n int) Option {
	return func(o *options) { o.memoryWords = n }
}

// WithMemory runs programs against m instead of a fresh memory. The caller
// can inspect m after the run.
func WithMemory(m *memory.Memory) Option {
	return func(o *options) { o.mem = m }
}

func WithSink(sink DebugSink) Option {
	return func(o *options) {
		if sink == nil {
			sink = NopSink
		}
		o.sink = sink
	}
}

func WithLogger(log zerolog.Logger) Option {
	return func(o *options) { o.log = log }
}
