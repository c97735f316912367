package vm

// DebugSink receives DUMP_DEBUG snapshots. OnDump is called synchronously
// from the worker executing the instruction; the scheduler serialises calls,
// so implementations need not be safe for concurrent use. The stack slice is
// a copy owned by the sink.
type DebugSink interface {
	OnDump(taskID int64, stack []int64)
}

// SinkFunc adapts a function to DebugSink.
type SinkFunc func(taskID int64, stack []int64)

func (f SinkFunc) OnDump(taskID int64, stack []int64) { f(taskID, stack) }

type nopSink struct{}

func (nopSink) OnDump(int64, []int64) {}

// NopSink discards every dump; use it for headless runs.
var NopSink DebugSink = nopSink{}
