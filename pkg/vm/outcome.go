package vm

// Stats summarises the scheduling work done by one run.
type Stats struct {
	Spawned  int64 // tasks created by FORK
	Joined   int64 // task records consumed by JOIN
	PeakLive int64 // most unfinished tasks at any one time, main included
	Steps    int64 // instructions executed
}

// Outcome is the result of running a program: either the main task's halt
// value, or the error that stopped the program.
type Outcome struct {
	Result int64
	Err    *Error
	Stats  Stats
}

// Success reports whether the main task halted normally.
func (o Outcome) Success() bool {
	return o.Err == nil
}

// Failure returns the task and program counter where the failure started,
// following joined panics back to their origin, and the full error.
func (o Outcome) Failure() (task int64, pc int, reason error) {
	if o.Err == nil {
		return 0, 0, nil
	}
	origin := o.Err.Origin()
	return origin.Task, origin.PC, o.Err
}
