package vm

import "fmt"

// Status is the lifecycle state of a task.
type Status int

const (
	StatusReady Status = iota
	StatusRunning
	StatusBlocked
	StatusHalted
	StatusPanicked
)

func (s Status) String() string {
	switch s {
	case StatusReady:
		return "ready"
	case StatusRunning:
		return "running"
	case StatusBlocked:
		return "blocked"
	case StatusHalted:
		return "halted"
	case StatusPanicked:
		return "panicked"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Finished reports whether the status is terminal.
func (s Status) Finished() bool {
	return s == StatusHalted || s == StatusPanicked
}

// Task is one unit of sequential execution. While Running it is owned by a
// single worker; status, result and failure are only written while
// the scheduler lock is held.
type Task struct {
	id    int64
	pc    int
	stack operandStack
	calls callStack

	status  Status
	result  int64
	failure *Error
}

func newTask(id int64) *Task {
	return &Task{
		id:     id,
		stack:  make(operandStack, 0, 8),
		status: StatusReady,
	}
}

// fork copies the execution state into a new task with the given id. Both
// stacks are deep copies so neither side can observe the other's mutations.
func (t *Task) fork(id int64) *Task {
	return &Task{
		id:     id,
		pc:     t.pc,
		stack:  append(make(operandStack, 0, cap(t.stack)), t.stack...),
		calls:  append(make(callStack, 0, cap(t.calls)), t.calls...),
		status: StatusReady,
	}
}

// release drops the stacks of a finished task; only the result is kept for the joiner.
func (t *Task) release() {
	t.stack = nil
	t.calls = nil
}
