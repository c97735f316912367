package vm

import (
	"fmt"
	"strings"

	"github.com/shelbyd/flock-deprecated/pkg/program"
)

// Trap describes the reason a task stopped abnormally.
type Trap int

// List of VM traps.
const (
	StackUnderflow Trap = iota
	CallStackUnderflow
	InvalidAddress
	SelfJoin
	UnknownTask
	Panic
	Cancelled
)

var trapNames = []string{
	"stack underflow",
	"call stack underflow",
	"invalid address",
	"self join",
	"unknown task",
	"panic",
	"cancelled",
}

func (t Trap) Error() string {
	if t >= 0 && int(t) < len(trapNames) {
		return trapNames[t]
	}
	return fmt.Sprintf("trap %d", int(t))
}

// Fatal reports whether the trap aborts the whole program regardless of
// which task raised it. Explicit panics instead travel along joins.
func (t Trap) Fatal() bool {
	return t != Panic
}

// Error carries a trap together with the task state at the time it fired.
type Error struct {
	Trap  Trap
	Task  int64               // task that raised the trap
	PC    int                 // program counter of the faulting instruction
	Instr program.Instruction // faulting instruction
	Addr  int64               // offending address for InvalidAddress
	Ref   int64               // task id named by SelfJoin/UnknownTask
	Stack []int64             // operand stack snapshot
	Err   error               // context cause, host panic, or invalid program
	Cause *Error              // panic joined from another task
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Trap.Error() + ": " + e.Err.Error()
	}
	var b strings.Builder
	b.WriteString(e.Trap.Error())
	switch e.Trap {
	case InvalidAddress:
		fmt.Fprintf(&b, " %d", e.Addr)
	case SelfJoin, UnknownTask:
		fmt.Fprintf(&b, " %d", e.Ref)
	case Cancelled:
		return b.String()
	}
	fmt.Fprintf(&b, " in task %d at %d (%s)", e.Task, e.PC, e.Instr)
	if e.Cause != nil {
		fmt.Fprintf(&b, ": joined %s", e.Cause.Error())
	}
	return b.String()
}

// Is matches a bare Trap so callers can write errors.Is(err, vm.StackUnderflow).
func (e *Error) Is(target error) bool {
	t, ok := target.(Trap)
	return ok && t == e.Trap
}

func (e *Error) Unwrap() error {
	if e.Cause != nil {
		return e.Cause
	}
	return e.Err
}

// Origin follows the join chain back to the task that executed PANIC.
func (e *Error) Origin() *Error {
	for e.Cause != nil {
		e = e.Cause
	}
	return e
}

func (t *Task) newError(trap Trap, instr program.Instruction) *Error {
	return &Error{
		Trap:  trap,
		Task:  t.id,
		PC:    t.pc,
		Instr: instr,
		Stack: t.stack.snapshot(),
	}
}

func (t *Task) newAddrError(instr program.Instruction, addr int64) *Error {
	err := t.newError(InvalidAddress, instr)
	err.Addr = addr
	return err
}

func (t *Task) newRefError(trap Trap, instr program.Instruction, ref int64) *Error {
	err := t.newError(trap, instr)
	err.Ref = ref
	return err
}
