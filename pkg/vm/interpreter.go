package vm

import (
	"fortio.org/safecast"

	"github.com/shelbyd/flock-deprecated/pkg/memory"
	"github.com/shelbyd/flock-deprecated/pkg/program"
)

// signal is the scheduling action an instruction asks for.
type signal int

const (
	signalNone signal = iota
	signalFork  // PC already advanced past FORK
	signalJoin  // PC still on JOIN
	signalHalt  // PC still on HALT
	signalPanic // PC still on PANIC
)

// interpreter executes single instructions against a task. It touches no
// scheduler state; everything shared goes through memory or the dump hook.
type interpreter struct {
	prog *program.Program
	mem  *memory.Memory
	dump func(taskID int64, stack []int64)
}

func (in *interpreter) fetch(t *Task) (program.Instruction, *Error) {
	instr, ok := in.prog.At(t.pc)
	if !ok {
		err := t.newAddrError(program.Instruction{}, int64(t.pc))
		return instr, err
	}
	return instr, nil
}

// step executes the instruction at t.pc.
func (in *interpreter) step(t *Task) (signal, *Error) {
	instr, err := in.fetch(t)
	if err != nil {
		return signalNone, err
	}
	switch instr.Op {
	case program.OpPush:
		t.stack.push(instr.Value)
	case program.OpPop:
		if _, ok := t.stack.pop(); !ok {
			return signalNone, t.newError(StackUnderflow, instr)
		}
	case program.OpDup:
		v, ok := t.stack.peek(0)
		if !ok {
			return signalNone, t.newError(StackUnderflow, instr)
		}
		t.stack.push(v)
	case program.OpAdd:
		if t.stack.depth() < 2 {
			return signalNone, t.newError(StackUnderflow, instr)
		}
		a, _ := t.stack.pop()
		b, _ := t.stack.pop()
		// int64 addition wraps in two's complement.
		t.stack.push(b + a)
	case program.OpBury:
		if !t.stack.bury(instr.Depth) {
			return signalNone, t.newError(StackUnderflow, instr)
		}
	case program.OpDredge:
		if !t.stack.dredge(instr.Depth) {
			return signalNone, t.newError(StackUnderflow, instr)
		}
	case program.OpJump:
		return signalNone, in.jump(t, instr)
	case program.OpCall:
		target, err := in.resolveTarget(t, instr)
		if err != nil {
			return signalNone, err
		}
		t.calls.push(t.pc + 1)
		t.pc = target
		return signalNone, nil
	case program.OpReturn:
		addr, ok := t.calls.pop()
		if !ok {
			return signalNone, t.newError(CallStackUnderflow, instr)
		}
		if !in.prog.Contains(addr) {
			return signalNone, t.newAddrError(instr, int64(addr))
		}
		t.pc = addr
		return signalNone, nil
	case program.OpFork:
		t.pc++
		return signalFork, nil
	case program.OpJoin:
		if _, ok := t.stack.peek(instr.Depth); !ok {
			return signalNone, t.newError(StackUnderflow, instr)
		}
		return signalJoin, nil
	case program.OpLoad:
		v, err := in.load(t, instr, int64(instr.Addr))
		if err != nil {
			return signalNone, err
		}
		t.stack.push(v)
	case program.OpStore:
		v, ok := t.stack.pop()
		if !ok {
			return signalNone, t.newError(StackUnderflow, instr)
		}
		if err := in.store(t, instr, int64(instr.Addr), v); err != nil {
			return signalNone, err
		}
	case program.OpLoadIndexed:
		offset, ok := t.stack.pop()
		if !ok {
			return signalNone, t.newError(StackUnderflow, instr)
		}
		v, err := in.load(t, instr, int64(instr.Addr)+offset)
		if err != nil {
			return signalNone, err
		}
		t.stack.push(v)
	case program.OpStoreIndexed:
		offset, ok := t.stack.pop()
		if !ok {
			return signalNone, t.newError(StackUnderflow, instr)
		}
		v, ok := t.stack.pop()
		if !ok {
			return signalNone, t.newError(StackUnderflow, instr)
		}
		if err := in.store(t, instr, int64(instr.Addr)+offset, v); err != nil {
			return signalNone, err
		}
	case program.OpHalt:
		return signalHalt, nil
	case program.OpPanic:
		return signalPanic, nil
	case program.OpDumpDebug:
		if in.dump != nil {
			in.dump(t.id, t.stack.snapshot())
		}
	default:
		return signalNone, t.newError(InvalidAddress, instr)
	}
	t.pc++
	return signalNone, nil
}

// jump pops the condition (when there is one) before a popped target, so the
// stack effect is the same whether or not the branch is taken.
func (in *interpreter) jump(t *Task, instr program.Instruction) *Error {
	taken := true
	if instr.Predicate != program.Always {
		cond, ok := t.stack.pop()
		if !ok {
			return t.newError(StackUnderflow, instr)
		}
		taken = cond == 0
	}
	target, err := in.resolveTarget(t, instr)
	if err != nil {
		return err
	}
	if taken {
		t.pc = target
	} else {
		t.pc++
	}
	return nil
}

// resolveTarget returns the immediate address or pops one off the stack.
func (in *interpreter) resolveTarget(t *Task, instr program.Instruction) (int, *Error) {
	if instr.Target.Mode == program.TargetImmediate {
		return instr.Target.Addr, nil
	}
	raw, ok := t.stack.pop()
	if !ok {
		return 0, t.newError(StackUnderflow, instr)
	}
	target, err := safecast.Convert[int](raw)
	if err != nil || !in.prog.Contains(target) {
		return 0, t.newAddrError(instr, raw)
	}
	return target, nil
}

func (in *interpreter) load(t *Task, instr program.Instruction, addr int64) (int64, *Error) {
	v, err := in.mem.Load(addr)
	if err != nil {
		return 0, t.newAddrError(instr, addr)
	}
	return v, nil
}

func (in *interpreter) store(t *Task, instr program.Instruction, addr, v int64) *Error {
	if err := in.mem.Store(addr, v); err != nil {
		return t.newAddrError(instr, addr)
	}
	return nil
}

// haltValue is the top of the stack, or 0 when the stack is empty.
func (t *Task) haltValue() int64 {
	v, ok := t.stack.peek(0)
	if !ok {
		return 0
	}
	return v
}
