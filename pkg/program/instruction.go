package program

import (
	"fmt"
	"strconv"
)

// Op identifies an instruction opcode.
type Op int

const (
	OpPush Op = iota
	OpPop
	OpDup
	OpAdd
	OpBury
	OpDredge
	OpJump
	OpCall
	OpReturn
	OpFork
	OpJoin
	OpLoad
	OpStore
	OpLoadIndexed
	OpStoreIndexed
	OpHalt
	OpPanic
	OpDumpDebug
)

var opNames = [...]string{
	OpPush:         "PUSH",
	OpPop:          "POP",
	OpDup:          "DUP",
	OpAdd:          "ADD",
	OpBury:         "BURY",
	OpDredge:       "DREDGE",
	OpJump:         "JMP",
	OpCall:         "JSR",
	OpReturn:       "RET",
	OpFork:         "FORK",
	OpJoin:         "JOIN",
	OpLoad:         "LOAD",
	OpStore:        "STORE",
	OpLoadIndexed:  "LOAD_INDEXED",
	OpStoreIndexed: "STORE_INDEXED",
	OpHalt:         "HALT",
	OpPanic:        "PANIC",
	OpDumpDebug:    "DUMP_DEBUG",
}

func (o Op) String() string {
	if o >= 0 && int(o) < len(opNames) {
		return opNames[o]
	}
	return fmt.Sprintf("op(%d)", int(o))
}

// TargetMode selects where a jump or call finds its destination.
type TargetMode int

const (
	// TargetImmediate uses the address baked into the instruction.
	TargetImmediate TargetMode = iota
	// TargetPopped pops the address off the operand stack at execution time.
	TargetPopped
)

// Target is the destination of a jump or call.
type Target struct {
	Mode TargetMode
	Addr int
}

// Immediate returns a target resolved at assembly time.
func Immediate(addr int) Target { return Target{Mode: TargetImmediate, Addr: addr} }

// Popped returns a target taken from the operand stack.
func Popped() Target { return Target{Mode: TargetPopped} }

func (t Target) String() string {
	if t.Mode == TargetPopped {
		return "<pop>"
	}
	return strconv.Itoa(t.Addr)
}

// Predicate is the branch condition of a jump.
type Predicate int

const (
	Always Predicate = iota
	// IfZero pops a value and branches when it is zero.
	IfZero
	// IfFalse pops a fork discriminator and branches on the child side (zero).
	IfFalse
)

func (p Predicate) String() string {
	switch p {
	case IfZero:
		return "z"
	case IfFalse:
		return "f"
	default:
		return ""
	}
}

// Instruction is a single resolved VM instruction. Only the operand fields
// relevant to Op are meaningful.
type Instruction struct {
	Op        Op
	Value     int64
	Depth     int
	Addr      int
	Target    Target
	Predicate Predicate
}

func Push(v int64) Instruction               { return Instruction{Op: OpPush, Value: v} }
func Pop() Instruction                       { return Instruction{Op: OpPop} }
func Dup() Instruction                       { return Instruction{Op: OpDup} }
func Add() Instruction                       { return Instruction{Op: OpAdd} }
func Bury(depth int) Instruction             { return Instruction{Op: OpBury, Depth: depth} }
func Dredge(depth int) Instruction           { return Instruction{Op: OpDredge, Depth: depth} }
func Jump(t Target, p Predicate) Instruction { return Instruction{Op: OpJump, Target: t, Predicate: p} }
func Call(t Target) Instruction              { return Instruction{Op: OpCall, Target: t} }
func Return() Instruction                    { return Instruction{Op: OpReturn} }
func Fork() Instruction                      { return Instruction{Op: OpFork} }
func Join(depth int) Instruction             { return Instruction{Op: OpJoin, Depth: depth} }
func Load(addr int) Instruction              { return Instruction{Op: OpLoad, Addr: addr} }
func Store(addr int) Instruction             { return Instruction{Op: OpStore, Addr: addr} }
func LoadIndexed(base int) Instruction       { return Instruction{Op: OpLoadIndexed, Addr: base} }
func StoreIndexed(base int) Instruction      { return Instruction{Op: OpStoreIndexed, Addr: base} }
func Halt() Instruction                      { return Instruction{Op: OpHalt} }
func Panic() Instruction                     { return Instruction{Op: OpPanic} }
func DumpDebug() Instruction                 { return Instruction{Op: OpDumpDebug} }

// String renders the instruction in assembler syntax.
func (i Instruction) String() string {
	switch i.Op {
	case OpPush:
		return fmt.Sprintf("PUSH %d", i.Value)
	case OpBury, OpDredge, OpJoin:
		return fmt.Sprintf("%s %d", i.Op, i.Depth)
	case OpLoad, OpStore, OpLoadIndexed, OpStoreIndexed:
		return fmt.Sprintf("%s %d", i.Op, i.Addr)
	case OpJump:
		switch {
		case i.Predicate == Always && i.Target.Mode == TargetPopped:
			return "JMP"
		case i.Predicate == Always:
			return fmt.Sprintf("JMP %d", i.Target.Addr)
		case i.Target.Mode == TargetPopped:
			return fmt.Sprintf("JMP %s", i.Predicate)
		default:
			return fmt.Sprintf("JMP %s, %d", i.Predicate, i.Target.Addr)
		}
	case OpCall:
		if i.Target.Mode == TargetPopped {
			return "JSR"
		}
		return fmt.Sprintf("JSR %d", i.Target.Addr)
	default:
		return i.Op.String()
	}
}
