// Package program holds the resolved instruction stream executed by the VM.
// A Program is immutable once constructed and is shared read-only by every
// task of a run.
package program

import (
	"errors"
	"fmt"
	"io"
)

// Program is an ordered, zero-indexed sequence of resolved instructions.
type Program struct {
	instructions []Instruction
	lines        []int
}

// ValidationError reports an instruction that cannot be executed as written.
type ValidationError struct {
	PC      int
	Instr   Instruction
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("program: %s at %d (%s)", e.Message, e.PC, e.Instr)
}

var errEmptyProgram = errors.New("program: no instructions")

// New builds and validates a program.
func New(instructions []Instruction) (*Program, error) {
	return NewWithLines(instructions, nil)
}

// NewWithLines builds a program that remembers the source line of every
// instruction. lines may be nil; otherwise it must match instructions in length.
func NewWithLines(instructions []Instruction, lines []int) (*Program, error) {
	if lines != nil && len(lines) != len(instructions) {
		return nil, fmt.Errorf("program: %d source lines for %d instructions", len(lines), len(instructions))
	}
	p := &Program{
		instructions: append([]Instruction(nil), instructions...),
	}
	if lines != nil {
		p.lines = append([]int(nil), lines...)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// MustNew is New for statically known programs; it panics on invalid input.
func MustNew(instructions ...Instruction) *Program {
	p, err := New(instructions)
	if err != nil {
		panic(err)
	}
	return p
}

// Validate checks every immediate target and operand once, before execution.
func (p *Program) Validate() error {
	if p == nil || len(p.instructions) == 0 {
		return errEmptyProgram
	}
	for pc, instr := range p.instructions {
		if instr.Op < OpPush || instr.Op > OpDumpDebug {
			return &ValidationError{PC: pc, Instr: instr, Message: "unknown opcode"}
		}
		switch instr.Op {
		case OpJump, OpCall:
			if instr.Target.Mode == TargetImmediate && !p.Contains(instr.Target.Addr) {
				return &ValidationError{PC: pc, Instr: instr, Message: "target out of range"}
			}
		case OpBury, OpDredge, OpJoin:
			if instr.Depth < 0 {
				return &ValidationError{PC: pc, Instr: instr, Message: "negative depth"}
			}
		case OpLoad, OpStore, OpLoadIndexed, OpStoreIndexed:
			if instr.Addr < 0 {
				return &ValidationError{PC: pc, Instr: instr, Message: "negative address"}
			}
		}
	}
	return nil
}

// Len returns the number of instructions.
func (p *Program) Len() int { return len(p.instructions) }

// Contains reports whether pc addresses an instruction.
func (p *Program) Contains(pc int) bool {
	return pc >= 0 && pc < len(p.instructions)
}

// At returns the instruction at pc.
func (p *Program) At(pc int) (Instruction, bool) {
	if !p.Contains(pc) {
		return Instruction{}, false
	}
	return p.instructions[pc], true
}

// Line returns the source line of pc, or 0 when unknown.
func (p *Program) Line(pc int) int {
	if p.lines == nil || !p.Contains(pc) {
		return 0
	}
	return p.lines[pc]
}

// Listing is one row of a disassembly.
type Listing struct {
	PC    int
	Line  int
	Instr Instruction
}

// Surrounding returns the instructions within bounds of pc, clamped to the program.
func (p *Program) Surrounding(pc, bounds int) []Listing {
	if len(p.instructions) == 0 {
		return nil
	}
	start := max(pc-bounds, 0)
	end := min(pc+bounds, len(p.instructions)-1)
	if start > end {
		return nil
	}
	out := make([]Listing, 0, end-start+1)
	for i := start; i <= end; i++ {
		out = append(out, Listing{PC: i, Line: p.Line(i), Instr: p.instructions[i]})
	}
	return out
}

// Disassemble writes one instruction per line, prefixed with its address.
func (p *Program) Disassemble(w io.Writer) error {
	for pc, instr := range p.instructions {
		var err error
		if line := p.Line(pc); line > 0 {
			_, err = fmt.Fprintf(w, "%04d  %-24s ; line %d\n", pc, instr, line)
		} else {
			_, err = fmt.Fprintf(w, "%04d  %s\n", pc, instr)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
