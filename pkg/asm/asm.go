// Package asm translates flock assembly source into a validated program.
//
// Source is line oriented. Each line holds any number of `label:` prefixes
// followed by either an instruction, a `name = number` declaration, or
// nothing. `#` and `;` start a comment that runs to the end of the line.
// Operands are separated by commas; a reference is written `$name` or just
// `name` and resolves to a label address or a declared value.
package asm

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"fortio.org/safecast"

	"github.com/shelbyd/flock-deprecated/pkg/program"
)

type operand struct {
	text string
	col  int
}

type statement struct {
	line     int
	col      int
	mnemonic string
	args     []operand
}

type symbol struct {
	value int64
	line  int
}

type assembler struct {
	file    string
	symbols map[string]symbol
	stmts   []statement
	errs    ErrorList
}

// Assemble parses and resolves src. name is used in error positions only.
// On failure the error is an ErrorList.
func Assemble(name string, src []byte) (*program.Program, error) {
	a := &assembler{file: name, symbols: make(map[string]symbol)}
	a.scan(src)
	if len(a.errs) > 0 {
		return nil, a.errs
	}
	instrs := make([]program.Instruction, 0, len(a.stmts))
	lines := make([]int, 0, len(a.stmts))
	for _, st := range a.stmts {
		instr, ok := a.encode(st)
		if !ok {
			continue
		}
		instrs = append(instrs, instr)
		lines = append(lines, st.line)
	}
	if len(a.errs) > 0 {
		return nil, a.errs
	}
	if len(instrs) == 0 {
		return nil, ErrorList{{File: name, Line: 1, Msg: "program has no instructions"}}
	}
	return program.NewWithLines(instrs, lines)
}

// AssembleString is Assemble for in-memory source.
func AssembleString(name, src string) (*program.Program, error) {
	return Assemble(name, []byte(src))
}

func (a *assembler) errorf(line, col int, format string, args ...any) {
	a.errs.add(&Error{File: a.file, Line: line, Col: col, Msg: fmt.Sprintf(format, args...)})
}

// scan is the first pass: it records labels, declarations and statements.
func (a *assembler) scan(src []byte) {
	for i, raw := range bytes.Split(src, []byte("\n")) {
		lineNo := i + 1
		text := strings.TrimRight(string(raw), "\r")
		if idx := strings.IndexAny(text, "#;"); idx >= 0 {
			text = text[:idx]
		}
		pos := skipSpace(text, 0)

		for {
			name, end := scanIdent(text, pos)
			if name == "" || end >= len(text) || text[end] != ':' {
				break
			}
			a.define(name, int64(len(a.stmts)), lineNo, pos+1)
			pos = skipSpace(text, end+1)
		}
		if pos >= len(text) {
			continue
		}

		name, end := scanIdent(text, pos)
		if name == "" {
			a.errorf(lineNo, pos+1, "unexpected %q", text[pos:])
			continue
		}
		if eq := skipSpace(text, end); eq < len(text) && text[eq] == '=' {
			valText := strings.TrimSpace(text[eq+1:])
			v, err := parseNumber(valText)
			if err != nil {
				a.errorf(lineNo, eq+2, "invalid value %q for %s", valText, name)
				continue
			}
			a.define(name, v, lineNo, pos+1)
			continue
		}

		st := statement{line: lineNo, col: pos + 1, mnemonic: strings.ToUpper(name)}
		if rest := text[end:]; strings.TrimSpace(rest) != "" {
			col := end
			for _, part := range strings.Split(rest, ",") {
				trimmed := strings.TrimSpace(part)
				lead := len(part) - len(strings.TrimLeft(part, " \t"))
				if trimmed == "" {
					a.errorf(lineNo, col+lead+1, "empty operand")
				}
				st.args = append(st.args, operand{text: trimmed, col: col + lead + 1})
				col += len(part) + 1
			}
		}
		a.stmts = append(a.stmts, st)
	}
}

func (a *assembler) define(name string, v int64, line, col int) {
	if prev, ok := a.symbols[name]; ok {
		a.errorf(line, col, "%s redefined (previous definition on line %d)", name, prev.line)
		return
	}
	a.symbols[name] = symbol{value: v, line: line}
}

// encode is the second pass: it resolves operands of one statement.
func (a *assembler) encode(st statement) (program.Instruction, bool) {
	switch st.mnemonic {
	case "POP":
		return program.Pop(), a.arity(st, 0, 0)
	case "DUP":
		return program.Dup(), a.arity(st, 0, 0)
	case "ADD":
		return program.Add(), a.arity(st, 0, 0)
	case "RET", "RETURN":
		return program.Return(), a.arity(st, 0, 0)
	case "FORK":
		return program.Fork(), a.arity(st, 0, 0)
	case "HALT":
		return program.Halt(), a.arity(st, 0, 0)
	case "PANIC":
		return program.Panic(), a.arity(st, 0, 0)
	case "DUMP_DEBUG":
		return program.DumpDebug(), a.arity(st, 0, 0)
	case "PUSH":
		if !a.arity(st, 1, 1) {
			return program.Instruction{}, false
		}
		v, ok := a.value(st, st.args[0])
		return program.Push(v), ok
	case "BURY", "DREDGE", "JOIN":
		least := 1
		if st.mnemonic == "JOIN" {
			least = 0
		}
		if !a.arity(st, least, 1) {
			return program.Instruction{}, false
		}
		depth := 0
		if len(st.args) == 1 {
			var ok bool
			if depth, ok = a.small(st, st.args[0], "depth"); !ok {
				return program.Instruction{}, false
			}
		}
		switch st.mnemonic {
		case "BURY":
			return program.Bury(depth), true
		case "DREDGE":
			return program.Dredge(depth), true
		default:
			return program.Join(depth), true
		}
	case "LOAD", "STORE", "LOAD_INDEXED", "STORE_INDEXED":
		if !a.arity(st, 1, 1) {
			return program.Instruction{}, false
		}
		addr, ok := a.small(st, st.args[0], "address")
		if !ok {
			return program.Instruction{}, false
		}
		switch st.mnemonic {
		case "LOAD":
			return program.Load(addr), true
		case "STORE":
			return program.Store(addr), true
		case "LOAD_INDEXED":
			return program.LoadIndexed(addr), true
		default:
			return program.StoreIndexed(addr), true
		}
	case "JMP":
		if !a.arity(st, 0, 2) {
			return program.Instruction{}, false
		}
		args := st.args
		pred := program.Always
		if len(args) > 0 {
			switch args[0].text {
			case "z":
				pred, args = program.IfZero, args[1:]
			case "f":
				pred, args = program.IfFalse, args[1:]
			}
		}
		if len(args) > 1 {
			a.errorf(st.line, args[0].col, "unknown jump condition %q", args[0].text)
			return program.Instruction{}, false
		}
		target, ok := a.target(st, args)
		return program.Jump(target, pred), ok
	case "JSR", "CALL":
		if !a.arity(st, 0, 1) {
			return program.Instruction{}, false
		}
		target, ok := a.target(st, st.args)
		return program.Call(target), ok
	default:
		a.errorf(st.line, st.col, "unknown instruction %s", st.mnemonic)
		return program.Instruction{}, false
	}
}

func (a *assembler) arity(st statement, lo, hi int) bool {
	n := len(st.args)
	if n >= lo && n <= hi {
		return true
	}
	switch {
	case hi == 0:
		a.errorf(st.line, st.col, "%s takes no operands", st.mnemonic)
	case lo == hi:
		a.errorf(st.line, st.col, "%s takes %d operand(s), got %d", st.mnemonic, lo, n)
	default:
		a.errorf(st.line, st.col, "%s takes %d to %d operands, got %d", st.mnemonic, lo, hi, n)
	}
	return false
}

// target resolves an optional jump or call destination; no operand means
// the destination is popped at run time.
func (a *assembler) target(st statement, args []operand) (program.Target, bool) {
	if len(args) == 0 {
		return program.Popped(), true
	}
	v, ok := a.value(st, args[0])
	if !ok {
		return program.Target{}, false
	}
	if v < 0 || v >= int64(len(a.stmts)) {
		a.errorf(st.line, args[0].col, "target %d outside program of %d instructions", v, len(a.stmts))
		return program.Target{}, false
	}
	return program.Immediate(int(v)), true
}

// small resolves an operand that must fit a non-negative int.
func (a *assembler) small(st statement, op operand, what string) (int, bool) {
	v, ok := a.value(st, op)
	if !ok {
		return 0, false
	}
	n, err := safecast.Convert[int](v)
	if err != nil || n < 0 {
		a.errorf(st.line, op.col, "%s %d out of range", what, v)
		return 0, false
	}
	return n, true
}

func (a *assembler) value(st statement, op operand) (int64, bool) {
	text := op.text
	if text == "" {
		return 0, false
	}
	if c := text[0]; c == '-' || (c >= '0' && c <= '9') {
		v, err := parseNumber(text)
		if err != nil {
			a.errorf(st.line, op.col, "invalid number %q", text)
			return 0, false
		}
		return v, true
	}
	name := strings.TrimPrefix(text, "$")
	if ident, end := scanIdent(name, 0); ident == "" || end != len(name) {
		a.errorf(st.line, op.col, "invalid operand %q", text)
		return 0, false
	}
	sym, ok := a.symbols[name]
	if !ok {
		a.errorf(st.line, op.col, "undefined reference %s", name)
		return 0, false
	}
	return sym.value, true
}

// parseNumber accepts decimal with an optional sign and 0x hex.
func parseNumber(s string) (int64, error) {
	sign, body := "", s
	if rest, ok := strings.CutPrefix(s, "-"); ok {
		sign, body = "-", rest
	}
	if hex, ok := strings.CutPrefix(body, "0x"); ok {
		if hex == "" || hex[0] == '-' || hex[0] == '+' {
			return 0, strconv.ErrSyntax
		}
		return strconv.ParseInt(sign+hex, 16, 64)
	}
	return strconv.ParseInt(s, 10, 64)
}

func skipSpace(s string, pos int) int {
	for pos < len(s) && (s[pos] == ' ' || s[pos] == '\t') {
		pos++
	}
	return pos
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func scanIdent(s string, pos int) (string, int) {
	if pos >= len(s) || !isIdentStart(s[pos]) {
		return "", pos
	}
	end := pos + 1
	for end < len(s) && (isIdentStart(s[end]) || (s[end] >= '0' && s[end] <= '9')) {
		end++
	}
	return s[pos:end], end
}
