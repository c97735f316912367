package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/shelbyd/flock-deprecated/pkg/driver"
	"github.com/shelbyd/flock-deprecated/pkg/vm"
)

func cyan(s string) string { return "\x1b[36m" + s + "\x1b[0m" }

// dumpSink is a vm.DebugSink that may buffer output until Close.
type dumpSink interface {
	vm.DebugSink
	Close() error
}

func newDumpSink(format string, w io.Writer, color bool) dumpSink {
	if format == driver.DebugFormatYAML {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		return &yamlSink{enc: enc}
	}
	return &textSink{w: w, color: color}
}

// textSink writes one `task <id>: [a b c]` line per dump.
type textSink struct {
	w     io.Writer
	color bool
	err   error
}

func (s *textSink) OnDump(taskID int64, stack []int64) {
	if s.err != nil {
		return
	}
	label := "task " + strconv.FormatInt(taskID, 10)
	if s.color {
		label = cyan(label)
	}
	_, s.err = fmt.Fprintf(s.w, "%s: %s\n", label, formatStack(stack))
}

func (s *textSink) Close() error { return s.err }

func formatStack(stack []int64) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range stack {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(strconv.FormatInt(v, 10))
	}
	b.WriteByte(']')
	return b.String()
}

type dumpRecord struct {
	Task  int64   `yaml:"task"`
	Stack []int64 `yaml:"stack,flow"`
}

// yamlSink writes every dump as its own YAML document.
type yamlSink struct {
	enc *yaml.Encoder
	err error
}

func (s *yamlSink) OnDump(taskID int64, stack []int64) {
	if s.err != nil {
		return
	}
	if stack == nil {
		stack = []int64{}
	}
	s.err = s.enc.Encode(dumpRecord{Task: taskID, Stack: stack})
}

func (s *yamlSink) Close() error {
	if err := s.enc.Close(); err != nil && s.err == nil {
		s.err = err
	}
	return s.err
}
