// Package memory implements the word-addressable store shared by every task.
//
// Each word is an independent atomic cell: concurrent loads and stores never
// tear, and the last store to a word is the one later loads observe. No
// ordering between different words is implied beyond what the scheduler's
// fork and join bookkeeping already establishes.
package memory

import (
	"fmt"
	"sync/atomic"

	"fortio.org/safecast"
)

// DefaultWords is the memory size used when none is configured.
const DefaultWords = 1 << 16

// Memory is a fixed-size array of int64 words, zero-initialised.
type Memory struct {
	words []atomic.Int64
}

// AddressError reports an access outside the configured bounds.
type AddressError struct {
	Addr int64
	Size int
}

func (e *AddressError) Error() string {
	return fmt.Sprintf("address %d outside memory of %d words", e.Addr, e.Size)
}

// New allocates size words. A non-positive size selects DefaultWords.
func New(size int) *Memory {
	if size <= 0 {
		size = DefaultWords
	}
	return &Memory{words: make([]atomic.Int64, size)}
}

// Size returns the number of addressable words.
func (m *Memory) Size() int { return len(m.words) }

func (m *Memory) index(addr int64) (int, error) {
	idx, err := safecast.Convert[int](addr)
	if err != nil || idx < 0 || idx >= len(m.words) {
		return 0, &AddressError{Addr: addr, Size: len(m.words)}
	}
	return idx, nil
}

// Load reads the word at addr.
func (m *Memory) Load(addr int64) (int64, error) {
	idx, err := m.index(addr)
	if err != nil {
		return 0, err
	}
	return m.words[idx].Load(), nil
}

// Store writes v at addr.
func (m *Memory) Store(addr int64, v int64) error {
	idx, err := m.index(addr)
	if err != nil {
		return err
	}
	m.words[idx].Store(v)
	return nil
}

// Snapshot copies n words starting at addr; the range is clamped to memory.
func (m *Memory) Snapshot(addr, n int) []int64 {
	if addr < 0 {
		addr = 0
	}
	end := min(addr+n, len(m.words))
	if addr >= end {
		return nil
	}
	out := make([]int64, 0, end-addr)
	for i := addr; i < end; i++ {
		out = append(out, m.words[i].Load())
	}
	return out
}
