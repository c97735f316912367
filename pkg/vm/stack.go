package vm

// operandStack grows and shrinks at the top; index len-1 is depth 0.
type operandStack []int64

func (s *operandStack) depth() int {
	return len(*s)
}

func (s *operandStack) push(v int64) {
	*s = append(*s, v)
}

func (s *operandStack) pop() (int64, bool) {
	n := len(*s)
	if n == 0 {
		return 0, false
	}
	v := (*s)[n-1]
	*s = (*s)[:n-1]
	return v, true
}

func (s *operandStack) peek(depth int) (int64, bool) {
	n := len(*s)
	if depth < 0 || depth >= n {
		return 0, false
	}
	return (*s)[n-1-depth], true
}

// removeAt deletes the element at depth, shifting the elements above it down.
func (s *operandStack) removeAt(depth int) (int64, bool) {
	n := len(*s)
	if depth < 0 || depth >= n {
		return 0, false
	}
	idx := n - 1 - depth
	v := (*s)[idx]
	copy((*s)[idx:], (*s)[idx+1:])
	*s = (*s)[:n-1]
	return v, true
}

// bury pops the top value and reinserts it at depth counted from the new top.
func (s *operandStack) bury(depth int) bool {
	n := len(*s)
	if depth < 0 || n < depth+1 {
		return false
	}
	v := (*s)[n-1]
	idx := n - 1 - depth
	copy((*s)[idx+1:], (*s)[idx:n-1])
	(*s)[idx] = v
	return true
}

// dredge moves the element at depth to the top.
func (s *operandStack) dredge(depth int) bool {
	v, ok := s.removeAt(depth)
	if !ok {
		return false
	}
	s.push(v)
	return true
}

func (s operandStack) snapshot() []int64 {
	return append(make([]int64, 0, len(s)), s...)
}

// callStack holds return addresses for JSR/RET.
type callStack []int

func (c *callStack) push(addr int) {
	*c = append(*c, addr)
}

func (c *callStack) pop() (int, bool) {
	n := len(*c)
	if n == 0 {
		return 0, false
	}
	addr := (*c)[n-1]
	*c = (*c)[:n-1]
	return addr, true
}

func (c callStack) snapshot() []int {
	return append(make([]int, 0, len(c)), c...)
}
