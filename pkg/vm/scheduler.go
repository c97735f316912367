package vm

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/emirpasic/gods/queues/linkedlistqueue"
	"github.com/rs/zerolog"

	"github.com/shelbyd/flock-deprecated/pkg/program"
)

const mainTaskID int64 = 0

// scheduler owns the task registry, the run-queue and the blocked index.
// All three are guarded by mu; a Running task's stacks belong to the worker
// executing it and are touched without the lock.
type scheduler struct {
	prog    *program.Program
	in      *interpreter
	quantum int
	log     zerolog.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	ready   *linkedlistqueue.Queue
	tasks   map[int64]*Task
	waiters map[int64][]*Task
	live    int64
	done    bool
	outcome Outcome
	stats   Stats

	lastID  atomic.Int64
	steps   atomic.Int64
	stopped atomic.Bool
}

func newScheduler(prog *program.Program, in *interpreter, quantum int, log zerolog.Logger) *scheduler {
	s := &scheduler{
		prog:    prog,
		in:      in,
		quantum: quantum,
		log:     log,
		ready:   linkedlistqueue.New(),
		tasks:   make(map[int64]*Task),
		waiters: make(map[int64][]*Task),
	}
	s.cond = sync.NewCond(&s.mu)

	main := newTask(mainTaskID)
	s.tasks[main.id] = main
	s.ready.Enqueue(main)
	s.live = 1
	s.stats.PeakLive = 1
	return s
}

// next blocks until a task is ready and marks it Running. It returns nil once
// the program has finished. Tasks blocked in a join that can never complete
// keep the workers parked here until the run is cancelled.
func (s *scheduler) next() *Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	for !s.done && s.ready.Empty() {
		s.cond.Wait()
	}
	if s.done {
		return nil
	}
	v, _ := s.ready.Dequeue()
	t := v.(*Task)
	t.status = StatusRunning
	return t
}

// turn runs t for at most one quantum. The returned error is not a VM trap but
// a panic raised by host code during a step, typically the debug sink; the
// program has already been stopped when it is returned.
func (s *scheduler) turn(t *Task) error {
	var n int
	defer func() { s.steps.Add(int64(n)) }()

	for n < s.quantum {
		if s.stopped.Load() {
			return nil
		}
		if e := s.log.Trace(); e.Enabled() {
			instr, _ := s.prog.At(t.pc)
			e.Int64("task", t.id).Int("pc", t.pc).Stringer("instr", instr).Int("depth", t.stack.depth()).Msg("step")
		}
		pc := t.pc
		sig, err, fault := s.step(t)
		n++
		if fault != nil {
			s.mu.Lock()
			s.finishLocked(Outcome{Err: &Error{Trap: Cancelled, Task: t.id, PC: pc, Err: fault}})
			s.mu.Unlock()
			return fault
		}
		if err != nil {
			s.fail(t, err)
			return nil
		}
		switch sig {
		case signalFork:
			s.fork(t)
		case signalJoin:
			if !s.join(t) {
				return nil
			}
		case signalHalt:
			s.mu.Lock()
			s.completeLocked(t, StatusHalted, t.haltValue(), nil)
			s.mu.Unlock()
			return nil
		case signalPanic:
			instr, _ := s.prog.At(t.pc)
			s.fail(t, t.newError(Panic, instr))
			return nil
		}
	}

	s.mu.Lock()
	if !s.done {
		t.status = StatusReady
		s.ready.Enqueue(t)
		s.cond.Signal()
	}
	s.mu.Unlock()
	return nil
}

// step executes one instruction of t and converts a host panic into fault.
func (s *scheduler) step(t *Task) (sig signal, err *Error, fault error) {
	defer func() {
		if r := recover(); r != nil {
			fault = fmt.Errorf("task %d at %d: %v", t.id, t.pc, r)
		}
	}()
	sig, err = s.in.step(t)
	return sig, err, nil
}

// fail stops t with err. Fatal traps end the program; a panic only finishes
// the task and reaches whoever joins it.
func (s *scheduler) fail(t *Task, err *Error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err.Trap.Fatal() {
		s.finishLocked(Outcome{Err: err})
		return
	}
	s.completeLocked(t, StatusPanicked, 0, err)
}

// fork creates the child of t. The PC of t is already past the FORK, so the
// copy resumes at the same instruction as the parent.
func (s *scheduler) fork(t *Task) {
	id := s.lastID.Add(1)
	child := t.fork(id)
	child.stack.push(0)
	t.stack.push(id)

	s.mu.Lock()
	s.tasks[id] = child
	s.ready.Enqueue(child)
	s.stats.Spawned++
	s.live++
	if s.live > s.stats.PeakLive {
		s.stats.PeakLive = s.live
	}
	s.cond.Signal()
	s.mu.Unlock()

	s.log.Trace().Int64("task", id).Int64("parent", t.id).Msg("fork")
}

// join resolves the JOIN at t.pc and reports whether t keeps running.
func (s *scheduler) join(t *Task) bool {
	instr, _ := s.prog.At(t.pc)
	ref, _ := t.stack.peek(instr.Depth)
	if ref == t.id {
		s.fail(t, t.newRefError(SelfJoin, instr, ref))
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return false
	}
	target, ok := s.tasks[ref]
	if !ok {
		s.finishLocked(Outcome{Err: t.newRefError(UnknownTask, instr, ref)})
		return false
	}

	switch target.status {
	case StatusHalted:
		t.stack.removeAt(instr.Depth)
		t.stack.push(target.result)
		delete(s.tasks, ref)
		s.stats.Joined++
		t.pc++
		return true
	case StatusPanicked:
		delete(s.tasks, ref)
		s.stats.Joined++
		err := t.newError(Panic, instr)
		err.Cause = target.failure
		s.completeLocked(t, StatusPanicked, 0, err)
		return false
	default:
		t.status = StatusBlocked
		s.waiters[ref] = append(s.waiters[ref], t)
		s.log.Trace().Int64("task", t.id).Int64("on", ref).Msg("block")
		return false
	}
}

// completeLocked finishes a Running task and wakes everything joined on it.
func (s *scheduler) completeLocked(t *Task, status Status, result int64, failure *Error) {
	if s.done {
		return
	}
	t.status = status
	t.result = result
	t.failure = failure
	t.release()
	s.live--

	for _, w := range s.waiters[t.id] {
		w.status = StatusReady
		s.ready.Enqueue(w)
		s.cond.Signal()
	}
	delete(s.waiters, t.id)

	if status == StatusPanicked {
		s.log.Debug().Int64("task", t.id).Err(failure).Msg("task panicked")
	} else {
		s.log.Trace().Int64("task", t.id).Int64("result", result).Msg("halt")
	}

	if t.id == mainTaskID {
		s.mainFinishedLocked(t)
	}
}

// mainFinishedLocked ends the program. Tasks still running are abandoned, but
// a panic nobody joined turns success into failure.
func (s *scheduler) mainFinishedLocked(main *Task) {
	if main.status == StatusPanicked {
		s.finishLocked(Outcome{Err: main.failure})
		return
	}
	var orphan *Task
	for _, t := range s.tasks {
		if t.status != StatusPanicked || t.id == mainTaskID {
			continue
		}
		if orphan == nil || t.id < orphan.id {
			orphan = t
		}
	}
	if orphan != nil {
		s.finishLocked(Outcome{Err: orphan.failure})
		return
	}
	s.finishLocked(Outcome{Result: main.result})
}

func (s *scheduler) cancel(cause error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finishLocked(Outcome{Err: &Error{Trap: Cancelled, Task: mainTaskID, Err: cause}})
}

// finishLocked records the first outcome and releases every worker.
func (s *scheduler) finishLocked(out Outcome) {
	if s.done {
		return
	}
	s.done = true
	s.stopped.Store(true)
	s.outcome = out
	if out.Err != nil {
		s.log.Debug().Err(out.Err).Msg("program failed")
	}
	s.cond.Broadcast()
}

func (s *scheduler) result() Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.outcome
	out.Stats = s.stats
	out.Stats.Steps = s.steps.Load()
	return out
}
