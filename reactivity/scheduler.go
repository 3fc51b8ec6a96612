package reactivity

import (
	mapset "github.com/deckarep/golang-set/v2"
)

// Job is a unit of work the scheduler can queue. Jobs are compared by
// identity, so queueing the same *Job twice before a flush is a no-op.
type Job struct {
	run func()
}

func NewJob(fn func()) *Job {
	return &Job{run: fn}
}

// Scheduler batches jobs into a single microtask flush. Jobs run in the order
// they were first queued, never in dependency order.
type Scheduler struct {
	queueMicrotask func(func())

	queue            []*Job
	queued           mapset.Set[*Job]
	lastFlushedIndex int
	flushPending     bool
	flushing         bool
	flushes          int
}

func NewScheduler(queueMicrotask func(func())) *Scheduler {
	return &Scheduler{
		queueMicrotask:   queueMicrotask,
		queued:           mapset.NewThreadUnsafeSet[*Job](),
		lastFlushedIndex: -1,
	}
}

// Schedule queues job unless it is already part of the current batch,
// including jobs of an in-progress flush that already ran.
func (s *Scheduler) Schedule(job *Job) {
	if !s.queued.Contains(job) {
		s.queued.Add(job)
		s.queue = append(s.queue, job)
	}
	s.queueFlush()
}

// Dequeue drops job if it has not had its turn yet. Dequeuing a job that
// already ran, or is running, does nothing.
func (s *Scheduler) Dequeue(job *Job) {
	if !s.queued.Contains(job) {
		return
	}
	for i, queued := range s.queue {
		if queued != job {
			continue
		}
		if i <= s.lastFlushedIndex {
			return
		}
		s.queue = append(s.queue[:i], s.queue[i+1:]...)
		s.queued.Remove(job)
		return
	}
}

// Pending reports how many jobs are waiting for their turn.
func (s *Scheduler) Pending() int {
	return len(s.queue) - (s.lastFlushedIndex + 1)
}

// Flushes counts completed flushes; useful for asserting batching.
func (s *Scheduler) Flushes() int {
	return s.flushes
}

func (s *Scheduler) queueFlush() {
	if s.flushing || s.flushPending {
		return
	}
	s.flushPending = true
	s.queueMicrotask(s.Flush)
}

// Flush runs every queued job. Jobs queued while flushing join this flush.
func (s *Scheduler) Flush() {
	s.flushPending = false
	s.flushing = true
	defer func() {
		s.queue = s.queue[:0]
		s.queued.Clear()
		s.lastFlushedIndex = -1
		s.flushing = false
		s.flushes++
	}()

	for i := 0; i < len(s.queue); i++ {
		s.lastFlushedIndex = i
		s.queue[i].run()
	}
}
