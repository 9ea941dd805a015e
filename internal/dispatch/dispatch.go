// Package dispatch implements the timer queue and single-goroutine
// event loop from spec §4.4: a min-heap of (deadline, callback,
// opaque, generation) items, idempotent on the opaque pointer, plus a
// dispatcher that multiplexes socket readiness and timer expiry the
// way the source's single select(2) loop does — fire every expired
// timer in deadline order, then drain ready sockets, then iterate.
package dispatch

import (
	"container/heap"
	"context"
	"sync"
	"time"
)

// Opaque identifies a scheduled timeout for cancellation/rescheduling
// purposes; any comparable value works, typically a lease or packet
// handle.
type Opaque any

type timerItem struct {
	deadline   time.Time
	callback   func()
	opaque     Opaque
	generation uint64
	index      int
	canceled   bool
}

type timerHeap []*timerItem

func (h timerHeap) Len() int            { return len(h) }
func (h timerHeap) Less(i, j int) bool  { return h[i].deadline.Before(h[j].deadline) }
func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *timerHeap) Push(x any) {
	item := x.(*timerItem)
	item.index = len(*h)
	*h = append(*h, item)
}
func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// Queue is the timer min-heap. A Queue is not safe for concurrent use
// from multiple goroutines — per spec §5, all database/timer mutation
// happens on the single dispatcher goroutine.
type Queue struct {
	h        timerHeap
	byOpaque map[Opaque]*timerItem
	gen      uint64
}

// NewQueue creates an empty timer queue.
func NewQueue() *Queue {
	return &Queue{byOpaque: make(map[Opaque]*timerItem)}
}

// AddTimeout schedules callback to run at deadline, keyed by opaque.
// If opaque already has a pending timeout it is replaced (the old one
// is marked canceled so a stale heap entry becomes a no-op), matching
// the source's add_timeout idempotency on the opaque pointer.
func (q *Queue) AddTimeout(deadline time.Time, opaque Opaque, callback func()) {
	q.CancelTimeout(opaque)
	q.gen++
	item := &timerItem{deadline: deadline, callback: callback, opaque: opaque, generation: q.gen}
	q.byOpaque[opaque] = item
	heap.Push(&q.h, item)
}

// CancelTimeout cancels any pending timeout for opaque. Reports
// whether one was found.
func (q *Queue) CancelTimeout(opaque Opaque) bool {
	item, ok := q.byOpaque[opaque]
	if !ok {
		return false
	}
	item.canceled = true
	delete(q.byOpaque, opaque)
	return true
}

// NextDeadline returns the soonest live deadline, or the zero time and
// false if the queue is empty of live items.
func (q *Queue) NextDeadline() (time.Time, bool) {
	for len(q.h) > 0 {
		top := q.h[0]
		if top.canceled {
			heap.Pop(&q.h)
			continue
		}
		return top.deadline, true
	}
	return time.Time{}, false
}

// FireExpired pops and runs every live timer whose deadline is not
// after now, in deadline order, and reports how many ran.
func (q *Queue) FireExpired(now time.Time) int {
	fired := 0
	for len(q.h) > 0 {
		top := q.h[0]
		if top.canceled {
			heap.Pop(&q.h)
			continue
		}
		if top.deadline.After(now) {
			break
		}
		heap.Pop(&q.h)
		delete(q.byOpaque, top.opaque)
		top.callback()
		fired++
	}
	return fired
}

// Source is one event producer the dispatcher multiplexes: a UDP
// listener, the control socket listener, or any other component that
// wants to hand the single dispatcher goroutine a ready-to-run
// callback. Go has no native select(2) over heterogeneous fds, so each
// Source runs its own goroutine that blocks on its own I/O and posts
// completed work onto a shared channel instead.
type Source interface {
	// Run blocks until ctx is canceled, sending a callback to post
	// whenever it has work ready for the dispatcher goroutine.
	Run(ctx context.Context, post func(func()))
}

// Dispatcher is the single-goroutine event loop: it owns the timer
// queue and serializes every Source's work and every timer callback
// onto one goroutine, preserving spec §5's "single dispatcher
// goroutine owns all database mutation" invariant.
type Dispatcher struct {
	Queue   *Queue
	sources []Source
	events  chan func()
}

// NewDispatcher creates a dispatcher around queue (created fresh if
// nil) with the given event sources.
func NewDispatcher(queue *Queue, sources ...Source) *Dispatcher {
	if queue == nil {
		queue = NewQueue()
	}
	return &Dispatcher{Queue: queue, sources: sources, events: make(chan func(), 256)}
}

// Run starts every source's goroutine and then loops: fire all expired
// timers in deadline order, drain whatever events are already waiting,
// then block until either the next timer deadline or a new event
// arrives. Returns when ctx is canceled.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, s := range d.sources {
		wg.Add(1)
		go func(s Source) {
			defer wg.Done()
			s.Run(ctx, func(cb func()) {
				select {
				case d.events <- cb:
				case <-ctx.Done():
				}
			})
		}(s)
	}

	for {
		d.Queue.FireExpired(time.Now())

		drained := true
		for drained {
			select {
			case cb := <-d.events:
				cb()
			default:
				drained = false
			}
		}

		var wait <-chan time.Time
		var t *time.Timer
		if deadline, ok := d.Queue.NextDeadline(); ok {
			delay := time.Until(deadline)
			if delay < 0 {
				delay = 0
			}
			t = time.NewTimer(delay)
			wait = t.C
		}

		select {
		case <-ctx.Done():
			if t != nil {
				t.Stop()
			}
			wg.Wait()
			return
		case cb := <-d.events:
			cb()
		case <-wait:
		}
		if t != nil {
			t.Stop()
		}
	}
}
