// Package clocktest provides a virtual clock for deterministic tests of
// timer driven code.
package clocktest

import (
	"container/heap"
	"sync"
	"time"

	"github.com/hay-kot/perch/internal/core/clock"
)

// Epoch is the starting time of a Clock created with a zero start time.
var Epoch = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// Clock is a virtual clock. Time only moves when Advance or AdvanceTo is
// called, and due callbacks run synchronously on the advancing goroutine in
// deadline order. Callbacks run without the clock's lock held, so they may
// freely schedule, stop or reset timers on the same clock.
type Clock struct {
	mu    sync.Mutex
	now   time.Time
	seq   uint64
	queue timerQueue
}

var _ clock.Clock = (*Clock)(nil)

// New returns a Clock set to start, or to Epoch when start is zero.
func New(start time.Time) *Clock {
	if start.IsZero() {
		start = Epoch
	}
	return &Clock{now: start}
}

// Now returns the current virtual time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// AfterFunc schedules f to run once the clock has advanced by d. A
// non-positive d fires on the next call to Advance, never inline.
func (c *Clock) AfterFunc(d time.Duration, f func()) clock.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := &Timer{clock: c, fn: f, index: -1}
	c.scheduleLocked(t, d)
	return t
}

// Advance moves the clock forward by d, firing every timer that becomes due.
func (c *Clock) Advance(d time.Duration) {
	c.AdvanceTo(c.Now().Add(d))
}

// AdvanceTo moves the clock forward to target, firing every timer due at or
// before target. Timers scheduled by callbacks are honored when they fall
// within the same advance. Moving backwards is a no-op.
func (c *Clock) AdvanceTo(target time.Time) {
	for {
		c.mu.Lock()
		if len(c.queue) == 0 || c.queue[0].when.After(target) {
			if target.After(c.now) {
				c.now = target
			}
			c.mu.Unlock()
			return
		}

		t := heap.Pop(&c.queue).(*Timer)
		if t.when.After(c.now) {
			c.now = t.when
		}
		fn := t.fn
		c.mu.Unlock()

		fn()
	}
}

// Pending returns the number of scheduled timers that have not fired.
func (c *Clock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

func (c *Clock) scheduleLocked(t *Timer, d time.Duration) {
	if d < 0 {
		d = 0
	}
	c.seq++
	t.when = c.now.Add(d)
	t.seq = c.seq
	heap.Push(&c.queue, t)
}

// Timer is a callback scheduled on a virtual Clock.
type Timer struct {
	clock *Clock
	fn    func()
	when  time.Time
	seq   uint64
	index int // position in the queue, -1 when not scheduled
}

// Stop cancels the timer. It returns false if the timer already fired or
// was stopped.
func (t *Timer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()

	if t.index < 0 {
		return false
	}
	heap.Remove(&t.clock.queue, t.index)
	return true
}

// Reset reschedules the timer to fire d after the current virtual time.
func (t *Timer) Reset(d time.Duration) bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()

	active := t.index >= 0
	if active {
		heap.Remove(&t.clock.queue, t.index)
	}
	t.clock.scheduleLocked(t, d)
	return active
}

// timerQueue orders timers by deadline, then by scheduling order.
type timerQueue []*Timer

func (q timerQueue) Len() int { return len(q) }

func (q timerQueue) Less(i, j int) bool {
	if q[i].when.Equal(q[j].when) {
		return q[i].seq < q[j].seq
	}
	return q[i].when.Before(q[j].when)
}

func (q timerQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *timerQueue) Push(x any) {
	t := x.(*Timer)
	t.index = len(*q)
	*q = append(*q, t)
}

func (q *timerQueue) Pop() any {
	old := *q
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*q = old[:n-1]
	return t
}
