package broker

import (
	"sort"
	"sync"
	"time"

	"github.com/hay-kot/perch/internal/core/clock"
	"github.com/hay-kot/perch/internal/core/messaging"
)

// State is the lifecycle stage of a pending request.
type State int

const (
	// StateWaiting holds the request until its first match.
	StateWaiting State = iota
	// StateBuffering collects further matches until the window goes quiet.
	StateBuffering
	// StateResolved means the response has been delivered.
	StateResolved
	// StateCancelled means the caller abandoned the request.
	StateCancelled
)

// resolution names what ended a request.
type resolution int

const (
	// byWindow means the buffer window elapsed with no further match.
	byWindow resolution = iota
	// byDeadline means the request timeout passed.
	byDeadline
	// byClose means the broker shut down.
	byClose
)

// request is one open subscription. All mutable fields are guarded by mu.
type request struct {
	id       string
	clientID string
	channels []string
	arrival  time.Time
	sink     func(messaging.Response)

	mu         sync.Mutex
	state      State
	collected  []messaging.Message
	hard       clock.Timer
	window     clock.Timer
	windowEnds time.Time
}

func (r *request) done() bool {
	return r.state == StateResolved || r.state == StateCancelled
}

// stopTimersLocked stops both timers. Callers hold r.mu.
func (r *request) stopTimersLocked() {
	if r.hard != nil {
		r.hard.Stop()
	}
	if r.window != nil {
		r.window.Stop()
	}
}

// offer claims every message the request's client has not seen yet and
// moves the request into (or keeps it in) the buffering state. Messages the
// client already holds are skipped.
func (b *Broker) offer(r *request, msgs ...messaging.Message) {
	if len(msgs) == 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.done() {
		return
	}

	added := 0
	for _, msg := range msgs {
		if !b.tracker.TryClaim(r.clientID, msg.ID) {
			continue
		}
		r.collected = append(r.collected, msg)
		added++
	}

	if added == 0 {
		return
	}

	r.state = StateBuffering
	b.slideWindowLocked(r)
}

// slideWindowLocked pushes the end of the buffer window a full buffer
// timeout past now. The first match arms the window timer and later matches
// reset it. A callback that fired concurrently with a reset sees the new end
// and returns without resolving.
func (b *Broker) slideWindowLocked(r *request) {
	r.windowEnds = b.clock.Now().Add(b.opts.BufferTimeout)

	if r.window == nil {
		r.window = b.clock.AfterFunc(b.opts.BufferTimeout, func() {
			b.windowElapsed(r)
		})
		return
	}
	r.window.Reset(b.opts.BufferTimeout)
}

func (b *Broker) windowElapsed(r *request) {
	r.mu.Lock()
	if r.state != StateBuffering || b.clock.Now().Before(r.windowEnds) {
		r.mu.Unlock()
		return
	}
	resp := b.resolveLocked(r, byWindow)
	r.mu.Unlock()

	b.finish(r, resp, byWindow)
}

func (b *Broker) deadlineElapsed(r *request) {
	b.resolveNow(r, byDeadline)
}

// resolveNow resolves r with whatever it has collected unless it is already
// done.
func (b *Broker) resolveNow(r *request, why resolution) {
	r.mu.Lock()
	if r.done() {
		r.mu.Unlock()
		return
	}
	resp := b.resolveLocked(r, why)
	r.mu.Unlock()

	b.finish(r, resp, why)
}

// resolveLocked marks the request resolved and builds its response. Only a
// request reaching its deadline empty is reported as timed out. Callers hold
// r.mu and must pass the response to finish after unlocking.
func (b *Broker) resolveLocked(r *request, why resolution) messaging.Response {
	r.state = StateResolved
	r.stopTimersLocked()

	msgs := r.collected
	r.collected = nil
	sort.Slice(msgs, func(i, j int) bool {
		return msgs[i].Sequence < msgs[j].Sequence
	})

	return messaging.Response{
		RequestID:  r.id,
		ClientID:   r.clientID,
		Channels:   r.channels,
		Messages:   msgs,
		TimedOut:   why == byDeadline && len(msgs) == 0,
		ResolvedAt: b.clock.Now(),
	}
}

// finish unregisters a resolved request and hands its response to the sink
// outside of every broker lock.
func (b *Broker) finish(r *request, resp messaging.Response, why resolution) {
	b.registry.remove(r)
	b.pending.Add(-1)
	b.counters.resolved.Add(1)
	b.counters.delivered.Add(uint64(len(resp.Messages)))
	if resp.TimedOut {
		b.counters.timedOut.Add(1)
	}
	if why == byClose {
		b.counters.drained.Add(1)
	}

	b.log.Debug().
		Str("request", r.id).
		Str("client", r.clientID).
		Int("messages", len(resp.Messages)).
		Bool("timed_out", resp.TimedOut).
		Dur("waited", resp.ResolvedAt.Sub(r.arrival)).
		Msg("request resolved")

	b.activity.record(messaging.Activity{
		Type:      messaging.ActivityResolve,
		Channels:  r.channels,
		ClientID:  r.clientID,
		RequestID: r.id,
		Count:     len(resp.Messages),
		TimedOut:  resp.TimedOut,
		Timestamp: resp.ResolvedAt,
	})

	r.sink(resp)
}

// cancel abandons the request without calling its sink. Claims already
// made for it are kept.
func (b *Broker) cancel(r *request) {
	r.mu.Lock()
	if r.done() {
		r.mu.Unlock()
		return
	}
	r.state = StateCancelled
	r.stopTimersLocked()
	dropped := len(r.collected)
	r.collected = nil
	r.mu.Unlock()

	b.registry.remove(r)
	b.pending.Add(-1)
	b.counters.cancelled.Add(1)

	b.log.Debug().
		Str("request", r.id).
		Str("client", r.clientID).
		Int("dropped", dropped).
		Msg("request cancelled")

	b.activity.record(messaging.Activity{
		Type:      messaging.ActivityCancel,
		Channels:  r.channels,
		ClientID:  r.clientID,
		RequestID: r.id,
		Count:     dropped,
		Timestamp: b.clock.Now(),
	})
}
