// Package broker matches long-poll subscription requests against published
// messages. A request is held open until unseen messages arrive on one of
// its channels, gathers further arrivals while they keep coming within the
// buffer window, and resolves with the batch or, once the request timeout
// passes, with an empty response.
package broker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/hay-kot/perch/internal/core/clock"
	"github.com/hay-kot/perch/internal/core/messaging"
	"github.com/hay-kot/perch/internal/store/memory"
	"github.com/hay-kot/perch/pkg/randid"
)

var (
	// ErrClosed is returned by Publish and Subscribe after Close.
	ErrClosed = errors.New("broker closed")
	// ErrNoChannels is returned when a subscription names no channels.
	ErrNoChannels = errors.New("at least one channel is required")
	// ErrNoClient is returned when a subscription has no client ID.
	ErrNoClient = errors.New("client id is required")
	// ErrEmptyChannel is returned when a channel name is empty.
	ErrEmptyChannel = errors.New("channel name is empty")
	// ErrNoHandler is returned when a subscription has no resolve callback.
	ErrNoHandler = errors.New("resolve callback is required")
)

// CancelFunc abandons a pending subscription. It is safe to call more than
// once and after the subscription resolved.
type CancelFunc func()

// Broker is the entry point for producers and consumers.
type Broker struct {
	opts          Options
	clock         clock.Clock
	log           zerolog.Logger
	store         messaging.Store
	tracker       messaging.Tracker
	activityStore messaging.ActivityStore

	registry *registry
	activity *activityRecorder
	pending  atomic.Int64
	counters counters

	// closeMu orders Subscribe against Close so that no request is
	// registered after Close has drained the registry.
	closeMu sync.RWMutex
	closed  bool

	sweepMu sync.Mutex
	sweeper clock.Timer
}

type counters struct {
	published atomic.Uint64
	resolved  atomic.Uint64
	timedOut  atomic.Uint64
	cancelled atomic.Uint64
	delivered atomic.Uint64
	drained   atomic.Uint64
}

// Stats is a point in time view of the broker.
type Stats struct {
	Messages  int    `json:"messages"`
	Channels  int    `json:"channels"`
	Pending   int    `json:"pending"`
	Claims    int    `json:"claims"`
	Published uint64 `json:"published"`
	Resolved  uint64 `json:"resolved"`
	TimedOut  uint64 `json:"timed_out"`
	Cancelled uint64 `json:"cancelled"`
	Delivered uint64 `json:"delivered"`
	// Drained counts requests resolved by Close.
	Drained uint64 `json:"drained"`
}

// New creates a broker. Negative durations or counts in opts are rejected;
// zero values take their defaults.
func New(opts Options, options ...Option) (*Broker, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid broker options: %w", err)
	}
	opts = opts.withDefaults()

	b := &Broker{
		opts:     opts,
		clock:    clock.Real{},
		log:      zerolog.Nop(),
		registry: newRegistry(),
	}

	for _, o := range options {
		o(b)
	}

	if b.store == nil {
		b.store = memory.NewMsgStore(b.clock, opts.MessageTimeout).
			WithMaxMessages(opts.MaxMessagesPerChannel)
	}
	if b.tracker == nil {
		// Claims outlive the message they guard by one window so a message
		// matched at the edge of its lifetime cannot be claimed twice.
		b.tracker = memory.NewTracker(b.clock, opts.MessageTimeout+opts.BufferTimeout, opts.ClaimShards)
	}

	b.activity = newActivityRecorder(b.activityStore, b.log.With().Str("component", "activity").Logger())

	b.sweepMu.Lock()
	b.sweeper = b.clock.AfterFunc(opts.SweepInterval, b.sweep)
	b.sweepMu.Unlock()

	b.log.Debug().
		Dur("message_timeout", opts.MessageTimeout).
		Dur("buffer_timeout", opts.BufferTimeout).
		Dur("request_timeout", opts.RequestTimeout).
		Msg("broker started")

	return b, nil
}

// Options returns the effective options after defaults were applied.
func (b *Broker) Options() Options {
	return b.opts
}

// Publish stores a message and offers it to every request waiting on its
// channel before returning. After Close the message is dropped and ErrClosed
// returned.
func (b *Broker) Publish(channel, typ string, payload []byte) (messaging.Message, error) {
	b.closeMu.RLock()
	if b.closed {
		b.closeMu.RUnlock()
		return messaging.Message{}, ErrClosed
	}
	msg := b.store.Append(channel, typ, payload)
	b.closeMu.RUnlock()
	b.counters.published.Add(1)

	waiting := b.registry.snapshot(channel)
	for _, r := range waiting {
		b.offer(r, msg)
	}

	b.log.Debug().
		Str("channel", channel).
		Str("message", msg.ID).
		Int64("sequence", msg.Sequence).
		Int("waiting", len(waiting)).
		Msg("message published")

	b.activity.record(messaging.Activity{
		Type:      messaging.ActivityPublish,
		Channels:  []string{channel},
		MessageID: msg.ID,
		Sequence:  msg.Sequence,
		Timestamp: msg.IngestedAt,
	})

	return msg, nil
}

// Subscribe opens a request for clientID on channels. onResolved is called
// exactly once with the response unless the returned CancelFunc runs first.
// It may be called before Subscribe returns when unseen messages are already
// buffered, and it runs on whichever goroutine resolved the request.
func (b *Broker) Subscribe(clientID string, channels []string, onResolved func(messaging.Response)) (CancelFunc, error) {
	if clientID == "" {
		return nil, ErrNoClient
	}
	if onResolved == nil {
		return nil, ErrNoHandler
	}

	channels, err := normalizeChannels(channels)
	if err != nil {
		return nil, err
	}

	b.closeMu.RLock()
	if b.closed {
		b.closeMu.RUnlock()
		return nil, ErrClosed
	}

	r := &request{
		id:       randid.Generate(12),
		clientID: clientID,
		channels: channels,
		arrival:  b.clock.Now(),
		sink:     onResolved,
	}

	b.pending.Add(1)
	b.registry.add(r)

	r.mu.Lock()
	r.hard = b.clock.AfterFunc(b.opts.RequestTimeout, func() {
		b.deadlineElapsed(r)
	})
	r.mu.Unlock()
	b.closeMu.RUnlock()

	b.log.Debug().
		Str("request", r.id).
		Str("client", clientID).
		Strs("channels", channels).
		Msg("request registered")

	b.activity.record(messaging.Activity{
		Type:      messaging.ActivitySubscribe,
		Channels:  channels,
		ClientID:  clientID,
		RequestID: r.id,
		Timestamp: r.arrival,
	})

	// The request is registered before the backlog is read, so a message
	// published meanwhile is seen by at least one of the two paths. The
	// tracker turns the overlap into a single delivery.
	var backlog []messaging.Message
	for _, ch := range channels {
		backlog = append(backlog, b.store.Since(ch, 0)...)
	}
	sort.Slice(backlog, func(i, j int) bool {
		return backlog[i].Sequence < backlog[j].Sequence
	})
	b.offer(r, backlog...)

	return func() { b.cancel(r) }, nil
}

// Wait subscribes and blocks until the request resolves or ctx ends. When
// ctx ends first the request is cancelled and ctx's error returned.
func (b *Broker) Wait(ctx context.Context, clientID string, channels []string) (messaging.Response, error) {
	ch := make(chan messaging.Response, 1)

	cancel, err := b.Subscribe(clientID, channels, func(resp messaging.Response) {
		ch <- resp
	})
	if err != nil {
		return messaging.Response{}, err
	}

	select {
	case resp := <-ch:
		return resp, nil
	case <-ctx.Done():
		cancel()
		// Resolution may have won the race with cancellation.
		select {
		case resp := <-ch:
			return resp, nil
		default:
		}
		return messaging.Response{}, ctx.Err()
	}
}

// Channels returns a summary of every channel holding live messages.
func (b *Broker) Channels() []messaging.ChannelInfo {
	return b.store.Channels()
}

// Stats returns current gauges and lifetime counters.
func (b *Broker) Stats() Stats {
	return Stats{
		Messages:  b.store.Len(),
		Channels:  len(b.store.Channels()),
		Pending:   int(b.pending.Load()),
		Claims:    b.tracker.Len(),
		Published: b.counters.published.Load(),
		Resolved:  b.counters.resolved.Load(),
		TimedOut:  b.counters.timedOut.Load(),
		Cancelled: b.counters.cancelled.Load(),
		Delivered: b.counters.delivered.Load(),
		Drained:   b.counters.drained.Load(),
	}
}

// Close rejects new publishes and subscriptions, then resolves every pending
// request with whatever it has collected. Responses resolved this way are
// never marked timed out. The sweeper is stopped and the activity journal
// flushed.
func (b *Broker) Close() {
	b.closeMu.Lock()
	if b.closed {
		b.closeMu.Unlock()
		return
	}
	b.closed = true
	b.closeMu.Unlock()

	b.sweepMu.Lock()
	if b.sweeper != nil {
		b.sweeper.Stop()
	}
	b.sweepMu.Unlock()

	open := b.registry.all()
	for _, r := range open {
		b.resolveNow(r, byClose)
	}

	b.activity.close()

	b.log.Info().Int("resolved", len(open)).Msg("broker closed")
}

// sweep reclaims expired messages and claims, then re-arms itself.
func (b *Broker) sweep() {
	pruned := b.store.Prune()
	b.tracker.Sweep()

	if pruned > 0 {
		b.log.Debug().Int("pruned", pruned).Msg("swept expired messages")
	}

	b.sweepMu.Lock()
	defer b.sweepMu.Unlock()

	b.closeMu.RLock()
	closed := b.closed
	b.closeMu.RUnlock()

	if !closed {
		b.sweeper = b.clock.AfterFunc(b.opts.SweepInterval, b.sweep)
	}
}

// normalizeChannels drops duplicate channel names, keeping first-seen order.
func normalizeChannels(channels []string) ([]string, error) {
	if len(channels) == 0 {
		return nil, ErrNoChannels
	}

	seen := make(map[string]struct{}, len(channels))
	out := make([]string, 0, len(channels))
	for _, ch := range channels {
		if ch == "" {
			return nil, ErrEmptyChannel
		}
		if _, ok := seen[ch]; ok {
			continue
		}
		seen[ch] = struct{}{}
		out = append(out, ch)
	}

	return out, nil
}
