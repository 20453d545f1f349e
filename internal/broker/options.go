package broker

import (
	"errors"
	"time"

	"github.com/hay-kot/criterio"
	"github.com/rs/zerolog"

	"github.com/hay-kot/perch/internal/core/clock"
	"github.com/hay-kot/perch/internal/core/messaging"
)

// Default timing values.
const (
	DefaultMessageTimeout = 30 * time.Second
	DefaultBufferTimeout  = 50 * time.Millisecond
	DefaultRequestTimeout = 30 * time.Second
	DefaultSweepInterval  = time.Second
)

// Options tunes the broker's timing. Zero values select the defaults.
type Options struct {
	// MessageTimeout is how long a message stays deliverable after it is
	// published.
	MessageTimeout time.Duration
	// BufferTimeout is the quiet period after the latest match before a
	// request resolves. Every new match restarts it.
	BufferTimeout time.Duration
	// RequestTimeout bounds how long any request may stay open.
	RequestTimeout time.Duration
	// SweepInterval is how often expired messages and claims are reclaimed.
	SweepInterval time.Duration
	// ClaimShards is the number of delivery tracker shards.
	ClaimShards int
	// MaxMessagesPerChannel caps retained messages per channel. Zero means
	// no cap.
	MaxMessagesPerChannel int
}

// DefaultOptions returns Options populated with the defaults.
func DefaultOptions() Options {
	return Options{
		MessageTimeout: DefaultMessageTimeout,
		BufferTimeout:  DefaultBufferTimeout,
		RequestTimeout: DefaultRequestTimeout,
		SweepInterval:  DefaultSweepInterval,
	}
}

// Validate reports every negative setting as a field error.
func (o Options) Validate() error {
	var errs criterio.FieldErrorsBuilder

	if o.MessageTimeout < 0 {
		errs = errs.Append("message_timeout", errNegative)
	}
	if o.BufferTimeout < 0 {
		errs = errs.Append("buffer_timeout", errNegative)
	}
	if o.RequestTimeout < 0 {
		errs = errs.Append("request_timeout", errNegative)
	}
	if o.SweepInterval < 0 {
		errs = errs.Append("sweep_interval", errNegative)
	}
	if o.ClaimShards < 0 {
		errs = errs.Append("claim_shards", errNegative)
	}
	if o.MaxMessagesPerChannel < 0 {
		errs = errs.Append("max_messages_per_channel", errNegative)
	}

	return errs.ToError()
}

var errNegative = errors.New("must not be negative")

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MessageTimeout == 0 {
		o.MessageTimeout = d.MessageTimeout
	}
	if o.BufferTimeout == 0 {
		o.BufferTimeout = d.BufferTimeout
	}
	if o.RequestTimeout == 0 {
		o.RequestTimeout = d.RequestTimeout
	}
	if o.SweepInterval == 0 {
		o.SweepInterval = d.SweepInterval
	}
	return o
}

// Option configures the collaborators of a Broker.
type Option func(*Broker)

// WithClock sets the clock used for ingest times, expiry and timers.
func WithClock(c clock.Clock) Option {
	return func(b *Broker) { b.clock = c }
}

// WithLogger sets the broker's logger.
func WithLogger(l zerolog.Logger) Option {
	return func(b *Broker) { b.log = l }
}

// WithStore replaces the in-memory message store.
func WithStore(s messaging.Store) Option {
	return func(b *Broker) { b.store = s }
}

// WithTracker replaces the in-memory delivery tracker.
func WithTracker(t messaging.Tracker) Option {
	return func(b *Broker) { b.tracker = t }
}

// WithActivity journals broker traffic to store.
func WithActivity(store messaging.ActivityStore) Option {
	return func(b *Broker) { b.activityStore = store }
}
