package broker

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/hay-kot/perch/internal/core/messaging"
)

const activityBuffer = 1024

// activityRecorder writes journal entries from a background goroutine so
// that a slow journal never stalls publish or resolve. When the buffer is
// full entries are dropped and counted.
type activityRecorder struct {
	store   messaging.ActivityStore
	log     zerolog.Logger
	entries chan messaging.Activity
	wg      sync.WaitGroup

	dropped atomic.Int64

	mu     sync.RWMutex
	closed bool
}

func newActivityRecorder(store messaging.ActivityStore, log zerolog.Logger) *activityRecorder {
	if store == nil {
		return nil
	}

	r := &activityRecorder{
		store:   store,
		log:     log,
		entries: make(chan messaging.Activity, activityBuffer),
	}

	r.wg.Add(1)
	go r.run()

	return r
}

func (r *activityRecorder) run() {
	defer r.wg.Done()
	for entry := range r.entries {
		if err := r.store.Record(entry); err != nil {
			r.log.Warn().Err(err).Str("type", string(entry.Type)).Msg("failed to record activity")
		}
	}
}

// record queues entry. A nil recorder discards everything.
func (r *activityRecorder) record(entry messaging.Activity) {
	if r == nil {
		return
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return
	}

	select {
	case r.entries <- entry:
	default:
		r.dropped.Add(1)
	}
}

// close flushes queued entries and stops the writer.
func (r *activityRecorder) close() {
	if r == nil {
		return
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.entries)
	r.mu.Unlock()

	r.wg.Wait()

	if dropped := r.dropped.Load(); dropped > 0 {
		r.log.Warn().Int64("dropped", dropped).Msg("activity journal dropped entries")
	}
}
