package memory

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/hay-kot/perch/internal/core/clock/clocktest"
)

func TestTracker_TryClaim(t *testing.T) {
	tracker := NewTracker(clocktest.New(time.Time{}), time.Minute, 4)

	assert.True(t, tracker.TryClaim("alice", "m1"))
	assert.False(t, tracker.TryClaim("alice", "m1"), "second claim must fail")
	assert.True(t, tracker.TryClaim("bob", "m1"), "claims are per client")
	assert.True(t, tracker.TryClaim("alice", "m2"))

	assert.Equal(t, 3, tracker.Len())
}

func TestTracker_KeysDoNotCollide(t *testing.T) {
	tracker := NewTracker(clocktest.New(time.Time{}), time.Minute, 1)

	assert.True(t, tracker.TryClaim("a", "bc"))
	assert.True(t, tracker.TryClaim("ab", "c"))
}

func TestTracker_ConcurrentClaimsAreExclusive(t *testing.T) {
	tracker := NewTracker(clocktest.New(time.Time{}), time.Minute, 0)

	const goroutines = 64

	var (
		wins  atomic.Int32
		wg    sync.WaitGroup
		start = make(chan struct{})
	)

	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if tracker.TryClaim("client", "message") {
				wins.Add(1)
			}
		}()
	}

	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}

func TestTracker_SweepFollowsClock(t *testing.T) {
	clk := clocktest.New(time.Time{})
	tracker := NewTracker(clk, 10*time.Second, 2)

	tracker.TryClaim("a", "m1")
	clk.Advance(5 * time.Second)
	tracker.TryClaim("a", "m2")

	tracker.Sweep()
	assert.Equal(t, 2, tracker.Len())

	clk.Advance(5 * time.Second)
	tracker.Sweep()
	assert.Equal(t, 1, tracker.Len())

	clk.Advance(5 * time.Second)
	tracker.Sweep()
	assert.Equal(t, 0, tracker.Len())

	assert.True(t, tracker.TryClaim("a", "m1"), "swept claims can be taken again")
}

func TestTracker_SweepEmpty(t *testing.T) {
	tracker := NewTracker(clocktest.New(time.Time{}), time.Second, 8)
	tracker.Sweep()
	assert.Equal(t, 0, tracker.Len())
}
