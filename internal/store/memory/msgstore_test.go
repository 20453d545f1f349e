package memory

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hay-kot/perch/internal/core/clock/clocktest"
)

func TestMsgStore_AppendAssignsIdentity(t *testing.T) {
	clk := clocktest.New(time.Time{})
	store := NewMsgStore(clk, 30*time.Second)

	a := store.Append("news", "text/plain", []byte("one"))
	b := store.Append("news", "", []byte("two"))

	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Less(t, a.Sequence, b.Sequence)
	assert.Equal(t, "news", a.Channel)
	assert.Equal(t, "text/plain", a.Type)
	assert.Equal(t, clk.Now(), a.IngestedAt)
}

func TestMsgStore_AppendCopiesPayload(t *testing.T) {
	store := NewMsgStore(clocktest.New(time.Time{}), time.Minute)

	payload := []byte("hello")
	store.Append("c", "", payload)
	payload[0] = 'j'

	msgs := store.Since("c", 0)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hello", string(msgs[0].Payload))
}

func TestMsgStore_SequenceIsGlobal(t *testing.T) {
	store := NewMsgStore(clocktest.New(time.Time{}), time.Minute)

	a := store.Append("a", "", nil)
	b := store.Append("b", "", nil)
	c := store.Append("a", "", nil)

	assert.Equal(t, a.Sequence+1, b.Sequence)
	assert.Equal(t, b.Sequence+1, c.Sequence)
}

func TestMsgStore_SinceCursor(t *testing.T) {
	store := NewMsgStore(clocktest.New(time.Time{}), time.Minute)

	first := store.Append("c", "", []byte("1"))
	store.Append("other", "", []byte("x"))
	store.Append("c", "", []byte("2"))
	store.Append("c", "", []byte("3"))

	all := store.Since("c", 0)
	require.Len(t, all, 3)
	assert.Equal(t, "1", string(all[0].Payload))
	assert.Equal(t, "3", string(all[2].Payload))

	after := store.Since("c", first.Sequence)
	require.Len(t, after, 2)
	assert.Equal(t, "2", string(after[0].Payload))

	assert.Empty(t, store.Since("c", all[2].Sequence))
	assert.Nil(t, store.Since("missing", 0))
}

func TestMsgStore_SinceSkipsExpired(t *testing.T) {
	clk := clocktest.New(time.Time{})
	store := NewMsgStore(clk, 10*time.Second)

	store.Append("c", "", []byte("old"))
	clk.Advance(6 * time.Second)
	store.Append("c", "", []byte("new"))

	assert.Len(t, store.Since("c", 0), 2)

	clk.Advance(4 * time.Second)
	msgs := store.Since("c", 0)
	require.Len(t, msgs, 1)
	assert.Equal(t, "new", string(msgs[0].Payload))

	clk.Advance(6 * time.Second)
	assert.Empty(t, store.Since("c", 0))
}

func TestMsgStore_MaxMessages(t *testing.T) {
	store := NewMsgStore(clocktest.New(time.Time{}), time.Minute).WithMaxMessages(2)

	for i := range 5 {
		store.Append("c", "", []byte(fmt.Sprint(i)))
	}

	msgs := store.Since("c", 0)
	require.Len(t, msgs, 2)
	assert.Equal(t, "3", string(msgs[0].Payload))
	assert.Equal(t, "4", string(msgs[1].Payload))
}

func TestMsgStore_Prune(t *testing.T) {
	clk := clocktest.New(time.Time{})
	store := NewMsgStore(clk, 10*time.Second)

	store.Append("a", "", nil)
	store.Append("b", "", nil)
	clk.Advance(5 * time.Second)
	store.Append("b", "", nil)

	assert.Equal(t, 0, store.Prune())
	assert.Equal(t, 3, store.Len())

	clk.Advance(5 * time.Second)
	assert.Equal(t, 1, store.Len(), "expired messages are not counted before pruning")
	assert.Equal(t, 2, store.Prune())
	assert.Equal(t, 1, store.Len())

	channels := store.Channels()
	require.Len(t, channels, 1)
	assert.Equal(t, "b", channels[0].Name)

	// A pruned channel is recreated transparently.
	store.Append("a", "", []byte("again"))
	assert.Len(t, store.Since("a", 0), 1)
}

func TestMsgStore_Channels(t *testing.T) {
	clk := clocktest.New(time.Time{})
	store := NewMsgStore(clk, 10*time.Second)

	store.Append("zeta", "", nil)
	store.Append("alpha", "", nil)
	last := store.Append("alpha", "", nil)

	channels := store.Channels()
	require.Len(t, channels, 2)

	assert.Equal(t, "alpha", channels[0].Name)
	assert.Equal(t, 2, channels[0].Messages)
	assert.Equal(t, last.Sequence, channels[0].LastSequence)
	assert.Equal(t, "zeta", channels[1].Name)

	clk.Advance(10 * time.Second)
	assert.Empty(t, store.Channels(), "expired channels are hidden before prune")
}

func TestMsgStore_ConcurrentAppendKeepsOrder(t *testing.T) {
	store := NewMsgStore(clocktest.New(time.Time{}), time.Minute)

	const (
		writers = 8
		each    = 200
	)

	var wg sync.WaitGroup
	for w := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			channel := fmt.Sprintf("c%d", w%2)
			for range each {
				store.Append(channel, "", nil)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, writers*each, store.Len())

	seen := make(map[int64]bool)
	for _, ch := range []string{"c0", "c1"} {
		msgs := store.Since(ch, 0)
		for i, msg := range msgs {
			assert.False(t, seen[msg.Sequence], "sequence %d reused", msg.Sequence)
			seen[msg.Sequence] = true
			if i > 0 {
				assert.Less(t, msgs[i-1].Sequence, msg.Sequence)
			}
		}
	}
	assert.Len(t, seen, writers*each)
}

func TestMsgStore_ConcurrentAppendAndPrune(t *testing.T) {
	clk := clocktest.New(time.Time{})
	store := NewMsgStore(clk, time.Second)

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for range 500 {
			store.Append("c", "", nil)
		}
	}()
	go func() {
		defer wg.Done()
		for range 500 {
			store.Prune()
		}
	}()
	wg.Wait()

	// Nothing has expired, so prune must never lose a live message.
	assert.Len(t, store.Since("c", 0), 500)
}
