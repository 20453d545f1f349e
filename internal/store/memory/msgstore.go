// Package memory provides the in-process message store and delivery tracker
// used by the broker.
package memory

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hay-kot/perch/internal/core/clock"
	"github.com/hay-kot/perch/internal/core/messaging"
)

// MsgStore implements messaging.Store with one append-only log per channel.
// Each channel log has its own lock; the channel map lock is only taken to
// look up, create or drop a channel.
type MsgStore struct {
	clock       clock.Clock
	ttl         time.Duration
	maxMessages int
	seq         atomic.Int64

	mu       sync.RWMutex
	channels map[string]*channelLog
}

var _ messaging.Store = (*MsgStore)(nil)

type channelLog struct {
	mu        sync.Mutex
	name      string
	messages  []messaging.Message
	updatedAt time.Time
	dropped   bool // set once the log has been removed from the channel map
}

// NewMsgStore creates a store whose messages expire ttl after ingestion.
func NewMsgStore(c clock.Clock, ttl time.Duration) *MsgStore {
	return &MsgStore{
		clock:    c,
		ttl:      ttl,
		channels: make(map[string]*channelLog),
	}
}

// WithMaxMessages caps the number of messages retained per channel. The
// oldest messages are dropped first. Zero disables the cap.
func (s *MsgStore) WithMaxMessages(max int) *MsgStore {
	s.maxMessages = max
	return s
}

// Append stores a new message on channel.
func (s *MsgStore) Append(channel, typ string, payload []byte) messaging.Message {
	for {
		log := s.getOrCreate(channel)

		log.mu.Lock()
		if log.dropped {
			// Lost a race with Prune; the next lookup creates a fresh log.
			log.mu.Unlock()
			continue
		}

		// The sequence is taken under the channel lock so per-channel order
		// always matches sequence order.
		msg := messaging.Message{
			ID:         messaging.NewMessageID(),
			Channel:    channel,
			Type:       typ,
			Payload:    append([]byte(nil), payload...),
			Sequence:   s.seq.Add(1),
			IngestedAt: s.clock.Now(),
		}

		log.messages = append(log.messages, msg)
		log.updatedAt = msg.IngestedAt

		if s.maxMessages > 0 && len(log.messages) > s.maxMessages {
			log.messages = trimFront(log.messages, len(log.messages)-s.maxMessages)
		}
		log.mu.Unlock()

		return msg
	}
}

// Since returns unexpired messages on channel after cursor.
func (s *MsgStore) Since(channel string, cursor int64) []messaging.Message {
	s.mu.RLock()
	log := s.channels[channel]
	s.mu.RUnlock()

	if log == nil {
		return nil
	}

	now := s.clock.Now()

	log.mu.Lock()
	defer log.mu.Unlock()

	msgs := log.messages
	start := sort.Search(len(msgs), func(i int) bool {
		return msgs[i].Sequence > cursor
	})

	// Ingest times are non-decreasing within a log, so expired messages
	// form a prefix.
	live := sort.Search(len(msgs), func(i int) bool {
		return !msgs[i].Expired(now, s.ttl)
	})
	start = max(start, live)

	if start >= len(msgs) {
		return nil
	}

	out := make([]messaging.Message, len(msgs)-start)
	copy(out, msgs[start:])
	return out
}

// Channels returns a summary of every channel with retained messages.
func (s *MsgStore) Channels() []messaging.ChannelInfo {
	now := s.clock.Now()

	s.mu.RLock()
	logs := make([]*channelLog, 0, len(s.channels))
	for _, log := range s.channels {
		logs = append(logs, log)
	}
	s.mu.RUnlock()

	infos := make([]messaging.ChannelInfo, 0, len(logs))
	for _, log := range logs {
		log.mu.Lock()
		live := 0
		for _, msg := range log.messages {
			if !msg.Expired(now, s.ttl) {
				live++
			}
		}
		info := messaging.ChannelInfo{
			Name:      log.name,
			Messages:  live,
			UpdatedAt: log.updatedAt,
		}
		if n := len(log.messages); n > 0 {
			info.LastSequence = log.messages[n-1].Sequence
		}
		log.mu.Unlock()

		if info.Messages > 0 {
			infos = append(infos, info)
		}
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Name < infos[j].Name
	})

	return infos
}

// Prune removes expired messages and drops channels left empty.
func (s *MsgStore) Prune() int {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for name, log := range s.channels {
		log.mu.Lock()

		expired := 0
		for expired < len(log.messages) && log.messages[expired].Expired(now, s.ttl) {
			expired++
		}
		if expired > 0 {
			log.messages = trimFront(log.messages, expired)
			removed += expired
		}

		if len(log.messages) == 0 {
			log.dropped = true
			delete(s.channels, name)
		}

		log.mu.Unlock()
	}

	return removed
}

// Len returns the number of live messages. Expired messages waiting for
// Prune are not counted.
func (s *MsgStore) Len() int {
	now := s.clock.Now()

	s.mu.RLock()
	defer s.mu.RUnlock()

	total := 0
	for _, log := range s.channels {
		log.mu.Lock()
		for _, msg := range log.messages {
			if !msg.Expired(now, s.ttl) {
				total++
			}
		}
		log.mu.Unlock()
	}
	return total
}

// getOrCreate returns the log for channel, creating it if needed.
func (s *MsgStore) getOrCreate(channel string) *channelLog {
	s.mu.RLock()
	log, ok := s.channels[channel]
	s.mu.RUnlock()
	if ok {
		return log
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Double-check after acquiring the write lock.
	if log, ok = s.channels[channel]; ok {
		return log
	}

	log = &channelLog{name: channel}
	s.channels[channel] = log
	return log
}

// trimFront drops the first n messages, copying the remainder so the
// dropped payloads can be collected.
func trimFront(msgs []messaging.Message, n int) []messaging.Message {
	kept := make([]messaging.Message, len(msgs)-n)
	copy(kept, msgs[n:])
	return kept
}
