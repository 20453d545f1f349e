package broker

import (
	"hash/fnv"
	"sync"
)

const registryShards = 32

// registry indexes pending requests by channel. Shards are selected by
// channel hash so publishes on different channels rarely contend.
type registry struct {
	shards [registryShards]registryShard
}

type registryShard struct {
	mu       sync.RWMutex
	channels map[string]map[*request]struct{}
}

func newRegistry() *registry {
	r := &registry{}
	for i := range r.shards {
		r.shards[i].channels = make(map[string]map[*request]struct{})
	}
	return r
}

func (r *registry) add(req *request) {
	for _, ch := range req.channels {
		s := r.shard(ch)
		s.mu.Lock()
		set, ok := s.channels[ch]
		if !ok {
			set = make(map[*request]struct{})
			s.channels[ch] = set
		}
		set[req] = struct{}{}
		s.mu.Unlock()
	}
}

func (r *registry) remove(req *request) {
	for _, ch := range req.channels {
		s := r.shard(ch)
		s.mu.Lock()
		if set, ok := s.channels[ch]; ok {
			delete(set, req)
			if len(set) == 0 {
				delete(s.channels, ch)
			}
		}
		s.mu.Unlock()
	}
}

// snapshot returns the requests waiting on ch. The shard lock is released
// before the caller offers anything to them.
func (r *registry) snapshot(ch string) []*request {
	s := r.shard(ch)
	s.mu.RLock()
	defer s.mu.RUnlock()

	set := s.channels[ch]
	if len(set) == 0 {
		return nil
	}

	out := make([]*request, 0, len(set))
	for req := range set {
		out = append(out, req)
	}
	return out
}

// all returns every registered request once.
func (r *registry) all() []*request {
	seen := make(map[*request]struct{})
	var out []*request

	for i := range r.shards {
		s := &r.shards[i]
		s.mu.RLock()
		for _, set := range s.channels {
			for req := range set {
				if _, ok := seen[req]; ok {
					continue
				}
				seen[req] = struct{}{}
				out = append(out, req)
			}
		}
		s.mu.RUnlock()
	}

	return out
}

func (r *registry) shard(ch string) *registryShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(ch))
	return &r.shards[h.Sum32()%registryShards]
}
