// README: Session store contract and the bounded in-memory implementation (LRU capacity + idle TTL).
package session

import (
	"container/list"
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"wayfarer/internal/metrics"
)

// Store persists conversation state. Implementations return copies, never shared pointers.
type Store interface {
	Get(ctx context.Context, id string) (*State, error)
	Put(ctx context.Context, s *State) error
	Delete(ctx context.Context, id string) error
}

type memoryEntry struct {
	state    *State
	lastSeen time.Time
}

// MemoryStore keeps at most capacity sessions, evicting the least recently used one on overflow
// and any session idle for longer than ttl.
type MemoryStore struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	order    *list.List
	items    map[string]*list.Element
	now      func() time.Time
	logger   *zap.Logger

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// NewMemoryStore starts a janitor goroutine sweeping expired sessions every sweep interval.
// sweep <= 0 disables the janitor; expiry is still enforced on access. Call Close to stop it.
func NewMemoryStore(capacity int, ttl, sweep time.Duration, logger *zap.Logger) *MemoryStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	if capacity <= 0 {
		capacity = 10000
	}
	s := &MemoryStore{
		capacity: capacity,
		ttl:      ttl,
		order:    list.New(),
		items:    make(map[string]*list.Element),
		now:      time.Now,
		logger:   logger.Named("session_store"),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	if sweep > 0 && ttl > 0 {
		go s.janitor(sweep)
	} else {
		close(s.done)
	}
	return s
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	el, ok := s.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	e := el.Value.(*memoryEntry)
	if s.expired(e) {
		s.removeLocked(el, "ttl")
		return nil, ErrNotFound
	}
	e.lastSeen = s.now()
	s.order.MoveToFront(el)
	return e.state.Clone(), nil
}

func (s *MemoryStore) Put(ctx context.Context, st *State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if el, ok := s.items[st.SessionID]; ok {
		e := el.Value.(*memoryEntry)
		e.state = st.Clone()
		e.lastSeen = s.now()
		s.order.MoveToFront(el)
		return nil
	}
	el := s.order.PushFront(&memoryEntry{state: st.Clone(), lastSeen: s.now()})
	s.items[st.SessionID] = el
	for s.order.Len() > s.capacity {
		s.removeLocked(s.order.Back(), "capacity")
	}
	metrics.SessionsActive.Set(float64(s.order.Len()))
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if el, ok := s.items[id]; ok {
		s.order.Remove(el)
		delete(s.items, id)
		metrics.SessionsActive.Set(float64(s.order.Len()))
	}
	return nil
}

// Len returns the number of sessions currently held.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order.Len()
}

// Sweep removes every expired session and returns how many were removed.
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for el := s.order.Back(); el != nil; {
		prev := el.Prev()
		if s.expired(el.Value.(*memoryEntry)) {
			s.removeLocked(el, "ttl")
			n++
		}
		el = prev
	}
	return n
}

// Close stops the janitor. It is safe to call more than once.
func (s *MemoryStore) Close() error {
	s.once.Do(func() { close(s.stop) })
	<-s.done
	return nil
}

func (s *MemoryStore) janitor(every time.Duration) {
	defer close(s.done)
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-t.C:
			if n := s.Sweep(); n > 0 {
				s.logger.Debug("swept expired sessions", zap.Int("count", n))
			}
		}
	}
}

func (s *MemoryStore) expired(e *memoryEntry) bool {
	return s.ttl > 0 && s.now().Sub(e.lastSeen) > s.ttl
}

func (s *MemoryStore) removeLocked(el *list.Element, reason string) {
	e := el.Value.(*memoryEntry)
	s.order.Remove(el)
	delete(s.items, e.state.SessionID)
	metrics.SessionEvictions.WithLabelValues(reason).Inc()
	metrics.SessionsActive.Set(float64(s.order.Len()))
}
