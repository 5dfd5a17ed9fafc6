package wizard

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Store holds live sessions in memory. Sessions belong to one student and
// expire after ttl without activity.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Wizard
	ttl      time.Duration
	now      func() time.Time
	log      *zap.Logger
}

type StoreOption func(*Store)

// WithClock replaces time.Now for sessions and sweeps.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

func WithStoreLogger(l *zap.Logger) StoreOption {
	return func(s *Store) { s.log = l }
}

func NewStore(ttl time.Duration, opts ...StoreOption) *Store {
	s := &Store{
		sessions: make(map[string]*Wizard),
		ttl:      ttl,
		now:      time.Now,
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create starts an empty session on Step1.
func (s *Store) Create(owner string) *Wizard {
	w := newWizard(uuid.NewString(), owner, s.now)
	s.mu.Lock()
	s.sessions[w.id] = w
	s.mu.Unlock()
	return w
}

// Get returns the session only to its owner.
func (s *Store) Get(id, owner string) (*Wizard, error) {
	s.mu.Lock()
	w, ok := s.sessions[id]
	s.mu.Unlock()
	if !ok || w.owner != owner {
		return nil, ErrSessionNotFound
	}
	return w, nil
}

func (s *Store) Discard(id, owner string) error {
	s.mu.Lock()
	w, ok := s.sessions[id]
	if !ok || w.owner != owner {
		s.mu.Unlock()
		return ErrSessionNotFound
	}
	delete(s.sessions, id)
	s.mu.Unlock()

	w.Discard()
	return nil
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Sweep discards idle sessions and returns how many went. A session with a
// submission in flight is never swept.
func (s *Store) Sweep() int {
	now := s.now()

	s.mu.Lock()
	var expired []*Wizard
	for id, w := range s.sessions {
		idle, busy := w.idleSince(now)
		if busy || idle <= s.ttl {
			continue
		}
		delete(s.sessions, id)
		expired = append(expired, w)
	}
	s.mu.Unlock()

	for _, w := range expired {
		w.Discard()
	}
	if len(expired) > 0 {
		s.log.Debug("wizard sessions expired", zap.Int("count", len(expired)))
	}
	return len(expired)
}

// Run sweeps every interval until ctx is done.
func (s *Store) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Sweep()
		}
	}
}
