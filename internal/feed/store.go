package feed

import (
	"errors"
	"sync"

	"github.com/chrissnell/fluidwatch/internal/samples"
)

// ErrStaleSnapshot is returned when a fetch completes after a newer one has
// already been published.
var ErrStaleSnapshot = errors.New("stale snapshot")

// Store holds the latest published snapshot. Fetches may complete out of
// order; only a snapshot with a higher sequence than the current one replaces it.
type Store struct {
	mu      sync.RWMutex
	current Snapshot
	subs    map[chan Snapshot]struct{}
}

// NewStore creates a store primed with an all-zero buffer so that a view can
// be rendered before the first fetch completes.
func NewStore(g samples.Geometry) *Store {
	return &Store{
		current: Snapshot{Buffer: samples.Zero(g)},
		subs:    make(map[chan Snapshot]struct{}),
	}
}

// Publish replaces the current snapshot if snap is newer.
func (s *Store) Publish(snap Snapshot) error {
	s.mu.Lock()
	if snap.Seq <= s.current.Seq {
		s.mu.Unlock()
		return ErrStaleSnapshot
	}
	s.current = snap

	subs := make([]chan Snapshot, 0, len(s.subs))
	for ch := range s.subs {
		subs = append(subs, ch)
	}
	s.mu.Unlock()

	for _, ch := range subs {
		// Subscribers only need to know something changed; a slow one
		// still finds the newest snapshot via Latest.
		select {
		case ch <- snap:
		default:
		}
	}
	return nil
}

// Latest returns the current snapshot.
func (s *Store) Latest() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Subscribe returns a channel that receives each newly published snapshot,
// and a function that cancels the subscription.
func (s *Store) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, ch)
			s.mu.Unlock()
		})
	}
}
