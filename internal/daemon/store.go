package daemon

import (
	"fmt"
	"sync"
	"time"

	"confsh/internal/protocol/wire"
)

// Applied is one committed configuration delta.
type Applied struct {
	Seq    uint64
	Client string
	Delta  wire.Delta
	At     time.Time
}

// Store holds the daemon's configuration state: an ordered log of
// applied deltas plus the current value per path. In-memory only.
type Store struct {
	mu      sync.Mutex
	nextSeq uint64
	applied []Applied
	values  map[string]string
}

func NewStore() *Store {
	return &Store{values: make(map[string]string)}
}

var allowedOps = map[string]struct{}{
	"set":   {},
	"unset": {},
}

// Apply validates and records one delta. Assignment of sequence
// numbers is the daemon's ordering guarantee: they increase in exactly
// the order commits arrive.
func (s *Store) Apply(client string, d wire.Delta) (uint64, error) {
	if err := d.Validate(); err != nil {
		return 0, err
	}
	if _, ok := allowedOps[d.Op]; !ok {
		return 0, fmt.Errorf("%w: unknown op %q", wire.ErrInvalidCommit, d.Op)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSeq++
	seq := s.nextSeq
	s.applied = append(s.applied, Applied{
		Seq:    seq,
		Client: client,
		Delta:  d,
		At:     time.Now(),
	})
	switch d.Op {
	case "set":
		s.values[d.Path] = d.Value
	case "unset":
		delete(s.values, d.Path)
	}
	return seq, nil
}

// Log returns a copy of the applied-delta log in commit order.
func (s *Store) Log() []Applied {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Applied, len(s.applied))
	copy(out, s.applied)
	return out
}

// Get returns the current value at path.
func (s *Store) Get(path string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[path]
	return v, ok
}
