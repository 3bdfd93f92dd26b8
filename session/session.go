package session

import (
	"sync"
	"time"

	"screener-scraper/models"

	"github.com/google/uuid"
)

// State is what one visitor of the page has fetched so far. It is replaced
// wholesale after each successful fetch and never partially updated.
type State struct {
	Dataset   *models.Dataset
	URL       string
	Fetched   bool
	FetchedAt time.Time
}

type entry struct {
	state    State
	fetching sync.Mutex
	lastSeen time.Time
}

// Store keeps per-session state in memory
type Store struct {
	mu       sync.Mutex
	sessions map[string]*entry
	now      func() time.Time
}

// NewStore creates an empty Store
func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*entry),
		now:      time.Now,
	}
}

// NewID returns a fresh random session ID
func NewID() string {
	return uuid.NewString()
}

// ValidID reports whether id looks like an ID handed out by NewID
func ValidID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func (s *Store) get(id string) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[id]
	if !ok {
		e = &entry{}
		s.sessions[id] = e
	}
	e.lastSeen = s.now()
	return e
}

// Get returns a copy of the session state, creating an empty one on first use
func (s *Store) Get(id string) State {
	e := s.get(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	return e.state
}

// Replace swaps in the state of a successful fetch
func (s *Store) Replace(id string, ds *models.Dataset, url string) State {
	e := s.get(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	e.state = State{
		Dataset:   ds,
		URL:       url,
		Fetched:   true,
		FetchedAt: s.now(),
	}
	return e.state
}

// TryLockFetch claims the session's fetch slot. It returns false when a fetch
// is already running for the session, otherwise the caller must call the
// returned unlock func.
func (s *Store) TryLockFetch(id string) (unlock func(), ok bool) {
	e := s.get(id)
	if !e.fetching.TryLock() {
		return nil, false
	}
	return e.fetching.Unlock, true
}

// Len returns the number of known sessions
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Prune drops sessions not seen for longer than maxIdle and returns how many were removed
func (s *Store) Prune(maxIdle time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-maxIdle)
	n := 0
	for id, e := range s.sessions {
		if e.lastSeen.Before(cutoff) {
			delete(s.sessions, id)
			n++
		}
	}
	return n
}
