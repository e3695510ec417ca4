package review

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dnodevkis/tg-news-bot/internal/models"
)

var (
	// ErrStaleSession is returned when an action targets a group with no
	// live session, a session in another state, or one that is busy.
	ErrStaleSession = errors.New("stale session")
	// ErrSessionExists is returned when a group already has a live session.
	ErrSessionExists = errors.New("session already exists")
)

type slot struct {
	session *Session
	busy    bool
}

// Store is the keyed registry of live sessions. Callers take a group's slot
// with Create or Acquire, work on the returned copy without holding the
// store lock, and hand it back with Release.
type Store struct {
	mu    sync.Mutex
	slots map[string]*slot
	now   func() time.Time
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{slots: make(map[string]*slot), now: time.Now}
}

// Create registers a new session in GENERATING and holds its slot.
func (s *Store) Create(group models.NewsGroup) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.slots[group.GroupID]; ok {
		return nil, fmt.Errorf("%w: group %s", ErrSessionExists, group.GroupID)
	}

	now := s.now()
	sess := &Session{
		ID:        uuid.NewString(),
		GroupID:   group.GroupID,
		State:     StateGenerating,
		Group:     group,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.slots[group.GroupID] = &slot{session: sess, busy: true}
	return sess.clone(), nil
}

// Acquire takes the group's slot if the session is idle and in one of the
// allowed states.
func (s *Store) Acquire(groupID string, allowed ...State) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sl, ok := s.slots[groupID]
	switch {
	case !ok:
		return nil, fmt.Errorf("%w: no session for group %s", ErrStaleSession, groupID)
	case sl.busy:
		return nil, fmt.Errorf("%w: group %s is busy (%s)", ErrStaleSession, groupID, sl.session.State)
	case len(allowed) > 0 && !slices.Contains(allowed, sl.session.State):
		return nil, fmt.Errorf("%w: group %s is %s", ErrStaleSession, groupID, sl.session.State)
	}

	sl.busy = true
	return sl.session.clone(), nil
}

// Release commits sess and frees its slot. A terminal session is removed.
func (s *Store) Release(sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sl, ok := s.slots[sess.GroupID]
	if !ok || sl.session.ID != sess.ID {
		return
	}
	if sess.State.Terminal() {
		delete(s.slots, sess.GroupID)
		return
	}
	sess.UpdatedAt = s.now()
	sl.session = sess.clone()
	sl.busy = false
}

// mark publishes an intermediate state of a held session to readers.
func (s *Store) mark(sess *Session, state State) {
	sess.State = state

	s.mu.Lock()
	defer s.mu.Unlock()
	if sl, ok := s.slots[sess.GroupID]; ok && sl.session.ID == sess.ID {
		sl.session.State = state
		sl.session.UpdatedAt = s.now()
	}
}

// Has reports whether the group has a live session.
func (s *Store) Has(groupID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.slots[groupID]
	return ok
}

// Get returns a snapshot of the group's session.
func (s *Store) Get(groupID string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sl, ok := s.slots[groupID]
	if !ok {
		return nil, false
	}
	return sl.session.clone(), true
}

// List returns snapshots of all live sessions, oldest first.
func (s *Store) List() []*Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Session, 0, len(s.slots))
	for _, sl := range s.slots {
		out = append(out, sl.session.clone())
	}
	slices.SortFunc(out, func(a, b *Session) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.GroupID, b.GroupID)
	})
	return out
}

// Delete drops the group's session regardless of its state.
func (s *Store) Delete(groupID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.slots, groupID)
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.slots)
}
