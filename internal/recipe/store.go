package recipe

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrRunInProgress is returned by Begin when the session already has a run in flight.
	ErrRunInProgress = errors.New("a recipe is already being generated for this session")
	// ErrSessionNotFound is returned when a session id is unknown or expired.
	ErrSessionNotFound = errors.New("session not found")
)

// Session holds the state of one interactive user context: the most recent result and the
// append-only history of past runs. Nothing in a Session outlives the process.
type Session struct {
	ID string

	mu       sync.RWMutex
	current  *Result
	history  []HistoryEntry
	running  bool
	lastSeen time.Time
}

// NewSession creates an empty session.
func NewSession(id string, now time.Time) *Session {
	return &Session{ID: id, lastSeen: now}
}

// RecordRun makes r the current result and appends its title and recipe to the history.
// History is never capped.
func (s *Session) RecordRun(r Result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.current = &r
	s.history = append(s.history, HistoryEntry{Title: r.Title, Content: r.Recipe})
}

// Current returns the most recent result. ok is false until the first run completes.
func (s *Session) Current() (r Result, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.current == nil {
		return Result{}, false
	}
	return *s.current, true
}

// History returns a copy of all past runs, oldest first.
func (s *Session) History() []HistoryEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]HistoryEntry, len(s.history))
	copy(out, s.history)
	return out
}

// Begin marks a run as in flight. It fails with ErrRunInProgress if one already is.
func (s *Session) Begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrRunInProgress
	}
	s.running = true
	return nil
}

// End clears the in-flight mark set by Begin.
func (s *Session) End() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) idleSince(now time.Time) time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.running {
		return 0
	}
	return now.Sub(s.lastSeen)
}

// Registry keeps the live sessions of the process. Safe for concurrent access.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	now      func() time.Time
	log      *zap.Logger
}

// NewRegistry creates an empty registry. A nil logger disables logging.
func NewRegistry(log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		sessions: make(map[string]*Session),
		now:      time.Now,
		log:      log,
	}
}

// Open returns the session with the given id, creating a fresh one when id is empty or unknown.
// created reports whether a new session was made.
func (r *Registry) Open(id string) (s *Session, created bool) {
	now := r.now()

	if id != "" {
		r.mu.RLock()
		s, ok := r.sessions[id]
		r.mu.RUnlock()
		if ok {
			s.touch(now)
			return s, false
		}
	}

	s = NewSession(uuid.NewString(), now)
	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()

	r.log.Debug("session created", zap.String("session_id", s.ID))
	return s, true
}

// Get returns an existing session.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	s.touch(r.now())
	return s, nil
}

// Delete ends a session and discards its state.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	delete(r.sessions, id)
	r.log.Debug("session deleted", zap.String("session_id", id))
	return nil
}

// Sweep deletes sessions idle for longer than ttl and returns how many were removed.
// Sessions with a run in flight are never swept.
func (r *Registry) Sweep(ttl time.Duration) int {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, s := range r.sessions {
		if s.idleSince(now) > ttl {
			delete(r.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		r.log.Info("expired idle sessions", zap.Int("removed", removed), zap.Int("remaining", len(r.sessions)))
	}
	return removed
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
