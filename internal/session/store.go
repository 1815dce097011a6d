// Package session holds per-user conversation state.
//
// The store is the single source of truth for "what this user is
// currently doing". All mutations for one user are linearizable;
// unrelated users never share a lock (sharded by user id).
package session

import (
	"sync"
	"time"

	"jobalertbot/internal/alert"
)

// Session is one user's conversation state.
type Session struct {
	UserID   int64
	ChatID   int64
	Username string

	Context         Context
	PreviousContext Context

	// Pending is the parsed-but-unconfirmed criteria. Non-nil only while
	// the context is a confirming step.
	Pending *alert.SearchCriteria

	// SelectedIDs are the alert ids under edit/delete.
	SelectedIDs []string

	// RetryCount counts consecutive failed parse attempts in the current
	// phase. Reset on entry to any non-retryable context.
	RetryCount int

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (s Session) clone() Session {
	cp := s
	if s.Pending != nil {
		p := *s.Pending
		cp.Pending = &p
	}
	cp.SelectedIDs = append([]string(nil), s.SelectedIDs...)
	return cp
}

const shardCount = 32

type shard struct {
	mu       sync.Mutex
	sessions map[int64]*Session
}

// Store is a sharded, per-user-atomic session map. Contention is bounded
// to actual same-user collisions; there is no global lock.
type Store struct {
	shards [shardCount]*shard
	now    func() time.Time
}

func NewStore() *Store {
	st := &Store{now: time.Now}
	for i := range st.shards {
		st.shards[i] = &shard{sessions: map[int64]*Session{}}
	}
	return st
}

func (st *Store) shardFor(userID int64) *shard {
	if userID < 0 {
		userID = -userID
	}
	return st.shards[userID%shardCount]
}

// GetOrCreate returns the existing session for userID or atomically
// creates an Idle one.
func (st *Store) GetOrCreate(userID, chatID int64, username string) Session {
	sh := st.shardFor(userID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if s, ok := sh.sessions[userID]; ok {
		// Keep transport-owned fields fresh; they may change between messages.
		s.ChatID = chatID
		if username != "" {
			s.Username = username
		}
		return s.clone()
	}
	now := st.now()
	s := &Session{
		UserID:    userID,
		ChatID:    chatID,
		Username:  username,
		Context:   Idle,
		CreatedAt: now,
		UpdatedAt: now,
	}
	sh.sessions[userID] = s
	return s.clone()
}

// Update atomically applies fn to the user's session. It returns the
// updated session and true, or the zero session and false when no
// session exists. Concurrent Updates for the same user never interleave;
// fn must not block.
func (st *Store) Update(userID int64, fn func(Session) Session) (Session, bool) {
	sh := st.shardFor(userID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	cur, ok := sh.sessions[userID]
	if !ok {
		return Session{}, false
	}
	next := fn(cur.clone())
	// Context changes into a non-retryable phase reset the counter.
	if next.Context != cur.Context && !next.Context.Retryable() {
		next.RetryCount = 0
	}
	next.UserID = cur.UserID
	next.CreatedAt = cur.CreatedAt
	next.UpdatedAt = st.now()
	sh.sessions[userID] = &next
	return next.clone(), true
}

// SetContext swaps the user's context, stashing the prior one into
// PreviousContext.
func (st *Store) SetContext(userID int64, next Context) (Session, bool) {
	return st.Update(userID, func(s Session) Session {
		s.PreviousContext = s.Context
		s.Context = next
		return s
	})
}

// ResetToIdle clears pending data, selection, retry counter, and returns
// the session to Idle.
func (st *Store) ResetToIdle(userID int64) (Session, bool) {
	return st.Update(userID, func(s Session) Session {
		s.PreviousContext = s.Context
		s.Context = Idle
		s.Pending = nil
		s.SelectedIDs = nil
		s.RetryCount = 0
		return s
	})
}

// CurrentContext returns the user's context, Idle when no session exists.
func (st *Store) CurrentContext(userID int64) Context {
	sh := st.shardFor(userID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if s, ok := sh.sessions[userID]; ok {
		return s.Context
	}
	return Idle
}

// Get returns a copy of the session if it exists.
func (st *Store) Get(userID int64) (Session, bool) {
	sh := st.shardFor(userID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if s, ok := sh.sessions[userID]; ok {
		return s.clone(), true
	}
	return Session{}, false
}
