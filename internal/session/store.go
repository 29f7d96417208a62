package session

import (
	"sync"

	"github.com/zulandar/mailslot/internal/telegraph"
)

// Store holds the sessions of users in the middle of a flow. Sessions live
// in memory only; a restart drops every conversation in flight. A session
// that returns to Idle is cleared, so the store only grows with users who
// have an open flow. The last prompt shown to each user is kept apart from
// the session so in-place edits survive the clear.
//
// Store is safe for concurrent use. Events for one user must still be
// applied in arrival order by the caller.
type Store struct {
	mu       sync.RWMutex
	sessions map[int64]*Session
	prompts  map[int64]telegraph.MessageRef
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		sessions: make(map[int64]*Session),
		prompts:  make(map[int64]telegraph.MessageRef),
	}
}

// Resolve returns the user's session, creating an idle one if absent.
func (s *Store) Resolve(userID int64) Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked(s.resolveLocked(userID))
}

func (s *Store) resolveLocked(userID int64) *Session {
	sess, ok := s.sessions[userID]
	if !ok {
		sess = &Session{UserID: userID, State: Idle{}}
		s.sessions[userID] = sess
	}
	return sess
}

func (s *Store) viewLocked(sess *Session) Session {
	out := *sess
	out.LastPrompt = s.prompts[sess.UserID]
	return out
}

// Peek returns the user's session without creating one. A user with no open
// flow but a recorded prompt is reported as Idle.
func (s *Store) Peek(userID int64) (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if sess, ok := s.sessions[userID]; ok {
		return s.viewLocked(sess), true
	}
	if ref, ok := s.prompts[userID]; ok {
		return Session{UserID: userID, State: Idle{}, LastPrompt: ref}, true
	}
	return Session{}, false
}

// Apply advances the user's session by ev and stores the next state. A
// transition back to Idle clears the session.
func (s *Store) Apply(userID int64, ev Event) Transition {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.resolveLocked(userID)
	tr := Apply(sess.State, ev)
	if _, idle := tr.Next.(Idle); idle {
		delete(s.sessions, userID)
		return tr
	}
	sess.State = tr.Next
	return tr
}

// Clear forgets the user's session and last prompt.
func (s *Store) Clear(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, userID)
	delete(s.prompts, userID)
}

// SetLastPrompt records the message the bot last showed the user.
func (s *Store) SetLastPrompt(userID int64, ref telegraph.MessageRef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts[userID] = ref
}

// AttachMedia records the saved path of the pending media. It reports false
// when no media submission is pending any more.
func (s *Store) AttachMedia(userID int64, path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[userID]
	if !ok {
		return false
	}
	switch st := sess.State.(type) {
	case AwaitingDecision:
		st.Pending.MediaPath = path
		sess.State = st
	case AwaitingCaption:
		st.Pending.MediaPath = path
		sess.State = st
	default:
		return false
	}
	return true
}

// Len returns the number of open sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
