package dialogue

import "sync"

// Context is the single-slot conversation state: which multi-step offer is
// pending for the session. The legal transition set is closed; only the
// resolver moves it.
type Context int

const (
	ContextNone Context = iota
	ContextOfferStarterPlan
	ContextOffer7DayPlan
	ContextOfferTracker
)

func (c Context) String() string {
	switch c {
	case ContextOfferStarterPlan:
		return "offer_starter_plan"
	case ContextOffer7DayPlan:
		return "offer_7_day_plan"
	case ContextOfferTracker:
		return "offer_tracker"
	}
	return "none"
}

// Session holds one user's pending offer slot. Its mutex keeps concurrent
// requests from the same session from racing a read-then-write on the slot.
type Session struct {
	mu   sync.Mutex
	last Context
}

// Last returns the pending context. Intended for inspection; the resolver
// mutates the slot under the session lock itself.
func (s *Session) Last() Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// ContextStore hands out per-user sessions. Sessions live for the process
// lifetime; there is no persistence beyond the single slot.
type ContextStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewContextStore() *ContextStore {
	return &ContextStore{sessions: make(map[string]*Session)}
}

func (s *ContextStore) Session(userID string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[userID]
	if !ok {
		session = &Session{}
		s.sessions[userID] = session
	}
	return session
}
