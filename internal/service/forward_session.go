package service

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/ticket-orchestrator/internal/gateway"
)

// ForwardSession is the short-lived state between a claimer requesting a
// forward and choosing the target. Scoped to (actor, channel, expiry) and
// single use.
type ForwardSession struct {
	Token      string
	ActorID    string
	ChannelID  string
	Candidates []gateway.Member
	ExpiresAt  time.Time
}

// Eligible reports whether userID is one of the session's offered targets.
func (s *ForwardSession) Eligible(userID string) bool {
	for _, m := range s.Candidates {
		if m.ID == userID {
			return true
		}
	}
	return false
}

// ForwardSessions stores pending forward selections in memory.
type ForwardSessions struct {
	mu       sync.Mutex
	ttl      time.Duration
	sessions map[string]*ForwardSession
	now      func() time.Time
}

// NewForwardSessions builds the session store.
func NewForwardSessions(ttl time.Duration) *ForwardSessions {
	return &ForwardSessions{
		ttl:      ttl,
		sessions: make(map[string]*ForwardSession),
		now:      time.Now,
	}
}

// Create registers a new session for the actor and channel, superseding any
// prior session the actor had for the same channel.
func (f *ForwardSessions) Create(actorID, channelID string, candidates []gateway.Member) *ForwardSession {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.purgeLocked()
	for token, s := range f.sessions {
		if s.ActorID == actorID && s.ChannelID == channelID {
			delete(f.sessions, token)
		}
	}

	session := &ForwardSession{
		Token:      uuid.NewString(),
		ActorID:    actorID,
		ChannelID:  channelID,
		Candidates: candidates,
		ExpiresAt:  f.now().Add(f.ttl),
	}
	f.sessions[session.Token] = session
	return session
}

// Consume validates and removes the session. It fails closed when the token
// is unknown, expired, consumed, or bound to a different actor or channel.
func (f *ForwardSessions) Consume(token, actorID, channelID string) (*ForwardSession, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.purgeLocked()
	session, ok := f.sessions[token]
	if !ok {
		return nil, false
	}
	if session.ActorID != actorID || session.ChannelID != channelID {
		return nil, false
	}
	delete(f.sessions, token)
	return session, true
}

func (f *ForwardSessions) purgeLocked() {
	now := f.now()
	for token, s := range f.sessions {
		if now.After(s.ExpiresAt) {
			delete(f.sessions, token)
		}
	}
}
