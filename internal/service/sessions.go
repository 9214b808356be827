package service

import (
	"sync"
	"time"

	"github.com/loopline/mentor/internal/domain"
)

// streamSession is the ephemeral per-conversation ownership token for one
// in-flight generation. Exactly one may exist per conversation.
type streamSession struct {
	conversationID string
	startedAt      time.Time
}

// sessionRegistry holds the active stream session per conversation. Acquire
// is atomic; a second acquire for the same conversation is rejected, never
// queued, so assistant turns cannot interleave.
type sessionRegistry struct {
	mu     sync.Mutex
	active map[string]*streamSession
}

func newSessionRegistry() *sessionRegistry {
	return &sessionRegistry{active: make(map[string]*streamSession)}
}

func (r *sessionRegistry) acquire(conversationID string) (*streamSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.active[conversationID]; ok {
		return nil, domain.ErrStreamActive
	}
	sess := &streamSession{conversationID: conversationID, startedAt: time.Now()}
	r.active[conversationID] = sess
	return sess, nil
}

// release frees the conversation for the next request. Must run on every
// exit path: success, cancellation, failure.
func (r *sessionRegistry) release(conversationID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, conversationID)
}
