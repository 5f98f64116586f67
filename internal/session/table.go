package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"digestbot/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Key identifies a dialogue. A user talking to the bot in two chats has two
// independent dialogues.
type Key struct {
	UserID int64
	ChatID int64
}

func (k Key) String() string {
	return fmt.Sprintf("session:%d:%d", k.UserID, k.ChatID)
}

// Session is an open /convert dialogue
type Session struct {
	ID        string
	Key       Key
	State     State
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Outcome of firing one event
type Outcome struct {
	Action  Action
	Session Session
	// Expired is set when an idle-expired session was dropped before the
	// event was applied.
	Expired bool
}

// Table holds the open dialogues in memory. Only AWAITING_VOICE sessions
// are stored; a missing entry is IDLE.
type Table struct {
	mu       sync.Mutex
	sessions map[Key]*Session
	ttl      time.Duration
	now      func() time.Time
}

// NewTable creates a table whose sessions expire after ttl without
// activity. A zero ttl disables expiry.
func NewTable(ttl time.Duration) *Table {
	return &Table{
		sessions: make(map[Key]*Session),
		ttl:      ttl,
		now:      time.Now,
	}
}

// Fire applies ev to the dialogue behind key. Lookup, transition and store
// happen under one lock, so events for the same key are strictly ordered.
func (t *Table) Fire(key Key, ev Event) Outcome {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	var out Outcome

	current := t.sessions[key]
	if current != nil && t.expired(current, now) {
		delete(t.sessions, key)
		out.Expired = true
		current = nil
	}

	from := StateIdle
	if current != nil {
		from = current.State
	}

	to, action := Transition(from, ev)
	out.Action = action

	switch {
	case to == StateIdle:
		if current != nil {
			delete(t.sessions, key)
			out.Session = *current
			out.Session.State = to
			out.Session.UpdatedAt = now
		}
	case current == nil:
		s := &Session{
			ID:        uuid.NewString(),
			Key:       key,
			State:     to,
			CreatedAt: now,
			UpdatedAt: now,
		}
		t.sessions[key] = s
		out.Session = *s
	default:
		current.State = to
		current.UpdatedAt = now
		out.Session = *current
	}

	logger.Debug("Session transition",
		zap.String("key", key.String()),
		zap.Stringer("from", from),
		zap.Stringer("event", ev),
		zap.Stringer("to", to),
		zap.Stringer("action", action))

	return out
}

// Get returns the open session for key, if any
func (t *Table) Get(key Key) (Session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sessions[key]
	if !ok || t.expired(s, t.now()) {
		return Session{}, false
	}
	return *s, true
}

// Len returns the number of open sessions
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}

// Sweep removes every expired session and returns them
func (t *Table) Sweep() []Session {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	var expired []Session
	for key, s := range t.sessions {
		if !t.expired(s, now) {
			continue
		}
		delete(t.sessions, key)
		ended := *s
		ended.State, _ = Transition(s.State, EventExpire)
		expired = append(expired, ended)
	}
	return expired
}

// Run sweeps the table every interval until ctx is done, handing each
// expired session to onExpire outside the lock.
func (t *Table) Run(ctx context.Context, interval time.Duration, onExpire func(Session)) {
	if t.ttl <= 0 || interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, s := range t.Sweep() {
				logger.Info("Conversion dialogue expired",
					zap.String("session_id", s.ID),
					zap.Int64("user_id", s.Key.UserID),
					zap.Int64("chat_id", s.Key.ChatID))
				if onExpire != nil {
					onExpire(s)
				}
			}
		}
	}
}

func (t *Table) expired(s *Session, now time.Time) bool {
	return t.ttl > 0 && now.Sub(s.UpdatedAt) >= t.ttl
}
