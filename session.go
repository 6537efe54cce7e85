package auth

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SessionEndReason tells subscribers why a session ended
type SessionEndReason string

const (
	SessionEndLogout      SessionEndReason = "logout"
	SessionEndTimeout     SessionEndReason = "timeout"
	SessionEndInvalidated SessionEndReason = "invalidated"
)

// SessionEndedEvent is emitted exactly once per session
type SessionEndedEvent struct {
	SessionID uuid.UUID
	AccountID uuid.UUID
	Username  string
	Reason    SessionEndReason
	EndedAt   time.Time
}

// Session is the live authenticated state owned by a SessionManager.
// It holds a snapshot of the account taken at login.
type Session struct {
	mu           sync.Mutex
	id           uuid.UUID
	account      Account
	startedAt    time.Time
	deadline     time.Time
	hardDeadline time.Time
	alive        bool
	endReason    SessionEndReason
	task         *scheduledTask
	remember     *RememberToken
}

func newSession(account *Account, now time.Time) *Session {
	return &Session{
		id:        uuid.New(),
		account:   *account,
		startedAt: now,
		alive:     true,
	}
}

func (s *Session) ID() uuid.UUID {
	return s.id
}

func (s *Session) AccountID() uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.account.ID
}

func (s *Session) Username() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.account.Username
}

func (s *Session) Role() Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.account.Role
}

// Account returns a copy of the account snapshot
func (s *Session) Account() Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.account
}

func (s *Session) StartedAt() time.Time {
	return s.startedAt
}

// Deadline is the instant after which the session times out without activity
func (s *Session) Deadline() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deadline
}

// HardDeadline is the absolute end of the session, zero when unbounded
func (s *Session) HardDeadline() time.Time {
	return s.hardDeadline
}

func (s *Session) IsAlive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alive
}

// EndReason is empty while the session is alive
func (s *Session) EndReason() SessionEndReason {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endReason
}

// RememberToken is the token issued at login with WithRememberMe, if any.
// Its Secret is only available here.
func (s *Session) RememberToken() *RememberToken {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remember
}

// scheduledTask is the handle of the polling goroutine of one session
type scheduledTask struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func (t *scheduledTask) stop() {
	if t == nil {
		return
	}
	t.cancel()
}
