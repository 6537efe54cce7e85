package auth

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// LoginOption customizes a login call
type LoginOption func(*loginOptions)

type loginOptions struct {
	passwordless bool
	rememberDays int
}

// WithPasswordlessEntry accepts an empty password for roles that allow it
// even when a digest is stored
func WithPasswordlessEntry() LoginOption {
	return func(o *loginOptions) {
		o.passwordless = true
	}
}

// WithRememberMe issues a remember token after a successful login. Zero
// days uses the configured default.
func WithRememberMe(days int) LoginOption {
	return func(o *loginOptions) {
		if days <= 0 {
			days = -1
		}
		o.rememberDays = days
	}
}

// SessionManager owns the single live session of the process: login,
// activity tracking, inactivity expiry and remember tokens.
type SessionManager struct {
	repo     RepositoryManager
	provider *AccountProvider
	policies RolePolicies
	cfg      Config
	now      func() time.Time
	limiter  *rate.Limiter
	logger   Logger
	activity ActivitySink
	metrics  *Metrics

	mu           sync.Mutex
	current      *Session
	listeners    map[int]func(SessionEndedEvent)
	nextListener int
}

// NewSessionManager creates a manager backed by repo using DefaultOptions
func NewSessionManager(repo RepositoryManager) *SessionManager {
	m := &SessionManager{
		repo:      repo,
		provider:  NewAccountProvider(repo.Accounts()),
		policies:  DefaultRolePolicies(),
		now:       time.Now,
		logger:    defLogger{},
		activity:  noopActivitySink{},
		listeners: map[int]func(SessionEndedEvent){},
	}
	return m.WithConfig(DefaultOptions())
}

// WithConfig applies session, login and remember me options
func (m *SessionManager) WithConfig(cfg Config) *SessionManager {
	if cfg == nil {
		return m
	}
	m.cfg = cfg
	m.provider.WithConfig(cfg)
	m.limiter = nil
	if limit := cfg.GetLoginRateLimit(); limit > 0 {
		burst := cfg.GetLoginRateBurst()
		if burst <= 0 {
			burst = 1
		}
		m.limiter = rate.NewLimiter(rate.Limit(limit), burst)
	}
	return m
}

func (m *SessionManager) WithClock(now func() time.Time) *SessionManager {
	if now != nil {
		m.now = now
		m.provider.WithClock(now)
	}
	return m
}

func (m *SessionManager) WithHasher(h PasswordHasher) *SessionManager {
	m.provider.WithHasher(h)
	return m
}

func (m *SessionManager) WithPolicies(p RolePolicies) *SessionManager {
	if p != nil {
		m.policies = p
		m.provider.WithPolicies(p)
	}
	return m
}

func (m *SessionManager) WithLogger(l Logger) *SessionManager {
	if l != nil {
		m.logger = l
		m.provider.WithLogger(l)
	}
	return m
}

func (m *SessionManager) WithActivitySink(s ActivitySink) *SessionManager {
	m.activity = normalizeActivitySink(s)
	return m
}

func (m *SessionManager) WithMetrics(metrics *Metrics) *SessionManager {
	m.metrics = metrics
	return m
}

// Login verifies the credentials and starts a new session, ending any
// session that was live before.
func (m *SessionManager) Login(ctx context.Context, username, password string, opts ...LoginOption) (*Session, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	options := &loginOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(options)
		}
	}

	if m.limiter != nil && !m.limiter.Allow() {
		m.metrics.loginResult("throttled")
		return nil, ErrTooManyLoginAttempts
	}

	account, err := m.provider.VerifyCredentials(ctx, username, password, options.passwordless)
	if err != nil {
		m.metrics.loginResult("failure")
		m.recorder().record(ctx, ActivityEvent{
			EventType: ActivityEventLoginFailure,
			SubjectID: username,
			Metadata:  map[string]any{"error": TextCode(err)},
		})
		return nil, err
	}

	session := m.start(ctx, account, ActivityEventLoginSuccess)

	if options.rememberDays != 0 {
		days := options.rememberDays
		if days < 0 {
			days = 0
		}
		token, err := m.EnableRememberMe(ctx, account.ID, account.Role, days)
		if err != nil {
			m.logger.Warn("remember me not enabled", "account", account.ID, "error", err)
		} else {
			session.mu.Lock()
			session.remember = token
			session.mu.Unlock()
		}
	}

	return session, nil
}

// Current returns the live session or nil
func (m *SessionManager) Current() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Touch records user activity and pushes the inactivity deadline forward,
// never past the hard deadline.
func (m *SessionManager) Touch(s *Session) error {
	if s == nil || m.CheckExpiry(s) {
		return ErrSessionEnded
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.alive {
		return ErrSessionEnded
	}
	s.deadline = m.nextDeadline(s, m.now())
	return nil
}

// CheckExpiry ends the session with reason timeout once its deadline has
// passed. It reports true for any session that is no longer live.
func (m *SessionManager) CheckExpiry(s *Session) bool {
	if s == nil {
		return true
	}

	s.mu.Lock()
	if !s.alive {
		s.mu.Unlock()
		return true
	}
	expired := !m.now().Before(s.deadline)
	s.mu.Unlock()

	if expired {
		m.end(s, SessionEndTimeout)
	}
	return expired
}

// Validate re-reads the account behind the session. A missing or disabled
// account, or a changed role, ends the session with reason invalidated.
// Storage errors are returned and leave the session untouched.
func (m *SessionManager) Validate(ctx context.Context, s *Session) (bool, error) {
	if s == nil || m.CheckExpiry(s) {
		return false, nil
	}

	account, err := m.repo.Accounts().FindByID(ctx, s.AccountID())
	if err != nil {
		if IsNotFound(err) {
			m.end(s, SessionEndInvalidated)
			return false, nil
		}
		return false, err
	}

	if !account.IsActive() || account.Role != s.Role() {
		m.end(s, SessionEndInvalidated)
		return false, nil
	}

	s.mu.Lock()
	alive := s.alive
	if alive {
		s.account = *account
	}
	s.mu.Unlock()

	return alive, nil
}

// Logout ends the session and deletes the remember tokens of its account
func (m *SessionManager) Logout(ctx context.Context, s *Session) error {
	if s == nil {
		return nil
	}

	m.end(s, SessionEndLogout)

	n, err := m.repo.RememberTokens().DeleteByAccount(ctx, s.AccountID())
	if err != nil {
		return err
	}
	if n > 0 {
		m.logger.Debug("remember tokens removed", "account", s.AccountID(), "count", n)
	}
	return nil
}

// OnSessionEnded subscribes fn to session ended events. Call the returned
// func to unsubscribe.
func (m *SessionManager) OnSessionEnded(fn func(SessionEndedEvent)) func() {
	if fn == nil {
		return func() {}
	}

	m.mu.Lock()
	id := m.nextListener
	m.nextListener++
	m.listeners[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

// Close ends the live session, if any, and waits for its timer to stop
func (m *SessionManager) Close() {
	s := m.Current()
	if s == nil {
		return
	}

	s.mu.Lock()
	task := s.task
	s.mu.Unlock()

	m.end(s, SessionEndLogout)
	if task != nil {
		<-task.done
	}
}

func (m *SessionManager) start(ctx context.Context, account *Account, event ActivityEventType) *Session {
	now := m.now()
	s := newSession(account, now)
	if lifetime := m.cfg.GetMaxSessionLifetime(); lifetime > 0 {
		s.hardDeadline = now.Add(lifetime)
	}
	s.deadline = m.nextDeadline(s, now)

	m.mu.Lock()
	previous := m.current
	m.current = s
	m.mu.Unlock()

	if previous != nil {
		m.end(previous, SessionEndLogout)
	}
	m.schedule(s)

	m.logger.Info("session started", "session", s.id, "account", account.ID, "role", account.Role)
	m.metrics.loginResult("success")
	m.recorder().record(ctx, ActivityEvent{
		EventType: event,
		Actor:     AccountActor(account),
		SubjectID: account.ID.String(),
		Metadata:  map[string]any{"session_id": s.id.String()},
	})

	return s
}

// end is the only path that terminates a session. It cancels the timer
// and notifies subscribers once.
func (m *SessionManager) end(s *Session, reason SessionEndReason) bool {
	s.mu.Lock()
	if !s.alive {
		s.mu.Unlock()
		return false
	}
	s.alive = false
	s.endReason = reason
	task := s.task
	account := s.account
	s.mu.Unlock()

	task.stop()

	m.mu.Lock()
	if m.current == s {
		m.current = nil
	}
	listeners := make([]func(SessionEndedEvent), 0, len(m.listeners))
	for i := 0; i < m.nextListener; i++ {
		if fn, ok := m.listeners[i]; ok {
			listeners = append(listeners, fn)
		}
	}
	m.mu.Unlock()

	event := SessionEndedEvent{
		SessionID: s.id,
		AccountID: account.ID,
		Username:  account.Username,
		Reason:    reason,
		EndedAt:   m.now(),
	}

	m.logger.Info("session ended", "session", s.id, "account", account.ID, "reason", reason)
	m.metrics.sessionEnded(reason)
	m.recorder().record(context.Background(), ActivityEvent{
		EventType: ActivityEventSessionEnded,
		Actor:     ActorRef{Type: "system"},
		SubjectID: account.ID.String(),
		Metadata: map[string]any{
			"session_id": s.id.String(),
			"reason":     string(reason),
		},
		OccurredAt: event.EndedAt,
	})

	for _, fn := range listeners {
		fn(event)
	}
	return true
}

func (m *SessionManager) nextDeadline(s *Session, now time.Time) time.Time {
	deadline := now.Add(m.cfg.GetInactivityTimeout())
	if !s.hardDeadline.IsZero() && deadline.After(s.hardDeadline) {
		return s.hardDeadline
	}
	return deadline
}

// schedule starts the polling goroutine of s. A non positive poll interval
// leaves expiry to explicit CheckExpiry calls.
func (m *SessionManager) schedule(s *Session) {
	interval := m.cfg.GetPollInterval()
	if interval <= 0 {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	task := &scheduledTask{
		cancel: cancel,
		done:   make(chan struct{}),
	}

	// the task is visible to end before the first tick can fire
	s.mu.Lock()
	s.task = task
	s.mu.Unlock()

	go func() {
		defer close(task.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if m.CheckExpiry(s) {
					return
				}
			}
		}
	}()
}

func (m *SessionManager) recorder() activityRecorder {
	return activityRecorder{sink: m.activity, logger: m.logger, now: m.now}
}
