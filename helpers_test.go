package auth_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/qcdash/go-auth"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"go.uber.org/zap/zaptest"
)

const strongPassword = "Secret123"

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func testOptions() auth.Options {
	opts := auth.DefaultOptions()
	opts.Session.PollInterval = 0
	opts.Login.RateLimit = 0
	opts.Credentials.Iterations = 1000
	opts.Logging.Console = false
	opts.Storage.DSN = fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	return opts
}

func fastHasher() *auth.PBKDF2Hasher {
	return auth.NewPBKDF2Hasher(auth.CredentialConfig{Iterations: 1000})
}

// newTestService builds a service over a private in-memory database. The
// returned clock drives every component unless extra overrides it.
func newTestService(t *testing.T, mutate func(*auth.Options), extra ...auth.ServiceOption) (*auth.Service, *testClock) {
	t.Helper()

	opts := testOptions()
	if mutate != nil {
		mutate(&opts)
	}

	clock := newTestClock()
	options := append([]auth.ServiceOption{
		auth.WithServiceClock(clock.Now),
		auth.WithServiceLogger(auth.NewZapLogger(zaptest.NewLogger(t))),
	}, extra...)

	svc, err := auth.NewService(context.Background(), opts, options...)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = svc.Close()
	})

	return svc, clock
}

func unit(v int64) *int64 {
	return &v
}

func seedAccount(t *testing.T, svc *auth.Service, username string, role auth.Role, password string, unitID *int64) *auth.Account {
	t.Helper()

	account := &auth.Account{
		Username: username,
		Role:     role,
		UnitID:   unitID,
		Status:   auth.AccountStatusActive,
	}
	if password != "" {
		digest, err := svc.Hasher.HashPassword(password)
		require.NoError(t, err)
		account.PasswordHash = &digest
	}

	created, err := svc.Repo.Accounts().Insert(context.Background(), account)
	require.NoError(t, err)
	return created
}

func seedCode(t *testing.T, svc *auth.Service, code string, role auth.Role, unitID *int64, expiresAt *time.Time) *auth.EnrollmentCode {
	t.Helper()

	var created *auth.EnrollmentCode
	err := svc.Repo.RunInTx(context.Background(), nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		created, err = svc.Repo.Codes().InsertTx(ctx, tx, &auth.EnrollmentCode{
			Code:      code,
			Role:      role,
			UnitID:    unitID,
			ExpiresAt: expiresAt,
		})
		return err
	})
	require.NoError(t, err)
	return created
}

type endedEvents struct {
	mu     sync.Mutex
	events []auth.SessionEndedEvent
}

func (e *endedEvents) record(evt auth.SessionEndedEvent) {
	e.mu.Lock()
	e.events = append(e.events, evt)
	e.mu.Unlock()
}

func (e *endedEvents) all() []auth.SessionEndedEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]auth.SessionEndedEvent(nil), e.events...)
}

type capturingSink struct {
	mu     sync.Mutex
	events []auth.ActivityEvent
}

func (c *capturingSink) Record(_ context.Context, evt auth.ActivityEvent) error {
	c.mu.Lock()
	c.events = append(c.events, evt)
	c.mu.Unlock()
	return nil
}

// MockAccountTracker implements auth.AccountTracker
type MockAccountTracker struct {
	mock.Mock
}

func (m *MockAccountTracker) FindByUsername(ctx context.Context, username string) (*auth.Account, error) {
	args := m.Called(ctx, username)
	if account, ok := args.Get(0).(*auth.Account); ok {
		return account, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAccountTracker) TrackAttemptedLogin(ctx context.Context, account *auth.Account, at time.Time) error {
	args := m.Called(ctx, account, at)
	return args.Error(0)
}

func (m *MockAccountTracker) TrackSuccessfulLogin(ctx context.Context, account *auth.Account, at time.Time) error {
	args := m.Called(ctx, account, at)
	return args.Error(0)
}

// MockStatusUpdater implements auth.AccountStatusUpdater
type MockStatusUpdater struct {
	mock.Mock
}

func (m *MockStatusUpdater) UpdateStatus(ctx context.Context, id uuid.UUID, status auth.AccountStatus, opts ...auth.StatusUpdateOption) (*auth.Account, error) {
	args := m.Called(ctx, id, status, opts)
	if account, ok := args.Get(0).(*auth.Account); ok {
		return account, args.Error(1)
	}
	return nil, args.Error(1)
}
