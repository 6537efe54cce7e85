package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/qcdash/go-auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionManagerLogin(t *testing.T) {
	ctx := context.Background()
	svc, clock := newTestService(t, nil)
	inspector := seedAccount(t, svc, "inspector", auth.RoleQualityControl, strongPassword, unit(1))

	session, err := svc.Sessions.Login(ctx, "inspector", strongPassword)
	require.NoError(t, err)

	assert.True(t, session.IsAlive())
	assert.Equal(t, inspector.ID, session.AccountID())
	assert.Equal(t, "inspector", session.Username())
	assert.Equal(t, auth.RoleQualityControl, session.Role())
	assert.Equal(t, clock.Now(), session.StartedAt())
	assert.Equal(t, clock.Now().Add(30*time.Minute), session.Deadline())
	assert.True(t, session.HardDeadline().IsZero())
	assert.Same(t, session, svc.Sessions.Current())

	stored, err := svc.Repo.Accounts().FindByID(ctx, inspector.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastLoginAt)
	assert.True(t, clock.Now().Equal(*stored.LastLoginAt))
}

func TestSessionManagerLoginFailures(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, nil)
	seedAccount(t, svc, "inspector", auth.RoleQualityControl, strongPassword, unit(1))
	disabled := seedAccount(t, svc, "former", auth.RoleQualityControl, strongPassword, unit(1))
	_, err := svc.Repo.Accounts().UpdateStatus(ctx, disabled.ID, auth.AccountStatusDisabled)
	require.NoError(t, err)

	_, err = svc.Sessions.Login(ctx, "inspector", "Wrong1234")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)

	_, err = svc.Sessions.Login(ctx, "inspector", "")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)

	_, err = svc.Sessions.Login(ctx, "nobody", strongPassword)
	assert.ErrorIs(t, err, auth.ErrAccountNotFound)
	assert.True(t, auth.IsNotFound(err))

	_, err = svc.Sessions.Login(ctx, "former", strongPassword)
	assert.ErrorIs(t, err, auth.ErrAccountDisabled)

	assert.Nil(t, svc.Sessions.Current())
}

func TestSessionManagerLoginLockout(t *testing.T) {
	ctx := context.Background()
	svc, clock := newTestService(t, nil)
	seedAccount(t, svc, "inspector", auth.RoleQualityControl, strongPassword, unit(1))

	for i := 0; i < 5; i++ {
		_, err := svc.Sessions.Login(ctx, "inspector", "Wrong1234")
		require.ErrorIs(t, err, auth.ErrInvalidCredentials)
	}

	_, err := svc.Sessions.Login(ctx, "inspector", strongPassword)
	assert.ErrorIs(t, err, auth.ErrTooManyLoginAttempts)

	clock.Advance(24 * time.Hour)

	_, err = svc.Sessions.Login(ctx, "inspector", strongPassword)
	assert.NoError(t, err)
}

func TestSessionManagerRateLimit(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, func(o *auth.Options) {
		o.Login.RateLimit = 0.001
		o.Login.RateBurst = 1
	})
	seedAccount(t, svc, "inspector", auth.RoleQualityControl, strongPassword, unit(1))

	_, err := svc.Sessions.Login(ctx, "inspector", strongPassword)
	require.NoError(t, err)

	_, err = svc.Sessions.Login(ctx, "inspector", strongPassword)
	assert.ErrorIs(t, err, auth.ErrTooManyLoginAttempts)
}

func TestSessionManagerLoginCanceledContext(t *testing.T) {
	svc, _ := newTestService(t, nil)
	seedAccount(t, svc, "inspector", auth.RoleQualityControl, strongPassword, unit(1))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Sessions.Login(ctx, "inspector", strongPassword)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSessionManagerInactivityTimeout(t *testing.T) {
	ctx := context.Background()
	svc, clock := newTestService(t, nil)
	inspector := seedAccount(t, svc, "inspector", auth.RoleQualityControl, strongPassword, unit(1))

	events := &endedEvents{}
	svc.Sessions.OnSessionEnded(events.record)

	session, err := svc.Sessions.Login(ctx, "inspector", strongPassword)
	require.NoError(t, err)

	clock.Advance(29 * time.Minute)
	assert.False(t, svc.Sessions.CheckExpiry(session))
	assert.True(t, session.IsAlive())

	clock.Advance(2 * time.Minute)
	assert.True(t, svc.Sessions.CheckExpiry(session))
	assert.False(t, session.IsAlive())
	assert.Equal(t, auth.SessionEndTimeout, session.EndReason())
	assert.Nil(t, svc.Sessions.Current())

	// ended sessions are not announced twice
	assert.True(t, svc.Sessions.CheckExpiry(session))
	require.NoError(t, svc.Sessions.Logout(ctx, session))

	got := events.all()
	require.Len(t, got, 1)
	assert.Equal(t, auth.SessionEndTimeout, got[0].Reason)
	assert.Equal(t, inspector.ID, got[0].AccountID)
	assert.Equal(t, "inspector", got[0].Username)
	assert.Equal(t, session.ID(), got[0].SessionID)
	assert.Equal(t, clock.Now(), got[0].EndedAt)

	assert.ErrorIs(t, svc.Sessions.Touch(session), auth.ErrSessionEnded)
}

func TestSessionManagerTouchExtendsDeadline(t *testing.T) {
	ctx := context.Background()
	svc, clock := newTestService(t, nil)
	seedAccount(t, svc, "inspector", auth.RoleQualityControl, strongPassword, unit(1))

	session, err := svc.Sessions.Login(ctx, "inspector", strongPassword)
	require.NoError(t, err)

	clock.Advance(20 * time.Minute)
	require.NoError(t, svc.Sessions.Touch(session))
	assert.Equal(t, clock.Now().Add(30*time.Minute), session.Deadline())

	clock.Advance(20 * time.Minute)
	assert.False(t, svc.Sessions.CheckExpiry(session))

	clock.Advance(10 * time.Minute)
	assert.True(t, svc.Sessions.CheckExpiry(session))
}

func TestSessionManagerMaxLifetimeCapsTouch(t *testing.T) {
	ctx := context.Background()
	svc, clock := newTestService(t, func(o *auth.Options) {
		o.Session.MaxLifetime = 45 * time.Minute
	})
	seedAccount(t, svc, "inspector", auth.RoleQualityControl, strongPassword, unit(1))

	session, err := svc.Sessions.Login(ctx, "inspector", strongPassword)
	require.NoError(t, err)
	hard := clock.Now().Add(45 * time.Minute)
	assert.Equal(t, hard, session.HardDeadline())

	clock.Advance(25 * time.Minute)
	require.NoError(t, svc.Sessions.Touch(session))
	assert.Equal(t, hard, session.Deadline())

	clock.Advance(20 * time.Minute)
	assert.ErrorIs(t, svc.Sessions.Touch(session), auth.ErrSessionEnded)
	assert.Equal(t, auth.SessionEndTimeout, session.EndReason())
}

func TestSessionManagerTimerEndsSession(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, func(o *auth.Options) {
		o.Session.InactivityTimeout = 50 * time.Millisecond
		o.Session.PollInterval = 10 * time.Millisecond
	}, auth.WithServiceClock(time.Now))
	seedAccount(t, svc, "inspector", auth.RoleQualityControl, strongPassword, unit(1))

	ended := make(chan auth.SessionEndedEvent, 1)
	svc.Sessions.OnSessionEnded(func(evt auth.SessionEndedEvent) {
		ended <- evt
	})

	session, err := svc.Sessions.Login(ctx, "inspector", strongPassword)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return !session.IsAlive()
	}, 2*time.Second, 10*time.Millisecond)

	select {
	case evt := <-ended:
		assert.Equal(t, auth.SessionEndTimeout, evt.Reason)
		assert.Equal(t, session.ID(), evt.SessionID)
	case <-time.After(time.Second):
		t.Fatal("session ended event was not emitted")
	}
}

func TestSessionManagerTimerFirstTickPastDeadline(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, func(o *auth.Options) {
		o.Session.InactivityTimeout = time.Nanosecond
		o.Session.PollInterval = time.Millisecond
	}, auth.WithServiceClock(time.Now))
	seedAccount(t, svc, "inspector", auth.RoleQualityControl, strongPassword, unit(1))

	events := &endedEvents{}
	svc.Sessions.OnSessionEnded(events.record)

	for i := 0; i < 20; i++ {
		session, err := svc.Sessions.Login(ctx, "inspector", strongPassword)
		require.NoError(t, err)

		require.Eventually(t, func() bool {
			return !session.IsAlive()
		}, time.Second, time.Millisecond)
		assert.Equal(t, auth.SessionEndTimeout, session.EndReason())
	}

	assert.Len(t, events.all(), 20)
	assert.Nil(t, svc.Sessions.Current())
}

func TestSessionManagerValidateDisabledAccount(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, nil)
	admin := seedAccount(t, svc, "admin", auth.RoleAdministrator, strongPassword, nil)
	inspector := seedAccount(t, svc, "inspector", auth.RoleQualityControl, strongPassword, unit(1))

	events := &endedEvents{}
	svc.Sessions.OnSessionEnded(events.record)

	session, err := svc.Sessions.Login(ctx, "inspector", strongPassword)
	require.NoError(t, err)

	ok, err := svc.Sessions.Validate(ctx, session)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = svc.Admin.Disable(ctx, admin.ID, inspector.ID, "left the plant")
	require.NoError(t, err)

	ok, err = svc.Sessions.Validate(ctx, session)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, auth.SessionEndInvalidated, session.EndReason())

	got := events.all()
	require.Len(t, got, 1)
	assert.Equal(t, auth.SessionEndInvalidated, got[0].Reason)
}

func TestSessionManagerValidateRoleChange(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, nil)
	inspector := seedAccount(t, svc, "inspector", auth.RoleQualityControl, strongPassword, unit(1))

	session, err := svc.Sessions.Login(ctx, "inspector", strongPassword)
	require.NoError(t, err)

	_, err = svc.DB.NewUpdate().
		Model((*auth.Account)(nil)).
		Set("role = ?", auth.RoleProductionOperator).
		Where("id = ?", inspector.ID).
		Exec(ctx)
	require.NoError(t, err)

	ok, err := svc.Sessions.Validate(ctx, session)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, auth.SessionEndInvalidated, session.EndReason())
}

func TestSessionManagerValidateStorageErrorKeepsSession(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, nil)
	seedAccount(t, svc, "inspector", auth.RoleQualityControl, strongPassword, unit(1))

	session, err := svc.Sessions.Login(ctx, "inspector", strongPassword)
	require.NoError(t, err)

	require.NoError(t, svc.DB.Close())

	ok, err := svc.Sessions.Validate(ctx, session)
	assert.Error(t, err)
	assert.False(t, ok)
	assert.True(t, session.IsAlive())
}

func TestSessionManagerLogout(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, nil)
	seedAccount(t, svc, "inspector", auth.RoleQualityControl, strongPassword, unit(1))

	events := &endedEvents{}
	unsubscribe := svc.Sessions.OnSessionEnded(events.record)

	session, err := svc.Sessions.Login(ctx, "inspector", strongPassword)
	require.NoError(t, err)

	require.NoError(t, svc.Sessions.Logout(ctx, session))
	assert.False(t, session.IsAlive())
	assert.Equal(t, auth.SessionEndLogout, session.EndReason())
	assert.Nil(t, svc.Sessions.Current())

	unsubscribe()

	second, err := svc.Sessions.Login(ctx, "inspector", strongPassword)
	require.NoError(t, err)
	require.NoError(t, svc.Sessions.Logout(ctx, second))

	assert.Len(t, events.all(), 1)
}

func TestSessionManagerNewLoginReplacesSession(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, nil)
	seedAccount(t, svc, "inspector", auth.RoleQualityControl, strongPassword, unit(1))
	seedAccount(t, svc, "line1", auth.RoleProductionOperator, "", unit(1))

	events := &endedEvents{}
	svc.Sessions.OnSessionEnded(events.record)

	first, err := svc.Sessions.Login(ctx, "inspector", strongPassword)
	require.NoError(t, err)

	second, err := svc.Sessions.Login(ctx, "line1", "")
	require.NoError(t, err)

	assert.False(t, first.IsAlive())
	assert.Equal(t, auth.SessionEndLogout, first.EndReason())
	assert.Same(t, second, svc.Sessions.Current())

	got := events.all()
	require.Len(t, got, 1)
	assert.Equal(t, first.ID(), got[0].SessionID)
}

func TestSessionManagerListenersRunInOrder(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, nil)
	seedAccount(t, svc, "inspector", auth.RoleQualityControl, strongPassword, unit(1))

	var order []string
	svc.Sessions.OnSessionEnded(func(auth.SessionEndedEvent) { order = append(order, "first") })
	svc.Sessions.OnSessionEnded(func(auth.SessionEndedEvent) { order = append(order, "second") })

	session, err := svc.Sessions.Login(ctx, "inspector", strongPassword)
	require.NoError(t, err)
	require.NoError(t, svc.Sessions.Logout(ctx, session))

	assert.Equal(t, []string{"first", "second"}, order)
}
