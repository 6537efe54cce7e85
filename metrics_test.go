package auth_test

import (
	"context"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/qcdash/go-auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsCountLifecycle(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	svc, _ := newTestService(t, nil, auth.WithServiceRegisterer(reg))

	admin := seedAccount(t, svc, "admin", auth.RoleAdministrator, strongPassword, nil)
	seedAccount(t, svc, "inspector", auth.RoleQualityControl, strongPassword, unit(1))

	_, err := svc.Codes.Issue(ctx, admin.ID, auth.IssueCodeMessage{Role: auth.RoleQualityControl, UnitID: unit(1)})
	require.NoError(t, err)

	_, err = svc.Sessions.Login(ctx, "inspector", "Wrong1234")
	require.Error(t, err)

	session, err := svc.Sessions.Login(ctx, "inspector", strongPassword)
	require.NoError(t, err)
	require.NoError(t, svc.Sessions.Logout(ctx, session))

	expected := `
# HELP qcauth_enrollment_codes_total Enrollment code events.
# TYPE qcauth_enrollment_codes_total counter
qcauth_enrollment_codes_total{event="issued"} 1
# HELP qcauth_logins_total Login attempts by result.
# TYPE qcauth_logins_total counter
qcauth_logins_total{result="failure"} 1
qcauth_logins_total{result="success"} 1
# HELP qcauth_sessions_ended_total Ended sessions by reason.
# TYPE qcauth_sessions_ended_total counter
qcauth_sessions_ended_total{reason="logout"} 1
`
	err = testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"qcauth_enrollment_codes_total",
		"qcauth_logins_total",
		"qcauth_sessions_ended_total",
	)
	assert.NoError(t, err)
}

func TestMetricsThrottledLogins(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	svc, _ := newTestService(t, func(o *auth.Options) {
		o.Login.RateLimit = 0.001
		o.Login.RateBurst = 1
	}, auth.WithServiceRegisterer(reg))
	seedAccount(t, svc, "inspector", auth.RoleQualityControl, strongPassword, unit(1))

	_, err := svc.Sessions.Login(ctx, "inspector", strongPassword)
	require.NoError(t, err)

	_, err = svc.Sessions.Login(ctx, "inspector", strongPassword)
	require.ErrorIs(t, err, auth.ErrTooManyLoginAttempts)

	// success and throttled series
	count, err := testutil.GatherAndCount(reg, "qcauth_logins_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestNewMetricsRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()

	_, err := auth.NewMetrics(reg)
	require.NoError(t, err)

	_, err = auth.NewMetrics(reg)
	assert.Error(t, err)

	m, err := auth.NewMetrics(nil)
	require.NoError(t, err)
	assert.NotNil(t, m)
}
