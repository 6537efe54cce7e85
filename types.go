package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config holds session and login options
type Config interface {
	GetInactivityTimeout() time.Duration
	GetMaxSessionLifetime() time.Duration
	GetPollInterval() time.Duration
	GetRememberMeDefaultDays() int
	GetRememberMeMaxDays() int
	GetMaxLoginAttempts() int
	GetLoginCoolDown() time.Duration
	GetLoginRateLimit() float64
	GetLoginRateBurst() int
	GetCodeDefaultTTL() time.Duration
}

// PasswordHasher hashes passwords and compares them against stored digests
type PasswordHasher interface {
	HashPassword(password string) (string, error)
	ComparePasswordAndHash(password, hash string) error
}

// AccountTracker is the store the AccountProvider needs to verify credentials
type AccountTracker interface {
	FindByUsername(ctx context.Context, username string) (*Account, error)
	TrackAttemptedLogin(ctx context.Context, account *Account, at time.Time) error
	TrackSuccessfulLogin(ctx context.Context, account *Account, at time.Time) error
}

// AccountStatusUpdater persists account status changes
type AccountStatusUpdater interface {
	UpdateStatus(ctx context.Context, id uuid.UUID, status AccountStatus, opts ...StatusUpdateOption) (*Account, error)
}

type defLogger struct{}

func (d defLogger) Error(msg string, args ...any) {
	fmt.Print("[ERR] AUTH " + format(msg, args...))
}

func (d defLogger) Warn(msg string, args ...any) {
	fmt.Print("[WRN] AUTH " + format(msg, args...))
}

func (d defLogger) Info(msg string, args ...any) {
	fmt.Print("[INF] AUTH " + format(msg, args...))
}

func (d defLogger) Debug(msg string, args ...any) {
	fmt.Print("[DBG] AUTH " + format(msg, args...))
}

func format(msg string, args ...any) string {
	var b strings.Builder
	b.WriteString(msg)
	for i := 0; i < len(args); i += 2 {
		if i+1 < len(args) {
			fmt.Fprintf(&b, " %v=%v", args[i], args[i+1])
		} else {
			fmt.Fprintf(&b, " %v", args[i])
		}
	}
	b.WriteString("\n")
	return b.String()
}
