package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const rememberSecretBytes = 32

// EnableRememberMe issues a token that lets the account log in again
// without a password for days. Previous tokens of the account are removed.
func (m *SessionManager) EnableRememberMe(ctx context.Context, accountID uuid.UUID, role Role, days int) (*RememberToken, error) {
	if !m.policies.RemembersSessions(role) {
		return nil, ErrRoleNotEligible
	}

	if days <= 0 {
		days = m.cfg.GetRememberMeDefaultDays()
	}
	if maxDays := m.cfg.GetRememberMeMaxDays(); maxDays > 0 && days > maxDays {
		return nil, newInputError("remember me duration exceeds the allowed maximum", nil).
			WithMetadata(map[string]any{"days": days, "max_days": maxDays})
	}

	account, err := m.repo.Accounts().FindByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if !m.policies.RemembersSessions(account.Role) {
		return nil, ErrRoleNotEligible
	}
	if !account.IsActive() {
		return nil, ErrAccountDisabled
	}

	secret, err := newRememberSecret()
	if err != nil {
		return nil, err
	}

	now := m.now()
	var token *RememberToken
	err = m.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		token, err = m.repo.RememberTokens().ReplaceForAccountTx(ctx, tx, &RememberToken{
			AccountID: account.ID,
			Secret:    secret,
			CreatedAt: now,
			ExpiresAt: now.Add(time.Duration(days) * 24 * time.Hour),
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	m.recorder().record(ctx, ActivityEvent{
		EventType: ActivityEventRememberEnabled,
		Actor:     AccountActor(account),
		SubjectID: account.ID.String(),
		Metadata:  map[string]any{"days": days},
	})

	return token, nil
}

// ConsumeRememberToken returns the owner of secret, or nil when the token
// is unknown, expired or its owner is no longer eligible. Expired tokens
// are deleted. Session state is not touched.
func (m *SessionManager) ConsumeRememberToken(ctx context.Context, secret string) (*Account, error) {
	if secret == "" {
		return nil, nil
	}

	token, err := m.repo.RememberTokens().FindBySecret(ctx, secret)
	if err != nil || token == nil {
		return nil, err
	}

	if token.IsExpired(m.now()) {
		if err := m.repo.RememberTokens().DeleteByID(ctx, token.ID); err != nil {
			m.logger.Warn("failed to purge expired remember token", "token", token.ID, "error", err)
		}
		return nil, nil
	}

	account, err := m.repo.Accounts().FindByID(ctx, token.AccountID)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	if !m.policies.RemembersSessions(account.Role) {
		return nil, nil
	}

	return account, nil
}

// LoginWithRememberToken promotes a valid remember token to a session
func (m *SessionManager) LoginWithRememberToken(ctx context.Context, secret string) (*Session, error) {
	if m.limiter != nil && !m.limiter.Allow() {
		m.metrics.loginResult("throttled")
		return nil, ErrTooManyLoginAttempts
	}

	account, err := m.ConsumeRememberToken(ctx, secret)
	if err != nil {
		return nil, err
	}
	if account == nil {
		m.metrics.loginResult("failure")
		return nil, ErrInvalidCredentials
	}
	if !account.IsActive() {
		m.metrics.loginResult("failure")
		return nil, ErrAccountDisabled
	}

	now := m.now()
	if err := m.repo.Accounts().TrackSuccessfulLogin(ctx, account, now); err != nil {
		m.logger.Error("failed to track successful login", "account", account.ID, "error", err)
	}
	account.LastLoginAt = timePtr(now)

	return m.start(ctx, account, ActivityEventRememberLogin), nil
}

func newRememberSecret() (string, error) {
	buf := make([]byte, rememberSecretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
