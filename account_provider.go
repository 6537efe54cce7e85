package auth

import (
	"context"
	"time"
)

// AccountProvider verifies credentials against stored accounts
type AccountProvider struct {
	store       AccountTracker
	hasher      PasswordHasher
	policies    RolePolicies
	maxAttempts int
	coolDown    time.Duration
	now         func() time.Time
	logger      Logger
}

// NewAccountProvider will create a new AccountProvider
func NewAccountProvider(store AccountTracker) *AccountProvider {
	d := DefaultOptions().Login
	return &AccountProvider{
		store:       store,
		hasher:      defaultHasher,
		policies:    DefaultRolePolicies(),
		maxAttempts: d.MaxAttempts,
		coolDown:    d.CoolDown,
		now:         time.Now,
		logger:      defLogger{},
	}
}

func (p *AccountProvider) WithLogger(l Logger) *AccountProvider {
	if l != nil {
		p.logger = l
	}
	return p
}

func (p *AccountProvider) WithHasher(h PasswordHasher) *AccountProvider {
	if h != nil {
		p.hasher = h
	}
	return p
}

func (p *AccountProvider) WithPolicies(rp RolePolicies) *AccountProvider {
	if rp != nil {
		p.policies = rp
	}
	return p
}

func (p *AccountProvider) WithClock(now func() time.Time) *AccountProvider {
	if now != nil {
		p.now = now
	}
	return p
}

// WithConfig applies the login attempt budget and cool-down period
func (p *AccountProvider) WithConfig(cfg Config) *AccountProvider {
	if cfg != nil {
		p.maxAttempts = cfg.GetMaxLoginAttempts()
		p.coolDown = cfg.GetLoginCoolDown()
	}
	return p
}

// VerifyCredentials will find the account and check the password. An empty
// password is accepted only for roles whose policy allows it, and only when
// no digest is stored or passwordless is true.
func (p *AccountProvider) VerifyCredentials(ctx context.Context, username, password string, passwordless bool) (*Account, error) {
	account, err := p.store.FindByUsername(ctx, username)
	if err != nil {
		return nil, err
	}

	if !account.IsActive() {
		return nil, ErrAccountDisabled
	}

	policy, ok := p.policies.Lookup(account.Role)
	if !ok {
		return nil, ErrUnknownRole
	}

	now := p.now()
	if account.LoginAttemptAt != nil && now.Sub(*account.LoginAttemptAt) >= p.coolDown {
		account.LoginAttempts = 0
	}

	// if we have too many attempts in the given window, cool off!
	if p.maxAttempts > 0 && account.LoginAttempts >= p.maxAttempts {
		return nil, ErrTooManyLoginAttempts
	}

	if err := p.checkPassword(account, policy, password, passwordless); err != nil {
		if err != ErrMismatchedHashAndPassword {
			return nil, err
		}

		if err2 := p.store.TrackAttemptedLogin(ctx, account, now); err2 != nil {
			return nil, err2
		}
		return nil, ErrInvalidCredentials
	}

	if err := p.store.TrackSuccessfulLogin(ctx, account, now); err != nil {
		p.logger.Error("failed to track successful login", "account", account.ID, "error", err)
	}

	account.LoginAttempts = 0
	account.LoginAttemptAt = nil
	account.LastLoginAt = timePtr(now)

	return account, nil
}

func (p *AccountProvider) checkPassword(account *Account, policy RolePolicy, password string, passwordless bool) error {
	if password == "" {
		if policy.Password.AllowsPasswordless() && (!account.HasPassword() || passwordless) {
			return nil
		}
		return ErrMismatchedHashAndPassword
	}

	if !account.HasPassword() {
		return ErrMismatchedHashAndPassword
	}

	return p.hasher.ComparePasswordAndHash(password, *account.PasswordHash)
}
