package auth

import (
	"context"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ProvisionAccountMessage creates an account without an enrollment code
type ProvisionAccountMessage struct {
	Username  string
	Password  string
	Role      Role
	UnitID    *int64
	SubUnitID *int64
	GroupID   *int64
}

func (m ProvisionAccountMessage) Validate() error {
	return m.ValidateWith(DefaultRolePolicies())
}

// ValidateWith checks the message against the roles known to rp
func (m ProvisionAccountMessage) ValidateWith(rp RolePolicies) error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Username,
			validation.Required,
			validation.RuneLength(3, 64),
			validation.Match(usernameRx),
		),
		validation.Field(&m.Role, validation.Required, validation.By(rp.knownRole)),
	)
}

// AccountAdmin is the administrative path to create, disable and enable accounts
type AccountAdmin struct {
	repo         RepositoryManager
	hasher       PasswordHasher
	policies     RolePolicies
	now          func() time.Time
	logger       Logger
	activity     ActivitySink
	stateMachine AccountStateMachine
}

// NewAccountAdmin creates an AccountAdmin backed by repo
func NewAccountAdmin(repo RepositoryManager) *AccountAdmin {
	return &AccountAdmin{
		repo:     repo,
		hasher:   defaultHasher,
		policies: DefaultRolePolicies(),
		now:      time.Now,
		logger:   defLogger{},
		activity: noopActivitySink{},
	}
}

func (a *AccountAdmin) WithHasher(h PasswordHasher) *AccountAdmin {
	if h != nil {
		a.hasher = h
	}
	return a
}

func (a *AccountAdmin) WithPolicies(p RolePolicies) *AccountAdmin {
	if p != nil {
		a.policies = p
	}
	return a
}

func (a *AccountAdmin) WithClock(now func() time.Time) *AccountAdmin {
	if now != nil {
		a.now = now
		a.stateMachine = nil
	}
	return a
}

func (a *AccountAdmin) WithLogger(l Logger) *AccountAdmin {
	if l != nil {
		a.logger = l
		a.stateMachine = nil
	}
	return a
}

func (a *AccountAdmin) WithActivitySink(s ActivitySink) *AccountAdmin {
	a.activity = normalizeActivitySink(s)
	a.stateMachine = nil
	return a
}

// WithStateMachine replaces the lifecycle state machine
func (a *AccountAdmin) WithStateMachine(sm AccountStateMachine) *AccountAdmin {
	a.stateMachine = sm
	return a
}

// Provision creates an active account on behalf of an administrator
func (a *AccountAdmin) Provision(ctx context.Context, adminID uuid.UUID, msg ProvisionAccountMessage) (*Account, error) {
	msg.Username = strings.TrimSpace(msg.Username)
	if err := msg.ValidateWith(a.policies); err != nil {
		return nil, newInputError("invalid account", err)
	}

	admin, err := a.authorize(ctx, adminID)
	if err != nil {
		return nil, err
	}

	account, err := a.create(ctx, msg)
	if err != nil {
		return nil, err
	}

	a.logger.Info("account provisioned", "account", account.ID, "role", account.Role, "admin", admin.ID)
	a.recorder().record(ctx, ActivityEvent{
		EventType: ActivityEventAccountProvisioned,
		Actor:     AccountActor(admin),
		SubjectID: account.ID.String(),
		Metadata:  map[string]any{"username": account.Username, "role": string(account.Role)},
	})

	return account, nil
}

// Disable prevents the account from logging in. Administrators can not
// disable themselves.
func (a *AccountAdmin) Disable(ctx context.Context, adminID, accountID uuid.UUID, reason string) (*Account, error) {
	if adminID == accountID {
		return nil, ErrForbidden
	}
	return a.transition(ctx, adminID, accountID, AccountStatusDisabled, reason)
}

// Enable lets a disabled account log in again
func (a *AccountAdmin) Enable(ctx context.Context, adminID, accountID uuid.UUID, reason string) (*Account, error) {
	return a.transition(ctx, adminID, accountID, AccountStatusActive, reason)
}

// EnsureAdministrator creates the first administrator when no active one
// exists. It reports whether an account was created.
func (a *AccountAdmin) EnsureAdministrator(ctx context.Context, username, password string) (*Account, bool, error) {
	count, err := a.repo.Accounts().CountActiveByRole(ctx, RoleAdministrator)
	if err != nil {
		return nil, false, err
	}
	if count > 0 {
		return nil, false, nil
	}

	msg := ProvisionAccountMessage{
		Username: strings.TrimSpace(username),
		Password: password,
		Role:     RoleAdministrator,
	}
	if err := msg.ValidateWith(a.policies); err != nil {
		return nil, false, newInputError("invalid administrator account", err)
	}

	account, err := a.create(ctx, msg)
	if err != nil {
		return nil, false, err
	}

	a.logger.Info("administrator bootstrapped", "account", account.ID, "username", account.Username)
	a.recorder().record(ctx, ActivityEvent{
		EventType: ActivityEventAccountProvisioned,
		SubjectID: account.ID.String(),
		Metadata:  map[string]any{"username": account.Username, "role": string(account.Role), "bootstrap": true},
	})

	return account, true, nil
}

func (a *AccountAdmin) create(ctx context.Context, msg ProvisionAccountMessage) (*Account, error) {
	if err := a.policies.ValidatePassword(msg.Role, msg.Password); err != nil {
		return nil, err
	}

	var digest *string
	if msg.Password != "" {
		h, err := a.hasher.HashPassword(msg.Password)
		if err != nil {
			return nil, err
		}
		digest = &h
	}

	now := a.now()
	var created *Account
	err := a.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		taken, err := a.repo.Accounts().UsernameExistsTx(ctx, tx, msg.Username)
		if err != nil {
			return err
		}
		if !taken {
			taken, err = a.repo.Registrations().PendingUsernameExistsTx(ctx, tx, msg.Username)
			if err != nil {
				return err
			}
		}
		if taken {
			return ErrUsernameTaken
		}

		created, err = a.repo.Accounts().InsertTx(ctx, tx, &Account{
			Username:     msg.Username,
			PasswordHash: digest,
			Role:         msg.Role,
			UnitID:       msg.UnitID,
			SubUnitID:    msg.SubUnitID,
			GroupID:      msg.GroupID,
			Status:       AccountStatusActive,
			CreatedAt:    timePtr(now),
			UpdatedAt:    timePtr(now),
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (a *AccountAdmin) transition(ctx context.Context, adminID, accountID uuid.UUID, target AccountStatus, reason string) (*Account, error) {
	admin, err := a.authorize(ctx, adminID)
	if err != nil {
		return nil, err
	}

	account, err := a.repo.Accounts().FindByID(ctx, accountID)
	if err != nil {
		return nil, err
	}

	opts := []TransitionOption{}
	if reason = strings.TrimSpace(reason); reason != "" {
		opts = append(opts, WithTransitionReason(reason))
	}

	return a.machine().Transition(ctx, AccountActor(admin), account, target, opts...)
}

func (a *AccountAdmin) authorize(ctx context.Context, adminID uuid.UUID) (*Account, error) {
	admin, err := a.repo.Accounts().FindByID(ctx, adminID)
	if err != nil {
		return nil, err
	}
	if !a.policies.CanAccess(admin, CapabilityManageAccounts) {
		return nil, ErrForbidden
	}
	return admin, nil
}

func (a *AccountAdmin) machine() AccountStateMachine {
	if a.stateMachine == nil {
		a.stateMachine = NewAccountStateMachine(a.repo.Accounts(),
			WithStateMachineClock(a.now),
			WithStateMachineActivitySink(a.activity),
			WithStateMachineLogger(a.logger),
		)
	}
	return a.stateMachine
}

func (a *AccountAdmin) recorder() activityRecorder {
	return activityRecorder{sink: a.activity, logger: a.logger, now: a.now}
}
