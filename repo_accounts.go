package auth

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Accounts is the account store
type Accounts interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Account, error)
	FindByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*Account, error)
	FindByUsername(ctx context.Context, username string) (*Account, error)
	FindByUsernameTx(ctx context.Context, tx bun.IDB, username string) (*Account, error)
	UsernameExistsTx(ctx context.Context, tx bun.IDB, username string) (bool, error)
	CountActiveByRole(ctx context.Context, role Role) (int, error)

	Insert(ctx context.Context, account *Account) (*Account, error)
	InsertTx(ctx context.Context, tx bun.IDB, account *Account) (*Account, error)

	TrackAttemptedLogin(ctx context.Context, account *Account, at time.Time) error
	TrackSuccessfulLogin(ctx context.Context, account *Account, at time.Time) error

	UpdateStatus(ctx context.Context, id uuid.UUID, status AccountStatus, opts ...StatusUpdateOption) (*Account, error)
	UpdateStatusTx(ctx context.Context, tx bun.IDB, id uuid.UUID, status AccountStatus, opts ...StatusUpdateOption) (*Account, error)
}

type accounts struct {
	base repository.Repository[*Account]
	db   bun.IDB
}

var (
	_ Accounts             = (*accounts)(nil)
	_ AccountTracker       = (*accounts)(nil)
	_ AccountStatusUpdater = (*accounts)(nil)
)

// NewAccountsRepository creates the account store
func NewAccountsRepository(db *bun.DB) Accounts {
	return &accounts{
		base: repository.NewRepository[*Account](db, repository.ModelHandlers[*Account]{
			NewRecord: func() *Account { return &Account{} },
			GetID: func(a *Account) uuid.UUID {
				if a == nil {
					return uuid.Nil
				}
				return a.ID
			},
			SetID: func(a *Account, id uuid.UUID) {
				if a != nil {
					a.ID = id
				}
			},
			GetIdentifier: func() string {
				return "username"
			},
		}),
		db: db,
	}
}

func (a *accounts) FindByID(ctx context.Context, id uuid.UUID) (*Account, error) {
	return a.FindByIDTx(ctx, a.db, id)
}

func (a *accounts) FindByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*Account, error) {
	record := &Account{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	record.EnsureStatus()
	return record, nil
}

func (a *accounts) FindByUsername(ctx context.Context, username string) (*Account, error) {
	return a.FindByUsernameTx(ctx, a.db, username)
}

func (a *accounts) FindByUsernameTx(ctx context.Context, tx bun.IDB, username string) (*Account, error) {
	record := &Account{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.username = ?", strings.TrimSpace(username)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	record.EnsureStatus()
	return record, nil
}

func (a *accounts) UsernameExistsTx(ctx context.Context, tx bun.IDB, username string) (bool, error) {
	return tx.NewSelect().
		Model((*Account)(nil)).
		Where("?TableAlias.username = ?", strings.TrimSpace(username)).
		Exists(ctx)
}

func (a *accounts) CountActiveByRole(ctx context.Context, role Role) (int, error) {
	return a.db.NewSelect().
		Model((*Account)(nil)).
		Where("?TableAlias.role = ?", role).
		Where("?TableAlias.status = ?", AccountStatusActive).
		Count(ctx)
}

func (a *accounts) Insert(ctx context.Context, account *Account) (*Account, error) {
	return a.InsertTx(ctx, a.db, account)
}

func (a *accounts) InsertTx(ctx context.Context, tx bun.IDB, account *Account) (*Account, error) {
	prepareAccountDefaults(account)
	return a.base.CreateTx(ctx, tx, account)
}

func (a *accounts) TrackAttemptedLogin(ctx context.Context, account *Account, at time.Time) error {
	_, err := a.db.NewUpdate().
		Model((*Account)(nil)).
		Set("login_attempts = ?", account.LoginAttempts+1).
		Set("login_attempt_at = ?", at).
		Where("id = ?", account.ID).
		Exec(ctx)
	return err
}

func (a *accounts) TrackSuccessfulLogin(ctx context.Context, account *Account, at time.Time) error {
	// login_attempt_at has to be reset explicitly, a model update skips nil fields.
	_, err := a.db.NewUpdate().
		Model((*Account)(nil)).
		Set("last_login_at = ?", at).
		Set("login_attempt_at = NULL").
		Set("login_attempts = 0").
		Where("id = ?", account.ID).
		Exec(ctx)
	return err
}

func (a *accounts) UpdateStatus(ctx context.Context, id uuid.UUID, status AccountStatus, opts ...StatusUpdateOption) (*Account, error) {
	return a.UpdateStatusTx(ctx, a.db, id, status, opts...)
}

func (a *accounts) UpdateStatusTx(ctx context.Context, tx bun.IDB, id uuid.UUID, status AccountStatus, opts ...StatusUpdateOption) (*Account, error) {
	record := &Account{
		ID:     id,
		Status: status,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(record)
		}
	}

	// Column is ignored once Set is used, every written field is listed here.
	res, err := tx.NewUpdate().
		Model((*Account)(nil)).
		Set("status = ?", record.Status).
		Set("disabled_at = ?", record.DisabledAt).
		Set("updated_at = current_timestamp").
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return nil, err
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, ErrAccountNotFound
	}

	return a.FindByIDTx(ctx, tx, id)
}

// StatusUpdateOption allows callers to mutate the account record before persisting status changes.
type StatusUpdateOption func(*Account)

// WithDisabledAt sets the DisabledAt timestamp during a status transition.
func WithDisabledAt(at *time.Time) StatusUpdateOption {
	return func(a *Account) {
		a.DisabledAt = at
	}
}

func prepareAccountDefaults(record *Account) {
	if record == nil {
		return
	}

	record.Username = strings.TrimSpace(record.Username)
	record.EnsureStatus()

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows) || repository.IsRecordNotFound(err)
}
