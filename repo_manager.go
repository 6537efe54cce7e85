package auth

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/uptrace/bun"
)

// Validator checks that every store is configured
type Validator interface {
	Validate() error
	MustValidate()
}

// TransactionManager runs f inside a single database transaction
type TransactionManager interface {
	RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error
}

// RepositoryManager exposes all repositories
type RepositoryManager interface {
	Validator
	TransactionManager
	Accounts() Accounts
	Codes() EnrollmentCodes
	Registrations() RegistrationRequests
	RememberTokens() RememberTokens
	Activity() ActivityLog
}

type mngr struct {
	db             *bun.DB
	accounts       Accounts
	codes          EnrollmentCodes
	registrations  RegistrationRequests
	rememberTokens RememberTokens
	activity       ActivityLog
}

// NewRepositoryManager wires every store on top of db
func NewRepositoryManager(db *bun.DB) RepositoryManager {
	return &mngr{
		db:             db,
		accounts:       NewAccountsRepository(db),
		codes:          NewEnrollmentCodesRepository(db),
		registrations:  NewRegistrationRequestsRepository(db),
		rememberTokens: NewRememberTokensRepository(db),
		activity:       NewActivityLogRepository(db),
	}
}

func (m mngr) Validate() error {
	if m.db == nil {
		return errors.New("database should be initialized")
	}

	if m.accounts == nil {
		return errors.New("repository accounts should be initialized")
	}

	if m.codes == nil {
		return errors.New("repository codes should be initialized")
	}

	if m.registrations == nil {
		return errors.New("repository registrations should be initialized")
	}

	if m.rememberTokens == nil {
		return errors.New("repository rememberTokens should be initialized")
	}

	if m.activity == nil {
		return errors.New("repository activity should be initialized")
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m mngr) Accounts() Accounts {
	return m.accounts
}

func (m mngr) Codes() EnrollmentCodes {
	return m.codes
}

func (m mngr) Registrations() RegistrationRequests {
	return m.registrations
}

func (m mngr) RememberTokens() RememberTokens {
	return m.rememberTokens
}

func (m mngr) Activity() ActivityLog {
	return m.activity
}
