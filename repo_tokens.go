package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RememberTokens is the remember token store. Tokens are looked up by the
// hash of their secret.
type RememberTokens interface {
	FindBySecret(ctx context.Context, secret string) (*RememberToken, error)
	ReplaceForAccountTx(ctx context.Context, tx bun.IDB, record *RememberToken) (*RememberToken, error)
	DeleteByID(ctx context.Context, id uuid.UUID) error
	DeleteByAccount(ctx context.Context, accountID uuid.UUID) (int64, error)
}

type rememberTokens struct {
	base repository.Repository[*RememberToken]
	db   bun.IDB
}

var _ RememberTokens = (*rememberTokens)(nil)

// NewRememberTokensRepository creates the remember token store
func NewRememberTokensRepository(db *bun.DB) RememberTokens {
	return &rememberTokens{
		base: repository.NewRepository[*RememberToken](db, repository.ModelHandlers[*RememberToken]{
			NewRecord: func() *RememberToken { return &RememberToken{} },
			GetID: func(t *RememberToken) uuid.UUID {
				if t == nil {
					return uuid.Nil
				}
				return t.ID
			},
			SetID: func(t *RememberToken, id uuid.UUID) {
				if t != nil {
					t.ID = id
				}
			},
			GetIdentifier: func() string {
				return "token_hash"
			},
		}),
		db: db,
	}
}

func (r *rememberTokens) FindBySecret(ctx context.Context, secret string) (*RememberToken, error) {
	record := &RememberToken{}
	err := r.db.NewSelect().
		Model(record).
		Where("?TableAlias.token_hash = ?", HashTokenSecret(secret)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return record, nil
}

// ReplaceForAccountTx removes every token of the owner and stores record
func (r *rememberTokens) ReplaceForAccountTx(ctx context.Context, tx bun.IDB, record *RememberToken) (*RememberToken, error) {
	if _, err := tx.NewDelete().
		Model((*RememberToken)(nil)).
		Where("account_id = ?", record.AccountID).
		Exec(ctx); err != nil {
		return nil, err
	}

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	record.TokenHash = HashTokenSecret(record.Secret)

	secret := record.Secret
	created, err := r.base.CreateTx(ctx, tx, record)
	if err != nil {
		return nil, err
	}
	created.Secret = secret
	return created, nil
}

func (r *rememberTokens) DeleteByID(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.NewDelete().
		Model((*RememberToken)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	return err
}

func (r *rememberTokens) DeleteByAccount(ctx context.Context, accountID uuid.UUID) (int64, error) {
	res, err := r.db.NewDelete().
		Model((*RememberToken)(nil)).
		Where("account_id = ?", accountID).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// HashTokenSecret returns the stored form of a remember token secret
func HashTokenSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}
